package outbox

import (
	"time"

	"github.com/rs/zerolog/log"
)

// MetricsCollector defines the interface for collecting outbox metrics
type MetricsCollector interface {
	RecordMessageRecorded(tag string)
	RecordMessageAcked(latency time.Duration)
	RecordReplay(count int, duration time.Duration)
	RecordOutboxDepth(depth int)
}

// NoOpMetricsCollector is a no-op implementation for when metrics aren't needed
type NoOpMetricsCollector struct{}

func (n *NoOpMetricsCollector) RecordMessageRecorded(tag string)               {}
func (n *NoOpMetricsCollector) RecordMessageAcked(latency time.Duration)       {}
func (n *NoOpMetricsCollector) RecordReplay(count int, duration time.Duration) {}
func (n *NoOpMetricsCollector) RecordOutboxDepth(depth int)                    {}

// LogMetricsCollector writes every measurement as a debug log line.
type LogMetricsCollector struct{}

func (LogMetricsCollector) RecordMessageRecorded(tag string) {
	log.Debug().Str("tag", tag).Msg("outbox recorded message")
}

func (LogMetricsCollector) RecordMessageAcked(latency time.Duration) {
	log.Debug().Dur("latency", latency).Msg("outbox message acked")
}

func (LogMetricsCollector) RecordReplay(count int, duration time.Duration) {
	log.Debug().Int("count", count).Dur("duration", duration).Msg("outbox replayed")
}

func (LogMetricsCollector) RecordOutboxDepth(depth int) {
	log.Debug().Int("depth", depth).Msg("outbox depth")
}
