package outbox

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/scoresync/go/internal/messages"
)

// Sender is the live connection the keep-alive writes through.
type Sender interface {
	// Send queues a new payload under a fresh id.
	Send(payload messages.Outbound)
	// Resend queues already-identified messages, keeping their ids.
	Resend(msgs []messages.OutboundMessage)
}

// SnapshotFunc returns the device snapshot to broadcast. ok is false when
// the identifying fields are missing; the broadcast is then skipped.
type SnapshotFunc func() (report messages.ApplicationStateReport, ok bool)

type Config struct {
	Interval time.Duration `env:"INTERVAL" yaml:"interval"`
}

func DefaultConfig() Config {
	return Config{
		Interval: 15 * time.Second,
	}
}

// KeepAlive replays the outbox and broadcasts a device snapshot on a fixed
// period, independent of traffic.
type KeepAlive struct {
	outbox   *Outbox
	sender   Sender
	snapshot SnapshotFunc
	clock    clockwork.Clock
	config   Config
	metrics  MetricsCollector

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

func NewKeepAlive(outbox *Outbox, sender Sender, snapshot SnapshotFunc, clock clockwork.Clock, cfg Config) *KeepAlive {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &KeepAlive{
		outbox:   outbox,
		sender:   sender,
		snapshot: snapshot,
		clock:    clock,
		config:   cfg,
		metrics:  outbox.metrics,
		stopChan: make(chan struct{}),
	}
}

func (k *KeepAlive) Start(ctx context.Context) error {
	k.mu.Lock()
	if k.running {
		k.mu.Unlock()
		return fmt.Errorf("keep-alive already running")
	}
	k.running = true
	k.mu.Unlock()

	k.wg.Add(1)
	go k.run(ctx)

	log.Info().Dur("interval", k.config.Interval).Msg("keep-alive started")
	return nil
}

func (k *KeepAlive) Stop() error {
	k.mu.Lock()
	if !k.running {
		k.mu.Unlock()
		return fmt.Errorf("keep-alive not running")
	}
	k.running = false
	k.mu.Unlock()

	close(k.stopChan)
	k.wg.Wait()

	log.Info().Msg("keep-alive stopped")
	return nil
}

func (k *KeepAlive) run(ctx context.Context) {
	defer k.wg.Done()

	ticker := k.clock.NewTicker(k.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-k.stopChan:
			return
		case <-ticker.Chan():
			k.Tick()
		}
	}
}

// Tick replays every pending message and broadcasts the snapshot. It is
// also called whenever a new connection comes up.
func (k *KeepAlive) Tick() {
	start := k.clock.Now()

	pending := k.outbox.Pending()
	if len(pending) > 0 {
		k.sender.Resend(pending)
		log.Debug().Int("count", len(pending)).Msg("replayed outbox")
	}
	k.metrics.RecordReplay(len(pending), k.clock.Since(start))

	if k.snapshot == nil {
		return
	}
	report, ok := k.snapshot()
	if !ok {
		return
	}
	k.sender.Send(report)
}
