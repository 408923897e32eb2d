// Package outbox keeps every unacknowledged outbound message durable until
// the server acks it, and replays them on a keep-alive tick.
package outbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/scoresync/go/internal/messages"
	"github.com/mcdev12/scoresync/go/internal/store"
)

// StorageKey is where the pending messages are persisted.
const StorageKey = "STORED_MESSAGES"

const persistTimeout = 5 * time.Second

// Outbox is an ordered, persisted list of messages awaiting an Ack.
// Insertion order is replay order.
type Outbox struct {
	store   store.Store
	metrics MetricsCollector
	clock   clockwork.Clock

	mu      sync.Mutex
	entries []messages.OutboundMessage
}

// Option configures an Outbox.
type Option func(*Outbox)

// WithMetrics sets the metrics collector.
func WithMetrics(m MetricsCollector) Option {
	return func(o *Outbox) { o.metrics = m }
}

// WithClock sets the clock used to measure ack latency.
func WithClock(c clockwork.Clock) Option {
	return func(o *Outbox) { o.clock = c }
}

// Load restores the outbox from s. A corrupt stored list is discarded: the
// messages in it are lost for this session but the engine keeps running.
func Load(ctx context.Context, s store.Store, opts ...Option) (*Outbox, error) {
	o := &Outbox{
		store:   s,
		metrics: &NoOpMetricsCollector{},
		clock:   clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(o)
	}

	entries, err := store.GetJSON[[]messages.OutboundMessage](ctx, s, StorageKey)
	switch {
	case err == nil:
		o.entries = entries
	case errors.Is(err, store.ErrNotFound):
	case errors.Is(err, store.ErrCorrupt):
		log.Warn().Err(err).Msg("discarding corrupt outbox")
		if err := s.Delete(ctx, StorageKey); err != nil {
			return nil, fmt.Errorf("failed to discard corrupt outbox: %w", err)
		}
	default:
		return nil, fmt.Errorf("failed to load outbox: %w", err)
	}

	if len(o.entries) > 0 {
		log.Info().Int("pending", len(o.entries)).Msg("restored outbox")
	}
	o.metrics.RecordOutboxDepth(len(o.entries))
	return o, nil
}

// Durable reports whether a payload must survive until acknowledged. Acks,
// liveness probes and device snapshots are best effort.
func Durable(p messages.Outbound) bool {
	switch p.(type) {
	case messages.Ack, messages.NoOp, messages.ApplicationStateReport:
		return false
	}
	return true
}

// Record appends msg and persists the outbox before returning. Recording a
// message that is already pending is a no-op, so replays never duplicate.
// On a persistence error the message stays pending in memory.
func (o *Outbox) Record(ctx context.Context, msg messages.OutboundMessage) error {
	if !Durable(msg.Payload) {
		return nil
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.indexOf(msg.ID) >= 0 {
		return nil
	}
	o.entries = append(o.entries, msg)
	o.metrics.RecordMessageRecorded(msg.Payload.Tag())
	o.metrics.RecordOutboxDepth(len(o.entries))

	if err := o.persist(ctx); err != nil {
		return fmt.Errorf("failed to persist outbox: %w", err)
	}
	return nil
}

// Transform records msg and encodes it for the wire. It is installed as the
// socket's transform hook so a message is durable before it is queued.
func (o *Outbox) Transform(msg messages.OutboundMessage) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := o.Record(ctx, msg); err != nil {
		log.Error().Err(err).
			Str("message_id", msg.ID.String()).
			Msg("failed to record outbound message")
	}
	return messages.Encode(msg)
}

// Ack retires the message with id. It reports whether a message was
// removed; unknown ids are ignored.
func (o *Outbox) Ack(ctx context.Context, id uuid.UUID) (bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	i := o.indexOf(id)
	if i < 0 {
		log.Debug().Str("message_id", id.String()).Msg("ack for unknown message")
		return false, nil
	}
	o.entries = append(o.entries[:i], o.entries[i+1:]...)

	o.metrics.RecordMessageAcked(o.clock.Since(time.Unix(id.Time().UnixTime())))
	o.metrics.RecordOutboxDepth(len(o.entries))

	if err := o.persist(ctx); err != nil {
		return true, fmt.Errorf("failed to persist outbox: %w", err)
	}
	return true, nil
}

// Pending returns a copy of the unacknowledged messages in insertion order.
func (o *Outbox) Pending() []messages.OutboundMessage {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]messages.OutboundMessage, len(o.entries))
	copy(out, o.entries)
	return out
}

// Len returns the number of unacknowledged messages.
func (o *Outbox) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.entries)
}

// Clear drops every pending message, used when the judge signs out.
func (o *Outbox) Clear(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.entries = nil
	o.metrics.RecordOutboxDepth(0)
	return o.store.Delete(ctx, StorageKey)
}

func (o *Outbox) indexOf(id uuid.UUID) int {
	for i := range o.entries {
		if o.entries[i].ID == id {
			return i
		}
	}
	return -1
}

// persist must be called with mu held.
func (o *Outbox) persist(ctx context.Context) error {
	return store.SetJSON(ctx, o.store, StorageKey, o.entries)
}
