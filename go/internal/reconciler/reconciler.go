// Package reconciler applies server-pushed updates to the judge's local state.
package reconciler

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mcdev12/scoresync/go/internal/messages"
	"github.com/mcdev12/scoresync/go/internal/models"
	"github.com/mcdev12/scoresync/go/internal/pages"
	"github.com/mcdev12/scoresync/go/internal/state"
)

// DefaultResetWindow is how old a reset may be and still be applied.
const DefaultResetWindow = 30 * time.Second

// Sender queues outbound payloads.
type Sender interface {
	Send(payload messages.Outbound)
}

// Acker retires outbox entries the server acknowledged.
type Acker interface {
	Ack(ctx context.Context, id uuid.UUID) (bool, error)
}

// Reconciler dispatches inbound messages. Every decoded message is acked
// before it is handled, whatever the outcome.
type Reconciler struct {
	state  *state.Managed
	sender Sender
	outbox Acker
	pages  pages.Broadcaster
	clock  clockwork.Clock
	window time.Duration
	tracer trace.Tracer
}

type Option func(*Reconciler)

func WithClock(c clockwork.Clock) Option {
	return func(r *Reconciler) { r.clock = c }
}

func WithResetWindow(d time.Duration) Option {
	return func(r *Reconciler) { r.window = d }
}

func WithPages(b pages.Broadcaster) Option {
	return func(r *Reconciler) { r.pages = b }
}

func New(st *state.Managed, sender Sender, outbox Acker, opts ...Option) *Reconciler {
	r := &Reconciler{
		state:  st,
		sender: sender,
		outbox: outbox,
		pages:  pages.Discard{},
		clock:  clockwork.NewRealClock(),
		window: DefaultResetWindow,
		tracer: otel.Tracer("scoresync/reconciler"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Handle decodes and applies one frame. Any frame with a readable id is
// acknowledged before its payload is looked at. It only returns an error that
// must end the session; everything else is logged and the frame is dropped.
func (r *Reconciler) Handle(ctx context.Context, frame []byte) error {
	msg, err := messages.DecodeInbound(frame)
	if msg.ID == uuid.Nil {
		log.Warn().Err(err).Int("size", len(frame)).Msg("dropping frame without message id")
		return nil
	}

	r.sender.Send(messages.Ack{ID: msg.ID})

	tag := "undecodable"
	if msg.Payload != nil {
		tag = msg.Payload.Tag()
	}
	ctx, span := r.tracer.Start(ctx, "reconciler.Handle",
		trace.WithAttributes(
			attribute.String("message.tag", tag),
			attribute.String("message.id", msg.ID.String()),
		),
	)
	defer span.End()

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "undecodable payload")
		span.SetAttributes(attribute.String("outcome", "undecodable"))
		log.Warn().Err(err).Str("message_id", msg.ID.String()).Int("size", len(frame)).Msg("acknowledged undecodable message")
		return nil
	}

	err = r.dispatch(ctx, msg)

	var fatalErr *FatalHandlerError
	switch {
	case err == nil:
		span.SetAttributes(attribute.String("outcome", "applied"))
		return nil
	case errors.Is(err, ErrClosedByServer):
		span.SetAttributes(attribute.String("outcome", "closed"))
		log.Warn().Str("message_id", msg.ID.String()).Msg("server closed the subscription")
		return err
	case errors.Is(err, ErrStaleUpdate):
		span.SetAttributes(attribute.String("outcome", "stale"))
		log.Info().Err(err).Str("tag", msg.Payload.Tag()).Str("message_id", msg.ID.String()).Msg("ignoring stale update")
		return nil
	case errors.As(err, &fatalErr):
		span.RecordError(err)
		span.SetStatus(codes.Error, "fatal handler error")
		span.SetAttributes(attribute.String("outcome", "aborted"))
		log.Error().Err(err).Str("message_id", msg.ID.String()).Msg("aborted inbound message")
		return nil
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, "handler error")
		span.SetAttributes(attribute.String("outcome", "failed"))
		log.Error().Err(err).Str("tag", msg.Payload.Tag()).Str("message_id", msg.ID.String()).Msg("failed to handle inbound message")
		return nil
	}
}

func (r *Reconciler) dispatch(ctx context.Context, msg messages.InboundMessage) error {
	switch p := msg.Payload.(type) {
	case messages.LockUpdate:
		return r.handleLock(ctx, p)
	case messages.Trend:
		return r.handleTrend(ctx, p)
	case messages.Reset:
		return r.handleReset(ctx, p)
	case messages.Status:
		return r.handleStatus(ctx, p)
	case messages.Signal:
		return r.handleSignal(ctx, p)
	case messages.AlterStarter:
		return r.handleAlterStarter(ctx, p)
	case messages.Unsubscribe:
		return ErrClosedByServer
	case messages.Ack:
		return r.handleAck(ctx, p)
	case messages.ApplicationStateReport:
		log.Debug().
			Str("judge_id", p.JudgeID).
			Str("location", string(p.Location.Kind)).
			Msg("application state from server")
		return nil
	case messages.Unknown:
		log.Warn().Str("tag", p.Name).Int("size", len(p.Raw)).Msg("unknown inbound message")
		return nil
	default:
		log.Warn().Str("tag", msg.Payload.Tag()).Msg("unhandled inbound message")
		return nil
	}
}

// write runs fn against the loaded show. Lock failures and a missing show
// are fatal to the message.
func (r *Reconciler) write(ctx context.Context, tag string, fn func(*models.ApplicationState) error) error {
	err := r.state.Write(ctx, func(s *models.ApplicationState) error {
		if s.Show == nil {
			return fatal(tag, ErrStateMissing)
		}
		return fn(s)
	})
	if err == nil {
		return nil
	}
	var fatalErr *FatalHandlerError
	if errors.As(err, &fatalErr) {
		return err
	}
	if errors.Is(err, state.ErrCallbackPanicked) {
		return fatal(tag, err)
	}
	return err
}

func (r *Reconciler) handleLock(ctx context.Context, p messages.LockUpdate) error {
	var fragment string
	err := r.write(ctx, messages.TagLock, func(s *models.ApplicationState) error {
		starter := s.StarterBySheet(p.SheetID)
		if starter == nil || !starter.MatchesSheet(p.SheetID) {
			log.Debug().Str("sheet_id", p.SheetID).Msg("lock for unknown scoresheet")
			return nil
		}
		ApplyLock(starter.Scoresheet(), p)
		fragment = pages.LockFragment(starter.Scoresheet())
		return nil
	})
	if err != nil {
		return err
	}
	if fragment != "" {
		r.pages.Publish(pages.Lock, fragment)
	}
	return nil
}

// ApplyLock merges a server lock into sheet. Locked and rank are always
// overwritten; every other field only when the server sent it.
func ApplyLock(sheet *models.Scoresheet, p messages.LockUpdate) {
	sheet.Locked = p.Locked
	sheet.Rank = p.Rank
	if p.Scores != nil {
		sheet.Scores = append([]models.ScoredMark(nil), (*p.Scores)...)
	}
	if p.ErrorsOfCourse != nil {
		sheet.Errors = *p.ErrorsOfCourse
	}
	if p.TechnicalPenalties != nil {
		sheet.TechPenalties = *p.TechnicalPenalties
	}
	if p.ArtisticPenalties != nil {
		sheet.ArtPenalties = *p.ArtisticPenalties
	}
}

func (r *Reconciler) handleTrend(ctx context.Context, p messages.Trend) error {
	applied := false
	err := r.write(ctx, messages.TagTrend, func(s *models.ApplicationState) error {
		starter := s.Starter()
		if !starter.MatchesSheet(p.SheetID) {
			return nil
		}
		sheet := starter.Scoresheet()
		score, rank := p.Score, p.Rank
		sheet.Score = &score
		sheet.Rank = &rank
		applied = true
		return nil
	})
	if err != nil {
		return err
	}
	if !applied {
		log.Debug().Str("sheet_id", p.SheetID).Msg("trend for a starter not on screen")
		return nil
	}
	fragment := pages.TrendFragment(&p.Score, &p.Rank)
	r.pages.Publish(pages.HeaderTrend, fragment)
	r.pages.Publish(pages.TotalScore, fragment)
	return nil
}

func (r *Reconciler) handleReset(ctx context.Context, p messages.Reset) error {
	if !p.Timestamp.After(r.clock.Now().Add(-r.window)) {
		return ErrStaleUpdate
	}

	cleared := false
	err := r.write(ctx, messages.TagReset, func(s *models.ApplicationState) error {
		starter := s.StarterBySheet(p.SheetID)
		if starter == nil {
			return nil
		}
		sheet := starter.Scoresheet()
		sheet.ClearMarks()
		starter.Score = nil
		starter.Status = models.Upcoming()
		cleared = true
		return nil
	})
	if err != nil {
		return err
	}
	if cleared {
		r.pages.Publish(pages.ScoresheetMarks, "")
		r.pages.Publish(pages.Penalties, "")
		r.pages.Publish(pages.TotalScore, pages.TrendFragment(nil, nil))
	}
	return nil
}

func (r *Reconciler) handleStatus(ctx context.Context, p messages.Status) error {
	var fragment string
	err := r.write(ctx, messages.TagStatus, func(s *models.ApplicationState) error {
		starter := s.StarterBySheet(p.SheetID)
		if starter == nil {
			return nil
		}
		starter.Status = p.Status
		fragment = pages.StarterFragment(starter)
		return nil
	})
	if err != nil {
		return err
	}
	if fragment != "" {
		r.pages.Publish(pages.StartList, fragment)
	}
	return nil
}

func (r *Reconciler) handleSignal(ctx context.Context, p messages.Signal) error {
	if err := r.write(ctx, messages.TagSignal, func(*models.ApplicationState) error { return nil }); err != nil {
		return err
	}
	r.pages.Publish(pages.Alerts, pages.AlertFragment(p.SheetID, p.Signal.String()))
	return nil
}

func (r *Reconciler) handleAlterStarter(ctx context.Context, p messages.AlterStarter) error {
	var fragment string
	err := r.write(ctx, messages.TagAlterStarter, func(s *models.ApplicationState) error {
		starter := s.StarterByID(p.Starter.ID)
		if starter == nil {
			log.Debug().Str("starter_id", p.Starter.ID).Msg("alter for unknown starter")
			return nil
		}
		sheets := starter.Scoresheets
		*starter = p.Starter
		if len(starter.Scoresheets) == 0 {
			starter.Scoresheets = sheets
		}
		fragment = pages.StarterFragment(starter)
		return nil
	})
	if err != nil {
		return err
	}
	if fragment != "" {
		r.pages.Publish(pages.StartList, fragment)
	}
	return nil
}

func (r *Reconciler) handleAck(ctx context.Context, p messages.Ack) error {
	found, err := r.outbox.Ack(ctx, p.ID)
	if err != nil {
		return err
	}
	log.Debug().Str("message_id", p.ID.String()).Bool("found", found).Msg("ack")
	return nil
}
