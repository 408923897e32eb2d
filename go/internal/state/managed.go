// Package state owns the judge's application state and keeps the persisted
// copy in step with memory.
package state

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/scoresync/go/internal/models"
	"github.com/mcdev12/scoresync/go/internal/store"
)

const (
	// StateKey holds the serialized ApplicationState.
	StateKey = "STATE"
	// ApplicationIDKey holds the device's permanent id.
	ApplicationIDKey = "APPLICATION_ID"
)

// ErrCallbackPanicked is returned when a read or write callback panicked.
var ErrCallbackPanicked = errors.New("application state callback panicked")

// Managed guards the application state with a single RW lock. A writer that
// panics poisons the lock; the next acquisition clears the poison and tries
// once more instead of propagating the failure.
type Managed struct {
	store store.Store

	mu       sync.RWMutex
	poisoned atomic.Bool
	state    models.ApplicationState
}

// Open restores the application id and state from s, creating and
// persisting fresh ones when nothing usable is stored.
func Open(ctx context.Context, s store.Store) (*Managed, error) {
	appID, err := loadApplicationID(ctx, s)
	if err != nil {
		return nil, err
	}

	m := &Managed{store: s}

	stored, err := store.GetJSON[models.ApplicationState](ctx, s, StateKey)
	switch {
	case err == nil:
		stored.PermanentID = appID
		stored.Battery = models.DeviceBattery{Kind: models.BatteryError}
		m.state = stored
		judgeID := ""
		if stored.Judge != nil {
			judgeID = stored.Judge.ID
		}
		log.Info().
			Str("application_id", appID.String()).
			Str("judge_id", judgeID).
			Str("page", string(stored.Page.Kind)).
			Msg("restored application state")
	case errors.Is(err, store.ErrNotFound), errors.Is(err, store.ErrCorrupt):
		if errors.Is(err, store.ErrCorrupt) {
			log.Warn().Err(err).Msg("discarding corrupt application state")
		}
		m.state = models.NewApplicationState(appID)
		if err := store.SetJSON(ctx, s, StateKey, m.state); err != nil {
			return nil, fmt.Errorf("failed to persist initial state: %w", err)
		}
	default:
		return nil, fmt.Errorf("failed to load application state: %w", err)
	}

	return m, nil
}

func loadApplicationID(ctx context.Context, s store.Store) (uuid.UUID, error) {
	id, err := store.GetJSON[uuid.UUID](ctx, s, ApplicationIDKey)
	if err == nil && id != uuid.Nil {
		return id, nil
	}
	if err != nil && !errors.Is(err, store.ErrNotFound) && !errors.Is(err, store.ErrCorrupt) {
		return uuid.Nil, fmt.Errorf("failed to load application id: %w", err)
	}

	id = uuid.Must(uuid.NewV7())
	if err := store.SetJSON(ctx, s, ApplicationIDKey, id); err != nil {
		return uuid.Nil, fmt.Errorf("failed to persist application id: %w", err)
	}
	log.Info().Str("application_id", id.String()).Msg("created application id")
	return id, nil
}

// ApplicationID returns the device's permanent id.
func (m *Managed) ApplicationID() uuid.UUID {
	id, _ := ReadValue(m, func(s *models.ApplicationState) uuid.UUID { return s.PermanentID })
	return id
}

// Read runs fn with shared access. fn must not retain the pointer.
func (m *Managed) Read(fn func(*models.ApplicationState)) (err error) {
	m.rlock()
	defer m.mu.RUnlock()
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("application state read panicked")
			err = fmt.Errorf("%w: %v", ErrCallbackPanicked, r)
		}
	}()

	fn(&m.state)
	return nil
}

// Write runs fn with exclusive access and then persists the state before
// releasing the lock, whatever fn returned. fn's error is returned first.
func (m *Managed) Write(ctx context.Context, fn func(*models.ApplicationState) error) (err error) {
	m.lock()
	defer m.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			m.poisoned.Store(true)
			log.Error().Interface("panic", r).Msg("application state write panicked, lock poisoned")
			err = fmt.Errorf("%w: %v", ErrCallbackPanicked, r)
		}
	}()

	fnErr := fn(&m.state)
	if perr := store.SetJSON(ctx, m.store, StateKey, m.state); perr != nil {
		log.Error().Err(perr).Msg("failed to persist application state")
		if fnErr == nil {
			return fmt.Errorf("failed to persist application state: %w", perr)
		}
	}
	return fnErr
}

// ReadValue is Read for callbacks that produce a value.
func ReadValue[R any](m *Managed, fn func(*models.ApplicationState) R) (R, error) {
	var out R
	err := m.Read(func(s *models.ApplicationState) { out = fn(s) })
	return out, err
}

// WriteValue is Write for callbacks that produce a value.
func WriteValue[R any](ctx context.Context, m *Managed, fn func(*models.ApplicationState) (R, error)) (R, error) {
	var out R
	err := m.Write(ctx, func(s *models.ApplicationState) error {
		var err error
		out, err = fn(s)
		return err
	})
	return out, err
}

// lock takes the write lock, clearing poison left by a panicked writer. The
// flag is cleared while the lock is held, so recovery never hands the lock to
// another goroutine.
func (m *Managed) lock() {
	m.mu.Lock()
	if m.poisoned.CompareAndSwap(true, false) {
		log.Warn().Msg("cleared poisoned application state lock")
	}
}

func (m *Managed) rlock() {
	m.mu.RLock()
	if m.poisoned.CompareAndSwap(true, false) {
		log.Warn().Msg("cleared poisoned application state lock")
	}
}
