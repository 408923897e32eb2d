package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/scoresync/go/internal/models"
	"github.com/mcdev12/scoresync/go/internal/state"
)

// RefreshWindow is how long before expiry a token gets refreshed.
const RefreshWindow = 10 * time.Minute

// Tokens is a bearer token and the refresh token that renews it.
type Tokens struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refresh_token"`
}

// Refresher exchanges a refresh token for new tokens.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (Tokens, error)
}

// Source hands out the current bearer token. Tokens live in the managed
// application state so they survive restarts.
type Source struct {
	state     *state.Managed
	refresher Refresher
	secret    []byte
	clock     clockwork.Clock

	refreshMu sync.Mutex

	mu      sync.Mutex
	changed chan struct{}
}

func NewSource(st *state.Managed, refresher Refresher, secret []byte, clock clockwork.Clock) *Source {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Source{
		state:     st,
		refresher: refresher,
		secret:    secret,
		clock:     clock,
		changed:   make(chan struct{}),
	}
}

type tokenView struct {
	token   string
	refresh string
	expires int64
}

func (s *Source) view() (tokenView, error) {
	return state.ReadValue(s.state, func(a *models.ApplicationState) tokenView {
		return tokenView{token: a.Token, refresh: a.RefreshToken, expires: a.TokenExpires}
	})
}

// Token returns the stored token if it has not expired.
func (s *Source) Token() (string, bool) {
	v, err := s.view()
	if err != nil || v.token == "" {
		return "", false
	}
	if s.clock.Now().Unix() >= v.expires {
		return "", false
	}
	return v.token, true
}

// Changed returns a channel closed the next time the tokens change.
func (s *Source) Changed() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.changed
}

func (s *Source) broadcast() {
	s.mu.Lock()
	defer s.mu.Unlock()
	close(s.changed)
	s.changed = make(chan struct{})
}

// SetTokens stores new tokens, taking the expiry from the token's claims.
func (s *Source) SetTokens(ctx context.Context, tokens Tokens) error {
	claims, err := ParseClaims(tokens.Token, s.secret)
	if err != nil {
		return err
	}
	err = s.state.Write(ctx, func(a *models.ApplicationState) error {
		a.Token = tokens.Token
		if tokens.RefreshToken != "" {
			a.RefreshToken = tokens.RefreshToken
		}
		a.TokenExpires = claims.ExpiresAt.Unix()
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store tokens: %w", err)
	}
	s.broadcast()
	log.Debug().Time("expires", claims.ExpiresAt.Time).Msg("stored new token")
	return nil
}

// Clear forgets both tokens.
func (s *Source) Clear(ctx context.Context) error {
	err := s.state.Write(ctx, func(a *models.ApplicationState) error {
		a.Token = ""
		a.RefreshToken = ""
		a.TokenExpires = 0
		return nil
	})
	s.broadcast()
	return err
}

// RefreshIfRequired renews the token when it expires within RefreshWindow.
func (s *Source) RefreshIfRequired(ctx context.Context) error {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	v, err := s.view()
	if err != nil {
		return err
	}
	if v.token == "" && v.refresh == "" {
		return ErrNoCredentials
	}
	if v.expires >= s.clock.Now().Add(RefreshWindow).Unix() {
		return nil
	}
	if v.refresh == "" || s.refresher == nil {
		return fmt.Errorf("%w: token expiring and no refresh token", ErrNoCredentials)
	}

	log.Debug().Int64("token_expires", v.expires).Msg("refreshing token")
	tokens, err := s.refresher.Refresh(ctx, v.refresh)
	if err != nil {
		return fmt.Errorf("failed to refresh token: %w", err)
	}
	return s.SetTokens(ctx, tokens)
}

// WaitForToken blocks until a valid token is available, refreshing when it
// can and otherwise waiting for someone to store new tokens.
func (s *Source) WaitForToken(ctx context.Context, retry time.Duration) (string, error) {
	for {
		changed := s.Changed()
		if err := s.RefreshIfRequired(ctx); err != nil {
			log.Debug().Err(err).Msg("token not refreshed")
		}
		if token, ok := s.Token(); ok {
			return token, nil
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-changed:
		case <-s.clock.After(retry):
		}
	}
}
