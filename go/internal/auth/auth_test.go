package auth

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/scoresync/go/internal/state"
	"github.com/mcdev12/scoresync/go/internal/store"
)

var secret = []byte("test-secret")

func signToken(t *testing.T, key []byte, expires time.Time) string {
	t.Helper()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(expires)},
		UserID:           "user-1",
		Role:             "Official",
		Username:         "judge",
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString(key)
	require.NoError(t, err)
	return token
}

type stubRefresher struct {
	calls  atomic.Int32
	tokens Tokens
	err    error
}

func (s *stubRefresher) Refresh(ctx context.Context, refreshToken string) (Tokens, error) {
	s.calls.Add(1)
	return s.tokens, s.err
}

func newSource(t *testing.T, refresher Refresher, clock clockwork.Clock) *Source {
	t.Helper()
	st, err := state.Open(context.Background(), store.NewMemory())
	require.NoError(t, err)
	return NewSource(st, refresher, secret, clock)
}

func TestParseClaims(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)

	claims, err := ParseClaims(signToken(t, secret, exp), secret)
	require.NoError(t, err)
	assert.Equal(t, "judge", claims.Username)
	assert.Equal(t, exp.Unix(), claims.ExpiresAt.Unix())

	_, err = ParseClaims(signToken(t, []byte("other"), exp), secret)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = ParseClaims(signToken(t, []byte("other"), exp), nil)
	assert.NoError(t, err, "unverified parse only reads claims")

	expired, err := ParseClaims(signToken(t, secret, time.Now().Add(-time.Hour)), secret)
	require.NoError(t, err)
	assert.True(t, expired.ExpiresAt.Before(time.Now()))

	_, err = ParseClaims("", secret)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRefreshIfRequired(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()

	t.Run("fresh token is kept", func(t *testing.T) {
		refresher := &stubRefresher{}
		src := newSource(t, refresher, clock)
		require.NoError(t, src.SetTokens(ctx, Tokens{Token: signToken(t, secret, clock.Now().Add(time.Hour)), RefreshToken: "r"}))

		require.NoError(t, src.RefreshIfRequired(ctx))
		assert.Zero(t, refresher.calls.Load())
	})

	t.Run("token inside the window is refreshed", func(t *testing.T) {
		renewed := signToken(t, secret, clock.Now().Add(2*time.Hour))
		refresher := &stubRefresher{tokens: Tokens{Token: renewed}}
		src := newSource(t, refresher, clock)
		require.NoError(t, src.SetTokens(ctx, Tokens{Token: signToken(t, secret, clock.Now().Add(5*time.Minute)), RefreshToken: "r"}))

		require.NoError(t, src.RefreshIfRequired(ctx))
		assert.Equal(t, int32(1), refresher.calls.Load())

		token, ok := src.Token()
		require.True(t, ok)
		assert.Equal(t, renewed, token)
	})

	t.Run("refresh failure is reported", func(t *testing.T) {
		refresher := &stubRefresher{err: errors.New("offline")}
		src := newSource(t, refresher, clock)
		require.NoError(t, src.SetTokens(ctx, Tokens{Token: signToken(t, secret, clock.Now().Add(time.Minute)), RefreshToken: "r"}))

		assert.Error(t, src.RefreshIfRequired(ctx))
		_, ok := src.Token()
		assert.True(t, ok, "token is still valid for another minute")
	})

	t.Run("nothing stored", func(t *testing.T) {
		src := newSource(t, &stubRefresher{}, clock)
		assert.ErrorIs(t, src.RefreshIfRequired(ctx), ErrNoCredentials)
	})
}

func TestToken_Expired(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	src := newSource(t, nil, clock)
	require.NoError(t, src.SetTokens(ctx, Tokens{Token: signToken(t, secret, clock.Now().Add(time.Minute))}))

	_, ok := src.Token()
	assert.True(t, ok)

	clock.Advance(2 * time.Minute)
	_, ok = src.Token()
	assert.False(t, ok)
}

func TestWaitForToken_WakesOnNewTokens(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	clock := clockwork.NewFakeClock()
	src := newSource(t, nil, clock)
	token := signToken(t, secret, clock.Now().Add(time.Hour))

	done := make(chan string, 1)
	go func() {
		got, err := src.WaitForToken(ctx, 10*time.Second)
		if err == nil {
			done <- got
		}
	}()

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	require.NoError(t, src.SetTokens(ctx, Tokens{Token: token}))

	select {
	case got := <-done:
		assert.Equal(t, token, got)
	case <-ctx.Done():
		t.Fatal("WaitForToken did not return")
	}
}

func TestWaitForToken_HonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	src := newSource(t, nil, clockwork.NewFakeClock())
	_, err := src.WaitForToken(ctx, time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}
