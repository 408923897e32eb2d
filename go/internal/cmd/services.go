package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/scoresync/go/clients"
	"github.com/mcdev12/scoresync/go/internal/auth"
	"github.com/mcdev12/scoresync/go/internal/config"
	"github.com/mcdev12/scoresync/go/internal/judgeapi"
	"github.com/mcdev12/scoresync/go/internal/judging"
	"github.com/mcdev12/scoresync/go/internal/models"
	"github.com/mcdev12/scoresync/go/internal/outbox"
	"github.com/mcdev12/scoresync/go/internal/pages"
	"github.com/mcdev12/scoresync/go/internal/reconciler"
	"github.com/mcdev12/scoresync/go/internal/socket"
	"github.com/mcdev12/scoresync/go/internal/state"
	"github.com/mcdev12/scoresync/go/internal/store"
)

const (
	tokenRefreshInterval = time.Minute
	statusPollInterval   = time.Second
)

type Services struct {
	State      *state.Managed
	Outbox     *outbox.Outbox
	Tokens     *auth.Source
	API        *clients.ScoringAPIClient
	Socket     *socket.Manager
	Reconciler *reconciler.Reconciler
	KeepAlive  *outbox.KeepAlive
	Pages      *pages.Hub
	Judging    *judging.Service
	JudgeAPI   *judgeapi.Service

	clock  clockwork.Clock
	mirror *pages.NATSMirror
}

func setupServices(ctx context.Context, cfg config.Config, kv store.Store) (*Services, error) {
	return newServices(ctx, cfg, kv, clockwork.NewRealClock())
}

func newServices(ctx context.Context, cfg config.Config, kv store.Store, clock clockwork.Clock) (*Services, error) {
	// Wire up dependency injection chain
	// Store → Managed state / Outbox → Socket → Reconciler / Judging

	st, err := state.Open(ctx, kv)
	if err != nil {
		return nil, fmt.Errorf("failed to open state: %w", err)
	}

	box, err := outbox.Load(ctx, kv,
		outbox.WithMetrics(outbox.LogMetricsCollector{}),
		outbox.WithClock(clock),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load outbox: %w", err)
	}

	api := clients.NewScoringAPIClient(cfg.APIURL)
	tokens := auth.NewSource(st, api, []byte(cfg.JWTSecret), clock)

	var mirrors []pages.Mirror
	var mirror *pages.NATSMirror
	if cfg.Pages.NATS {
		mirror, err = pages.NewNATSMirror(ctx, cfg.Pages.JetStream)
		if err != nil {
			log.Warn().Err(err).Str("url", cfg.Pages.JetStream.URL).Msg("page mirror unavailable, serving pages locally only")
		} else {
			mirrors = append(mirrors, mirror)
		}
	}
	hub := pages.NewHub(cfg.PageConnection(), mirrors...)

	s := &Services{
		State:  st,
		Outbox: box,
		Tokens: tokens,
		API:    api,
		Pages:  hub,
		clock:  clock,
		mirror: mirror,
	}

	// The socket and reconciler refer to each other: inbound frames go to the
	// reconciler, which sends acks back through the socket.
	s.Socket = socket.NewManager(cfg.Socket, tokens, s.resolveURL(cfg.ServerURL), s.receive,
		socket.WithTransform(box.Transform),
		socket.WithOnConnect(s.onConnect),
		socket.WithClock(clock),
	)
	s.Reconciler = reconciler.New(st, s.Socket, box,
		reconciler.WithClock(clock),
		reconciler.WithResetWindow(cfg.ResetWindow),
		reconciler.WithPages(hub),
	)
	s.Judging = judging.NewService(st, s.Socket, hub, clock, cfg.Judging)
	s.KeepAlive = outbox.NewKeepAlive(box, s.Socket, s.Judging.Snapshot, clock, cfg.KeepAlive)
	s.JudgeAPI = judgeapi.NewService(judgeapi.Dependencies{
		Judging:    s.Judging,
		State:      st,
		Tokens:     tokens,
		Shows:      api,
		Connection: s.Socket,
		Outbox:     box,
	})

	return s, nil
}

func (s *Services) Start(ctx context.Context) error {
	go s.Pages.Start(ctx)

	if err := s.KeepAlive.Start(ctx); err != nil {
		return fmt.Errorf("failed to start keep-alive: %w", err)
	}

	go func() {
		if err := s.Socket.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("socket manager stopped")
		}
	}()
	go s.refreshTokens(ctx)
	go s.watchConnection(ctx)

	return nil
}

func (s *Services) Stop() {
	s.Judging.Flush()
	if err := s.KeepAlive.Stop(); err != nil {
		log.Error().Err(err).Msg("failed to stop keep-alive")
	}
	if s.mirror != nil {
		if err := s.mirror.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close page mirror")
		}
	}
}

func (s *Services) receive(ctx context.Context, frame []byte) error {
	return s.Reconciler.Handle(ctx, frame)
}

func (s *Services) onConnect() {
	s.KeepAlive.Tick()
	s.Pages.Publish(pages.ConnectionStatus, socket.Connected.String())
}

func (s *Services) resolveURL(base string) socket.URLResolver {
	return func(token string) (string, error) {
		judgeID, err := state.ReadValue(s.State, func(a *models.ApplicationState) string {
			if a.Judge == nil {
				return ""
			}
			return a.Judge.ID
		})
		if err != nil {
			return "", err
		}
		if judgeID == "" {
			return "", errors.New("no judge signed in")
		}
		return socket.ConnectionURL(base, judgeID, s.State.ApplicationID(), token)
	}
}

func (s *Services) refreshTokens(ctx context.Context) {
	ticker := s.clock.NewTicker(tokenRefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if err := s.Tokens.RefreshIfRequired(ctx); err != nil {
				log.Warn().Err(err).Msg("token refresh failed")
			}
		}
	}
}

func (s *Services) watchConnection(ctx context.Context) {
	ticker := s.clock.NewTicker(statusPollInterval)
	defer ticker.Stop()

	last := s.Socket.State()
	s.Pages.Publish(pages.ConnectionStatus, last.String())
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			current := s.Socket.State()
			if current != last {
				last = current
				s.Pages.Publish(pages.ConnectionStatus, current.String())
			}
		}
	}
}
