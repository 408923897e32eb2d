// Package socket keeps one reconnecting websocket to the scoring server and
// runs its sender and receiver loops.
package socket

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/scoresync/go/internal/messages"
)

var (
	// ErrTransport is the root of every connection failure. All of them are
	// recovered by reconnecting.
	ErrTransport = errors.New("transport failure")
	// ErrReadTimeout is returned when nothing arrives within ReadTimeout.
	ErrReadTimeout = fmt.Errorf("%w: read timed out", ErrTransport)
	// ErrClosed is returned when the server closes the connection.
	ErrClosed = fmt.Errorf("%w: closed by server", ErrTransport)
)

// State is the connection lifecycle state.
type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

// TokenSource supplies the bearer token used in the connection URL.
type TokenSource interface {
	Token() (string, bool)
	WaitForToken(ctx context.Context, retry time.Duration) (string, error)
}

// URLResolver builds the connection URL for a token.
type URLResolver func(token string) (string, error)

// Transform turns an outbound message into a wire frame. It runs before the
// message is queued, which is where it gets recorded durably.
type Transform func(msg messages.OutboundMessage) ([]byte, error)

// ReceiveHandler handles one inbound frame. An error ends the session.
type ReceiveHandler func(ctx context.Context, frame []byte) error

// Config holds connection timings.
type Config struct {
	ReadTimeout      time.Duration `env:"READ_TIMEOUT" yaml:"read_timeout"`
	WriteTimeout     time.Duration `env:"WRITE_TIMEOUT" yaml:"write_timeout"`
	RetryInterval    time.Duration `env:"RETRY_INTERVAL" yaml:"retry_interval"`
	HandshakeTimeout time.Duration `env:"HANDSHAKE_TIMEOUT" yaml:"handshake_timeout"`
	MaxMessageSize   int64         `env:"MAX_MESSAGE_SIZE" yaml:"max_message_size"`
}

// DefaultConfig returns the production timings.
func DefaultConfig() Config {
	return Config{
		ReadTimeout:      30 * time.Second,
		WriteTimeout:     10 * time.Second,
		RetryInterval:    10 * time.Second,
		HandshakeTimeout: 15 * time.Second,
		MaxMessageSize:   4 << 20,
	}
}

// Manager owns the connection. Only Run dials; reconnection is strictly
// sequential.
type Manager struct {
	config    Config
	dialer    *websocket.Dialer
	tokens    TokenSource
	resolve   URLResolver
	transform Transform
	receive   ReceiveHandler
	onConnect func()
	clock     clockwork.Clock

	queue *queue
	state atomic.Int32
}

// Option configures a Manager.
type Option func(*Manager)

// WithTransform sets the hook every outbound message passes through.
func WithTransform(t Transform) Option {
	return func(m *Manager) { m.transform = t }
}

// WithOnConnect registers a callback run after each successful dial,
// before any queued frame is written.
func WithOnConnect(fn func()) Option {
	return func(m *Manager) { m.onConnect = fn }
}

// WithClock sets the clock used for retry waits.
func WithClock(c clockwork.Clock) Option {
	return func(m *Manager) { m.clock = c }
}

func NewManager(cfg Config, tokens TokenSource, resolve URLResolver, receive ReceiveHandler, opts ...Option) *Manager {
	m := &Manager{
		config: cfg,
		dialer: &websocket.Dialer{
			Proxy:            websocket.DefaultDialer.Proxy,
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
		tokens:    tokens,
		resolve:   resolve,
		transform: messages.Encode,
		receive:   receive,
		onConnect: func() {},
		clock:     clockwork.NewRealClock(),
		queue:     newQueue(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State returns the current connection state.
func (m *Manager) State() State {
	return State(m.state.Load())
}

func (m *Manager) setState(s State) {
	if State(m.state.Swap(int32(s))) != s {
		log.Debug().Str("state", s.String()).Msg("socket state changed")
	}
}

// Send stamps payload with a fresh id and queues it. It never blocks on the
// network; while disconnected the frame waits for the next session.
func (m *Manager) Send(payload messages.Outbound) {
	m.enqueue(messages.NewOutbound(payload), m.transform)
}

// Resend queues messages under their original ids. They were recorded when
// first sent, so they are only encoded and skip the transform hook; an id
// acknowledged in the meantime is never recorded again.
func (m *Manager) Resend(msgs []messages.OutboundMessage) {
	for _, msg := range msgs {
		m.enqueue(msg, messages.Encode)
	}
}

func (m *Manager) enqueue(msg messages.OutboundMessage, encode Transform) {
	data, err := encode(msg)
	if err != nil {
		log.Error().Err(err).
			Str("message_id", msg.ID.String()).
			Str("tag", msg.Payload.Tag()).
			Msg("failed to encode outbound message")
		return
	}
	m.queue.push(frame{id: msg.ID, data: data})
}

// Queued returns the number of frames waiting to be written.
func (m *Manager) Queued() int {
	return m.queue.len()
}

// Run connects and reconnects until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) error {
	log.Info().Msg("socket manager started")
	defer m.setState(Disconnected)

	for {
		if err := ctx.Err(); err != nil {
			log.Info().Msg("socket manager shutting down")
			return err
		}

		token, ok := m.tokens.Token()
		if !ok {
			log.Info().Msg("waiting for a valid token before connecting")
			var err error
			if token, err = m.tokens.WaitForToken(ctx, m.config.RetryInterval); err != nil {
				return err
			}
		}

		url, err := m.resolve(token)
		if err != nil {
			log.Warn().Err(err).Msg("cannot resolve socket url")
			if err := m.sleep(ctx); err != nil {
				return err
			}
			continue
		}

		err = m.connectOnce(ctx, url)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn().Err(err).Str("url", redact(url)).Msg("socket session ended")

		// Without a token the next iteration waits for a refresh instead.
		if _, ok := m.tokens.Token(); ok {
			if err := m.sleep(ctx); err != nil {
				return err
			}
		}
	}
}

func (m *Manager) connectOnce(ctx context.Context, url string) error {
	m.setState(Connecting)
	defer m.setState(Disconnected)

	conn, _, err := m.dialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("%w: dial: %v", ErrTransport, err)
	}
	if m.config.MaxMessageSize > 0 {
		conn.SetReadLimit(m.config.MaxMessageSize)
	}

	m.setState(Connected)
	log.Info().Str("url", redact(url)).Msg("socket connected")
	m.onConnect()

	return m.runSession(ctx, conn)
}

// runSession runs the sender and receiver until either exits, then tears
// both down. A half-broken socket never outlives its partner loop.
func (m *Manager) runSession(ctx context.Context, conn *websocket.Conn) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sendDone := make(chan error, 1)
	recvDone := make(chan error, 1)
	go func() { sendDone <- m.sendLoop(ctx, conn) }()
	go func() { recvDone <- m.receiveLoop(ctx, conn) }()

	var err error
	var other chan error
	select {
	case err = <-sendDone:
		other = recvDone
	case err = <-recvDone:
		other = sendDone
	}

	cancel()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	_ = conn.Close()
	<-other

	return err
}

func (m *Manager) sendLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.queue.ready:
		}

		batch := m.queue.drain()
		for i, f := range batch {
			if err := m.write(conn, f.data); err != nil {
				m.queue.requeue(batch[i:])
				return fmt.Errorf("%w: write: %v", ErrTransport, err)
			}
		}
		if len(batch) > 0 {
			log.Debug().Int("count", len(batch)).Msg("flushed outbound batch")
		}
	}
}

func (m *Manager) write(conn *websocket.Conn, data []byte) error {
	if err := conn.SetWriteDeadline(time.Now().Add(m.config.WriteTimeout)); err != nil {
		return err
	}
	w, err := conn.NextWriter(websocket.TextMessage)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

func (m *Manager) receiveLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		if err := conn.SetReadDeadline(time.Now().Add(m.config.ReadTimeout)); err != nil {
			return fmt.Errorf("%w: %v", ErrTransport, err)
		}
		kind, data, err := conn.ReadMessage()
		if err != nil {
			return classifyReadError(err)
		}
		if kind != websocket.TextMessage && kind != websocket.BinaryMessage {
			continue
		}
		if err := m.receive(ctx, data); err != nil {
			return err
		}
	}
}

func classifyReadError(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrReadTimeout
	}
	if _, ok := err.(*websocket.CloseError); ok {
		return fmt.Errorf("%w: %v", ErrClosed, err)
	}
	return fmt.Errorf("%w: read: %v", ErrTransport, err)
}

func (m *Manager) sleep(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-m.clock.After(m.config.RetryInterval):
		return nil
	}
}
