package pages

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// JetStreamConfig configures the page mirror stream.
type JetStreamConfig struct {
	URL           string        `env:"URL" yaml:"url"`
	StreamName    string        `env:"STREAM" yaml:"stream"`
	SubjectPrefix string        `env:"SUBJECT_PREFIX" yaml:"subject_prefix"`
	MaxReconnects int           `env:"MAX_RECONNECTS" yaml:"max_reconnects"`
	ReconnectWait time.Duration `env:"RECONNECT_WAIT" yaml:"reconnect_wait"`
	MaxAge        time.Duration `env:"MAX_AGE" yaml:"max_age"`
	Replicas      int           `env:"REPLICAS" yaml:"replicas"`
}

func DefaultJetStreamConfig() JetStreamConfig {
	return JetStreamConfig{
		URL:           nats.DefaultURL,
		StreamName:    "JUDGE_PAGES",
		SubjectPrefix: "pages",
		MaxReconnects: -1, // Infinite
		ReconnectWait: 2 * time.Second,
		MaxAge:        24 * time.Hour,
		Replicas:      1,
	}
}

// NATSMirror republishes page updates on JetStream, one subject per
// location, keeping only the latest message for each.
type NATSMirror struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	config JetStreamConfig
}

func NewNATSMirror(ctx context.Context, cfg JetStreamConfig) (*NATSMirror, error) {
	opts := []nats.Option{
		nats.Name("scoresync-pages"),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	m := &NATSMirror{nc: nc, js: js, config: cfg}
	if err := m.ensureStream(ctx); err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure stream: %w", err)
	}
	return m, nil
}

func (m *NATSMirror) streamConfig() jetstream.StreamConfig {
	return jetstream.StreamConfig{
		Name:              m.config.StreamName,
		Description:       "Latest judge page fragments per location",
		Subjects:          []string{m.config.SubjectPrefix + ".>"},
		Retention:         jetstream.LimitsPolicy,
		MaxMsgsPerSubject: 1,
		MaxAge:            m.config.MaxAge,
		Storage:           jetstream.MemoryStorage,
		Replicas:          m.config.Replicas,
	}
}

func (m *NATSMirror) ensureStream(ctx context.Context) error {
	sc := m.streamConfig()

	stream, err := m.js.Stream(ctx, sc.Name)
	if err != nil {
		if _, err = m.js.CreateStream(ctx, sc); err != nil {
			return fmt.Errorf("create stream: %w", err)
		}
		log.Info().Str("stream", sc.Name).Msg("created JetStream stream")
		return nil
	}

	info, err := stream.Info(ctx)
	if err != nil {
		return fmt.Errorf("get stream info: %w", err)
	}
	if !isStreamConfigEqual(info.Config, sc) {
		if _, err = m.js.UpdateStream(ctx, sc); err != nil {
			return fmt.Errorf("update stream: %w", err)
		}
		log.Info().Str("stream", sc.Name).Msg("updated JetStream stream")
	}
	return nil
}

// Subject returns the subject updates for location are published on.
func (m *NATSMirror) Subject(location Location) string {
	return fmt.Sprintf("%s.%s", m.config.SubjectPrefix, location)
}

func (m *NATSMirror) Mirror(ctx context.Context, update Update) error {
	data, err := json.Marshal(update)
	if err != nil {
		return fmt.Errorf("marshal page update: %w", err)
	}

	subject := m.Subject(update.Location)
	ack, err := m.js.PublishMsg(ctx, &nats.Msg{
		Subject: subject,
		Data:    data,
		Header: nats.Header{
			"Page-Location": []string{string(update.Location)},
		},
	},
		jetstream.WithMsgID(update.ID.String()),
		jetstream.WithExpectStream(m.config.StreamName),
	)
	if err != nil {
		return fmt.Errorf("publish to JetStream: %w", err)
	}

	log.Debug().
		Str("subject", subject).
		Uint64("sequence", ack.Sequence).
		Msg("mirrored page update")
	return nil
}

func (m *NATSMirror) Close() error {
	if m.nc != nil {
		m.nc.Close()
	}
	return nil
}

func isStreamConfigEqual(a, b jetstream.StreamConfig) bool {
	return a.Name == b.Name &&
		a.MaxAge == b.MaxAge &&
		a.MaxMsgsPerSubject == b.MaxMsgsPerSubject &&
		a.Replicas == b.Replicas
}
