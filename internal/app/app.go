package app

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"voice-session-client/internal/config"
	"voice-session-client/internal/events"
	"voice-session-client/internal/observability"
	"voice-session-client/internal/observability/logging"
	"voice-session-client/internal/observability/metrics"
	"voice-session-client/internal/render"
	"voice-session-client/internal/service/conversation"
	"voice-session-client/internal/service/media"
	"voice-session-client/internal/service/rtvi"
	"voice-session-client/internal/service/rtvi/mock"
	"voice-session-client/internal/service/rtvi/webrtc"
	"voice-session-client/internal/service/rtvi/websocket"
	"voice-session-client/internal/service/session"
)

// Application holds process-wide state for the client.
type Application struct {
	StartupTime time.Time
	Logger      zerolog.Logger
	Cfg         *config.Configuration
	Metrics     *metrics.Metrics
	Document    *render.Document

	mu      sync.RWMutex
	session *session.Session
}

// New constructs an Application. Logs go to logOutput; a nil logOutput
// uses the configured log file or stdout.
func New(cfg *config.Configuration, logOutput io.Writer) (*Application, error) {
	a := &Application{
		Cfg:      cfg,
		Metrics:  metrics.DefaultMetrics,
		Document: render.NewDocument(),
	}
	if err := a.setupLogger(logOutput); err != nil {
		return nil, err
	}

	a.Logger.Info().Str("transport", cfg.Client.Transport).Msg("voice session client created")
	return a, nil
}

func (a *Application) setupLogger(output io.Writer) error {
	obs := a.Cfg.Observability
	if output == nil && obs.LogFile != "" {
		f, err := os.OpenFile(obs.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return errors.Wrapf(err, "opening log file %s", obs.LogFile)
		}
		output = f
	}

	logging.Init(logging.Config{
		Level:  obs.LogLevel,
		Format: obs.LogFormat,
		Output: output,
	})
	a.Logger = log.With().
		Str("service", a.Cfg.Service.Name).
		Str("component", "application").
		Logger()

	a.Logger.Info().
		Str("logLevel", zerolog.GlobalLevel().String()).
		Str("logFormat", obs.LogFormat).
		Msg("logger setup completed")
	return nil
}

// Start records the startup time.
func (a *Application) Start() error {
	a.StartupTime = time.Now().UTC()
	a.Logger.Info().
		Time("startupTime", a.StartupTime).
		Msg("voice session client starting")
	return nil
}

// Shutdown performs a best-effort cleanup before process exit.
func (a *Application) Shutdown() {
	if s := a.Session(); s != nil {
		if err := s.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("closing session")
		}
	}
	a.Logger.Info().Msg("voice session client shutting down")
}

// Session returns the current session, nil before NewSession.
func (a *Application) Session() *session.Session {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.session
}

// Ready reports whether a session is connected right now.
func (a *Application) Ready() bool {
	s := a.Session()
	return s != nil && s.Ready()
}

// NewSession builds a session on transport that renders into sink as well
// as the application's document.
func (a *Application) NewSession(transport rtvi.Transport, sink conversation.Sink) (*session.Session, error) {
	pub, err := NewPublisher(a.Cfg.Export, a.Metrics)
	if err != nil {
		return nil, err
	}

	var out conversation.Sink = a.Document
	if sink != nil {
		out = render.Multi{a.Document, sink}
	}

	opts := rtvi.DefaultOptions(a.Cfg.Client.BaseURL)
	opts.EnableMic = a.Cfg.Client.EnableMic
	opts.EnableCam = a.Cfg.Client.EnableCam
	opts.Timeout = a.Cfg.Client.Timeout
	opts.HTTPClient = observability.NewHTTPClient(a.Cfg.Client.Timeout, a.Metrics)

	s := session.New(session.Config{
		Options:       opts,
		Transport:     transport,
		TransportName: a.Cfg.Client.Transport,
		Sink:          out,
		Attacher:      media.NewAttacher(a.Cfg.Media.OutputDir, a.Metrics),
		Publisher:     pub,
		Metrics:       a.Metrics,
	})

	a.mu.Lock()
	a.session = s
	a.mu.Unlock()
	return s, nil
}

// NewTransport returns the transport named in cfg. The mock transport
// replays the built-in conversation.
func NewTransport(cfg config.ClientConfig) (rtvi.Transport, error) {
	switch cfg.Transport {
	case "websocket":
		return websocket.New(), nil
	case "webrtc":
		return webrtc.New(cfg.ICEServers), nil
	case "mock":
		t := mock.NewDefault(400 * time.Millisecond)
		t.DisconnectWhenDone = true
		return t, nil
	default:
		return nil, errors.Errorf("unknown transport %q", cfg.Transport)
	}
}

// NewPublisher returns the transcript publisher for cfg, or nil when export
// is disabled.
func NewPublisher(cfg config.ExportConfig, m *metrics.Metrics) (events.Publisher, error) {
	switch cfg.Backend {
	case "", "none":
		return nil, nil
	case "kafka":
		return events.NewKafka(&events.KafkaConfig{
			Enabled:      true,
			Brokers:      cfg.Kafka.Brokers,
			TopicPartial: cfg.Kafka.TopicPartial,
			TopicFinal:   cfg.Kafka.TopicFinal,
			Principal:    cfg.Kafka.Principal,
		}, m), nil
	case "nats":
		natsCfg := events.DefaultNATSConfig()
		natsCfg.URL = cfg.NATS.URL
		natsCfg.SubjectPrefix = cfg.NATS.SubjectPrefix
		pub, err := events.NewNATS(natsCfg, m)
		if err != nil {
			return nil, err
		}
		return pub, nil
	case "redis":
		pub, err := events.NewRedis(events.RedisConfig{
			Addr:         cfg.Redis.Addr,
			StreamPrefix: cfg.Redis.StreamPrefix,
			MaxLen:       cfg.Redis.MaxLen,
		}, m)
		if err != nil {
			return nil, err
		}
		return pub, nil
	default:
		return nil, errors.Errorf("unknown export backend %q", cfg.Backend)
	}
}

// NewSubscriber returns a reader for the records exported to the backend in
// cfg. lookback only applies to Kafka.
func NewSubscriber(cfg config.ExportConfig, lookback time.Duration) (events.Subscriber, error) {
	switch cfg.Backend {
	case "kafka":
		return events.NewKafkaSubscriber(&events.KafkaConfig{
			Brokers:      cfg.Kafka.Brokers,
			TopicPartial: cfg.Kafka.TopicPartial,
			TopicFinal:   cfg.Kafka.TopicFinal,
		}, lookback)
	case "nats":
		natsCfg := events.DefaultNATSConfig()
		natsCfg.URL = cfg.NATS.URL
		natsCfg.SubjectPrefix = cfg.NATS.SubjectPrefix
		return events.NewNATSSubscriber(natsCfg)
	case "redis":
		return events.NewRedisSubscriber(events.RedisConfig{
			Addr:         cfg.Redis.Addr,
			StreamPrefix: cfg.Redis.StreamPrefix,
		})
	default:
		return nil, errors.Errorf("export backend %q cannot be tailed", cfg.Backend)
	}
}
