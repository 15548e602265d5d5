package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Configuration is the full client configuration. Values are read from an
// optional YAML file first and then overridden by environment variables.
type Configuration struct {
	Service       ServiceConfig       `yaml:"service"`
	Client        ClientConfig        `yaml:"client"`
	Media         MediaConfig         `yaml:"media"`
	Export        ExportConfig        `yaml:"export"`
	Observability ObservabilityConfig `yaml:"observability"`
	UI            UIConfig            `yaml:"ui"`
}

type ServiceConfig struct {
	Name string `yaml:"name"`
}

// ClientConfig holds the parameters passed through to the RTVI client.
type ClientConfig struct {
	BaseURL    string        `yaml:"baseUrl"`
	Transport  string        `yaml:"transport"` // websocket, webrtc, mock
	EnableMic  bool          `yaml:"enableMic"`
	EnableCam  bool          `yaml:"enableCam"`
	Timeout    time.Duration `yaml:"timeout"`
	ICEServers []string      `yaml:"iceServers"`
}

type MediaConfig struct {
	OutputDir string `yaml:"outputDir"`
}

// ExportConfig selects where finalized transcripts are published.
type ExportConfig struct {
	Backend string      `yaml:"backend"` // none, kafka, nats, redis
	Kafka   KafkaConfig `yaml:"kafka"`
	NATS    NATSConfig  `yaml:"nats"`
	Redis   RedisConfig `yaml:"redis"`
}

type KafkaConfig struct {
	Brokers      []string `yaml:"brokers"`
	TopicPartial string   `yaml:"topicPartial"`
	TopicFinal   string   `yaml:"topicFinal"`
	Principal    string   `yaml:"principal"`
}

type NATSConfig struct {
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subjectPrefix"`
}

type RedisConfig struct {
	Addr         string `yaml:"addr"`
	StreamPrefix string `yaml:"streamPrefix"`
	MaxLen       int64  `yaml:"maxLen"`
}

type ObservabilityConfig struct {
	LogLevel    string `yaml:"logLevel"`
	LogFormat   string `yaml:"logFormat"`
	LogFile     string `yaml:"logFile"`
	MetricsAddr string `yaml:"metricsAddr"`
}

type UIConfig struct {
	Mode string `yaml:"mode"` // auto, tui, plain
}

// Defaults returns the configuration used when nothing is set.
func Defaults() *Configuration {
	return &Configuration{
		Service: ServiceConfig{Name: "voice-session-client"},
		Client: ClientConfig{
			BaseURL:   "http://localhost:7860/",
			Transport: "websocket",
			EnableMic: true,
			EnableCam: false,
			Timeout:   30 * time.Second,
		},
		Export: ExportConfig{
			Backend: "none",
			Kafka: KafkaConfig{
				TopicPartial: "voice.transcript.partial",
				TopicFinal:   "voice.transcript.final",
				Principal:    "svc-voice-session-client",
			},
			NATS: NATSConfig{
				URL:           "nats://localhost:4222",
				SubjectPrefix: "voice.transcript",
			},
			Redis: RedisConfig{
				Addr:         "localhost:6379",
				StreamPrefix: "voice.transcript",
				MaxLen:       10000,
			},
		},
		Observability: ObservabilityConfig{
			LogLevel:    "info",
			LogFormat:   "json",
			MetricsAddr: ":9090",
		},
		UI: UIConfig{Mode: "auto"},
	}
}

// Load builds the configuration from CONFIG_FILE (if set) and the environment.
func Load() (*Configuration, error) {
	cfg := Defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Configuration) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "reading config file %s", path)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return errors.Wrapf(err, "parsing config file %s", path)
	}
	return nil
}

func (c *Configuration) applyEnv() {
	c.Service.Name = envOrDefault("SERVICE_NAME", c.Service.Name)

	c.Client.BaseURL = envOrDefault("RTVI_BASE_URL", c.Client.BaseURL)
	c.Client.Transport = envOrDefault("RTVI_TRANSPORT", c.Client.Transport)
	c.Client.EnableMic = envBoolOrDefault("RTVI_ENABLE_MIC", c.Client.EnableMic)
	c.Client.EnableCam = envBoolOrDefault("RTVI_ENABLE_CAM", c.Client.EnableCam)
	c.Client.Timeout = envDurationOrDefault("RTVI_TIMEOUT", c.Client.Timeout)
	c.Client.ICEServers = envListOrDefault("RTVI_ICE_SERVERS", c.Client.ICEServers)

	c.Media.OutputDir = envOrDefault("MEDIA_OUTPUT_DIR", c.Media.OutputDir)

	c.Export.Backend = envOrDefault("EXPORT_BACKEND", c.Export.Backend)
	c.Export.Kafka.Brokers = envListOrDefault("KAFKA_BROKERS", c.Export.Kafka.Brokers)
	c.Export.Kafka.TopicPartial = envOrDefault("KAFKA_TOPIC_PARTIAL", c.Export.Kafka.TopicPartial)
	c.Export.Kafka.TopicFinal = envOrDefault("KAFKA_TOPIC_FINAL", c.Export.Kafka.TopicFinal)
	c.Export.Kafka.Principal = envOrDefault("KAFKA_PRINCIPAL", c.Export.Kafka.Principal)
	c.Export.NATS.URL = envOrDefault("NATS_URL", c.Export.NATS.URL)
	c.Export.NATS.SubjectPrefix = envOrDefault("NATS_SUBJECT_PREFIX", c.Export.NATS.SubjectPrefix)
	c.Export.Redis.Addr = envOrDefault("REDIS_ADDR", c.Export.Redis.Addr)
	c.Export.Redis.StreamPrefix = envOrDefault("REDIS_STREAM_PREFIX", c.Export.Redis.StreamPrefix)
	c.Export.Redis.MaxLen = envInt64OrDefault("REDIS_STREAM_MAXLEN", c.Export.Redis.MaxLen)

	c.Observability.LogLevel = envOrDefault("LOG_LEVEL", c.Observability.LogLevel)
	c.Observability.LogFormat = envOrDefault("LOG_FORMAT", c.Observability.LogFormat)
	c.Observability.LogFile = envOrDefault("LOG_FILE", c.Observability.LogFile)
	c.Observability.MetricsAddr = envOrDefault("METRICS_ADDR", c.Observability.MetricsAddr)

	c.UI.Mode = envOrDefault("UI_MODE", c.UI.Mode)
}

// Validate rejects values the client cannot run with.
func (c *Configuration) Validate() error {
	switch c.Client.Transport {
	case "websocket", "webrtc", "mock":
	default:
		return errors.Errorf("unknown transport %q", c.Client.Transport)
	}
	switch c.Export.Backend {
	case "none", "kafka", "nats", "redis":
	default:
		return errors.Errorf("unknown export backend %q", c.Export.Backend)
	}
	switch c.UI.Mode {
	case "auto", "tui", "plain":
	default:
		return errors.Errorf("unknown ui mode %q", c.UI.Mode)
	}
	if c.Client.Timeout <= 0 {
		return errors.New("client timeout must be positive")
	}
	if c.Client.Transport != "mock" && c.Client.BaseURL == "" {
		return errors.New("base url is required")
	}
	return nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envBoolOrDefault(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envInt64OrDefault(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

func envDurationOrDefault(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// envListOrDefault splits a comma separated value, dropping empty entries.
func envListOrDefault(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
