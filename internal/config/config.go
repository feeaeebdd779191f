package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Configuration is the process-wide configuration.
type Configuration struct {
	Service       ServiceConfig
	Audio         AudioConfig
	Detection     DetectionConfig
	Feedback      FeedbackConfig
	Recording     RecordingConfig
	Storage       StorageConfig
	Kafka         KafkaConfig
	MQTT          MQTTConfig
	Retention     RetentionConfig
	Observability ObservabilityConfig
}

type ServiceConfig struct {
	Name        string
	HTTPAddr    string
	GRPCPort    string
	MetricsAddr string
	DataDir     string
}

type AudioConfig struct {
	Source       string // mic, wav, synthetic
	WavPath      string
	SampleRateHz int
	FrameSamples int
	Realtime     bool
}

type DetectionConfig struct {
	Sensitivity    int
	MinDuration    time.Duration
	ZCRThreshold   float64
	WarmUp         time.Duration
	SampleInterval time.Duration
	BatchSize      int
}

type FeedbackConfig struct {
	Vibrator string // none, log, exec
	Command  string
	Buffer   time.Duration
}

type RecordingConfig struct {
	Enabled      bool
	Dir          string
	ClipDuration time.Duration
}

type StorageConfig struct {
	DBPath string
}

type KafkaConfig struct {
	Enabled        bool
	Brokers        []string
	TopicAmplitude string
	TopicSnore     string
	Principal      string
}

type MQTTConfig struct {
	Enabled     bool
	Broker      string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
}

type RetentionConfig struct {
	Days     int
	Schedule string
}

type ObservabilityConfig struct {
	LogLevel  string
	LogFormat string
}

// Default returns the configuration used when nothing is overridden.
func Default() *Configuration {
	dataDir := DefaultDataDir()
	return &Configuration{
		Service: ServiceConfig{
			Name:        "snore-monitor",
			HTTPAddr:    ":8080",
			GRPCPort:    "50051",
			MetricsAddr: ":9090",
			DataDir:     dataDir,
		},
		Audio: AudioConfig{
			Source:       "mic",
			SampleRateHz: 16000,
			FrameSamples: 1024,
			Realtime:     true,
		},
		Detection: DetectionConfig{
			Sensitivity:    DefaultSensitivity,
			MinDuration:    DefaultMinDuration,
			ZCRThreshold:   0.15,
			WarmUp:         3 * time.Second,
			SampleInterval: 100 * time.Millisecond,
			BatchSize:      50,
		},
		Feedback: FeedbackConfig{
			Vibrator: "none",
			Buffer:   time.Second,
		},
		Recording: RecordingConfig{
			Enabled:      true,
			Dir:          filepath.Join(dataDir, "recordings"),
			ClipDuration: 20 * time.Second,
		},
		Storage: StorageConfig{
			DBPath: filepath.Join(dataDir, "snore.db"),
		},
		Kafka: KafkaConfig{
			TopicAmplitude: "sleep.monitor.amplitude",
			TopicSnore:     "sleep.monitor.snore",
		},
		MQTT: MQTTConfig{
			Broker:      "tcp://localhost:1883",
			ClientID:    "snore-monitor",
			TopicPrefix: "smartsleep",
		},
		Retention: RetentionConfig{
			Days:     30,
			Schedule: "@daily",
		},
		Observability: ObservabilityConfig{
			LogLevel:  "info",
			LogFormat: "json",
		},
	}
}

// Load builds the configuration from defaults, an optional TOML file and
// the environment, in that order. A .env file in the working directory is
// loaded into the environment first.
func Load() (*Configuration, error) {
	_ = godotenv.Load()

	cfg := Default()

	path := envOrDefault("CONFIG_FILE", DefaultConfigPath())
	fileCfg, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	fileCfg.apply(cfg)

	applyEnv(cfg)
	return cfg, nil
}

func applyEnv(cfg *Configuration) {
	cfg.Service.Name = envOrDefault("SERVICE_NAME", cfg.Service.Name)
	cfg.Service.HTTPAddr = envOrDefault("HTTP_ADDR", cfg.Service.HTTPAddr)
	cfg.Service.GRPCPort = envOrDefault("GRPC_PORT", cfg.Service.GRPCPort)
	cfg.Service.MetricsAddr = envOrDefault("METRICS_ADDR", cfg.Service.MetricsAddr)

	cfg.Audio.Source = envOrDefault("AUDIO_SOURCE", cfg.Audio.Source)
	cfg.Audio.WavPath = envOrDefault("AUDIO_WAV_PATH", cfg.Audio.WavPath)
	cfg.Audio.SampleRateHz = envOrDefaultInt("AUDIO_SAMPLE_RATE_HZ", cfg.Audio.SampleRateHz)
	cfg.Audio.FrameSamples = envOrDefaultInt("AUDIO_FRAME_SAMPLES", cfg.Audio.FrameSamples)
	cfg.Audio.Realtime = envOrDefaultBool("AUDIO_REALTIME", cfg.Audio.Realtime)

	cfg.Detection.Sensitivity = envOrDefaultInt("DETECTION_SENSITIVITY", cfg.Detection.Sensitivity)
	cfg.Detection.MinDuration = envOrDefaultDuration("DETECTION_MIN_DURATION", cfg.Detection.MinDuration)
	cfg.Detection.ZCRThreshold = envOrDefaultFloat("DETECTION_ZCR_THRESHOLD", cfg.Detection.ZCRThreshold)
	cfg.Detection.WarmUp = envOrDefaultDuration("DETECTION_WARM_UP", cfg.Detection.WarmUp)
	cfg.Detection.SampleInterval = envOrDefaultDuration("DETECTION_SAMPLE_INTERVAL", cfg.Detection.SampleInterval)
	cfg.Detection.BatchSize = envOrDefaultInt("DETECTION_BATCH_SIZE", cfg.Detection.BatchSize)

	cfg.Feedback.Vibrator = envOrDefault("FEEDBACK_VIBRATOR", cfg.Feedback.Vibrator)
	cfg.Feedback.Command = envOrDefault("FEEDBACK_COMMAND", cfg.Feedback.Command)
	cfg.Feedback.Buffer = envOrDefaultDuration("FEEDBACK_BUFFER", cfg.Feedback.Buffer)

	cfg.Recording.Enabled = envOrDefaultBool("RECORDING_ENABLED", cfg.Recording.Enabled)
	cfg.Recording.Dir = envOrDefault("RECORDING_DIR", cfg.Recording.Dir)
	cfg.Recording.ClipDuration = envOrDefaultDuration("RECORDING_CLIP_DURATION", cfg.Recording.ClipDuration)

	cfg.Storage.DBPath = envOrDefault("STORAGE_DB_PATH", cfg.Storage.DBPath)

	cfg.Kafka.Enabled = envOrDefaultBool("KAFKA_ENABLED", cfg.Kafka.Enabled)
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.Kafka.Brokers = splitList(brokers)
	}
	cfg.Kafka.TopicAmplitude = envOrDefault("KAFKA_TOPIC_AMPLITUDE", cfg.Kafka.TopicAmplitude)
	cfg.Kafka.TopicSnore = envOrDefault("KAFKA_TOPIC_SNORE", cfg.Kafka.TopicSnore)
	cfg.Kafka.Principal = envOrDefault("KAFKA_PRINCIPAL", cfg.Kafka.Principal)
	if cfg.Kafka.Principal == "" {
		cfg.Kafka.Principal = cfg.Service.Name
	}

	cfg.MQTT.Enabled = envOrDefaultBool("MQTT_ENABLED", cfg.MQTT.Enabled)
	cfg.MQTT.Broker = envOrDefault("MQTT_BROKER", cfg.MQTT.Broker)
	cfg.MQTT.ClientID = envOrDefault("MQTT_CLIENT_ID", cfg.MQTT.ClientID)
	cfg.MQTT.Username = envOrDefault("MQTT_USERNAME", cfg.MQTT.Username)
	cfg.MQTT.Password = envOrDefault("MQTT_PASSWORD", cfg.MQTT.Password)
	cfg.MQTT.TopicPrefix = envOrDefault("MQTT_TOPIC_PREFIX", cfg.MQTT.TopicPrefix)

	cfg.Retention.Days = envOrDefaultInt("RETENTION_DAYS", cfg.Retention.Days)
	cfg.Retention.Schedule = envOrDefault("RETENTION_SCHEDULE", cfg.Retention.Schedule)

	cfg.Observability.LogLevel = envOrDefault("LOG_LEVEL", cfg.Observability.LogLevel)
	cfg.Observability.LogFormat = envOrDefault("LOG_FORMAT", cfg.Observability.LogFormat)
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envOrDefaultFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func envOrDefaultBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
