package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"snore-monitor-service/internal/config"
	"snore-monitor-service/internal/events"
	"snore-monitor-service/internal/observability/logging"
	"snore-monitor-service/internal/retention"
	"snore-monitor-service/internal/service/audio"
	"snore-monitor-service/internal/service/audio/synthetic"
	"snore-monitor-service/internal/service/clip"
	"snore-monitor-service/internal/service/feedback"
	"snore-monitor-service/internal/service/monitor"
	"snore-monitor-service/internal/service/recorder"
	"snore-monitor-service/internal/store"
)

// Application holds process-wide state for the service.
type Application struct {
	StartupTime time.Time
	Logger      zerolog.Logger
	Cfg         *config.Configuration

	Settings  *config.Settings
	Store     *store.Store
	Bus       *events.Bus
	Kafka     *events.Publisher
	MQTT      *events.MQTTPublisher
	Monitor   *monitor.Monitor
	Retention *retention.Scheduler

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// SetupLogger configures the global zerolog logger from cfg.
func SetupLogger(cfg *config.Configuration) {
	logging.Init(logging.Config{
		Level:  cfg.Observability.LogLevel,
		Format: cfg.Observability.LogFormat,
	})
	log.Logger = log.Logger.With().Str("service", cfg.Service.Name).Logger()
}

// New constructs the application from the provided configuration. The store
// is opened; nothing runs until Start.
func New(cfg *config.Configuration) (*Application, error) {
	a := &Application{
		Cfg:      cfg,
		Logger:   logging.WithComponent("application"),
		Settings: config.NewSettings(cfg.Detection.Sensitivity, cfg.Detection.MinDuration),
		Bus:      events.NewBus(),
	}
	a.ctx, a.cancel = context.WithCancel(context.Background())

	st, err := store.Open(cfg.Storage.DBPath)
	if err != nil {
		return nil, err
	}
	a.Store = st

	var clips *clip.Recorder
	if cfg.Recording.Enabled {
		if err := os.MkdirAll(cfg.Recording.Dir, 0o755); err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("create recordings dir: %w", err)
		}
		clips = clip.New(cfg.Recording.Dir, cfg.Recording.ClipDuration, cfg.Audio.SampleRateHz)
	}

	a.Monitor = monitor.New(monitor.Deps{
		NewSource:  SourceFactory(cfg.Audio),
		Store:      st,
		Thresholds: a.Settings,
		Actuator:   feedback.New(Vibrator(cfg.Feedback), feedback.DefaultPattern, cfg.Feedback.Buffer),
		Clips:      clips,
		Events:     a.Bus,
		Options: monitor.Options{
			ZCRThreshold: cfg.Detection.ZCRThreshold,
			WarmUp:       cfg.Detection.WarmUp,
			Recorder: recorder.Options{
				SampleInterval: cfg.Detection.SampleInterval,
				BatchSize:      cfg.Detection.BatchSize,
			},
		},
	})

	a.Retention = retention.New(st, retention.Config{
		Days:     cfg.Retention.Days,
		Schedule: cfg.Retention.Schedule,
		ClipDir:  cfg.Recording.Dir,
	})

	a.Logger.Info().
		Str("audioSource", cfg.Audio.Source).
		Str("db", cfg.Storage.DBPath).
		Bool("recording", cfg.Recording.Enabled).
		Msg("Snore monitor application created")
	return a, nil
}

// SourceFactory builds the configured audio source for each session.
func SourceFactory(cfg config.AudioConfig) monitor.SourceFactory {
	return func(start time.Time) (audio.Source, error) {
		switch cfg.Source {
		case "mic", "":
			return audio.NewMicSource(cfg.SampleRateHz, cfg.FrameSamples), nil
		case "wav":
			if cfg.WavPath == "" {
				return nil, errors.New("audio source wav needs a file path")
			}
			return audio.NewWavSource(cfg.WavPath, audio.WavOptions{
				FrameSamples: cfg.FrameSamples,
				Realtime:     cfg.Realtime,
				Base:         start,
			}), nil
		case "synthetic":
			return synthetic.New(synthetic.Options{
				SampleRate:   cfg.SampleRateHz,
				FrameSamples: cfg.FrameSamples,
				Realtime:     cfg.Realtime,
				Base:         start,
			}), nil
		default:
			return nil, fmt.Errorf("unknown audio source %q", cfg.Source)
		}
	}
}

// Vibrator picks the feedback back-end.
func Vibrator(cfg config.FeedbackConfig) feedback.Vibrator {
	switch cfg.Vibrator {
	case "log":
		return feedback.LogVibrator{}
	case "exec":
		if cfg.Command == "" {
			log.Warn().Msg("Exec vibrator has no command, feedback disabled")
			return feedback.Noop{}
		}
		return feedback.ExecVibrator{Command: cfg.Command}
	default:
		return feedback.Noop{}
	}
}

// Start connects the event sinks and the retention scheduler.
func (a *Application) Start() error {
	a.StartupTime = time.Now().UTC()

	a.Kafka = events.New(&events.Config{
		Enabled:        a.Cfg.Kafka.Enabled,
		Brokers:        a.Cfg.Kafka.Brokers,
		TopicAmplitude: a.Cfg.Kafka.TopicAmplitude,
		TopicSnore:     a.Cfg.Kafka.TopicSnore,
		Principal:      a.Cfg.Kafka.Principal,
	})
	a.forward("kafka", a.Kafka)

	if a.Cfg.MQTT.Enabled {
		mq, err := events.NewMQTTPublisher(events.MQTTConfig{
			Broker:      a.Cfg.MQTT.Broker,
			ClientID:    a.Cfg.MQTT.ClientID,
			Username:    a.Cfg.MQTT.Username,
			Password:    a.Cfg.MQTT.Password,
			TopicPrefix: a.Cfg.MQTT.TopicPrefix,
		})
		if err != nil {
			a.Logger.Warn().Err(err).Msg("MQTT unavailable, continuing without it")
		} else {
			a.MQTT = mq
			a.forward("mqtt", mq)
		}
	}

	if err := a.Retention.Start(); err != nil {
		return err
	}

	a.Logger.Info().Time("startupTime", a.StartupTime).Msg("Snore monitor starting")
	return nil
}

// Go runs fn until Shutdown. Shutdown waits for it to return.
func (a *Application) Go(fn func(ctx context.Context)) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		fn(a.ctx)
	}()
}

func (a *Application) forward(name string, sink events.Sink) {
	ch, unsubscribe := a.Bus.Subscribe(name, 1024)
	a.Go(func(ctx context.Context) {
		defer unsubscribe()
		events.Forward(ctx, ch, sink)
	})
}

// Shutdown finalizes a running session and releases everything.
func (a *Application) Shutdown(ctx context.Context) {
	a.Logger.Info().Msg("Snore monitor shutting down")

	if _, err := a.Monitor.Stop(ctx); err != nil {
		a.Logger.Error().Err(err).Msg("Failed to finalize session on shutdown")
	}
	a.Retention.Stop(ctx)

	// Closing the bus lets subscribers drain, then end.
	a.Bus.Close()
	drained := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-ctx.Done():
		a.Logger.Warn().Msg("Event sinks did not drain in time")
	}
	a.cancel()
	<-drained

	if a.Kafka != nil {
		if err := a.Kafka.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Error closing Kafka publisher")
		}
	}
	if a.MQTT != nil {
		a.MQTT.Close()
	}
	if err := a.Store.Close(); err != nil {
		a.Logger.Warn().Err(err).Msg("Error closing store")
	}
}
