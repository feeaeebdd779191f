package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"snore-monitor-service/internal/app"
	"snore-monitor-service/internal/config"
	"snore-monitor-service/internal/models"
)

var (
	analyzeWav      string
	analyzeRealtime bool
)

func newMonitorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "monitor",
		Short: "Monitor in the foreground until interrupted",
		Args:  cobra.NoArgs,
		RunE:  runMonitorCmd,
	}
}

func newAnalyzeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Run detection over a recorded WAV file",
		Args:  cobra.NoArgs,
		RunE:  runAnalyzeCmd,
	}
	cmd.Flags().StringVar(&analyzeWav, "wav", "", "16-bit mono PCM WAV file")
	cmd.Flags().BoolVar(&analyzeRealtime, "realtime", false, "pace frames at capture speed")
	_ = cmd.MarkFlagRequired("wav")
	return cmd
}

func runMonitorCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	return runForegroundSession(cmd.OutOrStdout(), cfg)
}

func runAnalyzeCmd(cmd *cobra.Command, _ []string) error {
	if _, err := os.Stat(analyzeWav); err != nil {
		return fmt.Errorf("failed to open wav file: %w", err)
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.Audio.Source = "wav"
	cfg.Audio.WavPath = analyzeWav
	cfg.Audio.Realtime = analyzeRealtime
	cfg.Kafka.Enabled = false
	cfg.MQTT.Enabled = false
	return runForegroundSession(cmd.OutOrStdout(), cfg)
}

// runForegroundSession runs one session and prints snores as they happen.
// It returns once the session is finalized, either at end of stream or
// after SIGINT/SIGTERM.
func runForegroundSession(out io.Writer, cfg *config.Configuration) error {
	a, err := app.New(cfg)
	if err != nil {
		return err
	}
	if err := a.Start(); err != nil {
		a.Shutdown(context.Background())
		return err
	}
	defer func() {
		ctx, cancel := shutdownContext()
		defer cancel()
		a.Shutdown(ctx)
	}()

	feed, unsubscribe := a.Bus.Subscribe("cli", 4096)
	defer unsubscribe()

	sess, err := a.Monitor.Start(context.Background())
	if err != nil {
		return fmt.Errorf("failed to start monitoring: %w", err)
	}
	fmt.Fprintf(out, "Session %d started at %s (sensitivity %d, min duration %s)\n",
		sess.ID, sess.StartTime.Format(time.TimeOnly), a.Settings.Sensitivity(), a.Settings.MinDuration())

	sig, stopSignals := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stopSignals()

	for {
		select {
		case e, ok := <-feed:
			if !ok {
				return errors.New("event feed closed before the session ended")
			}
			switch ev := e.(type) {
			case models.SnoreDetected:
				fmt.Fprintf(out, "  snore #%d at %s (amplitude %.0f)\n",
					ev.Count, formatOffset(ev.RelativeMs), ev.Amplitude)
			case models.SessionStatus:
				if ev.Status == models.StatusStopped && ev.SessionID == sess.ID {
					return printSummary(out, a, sess.ID, ev.Reason)
				}
			}
		case <-sig.Done():
			ctx, cancel := shutdownContext()
			done, err := a.Monitor.Stop(ctx)
			cancel()
			if err != nil {
				return fmt.Errorf("failed to stop monitoring: %w", err)
			}
			if done == nil {
				return nil
			}
			return printSummary(out, a, done.ID, "requested")
		}
	}
}

func printSummary(out io.Writer, a *app.Application, id int64, reason string) error {
	sess, err := a.Store.GetSession(context.Background(), id)
	if err != nil {
		return fmt.Errorf("failed to load session: %w", err)
	}
	fmt.Fprintf(out, "Session %d stopped (%s)\n", sess.ID, reason)
	fmt.Fprintf(out, "  duration:      %d min\n", sess.DurationMinutes)
	fmt.Fprintf(out, "  snores:        %d\n", sess.SnoreCount)
	fmt.Fprintf(out, "  max amplitude: %.0f\n", sess.MaxAmplitude)

	recs, err := a.Store.RecordingsForSession(context.Background(), id)
	if err == nil && len(recs) > 0 {
		fmt.Fprintf(out, "  clips:         %d in %s\n", len(recs), a.Cfg.Recording.Dir)
	}
	return nil
}

func formatOffset(ms int64) string {
	d := time.Duration(ms) * time.Millisecond
	return fmt.Sprintf("%02d:%02d:%02d.%03d",
		int(d.Hours()), int(d.Minutes())%60, int(d.Seconds())%60, ms%1000)
}
