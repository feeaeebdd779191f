package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/spf13/cobra"

	"snore-monitor-service/internal/config"
	"snore-monitor-service/internal/schema"
	"snore-monitor-service/internal/service/audio"
)

var (
	settingsSensitivity int
	settingsMinDuration time.Duration
	settingsServer      string
)

func newSettingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change detection sensitivity and minimum snore duration",
		Long: `Without --server the effective values from configuration are printed,
with any flags applied on top. With --server the change is sent to a
running service and takes effect on its next captured frame.`,
		Args: cobra.NoArgs,
		RunE: runSettingsCmd,
	}
	cmd.Flags().IntVar(&settingsSensitivity, "sensitivity", 0, "sensitivity level 1 (most sensitive) to 5")
	cmd.Flags().DurationVar(&settingsMinDuration, "min-duration", 0, "minimum sustained loudness, e.g. 500ms")
	cmd.Flags().StringVar(&settingsServer, "server", "", "base URL of a running service, e.g. http://localhost:8080")
	return cmd
}

func runSettingsCmd(cmd *cobra.Command, _ []string) error {
	var upd schema.SettingsUpdate
	if cmd.Flags().Changed("sensitivity") {
		upd.Sensitivity = &settingsSensitivity
	}
	if cmd.Flags().Changed("min-duration") {
		ms := settingsMinDuration.Milliseconds()
		upd.MinDurationMs = &ms
	}
	changed := upd.Sensitivity != nil || upd.MinDurationMs != nil
	if changed {
		if err := schema.New().Validate(upd); err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	if settingsServer != "" {
		snap, err := remoteSettings(cmd.Context(), settingsServer, upd, changed)
		if err != nil {
			return err
		}
		return writeJSON(out, snap)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	settings := config.NewSettings(cfg.Detection.Sensitivity, cfg.Detection.MinDuration)
	if upd.Sensitivity != nil {
		settings.SetSensitivity(*upd.Sensitivity)
	}
	if upd.MinDurationMs != nil {
		settings.SetMinDuration(time.Duration(*upd.MinDurationMs) * time.Millisecond)
	}
	return writeJSON(out, settings.Snapshot())
}

// remoteSettings reads, or updates when changed, the settings of a running
// service.
func remoteSettings(ctx context.Context, server string, upd schema.SettingsUpdate, changed bool) (config.SettingsSnapshot, error) {
	var snap config.SettingsSnapshot
	var apiErr struct {
		Error string `json:"error"`
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client := resty.New().SetBaseURL(strings.TrimRight(server, "/"))
	req := client.R().
		SetContext(ctx).
		SetResult(&snap).
		SetError(&apiErr)

	var resp *resty.Response
	var err error
	if changed {
		resp, err = req.SetBody(upd).Put("/v1/settings")
	} else {
		resp, err = req.Get("/v1/settings")
	}
	if err != nil {
		return snap, fmt.Errorf("failed to reach %s: %w", server, err)
	}
	if resp.IsError() {
		msg := apiErr.Error
		if msg == "" {
			msg = strings.TrimSpace(resp.String())
		}
		return snap, fmt.Errorf("server returned %s: %s", resp.Status(), msg)
	}
	return snap, nil
}

func newDevicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List audio capture devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			names, err := audio.CaptureDevices()
			if err != nil {
				return fmt.Errorf("failed to list capture devices: %w", err)
			}
			out := cmd.OutOrStdout()
			if len(names) == 0 {
				fmt.Fprintln(out, "No capture devices found.")
				return nil
			}
			for i, name := range names {
				fmt.Fprintf(out, "%d: %s\n", i, name)
			}
			return nil
		},
	}
}
