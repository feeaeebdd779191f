package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// FileConfig represents the TOML configuration file. Every field is optional.
type FileConfig struct {
	Audio     AudioFile     `toml:"audio"`
	Detection DetectionFile `toml:"detection"`
	Feedback  FeedbackFile  `toml:"feedback"`
	Recording RecordingFile `toml:"recording"`
	Storage   StorageFile   `toml:"storage"`
	Retention RetentionFile `toml:"retention"`
}

type AudioFile struct {
	Source   *string `toml:"source"`
	WavPath  *string `toml:"wav-path"`
	Realtime *bool   `toml:"realtime"`
}

type DetectionFile struct {
	Sensitivity   *int     `toml:"sensitivity"`
	MinDurationMs *int64   `toml:"min-duration-ms"`
	ZCRThreshold  *float64 `toml:"zcr-threshold"`
	WarmUpMs      *int64   `toml:"warm-up-ms"`
}

type FeedbackFile struct {
	Vibrator *string `toml:"vibrator"`
	Command  *string `toml:"command"`
}

type RecordingFile struct {
	Enabled       *bool   `toml:"enabled"`
	Dir           *string `toml:"dir"`
	ClipDurationS *int    `toml:"clip-duration-s"`
}

type StorageFile struct {
	DBPath *string `toml:"db-path"`
}

type RetentionFile struct {
	Days     *int    `toml:"days"`
	Schedule *string `toml:"schedule"`
}

// LoadFile reads a TOML config from the given path. Missing file is not an error.
func LoadFile(path string) (FileConfig, error) {
	if path == "" {
		return FileConfig{}, fmt.Errorf("config path is empty")
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, nil
		}
		return FileConfig{}, fmt.Errorf("failed to stat config: %w", err)
	}
	var fc FileConfig
	if _, err := toml.DecodeFile(path, &fc); err != nil {
		return FileConfig{}, fmt.Errorf("failed to decode config: %w", err)
	}
	return fc, nil
}

func (fc FileConfig) apply(cfg *Configuration) {
	setString(&cfg.Audio.Source, fc.Audio.Source)
	setString(&cfg.Audio.WavPath, fc.Audio.WavPath)
	setBool(&cfg.Audio.Realtime, fc.Audio.Realtime)

	setInt(&cfg.Detection.Sensitivity, fc.Detection.Sensitivity)
	setMillis(&cfg.Detection.MinDuration, fc.Detection.MinDurationMs)
	if fc.Detection.ZCRThreshold != nil {
		cfg.Detection.ZCRThreshold = *fc.Detection.ZCRThreshold
	}
	setMillis(&cfg.Detection.WarmUp, fc.Detection.WarmUpMs)

	setString(&cfg.Feedback.Vibrator, fc.Feedback.Vibrator)
	setString(&cfg.Feedback.Command, fc.Feedback.Command)

	setBool(&cfg.Recording.Enabled, fc.Recording.Enabled)
	setString(&cfg.Recording.Dir, fc.Recording.Dir)
	if fc.Recording.ClipDurationS != nil {
		cfg.Recording.ClipDuration = time.Duration(*fc.Recording.ClipDurationS) * time.Second
	}

	setString(&cfg.Storage.DBPath, fc.Storage.DBPath)

	setInt(&cfg.Retention.Days, fc.Retention.Days)
	setString(&cfg.Retention.Schedule, fc.Retention.Schedule)
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

func setMillis(dst *time.Duration, v *int64) {
	if v != nil {
		*dst = time.Duration(*v) * time.Millisecond
	}
}

// XDGConfigHome returns the XDG config home or a default fallback.
func XDGConfigHome() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "."
	}
	return filepath.Join(home, ".config")
}

// XDGDataHome returns the XDG data home or a default fallback.
func XDGDataHome() string {
	if v := os.Getenv("XDG_DATA_HOME"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "."
	}
	return filepath.Join(home, ".local", "share")
}

// DefaultConfigPath returns the default TOML config path.
func DefaultConfigPath() string {
	return filepath.Join(XDGConfigHome(), "snore-monitor", "config.toml")
}

// DefaultDataDir holds the database and recordings.
func DefaultDataDir() string {
	return filepath.Join(XDGDataHome(), "snore-monitor")
}
