// Package config provides configuration helpers and TOML parsing.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// FileConfig represents the TOML configuration file.
type FileConfig struct {
	Training TrainingConfig `toml:"training"`
	Audio    AudioConfig    `toml:"audio"`
	Recovery RecoveryConfig `toml:"recovery"`
	Serve    ServeConfig    `toml:"serve"`
}

// TrainingConfig maps session settings.
type TrainingConfig struct {
	GoalHz           *float64 `toml:"goal-hz"`
	Sensitivity      *float64 `toml:"sensitivity"`
	VADThreshold     *float64 `toml:"vad-threshold"`
	NoiseThreshold   *float64 `toml:"noise-threshold"`
	DipTolerance     *float64 `toml:"dip-tolerance"`
	HighPitchAlertHz *float64 `toml:"high-pitch-alert"`
	StrainPitchHz    *float64 `toml:"strain-pitch"`
	TargetMinutes    *float64 `toml:"target-minutes"`
	NoiseFrames      *int     `toml:"noise-frames"`
}

// AudioConfig maps capture settings.
type AudioConfig struct {
	Input       *string `toml:"input"`
	Command     *string `toml:"ffmpeg"`
	InputFormat *string `toml:"format"`
	Device      *string `toml:"device"`
	SampleRate  *int    `toml:"sample-rate"`
	FrameSize   *int    `toml:"frame-size"`
}

// RecoveryConfig maps crash-recovery settings.
type RecoveryConfig struct {
	IntervalSeconds *int `toml:"interval"`
	MaxAgeHours     *int `toml:"max-age"`
}

// ServeConfig maps the status server settings.
type ServeConfig struct {
	Listen *string `toml:"listen"`
}

// LoadConfig reads a TOML config from the given path. Missing file is not an error.
func LoadConfig(path string) (FileConfig, error) {
	if path == "" {
		return FileConfig{}, fmt.Errorf("config path is empty")
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, nil
		}
		return FileConfig{}, fmt.Errorf("failed to stat config: %w", err)
	}
	var cfg FileConfig
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return FileConfig{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return FileConfig{}, fmt.Errorf("unknown config key %q", undecoded[0].String())
	}
	return cfg, nil
}
