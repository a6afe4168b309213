// Package main provides the CLI entrypoint for pitchcoach.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/verte-zerg/pitchcoach/internal/capture"
	"github.com/verte-zerg/pitchcoach/internal/config"
	"github.com/verte-zerg/pitchcoach/internal/model"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

const (
	defaultCurveWindow = 10
	defaultListen      = ""
	inputMic           = "mic"
	inputSynth         = "synth"
)

var (
	trainGoal        float64
	trainSensitivity float64
	trainVAD         float64
	trainNoise       float64
	trainDip         float64
	trainHighAlert   float64
	trainStrain      float64
	trainTarget      float64
	trainNoiseFrames int

	audioInput      string
	audioFFMPEG     string
	audioFormat     string
	audioDevice     string
	audioSampleRate int
	audioFrameSize  int

	recoveryInterval int
	recoveryMaxAge   int

	serveListen string
	noTUI       bool
	resumeFlag  bool
	discardFlag bool
	logLevel    string
)

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "pitchcoach",
		Short:         "Voice pitch trainer",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE:          runTrainCmd,
	}

	flags := rootCmd.Flags()
	addSessionFlags(flags)
	flags.BoolVar(&resumeFlag, "resume", false, "resume an interrupted session without asking")
	flags.BoolVar(&discardFlag, "discard", false, "discard an interrupted session without asking")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newStatsCmd())
	rootCmd.AddCommand(newRecoverCmd())
	rootCmd.AddCommand(newDemoCmd())

	return rootCmd
}

// addSessionFlags registers the flags shared by commands that run a session.
func addSessionFlags(flags *pflag.FlagSet) {
	flags.Float64Var(&trainGoal, "goal", config.DefaultGoalHz, "target pitch in Hz (80-350)")
	flags.Float64Var(&trainSensitivity, "sensitivity", config.DefaultSensitivity, "input gain multiplier (above 0, up to 10)")
	flags.Float64Var(&trainVAD, "vad-threshold", config.DefaultVADThreshold, "minimum RMS treated as voice (0-1)")
	flags.Float64Var(&trainNoise, "noise-threshold", config.DefaultNoiseThreshold, "minimum peak level treated as sound (0-1)")
	flags.Float64Var(&trainDip, "dip-tolerance", config.DefaultDipTolerance, "seconds below range before a dip alert")
	flags.Float64Var(&trainHighAlert, "high-pitch-alert", config.DefaultHighPitchAlertHz, "alert above this pitch in Hz (0 disables)")
	flags.Float64Var(&trainStrain, "strain-pitch", config.DefaultStrainPitchHz, "safety warning when held above this pitch in Hz")
	flags.Float64Var(&trainTarget, "target-minutes", 0, "announce completion after this much active time")
	flags.IntVar(&trainNoiseFrames, "noise-frames", config.DefaultNoiseFrames, "frames used to learn background noise")

	flags.StringVar(&audioInput, "input", inputMic, `audio input: "mic", "synth", a raw s16le PCM file, or "-" for stdin`)
	flags.StringVar(&audioFFMPEG, "ffmpeg", "ffmpeg", "ffmpeg command used for microphone capture")
	flags.StringVar(&audioFormat, "format", "pulse", "ffmpeg input format")
	flags.StringVar(&audioDevice, "device", "default", "ffmpeg input device")
	flags.IntVar(&audioSampleRate, "sample-rate", capture.DefaultSampleRate, "capture sample rate")
	flags.IntVar(&audioFrameSize, "frame-size", capture.DefaultFrameSize, "samples per analysis frame")

	flags.IntVar(&recoveryInterval, "recovery-interval", config.DefaultRecoveryInterval, "seconds between recovery snapshots")
	flags.IntVar(&recoveryMaxAge, "recovery-max-age", config.DefaultRecoveryMaxAge, "hours a recovery snapshot stays valid")

	flags.StringVar(&serveListen, "listen", defaultListen, "serve live status over websocket on this address")
	flags.BoolVar(&noTUI, "no-tui", false, "print status events as JSON lines instead of the live view")
}

// loadFileConfig reads the optional .env overlay first so it can redirect
// the config path, then the TOML file.
func loadFileConfig() (config.FileConfig, error) {
	if err := config.LoadEnv(config.ConfigDir()); err != nil {
		return config.FileConfig{}, err
	}
	fileCfg, err := config.LoadConfig(config.DefaultConfigPath())
	if err != nil {
		return config.FileConfig{}, fmt.Errorf("failed to load config: %w", err)
	}
	return fileCfg, nil
}

func applyTrainingConfig(cmd *cobra.Command, fileCfg config.FileConfig) {
	t := fileCfg.Training
	applyFloatConfig(cmd, "goal", &trainGoal, t.GoalHz)
	applyFloatConfig(cmd, "sensitivity", &trainSensitivity, t.Sensitivity)
	applyFloatConfig(cmd, "vad-threshold", &trainVAD, t.VADThreshold)
	applyFloatConfig(cmd, "noise-threshold", &trainNoise, t.NoiseThreshold)
	applyFloatConfig(cmd, "dip-tolerance", &trainDip, t.DipTolerance)
	applyFloatConfig(cmd, "high-pitch-alert", &trainHighAlert, t.HighPitchAlertHz)
	applyFloatConfig(cmd, "strain-pitch", &trainStrain, t.StrainPitchHz)
	applyFloatConfig(cmd, "target-minutes", &trainTarget, t.TargetMinutes)
	applyIntConfig(cmd, "noise-frames", &trainNoiseFrames, t.NoiseFrames)

	a := fileCfg.Audio
	applyStringConfig(cmd, "input", &audioInput, a.Input)
	applyStringConfig(cmd, "ffmpeg", &audioFFMPEG, a.Command)
	applyStringConfig(cmd, "format", &audioFormat, a.InputFormat)
	applyStringConfig(cmd, "device", &audioDevice, a.Device)
	applyIntConfig(cmd, "sample-rate", &audioSampleRate, a.SampleRate)
	applyIntConfig(cmd, "frame-size", &audioFrameSize, a.FrameSize)

	applyIntConfig(cmd, "recovery-interval", &recoveryInterval, fileCfg.Recovery.IntervalSeconds)
	applyIntConfig(cmd, "recovery-max-age", &recoveryMaxAge, fileCfg.Recovery.MaxAgeHours)
	applyStringConfig(cmd, "listen", &serveListen, fileCfg.Serve.Listen)
}

func sessionConfig() model.SessionConfig {
	return model.SessionConfig{
		GoalHz:           trainGoal,
		Sensitivity:      trainSensitivity,
		VADThreshold:     trainVAD,
		NoiseThreshold:   trainNoise,
		DipTolerance:     config.Seconds(trainDip),
		HighPitchAlertHz: trainHighAlert,
		StrainPitchHz:    trainStrain,
		TargetDuration:   time.Duration(trainTarget * float64(time.Minute)),
	}
}

func validateAudio() error {
	if audioSampleRate < 8000 {
		return fmt.Errorf("--sample-rate must be >= 8000")
	}
	if audioFrameSize < 256 {
		return fmt.Errorf("--frame-size must be >= 256")
	}
	if trainNoiseFrames < 0 {
		return fmt.Errorf("--noise-frames must be >= 0")
	}
	if recoveryInterval <= 0 {
		return fmt.Errorf("--recovery-interval must be > 0")
	}
	if recoveryMaxAge <= 0 {
		return fmt.Errorf("--recovery-max-age must be > 0")
	}
	return nil
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Create/open config file",
		Args:  cobra.NoArgs,
		RunE:  runConfigCmd,
	}
}

func runConfigCmd(_ *cobra.Command, _ []string) error {
	if err := config.LoadEnv(config.ConfigDir()); err != nil {
		return err
	}
	path := config.DefaultConfigPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to stat config: %w", err)
		}
		if err := os.WriteFile(path, []byte(config.Template()), 0o644); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}
	}

	editor := strings.TrimSpace(os.Getenv("EDITOR"))
	if editor == "" {
		editor = "vi"
	}
	parts := strings.Fields(editor)
	if len(parts) == 0 {
		return fmt.Errorf("editor command is empty")
	}
	cmd := exec.Command(parts[0], append(parts[1:], path)...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to open editor: %w", err)
	}
	return nil
}

// newLogger logs to a file while a TUI owns the terminal, otherwise to
// stderr. The returned close func is always non-nil.
func newLogger(toFile bool) (*slog.Logger, func(), error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(logLevel)); err != nil {
		return nil, nil, fmt.Errorf("invalid --log-level: %w", err)
	}
	opts := &slog.HandlerOptions{Level: level}
	if !toFile {
		return slog.New(slog.NewTextHandler(os.Stderr, opts)), func() {}, nil
	}
	path := config.DefaultLogPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}
	closeFn := func() {
		if cerr := file.Close(); cerr != nil {
			logErrf("failed to close log file: %v\n", cerr)
		}
	}
	return slog.New(slog.NewTextHandler(file, opts)), closeFn, nil
}

func applyStringConfig(cmd *cobra.Command, name string, target, value *string) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyIntConfig(cmd *cobra.Command, name string, target, value *int) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyFloatConfig(cmd *cobra.Command, name string, target, value *float64) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func logErrf(format string, args ...any) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		// Best-effort logging to stderr.
		_ = err
	}
}

func printf(w io.Writer, format string, args ...any) error {
	if _, err := fmt.Fprintf(w, format, args...); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
