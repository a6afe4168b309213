package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/verte-zerg/pitchcoach/internal/capture"
	"github.com/verte-zerg/pitchcoach/internal/config"
	"github.com/verte-zerg/pitchcoach/internal/dsp"
	"github.com/verte-zerg/pitchcoach/internal/engine"
	"github.com/verte-zerg/pitchcoach/internal/events"
	"github.com/verte-zerg/pitchcoach/internal/session"
)

var (
	demoDuration time.Duration
	demoBaseHz   float64
	demoSeed     int64
)

func newDemoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run a session on a synthetic voice without saving it",
		Args:  cobra.NoArgs,
		RunE:  runDemoCmd,
	}
	addSessionFlags(cmd.Flags())
	cmd.Flags().DurationVar(&demoDuration, "duration", 2*time.Minute, "length of the synthetic session")
	cmd.Flags().Float64Var(&demoBaseHz, "base", 0, "synthetic voice pitch in Hz (default: goal + 10)")
	cmd.Flags().Int64Var(&demoSeed, "seed", 0, "random seed for the synthetic voice")
	return cmd
}

func runDemoCmd(cmd *cobra.Command, _ []string) error {
	if demoDuration <= 0 {
		return fmt.Errorf("--duration must be > 0")
	}
	fileCfg, err := loadFileConfig()
	if err != nil {
		return err
	}
	applyTrainingConfig(cmd, fileCfg)
	cfg := sessionConfig()
	if err := config.Validate(cfg); err != nil {
		return err
	}
	if err := validateAudio(); err != nil {
		return err
	}
	base := demoBaseHz
	if base <= 0 {
		base = cfg.GoalHz + 10
	}

	useTUI := !noTUI && term.IsTerminal(int(os.Stdout.Fd()))
	logger, closeLog, err := newLogger(useTUI)
	if err != nil {
		return err
	}
	defer closeLog()

	hub := events.NewHub(events.DefaultBuffer, logger)
	pipeline, err := engine.New(engine.Deps{
		Analyzer: dsp.New(dsp.Options{SampleRate: audioSampleRate, NoiseFrames: trainNoiseFrames}),
		Sink:     hub,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("failed to build pipeline: %w", err)
	}
	ctrl, err := session.NewController(session.Deps{
		Pipeline: pipeline,
		Source: &capture.SynthSource{
			BaseHz:     base,
			Duration:   demoDuration,
			SampleRate: audioSampleRate,
			FrameSize:  audioFrameSize,
			Gap:        time.Second,
			DipChance:  0.25,
			Seed:       demoSeed,
			Realtime:   true,
		},
		Sink:   hub,
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("failed to build session: %w", err)
	}

	var workers []func(context.Context) error
	if serveListen != "" {
		serve, cleanup, err := statusWorkers(hub, ctrl, serveListen, logger)
		if err != nil {
			return err
		}
		defer cleanup()
		workers = append(workers, serve...)
	}

	outcome, err := runSession(cmd.Context(), sessionRun{
		ctrl:    ctrl,
		hub:     hub,
		cfg:     cfg,
		workers: workers,
		useTUI:  useTUI,
		out:     os.Stdout,
		logger:  logger,
	})
	if err != nil {
		return err
	}
	return printOutcome(os.Stdout, outcome)
}
