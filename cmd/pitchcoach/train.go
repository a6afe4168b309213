package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/verte-zerg/pitchcoach/internal/capture"
	"github.com/verte-zerg/pitchcoach/internal/config"
	"github.com/verte-zerg/pitchcoach/internal/dsp"
	"github.com/verte-zerg/pitchcoach/internal/engine"
	"github.com/verte-zerg/pitchcoach/internal/events"
	"github.com/verte-zerg/pitchcoach/internal/metrics"
	"github.com/verte-zerg/pitchcoach/internal/model"
	"github.com/verte-zerg/pitchcoach/internal/progress"
	"github.com/verte-zerg/pitchcoach/internal/recovery"
	"github.com/verte-zerg/pitchcoach/internal/session"
	"github.com/verte-zerg/pitchcoach/internal/store"
	"github.com/verte-zerg/pitchcoach/internal/tui"
)

// synthTrainDuration bounds a synth-input session when no target is set.
const synthTrainDuration = 10 * time.Minute

func runTrainCmd(cmd *cobra.Command, _ []string) error {
	if resumeFlag && discardFlag {
		return fmt.Errorf("--resume and --discard cannot be used together")
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

	useTUI := !noTUI && term.IsTerminal(int(os.Stdout.Fd()))
	logger, closeLog, err := newLogger(useTUI)
	if err != nil {
		return err
	}
	defer closeLog()

	st, err := store.Open(config.DefaultDBPath())
	if err != nil {
		return fmt.Errorf("failed to open db: %w", err)
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			logErrf("failed to close db: %v\n", cerr)
		}
	}()

	rec := newRecoveryManager(logger)
	resume, err := chooseRecovery(rec, os.Stdin, os.Stdout)
	if err != nil {
		return err
	}
	if resume != nil {
		cfg = resume.Config
	}

	source, err := newSource(audioInput, cfg)
	if err != nil {
		return err
	}
	hub := events.NewHub(events.DefaultBuffer, logger)
	pipeline, err := engine.New(engine.Deps{
		Analyzer:    dsp.New(dsp.Options{SampleRate: audioSampleRate, NoiseFrames: trainNoiseFrames}),
		Sink:        hub,
		Snapshotter: rec,
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("failed to build pipeline: %w", err)
	}
	ctrl, err := session.NewController(session.Deps{
		Pipeline: pipeline,
		Source:   source,
		Sink:     hub,
		History:  st,
		Progress: progress.NewTracker(st, logger),
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("failed to build session: %w", err)
	}

	workers := []func(context.Context) error{rec.Run}
	if serveListen != "" {
		serve, cleanup, err := statusWorkers(hub, ctrl, serveListen, logger)
		if err != nil {
			return err
		}
		defer cleanup()
		workers = append(workers, serve...)
	}

	outcome, err := runSession(cmd.Context(), sessionRun{
		ctrl:     ctrl,
		hub:      hub,
		cfg:      cfg,
		resume:   resume,
		workers:  workers,
		useTUI:   useTUI,
		inputTTY: audioInput == "-",
		out:      os.Stdout,
		logger:   logger,
	})
	if err != nil {
		return err
	}
	return printOutcome(os.Stdout, outcome)
}

// statusWorkers serves live status on addr together with Prometheus metrics
// fed from the event stream. It subscribes immediately so the first session
// state is counted.
func statusWorkers(hub *events.Hub, stats events.StatsSource, addr string, logger *slog.Logger) ([]func(context.Context) error, func(), error) {
	mp, handler, err := metrics.NewPrometheus(version)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to init metrics: %w", err)
	}
	met, err := metrics.New(mp)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to init metrics: %w", err)
	}
	ch, unsub := hub.Subscribe()
	srv := events.NewServer(hub, stats, logger).WithMetrics(handler, met.Middleware)
	workers := []func(context.Context) error{
		func(ctx context.Context) error {
			return srv.ListenAndServe(ctx, addr)
		},
		func(ctx context.Context) error {
			return met.Run(ctx, ch)
		},
	}
	cleanup := func() {
		unsub()
		if err := mp.Shutdown(context.Background()); err != nil {
			logger.Warn("failed to shut down metrics", "err", err)
		}
	}
	return workers, cleanup, nil
}

func newRecoveryManager(logger *slog.Logger) *recovery.Manager {
	return recovery.NewManager(
		filepath.Join(config.DefaultRecoveryDir(), recovery.FileName),
		logger,
		recovery.WithInterval(time.Duration(recoveryInterval)*time.Second),
		recovery.WithMaxAge(time.Duration(recoveryMaxAge)*time.Hour),
	)
}

// chooseRecovery resolves a leftover snapshot from flags or, on a terminal,
// by asking. Without either it refuses to start so the snapshot is not
// overwritten.
func chooseRecovery(rec *recovery.Manager, in *os.File, out io.Writer) (*model.RecoverySnapshot, error) {
	snap, ok := rec.Detect(time.Now())
	if !ok {
		if resumeFlag {
			return nil, fmt.Errorf("no interrupted session to resume")
		}
		return nil, nil
	}
	switch {
	case discardFlag:
		if err := rec.Discard(); err != nil {
			return nil, fmt.Errorf("failed to discard recovery snapshot: %w", err)
		}
		return nil, nil
	case resumeFlag:
		return snap, nil
	}
	if !term.IsTerminal(int(in.Fd())) {
		return nil, fmt.Errorf("an interrupted session from %s is waiting; rerun with --resume or --discard",
			snap.StartedAt.Local().Format("2006-01-02 15:04"))
	}

	if err := printf(out, "Interrupted session from %s (%s active, goal %.0f Hz).\nResume it? [Y/n] ",
		snap.StartedAt.Local().Format("2006-01-02 15:04"),
		formatClock(snap.ActiveDuration),
		snap.Config.GoalHz,
	); err != nil {
		return nil, err
	}
	answer, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to read answer: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "", "y", "yes":
		return snap, nil
	}
	if err := rec.Discard(); err != nil {
		return nil, fmt.Errorf("failed to discard recovery snapshot: %w", err)
	}
	return nil, nil
}

func newSource(input string, cfg model.SessionConfig) (capture.Source, error) {
	switch input {
	case "":
		return nil, fmt.Errorf("--input is empty")
	case inputMic:
		return &capture.FFMPEGSource{
			Command:     audioFFMPEG,
			InputFormat: audioFormat,
			InputDevice: audioDevice,
			SampleRate:  audioSampleRate,
			FrameSize:   audioFrameSize,
		}, nil
	case inputSynth:
		duration := cfg.TargetDuration
		if duration <= 0 {
			duration = synthTrainDuration
		}
		return &capture.SynthSource{
			BaseHz:     cfg.GoalHz + 10,
			Duration:   duration,
			SampleRate: audioSampleRate,
			FrameSize:  audioFrameSize,
			Gap:        time.Second,
			DipChance:  0.2,
			Realtime:   true,
		}, nil
	default:
		return &capture.FileSource{
			Path:       input,
			SampleRate: audioSampleRate,
			FrameSize:  audioFrameSize,
		}, nil
	}
}

type sessionRun struct {
	ctrl    *session.Controller
	hub     *events.Hub
	cfg     model.SessionConfig
	resume  *model.RecoverySnapshot
	workers []func(context.Context) error
	useTUI  bool
	// inputTTY makes the TUI read keys from the terminal when stdin
	// carries audio.
	inputTTY bool
	out      io.Writer
	logger   *slog.Logger
}

// runSession starts a session and blocks until the user finishes it, the
// input ends, a signal arrives or a background worker fails.
func runSession(parent context.Context, run sessionRun) (session.Outcome, error) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()
	g, gctx := errgroup.WithContext(workerCtx)
	for _, worker := range run.workers {
		g.Go(func() error {
			return worker(gctx)
		})
	}
	shutdown := func() error {
		cancelWorkers()
		run.hub.Close()
		return g.Wait()
	}

	ch, unsub := run.hub.Subscribe()
	defer unsub()

	if _, err := run.ctrl.Start(ctx, run.cfg, run.resume); err != nil {
		if werr := shutdown(); werr != nil {
			run.logger.Warn("background worker failed", "err", werr)
		}
		return session.Outcome{}, err
	}

	uiDone := make(chan error, 1)
	var program *tea.Program
	if run.useTUI {
		opts := []tea.ProgramOption{tea.WithAltScreen(), tea.WithContext(ctx)}
		if run.inputTTY {
			opts = append(opts, tea.WithInputTTY())
		}
		program = tea.NewProgram(tui.NewModel(run.ctrl, ch, run.cfg.GoalHz), opts...)
		go func() {
			_, err := program.Run()
			if errors.Is(err, tea.ErrProgramKilled) {
				err = nil
			}
			uiDone <- err
		}()
	} else {
		go func() {
			uiDone <- printEvents(run.out, ch)
		}()
	}

	var uiErr error
	uiFinished := false
	select {
	case <-ctx.Done():
	case <-run.ctrl.Done():
	case <-gctx.Done():
	case uiErr = <-uiDone:
		uiFinished = true
	}

	outcome, stopErr := run.ctrl.Stop(context.Background())
	unsub()
	if !uiFinished {
		if program != nil {
			program.Quit()
		}
		uiErr = <-uiDone
	}
	werr := shutdown()

	if stopErr != nil {
		return session.Outcome{}, fmt.Errorf("failed to stop session: %w", stopErr)
	}
	if uiErr != nil {
		return outcome, fmt.Errorf("failed to run training TUI: %w", uiErr)
	}
	if werr != nil {
		return outcome, fmt.Errorf("background worker failed: %w", werr)
	}
	return outcome, nil
}

// printEvents writes one JSON object per status event until ch closes.
func printEvents(w io.Writer, ch <-chan model.StatusEvent) error {
	enc := json.NewEncoder(w)
	var failed error
	for ev := range ch {
		if failed != nil {
			continue
		}
		if err := enc.Encode(ev); err != nil {
			failed = fmt.Errorf("failed to write event: %w", err)
		}
	}
	return failed
}

func printOutcome(w io.Writer, out session.Outcome) error {
	summary := out.Summary
	stats := summary.Stats
	lines := []string{
		"",
		fmt.Sprintf("Session %s finished", shortID(summary.SessionID)),
		fmt.Sprintf("Active time: %s (paused %s)", formatClock(summary.Active), formatClock(summary.NoisePaused+summary.UserPaused)),
	}
	if stats.TotalVoicedFrames > 0 {
		lines = append(lines,
			fmt.Sprintf("Avg pitch: %.1f Hz (range %.0f-%.0f Hz, goal %.0f Hz)", stats.AvgPitch, stats.MinPitch, stats.MaxPitch, out.Config.GoalHz),
			fmt.Sprintf("In range: %.0f%%  At goal: %.0f%%  Dips: %d", stats.TimeInRangePercent(), stats.GoalAchievementPercent(), stats.DipCount),
		)
	}
	if n := stats.TotalSafetyWarnings(); n > 0 {
		lines = append(lines, fmt.Sprintf("Safety warnings: %d", n))
	}
	if out.CaptureErr != nil {
		lines = append(lines, fmt.Sprintf("Capture stopped early: %v", out.CaptureErr))
	}
	switch {
	case out.Entry == nil:
		lines = append(lines, "Not saved: less than a minute of voiced practice.")
	case out.Saved:
		lines = append(lines, "Saved to history.")
	default:
		lines = append(lines, "Not saved.")
	}
	if out.Fatigue != nil {
		lines = append(lines, fmt.Sprintf("Today's fatigue score: %.0f over %d session(s)", out.Fatigue.Score, out.Fatigue.Sessions))
	}
	if out.Streak != nil {
		lines = append(lines, fmt.Sprintf("Streak: %d day(s)", out.Streak.Count))
	}
	return printf(w, "%s\n", strings.Join(lines, "\n"))
}

func formatClock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d.Round(time.Second).Seconds())
	if total >= 3600 {
		return fmt.Sprintf("%d:%02d:%02d", total/3600, total/60%60, total%60)
	}
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
