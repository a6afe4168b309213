package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/verte-zerg/pitchcoach/internal/config"
	"github.com/verte-zerg/pitchcoach/internal/model"
)

var recoverDiscard bool

func newRecoverCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recover",
		Short: "Inspect or discard an interrupted session",
		Args:  cobra.NoArgs,
		RunE:  runRecoverCmd,
	}
	cmd.Flags().BoolVar(&recoverDiscard, "discard", false, "delete the interrupted session")
	cmd.Flags().IntVar(&recoveryMaxAge, "recovery-max-age", config.DefaultRecoveryMaxAge, "hours a recovery snapshot stays valid")
	return cmd
}

func runRecoverCmd(cmd *cobra.Command, _ []string) error {
	fileCfg, err := loadFileConfig()
	if err != nil {
		return err
	}
	applyTrainingConfig(cmd, fileCfg)
	logger, closeLog, err := newLogger(false)
	if err != nil {
		return err
	}
	defer closeLog()

	rec := newRecoveryManager(logger)
	snap, ok := rec.Detect(time.Now())
	if !ok {
		return printf(os.Stdout, "No interrupted session.\n")
	}
	if err := describeSnapshot(os.Stdout, *snap); err != nil {
		return err
	}
	if !recoverDiscard {
		return printf(os.Stdout, "Run `pitchcoach --resume` to continue it.\n")
	}
	if err := rec.Discard(); err != nil {
		return fmt.Errorf("failed to discard recovery snapshot: %w", err)
	}
	return printf(os.Stdout, "Discarded.\n")
}

func describeSnapshot(w io.Writer, snap model.RecoverySnapshot) error {
	stats := snap.Stats
	if err := printf(w, "Interrupted session %s\n", shortID(snap.SessionID)); err != nil {
		return err
	}
	if err := printf(w, "Started: %s\nSaved:   %s\nActive:  %s\nGoal:    %.0f Hz\n",
		snap.StartedAt.Local().Format("2006-01-02 15:04:05"),
		snap.WrittenAt.Local().Format("2006-01-02 15:04:05"),
		formatClock(snap.ActiveDuration),
		snap.Config.GoalHz,
	); err != nil {
		return err
	}
	if stats.TotalVoicedFrames == 0 {
		return nil
	}
	return printf(w, "Avg pitch: %.1f Hz  In range: %.0f%%  Dips: %d\n",
		stats.AvgPitch, stats.TimeInRangePercent(), stats.DipCount)
}
