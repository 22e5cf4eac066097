package retention

import (
	"context"
	"errors"
	"fmt"

	"github.com/robfig/cron/v3"

	"github.com/angbrunosa-netizen/opero-gestionale-sub006/internal/config"
)

// SweepJob returns the timer job for the frequent trigger: object, cache and
// orphan sweeps. It is the same pass orchestration the manual trigger uses,
// so "what runs" stays separate from "when it runs".
func SweepJob(s *Scheduler) func() {
	return func() {
		_, err := s.Run(context.Background(), Options{
			Sweeps: SweepObjects | SweepCache | SweepOrphans,
		})
		if errors.Is(err, ErrCleanupRunning) {
			logEvent("scheduled_sweep_skipped", map[string]any{"reason": "already running"})
		}
	}
}

// TrackingSweepJob returns the timer job for the rare trigger: the bulk
// tracking-log sweep.
func TrackingSweepJob(s *Scheduler) func() {
	return func() {
		_, err := s.Run(context.Background(), Options{Sweeps: SweepTracking})
		if errors.Is(err, ErrCleanupRunning) {
			logEvent("scheduled_tracking_sweep_skipped", map[string]any{"reason": "already running"})
		}
	}
}

// StartCron registers both scheduled triggers and starts the timer. The
// returned cron can be stopped on shutdown.
func StartCron(s *Scheduler, cfg config.RetentionConfig) (*cron.Cron, error) {
	c := cron.New()
	if _, err := c.AddFunc(cfg.SweepCron, SweepJob(s)); err != nil {
		return nil, fmt.Errorf("register sweep trigger %q: %w", cfg.SweepCron, err)
	}
	if _, err := c.AddFunc(cfg.TrackingSweepCron, TrackingSweepJob(s)); err != nil {
		return nil, fmt.Errorf("register tracking trigger %q: %w", cfg.TrackingSweepCron, err)
	}
	c.Start()
	logEvent("cron_started", map[string]any{
		"sweep_cron":    cfg.SweepCron,
		"tracking_cron": cfg.TrackingSweepCron,
	})
	return c, nil
}
