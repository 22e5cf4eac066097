package retention

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/angbrunosa-netizen/opero-gestionale-sub006/internal/config"
	"github.com/angbrunosa-netizen/opero-gestionale-sub006/internal/model"
	"github.com/angbrunosa-netizen/opero-gestionale-sub006/internal/repository"
	"github.com/angbrunosa-netizen/opero-gestionale-sub006/internal/storage"
)

// ErrCleanupRunning is returned when a pass is requested while another one is
// still in progress. The caller gets an explicit rejection, never a queue.
var ErrCleanupRunning = errors.New("cleanup already running")

// Sweep selects which sub-sweeps a pass executes.
type Sweep uint8

const (
	SweepObjects Sweep = 1 << iota
	SweepCache
	SweepOrphans
	SweepTracking
)

// AllSweeps runs every sub-sweep in one pass.
const AllSweeps = SweepObjects | SweepCache | SweepOrphans | SweepTracking

// orphanBatchSize bounds one orphan sweep. Rows whose object delete failed
// would be returned again by the next query, so the sweep takes a single
// batch per pass and lets the next pass retry the leftovers.
const orphanBatchSize = 1000

// Options overrides the configured thresholds for one pass. Day values are
// pointers so that an explicit 0 ("everything eligible") can be told apart
// from "use the default". A zero Sweeps value means AllSweeps.
type Options struct {
	Sweeps             Sweep `json:"sweeps"`
	ObjectDaysOld      *int  `json:"s3_days_old"`
	CacheDaysOld       *int  `json:"cache_days_old"`
	OrphanDaysOld      *int  `json:"orphan_days_old"`
	DownloadLogDaysOld *int  `json:"download_log_days_old"`
	OpenLogDaysOld     *int  `json:"open_log_days_old"`
}

// Result reports what one pass did. Per-item failures are counted, never
// surfaced as pass errors.
type Result struct {
	ObjectsDeleted        int           `json:"objects_deleted"`
	CacheFilesDeleted     int           `json:"cache_files_deleted"`
	OrphanRowsDeleted     int           `json:"orphan_rows_deleted"`
	DownloadEventsDeleted int64         `json:"download_events_deleted"`
	OpenEventsDeleted     int64         `json:"open_events_deleted"`
	ItemFailures          int           `json:"item_failures"`
	Duration              time.Duration `json:"-"`
	DurationMS            int64         `json:"duration_ms"`
}

// Scheduler reclaims storage and relational space according to age- and
// orphan-based policy. One instance owns the single-flight state; inject it
// wherever a trigger lives instead of sharing globals.
type Scheduler struct {
	store    storage.Storage
	registry repository.AttachmentRepository
	tracking repository.TrackingRepository
	runs     repository.CleanupRunRepository
	cfg      config.RetentionConfig
	metrics  *Metrics

	mu      sync.Mutex
	running bool
	lastRun *model.CleanupRun

	now func() time.Time
}

// NewScheduler wires a retention scheduler. metrics may be nil.
func NewScheduler(
	store storage.Storage,
	registry repository.AttachmentRepository,
	tracking repository.TrackingRepository,
	runs repository.CleanupRunRepository,
	cfg config.RetentionConfig,
	metrics *Metrics,
) *Scheduler {
	return &Scheduler{
		store:    store,
		registry: registry,
		tracking: tracking,
		runs:     runs,
		cfg:      cfg,
		metrics:  metrics,
		now:      time.Now,
	}
}

// Running reports whether a pass is currently in progress.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// LastRun returns the summary of the most recent completed pass, if any.
func (s *Scheduler) LastRun() *model.CleanupRun {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun
}

// Run executes one retention pass. It refuses to overlap with another pass
// (ErrCleanupRunning) and always releases the single-flight guard, including
// when sub-sweeps fail. Sub-sweeps are fault-isolated: a failure in one is
// logged and counted, and the pass continues with the others.
func (s *Scheduler) Run(ctx context.Context, opts Options) (*Result, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil, ErrCleanupRunning
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	start := s.now().UTC()
	sweeps := opts.Sweeps
	if sweeps == 0 {
		sweeps = AllSweeps
	}
	logEvent("pass_start", map[string]any{"sweeps": int(sweeps)})

	res := &Result{}

	if sweeps&SweepObjects != 0 {
		cutoff := s.cutoff(start, opts.ObjectDaysOld, s.cfg.ObjectMaxAgeDays)
		n, failed, err := s.sweepObjects(ctx, cutoff)
		res.ObjectsDeleted = n
		res.ItemFailures += failed
		if err != nil {
			logEvent("object_sweep_failed", map[string]any{"error": err.Error()})
			res.ItemFailures++
		}
	}

	if sweeps&SweepCache != 0 && s.cfg.CacheDir != "" {
		cutoff := s.cutoff(start, opts.CacheDaysOld, s.cfg.CacheMaxAgeDays)
		n, failed, err := sweepCacheDir(s.cfg.CacheDir, cutoff)
		res.CacheFilesDeleted = n
		res.ItemFailures += failed
		if err != nil {
			logEvent("cache_sweep_failed", map[string]any{"error": err.Error()})
			res.ItemFailures++
		}
	}

	if sweeps&SweepOrphans != 0 {
		cutoff := s.cutoff(start, opts.OrphanDaysOld, s.cfg.OrphanGraceDays)
		n, failed, err := s.sweepOrphans(ctx, cutoff)
		res.OrphanRowsDeleted = n
		res.ItemFailures += failed
		if err != nil {
			logEvent("orphan_sweep_failed", map[string]any{"error": err.Error()})
			res.ItemFailures++
		}
	}

	if sweeps&SweepTracking != 0 {
		s.sweepTracking(ctx, start, opts, res)
	}

	res.Duration = s.now().UTC().Sub(start)
	res.DurationMS = res.Duration.Milliseconds()

	run := &model.CleanupRun{
		ID:                uuid.New().String(),
		RanAt:             start,
		ObjectsDeleted:    res.ObjectsDeleted,
		CacheFilesDeleted: res.CacheFilesDeleted,
		OrphanRowsDeleted: res.OrphanRowsDeleted,
		TrackingDeleted:   res.DownloadEventsDeleted + res.OpenEventsDeleted,
		DurationMS:        res.DurationMS,
	}
	if err := s.runs.Create(ctx, run); err != nil {
		// The pass itself succeeded; a missing audit row is logged only.
		logEvent("cleanup_run_persist_failed", map[string]any{"error": err.Error()})
	}

	s.mu.Lock()
	s.lastRun = run
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.ObserveRun(res)
	}
	logEvent("pass_done", map[string]any{
		"objects_deleted":     res.ObjectsDeleted,
		"cache_files_deleted": res.CacheFilesDeleted,
		"orphan_rows_deleted": res.OrphanRowsDeleted,
		"tracking_deleted":    run.TrackingDeleted,
		"item_failures":       res.ItemFailures,
		"duration_ms":         res.DurationMS,
	})
	return res, nil
}

// sweepObjects deletes attachment objects whose last-modified time precedes
// the cutoff. Per-object failures are logged and skipped.
func (s *Scheduler) sweepObjects(ctx context.Context, cutoff time.Time) (deleted, failed int, err error) {
	objects, err := s.store.List(ctx, storage.KeyPrefix+"/", 0)
	if err != nil {
		return 0, 0, err
	}
	for _, obj := range objects {
		if !obj.LastModified.Before(cutoff) {
			continue
		}
		if err := s.store.Delete(ctx, obj.Key); err != nil {
			failed++
			logEvent("object_delete_failed", map[string]any{"key": obj.Key, "error": err.Error()})
			continue
		}
		deleted++
	}
	return deleted, failed, nil
}

// sweepOrphans deletes attachment rows whose message is gone and whose age
// exceeds the grace cutoff. The object goes first: a crash mid-item leaves a
// findable orphan row instead of a stranded object.
func (s *Scheduler) sweepOrphans(ctx context.Context, cutoff time.Time) (deleted, failed int, err error) {
	orphans, err := s.registry.FindOrphans(ctx, cutoff, orphanBatchSize)
	if err != nil {
		return 0, 0, err
	}
	for _, att := range orphans {
		if err := s.store.Delete(ctx, att.StorageKey); err != nil {
			failed++
			logEvent("orphan_object_delete_failed", map[string]any{"key": att.StorageKey, "error": err.Error()})
			continue
		}
		if err := s.registry.DeleteByStorageKey(ctx, att.StorageKey); err != nil {
			failed++
			logEvent("orphan_row_delete_failed", map[string]any{"key": att.StorageKey, "error": err.Error()})
			continue
		}
		deleted++
	}
	return deleted, failed, nil
}

// sweepTracking bulk-deletes old tracking rows. The two logs fail
// independently.
func (s *Scheduler) sweepTracking(ctx context.Context, start time.Time, opts Options, res *Result) {
	dlCutoff := s.cutoff(start, opts.DownloadLogDaysOld, s.cfg.DownloadLogMaxAgeDays)
	if n, err := s.tracking.DeleteDownloadEventsBefore(ctx, dlCutoff); err != nil {
		res.ItemFailures++
		logEvent("download_log_sweep_failed", map[string]any{"error": err.Error()})
	} else {
		res.DownloadEventsDeleted = n
	}

	openCutoff := s.cutoff(start, opts.OpenLogDaysOld, s.cfg.OpenLogMaxAgeDays)
	if n, err := s.tracking.DeleteOpenEventsBefore(ctx, openCutoff); err != nil {
		res.ItemFailures++
		logEvent("open_log_sweep_failed", map[string]any{"error": err.Error()})
	} else {
		res.OpenEventsDeleted = n
	}
}

func (s *Scheduler) cutoff(start time.Time, override *int, defDays int) time.Time {
	days := defDays
	if override != nil {
		days = *override
	}
	return start.AddDate(0, 0, -days)
}

var logEncoder = json.NewEncoder(os.Stdout)

func logEvent(event string, fields map[string]any) {
	entry := map[string]any{
		"component": "retention",
		"event":     event,
		"ts":        time.Now().UTC().Format(time.RFC3339),
	}
	for k, v := range fields {
		entry[k] = v
	}
	_ = logEncoder.Encode(entry)
}
