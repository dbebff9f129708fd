package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jmagar/editcount/internal/models"
	"go.uber.org/zap"
)

// Scanner produces the current album counts
type Scanner interface {
	Scan(ctx context.Context) ([]models.Group, error)
}

// ScanStore persists scan runs
type ScanStore interface {
	RecordScan(ctx context.Context, run models.ScanRun) (int64, error)
	RecentScans(ctx context.Context, limit int) ([]models.ScanRun, error)
}

// ScanResult is attached to a completed scan job
type ScanResult struct {
	Albums   int           `json:"albums"`
	Totals   models.Totals `json:"totals"`
	Duration string        `json:"duration"`
}

type ScanService struct {
	Scanner     Scanner
	Store       ScanStore
	JobManager  *models.JobManager
	Broadcaster *Broadcaster
	Logger      *zap.Logger

	// scanMu serializes scans so history updates never interleave
	scanMu sync.Mutex

	mu          sync.RWMutex
	snapshot    models.Snapshot
	hasSnapshot bool
}

func NewScanService(scanner Scanner, store ScanStore, jobManager *models.JobManager, broadcaster *Broadcaster, logger *zap.Logger) *ScanService {
	if jobManager == nil {
		jobManager = models.NewJobManager()
	}
	if logger == nil {
		logger = zap.L()
	}

	return &ScanService{
		Scanner:     scanner,
		Store:       store,
		JobManager:  jobManager,
		Broadcaster: broadcaster,
		Logger:      logger,
	}
}

// StartScan runs a scan in the background. When a scan job is already pending
// or running it is returned instead and started is false.
func (s *ScanService) StartScan(trigger string) (job *models.Job, started bool) {
	job, created := s.JobManager.CreateExclusiveJob(models.JobTypeScan)
	if !created {
		return job, false
	}

	job.Trigger = trigger
	if err := s.JobManager.UpdateJob(job.ID, func(j *models.Job) {
		j.Trigger = trigger
		j.Message = "Scan queued"
	}); err != nil {
		s.Logger.Error("Failed to update job", zap.String("job_id", job.ID), zap.Error(err))
	}

	go s.runJob(job)

	return job, true
}

func (s *ScanService) runJob(job *models.Job) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		select {
		case <-job.Cancel:
			cancel()
		case <-ctx.Done():
		}
	}()

	startTime := time.Now()
	if err := s.JobManager.UpdateJob(job.ID, func(j *models.Job) {
		if j.Status != models.JobStatusPending {
			return
		}
		j.Status = models.JobStatusRunning
		j.StartedAt = startTime
		j.Progress = 10
		j.Message = "Scanning photo folders..."
	}); err != nil {
		s.Logger.Error("Failed to update job", zap.String("job_id", job.ID), zap.Error(err))
		return
	}

	snapshot, err := s.scan(ctx, job.ID, job.Trigger)
	completedAt := time.Now()

	if updateErr := s.JobManager.UpdateJob(job.ID, func(j *models.Job) {
		j.CompletedAt = &completedAt
		if j.StartedAt.IsZero() {
			j.StartedAt = startTime
		}

		switch {
		case errors.Is(err, context.Canceled) || j.Status == models.JobStatusCancelled:
			j.Status = models.JobStatusCancelled
			j.Message = "Scan cancelled"
		case err != nil:
			j.Status = models.JobStatusFailed
			j.Error = err.Error()
			j.Message = "Scan failed"
		default:
			j.Status = models.JobStatusCompleted
			j.Progress = 100
			j.Message = fmt.Sprintf("Scanned %d albums: %s", snapshot.AlbumCount(), snapshot.Totals.Progress())
			j.Result = &ScanResult{
				Albums:   snapshot.AlbumCount(),
				Totals:   snapshot.Totals,
				Duration: completedAt.Sub(startTime).String(),
			}
		}
	}); updateErr != nil {
		s.Logger.Warn("Failed to update job status", zap.String("job_id", job.ID), zap.Error(updateErr))
	}
}

// RunScan scans synchronously and returns the new snapshot
func (s *ScanService) RunScan(ctx context.Context, trigger string) (models.Snapshot, error) {
	return s.scan(ctx, "", trigger)
}

func (s *ScanService) scan(ctx context.Context, jobID, trigger string) (models.Snapshot, error) {
	s.scanMu.Lock()
	defer s.scanMu.Unlock()

	run := models.ScanRun{
		JobID:     jobID,
		Trigger:   trigger,
		StartedAt: time.Now(),
	}

	groups, err := s.Scanner.Scan(ctx)
	if err == nil {
		// A scan cancelled after its last album keeps the previous snapshot
		err = ctx.Err()
	}
	finishedAt := time.Now()
	run.FinishedAt = &finishedAt

	if err != nil {
		run.Error = err.Error()
		s.record(ctx, run)
		s.Logger.Error("Scan failed", zap.String("trigger", trigger), zap.Error(err))
		return models.Snapshot{}, fmt.Errorf("scan failed: %w", err)
	}

	snapshot := models.NewSnapshot(groups, finishedAt)
	run.Albums = snapshot.AlbumCount()
	run.Edited = snapshot.Totals.Edited
	run.Deleted = snapshot.Totals.Deleted
	run.Total = snapshot.Totals.Total
	s.record(ctx, run)

	s.mu.Lock()
	s.snapshot = snapshot
	s.hasSnapshot = true
	s.mu.Unlock()

	if s.Broadcaster != nil {
		s.Broadcaster.Publish(snapshot)
	}

	s.Logger.Info("Scan completed",
		zap.String("trigger", trigger),
		zap.Int("albums", run.Albums),
		zap.String("progress", snapshot.Totals.Progress()),
		zap.Duration("duration", finishedAt.Sub(run.StartedAt)))

	return snapshot, nil
}

func (s *ScanService) record(ctx context.Context, run models.ScanRun) {
	if s.Store == nil {
		return
	}

	if _, err := s.Store.RecordScan(context.WithoutCancel(ctx), run); err != nil {
		s.Logger.Warn("Failed to record scan run", zap.Error(err))
	}
}

// Snapshot returns the latest successful scan. ok is false before the first one.
func (s *ScanService) Snapshot() (snapshot models.Snapshot, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot, s.hasSnapshot
}

// RecentScans lists persisted scan runs, newest first
func (s *ScanService) RecentScans(ctx context.Context, limit int) ([]models.ScanRun, error) {
	if s.Store == nil {
		return []models.ScanRun{}, nil
	}
	return s.Store.RecentScans(ctx, limit)
}
