package models

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

type JobType string

const (
	JobTypeScan JobType = "scan"
)

type Job struct {
	ID          string     `json:"id"`
	Type        JobType    `json:"type"`
	Status      JobStatus  `json:"status"`
	Trigger     string     `json:"trigger,omitempty"`
	Progress    int        `json:"progress"` // 0-100
	Message     string     `json:"message"`
	Error       string     `json:"error,omitempty"`
	Result      any        `json:"result,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`

	// Closed when cancellation is requested
	Cancel chan struct{} `json:"-"`
}

// IsCancellationRequested checks if a cancellation has been requested for this job
func (j *Job) IsCancellationRequested() bool {
	select {
	case <-j.Cancel:
		return true
	default:
		return false
	}
}

// IsActive reports whether the job is pending or running
func (j *Job) IsActive() bool {
	return j.Status == JobStatusPending || j.Status == JobStatusRunning
}

// Duration returns how long the job ran, or has been running so far
func (j *Job) Duration() time.Duration {
	if j.StartedAt.IsZero() {
		return 0
	}
	if j.CompletedAt != nil {
		return j.CompletedAt.Sub(j.StartedAt)
	}
	return time.Since(j.StartedAt)
}

// JobManager keeps jobs in memory. Getters return copies so callers never
// race with the goroutine updating a job.
type JobManager struct {
	jobs map[string]*Job
	mu   sync.RWMutex
}

func NewJobManager() *JobManager {
	return &JobManager{
		jobs: make(map[string]*Job),
	}
}

func (jm *JobManager) CreateJob(jobType JobType) *Job {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	job := jm.newJob(jobType)
	copied := *job
	return &copied
}

// CreateExclusiveJob returns the active job of the given type if there is one,
// otherwise it creates a new pending job. created is false when an existing
// job was returned.
func (jm *JobManager) CreateExclusiveJob(jobType JobType) (job *Job, created bool) {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	for _, existing := range jm.jobs {
		if existing.Type == jobType && existing.IsActive() {
			copied := *existing
			return &copied, false
		}
	}

	copied := *jm.newJob(jobType)
	return &copied, true
}

func (jm *JobManager) newJob(jobType JobType) *Job {
	job := &Job{
		ID:        uuid.NewString(),
		Type:      jobType,
		Status:    JobStatusPending,
		Progress:  0,
		CreatedAt: time.Now(),
		Cancel:    make(chan struct{}),
	}

	jm.jobs[job.ID] = job
	return job
}

func (jm *JobManager) GetJob(id string) (*Job, bool) {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	job, exists := jm.jobs[id]
	if !exists {
		return nil, false
	}
	copied := *job
	return &copied, true
}

func (jm *JobManager) UpdateJob(id string, updates func(*Job)) error {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	job, exists := jm.jobs[id]
	if !exists {
		return ErrJobNotFound
	}

	updates(job)
	return nil
}

// ListJobs returns every job, newest first
func (jm *JobManager) ListJobs() []*Job {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	jobs := make([]*Job, 0, len(jm.jobs))
	for _, job := range jm.jobs {
		copied := *job
		jobs = append(jobs, &copied)
	}

	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})

	return jobs
}

func (jm *JobManager) CancelJob(id string) error {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	job, exists := jm.jobs[id]
	if !exists {
		return ErrJobNotFound
	}

	if !job.IsActive() {
		return ErrJobNotActive
	}

	if !job.IsCancellationRequested() {
		close(job.Cancel)
	}
	job.Status = JobStatusCancelled

	return nil
}

func (jm *JobManager) CleanupOldJobs(maxAge time.Duration) int {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	cleaned := 0

	for id, job := range jm.jobs {
		if job.CreatedAt.Before(cutoff) && !job.IsActive() {
			delete(jm.jobs, id)
			cleaned++
		}
	}

	return cleaned
}

// Errors
var (
	ErrJobNotFound  = errors.New("job not found")
	ErrJobNotActive = errors.New("job is not pending or running")
)
