package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobManager_NewScanJob(t *testing.T) {
	jm := NewJobManager()
	job := jm.CreateJob(JobTypeScan)

	assert.NotEmpty(t, job.ID)
	assert.Equal(t, JobStatusPending, job.Status)
	assert.True(t, job.IsActive())
	assert.False(t, job.IsCancellationRequested())
	assert.WithinDuration(t, time.Now(), job.CreatedAt, time.Second)

	stored, ok := jm.GetJob(job.ID)
	require.True(t, ok)
	assert.Equal(t, job.ID, stored.ID)

	missing, ok := jm.GetJob("does-not-exist")
	assert.False(t, ok)
	assert.Nil(t, missing)
}

func TestJobManager_ReturnsCopies(t *testing.T) {
	jm := NewJobManager()
	job := jm.CreateJob(JobTypeScan)

	got, _ := jm.GetJob(job.ID)
	got.Message = "mutated by caller"
	got.Status = JobStatusFailed

	fresh, _ := jm.GetJob(job.ID)
	assert.Empty(t, fresh.Message)
	assert.Equal(t, JobStatusPending, fresh.Status)

	listed := jm.ListJobs()
	require.Len(t, listed, 1)
	listed[0].Progress = 99
	fresh, _ = jm.GetJob(job.ID)
	assert.Zero(t, fresh.Progress)
}

func TestJobManager_UpdateUnknownJob(t *testing.T) {
	jm := NewJobManager()
	called := false

	err := jm.UpdateJob("nope", func(*Job) { called = true })
	assert.ErrorIs(t, err, ErrJobNotFound)
	assert.False(t, called)
}

func TestJobManager_OneActiveScanAtATime(t *testing.T) {
	jm := NewJobManager()

	running, created := jm.CreateExclusiveJob(JobTypeScan)
	require.True(t, created)
	require.NoError(t, jm.UpdateJob(running.ID, func(j *Job) { j.Status = JobStatusRunning }))

	same, created := jm.CreateExclusiveJob(JobTypeScan)
	assert.False(t, created)
	assert.Equal(t, running.ID, same.ID)
	assert.Equal(t, JobStatusRunning, same.Status)

	for _, final := range []JobStatus{JobStatusCompleted, JobStatusFailed} {
		require.NoError(t, jm.UpdateJob(running.ID, func(j *Job) { j.Status = final }))

		next, created := jm.CreateExclusiveJob(JobTypeScan)
		require.True(t, created, "a %s scan should not block a new one", final)
		assert.NotEqual(t, running.ID, next.ID)
		running = next
	}
}

func TestJobManager_CancelClosesChannel(t *testing.T) {
	jm := NewJobManager()
	job, _ := jm.CreateExclusiveJob(JobTypeScan)

	require.NoError(t, jm.CancelJob(job.ID))

	select {
	case <-job.Cancel:
	default:
		t.Fatal("cancel channel should be closed")
	}
	assert.True(t, job.IsCancellationRequested())

	stored, _ := jm.GetJob(job.ID)
	assert.Equal(t, JobStatusCancelled, stored.Status)
	assert.False(t, stored.IsActive())

	assert.ErrorIs(t, jm.CancelJob(job.ID), ErrJobNotActive)
	assert.ErrorIs(t, jm.CancelJob("nope"), ErrJobNotFound)
}

func TestJobManager_ListNewestFirst(t *testing.T) {
	jm := NewJobManager()
	base := time.Now()

	ids := make([]string, 3)
	for i := range ids {
		job := jm.CreateJob(JobTypeScan)
		ids[i] = job.ID
		created := base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, jm.UpdateJob(job.ID, func(j *Job) { j.CreatedAt = created }))
	}

	jobs := jm.ListJobs()
	require.Len(t, jobs, 3)
	assert.Equal(t, []string{ids[2], ids[1], ids[0]}, []string{jobs[0].ID, jobs[1].ID, jobs[2].ID})
}

func TestJobManager_CleanupKeepsActiveJobs(t *testing.T) {
	jm := NewJobManager()
	old := time.Now().Add(-2 * time.Hour)

	finished := jm.CreateJob(JobTypeScan)
	stuck := jm.CreateJob(JobTypeScan)
	recent := jm.CreateJob(JobTypeScan)

	require.NoError(t, jm.UpdateJob(finished.ID, func(j *Job) {
		j.Status = JobStatusCompleted
		j.CreatedAt = old
	}))
	require.NoError(t, jm.UpdateJob(stuck.ID, func(j *Job) {
		j.Status = JobStatusRunning
		j.CreatedAt = old
	}))
	require.NoError(t, jm.UpdateJob(recent.ID, func(j *Job) { j.Status = JobStatusCompleted }))

	assert.Equal(t, 1, jm.CleanupOldJobs(time.Hour))

	_, ok := jm.GetJob(finished.ID)
	assert.False(t, ok)
	_, ok = jm.GetJob(stuck.ID)
	assert.True(t, ok)
	_, ok = jm.GetJob(recent.ID)
	assert.True(t, ok)
}

func TestJob_Duration(t *testing.T) {
	started := time.Now().Add(-3 * time.Second)
	completed := started.Add(2 * time.Second)

	assert.Equal(t, 2*time.Second, (&Job{StartedAt: started, CompletedAt: &completed}).Duration())
	assert.GreaterOrEqual(t, (&Job{StartedAt: started}).Duration(), 3*time.Second)
	assert.Zero(t, (&Job{}).Duration())
}
