package api

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"flash-quiz/internal/models"
)

const (
	JobStatusPending    = "pending"
	JobStatusProcessing = "processing"
	JobStatusComplete   = "complete"
	JobStatusFailed     = "failed"
)

// RunJob tracks a batch run executing in the background so the frontend can poll it.
type RunJob struct {
	ID        string           `json:"jobId"`
	SessionID string           `json:"sessionId"`
	Task      models.Task      `json:"task"`
	Status    string           `json:"status"`
	Step      string           `json:"step,omitempty"`
	Message   string           `json:"message,omitempty"`
	Current   int              `json:"current"`
	Total     int              `json:"total"`
	Percent   int              `json:"percent"`
	Outcome   models.RunStatus `json:"outcome,omitempty"`
	Results   int              `json:"results"`
	Error     string           `json:"error,omitempty"`
	CreatedAt time.Time        `json:"createdAt"`
	UpdatedAt time.Time        `json:"updatedAt"`
}

// ErrRunInProgress is returned when a session already has an unfinished job.
var ErrRunInProgress = errors.New("a run is already in progress for this session")

type JobManager struct {
	mu   sync.RWMutex
	jobs map[string]*RunJob
	// active maps a session to its unfinished job.
	active map[string]string
}

func NewJobManager() *JobManager {
	return &JobManager{
		jobs:   make(map[string]*RunJob),
		active: make(map[string]string),
	}
}

// CreateJob registers a pending job for the session. A session runs at most
// one job at a time so completion calls stay sequential.
func (m *JobManager) CreateJob(sessionID string, task models.Task, total int) (*RunJob, error) {
	now := time.Now().UTC()
	job := &RunJob{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Task:      task,
		Status:    JobStatusPending,
		Total:     total,
		CreatedAt: now,
		UpdatedAt: now,
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.active[sessionID]; ok {
		return m.jobs[id].clone(), ErrRunInProgress
	}
	m.jobs[job.ID] = job
	m.active[sessionID] = job.ID

	return job.clone(), nil
}

// ActiveJob returns the unfinished job of a session, if any.
func (m *JobManager) ActiveJob(sessionID string) (*RunJob, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.active[sessionID]
	if !ok {
		return nil, false
	}
	return m.jobs[id].clone(), true
}

func (m *JobManager) GetJob(id string) (*RunJob, bool) {
	m.mu.RLock()
	job, ok := m.jobs[id]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return job.clone(), true
}

func (m *JobManager) MarkProcessing(id string) {
	m.withJob(id, func(job *RunJob) {
		job.Status = JobStatusProcessing
		job.Message = "Starting"
	})
}

func (m *JobManager) UpdateProgress(id string, step, message string, current, total int) {
	m.withJob(id, func(job *RunJob) {
		job.Status = JobStatusProcessing
		job.Step = step
		job.Message = message
		job.Current = current
		job.Total = total
		job.Percent = percent(current, total)
	})
}

// Finish records the outcome of a run. Runs that stopped early keep their
// partial result count and carry a user-facing message.
func (m *JobManager) Finish(id string, run *models.BatchRun, message string) {
	m.withJob(id, func(job *RunJob) {
		if m.active[job.SessionID] == job.ID {
			delete(m.active, job.SessionID)
		}
		job.Outcome = run.Status
		job.Results = len(run.Results)
		job.Step = "complete"
		if run.Status == models.RunComplete {
			job.Status = JobStatusComplete
			job.Message = "Done generating content"
			job.Percent = 100
			job.Error = ""
			return
		}
		job.Status = JobStatusFailed
		job.Step = "error"
		job.Message = strings.TrimSpace(message)
		job.Error = run.Error
	})
}

func (m *JobManager) withJob(id string, fn func(job *RunJob)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return
	}
	fn(job)
	job.UpdatedAt = time.Now().UTC()
}

func (job *RunJob) clone() *RunJob {
	if job == nil {
		return nil
	}
	cp := *job
	return &cp
}

func percent(current, total int) int {
	if total <= 0 || current <= 0 {
		return 0
	}
	if current >= total {
		return 100
	}
	return int((float64(current) / float64(total)) * 100)
}
