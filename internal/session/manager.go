package session

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"flash-quiz/internal/models"
)

// Snapshot is a read-only copy of a session for rendering.
type Snapshot struct {
	ID        string           `json:"id"`
	Mode      models.Mode      `json:"mode"`
	HasAPIKey bool             `json:"hasApiKey"`
	Document  *models.Document `json:"document,omitempty"`
	Words     int              `json:"words"`
	Runs      []RunSummary     `json:"runs"`
	CreatedAt time.Time        `json:"createdAt"`
	UpdatedAt time.Time        `json:"updatedAt"`
}

type RunSummary struct {
	ID      string           `json:"id"`
	Task    models.Task      `json:"task"`
	Status  models.RunStatus `json:"status"`
	Results int              `json:"results"`
	Error   string           `json:"error,omitempty"`
}

// Prepared holds the plain inputs a batch run needs.
type Prepared struct {
	SessionID  string
	DocumentID string
	Task       models.Task
	Chunks     []string
	APIKey     string
}

type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	now      func() time.Time
}

func NewManager() *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (m *Manager) Create(apiKey string) Snapshot {
	s := newSession(uuid.NewString(), strings.TrimSpace(apiKey), m.now())

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	return s.snapshot()
}

func (m *Manager) Get(id string) (Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	return s.snapshot(), nil
}

func (m *Manager) SetMode(id string, mode models.Mode) (Snapshot, error) {
	return m.withSession(id, func(s *Session) error {
		return s.SetMode(mode)
	})
}

func (m *Manager) SetAPIKey(id, apiKey string) (Snapshot, error) {
	return m.withSession(id, func(s *Session) error {
		s.APIKey = strings.TrimSpace(apiKey)
		return nil
	})
}

func (m *Manager) SetDocument(id string, doc *models.Document) (Snapshot, error) {
	return m.withSession(id, func(s *Session) error {
		s.SetDocument(doc)
		return nil
	})
}

// Prepare returns the chunks and key a run of task should use. apiKey, when
// set, overrides the session key. The session mode is left unchanged.
func (m *Manager) Prepare(id string, task models.Task, apiKey string) (Prepared, error) {
	var out Prepared
	_, err := m.withSession(id, func(s *Session) error {
		chunks, err := s.Chunks(task.ChunkSize())
		if err != nil {
			return err
		}
		key := strings.TrimSpace(apiKey)
		if key == "" {
			key = s.APIKey
		}
		out = Prepared{
			SessionID:  s.ID,
			DocumentID: s.Document.ID,
			Task:       task,
			Chunks:     append([]string(nil), chunks...),
			APIKey:     key,
		}
		return nil
	})
	return out, err
}

// RecordRun stores run as the latest result for its task, unless the
// document it was generated from has been replaced since. It reports whether
// the run was kept.
func (m *Manager) RecordRun(id, documentID string, run *models.BatchRun) bool {
	kept := false
	_, _ = m.withSession(id, func(s *Session) error {
		if s.Document == nil || s.Document.ID != documentID {
			return nil
		}
		s.recordRun(run.Clone())
		kept = true
		return nil
	})
	return kept
}

func (m *Manager) Run(id string, task models.Task) (*models.BatchRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s.Run(task).Clone(), nil
}

func (m *Manager) Delete(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return false
	}
	delete(m.sessions, id)
	return true
}

func (m *Manager) withSession(id string, fn func(s *Session) error) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	if err := fn(s); err != nil {
		return s.snapshot(), err
	}
	s.UpdatedAt = m.now()
	return s.snapshot(), nil
}

func (s *Session) snapshot() Snapshot {
	snap := Snapshot{
		ID:        s.ID,
		Mode:      s.Mode,
		HasAPIKey: s.APIKey != "",
		Runs:      []RunSummary{},
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
	if s.Document != nil {
		doc := *s.Document
		snap.Document = &doc
		snap.Words = len(strings.Fields(doc.Text))
	}
	for _, task := range models.Tasks {
		run := s.runs[task]
		if run == nil {
			continue
		}
		snap.Runs = append(snap.Runs, RunSummary{
			ID:      run.ID,
			Task:    run.Task,
			Status:  run.Status,
			Results: len(run.Results),
			Error:   run.Error,
		})
	}
	return snap
}
