package session

import (
	"errors"
	"fmt"
	"time"

	"flash-quiz/internal/models"
	"flash-quiz/internal/services"
)

var (
	ErrNotFound    = errors.New("session not found")
	ErrNoDocument  = errors.New("no document loaded")
	ErrInvalidMode = errors.New("invalid mode")
)

// Session is the state one user works with: the current screen, the loaded
// document with its chunk cache, and the latest run per task. It is not safe
// for concurrent use; Manager serialises access.
type Session struct {
	ID        string
	Mode      models.Mode
	APIKey    string
	Document  *models.Document
	CreatedAt time.Time
	UpdatedAt time.Time

	chunks map[int][]string
	runs   map[models.Task]*models.BatchRun
}

func newSession(id, apiKey string, now time.Time) *Session {
	return &Session{
		ID:        id,
		Mode:      models.ModeHome,
		APIKey:    apiKey,
		CreatedAt: now,
		UpdatedAt: now,
		chunks:    make(map[int][]string),
		runs:      make(map[models.Task]*models.BatchRun),
	}
}

// SetMode moves the session to another screen. Every screen except home
// needs a document.
func (s *Session) SetMode(mode models.Mode) error {
	if _, ok := models.ParseMode(string(mode)); !ok {
		return fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}
	if mode != models.ModeHome && s.Document == nil {
		return fmt.Errorf("enter %s: %w", mode, ErrNoDocument)
	}
	s.Mode = mode
	return nil
}

// SetDocument replaces the document, dropping cached chunks and previous runs
// and returning to the home screen.
func (s *Session) SetDocument(doc *models.Document) {
	s.Document = doc
	s.chunks = make(map[int][]string)
	s.runs = make(map[models.Task]*models.BatchRun)
	s.Mode = models.ModeHome
}

// Chunks returns the document's chunks for the given size, computing them once.
func (s *Session) Chunks(size int) ([]string, error) {
	if s.Document == nil {
		return nil, ErrNoDocument
	}
	if cached, ok := s.chunks[size]; ok {
		return cached, nil
	}
	chunks := services.ChunkText(s.Document.Text, size)
	s.chunks[size] = chunks
	return chunks, nil
}

func (s *Session) Run(task models.Task) *models.BatchRun {
	return s.runs[task]
}

func (s *Session) recordRun(run *models.BatchRun) {
	s.runs[run.Task] = run
}
