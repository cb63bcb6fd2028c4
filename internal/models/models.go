package models

import (
	"strings"
	"time"
)

// Task selects the prompt template and aggregation behaviour of a batch run.
type Task string

const (
	TaskQuiz       Task = "quiz"
	TaskFlashcards Task = "flashcards"
	TaskGrouping   Task = "grouping"
	TaskStudySet   Task = "study_set"
)

// Tasks lists every supported task in display order.
var Tasks = []Task{TaskQuiz, TaskFlashcards, TaskGrouping, TaskStudySet}

func ParseTask(raw string) (Task, bool) {
	t := Task(strings.ToLower(strings.TrimSpace(raw)))
	switch t {
	case TaskQuiz, TaskFlashcards, TaskGrouping, TaskStudySet:
		return t, true
	default:
		return "", false
	}
}

// ChunkSize is the fixed number of words per chunk for the task.
func (t Task) ChunkSize() int {
	switch t {
	case TaskFlashcards:
		return 250
	case TaskGrouping:
		return 1000
	default:
		return 500
	}
}

// PerChunk reports whether the task issues one completion per chunk.
// Grouping sends every chunk in a single request instead.
func (t Task) PerChunk() bool {
	return t != TaskGrouping
}

// Mode reports which screen the task's results belong to.
func (t Task) Mode() Mode {
	switch t {
	case TaskQuiz:
		return ModeQuiz
	case TaskGrouping:
		return ModeMindMap
	default:
		return ModeFlashcards
	}
}

type Mode string

const (
	ModeHome       Mode = "home"
	ModeQuiz       Mode = "quiz"
	ModeFlashcards Mode = "flashcards"
	ModeMindMap    Mode = "mindmap"
)

func ParseMode(raw string) (Mode, bool) {
	m := Mode(strings.ToLower(strings.TrimSpace(raw)))
	switch m {
	case ModeHome, ModeQuiz, ModeFlashcards, ModeMindMap:
		return m, true
	default:
		return "", false
	}
}

type Document struct {
	ID           string    `json:"id"`
	OriginalName string    `json:"name"`
	Size         int       `json:"size"`
	PageCount    int       `json:"pages"`
	Text         string    `json:"-"`
	UploadedAt   time.Time `json:"uploadedAt"`
}

// GenerationResult pairs a chunk with the text the completion service returned for it.
type GenerationResult struct {
	Index   int    `json:"index"`
	Chunk   string `json:"chunk"`
	Content string `json:"content"`
}

type RunStatus string

const (
	RunComplete    RunStatus = "complete"
	RunRateLimited RunStatus = "rate_limited"
	RunFailed      RunStatus = "failed"
	RunRejected    RunStatus = "rejected"
)

// BatchRun is the ordered outcome of one task over one document's chunks.
// Results are kept even when Status is not RunComplete.
type BatchRun struct {
	ID         string             `json:"id"`
	Task       Task               `json:"task"`
	Status     RunStatus          `json:"status"`
	Results    []GenerationResult `json:"results"`
	Error      string             `json:"error,omitempty"`
	Calls      int                `json:"calls"`
	StartedAt  time.Time          `json:"startedAt"`
	FinishedAt time.Time          `json:"finishedAt"`
}

func (r *BatchRun) Partial() bool {
	return r.Status != RunComplete
}

// Clone returns a copy that does not share the results slice.
func (r *BatchRun) Clone() *BatchRun {
	if r == nil {
		return nil
	}
	cp := *r
	if r.Results != nil {
		cp.Results = append([]GenerationResult(nil), r.Results...)
	}
	return &cp
}
