package session

import (
	"errors"
	"testing"
	"time"

	"flash-quiz/internal/models"
)

func testDocument(id, text string) *models.Document {
	return &models.Document{ID: id, OriginalName: id + ".pdf", Text: text, PageCount: 1}
}

func TestModeRequiresDocument(t *testing.T) {
	m := NewManager()
	snap := m.Create("")
	if snap.Mode != models.ModeHome {
		t.Fatalf("new session mode = %s", snap.Mode)
	}

	if _, err := m.SetMode(snap.ID, models.ModeQuiz); !errors.Is(err, ErrNoDocument) {
		t.Fatalf("expected ErrNoDocument, got %v", err)
	}
	if _, err := m.SetMode(snap.ID, "settings"); !errors.Is(err, ErrInvalidMode) {
		t.Fatalf("expected ErrInvalidMode, got %v", err)
	}
	if _, err := m.SetMode(snap.ID, models.ModeHome); err != nil {
		t.Fatalf("home should always be allowed: %v", err)
	}

	if _, err := m.SetDocument(snap.ID, testDocument("d1", "a b c")); err != nil {
		t.Fatalf("SetDocument: %v", err)
	}
	for _, mode := range []models.Mode{models.ModeQuiz, models.ModeMindMap, models.ModeFlashcards, models.ModeHome} {
		got, err := m.SetMode(snap.ID, mode)
		if err != nil || got.Mode != mode {
			t.Errorf("SetMode(%s) = %s, %v", mode, got.Mode, err)
		}
	}
}

func TestPrepareLeavesModeAlone(t *testing.T) {
	m := NewManager()
	snap := m.Create("session-key")
	m.SetDocument(snap.ID, testDocument("d1", "one two three"))

	prep, err := m.Prepare(snap.ID, models.TaskGrouping, "")
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if prep.APIKey != "session-key" || prep.DocumentID != "d1" || len(prep.Chunks) != 1 {
		t.Errorf("unexpected prepared run %+v", prep)
	}
	got, _ := m.Get(snap.ID)
	if got.Mode != models.ModeHome {
		t.Errorf("mode = %s, want home until the run is accepted", got.Mode)
	}

	prep, _ = m.Prepare(snap.ID, models.TaskQuiz, "override")
	if prep.APIKey != "override" {
		t.Errorf("expected override key, got %q", prep.APIKey)
	}
}

func TestPrepareWithoutDocument(t *testing.T) {
	m := NewManager()
	snap := m.Create("")
	if _, err := m.Prepare(snap.ID, models.TaskQuiz, ""); !errors.Is(err, ErrNoDocument) {
		t.Fatalf("expected ErrNoDocument, got %v", err)
	}
	if _, err := m.Prepare("missing", models.TaskQuiz, ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestNewDocumentInvalidatesCacheAndRuns(t *testing.T) {
	m := NewManager()
	snap := m.Create("")
	m.SetDocument(snap.ID, testDocument("d1", "old words here"))

	prep, _ := m.Prepare(snap.ID, models.TaskQuiz, "")
	run := &models.BatchRun{Task: models.TaskQuiz, Status: models.RunComplete, Results: []models.GenerationResult{{Chunk: prep.Chunks[0]}}}
	if !m.RecordRun(snap.ID, prep.DocumentID, run) {
		t.Fatal("expected run to be recorded")
	}
	if r, _ := m.Run(snap.ID, models.TaskQuiz); r == nil {
		t.Fatal("expected stored run")
	}

	after, _ := m.SetDocument(snap.ID, testDocument("d2", "brand new text entirely"))
	if after.Mode != models.ModeHome || len(after.Runs) != 0 {
		t.Errorf("expected reset session, got mode=%s runs=%d", after.Mode, len(after.Runs))
	}
	if r, _ := m.Run(snap.ID, models.TaskQuiz); r != nil {
		t.Error("previous run survived document replacement")
	}

	prep2, _ := m.Prepare(snap.ID, models.TaskQuiz, "")
	if prep2.Chunks[0] != "brand new text entirely" {
		t.Errorf("stale chunk cache: %q", prep2.Chunks)
	}

	// A run started against the old document is discarded.
	if m.RecordRun(snap.ID, "d1", run) {
		t.Error("run for replaced document should be dropped")
	}
}

func TestChunksAreCachedPerSize(t *testing.T) {
	s := newSession("s", "", time.Now())
	if _, err := s.Chunks(10); !errors.Is(err, ErrNoDocument) {
		t.Fatalf("expected ErrNoDocument, got %v", err)
	}
	s.SetDocument(testDocument("d", "a b c d e"))

	first, _ := s.Chunks(2)
	first[0] = "mutated"
	again, _ := s.Chunks(2)
	if again[0] != "mutated" {
		t.Error("expected cached slice to be reused")
	}
	other, _ := s.Chunks(5)
	if len(other) != 1 {
		t.Errorf("size 5 chunks = %q", other)
	}
}

func TestSnapshotIsDetached(t *testing.T) {
	m := NewManager()
	snap := m.Create("k")
	m.SetDocument(snap.ID, testDocument("d1", "x y"))

	got, _ := m.Get(snap.ID)
	got.Document.OriginalName = "changed"
	again, _ := m.Get(snap.ID)
	if again.Document.OriginalName != "d1.pdf" {
		t.Error("snapshot shares document with session")
	}
	if !again.HasAPIKey || again.Words != 2 {
		t.Errorf("unexpected snapshot %+v", again)
	}
	if !m.Delete(snap.ID) || m.Delete(snap.ID) {
		t.Error("delete should succeed once")
	}
}
