package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

type stubExtractor struct {
	out  ExtractedText
	err  error
	seen []byte
}

func (s *stubExtractor) ExtractText(data []byte) (ExtractedText, error) {
	s.seen = data
	return s.out, s.err
}

func TestIngestBuildsDocument(t *testing.T) {
	ext := &stubExtractor{out: ExtractedText{Text: "page one\npage two\n", Pages: 2}}
	svc := NewIngestionService(ext, zerolog.Nop())

	doc, err := svc.Ingest(context.Background(), "notes.PDF", strings.NewReader("%PDF-bytes"))
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	if doc.ID == "" || doc.OriginalName != "notes.PDF" || doc.PageCount != 2 || doc.Size != len("%PDF-bytes") {
		t.Errorf("unexpected document %+v", doc)
	}
	if doc.Text != "page one\npage two\n" {
		t.Errorf("text = %q", doc.Text)
	}
	if string(ext.seen) != "%PDF-bytes" {
		t.Errorf("extractor saw %q", ext.seen)
	}
}

func TestIngestPropagatesUnreadable(t *testing.T) {
	ext := &stubExtractor{err: ErrDocumentUnreadable}
	svc := NewIngestionService(ext, zerolog.Nop())

	if _, err := svc.Ingest(context.Background(), "broken.pdf", strings.NewReader("x")); !errors.Is(err, ErrDocumentUnreadable) {
		t.Fatalf("expected ErrDocumentUnreadable, got %v", err)
	}
}

func TestIngestRejectsOtherFileTypes(t *testing.T) {
	ext := &stubExtractor{}
	svc := NewIngestionService(ext, zerolog.Nop())

	if _, err := svc.Ingest(context.Background(), "notes.docx", strings.NewReader("x")); !errors.Is(err, ErrDocumentUnreadable) {
		t.Fatalf("expected ErrDocumentUnreadable, got %v", err)
	}
	if ext.seen != nil {
		t.Error("extractor should not run for unsupported files")
	}
}
