package services

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestExtractTextRejectsUnreadableInput(t *testing.T) {
	svc := NewPDFService()
	cases := map[string][]byte{
		"empty":     nil,
		"not a pdf": []byte("this is plain text, not a PDF document"),
		"truncated": []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog"),
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.ExtractText(data)
			if !errors.Is(err, ErrDocumentUnreadable) {
				t.Fatalf("expected ErrDocumentUnreadable, got %v", err)
			}
		})
	}
}

func TestExtractTextConcatenatesPagesInOrder(t *testing.T) {
	// Declares three pages; the third has no page object and is skipped.
	data, err := os.ReadFile(filepath.Join("testdata", "three_pages.pdf"))
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}

	got, err := NewPDFService().ExtractText(data)
	if err != nil {
		t.Fatalf("ExtractText: %v", err)
	}
	if got.Pages != 3 {
		t.Errorf("pages = %d, want 3", got.Pages)
	}

	want := []string{"Photosynthesis", "Mitochondria"}
	if words := strings.Fields(got.Text); !reflect.DeepEqual(words, want) {
		t.Fatalf("words = %q, want %q", words, want)
	}
	first := strings.Index(got.Text, "Photosynthesis")
	second := strings.Index(got.Text, "Mitochondria")
	if !strings.Contains(got.Text[first:second], "\n") {
		t.Errorf("pages not separated by a newline: %q", got.Text)
	}
	if !strings.HasSuffix(got.Text, "\n") {
		t.Errorf("text should end with the page separator: %q", got.Text)
	}
}
