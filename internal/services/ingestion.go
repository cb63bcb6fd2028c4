package services

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"flash-quiz/internal/models"
)

// MaxDocumentBytes bounds a single upload.
const MaxDocumentBytes = 32 << 20

// TextExtractor returns the plain text of a document in page order.
type TextExtractor interface {
	ExtractText(data []byte) (ExtractedText, error)
}

// IngestionService turns an uploaded file into a Document ready for chunking.
type IngestionService struct {
	extractor TextExtractor
	log       zerolog.Logger
}

func NewIngestionService(extractor TextExtractor, log zerolog.Logger) *IngestionService {
	return &IngestionService{
		extractor: extractor,
		log:       log.With().Str("component", "ingestion").Logger(),
	}
}

func (s *IngestionService) Ingest(ctx context.Context, name string, src io.Reader) (*models.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if ext := strings.ToLower(filepath.Ext(name)); ext != "" && ext != ".pdf" {
		return nil, fmt.Errorf("%w: unsupported file type %s", ErrDocumentUnreadable, ext)
	}

	data, err := io.ReadAll(io.LimitReader(src, MaxDocumentBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if len(data) > MaxDocumentBytes {
		return nil, fmt.Errorf("%w: file exceeds %d bytes", ErrDocumentUnreadable, MaxDocumentBytes)
	}

	extracted, err := s.extractor.ExtractText(data)
	if err != nil {
		s.log.Info().Err(err).Str("name", name).Msg("text extraction failed")
		return nil, err
	}

	doc := &models.Document{
		ID:           uuid.NewString(),
		OriginalName: name,
		Size:         len(data),
		PageCount:    extracted.Pages,
		Text:         extracted.Text,
		UploadedAt:   time.Now().UTC(),
	}
	s.log.Info().
		Str("document", doc.ID).
		Int("pages", doc.PageCount).
		Int("words", len(strings.Fields(doc.Text))).
		Msg("document ingested")
	return doc, nil
}
