package services

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ExtractedText is the plain text of a document in page order.
type ExtractedText struct {
	Text  string
	Pages int
}

type PDFService struct{}

func NewPDFService() *PDFService {
	return &PDFService{}
}

// ExtractText returns the concatenated plain text of every page. Any parse
// failure, including a panic inside the pdf reader, is reported as
// ErrDocumentUnreadable.
func (s *PDFService) ExtractText(data []byte) (out ExtractedText, err error) {
	if len(data) == 0 {
		return ExtractedText{}, fmt.Errorf("%w: empty upload", ErrDocumentUnreadable)
	}

	// ledongthuc/pdf panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			out = ExtractedText{}
			err = fmt.Errorf("%w: %v", ErrDocumentUnreadable, r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return ExtractedText{}, fmt.Errorf("%w: open pdf: %w", ErrDocumentUnreadable, err)
	}

	numPages := reader.NumPage()
	if numPages == 0 {
		return ExtractedText{}, fmt.Errorf("%w: pdf has no pages", ErrDocumentUnreadable)
	}

	var builder strings.Builder
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return ExtractedText{}, fmt.Errorf("%w: read page %d: %w", ErrDocumentUnreadable, i, err)
		}
		builder.WriteString(text)
		if !strings.HasSuffix(text, "\n") {
			builder.WriteString("\n")
		}
	}

	return ExtractedText{Text: builder.String(), Pages: numPages}, nil
}
