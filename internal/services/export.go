package services

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"flash-quiz/internal/models"
)

var exportHeader = []string{"Chunk", "Generated Content"}

// Excel rejects cells longer than this.
const maxCellChars = 32767

// WriteCSV writes one row per result under a "Chunk","Generated Content" header.
func WriteCSV(w io.Writer, run *models.BatchRun) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(exportHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	if run != nil {
		for _, res := range run.Results {
			if err := writer.Write([]string{res.Chunk, res.Content}); err != nil {
				return fmt.Errorf("write csv row %d: %w", res.Index, err)
			}
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// WriteXLSX writes the same table as WriteCSV into a workbook with one sheet
// named after the task.
func WriteXLSX(w io.Writer, run *models.BatchRun) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := "Results"
	if run != nil && run.Task != "" {
		sheet = string(run.Task)
	}
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return fmt.Errorf("name sheet: %w", err)
	}

	if err := f.SetSheetRow(sheet, "A1", &[]any{exportHeader[0], exportHeader[1]}); err != nil {
		return fmt.Errorf("write xlsx header: %w", err)
	}
	if run != nil {
		for i, res := range run.Results {
			cell, err := excelize.CoordinatesToCellName(1, i+2)
			if err != nil {
				return fmt.Errorf("locate row %d: %w", i, err)
			}
			row := []any{truncateCell(res.Chunk), truncateCell(res.Content)}
			if err := f.SetSheetRow(sheet, cell, &row); err != nil {
				return fmt.Errorf("write xlsx row %d: %w", res.Index, err)
			}
		}
	}

	style, err := f.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{WrapText: true, Vertical: "top"},
	})
	if err != nil {
		return fmt.Errorf("create cell style: %w", err)
	}
	if err := f.SetColStyle(sheet, "A:B", style); err != nil {
		return fmt.Errorf("apply cell style: %w", err)
	}
	if err := f.SetColWidth(sheet, "A", "B", 80); err != nil {
		return fmt.Errorf("set column width: %w", err)
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write xlsx: %w", err)
	}
	return nil
}

func truncateCell(s string) string {
	runes := []rune(s)
	if len(runes) <= maxCellChars {
		return s
	}
	return string(runes[:maxCellChars])
}

var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

// RenderHTML converts the markdown returned by the model into HTML. Raw HTML
// inside the content is not passed through.
func RenderHTML(content string) (string, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(content), &buf); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return buf.String(), nil
}
