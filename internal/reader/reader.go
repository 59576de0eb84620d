package reader

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"github.com/liqtrade/offer-extractor/constants"
)

// Document is the reader's output: either tabular rows or raw text, never
// both. The planner decides batching from whichever side is populated.
type Document struct {
	Format constants.DocumentFormat
	Text   string
	Rows   [][]string
}

// Tabular reports whether the document goes through the rows-mode pipeline.
func (d Document) Tabular() bool { return len(d.Rows) > 0 }

// ReadFunc turns a source file into a Document. PDF and image readers are
// registered through this hook.
type ReadFunc func(ctx context.Context, path string) (Document, error)

// FileReader resolves a file to a Document by extension. Spreadsheets and
// text are handled in-process; other formats must be registered.
type FileReader struct {
	logger *slog.Logger
	extra  map[constants.DocumentFormat]ReadFunc
}

func NewFileReader(logger *slog.Logger, extra map[constants.DocumentFormat]ReadFunc) *FileReader {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileReader{logger: logger, extra: extra}
}

func (r *FileReader) Read(ctx context.Context, path string) (Document, error) {
	format := constants.MapExtToFormat(filepath.Ext(path))

	if fn, ok := r.extra[format]; ok {
		return fn(ctx, path)
	}

	switch format {
	case constants.FormatExcel:
		f, err := os.Open(path)
		if err != nil {
			return Document{}, fmt.Errorf("open workbook: %w", err)
		}
		defer f.Close()
		rows, err := WorkbookRows(f)
		if err != nil {
			return Document{}, err
		}
		r.logger.Info("reader.workbook", "path", filepath.Base(path), "rows", len(rows))
		return Document{Format: constants.FormatExcel, Rows: rows}, nil

	case constants.FormatText:
		b, err := os.ReadFile(path)
		if err != nil {
			return Document{}, fmt.Errorf("read text file: %w", err)
		}
		return Document{Format: constants.FormatText, Text: string(b)}, nil

	default:
		return Document{}, fmt.Errorf("no reader registered for %s documents", format)
	}
}

// WorkbookRows loads the first sheet of an xlsx/xls/xlsm workbook as raw
// string cells, headers included; header detection is left to the
// interpretation service since real offer sheets bury headers below
// free-text banners.
func WorkbookRows(src io.Reader) ([][]string, error) {
	wb, err := excelize.OpenReader(src)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer wb.Close()

	sheets := wb.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}
	rows, err := wb.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	return rows, nil
}
