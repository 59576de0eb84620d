package reader

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/liqtrade/offer-extractor/constants"
)

// Runner lets us stub external commands in tests.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	start := time.Now()

	cmd := exec.CommandContext(ctx, name, args...)
	var out, errb bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errb

	err := cmd.Run()
	dur := time.Since(start)

	if err != nil {
		slog.Error("exec failed",
			"cmd", name,
			"args", strings.Join(args, " "),
			"duration_ms", dur.Milliseconds(),
			"error", err,
			"stderr", truncate(errb.String(), 8<<10),
		)
	} else {
		slog.Debug("exec ok",
			"cmd", name,
			"args", strings.Join(args, " "),
			"duration_ms", dur.Milliseconds(),
			"stdout_bytes", out.Len(),
		)
	}

	return out.Bytes(), errb.Bytes(), err
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}

// OCRConfig configures the external text extraction tools.
type OCRConfig struct {
	Pdftotext string // binary name or absolute path; if empty -> "pdftotext"
	Pdftoppm  string // binary name or absolute path; if empty -> "pdftoppm"
	Tesseract string // binary name or absolute path; if empty -> "tesseract"

	TesseractLang string // default "eng"
	DPI           int    // rasterization DPI for scanned PDFs, default 300
	MaxPages      int    // 0 = no limit
	TessdataDir   string
}

// OCRReader supplies the PDF and image ReadFuncs. Digital PDFs go through
// pdftotext; scanned PDFs (no embedded text layer) rasterize and go through
// tesseract page by page, same as plain images.
type OCRReader struct {
	cfg    OCRConfig
	runner Runner
	logger *slog.Logger
}

func NewOCRReader(cfg OCRConfig, logger *slog.Logger) *OCRReader {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Pdftotext == "" {
		cfg.Pdftotext = "pdftotext"
	}
	if cfg.Pdftoppm == "" {
		cfg.Pdftoppm = "pdftoppm"
	}
	if cfg.Tesseract == "" {
		cfg.Tesseract = "tesseract"
	}
	if cfg.TesseractLang == "" {
		cfg.TesseractLang = "eng"
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 300
	}
	return &OCRReader{cfg: cfg, runner: execRunner{}, logger: logger}
}

// Hooks returns the ReadFuncs keyed for FileReader registration.
func (o *OCRReader) Hooks() map[constants.DocumentFormat]ReadFunc {
	return map[constants.DocumentFormat]ReadFunc{
		constants.FormatPDF:   o.ReadPDF,
		constants.FormatImage: o.ReadImage,
	}
}

// minTextChars decides whether a PDF's embedded text layer is usable or the
// file is a scan wrapped in PDF.
const minTextChars = 40

func (o *OCRReader) ReadPDF(ctx context.Context, path string) (Document, error) {
	out, errb, err := o.runner.Run(ctx, o.cfg.Pdftotext, "-layout", "-enc", "UTF-8", "-eol", "unix", path, "-")
	if err != nil {
		return Document{}, fmt.Errorf("pdftotext: %w: %s", err, truncate(string(errb), 512))
	}

	text := string(out)
	if len(strings.TrimSpace(text)) >= minTextChars {
		pages := 1 + strings.Count(text, "\f")
		o.logger.Info("reader.pdf_text", "path", filepath.Base(path), "pages", pages, "chars", len(text))
		return Document{Format: constants.FormatPDF, Text: text}, nil
	}

	o.logger.Info("reader.pdf_scan_detected", "path", filepath.Base(path))
	text, err = o.ocrPDF(ctx, path)
	if err != nil {
		return Document{}, err
	}
	return Document{Format: constants.FormatPDF, Text: text}, nil
}

func (o *OCRReader) ReadImage(ctx context.Context, path string) (Document, error) {
	text, err := o.tesseract(ctx, path)
	if err != nil {
		return Document{}, err
	}
	o.logger.Info("reader.image_ocr", "path", filepath.Base(path), "chars", len(text))
	return Document{Format: constants.FormatImage, Text: text}, nil
}

func (o *OCRReader) ocrPDF(ctx context.Context, path string) (string, error) {
	tmpDir, err := os.MkdirTemp("", "offer-pp-*")
	if err != nil {
		return "", err
	}
	defer func() {
		if rerr := os.RemoveAll(tmpDir); rerr != nil {
			o.logger.Warn("failed to remove temp dir", "dir", tmpDir, "error", rerr)
		}
	}()

	prefix := filepath.Join(tmpDir, "page")
	_, errb, err := o.runner.Run(ctx, o.cfg.Pdftoppm, "-r", fmt.Sprintf("%d", o.cfg.DPI), "-png", path, prefix)
	if err != nil {
		return "", fmt.Errorf("pdftoppm: %w: %s", err, truncate(string(errb), 512))
	}

	matches, _ := filepath.Glob(prefix + "-*.png")
	sort.Strings(matches)
	if o.cfg.MaxPages > 0 && len(matches) > o.cfg.MaxPages {
		matches = matches[:o.cfg.MaxPages]
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("pdftoppm produced no images for %s", filepath.Base(path))
	}

	var b strings.Builder
	for _, img := range matches {
		txt, err := o.tesseract(ctx, img)
		if err != nil {
			o.logger.Warn("reader.page_ocr_failed", "page", filepath.Base(img), "error", err)
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\f\n")
		}
		b.WriteString(txt)
	}
	return b.String(), nil
}

func (o *OCRReader) tesseract(ctx context.Context, path string) (string, error) {
	args := []string{path, "stdout", "-l", o.cfg.TesseractLang}
	if o.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", o.cfg.TessdataDir)
	}
	out, errb, err := o.runner.Run(ctx, o.cfg.Tesseract, args...)
	if err != nil {
		return "", fmt.Errorf("tesseract: %w: %s", err, truncate(string(errb), 512))
	}
	return string(out), nil
}
