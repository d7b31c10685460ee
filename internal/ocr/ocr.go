// Package ocr wraps the external PDF text toolchain: pdftotext for native
// text layers and word geometry, pdftoppm plus tesseract for scanned pages,
// optionally ImageMagick for page preprocessing. Binaries run through a
// Runner so tests never need them installed.
package ocr

import (
	"log/slog"
	"time"
)

type Config struct {
	Pdftotext string // binary name or absolute path; if empty -> "pdftotext"
	Pdftoppm  string // binary name or absolute path; if empty -> "pdftoppm"
	Tesseract string // binary name or absolute path; if empty -> "tesseract"
	Magick    string // binary name or absolute path; if empty -> "magick"

	Language string // tesseract language pack, default "por"
	DPI      int    // rasterization DPI for scanned PDFs, default 144
	MaxPages int    // 0 = no limit

	PSM int // tesseract page segmentation mode; 0 = engine default
	OEM int // tesseract engine mode; 0 = engine default

	// Preprocess runs each rendered page through ImageMagick
	// (grayscale + normalize) before OCR.
	Preprocess bool
}

// ExtractionResult carries the text of one extraction pass.
type ExtractionResult struct {
	Text       string
	Pages      int
	Method     string // "pdf-text" | "pdf-ocr"
	Language   string
	Duration   time.Duration
	Warnings   []string
	Confidence float32 // 0 when the method provides no signal
}

type Extractor struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

func NewExtractor(cfg Config, logger *slog.Logger) *Extractor {
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
	if cfg.Magick == "" {
		cfg.Magick = "magick"
	}
	if cfg.Language == "" {
		cfg.Language = "por"
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 144
	}
	return &Extractor{cfg: cfg, runner: execRunner{}, logger: logger}
}

// NewExtractorWithRunner is NewExtractor with an injected Runner, for tests.
func NewExtractorWithRunner(cfg Config, runner Runner, logger *slog.Logger) *Extractor {
	e := NewExtractor(cfg, logger)
	if runner != nil {
		e.runner = runner
	}
	return e
}
