package ocr

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// ExtractText pulls the native text layer of a PDF.
func (e *Extractor) ExtractText(ctx context.Context, path string) (ExtractionResult, error) {
	start := time.Now()
	// pdftotext -layout -enc UTF-8 -eol unix <path> -
	out, errb, err := e.runner.Run(ctx, e.cfg.Pdftotext, "-layout", "-enc", "UTF-8", "-eol", "unix", path, "-")
	if err != nil {
		return ExtractionResult{Method: "pdf-text", Warnings: []string{string(errb)}}, err
	}
	text := string(out)
	return ExtractionResult{
		Text:   text,
		Method: "pdf-text",
		// A form-feed \f is used as page separator by default
		Pages:    1 + strings.Count(text, "\f"),
		Duration: time.Since(start),
	}, nil
}

// ExtractOCR rasterizes the PDF and runs tesseract page by page.
func (e *Extractor) ExtractOCR(ctx context.Context, path string) (ExtractionResult, error) {
	start := time.Now()
	res := ExtractionResult{Method: "pdf-ocr", Language: e.cfg.Language}

	tmpDir, err := os.MkdirTemp("", "nfe-pp-*")
	if err != nil {
		return res, err
	}
	defer func() {
		if rmErr := os.RemoveAll(tmpDir); rmErr != nil {
			e.logger.Warn("ocr.tmpdir.remove_failed", "dir", tmpDir, "error", rmErr)
		}
	}()

	prefix := filepath.Join(tmpDir, "page")
	// pdftoppm -r 144 -png <in.pdf> <tmp/page>
	_, errb, err := e.runner.Run(ctx, e.cfg.Pdftoppm, "-r", fmt.Sprintf("%d", e.cfg.DPI), "-png", path, prefix)
	if err != nil {
		res.Warnings = append(res.Warnings, string(errb))
		return res, err
	}

	// collect generated pngs (prefix-1.png, prefix-2.png, ...)
	matches, _ := filepath.Glob(prefix + "-*.png")
	sort.Strings(matches)
	if e.cfg.MaxPages > 0 && len(matches) > e.cfg.MaxPages {
		matches = matches[:e.cfg.MaxPages]
	}
	if len(matches) == 0 {
		res.Warnings = append(res.Warnings, "pdftoppm produced no images")
		return res, fmt.Errorf("no pages rendered")
	}

	var b strings.Builder
	var confSum float32
	var confPages int
	for _, img := range matches {
		img = e.preprocess(ctx, img)

		txt, warns, err := e.tesseractOCR(ctx, img)
		if err != nil {
			res.Warnings = append(res.Warnings, err.Error())
			continue
		}
		res.Warnings = append(res.Warnings, warns...)
		if b.Len() > 0 {
			b.WriteString("\n\f\n") // keep a clear page break marker
		}
		b.WriteString(txt)

		if conf, _, err := e.tesseractTSVConfidence(ctx, img); err == nil && conf > 0 {
			confSum += conf
			confPages++
		}
	}

	res.Text = b.String()
	res.Pages = len(matches)
	res.Duration = time.Since(start)
	if confPages > 0 {
		res.Confidence = blendConfidence(confSum/float32(confPages), res.Text)
	} else {
		res.Confidence = blendConfidence(0, res.Text)
	}
	return res, nil
}

// preprocess runs one page image through ImageMagick when enabled. Errors
// degrade to the original image.
func (e *Extractor) preprocess(ctx context.Context, img string) string {
	if !e.cfg.Preprocess {
		return img
	}
	out := strings.TrimSuffix(img, ".png") + ".pre.png"
	// magick <page.png> -colorspace Gray -normalize <page.pre.png>
	if _, errb, err := e.runner.Run(ctx, e.cfg.Magick, img, "-colorspace", "Gray", "-normalize", out); err != nil {
		e.logger.Warn("ocr.preprocess.failed", "image", img, "error", err, "stderr", truncate(string(errb), 1<<10))
		return img
	}
	if _, err := os.Stat(out); err != nil {
		e.logger.Warn("ocr.preprocess.no_output", "image", img)
		return img
	}
	return out
}

func (e *Extractor) tesseractOCR(ctx context.Context, path string) (string, []string, error) {
	// tesseract <file> stdout -l <lang>
	args := []string{path, "stdout", "-l", e.cfg.Language}
	if e.cfg.PSM > 0 {
		args = append(args, "--psm", fmt.Sprintf("%d", e.cfg.PSM))
	}
	if e.cfg.OEM > 0 {
		args = append(args, "--oem", fmt.Sprintf("%d", e.cfg.OEM))
	}

	out, errb, err := e.runner.Run(ctx, e.cfg.Tesseract, args...)
	if err != nil {
		return "", []string{string(errb)}, fmt.Errorf("tesseract: %w", err)
	}
	return string(out), nil, nil
}
