package ocr

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	reCNPJish  = regexp.MustCompile(`\d{2}\.?\d{3}\.?\d{3}/?\d{4}-?\d{2}`)
	reValorish = regexp.MustCompile(`\d{1,3}(\.\d{3})*,\d{2}`)
	reFiscal   = regexp.MustCompile(`(?i)danfe|nota fiscal|nf-?e|cfop`)
)

// heuristicConfidence scores decoded text by fiscal document artifacts.
func heuristicConfidence(txt string) float32 {
	score := float32(0.2) // base
	if reFiscal.MatchString(txt) {
		score += 0.2
	}
	if reCNPJish.MatchString(txt) {
		score += 0.15
	}
	if reValorish.MatchString(txt) {
		score += 0.15
	}
	if len(txt) > 120 {
		score += 0.1
	} // enough content
	if score > 1.0 {
		score = 1.0
	}
	return score
}

// blendConfidence weights the tesseract word confidence higher when
// available.
func blendConfidence(ocrConf float32, txt string) float32 {
	heur := heuristicConfidence(txt)
	var conf float32
	if ocrConf > 0 {
		conf = 0.7*ocrConf + 0.3*heur
	} else {
		conf = heur
	}
	if conf > 1.0 {
		conf = 1.0
	}
	return conf
}

// tesseractTSVConfidence runs tesseract in TSV mode and returns mean word conf in 0..1.
func (e *Extractor) tesseractTSVConfidence(ctx context.Context, path string) (float32, []string, error) {
	args := []string{path, "stdout", "-l", e.cfg.Language}
	if e.cfg.PSM > 0 {
		args = append(args, "--psm", fmt.Sprintf("%d", e.cfg.PSM))
	}
	if e.cfg.OEM > 0 {
		args = append(args, "--oem", fmt.Sprintf("%d", e.cfg.OEM))
	}
	// TSV output
	args = append(args, "tsv")

	out, errb, err := e.runner.Run(ctx, e.cfg.Tesseract, args...)
	if err != nil {
		return 0, []string{string(errb)}, fmt.Errorf("tesseract TSV: %w", err)
	}
	lines := strings.Split(string(out), "\n")
	// conf is the 11th of 12 columns; the last one holds the word itself
	var sum, n float64
	for i, ln := range lines {
		if i == 0 || len(ln) == 0 {
			continue
		} // skip header
		cols := strings.Split(ln, "\t")
		if len(cols) < 12 {
			continue
		}
		confStr := cols[10]
		if confStr == "" || confStr == "-1" {
			continue
		}
		if v, err := strconv.ParseFloat(confStr, 64); err == nil {
			sum += v
			n++
		}
	}
	if n == 0 {
		return 0, nil, nil
	}
	mean := sum / n // 0..100
	return float32(mean / 100.0), nil, nil
}
