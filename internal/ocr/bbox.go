package ocr

import (
	"context"
	"encoding/xml"
	"fmt"
	"strings"
)

// Word is one token of a PDF text layer with its page geometry, in PDF
// points.
type Word struct {
	Text string
	Page int
	XMin float64
	YMin float64
	XMax float64
	YMax float64
}

func (w Word) CenterX() float64 { return (w.XMin + w.XMax) / 2 }
func (w Word) CenterY() float64 { return (w.YMin + w.YMax) / 2 }

// pdftotext -bbox emits XHTML: body > doc > page > word.
type bboxDoc struct {
	Pages []bboxPage `xml:"body>doc>page"`
}

type bboxPage struct {
	Width  float64    `xml:"width,attr"`
	Height float64    `xml:"height,attr"`
	Words  []bboxWord `xml:"word"`
}

type bboxWord struct {
	XMin float64 `xml:"xMin,attr"`
	YMin float64 `xml:"yMin,attr"`
	XMax float64 `xml:"xMax,attr"`
	YMax float64 `xml:"yMax,attr"`
	Text string  `xml:",chardata"`
}

// ExtractWords returns every word of the text layer with its bounding box.
// Scanned PDFs yield an empty slice, not an error.
func (e *Extractor) ExtractWords(ctx context.Context, path string) ([]Word, error) {
	// pdftotext -bbox -enc UTF-8 <path> -
	out, errb, err := e.runner.Run(ctx, e.cfg.Pdftotext, "-bbox", "-enc", "UTF-8", path, "-")
	if err != nil {
		return nil, fmt.Errorf("pdftotext -bbox: %w (%s)", err, truncate(string(errb), 1<<10))
	}

	var doc bboxDoc
	if err := xml.Unmarshal(out, &doc); err != nil {
		return nil, fmt.Errorf("parse bbox output: %w", err)
	}

	var words []Word
	for i, page := range doc.Pages {
		for _, w := range page.Words {
			text := strings.TrimSpace(w.Text)
			if text == "" {
				continue
			}
			words = append(words, Word{
				Text: text,
				Page: i + 1,
				XMin: w.XMin,
				YMin: w.YMin,
				XMax: w.XMax,
				YMax: w.YMax,
			})
		}
	}
	return words, nil
}
