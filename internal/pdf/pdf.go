// Package pdf extracts an NFePayload from DANFE PDFs. Tiered strategy:
// native text layer, then OCR when the layer is too thin, then LLM-guided
// structured extraction over whichever text was obtained. A spatial
// heuristics pass over word geometry cross-checks the result; divergence is
// logged, never fatal.
package pdf

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/brfiscal/nfe-pipeline/internal/common"
	"github.com/brfiscal/nfe-pipeline/internal/domain"
	"github.com/brfiscal/nfe-pipeline/internal/llm"
	"github.com/brfiscal/nfe-pipeline/internal/ocr"
	"github.com/brfiscal/nfe-pipeline/internal/payload"
)

// minTextChars is the floor below which a text layer does not count. Low on
// purpose: sparse but real text must beat OCR.
const minTextChars = 20

// crossCheckTolerance bounds the accepted gap between the heuristic total
// and the extracted total before a warning is logged.
var crossCheckTolerance = decimal.NewFromFloat(0.01)

// Parser drives the tiered PDF extraction.
type Parser struct {
	ocr        *ocr.Extractor
	llm        *llm.Extractor
	llmEnabled bool
	logger     *slog.Logger
}

// NewParser builds a PDF parser. The LLM extractor may be nil only when
// llmEnabled is false.
func NewParser(ocrx *ocr.Extractor, llmx *llm.Extractor, llmEnabled bool, logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{ocr: ocrx, llm: llmx, llmEnabled: llmEnabled, logger: logger}
}

// Parse extracts and validates one DANFE PDF.
func (p *Parser) Parse(ctx context.Context, path string) (*domain.NFePayload, error) {
	start := time.Now()

	if ext := strings.ToLower(filepath.Ext(path)); ext != ".pdf" {
		return nil, common.Errorf(common.CodeUnsupported, "Extensão não suportada para este parser: %s", ext)
	}
	if _, err := os.Stat(path); err != nil {
		return nil, common.NewAppError(common.CodeParse,
			fmt.Sprintf("Arquivo PDF não encontrado: %s", path), err)
	}

	text, usedOCR, err := p.prepare(ctx, path)
	if err != nil {
		return nil, err
	}
	p.logger.Info("pdf.prepare.ok",
		"path", path,
		"used_ocr", usedOCR,
		"text_len", len(text),
		"elapsed_ms", time.Since(start).Milliseconds())

	nfe, err := p.buildFromText(ctx, text)
	if err != nil {
		return nil, err
	}

	if !usedOCR {
		p.crossCheck(ctx, path, text, nfe)
	}
	return nfe, nil
}

// Analyze runs only the spatial heuristics over the PDF, useful to inspect
// a layout before trusting the extraction. Degrades to text-only heuristics
// when word geometry is unavailable.
func (p *Parser) Analyze(ctx context.Context, path string) (Diagnostico, error) {
	res, err := p.ocr.ExtractText(ctx, path)
	if err != nil {
		return Diagnostico{}, common.NewAppError(common.CodeParse,
			fmt.Sprintf("Falha ao extrair texto do PDF: %s", path), err)
	}
	words, err := p.ocr.ExtractWords(ctx, path)
	if err != nil {
		p.logger.Warn("pdf.analyze.words_unavailable", "path", path, "error", err)
		words = nil
	}
	return Analyze(words, res.Text), nil
}

// prepare obtains the document text: text layer first, OCR second.
func (p *Parser) prepare(ctx context.Context, path string) (text string, usedOCR bool, err error) {
	res, err := p.ocr.ExtractText(ctx, path)
	if err != nil {
		p.logger.Warn("pdf.text.error", "path", path, "error", err)
	}
	text = strings.TrimSpace(res.Text)
	if len(text) >= minTextChars {
		return text, false, nil
	}

	p.logger.Info("pdf.ocr.auto", "path", path, "text_len", len(text))
	ocrRes, err := p.ocr.ExtractOCR(ctx, path)
	if err != nil {
		return "", true, common.NewAppError(common.CodeNoTextLayer,
			"OCR necessário, mas a cadeia pdftoppm/tesseract não está disponível", err)
	}
	text = strings.TrimSpace(ocrRes.Text)
	if text == "" {
		return "", true, common.NewAppError(common.CodeNoTextLayer,
			"OCR não retornou texto", common.ErrInvalidInput)
	}
	return text, true, nil
}

// buildFromText runs the LLM extraction plus sanitize and validation.
func (p *Parser) buildFromText(ctx context.Context, text string) (*domain.NFePayload, error) {
	if !p.llmEnabled || p.llm == nil {
		return nil, common.Errorf(common.CodeLLMDisabled,
			"LLM desativada. Ative a extração por modelo de linguagem na configuração.")
	}
	if len(strings.TrimSpace(text)) < minTextChars {
		return nil, common.Errorf(common.CodeParse, "Texto insuficiente para extração via LLM.")
	}

	raw, _, err := p.llm.ExtractRaw(ctx, text)
	if err != nil {
		return nil, common.WrapError(err, "Falha na extração via LLM")
	}

	nfe, v := payload.FromRaw(raw, p.logger)
	nfe.Normalize()

	details := v.ErrorMessage()
	if err := nfe.Validate(p.logger); err != nil {
		var appErr *common.AppError
		if errors.As(err, &appErr) {
			if details != "" {
				details += "; "
			}
			details += appErr.Message
		}
	}
	if details != "" {
		p.logger.Error("pdf.parse.invalid", "details", details)
		return nil, common.NewAppError(common.CodeValidation,
			fmt.Sprintf("Dados da NF-e inválidos: %s", details), common.ErrValidation)
	}
	return nfe, nil
}

// crossCheck compares the heuristic read of the layout against the
// extracted payload. Only logs; the LLM extraction stays authoritative.
func (p *Parser) crossCheck(ctx context.Context, path, text string, nfe *domain.NFePayload) {
	words, err := p.ocr.ExtractWords(ctx, path)
	if err != nil || len(words) == 0 {
		return
	}
	diag := Analyze(words, text)

	if diag.ValorTotal != nil && diag.ValorTotal.Sub(nfe.ValorTotal).Abs().GreaterThan(crossCheckTolerance) {
		p.logger.Warn("pdf.crosscheck.valor_divergente",
			"heuristica", diag.ValorTotal.StringFixed(2),
			"extraido", nfe.ValorTotal.StringFixed(2))
	}
	if len(diag.CFOPs) > 0 && !contains(diag.CFOPs, nfe.CFOP) {
		p.logger.Warn("pdf.crosscheck.cfop_divergente",
			"heuristica", strings.Join(diag.CFOPs, ","),
			"extraido", nfe.CFOP)
	}
	if diag.ChaveAcesso != "" && nfe.ChaveAcesso == "" {
		nfe.ChaveAcesso = diag.ChaveAcesso
		p.logger.Info("pdf.crosscheck.chave_preenchida", "chave", diag.ChaveAcesso)
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
