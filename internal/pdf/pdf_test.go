package pdf

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brfiscal/nfe-pipeline/constants"
	"github.com/brfiscal/nfe-pipeline/internal/common"
	"github.com/brfiscal/nfe-pipeline/internal/llm"
	"github.com/brfiscal/nfe-pipeline/internal/ocr"
)

type stubRunner struct {
	calls   [][]string
	handler func(name string, args []string) ([]byte, []byte, error)
}

func (s *stubRunner) Run(_ context.Context, name string, args ...string) ([]byte, []byte, error) {
	s.calls = append(s.calls, append([]string{name}, args...))
	if s.handler != nil {
		return s.handler(name, args)
	}
	return nil, nil, nil
}

func (s *stubRunner) saw(flag string) bool {
	for _, call := range s.calls {
		for _, a := range call {
			if a == flag {
				return true
			}
		}
	}
	return false
}

type stubProvider struct {
	response string
	err      error
}

func (p *stubProvider) Name() string { return "stub" }
func (p *stubProvider) Close() error { return nil }

func (p *stubProvider) Complete(context.Context, string, string) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	return p.response, nil
}

const notaCompleta = `{
  "cfop": "5102",
  "emitente": {"xNome": "LOJA EXEMPLO LTDA", "CNPJ": "14200166000187", "uf": "SP"},
  "destinatario": {"xNome": "FULANO DE TAL", "CPF": "12345678909", "uf": "RJ"},
  "valor_total": 100.0,
  "itens": [{"xProd": "Camiseta", "vProd": 100.0}]
}`

const textoDANFE = "DANFE Documento Auxiliar da NF-e\nLOJA EXEMPLO LTDA\nVALOR TOTAL DA NOTA 100,00\n"

const bboxTotal = `<?xml version="1.0"?>
<html xmlns="http://www.w3.org/1999/xhtml">
<body><doc><page width="595.0" height="842.0">
<word xMin="80" yMin="600" xMax="110" yMax="610">TOTAL</word>
<word xMin="200" yMin="600" xMax="230" yMax="610">100,00</word>
</page></doc></body></html>`

func newParser(t *testing.T, fr *stubRunner, provider llm.Provider, llmEnabled bool) *Parser {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ocrx := ocr.NewExtractorWithRunner(ocr.Config{}, fr, logger)
	var llmx *llm.Extractor
	if provider != nil {
		llmx = llm.NewExtractor(provider, logger)
	}
	return NewParser(ocrx, llmx, llmEnabled, logger)
}

func pdfFixture(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nota.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4"), 0o644))
	return path
}

// textLayerHandler serves a native text layer and fails the bbox pass, so
// the cross-check quietly steps aside.
func textLayerHandler(text string) func(string, []string) ([]byte, []byte, error) {
	return func(name string, args []string) ([]byte, []byte, error) {
		if len(args) > 0 && args[0] == "-bbox" {
			return nil, nil, fmt.Errorf("bbox indisponivel")
		}
		return []byte(text), nil, nil
	}
}

func TestParse_ExtensaoNaoSuportada(t *testing.T) {
	p := newParser(t, &stubRunner{}, nil, false)

	_, err := p.Parse(context.Background(), "/tmp/nota.xml")
	require.Error(t, err)
	assert.Equal(t, common.CodeUnsupported, common.CodeOf(err))
	assert.Contains(t, err.Error(), ".xml")
}

func TestParse_ArquivoInexistente(t *testing.T) {
	p := newParser(t, &stubRunner{}, nil, false)

	_, err := p.Parse(context.Background(), filepath.Join(t.TempDir(), "nao-existe.pdf"))
	require.Error(t, err)
	assert.Equal(t, common.CodeParse, common.CodeOf(err))
	assert.Contains(t, err.Error(), "não encontrado")
}

func TestParse_CamadaDeTexto(t *testing.T) {
	fr := &stubRunner{handler: textLayerHandler(textoDANFE)}
	p := newParser(t, fr, &stubProvider{response: notaCompleta}, true)

	nfe, err := p.Parse(context.Background(), pdfFixture(t))
	require.NoError(t, err)

	assert.Equal(t, "5102", nfe.CFOP)
	assert.Equal(t, "14200166000187", nfe.Emitente.CNPJ)
	assert.Equal(t, "12345678909", nfe.Destinatario.CPF)
	assert.True(t, nfe.ValorTotal.Equal(decimal.RequireFromString("100")))
	assert.Equal(t, constants.FormatPDF, nfe.Fonte)
	assert.False(t, fr.saw("-png"), "text layer present, rasterizer must not run")
}

func TestParse_OCRQuandoSemTexto(t *testing.T) {
	fr := &stubRunner{}
	fr.handler = func(name string, args []string) ([]byte, []byte, error) {
		switch {
		case len(args) > 0 && args[0] == "-layout":
			return nil, nil, nil // scanned PDF, empty text layer
		case contains(args, "-png"):
			prefix := args[len(args)-1]
			return nil, nil, os.WriteFile(prefix+"-1.png", []byte("png"), 0o644)
		case args[len(args)-1] == "tsv":
			return nil, nil, fmt.Errorf("sem tsv")
		default: // tesseract page pass
			return []byte("DANFE LOJA EXEMPLO LTDA VALOR TOTAL 100,00"), nil, nil
		}
	}
	p := newParser(t, fr, &stubProvider{response: notaCompleta}, true)

	nfe, err := p.Parse(context.Background(), pdfFixture(t))
	require.NoError(t, err)

	assert.Equal(t, "5102", nfe.CFOP)
	assert.True(t, fr.saw("-png"), "rasterizer expected for scanned PDF")
	assert.False(t, fr.saw("-bbox"), "cross-check only applies to native text layers")
}

func TestParse_FerramentasOCRAusentes(t *testing.T) {
	fr := &stubRunner{handler: func(name string, args []string) ([]byte, []byte, error) {
		if contains(args, "-png") {
			return nil, []byte("exec: pdftoppm not found"), fmt.Errorf("exit 127")
		}
		return nil, nil, nil // empty text layer
	}}
	p := newParser(t, fr, &stubProvider{response: notaCompleta}, true)

	_, err := p.Parse(context.Background(), pdfFixture(t))
	require.Error(t, err)
	assert.Equal(t, common.CodeNoTextLayer, common.CodeOf(err))
	assert.Contains(t, err.Error(), "pdftoppm/tesseract")
}

func TestParse_OCRSemTexto(t *testing.T) {
	fr := &stubRunner{}
	fr.handler = func(name string, args []string) ([]byte, []byte, error) {
		switch {
		case contains(args, "-png"):
			prefix := args[len(args)-1]
			return nil, nil, os.WriteFile(prefix+"-1.png", []byte("png"), 0o644)
		default:
			return nil, nil, nil // tesseract finds nothing
		}
	}
	p := newParser(t, fr, &stubProvider{response: notaCompleta}, true)

	_, err := p.Parse(context.Background(), pdfFixture(t))
	require.Error(t, err)
	assert.Equal(t, common.CodeNoTextLayer, common.CodeOf(err))
	assert.Contains(t, err.Error(), "OCR não retornou texto")
	assert.True(t, errors.Is(err, common.ErrInvalidInput))
}

func TestParse_TextoInsuficiente(t *testing.T) {
	fr := &stubRunner{}
	fr.handler = func(name string, args []string) ([]byte, []byte, error) {
		switch {
		case contains(args, "-png"):
			prefix := args[len(args)-1]
			return nil, nil, os.WriteFile(prefix+"-1.png", []byte("png"), 0o644)
		case args[len(args)-1] == "tsv":
			return nil, nil, fmt.Errorf("sem tsv")
		case len(args) > 0 && args[0] == "-layout":
			return nil, nil, nil
		default:
			return []byte("NF 46"), nil, nil // OCR too short to feed the LLM
		}
	}
	p := newParser(t, fr, &stubProvider{response: notaCompleta}, true)

	_, err := p.Parse(context.Background(), pdfFixture(t))
	require.Error(t, err)
	assert.Equal(t, common.CodeParse, common.CodeOf(err))
	assert.Contains(t, err.Error(), "Texto insuficiente")
}

func TestParse_LLMDesativada(t *testing.T) {
	fr := &stubRunner{handler: textLayerHandler(textoDANFE)}
	p := newParser(t, fr, nil, false)

	_, err := p.Parse(context.Background(), pdfFixture(t))
	require.Error(t, err)
	assert.Equal(t, common.CodeLLMDisabled, common.CodeOf(err))
	assert.Contains(t, err.Error(), "LLM desativada")
}

func TestParse_SaidaLLMInvalida(t *testing.T) {
	fr := &stubRunner{handler: textLayerHandler(textoDANFE)}
	p := newParser(t, fr, &stubProvider{response: `{"cfop": "5102"}`}, true)

	_, err := p.Parse(context.Background(), pdfFixture(t))
	require.Error(t, err)
	assert.Equal(t, common.CodeValidation, common.CodeOf(err))
	assert.Contains(t, err.Error(), "Dados da NF-e inválidos")
	assert.True(t, errors.Is(err, common.ErrValidation))
}

func TestParse_FalhaDoProvedor(t *testing.T) {
	fr := &stubRunner{handler: textLayerHandler(textoDANFE)}
	p := newParser(t, fr, &stubProvider{err: fmt.Errorf("quota excedida")}, true)

	_, err := p.Parse(context.Background(), pdfFixture(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Falha na extração via LLM")
	assert.Contains(t, err.Error(), "quota excedida")
}

func TestParse_CruzamentoPreencheChave(t *testing.T) {
	texto := "DANFE LOJA EXEMPLO LTDA\nChave de acesso " + chaveExemplo + "\n"
	fr := &stubRunner{}
	fr.handler = func(name string, args []string) ([]byte, []byte, error) {
		if len(args) > 0 && args[0] == "-bbox" {
			return []byte(bboxTotal), nil, nil
		}
		return []byte(texto), nil, nil
	}
	p := newParser(t, fr, &stubProvider{response: notaCompleta}, true)

	nfe, err := p.Parse(context.Background(), pdfFixture(t))
	require.NoError(t, err)
	assert.Equal(t, chaveExemplo, nfe.ChaveAcesso)
}

func TestAnalyze_DiagnosticoCompleto(t *testing.T) {
	texto := "DANFE Chave " + chaveExemplo + " VALOR TOTAL DA NOTA 100,00"
	fr := &stubRunner{}
	fr.handler = func(name string, args []string) ([]byte, []byte, error) {
		if len(args) > 0 && args[0] == "-bbox" {
			return []byte(bboxTotal), nil, nil
		}
		return []byte(texto), nil, nil
	}
	p := newParser(t, fr, nil, false)

	diag, err := p.Analyze(context.Background(), pdfFixture(t))
	require.NoError(t, err)
	assert.Equal(t, chaveExemplo, diag.ChaveAcesso)
	require.NotNil(t, diag.ValorTotal)
	assert.True(t, diag.ValorTotal.Equal(decimal.RequireFromString("100")))
}

func TestAnalyze_SemGeometriaDegradaParaTexto(t *testing.T) {
	texto := "DANFE Chave " + chaveExemplo + " VALOR TOTAL DA NOTA 150,00"
	fr := &stubRunner{}
	fr.handler = func(name string, args []string) ([]byte, []byte, error) {
		if len(args) > 0 && args[0] == "-bbox" {
			return nil, nil, fmt.Errorf("bbox indisponivel")
		}
		return []byte(texto), nil, nil
	}
	p := newParser(t, fr, nil, false)

	diag, err := p.Analyze(context.Background(), pdfFixture(t))
	require.NoError(t, err)
	assert.Equal(t, chaveExemplo, diag.ChaveAcesso)
	require.NotNil(t, diag.ValorTotal)
	assert.True(t, diag.ValorTotal.Equal(decimal.RequireFromString("150")))
	assert.Empty(t, diag.CFOPs)
}

func TestAnalyze_FalhaAoLerTexto(t *testing.T) {
	fr := &stubRunner{handler: func(name string, args []string) ([]byte, []byte, error) {
		return nil, []byte("broken pdf"), fmt.Errorf("exit 1")
	}}
	p := newParser(t, fr, nil, false)

	_, err := p.Analyze(context.Background(), pdfFixture(t))
	require.Error(t, err)
	assert.Equal(t, common.CodeParse, common.CodeOf(err))
	assert.Contains(t, err.Error(), "Falha ao extrair texto do PDF")
}
