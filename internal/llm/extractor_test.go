package llm

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brfiscal/nfe-pipeline/internal/common"
)

type fakeProvider struct {
	response string
	err      error
	system   string
	user     string
}

func (f *fakeProvider) Name() string { return "fake" }
func (f *fakeProvider) Close() error { return nil }

func (f *fakeProvider) Complete(_ context.Context, system, user string) (string, error) {
	f.system, f.user = system, user
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

const notaJSON = `{
  "cfop": "5102",
  "emitente": {"xNome": "LOJA EXEMPLO LTDA", "CNPJ": "14200166000187", "uf": "SP"},
  "destinatario": {"xNome": "FULANO DE TAL", "CPF": "12345678909", "uf": "SP"},
  "valor_total": 100.0,
  "itens": [{"xProd": "Camiseta", "vProd": 100.0}]
}`

func TestExtractRaw(t *testing.T) {
	p := &fakeProvider{response: notaJSON}
	e := NewExtractor(p, nil)

	m, raw, err := e.ExtractRaw(context.Background(), "DANFE texto extraído")
	require.NoError(t, err)
	assert.Equal(t, "5102", m["cfop"])
	assert.JSONEq(t, notaJSON, string(raw))

	assert.Contains(t, p.system, "extrator de dados de DANFE")
	assert.Contains(t, p.user, "DANFE texto extraído")
	assert.Contains(t, p.user, "Responda somente com o JSON.")
}

func TestExtractRaw_RemoveCercasMarkdown(t *testing.T) {
	p := &fakeProvider{response: "```json\n" + notaJSON + "\n```"}
	e := NewExtractor(p, nil)

	m, _, err := e.ExtractRaw(context.Background(), "doc")
	require.NoError(t, err)
	assert.Equal(t, "5102", m["cfop"])
}

func TestExtractRaw_NaoObjetoJSON(t *testing.T) {
	p := &fakeProvider{response: "desculpe, não consegui ler o documento"}
	e := NewExtractor(p, nil)

	_, _, err := e.ExtractRaw(context.Background(), "doc")
	require.Error(t, err)
	assert.Equal(t, common.CodeLLMOutput, common.CodeOf(err))
	assert.Contains(t, err.Error(), "LLM não retornou JSON object.")
}

func TestExtractRaw_ErroDoProvedor(t *testing.T) {
	p := &fakeProvider{err: errors.New("timeout")}
	e := NewExtractor(p, nil)

	_, _, err := e.ExtractRaw(context.Background(), "doc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timeout")
}

func TestExtractRaw_CortaDocumentoLongo(t *testing.T) {
	p := &fakeProvider{response: notaJSON}
	e := NewExtractor(p, nil)

	doc := strings.Repeat("a", MaxDocumentChars) + "SENTINELA"
	_, _, err := e.ExtractRaw(context.Background(), doc)
	require.NoError(t, err)
	assert.NotContains(t, p.user, "SENTINELA")
}

func TestExtractRaw_EsquemaDivergenteNaoFalha(t *testing.T) {
	// Extra top-level keys violate the schema hint but must not abort the
	// flow; the sanitizer and the domain validation decide.
	p := &fakeProvider{response: `{"cfop": "5102", "campo_extra": true}`}
	e := NewExtractor(p, nil)

	m, _, err := e.ExtractRaw(context.Background(), "doc")
	require.NoError(t, err)
	assert.Equal(t, "5102", m["cfop"])
}
