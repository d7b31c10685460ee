package review

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brfiscal/nfe-pipeline/internal/classify"
	"github.com/brfiscal/nfe-pipeline/internal/common"
	"github.com/brfiscal/nfe-pipeline/internal/domain"
	"github.com/brfiscal/nfe-pipeline/internal/mapping"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newResolver(t *testing.T) (*Resolver, *mapping.Store, *classify.Engine) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "contas_por_cfop.csv")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(mapping.Header, ",")+"\n"), 0o644))
	st := mapping.NewStore(path, discardLogger())
	eng := classify.NewEngine(st, discardLogger())
	return NewResolver(st, eng, discardLogger()), st, eng
}

func pendingPayload() *domain.NFePayload {
	return &domain.NFePayload{
		CFOP: "5102",
		Emitente: domain.Emitente{
			RazaoSocial: "ACME Ltda",
			CNPJ:        "12345678000195",
			UF:          domain.SP,
		},
		Destinatario: domain.Destinatario{
			RazaoSocial: "Fulano de Tal",
			CPF:         "12345678909",
			UF:          domain.SP,
		},
		ValorTotal: decimal.RequireFromString("999.90"),
		Itens: []domain.NFeItem{
			{Descricao: "Notebook", NCM: "84713012", Valor: decimal.RequireFromString("999.90")},
		},
	}
}

func fullCorrection() Correcao {
	return Correcao{
		CFOP:              "5102",
		Regime:            "simples",
		ContaDebito:       "Clientes",
		ContaCredito:      "Receita de Vendas",
		JustificativaBase: "Venda no Simples Nacional.",
		Confianca:         0.95,
	}
}

func TestResolve_AppliesAndPersists(t *testing.T) {
	r, st, _ := newResolver(t)

	out, err := r.Resolve(pendingPayload(), fullCorrection())
	require.NoError(t, err)

	assert.False(t, out.NeedsHumanReview)
	assert.Equal(t, classify.ReasonHumanApplied, out.ReviewReason)
	assert.Equal(t, "Clientes", out.ContaDebito)
	assert.InDelta(t, 0.95, out.Confianca, 1e-9)
	assert.Contains(t, out.Justificativa, "Venda no Simples Nacional.")
	assert.Contains(t, out.Justificativa, "Valor total da NF-e considerado para contexto: 999.90.")

	row := st.Match("5102", "simples")
	require.NotNil(t, row)
	assert.Equal(t, "Receita de Vendas", row.ContaCredito)
	assert.InDelta(t, 0.95, row.Confianca, 1e-9)
}

func TestResolve_SecondClassifyNoLongerNeedsReview(t *testing.T) {
	r, _, eng := newResolver(t)
	p := pendingPayload()

	first := eng.Classify(p, "simples")
	require.True(t, first.NeedsHumanReview)

	_, err := r.Resolve(p, fullCorrection())
	require.NoError(t, err)

	second := eng.Classify(p, "simples")
	assert.False(t, second.NeedsHumanReview)
	assert.Equal(t, "Clientes", second.ContaDebito)
}

func TestResolve_InjectsPayloadCFOP(t *testing.T) {
	r, st, _ := newResolver(t)

	c := fullCorrection()
	c.CFOP = ""
	out, err := r.Resolve(pendingPayload(), c)
	require.NoError(t, err)

	assert.Equal(t, "5102", out.CFOP)
	assert.NotNil(t, st.Match("5102", "simples"))
}

func TestResolve_MissingFields(t *testing.T) {
	r, st, _ := newResolver(t)

	c := fullCorrection()
	c.ContaDebito = ""
	c.Confianca = 0

	_, err := r.Resolve(pendingPayload(), c)
	require.Error(t, err)
	assert.Equal(t, common.CodeReviewInput, common.CodeOf(err))
	assert.Contains(t, err.Error(), "Aguardando revisão humana. Campos faltantes: conta_debito, confianca")
	assert.Nil(t, st.Match("5102", "simples"))
}

func TestResolve_RejectsBadCFOP(t *testing.T) {
	r, _, _ := newResolver(t)

	c := fullCorrection()
	c.CFOP = "51A2"
	_, err := r.Resolve(pendingPayload(), c)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CFOP inválido (espera 4 dígitos).")
}

func TestResolve_RejectsConfidenceOutOfRange(t *testing.T) {
	r, _, _ := newResolver(t)

	c := fullCorrection()
	c.Confianca = 1.5
	_, err := r.Resolve(pendingPayload(), c)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Campo 'confianca' inválido (0.0 a 1.0).")
}

func TestResolve_RejectsUnknownRegime(t *testing.T) {
	r, st, _ := newResolver(t)

	c := fullCorrection()
	c.Regime = "lucro"
	_, err := r.Resolve(pendingPayload(), c)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Campo 'regime' inválido")
	assert.Nil(t, st.Match("5102", "lucro"))
}

func TestResolve_WildcardRegimeAccepted(t *testing.T) {
	r, st, _ := newResolver(t)

	c := fullCorrection()
	c.Regime = "*"
	_, err := r.Resolve(pendingPayload(), c)
	require.NoError(t, err)
	assert.NotNil(t, st.Match("5102", "presumido")) // wildcard row matches any regime
}
