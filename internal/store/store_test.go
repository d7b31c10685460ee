package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brfiscal/nfe-pipeline/constants"
	"github.com/brfiscal/nfe-pipeline/internal/classify"
	"github.com/brfiscal/nfe-pipeline/internal/common"
	"github.com/brfiscal/nfe-pipeline/internal/domain"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	st, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func storedPayload() *domain.NFePayload {
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
			UF:          domain.RJ,
		},
		ValorTotal: decimal.RequireFromString("321.50"),
		Itens: []domain.NFeItem{
			{Descricao: "Mouse", NCM: "84716053", Valor: decimal.RequireFromString("321.50")},
		},
		Fonte: constants.FormatXML,
	}
}

func storedClassification(needsReview bool) *classify.Resultado {
	reason := ""
	if needsReview {
		reason = "Mapeamento não encontrado no CSV para CFOP 5102 (regime=*). Aplicado fallback por prefixo. Revisão humana obrigatória."
	}
	return &classify.Resultado{
		CFOP:             "5102",
		NaturezaOperacao: "interestadual",
		ContaDebito:      "Clientes",
		ContaCredito:     "Receita de Vendas",
		Justificativa:    "Venda. Natureza: interestadual. Valor total da NF-e considerado para contexto: 321.50.",
		Confianca:        0.65,
		NeedsHumanReview: needsReview,
		ReviewReason:     reason,
		RuleVersion:      "v0.4",
	}
}

func TestCreateAndGetJob(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	job, err := st.CreateJob(ctx, "/docs/nota.xml", constants.FormatXML, "abc123")
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, job.ID)
	assert.Equal(t, constants.JobStatusQueued, job.Status)

	got, err := st.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID)
	assert.Equal(t, "/docs/nota.xml", got.SourcePath)
	assert.Equal(t, constants.FormatXML, got.Kind)
	assert.Equal(t, "abc123", got.ContentHash)
	assert.Nil(t, got.Payload)
	assert.Nil(t, got.Classification)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestGetJob_NotFound(t *testing.T) {
	st := newTestStore(t)

	_, err := st.GetJob(context.Background(), uuid.New())
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrNotFound))
	assert.Equal(t, common.CodeStore, common.CodeOf(err))
}

func TestUpdateJobStatus(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	job, err := st.CreateJob(ctx, "/docs/nota.pdf", constants.FormatPDF, "h1")
	require.NoError(t, err)

	require.NoError(t, st.UpdateJobStatus(ctx, job.ID, constants.JobStatusRunning, ""))
	got, err := st.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusRunning, got.Status)

	require.NoError(t, st.UpdateJobStatus(ctx, job.ID, constants.JobStatusFailed, "Dados da NF-e inválidos: cfop: obrigatório"))
	got, err = st.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusFailed, got.Status)
	assert.Contains(t, got.ErrorMessage, "Dados da NF-e inválidos")
}

func TestUpdateJobStatus_MissingJob(t *testing.T) {
	st := newTestStore(t)

	err := st.UpdateJobStatus(context.Background(), uuid.New(), constants.JobStatusRunning, "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrNotFound))
}

func TestSaveResult_RoundTrip(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	job, err := st.CreateJob(ctx, "/docs/nota.xml", constants.FormatXML, "h2")
	require.NoError(t, err)

	require.NoError(t, st.SaveResult(ctx, job.ID, storedPayload(), storedClassification(false)))

	got, err := st.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusClassified, got.Status)
	assert.False(t, got.NeedsReview)
	assert.Empty(t, got.ReviewReason)

	require.NotNil(t, got.Payload)
	assert.Equal(t, "5102", got.Payload.CFOP)
	assert.Equal(t, "12345678000195", got.Payload.Emitente.CNPJ)
	assert.True(t, got.Payload.ValorTotal.Equal(decimal.RequireFromString("321.50")))
	require.Len(t, got.Payload.Itens, 1)
	assert.Equal(t, "Mouse", got.Payload.Itens[0].Descricao)

	require.NotNil(t, got.Classification)
	assert.Equal(t, "Clientes", got.Classification.ContaDebito)
	assert.Equal(t, "v0.4", got.Classification.RuleVersion)
}

func TestSaveResult_NeedsReview(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	job, err := st.CreateJob(ctx, "/docs/nota.xml", constants.FormatXML, "h3")
	require.NoError(t, err)

	require.NoError(t, st.SaveResult(ctx, job.ID, storedPayload(), storedClassification(true)))

	got, err := st.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusNeedsReview, got.Status)
	assert.True(t, got.NeedsReview)
	assert.Contains(t, got.ReviewReason, "Revisão humana obrigatória")
}

func TestSaveResult_PayloadOnly(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	job, err := st.CreateJob(ctx, "/docs/nota.xml", constants.FormatXML, "h4")
	require.NoError(t, err)

	require.NoError(t, st.SaveResult(ctx, job.ID, storedPayload(), nil))

	got, err := st.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusExtracted, got.Status)
	assert.Nil(t, got.Classification)
}

func TestFindByHash(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	missing, err := st.FindByHash(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	job, err := st.CreateJob(ctx, "/docs/nota.xml", constants.FormatXML, "samehash")
	require.NoError(t, err)

	found, err := st.FindByHash(ctx, "samehash")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, job.ID, found.ID)
}

func TestListJobs_Filters(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	xmlJob, err := st.CreateJob(ctx, "/docs/a.xml", constants.FormatXML, "ha")
	require.NoError(t, err)
	pdfJob, err := st.CreateJob(ctx, "/docs/b.pdf", constants.FormatPDF, "hb")
	require.NoError(t, err)
	require.NoError(t, st.UpdateJobStatus(ctx, pdfJob.ID, constants.JobStatusFailed, "boom"))

	all, err := st.ListJobs(ctx, JobFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	failed, err := st.ListJobs(ctx, JobFilter{Status: constants.JobStatusFailed})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, pdfJob.ID, failed[0].ID)

	xmls, err := st.ListJobs(ctx, JobFilter{Kind: constants.FormatXML})
	require.NoError(t, err)
	require.Len(t, xmls, 1)
	assert.Equal(t, xmlJob.ID, xmls[0].ID)

	limited, err := st.ListJobs(ctx, JobFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestProfileUpsertAndGet(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	none, err := st.GetProfile(ctx, "12345678000195")
	require.NoError(t, err)
	assert.Nil(t, none)

	require.NoError(t, st.UpsertProfile(ctx, CompanyProfile{
		CNPJ:          "12345678000195",
		Nome:          "ACME Ltda",
		DefaultRegime: constants.RegimeSimples,
	}))

	got, err := st.GetProfile(ctx, "12345678000195")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "ACME Ltda", got.Nome)
	assert.Equal(t, constants.RegimeSimples, got.DefaultRegime)

	// replacing the regime keeps the same row
	require.NoError(t, st.UpsertProfile(ctx, CompanyProfile{
		CNPJ:          "12345678000195",
		Nome:          "ACME Ltda",
		DefaultRegime: constants.RegimeReal,
	}))
	got, err = st.GetProfile(ctx, "12345678000195")
	require.NoError(t, err)
	assert.Equal(t, constants.RegimeReal, got.DefaultRegime)
}

func TestOpen_DisabledDriver(t *testing.T) {
	st, err := Open(context.Background(), common.StoreConfig{})
	require.NoError(t, err)
	assert.Nil(t, st)
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), common.StoreConfig{Driver: "oracle"})
	require.Error(t, err)
	assert.Equal(t, common.CodeConfig, common.CodeOf(err))
}
