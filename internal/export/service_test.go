package export

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/brfiscal/nfe-pipeline/constants"
	"github.com/brfiscal/nfe-pipeline/internal/classify"
	"github.com/brfiscal/nfe-pipeline/internal/common"
	"github.com/brfiscal/nfe-pipeline/internal/domain"
	"github.com/brfiscal/nfe-pipeline/internal/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "export.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func exportPayload() *domain.NFePayload {
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

func exportClassification() *classify.Resultado {
	return &classify.Resultado{
		CFOP:             "5102",
		NaturezaOperacao: "interestadual",
		ContaDebito:      "Clientes",
		ContaCredito:     "Receita de Vendas",
		Justificativa:    "Venda. Natureza: interestadual. Valor total da NF-e considerado para contexto: 321.50.",
		Confianca:        0.92,
		RuleVersion:      "v0.4",
	}
}

// rowByFile indexes the sheet rows by the Arquivo column, skipping the
// header. Listing order is not stable for rows created in the same instant.
func rowByFile(t *testing.T, rows [][]string, name string) []string {
	t.Helper()
	for _, r := range rows[1:] {
		if len(r) > 1 && filepath.Base(r[1]) == name {
			return r
		}
	}
	t.Fatalf("no row for %s in %v", name, rows)
	return nil
}

func TestClassificationsXLSX(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	ok, err := st.CreateJob(ctx, "/notas/a.xml", constants.FormatXML, "hash-a")
	require.NoError(t, err)
	require.NoError(t, st.SaveResult(ctx, ok.ID, exportPayload(), exportClassification()))

	failed, err := st.CreateJob(ctx, "/notas/b.pdf", constants.FormatPDF, "hash-b")
	require.NoError(t, err)
	require.NoError(t, st.UpdateJobStatus(ctx, failed.ID, constants.JobStatusFailed, "Dados da NF-e inválidos"))

	svc := NewService(st, discardLogger())
	raw, err := svc.ClassificationsXLSX(ctx, store.JobFilter{})
	require.NoError(t, err)
	require.NotEmpty(t, raw)

	wb, err := excelize.OpenReader(bytes.NewReader(raw))
	require.NoError(t, err)
	defer func() { _ = wb.Close() }()

	rows, err := wb.GetRows(sheetName)
	require.NoError(t, err)
	require.Len(t, rows, 3, "header plus one row per job")
	assert.Equal(t, "CFOP", rows[0][3])
	assert.Equal(t, "Revisão Humana", rows[0][8])

	classified := rowByFile(t, rows, "a.xml")
	assert.Equal(t, string(constants.JobStatusClassified), classified[2])
	assert.Equal(t, "5102", classified[3])
	assert.Equal(t, "interestadual", classified[4])
	assert.Equal(t, "Clientes", classified[5])
	assert.Equal(t, "Receita de Vendas", classified[6])
	assert.Equal(t, "0.92", classified[7])
	assert.Equal(t, "não", classified[8])
	assert.Equal(t, "321.50", classified[9])
	assert.Equal(t, "ACME Ltda", classified[10])
	assert.Equal(t, "Fulano de Tal", classified[11])

	broken := rowByFile(t, rows, "b.pdf")
	assert.Equal(t, string(constants.JobStatusFailed), broken[2])
	if len(broken) > 3 {
		assert.Empty(t, broken[3], "no CFOP for a job that never parsed")
	}
}

func TestClassificationsXLSX_JanelaDeDatas(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	job, err := st.CreateJob(ctx, "/notas/a.xml", constants.FormatXML, "hash-a")
	require.NoError(t, err)
	require.NoError(t, st.SaveResult(ctx, job.ID, exportPayload(), exportClassification()))

	svc := NewService(st, discardLogger())

	// window starting today picks the job up, From alone implies "until today"
	raw, err := svc.ClassificationsXLSX(ctx, store.JobFilter{From: time.Now().UTC()})
	require.NoError(t, err)
	wb, err := excelize.OpenReader(bytes.NewReader(raw))
	require.NoError(t, err)
	rows, err := wb.GetRows(sheetName)
	require.NoError(t, err)
	_ = wb.Close()
	assert.Len(t, rows, 2)

	// window entirely in the future is empty
	raw, err = svc.ClassificationsXLSX(ctx, store.JobFilter{From: time.Now().UTC().Add(48 * time.Hour)})
	require.NoError(t, err)
	wb, err = excelize.OpenReader(bytes.NewReader(raw))
	require.NoError(t, err)
	rows, err = wb.GetRows(sheetName)
	require.NoError(t, err)
	_ = wb.Close()
	assert.Len(t, rows, 1, "only the header")
}

func TestClassificationsXLSX_SemHistorico(t *testing.T) {
	svc := NewService(nil, discardLogger())

	_, err := svc.ClassificationsXLSX(context.Background(), store.JobFilter{})
	require.Error(t, err)
	assert.Equal(t, common.CodeConfig, common.CodeOf(err))
}
