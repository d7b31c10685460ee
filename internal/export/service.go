// Package export renders the processing history as an XLSX report, one row
// per document with its classification verdict.
package export

import (
	"context"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"

	"github.com/brfiscal/nfe-pipeline/internal/common"
	"github.com/brfiscal/nfe-pipeline/internal/store"
)

const sheetName = "Classificações"

// Service produces XLSX bytes out of the history store.
type Service struct {
	store  store.Store
	logger *slog.Logger
}

func NewService(st store.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: st, logger: logger}
}

// ClassificationsXLSX returns a workbook with one row per stored job. The
// filter's date window is normalized to whole days (UTC): a From without a
// To means "from that day through today".
func (s *Service) ClassificationsXLSX(ctx context.Context, filter store.JobFilter) ([]byte, error) {
	start := time.Now()

	if s.store == nil {
		return nil, common.Errorf(common.CodeConfig, "Exportação requer um histórico configurado")
	}

	filter.From = dayStart(filter.From)
	if !filter.From.IsZero() && filter.To.IsZero() {
		filter.To = time.Now().UTC()
	}
	if !filter.To.IsZero() {
		// ListJobs treats To as exclusive, so move it past the last day
		filter.To = dayStart(filter.To).Add(24 * time.Hour)
	}

	jobs, err := s.store.ListJobs(ctx, filter)
	if err != nil {
		return nil, common.NewAppError(common.CodeStore, "Falha ao consultar histórico para exportação", err)
	}

	f := excelize.NewFile()
	if _, err := f.NewSheet(sheetName); err != nil {
		return nil, err
	}
	idx, _ := f.GetSheetIndex(sheetName)
	f.SetActiveSheet(idx)

	headers := []string{
		"Data",
		"Arquivo",
		"Status",
		"CFOP",
		"Natureza",
		"Conta Débito",
		"Conta Crédito",
		"Confiança",
		"Revisão Humana",
		"Valor Total",
		"Emitente",
		"Destinatário",
		"Justificativa",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheetName, cell, h)
	}

	row := 2
	for i := range jobs {
		j := &jobs[i]
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheetName, cell, v)
		}

		write(1, j.CreatedAt.UTC().Format("2006-01-02"))
		write(2, j.SourcePath)
		write(3, string(j.Status))

		if p := j.Payload; p != nil {
			write(4, p.CFOP)
			write(5, p.Natureza())
			write(10, p.ValorTotal.StringFixed(2))
			write(11, p.Emitente.RazaoSocial)
			write(12, p.Destinatario.RazaoSocial)
		}
		if c := j.Classification; c != nil {
			write(6, c.ContaDebito)
			write(7, c.ContaCredito)
			write(8, c.Confianca)
			write(13, truncate(c.Justificativa, 140))
		}
		if j.NeedsReview {
			write(9, "sim")
		} else {
			write(9, "não")
		}

		row++
	}

	_ = f.SetColWidth(sheetName, "A", "A", 12) // date
	_ = f.SetColWidth(sheetName, "B", "B", 50) // file path
	_ = f.SetColWidth(sheetName, "C", "C", 14) // status
	_ = f.SetColWidth(sheetName, "D", "E", 14) // cfop / natureza
	_ = f.SetColWidth(sheetName, "F", "G", 26) // accounts
	_ = f.SetColWidth(sheetName, "H", "J", 12) // confidence / review / total
	_ = f.SetColWidth(sheetName, "K", "L", 32) // parties
	_ = f.SetColWidth(sheetName, "M", "M", 60) // rationale

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, common.WrapError(err, "Falha ao gerar planilha XLSX")
	}

	s.logger.Info("export.xlsx.ok",
		"rows", len(jobs),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func dayStart(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

func truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n-1]) + "…"
}
