// Package review applies a human-supplied correction to a classification
// that was flagged for review: validate the record, persist it into the
// mapping table, then rebuild the final result with the flag cleared.
package review

import (
	"log/slog"
	"strings"

	"github.com/brfiscal/nfe-pipeline/constants"
	"github.com/brfiscal/nfe-pipeline/internal/classify"
	"github.com/brfiscal/nfe-pipeline/internal/common"
	"github.com/brfiscal/nfe-pipeline/internal/domain"
	"github.com/brfiscal/nfe-pipeline/internal/mapping"
)

// Correcao is the correction record supplied by the reviewer. CFOP may be
// left empty, in which case the document's own CFOP is used.
type Correcao struct {
	CFOP              string  `json:"cfop,omitempty"`
	Regime            string  `json:"regime"`
	ContaDebito       string  `json:"conta_debito"`
	ContaCredito      string  `json:"conta_credito"`
	JustificativaBase string  `json:"justificativa_base"`
	Confianca         float64 `json:"confianca"`
}

// Resolver turns pending classifications into final ones. Human input is
// trusted once schema-valid; the confidence gate does not reapply.
type Resolver struct {
	mappings *mapping.Store
	engine   *classify.Engine
	logger   *slog.Logger
}

// NewResolver creates a review resolver over the given mapping store and
// classification engine.
func NewResolver(mappings *mapping.Store, engine *classify.Engine, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{mappings: mappings, engine: engine, logger: logger}
}

// Resolve validates the correction, upserts it into the mapping table and
// returns the final classification. Any validation or persistence error
// leaves the pending state untouched: no partial writes, no result.
func (r *Resolver) Resolve(payload *domain.NFePayload, c Correcao) (*classify.Resultado, error) {
	c.CFOP = strings.TrimSpace(c.CFOP)
	if c.CFOP == "" {
		c.CFOP = payload.CFOP
	}
	c.Regime = strings.ToLower(strings.TrimSpace(c.Regime))

	if missing := missingFields(c); len(missing) > 0 {
		r.logger.Info("review.missing_fields", "fields", strings.Join(missing, ", "))
		return nil, common.Errorf(common.CodeReviewInput,
			"Aguardando revisão humana. Campos faltantes: %s", strings.Join(missing, ", "))
	}
	if !isFourDigits(c.CFOP) {
		return nil, common.Errorf(common.CodeReviewInput, "CFOP inválido (espera 4 dígitos).")
	}
	if c.Confianca < 0 || c.Confianca > 1 {
		return nil, common.Errorf(common.CodeReviewInput, "Campo 'confianca' inválido (0.0 a 1.0).")
	}
	if !constants.IsValidRegime(c.Regime) {
		return nil, common.Errorf(common.CodeReviewInput,
			"Campo 'regime' inválido (%s).", strings.Join(constants.Regimes(), ", "))
	}

	row := mapping.Row{
		CFOP:              c.CFOP,
		Regime:            c.Regime,
		ContaDebito:       strings.TrimSpace(c.ContaDebito),
		ContaCredito:      strings.TrimSpace(c.ContaCredito),
		JustificativaBase: strings.TrimSpace(c.JustificativaBase),
		Confianca:         c.Confianca,
	}
	if err := r.mappings.Upsert(row); err != nil {
		r.logger.Error("review.upsert.error", "cfop", row.CFOP, "regime", row.Regime, "error", err)
		return nil, common.NewAppError(common.CodeStore, "Falha ao atualizar CSV", err)
	}

	out := r.engine.FromHuman(payload, row)
	r.logger.Info("review.applied", "cfop", row.CFOP, "regime", row.Regime, "confianca", row.Confianca)
	return out, nil
}

// missingFields lists absent required fields in the persisted column order.
func missingFields(c Correcao) []string {
	var missing []string
	add := func(name, value string) {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}
	add("cfop", c.CFOP)
	add("regime", c.Regime)
	add("conta_debito", c.ContaDebito)
	add("conta_credito", c.ContaCredito)
	add("justificativa_base", c.JustificativaBase)
	if c.Confianca == 0 {
		missing = append(missing, "confianca")
	}
	return missing
}

func isFourDigits(s string) bool {
	if len(s) != 4 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
