// Package classify derives accounting entries from a validated NF-e payload.
//
// Resolution order: exact (CFOP, regime) row in the mapping table, wildcard
// regime row, then a first-digit heuristic. Every result carries a confidence
// score; anything below MinConfidence, or anything produced by the heuristic,
// is flagged for human review instead of silently approved.
package classify

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/brfiscal/nfe-pipeline/internal/domain"
	"github.com/brfiscal/nfe-pipeline/internal/mapping"
)

const (
	// MinConfidence is the floor for automatic approval without review.
	MinConfidence = 0.75

	// RuleVersion tags every result with the rule set that produced it.
	RuleVersion = "v0.4"

	// ReasonHumanApplied marks a result built from a human-supplied mapping.
	ReasonHumanApplied = "Mapeamento informado por revisão humana aplicado e persistido no CSV."
)

// Resultado is the outcome of classifying one NF-e. Built once, never
// mutated afterwards.
type Resultado struct {
	CFOP             string    `json:"cfop"`
	NaturezaOperacao string    `json:"natureza_operacao"`
	ContaDebito      string    `json:"conta_debito"`
	ContaCredito     string    `json:"conta_credito"`
	Justificativa    string    `json:"justificativa"`
	NCMItens         []*string `json:"ncm_itens"`
	Confianca        float64   `json:"confianca"`
	NeedsHumanReview bool      `json:"needs_human_review"`
	ReviewReason     string    `json:"review_reason,omitempty"`
	RuleVersion      string    `json:"rule_version"`
}

// Engine classifies payloads against a mapping store.
type Engine struct {
	mappings *mapping.Store
	logger   *slog.Logger
}

// NewEngine creates a classification engine backed by the given mapping store.
func NewEngine(mappings *mapping.Store, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{mappings: mappings, logger: logger}
}

// Classify resolves the accounting entry for payload under the given tax
// regime (empty means "any"). It never fails for a structurally valid
// payload: an unmapped CFOP degrades to the prefix fallback with the review
// flag raised.
func (e *Engine) Classify(payload *domain.NFePayload, regime string) *Resultado {
	cfop := payload.CFOP
	natureza := payload.Natureza()
	regime = normalizeRegime(regime)

	var (
		debito, credito, base string
		conf                  float64
		needsReview           bool
		reason                string
		fonte                 string
	)

	if row := e.mappings.Match(cfop, regime); row != nil {
		debito, credito, base, conf = row.ContaDebito, row.ContaCredito, row.JustificativaBase, row.Confianca
		fonte = "csv"
		if conf < MinConfidence {
			needsReview = true
			reason = fmt.Sprintf("Confiança abaixo do mínimo (%.2f < %.2f). Revisar CFOP %s (regime=%s).",
				conf, MinConfidence, cfop, regime)
		}
	} else {
		debito, credito, base, conf = fallbackPorPrefixo(cfop)
		fonte = "fallback"
		needsReview = true
		reason = fmt.Sprintf("Mapeamento não encontrado no CSV para CFOP %s (regime=%s). Aplicado fallback por prefixo. Revisão humana obrigatória.",
			cfop, regime)
	}

	out := &Resultado{
		CFOP:             cfop,
		NaturezaOperacao: natureza,
		ContaDebito:      debito,
		ContaCredito:     credito,
		Justificativa:    justificativa(base, natureza, payload),
		NCMItens:         ncmItens(payload.Itens),
		Confianca:        conf,
		NeedsHumanReview: needsReview,
		ReviewReason:     reason,
		RuleVersion:      RuleVersion,
	}

	e.logger.Info("classify.ok",
		"cfop", out.CFOP,
		"natureza", out.NaturezaOperacao,
		"conta_debito", out.ContaDebito,
		"conta_credito", out.ContaCredito,
		"confianca", out.Confianca,
		"regime", regime,
		"fonte", fonte,
		"needs_human_review", out.NeedsHumanReview)
	return out
}

// FromHuman builds the final result from a reviewed mapping row. The row is
// trusted here; validation belongs to the review resolver.
func (e *Engine) FromHuman(payload *domain.NFePayload, row mapping.Row) *Resultado {
	natureza := payload.Natureza()
	return &Resultado{
		CFOP:             row.CFOP,
		NaturezaOperacao: natureza,
		ContaDebito:      row.ContaDebito,
		ContaCredito:     row.ContaCredito,
		Justificativa:    justificativa(row.JustificativaBase, natureza, payload),
		NCMItens:         ncmItens(payload.Itens),
		Confianca:        row.Confianca,
		NeedsHumanReview: false,
		ReviewReason:     ReasonHumanApplied,
		RuleVersion:      RuleVersion,
	}
}

// fallbackPorPrefixo maps a CFOP to generic accounts by its first digit.
func fallbackPorPrefixo(cfop string) (debito, credito, base string, conf float64) {
	switch {
	case strings.HasPrefix(cfop, "1"), strings.HasPrefix(cfop, "2"):
		return "Estoques de Mercadorias", "Fornecedores",
			"Operação de ENTRADA (compra) identificada por CFOP iniciando em 1/2.", 0.65
	case strings.HasPrefix(cfop, "5"), strings.HasPrefix(cfop, "6"):
		return "Clientes", "Receita de Vendas",
			"Operação de SAÍDA (venda) identificada por CFOP iniciando em 5/6.", 0.65
	default:
		return "Conta a Classificar (Débito)", "Conta a Classificar (Crédito)",
			"CFOP fora dos intervalos mínimos do MVP; aplicar regras detalhadas.", 0.50
	}
}

func justificativa(base, natureza string, payload *domain.NFePayload) string {
	return fmt.Sprintf("%s Natureza: %s. Valor total da NF-e considerado para contexto: %s.",
		base, natureza, payload.ValorTotal.StringFixed(2))
}

// ncmItens collects one entry per item, nil when the item has no usable NCM.
func ncmItens(itens []domain.NFeItem) []*string {
	out := make([]*string, len(itens))
	for i := range itens {
		if ncm := itens[i].NCM; ncm != "" {
			out[i] = &ncm
		}
	}
	return out
}

func normalizeRegime(regime string) string {
	regime = strings.ToLower(strings.TrimSpace(regime))
	if regime == "" {
		return "*"
	}
	return regime
}
