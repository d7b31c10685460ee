package domain

import (
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/brfiscal/nfe-pipeline/constants"
	"github.com/brfiscal/nfe-pipeline/internal/common"
	"github.com/brfiscal/nfe-pipeline/internal/normalize"
)

// Operation nature relative to the issuer's state.
const (
	NaturezaInterna       = "interna"
	NaturezaInterestadual = "interestadual"
)

// Cross-check tolerance between quantidade * valor_unitario and valor.
var itemTolerance = decimal.NewFromFloat(0.02)

// NFePayload is the validated result of extracting one NF-e document.
// Build it, call Normalize, then Validate; after that treat it as
// immutable.
type NFePayload struct {
	CFOP         string              `json:"cfop"`
	Emitente     Emitente            `json:"emitente"`
	Destinatario Destinatario        `json:"destinatario"`
	ValorTotal   decimal.Decimal     `json:"valor_total"`
	Itens        []NFeItem           `json:"itens"`
	Totais       *TotaisImpostos     `json:"totais_impostos,omitempty"`
	ChaveAcesso  string              `json:"chave_acesso,omitempty"`
	Fonte        constants.DocFormat `json:"fonte,omitempty"`
}

// Normalize cleans the whole tree in place.
func (p *NFePayload) Normalize() {
	p.CFOP = normalize.CFOP(p.CFOP)
	p.Emitente.Normalize()
	p.Destinatario.Normalize()
	for i := range p.Itens {
		p.Itens[i].Normalize()
	}
	if chave := normalize.Digits(p.ChaveAcesso); len(chave) == 44 {
		p.ChaveAcesso = chave
	} else {
		p.ChaveAcesso = ""
	}
}

// Validate checks every invariant of the payload tree and returns a single
// error enumerating all violations ("campo: mensagem; campo: mensagem").
// The quantity times unit-price cross-check is advisory only and is logged
// through logger, never failed on.
func (p *NFePayload) Validate(logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	v := common.NewValidator()
	v.Field("cfop", p.CFOP, common.Required, common.ExactDigits(4))
	p.Emitente.collect(v)
	p.Destinatario.collect(v)
	v.Field("valor_total", p.ValorTotal, nonNegative)
	if len(p.Itens) == 0 {
		v.Add("itens", "deve conter ao menos um item")
	}
	for i := range p.Itens {
		p.Itens[i].collect(v)
	}
	if p.Totais != nil {
		p.Totais.collect(v)
	}
	p.logInconsistencies(logger)
	return v.Err()
}

// Natureza derives the operation nature from the two state codes.
func (p *NFePayload) Natureza() string {
	if p.Emitente.UF == p.Destinatario.UF {
		return NaturezaInterna
	}
	return NaturezaInterestadual
}

func (p *NFePayload) logInconsistencies(logger *slog.Logger) {
	for i := range p.Itens {
		it := &p.Itens[i]
		if it.Quantidade == nil || it.ValorUnitario == nil {
			continue
		}
		calc := it.Quantidade.Mul(*it.ValorUnitario)
		diff := calc.Sub(it.Valor).Abs()
		if diff.GreaterThan(itemTolerance) {
			logger.Warn("domain.item.cross_check",
				"descricao", it.Descricao,
				"quantidade", it.Quantidade.String(),
				"valor_unitario", it.ValorUnitario.String(),
				"calculado", calc.StringFixed(2),
				"valor", it.Valor.StringFixed(2),
				"diferenca", diff.StringFixed(2))
		}
	}
}
