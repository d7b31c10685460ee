package domain

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/brfiscal/nfe-pipeline/internal/common"
	"github.com/brfiscal/nfe-pipeline/internal/normalize"
)

// NFeItem is one product line of an NF-e.
type NFeItem struct {
	Descricao        string           `json:"descricao"`
	CodigoProduto    string           `json:"codigo_produto,omitempty"`
	NCM              string           `json:"ncm,omitempty"`
	CEST             string           `json:"cest,omitempty"`
	UnidadeComercial string           `json:"unidade_comercial,omitempty"`
	Quantidade       *decimal.Decimal `json:"quantidade,omitempty"`
	ValorUnitario    *decimal.Decimal `json:"valor_unitario,omitempty"`
	Valor            decimal.Decimal  `json:"valor"`
	Impostos         *ImpostosItem    `json:"impostos,omitempty"`
}

// Normalize cleans the item in place. An NCM of the wrong shape is dropped
// rather than rejected, so one malformed code never sinks an otherwise valid
// document. CEST keeps only its digits and stays subject to validation.
func (it *NFeItem) Normalize() {
	it.Descricao = strings.TrimSpace(it.Descricao)
	it.CodigoProduto = strings.TrimSpace(it.CodigoProduto)
	it.NCM = normalize.NCMOrNone(it.NCM)
	it.CEST = normalize.Digits(it.CEST)
	it.UnidadeComercial = strings.TrimSpace(it.UnidadeComercial)
	if it.Impostos != nil {
		it.Impostos.Normalize()
	}
}

func (it *NFeItem) collect(v *common.Validator) {
	v.Field("descricao", it.Descricao, common.Required)
	v.Field("ncm", it.NCM, common.ExactDigits(8))
	v.Field("cest", it.CEST, common.ExactDigits(7))
	v.Field("valor", it.Valor, nonNegative)
	v.Field("quantidade", it.Quantidade, positive)
	v.Field("valor_unitario", it.ValorUnitario, positive)
	if it.Impostos != nil {
		it.Impostos.collect(v)
	}
}

func (it *NFeItem) Validate() error {
	v := common.NewValidator()
	it.collect(v)
	return v.Err()
}
