package domain

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/brfiscal/nfe-pipeline/internal/common"
)

var reOrig = regexp.MustCompile(`^[0-8]$`)

// ICMS consolidates the many XML variants (ICMS00..ICMS90 under the normal
// regime, ICMSSN101..ICMSSN900 under Simples Nacional) into one struct.
// Exactly one of CST or CSOSN identifies the tax situation.
type ICMS struct {
	CST   string           `json:"cst,omitempty"`
	CSOSN string           `json:"csosn,omitempty"`
	Orig  string           `json:"orig,omitempty"`
	ModBC string           `json:"mod_bc,omitempty"`
	VBC   *decimal.Decimal `json:"v_bc,omitempty"`
	PICMS *decimal.Decimal `json:"p_icms,omitempty"`
	VICMS *decimal.Decimal `json:"v_icms,omitempty"`
}

func (i *ICMS) Normalize() {
	i.CST = strings.TrimSpace(i.CST)
	i.CSOSN = strings.TrimSpace(i.CSOSN)
	i.Orig = strings.TrimSpace(i.Orig)
	i.ModBC = strings.TrimSpace(i.ModBC)
}

func (i *ICMS) collect(v *common.Validator) {
	if i.CST == "" && i.CSOSN == "" {
		v.Add("icms", "ICMS deve ter CST ou CSOSN")
	}
	if i.CST != "" && i.CSOSN != "" {
		v.Add("icms", "ICMS nao pode ter CST e CSOSN simultaneamente")
	}
	v.Field("cst", i.CST, common.ExactDigits(2))
	v.Field("csosn", i.CSOSN, common.ExactDigits(3))
	v.Field("orig", i.Orig, common.Pattern(reOrig, "deve ser um digito de 0 a 8"))
	v.Field("v_bc", i.VBC, nonNegative)
	v.Field("p_icms", i.PICMS, nonNegative)
	v.Field("v_icms", i.VICMS, nonNegative)
}

func (i *ICMS) Validate() error {
	v := common.NewValidator()
	i.collect(v)
	return v.Err()
}

// IPI covers both the taxed (IPITrib) and untaxed (IPINT) variants, so
// every field is optional.
type IPI struct {
	CST  string           `json:"cst,omitempty"`
	VBC  *decimal.Decimal `json:"v_bc,omitempty"`
	PIPI *decimal.Decimal `json:"p_ipi,omitempty"`
	VIPI *decimal.Decimal `json:"v_ipi,omitempty"`
}

func (i *IPI) Normalize() {
	i.CST = strings.TrimSpace(i.CST)
}

func (i *IPI) collect(v *common.Validator) {
	v.Field("cst", i.CST, common.ExactDigits(2))
	v.Field("v_bc", i.VBC, nonNegative)
	v.Field("p_ipi", i.PIPI, nonNegative)
	v.Field("v_ipi", i.VIPI, nonNegative)
}

// PIS consolidates the PISAliq, PISQtde, PISNT and PISOutr variants. CST is
// mandatory whenever the block appears.
type PIS struct {
	CST  string           `json:"cst"`
	VBC  *decimal.Decimal `json:"v_bc,omitempty"`
	PPIS *decimal.Decimal `json:"p_pis,omitempty"`
	VPIS *decimal.Decimal `json:"v_pis,omitempty"`
}

func (p *PIS) Normalize() {
	p.CST = strings.TrimSpace(p.CST)
}

func (p *PIS) collect(v *common.Validator) {
	v.Field("cst", p.CST, common.Required, common.ExactDigits(2))
	v.Field("v_bc", p.VBC, nonNegative)
	v.Field("p_pis", p.PPIS, nonNegative)
	v.Field("v_pis", p.VPIS, nonNegative)
}

func (p *PIS) Validate() error {
	v := common.NewValidator()
	p.collect(v)
	return v.Err()
}

// COFINS mirrors PIS for the COFINSAliq, COFINSQtde, COFINSNT and
// COFINSOutr variants.
type COFINS struct {
	CST     string           `json:"cst"`
	VBC     *decimal.Decimal `json:"v_bc,omitempty"`
	PCOFINS *decimal.Decimal `json:"p_cofins,omitempty"`
	VCOFINS *decimal.Decimal `json:"v_cofins,omitempty"`
}

func (c *COFINS) Normalize() {
	c.CST = strings.TrimSpace(c.CST)
}

func (c *COFINS) collect(v *common.Validator) {
	v.Field("cst", c.CST, common.Required, common.ExactDigits(2))
	v.Field("v_bc", c.VBC, nonNegative)
	v.Field("p_cofins", c.PCOFINS, nonNegative)
	v.Field("v_cofins", c.VCOFINS, nonNegative)
}

// ImpostosItem aggregates the taxes of a single item. PIS and COFINS stay
// optional because many PDFs omit them per item.
type ImpostosItem struct {
	ICMS   ICMS    `json:"icms"`
	IPI    *IPI    `json:"ipi,omitempty"`
	PIS    *PIS    `json:"pis,omitempty"`
	COFINS *COFINS `json:"cofins,omitempty"`
}

func (t *ImpostosItem) Normalize() {
	t.ICMS.Normalize()
	if t.IPI != nil {
		t.IPI.Normalize()
	}
	if t.PIS != nil {
		t.PIS.Normalize()
	}
	if t.COFINS != nil {
		t.COFINS.Normalize()
	}
}

func (t *ImpostosItem) collect(v *common.Validator) {
	t.ICMS.collect(v)
	if t.IPI != nil {
		t.IPI.collect(v)
	}
	if t.PIS != nil {
		t.PIS.collect(v)
	}
	if t.COFINS != nil {
		t.COFINS.collect(v)
	}
}

func (t *ImpostosItem) Validate() error {
	v := common.NewValidator()
	t.collect(v)
	return v.Err()
}

// TotaisImpostos carries the consolidated totals from the total.ICMSTot
// block.
type TotaisImpostos struct {
	VBCICMS *decimal.Decimal `json:"v_bc_icms,omitempty"`
	VICMS   *decimal.Decimal `json:"v_icms,omitempty"`
	VIPI    *decimal.Decimal `json:"v_ipi,omitempty"`
	VPIS    *decimal.Decimal `json:"v_pis,omitempty"`
	VCOFINS *decimal.Decimal `json:"v_cofins,omitempty"`
}

func (t *TotaisImpostos) collect(v *common.Validator) {
	v.Field("v_bc_icms", t.VBCICMS, nonNegative)
	v.Field("v_icms", t.VICMS, nonNegative)
	v.Field("v_ipi", t.VIPI, nonNegative)
	v.Field("v_pis", t.VPIS, nonNegative)
	v.Field("v_cofins", t.VCOFINS, nonNegative)
}

func (t *TotaisImpostos) Validate() error {
	v := common.NewValidator()
	t.collect(v)
	return v.Err()
}

var (
	nonNegative = common.DecimalMin(decimal.Zero, true)
	positive    = common.DecimalMin(decimal.Zero, false)
)
