// Package payload converts the raw field map decoded from LLM output into
// domain structs. FromRaw is total: whatever shape the model returned, it
// produces some candidate payload and leaves rejection to domain
// validation. Conversion problems are collected as field violations so they
// surface in the same enumeration as model violations.
package payload

import (
	"encoding/json"
	"log/slog"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/brfiscal/nfe-pipeline/constants"
	"github.com/brfiscal/nfe-pipeline/internal/common"
	"github.com/brfiscal/nfe-pipeline/internal/domain"
	"github.com/brfiscal/nfe-pipeline/internal/normalize"
)

// Placeholder names used when the model omits a mandatory description.
const (
	emitenteFallback     = "EMITENTE NAO IDENTIFICADO"
	destinatarioFallback = "DESTINATARIO NAO IDENTIFICADO"
	itemFallback         = "Item"

	// cnpjSentinel keeps a recipient without any tax id from failing the
	// CPF-or-CNPJ rule. Degraded record, accepted on purpose.
	cnpjSentinel = "00000000000000"
)

// FromRaw sanitizes the raw map into a payload plus the violations found
// while converting. Callers run Normalize and Validate on the result and
// merge both enumerations.
func FromRaw(raw map[string]any, logger *slog.Logger) (*domain.NFePayload, *common.Validator) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &sanitizer{v: common.NewValidator(), logger: logger}

	p := &domain.NFePayload{Fonte: constants.FormatPDF}
	p.CFOP = sanitizeCFOP(stringOf(raw["cfop"]))
	p.Emitente = s.emitente(mapOf(raw["emitente"]))
	p.Destinatario = s.destinatario(mapOf(raw["destinatario"]))
	p.ValorTotal = s.requiredDecimal("valor_total", raw["valor_total"])
	p.Itens = s.itens(raw["itens"])
	p.Totais = s.totais(mapOf(raw["totais_impostos"]))
	return p, s.v
}

type sanitizer struct {
	v      *common.Validator
	logger *slog.Logger
}

// sanitizeCFOP keeps the first four digits when enough are present;
// otherwise the original value stays so validation reports it.
func sanitizeCFOP(s string) string {
	d := normalize.Digits(s)
	if len(d) >= 4 {
		return d[:4]
	}
	return s
}

func (s *sanitizer) emitente(m map[string]any) domain.Emitente {
	if m == nil {
		return domain.Emitente{RazaoSocial: emitenteFallback}
	}
	e := domain.Emitente{
		RazaoSocial:       strings.TrimSpace(stringOf(m["xNome"])),
		CNPJ:              lastDigits(stringOf(m["CNPJ"]), 14),
		InscricaoEstadual: strings.TrimSpace(stringOf(m["IE"])),
		UF:                domain.UF(stringOf(m["uf"])),
		Municipio:         strings.TrimSpace(stringOf(m["xMun"])),
		Bairro:            strings.TrimSpace(stringOf(m["xBairro"])),
		Logradouro:        strings.TrimSpace(stringOf(m["xLgr"])),
		Numero:            strings.TrimSpace(stringOf(m["nro"])),
		CEP:               normalize.CEPOrNone(stringOf(m["CEP"])),
		Telefone:          normalize.Telefone(stringOf(m["fone"])),
	}
	if e.RazaoSocial == "" {
		e.RazaoSocial = emitenteFallback
	}
	return e
}

func (s *sanitizer) destinatario(m map[string]any) domain.Destinatario {
	if m == nil {
		return domain.Destinatario{RazaoSocial: destinatarioFallback}
	}
	d := domain.Destinatario{
		RazaoSocial:       strings.TrimSpace(stringOf(m["xNome"])),
		InscricaoEstadual: strings.TrimSpace(stringOf(m["IE"])),
		IndicadorIE:       strings.TrimSpace(stringOf(m["indIEDest"])),
		UF:                domain.UF(stringOf(m["uf"])),
		Municipio:         strings.TrimSpace(stringOf(m["xMun"])),
		Bairro:            strings.TrimSpace(stringOf(m["xBairro"])),
		Logradouro:        strings.TrimSpace(stringOf(m["xLgr"])),
		Numero:            strings.TrimSpace(stringOf(m["nro"])),
		CEP:               normalize.CEPOrNone(stringOf(m["CEP"])),
		Telefone:          normalize.Telefone(stringOf(m["fone"])),
	}
	if d.RazaoSocial == "" {
		d.RazaoSocial = destinatarioFallback
	}
	d.CNPJ, d.CPF = s.resolveDocumento(stringOf(m["CNPJ"]), stringOf(m["CPF"]))
	return d
}

// resolveDocumento decides between CNPJ and CPF by digit count. Models mix
// the two fields up often enough that an 11-digit value in the CNPJ slot is
// treated as a CPF. A recipient with no usable digits at all gets the
// all-zero sentinel instead of a guaranteed validation failure.
func (s *sanitizer) resolveDocumento(cnpjRaw, cpfRaw string) (cnpj, cpf string) {
	cnpjDigits := lastDigits(cnpjRaw, 14)
	cpfDigits := lastDigits(cpfRaw, 11)

	switch {
	case len(cnpjDigits) >= 11:
		if len(cnpjDigits) == 11 && cpfDigits == "" {
			return "", cnpjDigits
		}
		return cnpjDigits, ""
	case len(cpfDigits) == 11:
		return "", cpfDigits
	case cnpjDigits != "":
		return cnpjDigits, ""
	case cpfDigits != "":
		return "", cpfDigits
	default:
		s.logger.Warn("payload.sanitize.cnpj_sentinel",
			"motivo", "destinatario sem CPF ou CNPJ aproveitavel")
		return cnpjSentinel, ""
	}
}

func (s *sanitizer) itens(v any) []domain.NFeItem {
	var out []domain.NFeItem
	if list, ok := v.([]any); ok {
		for _, el := range list {
			m, ok := el.(map[string]any)
			if !ok {
				m = map[string]any{}
			}
			out = append(out, s.item(m))
		}
	}
	if len(out) == 0 {
		s.logger.Warn("payload.sanitize.synthetic_item",
			"motivo", "modelo nao retornou itens, criando item de valor zero")
		out = []domain.NFeItem{{Descricao: itemFallback, Valor: decimal.Zero}}
	}
	return out
}

func (s *sanitizer) item(m map[string]any) domain.NFeItem {
	it := domain.NFeItem{
		Descricao:        strings.TrimSpace(stringOf(m["xProd"])),
		CodigoProduto:    strings.TrimSpace(stringOf(m["cProd"])),
		NCM:              normalize.NCMOrNone(stringOf(m["NCM"])),
		CEST:             normalize.Digits(stringOf(m["CEST"])),
		UnidadeComercial: strings.ToUpper(strings.TrimSpace(stringOf(m["uCom"]))),
		Quantidade:       s.lenientDecimal("quantidade", m["qCom"]),
		ValorUnitario:    s.lenientDecimal("valor_unitario", m["vUnCom"]),
		Valor:            s.requiredDecimal("valor", m["vProd"]),
	}
	if it.Descricao == "" {
		it.Descricao = itemFallback
	}
	it.Impostos = s.impostos(mapOf(m["impostos"]))
	return it
}

func (s *sanitizer) impostos(m map[string]any) *domain.ImpostosItem {
	if m == nil {
		return nil
	}
	out := &domain.ImpostosItem{}
	if icms := mapOf(m["icms"]); icms != nil {
		out.ICMS = domain.ICMS{
			CST:   strings.TrimSpace(stringOf(icms["CST"])),
			CSOSN: strings.TrimSpace(stringOf(icms["CSOSN"])),
			Orig:  strings.TrimSpace(stringOf(icms["orig"])),
			VBC:   s.lenientDecimal("ICMS.vBC", icms["vBC"]),
			PICMS: s.lenientDecimal("ICMS.pICMS", icms["pICMS"]),
			VICMS: s.lenientDecimal("ICMS.vICMS", icms["vICMS"]),
		}
	}
	if ipi := mapOf(m["ipi"]); ipi != nil {
		out.IPI = &domain.IPI{
			CST:  strings.TrimSpace(stringOf(ipi["CST"])),
			VBC:  s.lenientDecimal("IPI.vBC", ipi["vBC"]),
			PIPI: s.lenientDecimal("IPI.pIPI", ipi["pIPI"]),
			VIPI: s.lenientDecimal("IPI.vIPI", ipi["vIPI"]),
		}
	}
	if pis := mapOf(m["pis"]); pis != nil {
		out.PIS = &domain.PIS{
			CST:  strings.TrimSpace(stringOf(pis["CST"])),
			VBC:  s.lenientDecimal("PIS.vBC", pis["vBC"]),
			PPIS: s.lenientDecimal("PIS.pPIS", pis["pPIS"]),
			VPIS: s.lenientDecimal("PIS.vPIS", pis["vPIS"]),
		}
	}
	if cofins := mapOf(m["cofins"]); cofins != nil {
		out.COFINS = &domain.COFINS{
			CST:     strings.TrimSpace(stringOf(cofins["CST"])),
			VBC:     s.lenientDecimal("COFINS.vBC", cofins["vBC"]),
			PCOFINS: s.lenientDecimal("COFINS.pCOFINS", cofins["pCOFINS"]),
			VCOFINS: s.lenientDecimal("COFINS.vCOFINS", cofins["vCOFINS"]),
		}
	}
	return out
}

func (s *sanitizer) totais(m map[string]any) *domain.TotaisImpostos {
	if m == nil {
		return nil
	}
	t := &domain.TotaisImpostos{
		VBCICMS: s.lenientDecimal("totais.vBC", m["vBC"]),
		VICMS:   s.lenientDecimal("totais.vICMS", m["vICMS"]),
		VIPI:    s.lenientDecimal("totais.vIPI", m["vIPI"]),
		VPIS:    s.lenientDecimal("totais.vPIS", m["vPIS"]),
		VCOFINS: s.lenientDecimal("totais.vCOFINS", m["vCOFINS"]),
	}
	if t.VBCICMS == nil && t.VICMS == nil && t.VIPI == nil && t.VPIS == nil && t.VCOFINS == nil {
		return nil
	}
	return t
}

// requiredDecimal records a violation when the value is missing or not a
// number, mirroring the mandatory-amount handling of the XML path.
func (s *sanitizer) requiredDecimal(field string, v any) decimal.Decimal {
	d, err := normalize.DecimalFromAny(v)
	if err != nil {
		s.v.Add(field, "valor numerico invalido")
		return decimal.Zero
	}
	if d == nil {
		s.v.Add(field, "obrigatorio")
		return decimal.Zero
	}
	return *d
}

// lenientDecimal drops unparseable optional amounts silently; the model
// invents noise in these columns too often to fail the document over it.
func (s *sanitizer) lenientDecimal(field string, v any) *decimal.Decimal {
	d, err := normalize.DecimalFromAny(v)
	if err != nil {
		s.logger.Debug("payload.sanitize.value_invalid", "field", field)
		return nil
	}
	return d
}

func stringOf(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}

func mapOf(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

// lastDigits strips non-digits and keeps the trailing n digits when more
// are present, the usual shape of "CNPJ: 14.200.166/0001-87" noise.
func lastDigits(s string, n int) string {
	d := normalize.Digits(s)
	if len(d) >= n {
		return d[len(d)-n:]
	}
	return d
}
