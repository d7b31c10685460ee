package xmlparse

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/brfiscal/nfe-pipeline/constants"
	"github.com/brfiscal/nfe-pipeline/internal/common"
	"github.com/brfiscal/nfe-pipeline/internal/domain"
	"github.com/brfiscal/nfe-pipeline/internal/normalize"
)

// Paths where the fiscal root is found, with and without the protocol
// wrapper.
var infNFePaths = []string{"nfeProc.NFe.infNFe", "NFe.infNFe"}

// ICMS carries one variant sub-node per document; scan the known ones in
// order.
var icmsVariants = []string{
	"ICMS00", "ICMS10", "ICMS20", "ICMS30", "ICMS40", "ICMS51",
	"ICMS60", "ICMS70", "ICMS90",
	"ICMSSN101", "ICMSSN102", "ICMSSN201", "ICMSSN202", "ICMSSN500",
	"ICMSSN900",
}

var pisVariants = []string{"PISAliq", "PISQtde", "PISNT", "PISOutr"}

var cofinsVariants = []string{"COFINSAliq", "COFINSQtde", "COFINSNT", "COFINSOutr"}

// Parser converts NF-e XML files into validated payloads.
type Parser struct {
	logger *slog.Logger
}

func NewParser(logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{logger: logger}
}

// ParseFile reads and parses one NF-e XML document from disk.
func (p *Parser) ParseFile(path string) (*domain.NFePayload, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, common.NewAppError(common.CodeParse,
			fmt.Sprintf("Arquivo XML não encontrado: %s", path), err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		p.logger.Error("xml.parse.read_error", "path", path, "error", err)
		return nil, common.NewAppError(common.CodeParse,
			fmt.Sprintf("Falha ao ler o arquivo XML: %s", path), err)
	}
	return p.Parse(raw)
}

// Parse converts raw NF-e XML into a validated payload. The document is
// parsed as-is first; when the fiscal root cannot be located, namespace
// declarations are stripped and the parse retried once.
func (p *Parser) Parse(raw []byte) (*domain.NFePayload, error) {
	start := time.Now()

	root, err := Parse(raw)
	var inf *Node
	if err == nil {
		inf = locateInfNFe(root)
	}
	if err != nil {
		p.logger.Error("xml.parse.error", "error", err)
		return nil, common.NewAppError(common.CodeParse,
			fmt.Sprintf("Erro irrecuperável ao processar o XML: %v", err), err)
	}
	if inf == nil {
		p.logger.Debug("xml.parse.retry_without_namespaces")
		root, err = Parse(StripNamespaces(raw))
		if err != nil {
			p.logger.Error("xml.parse.error", "error", err)
			return nil, common.NewAppError(common.CodeParse,
				fmt.Sprintf("Erro irrecuperável ao processar o XML: %v", err), err)
		}
		inf = locateInfNFe(root)
	}
	if inf == nil {
		return nil, common.NewAppError(common.CodeParse,
			"Estrutura XML inválida: não foi possível encontrar 'infNFe'",
			common.ErrInvalidInput)
	}

	payload, err := p.build(inf)
	if err != nil {
		return nil, err
	}

	p.logger.Info("xml.parse.ok",
		"cfop", payload.CFOP,
		"emit_uf", payload.Emitente.UF.String(),
		"dest_uf", payload.Destinatario.UF.String(),
		"itens", len(payload.Itens),
		"vtotal", payload.ValorTotal.StringFixed(2),
		"elapsed_ms", time.Since(start).Milliseconds())
	return payload, nil
}

func locateInfNFe(root *Node) *Node {
	for _, path := range infNFePaths {
		if n := root.Get(path); n != nil {
			return n
		}
	}
	return nil
}

// build extracts every mapped field from the fiscal root and validates the
// result, reporting all violations in a single error.
func (p *Parser) build(inf *Node) (*domain.NFePayload, error) {
	b := &builder{logger: p.logger, v: common.NewValidator()}

	detList := inf.All("det")
	p.logger.Debug("xml.parse.items_found", "count", len(detList))

	payload := &domain.NFePayload{
		Fonte:       constants.FormatXML,
		ChaveAcesso: inf.Attr("Id"),
	}
	if len(detList) > 0 {
		payload.CFOP = detList[0].Value("prod.CFOP")
	}
	payload.Emitente = extractEmitente(inf.Child("emit"))
	payload.Destinatario = extractDestinatario(inf.Child("dest"))
	payload.ValorTotal = b.requiredDecimal("valor_total", inf.Get("total.ICMSTot.vNF"))

	for _, det := range detList {
		payload.Itens = append(payload.Itens, b.item(det))
	}
	if tot := inf.Get("total.ICMSTot"); tot != nil {
		payload.Totais = &domain.TotaisImpostos{
			VBCICMS: b.optionalDecimal("v_bc_icms", tot.Child("vBC")),
			VICMS:   b.optionalDecimal("v_icms", tot.Child("vICMS")),
			VIPI:    b.optionalDecimal("v_ipi", tot.Child("vIPI")),
			VPIS:    b.optionalDecimal("v_pis", tot.Child("vPIS")),
			VCOFINS: b.optionalDecimal("v_cofins", tot.Child("vCOFINS")),
		}
	}

	payload.Normalize()

	details := b.v.ErrorMessage()
	if err := payload.Validate(p.logger); err != nil {
		var appErr *common.AppError
		if errors.As(err, &appErr) {
			if details != "" {
				details += "; "
			}
			details += appErr.Message
		}
	}
	if details != "" {
		p.logger.Error("xml.parse.invalid", "details", details)
		return nil, common.NewAppError(common.CodeValidation,
			fmt.Sprintf("Dados da NF-e inválidos: %s", details), common.ErrValidation)
	}
	return payload, nil
}

func extractEmitente(n *Node) domain.Emitente {
	if n == nil {
		return domain.Emitente{}
	}
	e := domain.Emitente{
		RazaoSocial:       n.Value("xNome"),
		CNPJ:              n.Value("CNPJ"),
		InscricaoEstadual: n.Value("IE"),
	}
	if ender := n.Child("enderEmit"); ender != nil {
		e.UF = domain.UF(ender.Value("UF"))
		e.Municipio = ender.Value("xMun")
		e.Bairro = ender.Value("xBairro")
		e.Logradouro = ender.Value("xLgr")
		e.Numero = ender.Value("nro")
		e.CEP = ender.Value("CEP")
		e.Telefone = ender.Value("fone")
	}
	return e
}

func extractDestinatario(n *Node) domain.Destinatario {
	if n == nil {
		return domain.Destinatario{}
	}
	d := domain.Destinatario{
		RazaoSocial:       n.Value("xNome"),
		CNPJ:              n.Value("CNPJ"),
		CPF:               n.Value("CPF"),
		InscricaoEstadual: n.Value("IE"),
		IndicadorIE:       n.Value("indIEDest"),
	}
	if ender := n.Child("enderDest"); ender != nil {
		d.UF = domain.UF(ender.Value("UF"))
		d.Municipio = ender.Value("xMun")
		d.Bairro = ender.Value("xBairro")
		d.Logradouro = ender.Value("xLgr")
		d.Numero = ender.Value("nro")
		d.CEP = ender.Value("CEP")
		d.Telefone = ender.Value("fone")
	}
	return d
}

// builder accumulates field violations while extracting, so number
// conversion failures surface in the same enumeration as model violations.
type builder struct {
	logger *slog.Logger
	v      *common.Validator
	nItem  string
}

func (b *builder) item(det *Node) domain.NFeItem {
	b.nItem = det.Attr("nItem")

	it := domain.NFeItem{}
	if prod := det.Child("prod"); prod != nil {
		it.Descricao = prod.Value("xProd")
		it.CodigoProduto = prod.Value("cProd")
		it.NCM = prod.Value("NCM")
		it.CEST = prod.Value("CEST")
		it.UnidadeComercial = prod.Value("uCom")
		it.Quantidade = b.optionalDecimal("quantidade", prod.Child("qCom"))
		it.ValorUnitario = b.optionalDecimal("valor_unitario", prod.Child("vUnCom"))
		it.Valor = b.requiredDecimal("valor", prod.Child("vProd"))
	} else {
		b.v.Add("valor", "obrigatorio")
	}
	if it.Descricao == "" {
		it.Descricao = "Item"
	}
	it.Impostos = b.impostos(det.Child("imposto"))
	return it
}

func (b *builder) impostos(n *Node) *domain.ImpostosItem {
	if n == nil {
		return nil
	}
	icmsNode := n.Child("ICMS")
	if icmsNode == nil {
		b.warnTax("ICMS", "bloco ausente")
		return nil
	}
	icms := b.icms(icmsNode)
	if icms == nil {
		return nil
	}
	return &domain.ImpostosItem{
		ICMS:   *icms,
		IPI:    b.ipi(n.Child("IPI")),
		PIS:    b.pis(n.Child("PIS")),
		COFINS: b.cofins(n.Child("COFINS")),
	}
}

func (b *builder) icms(n *Node) *domain.ICMS {
	if n == nil {
		return nil
	}
	var variant *Node
	for _, name := range icmsVariants {
		if c := n.Child(name); c != nil {
			variant = c
			break
		}
	}
	if variant == nil {
		b.warnTax("ICMS", "variante desconhecida")
		return nil
	}
	ic := &domain.ICMS{
		CST:   variant.Value("CST"),
		CSOSN: variant.Value("CSOSN"),
		Orig:  variant.Value("orig"),
		ModBC: variant.Value("modBC"),
		VBC:   b.taxDecimal("ICMS.vBC", variant.Child("vBC")),
		PICMS: b.taxDecimal("ICMS.pICMS", variant.Child("pICMS")),
		VICMS: b.taxDecimal("ICMS.vICMS", variant.Child("vICMS")),
	}
	if ic.CST == "" && ic.CSOSN == "" {
		b.warnTax("ICMS", "sem CST ou CSOSN")
		return nil
	}
	return ic
}

func (b *builder) ipi(n *Node) *domain.IPI {
	if n == nil {
		return nil
	}
	variant := n.Child("IPITrib")
	if variant == nil {
		variant = n.Child("IPINT")
	}
	if variant == nil {
		b.warnTax("IPI", "variante desconhecida")
		return nil
	}
	return &domain.IPI{
		CST:  variant.Value("CST"),
		VBC:  b.taxDecimal("IPI.vBC", variant.Child("vBC")),
		PIPI: b.taxDecimal("IPI.pIPI", variant.Child("pIPI")),
		VIPI: b.taxDecimal("IPI.vIPI", variant.Child("vIPI")),
	}
}

func (b *builder) pis(n *Node) *domain.PIS {
	if n == nil {
		return nil
	}
	var variant *Node
	for _, name := range pisVariants {
		if c := n.Child(name); c != nil {
			variant = c
			break
		}
	}
	if variant == nil {
		b.warnTax("PIS", "variante desconhecida")
		return nil
	}
	ps := &domain.PIS{
		CST:  variant.Value("CST"),
		VBC:  b.taxDecimal("PIS.vBC", variant.Child("vBC")),
		PPIS: b.taxDecimal("PIS.pPIS", variant.Child("pPIS")),
		VPIS: b.taxDecimal("PIS.vPIS", variant.Child("vPIS")),
	}
	if ps.CST == "" {
		b.warnTax("PIS", "sem CST")
		return nil
	}
	return ps
}

func (b *builder) cofins(n *Node) *domain.COFINS {
	if n == nil {
		return nil
	}
	var variant *Node
	for _, name := range cofinsVariants {
		if c := n.Child(name); c != nil {
			variant = c
			break
		}
	}
	if variant == nil {
		b.warnTax("COFINS", "variante desconhecida")
		return nil
	}
	cf := &domain.COFINS{
		CST:     variant.Value("CST"),
		VBC:     b.taxDecimal("COFINS.vBC", variant.Child("vBC")),
		PCOFINS: b.taxDecimal("COFINS.pCOFINS", variant.Child("pCOFINS")),
		VCOFINS: b.taxDecimal("COFINS.vCOFINS", variant.Child("vCOFINS")),
	}
	if cf.CST == "" {
		b.warnTax("COFINS", "sem CST")
		return nil
	}
	return cf
}

// requiredDecimal records a violation when the node is missing, empty or
// not a number.
func (b *builder) requiredDecimal(field string, n *Node) decimal.Decimal {
	if n == nil || strings.TrimSpace(n.Text) == "" {
		b.v.Add(field, "obrigatorio")
		return decimal.Zero
	}
	d, err := normalize.ParseDecimalBR(n.Text)
	if err != nil {
		b.v.Add(field, "valor numerico invalido")
		return decimal.Zero
	}
	return d
}

// optionalDecimal records a violation only when a present value is not a
// number.
func (b *builder) optionalDecimal(field string, n *Node) *decimal.Decimal {
	if n == nil || strings.TrimSpace(n.Text) == "" {
		return nil
	}
	d, err := normalize.ParseDecimalBR(n.Text)
	if err != nil {
		b.v.Add(field, "valor numerico invalido")
		return nil
	}
	return &d
}

// taxDecimal is lenient: tax blocks degrade instead of failing the
// document.
func (b *builder) taxDecimal(field string, n *Node) *decimal.Decimal {
	if n == nil || strings.TrimSpace(n.Text) == "" {
		return nil
	}
	d, err := normalize.ParseDecimalBR(n.Text)
	if err != nil {
		b.logger.Warn("xml.parse.tax_value_invalid", "field", field, "value", n.Text, "n_item", b.nItem)
		return nil
	}
	return &d
}

func (b *builder) warnTax(tax, reason string) {
	b.logger.Warn("xml.parse.tax_incomplete", "tax", tax, "reason", reason, "n_item", b.nItem)
}
