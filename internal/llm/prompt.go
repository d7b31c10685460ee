package llm

import (
	"strings"

	"github.com/brfiscal/nfe-pipeline/internal/domain"
)

// MaxDocumentChars caps the document text sent to the model.
const MaxDocumentChars = 150000

// BuildSystemPrompt composes the extraction instruction: field-by-field
// guidance, the CPF-xor-CNPJ and CST-xor-CSOSN rules, and output hygiene.
func BuildSystemPrompt() string {
	ufs := strings.Join(domain.AllUFs(), ", ")

	parts := []string{
		"Você é um extrator de dados de DANFE (NF-e PDF) extremamente rigoroso. " +
			"Extraia APENAS os campos solicitados e retorne um JSON VÁLIDO, sem comentários, sem markdown. " +
			"ATENÇÃO: A seção DESTINATÁRIO/REMETENTE contém campos específicos do destinatário. " +
			"NÃO confunda a Inscrição Estadual (IE) do EMITENTE com a IE do DESTINATÁRIO. São campos separados! " +
			"Regras: ",
		"- 'cfop' deve ser string com 4 dígitos.",
		"- 'emitente' é um objeto com dados do emissor:",
		"  - 'xNome': razão social (obrigatório)",
		"  - 'CNPJ': 14 dígitos (obrigatório)",
		"  - 'IE': inscrição estadual (opcional, use null se não encontrar)",
		"  - 'uf': estado do emitente - uma destas UFs: " + ufs + " (obrigatório)",
		"  - 'xMun': município (opcional)",
		"  - 'xBairro': bairro (opcional)",
		"  - 'xLgr': logradouro/rua (opcional)",
		"  - 'nro': número do endereço (opcional)",
		"  - 'CEP': 8 dígitos (opcional)",
		"  - 'fone': telefone (opcional)",
		"- 'destinatario' é um objeto com dados do receptor:",
		"  - 'xNome': razão social ou nome (obrigatório)",
		"  - 'CNPJ': 14 dígitos OU null (pessoa jurídica)",
		"  - 'CPF': 11 dígitos OU null (pessoa física)",
		"  - IMPORTANTE: Deve ter CPF OU CNPJ, nunca ambos! Se for pessoa física, CNPJ=null e CPF com 11 dígitos. Se jurídica, CPF=null e CNPJ com 14 dígitos.",
		"  - 'IE': inscrição estadual do DESTINATÁRIO (opcional, geralmente aparece na seção 'DESTINATÁRIO/REMETENTE' ao lado ou próximo do campo UF)",
		"  - 'indIEDest': indicador IE 1-9 (opcional)",
		"  - 'uf': estado do destinatário - uma destas UFs: " + ufs + " (obrigatório)",
		"  - 'xMun': município (opcional)",
		"  - 'xBairro': bairro (opcional)",
		"  - 'xLgr': logradouro/rua (opcional)",
		"  - 'nro': número do endereço (opcional)",
		"  - 'CEP': 8 dígitos (opcional)",
		"  - 'fone': telefone (opcional)",
		"- 'valor_total' número com ponto decimal.",
		"- 'itens' é uma lista com ao menos 1 item. Cada item deve conter:",
		"  - 'xProd': descrição do produto (obrigatório)",
		"  - 'NCM': código NCM com 8 dígitos (opcional, use null se não encontrar)",
		"  - 'CEST': código CEST com 7 dígitos (opcional, use null se não encontrar)",
		"  - 'vProd': valor total do produto (obrigatório)",
		"  - 'qCom': quantidade comercial (opcional, geralmente aparece na coluna 'Qtde' ou 'Quantidade')",
		"  - 'vUnCom': valor unitário comercial (opcional, geralmente aparece na coluna 'Valor Unit.' ou 'Vlr. Unit.')",
		"  - 'uCom': unidade comercial (opcional, ex: UN, KG, MT, PC - geralmente aparece na coluna 'Unid.' ou 'UN')",
		"  - 'cProd': código do produto (opcional, geralmente aparece na coluna 'Código' ou antes da descrição)",
		"  - 'impostos': objeto com impostos do item (opcional, extrair se disponível no PDF):",
		"    - 'icms': CST ou CSOSN (nunca ambos), orig, vBC, pICMS, vICMS (buscar na tabela de impostos por item)",
		"    - 'ipi': CST, vBC, pIPI, vIPI (opcional, nem todas notas têm IPI)",
		"    - 'pis': CST, vBC, pPIS, vPIS (opcional, muitos PDFs não mostram PIS por item)",
		"    - 'cofins': CST, vBC, pCOFINS, vCOFINS (opcional, muitos PDFs não mostram COFINS por item)",
		"    ATENÇÃO: Muitos PDFs NÃO mostram impostos detalhados por item. Neste caso, deixe 'impostos': null para o item.",
		"    Se o PDF mostrar apenas ICMS e IPI, inclua apenas esses campos e deixe 'pis' e 'cofins' como null ou omita-os.",
		"- 'totais_impostos': objeto com totais de impostos (opcional, buscar no rodapé da nota):",
		"  - 'vBC': Total Base de Cálculo ICMS",
		"  - 'vICMS': Total ICMS",
		"  - 'vIPI': Total IPI",
		"  - 'vPIS': Total PIS",
		"  - 'vCOFINS': Total COFINS",
		"  Se os totais de impostos não estiverem visíveis no PDF, use null.",
		"- Se um valor opcional não existir no documento, use null.",
		"- NUNCA inclua campos extras.",
		"- Saída: APENAS o JSON no formato solicitado.",
	}
	return strings.Join(parts, "\n")
}

// BuildUserPrompt packages the schema hint and the document text. The text
// is truncated to MaxDocumentChars before it gets here.
func BuildUserPrompt(schemaJSON, document string) string {
	var b strings.Builder
	b.WriteString("Documento DANFE (texto extraído a seguir).\n")
	b.WriteString("Por favor, gere o JSON final no formato especificado:\n\n")
	b.WriteString("Esquema (apenas referência de formato): ")
	b.WriteString(schemaJSON)
	b.WriteString("\n\nTexto:\n")
	b.WriteString(document)
	b.WriteString("\n\nResponda somente com o JSON.")
	return b.String()
}
