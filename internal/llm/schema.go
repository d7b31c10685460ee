package llm

import (
	"github.com/brfiscal/nfe-pipeline/internal/domain"
)

// BuildNFeJSONSchema returns the JSON-Schema (draft 2020-12 subset) that the
// model is instructed to follow, as a generic map. The same map is compiled
// locally to check responses before they reach the sanitizer.
func BuildNFeJSONSchema() map[string]any {
	ufEnum := ufEnumValues()

	emitente := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"xNome":   map[string]any{"type": "string", "description": "Razão social do emitente"},
			"CNPJ":    map[string]any{"type": "string", "pattern": `^\d{14}$`, "description": "CNPJ (14 dígitos)"},
			"IE":      nullableString("Inscrição Estadual"),
			"uf":      map[string]any{"type": "string", "enum": ufEnum, "description": "UF do emitente"},
			"xMun":    nullableString("Município"),
			"xBairro": nullableString("Bairro"),
			"xLgr":    nullableString("Logradouro (rua/avenida)"),
			"nro":     nullableString("Número"),
			"CEP":     map[string]any{"type": []any{"string", "null"}, "pattern": `^\d{8}$`, "description": "CEP (8 dígitos)"},
			"fone":    nullableString("Telefone"),
		},
		"required":             []any{"xNome", "CNPJ", "uf"},
		"additionalProperties": false,
	}

	destinatario := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"xNome":     map[string]any{"type": "string", "description": "Razão social/nome do destinatário"},
			"CNPJ":      map[string]any{"type": []any{"string", "null"}, "pattern": `^\d{14}$`, "description": "CNPJ (14 dígitos) - pessoa jurídica"},
			"CPF":       map[string]any{"type": []any{"string", "null"}, "pattern": `^\d{11}$`, "description": "CPF (11 dígitos) - pessoa física"},
			"IE":        nullableString("Inscrição Estadual do DESTINATÁRIO (localizada na seção DESTINATÁRIO/REMETENTE, geralmente ao lado do campo UF)"),
			"indIEDest": nullableString("Indicador IE (1=Contribuinte, 2=Isento, 9=Não Contribuinte)"),
			"uf":        map[string]any{"type": "string", "enum": ufEnum, "description": "UF do destinatário"},
			"xMun":      nullableString("Município"),
			"xBairro":   nullableString("Bairro"),
			"xLgr":      nullableString("Logradouro (rua/avenida)"),
			"nro":       nullableString("Número"),
			"CEP":       map[string]any{"type": []any{"string", "null"}, "pattern": `^\d{8}$`, "description": "CEP (8 dígitos)"},
			"fone":      nullableString("Telefone"),
		},
		"required":             []any{"xNome", "uf"},
		"additionalProperties": false,
	}

	item := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"xProd":    map[string]any{"type": "string", "description": "Descrição do produto"},
			"NCM":      map[string]any{"type": []any{"string", "null"}, "pattern": `^\d{8}$`, "description": "Código NCM (8 dígitos)"},
			"CEST":     map[string]any{"type": []any{"string", "null"}, "pattern": `^\d{7}$`, "description": "Código CEST de Substituição Tributária (7 dígitos, se presente)"},
			"vProd":    numberOrString("Valor total do produto"),
			"qCom":     nullableNumber("Quantidade comercial"),
			"vUnCom":   nullableNumber("Valor unitário comercial"),
			"uCom":     nullableString("Unidade comercial (ex: UN, KG, MT)"),
			"cProd":    nullableString("Código do produto"),
			"impostos": itemTaxSchema(),
		},
		"required":             []any{"xProd", "vProd"},
		"additionalProperties": false,
	}

	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"cfop":         map[string]any{"type": "string", "pattern": `^\d{4}$`},
			"emitente":     emitente,
			"destinatario": destinatario,
			"valor_total":  map[string]any{"type": "number"},
			"itens":        map[string]any{"type": "array", "items": item},
			"totais_impostos": map[string]any{
				"type":        []any{"object", "null"},
				"description": "Totais consolidados de impostos (geralmente no rodapé da nota)",
				"properties": map[string]any{
					"vBC":     nullableNumber("Total Base de Cálculo ICMS"),
					"vICMS":   nullableNumber("Total ICMS"),
					"vIPI":    nullableNumber("Total IPI"),
					"vPIS":    nullableNumber("Total PIS"),
					"vCOFINS": nullableNumber("Total COFINS"),
				},
			},
		},
		"required":             []any{"cfop", "emitente", "destinatario", "valor_total", "itens"},
		"additionalProperties": false,
	}
}

func itemTaxSchema() map[string]any {
	return map[string]any{
		"type":        []any{"object", "null"},
		"description": "Impostos do item (ICMS, IPI, PIS, COFINS) - extrair se disponível no PDF",
		"properties": map[string]any{
			"icms": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"CST":   nullableString("CST ICMS (2 dígitos) - para Regime Normal"),
					"CSOSN": nullableString("CSOSN (3 dígitos) - para Simples Nacional. Usar CST OU CSOSN, não ambos"),
					"orig":  nullableString("Origem (0-8)"),
					"vBC":   nullableNumber("Base de Cálculo ICMS"),
					"pICMS": nullableNumber("Alíquota ICMS (%)"),
					"vICMS": nullableNumber("Valor ICMS"),
				},
			},
			"ipi": map[string]any{
				"type": []any{"object", "null"},
				"properties": map[string]any{
					"CST":  nullableString("CST IPI (2 dígitos)"),
					"vBC":  nullableNumber("Base de Cálculo IPI"),
					"pIPI": nullableNumber("Alíquota IPI (%)"),
					"vIPI": nullableNumber("Valor IPI"),
				},
			},
			"pis": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"CST":  nullableString("CST PIS (2 dígitos)"),
					"vBC":  nullableNumber("Base de Cálculo PIS"),
					"pPIS": nullableNumber("Alíquota PIS (%)"),
					"vPIS": nullableNumber("Valor PIS"),
				},
			},
			"cofins": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"CST":     nullableString("CST COFINS (2 dígitos)"),
					"vBC":     nullableNumber("Base de Cálculo COFINS"),
					"pCOFINS": nullableNumber("Alíquota COFINS (%)"),
					"vCOFINS": nullableNumber("Valor COFINS"),
				},
			},
		},
	}
}

func nullableString(desc string) map[string]any {
	return map[string]any{"type": []any{"string", "null"}, "description": desc}
}

// nullableNumber admits number, string or null: DANFE amounts arrive in PT-BR
// notation more often than not and the sanitizer converts them afterwards.
func nullableNumber(desc string) map[string]any {
	return map[string]any{"type": []any{"number", "string", "null"}, "description": desc}
}

func numberOrString(desc string) map[string]any {
	return map[string]any{"type": []any{"number", "string"}, "description": desc}
}

func ufEnumValues() []any {
	ufs := domain.AllUFs()
	out := make([]any, len(ufs))
	for i, u := range ufs {
		out[i] = u
	}
	return out
}
