package normalize

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Display formatters for reports. They degrade to the original input (or "-")
// instead of erroring, since report rendering must never fail on dirty data.

// FormatCNPJ renders XX.XXX.XXX/XXXX-XX. Inputs without 14 digits come back
// unchanged.
func FormatCNPJ(cnpj string) string {
	d := Digits(cnpj)
	if len(d) != 14 {
		return cnpj
	}
	return d[:2] + "." + d[2:5] + "." + d[5:8] + "/" + d[8:12] + "-" + d[12:]
}

// FormatCPF renders XXX.XXX.XXX-XX. Inputs without 11 digits come back
// unchanged.
func FormatCPF(cpf string) string {
	d := Digits(cpf)
	if len(d) != 11 {
		return cpf
	}
	return d[:3] + "." + d[3:6] + "." + d[6:9] + "-" + d[9:]
}

// FormatCEP renders XXXXX-XXX, or "-" for empty input.
func FormatCEP(cep string) string {
	if cep == "" {
		return "-"
	}
	d := Digits(cep)
	if len(d) != 8 {
		return cep
	}
	return d[:5] + "-" + d[5:]
}

// FormatTelefone renders (XX) XXXX-XXXX or (XX) XXXXX-XXXX depending on
// length, with a best-effort fallback for other lengths.
func FormatTelefone(tel string) string {
	if tel == "" {
		return "-"
	}
	d := Digits(tel)
	switch len(d) {
	case 10:
		return "(" + d[:2] + ") " + d[2:6] + "-" + d[6:]
	case 11:
		return "(" + d[:2] + ") " + d[2:7] + "-" + d[7:]
	default:
		if len(d) >= 2 {
			return "(" + d[:2] + ") " + d[2:]
		}
		return d
	}
}

// FormatValorBR renders a monetary value as "R$ 1.234,56".
func FormatValorBR(v decimal.Decimal) string {
	return "R$ " + groupBR(v.StringFixed(2))
}

// FormatQuantidadeBR renders a quantity with 4 decimal places in PT-BR
// notation ("1.234,5000"), or "-" for nil.
func FormatQuantidadeBR(v *decimal.Decimal) string {
	if v == nil {
		return "-"
	}
	return groupBR(v.StringFixed(4))
}

// groupBR converts a dot-decimal string ("1234.56") to PT-BR notation with
// thousand separators ("1.234,56").
func groupBR(s string) string {
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	intPart, fracPart, _ := strings.Cut(s, ".")

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	if fracPart != "" {
		b.WriteByte(',')
		b.WriteString(fracPart)
	}
	return b.String()
}
