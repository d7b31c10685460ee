// Package normalize converts locale-formatted numbers and Brazilian fiscal
// identifiers (CNPJ, CPF, CEP, IE, telephone) into canonical forms shared by
// the XML and PDF extraction paths.
package normalize

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Digits strips everything but ASCII digits.
func Digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteByte(byte(r))
		}
	}
	return b.String()
}

// ParseDecimalBR parses a PT-BR formatted number ("1.234,56", "R$ 100,00")
// into a decimal. Dot-decimal input ("1234.56") also parses. The rule follows
// the source documents: when a comma is present it is the decimal separator
// and any dots are thousand separators.
func ParseDecimalBR(s string) (decimal.Decimal, error) {
	t := strings.TrimSpace(s)
	t = strings.ReplaceAll(t, "R$", "")
	t = strings.ReplaceAll(t, " ", "")
	t = strings.ReplaceAll(t, " ", "")
	if t == "" {
		return decimal.Zero, fmt.Errorf("empty numeric value")
	}
	if strings.Contains(t, ",") {
		t = strings.ReplaceAll(t, ".", "")
		t = strings.ReplaceAll(t, ",", ".")
	}
	d, err := decimal.NewFromString(t)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid numeric value %q: %w", s, err)
	}
	return d, nil
}

// DecimalFromAny coerces values as they arrive from XML text nodes or decoded
// LLM JSON (string, float64, json.Number, int) into a decimal. Nil and empty
// strings yield (nil, nil).
func DecimalFromAny(v any) (*decimal.Decimal, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case decimal.Decimal:
		return &t, nil
	case *decimal.Decimal:
		return t, nil
	case string:
		if strings.TrimSpace(t) == "" {
			return nil, nil
		}
		d, err := ParseDecimalBR(t)
		if err != nil {
			return nil, err
		}
		return &d, nil
	case json.Number:
		d, err := decimal.NewFromString(t.String())
		if err != nil {
			return nil, err
		}
		return &d, nil
	case float64:
		d := decimal.NewFromFloat(t)
		return &d, nil
	case int:
		d := decimal.NewFromInt(int64(t))
		return &d, nil
	case int64:
		d := decimal.NewFromInt(t)
		return &d, nil
	default:
		return nil, fmt.Errorf("unsupported numeric type %T", v)
	}
}

// CNPJ strips non-digits. Length is not enforced here; the domain validators
// reject issuer CNPJs that are not exactly 14 digits.
func CNPJ(s string) string {
	return Digits(s)
}

// CNPJOrNone strips non-digits and drops values that are not exactly 14
// digits, used for the recipient where a malformed CNPJ should leave the
// field empty instead of failing validation.
func CNPJOrNone(s string) string {
	d := Digits(s)
	if len(d) != 14 {
		return ""
	}
	return d
}

// CPFOrNone strips non-digits and drops values that are not exactly 11 digits.
func CPFOrNone(s string) string {
	d := Digits(s)
	if len(d) != 11 {
		return ""
	}
	return d
}

// CEPOrNone strips non-digits and drops values that are not exactly 8 digits.
func CEPOrNone(s string) string {
	d := Digits(s)
	if len(d) != 8 {
		return ""
	}
	return d
}

// Telefone strips non-digits; any length is kept.
func Telefone(s string) string {
	return Digits(s)
}

// IE normalizes a state-registration value. Exemption markers ("ISENTO",
// "Isenta", "isento de inscrição") collapse into the canonical "ISENTO"
// sentinel; everything else is upper-cased and trimmed.
func IE(s string) string {
	t := strings.ToUpper(strings.TrimSpace(s))
	if t == "" {
		return ""
	}
	if strings.Contains(t, "ISENT") {
		return "ISENTO"
	}
	return t
}

// NCMOrNone keeps only valid 8-digit commodity codes.
func NCMOrNone(s string) string {
	d := Digits(s)
	if len(d) != 8 {
		return ""
	}
	return d
}

// CESTOrNone keeps only valid 7-digit tax-substitution codes.
func CESTOrNone(s string) string {
	d := Digits(s)
	if len(d) != 7 {
		return ""
	}
	return d
}

// CFOP strips non-digits from an operation code. Length is validated by the
// domain model (exactly 4 digits).
func CFOP(s string) string {
	return Digits(s)
}
