// Package domain defines the validated NF-e data model: parties, items,
// per-item taxes and the payload root. Construction is a two-step affair,
// Normalize then Validate, so extraction layers can hand over raw field
// values and still get the full enumeration of violations back.
package domain

import (
	"sort"
	"strings"
)

// UF identifies one of the 27 Brazilian federation units.
type UF string

const (
	AC UF = "AC"
	AL UF = "AL"
	AP UF = "AP"
	AM UF = "AM"
	BA UF = "BA"
	CE UF = "CE"
	DF UF = "DF"
	ES UF = "ES"
	GO UF = "GO"
	MA UF = "MA"
	MT UF = "MT"
	MS UF = "MS"
	MG UF = "MG"
	PA UF = "PA"
	PB UF = "PB"
	PR UF = "PR"
	PE UF = "PE"
	PI UF = "PI"
	RJ UF = "RJ"
	RN UF = "RN"
	RS UF = "RS"
	RO UF = "RO"
	RR UF = "RR"
	SC UF = "SC"
	SP UF = "SP"
	SE UF = "SE"
	TO UF = "TO"
)

var allUFs = map[UF]struct{}{
	AC: {}, AL: {}, AP: {}, AM: {}, BA: {}, CE: {}, DF: {},
	ES: {}, GO: {}, MA: {}, MT: {}, MS: {}, MG: {}, PA: {},
	PB: {}, PR: {}, PE: {}, PI: {}, RJ: {}, RN: {}, RS: {},
	RO: {}, RR: {}, SC: {}, SP: {}, SE: {}, TO: {},
}

// Valid reports whether the value is a known federation unit.
func (u UF) Valid() bool {
	_, ok := allUFs[u]
	return ok
}

// AllUFs returns every federation unit code in alphabetical order.
func AllUFs() []string {
	out := make([]string, 0, len(allUFs))
	for u := range allUFs {
		out = append(out, string(u))
	}
	sort.Strings(out)
	return out
}

func (u UF) String() string { return string(u) }

// ParseUF trims and upper-cases s and reports whether the result is a
// known federation unit.
func ParseUF(s string) (UF, bool) {
	u := UF(strings.ToUpper(strings.TrimSpace(s)))
	return u, u.Valid()
}
