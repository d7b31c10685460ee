package constants

import "strings"

// Regime is a Brazilian corporate tax regime. It selects which accounting
// mapping row applies to a CFOP.
type Regime string

const (
	RegimeSimples   Regime = "simples"
	RegimePresumido Regime = "presumido"
	RegimeReal      Regime = "real"
	// RegimeWildcard matches any regime in the mapping table.
	RegimeWildcard Regime = "*"
)

var allRegimes = []Regime{
	RegimeSimples,
	RegimePresumido,
	RegimeReal,
	RegimeWildcard,
}

// Regimes returns every accepted regime value, wildcard included.
func Regimes() []string {
	out := make([]string, len(allRegimes))
	for i, r := range allRegimes {
		out[i] = string(r)
	}
	return out
}

// IsValidRegime reports whether s (case-insensitive) is an accepted regime value.
func IsValidRegime(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, r := range allRegimes {
		if s == string(r) {
			return true
		}
	}
	return false
}
