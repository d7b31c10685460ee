package pdf

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/brfiscal/nfe-pipeline/internal/domain"
	"github.com/brfiscal/nfe-pipeline/internal/normalize"
	"github.com/brfiscal/nfe-pipeline/internal/ocr"
)

// Anchor neighborhoods, in PDF points. Tuned on DANFE layouts.
const (
	totalRadiusX = 300.0
	totalRadiusY = 15.0
	ufRadiusX    = 300.0
	ufRadiusY    = 40.0
	cfopRadiusX  = 25.0
)

var (
	digitRunRe  = regexp.MustCompile(`\d+`)
	ptbrMoneyRe = regexp.MustCompile(`^\d{1,3}(\.\d{3})*(,\d{2})?$`)
	plainNumRe  = regexp.MustCompile(`^\d+(\.\d+)?$`)
	totalLineRe = regexp.MustCompile(`(?i)(VALOR\s+TOTAL(?:\s+DA\s+NOTA)?|TOTAL\s+DA\s+NFC-?E)[^\d]{0,20}([\d\.\,]+)`)
	ufTokenRe   = regexp.MustCompile(`\b([A-Z]{2})\b`)
)

// Diagnostico is the result of the spatial heuristics pass. Every field is
// best effort: absent anchors leave it zero, never an error.
type Diagnostico struct {
	ChaveAcesso    string           `json:"chave_acesso,omitempty"`
	ValorTotal     *decimal.Decimal `json:"valor_total,omitempty"`
	EmitenteUF     string           `json:"emitente_uf,omitempty"`
	DestinatarioUF string           `json:"destinatario_uf,omitempty"`
	CFOPs          []string         `json:"cfops,omitempty"`
}

// FindChaveAcesso locates the 44-digit access key: first a standalone
// 44-digit run, then the first 44 digits of the digit-stripped text.
func FindChaveAcesso(text string) string {
	for _, run := range digitRunRe.FindAllString(text, -1) {
		if len(run) == 44 {
			return run
		}
	}
	cleaned := normalize.Digits(text)
	if len(cleaned) >= 44 {
		return cleaned[:44]
	}
	return ""
}

// Neighbors returns the words whose center falls inside the rectangle
// around center's own center, same page only. The anchor itself is
// included.
func Neighbors(words []ocr.Word, center ocr.Word, radiusX, radiusY float64) []ocr.Word {
	cx, cy := center.CenterX(), center.CenterY()
	var out []ocr.Word
	for _, w := range words {
		if w.Page != center.Page {
			continue
		}
		if abs(w.CenterX()-cx) <= radiusX && abs(w.CenterY()-cy) <= radiusY {
			out = append(out, w)
		}
	}
	return out
}

// FindValorTotal picks the document total: the largest numeric token near
// any "TOTAL" anchor, falling back to a labeled amount in the plain text.
func FindValorTotal(words []ocr.Word, fallbackText string) *decimal.Decimal {
	var candidates []decimal.Decimal
	for _, w := range words {
		if strings.ToUpper(w.Text) != "TOTAL" {
			continue
		}
		var best *decimal.Decimal
		for _, n := range Neighbors(words, w, totalRadiusX, totalRadiusY) {
			if !looksNumeric(n.Text) {
				continue
			}
			val, err := normalize.ParseDecimalBR(n.Text)
			if err != nil {
				continue
			}
			if best == nil || val.GreaterThan(*best) {
				v := val
				best = &v
			}
		}
		if best != nil {
			candidates = append(candidates, *best)
		}
	}

	if len(candidates) == 0 {
		if m := totalLineRe.FindStringSubmatch(fallbackText); m != nil {
			if val, err := normalize.ParseDecimalBR(m[2]); err == nil {
				return &val
			}
		}
		return nil
	}

	maxVal := candidates[0]
	for _, c := range candidates[1:] {
		if c.GreaterThan(maxVal) {
			maxVal = c
		}
	}
	return &maxVal
}

// FindUFs locates the issuer and recipient state codes near their section
// labels, with a positional text fallback when either label is missing.
func FindUFs(words []ocr.Word, fallbackText string) (emitUF, destUF string) {
	isEmitLabel := func(t string) bool { return t == "EMITENTE" || t == "REMETENTE" }
	isDestLabel := func(t string) bool { return t == "DESTINATÁRIO" || t == "DESTINATARIO" || t == "CONSUMIDOR" }

	for _, w := range words {
		token := strings.ToUpper(w.Text)
		if isEmitLabel(token) && emitUF == "" {
			emitUF = firstValidUF(Neighbors(words, w, ufRadiusX, ufRadiusY))
		}
		if isDestLabel(token) && destUF == "" {
			destUF = firstValidUF(Neighbors(words, w, ufRadiusX, ufRadiusY))
		}
	}

	if emitUF == "" || destUF == "" {
		var found []string
		for _, m := range ufTokenRe.FindAllStringSubmatch(fallbackText, -1) {
			if _, ok := domain.ParseUF(m[1]); ok {
				found = append(found, m[1])
			}
		}
		if len(found) >= 2 {
			if emitUF == "" {
				emitUF = found[0]
			}
			if destUF == "" {
				if found[1] != emitUF {
					destUF = found[1]
				} else if len(found) > 2 {
					destUF = found[2]
				}
			}
		}
	}
	return emitUF, destUF
}

// FindCFOPs collects 4-digit codes aligned under the topmost "CFOP" column
// header, first digit restricted to the common in/out ranges. Order is
// preserved, duplicates dropped.
func FindCFOPs(words []ocr.Word) []string {
	var header *ocr.Word
	for i := range words {
		if strings.ToUpper(words[i].Text) != "CFOP" {
			continue
		}
		w := words[i]
		if header == nil || less(w, *header) {
			header = &w
		}
	}
	if header == nil {
		return nil
	}

	hx := header.CenterX()
	seen := map[string]struct{}{}
	var out []string
	for _, w := range words {
		if w.Page != header.Page {
			continue
		}
		if w.CenterY() <= header.YMax+5 {
			continue
		}
		if abs(w.CenterX()-hx) > cfopRadiusX {
			continue
		}
		s := normalize.Digits(w.Text)
		if len(s) != 4 || !strings.ContainsRune("1256", rune(s[0])) {
			continue
		}
		if _, dup := seen[s]; !dup {
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}

// Analyze runs every heuristic over one word set plus the plain text.
func Analyze(words []ocr.Word, text string) Diagnostico {
	emitUF, destUF := FindUFs(words, text)
	return Diagnostico{
		ChaveAcesso:    FindChaveAcesso(text),
		ValorTotal:     FindValorTotal(words, text),
		EmitenteUF:     emitUF,
		DestinatarioUF: destUF,
		CFOPs:          FindCFOPs(words),
	}
}

func looksNumeric(token string) bool {
	if ptbrMoneyRe.MatchString(token) {
		return true
	}
	return plainNumRe.MatchString(strings.ReplaceAll(strings.ReplaceAll(token, ".", ""), ",", "."))
}

func firstValidUF(neigh []ocr.Word) string {
	for _, n := range neigh {
		if uf, ok := domain.ParseUF(n.Text); ok {
			return string(uf)
		}
	}
	return ""
}

// less orders words by (page, yMin, xMin) to pick the topmost header.
func less(a, b ocr.Word) bool {
	if a.Page != b.Page {
		return a.Page < b.Page
	}
	if a.YMin != b.YMin {
		return a.YMin < b.YMin
	}
	return a.XMin < b.XMin
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
