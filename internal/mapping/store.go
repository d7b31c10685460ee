// Package mapping persists the CFOP→accounts lookup table as a CSV file.
// The whole table is cached in memory on first read and the cache is
// invalidated on every write, so the classification engine always sees the
// latest human-approved rows without re-reading the file per document.
package mapping

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	gocache "github.com/patrickmn/go-cache"

	"github.com/brfiscal/nfe-pipeline/internal/common"
)

// Header of the persisted CSV, in exactly this column order.
var Header = []string{"cfop", "regime", "conta_debito", "conta_credito", "justificativa_base", "confianca"}

const (
	cacheKey = "cfop_rows"

	// defaultConfidence applies to rows whose confidence column is empty or
	// unparseable.
	defaultConfidence = 0.70
)

// Row is one persisted (CFOP, regime) mapping. Regime "*" matches any
// regime.
type Row struct {
	CFOP              string
	Regime            string
	ContaDebito       string
	ContaCredito      string
	JustificativaBase string
	Confianca         float64
}

// Normalize trims every field and lowercases the regime, defaulting to the
// wildcard when empty.
func (r *Row) Normalize() {
	r.CFOP = strings.TrimSpace(r.CFOP)
	r.Regime = strings.ToLower(strings.TrimSpace(r.Regime))
	if r.Regime == "" {
		r.Regime = "*"
	}
	r.ContaDebito = strings.TrimSpace(r.ContaDebito)
	r.ContaCredito = strings.TrimSpace(r.ContaCredito)
	r.JustificativaBase = strings.TrimSpace(r.JustificativaBase)
}

// Store reads and writes the mapping CSV with an invalidate-on-write cache.
// Reads are safe for concurrent use; the design assumes a single writer at
// a time, which a human-review workload satisfies.
type Store struct {
	path   string
	cache  *gocache.Cache
	mu     sync.Mutex
	logger *slog.Logger
}

func NewStore(path string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		path:   path,
		cache:  gocache.New(gocache.NoExpiration, 0),
		logger: logger,
	}
}

// Path returns the CSV file location.
func (s *Store) Path() string { return s.path }

// Load returns every row of the table, reading the file only on cache
// misses. A missing or unreadable file degrades to an empty table with a
// logged warning so classification can fall back instead of failing.
func (s *Store) Load() []Row {
	if cached, found := s.cache.Get(cacheKey); found {
		return cached.([]Row)
	}
	rows := s.readFile()
	s.cache.Set(cacheKey, rows, gocache.NoExpiration)
	return rows
}

// Invalidate discards the cached table.
func (s *Store) Invalidate() {
	s.cache.Delete(cacheKey)
}

// Match resolves (cfop, regime) to a row: exact regime first, wildcard
// second, nil when neither exists. The regime defaults to the wildcard when
// empty.
func (s *Store) Match(cfop, regime string) *Row {
	rows := s.Load()
	if len(rows) == 0 {
		return nil
	}
	regime = strings.ToLower(strings.TrimSpace(regime))
	if regime == "" {
		regime = "*"
	}

	for i := range rows {
		if rows[i].CFOP == cfop && rows[i].Regime == regime {
			return s.withJustificativa(&rows[i])
		}
	}
	for i := range rows {
		if rows[i].CFOP == cfop && rows[i].Regime == "*" {
			return s.withJustificativa(&rows[i])
		}
	}
	return nil
}

// withJustificativa copies the row, synthesizing a base justification when
// the column is empty.
func (s *Store) withJustificativa(r *Row) *Row {
	out := *r
	if out.JustificativaBase == "" {
		out.JustificativaBase = fmt.Sprintf("CFOP %s (regime=%s)", out.CFOP, out.Regime)
	}
	return &out
}

// Upsert inserts or replaces the row with the same (CFOP, regime) key and
// rewrites the whole file. Every textual field is required. The cache is
// invalidated only after a successful write; a failed write leaves the
// stale-but-usable cache in place.
func (s *Store) Upsert(row Row) error {
	row.Normalize()
	if err := s.validate(row); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rows := s.readFile()
	updated := false
	for i := range rows {
		if rows[i].CFOP == row.CFOP && rows[i].Regime == row.Regime {
			rows[i] = row
			updated = true
			break
		}
	}
	if !updated {
		rows = append(rows, row)
	}

	if err := s.writeFile(rows); err != nil {
		return common.NewAppError(common.CodeStore,
			fmt.Sprintf("gravar mapeamento CFOP %s", s.path), err)
	}

	s.Invalidate()
	s.logger.Info("mapping.upsert.ok", "cfop", row.CFOP, "regime", row.Regime, "path", s.path)
	return nil
}

func (s *Store) validate(row Row) error {
	missing := make([]string, 0, 5)
	for name, value := range map[string]string{
		"cfop":               row.CFOP,
		"regime":             row.Regime,
		"conta_debito":       row.ContaDebito,
		"conta_credito":      row.ContaCredito,
		"justificativa_base": row.JustificativaBase,
	} {
		if value == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		// Map iteration order is random; report the first field by header order.
		for _, h := range Header {
			for _, m := range missing {
				if h == m {
					return common.Errorf(common.CodeReviewInput, "Campo obrigatório ausente: %s", h)
				}
			}
		}
	}
	return nil
}

func (s *Store) readFile() []Row {
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.logger.Warn("mapping.load.missing_file", "path", s.path)
		} else {
			s.logger.Warn("mapping.load.error", "path", s.path, "error", err)
		}
		return nil
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		s.logger.Warn("mapping.load.error", "path", s.path, "error", err)
		return nil
	}
	if len(records) < 2 {
		return nil
	}

	cols := columnIndex(records[0])
	rows := make([]Row, 0, len(records)-1)
	for _, rec := range records[1:] {
		row := Row{
			CFOP:              field(rec, cols, "cfop"),
			Regime:            field(rec, cols, "regime"),
			ContaDebito:       field(rec, cols, "conta_debito"),
			ContaCredito:      field(rec, cols, "conta_credito"),
			JustificativaBase: field(rec, cols, "justificativa_base"),
		}
		row.Normalize()
		row.Confianca = s.parseConfidence(field(rec, cols, "confianca"), row.CFOP)
		if row.CFOP == "" {
			continue
		}
		rows = append(rows, row)
	}
	s.logger.Info("mapping.load.ok", "path", s.path, "rows", len(rows))
	return rows
}

func (s *Store) parseConfidence(value, cfop string) float64 {
	value = strings.TrimSpace(value)
	if value == "" {
		return defaultConfidence
	}
	conf, err := strconv.ParseFloat(value, 64)
	if err != nil {
		s.logger.Warn("mapping.load.bad_confidence", "cfop", cfop, "value", value)
		return defaultConfidence
	}
	return conf
}

func (s *Store) writeFile(rows []Row) error {
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.Create(s.path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(Header); err != nil {
		return err
	}
	for _, row := range rows {
		rec := []string{
			row.CFOP,
			row.Regime,
			row.ContaDebito,
			row.ContaCredito,
			row.JustificativaBase,
			// -1 keeps every represented decimal digit, so 0.85 survives the
			// round trip as exactly "0.85".
			strconv.FormatFloat(row.Confianca, 'f', -1, 64),
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func columnIndex(header []string) map[string]int {
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	return cols
}

func field(rec []string, cols map[string]int, name string) string {
	i, ok := cols[name]
	if !ok || i >= len(rec) {
		return ""
	}
	return rec[i]
}
