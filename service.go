// Package nfepipeline extracts structured data from Brazilian NF-e
// documents (XML and DANFE PDF), validates it, and proposes an accounting
// classification from the CFOP mapping table. Low-confidence or unmapped
// documents are flagged for human review; a correction applied through the
// review flow is persisted back into the mapping table so the same CFOP
// never asks twice.
//
// The package is the single public surface: collaborators construct a
// Service from a Config and call its operations, which return plain
// records instead of raising errors for expected document-level failures.
package nfepipeline

import (
	"context"
	"errors"
	"log/slog"

	"github.com/brfiscal/nfe-pipeline/internal/archive"
	"github.com/brfiscal/nfe-pipeline/internal/classify"
	"github.com/brfiscal/nfe-pipeline/internal/common"
	"github.com/brfiscal/nfe-pipeline/internal/domain"
	"github.com/brfiscal/nfe-pipeline/internal/export"
	"github.com/brfiscal/nfe-pipeline/internal/ingest"
	"github.com/brfiscal/nfe-pipeline/internal/llm"
	"github.com/brfiscal/nfe-pipeline/internal/llm/gemini"
	"github.com/brfiscal/nfe-pipeline/internal/llm/openai"
	"github.com/brfiscal/nfe-pipeline/internal/mapping"
	"github.com/brfiscal/nfe-pipeline/internal/ocr"
	"github.com/brfiscal/nfe-pipeline/internal/pdf"
	"github.com/brfiscal/nfe-pipeline/internal/review"
	"github.com/brfiscal/nfe-pipeline/internal/store"
	"github.com/brfiscal/nfe-pipeline/internal/xmlparse"
)

// Aliases so collaborators use this package's names instead of reaching
// into internal packages.
type (
	Config         = common.Config
	AppError       = common.AppError
	Payload        = domain.NFePayload
	Classification = classify.Resultado
	Correction     = review.Correcao
	JobFilter      = store.JobFilter
	Job            = store.Job
	CompanyProfile = store.CompanyProfile
	DirStats       = ingest.DirStats
	Diagnostico    = pdf.Diagnostico
)

// LoadConfig reads an optional YAML file plus environment overrides.
func LoadConfig(path string) (*Config, error) { return common.LoadConfig(path) }

// Service is the wired pipeline. Build it with New; the zero value is not
// usable.
type Service struct {
	cfg      *Config
	logger   *slog.Logger
	xml      *xmlparse.Parser
	pdf      *pdf.Parser
	mappings *mapping.Store
	engine   *classify.Engine
	resolver *review.Resolver
	intake   *ingest.Intake
	store    store.Store
	archive  archive.Archiver
	exporter *export.Service
	provider llm.Provider
}

// New wires the pipeline from configuration. A nil cfg loads defaults plus
// environment overrides; a nil logger gets one built from cfg.Logging.
func New(ctx context.Context, cfg *Config, logger *slog.Logger) (*Service, error) {
	if cfg == nil {
		loaded, err := common.LoadConfig("")
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = common.NewLogger(cfg.Logging)
	}

	provider, err := buildProvider(ctx, cfg.LLM, logger)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		closeQuiet(provider)
		return nil, err
	}
	arch, err := archive.Open(ctx, cfg.Archive, logger)
	if err != nil {
		closeQuiet(provider)
		if st != nil {
			_ = st.Close()
		}
		return nil, err
	}

	mappings := mapping.NewStore(cfg.Mapping.CSVPath, logger)
	engine := classify.NewEngine(mappings, logger)

	ocrx := ocr.NewExtractor(ocr.Config{
		Pdftotext:  cfg.OCR.Pdftotext,
		Pdftoppm:   cfg.OCR.Pdftoppm,
		Tesseract:  cfg.OCR.Tesseract,
		Magick:     cfg.OCR.Magick,
		Language:   cfg.OCR.Language,
		DPI:        cfg.OCR.DPI,
		MaxPages:   cfg.OCR.MaxPages,
		PSM:        cfg.OCR.PSM,
		OEM:        cfg.OCR.OEM,
		Preprocess: cfg.OCR.Preprocess,
	}, logger)

	var llmx *llm.Extractor
	if provider != nil {
		llmx = llm.NewExtractor(provider, logger)
	}

	s := &Service{
		cfg:      cfg,
		logger:   logger,
		xml:      xmlparse.NewParser(logger),
		pdf:      pdf.NewParser(ocrx, llmx, provider != nil, logger),
		mappings: mappings,
		engine:   engine,
		resolver: review.NewResolver(mappings, engine, logger),
		intake:   ingest.NewIntake(st, logger),
		store:    st,
		archive:  arch,
		exporter: export.NewService(st, logger),
		provider: provider,
	}
	logger.Info("pipeline.ready",
		"llm", provider != nil,
		"store", st != nil,
		"archive", arch != nil,
		"mapping_csv", cfg.Mapping.CSVPath)
	return s, nil
}

func buildProvider(ctx context.Context, cfg common.LLMConfig, logger *slog.Logger) (llm.Provider, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	switch cfg.Provider {
	case "", "openai":
		return openai.NewClient(openai.Config{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			Timeout:     cfg.Timeout.Std(),
		}, logger), nil
	case "gemini":
		return gemini.NewClient(ctx, gemini.Config{
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
		}, logger)
	default:
		return nil, common.Errorf(common.CodeConfig, "unknown llm provider %q", cfg.Provider)
	}
}

func closeQuiet(p llm.Provider) {
	if p != nil {
		_ = p.Close()
	}
}

// Close releases the provider and store handles. Safe on a service with
// either disabled.
func (s *Service) Close() error {
	var errs []error
	if s.provider != nil {
		if err := s.provider.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
