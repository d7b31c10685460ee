package llm

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/brfiscal/nfe-pipeline/internal/common"
)

// Extractor drives one provider and guards its output.
type Extractor struct {
	provider Provider
	logger   *slog.Logger
}

func NewExtractor(provider Provider, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{provider: provider, logger: logger}
}

// Close releases the underlying provider.
func (e *Extractor) Close() error {
	if e.provider == nil {
		return nil
	}
	return e.provider.Close()
}

// ExtractRaw sends the document text to the provider and returns the decoded
// JSON object along with the raw bytes. The document is capped at
// MaxDocumentChars. A response that is not a JSON object is a hard error; a
// response that misses the schema hint is only logged, because the sanitizer
// plus domain validation are the authority on rejection.
func (e *Extractor) ExtractRaw(ctx context.Context, document string) (map[string]any, []byte, error) {
	rid := uuid.New().String()
	start := time.Now()

	if len(document) > MaxDocumentChars {
		document = document[:MaxDocumentChars]
	}

	schema := BuildNFeJSONSchema()
	schemaJSON, err := json.Marshal(schema)
	if err != nil {
		return nil, nil, common.NewAppError(common.CodeLLMOutput, "montar esquema JSON", err)
	}
	system := BuildSystemPrompt()
	user := BuildUserPrompt(string(schemaJSON), document)

	e.logger.Info("llm.extract.start",
		"req_id", rid,
		"provider", e.provider.Name(),
		"text_len", len(document),
	)

	content, err := e.provider.Complete(ctx, system, user)
	if err != nil {
		e.logger.Error("llm.extract.provider_error",
			"req_id", rid,
			"provider", e.provider.Name(),
			"error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return nil, nil, err
	}

	content = stripFences(content)
	raw := []byte(content)

	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		e.logger.Error("llm.extract.not_json_object",
			"req_id", rid,
			"raw_bytes", len(raw),
			"error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return nil, raw, common.NewAppError(common.CodeLLMOutput, "LLM não retornou JSON object.", err)
	}

	if err := ValidateJSONAgainstSchema(schema, raw); err != nil {
		e.logger.Warn("llm.extract.schema_mismatch",
			"req_id", rid,
			"error", err,
		)
	}

	e.logger.Info("llm.extract.ok",
		"req_id", rid,
		"provider", e.provider.Name(),
		"fields", len(m),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return m, raw, nil
}

// stripFences removes markdown code fences some models wrap around JSON even
// when told not to.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "```json", "")
	s = strings.ReplaceAll(s, "```", "")
	return strings.TrimSpace(s)
}
