// Package llm turns DANFE text into a raw NF-e field map through a chat
// completion provider. It owns the prompt, the JSON-schema hint and the
// response guard; converting the raw map into domain structs is the payload
// package's job.
package llm

import "context"

// Provider is the minimal surface a completion backend must offer. The
// system message carries the extraction rules, the user message the schema
// hint plus document text; the response must be the JSON itself.
type Provider interface {
	Name() string
	Complete(ctx context.Context, system, user string) (string, error)
	Close() error
}
