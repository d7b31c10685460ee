package nfepipeline

import (
	"errors"

	"github.com/brfiscal/nfe-pipeline/internal/common"
)

// Options tunes a single process call. The zero value processes with the
// company profile's regime (or the wildcard row), persists to the store
// when one is configured, and does not archive the source file.
type Options struct {
	// Regime overrides the tax-regime used for mapping lookup. Empty means
	// "resolve from the company profile, fall back to the wildcard row".
	Regime string

	// Archive copies the source document into the configured archive
	// backend after a successful parse.
	Archive bool

	// SkipStore processes without touching the job history even when a
	// store is configured. Dedupe is disabled along with it.
	SkipStore bool
}

// ProcessResult is the outcome of processing one document. OK is false for
// document-level failures (unreadable file, failed validation, LLM output
// rejected); those carry Error and ErrorCode instead of a Go error so
// directory runs keep going.
type ProcessResult struct {
	OK             bool
	JobID          string
	SourcePath     string
	Deduplicated   bool
	Payload        *Payload
	Classification *Classification
	ArchivePath    string
	Error          string
	ErrorCode      string
}

// ClassifyResult is the outcome of classifying an already-extracted payload.
type ClassifyResult struct {
	OK             bool
	Classification *Classification
	Error          string
	ErrorCode      string
}

// DirectoryResult aggregates a directory run.
type DirectoryResult struct {
	OK        bool
	Results   []ProcessResult
	Stats     DirStats
	Error     string
	ErrorCode string
}

// ExportResult carries a generated XLSX report.
type ExportResult struct {
	OK        bool
	Data      []byte
	Error     string
	ErrorCode string
}

// errorRecord flattens an error into the message/code pair the result
// records carry.
func errorRecord(err error) (msg, code string) {
	var ae *common.AppError
	if errors.As(err, &ae) {
		msg = ae.Message
		if ae.Cause != nil {
			msg += ": " + ae.Cause.Error()
		}
		return msg, ae.Code
	}
	return err.Error(), common.CodeOf(err)
}

func failedResult(path string, err error) ProcessResult {
	msg, code := errorRecord(err)
	return ProcessResult{SourcePath: path, Error: msg, ErrorCode: code}
}
