package constants

// JobStatus is the canonical status for a processed fiscal document.
type JobStatus string

// Stable values (store these exact strings in the database).
const (
	JobStatusQueued      JobStatus = "QUEUED"       // registered, not yet processed
	JobStatusRunning     JobStatus = "RUNNING"      // extraction in progress
	JobStatusExtracted   JobStatus = "EXTRACTED"    // payload validated, not yet classified
	JobStatusClassified  JobStatus = "CLASSIFIED"   // terminal success
	JobStatusNeedsReview JobStatus = "NEEDS_REVIEW" // waiting on a human correction
	JobStatusFailed      JobStatus = "FAILED"       // terminal failure
)
