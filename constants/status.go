package constants

// JobStatus is the canonical status for rows in extract_job.
type JobStatus string

// Stable values (store these exact strings in DB).
const (
	JobStatusRunning JobStatus = "RUNNING" // in progress
	JobStatusDone    JobStatus = "DONE"    // reconciled and written to the sheet
	JobStatusFailed  JobStatus = "FAILED"  // terminal failure (OCR, undetermined variant, sink)
	JobStatusSkipped JobStatus = "SKIPPED" // unsupported entry, never sent to OCR
)
