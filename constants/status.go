package constants

// JobStatus is the canonical lifecycle status for extraction jobs.
type JobStatus string

// Stable values (stored as-is in the job store and returned to callers).
const (
	JobStatusQueued     JobStatus = "queued"     // accepted, not yet picked up
	JobStatusProcessing JobStatus = "processing" // worker is running the job
	JobStatusDone       JobStatus = "done"       // terminal success
	JobStatusFailed     JobStatus = "failed"     // terminal failure
)

// IsTerminal reports whether a job can never leave this status again.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusDone || s == JobStatusFailed
}
