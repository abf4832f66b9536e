package domain

import "time"

// JobStatus enumerates portrait job lifecycle states.
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether no further status transition is allowed.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed:
		return true
	case JobStatusQueued, JobStatusProcessing:
		return false
	}
	return false
}

// User-safe failure messages stored on failed jobs. Provider and internal
// errors never reach the caller verbatim.
const (
	MsgGenerationFailed  = "We couldn't generate your portrait. Please try again."
	MsgGenerationTimeout = "Generation timed out. Please try again."
)

// Input image bounds for a single job.
const (
	MinJobImages = 1
	MaxJobImages = 5
)

// Job is one request to transform a fixed set of uploaded photos into a
// styled portrait. PreviewKey and HDKey are populated only together with the
// transition into JobStatusCompleted; ErrorMessage only with JobStatusFailed.
type Job struct {
	ID              string
	UserID          string
	OrderID         string
	UploadIDs       []string
	Style           string
	EditInstruction string
	Status          JobStatus
	PreviewKey      string
	HDKey           string
	ErrorMessage    string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
