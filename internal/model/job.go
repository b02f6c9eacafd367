package model

import (
	"strings"
	"time"
)

// Job is one asynchronous request to produce a downloadable artifact.
type Job struct {
	ID                string    `json:"id"`
	Status            JobStatus `json:"status"`
	Progress          int       `json:"progress"` // 0 to 100, never decreases
	SourceURL         string    `json:"url"`
	RequestedFormatID string    `json:"format_id,omitempty"`
	RequestedAudioID  string    `json:"audio_id,omitempty"`
	Title             string    `json:"title,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	CompletedAt       time.Time `json:"completed_at,omitempty"`
	ResultRef         string    `json:"-"` // artifact file name inside the output dir
	ErrorKind         string    `json:"error_kind,omitempty"`
	ErrorDetail       string    `json:"error,omitempty"`
}

// JobUpdate describes a mutation applied by the registry. Nil fields are
// left unchanged.
type JobUpdate struct {
	Status    *JobStatus
	Progress  *int
	Title     *string
	ResultRef *string
	// Failure moves the job to failed and records the error.
	Failure *JobFailure
}

// JobFailure is the error recorded on a failed job.
type JobFailure struct {
	Kind   string
	Detail string
}

// IsExpired reports whether a terminal job finished before cutoff.
func (j Job) IsExpired(cutoff time.Time) bool {
	return j.Status.IsFinished() && !j.CompletedAt.IsZero() && j.CompletedAt.Before(cutoff)
}

// DisplayTitle returns the title, falling back to the URL
func (j Job) DisplayTitle() string {
	if j.Title != "" && !strings.HasPrefix(j.Title, "http") {
		return j.Title
	}
	return j.SourceURL
}
