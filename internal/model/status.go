package model

import "fmt"

// JobStatus represents the pipeline stage a job is in
type JobStatus string

const (
	// StatusQueued is the initial state, set on submission
	StatusQueued JobStatus = "queued"

	// StatusFetchingMetadata means the upstream metadata request is in flight
	StatusFetchingMetadata JobStatus = "fetching_metadata"

	// StatusDownloadingCombined means a single audio+video stream is being captured
	StatusDownloadingCombined JobStatus = "downloading_combined"

	// StatusDownloadingVideo means the video-only stream of a pair is being captured
	StatusDownloadingVideo JobStatus = "downloading_video"

	// StatusDownloadingAudio means the audio-only stream of a pair is being captured
	StatusDownloadingAudio JobStatus = "downloading_audio"

	// StatusMerging means the captured streams are being multiplexed
	StatusMerging JobStatus = "merging"

	// StatusCompleted means the artifact is ready
	StatusCompleted JobStatus = "completed"

	// StatusFailed means the job stopped with an error
	StatusFailed JobStatus = "failed"
)

// allowedTransitions lists the successors of every non-terminal status.
// Failed is reachable from each of them and is added by CanTransition.
// An explicitly requested audio-only format skips straight to
// downloading_audio and completes without a merge.
var allowedTransitions = map[JobStatus][]JobStatus{
	StatusQueued:              {StatusFetchingMetadata},
	StatusFetchingMetadata:    {StatusDownloadingCombined, StatusDownloadingVideo, StatusDownloadingAudio},
	StatusDownloadingCombined: {StatusCompleted},
	StatusDownloadingVideo:    {StatusDownloadingAudio},
	StatusDownloadingAudio:    {StatusMerging, StatusCompleted},
	StatusMerging:             {StatusCompleted},
}

// String returns the string representation of JobStatus
func (s JobStatus) String() string {
	return string(s)
}

// IsActive returns true while a stage is running
func (s JobStatus) IsActive() bool {
	switch s {
	case StatusFetchingMetadata, StatusDownloadingCombined, StatusDownloadingVideo,
		StatusDownloadingAudio, StatusMerging:
		return true
	}
	return false
}

// IsFinished returns true for the two terminal states
func (s JobStatus) IsFinished() bool {
	return s == StatusCompleted || s == StatusFailed
}

// IsValid reports whether s is a known status
func (s JobStatus) IsValid() bool {
	if s.IsFinished() {
		return true
	}
	_, ok := allowedTransitions[s]
	return ok
}

// CanTransition reports whether a job may move from one status to another.
func CanTransition(from, to JobStatus) bool {
	if from.IsFinished() || !to.IsValid() {
		return false
	}
	if to == StatusFailed {
		return true
	}
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ValidateTransition returns an error describing a disallowed transition.
func ValidateTransition(from, to JobStatus) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("invalid job status transition %s -> %s", from, to)
	}
	return nil
}
