package model

import "testing"

func TestJobStatus_IsActive(t *testing.T) {
	tests := []struct {
		status   JobStatus
		expected bool
	}{
		{StatusQueued, false},
		{StatusFetchingMetadata, true},
		{StatusDownloadingCombined, true},
		{StatusDownloadingVideo, true},
		{StatusDownloadingAudio, true},
		{StatusMerging, true},
		{StatusCompleted, false},
		{StatusFailed, false},
	}

	for _, test := range tests {
		result := test.status.IsActive()
		if result != test.expected {
			t.Errorf("JobStatus(%s).IsActive() = %v, expected %v", test.status, result, test.expected)
		}
	}
}

func TestJobStatus_IsFinished(t *testing.T) {
	tests := []struct {
		status   JobStatus
		expected bool
	}{
		{StatusQueued, false},
		{StatusFetchingMetadata, false},
		{StatusMerging, false},
		{StatusCompleted, true},
		{StatusFailed, true},
	}

	for _, test := range tests {
		result := test.status.IsFinished()
		if result != test.expected {
			t.Errorf("JobStatus(%s).IsFinished() = %v, expected %v", test.status, result, test.expected)
		}
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name     string
		from, to JobStatus
		expected bool
	}{
		{"queued to metadata", StatusQueued, StatusFetchingMetadata, true},
		{"queued skips metadata", StatusQueued, StatusDownloadingCombined, false},
		{"metadata to combined", StatusFetchingMetadata, StatusDownloadingCombined, true},
		{"metadata to video", StatusFetchingMetadata, StatusDownloadingVideo, true},
		{"metadata to audio only", StatusFetchingMetadata, StatusDownloadingAudio, true},
		{"video to audio", StatusDownloadingVideo, StatusDownloadingAudio, true},
		{"video skips audio", StatusDownloadingVideo, StatusMerging, false},
		{"audio to merging", StatusDownloadingAudio, StatusMerging, true},
		{"merging to completed", StatusMerging, StatusCompleted, true},
		{"combined to completed", StatusDownloadingCombined, StatusCompleted, true},
		{"any active to failed", StatusMerging, StatusFailed, true},
		{"queued to failed", StatusQueued, StatusFailed, true},
		{"completed is terminal", StatusCompleted, StatusFailed, false},
		{"failed is terminal", StatusFailed, StatusCompleted, false},
		{"backwards", StatusMerging, StatusDownloadingVideo, false},
		{"unknown target", StatusQueued, JobStatus("paused"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanTransition(tt.from, tt.to); got != tt.expected {
				t.Errorf("CanTransition(%s, %s) = %v, expected %v", tt.from, tt.to, got, tt.expected)
			}
			if err := ValidateTransition(tt.from, tt.to); (err == nil) != tt.expected {
				t.Errorf("ValidateTransition(%s, %s) error = %v", tt.from, tt.to, err)
			}
		})
	}
}

func TestJobStatus_String(t *testing.T) {
	if got := StatusDownloadingVideo.String(); got != "downloading_video" {
		t.Errorf("JobStatus.String() = %s, expected downloading_video", got)
	}
}
