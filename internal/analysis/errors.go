// Package analysis runs the conversation analysis pipeline: upload
// submission, poll-driven reconciliation and simulation feedback.
package analysis

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrStorage            = errors.New("artifact storage failed")
	ErrEmptyConversation  = errors.New("simulation has no conversation turns")
	ErrFeedbackInProgress = errors.New("feedback generation already in progress")

	// ErrRecordSubmission means the transcription service accepted a job but
	// its reference could not be stored.
	ErrRecordSubmission = errors.New("record transcription submission failed")
)

// Error details written to failed jobs.
const (
	DetailMissingExternalRef  = "missing external reference"
	DetailTranscriptionFailed = "transcription failed"
	DetailEmptyTranscript     = "transcription completed but returned empty text"
	detailUnknownStatus       = "unknown status: "
	detailSubmissionFailed    = "transcription submission failed: "
	detailRecordRefFailed     = "record external reference failed: "
)

// ValidationError rejects caller input before any state is written.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// SubmissionError reports that a new job could not be handed off to the
// transcription service. The job exists and is FAILED.
type SubmissionError struct {
	JobID uuid.UUID
	Err   error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("submit analysis %s: %v", e.JobID, e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }
