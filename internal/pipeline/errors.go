package pipeline

import (
	"errors"
	"fmt"
)

// Stage names as recorded in Call.error_message and logs.
const (
	StageTranscribe = "transcription"
	StageDiarize    = "diarization"
	StageSentiment  = "sentiment"
	StageSilence    = "silence_analysis"
	StageOvertalk   = "overtalk"
	StagePersist    = "persistence"
)

// ErrCallNotFound means the job referenced a call id the store does not know;
// the job is dropped, never retried.
var ErrCallNotFound = errors.New("call not found")

// StageError wraps a failure from one pipeline stage. Retryable errors are
// transport-level and may succeed on job redelivery; the rest go straight to
// the failed status.
type StageError struct {
	Stage     string
	Err       error
	Retryable bool
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// PersistenceError marks a failed store commit. Always retryable: the job is
// redelivered and restarts from stage 1.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether the worker should requeue the job after this
// error rather than acknowledge it.
func IsRetryable(err error) bool {
	var pe *PersistenceError
	if errors.As(err, &pe) {
		return true
	}
	var se *StageError
	if errors.As(err, &se) {
		return se.Retryable
	}
	return false
}
