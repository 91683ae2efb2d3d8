package services

import (
	"errors"
	"fmt"
	"time"

	"healthcompanion/internal/models"
)

var (
	ErrActiveUsersUnavailable = errors.New("active user list unavailable")
	ErrRunDeadline            = errors.New("pipeline run deadline exceeded")
	ErrUnsupportedKind        = errors.New("unsupported artifact kind")
	ErrArtifactNotFound       = errors.New("artifact not found")
	ErrInvalidArtifact        = errors.New("artifact outside store root")
	ErrMalformedAnalysis      = errors.New("analyzer returned malformed output")
	ErrRetriesExhausted       = errors.New("retries exhausted")
	ErrDispatchFailed         = errors.New("notification dispatch failed")
	ErrMergeConflict          = errors.New("daily summary merge kept conflicting")
	ErrInvalidPreferences     = errors.New("invalid preferences")
)

// Stage names a pipeline step for errors, events and metrics.
type Stage string

const (
	StageReceive     Stage = "receive"
	StagePreferences Stage = "preferences"
	StageAnalyze     Stage = "analyze"
	StageHistory     Stage = "history"
	StageInsight     Stage = "insight"
	StageAlert       Stage = "alert"
	StageAggregate   Stage = "aggregate"
	StageNotify      Stage = "notify"
	StageListUsers   Stage = "list_users"
)

// RunError carries enough context to report one failed run without
// affecting any other.
type RunError struct {
	UserID string
	Date   time.Time
	Stage  Stage
	Cause  error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("run %s/%s failed at %s: %v", e.UserID, models.FormatDate(e.Date), e.Stage, e.Cause)
}

func (e *RunError) Unwrap() error {
	return e.Cause
}

// retryableError marks a collaborator failure as transient.
type retryableError struct {
	err error
}

func (e retryableError) Error() string { return e.err.Error() }
func (e retryableError) Unwrap() error { return e.err }

// Transient wraps err so retry loops treat it as worth another attempt.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return retryableError{err: err}
}

func IsRetryable(err error) bool {
	var retryable retryableError
	return errors.As(err, &retryable)
}
