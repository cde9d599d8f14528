package ingest

import "fmt"

// SyncErrorCode represents specific sync failure types.
type SyncErrorCode string

const (
	ErrConnectionNotFound  SyncErrorCode = "CONNECTION_NOT_FOUND"
	ErrProviderUnavailable SyncErrorCode = "PROVIDER_UNAVAILABLE"
	ErrCredentialsExpired  SyncErrorCode = "CREDENTIALS_EXPIRED"
	ErrAuthDeclined        SyncErrorCode = "AUTHORIZATION_DECLINED"
)

// SyncError is a structured error for sync failures. Per-item processing
// errors never become SyncErrors; they are logged and counted as skips.
type SyncError struct {
	Code      SyncErrorCode
	Message   string
	Retryable bool
	Cause     error
}

func (e *SyncError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *SyncError) Unwrap() error {
	return e.Cause
}

// IsRetryable returns whether this error is retryable.
func (e *SyncError) IsRetryable() bool {
	return e.Retryable
}
