package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors that device implementations return so the capture layer can
// classify platform failures without inspecting provider-specific text.
var (
	ErrPermissionDenied = errors.New("microphone permission denied")
	ErrNoMicrophone     = errors.New("no microphone device found")
	ErrUnsupported      = errors.New("audio capture is not supported")
)

// CaptureErrorType identifies a recording failure.
type CaptureErrorType string

const (
	CapturePermissionDenied   CaptureErrorType = "permission_denied"
	CaptureNoMicrophone       CaptureErrorType = "no_microphone"
	CaptureBrowserUnsupported CaptureErrorType = "browser_unsupported"
	CaptureRecordingError     CaptureErrorType = "recording_error"
	CaptureMaxDurationReached CaptureErrorType = "max_duration_reached"
	CaptureRecordingTooShort  CaptureErrorType = "recording_too_short"
)

// CaptureError is the session's single current recording error. It is
// replaced wholesale on each failure and cleared on the next attempt.
type CaptureError struct {
	Type    CaptureErrorType
	Message string
}

func (e *CaptureError) Error() string {
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// NewCaptureError builds a CaptureError with the fixed message for its type.
func NewCaptureError(t CaptureErrorType) *CaptureError {
	return &CaptureError{Type: t, Message: captureMessages[t]}
}

// UploadErrorType identifies an upload failure.
type UploadErrorType string

const (
	UploadNoFile       UploadErrorType = "no_file"
	UploadFileTooLarge UploadErrorType = "file_too_large"
	UploadInvalidType  UploadErrorType = "invalid_type"
	UploadNetworkError UploadErrorType = "network_error"
	UploadServerError  UploadErrorType = "server_error"
	UploadUnauthorized UploadErrorType = "unauthorized"
)

// UploadError classifies a failed upload. Either a complete UploadResult or
// an UploadError is produced, never a partial success.
type UploadError struct {
	Type    UploadErrorType
	Message string
	Cause   error
}

func (e *UploadError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *UploadError) Unwrap() error { return e.Cause }

// NewUploadError builds an UploadError with the fixed message for its type.
func NewUploadError(t UploadErrorType, cause error) *UploadError {
	return &UploadError{Type: t, Message: uploadMessages[t], Cause: cause}
}

// TranscriptionErrorCode identifies a transcription failure.
type TranscriptionErrorCode string

const (
	TranscriptionTimeout        TranscriptionErrorCode = "TIMEOUT_ERROR"
	TranscriptionNetwork        TranscriptionErrorCode = "NETWORK_ERROR"
	TranscriptionRateLimit      TranscriptionErrorCode = "RATE_LIMIT_ERROR"
	TranscriptionAuth           TranscriptionErrorCode = "AUTH_ERROR"
	TranscriptionInvalidRequest TranscriptionErrorCode = "INVALID_REQUEST_ERROR"
	TranscriptionFailed         TranscriptionErrorCode = "TRANSCRIPTION_ERROR"
	TranscriptionUnknown        TranscriptionErrorCode = "UNKNOWN_ERROR"
)

// TranscriptionError carries a machine-readable code and the retryable flag
// that drives the retry loop.
type TranscriptionError struct {
	Code      TranscriptionErrorCode
	Message   string
	Retryable bool
	Cause     error
}

func (e *TranscriptionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *TranscriptionError) Unwrap() error { return e.Cause }

// NewTranscriptionError builds a TranscriptionError; retryability is a fixed
// property of the code.
func NewTranscriptionError(code TranscriptionErrorCode, message string, cause error) *TranscriptionError {
	return &TranscriptionError{
		Code:      code,
		Message:   message,
		Retryable: retryableCodes[code],
		Cause:     cause,
	}
}

var retryableCodes = map[TranscriptionErrorCode]bool{
	TranscriptionTimeout:   true,
	TranscriptionNetwork:   true,
	TranscriptionRateLimit: true,
}
