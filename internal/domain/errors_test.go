package domain

import (
	"strings"
	"testing"
)

func TestCaptureErrorsCarryFixedMessages(t *testing.T) {
	t.Parallel()

	types := []CaptureErrorType{
		CapturePermissionDenied,
		CaptureNoMicrophone,
		CaptureBrowserUnsupported,
		CaptureRecordingError,
		CaptureMaxDurationReached,
		CaptureRecordingTooShort,
	}
	for _, typ := range types {
		err := NewCaptureError(typ)
		if err.Message == "" {
			t.Fatalf("no message for %s", typ)
		}
		if !strings.Contains(err.Error(), string(typ)) {
			t.Fatalf("error text lost the type: %q", err.Error())
		}
	}
}

func TestTranscriptionRetryability(t *testing.T) {
	t.Parallel()

	cases := []struct {
		code      TranscriptionErrorCode
		retryable bool
	}{
		{TranscriptionTimeout, true},
		{TranscriptionNetwork, true},
		{TranscriptionRateLimit, true},
		{TranscriptionAuth, false},
		{TranscriptionInvalidRequest, false},
		{TranscriptionFailed, false},
		{TranscriptionUnknown, false},
	}
	for _, tc := range cases {
		err := NewTranscriptionError(tc.code, "m", nil)
		if err.Retryable != tc.retryable {
			t.Fatalf("%s retryable = %v, want %v", tc.code, err.Retryable, tc.retryable)
		}
	}
}

func TestPermissionMessageOnlyForBlockedStates(t *testing.T) {
	t.Parallel()

	if PermissionMessage(PermissionDenied) == "" || PermissionMessage(PermissionUnsupported) == "" {
		t.Fatalf("blocked states must map to messages")
	}
	if PermissionMessage(PermissionGranted) != "" || PermissionMessage(PermissionPrompt) != "" {
		t.Fatalf("non-blocking states must not produce messages")
	}
}
