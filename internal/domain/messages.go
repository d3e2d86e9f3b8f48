package domain

// One fixed user-facing string per error type. Raw provider text never
// reaches the end user.

var captureMessages = map[CaptureErrorType]string{
	CapturePermissionDenied:   "Microphone access was denied. Allow access and try again.",
	CaptureNoMicrophone:       "No microphone was found. Connect one and try again.",
	CaptureBrowserUnsupported: "Audio recording is not supported on this device.",
	CaptureRecordingError:     "Something went wrong while recording. Please try again.",
	CaptureMaxDurationReached: "The maximum recording length was reached.",
	CaptureRecordingTooShort:  "That recording was very short. Consider recording again.",
}

var uploadMessages = map[UploadErrorType]string{
	UploadNoFile:       "There is no recording to upload.",
	UploadFileTooLarge: "The recording is too large to upload.",
	UploadInvalidType:  "The recording format is not supported.",
	UploadNetworkError: "The upload failed. Check your connection and try again.",
	UploadServerError:  "The upload failed on the server. Please try again.",
	UploadUnauthorized: "You are not authorized to upload. Sign in again.",
}

// CaptureMessage returns the fixed user-facing string for a capture error type.
func CaptureMessage(t CaptureErrorType) string { return captureMessages[t] }

// UploadMessage returns the fixed user-facing string for an upload error type.
func UploadMessage(t UploadErrorType) string { return uploadMessages[t] }

// PermissionMessage returns the user-facing string for a blocked permission
// state, or "" when the state does not block recording.
func PermissionMessage(p PermissionState) string {
	switch p {
	case PermissionDenied:
		return captureMessages[CapturePermissionDenied]
	case PermissionUnsupported:
		return captureMessages[CaptureBrowserUnsupported]
	default:
		return ""
	}
}
