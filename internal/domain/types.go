package domain

// RecordingState models the user-facing recording lifecycle.
type RecordingState string

const (
	RecordingStateIdle                 RecordingState = "idle"
	RecordingStateRequestingPermission RecordingState = "requesting_permission"
	RecordingStateRecording            RecordingState = "recording"
	RecordingStateStopped              RecordingState = "stopped"
)

// PermissionState tracks the microphone permission outcome.
type PermissionState string

const (
	PermissionPrompt      PermissionState = "prompt"
	PermissionGranted     PermissionState = "granted"
	PermissionDenied      PermissionState = "denied"
	PermissionUnsupported PermissionState = "unsupported"
)

// AnalysisFrame is one frequency/time-domain snapshot produced by the
// analyzer. Both slices hold fftSize/2 bytes and are recomputed every frame.
type AnalysisFrame struct {
	FrequencyData []byte
	TimeData      []byte
}

// UploadResult is the canonical remote location of an uploaded blob.
type UploadResult struct {
	URL  string `json:"url"`
	Path string `json:"path"`
	Size int64  `json:"size"`
}

// Word is a normalized per-word transcript entry.
type Word struct {
	Text       string  `json:"text"`
	StartMs    int     `json:"startMs"`
	EndMs      int     `json:"endMs"`
	Confidence float64 `json:"confidence"`
}

// TranscriptionResult is the final transcript with aggregate confidence.
type TranscriptionResult struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Words      []Word  `json:"words"`
}

// CaptionEvent is incremental text from a live caption session.
type CaptionEvent struct {
	Text  string `json:"text"`
	Final bool   `json:"final"`
}
