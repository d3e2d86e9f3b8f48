package ports

import (
	"context"
	"io"

	"vocalog/internal/domain"
)

// StreamConfig describes the PCM format of a microphone stream (s16le).
type StreamConfig struct {
	SampleRate int
	Channels   int
}

// AudioStream is a live microphone stream. Read returns raw s16le PCM.
type AudioStream interface {
	io.ReadCloser
	Stop() error
}

// MediaDevices acquires microphone streams. Implementations return the
// domain sentinel errors for permission/device/support failures.
type MediaDevices interface {
	GetStream(ctx context.Context, cfg StreamConfig) (AudioStream, error)
}

// Encoder consumes PCM and produces one finished blob on Finalize.
type Encoder interface {
	Write(pcm []byte) error
	Finalize() ([]byte, error)
}

// EncoderFactory describes one entry of the encoding preference list.
type EncoderFactory interface {
	// MimeType is the encoded output type, e.g. "audio/webm;codecs=opus".
	MimeType() string
	// Supported reports whether this encoding can run on the host.
	Supported() bool
	New(cfg StreamConfig) (Encoder, error)
}

// BlobURLAllocator creates playable handles for finished blobs. Every
// created URL must be revoked exactly once.
type BlobURLAllocator interface {
	Create(blob []byte, mimeType string) (string, error)
	Revoke(url string) error
}

// Uploader submits a finished blob and returns its remote location.
type Uploader interface {
	Upload(ctx context.Context, blob []byte, mimeType string, credential string) (domain.UploadResult, error)
}

// Transcriber converts a remote audio URL into a transcript. The mock and
// the live client are substitutable without caller changes.
type Transcriber interface {
	Transcribe(ctx context.Context, audioURL string) (domain.TranscriptionResult, error)
}

// CaptionSession is an active live-caption stream.
type CaptionSession interface {
	SendAudio(chunk []byte) error
	CloseSend() error
	Events() <-chan domain.CaptionEvent
	Wait() error
	Close() error
}

// LiveCaptioner starts streaming caption sessions over a live stream.
type LiveCaptioner interface {
	Start(ctx context.Context, cfg StreamConfig) (CaptionSession, error)
}

// EventSink emits recording state and analysis output to the UI layer.
type EventSink interface {
	StateChanged(state domain.RecordingState)
	AnalysisFrame(frame domain.AnalysisFrame)
	PartialCaption(text string)
	RecordingError(message string)
}
