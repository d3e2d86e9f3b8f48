package capture

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"vocalog/internal/domain"
	"vocalog/internal/ports"
)

// Config controls recording behavior.
type Config struct {
	Stream ports.StreamConfig
	// MinDuration below which a finished recording is flagged
	// recording_too_short. The blob is still finalized.
	MinDuration time.Duration
	// MaxDuration at which an active recording is stopped automatically.
	MaxDuration time.Duration
	// TickInterval is the wall-clock length of one elapsed second. Tests
	// shrink it; production leaves the default.
	TickInterval time.Duration
	ChunkSize    int
}

func (c *Config) applyDefaults() {
	if c.Stream.SampleRate <= 0 {
		c.Stream.SampleRate = 16000
	}
	if c.Stream.Channels <= 0 {
		c.Stream.Channels = 1
	}
	if c.MinDuration <= 0 {
		c.MinDuration = 2 * time.Second
	}
	if c.MaxDuration <= 0 {
		c.MaxDuration = 300 * time.Second
	}
	if c.TickInterval <= 0 {
		c.TickInterval = time.Second
	}
	if c.ChunkSize < 256 {
		c.ChunkSize = 4096
	}
}

// Session is an immutable snapshot of the recording session.
type Session struct {
	IsRecording    bool
	IsPaused       bool
	ElapsedSeconds int
	Blob           []byte
	BlobURL        string
	MimeType       string
	Permission     domain.PermissionState
	Err            *domain.CaptureError
}

// Recorder owns the hardware stream and the encoder. At most one stream and
// one encoder are open at a time; starting over tears the previous pair
// down first.
type Recorder struct {
	devices  ports.MediaDevices
	encoders []ports.EncoderFactory
	urls     ports.BlobURLAllocator
	log      zerolog.Logger
	cfg      Config

	mu         sync.Mutex
	sess       Session
	active     *activeCapture
	onSelfStop func()
}

type activeCapture struct {
	stream     ports.AudioStream
	ownsStream bool
	enc        ports.Encoder
	mimeType   string

	tickStop chan struct{}
	tickDone chan struct{}
	pumpDone chan struct{}
}

func NewRecorder(
	devices ports.MediaDevices,
	encoders []ports.EncoderFactory,
	urls ports.BlobURLAllocator,
	log zerolog.Logger,
	cfg Config,
) *Recorder {
	cfg.applyDefaults()
	return &Recorder{
		devices:  devices,
		encoders: encoders,
		urls:     urls,
		log:      log.With().Str("component", "capture").Logger(),
		cfg:      cfg,
		sess:     Session{Permission: domain.PermissionPrompt},
	}
}

// SetSelfStopHandler registers a callback invoked after the recorder stops
// itself, at MaxDuration or on a fatal encoder failure, so the owning layer
// can finish its own teardown.
func (r *Recorder) SetSelfStopHandler(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onSelfStop = fn
}

// Session returns a snapshot of the current session state.
func (r *Recorder) Session() Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sess
}

// Start requests microphone access and begins recording. The acquired
// stream is owned by the recorder and released on Stop/Reset.
func (r *Recorder) Start(ctx context.Context) error {
	stream, err := r.devices.GetStream(ctx, r.cfg.Stream)
	if err != nil {
		capErr, permission := ClassifyStreamError(err)
		r.mu.Lock()
		r.sess.Err = capErr
		if permission != "" {
			r.sess.Permission = permission
		}
		r.mu.Unlock()
		r.log.Warn().Err(err).Str("type", string(capErr.Type)).Msg("stream acquisition failed")
		return capErr
	}
	return r.startWithStream(stream, true)
}

// StartWithStream begins recording against an externally acquired stream,
// typically one branch of a shared tee. The caller keeps release
// responsibility for the hardware handle.
func (r *Recorder) StartWithStream(stream ports.AudioStream) error {
	return r.startWithStream(stream, false)
}

func (r *Recorder) startWithStream(stream ports.AudioStream, owns bool) error {
	// Serialize restarts: the previous encoder and stream are fully torn
	// down before the new pair is constructed.
	r.mu.Lock()
	previous := r.active
	r.mu.Unlock()
	if previous != nil {
		r.Stop()
	}

	factory := r.pickEncoder()
	if factory == nil {
		capErr := domain.NewCaptureError(domain.CaptureBrowserUnsupported)
		r.mu.Lock()
		r.sess.Err = capErr
		r.sess.Permission = domain.PermissionUnsupported
		r.mu.Unlock()
		r.releaseStream(stream, owns)
		return capErr
	}

	enc, err := factory.New(r.cfg.Stream)
	if err != nil {
		capErr := domain.NewCaptureError(domain.CaptureRecordingError)
		r.mu.Lock()
		r.sess.Err = capErr
		r.mu.Unlock()
		r.releaseStream(stream, owns)
		r.log.Error().Err(err).Str("mime", factory.MimeType()).Msg("encoder construction failed")
		return capErr
	}

	active := &activeCapture{
		stream:     stream,
		ownsStream: owns,
		enc:        enc,
		mimeType:   factory.MimeType(),
		tickStop:   make(chan struct{}),
		tickDone:   make(chan struct{}),
		pumpDone:   make(chan struct{}),
	}

	r.mu.Lock()
	if r.sess.BlobURL != "" {
		_ = r.urls.Revoke(r.sess.BlobURL)
	}
	r.sess = Session{
		IsRecording: true,
		Permission:  domain.PermissionGranted,
	}
	r.active = active
	r.mu.Unlock()

	go r.pump(active)
	go r.tick(active)

	r.log.Info().Str("mime", active.mimeType).Msg("recording started")
	return nil
}

// Stop finalizes the recording into a blob and releases the stream if the
// recorder owns it. A recording shorter than MinDuration is flagged
// recording_too_short but still produces the blob.
func (r *Recorder) Stop() Session {
	r.mu.Lock()
	active := r.active
	if active == nil {
		sess := r.sess
		r.mu.Unlock()
		return sess
	}
	r.active = nil
	r.sess.IsRecording = false
	r.sess.IsPaused = false
	tooShort := r.sess.ElapsedSeconds < int(r.cfg.MinDuration/time.Second)
	r.mu.Unlock()

	close(active.tickStop)
	<-active.tickDone

	r.releaseStream(active.stream, active.ownsStream)
	<-active.pumpDone

	blob, err := active.enc.Finalize()

	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.sess.Err = domain.NewCaptureError(domain.CaptureRecordingError)
		r.log.Error().Err(err).Msg("encoder finalize failed")
		return r.sess
	}

	r.sess.Blob = blob
	r.sess.MimeType = active.mimeType
	if url, urlErr := r.urls.Create(blob, active.mimeType); urlErr == nil {
		r.sess.BlobURL = url
	} else {
		r.log.Warn().Err(urlErr).Msg("blob url allocation failed")
	}
	if tooShort {
		r.sess.Err = domain.NewCaptureError(domain.CaptureRecordingTooShort)
	}
	r.log.Info().Int("bytes", len(blob)).Int("seconds", r.sess.ElapsedSeconds).Msg("recording finalized")
	return r.sess
}

// Pause freezes the elapsed timer and stops feeding the encoder. No-op
// unless currently recording.
func (r *Recorder) Pause() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sess.IsRecording && !r.sess.IsPaused {
		r.sess.IsPaused = true
	}
}

// Resume continues a paused recording. No-op unless currently paused.
func (r *Recorder) Resume() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sess.IsRecording && r.sess.IsPaused {
		r.sess.IsPaused = false
	}
}

// Reset force-stops any active recording, revokes the blob URL, and
// restores the session to its initial values.
func (r *Recorder) Reset() {
	r.mu.Lock()
	active := r.active
	r.mu.Unlock()
	if active != nil {
		r.Stop()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sess.BlobURL != "" {
		_ = r.urls.Revoke(r.sess.BlobURL)
	}
	r.sess = Session{Permission: domain.PermissionPrompt}
}

func (r *Recorder) pickEncoder() ports.EncoderFactory {
	for _, factory := range r.encoders {
		if factory.Supported() {
			return factory
		}
	}
	return nil
}

func (r *Recorder) releaseStream(stream ports.AudioStream, owns bool) {
	if owns {
		if err := stream.Stop(); err != nil {
			r.log.Warn().Err(err).Msg("stream stop failed")
		}
		return
	}
	_ = stream.Close()
}

// pump feeds PCM from the stream into the encoder until the stream ends.
// Paused audio is discarded, freezing the encoded timeline.
func (r *Recorder) pump(active *activeCapture) {
	defer close(active.pumpDone)

	buf := make([]byte, r.cfg.ChunkSize)
	for {
		n, err := active.stream.Read(buf)
		if n > 0 && !r.paused() {
			if writeErr := active.enc.Write(buf[:n]); writeErr != nil {
				r.log.Error().Err(writeErr).Msg("encoder write failed")
				// The encoder is unusable from here on; stop the whole
				// capture instead of silently discarding audio.
				go r.selfStop(domain.CaptureRecordingError)
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				r.log.Warn().Err(err).Msg("stream read ended")
			}
			return
		}
	}
}

func (r *Recorder) paused() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sess.IsPaused
}

// tick advances elapsedSeconds once per interval while recording and not
// paused, and triggers the automatic stop at MaxDuration.
func (r *Recorder) tick(active *activeCapture) {
	defer close(active.tickDone)

	maxSeconds := int(r.cfg.MaxDuration / time.Second)
	ticker := time.NewTicker(r.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-active.tickStop:
			return
		case <-ticker.C:
			r.mu.Lock()
			if !r.sess.IsRecording || r.sess.IsPaused {
				r.mu.Unlock()
				continue
			}
			r.sess.ElapsedSeconds++
			reached := r.sess.ElapsedSeconds >= maxSeconds
			r.mu.Unlock()

			if reached {
				go r.autoStop()
				return
			}
		}
	}
}

func (r *Recorder) autoStop() {
	r.log.Info().Msg("max duration reached, stopping recording")
	r.selfStop(domain.CaptureMaxDurationReached)
}

// selfStop ends the capture from inside the recorder and reports the reason,
// then hands off to the owning layer's teardown.
func (r *Recorder) selfStop(reason domain.CaptureErrorType) {
	r.Stop()
	r.mu.Lock()
	r.sess.Err = domain.NewCaptureError(reason)
	handler := r.onSelfStop
	r.mu.Unlock()
	if handler != nil {
		handler()
	}
}
