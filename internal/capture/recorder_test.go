package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"vocalog/internal/domain"
	"vocalog/internal/ports"
)

func testConfig() Config {
	return Config{
		MinDuration:  2 * time.Second,
		MaxDuration:  300 * time.Second,
		TickInterval: 2 * time.Millisecond,
	}
}

func newTestRecorder(cfg Config, devices ports.MediaDevices, factories ...ports.EncoderFactory) (*Recorder, *fakeAllocator) {
	if len(factories) == 0 {
		factories = []ports.EncoderFactory{&fakeFactory{mime: "audio/webm", supported: true}}
	}
	urls := &fakeAllocator{}
	return NewRecorder(devices, factories, urls, zerolog.Nop(), cfg), urls
}

func TestStartStopProducesBlob(t *testing.T) {
	t.Parallel()

	stream := newCapStream([]byte("pcm-data"))
	rec, _ := newTestRecorder(testConfig(), nil)

	if err := rec.StartWithStream(stream); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if sess := rec.Session(); !sess.IsRecording || sess.Permission != domain.PermissionGranted {
		t.Fatalf("unexpected session after start: %+v", sess)
	}

	waitFor(t, func() bool { return rec.Session().ElapsedSeconds >= 2 })
	sess := rec.Stop()

	if sess.IsRecording {
		t.Fatalf("still recording after stop")
	}
	if sess.Err != nil {
		t.Fatalf("unexpected error: %v", sess.Err)
	}
	if !bytes.Equal(sess.Blob, []byte("pcm-data")) {
		t.Fatalf("unexpected blob: %q", sess.Blob)
	}
	if sess.MimeType != "audio/webm" {
		t.Fatalf("unexpected mime type: %q", sess.MimeType)
	}
	if sess.BlobURL == "" {
		t.Fatalf("expected a blob url")
	}
}

func TestShortRecordingStillFinalizes(t *testing.T) {
	t.Parallel()

	stream := newCapStream([]byte("tiny"))
	rec, _ := newTestRecorder(testConfig(), nil)

	if err := rec.StartWithStream(stream); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	sess := rec.Stop()

	if sess.Err == nil || sess.Err.Type != domain.CaptureRecordingTooShort {
		t.Fatalf("expected recording_too_short, got %v", sess.Err)
	}
	if !bytes.Equal(sess.Blob, []byte("tiny")) {
		t.Fatalf("short recording must still produce the blob, got %q", sess.Blob)
	}
}

func TestAutoStopAtMaxDuration(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.MaxDuration = 3 * time.Second
	stream := newCapStream([]byte("pcm"))
	rec, _ := newTestRecorder(cfg, nil)

	fired := make(chan struct{})
	rec.SetSelfStopHandler(func() { close(fired) })

	if err := rec.StartWithStream(stream); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatalf("auto stop never fired")
	}

	sess := rec.Session()
	if sess.IsRecording {
		t.Fatalf("still recording after auto stop")
	}
	if sess.Err == nil || sess.Err.Type != domain.CaptureMaxDurationReached {
		t.Fatalf("expected max_duration_reached, got %v", sess.Err)
	}
	if sess.Blob == nil {
		t.Fatalf("auto stop must finalize the blob")
	}
}

func TestEncoderWriteFailureStopsCapture(t *testing.T) {
	t.Parallel()

	stream := newCapStream([]byte("pcm"))
	rec, _ := newTestRecorder(testConfig(), nil,
		&fakeFactory{mime: "audio/webm", supported: true, writeErr: errors.New("muxer rejected frame")},
	)

	fired := make(chan struct{})
	rec.SetSelfStopHandler(func() { close(fired) })

	if err := rec.StartWithStream(stream); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatalf("self stop never fired after encoder failure")
	}

	sess := rec.Session()
	if sess.IsRecording {
		t.Fatalf("still recording after encoder failure")
	}
	if sess.Err == nil || sess.Err.Type != domain.CaptureRecordingError {
		t.Fatalf("expected recording_error, got %v", sess.Err)
	}

	// The elapsed timer must be stopped, not ticking toward max duration.
	frozen := sess.ElapsedSeconds
	time.Sleep(20 * time.Millisecond)
	if got := rec.Session().ElapsedSeconds; got != frozen {
		t.Fatalf("timer still running after encoder failure: %d -> %d", frozen, got)
	}
	if got := stream.closeCount(); got == 0 {
		t.Fatalf("stream not released after encoder failure")
	}
}

func TestPauseFreezesElapsed(t *testing.T) {
	t.Parallel()

	stream := newCapStream(nil)
	rec, _ := newTestRecorder(testConfig(), nil)

	if err := rec.StartWithStream(stream); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	waitFor(t, func() bool { return rec.Session().ElapsedSeconds >= 1 })

	rec.Pause()
	frozen := rec.Session().ElapsedSeconds
	time.Sleep(20 * time.Millisecond)
	if got := rec.Session().ElapsedSeconds; got != frozen {
		t.Fatalf("elapsed advanced while paused: %d -> %d", frozen, got)
	}
	if !rec.Session().IsPaused {
		t.Fatalf("expected paused session")
	}

	rec.Resume()
	waitFor(t, func() bool { return rec.Session().ElapsedSeconds > frozen })
	rec.Stop()
}

func TestPauseResumeIgnoredWhenIdle(t *testing.T) {
	t.Parallel()

	rec, _ := newTestRecorder(testConfig(), nil)
	rec.Pause()
	rec.Resume()
	if sess := rec.Session(); sess.IsPaused || sess.IsRecording {
		t.Fatalf("idle session mutated: %+v", sess)
	}
}

func TestNoSupportedEncoder(t *testing.T) {
	t.Parallel()

	stream := newCapStream(nil)
	rec, _ := newTestRecorder(testConfig(), nil,
		&fakeFactory{mime: "audio/webm;codecs=opus", supported: false},
		&fakeFactory{mime: "audio/mp4", supported: false},
	)

	err := rec.StartWithStream(stream)
	capErr, ok := err.(*domain.CaptureError)
	if !ok || capErr.Type != domain.CaptureBrowserUnsupported {
		t.Fatalf("expected browser_unsupported, got %v", err)
	}
	if sess := rec.Session(); sess.Permission != domain.PermissionUnsupported {
		t.Fatalf("expected unsupported permission, got %q", sess.Permission)
	}
	if stream.closeCount() == 0 {
		t.Fatalf("stream must be released on encoder failure")
	}
}

func TestEncoderPreferenceOrder(t *testing.T) {
	t.Parallel()

	stream := newCapStream(nil)
	rec, _ := newTestRecorder(testConfig(), nil,
		&fakeFactory{mime: "audio/webm;codecs=opus", supported: false},
		&fakeFactory{mime: "audio/webm", supported: true},
		&fakeFactory{mime: "audio/mp4", supported: true},
	)

	if err := rec.StartWithStream(stream); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	sess := rec.Stop()
	if sess.MimeType != "audio/webm" {
		t.Fatalf("expected first supported mime, got %q", sess.MimeType)
	}
}

func TestStartClassifiesPermissionDenied(t *testing.T) {
	t.Parallel()

	devices := &fakeDevices{err: fmt.Errorf("open input: %w", domain.ErrPermissionDenied)}
	rec, _ := newTestRecorder(testConfig(), devices)

	err := rec.Start(context.Background())
	capErr, ok := err.(*domain.CaptureError)
	if !ok || capErr.Type != domain.CapturePermissionDenied {
		t.Fatalf("expected permission_denied, got %v", err)
	}
	if sess := rec.Session(); sess.Permission != domain.PermissionDenied {
		t.Fatalf("expected denied permission, got %q", sess.Permission)
	}
}

func TestRestartTearsDownPreviousCapture(t *testing.T) {
	t.Parallel()

	first := newCapStream([]byte("first"))
	second := newCapStream([]byte("second"))
	rec, _ := newTestRecorder(testConfig(), nil)

	if err := rec.StartWithStream(first); err != nil {
		t.Fatalf("first start failed: %v", err)
	}
	if err := rec.StartWithStream(second); err != nil {
		t.Fatalf("second start failed: %v", err)
	}

	if first.closeCount() == 0 {
		t.Fatalf("previous stream not released on restart")
	}
	sess := rec.Session()
	if !sess.IsRecording || sess.Err != nil {
		t.Fatalf("restart left a stale session: %+v", sess)
	}

	final := rec.Stop()
	if !bytes.Equal(final.Blob, []byte("second")) {
		t.Fatalf("blob carried data across restart: %q", final.Blob)
	}
}

func TestResetRevokesBlobURL(t *testing.T) {
	t.Parallel()

	stream := newCapStream([]byte("pcm"))
	rec, urls := newTestRecorder(testConfig(), nil)

	if err := rec.StartWithStream(stream); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	rec.Stop()
	rec.Reset()

	if got := urls.revokeCount(); got != 1 {
		t.Fatalf("expected one revoke, got %d", got)
	}
	sess := rec.Session()
	if sess.Blob != nil || sess.BlobURL != "" || sess.Err != nil {
		t.Fatalf("reset left state behind: %+v", sess)
	}
	if sess.Permission != domain.PermissionPrompt {
		t.Fatalf("expected prompt permission after reset, got %q", sess.Permission)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("condition never met")
}

type fakeDevices struct {
	stream ports.AudioStream
	err    error
}

func (d *fakeDevices) GetStream(context.Context, ports.StreamConfig) (ports.AudioStream, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.stream, nil
}

// capStream yields its payload once, then blocks until released.
type capStream struct {
	mu      sync.Mutex
	data    []byte
	closes  int
	release chan struct{}
	once    sync.Once
}

func newCapStream(data []byte) *capStream {
	return &capStream{data: data, release: make(chan struct{})}
}

func (s *capStream) Read(p []byte) (int, error) {
	s.mu.Lock()
	if len(s.data) > 0 {
		n := copy(p, s.data)
		s.data = s.data[n:]
		s.mu.Unlock()
		return n, nil
	}
	s.mu.Unlock()
	<-s.release
	return 0, io.EOF
}

func (s *capStream) Close() error { return s.Stop() }

func (s *capStream) Stop() error {
	s.mu.Lock()
	s.closes++
	s.mu.Unlock()
	s.once.Do(func() { close(s.release) })
	return nil
}

func (s *capStream) closeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}

type fakeFactory struct {
	mime      string
	supported bool
	newErr    error
	writeErr  error
}

func (f *fakeFactory) MimeType() string { return f.mime }
func (f *fakeFactory) Supported() bool  { return f.supported }

func (f *fakeFactory) New(ports.StreamConfig) (ports.Encoder, error) {
	if f.newErr != nil {
		return nil, f.newErr
	}
	return &fakeEncoder{writeErr: f.writeErr}, nil
}

type fakeEncoder struct {
	mu       sync.Mutex
	buf      bytes.Buffer
	writeErr error
}

func (e *fakeEncoder) Write(p []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.writeErr != nil {
		return e.writeErr
	}
	_, err := e.buf.Write(p)
	return err
}

func (e *fakeEncoder) Finalize() ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]byte(nil), e.buf.Bytes()...), nil
}

type fakeAllocator struct {
	mu      sync.Mutex
	created int
	revoked int
}

func (a *fakeAllocator) Create(blob []byte, mimeType string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.created++
	return fmt.Sprintf("blob:fake-%d", a.created), nil
}

func (a *fakeAllocator) Revoke(url string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.revoked++
	return nil
}

func (a *fakeAllocator) revokeCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.revoked
}
