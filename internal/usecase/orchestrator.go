package usecase

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"vocalog/internal/audio"
	"vocalog/internal/capture"
	"vocalog/internal/domain"
	"vocalog/internal/ports"
)

var ErrNoActiveRecording = errors.New("no active recording")

// Recorder is the capture surface the orchestrator drives.
type Recorder interface {
	StartWithStream(stream ports.AudioStream) error
	Stop() capture.Session
	Pause()
	Resume()
	Reset()
	Session() capture.Session
	SetSelfStopHandler(fn func())
}

// Analyzer is the visualization surface the orchestrator drives.
type Analyzer interface {
	Start(stream ports.AudioStream)
	Stop()
	Err() error
}

// Config controls orchestration.
type Config struct {
	Stream       ports.StreamConfig
	LiveCaptions bool
}

// Orchestrator composes the recorder and the analyzer into one user-facing
// state machine. They are independent components, but they share one
// hardware stream, acquired once and released exactly once from here.
type Orchestrator struct {
	devices   ports.MediaDevices
	recorder  Recorder
	analyzer  Analyzer
	captioner ports.LiveCaptioner
	events    ports.EventSink
	log       zerolog.Logger
	cfg       Config

	// opMu serializes lifecycle operations against the recorder's
	// self-stop callback, which can fire the moment recording starts.
	opMu sync.Mutex

	mu     sync.Mutex
	state  domain.RecordingState
	active *activeRecording
}

type activeRecording struct {
	tee         *audio.Tee
	caption     ports.CaptionSession
	captionDone chan struct{}
}

func NewOrchestrator(
	devices ports.MediaDevices,
	recorder Recorder,
	analyzer Analyzer,
	captioner ports.LiveCaptioner,
	events ports.EventSink,
	log zerolog.Logger,
	cfg Config,
) *Orchestrator {
	if cfg.Stream.SampleRate <= 0 {
		cfg.Stream.SampleRate = 16000
	}
	if cfg.Stream.Channels <= 0 {
		cfg.Stream.Channels = 1
	}
	o := &Orchestrator{
		devices:   devices,
		recorder:  recorder,
		analyzer:  analyzer,
		captioner: captioner,
		events:    events,
		log:       log.With().Str("component", "orchestrator").Logger(),
		cfg:       cfg,
		state:     domain.RecordingStateIdle,
	}
	recorder.SetSelfStopHandler(o.handleSelfStop)
	return o
}

// State returns the current machine state.
func (o *Orchestrator) State() domain.RecordingState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Start acquires the microphone stream once and starts both the recorder
// and the analyzer against it. On any failure the machine returns to idle
// with a user-facing error.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.opMu.Lock()
	defer o.opMu.Unlock()

	// Serialize restarts: tear the previous session down completely first.
	o.mu.Lock()
	previous := o.active
	o.active = nil
	o.mu.Unlock()
	if previous != nil {
		o.teardown(previous)
	}

	o.setState(domain.RecordingStateRequestingPermission)

	stream, err := o.devices.GetStream(ctx, o.cfg.Stream)
	if err != nil {
		capErr, permission := capture.ClassifyStreamError(err)
		o.setState(domain.RecordingStateIdle)
		if msg := domain.PermissionMessage(permission); msg != "" {
			o.events.RecordingError(msg)
		} else {
			o.events.RecordingError(capErr.Message)
		}
		o.log.Warn().Err(err).Msg("stream acquisition failed")
		return capErr
	}

	modes := []audio.BranchMode{audio.Blocking, audio.Lossy}
	withCaptions := o.captioner != nil && o.cfg.LiveCaptions
	if withCaptions {
		modes = append(modes, audio.Lossy)
	}
	tee := audio.NewTee(stream, modes...)

	// Visualization failure is never fatal to recording.
	o.analyzer.Start(tee.Branch(1))
	if aerr := o.analyzer.Err(); aerr != nil {
		o.log.Warn().Err(aerr).Msg("analysis unavailable")
	}

	if err := o.recorder.StartWithStream(tee.Branch(0)); err != nil {
		o.analyzer.Stop()
		_ = tee.Stop()
		o.setState(domain.RecordingStateIdle)
		o.events.RecordingError(o.ErrorMessage())
		return err
	}

	active := &activeRecording{tee: tee}
	if withCaptions {
		o.startCaptions(ctx, active, tee.Branch(2))
	}

	o.mu.Lock()
	o.active = active
	o.mu.Unlock()

	o.setState(domain.RecordingStateRecording)
	return nil
}

// Stop ends the active session: analyzer first, then the recorder
// finalizes its blob, then the shared stream is released exactly once.
func (o *Orchestrator) Stop() (capture.Session, error) {
	o.opMu.Lock()
	defer o.opMu.Unlock()

	o.mu.Lock()
	active := o.active
	o.active = nil
	o.mu.Unlock()
	if active == nil {
		return o.recorder.Session(), ErrNoActiveRecording
	}

	o.analyzer.Stop()
	o.closeCaptions(active)
	sess := o.recorder.Stop()
	_ = active.tee.Stop()

	o.setState(domain.RecordingStateStopped)
	if msg := o.ErrorMessage(); msg != "" {
		o.events.RecordingError(msg)
	}
	return sess, nil
}

// Pause and Resume pass through to the recorder; the analyzer keeps
// sampling so the meter stays live while paused.
func (o *Orchestrator) Pause()  { o.recorder.Pause() }
func (o *Orchestrator) Resume() { o.recorder.Resume() }

// Retry discards the preview and returns to idle, releasing the blob URL.
func (o *Orchestrator) Retry() {
	o.opMu.Lock()
	defer o.opMu.Unlock()

	o.mu.Lock()
	active := o.active
	o.active = nil
	o.mu.Unlock()
	if active != nil {
		o.teardown(active)
	}

	o.recorder.Reset()
	o.setState(domain.RecordingStateIdle)
}

// ErrorMessage derives the single user-facing message: blocked permission
// states take precedence over transient recording errors.
func (o *Orchestrator) ErrorMessage() string {
	sess := o.recorder.Session()
	if msg := domain.PermissionMessage(sess.Permission); msg != "" {
		return msg
	}
	if sess.Err != nil {
		return sess.Err.Message
	}
	return ""
}

// handleSelfStop finishes the orchestration after the recorder stopped
// itself, at max duration or on a fatal encoder failure.
func (o *Orchestrator) handleSelfStop() {
	o.opMu.Lock()
	defer o.opMu.Unlock()

	o.mu.Lock()
	active := o.active
	o.active = nil
	o.mu.Unlock()
	if active == nil {
		return
	}

	o.analyzer.Stop()
	o.closeCaptions(active)
	_ = active.tee.Stop()

	o.setState(domain.RecordingStateStopped)
	if msg := o.ErrorMessage(); msg != "" {
		o.events.RecordingError(msg)
	}
}

func (o *Orchestrator) startCaptions(ctx context.Context, active *activeRecording, stream ports.AudioStream) {
	session, err := o.captioner.Start(ctx, o.cfg.Stream)
	if err != nil {
		o.log.Warn().Err(err).Msg("live captions unavailable")
		_ = stream.Close()
		return
	}

	active.caption = session
	active.captionDone = make(chan struct{})
	go func() {
		defer close(active.captionDone)
		pumpCaptions(stream, session, o.events, o.log)
	}()
}

func (o *Orchestrator) closeCaptions(active *activeRecording) {
	if active.caption == nil {
		return
	}
	_ = active.caption.CloseSend()
	_ = active.caption.Close()
	<-active.captionDone
}

func (o *Orchestrator) teardown(active *activeRecording) {
	o.analyzer.Stop()
	o.closeCaptions(active)
	o.recorder.Stop()
	_ = active.tee.Stop()
}

func (o *Orchestrator) setState(state domain.RecordingState) {
	o.mu.Lock()
	o.state = state
	o.mu.Unlock()
	o.events.StateChanged(state)
}

// pumpCaptions feeds PCM into the caption session and forwards partial
// text to the sink until either side ends.
func pumpCaptions(stream ports.AudioStream, session ports.CaptionSession, events ports.EventSink, log zerolog.Logger) {
	go func() {
		buf := make([]byte, 4096)
		for {
			n, err := stream.Read(buf)
			if n > 0 {
				if sendErr := session.SendAudio(buf[:n]); sendErr != nil {
					log.Warn().Err(sendErr).Msg("caption send failed")
					return
				}
			}
			if err != nil {
				return
			}
		}
	}()

	for event := range session.Events() {
		if !event.Final {
			events.PartialCaption(event.Text)
		}
	}
}
