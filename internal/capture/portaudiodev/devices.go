// Package portaudiodev provides the real microphone device surface backed
// by portaudio.
package portaudiodev

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/gordonklaus/portaudio"

	"vocalog/internal/domain"
	"vocalog/internal/ports"
)

const framesPerBuffer = 1024

// Devices implements ports.MediaDevices against the default system input.
type Devices struct{}

func New() *Devices { return &Devices{} }

// GetStream opens the default input device. Platform failures are wrapped
// around the domain sentinels so the capture layer can classify them.
func (d *Devices) GetStream(ctx context.Context, cfg ports.StreamConfig) (ports.AudioStream, error) {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}

	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUnsupported, err)
	}

	in := make([]int16, framesPerBuffer*cfg.Channels)
	stream, err := portaudio.OpenDefaultStream(cfg.Channels, 0, float64(cfg.SampleRate), framesPerBuffer, in)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, classifyOpenErr(err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("%w: %v", domain.ErrNoMicrophone, err)
	}

	s := &paStream{stream: stream, in: in}
	go func() {
		<-ctx.Done()
		_ = s.Stop()
	}()
	return s, nil
}

func classifyOpenErr(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "no default input") || strings.Contains(msg, "invalid device") || strings.Contains(msg, "device unavailable"):
		return fmt.Errorf("%w: %v", domain.ErrNoMicrophone, err)
	case strings.Contains(msg, "permission") || strings.Contains(msg, "access"):
		return fmt.Errorf("%w: %v", domain.ErrPermissionDenied, err)
	default:
		return fmt.Errorf("%w: %v", domain.ErrNoMicrophone, err)
	}
}

type paStream struct {
	stream *portaudio.Stream
	in     []int16

	mu       sync.Mutex
	stopped  bool
	leftover []byte
}

func (s *paStream) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.leftover) > 0 {
		n := copy(p, s.leftover)
		s.leftover = s.leftover[n:]
		return n, nil
	}
	if s.stopped {
		return 0, io.EOF
	}

	if err := s.stream.Read(); err != nil {
		return 0, fmt.Errorf("portaudio read failed: %w", err)
	}

	chunk := make([]byte, len(s.in)*2)
	for i, sample := range s.in {
		binary.LittleEndian.PutUint16(chunk[2*i:], uint16(sample))
	}
	n := copy(p, chunk)
	if n < len(chunk) {
		s.leftover = chunk[n:]
	}
	return n, nil
}

func (s *paStream) Close() error { return s.Stop() }

func (s *paStream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	s.stopped = true

	err := s.stream.Stop()
	if closeErr := s.stream.Close(); err == nil {
		err = closeErr
	}
	if termErr := portaudio.Terminate(); err == nil {
		err = termErr
	}
	return err
}
