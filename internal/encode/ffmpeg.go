package encode

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"vocalog/internal/ports"
)

// FFmpegFactory encodes PCM through an ffmpeg child process. One factory
// exists per MIME type on the preference list; Supported probes the binary
// the way MediaRecorder.isTypeSupported probes the platform.
type FFmpegFactory struct {
	command  string
	mimeType string
	muxArgs  []string

	probeOnce sync.Once
	probeOK   bool
}

// NewFFmpegFactory builds a factory for one of the ffmpeg-backed MIME
// types. Unknown types yield a factory that reports unsupported.
func NewFFmpegFactory(command string, mimeType string) *FFmpegFactory {
	if command == "" {
		command = "ffmpeg"
	}
	f := &FFmpegFactory{command: command, mimeType: mimeType}
	switch mimeType {
	case "audio/webm;codecs=opus":
		f.muxArgs = []string{"-c:a", "libopus", "-f", "webm"}
	case "audio/webm":
		f.muxArgs = []string{"-f", "webm"}
	case "audio/mp4":
		// Fragmented mp4 so the muxer can write to a pipe.
		f.muxArgs = []string{"-c:a", "aac", "-movflags", "frag_keyframe+empty_moov", "-f", "mp4"}
	}
	return f
}

func (f *FFmpegFactory) MimeType() string { return f.mimeType }

func (f *FFmpegFactory) Supported() bool {
	f.probeOnce.Do(func() {
		if len(f.muxArgs) == 0 {
			return
		}
		_, err := exec.LookPath(f.command)
		f.probeOK = err == nil
	})
	return f.probeOK
}

func (f *FFmpegFactory) New(cfg ports.StreamConfig) (ports.Encoder, error) {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}

	args := []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-f", "s16le",
		"-ar", strconv.Itoa(cfg.SampleRate),
		"-ac", strconv.Itoa(cfg.Channels),
		"-i", "pipe:0",
	}
	args = append(args, f.muxArgs...)
	args = append(args, "pipe:1")

	cmd := exec.Command(f.command, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create ffmpeg stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create ffmpeg stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	enc := &ffmpegEncoder{
		stdin:   stdin,
		stderr:  &stderr,
		process: cmd.Process,
		waitErr: make(chan error, 1),
		outDone: make(chan struct{}),
	}
	go func() {
		_, _ = io.Copy(&enc.out, stdout)
		close(enc.outDone)
	}()
	go func() {
		enc.waitErr <- cmd.Wait()
		close(enc.waitErr)
	}()
	return enc, nil
}

type ffmpegEncoder struct {
	stdin   io.WriteCloser
	stderr  *bytes.Buffer
	process *os.Process
	waitErr chan error
	out     bytes.Buffer
	outDone chan struct{}

	finalizeOnce sync.Once
	finalErr     error
	blob         []byte
}

func (e *ffmpegEncoder) Write(pcm []byte) error {
	_, err := e.stdin.Write(pcm)
	if err != nil {
		return fmt.Errorf("ffmpeg rejected audio: %w: %s", err, trimmedStderr(e.stderr))
	}
	return nil
}

// Finalize flushes the encoder and returns the finished blob. The child is
// given a grace period to drain, then interrupted, then killed.
func (e *ffmpegEncoder) Finalize() ([]byte, error) {
	e.finalizeOnce.Do(func() {
		_ = e.stdin.Close()

		select {
		case err, ok := <-e.waitErr:
			if ok {
				e.finalErr = err
			}
		case <-time.After(5 * time.Second):
			if e.process != nil {
				_ = e.process.Signal(os.Interrupt)
			}
			select {
			case err, ok := <-e.waitErr:
				if ok {
					e.finalErr = err
				}
			case <-time.After(1200 * time.Millisecond):
				if e.process != nil {
					_ = e.process.Kill()
				}
				err, ok := <-e.waitErr
				if ok {
					e.finalErr = err
				}
			}
		}
		<-e.outDone

		if e.finalErr != nil {
			e.finalErr = fmt.Errorf("ffmpeg encoding failed: %w: %s", e.finalErr, trimmedStderr(e.stderr))
			return
		}
		if e.out.Len() == 0 {
			e.finalErr = errors.New("ffmpeg produced no output")
			return
		}
		e.blob = e.out.Bytes()
	})
	return e.blob, e.finalErr
}

func trimmedStderr(buf *bytes.Buffer) string {
	if buf == nil || buf.Len() == 0 {
		return ""
	}
	return string(bytes.TrimSpace(buf.Bytes()))
}
