package encode

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"sync"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"vocalog/internal/ports"
)

const wavBitDepth = 16

// WAVFactory is the always-available fallback entry of the encoding
// preference list. It needs no external binary.
type WAVFactory struct{}

func NewWAVFactory() *WAVFactory { return &WAVFactory{} }

func (*WAVFactory) MimeType() string { return "audio/wav" }

func (*WAVFactory) Supported() bool { return true }

func (*WAVFactory) New(cfg ports.StreamConfig) (ports.Encoder, error) {
	if cfg.SampleRate <= 0 || cfg.Channels <= 0 {
		return nil, errors.New("invalid stream config for wav encoder")
	}
	return &wavEncoder{cfg: cfg}, nil
}

type wavEncoder struct {
	mu        sync.Mutex
	cfg       ports.StreamConfig
	pcm       bytes.Buffer
	finalized bool
}

func (e *wavEncoder) Write(pcm []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.finalized {
		return errors.New("wav encoder already finalized")
	}
	_, err := e.pcm.Write(pcm)
	return err
}

func (e *wavEncoder) Finalize() ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.finalized {
		return nil, errors.New("wav encoder already finalized")
	}
	e.finalized = true

	raw := e.pcm.Bytes()
	samples := make([]int, len(raw)/2)
	for i := range samples {
		samples[i] = int(int16(binary.LittleEndian.Uint16(raw[2*i:])))
	}

	out := &memWriteSeeker{}
	enc := wav.NewEncoder(out, e.cfg.SampleRate, wavBitDepth, e.cfg.Channels, 1)
	buf := &goaudio.IntBuffer{
		Data:           samples,
		Format:         &goaudio.Format{NumChannels: e.cfg.Channels, SampleRate: e.cfg.SampleRate},
		SourceBitDepth: wavBitDepth,
	}
	if err := enc.Write(buf); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return out.buf, nil
}

// memWriteSeeker satisfies the wav encoder's io.WriteSeeker without a
// temporary file.
type memWriteSeeker struct {
	buf []byte
	pos int
}

func (m *memWriteSeeker) Write(p []byte) (int, error) {
	if need := m.pos + len(p); need > len(m.buf) {
		grown := make([]byte, need)
		copy(grown, m.buf)
		m.buf = grown
	}
	copy(m.buf[m.pos:], p)
	m.pos += len(p)
	return len(p), nil
}

func (m *memWriteSeeker) Seek(offset int64, whence int) (int64, error) {
	var next int
	switch whence {
	case io.SeekStart:
		next = int(offset)
	case io.SeekCurrent:
		next = m.pos + int(offset)
	case io.SeekEnd:
		next = len(m.buf) + int(offset)
	default:
		return 0, errors.New("invalid whence")
	}
	if next < 0 {
		return 0, errors.New("negative seek position")
	}
	m.pos = next
	return int64(next), nil
}
