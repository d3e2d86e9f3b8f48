package encode

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/go-audio/wav"

	"vocalog/internal/ports"
)

func TestWAVRoundTrip(t *testing.T) {
	t.Parallel()

	cfg := ports.StreamConfig{SampleRate: 16000, Channels: 1}
	factory := NewWAVFactory()
	if !factory.Supported() {
		t.Fatalf("wav fallback must always be supported")
	}

	enc, err := factory.New(cfg)
	if err != nil {
		t.Fatalf("new encoder failed: %v", err)
	}

	samples := []int16{0, 1000, -1000, 32767, -32768}
	pcm := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(pcm[2*i:], uint16(s))
	}
	if err := enc.Write(pcm[:4]); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if err := enc.Write(pcm[4:]); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	blob, err := enc.Finalize()
	if err != nil {
		t.Fatalf("finalize failed: %v", err)
	}

	dec := wav.NewDecoder(bytes.NewReader(blob))
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if dec.SampleRate != 16000 || dec.NumChans != 1 {
		t.Fatalf("header = %d Hz / %d ch, want 16000 / 1", dec.SampleRate, dec.NumChans)
	}
	if len(buf.Data) != len(samples) {
		t.Fatalf("decoded %d samples, want %d", len(buf.Data), len(samples))
	}
	for i, want := range samples {
		if buf.Data[i] != int(want) {
			t.Fatalf("sample %d = %d, want %d", i, buf.Data[i], want)
		}
	}
}

func TestWAVEncoderFinalizeIsTerminal(t *testing.T) {
	t.Parallel()

	enc, err := NewWAVFactory().New(ports.StreamConfig{SampleRate: 8000, Channels: 1})
	if err != nil {
		t.Fatalf("new encoder failed: %v", err)
	}
	if _, err := enc.Finalize(); err != nil {
		t.Fatalf("finalize failed: %v", err)
	}
	if err := enc.Write([]byte{0, 0}); err == nil {
		t.Fatalf("write after finalize must fail")
	}
	if _, err := enc.Finalize(); err == nil {
		t.Fatalf("second finalize must fail")
	}
}

func TestWAVFactoryRejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	if _, err := NewWAVFactory().New(ports.StreamConfig{}); err == nil {
		t.Fatalf("expected config validation error")
	}
}
