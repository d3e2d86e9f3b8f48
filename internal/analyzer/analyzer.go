// Package analyzer produces real-time frequency/time-domain snapshots from
// a live audio stream for visualization. It is deliberately independent of
// the capture encoder: visualization must never block or slow recording.
package analyzer

import (
	"errors"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/dsp/fourier"

	"vocalog/internal/domain"
	"vocalog/internal/ports"
)

// Options mirror the tunables of a web-audio analyser node.
type Options struct {
	FFTSize               int
	MinDecibels           float64
	MaxDecibels           float64
	SmoothingTimeConstant float64
	// FrameInterval approximates one display refresh.
	FrameInterval time.Duration
}

func (o *Options) applyDefaults() {
	if o.FFTSize <= 0 {
		o.FFTSize = 2048
	}
	if o.MinDecibels == 0 {
		o.MinDecibels = -90
	}
	if o.MaxDecibels == 0 {
		o.MaxDecibels = -10
	}
	if o.SmoothingTimeConstant <= 0 || o.SmoothingTimeConstant >= 1 {
		o.SmoothingTimeConstant = 0.8
	}
	if o.FrameInterval <= 0 {
		o.FrameInterval = 16 * time.Millisecond
	}
}

// Analyzer runs a continuous sampling loop over a stream. Start/Stop have
// lifecycles independent from the recorder even when both share a stream.
type Analyzer struct {
	opts    Options
	log     zerolog.Logger
	onFrame func(domain.AnalysisFrame)

	mu       sync.Mutex
	active   bool
	err      error
	stream   ports.AudioStream
	fft      *fourier.FFT
	window   []float64
	ring     []int16
	ringPos  int
	smoothed []float64
	freq     []byte
	timeData []byte

	stopCh   chan struct{}
	feedDone chan struct{}
	loopDone chan struct{}
}

// New builds an analyzer. onFrame may be nil; when set it receives a copy
// of every computed frame.
func New(opts Options, onFrame func(domain.AnalysisFrame), log zerolog.Logger) *Analyzer {
	opts.applyDefaults()
	return &Analyzer{
		opts:    opts,
		onFrame: onFrame,
		log:     log.With().Str("component", "analyzer").Logger(),
	}
}

// Start tears down any previous analysis and begins sampling the given
// stream. Failure leaves the analyzer inactive with a descriptive error
// rather than panicking.
func (a *Analyzer) Start(stream ports.AudioStream) {
	a.Stop()

	a.mu.Lock()
	defer a.mu.Unlock()

	a.err = nil
	if stream == nil {
		a.err = errors.New("audio analysis is unavailable: no stream")
		return
	}
	if a.opts.FFTSize < 32 || a.opts.FFTSize > 32768 || a.opts.FFTSize&(a.opts.FFTSize-1) != 0 {
		a.err = errors.New("audio analysis is unavailable: fft size must be a power of two in [32, 32768]")
		return
	}

	n := a.opts.FFTSize
	bins := n / 2
	a.stream = stream
	a.fft = fourier.NewFFT(n)
	a.window = hann(n)
	a.ring = make([]int16, n)
	a.ringPos = 0
	a.smoothed = make([]float64, bins)
	a.freq = make([]byte, bins)
	a.timeData = make([]byte, bins)
	a.stopCh = make(chan struct{})
	a.feedDone = make(chan struct{})
	a.loopDone = make(chan struct{})
	a.active = true

	go a.feed(stream, a.feedDone, a.stopCh)
	go a.loop(a.loopDone, a.stopCh)
}

// Stop cancels the sampling loop and disconnects from the stream. Safe to
// call repeatedly or before ever starting.
func (a *Analyzer) Stop() {
	a.mu.Lock()
	if !a.active {
		a.mu.Unlock()
		return
	}
	a.active = false
	stream := a.stream
	stopCh := a.stopCh
	feedDone := a.feedDone
	loopDone := a.loopDone
	a.mu.Unlock()

	close(stopCh)
	_ = stream.Close()
	<-feedDone
	<-loopDone
}

// IsActive reports whether the sampling loop is running.
func (a *Analyzer) IsActive() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.active
}

// Err returns the reason the analyzer could not start, if any.
func (a *Analyzer) Err() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.err
}

// Frame returns a copy of the most recent snapshot.
func (a *Analyzer) Frame() domain.AnalysisFrame {
	a.mu.Lock()
	defer a.mu.Unlock()
	return domain.AnalysisFrame{
		FrequencyData: append([]byte(nil), a.freq...),
		TimeData:      append([]byte(nil), a.timeData...),
	}
}

func (a *Analyzer) feed(stream ports.AudioStream, done chan struct{}, stop chan struct{}) {
	defer close(done)

	buf := make([]byte, 4096)
	for {
		select {
		case <-stop:
			return
		default:
		}

		n, err := stream.Read(buf)
		if n > 1 {
			a.mu.Lock()
			for i := 0; i+1 < n; i += 2 {
				a.ring[a.ringPos] = int16(uint16(buf[i]) | uint16(buf[i+1])<<8)
				a.ringPos = (a.ringPos + 1) % len(a.ring)
			}
			a.mu.Unlock()
		}
		if err != nil {
			return
		}
	}
}

func (a *Analyzer) loop(done chan struct{}, stop chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(a.opts.FrameInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			frame, ok := a.computeFrame()
			if !ok {
				return
			}
			if a.onFrame != nil {
				a.onFrame(frame)
			}
		}
	}
}

// computeFrame reads the current samples, recomputes both snapshots, and
// returns copies for the frame callback.
func (a *Analyzer) computeFrame() (domain.AnalysisFrame, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.active {
		return domain.AnalysisFrame{}, false
	}

	n := a.opts.FFTSize
	bins := n / 2

	// Oldest-first copy of the ring.
	samples := make([]float64, n)
	for i := 0; i < n; i++ {
		samples[i] = float64(a.ring[(a.ringPos+i)%n]) / 32768.0
	}

	// Time-domain snapshot: most recent bins samples, centered on 128.
	for i := 0; i < bins; i++ {
		v := int(samples[n-bins+i]*127) + 128
		a.timeData[i] = clampByte(v)
	}

	windowed := make([]float64, n)
	for i := range samples {
		windowed[i] = samples[i] * a.window[i]
	}
	coeffs := a.fft.Coefficients(nil, windowed)

	rangeDB := a.opts.MaxDecibels - a.opts.MinDecibels
	tau := a.opts.SmoothingTimeConstant
	for i := 0; i < bins; i++ {
		mag := cmplxAbs(coeffs[i]) / float64(n)
		a.smoothed[i] = tau*a.smoothed[i] + (1-tau)*mag

		db := -math.MaxFloat64
		if a.smoothed[i] > 0 {
			db = 20 * math.Log10(a.smoothed[i])
		}
		scaled := (db - a.opts.MinDecibels) / rangeDB * 255
		a.freq[i] = clampByte(int(scaled))
	}

	return domain.AnalysisFrame{
		FrequencyData: append([]byte(nil), a.freq...),
		TimeData:      append([]byte(nil), a.timeData...),
	}, true
}

func hann(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(n-1)))
	}
	return w
}

func cmplxAbs(c complex128) float64 {
	return math.Hypot(real(c), imag(c))
}

func clampByte(v int) byte {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v)
}
