// Package bootstrap wires the runtime dependency graph.
package bootstrap

import (
	"os"
	"strings"

	"github.com/rs/zerolog"

	"vocalog/internal/analyzer"
	"vocalog/internal/capture"
	"vocalog/internal/capture/portaudiodev"
	"vocalog/internal/config"
	"vocalog/internal/domain"
	"vocalog/internal/encode"
	"vocalog/internal/ports"
	"vocalog/internal/providers/assemblyai"
	"vocalog/internal/providers/mockstt"
	"vocalog/internal/upload"
	"vocalog/internal/usecase"
)

// Services is the assembled runtime graph.
type Services struct {
	Orchestrator *usecase.Orchestrator
	Pipeline     *usecase.Pipeline
	Config       config.Config
	Log          zerolog.Logger
}

// Build wires all backend dependencies for the current runtime. Without an
// API key, transcription falls back to the deterministic mock client.
func Build(events ports.EventSink) (Services, error) {
	cfg, err := config.Load()
	if err != nil {
		return Services{}, err
	}

	log := NewLogger(cfg.Log)

	streamCfg := ports.StreamConfig{
		SampleRate: cfg.Audio.SampleRate,
		Channels:   cfg.Audio.Channels,
	}

	// Encoding preference order mirrors the platform list: opus-in-webm,
	// webm, mp4, then the always-available wav fallback.
	encoders := []ports.EncoderFactory{
		encode.NewFFmpegFactory(cfg.Recording.FFmpegCommand, "audio/webm;codecs=opus"),
		encode.NewFFmpegFactory(cfg.Recording.FFmpegCommand, "audio/webm"),
		encode.NewFFmpegFactory(cfg.Recording.FFmpegCommand, "audio/mp4"),
		encode.NewWAVFactory(),
	}

	recorder := capture.NewRecorder(
		portaudiodev.New(),
		encoders,
		capture.NewTempFileAllocator(os.TempDir()),
		log,
		capture.Config{
			Stream:      streamCfg,
			MinDuration: cfg.Recording.MinDuration,
			MaxDuration: cfg.Recording.MaxDuration,
		},
	)

	spectral := analyzer.New(
		analyzer.Options{
			FFTSize:               cfg.Analyzer.FFTSize,
			MinDecibels:           cfg.Analyzer.MinDecibels,
			MaxDecibels:           cfg.Analyzer.MaxDecibels,
			SmoothingTimeConstant: cfg.Analyzer.Smoothing,
			FrameInterval:         cfg.Analyzer.FrameInterval,
		},
		func(frame domain.AnalysisFrame) { events.AnalysisFrame(frame) },
		log,
	)

	var captioner ports.LiveCaptioner
	if cfg.Captions.Enabled && cfg.Transcription.APIKey != "" {
		captioner = assemblyai.NewCaptioner(assemblyai.StreamingConfig{
			APIKey:  cfg.Transcription.APIKey,
			BaseURL: cfg.Captions.BaseURL,
		}, log)
	}

	orchestrator := usecase.NewOrchestrator(
		portaudiodev.New(),
		recorder,
		spectral,
		captioner,
		events,
		log,
		usecase.Config{
			Stream:       streamCfg,
			LiveCaptions: cfg.Captions.Enabled,
		},
	)

	var transcriber ports.Transcriber
	if cfg.Transcription.APIKey != "" {
		transcriber = assemblyai.NewClient(assemblyai.Config{
			APIKey:          cfg.Transcription.APIKey,
			BaseURL:         cfg.Transcription.BaseURL,
			LanguageCode:    cfg.Transcription.Language,
			MaxRetries:      cfg.Transcription.MaxRetries,
			BaseDelay:       cfg.Transcription.BaseDelay,
			PollingInterval: cfg.Transcription.PollingInterval,
			PollingTimeout:  cfg.Transcription.PollingTimeout,
		}, nil, log)
	} else {
		transcriber = mockstt.New()
	}

	pipeline := usecase.NewPipeline(
		upload.NewClient(cfg.Upload.BaseURL, nil, log),
		transcriber,
		cfg.Upload.Token,
		log,
	)

	return Services{
		Orchestrator: orchestrator,
		Pipeline:     pipeline,
		Config:       cfg,
		Log:          log,
	}, nil
}

// NewLogger builds the process logger from config.
func NewLogger(cfg config.LogConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = zerolog.InfoLevel
	}

	var log zerolog.Logger
	if strings.EqualFold(cfg.Format, "json") {
		log = zerolog.New(os.Stderr)
	} else {
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	return log.Level(level).With().Timestamp().Logger()
}
