// Package config resolves runtime configuration from the environment with
// sensible defaults. A .env file in the working directory is honored.
package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config stores runtime configuration for the recording pipeline.
type Config struct {
	Log           LogConfig
	Audio         AudioConfig
	Recording     RecordingConfig
	Analyzer      AnalyzerConfig
	Upload        UploadConfig
	Transcription TranscriptionConfig
	Captions      CaptionsConfig
	Server        ServerConfig
}

type LogConfig struct {
	Level  string
	Format string
}

type AudioConfig struct {
	SampleRate int
	Channels   int
}

type RecordingConfig struct {
	MinDuration   time.Duration
	MaxDuration   time.Duration
	FFmpegCommand string
}

type AnalyzerConfig struct {
	FFTSize       int
	MinDecibels   float64
	MaxDecibels   float64
	Smoothing     float64
	FrameInterval time.Duration
}

type UploadConfig struct {
	BaseURL string
	Token   string
}

type TranscriptionConfig struct {
	APIKey          string
	BaseURL         string
	Language        string
	MaxRetries      int
	BaseDelay       time.Duration
	PollingInterval time.Duration
	PollingTimeout  time.Duration
}

type CaptionsConfig struct {
	Enabled bool
	BaseURL string
}

type ServerConfig struct {
	Addr          string
	Dir           string
	PublicBaseURL string
}

// Load resolves configuration from the environment. Missing .env files are
// not an error.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("VOCALOG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("audio.sample_rate", 16000)
	v.SetDefault("audio.channels", 1)
	v.SetDefault("recording.min_duration", 2*time.Second)
	v.SetDefault("recording.max_duration", 300*time.Second)
	v.SetDefault("recording.ffmpeg_command", "ffmpeg")
	v.SetDefault("analyzer.fft_size", 2048)
	v.SetDefault("analyzer.min_decibels", -90.0)
	v.SetDefault("analyzer.max_decibels", -10.0)
	v.SetDefault("analyzer.smoothing", 0.8)
	v.SetDefault("analyzer.frame_interval", 16*time.Millisecond)
	v.SetDefault("upload.base_url", "http://localhost:8090")
	v.SetDefault("upload.token", "")
	v.SetDefault("transcription.base_url", "https://api.assemblyai.com")
	v.SetDefault("transcription.language", "en")
	v.SetDefault("transcription.max_retries", 3)
	v.SetDefault("transcription.base_delay", time.Second)
	v.SetDefault("transcription.polling_interval", 3*time.Second)
	v.SetDefault("transcription.polling_timeout", 300*time.Second)
	v.SetDefault("captions.enabled", false)
	v.SetDefault("captions.base_url", "https://streaming.assemblyai.com")
	v.SetDefault("server.addr", ":8090")
	v.SetDefault("server.dir", "uploads")
	v.SetDefault("server.public_base_url", "http://localhost:8090")

	// The provider key follows its conventional variable name.
	_ = v.BindEnv("transcription.api_key", "ASSEMBLYAI_API_KEY", "VOCALOG_TRANSCRIPTION_API_KEY")

	cfg := Config{
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
		Audio: AudioConfig{
			SampleRate: v.GetInt("audio.sample_rate"),
			Channels:   v.GetInt("audio.channels"),
		},
		Recording: RecordingConfig{
			MinDuration:   v.GetDuration("recording.min_duration"),
			MaxDuration:   v.GetDuration("recording.max_duration"),
			FFmpegCommand: v.GetString("recording.ffmpeg_command"),
		},
		Analyzer: AnalyzerConfig{
			FFTSize:       v.GetInt("analyzer.fft_size"),
			MinDecibels:   v.GetFloat64("analyzer.min_decibels"),
			MaxDecibels:   v.GetFloat64("analyzer.max_decibels"),
			Smoothing:     v.GetFloat64("analyzer.smoothing"),
			FrameInterval: v.GetDuration("analyzer.frame_interval"),
		},
		Upload: UploadConfig{
			BaseURL: strings.TrimRight(v.GetString("upload.base_url"), "/"),
			Token:   v.GetString("upload.token"),
		},
		Transcription: TranscriptionConfig{
			APIKey:          v.GetString("transcription.api_key"),
			BaseURL:         strings.TrimRight(v.GetString("transcription.base_url"), "/"),
			Language:        v.GetString("transcription.language"),
			MaxRetries:      v.GetInt("transcription.max_retries"),
			BaseDelay:       v.GetDuration("transcription.base_delay"),
			PollingInterval: v.GetDuration("transcription.polling_interval"),
			PollingTimeout:  v.GetDuration("transcription.polling_timeout"),
		},
		Captions: CaptionsConfig{
			Enabled: v.GetBool("captions.enabled"),
			BaseURL: strings.TrimRight(v.GetString("captions.base_url"), "/"),
		},
		Server: ServerConfig{
			Addr:          v.GetString("server.addr"),
			Dir:           v.GetString("server.dir"),
			PublicBaseURL: strings.TrimRight(v.GetString("server.public_base_url"), "/"),
		},
	}

	if cfg.Audio.SampleRate <= 0 {
		cfg.Audio.SampleRate = 16000
	}
	if cfg.Audio.Channels <= 0 {
		cfg.Audio.Channels = 1
	}
	if cfg.Transcription.MaxRetries <= 0 {
		cfg.Transcription.MaxRetries = 3
	}

	return cfg, nil
}
