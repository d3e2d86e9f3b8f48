// Package assemblyai implements transcription against the AssemblyAI API:
// a submit-and-poll client for finished recordings and a websocket
// captioner for live partial text.
package assemblyai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"vocalog/internal/domain"
)

const defaultConfidence = 0.95

// Config controls the polling client.
type Config struct {
	APIKey       string
	BaseURL      string
	LanguageCode string
	// MaxRetries bounds the number of attempts, including the first.
	MaxRetries int
	// BaseDelay seeds the exponential backoff: BaseDelay * 2^(attempt-1).
	BaseDelay       time.Duration
	PollingInterval time.Duration
	PollingTimeout  time.Duration
}

func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = "https://api.assemblyai.com"
	}
	if c.LanguageCode == "" {
		c.LanguageCode = "en"
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = time.Second
	}
	if c.PollingInterval <= 0 {
		c.PollingInterval = 3 * time.Second
	}
	if c.PollingTimeout <= 0 {
		c.PollingTimeout = 300 * time.Second
	}
}

// Client submits a remote audio URL and polls the job to completion,
// retrying transient failures with exponential backoff. The provider fails
// transiently under load; classification gates which failures are worth
// retrying so permanent ones (bad audio, bad auth) surface immediately.
type Client struct {
	cfg   Config
	httpc *http.Client
	log   zerolog.Logger

	// sleep is injectable so tests can observe exact backoff delays.
	sleep func(ctx context.Context, d time.Duration) error
}

func NewClient(cfg Config, httpc *http.Client, log zerolog.Logger) *Client {
	cfg.applyDefaults()
	if httpc == nil {
		httpc = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		cfg:   cfg,
		httpc: httpc,
		log:   log.With().Str("component", "transcription").Logger(),
		sleep: sleepContext,
	}
}

// Transcribe runs up to MaxRetries attempts. Non-retryable classified
// errors stop the loop on first occurrence regardless of remaining budget.
func (c *Client) Transcribe(ctx context.Context, audioURL string) (domain.TranscriptionResult, error) {
	for attempt := 1; ; attempt++ {
		result, err := c.attempt(ctx, audioURL)
		if err == nil {
			return result, nil
		}

		terr := classify(err)
		if !terr.Retryable || attempt >= c.cfg.MaxRetries {
			c.log.Warn().Str("code", string(terr.Code)).Int("attempt", attempt).Msg("transcription failed")
			return domain.TranscriptionResult{}, terr
		}

		delay := c.cfg.BaseDelay << (attempt - 1)
		c.log.Info().
			Str("code", string(terr.Code)).
			Int("attempt", attempt).
			Dur("backoff", delay).
			Msg("retrying transcription")
		if sleepErr := c.sleep(ctx, delay); sleepErr != nil {
			return domain.TranscriptionResult{}, domain.NewTranscriptionError(
				domain.TranscriptionUnknown, "The transcription was cancelled.", sleepErr)
		}
	}
}

func (c *Client) attempt(ctx context.Context, audioURL string) (domain.TranscriptionResult, error) {
	id, err := c.submit(ctx, audioURL)
	if err != nil {
		return domain.TranscriptionResult{}, err
	}

	deadline := time.Now().Add(c.cfg.PollingTimeout)
	for {
		if time.Now().After(deadline) {
			return domain.TranscriptionResult{}, fmt.Errorf("transcription polling timeout after %s", c.cfg.PollingTimeout)
		}

		job, err := c.get(ctx, id)
		if err != nil {
			return domain.TranscriptionResult{}, err
		}

		switch job.Status {
		case "completed":
			return mapResult(job), nil
		case "error":
			// Terminal provider failure: never worth retrying.
			msg := "The audio could not be transcribed."
			if job.Error != "" {
				c.log.Warn().Str("provider_error", job.Error).Msg("provider rejected transcription")
			}
			return domain.TranscriptionResult{}, domain.NewTranscriptionError(domain.TranscriptionFailed, msg, nil)
		default:
			if err := c.sleep(ctx, c.cfg.PollingInterval); err != nil {
				return domain.TranscriptionResult{}, err
			}
		}
	}
}

func (c *Client) submit(ctx context.Context, audioURL string) (string, error) {
	payload, err := json.Marshal(map[string]string{
		"audio_url":     audioURL,
		"language_code": c.cfg.LanguageCode,
	})
	if err != nil {
		return "", err
	}

	var job transcriptJob
	if err := c.do(ctx, http.MethodPost, "/v2/transcript", bytes.NewReader(payload), &job); err != nil {
		return "", err
	}
	if job.ID == "" {
		return "", errors.New("provider returned no transcript id")
	}
	return job.ID, nil
}

func (c *Client) get(ctx context.Context, id string) (*transcriptJob, error) {
	var job transcriptJob
	if err := c.do(ctx, http.MethodGet, "/v2/transcript/"+id, nil, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (c *Client) do(ctx context.Context, method string, path string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", c.cfg.APIKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &httpError{status: resp.StatusCode, body: strings.TrimSpace(string(data))}
	}
	return json.Unmarshal(data, out)
}

type transcriptJob struct {
	ID     string  `json:"id"`
	Status string  `json:"status"`
	Error  string  `json:"error"`
	Text   string  `json:"text"`
	Words  []*word `json:"words"`
}

type word struct {
	Text       string  `json:"text"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
	Confidence float64 `json:"confidence"`
}

// mapResult normalizes provider words (dropping null entries) and computes
// the aggregate confidence: mean of word confidences, or the fixed default
// when no words exist.
func mapResult(job *transcriptJob) domain.TranscriptionResult {
	words := make([]domain.Word, 0, len(job.Words))
	total := 0.0
	for _, w := range job.Words {
		if w == nil {
			continue
		}
		words = append(words, domain.Word{
			Text:       w.Text,
			StartMs:    w.Start,
			EndMs:      w.End,
			Confidence: w.Confidence,
		})
		total += w.Confidence
	}

	confidence := defaultConfidence
	if len(words) > 0 {
		confidence = total / float64(len(words))
	}

	return domain.TranscriptionResult{
		Text:       job.Text,
		Confidence: confidence,
		Words:      words,
	}
}

type httpError struct {
	status int
	body   string
}

func (e *httpError) Error() string {
	return fmt.Sprintf("provider request failed with status %d: %s", e.status, e.body)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
