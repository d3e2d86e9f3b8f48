// Package mockstt is a deterministic stand-in for the live transcription
// client, used to exercise the orchestration layer without a network
// dependency. It is substitutable for the real client at the
// ports.Transcriber seam.
package mockstt

import (
	"context"
	"strings"
	"time"

	"vocalog/internal/domain"
)

const defaultText = "I have decided to move forward with the proposal."

// Client produces fixed text with synthesized per-word timing and
// confidence after a simulated delay.
type Client struct {
	// Text overrides the default transcript.
	Text string
	// Delay simulates provider latency.
	Delay time.Duration
}

func New() *Client {
	return &Client{Delay: 150 * time.Millisecond}
}

func (c *Client) Transcribe(ctx context.Context, audioURL string) (domain.TranscriptionResult, error) {
	if c.Delay > 0 {
		timer := time.NewTimer(c.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return domain.TranscriptionResult{}, ctx.Err()
		case <-timer.C:
		}
	}

	text := c.Text
	if text == "" {
		text = defaultText
	}

	tokens := strings.Fields(text)
	words := make([]domain.Word, 0, len(tokens))
	total := 0.0
	for i, token := range tokens {
		// 300 ms per word, confidence cycling just below 1.0.
		confidence := 0.9 + float64(i%10)/100
		words = append(words, domain.Word{
			Text:       token,
			StartMs:    i * 300,
			EndMs:      (i + 1) * 300,
			Confidence: confidence,
		})
		total += confidence
	}

	confidence := 0.95
	if len(words) > 0 {
		confidence = total / float64(len(words))
	}

	return domain.TranscriptionResult{
		Text:       text,
		Confidence: confidence,
		Words:      words,
	}, nil
}
