package assemblyai

import (
	"context"
	"errors"
	"strings"

	"vocalog/internal/domain"
)

// classify maps an attempt failure onto the transcription taxonomy.
// Structured status codes are consulted first for errors this client
// produced itself; substring matching remains the fallback for opaque
// transport errors.
func classify(err error) *domain.TranscriptionError {
	var terr *domain.TranscriptionError
	if errors.As(err, &terr) {
		return terr
	}

	var herr *httpError
	if errors.As(err, &herr) {
		switch {
		case herr.status == 401:
			return domain.NewTranscriptionError(domain.TranscriptionAuth,
				"Transcription authentication failed. Check the API key.", err)
		case herr.status == 400:
			return domain.NewTranscriptionError(domain.TranscriptionInvalidRequest,
				"The transcription request was invalid.", err)
		case herr.status == 429:
			return domain.NewTranscriptionError(domain.TranscriptionRateLimit,
				"The transcription service is rate limiting requests.", err)
		case herr.status >= 500:
			return domain.NewTranscriptionError(domain.TranscriptionNetwork,
				"The transcription service is temporarily unavailable.", err)
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return domain.NewTranscriptionError(domain.TranscriptionTimeout,
			"The transcription timed out. Please try again.", err)
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout"):
		return domain.NewTranscriptionError(domain.TranscriptionTimeout,
			"The transcription timed out. Please try again.", err)
	case strings.Contains(msg, "network"),
		strings.Contains(msg, "connection reset"),
		strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "no such host"):
		return domain.NewTranscriptionError(domain.TranscriptionNetwork,
			"A network error interrupted the transcription.", err)
	case strings.Contains(msg, "rate limit"), strings.Contains(msg, "429"):
		return domain.NewTranscriptionError(domain.TranscriptionRateLimit,
			"The transcription service is rate limiting requests.", err)
	case strings.Contains(msg, "500"),
		strings.Contains(msg, "502"),
		strings.Contains(msg, "503"),
		strings.Contains(msg, "504"):
		return domain.NewTranscriptionError(domain.TranscriptionNetwork,
			"The transcription service is temporarily unavailable.", err)
	case strings.Contains(msg, "401"), strings.Contains(msg, "unauthorized"):
		return domain.NewTranscriptionError(domain.TranscriptionAuth,
			"Transcription authentication failed. Check the API key.", err)
	case strings.Contains(msg, "400"), strings.Contains(msg, "bad request"):
		return domain.NewTranscriptionError(domain.TranscriptionInvalidRequest,
			"The transcription request was invalid.", err)
	default:
		return domain.NewTranscriptionError(domain.TranscriptionUnknown,
			"Transcription failed unexpectedly.", err)
	}
}
