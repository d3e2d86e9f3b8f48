package usecase

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"vocalog/internal/domain"
	"vocalog/internal/ports"
)

// Pipeline composes upload and transcription into the post-recording flow.
// Neither call is preemptible mid-flight; a caller-initiated retry simply
// discards the outcome of an in-flight call when it resolves.
type Pipeline struct {
	uploader    ports.Uploader
	transcriber ports.Transcriber
	credential  string
	log         zerolog.Logger
}

func NewPipeline(uploader ports.Uploader, transcriber ports.Transcriber, credential string, log zerolog.Logger) *Pipeline {
	return &Pipeline{
		uploader:    uploader,
		transcriber: transcriber,
		credential:  credential,
		log:         log.With().Str("component", "pipeline").Logger(),
	}
}

// Process uploads a finished blob and transcribes it from its remote URL.
func (p *Pipeline) Process(ctx context.Context, blob []byte, mimeType string) (domain.UploadResult, domain.TranscriptionResult, error) {
	id := uuid.NewString()
	log := p.log.With().Str("recording_id", id).Logger()

	uploaded, err := p.uploader.Upload(ctx, blob, mimeType, p.credential)
	if err != nil {
		log.Warn().Err(err).Msg("upload failed")
		return domain.UploadResult{}, domain.TranscriptionResult{}, err
	}
	log.Info().Str("url", uploaded.URL).Msg("recording uploaded")

	transcript, err := p.transcriber.Transcribe(ctx, uploaded.URL)
	if err != nil {
		log.Warn().Err(err).Msg("transcription failed")
		return uploaded, domain.TranscriptionResult{}, err
	}
	log.Info().Int("words", len(transcript.Words)).Float64("confidence", transcript.Confidence).Msg("transcription complete")
	return uploaded, transcript, nil
}
