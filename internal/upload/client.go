// Package upload submits finished recordings to the audio upload endpoint.
package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"time"

	"github.com/rs/zerolog"

	"vocalog/internal/domain"
)

// MaxBlobSize is the upload size ceiling.
const MaxBlobSize = 10 << 20

const uploadPath = "/api/audio/upload"

var allowedTypes = map[string]string{
	"audio/webm":  "webm",
	"audio/mp4":   "m4a",
	"audio/mpeg":  "mp3",
	"audio/wav":   "wav",
	"audio/x-wav": "wav",
	"audio/wave":  "wav",
}

// Client performs a single validated upload per call; retry is the
// caller's affordance, with the same blob.
type Client struct {
	baseURL string
	httpc   *http.Client
	log     zerolog.Logger
}

func NewClient(baseURL string, httpc *http.Client, log zerolog.Logger) *Client {
	if httpc == nil {
		httpc = &http.Client{Timeout: 60 * time.Second}
	}
	return &Client{
		baseURL: baseURL,
		httpc:   httpc,
		log:     log.With().Str("component", "upload").Logger(),
	}
}

// Upload validates the blob, submits it as multipart form data with a
// bearer credential, and returns its remote location. Validation
// short-circuits in order: no_file, file_too_large, invalid_type.
func (c *Client) Upload(ctx context.Context, blob []byte, mimeType string, credential string) (domain.UploadResult, error) {
	if len(blob) == 0 {
		return domain.UploadResult{}, domain.NewUploadError(domain.UploadNoFile, nil)
	}
	if len(blob) > MaxBlobSize {
		return domain.UploadResult{}, domain.NewUploadError(domain.UploadFileTooLarge, nil)
	}
	ext, ok := extensionFor(mimeType)
	if !ok {
		return domain.UploadResult{}, domain.NewUploadError(domain.UploadInvalidType, nil)
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="audio"; filename="recording.%s"`, ext))
	header.Set("Content-Type", mimeType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return domain.UploadResult{}, domain.NewUploadError(domain.UploadNetworkError, err)
	}
	if _, err := part.Write(blob); err != nil {
		return domain.UploadResult{}, domain.NewUploadError(domain.UploadNetworkError, err)
	}
	if err := writer.Close(); err != nil {
		return domain.UploadResult{}, domain.NewUploadError(domain.UploadNetworkError, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+uploadPath, body)
	if err != nil {
		return domain.UploadResult{}, domain.NewUploadError(domain.UploadNetworkError, err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+credential)

	resp, err := c.httpc.Do(req)
	if err != nil {
		c.log.Warn().Err(err).Msg("upload transport failure")
		return domain.UploadResult{}, domain.NewUploadError(domain.UploadNetworkError, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.log.Warn().Int("status", resp.StatusCode).Msg("upload rejected")
		return domain.UploadResult{}, domain.NewUploadError(classifyStatus(resp.StatusCode), nil)
	}

	var result domain.UploadResult
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&result); err != nil {
		return domain.UploadResult{}, domain.NewUploadError(domain.UploadServerError, fmt.Errorf("invalid upload response: %w", err))
	}
	c.log.Info().Str("path", result.Path).Int64("size", result.Size).Msg("upload complete")
	return result, nil
}

func classifyStatus(status int) domain.UploadErrorType {
	switch status {
	case http.StatusUnauthorized:
		return domain.UploadUnauthorized
	case http.StatusRequestEntityTooLarge:
		return domain.UploadFileTooLarge
	case http.StatusUnsupportedMediaType:
		return domain.UploadInvalidType
	default:
		return domain.UploadServerError
	}
}

// extensionFor maps a whitelisted MIME type to a filename extension.
// Parameters (";codecs=opus") are ignored for the whitelist check.
func extensionFor(mimeType string) (string, bool) {
	parsed, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		parsed = mimeType
	}
	ext, ok := allowedTypes[parsed]
	return ext, ok
}

// ExtensionFallback resolves an extension for any MIME type, falling back
// to webm for unknown types.
func ExtensionFallback(mimeType string) string {
	if ext, ok := extensionFor(mimeType); ok {
		return ext
	}
	return "webm"
}
