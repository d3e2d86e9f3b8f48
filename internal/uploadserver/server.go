// Package uploadserver implements the audio upload endpoint this system
// consumes, for local development and tests: bearer-authenticated multipart
// POST, validated and stored on disk.
package uploadserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"vocalog/internal/domain"
	"vocalog/internal/upload"
)

// Config controls the endpoint.
type Config struct {
	// Token is the expected bearer credential.
	Token string
	// Dir is where audio files are stored.
	Dir string
	// PublicBaseURL prefixes returned file URLs.
	PublicBaseURL string
	// MaxSize defaults to the client-side ceiling.
	MaxSize int64
}

type Server struct {
	cfg Config
	log zerolog.Logger
}

func New(cfg Config, log zerolog.Logger) *Server {
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = upload.MaxBlobSize
	}
	return &Server{cfg: cfg, log: log.With().Str("component", "uploadserver").Logger()}
}

// Router exposes POST /api/audio/upload.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/api/audio/upload", s.handleUpload).Methods(http.MethodPost)
	return r
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		s.writeError(w, http.StatusUnauthorized, "invalid or missing credential")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxSize+(1<<16))
	if err := r.ParseMultipartForm(s.cfg.MaxSize); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			s.writeError(w, http.StatusRequestEntityTooLarge, "audio file exceeds the size limit")
			return
		}
		s.writeError(w, http.StatusBadRequest, "malformed multipart body")
		return
	}

	file, header, err := r.FormFile("audio")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "missing audio form field")
		return
	}
	defer func() { _ = file.Close() }()

	if header.Size > s.cfg.MaxSize {
		s.writeError(w, http.StatusRequestEntityTooLarge, "audio file exceeds the size limit")
		return
	}

	contentType := header.Header.Get("Content-Type")
	if !allowedContentType(contentType) {
		s.writeError(w, http.StatusUnsupportedMediaType, "unsupported audio type")
		return
	}

	name := uuid.NewString() + "." + upload.ExtensionFallback(contentType)
	path := filepath.Join(s.cfg.Dir, name)
	out, err := os.Create(path)
	if err != nil {
		s.log.Error().Err(err).Str("path", path).Msg("failed to create audio file")
		s.writeError(w, http.StatusInternalServerError, "failed to store audio")
		return
	}
	size, err := out.ReadFrom(file)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(path)
		s.log.Error().Err(err).Str("path", path).Msg("failed to write audio file")
		s.writeError(w, http.StatusInternalServerError, "failed to store audio")
		return
	}

	result := domain.UploadResult{
		URL:  s.cfg.PublicBaseURL + "/audio/" + name,
		Path: path,
		Size: size,
	}
	s.log.Info().Str("path", path).Int64("size", size).Msg("audio stored")

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(result)
}

func (s *Server) authorized(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(auth, "Bearer ")
	return ok && token != "" && token == s.cfg.Token
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func allowedContentType(contentType string) bool {
	parsed, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		parsed = contentType
	}
	switch parsed {
	case "audio/webm", "audio/mp4", "audio/mpeg", "audio/wav", "audio/x-wav", "audio/wave":
		return true
	default:
		return false
	}
}

// EnsureDir creates the storage directory if needed.
func EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create upload dir: %w", err)
	}
	return nil
}
