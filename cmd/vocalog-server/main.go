// Command vocalog-server runs a local implementation of the audio upload
// endpoint for development: bearer-authenticated multipart uploads stored
// on disk.
package main

import (
	"errors"
	"net/http"
	"os"

	"vocalog/internal/bootstrap"
	"vocalog/internal/config"
	"vocalog/internal/uploadserver"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Exit(1)
	}
	log := bootstrap.NewLogger(cfg.Log)

	if cfg.Upload.Token == "" {
		log.Fatal().Msg("VOCALOG_UPLOAD_TOKEN must be set")
	}
	if err := uploadserver.EnsureDir(cfg.Server.Dir); err != nil {
		log.Fatal().Err(err).Msg("storage dir unavailable")
	}

	server := uploadserver.New(uploadserver.Config{
		Token:         cfg.Upload.Token,
		Dir:           cfg.Server.Dir,
		PublicBaseURL: cfg.Server.PublicBaseURL,
	}, log)

	log.Info().Str("addr", cfg.Server.Addr).Str("dir", cfg.Server.Dir).Msg("upload server listening")
	if err := http.ListenAndServe(cfg.Server.Addr, server.Router()); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("server exited")
	}
}
