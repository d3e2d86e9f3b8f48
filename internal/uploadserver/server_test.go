package uploadserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"vocalog/internal/domain"
	"vocalog/internal/upload"
)

func newTestServer(t *testing.T) (*httptest.Server, string) {
	t.Helper()
	dir := t.TempDir()
	srv := New(Config{
		Token:         "dev-token",
		Dir:           dir,
		PublicBaseURL: "http://media.local",
	}, zerolog.Nop())
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts, dir
}

func postAudio(t *testing.T, url, token, contentType string, payload []byte) *http.Response {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="audio"; filename="recording.webm"`)
	header.Set("Content-Type", contentType)
	part, err := writer.CreatePart(header)
	if err != nil {
		t.Fatalf("create part failed: %v", err)
	}
	if _, err := part.Write(payload); err != nil {
		t.Fatalf("write part failed: %v", err)
	}
	_ = writer.Close()

	req, err := http.NewRequest(http.MethodPost, url+"/api/audio/upload", body)
	if err != nil {
		t.Fatalf("new request failed: %v", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestUploadEndpointStoresAudio(t *testing.T) {
	t.Parallel()

	ts, dir := newTestServer(t)
	resp := postAudio(t, ts.URL, "dev-token", "audio/webm", []byte("opus-frames"))

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var result domain.UploadResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if !strings.HasPrefix(result.URL, "http://media.local/audio/") {
		t.Fatalf("unexpected url: %q", result.URL)
	}
	if result.Size != int64(len("opus-frames")) {
		t.Fatalf("size = %d", result.Size)
	}

	stored, err := os.ReadFile(result.Path)
	if err != nil {
		t.Fatalf("stored file unreadable: %v", err)
	}
	if !bytes.Equal(stored, []byte("opus-frames")) {
		t.Fatalf("stored bytes = %q", stored)
	}
	if !strings.HasPrefix(result.Path, dir) {
		t.Fatalf("file stored outside the configured dir: %q", result.Path)
	}
}

func TestUploadEndpointRejectsBadRequests(t *testing.T) {
	t.Parallel()

	ts, _ := newTestServer(t)

	cases := []struct {
		name        string
		token       string
		contentType string
		wantStatus  int
	}{
		{"missing token", "", "audio/webm", http.StatusUnauthorized},
		{"wrong token", "other", "audio/webm", http.StatusUnauthorized},
		{"bad content type", "dev-token", "text/plain", http.StatusUnsupportedMediaType},
	}
	for _, tc := range cases {
		resp := postAudio(t, ts.URL, tc.token, tc.contentType, []byte("x"))
		if resp.StatusCode != tc.wantStatus {
			t.Fatalf("%s: status = %d, want %d", tc.name, resp.StatusCode, tc.wantStatus)
		}
	}

	// Missing form field entirely.
	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/api/audio/upload", strings.NewReader(""))
	req.Header.Set("Authorization", "Bearer dev-token")
	req.Header.Set("Content-Type", "multipart/form-data; boundary=empty")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode == http.StatusOK {
		t.Fatalf("empty form accepted")
	}
}

func TestMalformedBodyIsBadRequestNotTooLarge(t *testing.T) {
	t.Parallel()

	ts, _ := newTestServer(t)

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/api/audio/upload", strings.NewReader("this is not multipart"))
	if err != nil {
		t.Fatalf("new request failed: %v", err)
	}
	req.Header.Set("Authorization", "Bearer dev-token")
	req.Header.Set("Content-Type", "multipart/form-data; boundary=xyz")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for a malformed body", resp.StatusCode)
	}
}

func TestOversizedBodyIsRejectedWith413(t *testing.T) {
	t.Parallel()

	srv := New(Config{
		Token:   "dev-token",
		Dir:     t.TempDir(),
		MaxSize: 16,
	}, zerolog.Nop())
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	// Larger than MaxSize plus the parser's header allowance.
	resp := postAudio(t, ts.URL, "dev-token", "audio/webm", bytes.Repeat([]byte{7}, 80<<10))
	if resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413 for an oversized body", resp.StatusCode)
	}
}

func TestClientAndServerRoundTrip(t *testing.T) {
	t.Parallel()

	ts, _ := newTestServer(t)
	client := upload.NewClient(ts.URL, nil, zerolog.Nop())

	result, err := client.Upload(context.Background(), []byte("blob"), "audio/webm;codecs=opus", "dev-token")
	if err != nil {
		t.Fatalf("round trip failed: %v", err)
	}
	if result.Size != 4 {
		t.Fatalf("size = %d, want 4", result.Size)
	}

	_, err = client.Upload(context.Background(), []byte("blob"), "audio/webm;codecs=opus", "wrong")
	var upErr *domain.UploadError
	if !errors.As(err, &upErr) || upErr.Type != domain.UploadUnauthorized {
		t.Fatalf("error = %v, want unauthorized", err)
	}
}
