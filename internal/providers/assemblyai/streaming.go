package assemblyai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"vocalog/internal/domain"
	"vocalog/internal/ports"
)

// StreamingConfig controls the realtime caption session.
type StreamingConfig struct {
	APIKey  string
	BaseURL string
}

// Captioner implements ports.LiveCaptioner over the streaming API. Caption
// text is best-effort UI feedback; the authoritative transcript still comes
// from the polling client after upload.
type Captioner struct {
	cfg StreamingConfig
	log zerolog.Logger
}

func NewCaptioner(cfg StreamingConfig, log zerolog.Logger) *Captioner {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://streaming.assemblyai.com"
	}
	return &Captioner{cfg: cfg, log: log.With().Str("component", "captions").Logger()}
}

func (c *Captioner) Start(ctx context.Context, cfg ports.StreamConfig) (ports.CaptionSession, error) {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return nil, errors.New("caption API key is not configured")
	}

	wsURL, err := buildStreamURL(c.cfg.BaseURL, cfg)
	if err != nil {
		return nil, err
	}

	headers := http.Header{}
	headers.Set("Authorization", c.cfg.APIKey)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to caption stream: %w", err)
	}

	session := &captionSession{
		conn:   conn,
		events: make(chan domain.CaptionEvent, 64),
		audio:  make(chan []byte, 32),
		done:   make(chan struct{}),
	}

	session.wg.Add(2)
	go session.readLoop()
	go session.writeLoop()
	go func() {
		session.wg.Wait()
		close(session.events)
		close(session.done)
		_ = conn.Close()
	}()

	go func() {
		<-ctx.Done()
		_ = session.Close()
	}()

	return session, nil
}

type captionSession struct {
	conn *websocket.Conn

	events chan domain.CaptionEvent
	audio  chan []byte
	done   chan struct{}

	wg sync.WaitGroup

	errMu sync.Mutex
	err   error

	closeSendOnce sync.Once
	closeOnce     sync.Once
	sendMu        sync.RWMutex
	sendClosed    bool
}

func (s *captionSession) SendAudio(chunk []byte) error {
	if len(chunk) == 0 {
		return nil
	}

	s.sendMu.RLock()
	closed := s.sendClosed
	s.sendMu.RUnlock()
	if closed {
		return errors.New("caption stream is already closed")
	}

	copied := append([]byte(nil), chunk...)
	select {
	case s.audio <- copied:
		return nil
	case <-s.done:
		if err := s.waitErr(); err != nil {
			return err
		}
		return errors.New("caption session closed")
	}
}

func (s *captionSession) CloseSend() error {
	s.closeSendOnce.Do(func() {
		s.sendMu.Lock()
		s.sendClosed = true
		close(s.audio)
		s.sendMu.Unlock()
	})
	return nil
}

func (s *captionSession) Events() <-chan domain.CaptionEvent {
	return s.events
}

func (s *captionSession) Wait() error {
	<-s.done
	return s.waitErr()
}

func (s *captionSession) Close() error {
	s.closeOnce.Do(func() {
		_ = s.CloseSend()
		_ = s.conn.Close()
	})
	<-s.done
	return s.waitErr()
}

func (s *captionSession) waitErr() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *captionSession) setErr(err error) {
	if err == nil {
		return
	}
	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
	) {
		return
	}

	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func (s *captionSession) writeLoop() {
	defer s.wg.Done()

	for chunk := range s.audio {
		if err := s.conn.WriteMessage(websocket.BinaryMessage, chunk); err != nil {
			s.setErr(fmt.Errorf("failed to send audio: %w", err))
			return
		}
	}

	if err := s.conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"Terminate"}`)); err != nil {
		s.setErr(fmt.Errorf("failed to terminate stream: %w", err))
	}
}

func (s *captionSession) readLoop() {
	defer s.wg.Done()

	for {
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			s.setErr(fmt.Errorf("failed to read caption event: %w", err))
			return
		}

		var msg streamMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			continue
		}

		switch msg.Type {
		case "Turn":
			text := strings.TrimSpace(msg.Transcript)
			if text == "" {
				continue
			}
			s.emit(domain.CaptionEvent{Text: text, Final: msg.EndOfTurn})
		case "Termination":
			return
		case "Error":
			message := strings.TrimSpace(msg.Error)
			if message == "" {
				message = "caption stream returned an unknown error"
			}
			s.setErr(errors.New(message))
			return
		}
	}
}

func (s *captionSession) emit(event domain.CaptionEvent) {
	select {
	case s.events <- event:
	case <-s.done:
	default:
	}
}

type streamMessage struct {
	Type       string `json:"type"`
	Transcript string `json:"transcript"`
	EndOfTurn  bool   `json:"end_of_turn"`
	Error      string `json:"error"`
}

func buildStreamURL(base string, cfg ports.StreamConfig) (string, error) {
	base = strings.TrimSpace(base)
	if strings.HasPrefix(base, "https://") {
		base = "wss://" + strings.TrimPrefix(base, "https://")
	} else if strings.HasPrefix(base, "http://") {
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	base = strings.TrimRight(base, "/")

	streamURL, err := url.Parse(base + "/v3/ws")
	if err != nil {
		return "", fmt.Errorf("invalid caption stream base URL: %w", err)
	}

	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	query := streamURL.Query()
	query.Set("sample_rate", strconv.Itoa(cfg.SampleRate))
	query.Set("encoding", "pcm_s16le")
	streamURL.RawQuery = query.Encode()
	return streamURL.String(), nil
}
