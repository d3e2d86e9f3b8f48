// Command vocalog records a spoken decision from the microphone, shows a
// live level meter, and prints the transcript after upload and
// transcription.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"vocalog/internal/bootstrap"
	"vocalog/internal/domain"
)

const meterWidth = 24

func main() {
	events := &consoleEvents{}
	services, err := bootstrap.Build(events)
	if err != nil {
		fmt.Fprintf(os.Stderr, "startup failed: %v\n", err)
		os.Exit(1)
	}
	log := services.Log

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Println("Speak your decision. Press Enter to stop recording.")
	if err := services.Orchestrator.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", services.Orchestrator.ErrorMessage())
		os.Exit(1)
	}

	enterPressed := make(chan struct{})
	go func() {
		reader := bufio.NewReader(os.Stdin)
		_, _ = reader.ReadString('\n')
		close(enterPressed)
	}()

	select {
	case <-enterPressed:
	case <-ctx.Done():
	}

	sess, err := services.Orchestrator.Stop()
	events.clearMeter()
	if err != nil {
		log.Error().Err(err).Msg("stop failed")
		os.Exit(1)
	}
	if sess.Err != nil && sess.Blob == nil {
		fmt.Fprintf(os.Stderr, "%s\n", sess.Err.Message)
		os.Exit(1)
	}
	if sess.Err != nil {
		fmt.Fprintf(os.Stderr, "note: %s\n", sess.Err.Message)
	}

	fmt.Printf("Recorded %d seconds (%d bytes, %s). Uploading...\n",
		sess.ElapsedSeconds, len(sess.Blob), sess.MimeType)

	uploaded, transcript, err := services.Pipeline.Process(ctx, sess.Blob, sess.MimeType)
	if err != nil {
		fmt.Fprintf(os.Stderr, "processing failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Stored at %s\n\n", uploaded.URL)
	fmt.Printf("Transcript (confidence %.2f):\n%s\n", transcript.Confidence, transcript.Text)
}

// consoleEvents renders pipeline events on the terminal.
type consoleEvents struct {
	mu       sync.Mutex
	metering bool
}

func (e *consoleEvents) StateChanged(state domain.RecordingState) {
	if state == domain.RecordingStateRequestingPermission {
		fmt.Println("Requesting microphone access...")
	}
}

func (e *consoleEvents) AnalysisFrame(frame domain.AnalysisFrame) {
	if len(frame.FrequencyData) == 0 {
		return
	}
	total := 0
	for _, v := range frame.FrequencyData {
		total += int(v)
	}
	level := total / len(frame.FrequencyData) * meterWidth / 255

	e.mu.Lock()
	defer e.mu.Unlock()
	e.metering = true
	bar := strings.Repeat("█", level) + strings.Repeat("░", meterWidth-level)
	fmt.Printf("\r[%s]", bar)
}

func (e *consoleEvents) PartialCaption(text string) {
	e.clearMeter()
	fmt.Printf("… %s\n", text)
}

func (e *consoleEvents) RecordingError(message string) {
	e.clearMeter()
	fmt.Fprintln(os.Stderr, message)
}

func (e *consoleEvents) clearMeter() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.metering {
		fmt.Print("\r" + strings.Repeat(" ", meterWidth+2) + "\r")
		e.metering = false
	}
}
