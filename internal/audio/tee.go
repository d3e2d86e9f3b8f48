package audio

import (
	"io"
	"sync"

	"vocalog/internal/ports"
)

// BranchMode controls what happens when a branch consumer falls behind.
type BranchMode int

const (
	// Blocking branches never lose PCM; the reader waits for them.
	Blocking BranchMode = iota
	// Lossy branches drop chunks when full. Suitable for visualization,
	// which only ever wants the most recent audio.
	Lossy
)

const teeChunkSize = 4096

// Tee fans one hardware stream out to several consumers so the encoder and
// the analyzer can share a single microphone acquisition. Stopping the tee
// releases the underlying stream exactly once.
type Tee struct {
	src      ports.AudioStream
	branches []*branch
	readDone chan struct{}

	stopOnce sync.Once
	stopErr  error
}

// NewTee starts pumping src into one branch per mode.
func NewTee(src ports.AudioStream, modes ...BranchMode) *Tee {
	t := &Tee{
		src:      src,
		readDone: make(chan struct{}),
	}
	for _, mode := range modes {
		t.branches = append(t.branches, &branch{
			mode:     mode,
			ch:       make(chan []byte, 64),
			detachCh: make(chan struct{}),
		})
	}
	go t.readLoop()
	return t
}

// Branch returns the i-th consumer stream. Closing a branch detaches it
// without touching the hardware stream.
func (t *Tee) Branch(i int) ports.AudioStream {
	return t.branches[i]
}

// Stop releases the underlying hardware stream and ends all branches.
func (t *Tee) Stop() error {
	t.stopOnce.Do(func() {
		t.stopErr = t.src.Stop()
		<-t.readDone
	})
	return t.stopErr
}

func (t *Tee) readLoop() {
	defer func() {
		for _, b := range t.branches {
			b.closeSend()
		}
		close(t.readDone)
	}()

	buf := make([]byte, teeChunkSize)
	for {
		n, err := t.src.Read(buf)
		if n > 0 {
			alive := false
			for _, b := range t.branches {
				if b.send(buf[:n]) {
					alive = true
				}
			}
			if !alive {
				return
			}
		}
		if err != nil {
			return
		}
	}
}

type branch struct {
	mode     BranchMode
	ch       chan []byte
	detachCh chan struct{}

	mu       sync.Mutex
	detached bool
	sendDone bool
	leftover []byte
}

func (b *branch) send(chunk []byte) bool {
	b.mu.Lock()
	detached := b.detached
	b.mu.Unlock()
	if detached {
		return false
	}

	copied := append([]byte(nil), chunk...)
	if b.mode == Lossy {
		select {
		case b.ch <- copied:
		default:
		}
		return true
	}

	select {
	case b.ch <- copied:
		return true
	case <-b.detachCh:
		return false
	}
}

func (b *branch) closeSend() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.sendDone {
		b.sendDone = true
		close(b.ch)
	}
}

func (b *branch) Read(p []byte) (int, error) {
	if len(b.leftover) > 0 {
		n := copy(p, b.leftover)
		b.leftover = b.leftover[n:]
		return n, nil
	}

	// Queued chunks are delivered even after a detach, so the tail of a
	// recording survives the owner releasing the branch.
	select {
	case chunk, ok := <-b.ch:
		return b.deliver(p, chunk, ok)
	default:
	}

	select {
	case chunk, ok := <-b.ch:
		return b.deliver(p, chunk, ok)
	case <-b.detachCh:
		select {
		case chunk, ok := <-b.ch:
			return b.deliver(p, chunk, ok)
		default:
		}
		return 0, io.EOF
	}
}

func (b *branch) deliver(p []byte, chunk []byte, ok bool) (int, error) {
	if !ok {
		return 0, io.EOF
	}
	n := copy(p, chunk)
	if n < len(chunk) {
		b.leftover = chunk[n:]
	}
	return n, nil
}

// Close detaches the branch. Already-queued chunks stay readable until EOF;
// the hardware stream is left to its owner.
func (b *branch) Close() error {
	b.mu.Lock()
	if !b.detached {
		b.detached = true
		close(b.detachCh)
	}
	b.mu.Unlock()
	return nil
}

func (b *branch) Stop() error { return b.Close() }
