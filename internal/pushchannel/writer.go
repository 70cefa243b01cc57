package pushchannel

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
)

// Writer streams newline-delimited JSON envelopes over one long-lived
// HTTP response, flushing after each so the client observes them as
// they are produced. It enforces the channel contract: at most one
// terminal envelope, always the last one written.
type Writer struct {
	w       http.ResponseWriter
	flusher http.Flusher

	mu     sync.Mutex
	closed bool
}

// NewWriter prepares w for push-channel streaming. Returns an error if
// the underlying writer cannot flush incrementally.
func NewWriter(w http.ResponseWriter) (*Writer, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support streaming")
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")

	return &Writer{w: w, flusher: flusher}, nil
}

// Push writes one envelope as a JSON line and flushes it.
func (pw *Writer) Push(env Envelope) error {
	pw.mu.Lock()
	defer pw.mu.Unlock()

	if pw.closed {
		return fmt.Errorf("push channel already terminated")
	}

	line, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to encode envelope: %w", err)
	}
	line = append(line, '\n')

	if _, err := pw.w.Write(line); err != nil {
		return fmt.Errorf("failed to write envelope: %w", err)
	}
	pw.flusher.Flush()

	if env.IsTerminal() {
		pw.closed = true
	}
	return nil
}

// Terminated reports whether a terminal envelope has been written.
func (pw *Writer) Terminated() bool {
	pw.mu.Lock()
	defer pw.mu.Unlock()
	return pw.closed
}

// ChanSink is an in-process Sink backed by a channel, used by tests and
// by the in-process playback client.
type ChanSink struct {
	ch     chan Envelope
	mu     sync.Mutex
	closed bool
}

// NewChanSink creates a buffered channel sink.
func NewChanSink(buffer int) *ChanSink {
	return &ChanSink{ch: make(chan Envelope, buffer)}
}

// Push delivers the envelope in order. The channel is closed after the
// terminal envelope so consumers can range over Envelopes.
func (cs *ChanSink) Push(env Envelope) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if cs.closed {
		return fmt.Errorf("push channel already terminated")
	}
	cs.ch <- env
	if env.IsTerminal() {
		cs.closed = true
		close(cs.ch)
	}
	return nil
}

// Envelopes exposes the ordered stream for consumption.
func (cs *ChanSink) Envelopes() <-chan Envelope {
	return cs.ch
}

// Abort closes the channel without a terminal envelope. Used when the
// producing turn is cancelled by the caller.
func (cs *ChanSink) Abort() {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if !cs.closed {
		cs.closed = true
		close(cs.ch)
	}
}
