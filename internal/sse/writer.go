package sse

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Writer emits events to an HTTP response and flushes after each one.
type Writer struct {
	w       io.Writer
	flusher http.Flusher
}

// NewWriter sets the event-stream headers on w and returns a Writer.
func NewWriter(w http.ResponseWriter) *Writer {
	h := w.Header()
	h.Set("Content-Type", ContentType)
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")

	flusher, _ := w.(http.Flusher)
	return &Writer{w: w, flusher: flusher}
}

// Write sends one message. Multi-line data is split into several data lines.
func (sw *Writer) Write(msg Message) error {
	var b bytes.Buffer
	if msg.ID != "" {
		fmt.Fprintf(&b, "id: %s\n", msg.ID)
	}
	if msg.Event != "" {
		fmt.Fprintf(&b, "event: %s\n", msg.Event)
	}
	if msg.Retry > 0 {
		fmt.Fprintf(&b, "retry: %d\n", msg.Retry.Milliseconds())
	}
	for _, line := range strings.Split(string(msg.Data), "\n") {
		fmt.Fprintf(&b, "data: %s\n", line)
	}
	b.WriteByte('\n')

	if _, err := sw.w.Write(b.Bytes()); err != nil {
		return err
	}
	sw.Flush()
	return nil
}

// Comment sends a comment line, used as a keep-alive.
func (sw *Writer) Comment(text string) error {
	if _, err := fmt.Fprintf(sw.w, ": %s\n\n", text); err != nil {
		return err
	}
	sw.Flush()
	return nil
}

// Flush pushes buffered bytes to the client when supported.
func (sw *Writer) Flush() {
	if sw.flusher != nil {
		sw.flusher.Flush()
	}
}
