// Package sse reads and writes text/event-stream framing.
package sse

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// ContentType is the media type of an event stream.
const ContentType = "text/event-stream"

// maxLineSize bounds a single field line.
const maxLineSize = 1 << 20

// Message is one dispatched event.
type Message struct {
	// Event is the "event:" field; empty means the default "message" event.
	Event string
	// ID is the last "id:" seen on the stream, carried over between messages.
	ID string
	// Data is every "data:" line joined with "\n".
	Data []byte
	// Retry is the reconnection delay requested by the server, or zero.
	Retry time.Duration
}

// Decoder reads Messages from an event stream.
type Decoder struct {
	scanner *bufio.Scanner
	lastID  string
	started bool
}

// NewDecoder returns a Decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	scanner.Split(scanLines)
	return &Decoder{scanner: scanner}
}

// LastEventID returns the stream's current last-event-id.
func (d *Decoder) LastEventID() string {
	return d.lastID
}

// Next blocks until a complete message is dispatched. It returns io.EOF when
// the stream ends cleanly; a trailing message without a blank line is dropped.
func (d *Decoder) Next() (Message, error) {
	var (
		data    bytes.Buffer
		hasData bool
		msg     Message
	)

	for d.scanner.Scan() {
		line := d.scanner.Text()
		if !d.started {
			d.started = true
			line = strings.TrimPrefix(line, "\ufeff")
		}

		if line == "" {
			if !hasData {
				// blank line without data only resets the event name
				msg.Event = ""
				msg.Retry = 0
				continue
			}
			msg.ID = d.lastID
			msg.Data = data.Bytes()
			return msg, nil
		}

		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, found := strings.Cut(line, ":")
		if found {
			value = strings.TrimPrefix(value, " ")
		}

		switch field {
		case "data":
			if hasData {
				data.WriteByte('\n')
			}
			data.WriteString(value)
			hasData = true
		case "event":
			msg.Event = value
		case "id":
			if !strings.ContainsRune(value, 0) {
				d.lastID = value
			}
		case "retry":
			if ms, err := strconv.Atoi(value); err == nil && ms >= 0 {
				msg.Retry = time.Duration(ms) * time.Millisecond
			}
		}
	}

	if err := d.scanner.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return Message{}, fmt.Errorf("sse: line exceeds %d bytes: %w", maxLineSize, err)
		}
		return Message{}, err
	}
	return Message{}, io.EOF
}

// scanLines splits on LF, CRLF or a lone CR.
func scanLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		if data[i] == '\n' {
			return i + 1, data[:i], nil
		}
		// CR: need one more byte to know whether LF follows
		if i+1 < len(data) {
			if data[i+1] == '\n' {
				return i + 2, data[:i], nil
			}
			return i + 1, data[:i], nil
		}
		if atEOF {
			return i + 1, data[:i], nil
		}
		return 0, nil, nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
