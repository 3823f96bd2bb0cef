package agent

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/codefionn/agentweb/internal/api"
	"github.com/codefionn/agentweb/internal/sse"
)

// consume feeds s from the session stream until a terminal signal, a
// transport failure or cancellation.
func (c *Client) consume(ctx context.Context, s *Session) {
	// received counts dispatched SSE messages across connections so a
	// resumed stream without ids can skip what it already delivered.
	received := 0
	attempt := 0

	op := func() error {
		attempt++
		err := c.streamOnce(ctx, s, attempt > 1, &received)
		switch {
		case err == nil:
			return nil
		case ctx.Err() != nil:
			return backoff.Permanent(ctx.Err())
		case errors.Is(err, errStreamEnded) && s.concluded():
			s.complete()
			return nil
		case isClientError(err):
			return backoff.Permanent(err)
		}
		return err
	}

	var err error
	if c.reconnect.Enabled && c.reconnect.MaxRetries > 0 {
		b := backoff.WithContext(backoff.WithMaxRetries(c.newBackOff(), uint64(c.reconnect.MaxRetries)), ctx)
		err = backoff.RetryNotify(op, b, func(err error, wait time.Duration) {
			c.log.Warn("Stream for session %s interrupted (%v), reconnecting in %s", s.ID(), err, wait)
		})
	} else {
		err = op()
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			err = perm.Err
		}
	}

	switch {
	case err == nil:
	case ctx.Err() != nil:
		s.fail(context.Canceled)
	default:
		c.log.Error("SSE connection error for session %s: %v", s.ID(), err)
		s.fail(err)
	}
}

func (c *Client) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if c.reconnect.InitialInterval > 0 {
		b.InitialInterval = c.reconnect.InitialInterval
	}
	if c.reconnect.MaxInterval > 0 {
		b.MaxInterval = c.reconnect.MaxInterval
	}
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// streamOnce runs one connection. It returns nil once the session is
// terminal, errStreamEnded on a clean EOF and the transport error otherwise.
func (c *Client) streamOnce(ctx context.Context, s *Session, resume bool, received *int) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(api.StreamPath(s.ID())), nil)
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set("Accept", sse.ContentType)
	req.Header.Set("Cache-Control", "no-cache")

	skip := 0
	if resume {
		if last := s.LastEventID(); last != "" {
			req.Header.Set("Last-Event-ID", last)
		} else {
			skip = *received
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &HTTPError{Method: http.MethodGet, Path: req.URL.Path, StatusCode: resp.StatusCode}
	}
	c.log.Debug("Stream opened for session %s", s.ID())

	dec := sse.NewDecoder(resp.Body)
	for {
		msg, err := dec.Next()
		if errors.Is(err, io.EOF) {
			return errStreamEnded
		}
		if err != nil {
			return err
		}

		if skip > 0 {
			skip--
			continue
		}
		*received++

		done := c.dispatch(s, msg)
		if msg.ID != "" {
			s.setLastID(msg.ID)
		}
		if done {
			return nil
		}
	}
}

// dispatch applies one SSE message and reports whether the session is
// terminal afterwards.
func (c *Client) dispatch(s *Session, msg sse.Message) bool {
	if len(msg.Data) == 0 {
		return false
	}
	typ, payload, err := decodeEvent(msg.Data)
	if err != nil {
		c.log.Warn("Skipping malformed event for session %s: %v", s.ID(), err)
		return false
	}
	if typ.Terminal() {
		s.complete()
		return true
	}
	_, ok := s.append(typ, payload, msg.Data)
	return !ok
}

func isClientError(err error) bool {
	var httpErr *HTTPError
	return errors.As(err, &httpErr) && httpErr.StatusCode >= 400 && httpErr.StatusCode < 500 &&
		httpErr.StatusCode != http.StatusRequestTimeout && httpErr.StatusCode != http.StatusTooManyRequests
}
