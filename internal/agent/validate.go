package agent

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/codefionn/agentweb/internal/api"
)

// Validation is the outcome of ValidateConfig.
type Validation = api.Validation

const (
	msgKeyRequired      = "API key is required"
	msgValidationPrefix = "Failed to validate configuration: "
	msgBackendDown      = "Backend server not responding"
)

// ValidateConfig checks cfg locally and then against the backend. It never
// returns an error: every failure is reported as Valid=false with a reason.
// A blank API key is rejected without any network call. A non-2xx health
// probe reports the backend as not responding; a transport failure reports
// the transport error.
func (c *Client) ValidateConfig(ctx context.Context, cfg Config) Validation {
	if cfg.APIKey.IsBlank() {
		return Validation{Valid: false, Message: msgKeyRequired}
	}
	if err := cfg.Validate(); err != nil {
		return Validation{Valid: false, Message: err.Error()}
	}

	if err := c.Health(ctx); err != nil {
		c.log.Warn("Health check failed: %v", err)
		var httpErr *HTTPError
		if errors.As(err, &httpErr) {
			return Validation{Valid: false, Message: msgValidationPrefix + msgBackendDown}
		}
		return Validation{Valid: false, Message: msgValidationPrefix + err.Error()}
	}

	var (
		body    []byte
		bodyErr error
	)
	cfg.APIKey.WithValue(func(key string) {
		body, bodyErr = json.Marshal(api.ValidateRequest{
			Provider: cfg.Provider,
			Model:    cfg.Model,
			APIKey:   key,
			MaxSteps: cfg.MaxSteps,
		})
	})
	if bodyErr != nil {
		return Validation{Valid: false, Message: msgValidationPrefix + bodyErr.Error()}
	}

	var out Validation
	if err := c.do(ctx, http.MethodPost, api.PathValidateConfig, body, &out); err != nil {
		c.log.Warn("Validation request failed: %v", err)
		return Validation{Valid: false, Message: msgValidationPrefix + err.Error()}
	}
	return out
}

// Health probes the backend liveness endpoint.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, api.PathHealth, nil, nil)
}
