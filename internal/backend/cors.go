package backend

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/rs/cors"

	"github.com/codefionn/agentweb/internal/logger"
)

// withCORS allows browser front ends on the configured origins. "*" allows
// any origin.
func withCORS(allowed []string, log *logger.Logger, next http.Handler) http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   normalizeOrigins(allowed),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Cache-Control", "Last-Event-ID"},
		AllowCredentials: true,
		MaxAge:           600,
		Debug:            log.GetLevel() == logger.LevelDebug,
		Logger:           logger.StdLogger(log, slog.LevelDebug),
	})
	return c.Handler(next)
}

func normalizeOrigins(allowed []string) []string {
	out := make([]string, 0, len(allowed))
	for _, o := range allowed {
		if o = strings.TrimRight(strings.TrimSpace(o), "/"); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// originAllowed reports whether a WebSocket upgrade from origin is allowed.
// Requests without an Origin header are not from a browser and pass.
func originAllowed(allowed []string, origin string) bool {
	if origin == "" {
		return true
	}
	for _, o := range normalizeOrigins(allowed) {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}
