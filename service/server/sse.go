package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/brojonat/moonportal/service/metrics"
	"github.com/brojonat/moonportal/service/sync"
)

// handleStreamViews streams a view event after every controller transition.
// GET /api/v1/stream
func handleStreamViews(c Controller, m *metrics.Metrics, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			writeError(w, "streaming not supported", "", http.StatusInternalServerError)
			return
		}

		// Set SSE headers
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		flusher.Flush()

		if m != nil {
			m.RecordSSEConnectionChange(1)
			defer m.RecordSSEConnectionChange(-1)
		}

		logger.DebugContext(r.Context(), "SSE client connected", "remote_addr", r.RemoteAddr)

		// Subscribers run on the controller loop; never block it. A slow client
		// only misses intermediate views, and the latest one is always sent.
		views := make(chan sync.View, 1)
		unsubscribe := c.Subscribe(func(v sync.View) {
			select {
			case views <- v:
			default:
				select {
				case <-views:
				default:
				}
				select {
				case views <- v:
				default:
				}
			}
		})
		defer unsubscribe()

		current, err := c.View(r.Context())
		if err != nil {
			fmt.Fprintf(w, "event: error\ndata: {\"error\": \"controller unavailable\"}\n\n")
			flusher.Flush()
			return
		}
		if err := writeViewEvent(w, current); err != nil {
			logger.WarnContext(r.Context(), "failed to marshal view", "error", err)
			return
		}
		flusher.Flush()

		// Create ticker for keepalive comments (every 10 seconds)
		keepalive := time.NewTicker(10 * time.Second)
		defer keepalive.Stop()

		for {
			select {
			case <-keepalive.C:
				fmt.Fprintf(w, ": keepalive\n\n")
				flusher.Flush()

			case v := <-views:
				if err := writeViewEvent(w, v); err != nil {
					logger.WarnContext(r.Context(), "failed to marshal view", "error", err)
					continue
				}
				flusher.Flush()

			case <-r.Context().Done():
				logger.DebugContext(r.Context(), "SSE client disconnected", "remote_addr", r.RemoteAddr)
				return
			}
		}
	})
}

func writeViewEvent(w http.ResponseWriter, v sync.View) error {
	data, err := json.Marshal(toResponse(v))
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: view\ndata: %s\n\n", data)
	return err
}
