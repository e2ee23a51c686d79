package metrics

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/randomizedcoder/go-whisper-runner/internal/events"
)

// maxEventWait bounds the long-poll of /events. It stays below the server's
// write timeout.
const maxEventWait = 5 * time.Second

// EventSource is a sequenced event history. *events.Bus implements it.
type EventSource interface {
	Since(cursor uint64) ([]events.Event, uint64)
	Wait(ctx context.Context, cursor uint64) error
}

// EventPage is the JSON body served by /events.
type EventPage struct {
	Events []events.Event `json:"events"`
	Cursor uint64         `json:"cursor"`
}

// HandleEvents serves src on /events. Must be called before Start.
//
//	GET /events?since=<cursor>&wait=<duration>
//
// returns the retained events after cursor. With wait set and nothing new,
// the request blocks until an event arrives or wait elapses.
func (s *Server) HandleEvents(src EventSource) {
	s.mux.Handle("/events", eventsHandler(src))
}

func eventsHandler(src EventSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		var since uint64
		if v := q.Get("since"); v != "" {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				http.Error(w, "invalid since: "+v, http.StatusBadRequest)
				return
			}
			since = n
		}

		var wait time.Duration
		if v := q.Get("wait"); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil || d < 0 {
				http.Error(w, "invalid wait: "+v, http.StatusBadRequest)
				return
			}
			wait = min(d, maxEventWait)
		}

		if wait > 0 {
			ctx, cancel := context.WithTimeout(r.Context(), wait)
			err := src.Wait(ctx, since)
			cancel()
			if err != nil && r.Context().Err() != nil {
				return
			}
		}

		evs, cursor := src.Since(since)
		if evs == nil {
			evs = []events.Event{}
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(EventPage{Events: evs, Cursor: cursor})
	}
}
