package events

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	// keepAliveInterval is how often an idle stream gets a comment line so
	// proxies and the browser's EventSource do not drop it.
	keepAliveInterval = 15 * time.Second
	// retryMillis is the reconnect delay suggested to EventSource clients.
	retryMillis = 3000
)

// FeedFilter selects feeds on a stream. A nil filter passes everything.
type FeedFilter map[string]struct{}

// ParseFeeds reads a comma-separated feed list such as "handoff,tabs".
// Blank items are ignored, and an empty list yields a nil filter. Names
// outside the known feeds are rejected so a typo does not silently mute the
// stream.
func ParseFeeds(raw string) (FeedFilter, error) {
	var f FeedFilter
	for _, name := range strings.Split(raw, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		switch name {
		case FeedHandoff, FeedAttach, FeedTabs:
		default:
			return nil, fmt.Errorf("unknown feed %q", name)
		}
		if f == nil {
			f = make(FeedFilter)
		}
		f[name] = struct{}{}
	}
	return f, nil
}

// Allows reports whether feed passes the filter.
func (f FeedFilter) Allows(feed string) bool {
	if f == nil {
		return true
	}
	_, ok := f[feed]
	return ok
}

// SSEHandler streams broker events as server-sent events.
//
// Query parameters:
//
//	feeds   comma-separated feed names; all feeds when absent
//	replay  number of recent events to send before live ones, capped by
//	        the broker history
//
// Idle streams receive a ": keep-alive" comment every 15 seconds.
func SSEHandler(broker *Broker) http.HandlerFunc {
	return newSSEHandler(broker, keepAliveInterval)
}

func newSSEHandler(broker *Broker, keepAlive time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming not supported", http.StatusInternalServerError)
			return
		}
		q := r.URL.Query()
		filter, err := ParseFeeds(q.Get("feeds"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		replay := 0
		if raw := q.Get("replay"); raw != "" {
			if replay, err = strconv.Atoi(raw); err != nil || replay < 0 {
				http.Error(w, "replay must be a non-negative integer", http.StatusBadRequest)
				return
			}
		}

		h := w.Header()
		h.Set("Content-Type", "text/event-stream")
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		h.Set("X-Accel-Buffering", "no")
		fmt.Fprintf(w, "retry: %d\n\n", retryMillis)
		flusher.Flush()

		// Subscribe before reading history so nothing published in between
		// is lost; replayed IDs are skipped when they arrive live.
		id, ch := broker.Subscribe()
		defer broker.Unsubscribe(id)

		var sent map[string]struct{}
		if replay > 0 {
			sent = make(map[string]struct{})
			for _, evt := range recentMatching(broker, filter, replay) {
				writeEvent(w, evt)
				sent[evt.ID] = struct{}{}
			}
			flusher.Flush()
		}

		ticker := time.NewTicker(keepAlive)
		defer ticker.Stop()
		for {
			select {
			case <-r.Context().Done():
				return
			case <-ticker.C:
				io.WriteString(w, ": keep-alive\n\n")
				flusher.Flush()
			case evt, ok := <-ch:
				if !ok {
					return
				}
				if !filter.Allows(evt.Feed) {
					continue
				}
				if _, dup := sent[evt.ID]; dup {
					delete(sent, evt.ID)
					continue
				}
				writeEvent(w, evt)
				flusher.Flush()
			}
		}
	}
}

// recentMatching returns the last n history events that pass filter.
func recentMatching(broker *Broker, filter FeedFilter, n int) []Event {
	all := broker.Recent("", 0)
	out := make([]Event, 0, n)
	for i := len(all) - 1; i >= 0 && len(out) < n; i-- {
		if filter.Allows(all[i].Feed) {
			out = append(out, all[i])
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

func writeEvent(w io.Writer, evt Event) {
	fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", evt.ID, evt.Feed, evt.Payload)
}
