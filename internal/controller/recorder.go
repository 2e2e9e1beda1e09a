package controller

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgnsrekt/rolefit/internal/events"
	"github.com/dgnsrekt/rolefit/internal/handoff"
)

const notifyTimeout = 5 * time.Second

// HandoffRecord is the serialized form of a handoff report.
type HandoffRecord struct {
	Stage     string `json:"stage"`
	Outcome   string `json:"outcome"`
	Channel   string `json:"channel,omitempty"`
	Tab       string `json:"tab,omitempty"`
	Signature string `json:"signature,omitempty"`
	URL       string `json:"url,omitempty"`
	Attempts  int    `json:"attempts,omitempty"`
	ElapsedMS int64  `json:"elapsed_ms"`
	Error     string `json:"error,omitempty"`
}

func NewHandoffRecord(r handoff.Report) HandoffRecord {
	rec := HandoffRecord{
		Stage:     r.Stage,
		Outcome:   string(r.Outcome),
		Channel:   r.Address.Channel.Name,
		Tab:       string(r.Address.Tab),
		Signature: r.Signature,
		URL:       r.URL,
		Attempts:  r.Attempts,
		ElapsedMS: r.Elapsed.Milliseconds(),
	}
	if r.Err != nil {
		rec.Error = r.Err.Error()
	}
	return rec
}

// Journal appends records to durable storage.
type Journal interface {
	Append(kind string, payload any) error
}

// Notifier pushes a short message to the user.
type Notifier interface {
	Notify(ctx context.Context, message string) error
}

// Recorder fans handoff reports out to the event stream, the journal and an
// optional notifier. Every sink is optional.
type Recorder struct {
	broker   *events.Broker
	journal  Journal
	notifier Notifier
}

func NewRecorder(broker *events.Broker, journal Journal, notifier Notifier) *Recorder {
	return &Recorder{broker: broker, journal: journal, notifier: notifier}
}

// ObserveHandoff records rep. Skipped runs reach the event stream only;
// every destination page load produces one, so the journal would drown.
func (r *Recorder) ObserveHandoff(rep handoff.Report) {
	rec := NewHandoffRecord(rep)
	if rep.Outcome.Skipped() {
		r.broadcast(events.FeedHandoff, rec)
		return
	}
	r.publish(events.FeedHandoff, rec.Stage+"."+rec.Outcome, rec)

	if r.notifier == nil {
		return
	}
	msg := notificationFor(rec)
	if msg == "" {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		if err := r.notifier.Notify(ctx, msg); err != nil {
			slog.Warn("controller notification failed", "error", err)
		}
	}()
}

// publish sends payload to the broker and the journal.
func (r *Recorder) publish(feed, kind string, payload any) {
	if r == nil {
		return
	}
	r.broadcast(feed, payload)
	if r.journal != nil {
		if err := r.journal.Append(kind, payload); err != nil {
			slog.Debug("controller journal append failed", "kind", kind, "error", err)
		}
	}
}

func (r *Recorder) broadcast(feed string, payload any) {
	if r == nil || r.broker == nil {
		return
	}
	if _, err := r.broker.PublishJSON(feed, payload); err != nil {
		slog.Warn("controller event publish failed", "feed", feed, "error", err)
	}
}

func notificationFor(rec HandoffRecord) string {
	if rec.Stage != handoff.StageConsumer {
		return ""
	}
	switch handoff.Outcome(rec.Outcome) {
	case handoff.OutcomeDelivered:
		return fmt.Sprintf("Delivered %q (%s).", rec.Signature, rec.Channel)
	case handoff.OutcomeTimedOut:
		return fmt.Sprintf("Could not deliver %q (%s): %s", rec.Signature, rec.Channel, rec.Error)
	default:
		return ""
	}
}
