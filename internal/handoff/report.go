package handoff

import "time"

// Outcome names how a producer or consumer run ended.
type Outcome string

const (
	OutcomeOpened           Outcome = "opened"
	OutcomeFailed           Outcome = "failed"
	OutcomeDelivered        Outcome = "delivered"
	OutcomeSkippedNotTarget Outcome = "skipped_not_target"
	OutcomeSkippedNoAddress Outcome = "skipped_no_address"
	OutcomeSkippedNoEntry   Outcome = "skipped_no_entry"
	OutcomeSkippedStale     Outcome = "skipped_stale"
	OutcomeTimedOut         Outcome = "timed_out"
)

// Skipped reports whether o is one of the silent no-op outcomes.
func (o Outcome) Skipped() bool {
	switch o {
	case OutcomeSkippedNotTarget, OutcomeSkippedNoAddress, OutcomeSkippedNoEntry, OutcomeSkippedStale:
		return true
	}
	return false
}

const (
	StageProducer = "producer"
	StageConsumer = "consumer"
)

// Report is what producers and consumers tell observers after each run.
type Report struct {
	Stage     string
	Outcome   Outcome
	Address   Address
	Signature string
	URL       string
	Attempts  int
	Elapsed   time.Duration
	Err       error
}

// Observer receives handoff reports. Implementations must not block.
type Observer interface {
	ObserveHandoff(Report)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Report)

func (f ObserverFunc) ObserveHandoff(r Report) { f(r) }

type nopObserver struct{}

func (nopObserver) ObserveHandoff(Report) {}
