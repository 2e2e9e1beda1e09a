package handoff

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

const (
	DefaultDeliveryPollInterval = 200 * time.Millisecond
	DefaultDeliveryTimeout      = 25 * time.Second
	DefaultSettleAfterClear     = 80 * time.Millisecond
	DefaultSettleAfterWrite     = 150 * time.Millisecond
	// DefaultConsumerDelay is how long after a destination tab appears the
	// consumer is started.
	DefaultConsumerDelay = 1200 * time.Millisecond
)

// SurfaceHandle identifies a located input surface on the destination page.
type SurfaceHandle string

// InputSurface is the destination-page collaborator that owns the composer.
// Writes are best-effort; the consumer verifies them by reading back.
type InputSurface interface {
	Locate(ctx context.Context) (SurfaceHandle, bool, error)
	ReadText(ctx context.Context, h SurfaceHandle) (string, error)
	Clear(ctx context.Context, h SurfaceHandle) error
	WriteText(ctx context.Context, h SurfaceHandle, text string) (bool, error)
}

// ConsumerDeps wires a Consumer. Observer and Clock are optional.
type ConsumerDeps struct {
	Channels    []Channel
	Mailbox     *Mailbox
	Destination *DestinationConfig
	Surface     InputSurface
	Observer    Observer
	Clock       Clock

	PollInterval     time.Duration
	Timeout          time.Duration
	SettleAfterClear time.Duration
	SettleAfterWrite time.Duration
}

// Consumer delivers a mailbox entry into the destination page's composer.
type Consumer struct {
	deps ConsumerDeps
}

// Delivery describes one RunOnce.
type Delivery struct {
	Outcome   Outcome
	Address   Address
	Signature string
	Attempts  int
	Elapsed   time.Duration
}

func NewConsumer(deps ConsumerDeps) (*Consumer, error) {
	switch {
	case len(deps.Channels) == 0:
		return nil, errors.New("handoff consumer: at least one channel is required")
	case deps.Mailbox == nil:
		return nil, errors.New("handoff consumer: mailbox is required")
	case deps.Destination == nil:
		return nil, errors.New("handoff consumer: destination config is required")
	case deps.Surface == nil:
		return nil, errors.New("handoff consumer: input surface is required")
	}
	if deps.Clock == nil {
		deps.Clock = RealClock()
	}
	if deps.Observer == nil {
		deps.Observer = nopObserver{}
	}
	if deps.PollInterval <= 0 {
		deps.PollInterval = DefaultDeliveryPollInterval
	}
	if deps.Timeout <= 0 {
		deps.Timeout = DefaultDeliveryTimeout
	}
	if deps.SettleAfterClear <= 0 {
		deps.SettleAfterClear = DefaultSettleAfterClear
	}
	if deps.SettleAfterWrite <= 0 {
		deps.SettleAfterWrite = DefaultSettleAfterWrite
	}
	return &Consumer{deps: deps}, nil
}

// RunOnce delivers the entry addressed by pageURL, if any. Skips are not
// errors. On timeout the entry is left in place for a later load.
func (c *Consumer) RunOnce(ctx context.Context, pageURL string) (Delivery, error) {
	start := c.deps.Clock.Now()
	d, err := c.run(ctx, pageURL)
	d.Elapsed = c.deps.Clock.Now().Sub(start)

	c.deps.Observer.ObserveHandoff(Report{
		Stage:     StageConsumer,
		Outcome:   d.Outcome,
		Address:   d.Address,
		Signature: d.Signature,
		URL:       pageURL,
		Attempts:  d.Attempts,
		Elapsed:   d.Elapsed,
		Err:       err,
	})
	return d, err
}

func (c *Consumer) run(ctx context.Context, pageURL string) (Delivery, error) {
	dest, err := c.deps.Destination.Current()
	if err != nil || !dest.Matches(pageURL) {
		slog.Debug("handoff consumer not a configured target", "url", pageURL)
		return Delivery{Outcome: OutcomeSkippedNotTarget}, nil
	}

	addr, _, ok := AddressFromURL(pageURL, c.deps.Channels)
	if !ok {
		slog.Debug("handoff consumer no address in url", "url", pageURL)
		return Delivery{Outcome: OutcomeSkippedNoAddress}, nil
	}

	entry, err := c.deps.Mailbox.TryReceive(addr)
	switch {
	case IsCode(err, CodeNoEntry):
		slog.Debug("handoff consumer no payload found", "address", addr.String())
		return Delivery{Outcome: OutcomeSkippedNoEntry, Address: addr}, nil
	case IsCode(err, CodeStaleEntry):
		slog.Debug("handoff consumer payload is stale", "address", addr.String())
		return Delivery{Outcome: OutcomeSkippedStale, Address: addr}, nil
	case err != nil:
		return Delivery{Outcome: OutcomeFailed, Address: addr}, err
	}

	sig := SignatureOf(entry.Text)
	d := Delivery{Address: addr, Signature: sig}
	slog.Debug("handoff consumer expecting signature", "address", addr.String(), "signature", sig)

	found := false
	err = PollUntil(ctx, c.deps.Clock, c.deps.PollInterval, c.deps.Timeout, func(ctx context.Context) (bool, error) {
		d.Attempts++
		h, present, err := c.deps.Surface.Locate(ctx)
		if err != nil {
			slog.Debug("handoff consumer locate failed", "address", addr.String(), "error", err)
			return false, nil
		}
		if !present {
			return false, nil
		}
		found = true
		return c.inject(ctx, h, entry.Text, sig)
	})

	switch {
	case err == nil:
		if ackErr := c.deps.Mailbox.Ack(addr); ackErr != nil {
			d.Outcome = OutcomeDelivered
			return d, fmt.Errorf("handoff consumer: ack after delivery: %w", ackErr)
		}
		d.Outcome = OutcomeDelivered
		slog.Info("handoff consumer delivered payload", "address", addr.String(), "attempts", d.Attempts)
		return d, nil
	case errors.Is(err, ErrPollTimeout):
		d.Outcome = OutcomeTimedOut
		if !found {
			slog.Warn("handoff consumer composer not found within time limit", "address", addr.String(), "attempts", d.Attempts)
			return d, newError(CodeNoEligibleTarget, "input surface never appeared within "+c.deps.Timeout.String(), nil)
		}
		slog.Warn("handoff consumer payload not verified within time limit", "address", addr.String(), "attempts", d.Attempts)
		return d, newError(CodeSignatureMismatch, "payload not verified within "+c.deps.Timeout.String(), nil)
	default:
		d.Outcome = OutcomeFailed
		return d, err
	}
}

// inject clears the surface, writes text and checks the result for sig.
// A false result with nil error means retry.
func (c *Consumer) inject(ctx context.Context, h SurfaceHandle, text, sig string) (bool, error) {
	if err := c.deps.Surface.Clear(ctx, h); err != nil {
		slog.Debug("handoff consumer clear failed", "error", err)
		return false, nil
	}
	if err := sleep(ctx, c.deps.Clock, c.deps.SettleAfterClear); err != nil {
		return false, err
	}
	if _, err := c.deps.Surface.WriteText(ctx, h, text); err != nil {
		slog.Debug("handoff consumer write failed", "error", err)
		return false, nil
	}
	if err := sleep(ctx, c.deps.Clock, c.deps.SettleAfterWrite); err != nil {
		return false, err
	}
	got, err := c.deps.Surface.ReadText(ctx, h)
	if err != nil {
		slog.Debug("handoff consumer read back failed", "error", err)
		return false, nil
	}
	if !ContainsSignature(got, sig) {
		slog.Warn("handoff consumer signature not found after write; retrying")
		return false, nil
	}
	return true, nil
}
