package handoff

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

const (
	DefaultContentPollInterval = 150 * time.Millisecond
	DefaultContentTimeout      = 9 * time.Second
)

// ContentNotReadyAlert is shown when the source page never exposed enough
// content to capture.
const ContentNotReadyAlert = "Job details are not loaded yet. Open a job and try again."

// ContentSource is the page-side extraction collaborator.
type ContentSource interface {
	// IsContentReady reports whether the page exposes enough content to be
	// worth capturing.
	IsContentReady(ctx context.Context) (bool, error)
	ExtractableText(ctx context.Context) (string, error)
	// CrossReference returns an opaque id for the captured item, or "".
	CrossReference(ctx context.Context) (string, error)
}

// Opener opens a URL in a new, untracked tab.
type Opener interface {
	Open(ctx context.Context, url string) error
}

// Clipboard is the system clipboard.
type Clipboard interface {
	WriteText(text string) error
}

// Prompter talks to the user on the source page.
type Prompter interface {
	// PromptDestination asks for a destination URL. ok is false when the user
	// dismissed the prompt.
	PromptDestination(ctx context.Context, message, current string) (answer string, ok bool, err error)
	Alert(ctx context.Context, message string) error
}

// AffordanceState is the visual state of the trigger button.
type AffordanceState string

const (
	AffordanceIdle        AffordanceState = "idle"
	AffordanceConfiguring AffordanceState = "configuring"
	AffordancePreparing   AffordanceState = "preparing"
	AffordanceOpened      AffordanceState = "opened"
	AffordanceFailed      AffordanceState = "failed"
)

// Label is the button text for s.
func (s AffordanceState) Label() string {
	switch s {
	case AffordanceConfiguring:
		return "Config…"
	case AffordancePreparing:
		return "Preparing…"
	case AffordanceOpened:
		return "Opened"
	case AffordanceFailed:
		return "Failed"
	default:
		return "Check Suitability"
	}
}

// AffordanceFeedback updates the trigger button.
type AffordanceFeedback interface {
	SetAffordanceState(ctx context.Context, state AffordanceState) error
}

// ProducerDeps wires a Producer. Clipboard, Prompter, Feedback and Observer
// are optional.
type ProducerDeps struct {
	Page        *PageContext
	Channel     Channel
	Mailbox     *Mailbox
	Destination *DestinationConfig
	Content     ContentSource
	Opener      Opener
	Clipboard   Clipboard
	Prompter    Prompter
	Feedback    AffordanceFeedback
	Observer    Observer
	Clock       Clock

	ContentPollInterval time.Duration
	ContentTimeout      time.Duration
}

// Producer captures the source page's content and hands it to a new
// destination tab through the mailbox.
type Producer struct {
	deps ProducerDeps
}

// TriggerResult describes a successful trigger.
type TriggerResult struct {
	Address           Address
	Signature         string
	URL               string
	Entry             Entry
	CrossReference    string
	CopiedToClipboard bool
}

func NewProducer(deps ProducerDeps) (*Producer, error) {
	switch {
	case deps.Page == nil:
		return nil, errors.New("handoff producer: page context is required")
	case deps.Mailbox == nil:
		return nil, errors.New("handoff producer: mailbox is required")
	case deps.Destination == nil:
		return nil, errors.New("handoff producer: destination config is required")
	case deps.Content == nil:
		return nil, errors.New("handoff producer: content source is required")
	case deps.Opener == nil:
		return nil, errors.New("handoff producer: opener is required")
	case deps.Channel.PayloadPrefix == "" || deps.Channel.TabParam == "":
		return nil, errors.New("handoff producer: channel is incomplete")
	}
	if deps.Clock == nil {
		deps.Clock = RealClock()
	}
	if deps.Observer == nil {
		deps.Observer = nopObserver{}
	}
	if deps.ContentPollInterval <= 0 {
		deps.ContentPollInterval = DefaultContentPollInterval
	}
	if deps.ContentTimeout <= 0 {
		deps.ContentTimeout = DefaultContentTimeout
	}
	return &Producer{deps: deps}, nil
}

// Trigger runs one capture. forceReconfigure asks for a new destination even
// when a valid one is stored.
func (p *Producer) Trigger(ctx context.Context, forceReconfigure bool) (TriggerResult, error) {
	start := p.deps.Clock.Now()
	addr := Address{Channel: p.deps.Channel, Tab: p.deps.Page.Tab()}

	if forceReconfigure {
		p.feedback(ctx, AffordanceConfiguring)
	} else {
		p.feedback(ctx, AffordancePreparing)
	}

	res, err := p.trigger(ctx, addr, forceReconfigure)
	report := Report{
		Stage:     StageProducer,
		Outcome:   OutcomeOpened,
		Address:   addr,
		Signature: res.Signature,
		URL:       res.URL,
		Elapsed:   p.deps.Clock.Now().Sub(start),
		Err:       err,
	}
	switch {
	case err == nil:
		p.feedback(ctx, AffordanceOpened)
		slog.Info("handoff producer opened destination", "address", addr.String(), "signature", res.Signature)
	case IsCode(err, CodeConfigMissing) || IsCode(err, CodeConfigInvalid):
		report.Outcome = OutcomeFailed
		p.feedback(ctx, AffordanceIdle)
		slog.Warn("handoff producer destination unavailable", "address", addr.String(), "error", err)
	default:
		report.Outcome = OutcomeFailed
		p.feedback(ctx, AffordanceFailed)
		slog.Warn("handoff producer trigger failed", "address", addr.String(), "error", err)
	}
	p.deps.Observer.ObserveHandoff(report)
	return res, err
}

func (p *Producer) trigger(ctx context.Context, addr Address, force bool) (TriggerResult, error) {
	dest, err := p.resolveDestination(ctx, force)
	if err != nil {
		return TriggerResult{}, err
	}

	err = PollUntil(ctx, p.deps.Clock, p.deps.ContentPollInterval, p.deps.ContentTimeout, func(ctx context.Context) (bool, error) {
		ready, err := p.deps.Content.IsContentReady(ctx)
		if err != nil {
			slog.Debug("handoff producer readiness probe failed", "address", addr.String(), "error", err)
			return false, nil
		}
		return ready, nil
	})
	if errors.Is(err, ErrPollTimeout) {
		p.alert(ctx, ContentNotReadyAlert)
		return TriggerResult{}, newError(CodeContentNotReady, "content not ready within "+p.deps.ContentTimeout.String(), nil)
	}
	if err != nil {
		return TriggerResult{}, err
	}

	text, err := p.deps.Content.ExtractableText(ctx)
	if err != nil {
		return TriggerResult{}, fmt.Errorf("handoff producer: extract content: %w", err)
	}
	if NormalizeWhitespace(text) == "" {
		p.alert(ctx, ContentNotReadyAlert)
		return TriggerResult{}, newError(CodeContentNotReady, "extracted content is empty", nil)
	}
	sig := SignatureOf(text)

	entry, err := p.deps.Mailbox.Send(addr, text)
	if err != nil {
		return TriggerResult{Signature: sig}, err
	}

	res := TriggerResult{Address: addr, Signature: sig, Entry: entry}
	if p.deps.Clipboard != nil {
		if err := p.deps.Clipboard.WriteText(text); err != nil {
			slog.Debug("handoff producer clipboard write failed", "error", err)
		} else {
			res.CopiedToClipboard = true
		}
	}

	ref, err := p.deps.Content.CrossReference(ctx)
	if err != nil {
		slog.Debug("handoff producer cross reference unavailable", "error", err)
		ref = ""
	}
	res.CrossReference = ref

	ch := p.deps.Channel
	params := map[string]string{
		ch.TabParam: string(addr.Tab),
		ch.SigParam: sig,
	}
	if ch.RefParam != "" {
		params[ch.RefParam] = ref
	}
	res.URL = dest.WithQuery(params)

	if err := p.deps.Opener.Open(ctx, res.URL); err != nil {
		return res, fmt.Errorf("handoff producer: open destination: %w", err)
	}
	return res, nil
}

func (p *Producer) resolveDestination(ctx context.Context, force bool) (Destination, error) {
	cfg := p.deps.Destination
	if !force {
		dest, err := cfg.Current()
		if err == nil {
			return dest, nil
		}
		if !IsCode(err, CodeConfigMissing) && !IsCode(err, CodeConfigInvalid) {
			return Destination{}, err
		}
	}
	if p.deps.Prompter == nil {
		return Destination{}, newError(CodeConfigMissing, "no destination configured and no prompt available", nil)
	}

	current, _ := cfg.Raw()
	rule := cfg.Rule()
	answer, ok, err := p.deps.Prompter.PromptDestination(ctx, rule.PromptMessage(), current)
	if err != nil {
		return Destination{}, newError(CodeConfigMissing, "destination prompt failed", err)
	}
	if !ok {
		return Destination{}, newError(CodeConfigMissing, "destination prompt dismissed", nil)
	}
	if _, reason, valid := rule.Validate(answer); !valid {
		p.alert(ctx, "Invalid URL.\n\nRequirements:\n"+rule.Requirements()+"\n\nReason: "+reason)
		return Destination{}, newError(CodeConfigInvalid, "invalid destination: "+reason, nil)
	}
	dest, err := cfg.Set(answer)
	if err != nil {
		return Destination{}, err
	}
	slog.Info("handoff producer saved destination", "url", dest.String())
	return dest, nil
}

func (p *Producer) feedback(ctx context.Context, state AffordanceState) {
	if p.deps.Feedback == nil {
		return
	}
	if err := p.deps.Feedback.SetAffordanceState(ctx, state); err != nil {
		slog.Debug("handoff producer affordance update failed", "state", string(state), "error", err)
	}
}

func (p *Producer) alert(ctx context.Context, msg string) {
	if p.deps.Prompter == nil {
		return
	}
	if err := p.deps.Prompter.Alert(ctx, msg); err != nil {
		slog.Debug("handoff producer alert failed", "error", err)
	}
}
