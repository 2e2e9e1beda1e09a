package handoff

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/gobwas/glob"
)

const (
	DefaultAttachTick    = 500 * time.Millisecond
	DefaultBurstInterval = 100 * time.Millisecond
	DefaultBurstTimeout  = 3 * time.Second
)

// Signal reasons fed to AttachController.Run.
const (
	SignalPageShow   = "pageshow"
	SignalFocus      = "focus"
	SignalVisibility = "visibilitychange"
	SignalNavigated  = "navigated"
	SignalTick       = "tick"
	SignalInit       = "init"
)

// PageState is what the source page reports on each probe.
type PageState struct {
	URL               string `json:"url"`
	Visible           bool   `json:"visible"`
	MarkersPresent    bool   `json:"markers"`
	AffordancePresent bool   `json:"affordance"`
}

// SourceSurface is the source-page collaborator that owns the affordance.
// InsertAffordance must be idempotent; it returns false when no host element
// is available yet.
type SourceSurface interface {
	Probe(ctx context.Context) (PageState, error)
	InsertAffordance(ctx context.Context) (bool, error)
	RemoveAffordance(ctx context.Context) (bool, error)
}

// PathMatcher is a host and path allow-list.
type PathMatcher struct {
	hosts []glob.Glob
	paths []glob.Glob
}

// NewPathMatcher compiles host and path globs. Empty lists allow everything.
func NewPathMatcher(hostPatterns, pathPatterns []string) (*PathMatcher, error) {
	m := &PathMatcher{}
	for _, p := range hostPatterns {
		g, err := glob.Compile(strings.ToLower(p))
		if err != nil {
			return nil, fmt.Errorf("compile host pattern %q: %w", p, err)
		}
		m.hosts = append(m.hosts, g)
	}
	for _, p := range pathPatterns {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, fmt.Errorf("compile path pattern %q: %w", p, err)
		}
		m.paths = append(m.paths, g)
	}
	return m, nil
}

// Match reports whether rawURL is within the allow-list.
func (m *PathMatcher) Match(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return m.MatchHost(u.Hostname()) && matchAny(m.paths, u.Path)
}

// MatchHost reports whether host is within the host allow-list.
func (m *PathMatcher) MatchHost(host string) bool {
	return matchAny(m.hosts, strings.ToLower(host))
}

func matchAny(globs []glob.Glob, s string) bool {
	if len(globs) == 0 {
		return true
	}
	for _, g := range globs {
		if g.Match(s) {
			return true
		}
	}
	return false
}

// StepResult records what a single reconciliation step saw and did.
type StepResult struct {
	Reason          string `json:"reason"`
	Hidden          bool   `json:"hidden"`
	Location        string `json:"location"`
	LocationChanged bool   `json:"location_changed"`
	RouteAllowed    bool   `json:"route_allowed"`
	Eligible        bool   `json:"eligible"`
	Inserted        bool   `json:"inserted"`
	Removed         bool   `json:"removed"`
	Attached        bool   `json:"attached"`
}

// AttachController keeps exactly one affordance on eligible pages and none on
// ineligible ones. It reconciles on a tick because client-side routing does
// not reliably announce itself.
type AttachController struct {
	page    *PageContext
	surface SourceSurface
	matcher *PathMatcher
	clock   Clock

	tick          time.Duration
	burstInterval time.Duration
	burstTimeout  time.Duration
}

// AttachOption configures an AttachController.
type AttachOption func(*AttachController)

func WithAttachTick(d time.Duration) AttachOption {
	return func(a *AttachController) {
		if d > 0 {
			a.tick = d
		}
	}
}

func WithAttachClock(clk Clock) AttachOption {
	return func(a *AttachController) {
		if clk != nil {
			a.clock = clk
		}
	}
}

// WithAttachBurst sets how aggressively the controller retries right after a
// navigation signal.
func WithAttachBurst(interval, timeout time.Duration) AttachOption {
	return func(a *AttachController) {
		if interval > 0 {
			a.burstInterval = interval
		}
		if timeout > 0 {
			a.burstTimeout = timeout
		}
	}
}

func NewAttachController(page *PageContext, surface SourceSurface, matcher *PathMatcher, opts ...AttachOption) (*AttachController, error) {
	if page == nil || surface == nil {
		return nil, errors.New("attach controller: page context and surface are required")
	}
	if matcher == nil {
		matcher = &PathMatcher{}
	}
	a := &AttachController{
		page:          page,
		surface:       surface,
		matcher:       matcher,
		clock:         RealClock(),
		tick:          DefaultAttachTick,
		burstInterval: DefaultBurstInterval,
		burstTimeout:  DefaultBurstTimeout,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Step runs one reconciliation pass.
func (a *AttachController) Step(ctx context.Context, reason string) (StepResult, error) {
	res := StepResult{Reason: reason}
	state, err := a.surface.Probe(ctx)
	if err != nil {
		return res, fmt.Errorf("attach controller: probe: %w", err)
	}
	if !state.Visible {
		res.Hidden = true
		res.Attached = a.page.Attached()
		return res, nil
	}

	res.Location = state.URL
	res.LocationChanged = a.page.Observe(state.URL)
	res.RouteAllowed = a.matcher.Match(state.URL)
	res.Eligible = res.RouteAllowed && state.MarkersPresent

	switch {
	case res.Eligible && state.AffordancePresent:
		res.Attached = true
	case res.Eligible:
		inserted, err := a.surface.InsertAffordance(ctx)
		if err != nil {
			return res, fmt.Errorf("attach controller: insert: %w", err)
		}
		res.Inserted = inserted
		res.Attached = inserted
		if inserted {
			slog.Debug("attach controller affordance inserted", "reason", reason, "location", state.URL)
		}
	case state.AffordancePresent:
		removed, err := a.surface.RemoveAffordance(ctx)
		if err != nil {
			return res, fmt.Errorf("attach controller: remove: %w", err)
		}
		res.Removed = removed
		if removed {
			slog.Debug("attach controller affordance removed", "reason", reason, "location", state.URL)
		}
	}
	a.page.SetAttached(res.Attached)
	return res, nil
}

// settle steps repeatedly after a navigation-like signal until the
// affordance is attached or the route is not one we serve.
func (a *AttachController) settle(ctx context.Context, reason string) {
	err := PollUntil(ctx, a.clock, a.burstInterval, a.burstTimeout, func(ctx context.Context) (bool, error) {
		res, err := a.Step(ctx, reason)
		if err != nil {
			slog.Debug("attach controller step failed", "reason", reason, "error", err)
			return false, nil
		}
		return res.Hidden || res.Attached || !res.RouteAllowed, nil
	})
	if errors.Is(err, ErrPollTimeout) {
		slog.Debug("attach controller burst ended without host element", "reason", reason)
	}
}

// Run reconciles on every tick and on every signal until ctx is done. A
// closed signals channel only stops signal handling.
func (a *AttachController) Run(ctx context.Context, signals <-chan string) error {
	a.settle(ctx, SignalInit)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case reason, ok := <-signals:
			if !ok {
				signals = nil
				continue
			}
			a.settle(ctx, reason)
		case <-a.clock.After(a.tick):
			if _, err := a.Step(ctx, SignalTick); err != nil {
				slog.Debug("attach controller tick failed", "error", err)
			}
		}
	}
}
