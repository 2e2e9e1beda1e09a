package controller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgnsrekt/rolefit/internal/cdpcontrol"
	"github.com/dgnsrekt/rolefit/internal/events"
	"github.com/dgnsrekt/rolefit/internal/handoff"
	"github.com/dgnsrekt/rolefit/internal/navwatch"
)

const (
	DefaultTabSyncInterval = time.Second
	DefaultStaleAfter      = 10 * time.Minute

	// CodeBusy is returned when a tab is already running a capture or a
	// delivery.
	CodeBusy = "BUSY"

	RoleSource      = "source"
	RoleDestination = "destination"

	signalBuffer = 16
)

// NavigationWatcher reports navigations as they happen, ahead of the next
// tab sync.
type NavigationWatcher interface {
	Watch(targetID, url string) error
	Forget(targetID string)
	Events() <-chan navwatch.Event
}

// Options configures a Service. Sites and Store are required.
type Options struct {
	Sites           []*Site
	Composer        cdpcontrol.ComposerScript
	Store           handoff.Store
	DestinationRule handoff.DestinationRule
	StaleAfter      time.Duration
	AttachTick      time.Duration
	TabSyncInterval time.Duration
	ConsumerDelay   time.Duration
	Clipboard       handoff.Clipboard
	Recorder        *Recorder
	Watcher         NavigationWatcher
	// Clock drives producer and consumer timing. Attachment always runs on
	// the wall clock.
	Clock handoff.Clock
}

// TabStatus is a tracked tab as reported by the control API.
type TabStatus struct {
	TargetID     string `json:"target_id"`
	Role         string `json:"role"`
	Site         string `json:"site,omitempty"`
	URL          string `json:"url"`
	Tab          string `json:"tab,omitempty"`
	Attached     bool   `json:"attached"`
	Busy         bool   `json:"busy"`
	LastOutcome  string `json:"last_outcome,omitempty"`
	LastLocation string `json:"last_location,omitempty"`
}

// DestinationStatus describes the stored destination setting.
type DestinationStatus struct {
	URL          string `json:"url"`
	Valid        bool   `json:"valid"`
	Problem      string `json:"problem,omitempty"`
	Requirements string `json:"requirements"`
}

// MailboxStatus describes the mailbox entry addressed by a source tab.
type MailboxStatus struct {
	Address      string `json:"address"`
	Present      bool   `json:"present"`
	Stale        bool   `json:"stale"`
	AgeMS        int64  `json:"age_ms,omitempty"`
	WrittenAtMS  int64  `json:"written_at_ms,omitempty"`
	StaleAfterMS int64  `json:"stale_after_ms"`
	Signature    string `json:"signature,omitempty"`
	Length       int    `json:"length,omitempty"`
}

type sourceTab struct {
	targetID string
	site     *Site
	page     *handoff.PageContext
	attach   *handoff.AttachController
	producer *handoff.Producer
	signals  chan string
	ctx      context.Context
	cancel   context.CancelFunc
	busy     atomic.Bool
	url      string
}

func (t *sourceTab) signal(reason string) {
	select {
	case t.signals <- reason:
	default:
		slog.Debug("controller signal dropped", "target_id", t.targetID, "reason", reason)
	}
}

type destTab struct {
	targetID string
	url      string
	running  bool
	outcome  string
	cancel   context.CancelFunc
}

// Service tracks source and destination tabs and runs the handoff between
// them.
type Service struct {
	browser  Browser
	opts     Options
	mailbox  *handoff.Mailbox
	dest     *handoff.DestinationConfig
	channels []handoff.Channel

	mu      sync.Mutex
	baseCtx context.Context
	stop    context.CancelFunc
	running bool
	sources map[string]*sourceTab
	dests   map[string]*destTab
	wg      sync.WaitGroup
}

func NewService(browser Browser, opts Options) (*Service, error) {
	switch {
	case browser == nil:
		return nil, errors.New("controller: browser is required")
	case len(opts.Sites) == 0:
		return nil, errors.New("controller: at least one site is required")
	case opts.Store == nil:
		return nil, errors.New("controller: store is required")
	}
	if opts.Clock == nil {
		opts.Clock = handoff.RealClock()
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = DefaultStaleAfter
	}
	if opts.AttachTick <= 0 {
		opts.AttachTick = handoff.DefaultAttachTick
	}
	if opts.TabSyncInterval <= 0 {
		opts.TabSyncInterval = DefaultTabSyncInterval
	}
	if opts.ConsumerDelay < 0 {
		opts.ConsumerDelay = 0
	}

	baseCtx, stop := context.WithCancel(context.Background())
	return &Service{
		browser:  browser,
		opts:     opts,
		mailbox:  handoff.NewMailbox(opts.Store, opts.Clock, opts.StaleAfter),
		dest:     handoff.NewDestinationConfig(opts.Store, opts.DestinationRule),
		channels: Channels(opts.Sites),
		baseCtx:  baseCtx,
		stop:     stop,
		sources:  make(map[string]*sourceTab),
		dests:    make(map[string]*destTab),
	}, nil
}

// Run syncs tabs and dispatches page messages until ctx is done. Tab
// goroutines are stopped before it returns.
func (s *Service) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("controller: already running")
	}
	s.running = true
	s.mu.Unlock()
	defer s.Close()

	if _, err := s.SweepMailbox(); err != nil {
		slog.Warn("controller mailbox sweep failed", "error", err)
	}
	if err := s.SyncTabs(ctx); err != nil {
		slog.Warn("controller initial tab sync failed", "error", err)
	}

	var navEvents <-chan navwatch.Event
	if s.opts.Watcher != nil {
		navEvents = s.opts.Watcher.Events()
	}
	bindings := s.browser.Bindings()
	ticker := time.NewTicker(s.opts.TabSyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-bindings:
			if !ok {
				bindings = nil
				continue
			}
			s.handleBinding(ev)
		case ev := <-navEvents:
			s.handleNavigation(ev)
		case <-ticker.C:
			if err := s.SyncTabs(ctx); err != nil {
				slog.Warn("controller tab sync failed", "error", err)
			}
		}
	}
}

// Close stops every tab goroutine and waits for them.
func (s *Service) Close() {
	s.stop()
	s.mu.Lock()
	for id, st := range s.sources {
		st.cancel()
		delete(s.sources, id)
	}
	for id, d := range s.dests {
		if d.cancel != nil {
			d.cancel()
		}
		delete(s.dests, id)
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// SyncTabs reconciles tracked tabs with the browser's page targets.
func (s *Service) SyncTabs(ctx context.Context) error {
	tabs, err := s.browser.ListTabs(ctx)
	if err != nil {
		return err
	}
	seen := make(map[string]bool, len(tabs))
	for _, tab := range tabs {
		seen[tab.TargetID] = true
		if site := siteFor(s.opts.Sites, tab.URL); site != nil {
			s.dropDestination(tab.TargetID)
			s.trackSource(tab, site)
			continue
		}
		s.dropSource(tab.TargetID)
		if isDestinationHost(s.dest.Rule(), tab.URL) {
			s.observeDestination(ctx, tab.TargetID, tab.URL)
		} else {
			s.dropDestination(tab.TargetID)
		}
	}

	s.mu.Lock()
	var gone []string
	for id := range s.sources {
		if !seen[id] {
			gone = append(gone, id)
		}
	}
	for id := range s.dests {
		if !seen[id] {
			gone = append(gone, id)
		}
	}
	s.mu.Unlock()
	for _, id := range gone {
		s.dropSource(id)
		s.dropDestination(id)
		s.browser.InvalidateTab(id)
	}
	return nil
}

func (s *Service) trackSource(tab cdpcontrol.TabInfo, site *Site) {
	s.mu.Lock()
	if st, ok := s.sources[tab.TargetID]; ok {
		if st.site == site {
			st.url = tab.URL
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()
		s.dropSource(tab.TargetID)
		s.mu.Lock()
	}
	if s.baseCtx.Err() != nil {
		s.mu.Unlock()
		return
	}

	page := handoff.NewPageContext(handoff.NewTabIdentity())
	surface := NewSourcePage(s.browser, tab.TargetID, site, page)
	attach, err := handoff.NewAttachController(page, surface, site.Matcher, handoff.WithAttachTick(s.opts.AttachTick))
	if err != nil {
		s.mu.Unlock()
		slog.Error("controller attach controller setup failed", "target_id", tab.TargetID, "error", err)
		return
	}
	producer, err := handoff.NewProducer(handoff.ProducerDeps{
		Page:        page,
		Channel:     site.Channel,
		Mailbox:     s.mailbox,
		Destination: s.dest,
		Content:     surface,
		Opener:      tabOpener{browser: s.browser},
		Clipboard:   s.opts.Clipboard,
		Prompter:    surface,
		Feedback:    surface,
		Observer:    s.observer(),
		Clock:       s.opts.Clock,
	})
	if err != nil {
		s.mu.Unlock()
		slog.Error("controller producer setup failed", "target_id", tab.TargetID, "error", err)
		return
	}

	ctx, cancel := context.WithCancel(s.baseCtx)
	st := &sourceTab{
		targetID: tab.TargetID,
		site:     site,
		page:     page,
		attach:   attach,
		producer: producer,
		signals:  make(chan string, signalBuffer),
		ctx:      ctx,
		cancel:   cancel,
		url:      tab.URL,
	}
	s.sources[tab.TargetID] = st
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		if err := attach.Run(ctx, st.signals); err != nil && !errors.Is(err, context.Canceled) {
			slog.Warn("controller attach loop stopped", "target_id", st.targetID, "error", err)
		}
	}()

	s.watch(tab.TargetID, tab.URL)
	slog.Info("controller tracking source tab", "target_id", tab.TargetID, "site", site.Name)
	s.opts.Recorder.publish(events.FeedTabs, "tab.source", s.sourceStatus(st))
}

func (s *Service) dropSource(targetID string) {
	s.mu.Lock()
	st, ok := s.sources[targetID]
	delete(s.sources, targetID)
	s.mu.Unlock()
	if !ok {
		return
	}
	st.cancel()
	s.forget(targetID)
	slog.Info("controller released source tab", "target_id", targetID, "site", st.site.Name)
	s.opts.Recorder.publish(events.FeedTabs, "tab.released", TabStatus{TargetID: targetID, Role: RoleSource, Site: st.site.Name, URL: st.url})
}

// observeDestination starts a delayed delivery for each new URL or newly
// loaded document a destination-host tab reports. A tab runs at most one
// delivery at a time.
func (s *Service) observeDestination(ctx context.Context, targetID, url string) {
	fresh := s.freshDocument(ctx, targetID)

	s.mu.Lock()
	d, ok := s.dests[targetID]
	if !ok {
		d = &destTab{targetID: targetID}
		s.dests[targetID] = d
	}
	if ok && d.url == url && !fresh {
		s.mu.Unlock()
		return
	}
	d.url = url
	if d.running || s.baseCtx.Err() != nil {
		s.mu.Unlock()
		slog.Debug("controller destination navigated during delivery", "target_id", targetID)
		return
	}
	d.running = true
	runCtx, cancel := context.WithCancel(s.baseCtx)
	d.cancel = cancel
	s.wg.Add(1)
	s.mu.Unlock()

	if !ok {
		s.watch(targetID, url)
		s.opts.Recorder.publish(events.FeedTabs, "tab.destination", TabStatus{TargetID: targetID, Role: RoleDestination, URL: url})
	}

	go func() {
		defer s.wg.Done()
		defer cancel()
		select {
		case <-s.opts.Clock.After(s.opts.ConsumerDelay):
		case <-runCtx.Done():
			s.finishDelivery(d, "")
			return
		}
		delivery, err := s.runConsumer(runCtx, targetID, url)
		if err != nil {
			slog.Debug("controller delivery ended with error", "target_id", targetID, "error", err)
		}
		s.finishDelivery(d, string(delivery.Outcome))
	}()
}

// freshDocument marks the destination document and reports whether it was
// unmarked, which is the case once per page load. Errors count as not fresh
// so the next sync asks again.
func (s *Service) freshDocument(ctx context.Context, targetID string) bool {
	fresh, err := s.browser.MarkDocument(ctx, targetID)
	if err != nil {
		slog.Debug("controller destination document mark failed", "target_id", targetID, "error", err)
		return false
	}
	return fresh
}

func (s *Service) finishDelivery(d *destTab, outcome string) {
	s.mu.Lock()
	d.running = false
	if outcome != "" {
		d.outcome = outcome
	}
	s.mu.Unlock()
}

func (s *Service) runConsumer(ctx context.Context, targetID, url string) (handoff.Delivery, error) {
	consumer, err := handoff.NewConsumer(handoff.ConsumerDeps{
		Channels:    s.channels,
		Mailbox:     s.mailbox,
		Destination: s.dest,
		Surface:     NewComposerPage(s.browser, targetID, s.opts.Composer),
		Observer:    s.observer(),
		Clock:       s.opts.Clock,
	})
	if err != nil {
		return handoff.Delivery{}, err
	}
	return consumer.RunOnce(ctx, url)
}

func (s *Service) dropDestination(targetID string) {
	s.mu.Lock()
	d, ok := s.dests[targetID]
	delete(s.dests, targetID)
	s.mu.Unlock()
	if !ok {
		return
	}
	if d.cancel != nil {
		d.cancel()
	}
	s.forget(targetID)
}

func (s *Service) handleBinding(ev cdpcontrol.BindingEvent) {
	var msg cdpcontrol.PageMessage
	if err := json.Unmarshal([]byte(ev.Payload), &msg); err != nil {
		slog.Debug("controller page message malformed", "target_id", ev.TargetID, "error", err)
		return
	}
	st := s.source(ev.TargetID)
	if st == nil {
		slog.Debug("controller page message from untracked tab", "target_id", ev.TargetID, "type", msg.Type)
		return
	}

	switch msg.Type {
	case cdpcontrol.MessageSignal:
		reason := msg.Reason
		if reason == "" {
			reason = handoff.SignalNavigated
		}
		st.signal(reason)
	case cdpcontrol.MessageTrigger:
		if msg.Tab != "" {
			st.page.Rebind(handoff.TabIdentity(msg.Tab))
		}
		s.mu.Lock()
		if st.ctx.Err() != nil {
			s.mu.Unlock()
			return
		}
		s.wg.Add(1)
		s.mu.Unlock()
		go func() {
			defer s.wg.Done()
			if _, err := s.trigger(st.ctx, st, msg.Shift); err != nil {
				slog.Debug("controller trigger ended with error", "target_id", st.targetID, "error", err)
			}
		}()
	default:
		slog.Debug("controller page message ignored", "target_id", ev.TargetID, "type", msg.Type)
	}
}

func (s *Service) handleNavigation(ev navwatch.Event) {
	if st := s.source(ev.TargetID); st != nil {
		st.signal(handoff.SignalNavigated)
		return
	}
	if isDestinationHost(s.dest.Rule(), ev.URL) {
		s.observeDestination(s.baseCtx, ev.TargetID, ev.URL)
	}
}

func (s *Service) trigger(ctx context.Context, st *sourceTab, force bool) (handoff.TriggerResult, error) {
	if !st.busy.CompareAndSwap(false, true) {
		return handoff.TriggerResult{}, &cdpcontrol.CodedError{Code: CodeBusy, Message: "a capture is already running on this tab"}
	}
	defer st.busy.Store(false)
	return st.producer.Trigger(ctx, force)
}

// Trigger runs a capture on a source tab as if its button had been clicked.
func (s *Service) Trigger(ctx context.Context, targetID string, force bool) (handoff.TriggerResult, error) {
	st, err := s.requireSource(targetID)
	if err != nil {
		return handoff.TriggerResult{}, err
	}
	return s.trigger(ctx, st, force)
}

// AttachStep runs one reconciliation pass on a source tab.
func (s *Service) AttachStep(ctx context.Context, targetID string) (handoff.StepResult, error) {
	st, err := s.requireSource(targetID)
	if err != nil {
		return handoff.StepResult{}, err
	}
	res, err := st.attach.Step(ctx, "api")
	if err != nil {
		return res, err
	}
	if res.Inserted || res.Removed {
		s.opts.Recorder.publish(events.FeedAttach, "attach.step", struct {
			TargetID string `json:"target_id"`
			handoff.StepResult
		}{targetID, res})
	}
	return res, nil
}

// Deliver reruns the consumer on a destination tab at its current URL.
func (s *Service) Deliver(ctx context.Context, targetID string) (handoff.Delivery, error) {
	s.mu.Lock()
	d, ok := s.dests[strings.TrimSpace(targetID)]
	if !ok {
		s.mu.Unlock()
		return handoff.Delivery{}, &cdpcontrol.CodedError{Code: cdpcontrol.CodeTabNotFound, Message: "destination tab not tracked: " + targetID}
	}
	if d.running {
		s.mu.Unlock()
		return handoff.Delivery{}, &cdpcontrol.CodedError{Code: CodeBusy, Message: "a delivery is already running on this tab"}
	}
	d.running = true
	url := d.url
	s.mu.Unlock()

	delivery, err := s.runConsumer(ctx, d.targetID, url)
	s.finishDelivery(d, string(delivery.Outcome))
	return delivery, err
}

// Tabs lists tracked tabs ordered by target id.
func (s *Service) Tabs() []TabStatus {
	s.mu.Lock()
	out := make([]TabStatus, 0, len(s.sources)+len(s.dests))
	for _, st := range s.sources {
		out = append(out, s.sourceStatusLocked(st))
	}
	for _, d := range s.dests {
		out = append(out, TabStatus{
			TargetID:    d.targetID,
			Role:        RoleDestination,
			URL:         d.url,
			Busy:        d.running,
			LastOutcome: d.outcome,
		})
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].TargetID < out[j].TargetID })
	return out
}

// Destination reports the stored destination.
func (s *Service) Destination() (DestinationStatus, error) {
	raw, err := s.dest.Raw()
	if err != nil {
		return DestinationStatus{}, err
	}
	status := DestinationStatus{URL: raw, Requirements: s.dest.Rule().Requirements()}
	if _, err := s.dest.Current(); err != nil {
		var coded *handoff.CodedError
		if !errors.As(err, &coded) {
			return DestinationStatus{}, err
		}
		status.Problem = coded.Message
		return status, nil
	}
	status.Valid = true
	return status, nil
}

// SetDestination validates and stores a new destination.
func (s *Service) SetDestination(raw string) (DestinationStatus, error) {
	dest, err := s.dest.Set(raw)
	if err != nil {
		return DestinationStatus{}, err
	}
	slog.Info("controller destination updated", "url", dest.String())
	return DestinationStatus{URL: dest.String(), Valid: true, Requirements: s.dest.Rule().Requirements()}, nil
}

// Mailbox inspects the entry addressed by a source tab's current identity.
func (s *Service) Mailbox(targetID string) (MailboxStatus, error) {
	addr, err := s.sourceAddress(targetID)
	if err != nil {
		return MailboxStatus{}, err
	}
	status := MailboxStatus{Address: addr.String(), StaleAfterMS: s.mailbox.StaleAfter().Milliseconds()}
	entry, ok, err := s.mailbox.Peek(addr)
	if err != nil {
		return status, fmt.Errorf("controller: peek mailbox: %w", err)
	}
	if !ok {
		return status, nil
	}
	status.Present = true
	status.Stale = s.mailbox.IsStale(entry)
	status.AgeMS = s.mailbox.Age(entry).Milliseconds()
	status.WrittenAtMS = entry.WrittenAtMillis()
	status.Signature = handoff.SignatureOf(entry.Text)
	status.Length = len(entry.Text)
	return status, nil
}

// SweepMailbox drops empty and stale entries left behind by closed tabs on
// every channel. It returns how many were removed.
func (s *Service) SweepMailbox() (int, error) {
	total := 0
	for _, ch := range s.channels {
		n, err := s.mailbox.Sweep(ch)
		total += n
		if err != nil {
			return total, fmt.Errorf("controller: sweep %s mailbox: %w", ch.Name, err)
		}
	}
	if total > 0 {
		slog.Info("controller mailbox swept", "removed", total)
	}
	return total, nil
}

// ClearMailbox removes the entry addressed by a source tab.
func (s *Service) ClearMailbox(targetID string) error {
	addr, err := s.sourceAddress(targetID)
	if err != nil {
		return err
	}
	return s.mailbox.Ack(addr)
}

func (s *Service) sourceAddress(targetID string) (handoff.Address, error) {
	st, err := s.requireSource(targetID)
	if err != nil {
		return handoff.Address{}, err
	}
	return handoff.Address{Channel: st.site.Channel, Tab: st.page.Tab()}, nil
}

func (s *Service) source(targetID string) *sourceTab {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sources[targetID]
}

func (s *Service) requireSource(targetID string) (*sourceTab, error) {
	targetID = strings.TrimSpace(targetID)
	if targetID == "" {
		return nil, &cdpcontrol.CodedError{Code: cdpcontrol.CodeValidation, Message: "target_id is required"}
	}
	st := s.source(targetID)
	if st == nil {
		return nil, &cdpcontrol.CodedError{Code: cdpcontrol.CodeTabNotFound, Message: "source tab not tracked: " + targetID}
	}
	return st, nil
}

func (s *Service) sourceStatus(st *sourceTab) TabStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sourceStatusLocked(st)
}

func (s *Service) sourceStatusLocked(st *sourceTab) TabStatus {
	return TabStatus{
		TargetID:     st.targetID,
		Role:         RoleSource,
		Site:         st.site.Name,
		URL:          st.url,
		Tab:          string(st.page.Tab()),
		Attached:     st.page.Attached(),
		Busy:         st.busy.Load(),
		LastLocation: st.page.LastLocation(),
	}
}

func (s *Service) observer() handoff.Observer {
	rec := s.opts.Recorder
	return handoff.ObserverFunc(func(r handoff.Report) {
		if rec != nil {
			rec.ObserveHandoff(r)
		}
	})
}

func (s *Service) watch(targetID, url string) {
	if s.opts.Watcher == nil {
		return
	}
	if err := s.opts.Watcher.Watch(targetID, url); err != nil {
		slog.Debug("controller navigation watch failed", "target_id", targetID, "error", err)
	}
}

func (s *Service) forget(targetID string) {
	if s.opts.Watcher != nil {
		s.opts.Watcher.Forget(targetID)
	}
}
