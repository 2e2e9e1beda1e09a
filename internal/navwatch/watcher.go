package navwatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
)

// Navigation kinds.
const (
	KindFull = "full"
	KindSPA  = "spa"
)

const eventBuffer = 64

// Event is a top-frame navigation on a watched tab.
type Event struct {
	TargetID string
	URL      string
	Kind     string
}

// Watcher listens for page navigations on selected tabs through chromedp,
// including same-document (history API) navigations that never reload.
type Watcher struct {
	cdpURL   string
	registry *Registry

	allocCtx    context.Context
	allocCancel context.CancelFunc

	mu     sync.Mutex
	tabs   map[string]context.CancelFunc
	events chan Event
	closed bool
}

func NewWatcher(cdpURL string, registry *Registry) *Watcher {
	if registry == nil {
		registry = NewRegistry()
	}
	return &Watcher{
		cdpURL:   cdpURL,
		registry: registry,
		tabs:     make(map[string]context.CancelFunc),
		events:   make(chan Event, eventBuffer),
	}
}

// Connect verifies the browser is reachable over the remote allocator.
func (w *Watcher) Connect(ctx context.Context) error {
	_ = ctx
	slog.Info("navwatch connecting to Chromium", "url", w.cdpURL)

	w.allocCtx, w.allocCancel = chromedp.NewRemoteAllocator(context.Background(), w.cdpURL)

	tempCtx, tempCancel := chromedp.NewContext(w.allocCtx)
	defer tempCancel()

	if err := chromedp.Run(tempCtx); err != nil {
		w.allocCancel()
		return fmt.Errorf("navwatch: connect to browser: %w", err)
	}
	return nil
}

// Events delivers navigations for every watched tab.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

func (w *Watcher) Registry() *Registry {
	return w.registry
}

// Watch starts listening on a tab. Watching a tab twice is a no-op.
func (w *Watcher) Watch(targetID, url string) error {
	w.mu.Lock()
	if w.closed || w.allocCtx == nil {
		w.mu.Unlock()
		return fmt.Errorf("navwatch: not connected")
	}
	if _, ok := w.tabs[targetID]; ok {
		w.mu.Unlock()
		return nil
	}
	tabCtx, tabCancel := chromedp.NewContext(w.allocCtx, chromedp.WithTargetID(target.ID(targetID)))
	w.tabs[targetID] = tabCancel
	w.mu.Unlock()

	if err := chromedp.Run(tabCtx, page.Enable()); err != nil {
		w.mu.Lock()
		delete(w.tabs, targetID)
		w.mu.Unlock()
		return fmt.Errorf("navwatch: enable page domain on %s: %w", targetID, err)
	}

	w.registry.Register(targetID, url)
	chromedp.ListenTarget(tabCtx, w.eventHandler(targetID))
	slog.Info("navwatch watching tab", "target_id", targetID, "url", truncateURL(url))
	return nil
}

// Forget stops reporting navigations for a tab that has gone away.
func (w *Watcher) Forget(targetID string) {
	w.mu.Lock()
	delete(w.tabs, targetID)
	w.mu.Unlock()
	w.registry.Remove(targetID)
}

func (w *Watcher) watching(targetID string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.tabs[targetID]
	return ok && !w.closed
}

func (w *Watcher) eventHandler(targetID string) func(ev interface{}) {
	return func(ev interface{}) {
		switch e := ev.(type) {
		case *page.EventFrameNavigated:
			if e.Frame != nil && e.Frame.ParentID == "" {
				w.observe(targetID, e.Frame.URL, KindFull)
			}
		case *page.EventNavigatedWithinDocument:
			w.observe(targetID, e.URL, KindSPA)
		}
	}
}

func (w *Watcher) observe(targetID, url, kind string) {
	if !w.watching(targetID) {
		return
	}
	// A full load is reported even at the same URL; it is a new document.
	if _, changed := w.registry.Register(targetID, url); !changed && kind != KindFull {
		return
	}
	slog.Debug("navwatch tab navigated", "target_id", targetID, "kind", kind, "url", truncateURL(url))
	select {
	case w.events <- Event{TargetID: targetID, URL: url, Kind: kind}:
	default:
		slog.Warn("navwatch event dropped", "target_id", targetID)
	}
}

// Count returns the number of watched tabs.
func (w *Watcher) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.tabs)
}

func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	w.tabs = make(map[string]context.CancelFunc)
	if w.allocCancel != nil {
		w.allocCancel()
	}
	slog.Info("navwatch closed")
	return nil
}

func truncateURL(url string) string {
	if len(url) > 120 {
		return url[:120] + "..."
	}
	return url
}
