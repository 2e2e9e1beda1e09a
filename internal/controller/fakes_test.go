package controller

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dgnsrekt/rolefit/internal/cdpcontrol"
	"github.com/dgnsrekt/rolefit/internal/config"
)

const testDestination = "https://chatgpt.com/g/g-p-abc123/project"

type labelCall struct {
	Label   string
	Idle    string
	Busy    bool
	ResetMs int
}

// fakeBrowser is an in-memory Browser. Source pages report markers and a
// fixed tab id; the composer stores whatever is written to it.
type fakeBrowser struct {
	mu          sync.Mutex
	tabs        []cdpcontrol.TabInfo
	bindings    chan cdpcontrol.BindingEvent
	pageTabID   string
	text        string
	ref         string
	prompts     []string
	alerts      []string
	labels      []labelCall
	opened      []string
	composer    map[string]string
	invalidated []string
	promptAns   string
	promptOK    bool

	// docs counts page loads per tab; marked records the load last stamped.
	docs         map[string]int
	marked       map[string]int
	hideComposer bool
	locates      int
}

func newFakeBrowser(tabs ...cdpcontrol.TabInfo) *fakeBrowser {
	return &fakeBrowser{
		tabs:      tabs,
		bindings:  make(chan cdpcontrol.BindingEvent, 8),
		pageTabID: "page-tab-1",
		text:      "Senior Engineer\nAcme Corp\nRemote\n\nBuild things.",
		ref:       "4012345678",
		composer:  make(map[string]string),
		docs:      make(map[string]int),
		marked:    make(map[string]int),
	}
}

func tab(id, url string) cdpcontrol.TabInfo {
	return cdpcontrol.TabInfo{TargetID: id, URL: url}
}

func (b *fakeBrowser) setTabs(tabs ...cdpcontrol.TabInfo) {
	b.mu.Lock()
	b.tabs = tabs
	b.mu.Unlock()
}

func (b *fakeBrowser) ListTabs(context.Context) ([]cdpcontrol.TabInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]cdpcontrol.TabInfo(nil), b.tabs...), nil
}

func (b *fakeBrowser) OpenTab(_ context.Context, url string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.opened = append(b.opened, url)
	return "opened-1", nil
}

func (b *fakeBrowser) Bindings() <-chan cdpcontrol.BindingEvent { return b.bindings }

func (b *fakeBrowser) InvalidateTab(targetID string) {
	b.mu.Lock()
	b.invalidated = append(b.invalidated, targetID)
	b.mu.Unlock()
}

func (b *fakeBrowser) ProbeSource(_ context.Context, targetID string, _ cdpcontrol.SiteScript, _ string) (cdpcontrol.SourceProbe, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	url := ""
	for _, t := range b.tabs {
		if t.TargetID == targetID {
			url = t.URL
		}
	}
	return cdpcontrol.SourceProbe{URL: url, Visible: true, Markers: true, Affordance: true, TabID: b.pageTabID}, nil
}

func (b *fakeBrowser) InsertAffordance(context.Context, string) (cdpcontrol.AffordanceState, error) {
	return cdpcontrol.AffordanceState{Present: true}, nil
}
func (b *fakeBrowser) RemoveAffordance(context.Context, string) (bool, error) { return true, nil }

func (b *fakeBrowser) SetAffordanceLabel(_ context.Context, _ string, label, idle string, busy bool, resetMs int) error {
	b.mu.Lock()
	b.labels = append(b.labels, labelCall{label, idle, busy, resetMs})
	b.mu.Unlock()
	return nil
}

func (b *fakeBrowser) Prompt(_ context.Context, _ string, message, _ string) (string, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.prompts = append(b.prompts, message)
	return b.promptAns, b.promptOK, nil
}

func (b *fakeBrowser) Alert(_ context.Context, _ string, message string) error {
	b.mu.Lock()
	b.alerts = append(b.alerts, message)
	b.mu.Unlock()
	return nil
}

func (b *fakeBrowser) ContentReady(context.Context, string) (bool, error) { return true, nil }

func (b *fakeBrowser) ExtractText(context.Context, string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.text, nil
}

func (b *fakeBrowser) CrossReference(context.Context, string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ref, nil
}

// reload simulates a full page load that keeps the URL.
func (b *fakeBrowser) reload(targetID string) {
	b.mu.Lock()
	b.docs[targetID]++
	b.mu.Unlock()
}

func (b *fakeBrowser) setComposerHidden(hidden bool) {
	b.mu.Lock()
	b.hideComposer = hidden
	b.mu.Unlock()
}

func (b *fakeBrowser) locateCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.locates
}

func (b *fakeBrowser) MarkDocument(_ context.Context, targetID string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	gen := b.docs[targetID]
	if m, ok := b.marked[targetID]; ok && m == gen {
		return false, nil
	}
	b.marked[targetID] = gen
	return true, nil
}

func (b *fakeBrowser) LocateComposer(_ context.Context, targetID string, _ cdpcontrol.ComposerScript) (string, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.locates++
	if b.hideComposer {
		return "", false, nil
	}
	return "composer-" + targetID, true, nil
}

func (b *fakeBrowser) ReadComposer(_ context.Context, _ string, handle string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.composer[handle], nil
}

func (b *fakeBrowser) ClearComposer(_ context.Context, _ string, handle string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.composer[handle] = ""
	return nil
}

func (b *fakeBrowser) WriteComposer(_ context.Context, _ string, handle, text string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.composer[handle] += text
	return true, nil
}

func (b *fakeBrowser) snapshot() (prompts, opened []string, labels []labelCall) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.prompts...), append([]string(nil), b.opened...), append([]labelCall(nil), b.labels...)
}

func (b *fakeBrowser) composerText(handle string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.composer[handle]
}

// instantClock advances on every After and fires immediately.
type instantClock struct {
	mu  sync.Mutex
	now time.Time
}

func newInstantClock() *instantClock {
	return &instantClock{now: time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)}
}

func (c *instantClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *instantClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	c.mu.Unlock()
	ch := make(chan time.Time, 1)
	ch <- now
	return ch
}

type mapStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newMapStore() *mapStore { return &mapStore{data: make(map[string]string)} }

func (s *mapStore) Get(key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data[key], nil
}

func (s *mapStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}

func testSites(t *testing.T) []*Site {
	t.Helper()
	sites, err := NewSites(config.DefaultSites())
	if err != nil {
		t.Fatalf("NewSites() = %v", err)
	}
	return sites
}

func newTestService(t *testing.T, b *fakeBrowser, opts Options) *Service {
	t.Helper()
	if opts.Sites == nil {
		opts.Sites = testSites(t)
	}
	if opts.Store == nil {
		opts.Store = newMapStore()
	}
	if opts.Clock == nil {
		opts.Clock = newInstantClock()
	}
	opts.Composer = ComposerScript(config.DefaultSites().Composer)
	svc, err := NewService(b, opts)
	if err != nil {
		t.Fatalf("NewService() = %v", err)
	}
	t.Cleanup(svc.Close)
	return svc
}

// eventually polls cond until it holds or two seconds pass.
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func testSitesFile() *config.SitesFile { return config.DefaultSites() }
