package handoff

import "sync"

// PageContext is the per-tab state for one source page-load context. The
// orchestrator creates exactly one per tab and hands it to both the
// attachment controller and the producer.
type PageContext struct {
	mu           sync.Mutex
	tab          TabIdentity
	lastLocation string
	attached     bool
}

// NewPageContext creates a context bound to tab.
func NewPageContext(tab TabIdentity) *PageContext {
	return &PageContext{tab: tab}
}

func (p *PageContext) Tab() TabIdentity {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tab
}

// Rebind switches to a new page-load context, e.g. after a full navigation
// replaced the document. Location and attachment state are reset.
func (p *PageContext) Rebind(tab TabIdentity) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if tab == "" || tab == p.tab {
		return false
	}
	p.tab = tab
	p.lastLocation = ""
	p.attached = false
	return true
}

// Observe records loc and reports whether it differs from the last one seen.
func (p *PageContext) Observe(loc string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	changed := loc != p.lastLocation
	p.lastLocation = loc
	return changed
}

func (p *PageContext) LastLocation() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastLocation
}

func (p *PageContext) SetAttached(v bool) {
	p.mu.Lock()
	p.attached = v
	p.mu.Unlock()
}

func (p *PageContext) Attached() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.attached
}
