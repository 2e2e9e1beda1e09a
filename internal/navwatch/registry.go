package navwatch

import (
	"sort"
	"sync"
	"time"
)

// TabRecord is the last top-frame location seen for a tab.
type TabRecord struct {
	TargetID    string    `json:"target_id"`
	URL         string    `json:"url"`
	Navigations int       `json:"navigations"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Registry maps watched tabs to their last observed location.
type Registry struct {
	tabs map[string]*TabRecord
	mu   sync.RWMutex
	now  func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{tabs: make(map[string]*TabRecord), now: time.Now}
}

// Register records url for the tab and reports whether it changed.
func (r *Registry) Register(targetID, url string) (TabRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.tabs[targetID]
	if !ok {
		rec = &TabRecord{TargetID: targetID}
		r.tabs[targetID] = rec
	}
	changed := rec.URL != url
	if changed {
		rec.URL = url
		rec.Navigations++
		rec.UpdatedAt = r.now()
	}
	return *rec, changed
}

func (r *Registry) Get(targetID string) (TabRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.tabs[targetID]
	if !ok {
		return TabRecord{}, false
	}
	return *rec, true
}

func (r *Registry) Remove(targetID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tabs, targetID)
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tabs)
}

// List returns all records ordered by target id.
func (r *Registry) List() []TabRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]TabRecord, 0, len(r.tabs))
	for _, rec := range r.tabs {
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TargetID < out[j].TargetID })
	return out
}
