package handoff

import (
	"sync"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// After advances the clock by d and returns an already-fired channel.
func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	c.mu.Unlock()
	ch := make(chan time.Time, 1)
	ch <- now
	return ch
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type mapStore struct {
	mu     sync.Mutex
	data   map[string]string
	writes []string
}

func newMapStore() *mapStore {
	return &mapStore{data: make(map[string]string)}
}

func (s *mapStore) Get(key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data[key], nil
}

func (s *mapStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	s.writes = append(s.writes, key)
	return nil
}

var (
	testLinkedIn = Channel{
		Name:            "linkedin",
		PayloadPrefix:   "li_job_payload_tab_",
		TimestampPrefix: "li_job_payload_ts_tab_",
		TabParam:        "li_rfc_tab",
		SigParam:        "li_rfc_sig",
		RefParam:        "li_job",
	}
	testIndeed = Channel{
		Name:            "indeed",
		PayloadPrefix:   "in_job_payload_tab_",
		TimestampPrefix: "in_job_payload_ts_tab_",
		TabParam:        "in_rfc_tab",
		SigParam:        "in_rfc_sig",
		RefParam:        "in_job",
	}
)

const testDestination = "https://chatgpt.com/g/g-p-123/project"
