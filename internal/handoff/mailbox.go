package handoff

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DefaultStaleAfter is how long a mailbox entry stays deliverable.
const DefaultStaleAfter = 10 * time.Minute

// Store is the persistent, cross-tab key/value store backing the mailbox.
// Get returns "" for absent keys.
type Store interface {
	Get(key string) (string, error)
	Set(key, value string) error
}

// Pruner is implemented by stores that can list and remove keys. Mailboxes
// over such stores delete acked entries and can sweep abandoned ones.
type Pruner interface {
	Keys(prefix string) []string
	Delete(keys ...string) error
}

// Entry is one payload sitting in the mailbox.
type Entry struct {
	Text      string
	WrittenAt time.Time
}

// WrittenAtMillis returns the write time as Unix milliseconds, or 0 if unset.
func (e Entry) WrittenAtMillis() int64 {
	if e.WrittenAt.IsZero() {
		return 0
	}
	return e.WrittenAt.UnixMilli()
}

// Mailbox is a message-passing view over Store. Each address has one
// intended writer and one intended reader; isolation comes from the
// uniqueness of the tab identity, not from locking.
type Mailbox struct {
	store      Store
	clock      Clock
	staleAfter time.Duration
}

func NewMailbox(store Store, clk Clock, staleAfter time.Duration) *Mailbox {
	if clk == nil {
		clk = RealClock()
	}
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	return &Mailbox{store: store, clock: clk, staleAfter: staleAfter}
}

// StaleAfter returns the staleness window.
func (m *Mailbox) StaleAfter() time.Duration { return m.staleAfter }

// Send writes text under addr, payload first and timestamp second. Both
// writes complete before Send returns.
func (m *Mailbox) Send(addr Address, text string) (Entry, error) {
	if addr.Tab == "" {
		return Entry{}, newError(CodeValidation, "address has no tab identity", nil)
	}
	now := m.clock.Now()
	if err := m.store.Set(addr.PayloadKey(), text); err != nil {
		return Entry{}, fmt.Errorf("mailbox: write payload %s: %w", addr, err)
	}
	if err := m.store.Set(addr.TimestampKey(), strconv.FormatInt(now.UnixMilli(), 10)); err != nil {
		return Entry{}, fmt.Errorf("mailbox: write timestamp %s: %w", addr, err)
	}
	return Entry{Text: text, WrittenAt: time.UnixMilli(now.UnixMilli())}, nil
}

// Peek reads the raw entry without applying the staleness window.
func (m *Mailbox) Peek(addr Address) (Entry, bool, error) {
	text, err := m.store.Get(addr.PayloadKey())
	if err != nil {
		return Entry{}, false, fmt.Errorf("mailbox: read payload %s: %w", addr, err)
	}
	if text == "" {
		return Entry{}, false, nil
	}
	rawTS, err := m.store.Get(addr.TimestampKey())
	if err != nil {
		return Entry{}, false, fmt.Errorf("mailbox: read timestamp %s: %w", addr, err)
	}
	entry := Entry{Text: text}
	if ms, convErr := strconv.ParseInt(rawTS, 10, 64); convErr == nil && ms > 0 {
		entry.WrittenAt = time.UnixMilli(ms)
	}
	return entry, true, nil
}

// Age returns how old e is relative to the mailbox clock. Entries without a
// timestamp are treated as infinitely old.
func (m *Mailbox) Age(e Entry) time.Duration {
	if e.WrittenAt.IsZero() {
		return time.Duration(1<<63 - 1)
	}
	return m.clock.Now().Sub(e.WrittenAt)
}

// IsStale reports whether e is past the staleness window.
func (m *Mailbox) IsStale(e Entry) bool {
	return m.Age(e) > m.staleAfter
}

// TryReceive returns the entry at addr if one exists and is still fresh.
func (m *Mailbox) TryReceive(addr Address) (Entry, error) {
	entry, ok, err := m.Peek(addr)
	if err != nil {
		return Entry{}, err
	}
	if !ok {
		return Entry{}, newError(CodeNoEntry, "no payload at "+addr.String(), nil)
	}
	if m.IsStale(entry) {
		return Entry{}, newError(CodeStaleEntry, "payload at "+addr.String()+" is stale", nil)
	}
	return entry, nil
}

// Ack clears the entry at addr so it cannot be delivered again.
func (m *Mailbox) Ack(addr Address) error {
	if p, ok := m.store.(Pruner); ok {
		if err := p.Delete(addr.PayloadKey(), addr.TimestampKey()); err != nil {
			return fmt.Errorf("mailbox: delete %s: %w", addr, err)
		}
		return nil
	}
	if err := m.store.Set(addr.PayloadKey(), ""); err != nil {
		return fmt.Errorf("mailbox: clear payload %s: %w", addr, err)
	}
	if err := m.store.Set(addr.TimestampKey(), "0"); err != nil {
		return fmt.Errorf("mailbox: clear timestamp %s: %w", addr, err)
	}
	return nil
}

// Sweep removes every entry of ch that is empty or stale, including
// timestamps left without a payload. Tabs that never had their payload
// consumed would otherwise keep it in the store forever. It returns the
// number of addresses removed; stores that are not a Pruner are left alone.
func (m *Mailbox) Sweep(ch Channel) (int, error) {
	p, ok := m.store.(Pruner)
	if !ok || ch.PayloadPrefix == "" || ch.TimestampPrefix == "" {
		return 0, nil
	}
	tabs := make(map[TabIdentity]struct{})
	for _, k := range p.Keys(ch.PayloadPrefix) {
		tabs[TabIdentity(strings.TrimPrefix(k, ch.PayloadPrefix))] = struct{}{}
	}
	for _, k := range p.Keys(ch.TimestampPrefix) {
		tabs[TabIdentity(strings.TrimPrefix(k, ch.TimestampPrefix))] = struct{}{}
	}

	var doomed []string
	for tab := range tabs {
		if tab == "" {
			continue
		}
		addr := Address{Channel: ch, Tab: tab}
		entry, present, err := m.Peek(addr)
		if err != nil {
			return 0, err
		}
		if present && !m.IsStale(entry) {
			continue
		}
		doomed = append(doomed, addr.PayloadKey(), addr.TimestampKey())
	}
	if len(doomed) == 0 {
		return 0, nil
	}
	if err := p.Delete(doomed...); err != nil {
		return 0, fmt.Errorf("mailbox: sweep %s: %w", ch.Name, err)
	}
	return len(doomed) / 2, nil
}
