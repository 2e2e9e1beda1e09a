package cdpcontrol

import (
	"context"
	"strings"
	"sync"
	"testing"
)

// pageStub answers the insert and mark scripts with a tiny model of one
// document: a button count and a destination stamp.
type pageStub struct {
	mu      sync.Mutex
	buttons int
	marked  bool
}

func (p *pageStub) eval(expr string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch {
	case strings.Contains(expr, "window.__RFC_DEST__"):
		if p.marked {
			return `{"ok":true,"data":{"fresh":false}}`
		}
		p.marked = true
		return `{"ok":true,"data":{"fresh":true}}`
	case strings.Contains(expr, "document.createElement(\"button\")"):
		if p.buttons > 0 {
			p.buttons = 1
			return `{"ok":true,"data":{"present":true,"inserted":false}}`
		}
		p.buttons = 1
		return `{"ok":true,"data":{"present":true,"inserted":true}}`
	}
	return `{"ok":true}`
}

func (p *pageStub) buttonCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buttons
}

// reload drops everything the scripts left on the page.
func (p *pageStub) reload() {
	p.mu.Lock()
	p.buttons = 0
	p.marked = false
	p.mu.Unlock()
}

func TestInsertAffordanceTwiceKeepsOneButton(t *testing.T) {
	fb := newFakeBrowser(t, pageTarget("t1", "https://www.linkedin.com/jobs/search/"))
	page := &pageStub{}
	fb.setEval(page.eval)
	c := connectFake(t, fb)

	first, err := c.InsertAffordance(context.Background(), "t1")
	if err != nil {
		t.Fatalf("InsertAffordance() = %v", err)
	}
	if !first.Present || !first.Inserted {
		t.Fatalf("first InsertAffordance() = %+v; want present and inserted", first)
	}
	second, err := c.InsertAffordance(context.Background(), "t1")
	if err != nil {
		t.Fatalf("InsertAffordance() second = %v", err)
	}
	if !second.Present || second.Inserted {
		t.Fatalf("second InsertAffordance() = %+v; want present, not inserted", second)
	}
	if got := page.buttonCount(); got != 1 {
		t.Fatalf("buttons = %d; want 1", got)
	}

	// The page side keeps the first button inside the container and drops
	// the rest, so duplicates from an earlier script run do not pile up.
	script := jsInsertAffordance()
	for _, want := range []string{"container.contains(existing[i])", "existing[i].remove()", "inserted:false"} {
		if !strings.Contains(script, want) {
			t.Fatalf("insert script lacks %q", want)
		}
	}
}

func TestMarkDocumentOncePerLoad(t *testing.T) {
	fb := newFakeBrowser(t, pageTarget("t1", "https://chatgpt.com/g/g-p-1/project"))
	page := &pageStub{}
	fb.setEval(page.eval)
	c := connectFake(t, fb)

	want := []bool{true, false, false}
	for i, w := range want {
		fresh, err := c.MarkDocument(context.Background(), "t1")
		if err != nil {
			t.Fatalf("MarkDocument() #%d = %v", i, err)
		}
		if fresh != w {
			t.Fatalf("MarkDocument() #%d = %v; want %v", i, fresh, w)
		}
	}

	page.reload()
	fresh, err := c.MarkDocument(context.Background(), "t1")
	if err != nil || !fresh {
		t.Fatalf("MarkDocument() after reload = (%v, %v); want fresh", fresh, err)
	}
}
