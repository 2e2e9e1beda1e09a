package cdpcontrol

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func connectFake(t *testing.T, fb *fakeBrowser) *Client {
	t.Helper()
	c := NewClient(fb.srv.URL, 2*time.Second, 2*time.Second)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() = %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

var testSite = SiteScript{
	Name:           "linkedin",
	Extractor:      "linkedin",
	HostSelectors:  []string{".job-details-jobs-unified-top-card__job-title h1"},
	ButtonClass:    "li-check-suitability",
	ButtonLabel:    "Check Suitability",
	CrossRefParams: []string{"currentJobId"},
}

func TestProbeSourceAttachesSessionWithBinding(t *testing.T) {
	fb := newFakeBrowser(t, pageTarget("t1", "https://www.linkedin.com/jobs/search/"))
	fb.setEval(evalFor(map[string]string{
		"window.__RFC__ = {tabId:": `{"ok":true,"data":{"url":"https://www.linkedin.com/jobs/search/","visible":true,"markers":true,"affordance":false,"tab_id":"tab-1"}}`,
	}, `{"ok":true}`))
	c := connectFake(t, fb)

	probe, err := c.ProbeSource(context.Background(), "t1", testSite, "tab-1")
	if err != nil {
		t.Fatalf("ProbeSource() = %v", err)
	}
	if probe.TabID != "tab-1" || !probe.Visible || !probe.Markers || probe.Affordance {
		t.Fatalf("ProbeSource() = %+v", probe)
	}
	if fb.calls("Target.attachToTarget") != 1 || fb.calls("Runtime.enable") != 1 || fb.calls("Runtime.addBinding") != 1 {
		t.Fatal("first probe should attach, enable Runtime and add the binding once")
	}

	// A second call reuses the session.
	if _, err := c.ProbeSource(context.Background(), "t1", testSite, "tab-2"); err != nil {
		t.Fatalf("ProbeSource() second = %v", err)
	}
	if got := fb.calls("Target.attachToTarget"); got != 1 {
		t.Fatalf("attachToTarget calls = %d; want 1", got)
	}

	tabs, err := c.ListTabs(context.Background())
	if err != nil {
		t.Fatalf("ListTabs() = %v", err)
	}
	if len(tabs) != 1 || !tabs[0].Attached {
		t.Fatalf("ListTabs() = %+v", tabs)
	}
}

func TestEvalMapsPageErrorCodes(t *testing.T) {
	fb := newFakeBrowser(t, pageTarget("t1", "https://chatgpt.com/g/g-p-1/project"))
	fb.setEval(func(string) string {
		return `{"ok":false,"error_code":"SURFACE_NOT_FOUND","error_message":"composer not found"}`
	})
	c := connectFake(t, fb)

	_, err := c.ReadComposer(context.Background(), "t1", "textarea#prompt-textarea")
	var coded *CodedError
	if !errors.As(err, &coded) || coded.Code != CodeSurfaceNotFound {
		t.Fatalf("ReadComposer() = %v; want %s", err, CodeSurfaceNotFound)
	}
}

func TestEvalUnknownTab(t *testing.T) {
	fb := newFakeBrowser(t, pageTarget("t1", "https://www.indeed.com/"))
	c := connectFake(t, fb)

	err := c.Eval(context.Background(), "missing", wrapJSEval("return 1;"), nil)
	var coded *CodedError
	if !errors.As(err, &coded) || coded.Code != CodeTabNotFound {
		t.Fatalf("Eval() = %v; want %s", err, CodeTabNotFound)
	}
}

func TestBindingEventsCarryTargetID(t *testing.T) {
	fb := newFakeBrowser(t, pageTarget("t1", "https://nl.indeed.com/viewjob?jk=1"))
	fb.setEval(func(string) string { return `{"ok":true,"data":{"ready":true}}` })
	c := connectFake(t, fb)

	if _, err := c.ContentReady(context.Background(), "t1"); err != nil {
		t.Fatalf("ContentReady() = %v", err)
	}

	fb.emitBinding("S-t1", "somethingElse", `{"type":"signal"}`)
	fb.emitBinding("S-unknown", DefaultBindingName, `{"type":"signal"}`)
	fb.emitBinding("S-t1", DefaultBindingName, `{"type":"trigger","shift":true,"tab":"tab-1"}`)

	select {
	case ev := <-c.Bindings():
		if ev.TargetID != "t1" || !strings.Contains(ev.Payload, `"trigger"`) {
			t.Fatalf("binding event = %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no binding event delivered")
	}
	select {
	case ev := <-c.Bindings():
		t.Fatalf("unexpected extra binding event %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestOpenTabCreatesTarget(t *testing.T) {
	fb := newFakeBrowser(t)
	c := connectFake(t, fb)

	id, err := c.OpenTab(context.Background(), "https://chatgpt.com/g/g-p-1/project?li_rfc_tab=a")
	if err != nil {
		t.Fatalf("OpenTab() = %v", err)
	}
	if id == "" {
		t.Fatal("OpenTab() returned empty id")
	}
	tabs, err := c.ListTabs(context.Background())
	if err != nil {
		t.Fatalf("ListTabs() = %v", err)
	}
	if len(tabs) != 1 || tabs[0].TargetID != id {
		t.Fatalf("ListTabs() = %+v; want the opened tab", tabs)
	}

	if _, err := c.OpenTab(context.Background(), "  "); err == nil {
		t.Fatal("OpenTab(blank) = nil; want validation error")
	}
}

func TestWriteComposerFallsBackToTrustedInput(t *testing.T) {
	fb := newFakeBrowser(t, pageTarget("t1", "https://chatgpt.com/g/g-p-1/project"))
	fb.setEval(evalFor(map[string]string{
		`execCommand("insertText"`: `{"ok":true,"data":{"written":false}}`,
	}, `{"ok":true}`))
	c := connectFake(t, fb)

	ok, err := c.WriteComposer(context.Background(), "t1", "div#prompt-textarea[contenteditable]", "Senior Engineer")
	if err != nil || !ok {
		t.Fatalf("WriteComposer() = (%v, %v)", ok, err)
	}
	if got := fb.insertedTexts(); len(got) != 1 || got[0] != "Senior Engineer" {
		t.Fatalf("Input.insertText texts = %v", got)
	}
}

func TestPromptDecodesDismissal(t *testing.T) {
	fb := newFakeBrowser(t, pageTarget("t1", "https://www.linkedin.com/jobs/search/"))
	fb.setEval(func(string) string { return `{"ok":true,"data":{"answered":false,"answer":""}}` })
	c := connectFake(t, fb)

	answer, answered, err := c.Prompt(context.Background(), "t1", "Enter URL", "")
	if err != nil || answered || answer != "" {
		t.Fatalf("Prompt() = (%q, %v, %v)", answer, answered, err)
	}
}
