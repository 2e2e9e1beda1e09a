package controller

import (
	"context"
	"testing"

	"github.com/dgnsrekt/rolefit/internal/handoff"
)

func TestSourcePageSetAffordanceState(t *testing.T) {
	tests := []struct {
		state handoff.AffordanceState
		want  labelCall
	}{
		{handoff.AffordanceIdle, labelCall{"Check Suitability", "Check Suitability", false, 0}},
		{handoff.AffordanceConfiguring, labelCall{"Config…", "Check Suitability", true, 0}},
		{handoff.AffordancePreparing, labelCall{"Preparing…", "Check Suitability", true, 0}},
		{handoff.AffordanceOpened, labelCall{"Opened", "Check Suitability", false, openedResetMs}},
		{handoff.AffordanceFailed, labelCall{"Failed", "Check Suitability", true, failedResetMs}},
	}
	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			b := newFakeBrowser()
			sites := testSites(t)
			page := NewSourcePage(b, "li", sites[0], handoff.NewPageContext("A"))
			if err := page.SetAffordanceState(context.Background(), tt.state); err != nil {
				t.Fatalf("SetAffordanceState() = %v", err)
			}
			_, _, labels := b.snapshot()
			if len(labels) != 1 || labels[0] != tt.want {
				t.Fatalf("labels = %+v; want %+v", labels, tt.want)
			}
		})
	}
}

func TestSourcePageProbeRebindsPageContext(t *testing.T) {
	b := newFakeBrowser(tab("li", "https://www.linkedin.com/jobs/search/"))
	pc := handoff.NewPageContext("initial")
	pc.Observe("https://www.linkedin.com/jobs/search/")
	page := NewSourcePage(b, "li", testSites(t)[0], pc)

	state, err := page.Probe(context.Background())
	if err != nil {
		t.Fatalf("Probe() = %v", err)
	}
	if !state.Visible || !state.MarkersPresent || state.URL != "https://www.linkedin.com/jobs/search/" {
		t.Fatalf("Probe() = %+v", state)
	}
	if pc.Tab() != "page-tab-1" {
		t.Fatalf("Tab() = %q; want page-tab-1", pc.Tab())
	}
	if pc.LastLocation() != "" {
		t.Fatal("rebinding should reset the last location")
	}
}

func TestComposerPageRoundTrip(t *testing.T) {
	b := newFakeBrowser()
	c := NewComposerPage(b, "dest", ComposerScript(testSitesFile().Composer))
	ctx := context.Background()

	h, ok, err := c.Locate(ctx)
	if err != nil || !ok {
		t.Fatalf("Locate() = (%q, %v, %v)", h, ok, err)
	}
	if _, err := c.WriteText(ctx, h, "draft"); err != nil {
		t.Fatalf("WriteText() = %v", err)
	}
	if err := c.Clear(ctx, h); err != nil {
		t.Fatalf("Clear() = %v", err)
	}
	if _, err := c.WriteText(ctx, h, "Senior Engineer"); err != nil {
		t.Fatalf("WriteText() = %v", err)
	}
	got, err := c.ReadText(ctx, h)
	if err != nil || got != "Senior Engineer" {
		t.Fatalf("ReadText() = (%q, %v)", got, err)
	}
}

func TestSiteForMatchesHostsOnly(t *testing.T) {
	sites := testSites(t)
	tests := []struct {
		url  string
		want string
	}{
		{"https://www.linkedin.com/feed/", "linkedin"},
		{"https://www.linkedin.com/jobs/collections/recommended/", "linkedin"},
		{"https://indeed.com/jobs?q=go", "indeed"},
		{"https://uk.indeed.com/viewjob?jk=1", "indeed"},
		{"https://linkedin.com/jobs/search/", ""},
		{"chrome://newtab/", ""},
		{"https://chatgpt.com/g/x/project", ""},
	}
	for _, tt := range tests {
		got := ""
		if s := siteFor(sites, tt.url); s != nil {
			got = s.Name
		}
		if got != tt.want {
			t.Errorf("siteFor(%q) = %q; want %q", tt.url, got, tt.want)
		}
	}

	rule := handoff.DefaultDestinationRule()
	if !isDestinationHost(rule, "https://chatgpt.com/c/1") || isDestinationHost(rule, "http://chatgpt.com/") {
		t.Fatal("isDestinationHost should accept https on the rule host only")
	}
}
