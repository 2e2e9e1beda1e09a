package cdpcontrol

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestJSStringAndJSONHelpers(t *testing.T) {
	if got := jsString("hello\nworld"); got != "\"hello\\nworld\"" {
		t.Fatalf("jsString = %q, want %q", got, "\"hello\\nworld\"")
	}

	got := jsJSON(map[string]any{"a": 1, "b": true})
	var m map[string]any
	if err := json.Unmarshal([]byte(got), &m); err != nil {
		t.Fatalf("jsJSON returned invalid JSON: %v", err)
	}
	if len(m) != 2 {
		t.Fatalf("jsJSON decoded map has %d fields, want 2", len(m))
	}
	if m["b"] != true {
		t.Fatalf("jsJSON decoded map = %v, want b=true", m["b"])
	}
}

func TestJSEvalWrappers(t *testing.T) {
	syncExpr := wrapJSEval("return 1;")
	if !strings.Contains(syncExpr, "(function(){\ntry {") {
		t.Fatalf("unexpected sync wrapper: %s", syncExpr)
	}
	if strings.Contains(syncExpr, "(async function") {
		t.Fatalf("sync wrapper should not be async: %s", syncExpr)
	}

	asyncExpr := wrapJSEvalAsync("await Promise.resolve(1);")
	if !strings.Contains(asyncExpr, "(async function(){\ntry {") {
		t.Fatalf("unexpected async wrapper: %s", asyncExpr)
	}
	if !strings.Contains(asyncExpr, "await Promise.resolve(1);") {
		t.Fatalf("async wrapper lost body: %s", asyncExpr)
	}
}

func TestProbeScriptEmbedsSiteAndCandidate(t *testing.T) {
	js := jsProbeSource(SiteScript{
		Name:            "indeed",
		Extractor:       "indeed",
		MarkerSelectors: []string{`[data-testid="jobsearch-JobInfoHeader-title"]`},
		ButtonClass:     "in-rfc-inline",
	}, DefaultBindingName, "cand-1")

	for _, want := range []string{
		`"button_class":"in-rfc-inline"`,
		`tabId:"cand-1"`,
		`window["__rfcEmit"]`,
		`[data-testid=\"jobsearch-JobInfoHeader-title\"]`,
		`history[name] = function()`,
	} {
		if !strings.Contains(js, want) {
			t.Fatalf("probe script missing %q", want)
		}
	}
}

func TestUserTextIsQuotedInScripts(t *testing.T) {
	hostile := "\"); alert(1); (\"\n</script>"
	scripts := map[string]string{
		"prompt":   jsPrompt(hostile, hostile),
		"alert":    jsAlert(hostile),
		"write":    jsWriteComposer("textarea#prompt-textarea", hostile),
		"force":    jsForceComposerText("textarea#prompt-textarea", hostile),
		"feedback": jsSetAffordanceState(hostile, "Check Suitability", true, 0),
	}
	quoted := jsString(hostile)
	for name, js := range scripts {
		if !strings.Contains(js, quoted) {
			t.Fatalf("%s script does not embed the quoted text", name)
		}
		if strings.Contains(js, hostile) {
			t.Fatalf("%s script embeds raw text", name)
		}
	}
}

func TestComposerScriptsGuardMissingElement(t *testing.T) {
	for name, js := range map[string]string{
		"read":  jsReadComposer("div.ProseMirror[contenteditable]"),
		"clear": jsClearComposer("div.ProseMirror[contenteditable]"),
		"write": jsWriteComposer("div.ProseMirror[contenteditable]", "x"),
	} {
		if !strings.Contains(js, `error_code:"`+CodeSurfaceNotFound+`"`) {
			t.Fatalf("%s script has no missing-composer guard", name)
		}
	}
}

func TestExtractScriptsShareHelpers(t *testing.T) {
	for name, js := range map[string]string{
		"ready":   jsContentReady(),
		"extract": jsExtractText(),
	} {
		for _, want := range []string{"function _norm(", "_extractors.linkedin", "_extractors.indeed", "var cfg = st.cfg;"} {
			if !strings.Contains(js, want) {
				t.Fatalf("%s script missing %q", name, want)
			}
		}
	}
	if !strings.Contains(jsContentReady(), "cfg.min_description") {
		t.Fatal("readiness script ignores the configured description threshold")
	}
}
