package cdpcontrol

import "encoding/json"

// jsPageHelpers provides _norm(s), _qsAny(sels, root) and _text(el), shared
// by the extractors and the affordance scripts.
const jsPageHelpers = `
function _norm(s) {
  return String(s || "")
    .replace(/\u00a0/g, " ")
    .replace(/[ \t]+\n/g, "\n")
    .replace(/\n{3,}/g, "\n\n")
    .trim();
}
function _qsAny(sels, root) {
  root = root || document;
  for (var i = 0; i < sels.length; i++) {
    var el = null;
    try { el = root.querySelector(sels[i]); } catch(_) {}
    if (el) return el;
  }
  return null;
}
function _text(el) {
  try { return _norm(el ? (el.innerText || el.textContent || "") : ""); } catch(_) { return ""; }
}
`

// jsStateGuard resolves the per-document state installed by the bootstrap
// script, or fails with SURFACE_NOT_FOUND so the caller re-probes.
const jsStateGuard = `
var st = window.__RFC__;
if (!st) return JSON.stringify({ok:false,error_code:"` + CodeSurfaceNotFound + `",error_message:"page script not installed"});
var cfg = st.cfg;
`

func jsString(v string) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func jsJSON(v any) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func buildIIFE(async bool, body string) string {
	prefix := "(function(){\n"
	if async {
		prefix = "(async function(){\n"
	}
	return prefix + `try {
` + body + `
} catch (err) {
return JSON.stringify({ok:false,error_code:"` + CodeEvalFailure + `",error_message:String(err && err.message || err)});
}
})()`
}

func wrapJSEval(body string) string      { return buildIIFE(false, body) }
func wrapJSEvalAsync(body string) string { return buildIIFE(true, body) }
