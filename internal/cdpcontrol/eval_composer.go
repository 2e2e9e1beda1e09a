package cdpcontrol

import "fmt"

// jsComposerElement resolves the element for a handle, which is the selector
// that located it.
const jsComposerElement = `
function _composer(sel) {
  var el = null;
  try { el = document.querySelector(sel); } catch(_) {}
  return el;
}
function _composerText(el) {
  if (el.tagName === "TEXTAREA") return el.value || "";
  return el.innerText || el.textContent || "";
}
`

func jsLocateComposer(c ComposerScript) string {
	return wrapJSEval(fmt.Sprintf(`
var sels = %s;
for (var i = 0; i < sels.length; i++) {
  var el = null;
  try { el = document.querySelector(sels[i]); } catch(_) {}
  if (el) return JSON.stringify({ok:true,data:{found:true,handle:sels[i],tag:el.tagName}});
}
return JSON.stringify({ok:true,data:{found:false}});
`, jsJSON(c.Selectors)))
}

func composerMissing(body string) string {
	return `
var el = _composer(handle);
if (!el) return JSON.stringify({ok:false,error_code:"` + CodeSurfaceNotFound + `",error_message:"composer not found: " + handle});
` + body
}

func jsReadComposer(handle string) string {
	return wrapJSEval(fmt.Sprintf(jsComposerElement+"var handle = %s;\n", jsString(handle)) + composerMissing(`
return JSON.stringify({ok:true,data:{text:_composerText(el)}});
`))
}

func jsClearComposer(handle string) string {
	return wrapJSEval(fmt.Sprintf(jsComposerElement+"var handle = %s;\n", jsString(handle)) + composerMissing(`
if (el.tagName === "TEXTAREA") {
  el.value = "";
} else {
  el.focus();
  try { document.execCommand("selectAll"); document.execCommand("delete"); } catch(_) {}
}
el.dispatchEvent(new Event("input", {bubbles:true}));
return JSON.stringify({ok:true});
`))
}

// jsWriteComposer inserts text as an edit. written is false when the editor
// refused the insertion; the element stays focused for a trusted retry.
func jsWriteComposer(handle, text string) string {
	return wrapJSEval(fmt.Sprintf(jsComposerElement+"var handle = %s;\nvar text = %s;\n", jsString(handle), jsString(text)) + composerMissing(`
var written = false;
if (el.tagName === "TEXTAREA") {
  el.value = text;
  written = true;
} else {
  el.focus();
  try { written = document.execCommand("insertText", false, text); } catch(_) { written = false; }
}
if (written) el.dispatchEvent(new Event("input", {bubbles:true}));
return JSON.stringify({ok:true,data:{written:!!written}});
`))
}

// jsForceComposerText replaces the editor content directly.
func jsForceComposerText(handle, text string) string {
	return wrapJSEval(fmt.Sprintf(jsComposerElement+"var handle = %s;\nvar text = %s;\n", jsString(handle), jsString(text)) + composerMissing(`
if (el.tagName === "TEXTAREA") el.value = text; else el.textContent = text;
el.dispatchEvent(new Event("input", {bubbles:true}));
return JSON.stringify({ok:true,data:{written:true}});
`))
}

// jsMarkDocument stamps the destination document. A reload drops the stamp,
// so fresh is true exactly once per loaded document.
func jsMarkDocument() string {
	return wrapJSEval(`
if (window.__RFC_DEST__) return JSON.stringify({ok:true,data:{fresh:false}});
window.__RFC_DEST__ = {markedAt: Date.now()};
return JSON.stringify({ok:true,data:{fresh:true}});
`)
}
