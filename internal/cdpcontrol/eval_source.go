package cdpcontrol

import "fmt"

// jsProbeSource installs the per-document state on first use and reports the
// page state. candidate becomes the tab id only when the document has no
// state yet, so a re-probe keeps the identity and a full navigation mints a
// new one.
func jsProbeSource(site SiteScript, binding, candidate string) string {
	return wrapJSEval(fmt.Sprintf(jsPageHelpers+`
var cfg = %s;
var st = window.__RFC__;
if (!st) {
  st = window.__RFC__ = {tabId:%s, cfg:cfg, lastHref:location.href};
  var emit = function(msg) {
    msg.tab = st.tabId;
    try { var f = window[%s]; if (typeof f === "function") f(JSON.stringify(msg)); } catch(_) {}
  };
  st.emit = emit;
  var signal = function(reason) { return function() { emit({type:"signal",reason:reason}); }; };
  window.addEventListener("pageshow", signal("pageshow"));
  window.addEventListener("focus", signal("focus"));
  document.addEventListener("visibilitychange", function() {
    if (document.visibilityState === "visible") emit({type:"signal",reason:"visibilitychange"});
  });
  var navigated = function() {
    if (location.href === st.lastHref) return;
    st.lastHref = location.href;
    emit({type:"signal",reason:"navigated"});
  };
  ["pushState", "replaceState"].forEach(function(name) {
    var orig = history[name];
    if (typeof orig !== "function") return;
    history[name] = function() { var r = orig.apply(this, arguments); navigated(); return r; };
  });
  window.addEventListener("popstate", navigated);
}
st.cfg = cfg;
var markers = !cfg.markers || cfg.markers.length === 0 || !!_qsAny(cfg.markers);
return JSON.stringify({ok:true,data:{
  url:location.href,
  visible:document.visibilityState === "visible",
  markers:markers,
  affordance:!!document.querySelector("." + cfg.button_class),
  tab_id:st.tabId
}});
`, jsJSON(site), jsString(candidate), jsString(binding)))
}

const jsAffordanceStyle = `
function _ensureStyle(cls) {
  if (document.getElementById("rfc-style")) return;
  var style = document.createElement("style");
  style.id = "rfc-style";
  style.textContent = "." + cls + " {" +
    "margin-left:10px;padding:6px 12px;border-radius:999px;" +
    "border:1px solid rgba(0,0,0,0.35);background:#fff;cursor:pointer;" +
    "font-size:12px;font-weight:600;white-space:nowrap;vertical-align:middle;}" +
    "." + cls + "[disabled] {opacity:0.6;cursor:progress;}";
  document.documentElement.appendChild(style);
}
`

// jsInsertAffordance places the trigger button next to the first host
// element. Buttons left outside the current container are removed so at most
// one exists per document.
func jsInsertAffordance() string {
	return wrapJSEval(jsPageHelpers + jsStateGuard + jsAffordanceStyle + `
var host = _qsAny(cfg.hosts || []);
if (!host) return JSON.stringify({ok:true,data:{present:false,inserted:false}});
var container = host;
if (cfg.container) container = host.closest(cfg.container) || host.parentElement || host;
var cls = cfg.button_class;
var kept = null;
var existing = document.querySelectorAll("." + cls);
for (var i = 0; i < existing.length; i++) {
  if (!kept && container.contains(existing[i])) { kept = existing[i]; continue; }
  existing[i].remove();
}
if (kept) return JSON.stringify({ok:true,data:{present:true,inserted:false}});
_ensureStyle(cls);
var btn = document.createElement("button");
btn.type = "button";
btn.className = cls;
btn.textContent = cfg.button_label;
btn.addEventListener("click", function(e) {
  e.preventDefault();
  e.stopPropagation();
  if (btn.disabled) return;
  var s = window.__RFC__;
  if (s && s.emit) s.emit({type:"trigger",shift:!!e.shiftKey});
});
if (!cfg.container) host.appendChild(btn);
else if (host.parentNode === container) container.appendChild(btn);
else host.insertAdjacentElement("afterend", btn);
return JSON.stringify({ok:true,data:{present:true,inserted:true}});
`)
}

func jsRemoveAffordance() string {
	return wrapJSEval(jsStateGuard + `
var existing = document.querySelectorAll("." + cfg.button_class);
for (var i = 0; i < existing.length; i++) existing[i].remove();
return JSON.stringify({ok:true,data:{removed:existing.length}});
`)
}

// jsSetAffordanceState relabels every trigger button. A positive resetMs
// restores the idle label afterwards.
func jsSetAffordanceState(label, idleLabel string, busy bool, resetMs int) string {
	return wrapJSEval(fmt.Sprintf(jsStateGuard+`
var label = %s, idle = %s, busy = %t, resetMs = %d;
var btns = document.querySelectorAll("." + cfg.button_class);
for (var i = 0; i < btns.length; i++) {
  btns[i].textContent = label;
  btns[i].disabled = busy;
}
if (st.resetTimer) { clearTimeout(st.resetTimer); st.resetTimer = null; }
if (resetMs > 0) {
  st.resetTimer = setTimeout(function() {
    st.resetTimer = null;
    var bs = document.querySelectorAll("." + cfg.button_class);
    for (var j = 0; j < bs.length; j++) { bs[j].textContent = idle; bs[j].disabled = false; }
  }, resetMs);
}
return JSON.stringify({ok:true,data:{updated:btns.length}});
`, jsString(label), jsString(idleLabel), busy, resetMs))
}

// jsPrompt blocks the page until the user answers.
func jsPrompt(message, current string) string {
	return wrapJSEval(fmt.Sprintf(`
var answer = window.prompt(%s, %s);
return JSON.stringify({ok:true,data:{answered:answer !== null,answer:answer === null ? "" : String(answer)}});
`, jsString(message), jsString(current)))
}

// jsAlert shows an alert without blocking the evaluation.
func jsAlert(message string) string {
	return wrapJSEval(fmt.Sprintf(`
var msg = %s;
setTimeout(function() { window.alert(msg); }, 0);
return JSON.stringify({ok:true});
`, jsString(message)))
}
