package cdpcontrol

// jsExtractors maps SiteScript.Extractor names to page readers. Each reader
// exposes title(), description(), text() and ready(min).
const jsExtractors = `
var _extractors = {};

_extractors.linkedin = (function() {
  var x = {};
  x.title = function() {
    return _text(_qsAny([
      ".job-details-jobs-unified-top-card__job-title h1 a",
      ".job-details-jobs-unified-top-card__job-title h1",
      "h1"
    ]));
  };
  x.location = function() {
    var el = _qsAny([
      ".job-details-jobs-unified-top-card__primary-description-container .tvm__text--low-emphasis",
      ".jobs-unified-top-card__subtitle-primary-grouping span"
    ]);
    return _norm(_text(el).split("\n")[0]);
  };
  x.description = function() {
    return _text(_qsAny([
      "#job-details",
      ".jobs-description__content",
      ".jobs-description-content__text--stretch"
    ]));
  };
  x.text = function() {
    return _norm([x.title(), x.location(), "", x.description()].join("\n"));
  };
  return x;
})();

_extractors.indeed = (function() {
  var LANGUAGES = {
    "Engels":"English","Nederlands":"Dutch","Duits":"German","Frans":"French","Spaans":"Spanish",
    "Italiaans":"Italian","Portugees":"Portuguese","Pools":"Polish","Roemeens":"Romanian",
    "Bulgaars":"Bulgarian","Hongaars":"Hungarian","Grieks":"Greek","Turks":"Turkish",
    "Arabisch":"Arabic","Chinees":"Chinese","Japans":"Japanese","Koreaans":"Korean",
    "Russisch":"Russian","Oekraïens":"Ukrainian","Zweeds":"Swedish","Noors":"Norwegian",
    "Deens":"Danish","Fins":"Finnish","Tsjechisch":"Czech","Slowaaks":"Slovak",
    "Kroatisch":"Croatian","Servisch":"Serbian","Sloveens":"Slovenian","Litouws":"Lithuanian",
    "Lets":"Latvian","Estisch":"Estonian","Hebreeuws":"Hebrew","Hindi":"Hindi",
    "Bengaals":"Bengali","Urdu":"Urdu","Perzisch":"Persian","Vietnamees":"Vietnamese",
    "Indonesisch":"Indonesian","Maleis":"Malay","Thai":"Thai"
  };
  var WORK_MODES = {
    "Hybride werken":"Hybrid","Op locatie":"On-site","Thuiswerk":"Remote","Thuiswerken":"Remote"
  };
  var COUNTRIES = {
    "Nederland":"Netherlands","België":"Belgium","Duitsland":"Germany","Frankrijk":"France",
    "Spanje":"Spain","Italië":"Italy","Portugal":"Portugal","Zwitserland":"Switzerland",
    "Oostenrijk":"Austria","Polen":"Poland","Verenigd Koninkrijk":"United Kingdom",
    "Ierland":"Ireland","Zweden":"Sweden","Noorwegen":"Norway","Denemarken":"Denmark",
    "Finland":"Finland","Griekenland":"Greece","Turkije":"Turkey","Roemenië":"Romania",
    "Bulgarije":"Bulgaria","Tsjechië":"Czechia","Slowakije":"Slovakia","Hongarije":"Hungary",
    "Kroatië":"Croatia","Servië":"Serbia","Slovenië":"Slovenia","Litouwen":"Lithuania",
    "Letland":"Latvia","Estland":"Estonia"
  };
  function lookup(table, s) {
    s = _norm(s);
    return Object.prototype.hasOwnProperty.call(table, s) ? table[s] : s;
  }
  function splitBullets(s) {
    s = _norm(s);
    if (!s) return [];
    return s.split(/•|\||,/g).map(_norm).filter(Boolean);
  }
  function dedupe(list) {
    var seen = {}, out = [];
    for (var i = 0; i < list.length; i++) {
      var k = list[i].toLowerCase();
      if (seen[k]) continue;
      seen[k] = true;
      out.push(list[i]);
    }
    return out;
  }

  var x = {};
  x.title = function() {
    var el = _qsAny(['[data-testid="jobsearch-JobInfoHeader-title"]', "h1", "h2"]);
    if (!el) return "";
    var clone = el.cloneNode(true);
    clone.querySelectorAll(".css-8u2krs").forEach(function(n) { n.remove(); });
    clone.querySelectorAll("span,div").forEach(function(n) {
      if (/job\s*post/i.test(_norm(n.textContent))) n.remove();
    });
    var s = _norm(clone.textContent);
    s = s.replace(/\s*[-–—]\s*job\s*post\s*$/i, "").replace(/\s*job\s*post\s*$/i, "");
    return _norm(s);
  };
  x.company = function() {
    return _text(_qsAny(['[data-testid="inlineHeader-companyName"]', '[data-company-name="true"]']));
  };
  function companyInfo() {
    return _qsAny(['[data-testid="jobsearch-CompanyInfoContainer"]']);
  }
  function place() {
    var root = companyInfo();
    if (root) {
      var exact = _qsAny(['[data-testid="job-location"]'], root);
      if (exact) return _text(exact);
      var inline = _qsAny(['[data-testid="inlineHeader-companyLocation"]'], root);
      if (inline) {
        var tokens = splitBullets(_text(inline)).filter(function(t) { return !WORK_MODES[t]; });
        var joined = _norm(tokens.map(function(t) { return lookup(COUNTRIES, t); }).join(" • "));
        if (joined) return joined;
      }
    }
    return _text(_qsAny([
      '[data-testid="jobsearch-JobInfoHeader-companyLocation"]',
      "#jobLocationText",
      "#jobLocationWrapper"
    ]));
  }
  function workModes() {
    var root = companyInfo();
    if (!root) return "";
    var tokens = splitBullets(_text(_qsAny(['[data-testid="inlineHeader-companyLocation"]'], root)));
    if (!tokens.length) tokens = splitBullets(_text(root));
    var modes = [];
    for (var i = 0; i < tokens.length; i++) {
      if (WORK_MODES[tokens[i]]) modes.push(WORK_MODES[tokens[i]]);
    }
    return dedupe(modes).join(", ");
  }
  x.location = function() {
    return [lookup(COUNTRIES, place()), workModes()].filter(Boolean).join(" | ");
  };
  x.description = function() {
    return "About the job\n\n" + _text(_qsAny(["#jobDescriptionText", "div.jobsearch-JobComponent"]));
  };
  function languagesGroup() {
    var groups = document.querySelectorAll('[role="group"]');
    for (var i = 0; i < groups.length; i++) {
      if (/(talen|languages)/i.test(groups[i].getAttribute("aria-label") || "")) return groups[i];
    }
    for (var j = 0; j < groups.length; j++) {
      var h3 = groups[j].querySelector("h3");
      if (/(talen|languages)/i.test(_norm(h3 ? h3.textContent : ""))) return groups[j];
    }
    return null;
  }
  x.languages = function() {
    var root = languagesGroup();
    if (!root) return [];
    var tiles = root.querySelectorAll('button[data-testid$="-tile"]');
    var out = [];
    for (var i = 0; i < tiles.length; i++) {
      var span = tiles[i].querySelector("span.js-match-insights-provider-18uwqyc") || tiles[i].querySelector("span") || tiles[i];
      var label = _norm(_text(span).replace(/\(\s*vereist\s*\)\s*$/i, ""));
      if (label) out.push(lookup(LANGUAGES, label));
    }
    return dedupe(out);
  };
  x.text = function() {
    var header = [x.title(), x.company(), x.location()].filter(Boolean).join("\n");
    var langs = x.languages();
    return _norm([header, "", x.description()].join("\n")) + (langs.length ? "\n\nLanguages: " + langs.join(", ") : "");
  };
  return x;
})();

function _extractor(cfg) {
  var x = _extractors[cfg.extractor];
  if (!x) throw new Error("unknown extractor: " + cfg.extractor);
  return x;
}
`

func jsContentReady() string {
	return wrapJSEval(jsPageHelpers + jsStateGuard + jsExtractors + `
var x = _extractor(cfg);
var desc = x.description();
var ready = !!x.title() && desc.length > 0 && desc.length > (cfg.min_description || 0);
return JSON.stringify({ok:true,data:{ready:ready,description_chars:desc.length}});
`)
}

func jsExtractText() string {
	return wrapJSEval(jsPageHelpers + jsStateGuard + jsExtractors + `
return JSON.stringify({ok:true,data:{text:_extractor(cfg).text()}});
`)
}

// jsCrossReference returns the first non-empty configured query parameter of
// the current location.
func jsCrossReference() string {
	return wrapJSEval(jsStateGuard + `
var ref = "";
try {
  var params = new URL(location.href).searchParams;
  var names = cfg.crossref || [];
  for (var i = 0; i < names.length && !ref; i++) ref = params.get(names[i]) || "";
} catch(_) {}
return JSON.stringify({ok:true,data:{ref:ref}});
`)
}
