package cdpcontrol

import (
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// fakeBrowser serves the DevTools HTTP endpoints and a browser websocket that
// answers the handful of commands the client sends.
type fakeBrowser struct {
	t   *testing.T
	srv *httptest.Server

	mu       sync.Mutex
	targets  []map[string]string
	methods  []string
	bindings []string
	inserted []string
	conn     net.Conn

	// eval returns the string value Runtime.evaluate reports for expr.
	eval func(expr string) string
}

type fakeRequest struct {
	ID        int64           `json:"id"`
	Method    string          `json:"method"`
	SessionID string          `json:"sessionId"`
	Params    json.RawMessage `json:"params"`
}

func newFakeBrowser(t *testing.T, targets ...map[string]string) *fakeBrowser {
	t.Helper()
	fb := &fakeBrowser{
		t:       t,
		targets: targets,
		eval: func(string) string {
			return `{"ok":true}`
		},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/json/version", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{
			"webSocketDebuggerUrl": "ws://" + r.Host + "/devtools/browser/fake",
		})
	})
	mux.HandleFunc("/json/list", func(w http.ResponseWriter, r *http.Request) {
		fb.mu.Lock()
		defer fb.mu.Unlock()
		_ = json.NewEncoder(w).Encode(fb.targets)
	})
	mux.HandleFunc("/devtools/browser/fake", fb.serveWS)
	fb.srv = httptest.NewServer(mux)
	t.Cleanup(fb.srv.Close)
	return fb
}

func pageTarget(id, url string) map[string]string {
	return map[string]string{"id": id, "type": "page", "url": url, "title": id}
}

func (fb *fakeBrowser) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		fb.t.Errorf("ws.UpgradeHTTP() = %v", err)
		return
	}
	fb.mu.Lock()
	fb.conn = conn
	fb.mu.Unlock()
	defer conn.Close()

	for {
		data, err := wsutil.ReadClientText(conn)
		if err != nil {
			return
		}
		var req fakeRequest
		if err := json.Unmarshal(data, &req); err != nil {
			continue
		}
		fb.mu.Lock()
		fb.methods = append(fb.methods, req.Method)
		fb.mu.Unlock()
		fb.write(map[string]any{"id": req.ID, "sessionId": req.SessionID, "result": fb.answer(req)})
	}
}

func (fb *fakeBrowser) answer(req fakeRequest) any {
	var params map[string]any
	_ = json.Unmarshal(req.Params, &params)
	switch req.Method {
	case "Target.attachToTarget":
		targetID, _ := params["targetId"].(string)
		return map[string]string{"sessionId": "S-" + targetID}
	case "Target.createTarget":
		url, _ := params["url"].(string)
		fb.mu.Lock()
		id := "new-" + strconv.Itoa(len(fb.targets))
		fb.targets = append(fb.targets, pageTarget(id, url))
		fb.mu.Unlock()
		return map[string]string{"targetId": id}
	case "Runtime.addBinding":
		name, _ := params["name"].(string)
		fb.mu.Lock()
		fb.bindings = append(fb.bindings, name)
		fb.mu.Unlock()
	case "Input.insertText":
		text, _ := params["text"].(string)
		fb.mu.Lock()
		fb.inserted = append(fb.inserted, text)
		fb.mu.Unlock()
	case "Runtime.evaluate":
		expr, _ := params["expression"].(string)
		fb.mu.Lock()
		eval := fb.eval
		fb.mu.Unlock()
		return map[string]any{"result": map[string]any{"type": "string", "value": eval(expr)}}
	}
	return map[string]any{}
}

func (fb *fakeBrowser) setEval(fn func(expr string) string) {
	fb.mu.Lock()
	fb.eval = fn
	fb.mu.Unlock()
}

func (fb *fakeBrowser) write(msg any) {
	data, err := json.Marshal(msg)
	if err != nil {
		fb.t.Errorf("json.Marshal() = %v", err)
		return
	}
	fb.mu.Lock()
	defer fb.mu.Unlock()
	if fb.conn == nil {
		return
	}
	_ = wsutil.WriteServerText(fb.conn, data)
}

// emitBinding delivers a Runtime.bindingCalled event on a session.
func (fb *fakeBrowser) emitBinding(sessionID, name, payload string) {
	fb.write(map[string]any{
		"method":    "Runtime.bindingCalled",
		"sessionId": sessionID,
		"params":    map[string]any{"name": name, "payload": payload, "executionContextId": 1},
	})
}

func (fb *fakeBrowser) calls(method string) int {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	n := 0
	for _, m := range fb.methods {
		if m == method {
			n++
		}
	}
	return n
}

func (fb *fakeBrowser) insertedTexts() []string {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return append([]string(nil), fb.inserted...)
}

func evalFor(rules map[string]string, fallback string) func(string) string {
	return func(expr string) string {
		for needle, out := range rules {
			if strings.Contains(expr, needle) {
				return out
			}
		}
		return fallback
	}
}
