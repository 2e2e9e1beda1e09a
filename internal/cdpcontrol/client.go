package cdpcontrol

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/target"
)

// DefaultBindingName is the page-global function source pages call to reach
// the controller.
const DefaultBindingName = "__rfcEmit"

const bindingBuffer = 64

// transientHints are substrings in error causes that indicate a transient
// failure worth retrying (e.g. broken connection, closed session).
var transientHints = []string{
	"context canceled",
	"target closed",
	"session closed",
	"no session with given id",
	"websocket",
	"connection reset",
	"broken pipe",
	"eof",
	"connection refused",
	"connection closed",
}

type tabSession struct {
	info      TabInfo
	mu        sync.Mutex
	sessionID string // CDP session ID from Target.attachToTarget
}

// Client keeps one flat CDP session per http(s) page target and evaluates
// page-side scripts on them.
type Client struct {
	cdpURL        string
	evalTimeout   time.Duration
	promptTimeout time.Duration
	bindingName   string

	mu     sync.Mutex
	cdp    *rawCDP
	tabs   map[target.ID]*tabSession
	unbind func()

	// sessMu is separate from mu because the read loop resolves binding
	// events while mu may be held across a websocket round trip.
	sessMu          sync.RWMutex
	sessionToTarget map[string]target.ID

	tabLocksMu sync.Mutex
	tabLocks   map[string]*sync.Mutex

	bindings chan BindingEvent
}

type evalEnvelope struct {
	OK           bool            `json:"ok"`
	Data         json.RawMessage `json:"data,omitempty"`
	ErrorCode    string          `json:"error_code,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
}

func NewClient(cdpURL string, evalTimeout, promptTimeout time.Duration) *Client {
	if promptTimeout < evalTimeout {
		promptTimeout = evalTimeout
	}
	return &Client{
		cdpURL:          cdpURL,
		evalTimeout:     evalTimeout,
		promptTimeout:   promptTimeout,
		bindingName:     DefaultBindingName,
		tabs:            make(map[target.ID]*tabSession),
		sessionToTarget: make(map[string]target.ID),
		tabLocks:        make(map[string]*sync.Mutex),
		bindings:        make(chan BindingEvent, bindingBuffer),
	}
}

func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectLocked(ctx)
}

func (c *Client) connectLocked(ctx context.Context) error {
	if c.cdpURL == "" {
		return newError(CodeCDPUnavailable, "missing CDP URL", nil)
	}

	slog.Info("cdpcontrol connect start", "cdp_url", c.cdpURL)
	c.cleanupLocked()

	c.cdp = newRawCDP(c.cdpURL)
	c.unbind = c.cdp.registerEventHandler("Runtime.bindingCalled", c.handleBinding)
	if err := c.cdp.connect(ctx); err != nil {
		c.unbind()
		c.unbind = nil
		c.cdp = nil
		return newError(CodeCDPUnavailable, "connect to CDP failed", err)
	}

	if err := c.syncTabsLocked(ctx); err != nil {
		slog.Error("cdpcontrol initial tab sync failed", "error", err)
		c.cleanupLocked()
		return newError(CodeCDPUnavailable, "connect to CDP failed", err)
	}

	slog.Info("cdpcontrol connect ok", "cdp_url", c.cdpURL, "tabs", len(c.tabs))
	return nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cleanupLocked()
	return nil
}

func (c *Client) cleanupLocked() {
	// Detach from any active sessions without closing targets.
	if c.cdp != nil {
		for targetID, session := range c.tabs {
			if session == nil {
				continue
			}
			session.mu.Lock()
			if session.sessionID != "" {
				ctx, cancel := context.WithTimeout(context.Background(), time.Second)
				if err := c.cdp.detachFromTarget(ctx, session.sessionID); err != nil {
					slog.Debug("cdpcontrol detach cleanup failed", "target_id", targetID, "error", err)
				}
				cancel()
				session.sessionID = ""
			}
			session.mu.Unlock()
		}
		c.cdp.close()
		c.cdp = nil
	}
	if c.unbind != nil {
		c.unbind()
		c.unbind = nil
	}
	c.tabs = make(map[target.ID]*tabSession)
	c.sessMu.Lock()
	c.sessionToTarget = make(map[string]target.ID)
	c.sessMu.Unlock()
}

// Bindings delivers page messages from every attached tab. The channel is
// never closed and survives reconnects.
func (c *Client) Bindings() <-chan BindingEvent {
	return c.bindings
}

func (c *Client) handleBinding(sessionID string, params json.RawMessage) {
	var ev struct {
		Name    string `json:"name"`
		Payload string `json:"payload"`
	}
	if err := json.Unmarshal(params, &ev); err != nil || ev.Name != c.bindingName {
		return
	}
	c.sessMu.RLock()
	targetID, ok := c.sessionToTarget[sessionID]
	c.sessMu.RUnlock()
	if !ok {
		slog.Debug("cdpcontrol binding from unknown session", "session_id", sessionID)
		return
	}
	select {
	case c.bindings <- BindingEvent{TargetID: string(targetID), Payload: ev.Payload}:
	default:
		slog.Warn("cdpcontrol binding event dropped", "target_id", targetID)
	}
}

// ListTabs refreshes and returns the tracked page targets.
func (c *Client) ListTabs(ctx context.Context) ([]TabInfo, error) {
	if err := c.refreshTabs(ctx); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]TabInfo, 0, len(c.tabs))
	for _, session := range c.tabs {
		if session == nil {
			continue
		}
		info := session.info
		session.mu.Lock()
		info.Attached = session.sessionID != ""
		session.mu.Unlock()
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TargetID < out[j].TargetID })
	return out, nil
}

// OpenTab opens url in a new tab and returns its target id.
func (c *Client) OpenTab(ctx context.Context, url string) (string, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return "", newError(CodeValidation, "url is required", nil)
	}
	if err := c.ensureConnected(ctx); err != nil {
		return "", err
	}
	c.mu.Lock()
	cdp := c.cdp
	c.mu.Unlock()
	if cdp == nil {
		return "", newError(CodeCDPUnavailable, "CDP client not connected", nil)
	}

	id, err := cdp.createTarget(ctx, url)
	if err != nil {
		return "", newError(CodeCDPUnavailable, "failed to open tab", err)
	}
	slog.Info("cdpcontrol tab opened", "target_id", id, "url", url)
	return id, nil
}

// Eval runs a wrapped script on the tab and decodes its envelope into out.
func (c *Client) Eval(ctx context.Context, targetID, js string, out any) error {
	return c.evalOnTab(ctx, targetID, js, out, c.evalTimeout)
}

// evalBlocking is Eval for scripts that wait on the user, such as prompt().
func (c *Client) evalBlocking(ctx context.Context, targetID, js string, out any) error {
	return c.evalOnTab(ctx, targetID, js, out, c.promptTimeout)
}

func (c *Client) evalOnTab(ctx context.Context, targetID, js string, out any, timeout time.Duration) error {
	targetID = strings.TrimSpace(targetID)
	if targetID == "" {
		return newError(CodeTabNotFound, "target id is required", nil)
	}

	lock := c.tabLock(targetID)
	lock.Lock()
	defer lock.Unlock()

	// First attempt.
	slog.Debug("cdpcontrol eval on tab", "target_id", targetID)
	session, err := c.resolveTabSession(ctx, targetID)
	if err != nil {
		slog.Warn("cdpcontrol tab resolve failed", "target_id", targetID, "error", err)
	} else {
		err = c.evalOnSession(ctx, session, targetID, js, out, timeout)
	}
	if err == nil {
		return nil
	}
	if !c.shouldRetry(err) {
		return err
	}

	// Retry after recovery.
	slog.Warn("cdpcontrol eval retry after transient failure", "target_id", targetID, "error", err)
	if c.asCode(err, CodeCDPUnavailable) {
		if recErr := c.reconnect(ctx); recErr != nil {
			slog.Error("cdpcontrol reconnect failed during retry", "target_id", targetID, "error", recErr)
			return recErr
		}
	} else {
		if syncErr := c.refreshTabs(ctx); syncErr != nil {
			slog.Warn("cdpcontrol tab refresh failed during retry", "target_id", targetID, "error", syncErr)
		}
	}

	slog.Debug("cdpcontrol eval on tab (retry)", "target_id", targetID)
	session, err = c.resolveTabSession(ctx, targetID)
	if err != nil {
		slog.Warn("cdpcontrol tab resolve failed (retry)", "target_id", targetID, "error", err)
		return err
	}
	return c.evalOnSession(ctx, session, targetID, js, out, timeout)
}

func (c *Client) evalOnSession(ctx context.Context, session *tabSession, targetID, js string, out any, timeout time.Duration) error {
	c.mu.Lock()
	cdp := c.cdp
	c.mu.Unlock()
	if cdp == nil {
		return newError(CodeCDPUnavailable, "CDP client not connected", nil)
	}

	// Ensure we have a session attached to this target.
	sessionID, err := c.ensureSession(ctx, cdp, session, targetID)
	if err != nil {
		return err
	}

	evalCtx, evalCancel := context.WithTimeout(ctx, timeout)
	defer evalCancel()

	raw, err := cdp.evaluate(evalCtx, sessionID, js)
	if err != nil {
		slog.Warn("cdpcontrol eval failed", "target_id", targetID, "error", err)
		// Reset session so a fresh attach happens on retry.
		c.dropSession(session)

		if errors.Is(err, context.DeadlineExceeded) || errors.Is(evalCtx.Err(), context.DeadlineExceeded) {
			return newError(CodeEvalTimeout, "evaluation timed out", err)
		}
		return newError(CodeEvalFailure, "evaluation failed", err)
	}

	var env evalEnvelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return newError(CodeEvalFailure, "invalid evaluation envelope", err)
	}
	if !env.OK {
		code := env.ErrorCode
		if code == "" {
			code = CodeEvalFailure
		}
		return newError(code, env.ErrorMessage, nil)
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return newError(CodeEvalFailure, "invalid evaluation data", err)
	}
	return nil
}

// ensureSession returns a CDP session ID for the target, attaching if needed.
// A fresh session gets the Runtime domain and the page binding.
func (c *Client) ensureSession(ctx context.Context, cdp *rawCDP, session *tabSession, targetID string) (string, error) {
	session.mu.Lock()
	defer session.mu.Unlock()

	if session.sessionID != "" {
		return session.sessionID, nil
	}

	sid, err := cdp.attachToTarget(ctx, targetID)
	if err != nil {
		return "", newError(CodeCDPUnavailable, "attach to target failed", err)
	}
	c.sessMu.Lock()
	c.sessionToTarget[sid] = target.ID(targetID)
	c.sessMu.Unlock()

	if err := cdp.enableRuntime(ctx, sid); err != nil {
		return "", newError(CodeCDPUnavailable, "enable runtime failed", err)
	}
	if err := cdp.addBinding(ctx, sid, c.bindingName); err != nil {
		return "", newError(CodeCDPUnavailable, "add binding failed", err)
	}
	session.sessionID = sid
	slog.Debug("cdpcontrol session attached", "target_id", targetID, "session_id", sid)
	return sid, nil
}

func (c *Client) dropSession(session *tabSession) {
	session.mu.Lock()
	sid := session.sessionID
	session.sessionID = ""
	session.mu.Unlock()
	if sid == "" {
		return
	}
	c.sessMu.Lock()
	delete(c.sessionToTarget, sid)
	c.sessMu.Unlock()
}

func (c *Client) resolveTabSession(ctx context.Context, targetID string) (*tabSession, error) {
	if session, ok := c.lookupTabSession(targetID); ok {
		return session, nil
	}

	if err := c.refreshTabs(ctx); err != nil {
		return nil, err
	}

	if session, ok := c.lookupTabSession(targetID); ok {
		return session, nil
	}
	return nil, newError(CodeTabNotFound, "tab not found: "+targetID, nil)
}

func (c *Client) lookupTabSession(targetID string) (*tabSession, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	session := c.tabs[target.ID(targetID)]
	return session, session != nil
}

func (c *Client) refreshTabs(ctx context.Context) error {
	if err := c.ensureConnected(ctx); err != nil {
		return err
	}

	c.mu.Lock()
	err := c.syncTabsLocked(ctx)
	c.mu.Unlock()
	return err
}

func (c *Client) reconnect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectLocked(ctx)
}

func (c *Client) syncTabsLocked(ctx context.Context) error {
	if c.cdp == nil {
		return newError(CodeCDPUnavailable, "CDP client not connected", nil)
	}

	targets, err := c.cdp.listTargets(ctx)
	if err != nil {
		return newError(CodeCDPUnavailable, "failed to list targets", err)
	}

	expected := make(map[target.ID]TabInfo)
	for _, t := range targets {
		if t.Type != "page" || !isWebURL(t.URL) {
			continue
		}
		expected[t.TargetID] = TabInfo{
			TargetID: string(t.TargetID),
			URL:      t.URL,
			Title:    t.Title,
		}
	}

	for targetID, session := range c.tabs {
		if _, ok := expected[targetID]; ok {
			continue
		}
		if session != nil {
			c.dropSession(session)
		}
		delete(c.tabs, targetID)
	}

	for targetID, info := range expected {
		session := c.tabs[targetID]
		if session != nil {
			session.info = info
			continue
		}
		c.tabs[targetID] = &tabSession{info: info}
	}

	// Prune tab locks for tabs no longer present.
	c.tabLocksMu.Lock()
	for id := range c.tabLocks {
		if _, ok := c.tabs[target.ID(id)]; !ok {
			delete(c.tabLocks, id)
		}
	}
	c.tabLocksMu.Unlock()

	slog.Debug("cdpcontrol tab sync", "targets", len(targets), "pages", len(c.tabs))
	return nil
}

func (c *Client) ensureConnected(ctx context.Context) error {
	c.mu.Lock()
	connected := c.cdp != nil
	c.mu.Unlock()
	if connected {
		return nil
	}
	return c.reconnect(ctx)
}

func (c *Client) tabLock(targetID string) *sync.Mutex {
	c.tabLocksMu.Lock()
	defer c.tabLocksMu.Unlock()
	m, ok := c.tabLocks[targetID]
	if !ok {
		m = &sync.Mutex{}
		c.tabLocks[targetID] = m
	}
	return m
}

func (c *Client) shouldRetry(err error) bool {
	var coded *CodedError
	if !errors.As(err, &coded) {
		return false
	}

	switch coded.Code {
	case CodeCDPUnavailable:
		return true
	case CodeTabNotFound:
		return false
	case CodeEvalFailure:
		if coded.Cause == nil {
			return false
		}
		cause := strings.ToLower(coded.Cause.Error())
		for _, hint := range transientHints {
			if strings.Contains(cause, hint) {
				return true
			}
		}
	}
	return false
}

func (c *Client) asCode(err error, code string) bool {
	var coded *CodedError
	if !errors.As(err, &coded) {
		return false
	}
	return coded.Code == code
}

func isWebURL(u string) bool {
	return strings.HasPrefix(u, "https://") || strings.HasPrefix(u, "http://")
}
