package cdpcontrol

import (
	"context"
	"strings"
)

// resolveSession resolves an attached CDP session for a specific tab.
func (c *Client) resolveSession(ctx context.Context, targetID string) (*rawCDP, string, error) {
	session, err := c.resolveTabSession(ctx, targetID)
	if err != nil {
		return nil, "", err
	}
	c.mu.Lock()
	cdp := c.cdp
	c.mu.Unlock()
	if cdp == nil {
		return nil, "", newError(CodeCDPUnavailable, "CDP client not connected", nil)
	}
	sessionID, err := c.ensureSession(ctx, cdp, session, targetID)
	if err != nil {
		return nil, "", err
	}
	return cdp, sessionID, nil
}

// InsertText types text into the focused element of a tab as trusted input.
func (c *Client) InsertText(ctx context.Context, targetID, text string) error {
	targetID = strings.TrimSpace(targetID)
	if targetID == "" {
		return newError(CodeTabNotFound, "target id is required", nil)
	}
	lock := c.tabLock(targetID)
	lock.Lock()
	defer lock.Unlock()

	cdp, sessionID, err := c.resolveSession(ctx, targetID)
	if err != nil {
		return err
	}
	insertCtx, cancel := context.WithTimeout(ctx, c.evalTimeout)
	defer cancel()
	if err := cdp.insertText(insertCtx, sessionID, text); err != nil {
		return newError(CodeEvalFailure, "failed to dispatch trusted text insertion", err)
	}
	return nil
}

// InvalidateTab forgets the tab's session so the next call re-attaches.
func (c *Client) InvalidateTab(targetID string) {
	if session, ok := c.lookupTabSession(targetID); ok {
		c.dropSession(session)
	}
}
