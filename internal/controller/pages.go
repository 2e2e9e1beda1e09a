package controller

import (
	"context"
	"errors"
	"log/slog"

	"github.com/atotto/clipboard"
	"github.com/dgnsrekt/rolefit/internal/cdpcontrol"
	"github.com/dgnsrekt/rolefit/internal/handoff"
)

const (
	openedResetMs = 800
	failedResetMs = 1000
)

// SourcePage binds one source tab to the handoff collaborators the attach
// controller and producer expect.
type SourcePage struct {
	browser  SourceBrowser
	targetID string
	site     *Site
	page     *handoff.PageContext
}

func NewSourcePage(browser SourceBrowser, targetID string, site *Site, page *handoff.PageContext) *SourcePage {
	return &SourcePage{browser: browser, targetID: targetID, site: site, page: page}
}

// Probe installs the page script when the document is new and rebinds the
// page context when the page reports a tab identity other than ours.
func (s *SourcePage) Probe(ctx context.Context) (handoff.PageState, error) {
	probe, err := s.browser.ProbeSource(ctx, s.targetID, s.site.Script, string(handoff.NewTabIdentity()))
	if err != nil {
		return handoff.PageState{}, err
	}
	if probe.TabID != "" && s.page.Rebind(handoff.TabIdentity(probe.TabID)) {
		slog.Debug("controller source page bound", "target_id", s.targetID, "site", s.site.Name, "tab", probe.TabID)
	}
	return handoff.PageState{
		URL:               probe.URL,
		Visible:           probe.Visible,
		MarkersPresent:    probe.Markers,
		AffordancePresent: probe.Affordance,
	}, nil
}

func (s *SourcePage) InsertAffordance(ctx context.Context) (bool, error) {
	st, err := s.browser.InsertAffordance(ctx, s.targetID)
	return st.Present, err
}

func (s *SourcePage) RemoveAffordance(ctx context.Context) (bool, error) {
	return s.browser.RemoveAffordance(ctx, s.targetID)
}

func (s *SourcePage) IsContentReady(ctx context.Context) (bool, error) {
	return s.browser.ContentReady(ctx, s.targetID)
}

func (s *SourcePage) ExtractableText(ctx context.Context) (string, error) {
	return s.browser.ExtractText(ctx, s.targetID)
}

func (s *SourcePage) CrossReference(ctx context.Context) (string, error) {
	return s.browser.CrossReference(ctx, s.targetID)
}

func (s *SourcePage) PromptDestination(ctx context.Context, message, current string) (string, bool, error) {
	return s.browser.Prompt(ctx, s.targetID, message, current)
}

func (s *SourcePage) Alert(ctx context.Context, message string) error {
	return s.browser.Alert(ctx, s.targetID, message)
}

// SetAffordanceState relabels the button. Opened and failed states fall
// back to the idle label on their own.
func (s *SourcePage) SetAffordanceState(ctx context.Context, state handoff.AffordanceState) error {
	idle := s.site.Label
	if idle == "" {
		idle = handoff.AffordanceIdle.Label()
	}
	label := state.Label()
	busy, resetMs := false, 0
	switch state {
	case handoff.AffordanceIdle:
		label = idle
	case handoff.AffordanceConfiguring, handoff.AffordancePreparing:
		busy = true
	case handoff.AffordanceOpened:
		resetMs = openedResetMs
	case handoff.AffordanceFailed:
		busy, resetMs = true, failedResetMs
	}
	return s.browser.SetAffordanceLabel(ctx, s.targetID, label, idle, busy, resetMs)
}

// ComposerPage binds one destination tab to handoff.InputSurface.
type ComposerPage struct {
	browser  ComposerBrowser
	targetID string
	script   cdpcontrol.ComposerScript
}

func NewComposerPage(browser ComposerBrowser, targetID string, script cdpcontrol.ComposerScript) *ComposerPage {
	return &ComposerPage{browser: browser, targetID: targetID, script: script}
}

func (c *ComposerPage) Locate(ctx context.Context) (handoff.SurfaceHandle, bool, error) {
	h, ok, err := c.browser.LocateComposer(ctx, c.targetID, c.script)
	return handoff.SurfaceHandle(h), ok, err
}

func (c *ComposerPage) ReadText(ctx context.Context, h handoff.SurfaceHandle) (string, error) {
	return c.browser.ReadComposer(ctx, c.targetID, string(h))
}

func (c *ComposerPage) Clear(ctx context.Context, h handoff.SurfaceHandle) error {
	return c.browser.ClearComposer(ctx, c.targetID, string(h))
}

func (c *ComposerPage) WriteText(ctx context.Context, h handoff.SurfaceHandle, text string) (bool, error) {
	return c.browser.WriteComposer(ctx, c.targetID, string(h), text)
}

type tabOpener struct {
	browser interface {
		OpenTab(ctx context.Context, url string) (string, error)
	}
}

func (o tabOpener) Open(ctx context.Context, url string) error {
	id, err := o.browser.OpenTab(ctx, url)
	if err != nil {
		return err
	}
	slog.Debug("controller destination tab opened", "target_id", id)
	return nil
}

// SystemClipboard writes to the desktop clipboard of the controller host.
type SystemClipboard struct{}

func (SystemClipboard) WriteText(text string) error {
	if clipboard.Unsupported {
		return errors.New("clipboard: no clipboard utility available")
	}
	return clipboard.WriteAll(text)
}
