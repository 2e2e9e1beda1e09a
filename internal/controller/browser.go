package controller

import (
	"context"

	"github.com/dgnsrekt/rolefit/internal/cdpcontrol"
)

// SourceBrowser is the part of the CDP client that drives source pages.
type SourceBrowser interface {
	ProbeSource(ctx context.Context, targetID string, site cdpcontrol.SiteScript, candidate string) (cdpcontrol.SourceProbe, error)
	InsertAffordance(ctx context.Context, targetID string) (cdpcontrol.AffordanceState, error)
	RemoveAffordance(ctx context.Context, targetID string) (bool, error)
	SetAffordanceLabel(ctx context.Context, targetID, label, idleLabel string, busy bool, resetMs int) error
	Prompt(ctx context.Context, targetID, message, current string) (string, bool, error)
	Alert(ctx context.Context, targetID, message string) error
	ContentReady(ctx context.Context, targetID string) (bool, error)
	ExtractText(ctx context.Context, targetID string) (string, error)
	CrossReference(ctx context.Context, targetID string) (string, error)
}

// ComposerBrowser is the part of the CDP client that drives the destination
// composer.
type ComposerBrowser interface {
	LocateComposer(ctx context.Context, targetID string, composer cdpcontrol.ComposerScript) (string, bool, error)
	ReadComposer(ctx context.Context, targetID, handle string) (string, error)
	ClearComposer(ctx context.Context, targetID, handle string) error
	WriteComposer(ctx context.Context, targetID, handle, text string) (bool, error)
	MarkDocument(ctx context.Context, targetID string) (bool, error)
}

// Browser is everything the service needs from the CDP client.
type Browser interface {
	SourceBrowser
	ComposerBrowser
	ListTabs(ctx context.Context) ([]cdpcontrol.TabInfo, error)
	OpenTab(ctx context.Context, url string) (string, error)
	Bindings() <-chan cdpcontrol.BindingEvent
	InvalidateTab(targetID string)
}

var _ Browser = (*cdpcontrol.Client)(nil)
