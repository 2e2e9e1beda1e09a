package cdpcontrol

import (
	"context"
	"log/slog"
	"strings"
)

// SourceProbe is the state a source page reports on each probe.
type SourceProbe struct {
	URL        string `json:"url"`
	Visible    bool   `json:"visible"`
	Markers    bool   `json:"markers"`
	Affordance bool   `json:"affordance"`
	TabID      string `json:"tab_id"`
}

// ProbeSource installs the page script if the document lacks it and returns
// the page state. candidate is adopted as the tab id only on install.
func (c *Client) ProbeSource(ctx context.Context, targetID string, site SiteScript, candidate string) (SourceProbe, error) {
	if strings.TrimSpace(site.ButtonClass) == "" {
		return SourceProbe{}, newError(CodeValidation, "site "+site.Name+" has no button class", nil)
	}
	var out SourceProbe
	err := c.Eval(ctx, targetID, jsProbeSource(site, c.bindingName, candidate), &out)
	return out, err
}

// AffordanceState is what an insert left on the page. Inserted is false
// when an existing button was kept.
type AffordanceState struct {
	Present  bool `json:"present"`
	Inserted bool `json:"inserted"`
}

// InsertAffordance places the trigger button unless one is already in its
// container. Stray duplicates elsewhere are removed.
func (c *Client) InsertAffordance(ctx context.Context, targetID string) (AffordanceState, error) {
	var out AffordanceState
	if err := c.Eval(ctx, targetID, jsInsertAffordance(), &out); err != nil {
		return AffordanceState{}, err
	}
	if out.Inserted {
		slog.Debug("cdpcontrol trigger button inserted", "target_id", targetID)
	}
	return out, nil
}

// RemoveAffordance reports whether any trigger button was removed.
func (c *Client) RemoveAffordance(ctx context.Context, targetID string) (bool, error) {
	var out struct {
		Removed int `json:"removed"`
	}
	if err := c.Eval(ctx, targetID, jsRemoveAffordance(), &out); err != nil {
		return false, err
	}
	return out.Removed > 0, nil
}

// SetAffordanceLabel relabels the trigger button. busy disables it; a
// positive resetMs restores idleLabel afterwards.
func (c *Client) SetAffordanceLabel(ctx context.Context, targetID, label, idleLabel string, busy bool, resetMs int) error {
	return c.Eval(ctx, targetID, jsSetAffordanceState(label, idleLabel, busy, resetMs), nil)
}

// Prompt shows a blocking prompt. answered is false when it was dismissed.
func (c *Client) Prompt(ctx context.Context, targetID, message, current string) (answer string, answered bool, err error) {
	var out struct {
		Answered bool   `json:"answered"`
		Answer   string `json:"answer"`
	}
	if err := c.evalBlocking(ctx, targetID, jsPrompt(message, current), &out); err != nil {
		return "", false, err
	}
	return out.Answer, out.Answered, nil
}

func (c *Client) Alert(ctx context.Context, targetID, message string) error {
	return c.Eval(ctx, targetID, jsAlert(message), nil)
}

func (c *Client) ContentReady(ctx context.Context, targetID string) (bool, error) {
	var out struct {
		Ready bool `json:"ready"`
	}
	if err := c.Eval(ctx, targetID, jsContentReady(), &out); err != nil {
		return false, err
	}
	return out.Ready, nil
}

func (c *Client) ExtractText(ctx context.Context, targetID string) (string, error) {
	var out struct {
		Text string `json:"text"`
	}
	if err := c.Eval(ctx, targetID, jsExtractText(), &out); err != nil {
		return "", err
	}
	return out.Text, nil
}

func (c *Client) CrossReference(ctx context.Context, targetID string) (string, error) {
	var out struct {
		Ref string `json:"ref"`
	}
	if err := c.Eval(ctx, targetID, jsCrossReference(), &out); err != nil {
		return "", err
	}
	return out.Ref, nil
}

// MarkDocument reports whether the tab shows a document it has not marked
// before, and marks it.
func (c *Client) MarkDocument(ctx context.Context, targetID string) (bool, error) {
	var out struct {
		Fresh bool `json:"fresh"`
	}
	if err := c.Eval(ctx, targetID, jsMarkDocument(), &out); err != nil {
		return false, err
	}
	return out.Fresh, nil
}

// LocateComposer returns the first selector that matches an element.
func (c *Client) LocateComposer(ctx context.Context, targetID string, composer ComposerScript) (string, bool, error) {
	if len(composer.Selectors) == 0 {
		return "", false, newError(CodeValidation, "composer selectors are required", nil)
	}
	var out struct {
		Found  bool   `json:"found"`
		Handle string `json:"handle"`
	}
	if err := c.Eval(ctx, targetID, jsLocateComposer(composer), &out); err != nil {
		return "", false, err
	}
	return out.Handle, out.Found, nil
}

func (c *Client) ReadComposer(ctx context.Context, targetID, handle string) (string, error) {
	var out struct {
		Text string `json:"text"`
	}
	if err := c.Eval(ctx, targetID, jsReadComposer(handle), &out); err != nil {
		return "", err
	}
	return out.Text, nil
}

func (c *Client) ClearComposer(ctx context.Context, targetID, handle string) error {
	return c.Eval(ctx, targetID, jsClearComposer(handle), nil)
}

// WriteComposer inserts text into the composer. When the editor refuses a
// scripted insertion the text is typed as trusted input instead, and as a
// last resort written into the element directly.
func (c *Client) WriteComposer(ctx context.Context, targetID, handle, text string) (bool, error) {
	var out struct {
		Written bool `json:"written"`
	}
	if err := c.Eval(ctx, targetID, jsWriteComposer(handle, text), &out); err != nil {
		return false, err
	}
	if out.Written {
		return true, nil
	}

	err := c.InsertText(ctx, targetID, text)
	if err == nil {
		return true, nil
	}
	if ctx.Err() != nil {
		return false, err
	}
	slog.Debug("cdpcontrol trusted insert failed, forcing text", "target_id", targetID, "error", err)
	if err := c.Eval(ctx, targetID, jsForceComposerText(handle, text), &out); err != nil {
		return false, err
	}
	return out.Written, nil
}
