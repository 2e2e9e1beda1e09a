package handoff

import (
	"fmt"
	"net/url"
	"strings"
)

// DestinationConfigKey is the store key holding the validated destination URL.
const DestinationConfigKey = "cfg_project_url_v1"

// Validation failure reasons reported by DestinationRule.Validate. Host and
// segment failures are reported as "not-<host>" and "missing-<segment>".
const (
	ReasonEmpty    = "empty"
	ReasonNotURL   = "not-a-url"
	ReasonNotHTTPS = "not-https"
)

// DestinationRule describes what a valid destination looks like.
type DestinationRule struct {
	Host    string
	Segment string
}

// DefaultDestinationRule accepts ChatGPT project pages.
func DefaultDestinationRule() DestinationRule {
	return DestinationRule{Host: "chatgpt.com", Segment: "/project"}
}

// Requirements renders the rule as the human-readable list shown to the user
// after an invalid answer.
func (r DestinationRule) Requirements() string {
	return fmt.Sprintf("- https://%s/...\n- URL path contains %s", r.Host, r.Segment)
}

// PromptMessage is the text shown when asking for a destination.
func (r DestinationRule) PromptMessage() string {
	return fmt.Sprintf("Enter your destination URL (must be a %s/...%s link).\n\n"+
		"Example:\nhttps://%s/g/<your-project-id>%s\n\n"+
		"Tip: Shift+Click the button to reconfigure later.", r.Host, r.Segment, r.Host, r.Segment)
}

// Destination is a validated destination URL with its fragment stripped.
type Destination struct {
	u *url.URL
}

func (d Destination) String() string {
	if d.IsZero() {
		return ""
	}
	return d.u.String()
}

// IsZero reports whether d was never validated.
func (d Destination) IsZero() bool { return d.u == nil }

// Validate checks raw against the rule and returns the failure reason when it
// does not pass.
func (r DestinationRule) Validate(raw string) (Destination, string, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Destination{}, ReasonEmpty, false
	}
	u, err := url.Parse(s)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return Destination{}, ReasonNotURL, false
	}
	if !strings.EqualFold(u.Scheme, "https") {
		return Destination{}, ReasonNotHTTPS, false
	}
	if !strings.EqualFold(u.Host, r.Host) {
		return Destination{}, "not-" + r.Host, false
	}
	if !strings.Contains(u.Path, r.Segment) {
		return Destination{}, "missing-" + r.Segment, false
	}
	u.Scheme = "https"
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""
	return Destination{u: u}, "", true
}

// Matches reports whether pageURL is this destination: same origin and a path
// that starts with the destination path.
func (d Destination) Matches(pageURL string) bool {
	if d.IsZero() {
		return false
	}
	cur, err := url.Parse(pageURL)
	if err != nil {
		return false
	}
	if !strings.EqualFold(cur.Scheme, d.u.Scheme) || !strings.EqualFold(cur.Host, d.u.Host) {
		return false
	}
	return strings.HasPrefix(cur.Path, d.u.Path)
}

// WithQuery returns the destination with params set, overwriting existing
// values. An empty value removes the param.
func (d Destination) WithQuery(params map[string]string) string {
	if d.IsZero() {
		return ""
	}
	u := *d.u
	q := u.Query()
	for k, v := range params {
		switch {
		case k == "":
		case v == "":
			q.Del(k)
		default:
			q.Set(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// DestinationConfig is the persisted, process-wide destination setting.
type DestinationConfig struct {
	store Store
	rule  DestinationRule
}

func NewDestinationConfig(store Store, rule DestinationRule) *DestinationConfig {
	if rule.Host == "" {
		rule = DefaultDestinationRule()
	}
	return &DestinationConfig{store: store, rule: rule}
}

func (c *DestinationConfig) Rule() DestinationRule { return c.rule }

// Raw returns the stored value without validation.
func (c *DestinationConfig) Raw() (string, error) {
	v, err := c.store.Get(DestinationConfigKey)
	if err != nil {
		return "", fmt.Errorf("destination config: read: %w", err)
	}
	return v, nil
}

// Current returns the stored destination if it validates.
func (c *DestinationConfig) Current() (Destination, error) {
	raw, err := c.Raw()
	if err != nil {
		return Destination{}, err
	}
	if strings.TrimSpace(raw) == "" {
		return Destination{}, newError(CodeConfigMissing, "no destination configured", nil)
	}
	dest, reason, ok := c.rule.Validate(raw)
	if !ok {
		return Destination{}, newError(CodeConfigInvalid, "stored destination is invalid: "+reason, nil)
	}
	return dest, nil
}

// Set validates raw and persists the normalized form.
func (c *DestinationConfig) Set(raw string) (Destination, error) {
	dest, reason, ok := c.rule.Validate(raw)
	if !ok {
		return Destination{}, newError(CodeConfigInvalid, "invalid destination: "+reason, nil)
	}
	if err := c.store.Set(DestinationConfigKey, dest.String()); err != nil {
		return Destination{}, fmt.Errorf("destination config: write: %w", err)
	}
	return dest, nil
}
