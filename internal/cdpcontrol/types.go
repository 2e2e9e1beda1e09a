package cdpcontrol

import "fmt"

const (
	CodeValidation      = "VALIDATION"
	CodeTabNotFound     = "TAB_NOT_FOUND"
	CodeSurfaceNotFound = "SURFACE_NOT_FOUND"
	CodeEvalFailure     = "EVAL_FAILURE"
	CodeEvalTimeout     = "EVAL_TIMEOUT"
	CodeCDPUnavailable  = "CDP_UNAVAILABLE"
	CodePromptDismissed = "PROMPT_DISMISSED"
	CodeUnsupportedSite = "UNSUPPORTED_SITE"
)

// CodedError is a typed error used for stable API mapping.
type CodedError struct {
	Code    string
	Message string
	Cause   error
}

func (e *CodedError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
}

func (e *CodedError) Unwrap() error { return e.Cause }

func newError(code, msg string, cause error) error {
	return &CodedError{Code: code, Message: msg, Cause: cause}
}

// TabInfo describes a page target known to the client.
type TabInfo struct {
	TargetID string `json:"target_id"`
	URL      string `json:"url"`
	Title    string `json:"title,omitempty"`
	Attached bool   `json:"attached"`
}

// BindingEvent is a page-to-controller message delivered through the
// Runtime binding installed on every attached session.
type BindingEvent struct {
	TargetID string
	Payload  string
}

// PageMessage is the decoded payload of a BindingEvent.
type PageMessage struct {
	Type   string `json:"type"`
	Reason string `json:"reason,omitempty"`
	Shift  bool   `json:"shift,omitempty"`
	Tab    string `json:"tab,omitempty"`
}

// Page message types.
const (
	MessageSignal  = "signal"
	MessageTrigger = "trigger"
)

// SiteScript is the page-side configuration for one source site. It is
// serialized into the bootstrap script as-is.
type SiteScript struct {
	Name                string   `json:"name"`
	Extractor           string   `json:"extractor"`
	MarkerSelectors     []string `json:"markers"`
	HostSelectors       []string `json:"hosts"`
	ContainerClosest    string   `json:"container,omitempty"`
	ButtonClass         string   `json:"button_class"`
	ButtonLabel         string   `json:"button_label"`
	MinDescriptionChars int      `json:"min_description"`
	CrossRefParams      []string `json:"crossref,omitempty"`
}

// ComposerScript is the page-side configuration for the destination composer.
type ComposerScript struct {
	Selectors []string `json:"selectors"`
}
