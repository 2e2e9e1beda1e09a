package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dgnsrekt/rolefit/internal/cdpcontrol"
	"github.com/dgnsrekt/rolefit/internal/controller"
	"github.com/dgnsrekt/rolefit/internal/events"
	"github.com/dgnsrekt/rolefit/internal/handoff"
)

type stubService struct {
	tabs     []controller.TabStatus
	err      error
	delivery handoff.Delivery
	dest     string
	cleared  string
	force    bool
}

func (s *stubService) Tabs() []controller.TabStatus { return s.tabs }

func (s *stubService) Trigger(ctx context.Context, targetID string, force bool) (handoff.TriggerResult, error) {
	s.force = force
	if s.err != nil {
		return handoff.TriggerResult{}, s.err
	}
	return handoff.TriggerResult{
		Address:   handoff.Address{Channel: handoff.Channel{Name: "linkedin"}, Tab: "tab-1"},
		Signature: "Senior Engineer",
		URL:       "https://chatgpt.com/g/g-p-1/project?li_rfc_tab=tab-1",
		Entry:     handoff.Entry{Text: "Senior Engineer\n\nAbout the job"},
	}, nil
}

func (s *stubService) AttachStep(ctx context.Context, targetID string) (handoff.StepResult, error) {
	return handoff.StepResult{Reason: "api", Eligible: true, Attached: true}, s.err
}

func (s *stubService) Deliver(ctx context.Context, targetID string) (handoff.Delivery, error) {
	return s.delivery, s.err
}

func (s *stubService) Destination() (controller.DestinationStatus, error) {
	return controller.DestinationStatus{URL: s.dest, Valid: s.dest != ""}, nil
}

func (s *stubService) SetDestination(raw string) (controller.DestinationStatus, error) {
	if s.err != nil {
		return controller.DestinationStatus{}, s.err
	}
	s.dest = raw
	return controller.DestinationStatus{URL: raw, Valid: true}, nil
}

func (s *stubService) Mailbox(targetID string) (controller.MailboxStatus, error) {
	return controller.MailboxStatus{Address: "linkedin:tab-1", Present: true, Length: 42}, s.err
}

func (s *stubService) ClearMailbox(targetID string) error {
	s.cleared = targetID
	return s.err
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestDocsDarkMode(t *testing.T) {
	h := NewServer(&stubService{}, nil)
	w := do(t, h, http.MethodGet, "/docs", "")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	body := w.Body.String()
	if !strings.Contains(body, `data-theme="dark"`) {
		t.Fatalf("docs missing dark theme marker")
	}
	if !strings.Contains(body, `/docs/events`) {
		t.Fatalf("docs missing event stream link")
	}

	w = do(t, h, http.MethodGet, "/docs/events", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "/api/v1/events") {
		t.Fatalf("events docs = %d %q", w.Code, w.Body.String())
	}
}

func TestHealthCountsTabs(t *testing.T) {
	svc := &stubService{tabs: []controller.TabStatus{
		{TargetID: "a", Role: controller.RoleSource},
		{TargetID: "b", Role: controller.RoleSource},
		{TargetID: "c", Role: controller.RoleDestination},
	}}
	w := do(t, NewServer(svc, events.NewBroker()), http.MethodGet, "/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var got struct {
		Status       string `json:"status"`
		Sources      int    `json:"sources"`
		Destinations int    `json:"destinations"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Status != "ok" || got.Sources != 2 || got.Destinations != 1 {
		t.Fatalf("health = %+v", got)
	}
}

func TestTriggerReportsCapture(t *testing.T) {
	svc := &stubService{}
	w := do(t, NewServer(svc, nil), http.MethodPost, "/api/v1/tabs/t1/trigger", `{"force":true}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
	var got triggerResult
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Address != "linkedin:tab-1" || got.Signature != "Senior Engineer" || got.Length != len("Senior Engineer\n\nAbout the job") {
		t.Fatalf("trigger = %+v", got)
	}
	if !svc.force {
		t.Fatal("force flag not passed through")
	}
}

func TestDeliverKeepsOutcomeAlongsideError(t *testing.T) {
	svc := &stubService{
		delivery: handoff.Delivery{Outcome: handoff.OutcomeDelivered, Signature: "Senior Engineer", Attempts: 2, Elapsed: 1500 * time.Millisecond},
		err:      errors.New("ack failed"),
	}
	w := do(t, NewServer(svc, nil), http.MethodPost, "/api/v1/tabs/d1/deliver", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
	var got deliveryResult
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Outcome != "delivered" || got.ElapsedMS != 1500 || got.Error == "" || got.TargetID != "d1" {
		t.Fatalf("deliver = %+v", got)
	}
}

func TestErrorsMapToStatus(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		method string
		path   string
		body   string
		want   int
	}{
		{"busy trigger", &cdpcontrol.CodedError{Code: controller.CodeBusy, Message: "busy"}, http.MethodPost, "/api/v1/tabs/t1/trigger", `{}`, http.StatusConflict},
		{"unknown tab", &cdpcontrol.CodedError{Code: cdpcontrol.CodeTabNotFound, Message: "missing"}, http.MethodPost, "/api/v1/tabs/t9/attach", "", http.StatusNotFound},
		{"cdp down", &cdpcontrol.CodedError{Code: cdpcontrol.CodeCDPUnavailable, Message: "down"}, http.MethodGet, "/api/v1/tabs/t1/mailbox", "", http.StatusBadGateway},
		{"eval timeout", &cdpcontrol.CodedError{Code: cdpcontrol.CodeEvalTimeout, Message: "slow"}, http.MethodPost, "/api/v1/tabs/t1/attach", "", http.StatusGatewayTimeout},
		{"bad destination", &handoff.CodedError{Code: handoff.CodeConfigInvalid, Message: "wrong host"}, http.MethodPut, "/api/v1/destination", `{"url":"https://example.com/"}`, http.StatusUnprocessableEntity},
		{"content not ready", &handoff.CodedError{Code: handoff.CodeContentNotReady, Message: "loading"}, http.MethodPost, "/api/v1/tabs/t1/trigger", `{}`, http.StatusConflict},
		{"missing destination", &handoff.CodedError{Code: handoff.CodeConfigMissing, Message: "unset"}, http.MethodPost, "/api/v1/tabs/t1/trigger", `{}`, http.StatusPreconditionFailed},
		{"busy delivery", &cdpcontrol.CodedError{Code: controller.CodeBusy, Message: "busy"}, http.MethodPost, "/api/v1/tabs/d1/deliver", "", http.StatusConflict},
		{"plain error", errors.New("boom"), http.MethodDelete, "/api/v1/tabs/t1/mailbox", "", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, NewServer(&stubService{err: tt.err}, nil), tt.method, tt.path, tt.body)
			if w.Code != tt.want {
				t.Fatalf("status = %d; want %d body=%s", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestDestinationRoundTrip(t *testing.T) {
	svc := &stubService{}
	h := NewServer(svc, nil)
	w := do(t, h, http.MethodPut, "/api/v1/destination", `{"url":"https://chatgpt.com/g/g-p-1/project"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("PUT status = %d body=%s", w.Code, w.Body.String())
	}
	w = do(t, h, http.MethodGet, "/api/v1/destination", "")
	var got controller.DestinationStatus
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !got.Valid || got.URL != "https://chatgpt.com/g/g-p-1/project" {
		t.Fatalf("destination = %+v", got)
	}
}

func TestClearMailbox(t *testing.T) {
	svc := &stubService{}
	w := do(t, NewServer(svc, nil), http.MethodDelete, "/api/v1/tabs/t1/mailbox", "")
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d; want 204", w.Code)
	}
	if svc.cleared != "t1" {
		t.Fatalf("cleared = %q", svc.cleared)
	}
}

func TestRecentEvents(t *testing.T) {
	broker := events.NewBroker()
	if _, err := broker.PublishJSON(events.FeedHandoff, map[string]string{"outcome": "opened"}); err != nil {
		t.Fatalf("PublishJSON() = %v", err)
	}
	broker.Publish(events.Event{Feed: events.FeedHandoff, Payload: "not json"})
	if _, err := broker.PublishJSON(events.FeedAttach, map[string]bool{"inserted": true}); err != nil {
		t.Fatalf("PublishJSON() = %v", err)
	}

	w := do(t, NewServer(&stubService{}, broker), http.MethodGet, "/api/v1/events/recent?feed=handoff&limit=5", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
	var got struct {
		Events []recentEvent `json:"events"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got.Events) != 2 {
		t.Fatalf("events = %d; want 2", len(got.Events))
	}
	var first map[string]string
	if err := json.Unmarshal(got.Events[0].Payload, &first); err != nil || first["outcome"] != "opened" {
		t.Fatalf("first payload = %s (%v)", got.Events[0].Payload, err)
	}
	var second string
	if err := json.Unmarshal(got.Events[1].Payload, &second); err != nil || second != "not json" {
		t.Fatalf("second payload = %s (%v)", got.Events[1].Payload, err)
	}
}

func TestEventRoutesNeedBroker(t *testing.T) {
	w := do(t, NewServer(&stubService{}, nil), http.MethodGet, "/api/v1/events/recent", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d; want 404 without a broker", w.Code)
	}
}
