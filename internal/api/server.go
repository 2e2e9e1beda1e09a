package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/dgnsrekt/rolefit/internal/cdpcontrol"
	"github.com/dgnsrekt/rolefit/internal/controller"
	"github.com/dgnsrekt/rolefit/internal/events"
	"github.com/dgnsrekt/rolefit/internal/handoff"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type Service interface {
	Tabs() []controller.TabStatus
	Trigger(ctx context.Context, targetID string, force bool) (handoff.TriggerResult, error)
	AttachStep(ctx context.Context, targetID string) (handoff.StepResult, error)
	Deliver(ctx context.Context, targetID string) (handoff.Delivery, error)
	Destination() (controller.DestinationStatus, error)
	SetDestination(raw string) (controller.DestinationStatus, error)
	Mailbox(targetID string) (controller.MailboxStatus, error)
	ClearMailbox(targetID string) error
}

var _ Service = (*controller.Service)(nil)

type targetIDInput struct {
	TargetID string `path:"target_id" doc:"CDP target id of the tab"`
}

// NewServer builds the control API. broker may be nil, in which case the
// event routes are not mounted.
func NewServer(svc Service, broker *events.Broker) http.Handler {
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(requestLogger)
	router.Use(middleware.Recoverer)

	cfg := huma.DefaultConfig("Rolefit Controller API", "1.0.0")
	cfg.DocsPath = ""
	api := humachi.New(router, cfg)

	router.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		if _, err := w.Write([]byte(docsHTML)); err != nil {
			slog.Debug("docs response write failed", "error", err)
		}
	})
	router.Get("/docs/events", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		if _, err := w.Write([]byte(eventsDocsHTML)); err != nil {
			slog.Debug("events docs response write failed", "error", err)
		}
	})

	registerHealthHandlers(api, svc, broker)
	registerTabHandlers(api, svc)
	registerDestinationHandlers(api, svc)
	if broker != nil {
		router.Get("/api/v1/events", events.SSEHandler(broker))
		registerEventHandlers(api, broker)
	}

	return router
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var handoffErr *handoff.CodedError
	if errors.As(err, &handoffErr) {
		switch handoffErr.Code {
		case handoff.CodeValidation:
			return huma.Error400BadRequest(handoffErr.Message)
		case handoff.CodeConfigInvalid:
			return huma.Error422UnprocessableEntity(handoffErr.Message)
		case handoff.CodeConfigMissing:
			return huma.Error412PreconditionFailed(handoffErr.Message)
		case handoff.CodeNoEntry:
			return huma.Error404NotFound(handoffErr.Message)
		case handoff.CodeStaleEntry:
			return huma.Error410Gone(handoffErr.Message)
		case handoff.CodeContentNotReady, handoff.CodeNoEligibleTarget, handoff.CodeSignatureMismatch:
			return huma.Error409Conflict(fmt.Sprintf("%s: %s", handoffErr.Code, handoffErr.Message))
		default:
			return huma.Error500InternalServerError(fmt.Sprintf("%s: %s", handoffErr.Code, handoffErr.Message))
		}
	}
	var coded *cdpcontrol.CodedError
	if errors.As(err, &coded) {
		switch coded.Code {
		case cdpcontrol.CodeValidation:
			return huma.Error400BadRequest(coded.Message)
		case cdpcontrol.CodeTabNotFound, cdpcontrol.CodeSurfaceNotFound:
			return huma.Error404NotFound(coded.Message)
		case controller.CodeBusy, cdpcontrol.CodePromptDismissed:
			return huma.Error409Conflict(coded.Message)
		case cdpcontrol.CodeUnsupportedSite:
			return huma.Error422UnprocessableEntity(coded.Message)
		case cdpcontrol.CodeEvalTimeout:
			return huma.Error504GatewayTimeout(coded.Message)
		case cdpcontrol.CodeCDPUnavailable:
			return huma.Error502BadGateway(coded.Message)
		default:
			return huma.Error500InternalServerError(fmt.Sprintf("%s: %s", coded.Code, coded.Message))
		}
	}
	return huma.Error500InternalServerError(err.Error())
}
