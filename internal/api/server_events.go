package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/dgnsrekt/rolefit/internal/controller"
	"github.com/dgnsrekt/rolefit/internal/events"
)

type recentEvent struct {
	ID      string          `json:"id"`
	Feed    string          `json:"feed"`
	At      time.Time       `json:"at"`
	Payload json.RawMessage `json:"payload"`
}

func registerHealthHandlers(api huma.API, svc Service, broker *events.Broker) {
	type healthOutput struct {
		Body struct {
			Status       string `json:"status"`
			Sources      int    `json:"sources"`
			Destinations int    `json:"destinations"`
			Subscribers  int    `json:"subscribers"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "health", Method: http.MethodGet, Path: "/health", Summary: "Health check", Tags: []string{"Health"}},
		func(ctx context.Context, input *struct{}) (*healthOutput, error) {
			out := &healthOutput{}
			out.Body.Status = "ok"
			for _, tab := range svc.Tabs() {
				if tab.Role == controller.RoleSource {
					out.Body.Sources++
				} else {
					out.Body.Destinations++
				}
			}
			if broker != nil {
				out.Body.Subscribers = broker.ClientCount()
			}
			return out, nil
		})
}

func registerEventHandlers(api huma.API, broker *events.Broker) {
	type recentInput struct {
		Feed  string `query:"feed" enum:"handoff,attach,tabs" default:"handoff"`
		Limit int    `query:"limit" default:"20" minimum:"1" maximum:"100"`
	}
	type recentOutput struct {
		Body struct {
			Events []recentEvent `json:"events"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "recent-events", Method: http.MethodGet, Path: "/api/v1/events/recent", Summary: "List the latest events of a feed", Tags: []string{"Events"}},
		func(ctx context.Context, input *recentInput) (*recentOutput, error) {
			out := &recentOutput{}
			out.Body.Events = []recentEvent{}
			for _, evt := range broker.Recent(input.Feed, input.Limit) {
				payload := json.RawMessage(evt.Payload)
				if !json.Valid(payload) {
					payload, _ = json.Marshal(evt.Payload)
				}
				out.Body.Events = append(out.Body.Events, recentEvent{
					ID:      evt.ID,
					Feed:    evt.Feed,
					At:      evt.At,
					Payload: payload,
				})
			}
			return out, nil
		})
}
