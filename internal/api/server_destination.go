package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/dgnsrekt/rolefit/internal/controller"
)

func registerDestinationHandlers(api huma.API, svc Service) {
	type destinationOutput struct {
		Body controller.DestinationStatus
	}
	huma.Register(api, huma.Operation{OperationID: "get-destination", Method: http.MethodGet, Path: "/api/v1/destination", Summary: "Get the stored destination project URL", Tags: []string{"Destination"}},
		func(ctx context.Context, input *struct{}) (*destinationOutput, error) {
			status, err := svc.Destination()
			if err != nil {
				return nil, mapErr(err)
			}
			return &destinationOutput{Body: status}, nil
		})

	type setDestinationInput struct {
		Body struct {
			URL string `json:"url" doc:"Project URL on the destination host"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "set-destination", Method: http.MethodPut, Path: "/api/v1/destination", Summary: "Validate and store the destination project URL", Tags: []string{"Destination"}},
		func(ctx context.Context, input *setDestinationInput) (*destinationOutput, error) {
			status, err := svc.SetDestination(input.Body.URL)
			if err != nil {
				return nil, mapErr(err)
			}
			return &destinationOutput{Body: status}, nil
		})
}
