package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/dgnsrekt/rolefit/internal/controller"
	"github.com/dgnsrekt/rolefit/internal/handoff"
)

type triggerResult struct {
	Address           string `json:"address"`
	Signature         string `json:"signature"`
	URL               string `json:"url"`
	Length            int    `json:"length"`
	CrossReference    string `json:"cross_reference,omitempty"`
	CopiedToClipboard bool   `json:"copied_to_clipboard"`
}

type deliveryResult struct {
	TargetID  string `json:"target_id"`
	Outcome   string `json:"outcome"`
	Address   string `json:"address,omitempty"`
	Signature string `json:"signature,omitempty"`
	Attempts  int    `json:"attempts"`
	ElapsedMS int64  `json:"elapsed_ms"`
	Error     string `json:"error,omitempty"`
}

func registerTabHandlers(api huma.API, svc Service) {
	type tabsOutput struct {
		Body struct {
			Tabs []controller.TabStatus `json:"tabs"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "list-tabs", Method: http.MethodGet, Path: "/api/v1/tabs", Summary: "List tracked source and destination tabs", Tags: []string{"Tabs"}},
		func(ctx context.Context, input *struct{}) (*tabsOutput, error) {
			out := &tabsOutput{}
			out.Body.Tabs = svc.Tabs()
			return out, nil
		})

	type triggerInput struct {
		TargetID string `path:"target_id" doc:"CDP target id of the source tab"`
		Body     struct {
			Force bool `json:"force,omitempty" doc:"Prompt for the destination again, as a shift-click does"`
		} `required:"false"`
	}
	type triggerOutput struct {
		Body triggerResult
	}
	huma.Register(api, huma.Operation{OperationID: "trigger-capture", Method: http.MethodPost, Path: "/api/v1/tabs/{target_id}/trigger", Summary: "Capture the job posting on a source tab and open the destination", Tags: []string{"Tabs"}},
		func(ctx context.Context, input *triggerInput) (*triggerOutput, error) {
			res, err := svc.Trigger(ctx, input.TargetID, input.Body.Force)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &triggerOutput{}
			out.Body = triggerResult{
				Address:           res.Address.String(),
				Signature:         res.Signature,
				URL:               res.URL,
				Length:            len(res.Entry.Text),
				CrossReference:    res.CrossReference,
				CopiedToClipboard: res.CopiedToClipboard,
			}
			return out, nil
		})

	type attachOutput struct {
		Body handoff.StepResult
	}
	huma.Register(api, huma.Operation{OperationID: "attach-step", Method: http.MethodPost, Path: "/api/v1/tabs/{target_id}/attach", Summary: "Reconcile the trigger button on a source tab", Tags: []string{"Tabs"}},
		func(ctx context.Context, input *targetIDInput) (*attachOutput, error) {
			res, err := svc.AttachStep(ctx, input.TargetID)
			if err != nil {
				return nil, mapErr(err)
			}
			return &attachOutput{Body: res}, nil
		})

	type deliverOutput struct {
		Body deliveryResult
	}
	huma.Register(api, huma.Operation{OperationID: "deliver", Method: http.MethodPost, Path: "/api/v1/tabs/{target_id}/deliver", Summary: "Rerun delivery on a destination tab", Tags: []string{"Tabs"}},
		func(ctx context.Context, input *targetIDInput) (*deliverOutput, error) {
			d, err := svc.Deliver(ctx, input.TargetID)
			if err != nil && d.Outcome == "" {
				return nil, mapErr(err)
			}
			out := &deliverOutput{}
			out.Body = deliveryResult{
				TargetID:  input.TargetID,
				Outcome:   string(d.Outcome),
				Signature: d.Signature,
				Attempts:  d.Attempts,
				ElapsedMS: d.Elapsed.Milliseconds(),
			}
			if err != nil {
				out.Body.Error = err.Error()
			}
			if d.Address.Tab != "" {
				out.Body.Address = d.Address.String()
			}
			return out, nil
		})

	type mailboxOutput struct {
		Body controller.MailboxStatus
	}
	huma.Register(api, huma.Operation{OperationID: "get-mailbox", Method: http.MethodGet, Path: "/api/v1/tabs/{target_id}/mailbox", Summary: "Inspect the mailbox entry addressed by a source tab", Tags: []string{"Mailbox"}},
		func(ctx context.Context, input *targetIDInput) (*mailboxOutput, error) {
			status, err := svc.Mailbox(input.TargetID)
			if err != nil {
				return nil, mapErr(err)
			}
			return &mailboxOutput{Body: status}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "clear-mailbox", Method: http.MethodDelete, Path: "/api/v1/tabs/{target_id}/mailbox", Summary: "Remove the mailbox entry addressed by a source tab", Tags: []string{"Mailbox"}},
		func(ctx context.Context, input *targetIDInput) (*struct{}, error) {
			if err := svc.ClearMailbox(input.TargetID); err != nil {
				return nil, mapErr(err)
			}
			return nil, nil
		})
}
