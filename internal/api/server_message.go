package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/dgnsrekt/authtap/internal/monitor"
)

func registerMessageHandlers(api huma.API, svc Service) {
	type messageInput struct {
		Body monitor.Message
	}
	type messageOutput struct {
		Body monitor.Response
	}
	huma.Register(api, huma.Operation{OperationID: "send-message", Method: http.MethodPost, Path: "/api/v1/message", Summary: "Send a privileged query message", Description: "Actions: getNetworkLogs, clearNetworkLogs, getAuthToken, clearAuthToken, getTokenStatus. Unknown actions answer success=false.", Tags: []string{"Protocol"}},
		func(ctx context.Context, input *messageInput) (*messageOutput, error) {
			if err := monitor.ValidateMessage(input.Body); err != nil {
				return nil, mapErr(err)
			}
			out := &messageOutput{}
			out.Body = svc.Handle(ctx, input.Body)
			return out, nil
		})
}
