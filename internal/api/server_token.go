package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/dgnsrekt/authtap/internal/monitor"
	"github.com/dgnsrekt/authtap/internal/tracker"
)

func registerTokenHandlers(api huma.API, svc Service) {
	type tokenOutput struct {
		Body tracker.ActiveToken
	}
	huma.Register(api, huma.Operation{OperationID: "get-auth-token", Method: http.MethodGet, Path: "/api/v1/auth-token", Summary: "Get the active bearer token", Tags: []string{"Token"}},
		func(ctx context.Context, input *struct{}) (*tokenOutput, error) {
			tok, ok := svc.Token()
			if !ok {
				return nil, mapErr(&monitor.CodedError{Code: monitor.CodeNotFound, Message: "no token observed"})
			}
			out := &tokenOutput{}
			out.Body = tok
			return out, nil
		})

	huma.Register(api, huma.Operation{OperationID: "clear-auth-token", Method: http.MethodDelete, Path: "/api/v1/auth-token", Summary: "Clear the active bearer token", Tags: []string{"Token"}},
		func(ctx context.Context, input *struct{}) (*statusOutput, error) {
			svc.ClearToken()
			out := &statusOutput{}
			out.Body.Status = "cleared"
			return out, nil
		})

	type tokenStatusOutput struct {
		Body monitor.TokenView
	}
	huma.Register(api, huma.Operation{OperationID: "get-auth-token-status", Method: http.MethodGet, Path: "/api/v1/auth-token/status", Summary: "Get the token countdown and decoded claims", Tags: []string{"Token"}},
		func(ctx context.Context, input *struct{}) (*tokenStatusOutput, error) {
			out := &tokenStatusOutput{}
			out.Body = svc.TokenStatus()
			return out, nil
		})
}
