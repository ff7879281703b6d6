package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/dgnsrekt/authtap/internal/types"
)

type logsOutput struct {
	Body struct {
		Logs  []types.RequestRecord `json:"logs"`
		Count int                   `json:"count"`
	}
}

type statusOutput struct {
	Body struct {
		Status string `json:"status"`
	}
}

func registerLogHandlers(api huma.API, svc Service) {
	huma.Register(api, huma.Operation{OperationID: "list-network-logs", Method: http.MethodGet, Path: "/api/v1/network-logs", Summary: "List recorded requests, oldest first", Tags: []string{"Network"}},
		func(ctx context.Context, input *struct {
			Type string `query:"type" doc:"Only records of this call kind (fetch or xhr)"`
			Tab  string `query:"tab" doc:"Only records captured from this browser tab"`
		}) (*logsOutput, error) {
			logs := svc.Logs()
			if input.Type != "" || input.Tab != "" {
				filtered := make([]types.RequestRecord, 0, len(logs))
				for _, rec := range logs {
					if input.Type != "" && string(rec.Type) != input.Type {
						continue
					}
					if input.Tab != "" && rec.TabID != input.Tab {
						continue
					}
					filtered = append(filtered, rec)
				}
				logs = filtered
			}
			out := &logsOutput{}
			out.Body.Logs = logs
			out.Body.Count = len(logs)
			return out, nil
		})

	huma.Register(api, huma.Operation{OperationID: "clear-network-logs", Method: http.MethodDelete, Path: "/api/v1/network-logs", Summary: "Clear recorded requests", Tags: []string{"Network"}},
		func(ctx context.Context, input *struct{}) (*statusOutput, error) {
			svc.ClearLogs()
			out := &statusOutput{}
			out.Body.Status = "cleared"
			return out, nil
		})
}
