package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/dgnsrekt/authtap/internal/monitor"
	"github.com/dgnsrekt/authtap/internal/types"
)

func registerMiscHandlers(api huma.API, svc Service, opts Options) {
	type healthOutput struct {
		Body struct {
			Status string `json:"status"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "health", Method: http.MethodGet, Path: "/health", Summary: "Health check", Tags: []string{"Health"}},
		func(ctx context.Context, input *struct{}) (*healthOutput, error) {
			out := &healthOutput{}
			out.Body.Status = "ok"
			return out, nil
		})

	type deepHealthOutput struct {
		Body struct {
			Status     string        `json:"status"`
			Store      monitor.Stats `json:"store"`
			Tabs       int           `json:"tabs"`
			BusClients int           `json:"bus_clients"`
			BusDropped int64         `json:"bus_dropped"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "deep-health", Method: http.MethodGet, Path: "/api/v1/health/deep", Summary: "Deep health check", Tags: []string{"Health"}},
		func(ctx context.Context, input *struct{}) (*deepHealthOutput, error) {
			out := &deepHealthOutput{}
			out.Body.Status = "ok"
			out.Body.Store = svc.Stats()
			if opts.Tabs != nil {
				out.Body.Tabs = len(opts.Tabs.Tabs())
			}
			if opts.Broker != nil {
				out.Body.BusClients = opts.Broker.ClientCount()
				out.Body.BusDropped = opts.Broker.Dropped()
			}
			return out, nil
		})

	type tabsOutput struct {
		Body struct {
			Tabs []types.TabInfo `json:"tabs"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "list-tabs", Method: http.MethodGet, Path: "/api/v1/tabs", Summary: "List attached browser tabs", Tags: []string{"Browser"}},
		func(ctx context.Context, input *struct{}) (*tabsOutput, error) {
			if opts.Tabs == nil {
				return nil, mapErr(&monitor.CodedError{Code: monitor.CodeCDPUnavailable, Message: "no browser attached"})
			}
			out := &tabsOutput{}
			out.Body.Tabs = opts.Tabs.Tabs()
			if out.Body.Tabs == nil {
				out.Body.Tabs = []types.TabInfo{}
			}
			return out, nil
		})
}
