package monitor

import (
	"context"
	"fmt"
	"strings"

	"github.com/dgnsrekt/authtap/internal/types"
)

const (
	ActionGetNetworkLogs   = "getNetworkLogs"
	ActionClearNetworkLogs = "clearNetworkLogs"
	ActionGetAuthToken     = "getAuthToken"
	ActionClearAuthToken   = "clearAuthToken"
	ActionGetTokenStatus   = "getTokenStatus"
)

// Message is a privileged query.
type Message struct {
	Action string `json:"action"`
}

// Response answers a Message. Only the fields relevant to the action are set. Logs is
// encoded whenever it is non-nil, so an empty store answers "logs": [].
type Response struct {
	Success bool                  `json:"success"`
	Logs    []types.RequestRecord `json:"logs,omitzero"`
	Token   string                `json:"token,omitempty"`
	Source  types.Provenance      `json:"source,omitempty"`
	Status  *TokenView            `json:"status,omitempty"`
	Error   string                `json:"error,omitempty"`
}

// ValidateMessage rejects a message without an action.
func ValidateMessage(msg Message) error {
	if strings.TrimSpace(msg.Action) == "" {
		return newError(CodeValidation, "action is required", nil)
	}
	return nil
}

// Handle answers one query against the store and tracker. Unknown actions are reported
// in the response, never as a Go error.
func (m *Monitor) Handle(_ context.Context, msg Message) Response {
	switch strings.TrimSpace(msg.Action) {
	case ActionGetNetworkLogs:
		logs := m.store.All()
		if logs == nil {
			logs = []types.RequestRecord{}
		}
		return Response{Success: true, Logs: logs}
	case ActionClearNetworkLogs:
		m.store.Clear()
		return Response{Success: true}
	case ActionGetAuthToken:
		tok, ok := m.tracker.Current()
		if !ok {
			return Response{Success: true}
		}
		return Response{Success: true, Token: tok.Raw, Source: tok.Provenance}
	case ActionClearAuthToken:
		m.ClearToken()
		return Response{Success: true}
	case ActionGetTokenStatus:
		view := m.TokenStatus()
		return Response{Success: true, Status: &view}
	default:
		return Response{Success: false, Error: fmt.Sprintf("unknown action %q", msg.Action)}
	}
}
