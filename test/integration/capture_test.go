//go:build integration

package integration

import (
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type networkLogs struct {
	Logs []struct {
		ID     string `json:"id"`
		URL    string `json:"url"`
		Method string `json:"method"`
		Type   string `json:"type"`
		Status any    `json:"status"`
	} `json:"logs"`
	Count int `json:"count"`
}

type activeToken struct {
	Token  string `json:"token"`
	Source string `json:"source"`
	Valid  bool   `json:"valid"`
}

type tokenStatus struct {
	State            string  `json:"state"`
	RemainingSeconds int64   `json:"remainingSeconds"`
	Progress         float64 `json:"progress"`
	Claims           []struct {
		Key   string `json:"key"`
		Value string `json:"value"`
	} `json:"claims"`
}

func makeToken(exp time.Time) string {
	enc := base64.RawURLEncoding
	payload := fmt.Sprintf(`{"sub":"integration","exp":%d,"iat":%d}`, exp.Unix(), exp.Add(-time.Hour).Unix())
	return enc.EncodeToString([]byte(`{"alg":"RS256","typ":"JWT"}`)) + "." + enc.EncodeToString([]byte(payload)) + ".aW50ZWdyYXRpb24tc2lnbmF0dXJl"
}

// upstream runs h on loopback; the daemon must share the host.
func upstream(t *testing.T, h http.Handler) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

func TestProxiedRequestIsRecorded(t *testing.T) {
	resp := env.DELETE(t, "/api/v1/network-logs")
	requireStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	srv := upstream(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))

	presp, err := env.Proxied.Get(srv.URL + "/ping")
	if err != nil {
		t.Fatalf("proxied GET: %v", err)
	}
	body, _ := io.ReadAll(presp.Body)
	presp.Body.Close()
	requireField(t, string(body), `{"ok":true}`, "proxied body")

	var logs networkLogs
	eventually(t, 5*time.Second, func() bool {
		logs = decodeJSON[networkLogs](t, env.GET(t, "/api/v1/network-logs"))
		return logs.Count > 0
	})
	requireField(t, logs.Logs[0].URL, srv.URL+"/ping", "url")
	requireField(t, logs.Logs[0].Method, http.MethodGet, "method")
	requireField(t, logs.Logs[0].Type, "fetch", "type")
}

func TestBearerTokenBecomesActive(t *testing.T) {
	resp := env.DELETE(t, "/api/v1/auth-token")
	requireStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	token := makeToken(time.Now().Add(30 * time.Minute))
	srv := upstream(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	presp, err := env.Proxied.Do(req)
	if err != nil {
		t.Fatalf("proxied GET: %v", err)
	}
	presp.Body.Close()

	var tok activeToken
	eventually(t, 5*time.Second, func() bool {
		r := env.GET(t, "/api/v1/auth-token")
		if r.StatusCode != http.StatusOK {
			r.Body.Close()
			return false
		}
		tok = decodeJSON[activeToken](t, r)
		return tok.Token == token
	})
	requireField(t, tok.Source, "header", "source")
	requireField(t, tok.Valid, true, "valid")

	st := decodeJSON[tokenStatus](t, env.GET(t, "/api/v1/auth-token/status"))
	requireField(t, st.State, "active", "state")
	if st.RemainingSeconds <= 0 || st.RemainingSeconds > 1800 {
		t.Fatalf("remainingSeconds = %d; want within (0, 1800]", st.RemainingSeconds)
	}
}

func TestMessageProtocol(t *testing.T) {
	resp := env.POST(t, "/api/v1/message", map[string]string{"action": "getTokenStatus"})
	requireStatus(t, resp, http.StatusOK)
	out := decodeJSON[struct {
		Success bool `json:"success"`
	}](t, resp)
	requireField(t, out.Success, true, "success")

	resp = env.POST(t, "/api/v1/message", map[string]string{"action": "noSuchAction"})
	requireStatus(t, resp, http.StatusOK)
	bad := decodeJSON[struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}](t, resp)
	requireField(t, bad.Success, false, "success")
}

func TestConnectRefused(t *testing.T) {
	req, _ := http.NewRequest(http.MethodConnect, env.ProxyURL, nil)
	req.Host = "example.com:443"
	resp, err := env.Client.Do(req)
	if err != nil {
		t.Fatalf("CONNECT: %v", err)
	}
	defer resp.Body.Close()
	requireStatus(t, resp, http.StatusMethodNotAllowed)
}
