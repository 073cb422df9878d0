package testutil

import (
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	httpclient "github.com/onebottle/onebottle-api/pkg/bottles/helpers/httpclient"
)

// NewTestServer starts an httptest.Server, or skips the test if binding a port is not permitted.
func NewTestServer(t *testing.T, handler http.Handler) *httptest.Server {
	t.Helper()

	l, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Skipf("skip: cannot listen in sandbox: %v", err)
	}

	srv := &httptest.Server{
		Listener: l,
		Config:   &http.Server{Handler: handler},
	}
	srv.Start()
	t.Cleanup(srv.Close)
	return srv
}

// UseServerClient points the shared outbound client at srv for the test.
func UseServerClient(t *testing.T, srv *httptest.Server) {
	t.Helper()
	prev := httpclient.HTTPClient
	httpclient.HTTPClient = srv.Client()
	t.Cleanup(func() { httpclient.HTTPClient = prev })
}

// JSONResponder answers every request with status and body encoded as JSON.
func JSONResponder(status int, body any) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}
}
