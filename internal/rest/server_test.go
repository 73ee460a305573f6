package rest_test

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/gridstate/internal/agents"
	"github.com/roach88/gridstate/internal/gateway"
	"github.com/roach88/gridstate/internal/metrics"
	"github.com/roach88/gridstate/internal/model"
	"github.com/roach88/gridstate/internal/organizations"
	"github.com/roach88/gridstate/internal/rest"
	"github.com/roach88/gridstate/internal/store"
	"github.com/roach88/gridstate/internal/testutil"
)

func newServer(t *testing.T, mode gateway.Mode, opts rest.Options) *rest.Server {
	t.Helper()
	ctx := context.Background()
	db := testutil.OpenStore(t)
	testutil.InTx(t, db, func(tx *store.Tx) error {
		if err := organizations.New(db).Add(ctx, tx, testutil.Acme(), 1); err != nil {
			return err
		}
		return agents.New(db).Add(ctx, tx, testutil.Agent(), 1)
	})
	return rest.New(gateway.New(db, mode), opts)
}

func get(t *testing.T, h http.Handler, target string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func TestFetchAgent(t *testing.T) {
	srv := newServer(t, gateway.ModeShared, rest.Options{})

	rec := get(t, srv, "/agent/02a1b2c3", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	body := decode(t, rec)
	assert.Equal(t, "02a1b2c3", body["public_key"])
	assert.Equal(t, map[string]any{"team": "ops"}, body["metadata"])
	assert.NotContains(t, body, "service_id")
}

func TestFetchNotFound(t *testing.T) {
	srv := newServer(t, gateway.ModeShared, rest.Options{})

	rec := get(t, srv, "/schema/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "Could not find schema with name: missing", body["message"])
	assert.Equal(t, "NOT_FOUND", body["code"])
}

func TestListDefaultsPaging(t *testing.T) {
	srv := newServer(t, gateway.ModeShared, rest.Options{})

	rec := get(t, srv, "/organization", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, map[string]any{"offset": float64(0), "limit": float64(model.DefaultLimit), "total": float64(1)}, body["paging"])
	require.Len(t, body["data"], 1)

	rec = get(t, srv, "/organization?offset=1&limit=5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body = decode(t, rec)
	assert.Equal(t, []any{}, body["data"])
}

func TestListRejectsBadPaging(t *testing.T) {
	srv := newServer(t, gateway.ModeShared, rest.Options{})

	for _, q := range []string{"offset=-1", "offset=x", "limit=0", "limit=100000"} {
		t.Run(q, func(t *testing.T) {
			rec := get(t, srv, "/product?"+q, nil)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "INVALID_INPUT", decode(t, rec)["code"])
		})
	}
}

func TestTenantModeOverHTTP(t *testing.T) {
	shared := newServer(t, gateway.ModeShared, rest.Options{})
	rec := get(t, shared, "/agent?service_id=circuit-01::svc-a", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Circuit ID present, but gridstate is running in shared mode", decode(t, rec)["message"])

	multi := newServer(t, gateway.ModeMultiCircuit, rest.Options{})
	rec = get(t, multi, "/agent/02a1b2c3", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, gateway.CodeTenantModeMismatch, decode(t, rec)["code"])

	rec = get(t, multi, "/agent/02a1b2c3?service_id=circuit-01::svc-a", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "shared rows are invisible to a circuit")
}

func TestProtocolNegotiation(t *testing.T) {
	srv := newServer(t, gateway.ModeShared, rest.Options{
		Protocol: gateway.ProtocolRoutes{
			Default: gateway.AnyProtocol,
			Routes:  map[string]gateway.ProtocolRange{"/agent": {Min: 2, Max: 3}},
		},
	})

	tests := []struct {
		name   string
		target string
		header string
		status int
	}{
		{"missing header passes", "/agent", "", http.StatusOK},
		{"in range", "/agent", "2", http.StatusOK},
		{"other route unrestricted", "/organization", "1", http.StatusOK},
		{"not an integer", "/agent", "v2", http.StatusBadRequest},
		{"too old", "/agent/02a1b2c3", "1", http.StatusBadRequest},
		{"too new", "/agent", "4", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header := map[string]string{}
			if tt.header != "" {
				header[gateway.ProtocolHeader] = tt.header
			}
			rec := get(t, srv, tt.target, header)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}

	rec := get(t, srv, "/agent", map[string]string{gateway.ProtocolHeader: "1"})
	body := decode(t, rec)
	assert.Equal(t, "Client must support protocol version 2 or greater.", body["message"])
	assert.Equal(t, float64(1), body["requested_protocol"])
	assert.Equal(t, float64(2), body["grid_protocol"])
	assert.Equal(t, gateway.Version, body["gridstate_version"])
}

func TestRequestID(t *testing.T) {
	srv := newServer(t, gateway.ModeShared, rest.Options{})

	rec := get(t, srv, "/agent", map[string]string{rest.RequestIDHeader: "req-42"})
	assert.Equal(t, "req-42", rec.Header().Get(rest.RequestIDHeader))

	rec = get(t, srv, "/agent", nil)
	assert.Len(t, rec.Header().Get(rest.RequestIDHeader), 36)
}

func TestMethodNotAllowed(t *testing.T) {
	srv := newServer(t, gateway.ModeShared, rest.Options{})
	req := httptest.NewRequest(http.MethodPost, "/agent", strings.NewReader("{}"))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	srv := newServer(t, gateway.ModeShared, rest.Options{AllowedOrigins: []string{"https://grid.example"}})

	req := httptest.NewRequest(http.MethodOptions, "/agent", nil)
	req.Header.Set("Origin", "https://grid.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Equal(t, "https://grid.example", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = get(t, srv, "/agent", map[string]string{"Origin": "https://evil.example"})
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestMetricsEndpoint(t *testing.T) {
	m := metrics.New()
	srv := newServer(t, gateway.ModeShared, rest.Options{Metrics: m})

	require.Equal(t, http.StatusOK, get(t, srv, "/agent", nil).Code)
	rec := get(t, srv, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `gridstate_http_request_duration_seconds_count{route="GET /agent",status="200"} 1`)
}

func TestLimitRejectsWhenContextEnds(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	h := rest.Limit(1)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(entered)
		<-release
		w.WriteHeader(http.StatusOK)
	}))

	var wg sync.WaitGroup
	wg.Add(1)
	first := httptest.NewRecorder()
	go func() {
		defer wg.Done()
		h.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/agent", nil))
	}()
	<-entered

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	second := httptest.NewRecorder()
	h.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/agent", nil).WithContext(ctx))
	assert.Equal(t, http.StatusServiceUnavailable, second.Code)

	close(release)
	wg.Wait()
	assert.Equal(t, http.StatusOK, first.Code)
}

func TestServeShutsDownOnCancel(t *testing.T) {
	srv := newServer(t, gateway.ModeShared, rest.Options{})
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/agent/02a1b2c3")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
