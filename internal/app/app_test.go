package app

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/xenking/bazaar/internal/domain/auth"
	"github.com/xenking/bazaar/internal/fixtures"
	"github.com/xenking/bazaar/internal/handler"
	redisstore "github.com/xenking/bazaar/internal/storage/redis"
	"github.com/xenking/bazaar/pkg/health"
	"github.com/xenking/bazaar/pkg/httpmiddleware"
)

const shippingAddress = `"shipping_address":{"street":"1 Main St","city":"Springfield","state":"IL","zip":"62701"}`

type testServer struct {
	t     *testing.T
	url   string
	authn *handler.Authenticator
	redis *miniredis.Miniredis
}

// newTestServer runs the full HTTP stack on the in-memory demo catalog with
// idempotency backed by miniredis.
func newTestServer(t *testing.T) *testServer {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	idem := redisstore.NewIdempotencyStore(rdb, time.Hour)

	cfg := &Config{
		Storage:   StorageMemory,
		Auth:      AuthConfig{JWTSecret: "e2e-secret", Issuer: "bazaar"},
		RateLimit: RateLimitConfig{Max: 1000, Window: time.Minute},
	}

	healthSvc := health.New()
	healthSvc.AddReadinessCheck("redis", time.Second, health.PingCheck(idem))
	healthSvc.SetReady(true)

	h, err := newHTTPHandler(t.Context(), zap.NewNop(), cfg, openMemory(zap.NewNop()), idem, healthSvc,
		metricnoop.NewMeterProvider(), tracenoop.NewTracerProvider())
	require.NoError(t, err)

	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	return &testServer{
		t:     t,
		url:   srv.URL,
		authn: handler.NewAuthenticator([]byte(cfg.Auth.JWTSecret), cfg.Auth.Issuer),
		redis: mr,
	}
}

func (s *testServer) token(p auth.Principal) string {
	s.t.Helper()
	tok, err := s.authn.Issue(p, time.Hour)
	require.NoError(s.t, err)
	return tok
}

// do sends a request and decodes a JSON object response. Headers are given
// as name, value pairs.
func (s *testServer) do(method, path, token, body string, header ...string) (*http.Response, map[string]any) {
	s.t.Helper()

	resp, raw := s.send(method, path, token, body, header...)
	var out map[string]any
	if len(raw) > 0 {
		require.NoError(s.t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp, out
}

func (s *testServer) send(method, path, token, body string, header ...string) (*http.Response, []byte) {
	s.t.Helper()

	req, err := http.NewRequestWithContext(s.t.Context(), method, s.url+path, strings.NewReader(body))
	require.NoError(s.t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(s.t, err)
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(s.t, err)
	return resp, raw
}

func TestServer_Probes(t *testing.T) {
	s := newTestServer(t)

	resp, body := s.do(http.MethodGet, "/livez", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])

	resp, _ = s.do(http.MethodGet, "/readyz", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	s.redis.Close()
	resp, body = s.do(http.MethodGet, "/readyz", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Contains(t, body["checks"], "redis")
}

func TestServer_Middleware(t *testing.T) {
	s := newTestServer(t)

	resp, body := s.do(http.MethodGet, "/api/v1/cart", "", "", httpmiddleware.RequestIDHeader, "trace-me")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "trace-me", resp.Header.Get(httpmiddleware.RequestIDHeader))
	assert.Equal(t, "1000", resp.Header.Get("X-RateLimit-Limit"))
	assert.NotNil(t, body)

	resp, body = s.do(http.MethodGet, "/api/v1/nowhere", "", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "not_found", body["code"])
	assert.NotEmpty(t, resp.Header.Get(httpmiddleware.RequestIDHeader))
}

func TestServer_CheckoutFlow(t *testing.T) {
	s := newTestServer(t)
	customer := s.token(fixtures.Customer)
	acme := s.token(fixtures.Acme)

	resp, body := s.do(http.MethodGet, "/api/v1/coupons/save10", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "SAVE10", body["code"])

	resp, _ = s.do(http.MethodPost, "/api/v1/cart/items", customer, `{"product_id":"prod-kettle","quantity":2}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp, _ = s.do(http.MethodPost, "/api/v1/cart/items", customer, `{"product_id":"prod-lamp","quantity":1}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, _ = s.do(http.MethodPost, "/api/v1/cart/items", customer, `{"product_id":"prod-radio","quantity":1}`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	orderReq := `{` + shippingAddress + `,"coupon_code":"SAVE10"}`
	resp, placed := s.do(http.MethodPost, "/api/v1/orders", customer, orderReq, "Idempotency-Key", "checkout-1")
	require.Equal(t, http.StatusCreated, resp.StatusCode, placed)
	assert.Equal(t, "pending", placed["status"])
	assert.InDelta(t, 100.62, placed["total"], 0.001)
	assert.InDelta(t, 11.18, placed["discount_amount"], 0.001)
	assert.Equal(t, "cod", placed["payment_method"])
	assert.Len(t, placed["items"], 2)

	// A retry with the same key returns the first order even though the
	// cart is now empty.
	resp, retried := s.do(http.MethodPost, "/api/v1/orders", customer, orderReq, "Idempotency-Key", "checkout-1")
	require.Equal(t, http.StatusCreated, resp.StatusCode, retried)
	assert.Equal(t, placed["id"], retried["id"])

	resp, body = s.do(http.MethodPost, "/api/v1/orders", customer, orderReq, "Idempotency-Key", "checkout-2")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "empty_cart", body["code"])

	resp, body = s.do(http.MethodGet, "/api/v1/cart", customer, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, body["items"])

	resp, raw := s.send(http.MethodGet, "/api/v1/vendor/orders", acme, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var lines []map[string]any
	require.NoError(t, json.Unmarshal(raw, &lines))
	require.Len(t, lines, 1, "acme sees only its own line")
	assert.Equal(t, "prod-kettle", lines[0]["product_id"])
	assert.InDelta(t, 2, lines[0]["quantity"], 0)

	id := placed["id"].(string)
	resp, body = s.do(http.MethodPut, "/api/v1/orders/"+id+"/status", acme, `{"status":"shipped"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, "shipped", body["status"])

	resp, body = s.do(http.MethodPost, "/api/v1/orders/"+id+"/cancel", customer, "")
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, "cancelled", body["status"])

	resp, body = s.do(http.MethodPost, "/api/v1/orders/"+id+"/cancel", customer, "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "already_cancelled", body["code"])
}
