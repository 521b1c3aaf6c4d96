package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ecoroute/internal/config"
	"ecoroute/internal/metrics"
	"ecoroute/internal/model"
	"ecoroute/internal/webhooks"
)

func testConfig() config.Config {
	cfg := config.Default()
	cfg.MaxConcurrentSolves = 2
	cfg.Solver.TimeBudget = 5 * time.Second
	cfg.Solver.MaxIterations = 50
	return cfg
}

func newTestServer(t *testing.T, mutate func(*config.Config)) *Server {
	t.Helper()
	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	require.NoError(t, cfg.Validate())
	return NewServer(cfg, Deps{})
}

func do(t *testing.T, h http.Handler, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			rd = strings.NewReader(b)
		default:
			buf, err := json.Marshal(b)
			require.NoError(t, err)
			rd = bytes.NewReader(buf)
		}
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func ptr[T any](v T) *T { return &v }

const singleOrderRequest = `{
  "orders": [{"id": 1, "pickup_location": {"lat": 0, "lng": 1}, "dropoff_location": {"lat": 0, "lng": 2}}],
  "vehicles": [{"id": 7, "start_location": {"lat": 0, "lng": 0}}],
  "seed": 1
}`

func TestOptimizeRoutesSingleOrder(t *testing.T) {
	s := newTestServer(t, nil)
	rr := do(t, s.Routes(), http.MethodPost, "/optimize_routes", singleOrderRequest, "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	resp := decode[model.OptimizeResponse](t, rr)
	require.Len(t, resp.OptimizedRoutes, 1)
	rt := resp.OptimizedRoutes[0]
	assert.Equal(t, 7, rt.VehicleID)
	require.Len(t, rt.Stops, 2)
	assert.Equal(t, "pickup", rt.Stops[0].Type)
	assert.Equal(t, "dropoff", rt.Stops[1].Type)
	assert.Equal(t, model.GeoPoint{Lat: 0, Lng: 2}, rt.Stops[1].Location)
	assert.InDelta(t, 444.78, rt.TotalDistance, 0.01)
	assert.Greater(t, rt.TotalTime, 0.0)
	assert.Empty(t, resp.UnassignedOrders)
	require.NotNil(t, resp.Stats)
	assert.NotEmpty(t, resp.Stats.RunID)
}

func TestOptimizeRoutesEmptyFleet(t *testing.T) {
	s := newTestServer(t, nil)
	body := `{"orders": [
	  {"id": 3, "pickup_location": {"lat": 1, "lng": 1}, "dropoff_location": {"lat": 1, "lng": 2}},
	  {"id": 1, "pickup_location": {"lat": 2, "lng": 1}, "dropoff_location": {"lat": 2, "lng": 2}}
	], "vehicles": []}`
	rr := do(t, s.Routes(), http.MethodPost, "/optimize_routes", body, "")
	require.Equal(t, http.StatusOK, rr.Code)
	resp := decode[model.OptimizeResponse](t, rr)
	assert.Empty(t, resp.OptimizedRoutes)
	assert.ElementsMatch(t, []int{1, 3}, resp.UnassignedOrders)
}

func TestOptimizeRoutesValidation(t *testing.T) {
	s := newTestServer(t, nil)
	cases := []struct {
		name  string
		body  string
		field string
	}{
		{"duplicate order", `{"orders":[
			{"id":1,"pickup_location":{"lat":0,"lng":0},"dropoff_location":{"lat":0,"lng":1}},
			{"id":1,"pickup_location":{"lat":0,"lng":0},"dropoff_location":{"lat":0,"lng":1}}],
			"vehicles":[{"id":1,"start_location":{"lat":0,"lng":0}}]}`, "orders[1].id"},
		{"missing pickup", `{"orders":[{"id":1,"dropoff_location":{"lat":0,"lng":1}}],"vehicles":[]}`, "orders[0].pickup_location"},
		{"bad latitude", `{"orders":[],"vehicles":[{"id":1,"start_location":{"lat":91,"lng":0}}]}`, "vehicles[0].start_location"},
		{"budget too large", `{"orders":[],"vehicles":[],"time_budget_ms":600000}`, "time_budget_ms"},
		{"unknown objective", `{"orders":[],"vehicles":[],"objective":"fuel"}`, "objective"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := do(t, s.Routes(), http.MethodPost, "/optimize_routes", tc.body, "")
			require.Equal(t, http.StatusBadRequest, rr.Code, rr.Body.String())
			assert.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))
			p := decode[Problem](t, rr)
			assert.Equal(t, tc.field, p.Field)
		})
	}

	rr := do(t, s.Routes(), http.MethodPost, "/optimize_routes", `{"orders":`, "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestOptimizeRoutesBusy(t *testing.T) {
	s := newTestServer(t, func(c *config.Config) { c.MaxConcurrentSolves = 1 })
	require.NoError(t, s.solves.Acquire(context.Background(), 1))
	defer s.solves.Release(1)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodPost, "/optimize_routes", strings.NewReader(singleOrderRequest)).WithContext(ctx)
	rr := httptest.NewRecorder()
	s.Routes().ServeHTTP(rr, req)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestOptimizeRoutesRateLimited(t *testing.T) {
	s := newTestServer(t, func(c *config.Config) { c.RateRPS = 0.001; c.RateBurst = 1 })
	h := s.Routes()
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/optimize_routes", singleOrderRequest, "").Code)
	rr := do(t, h, http.MethodPost, "/optimize_routes", singleOrderRequest, "")
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "1", rr.Header().Get("Retry-After"))
}

func TestOptimizeRoutesPublishes(t *testing.T) {
	q := webhooks.NewQueue()
	cfg := testConfig()
	s := NewServer(cfg, Deps{Hooks: webhooks.NewPublisher([]string{"http://hooks.invalid/a"}, q), Queue: q})
	ch := s.Broker.Subscribe(TopicRoutes)
	defer s.Broker.Unsubscribe(TopicRoutes, ch)

	rr := do(t, s.Routes(), http.MethodPost, "/optimize_routes", singleOrderRequest, "")
	require.Equal(t, http.StatusOK, rr.Code)
	select {
	case evt := <-ch:
		assert.Equal(t, EventRoutesOptimized, evt.Type)
		var resp model.OptimizeResponse
		require.NoError(t, json.Unmarshal(evt.Data, &resp))
		assert.Len(t, resp.OptimizedRoutes, 1)
	case <-time.After(time.Second):
		t.Fatal("no routes.optimized event")
	}
	assert.Equal(t, 1, q.Len())
}

func TestOrdersCRUD(t *testing.T) {
	s := newTestServer(t, nil)
	h := s.Routes()
	order := model.Order{ID: 1, CustomerName: "Ada", PickupAddress: "1 Main St", DropoffAddress: "9 Elm St",
		PickupLat: ptr(52.52), PickupLng: ptr(13.40)}

	rr := do(t, h, http.MethodPost, "/orders", order, "")
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.Equal(t, "/orders/1", rr.Header().Get("Location"))
	assert.Equal(t, model.OrderPending, decode[model.Order](t, rr).Status)

	assert.Equal(t, http.StatusConflict, do(t, h, http.MethodPost, "/orders", order, "").Code)

	rr = do(t, h, http.MethodGet, "/orders/1", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "Ada", decode[model.Order](t, rr).CustomerName)

	order.Status = model.OrderDelivered
	rr = do(t, h, http.MethodPut, "/orders/1", order, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, model.OrderDelivered, decode[model.Order](t, rr).Status)

	rr = do(t, h, http.MethodGet, "/orders?status=delivered&customer_name=ad", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[[]model.Order](t, rr), 1)

	rr = do(t, h, http.MethodGet, "/orders/nearby?lat=52.5201&lng=13.4001", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[[]model.Order](t, rr), 1)

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/orders?limit=101", nil, "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/orders/nearby?lat=1", nil, "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/orders/abc", nil, "").Code)

	assert.Equal(t, http.StatusNoContent, do(t, h, http.MethodDelete, "/orders/1", nil, "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/orders/1", nil, "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodDelete, "/orders/1", nil, "").Code)
}

func TestCreateOrderValidation(t *testing.T) {
	s := newTestServer(t, nil)
	rr := do(t, s.Routes(), http.MethodPost, "/orders",
		model.Order{ID: 2, CustomerName: "Bo", PickupAddress: "a", DropoffAddress: "b", PickupLat: ptr(10.0)}, "")
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "pickup", decode[Problem](t, rr).Field)
}

func TestVehiclesAndTelemetry(t *testing.T) {
	s := newTestServer(t, nil)
	h := s.Routes()
	ch := s.Broker.Subscribe(TopicVehicles)
	defer s.Broker.Unsubscribe(TopicVehicles, ch)

	rr := do(t, h, http.MethodPost, "/vehicles", model.Vehicle{ID: 5, Name: "van-5"}, "")
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.Equal(t, model.VehicleIdle, decode[model.Vehicle](t, rr).Status)

	rr = do(t, h, http.MethodPost, "/vehicles/5/telemetry", model.TelemetryUpdate{CurrentLat: ptr(1.5), CurrentLng: ptr(2.5)}, "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	v := decode[model.Vehicle](t, rr)
	require.True(t, v.Located())
	assert.Equal(t, 1.5, *v.CurrentLat)

	select {
	case evt := <-ch:
		assert.Equal(t, EventVehicleUpdate, evt.Type)
	case <-time.After(time.Second):
		t.Fatal("no vehicle_update event")
	}

	assert.Equal(t, http.StatusBadRequest,
		do(t, h, http.MethodPost, "/vehicles/5/telemetry", model.TelemetryUpdate{CurrentLat: ptr(1.0)}, "").Code)
	assert.Equal(t, http.StatusNotFound,
		do(t, h, http.MethodPost, "/vehicles/6/telemetry", model.TelemetryUpdate{CurrentLat: ptr(1.0), CurrentLng: ptr(1.0)}, "").Code)

	rr = do(t, h, http.MethodGet, "/vehicles?name=VAN", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[[]model.Vehicle](t, rr), 1)
	assert.Equal(t, http.StatusNoContent, do(t, h, http.MethodDelete, "/vehicles/5", nil, "").Code)
}

func TestDispatch(t *testing.T) {
	s := newTestServer(t, nil)
	h := s.Routes()
	ctx := context.Background()
	for i, lng := range []float64{0.1, 0.3} {
		_, err := s.Store.CreateOrder(ctx, model.Order{ID: i + 1, CustomerName: "c", PickupAddress: "p", DropoffAddress: "d",
			PickupLat: ptr(0.0), PickupLng: ptr(lng), DropoffLat: ptr(0.0), DropoffLng: ptr(lng + 0.1)})
		require.NoError(t, err)
	}
	// no coordinates: never dispatched
	_, err := s.Store.CreateOrder(ctx, model.Order{ID: 3, CustomerName: "c", PickupAddress: "p", DropoffAddress: "d"})
	require.NoError(t, err)
	_, err = s.Store.CreateVehicle(ctx, model.Vehicle{ID: 9, Name: "v", CurrentLat: ptr(0.0), CurrentLng: ptr(0.0)})
	require.NoError(t, err)

	ch := s.Broker.Subscribe(TopicVehicles)
	defer s.Broker.Unsubscribe(TopicVehicles, ch)

	rr := do(t, h, http.MethodPost, "/v1/dispatch", nil, "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	resp := decode[model.DispatchResponse](t, rr)
	require.Len(t, resp.Assignments, 1)
	assert.Equal(t, 9, resp.Assignments[0].VehicleID)
	assert.ElementsMatch(t, []int{1, 2}, resp.Assignments[0].OrderIDs)
	assert.Empty(t, resp.UnassignedOrders)

	o, err := s.Store.GetOrder(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, model.OrderAssigned, o.Status)
	o, err = s.Store.GetOrder(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, model.OrderPending, o.Status)
	v, err := s.Store.GetVehicle(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, model.VehicleEnRoute, v.Status)

	select {
	case evt := <-ch:
		assert.Equal(t, EventVehicleAssigned, evt.Type)
	case <-time.After(time.Second):
		t.Fatal("no vehicle.assigned event")
	}

	// vehicle is busy now, so a second dispatch has nothing to do
	rr = do(t, h, http.MethodPost, "/v1/dispatch", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, decode[model.DispatchResponse](t, rr).Assignments)
}

func TestAuthorization(t *testing.T) {
	s := newTestServer(t, func(c *config.Config) { c.AuthMode = "dev" })
	h := s.Routes()
	order := model.Order{ID: 1, CustomerName: "Ada", PickupAddress: "a", DropoffAddress: "b"}

	rr := do(t, h, http.MethodPost, "/orders", order, "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.NotEmpty(t, rr.Header().Get("WWW-Authenticate"))
	assert.Equal(t, http.StatusForbidden, do(t, h, http.MethodPost, "/orders", order, "alice:driver").Code)
	assert.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/orders", order, "bob:dispatcher").Code)

	// reads stay open
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/orders/1", nil, "").Code)

	_, err := s.Store.CreateVehicle(context.Background(), model.Vehicle{ID: 2, Name: "v"})
	require.NoError(t, err)
	tel := model.TelemetryUpdate{CurrentLat: ptr(1.0), CurrentLng: ptr(1.0)}
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/vehicles/2/telemetry", tel, "alice:driver").Code)
	assert.Equal(t, http.StatusForbidden, do(t, h, http.MethodPost, "/v1/dispatch", nil, "alice:driver").Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/v1/admin/webhook-dlq", nil, "root:admin").Code)
	assert.Equal(t, http.StatusForbidden, do(t, h, http.MethodGet, "/v1/admin/webhook-dlq", nil, "bob:dispatcher").Code)
}

func TestOperationalEndpoints(t *testing.T) {
	metrics.RegisterDefault()
	s := newTestServer(t, nil)
	h := s.Routes()

	rr := do(t, h, http.MethodGet, "/healthz", nil, "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))

	rr = do(t, h, http.MethodGet, "/readyz", nil, "")
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = do(t, h, http.MethodGet, "/metrics", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "http_requests_total")
	assert.Contains(t, rr.Body.String(), `path="GET /healthz"`)

	rr = do(t, h, http.MethodGet, "/debug/vars", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	vars := decode[map[string]any](t, rr)
	assert.Contains(t, vars, "build")
	assert.NotContains(t, rr.Body.String(), "AUTH_HMAC_SECRET")

	rr = do(t, h, http.MethodGet, "/openapi.yaml", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "/optimize_routes")
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/docs", nil, "").Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/version", nil, "").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, do(t, h, http.MethodGet, "/optimize_routes", nil, "").Code)
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t, func(c *config.Config) { c.AllowOrigins = []string{"https://dash.example"} })
	req := httptest.NewRequest(http.MethodOptions, "/optimize_routes", nil)
	req.Header.Set("Origin", "https://dash.example")
	rr := httptest.NewRecorder()
	s.Routes().ServeHTTP(rr, req)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "https://dash.example", rr.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "https://evil.example")
	rr = httptest.NewRecorder()
	s.Routes().ServeHTTP(rr, req)
	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
}
