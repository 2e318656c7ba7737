package api

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/signalsfoundry/orbit-visualizer/core"
	"github.com/signalsfoundry/orbit-visualizer/internal/auth"
	"github.com/signalsfoundry/orbit-visualizer/internal/catalog"
	"github.com/signalsfoundry/orbit-visualizer/internal/httputil"
	"github.com/signalsfoundry/orbit-visualizer/internal/logging"
	"github.com/signalsfoundry/orbit-visualizer/internal/observability"
	"github.com/signalsfoundry/orbit-visualizer/kb"
	"github.com/signalsfoundry/orbit-visualizer/model"
	"github.com/signalsfoundry/orbit-visualizer/timectrl"
)

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	svc     *catalog.Service
	srv     *Server
	clock   *timectrl.TimeController
	metrics *observability.Collector
}

func newTestEnv(t *testing.T, mutate func(*Options)) *testEnv {
	t.Helper()
	collector, err := observability.NewCollector(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}
	clock := timectrl.NewTimeController(fixedNow, time.Second, 1)
	svc := catalog.NewService(kb.NewKnowledgeBase(),
		catalog.WithMetrics(collector),
		catalog.WithClock(clock),
		catalog.WithNow(func() time.Time { return fixedNow }),
	)
	opts := Options{
		Logger:  logging.Noop(),
		Metrics: collector,
		Now:     func() time.Time { return fixedNow },
	}
	if mutate != nil {
		mutate(&opts)
	}
	return &testEnv{svc: svc, srv: NewServer(svc, opts), clock: clock, metrics: collector}
}

func (e *testEnv) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return v
}

func expectStatus(t *testing.T, rr *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rr.Code != want {
		t.Fatalf("status = %d, want %d (body %s)", rr.Code, want, rr.Body.String())
	}
}

func TestHealthAndProbes(t *testing.T) {
	env := newTestEnv(t, nil)

	rr := env.do(t, http.MethodGet, "/api/health", nil)
	expectStatus(t, rr, http.StatusOK)
	health := decode[struct {
		Status    string    `json:"status"`
		Timestamp time.Time `json:"timestamp"`
	}](t, rr)
	if health.Status != "healthy" || !health.Timestamp.Equal(fixedNow) {
		t.Fatalf("health = %+v", health)
	}
	if rr.Header().Get(logging.RequestIDHeader) == "" {
		t.Fatalf("response is missing %s", logging.RequestIDHeader)
	}

	expectStatus(t, env.do(t, http.MethodGet, "/healthz", nil), http.StatusOK)
	expectStatus(t, env.do(t, http.MethodGet, "/readyz", nil), http.StatusOK)
}

func TestRequestIDIsEchoed(t *testing.T) {
	env := newTestEnv(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set(logging.RequestIDHeader, "req-42")
	rr := httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(rr, req)
	if got := rr.Header().Get(logging.RequestIDHeader); got != "req-42" {
		t.Fatalf("request id = %q, want req-42", got)
	}
}

func TestListSatellitesSeedsAndLimits(t *testing.T) {
	env := newTestEnv(t, nil)

	rr := env.do(t, http.MethodGet, "/api/satellites", nil)
	expectStatus(t, rr, http.StatusOK)
	list := decode[struct {
		Satellites []model.Satellite `json:"satellites"`
	}](t, rr)
	if len(list.Satellites) != 6 || list.Satellites[0].ID != "iss" {
		t.Fatalf("seeded list = %+v", list.Satellites)
	}

	rr = env.do(t, http.MethodGet, "/api/satellites?limit=2", nil)
	expectStatus(t, rr, http.StatusOK)
	list = decode[struct {
		Satellites []model.Satellite `json:"satellites"`
	}](t, rr)
	if len(list.Satellites) != 2 {
		t.Fatalf("limit=2 returned %d satellites", len(list.Satellites))
	}

	expectStatus(t, env.do(t, http.MethodGet, "/api/satellites?limit=abc", nil), http.StatusUnprocessableEntity)
	expectStatus(t, env.do(t, http.MethodGet, "/api/satellites?limit=0", nil), http.StatusUnprocessableEntity)
}

func TestSatelliteLifecycle(t *testing.T) {
	env := newTestEnv(t, nil)

	rr := env.do(t, http.MethodPost, "/api/satellites/custom", map[string]any{
		"name":         "Cubesat",
		"type":         "custom",
		"altitude":     550,
		"inclination":  97.6,
		"eccentricity": 0.001,
	})
	expectStatus(t, rr, http.StatusOK)
	created := decode[struct {
		Satellite model.Satellite `json:"satellite"`
		ID        string          `json:"id"`
	}](t, rr)
	if created.ID == "" || created.ID != created.Satellite.ID {
		t.Fatalf("created ids = %q / %q", created.ID, created.Satellite.ID)
	}
	if !created.Satellite.Active || created.Satellite.Color != model.DefaultSatelliteColor {
		t.Fatalf("defaults not applied: %+v", created.Satellite)
	}
	if want := core.PeriodFromAltitude(550); created.Satellite.Period != want {
		t.Fatalf("period = %v, want %v", created.Satellite.Period, want)
	}

	path := "/api/satellites/" + created.ID
	rr = env.do(t, http.MethodGet, path, nil)
	expectStatus(t, rr, http.StatusOK)

	rr = env.do(t, http.MethodPut, path, map[string]any{"altitude": 600, "color": "#123456"})
	expectStatus(t, rr, http.StatusOK)
	updated := decode[struct {
		Satellite model.Satellite `json:"satellite"`
	}](t, rr)
	if updated.Satellite.Altitude != 600 || updated.Satellite.Color != "#123456" ||
		updated.Satellite.Period != core.PeriodFromAltitude(600) {
		t.Fatalf("update = %+v", updated.Satellite)
	}

	rr = env.do(t, http.MethodPut, path, map[string]any{"inclination": 200})
	expectStatus(t, rr, http.StatusBadRequest)

	rr = env.do(t, http.MethodDelete, path, nil)
	expectStatus(t, rr, http.StatusOK)
	if got := decode[map[string]bool](t, rr); !got["success"] {
		t.Fatalf("delete body = %v", got)
	}

	rr = env.do(t, http.MethodGet, path, nil)
	expectStatus(t, rr, http.StatusNotFound)
	if got := decode[map[string]string](t, rr); got["detail"] != "Satellite not found" {
		t.Fatalf("404 detail = %v", got)
	}
	expectStatus(t, env.do(t, http.MethodDelete, path, nil), http.StatusNotFound)
	expectStatus(t, env.do(t, http.MethodPut, path, map[string]any{"name": "x"}), http.StatusNotFound)
}

func TestCreateSatelliteValidation(t *testing.T) {
	env := newTestEnv(t, nil)

	rr := env.do(t, http.MethodPost, "/api/satellites/custom", map[string]any{
		"name": "Low", "type": "custom", "altitude": 100, "inclination": 190, "eccentricity": 0,
	})
	expectStatus(t, rr, http.StatusBadRequest)
	body := decode[struct {
		Detail struct {
			Errors []string `json:"errors"`
		} `json:"detail"`
	}](t, rr)
	want := []string{core.MsgAltitudeTooLow, core.MsgInclinationRange}
	if len(body.Detail.Errors) != 2 || body.Detail.Errors[0] != want[0] || body.Detail.Errors[1] != want[1] {
		t.Fatalf("errors = %v, want %v", body.Detail.Errors, want)
	}

	rr = env.do(t, http.MethodPost, "/api/satellites/custom", map[string]any{"name": "NoOrbit", "type": "custom"})
	expectStatus(t, rr, http.StatusUnprocessableEntity)

	rr = env.do(t, http.MethodPost, "/api/satellites/custom", `{"name":`)
	expectStatus(t, rr, http.StatusUnprocessableEntity)
}

func TestCreateSatelliteRejectsInvalidOverrides(t *testing.T) {
	env := newTestEnv(t, nil)

	rr := env.do(t, http.MethodPost, "/api/satellites/custom", map[string]any{
		"name": "Sunken", "type": "custom", "altitude": 400, "inclination": 0, "eccentricity": 0,
		"custom_params": map[string]any{"altitude": -7000},
	})
	expectStatus(t, rr, http.StatusBadRequest)
	body := decode[struct {
		Detail struct {
			Errors []string `json:"errors"`
		} `json:"detail"`
	}](t, rr)
	if len(body.Detail.Errors) != 1 || body.Detail.Errors[0] != core.MsgAltitudeTooLow {
		t.Fatalf("errors = %v, want [%q]", body.Detail.Errors, core.MsgAltitudeTooLow)
	}

	rr = env.do(t, http.MethodPost, "/api/satellites/custom", map[string]any{
		"name": "Stalled", "type": "custom", "altitude": 400, "inclination": 0, "eccentricity": 0,
		"custom_params": map[string]any{"period": -1},
	})
	expectStatus(t, rr, http.StatusBadRequest)

	rr = env.do(t, http.MethodGet, "/api/satellites", nil)
	for _, sat := range decode[map[string][]model.Satellite](t, rr)["satellites"] {
		if sat.Type == "custom" {
			t.Fatalf("rejected satellite was stored: %+v", sat)
		}
	}
}

func TestWriteJSONReportsEncodingFailure(t *testing.T) {
	rr := httptest.NewRecorder()
	writeJSON(rr, http.StatusOK, map[string]float64{"x": math.NaN()})
	expectStatus(t, rr, http.StatusInternalServerError)
	if got := decode[map[string]any](t, rr)["detail"]; got != "Internal server error" {
		t.Fatalf("detail = %v", got)
	}
}

func TestOrbitPathAndPosition(t *testing.T) {
	env := newTestEnv(t, nil)
	env.do(t, http.MethodGet, "/api/satellites", nil)

	rr := env.do(t, http.MethodGet, "/api/satellites/iss/orbit-path", nil)
	expectStatus(t, rr, http.StatusOK)
	path := decode[struct {
		SatelliteID string      `json:"satellite_id"`
		Points      []core.Vec3 `json:"points"`
	}](t, rr)
	if path.SatelliteID != "iss" || len(path.Points) != 100 {
		t.Fatalf("default path: id=%q points=%d", path.SatelliteID, len(path.Points))
	}

	rr = env.do(t, http.MethodGet, "/api/satellites/iss/orbit-path?points=0", nil)
	expectStatus(t, rr, http.StatusOK)
	if got := decode[map[string]any](t, rr)["points"].([]any); len(got) != 0 {
		t.Fatalf("points=0 returned %d points", len(got))
	}
	expectStatus(t, env.do(t, http.MethodGet, "/api/satellites/iss/orbit-path?points=-1", nil), http.StatusUnprocessableEntity)
	expectStatus(t, env.do(t, http.MethodGet, "/api/satellites/nope/orbit-path", nil), http.StatusNotFound)

	rr = env.do(t, http.MethodGet, "/api/satellites/iss/position?t=600", nil)
	expectStatus(t, rr, http.StatusOK)
	report := decode[catalog.PositionReport](t, rr)
	sat, _ := env.svc.GetSatellite(context.Background(), "iss")
	want, _ := core.ComputePosition(sat.Elements(), 600)
	if report.ElapsedSeconds != 600 || !report.Position.ApproxEqual(want, 1e-9) {
		t.Fatalf("position report = %+v, want position %+v", report, want)
	}
	expectStatus(t, env.do(t, http.MethodGet, "/api/satellites/iss/position?t=soon", nil), http.StatusUnprocessableEntity)
}

func TestTrackingAndPositionHistory(t *testing.T) {
	env := newTestEnv(t, nil)
	env.do(t, http.MethodGet, "/api/satellites", nil)
	ctx := context.Background()

	rr := env.do(t, http.MethodPost, "/api/satellites/hubble/track", nil)
	expectStatus(t, rr, http.StatusOK)
	if got := decode[map[string]any](t, rr); got["tracking"] != true || got["started"] != true {
		t.Fatalf("track body = %v", got)
	}

	for i := 1; i <= 3; i++ {
		env.clock.SetTime(fixedNow.Add(time.Duration(i) * time.Minute))
		env.svc.Tick(ctx, env.clock.Now())
	}

	rr = env.do(t, http.MethodGet, "/api/satellites/hubble/positions?limit=2", nil)
	expectStatus(t, rr, http.StatusOK)
	history := decode[struct {
		Positions []model.SatellitePosition `json:"positions"`
	}](t, rr)
	if len(history.Positions) != 2 || !history.Positions[0].Timestamp.Equal(fixedNow.Add(3*time.Minute)) {
		t.Fatalf("history = %+v", history.Positions)
	}

	start := fixedNow.Add(2 * time.Minute).Format(time.RFC3339)
	rr = env.do(t, http.MethodGet, "/api/satellites/hubble/positions?start="+start, nil)
	history = decode[struct {
		Positions []model.SatellitePosition `json:"positions"`
	}](t, rr)
	if len(history.Positions) != 2 {
		t.Fatalf("start filter returned %d positions", len(history.Positions))
	}
	expectStatus(t, env.do(t, http.MethodGet, "/api/satellites/hubble/positions?start=yesterday", nil), http.StatusUnprocessableEntity)
	expectStatus(t, env.do(t, http.MethodGet, "/api/satellites/ghost/positions", nil), http.StatusNotFound)

	expectStatus(t, env.do(t, http.MethodDelete, "/api/satellites/hubble/track", nil), http.StatusOK)
	expectStatus(t, env.do(t, http.MethodDelete, "/api/satellites/hubble/track", nil), http.StatusConflict)
	expectStatus(t, env.do(t, http.MethodPost, "/api/satellites/ghost/track", nil), http.StatusNotFound)
}

func TestConfigurations(t *testing.T) {
	env := newTestEnv(t, nil)

	rr := env.do(t, http.MethodPost, "/api/configurations", map[string]any{
		"name":                  "Demo",
		"satellite_params":      map[string]any{"altitude": 408},
		"selected_satellite_id": "iss",
	})
	expectStatus(t, rr, http.StatusOK)
	saved := decode[struct {
		Configuration model.Configuration `json:"configuration"`
		ID            string              `json:"id"`
	}](t, rr)
	if saved.ID == "" || saved.Configuration.TimeSpeed != 1 {
		t.Fatalf("saved = %+v", saved)
	}

	expectStatus(t, env.do(t, http.MethodPost, "/api/configurations", map[string]any{
		"name": "Incomplete", "satellite_params": map[string]any{},
	}), http.StatusUnprocessableEntity)

	rr = env.do(t, http.MethodGet, "/api/configurations", nil)
	expectStatus(t, rr, http.StatusOK)
	list := decode[struct {
		Configurations []model.Configuration `json:"configurations"`
	}](t, rr)
	if len(list.Configurations) != 1 || list.Configurations[0].ID != saved.ID {
		t.Fatalf("configurations = %+v", list.Configurations)
	}

	expectStatus(t, env.do(t, http.MethodDelete, "/api/configurations/"+saved.ID, nil), http.StatusOK)
	rr = env.do(t, http.MethodDelete, "/api/configurations/"+saved.ID, nil)
	expectStatus(t, rr, http.StatusNotFound)
	if got := decode[map[string]string](t, rr); got["detail"] != "Configuration not found" {
		t.Fatalf("404 detail = %v", got)
	}
}

func TestPreferences(t *testing.T) {
	env := newTestEnv(t, nil)

	rr := env.do(t, http.MethodGet, "/api/preferences", nil)
	expectStatus(t, rr, http.StatusOK)
	got := decode[struct {
		Preferences model.Preferences `json:"preferences"`
	}](t, rr)
	if got.Preferences.Theme != "dark" || got.Preferences.CameraMode != "free" {
		t.Fatalf("defaults = %+v", got.Preferences)
	}

	rr = env.do(t, http.MethodPut, "/api/preferences", map[string]any{"theme": "light", "default_speed": 10})
	expectStatus(t, rr, http.StatusOK)
	got = decode[struct {
		Preferences model.Preferences `json:"preferences"`
	}](t, rr)
	if got.Preferences.Theme != "light" || got.Preferences.DefaultSpeed != 10 || !got.Preferences.ShowOrbits {
		t.Fatalf("updated = %+v", got.Preferences)
	}

	rr = env.do(t, http.MethodGet, "/api/preferences", nil)
	got = decode[struct {
		Preferences model.Preferences `json:"preferences"`
	}](t, rr)
	if got.Preferences.Theme != "light" {
		t.Fatalf("preferences not persisted: %+v", got.Preferences)
	}
}

func TestValidateAndPeriod(t *testing.T) {
	env := newTestEnv(t, nil)

	rr := env.do(t, http.MethodPost, "/api/validate-orbital-params?altitude=400&inclination=51.6&eccentricity=0", nil)
	expectStatus(t, rr, http.StatusOK)
	if res := decode[core.ValidationResult](t, rr); !res.Valid || len(res.Errors) != 0 {
		t.Fatalf("valid params = %+v", res)
	}

	rr = env.do(t, http.MethodPost, "/api/validate-orbital-params?altitude=40000&inclination=51.6&eccentricity=1", nil)
	expectStatus(t, rr, http.StatusOK)
	res := decode[core.ValidationResult](t, rr)
	if res.Valid || len(res.Errors) != 2 {
		t.Fatalf("invalid params = %+v", res)
	}
	if got := testutil.ToFloat64(env.metrics.ValidationFailures); got != 1 {
		t.Fatalf("validation failures = %v, want 1", got)
	}
	expectStatus(t, env.do(t, http.MethodPost, "/api/validate-orbital-params?altitude=400", nil), http.StatusUnprocessableEntity)

	rr = env.do(t, http.MethodGet, "/api/period?altitude=408", nil)
	expectStatus(t, rr, http.StatusOK)
	period := decode[map[string]float64](t, rr)
	if period["period_minutes"] != core.PeriodFromAltitude(408) {
		t.Fatalf("period = %v", period)
	}
	expectStatus(t, env.do(t, http.MethodGet, "/api/period?altitude=-1", nil), http.StatusUnprocessableEntity)
}

func TestRateLimiting(t *testing.T) {
	env := newTestEnv(t, func(o *Options) {
		o.RateLimit = httputil.RateLimitConfig{
			Default: httputil.NewIPRateLimiter(httputil.RateSpec{Events: 100, Per: time.Minute}),
			Write:   httputil.NewIPRateLimiter(httputil.RateSpec{Events: 1, Per: time.Minute}),
		}
	})

	body := map[string]any{"theme": "light"}
	expectStatus(t, env.do(t, http.MethodPut, "/api/preferences", body), http.StatusOK)
	rr := env.do(t, http.MethodPut, "/api/preferences", body)
	expectStatus(t, rr, http.StatusTooManyRequests)
	if rr.Header().Get("Retry-After") == "" {
		t.Fatalf("429 without Retry-After")
	}
	// Reads keep their own budget.
	expectStatus(t, env.do(t, http.MethodGet, "/api/preferences", nil), http.StatusOK)
	expectStatus(t, env.do(t, http.MethodGet, "/healthz", nil), http.StatusOK)
}

func TestAuthentication(t *testing.T) {
	authCfg := auth.Config{
		Enabled:       true,
		Secret:        []byte("test-secret"),
		Algorithm:     "HS256",
		RequiredRoles: []string{"editor"},
	}
	env := newTestEnv(t, func(o *Options) { o.Auth = authCfg })

	expectStatus(t, env.do(t, http.MethodGet, "/api/health", nil), http.StatusOK)
	expectStatus(t, env.do(t, http.MethodGet, "/readyz", nil), http.StatusOK)
	expectStatus(t, env.do(t, http.MethodGet, "/api/satellites", nil), http.StatusUnauthorized)

	token, err := auth.NewVerifier(authCfg).Sign(auth.Claims{Roles: []string{"viewer"}})
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	req := httptest.NewRequest(http.MethodDelete, "/api/satellites/iss", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(rr, req)
	expectStatus(t, rr, http.StatusForbidden)

	req = httptest.NewRequest(http.MethodGet, "/api/satellites", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr = httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(rr, req)
	expectStatus(t, rr, http.StatusOK)
}

func TestRoutesAreInstrumentedByPattern(t *testing.T) {
	env := newTestEnv(t, nil)
	env.do(t, http.MethodGet, "/api/satellites/a", nil)
	env.do(t, http.MethodGet, "/api/satellites/b", nil)

	if got := testutil.ToFloat64(env.metrics.HTTPRequests.WithLabelValues("404", "get", "GET /api/satellites/{id}")); got != 2 {
		t.Fatalf("requests for pattern = %v, want 2", got)
	}

	rr := env.do(t, http.MethodGet, "/metrics", nil)
	expectStatus(t, rr, http.StatusOK)
	if !strings.Contains(rr.Body.String(), "http_requests_total") {
		t.Fatalf("/metrics output lacks http_requests_total")
	}
}

func TestLiveFeed(t *testing.T) {
	env := newTestEnv(t, nil)
	env.do(t, http.MethodGet, "/api/satellites", nil)

	ts := httptest.NewServer(env.srv.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/satellites/iss/live?interval_ms=50&speed=60&t0=100"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial: %v (response %+v)", err, resp)
	}
	defer conn.Close()

	read := func() liveFrame {
		t.Helper()
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		var f liveFrame
		if err := conn.ReadJSON(&f); err != nil {
			t.Fatalf("ReadJSON: %v", err)
		}
		return f
	}

	hello := read()
	if hello.Type != frameHello || hello.SatelliteID != "iss" || hello.Speed != 60 || hello.IntervalMS != 50 {
		t.Fatalf("hello frame = %+v", hello)
	}
	pos := read()
	if pos.Type != framePosition || pos.Data == nil || pos.Data.ElapsedSeconds < 100 {
		t.Fatalf("position frame = %+v", pos)
	}

	if err := env.svc.DeleteSatellite(context.Background(), "iss"); err != nil {
		t.Fatalf("DeleteSatellite: %v", err)
	}
	for i := 0; ; i++ {
		if i > 50 {
			t.Fatalf("no satellite_deleted frame received")
		}
		if f := read(); f.Type == frameSatelliteDeleted {
			break
		}
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, _, err := conn.ReadMessage(); !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Fatalf("expected normal closure, got %v", err)
	}
}

func TestLiveFeedClosesOnShutdown(t *testing.T) {
	env := newTestEnv(t, nil)
	env.do(t, http.MethodGet, "/api/satellites", nil)

	ts := httptest.NewServer(env.srv.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/satellites/iss/live?interval_ms=1000"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial: %v (response %+v)", err, resp)
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var hello liveFrame
	if err := conn.ReadJSON(&hello); err != nil || hello.Type != frameHello {
		t.Fatalf("hello = %+v, %v", hello, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := env.srv.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	for {
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, _, err := conn.ReadMessage()
		if err == nil {
			continue
		}
		if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
			t.Fatalf("expected going-away close, got %v", err)
		}
		break
	}
}

func TestLiveFeedRejections(t *testing.T) {
	env := newTestEnv(t, nil)
	env.do(t, http.MethodGet, "/api/satellites", nil)

	expectStatus(t, env.do(t, http.MethodGet, "/api/satellites/iss/live", nil), http.StatusUpgradeRequired)
	expectStatus(t, env.do(t, http.MethodGet, "/api/satellites/iss/live?speed=0", nil), http.StatusUnprocessableEntity)
	expectStatus(t, env.do(t, http.MethodGet, "/api/satellites/iss/live?interval_ms=1", nil), http.StatusUnprocessableEntity)

	ts := httptest.NewServer(env.srv.Handler())
	defer ts.Close()
	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/api/satellites/ghost/live", nil)
	if err == nil || resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown satellite: err=%v resp=%v", err, resp)
	}
}

func TestCheckOrigin(t *testing.T) {
	env := newTestEnv(t, func(o *Options) { o.AllowedOrigins = []string{"https://orbit.example"} })
	for origin, want := range map[string]bool{
		"":                          true,
		"https://orbit.example":     true,
		"https://orbit.example:443": false,
		"https://evil.example":      false,
		"https://ORBIT.example":     true,
	} {
		req := httptest.NewRequest(http.MethodGet, "/api/satellites/iss/live", nil)
		if origin != "" {
			req.Header.Set("Origin", origin)
		}
		if got := env.srv.checkOrigin(req); got != want {
			t.Fatalf("checkOrigin(%q) = %v, want %v", origin, got, want)
		}
	}
}
