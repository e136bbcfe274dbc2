package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/google/uuid"

	"trackxp/core"
	"trackxp/engine"
)

func newTestService(t *testing.T) *engine.Service {
	t.Helper()
	cfg := core.DefaultConfig()
	svc, err := engine.NewService(cfg, engine.NewEventBus(engine.DispatchSync), engine.DefaultRuleEngine(cfg), nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(svc.Close)
	return svc
}

func serve(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestValueEventSuccess(t *testing.T) {
	handler := NewMux(newTestService(t), Options{PathPrefix: "/api"})

	rec := serve(handler, http.MethodPost, "/api/xp/value",
		`{"event":{"kind":"pr_merged","story_points":4,"closes_issue":true},"streak_days":0}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	resp := decode[map[string]int64](t, rec)
	if resp["xp"] != 120 {
		t.Fatalf("expected xp 120, got %v", resp["xp"])
	}
}

func TestValueEventMicroCapAndOverride(t *testing.T) {
	handler := NewMux(newTestService(t), Options{})

	rec := serve(handler, http.MethodPost, "/xp/value",
		`{"event":{"kind":"docs","flat_xp":20},"streak_days":0,"micro_xp_awarded_today":50}`)
	if got := decode[map[string]int64](t, rec)["xp"]; got != 10 {
		t.Fatalf("capped award = %d, want 10", got)
	}

	rec = serve(handler, http.MethodPost, "/xp/value",
		`{"event":{"kind":"issue_closed","story_points":2},"config":{"base_xp_per_story_point":10,"pr_merge_bonus":0,"micro_cap_per_day":60,"max_streak_multiplier":2.5,"level_a":100,"level_alpha":1.15}}`)
	if got := decode[map[string]int64](t, rec)["xp"]; got != 20 {
		t.Fatalf("override award = %d, want 20", got)
	}
}

func TestValueEventValidation(t *testing.T) {
	handler := NewMux(newTestService(t), Options{})

	tests := []struct {
		name string
		body string
		code string
	}{
		{"not json", `{`, "invalid_request"},
		{"unknown field", `{"event":{"kind":"docs"},"bogus":1}`, "invalid_request"},
		{"missing kind", `{"event":{}}`, "validation_failed"},
		{"negative streak", `{"event":{"kind":"docs"},"streak_days":-1}`, "validation_failed"},
		{"bad config", `{"event":{"kind":"docs"},"config":{"level_a":0}}`, "invalid_config"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(handler, http.MethodPost, "/xp/value", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rec.Code)
			}
			if got := decode[apiError](t, rec).Code; got != tt.code {
				t.Fatalf("expected code %q, got %q", tt.code, got)
			}
		})
	}
}

func TestValidationDetailsUseJSONNames(t *testing.T) {
	handler := NewMux(newTestService(t), Options{})
	rec := serve(handler, http.MethodPost, "/xp/value", `{"event":{},"streak_days":-2}`)
	var resp struct {
		Details map[string]string `json:"details"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Details["event.kind"] != "this field is required" {
		t.Fatalf("details = %v", resp.Details)
	}
	if resp.Details["streak_days"] != "must be >= 0" {
		t.Fatalf("details = %v", resp.Details)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	handler := NewMux(newTestService(t), Options{})
	rec := serve(handler, http.MethodGet, "/xp/value", "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
	if rec.Header().Get("Allow") != http.MethodPost {
		t.Fatalf("Allow = %q", rec.Header().Get("Allow"))
	}
}

func TestLevel(t *testing.T) {
	handler := NewMux(newTestService(t), Options{})

	rec := serve(handler, http.MethodGet, "/level?total=322", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	resp := decode[LevelResponse](t, rec)
	if resp.LevelState != (core.LevelState{Level: 3, IntoLevelXP: 0, LevelNeed: 354}) {
		t.Fatalf("level state = %+v", resp.LevelState)
	}
	if resp.ToNext != 354 || resp.Progress != 0 {
		t.Fatalf("to_next=%d progress=%v", resp.ToNext, resp.Progress)
	}

	rec = serve(handler, http.MethodGet, "/level?total=120&a=50&alpha=1", "")
	resp = decode[LevelResponse](t, rec)
	// levels cost 50, 100, 150
	if resp.Level != 2 || resp.IntoLevelXP != 70 || resp.LevelNeed != 100 {
		t.Fatalf("override level = %+v", resp)
	}
}

func TestLevelValidation(t *testing.T) {
	handler := NewMux(newTestService(t), Options{})
	for _, target := range []string{"/level", "/level?total=abc", "/level?total=5&alpha=0", "/level?total=5&a=NaN"} {
		rec := serve(handler, http.MethodGet, target, "")
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", target, rec.Code)
		}
	}
}

func TestLevelRejectsDegenerateCurve(t *testing.T) {
	handler := NewMux(newTestService(t), Options{})
	for _, target := range []string{
		"/level?total=1&a=1e-9&alpha=0.1",
		"/level?total=1000&a=0.4&alpha=2",
		"/curve?a=1e-9&alpha=0.6",
	} {
		rec := serve(handler, http.MethodGet, target, "")
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", target, rec.Code)
		}
		if got := decode[apiError](t, rec).Code; got != "invalid_config" {
			t.Fatalf("%s: expected invalid_config, got %q", target, got)
		}
	}
	if rec := serve(handler, http.MethodGet, "/level?total=1000&a=0.5&alpha=0.1", ""); rec.Code != http.StatusOK {
		t.Fatalf("smallest scale: expected 200, got %d", rec.Code)
	}
}

func TestLevelOutOfRange(t *testing.T) {
	handler := NewMux(newTestService(t), Options{})

	start := time.Now()
	rec := serve(handler, http.MethodGet, "/level?total=9223372036854775807", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
	resp := decode[apiError](t, rec)
	if resp.Code != "out_of_range" {
		t.Fatalf("expected out_of_range, got %q", resp.Code)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("out of range total took %v", elapsed)
	}
}

func TestCurve(t *testing.T) {
	handler := NewMux(newTestService(t), Options{})

	rec := serve(handler, http.MethodGet, "/curve?from=1&to=3", "")
	rows := decode[[]core.LevelCost](t, rec)
	want := []core.LevelCost{
		{Level: 1, Required: 100, Cumulative: 100},
		{Level: 2, Required: 222, Cumulative: 322},
		{Level: 3, Required: 354, Cumulative: 676},
	}
	if len(rows) != len(want) {
		t.Fatalf("rows = %+v", rows)
	}
	for i := range want {
		if rows[i] != want[i] {
			t.Fatalf("row %d = %+v, want %+v", i, rows[i], want[i])
		}
	}

	rec = serve(handler, http.MethodGet, "/curve", "")
	if got := len(decode[[]core.LevelCost](t, rec)); got != 20 {
		t.Fatalf("default rows = %d, want 20", got)
	}

	for _, target := range []string{
		"/curve?from=5&to=2", "/curve?from=1&to=501", "/curve?to=x",
		"/curve?from=4194300&to=4194400", "/curve?from=9223372036854775000&to=9223372036854775007",
	} {
		if rec := serve(handler, http.MethodGet, target, ""); rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", target, rec.Code)
		}
	}
	if rec := serve(handler, http.MethodGet, "/curve?from=1&to=500", ""); rec.Code != http.StatusOK {
		t.Fatalf("500 rows: expected 200, got %d", rec.Code)
	}
	rec = serve(handler, http.MethodGet, "/curve?from=4194000&to=4194304", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("rows up to the highest level: expected 200, got %d", rec.Code)
	}
	if deep := decode[[]core.LevelCost](t, rec); len(deep) != 305 || deep[304].Level != core.MaxLevel {
		t.Fatalf("deep rows = %d", len(deep))
	}
}

func TestLedger(t *testing.T) {
	handler := NewMux(newTestService(t), Options{})

	body := `{"events":[
		{"date":"2024-03-01","kind":"issue_closed","story_points":4,"ref":"#1"},
		{"date":"2024-03-02","kind":"docs","flat_xp":10}
	]}`
	rec := serve(handler, http.MethodPost, "/ledger", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	report := decode[engine.Report](t, rec)
	if len(report.Ledger) != 2 || report.Ledger[0].XP != 120 || report.Ledger[1].XP != 13 {
		t.Fatalf("ledger = %+v", report.Ledger)
	}
	if report.Totals.TotalXP != 133 || report.Totals.Level != 2 || report.Totals.IntoLevelXP != 33 {
		t.Fatalf("totals = %+v", report.Totals)
	}
	if report.Daily["2024-03-02"].Streak != 2 {
		t.Fatalf("daily = %+v", report.Daily)
	}
}

func TestLedgerTimezone(t *testing.T) {
	handler := NewMux(newTestService(t), Options{})

	// 02:00 UTC on the 2nd is still the 1st in New York, so both land on one day
	body := `{"timezone":"America/New_York","events":[
		{"at":"2024-03-01T15:00:00Z","kind":"docs"},
		{"at":"2024-03-02T02:00:00Z","kind":"docs"}
	]}`
	report := decode[engine.Report](t, serve(handler, http.MethodPost, "/ledger", body))
	if len(report.Daily) != 1 || report.Daily["2024-03-01"].Events != 2 {
		t.Fatalf("daily = %+v", report.Daily)
	}
}

func TestLedgerValidation(t *testing.T) {
	handler := NewMux(newTestService(t), Options{})

	tests := []struct {
		name string
		body string
		code string
	}{
		{"missing kind", `{"events":[{"date":"2024-03-01"}]}`, "validation_failed"},
		{"unknown kind", `{"events":[{"date":"2024-03-01","kind":"meeting"}]}`, "invalid_event"},
		{"bad date", `{"events":[{"date":"03/01/2024","kind":"docs"}]}`, "invalid_event"},
		{"bad timezone", `{"timezone":"Nowhere/Land","events":[]}`, "invalid_timezone"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(handler, http.MethodPost, "/ledger", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
			}
			if got := decode[apiError](t, rec).Code; got != tt.code {
				t.Fatalf("expected code %q, got %q", tt.code, got)
			}
		})
	}
}

func TestLedgerOutOfRange(t *testing.T) {
	handler := NewMux(newTestService(t), Options{})

	rec := serve(handler, http.MethodPost, "/ledger",
		`{"events":[{"date":"2024-03-01","kind":"issue_closed","story_points":1e15}]}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := decode[apiError](t, rec).Code; got != "out_of_range" {
		t.Fatalf("expected out_of_range, got %q", got)
	}
}

func TestConfigAndHealth(t *testing.T) {
	handler := NewMux(newTestService(t), Options{PathPrefix: "/api/"})

	rec := serve(handler, http.MethodGet, "/api/config", "")
	if got := decode[core.Config](t, rec); got != core.DefaultConfig() {
		t.Fatalf("config = %+v", got)
	}

	rec = serve(handler, http.MethodGet, "/api/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := decode[map[string]any](t, rec)["status"]; got != "healthy" {
		t.Fatalf("status = %v", got)
	}
}

func TestRequestID(t *testing.T) {
	handler := NewMux(newTestService(t), Options{})

	rec := serve(handler, http.MethodGet, "/healthz", "")
	if _, err := uuid.Parse(rec.Header().Get(RequestIDHeader)); err != nil {
		t.Fatalf("generated request id: %v", err)
	}

	id := uuid.NewString()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(RequestIDHeader, id)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Header().Get(RequestIDHeader) != id {
		t.Fatalf("request id not propagated: %q", rec.Header().Get(RequestIDHeader))
	}
}

func TestCORSPreflight(t *testing.T) {
	handler := NewMux(newTestService(t), Options{AllowCORSOrigin: "*"})
	rec := serve(handler, http.MethodOptions, "/xp/value", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("missing CORS header")
	}
}

func TestRateLimit(t *testing.T) {
	handler := NewMux(newTestService(t), Options{
		RateLimitEnabled: true,
		RateLimitRPM:     1,
		RateLimitBurst:   1,
	})

	if rec := serve(handler, http.MethodGet, "/config", ""); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 first request, got %d", rec.Code)
	}
	if rec := serve(handler, http.MethodGet, "/config", ""); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
}

func TestRateLimiterBoundsTrackedClients(t *testing.T) {
	limiter := newRateLimiter(1, 1, 2)

	if !limiter.allow("10.0.0.1") || limiter.allow("10.0.0.1") {
		t.Fatal("first client should get exactly one request")
	}
	for i := 0; i < 100; i++ {
		limiter.allow(fmt.Sprintf("10.0.1.%d", i))
	}
	if n := limiter.b.Len(); n > 2 {
		t.Fatalf("tracking %d clients, want at most 2", n)
	}
	// the evicted client starts over with a full bucket
	if !limiter.allow("10.0.0.1") {
		t.Fatal("evicted client should be allowed again")
	}
}
