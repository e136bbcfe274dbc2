package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"trackxp/core"
	"trackxp/engine"
)

// MaxCurveRows bounds a single /curve response.
const MaxCurveRows = 500

const maxBodyBytes = 4 << 20

// Options configures the HTTP API surface.
type Options struct {
	// PathPrefix, if set, is prepended to all routes (e.g., "/api").
	PathPrefix string
	// AllowCORSOrigin, if non-empty, enables basic CORS with the given origin (use "*" for any).
	AllowCORSOrigin string
	// RateLimitEnabled toggles rate limiting.
	RateLimitEnabled bool
	// RateLimitRPM is the allowed requests per minute per client key.
	RateLimitRPM int
	// RateLimitBurst defines burst capacity.
	RateLimitBurst int
	// Logger is the base for request-scoped loggers. Defaults to slog.Default().
	Logger *slog.Logger
}

// NewMux builds an http.Handler exposing the stateless XP API.
// Routes:
//   - POST {prefix}/xp/value
//   - GET  {prefix}/level?total=N[&a=..&alpha=..]
//   - GET  {prefix}/curve?from=1&to=20[&a=..&alpha=..]
//   - POST {prefix}/ledger
//   - GET  {prefix}/config
//   - GET  {prefix}/healthz
func NewMux(svc *engine.Service, opts Options) http.Handler {
	if svc == nil {
		panic("httpapi: nil service")
	}
	h := &handlers{svc: svc}
	mux := http.NewServeMux()

	mux.HandleFunc(withPrefix(opts.PathPrefix, "/healthz"), h.health)
	mux.HandleFunc(withPrefix(opts.PathPrefix, "/xp/value"), only(http.MethodPost, h.valueEvent))
	mux.HandleFunc(withPrefix(opts.PathPrefix, "/level"), only(http.MethodGet, h.level))
	mux.HandleFunc(withPrefix(opts.PathPrefix, "/curve"), only(http.MethodGet, h.curve))
	mux.HandleFunc(withPrefix(opts.PathPrefix, "/ledger"), only(http.MethodPost, h.ledger))
	mux.HandleFunc(withPrefix(opts.PathPrefix, "/config"), only(http.MethodGet, h.config))

	var handler http.Handler = mux
	if opts.AllowCORSOrigin != "" {
		handler = withCORS(handler, opts.AllowCORSOrigin)
	}
	if opts.RateLimitEnabled && opts.RateLimitRPM > 0 && opts.RateLimitBurst > 0 {
		handler = withRateLimit(handler, opts.RateLimitRPM, opts.RateLimitBurst)
	}
	base := opts.Logger
	if base == nil {
		base = slog.Default()
	}
	return withRequestLogging(handler, base)
}

type handlers struct {
	svc *engine.Service
}

// ValueRequest is the body of POST /xp/value. Config, when present, replaces
// the server's XP configuration for this call only.
type ValueRequest struct {
	Event               core.Event   `json:"event"`
	StreakDays          int          `json:"streak_days" validate:"gte=0"`
	MicroXPAwardedToday int64        `json:"micro_xp_awarded_today" validate:"gte=0"`
	Config              *core.Config `json:"config,omitempty" validate:"-"`
}

type valueResponse struct {
	XP int64 `json:"xp"`
}

// LevelResponse is the body returned by GET /level.
type LevelResponse struct {
	Total int64 `json:"total"`
	core.LevelState
	Progress float64 `json:"progress"`
	ToNext   int64   `json:"to_next"`
}

// LedgerRequest is the body of POST /ledger. Timezone defaults to the
// server's ledger timezone.
type LedgerRequest struct {
	Events   []engine.DatedEvent `json:"events" validate:"dive"`
	Timezone string              `json:"timezone,omitempty"`
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"status": "healthy",
		"checks": map[string]any{
			"xp_config": "ok",
		},
	}

	code := http.StatusOK
	if err := h.svc.Config().Validate(); err != nil {
		code = http.StatusServiceUnavailable
		status["status"] = "unhealthy"
		status["checks"].(map[string]any)["xp_config"] = "failed"
	}
	writeJSONStatus(w, code, status)
}

func (h *handlers) valueEvent(w http.ResponseWriter, r *http.Request) {
	var req ValueRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	cfg := h.svc.Config()
	if req.Config != nil {
		if err := req.Config.Validate(); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_config", err.Error(), nil)
			return
		}
		cfg = *req.Config
	}
	xp := core.ValueEvent(req.Event, req.StreakDays, req.MicroXPAwardedToday, cfg)
	LoggerFromContext(r.Context()).Debug("event valued", "kind", req.Event.Kind, "streak_days", req.StreakDays, "xp", xp)
	writeJSON(w, valueResponse{XP: xp})
}

func (h *handlers) level(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	raw := q.Get("total")
	if raw == "" {
		writeError(w, http.StatusBadRequest, "invalid_total", "total is required", nil)
		return
	}
	total, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_total", "total must be an integer", nil)
		return
	}
	cfg, ok := h.curveConfig(w, r)
	if !ok {
		return
	}
	st, err := core.ResolveLevel(total, cfg)
	switch {
	case errors.Is(err, core.ErrLevelOutOfRange):
		writeError(w, http.StatusBadRequest, "out_of_range", "total is past the highest level",
			map[string]any{"max_level": core.MaxLevel})
		return
	case err != nil:
		writeError(w, http.StatusBadRequest, "invalid_config", err.Error(), nil)
		return
	}
	writeJSON(w, LevelResponse{
		Total:      max(0, total),
		LevelState: st,
		Progress:   st.Progress(),
		ToNext:     st.ToNext(),
	})
}

func (h *handlers) curve(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, err := intParam(q.Get("from"), 1)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_range", "from must be an integer", nil)
		return
	}
	to, err := intParam(q.Get("to"), 20)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_range", "to must be an integer", nil)
		return
	}
	from = max(1, from)
	if to < from {
		writeError(w, http.StatusBadRequest, "invalid_range", "to must not be below from", nil)
		return
	}
	if to > core.MaxLevel {
		writeError(w, http.StatusBadRequest, "invalid_range", "to is past the highest level",
			map[string]any{"max_level": core.MaxLevel})
		return
	}
	if to-from >= MaxCurveRows {
		writeError(w, http.StatusBadRequest, "invalid_range", "too many levels requested",
			map[string]any{"max_rows": MaxCurveRows})
		return
	}
	cfg, ok := h.curveConfig(w, r)
	if !ok {
		return
	}
	rows, err := core.LevelCurve(from, to, cfg)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_config", err.Error(), nil)
		return
	}
	writeJSON(w, rows)
}

func (h *handlers) ledger(w http.ResponseWriter, r *http.Request) {
	var req LedgerRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	loc := h.svc.Location()
	if tz := strings.TrimSpace(req.Timezone); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_timezone", err.Error(), nil)
			return
		}
		loc = l
	}
	report, err := h.svc.ReplayIn(r.Context(), req.Events, loc)
	switch {
	case err == nil:
		writeJSON(w, report)
	case errors.Is(err, engine.ErrInvalidEvent):
		writeError(w, http.StatusBadRequest, "invalid_event", err.Error(), nil)
	case errors.Is(err, core.ErrOverflow):
		writeError(w, http.StatusUnprocessableEntity, "overflow", err.Error(), nil)
	case errors.Is(err, core.ErrLevelOutOfRange):
		writeError(w, http.StatusUnprocessableEntity, "out_of_range", err.Error(),
			map[string]any{"max_level": core.MaxLevel})
	default:
		LoggerFromContext(r.Context()).Error("ledger replay failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", err.Error(), nil)
	}
}

func (h *handlers) config(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.svc.Config())
}

// curveConfig applies the optional a and alpha query overrides.
func (h *handlers) curveConfig(w http.ResponseWriter, r *http.Request) (core.Config, bool) {
	cfg := h.svc.Config()
	q := r.URL.Query()
	for _, p := range []struct {
		name string
		dst  *float64
	}{
		{"a", &cfg.LevelA},
		{"alpha", &cfg.LevelAlpha},
	} {
		raw := q.Get(p.name)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			writeError(w, http.StatusBadRequest, "invalid_config", p.name+" must be a finite number", nil)
			return cfg, false
		}
		*p.dst = v
	}
	if err := cfg.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_config", err.Error(), nil)
		return cfg, false
	}
	return cfg, true
}

func intParam(raw string, def int64) (int64, error) {
	if raw == "" {
		return def, nil
	}
	return strconv.ParseInt(raw, 10, 64)
}

// only rejects every method except m.
func only(m string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != m {
			w.Header().Set("Allow", m)
			writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed", nil)
			return
		}
		next(w, r)
	}
}

// decodeAndValidate writes a 400 and returns false when the body is not
// valid JSON for dst or fails its validation tags.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	log := LoggerFromContext(r.Context())
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		log.Debug("failed to decode request", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusBadRequest, "invalid_request", "request body is not valid JSON", nil)
		return false
	}
	if err := validateStruct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "request validation failed", formatValidationError(err))
		return false
	}
	return true
}

func withPrefix(prefix, path string) string {
	if prefix == "" || prefix == "/" {
		return path
	}
	if prefix[len(prefix)-1] == '/' {
		return prefix[:len(prefix)-1] + path
	}
	return prefix + path
}

func writeJSON(w http.ResponseWriter, v any) {
	writeJSONStatus(w, http.StatusOK, v)
}

func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, msg string, details any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(apiError{Code: code, Message: msg, Details: details})
}
