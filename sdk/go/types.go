package sdk

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"trackxp/core"
)

// LevelInfo mirrors the GET /level response.
type LevelInfo struct {
	Total int64 `json:"total"`
	core.LevelState
	Progress float64 `json:"progress"`
	ToNext   int64   `json:"to_next"`
}

// HealthStatus describes the /healthz response.
type HealthStatus struct {
	Status string                 `json:"status"`
	Checks map[string]interface{} `json:"checks"`
}

// APIError is returned for any response with a 4xx or 5xx status.
type APIError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
	Details    any    `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("request failed: status %d", e.StatusCode)
	}
	return fmt.Sprintf("request failed: status %d: %s: %s", e.StatusCode, e.Code, e.Message)
}

func decodeJSON(resp *http.Response, target any) error {
	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		_ = json.Unmarshal(body, apiErr)
		return apiErr
	}
	return json.NewDecoder(resp.Body).Decode(target)
}
