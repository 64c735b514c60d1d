// ABOUTME: Tests for the JSON error response helpers.

package errors

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func decode(t *testing.T, rr *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json.Unmarshal() error = %v, body: %s", err, rr.Body.String())
	}
	return resp
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		name   string
		status int
		code   string
	}{
		{"unknown resource", http.StatusNotFound, ErrUnknownResource},
		{"forbidden", http.StatusForbidden, ErrForbidden},
		{"in flight", http.StatusConflict, ErrDispatchInFlight},
		{"upstream down", http.StatusServiceUnavailable, ErrServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			WriteError(rr, tt.status, tt.code, "something went wrong")

			if rr.Code != tt.status {
				t.Errorf("status = %d, want %d", rr.Code, tt.status)
			}
			if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q", ct)
			}
			resp := decode(t, rr)
			if resp.Code != tt.code || resp.Status != tt.status || resp.Message != "something went wrong" {
				t.Errorf("response = %+v", resp)
			}
			if resp.Details != "" {
				t.Errorf("Details = %q, want empty", resp.Details)
			}
		})
	}
}

func TestWriteErrorWithDetails(t *testing.T) {
	rr := httptest.NewRecorder()
	WriteErrorWithDetails(rr, http.StatusUnprocessableEntity, ErrMissingArgument, "missing required arguments", `["clustername"]`)

	resp := decode(t, rr)
	if resp.Status != http.StatusUnprocessableEntity || resp.Details != `["clustername"]` {
		t.Errorf("response = %+v", resp)
	}
}

func TestDetailsOmittedWhenEmpty(t *testing.T) {
	rr := httptest.NewRecorder()
	WriteError(rr, http.StatusBadRequest, ErrInvalidBody, "bad json")

	var raw map[string]any
	json.Unmarshal(rr.Body.Bytes(), &raw)
	if _, ok := raw["details"]; ok {
		t.Errorf("details should be omitted: %s", rr.Body.String())
	}
}
