package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"tally/internal/core"
)

func TestJSONResponseBuilder_Basic(t *testing.T) {
	w := httptest.NewRecorder()

	NewJSONResponse().
		Status(http.StatusCreated).
		Header("X-Custom", "value").
		JSON(map[string]int{"cleared": 3}).
		Write(w)

	if w.Code != http.StatusCreated {
		t.Errorf("Status code = %d, want %d", w.Code, http.StatusCreated)
	}
	if got := strings.TrimSpace(w.Body.String()); got != `{"cleared":3}` {
		t.Errorf("Body = %q", got)
	}
	if w.Header().Get("Content-Type") != "application/json" || w.Header().Get("X-Custom") != "value" {
		t.Errorf("Headers = %v", w.Header())
	}
}

func TestJSONResponseBuilder_NoBody(t *testing.T) {
	w := httptest.NewRecorder()
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
	if w.Code != http.StatusNoContent || w.Body.Len() != 0 {
		t.Errorf("unexpected response %d %q", w.Code, w.Body.String())
	}
}

func TestJSONResponseBuilder_EncodeFailure(t *testing.T) {
	w := httptest.NewRecorder()
	NewJSONResponse().JSON(map[string]any{"bad": make(chan int)}).Write(w)
	if w.Code != http.StatusInternalServerError {
		t.Errorf("Status code = %d, want 500", w.Code)
	}
}

func TestErrorResponses(t *testing.T) {
	tests := []struct {
		name     string
		builder  *JSONResponseBuilder
		wantCode int
	}{
		{"bad request", BadRequestError("nope"), http.StatusBadRequest},
		{"unprocessable", UnprocessableEntityError("nope"), http.StatusUnprocessableEntity},
		{"internal", InternalServerError("nope"), http.StatusInternalServerError},
		{"unavailable", ServiceUnavailableError("nope"), http.StatusServiceUnavailable},
		{"too many", TooManyRequestsError(), http.StatusTooManyRequests},
		{"method", MethodNotAllowedError("POST"), http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.builder.Write(w)
			if w.Code != tt.wantCode {
				t.Errorf("Status code = %d, want %d", w.Code, tt.wantCode)
			}
			if !strings.Contains(w.Body.String(), `"error":`) {
				t.Errorf("Body = %q, want error field", w.Body.String())
			}
		})
	}
}

func TestErrorResponseFor(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantCode  int
		wantField string
	}{
		{
			name:      "validation",
			err:       fmt.Errorf("record: %w", &core.ValidationError{Field: "entity", Value: "E", Err: core.ErrUnknownEntity}),
			wantCode:  http.StatusUnprocessableEntity,
			wantField: `"field":"entity"`,
		},
		{"storage", core.StorageError("scan", errors.New("locked")), http.StatusServiceUnavailable, ""},
		{"deadline", fmt.Errorf("scan: %w", context.DeadlineExceeded), http.StatusServiceUnavailable, ""},
		{"other", errors.New("boom"), http.StatusInternalServerError, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			ErrorResponseFor(tt.err).Write(w)
			if w.Code != tt.wantCode {
				t.Fatalf("Status code = %d, want %d", w.Code, tt.wantCode)
			}
			if tt.wantField != "" && !strings.Contains(w.Body.String(), tt.wantField) {
				t.Fatalf("Body = %q, want %s", w.Body.String(), tt.wantField)
			}
			if strings.Contains(w.Body.String(), "boom") || strings.Contains(w.Body.String(), "locked") {
				t.Fatalf("internal error leaked: %q", w.Body.String())
			}
		})
	}
}
