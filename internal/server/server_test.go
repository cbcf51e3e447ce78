package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ShravaniMogali/4GB-sub001/internal/config"
	"github.com/ShravaniMogali/4GB-sub001/internal/handlers"
	"github.com/ShravaniMogali/4GB-sub001/internal/models"
)

func TestFrameworkErrorsUseErrorResponse(t *testing.T) {
	s := NewServer(&config.Config{Server: config.ServerConfig{Host: "127.0.0.1", Port: 0}}, handlers.NewHandlers(nil, nil, nil))

	tests := []struct {
		name   string
		method string
		path   string
		status int
		class  string
	}{
		{name: "unknown route", method: http.MethodGet, path: "/nope", status: http.StatusNotFound, class: models.ErrorNotFound},
		{name: "wrong method", method: http.MethodDelete, path: "/principals", status: http.StatusMethodNotAllowed, class: models.ErrorValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			s.Echo().ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d", rec.Code, tt.status)
			}
			var resp models.ErrorResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decoding %q: %v", rec.Body, err)
			}
			if resp.Error != tt.class || resp.Code != tt.status {
				t.Errorf("body = %+v", resp)
			}
			if rec.Header().Get("X-Request-Id") == "" {
				t.Error("missing request id header")
			}
		})
	}
}
