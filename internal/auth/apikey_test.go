package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestAPIKeyMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name   string
		key    string
		setup  func(r *http.Request)
		status int
	}{
		{"disabled", "", func(*http.Request) {}, http.StatusOK},
		{"missing", "secret", func(*http.Request) {}, http.StatusUnauthorized},
		{"wrong header", "secret", func(r *http.Request) { r.Header.Set("X-API-Key", "nope") }, http.StatusForbidden},
		{"header", "secret", func(r *http.Request) { r.Header.Set("X-API-Key", "secret") }, http.StatusOK},
		{"bearer", "secret", func(r *http.Request) { r.Header.Set("Authorization", "Bearer secret") }, http.StatusOK},
		{"query", "secret", func(r *http.Request) { r.URL.RawQuery = "api_key=secret" }, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			r.Use(APIKeyMiddleware(tt.key))
			r.GET("/v1/identities", func(c *gin.Context) { c.Status(http.StatusOK) })

			req := httptest.NewRequest(http.MethodGet, "/v1/identities", nil)
			tt.setup(req)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != tt.status {
				t.Errorf("status = %d, want %d", w.Code, tt.status)
			}
		})
	}
}
