package route

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/kipp7/landslide-monitoring-v2-sub006/internal/api/http/handler"
)

func TestSetupRouter(t *testing.T) {
	t.Parallel()

	router := SetupRouter(zap.NewNop(), handler.NewHealthHandler(zap.NewNop(), "telemetry-dlq-recorder"))

	tests := []struct {
		method   string
		path     string
		wantCode int
		wantBody string
	}{
		{method: http.MethodGet, path: "/healthz", wantCode: http.StatusOK, wantBody: "telemetry-dlq-recorder"},
		{method: http.MethodGet, path: "/readyz", wantCode: http.StatusOK},
		{method: http.MethodGet, path: "/metrics", wantCode: http.StatusOK, wantBody: "go_goroutines"},
		{method: http.MethodPost, path: "/healthz", wantCode: http.StatusMethodNotAllowed},
		{method: http.MethodGet, path: "/nope", wantCode: http.StatusNotFound, wantBody: "page not found"},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			t.Parallel()

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(tt.method, tt.path, nil))

			if w.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantCode)
			}
			if tt.wantBody != "" && !strings.Contains(w.Body.String(), tt.wantBody) {
				t.Errorf("body = %s, want it to contain %s", w.Body.String(), tt.wantBody)
			}
		})
	}
}
