package router

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	apphttp "leadflow_backend/internal/http"
	"leadflow_backend/platform/httpkit"
	"leadflow_backend/platform/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const testSecret = "router-secret"

type testConfig struct{}

func (testConfig) GetHTTPAddr() string        { return ":0" }
func (testConfig) GetCORSAllowAll() bool      { return false }
func (testConfig) GetCORSOrigins() []string   { return []string{"https://crm.example.com"} }
func (testConfig) GetCORSAllowCreds() bool    { return false }
func (testConfig) GetJWTAccessSecret() string { return testSecret }

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

type pingModule struct{}

func (pingModule) Name() string { return "ping" }

func (pingModule) RegisterRoutes(ctx *apphttp.RouterContext) {
	ctx.Protected.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "operator") })
	ctx.Admin.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "admin") })
}

func newEngine(health apphttp.HealthChecker) *gin.Engine {
	gin.SetMode(gin.TestMode)
	return New(&apphttp.App{
		Config:  testConfig{},
		Logger:  logger.Discard(),
		Health:  health,
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("ok 1\n")) }),
		Modules: []apphttp.Module{pingModule{}},
	})
}

func token(t *testing.T, roles ...string) string {
	t.Helper()
	tok, err := httpkit.IssueAccessToken(testSecret, uuid.New(), roles, time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return tok
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name   string
		health apphttp.HealthChecker
		want   int
	}{
		{name: "no checker", want: http.StatusOK},
		{name: "database up", health: pinger{}, want: http.StatusOK},
		{name: "database down", health: pinger{err: errors.New("down")}, want: http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			newEngine(tt.health).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestMetricsMounted(t *testing.T) {
	rec := httptest.NewRecorder()
	newEngine(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "ok 1\n" {
		t.Fatalf("status = %d body = %q", rec.Code, rec.Body.String())
	}
}

func TestRouteGroups(t *testing.T) {
	tests := []struct {
		name  string
		path  string
		roles []string
		want  int
	}{
		{name: "anonymous operator route", path: "/api/v1/ping", want: http.StatusUnauthorized},
		{name: "operator route", path: "/api/v1/ping", roles: []string{"operator"}, want: http.StatusOK},
		{name: "admin route without admin role", path: "/api/v1/admin/ping", roles: []string{"operator"}, want: http.StatusForbidden},
		{name: "admin route", path: "/api/v1/admin/ping", roles: []string{"operator", "admin"}, want: http.StatusOK},
	}
	engine := newEngine(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.roles != nil {
				req.Header.Set("Authorization", "Bearer "+token(t, tt.roles...))
			}
			rec := httptest.NewRecorder()
			engine.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}
