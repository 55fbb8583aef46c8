package httpkit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"leadflow_backend/platform/apperr"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type jwtConfig struct{ secret string }

func (c jwtConfig) GetJWTAccessSecret() string { return c.secret }

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func newAuthRouter(secret string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(AuthRequired(jwtConfig{secret: secret}))
	r.GET("/ping", RequireRole("operator"), func(c *gin.Context) {
		c.String(http.StatusOK, GetIdentity(c).OperatorID().String())
	})
	return r
}

func TestAuthRequired(t *testing.T) {
	const secret = "test-secret"
	operatorID := uuid.New()

	valid := signToken(t, secret, jwt.MapClaims{
		"sub":   operatorID.String(),
		"type":  "access",
		"roles": []string{"operator"},
		"exp":   time.Now().Add(time.Hour).Unix(),
	})
	noRole := signToken(t, secret, jwt.MapClaims{
		"sub":  operatorID.String(),
		"type": "access",
		"exp":  time.Now().Add(time.Hour).Unix(),
	})
	refresh := signToken(t, secret, jwt.MapClaims{
		"sub":  operatorID.String(),
		"type": "refresh",
		"exp":  time.Now().Add(time.Hour).Unix(),
	})
	wrongSecret := signToken(t, "other", jwt.MapClaims{
		"sub":  operatorID.String(),
		"type": "access",
	})

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{name: "missing", header: "", want: http.StatusUnauthorized},
		{name: "valid", header: "Bearer " + valid, want: http.StatusOK},
		{name: "missing role", header: "Bearer " + noRole, want: http.StatusForbidden},
		{name: "refresh token rejected", header: "Bearer " + refresh, want: http.StatusUnauthorized},
		{name: "wrong secret", header: "Bearer " + wrongSecret, want: http.StatusUnauthorized},
	}

	router := newAuthRouter(secret)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/ping", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
			if tt.want == http.StatusOK && rec.Body.String() != operatorID.String() {
				t.Fatalf("body = %q, want operator id", rec.Body.String())
			}
		})
	}
}

func TestIssueAccessTokenAcceptedByAuthRequired(t *testing.T) {
	const secret = "test-secret"
	operatorID := uuid.New()

	token, err := IssueAccessToken(secret, operatorID, []string{"operator"}, time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	newAuthRouter(secret).ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Body.String() != operatorID.String() {
		t.Fatalf("status = %d body = %q", rec.Code, rec.Body.String())
	}

	if _, err := IssueAccessToken("", operatorID, nil, time.Hour); err == nil {
		t.Fatal("expected error for empty secret")
	}
}

func TestHandleErrorMapsWrappedKinds(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "not found", err: apperr.NotFound("lead not found"), want: http.StatusNotFound},
		{name: "configuration", err: apperr.Configuration("unknown sequence"), want: http.StatusUnprocessableEntity},
		{name: "transient", err: apperr.Transient("store timeout", nil), want: http.StatusServiceUnavailable},
		{name: "untyped", err: http.ErrHandlerTimeout, want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(rec)
			if !HandleError(c, tt.err) {
				t.Fatal("expected error to be handled")
			}
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestRateLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(NewIPRateLimiter(1, 1, nil).RateLimit())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	first := httptest.NewRecorder()
	r.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/", nil))
	second := httptest.NewRecorder()
	r.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/", nil))

	if first.Code != http.StatusOK || second.Code != http.StatusTooManyRequests {
		t.Fatalf("codes = %d, %d", first.Code, second.Code)
	}
}
