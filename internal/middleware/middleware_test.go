package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/railtail/station-tracker/internal/middleware"
	"github.com/railtail/station-tracker/internal/utils"
)

func TestMain(m *testing.M) {
	os.Setenv("JWT_SECRET", "test-secret")
	os.Exit(m.Run())
}

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

// callWithAuth runs a 200-OK inner handler through the given middleware,
// optionally setting an Authorization header, and records the response.
func callWithAuth(t *testing.T, mw func(http.Handler) http.Handler, authHeader string, inner http.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()

	if inner == nil {
		inner = func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}
	}

	handler := mw(inner)
	req := httptest.NewRequest(http.MethodPost, "/test", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestStationAuth_MissingHeader(t *testing.T) {
	rec := callWithAuth(t, middleware.StationAuth, "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestStationAuth_MalformedToken(t *testing.T) {
	rec := callWithAuth(t, middleware.StationAuth, "Bearer not-a-jwt", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestStationAuth_ExpiredToken(t *testing.T) {
	token := signToken(t, jwt.MapClaims{
		"station_id": "85003",
		"exp":        time.Now().Add(-time.Hour).Unix(),
	})
	rec := callWithAuth(t, middleware.StationAuth, "Bearer "+token, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestStationAuth_InjectsStationID(t *testing.T) {
	token := signToken(t, jwt.MapClaims{
		"station_id": "85003",
		"exp":        time.Now().Add(time.Hour).Unix(),
	})

	var got string
	inner := func(w http.ResponseWriter, r *http.Request) {
		got, _ = utils.GetStationIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}

	rec := callWithAuth(t, middleware.StationAuth, "Bearer "+token, inner)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got != "85003" {
		t.Errorf("station ID in context = %q, want 85003", got)
	}
}

// The original accepted raw tokens without the Bearer prefix; keep that.
func TestStationAuth_AcceptsRawToken(t *testing.T) {
	token := signToken(t, jwt.MapClaims{
		"station_id": "85003",
		"exp":        time.Now().Add(time.Hour).Unix(),
	})
	rec := callWithAuth(t, middleware.StationAuth, token, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 for raw token, got %d", rec.Code)
	}
}

func TestAdminAuth_RejectsNonAdminRole(t *testing.T) {
	token := signToken(t, jwt.MapClaims{
		"user_id": "u-1",
		"role":    "viewer",
		"exp":     time.Now().Add(time.Hour).Unix(),
	})
	rec := callWithAuth(t, middleware.AdminAuth, "Bearer "+token, nil)
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", rec.Code)
	}
}

func TestAdminAuth_AllowsAdmin(t *testing.T) {
	token := signToken(t, jwt.MapClaims{
		"user_id": "u-1",
		"role":    "admin",
		"exp":     time.Now().Add(time.Hour).Unix(),
	})
	rec := callWithAuth(t, middleware.AdminAuth, "Bearer "+token, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestCORSMiddleware_EchoesAllowedOrigin(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := middleware.CORSMiddleware(inner)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Errorf("Allow-Origin = %q, want echoed origin", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("Allow-Origin = %q for unlisted origin, want empty", got)
	}
}

func TestCORSMiddleware_PreflightShortCircuits(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("preflight must not reach the inner handler")
	})
	handler := middleware.CORSMiddleware(inner)

	req := httptest.NewRequest(http.MethodOptions, "/", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}
	if !strings.Contains(rec.Header().Get("Access-Control-Allow-Methods"), "POST") {
		t.Errorf("preflight missing Allow-Methods")
	}
}
