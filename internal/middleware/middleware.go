package middleware

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/railtail/station-tracker/internal/utils"
)

var allowed = map[string]struct{}{
	"http://localhost:5173": {},
	"http://localhost:3000": {},
}

func CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		// Echo the origin back only if it's on our allow-list
		if _, ok := allowed[origin]; ok {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods",
				"GET, POST, PUT, PATCH, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers",
				"Content-Type, Authorization")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// AllowOrigin adds an origin to the CORS allow-list. Called from main
// for deployment-specific dashboard hosts.
func AllowOrigin(origin string) {
	allowed[origin] = struct{}{}
}

func jwtSecret() []byte {
	return []byte(os.Getenv("JWT_SECRET"))
}

// parseToken verifies an HS256 bearer token from the Authorization header
// and returns its claims.
func parseToken(r *http.Request) (jwt.MapClaims, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return nil, errors.New("no token provided")
	}

	raw := header
	if strings.HasPrefix(header, "Bearer ") {
		raw = strings.TrimPrefix(header, "Bearer ")
	}

	token, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return jwtSecret(), nil
	})
	if err != nil || !token.Valid {
		return nil, errors.New("invalid or expired token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("invalid claims")
	}
	return claims, nil
}

// StationAuth requires a station token and injects the station ID into the
// request context.
func StationAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := parseToken(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}

		stationID, ok := claims["station_id"].(string)
		if !ok || stationID == "" {
			http.Error(w, "Invalid token: missing station_id", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), utils.ContextStationIDKey, stationID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// AdminAuth requires an admin user token with role "admin".
func AdminAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := parseToken(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}

		userID, _ := claims["user_id"].(string)
		role, _ := claims["role"].(string)
		if userID == "" {
			http.Error(w, "Invalid token: missing user_id", http.StatusUnauthorized)
			return
		}
		if role != "admin" {
			http.Error(w, "Forbidden: admin access required", http.StatusForbidden)
			return
		}

		ctx := context.WithValue(r.Context(), utils.ContextAdminIDKey, userID)
		ctx = context.WithValue(ctx, utils.ContextAdminRoleKey, role)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
