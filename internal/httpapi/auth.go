package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Context key for the authenticated device
type contextKey string

const deviceContextKey contextKey = "device"

// sessionClaims represents the claims in a device session token.
// Sessions are anonymous, one per browser device, created on first
// load with no identifying information.
type sessionClaims struct {
	jwt.RegisteredClaims
	DeviceID string `json:"device_id"`
}

// withAuth is middleware that requires a valid device session token
func (r *Router) withAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		authHeader := req.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, `{"error": "missing authorization header"}`, http.StatusUnauthorized)
			return
		}

		// Expect "Bearer <token>"
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			http.Error(w, `{"error": "invalid authorization format"}`, http.StatusUnauthorized)
			return
		}

		deviceID, err := r.parseToken(parts[1])
		if err != nil {
			http.Error(w, `{"error": "invalid token"}`, http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(req.Context(), deviceContextKey, deviceID)
		next.ServeHTTP(w, req.WithContext(ctx))
	}
}

// getDeviceID extracts the authenticated device ID from context
func getDeviceID(ctx context.Context) string {
	deviceID, _ := ctx.Value(deviceContextKey).(string)
	return deviceID
}

// generateToken creates a new session token for a device
func (r *Router) generateToken(deviceID string) (string, time.Time, error) {
	expiresAt := time.Now().Add(r.cfg.JWTExpiry)

	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   deviceID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		DeviceID: deviceID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(r.cfg.JWTSecret))
	if err != nil {
		return "", time.Time{}, err
	}

	return tokenString, expiresAt, nil
}

// parseToken validates a session token and returns the device ID
func (r *Router) parseToken(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &sessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(r.cfg.JWTSecret), nil
	})
	if err != nil {
		return "", err
	}
	if !token.Valid {
		return "", fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(*sessionClaims)
	if !ok || claims.DeviceID == "" {
		return "", fmt.Errorf("invalid token claims")
	}

	return claims.DeviceID, nil
}

// handleCreateSession issues an anonymous device session token
func (r *Router) handleCreateSession(w http.ResponseWriter, req *http.Request) {
	deviceID := uuid.NewString()

	token, expiresAt, err := r.generateToken(deviceID)
	if err != nil {
		r.logger.Printf("auth: failed to generate token: %v", err)
		captureError(req, err, "failed to generate session token")
		http.Error(w, `{"error": "failed to create session"}`, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"token":      token,
		"device_id":  deviceID,
		"expires_at": expiresAt.Format(time.RFC3339),
	})
}
