package restapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// sessionTTL is how long a login token is valid before the kiosk app must
// re-authenticate; short enough that a stolen session token left on a
// shared terminal ages out within a shift.
const sessionTTL = 12 * time.Hour

type sessionClaims struct {
	jwt.RegisteredClaims
	DeviceID string `json:"device_id"`
}

type loginRequest struct {
	DeviceID string `json:"device_id"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
	User  string `json:"user"`
}

// handleLogin authenticates a tenant_verify password against the edge's
// stored hash, throttled per device so a stolen kiosk can't be brute
// forced. Requires a verified client certificate (see requireClientCert).
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.DeviceID == "" {
		writeError(w, http.StatusBadRequest, "device_id required")
		return
	}

	if s.Throttle != nil {
		if err := s.Throttle.Reserve(req.DeviceID); err != nil {
			writeError(w, http.StatusTooManyRequests, err.Error())
			return
		}
	}

	if !s.verifyPassword(s.TenantPasswordHash, req.Password) {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	now := time.Now()
	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(sessionTTL)),
			Subject:   req.DeviceID,
		},
		DeviceID: req.DeviceID,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.JWTSecret)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to issue session token")
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{Token: token, User: req.DeviceID})
}
