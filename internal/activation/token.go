package activation

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// tokenClaims is the short-lived activation handshake token: it proves to
// the auth server that a device initiated an activation request, without
// granting any longer-lived access.
type tokenClaims struct {
	jwt.RegisteredClaims
	DeviceID string `json:"device_id"`
	TenantID string `json:"tenant_id"`
}

// IssueActivationToken mints a short-lived (ttl) JWT binding deviceID to
// tenantID, signed with HMAC-SHA256 over the auth server's shared secret.
// This is deliberately separate from the ed25519 SignedBinding/leaf
// certificate machinery: the token only needs to survive one handshake
// round-trip, so a lighter-weight signing scheme fits.
func IssueActivationToken(secret []byte, tenantID, deviceID string, ttl time.Duration, now time.Time) (string, error) {
	claims := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Subject:   deviceID,
		},
		DeviceID: deviceID,
		TenantID: tenantID,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("activation: sign activation token: %w", err)
	}
	return signed, nil
}

// ParseActivationToken validates and decodes an activation token issued by
// IssueActivationToken, rejecting expired tokens and any algorithm other
// than HMAC-SHA256.
func ParseActivationToken(secret []byte, tokenStr string) (tenantID, deviceID string, err error) {
	var claims tokenClaims
	_, err = jwt.ParseWithClaims(tokenStr, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return "", "", fmt.Errorf("activation: parse activation token: %w", err)
	}
	return claims.TenantID, claims.DeviceID, nil
}
