package activation

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// HashTenantPassword hashes the tenant_verify activation password the
// auth server stores, so a leaked database never exposes the plaintext
// password a store manager types during kiosk setup.
func HashTenantPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("activation: hash tenant password: %w", err)
	}
	return string(hash), nil
}

// VerifyTenantPassword checks a tenant_verify attempt against its stored
// hash.
func VerifyTenantPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
