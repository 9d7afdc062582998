package main

import (
	"bytes"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tallyforge/edge/internal/activation"
)

func TestParseTenantPublicKey_RejectsWrongLength(t *testing.T) {
	_, err := parseTenantPublicKey(hex.EncodeToString([]byte("short")))
	assert.Error(t, err)
}

func TestParseTenantPublicKey_RoundTrips(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	got, err := parseTenantPublicKey(hex.EncodeToString(pub))
	require.NoError(t, err)
	assert.Equal(t, pub, got)
}

func TestHandleTenantVerify_IssuesTokenOnCorrectPassword(t *testing.T) {
	hash, err := activation.HashTenantPassword("shift-pass")
	require.NoError(t, err)

	h := &handshakeHandler{
		throttle: activation.NewLoginThrottle(60),
		secret:   []byte("handshake-secret"),
		passHash: hash,
		tenantID: "tenant-1",
		tokenTTL: 10 * time.Minute,
	}

	body, _ := json.Marshal(tenantVerifyRequest{DeviceID: "device-1", Password: "shift-pass"})
	req := httptest.NewRequest(http.MethodPost, "/auth/tenant_verify", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.handleTenantVerify(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp tenantVerifyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.ActivationToken)

	tenantID, deviceID, err := activation.ParseActivationToken([]byte("handshake-secret"), resp.ActivationToken)
	require.NoError(t, err)
	assert.Equal(t, "tenant-1", tenantID)
	assert.Equal(t, "device-1", deviceID)
}

func TestHandleTenantVerify_RejectsWrongPassword(t *testing.T) {
	hash, err := activation.HashTenantPassword("shift-pass")
	require.NoError(t, err)

	h := &handshakeHandler{
		throttle: activation.NewLoginThrottle(60),
		secret:   []byte("handshake-secret"),
		passHash: hash,
		tenantID: "tenant-1",
		tokenTTL: 10 * time.Minute,
	}

	body, _ := json.Marshal(tenantVerifyRequest{DeviceID: "device-1", Password: "wrong"})
	req := httptest.NewRequest(http.MethodPost, "/auth/tenant_verify", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.handleTenantVerify(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
