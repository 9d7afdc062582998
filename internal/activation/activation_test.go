package activation

import (
	"context"
	"crypto/ed25519"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tallyforge/edge/internal/pki"
	"github.com/tallyforge/edge/internal/trust"
)

// issueTestCredential issues a leaf with deviceID embedded as its device_id
// extension. Pass the real pki.DeviceFingerprint() value to exercise the
// self-check success path, or any other string to exercise its failure.
func issueTestCredential(t *testing.T, rootCA *pki.CA, tenantCA *pki.CA, deviceID string) *Credential {
	t.Helper()
	certPEM, keyPEM, err := tenantCA.IssueLeaf(pki.LeafProfile{
		CommonName: "device-1", TenantID: "tenant-1", DeviceID: deviceID, EntityType: trust.EntityServer,
		IPSANs: []net.IP{net.ParseIP("127.0.0.1")},
	})
	require.NoError(t, err)

	fingerprint, err := pki.FingerprintSHA256(certPEM)
	require.NoError(t, err)

	binding, err := trust.NewSignedBinding(tenantCA.Signer(), "device-1", "tenant-1", deviceID, fingerprint, trust.EntityServer, time.Now())
	require.NoError(t, err)

	return &Credential{Binding: *binding, CertPEM: certPEM, KeyPEM: keyPEM}
}

func TestActivation_StartsSuspendedWithNoCredential(t *testing.T) {
	svc, err := New(t.TempDir(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, StateSuspended, svc.State())
}

func TestActivation_ActivatePersistsAndLoadsCredential(t *testing.T) {
	dir := t.TempDir()
	rootCA, err := pki.NewRootCA()
	require.NoError(t, err)
	tenantCA, err := rootCA.NewTenantCA("tenant-1")
	require.NoError(t, err)

	svc, err := New(dir, tenantCA.CertPEM(), tenantCA.Signer().PublicKeyBytes())
	require.NoError(t, err)

	cred := issueTestCredential(t, rootCA, tenantCA, "device-1")
	require.NoError(t, svc.Activate(cred))
	assert.Equal(t, StateActive, svc.State())

	reloaded, err := New(dir, tenantCA.CertPEM(), tenantCA.Signer().PublicKeyBytes())
	require.NoError(t, err)
	assert.Equal(t, StateActive, reloaded.State())
}

func TestActivation_CheckActivation_FailsWhenNotActivated(t *testing.T) {
	svc, err := New(t.TempDir(), nil, nil)
	require.NoError(t, err)

	err = svc.CheckActivation(context.Background(), time.Now())
	require.Error(t, err)
}

func TestActivation_CheckActivation_EntersUnboundOnTamperedBinding(t *testing.T) {
	dir := t.TempDir()
	rootCA, err := pki.NewRootCA()
	require.NoError(t, err)
	tenantCA, err := rootCA.NewTenantCA("tenant-1")
	require.NoError(t, err)

	svc, err := New(dir, tenantCA.CertPEM(), tenantCA.Signer().PublicKeyBytes())
	require.NoError(t, err)

	cred := issueTestCredential(t, rootCA, tenantCA, "device-1")
	cred.Binding.Signature = "00"
	require.NoError(t, svc.Activate(cred))

	err = svc.CheckActivation(context.Background(), time.Now())
	require.Error(t, err)
	assert.Equal(t, StateUnbound, svc.State())
	assert.Nil(t, svc.Credential())
}

func TestActivation_CheckActivation_PassesSelfCheckOnGenuineDevice(t *testing.T) {
	dir := t.TempDir()
	rootCA, err := pki.NewRootCA()
	require.NoError(t, err)
	tenantCA, err := rootCA.NewTenantCA("tenant-1")
	require.NoError(t, err)

	svc, err := New(dir, tenantCA.CertPEM(), tenantCA.Signer().PublicKeyBytes())
	require.NoError(t, err)

	hwFingerprint, err := pki.DeviceFingerprint()
	require.NoError(t, err)
	cred := issueTestCredential(t, rootCA, tenantCA, hwFingerprint)
	require.NoError(t, svc.Activate(cred))

	require.NoError(t, svc.CheckActivation(context.Background(), time.Now()))
	assert.Equal(t, StateActive, svc.State())
}

func TestActivation_CheckActivation_FailsOnForeignDeviceID(t *testing.T) {
	dir := t.TempDir()
	rootCA, err := pki.NewRootCA()
	require.NoError(t, err)
	tenantCA, err := rootCA.NewTenantCA("tenant-1")
	require.NoError(t, err)

	svc, err := New(dir, tenantCA.CertPEM(), tenantCA.Signer().PublicKeyBytes())
	require.NoError(t, err)

	cred := issueTestCredential(t, rootCA, tenantCA, "some-other-machine")
	require.NoError(t, svc.Activate(cred))

	err = svc.CheckActivation(context.Background(), time.Now())
	require.Error(t, err)
	assert.Equal(t, StateUnbound, svc.State())
}

func TestTenantKeyVerifier_RejectsWrongKey(t *testing.T) {
	wrongPub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	v := tenantKeyVerifier{wrongPub}
	assert.False(t, v.Verify([]byte("data"), "00"))
}
