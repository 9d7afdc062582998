package pki

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tallyforge/edge/internal/trust"
)

func issueTestHierarchy(t *testing.T) (root, tenantCA *CA) {
	t.Helper()
	root, err := NewRootCA()
	require.NoError(t, err)
	tenantCA, err = root.NewTenantCA("acme")
	require.NoError(t, err)
	return root, tenantCA
}

func TestIssueLeaf_ServerProfile(t *testing.T) {
	_, tenantCA := issueTestHierarchy(t)

	certPEM, keyPEM, err := tenantCA.IssueLeaf(LeafProfile{
		CommonName: "edge-server-1",
		TenantID:   "acme",
		DeviceID:   "device-xyz",
		EntityType: trust.EntityServer,
		IPSANs:     []net.IP{net.ParseIP("10.0.0.5")},
		DualUse:    true,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, certPEM)
	assert.NotEmpty(t, keyPEM)

	identity, err := ParseLeaf(certPEM)
	require.NoError(t, err)
	assert.Equal(t, "acme", identity.TenantID)
	assert.Equal(t, "device-xyz", identity.DeviceID)
	assert.Equal(t, trust.EntityServer, identity.EntityType)
}

func TestIssueLeaf_ServerProfile_RequiresDeviceID(t *testing.T) {
	_, tenantCA := issueTestHierarchy(t)

	_, _, err := tenantCA.IssueLeaf(LeafProfile{
		CommonName: "edge-server-1",
		TenantID:   "acme",
		EntityType: trust.EntityServer,
		IPSANs:     []net.IP{net.ParseIP("10.0.0.5")},
	})
	assert.ErrorIs(t, err, ErrProfileInvalid)
}

func TestIssueLeaf_ServerProfile_RequiresSAN(t *testing.T) {
	_, tenantCA := issueTestHierarchy(t)

	_, _, err := tenantCA.IssueLeaf(LeafProfile{
		CommonName: "edge-server-1",
		TenantID:   "acme",
		DeviceID:   "device-xyz",
		EntityType: trust.EntityServer,
	})
	assert.ErrorIs(t, err, ErrProfileInvalid)
}

func TestIssueLeaf_ClientProfile_NoDeviceRequired(t *testing.T) {
	_, tenantCA := issueTestHierarchy(t)

	certPEM, _, err := tenantCA.IssueLeaf(LeafProfile{
		CommonName: "pos-client-1",
		TenantID:   "acme",
		EntityType: trust.EntityClient,
	})
	require.NoError(t, err)

	identity, err := ParseLeaf(certPEM)
	require.NoError(t, err)
	assert.Equal(t, trust.EntityClient, identity.EntityType)
}

func TestVerifyChain_Valid(t *testing.T) {
	root, tenantCA := issueTestHierarchy(t)

	certPEM, _, err := tenantCA.IssueLeaf(LeafProfile{
		CommonName: "edge-server-1",
		TenantID:   "acme",
		DeviceID:   "device-xyz",
		EntityType: trust.EntityServer,
		IPSANs:     []net.IP{net.ParseIP("10.0.0.5")},
	})
	require.NoError(t, err)

	err = VerifyChain(certPEM, tenantCA.CertPEM())
	assert.NoError(t, err)

	_ = root
}

func TestVerifyChain_WrongAnchorFails(t *testing.T) {
	root, tenantCA := issueTestHierarchy(t)
	otherRoot, err := NewRootCA()
	require.NoError(t, err)
	_ = root

	certPEM, _, err := tenantCA.IssueLeaf(LeafProfile{
		CommonName: "edge-server-1",
		TenantID:   "acme",
		DeviceID:   "device-xyz",
		EntityType: trust.EntityServer,
		IPSANs:     []net.IP{net.ParseIP("10.0.0.5")},
	})
	require.NoError(t, err)

	err = VerifyChain(certPEM, otherRoot.CertPEM())
	assert.ErrorIs(t, err, ErrChainInvalid)
}

func TestFingerprintSHA256_StableForSameCert(t *testing.T) {
	_, tenantCA := issueTestHierarchy(t)
	certPEM, _, err := tenantCA.IssueLeaf(LeafProfile{
		CommonName: "pos-client-1",
		TenantID:   "acme",
		EntityType: trust.EntityClient,
	})
	require.NoError(t, err)

	fp1, err := FingerprintSHA256(certPEM)
	require.NoError(t, err)
	fp2, err := FingerprintSHA256(certPEM)
	require.NoError(t, err)
	assert.Equal(t, fp1, fp2)
	assert.Len(t, fp1, 64)
}

func TestCATenantSigner_SignsBindings(t *testing.T) {
	_, tenantCA := issueTestHierarchy(t)
	signer := tenantCA.Signer()

	sig, err := signer.Sign([]byte("hello"))
	require.NoError(t, err)
	assert.True(t, signer.Verify([]byte("hello"), sig))
	assert.False(t, signer.Verify([]byte("tampered"), sig))
}
