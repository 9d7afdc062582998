package daemon

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tallyforge/edge/internal/activation"
	"github.com/tallyforge/edge/internal/pki"
	"github.com/tallyforge/edge/internal/trust"
)

func TestGate_WaitForActivation_UnblocksOnNotify(t *testing.T) {
	rootCA, err := pki.NewRootCA()
	require.NoError(t, err)
	tenantCA, err := rootCA.NewTenantCA("tenant-1")
	require.NoError(t, err)

	svc, err := activation.New(t.TempDir(), tenantCA.CertPEM(), tenantCA.Signer().PublicKeyBytes())
	require.NoError(t, err)

	hwFingerprint, err := pki.DeviceFingerprint()
	require.NoError(t, err)
	certPEM, keyPEM, err := tenantCA.IssueLeaf(pki.LeafProfile{
		CommonName: "device-1", TenantID: "tenant-1", DeviceID: hwFingerprint, EntityType: trust.EntityServer,
		IPSANs: []net.IP{net.ParseIP("127.0.0.1")},
	})
	require.NoError(t, err)
	fingerprint, err := pki.FingerprintSHA256(certPEM)
	require.NoError(t, err)
	binding, err := trust.NewSignedBinding(tenantCA.Signer(), "device-1", "tenant-1", hwFingerprint, fingerprint, trust.EntityServer, time.Now())
	require.NoError(t, err)

	gate := NewGate(svc, 0, nil)

	done := make(chan error, 1)
	go func() {
		done <- gate.WaitForActivation(context.Background())
	}()

	require.NoError(t, svc.Activate(&activation.Credential{Binding: *binding, CertPEM: certPEM, KeyPEM: keyPEM}))
	gate.NotifyActivated()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("WaitForActivation did not unblock after NotifyActivated")
	}
}

func TestGate_WaitForActivation_RespectsCancellation(t *testing.T) {
	svc, err := activation.New(t.TempDir(), nil, nil)
	require.NoError(t, err)

	gate := NewGate(svc, 0, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- gate.WaitForActivation(ctx)
	}()

	cancel()
	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("WaitForActivation did not return after cancellation")
	}
}
