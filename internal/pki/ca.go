// Package pki implements the three-level X.509 trust hierarchy: a
// process-wide self-signed root, per-tenant intermediates signed by root,
// and device-bound leaf certificates signed by a tenant intermediate.
package pki

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"time"

	"github.com/tallyforge/edge/internal/trust"
)

const (
	rootValidity = 20 * 365 * 24 * time.Hour
	leafValidity = 10 * 365 * 24 * time.Hour
)

// ErrProfileInvalid is returned by IssueLeaf when a server profile is
// missing its device binding or SAN, per spec.md §4.1.
var ErrProfileInvalid = fmt.Errorf("pki: invalid leaf profile")

// ErrChainInvalid is returned by VerifyChain when the leaf does not chain
// to the given anchor.
var ErrChainInvalid = fmt.Errorf("pki: certificate chain invalid")

// ErrExpired is returned by VerifyChain when the chain is structurally
// valid but the leaf (or an ancestor) has expired.
var ErrExpired = fmt.Errorf("pki: certificate expired")

// CA wraps a certificate (root or intermediate) together with its private
// key, which is never exported: only PEM-encoded certificates and issued
// leaf key pairs cross this package's boundary.
type CA struct {
	cert    *x509.Certificate
	certDER []byte
	priv    ed25519.PrivateKey
}

// NewRootCA creates a fresh self-signed root CA. Intended to be called
// exactly once per deployment and persisted; the spec treats the root as a
// process-wide singleton that is never rotated within scope.
func NewRootCA() (*CA, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("pki: generate root key: %w", err)
	}
	serial, err := randomSerial()
	if err != nil {
		return nil, err
	}
	now := time.Now()
	template := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: "edge-trust-root"},
		NotBefore:             now.Add(-5 * time.Minute),
		NotAfter:              now.Add(rootValidity),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
		IsCA:                  true,
		MaxPathLen:            1,
		MaxPathLenZero:        false,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, pub, priv)
	if err != nil {
		return nil, fmt.Errorf("pki: create root certificate: %w", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("pki: parse root certificate: %w", err)
	}
	return &CA{cert: cert, certDER: der, priv: priv}, nil
}

// NewTenantCA issues a new intermediate CA for tenantID, signed by root.
// Intermediates are created lazily, on first activation for a tenant.
func (root *CA) NewTenantCA(tenantID string) (*CA, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("pki: generate tenant CA key: %w", err)
	}
	serial, err := randomSerial()
	if err != nil {
		return nil, err
	}
	now := time.Now()
	template := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: fmt.Sprintf("tenant-ca-%s", tenantID)},
		NotBefore:             now.Add(-5 * time.Minute),
		NotAfter:              now.Add(rootValidity),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
		IsCA:                  true,
		MaxPathLen:            0,
		MaxPathLenZero:        true,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, root.cert, pub, root.priv)
	if err != nil {
		return nil, fmt.Errorf("pki: create tenant CA certificate: %w", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("pki: parse tenant CA certificate: %w", err)
	}
	return &CA{cert: cert, certDER: der, priv: priv}, nil
}

// LeafProfile describes a leaf certificate to be issued by a tenant CA.
type LeafProfile struct {
	CommonName string
	TenantID   string
	DeviceID   string
	EntityType trust.EntityType
	// SAN entries (IP or DNS) — required for server profiles since
	// endpoints are addressed by IP, not hostname.
	IPSANs  []net.IP
	DNSSANs []string
	// DualUse issues both server and client EKU, allowing an edge to call
	// out to other edges over the same credential.
	DualUse bool
}

func (p LeafProfile) validate() error {
	if p.TenantID == "" || p.CommonName == "" {
		return fmt.Errorf("%w: missing tenant_id or common_name", ErrProfileInvalid)
	}
	if p.EntityType == trust.EntityServer {
		if p.DeviceID == "" {
			return fmt.Errorf("%w: server leaf missing device_id", ErrProfileInvalid)
		}
		if len(p.IPSANs) == 0 && len(p.DNSSANs) == 0 {
			return fmt.Errorf("%w: server leaf missing SAN", ErrProfileInvalid)
		}
	}
	if p.EntityType != trust.EntityServer && p.EntityType != trust.EntityClient {
		return fmt.Errorf("%w: unknown entity_type %q", ErrProfileInvalid, p.EntityType)
	}
	return nil
}

// IssueLeaf signs a new leaf certificate under this (tenant) CA, embedding
// the custom tenant_id/device_id/entity_type extensions. Returns PEM-encoded
// certificate and private key; the key never leaves this call's caller.
func (ca *CA) IssueLeaf(profile LeafProfile) (certPEM, keyPEM []byte, err error) {
	if err := profile.validate(); err != nil {
		return nil, nil, err
	}
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("pki: generate leaf key: %w", err)
	}
	serial, err := randomSerial()
	if err != nil {
		return nil, nil, err
	}
	exts, err := leafExtensions(profile.TenantID, profile.DeviceID, profile.EntityType)
	if err != nil {
		return nil, nil, err
	}

	ekus := []x509.ExtKeyUsage{}
	switch {
	case profile.EntityType == trust.EntityServer && profile.DualUse:
		ekus = []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth}
	case profile.EntityType == trust.EntityServer:
		ekus = []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth}
	default:
		ekus = []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth}
	}

	now := time.Now()
	template := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: profile.CommonName},
		NotBefore:             now.Add(-5 * time.Minute),
		NotAfter:              now.Add(leafValidity),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           ekus,
		BasicConstraintsValid: true,
		IsCA:                  false,
		IPAddresses:           profile.IPSANs,
		DNSNames:              profile.DNSSANs,
		ExtraExtensions:       exts,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, ca.cert, pub, ca.priv)
	if err != nil {
		return nil, nil, fmt.Errorf("pki: create leaf certificate: %w", err)
	}
	certPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	rawKey, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, nil, fmt.Errorf("pki: marshal leaf key: %w", err)
	}
	keyPEM = pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: rawKey})
	return certPEM, keyPEM, nil
}

// CertPEM returns this CA's own certificate as PEM, for distribution as a
// trust anchor or intermediate bundle.
func (ca *CA) CertPEM() []byte {
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: ca.certDER})
}

// Signer adapts this CA's private key to the trust.Signer interface, so a
// tenant CA can directly sign SignedBinding/SignedSubscription envelopes.
func (ca *CA) Signer() trust.Signer {
	return trust.NewEd25519SignerFromKey(ca.priv, ca.cert.Subject.CommonName)
}

// VerifyChain checks that leafPEM chains to anchorPEM and has not expired.
// Hostname verification is intentionally skipped — endpoints in this
// system are IP-addressed, not DNS-addressed.
func VerifyChain(leafPEM, anchorPEM []byte) error {
	leaf, err := parseCertPEM(leafPEM)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrChainInvalid, err)
	}
	anchor, err := parseCertPEM(anchorPEM)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrChainInvalid, err)
	}
	pool := x509.NewCertPool()
	pool.AddCert(anchor)
	_, err = leaf.Verify(x509.VerifyOptions{
		Roots:     pool,
		KeyUsages: []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	})
	if err != nil {
		if isExpiryError(err) {
			return ErrExpired
		}
		return fmt.Errorf("%w: %v", ErrChainInvalid, err)
	}
	return nil
}

func isExpiryError(err error) bool {
	_, ok := err.(x509.CertificateInvalidError)
	if !ok {
		return false
	}
	cie := err.(x509.CertificateInvalidError)
	return cie.Reason == x509.Expired
}

// ParseLeaf extracts the fields an activation flow needs to check a leaf
// cert against a presented SignedBinding without holding the tenant CA.
func ParseLeaf(certPEM []byte) (*LeafIdentity, error) {
	cert, err := parseCertPEM(certPEM)
	if err != nil {
		return nil, fmt.Errorf("pki: parse leaf: %w", err)
	}
	tenantID, deviceID, entityType, err := extensionsFromCert(cert)
	if err != nil {
		return nil, err
	}
	fp, err := FingerprintSHA256(cert.Raw)
	if err != nil {
		return nil, err
	}
	return &LeafIdentity{
		TenantID:       tenantID,
		DeviceID:       deviceID,
		EntityType:     entityType,
		FingerprintSHA: fp,
		NotAfter:       cert.NotAfter,
	}, nil
}

func parseCertPEM(certPEM []byte) (*x509.Certificate, error) {
	block, _ := pem.Decode(certPEM)
	if block == nil {
		return nil, fmt.Errorf("pki: not PEM-encoded")
	}
	return x509.ParseCertificate(block.Bytes)
}

func randomSerial() (*big.Int, error) {
	limit := new(big.Int).Lsh(big.NewInt(1), 128)
	serial, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return nil, fmt.Errorf("pki: generate serial: %w", err)
	}
	return serial, nil
}
