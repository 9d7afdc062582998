package pki

import (
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"fmt"
	"time"

	"github.com/tallyforge/edge/internal/trust"
)

// Custom leaf-certificate extension OIDs, under a private enterprise arc.
// Each carries a UTF8String value so it round-trips through asn1.Marshal
// without a custom ASN.1 type.
var (
	oidTenantID   = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 57169, 1, 1}
	oidDeviceID   = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 57169, 1, 2}
	oidEntityType = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 57169, 1, 3}
)

func utf8Extension(oid asn1.ObjectIdentifier, value string) (pkix.Extension, error) {
	der, err := asn1.MarshalWithParams(value, "utf8")
	if err != nil {
		return pkix.Extension{}, fmt.Errorf("pki: marshal extension %s: %w", oid, err)
	}
	return pkix.Extension{Id: oid, Critical: false, Value: der}, nil
}

func readUTF8Extension(exts []pkix.Extension, oid asn1.ObjectIdentifier) (string, bool, error) {
	for _, e := range exts {
		if !e.Id.Equal(oid) {
			continue
		}
		var s string
		if _, err := asn1.UnmarshalWithParams(e.Value, &s, "utf8"); err != nil {
			return "", false, fmt.Errorf("pki: unmarshal extension %s: %w", oid, err)
		}
		return s, true, nil
	}
	return "", false, nil
}

// leafExtensions builds the {tenant_id, device_id, entity_type} custom
// extension set spec.md §3 requires on every leaf certificate.
func leafExtensions(tenantID, deviceID string, entityType trust.EntityType) ([]pkix.Extension, error) {
	exts := make([]pkix.Extension, 0, 3)
	tenantExt, err := utf8Extension(oidTenantID, tenantID)
	if err != nil {
		return nil, err
	}
	deviceExt, err := utf8Extension(oidDeviceID, deviceID)
	if err != nil {
		return nil, err
	}
	entityExt, err := utf8Extension(oidEntityType, string(entityType))
	if err != nil {
		return nil, err
	}
	return append(exts, tenantExt, deviceExt, entityExt), nil
}

// LeafIdentity is the set of fields extracted back out of a leaf's custom
// extensions by ParseLeaf.
type LeafIdentity struct {
	TenantID       string
	DeviceID       string
	EntityType     trust.EntityType
	FingerprintSHA string
	NotAfter       time.Time
}

func extensionsFromCert(cert *x509.Certificate) (tenantID, deviceID string, entityType trust.EntityType, err error) {
	tenantID, _, err = readUTF8Extension(cert.Extensions, oidTenantID)
	if err != nil {
		return "", "", "", err
	}
	deviceID, _, err = readUTF8Extension(cert.Extensions, oidDeviceID)
	if err != nil {
		return "", "", "", err
	}
	raw, _, err := readUTF8Extension(cert.Extensions, oidEntityType)
	if err != nil {
		return "", "", "", err
	}
	return tenantID, deviceID, trust.EntityType(raw), nil
}
