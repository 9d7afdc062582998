package trust

import (
	"fmt"
	"strings"
	"time"
)

// EntityType distinguishes a server leaf from a client leaf; it is carried
// both in the certificate's custom extension and in the binding so the two
// can be cross-checked.
type EntityType string

const (
	EntityServer EntityType = "server"
	EntityClient EntityType = "client"
)

// SignedBinding is the immutable, offline-verifiable proof that a given
// entity, on a given device, was approved by a tenant's authority. Only
// LastVerifiedAt and Signature change across a refresh; every other field
// is frozen at issuance.
type SignedBinding struct {
	EntityID        string     `json:"entity_id"`
	TenantID        string     `json:"tenant_id"`
	DeviceID        string     `json:"device_id"`
	CertFingerprint string     `json:"cert_fingerprint_sha256"`
	EntityType      EntityType `json:"entity_type"`
	IssuedAt        time.Time  `json:"issued_at"`
	LastVerifiedAt  time.Time  `json:"last_verified_at"`
	Signature       string     `json:"signature"`
}

// signingString builds the canonical concatenation spec.md fixes for a
// binding's signature: entity_id|tenant_id|device_id|fingerprint|entity_type|issued_at|last_verified_at.
// Timestamps are rendered RFC3339Nano so the string is stable regardless of
// the monotonic-clock reading attached to a time.Time in memory.
func (b *SignedBinding) signingString() string {
	return strings.Join([]string{
		b.EntityID,
		b.TenantID,
		b.DeviceID,
		b.CertFingerprint,
		string(b.EntityType),
		b.IssuedAt.UTC().Format(time.RFC3339Nano),
		b.LastVerifiedAt.UTC().Format(time.RFC3339Nano),
	}, "|")
}

// NewSignedBinding issues a fresh binding, signed by the tenant's
// intermediate CA signer. IssuedAt and LastVerifiedAt start equal.
func NewSignedBinding(signer Signer, entityID, tenantID, deviceID, fingerprint string, entityType EntityType, now time.Time) (*SignedBinding, error) {
	b := &SignedBinding{
		EntityID:        entityID,
		TenantID:        tenantID,
		DeviceID:        deviceID,
		CertFingerprint: fingerprint,
		EntityType:      entityType,
		IssuedAt:        now,
		LastVerifiedAt:  now,
	}
	sig, err := signer.Sign([]byte(b.signingString()))
	if err != nil {
		return nil, fmt.Errorf("trust: sign binding: %w", err)
	}
	b.Signature = sig
	return b, nil
}

// Verify checks the binding's signature against the issuing tenant CA's
// public key. It does not check expiry or revocation — those are the
// activation daemon's concern.
func (b *SignedBinding) Verify(signer Signer) bool {
	return signer.Verify([]byte(b.signingString()), b.Signature)
}

// Refresh produces a new binding with LastVerifiedAt advanced to now and a
// fresh signature; EntityID, TenantID, DeviceID, CertFingerprint, and
// EntityType are carried over unchanged, matching the "entity/tenant/device
// fields are frozen" refresh rule.
func (b *SignedBinding) Refresh(signer Signer, now time.Time) (*SignedBinding, error) {
	if now.Before(b.LastVerifiedAt) {
		return nil, fmt.Errorf("trust: refresh timestamp %s precedes last_verified_at %s", now, b.LastVerifiedAt)
	}
	next := &SignedBinding{
		EntityID:        b.EntityID,
		TenantID:        b.TenantID,
		DeviceID:        b.DeviceID,
		CertFingerprint: b.CertFingerprint,
		EntityType:      b.EntityType,
		IssuedAt:        b.IssuedAt,
		LastVerifiedAt:  now,
	}
	sig, err := signer.Sign([]byte(next.signingString()))
	if err != nil {
		return nil, fmt.Errorf("trust: sign refreshed binding: %w", err)
	}
	next.Signature = sig
	return next, nil
}
