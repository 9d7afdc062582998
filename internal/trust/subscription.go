package trust

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
)

// SubscriptionStatus is the tenant's billing state as seen by the edge.
type SubscriptionStatus string

const (
	SubscriptionActive   SubscriptionStatus = "Active"
	SubscriptionPastDue  SubscriptionStatus = "PastDue"
	SubscriptionInactive SubscriptionStatus = "Inactive"
	SubscriptionExpired  SubscriptionStatus = "Expired"
	SubscriptionCanceled SubscriptionStatus = "Canceled"
	SubscriptionUnpaid   SubscriptionStatus = "Unpaid"
)

// SignatureLifetime and grace bound how long an edge may operate on a
// subscription envelope it cannot reach the cloud to refresh: together
// they give at least 10 days of offline tolerance before mutating
// operations are forcibly blocked.
const (
	SignatureLifetime = 7 * 24 * time.Hour
	SignatureGrace    = 3 * 24 * time.Hour
)

// SignedSubscription is the offline-verifiable envelope describing what a
// tenant is entitled to. Plan is the plan name (e.g. "pro", "enterprise");
// PlanVersion is a semver version that FeatureEnabled checks against
// minimum-version feature gates such as "feature X requires plan >= 2.3.0".
type SignedSubscription struct {
	TenantID             string             `json:"tenant_id"`
	Status               SubscriptionStatus `json:"status"`
	Plan                 string             `json:"plan"`
	PlanVersion          string             `json:"plan_version"`
	Features             []string           `json:"features"`
	MaxStores            int                `json:"max_stores"`
	ExpiresAt            time.Time          `json:"expires_at"`
	SignatureValidUntil  time.Time          `json:"signature_valid_until"`
	Signature            string             `json:"signature"`
}

func (s *SignedSubscription) signingString() string {
	features := strings.Join(s.Features, ",")
	return strings.Join([]string{
		s.TenantID,
		string(s.Status),
		s.Plan,
		s.PlanVersion,
		features,
		strconv.Itoa(s.MaxStores),
		s.ExpiresAt.UTC().Format(time.RFC3339Nano),
		s.SignatureValidUntil.UTC().Format(time.RFC3339Nano),
	}, "|")
}

// NewSignedSubscription issues a subscription envelope with its signature
// valid for SignatureLifetime from now.
func NewSignedSubscription(signer Signer, tenantID string, status SubscriptionStatus, plan, planVersion string, features []string, maxStores int, expiresAt, now time.Time) (*SignedSubscription, error) {
	s := &SignedSubscription{
		TenantID:            tenantID,
		Status:              status,
		Plan:                plan,
		PlanVersion:         planVersion,
		Features:            features,
		MaxStores:           maxStores,
		ExpiresAt:           expiresAt,
		SignatureValidUntil: now.Add(SignatureLifetime),
	}
	sig, err := signer.Sign([]byte(s.signingString()))
	if err != nil {
		return nil, fmt.Errorf("trust: sign subscription: %w", err)
	}
	s.Signature = sig
	return s, nil
}

// Verify checks the envelope's signature only; it does not evaluate
// staleness or status — see IsUsable.
func (s *SignedSubscription) Verify(signer Signer) bool {
	return signer.Verify([]byte(s.signingString()), s.Signature)
}

// IsUsable reports whether, as of now, the edge may still treat this
// subscription as authoritative for gating mutating operations: the
// signature must not be past its validity window plus grace, the tenant
// must not be past ExpiresAt, and Status must be Active or PastDue (a
// tenant mid-dunning still gets to operate).
func (s *SignedSubscription) IsUsable(now time.Time) bool {
	if now.After(s.SignatureValidUntil.Add(SignatureGrace)) {
		return false
	}
	if now.After(s.ExpiresAt) {
		return false
	}
	switch s.Status {
	case SubscriptionActive, SubscriptionPastDue:
		return true
	default:
		return false
	}
}

// InGracePeriod reports whether the signature's primary lifetime has
// elapsed but the envelope is still within its offline grace window.
func (s *SignedSubscription) InGracePeriod(now time.Time) bool {
	return now.After(s.SignatureValidUntil) && !now.After(s.SignatureValidUntil.Add(SignatureGrace))
}

// FeatureEnabled reports whether feature is present in the plan's feature
// list, optionally gated on a minimum plan version expressed as a semver
// constraint (e.g. ">= 2.3.0"). An empty constraint only checks presence.
func (s *SignedSubscription) FeatureEnabled(feature, minVersionConstraint string) (bool, error) {
	found := false
	for _, f := range s.Features {
		if f == feature {
			found = true
			break
		}
	}
	if !found {
		return false, nil
	}
	if minVersionConstraint == "" {
		return true, nil
	}
	v, err := semver.NewVersion(s.PlanVersion)
	if err != nil {
		return false, fmt.Errorf("trust: invalid plan_version %q: %w", s.PlanVersion, err)
	}
	c, err := semver.NewConstraint(minVersionConstraint)
	if err != nil {
		return false, fmt.Errorf("trust: invalid feature constraint %q: %w", minVersionConstraint, err)
	}
	return c.Check(v), nil
}
