// Package activation implements the edge server's activation/binding state
// machine: an edge starts Suspended with no trust material, activates by
// exchanging a tenant-issued SignedBinding for a leaf certificate, and
// self-checks that binding (cert chain, hardware fingerprint, signature,
// clock) before ever opening its mTLS listener. Grounded on
// original_source/edge-server/src/services/activation.rs's
// check_activation/self_check/enter_unbound_state flow.
package activation

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tallyforge/edge/internal/pki"
	"github.com/tallyforge/edge/internal/trust"
)

// State is the activation lifecycle of one edge-server process.
type State string

const (
	StateSuspended  State = "Suspended"
	StateActivating State = "Activating"
	StateActive     State = "Active"
	StateUnbound    State = "Unbound"
)

// Credential is the persisted activation artifact: the binding the tenant
// signed for this device plus the leaf certificate/key it was issued.
type Credential struct {
	Binding  trust.SignedBinding `json:"binding"`
	CertPEM  []byte              `json:"cert_pem"`
	KeyPEM   []byte              `json:"key_pem"`
}

// Service owns the activation state machine for one edge-server process.
type Service struct {
	certDir    string
	anchorPEM  []byte
	tenantKey  ed25519.PublicKey

	mu         sync.RWMutex
	state      State
	credential *Credential
}

// New loads any cached credential from certDir (a missing file is not an
// error — the service simply starts Suspended). anchorPEM is the tenant CA
// certificate that the self-check verifies the leaf against; New itself
// does not verify it.
func New(certDir string, anchorPEM []byte, tenantKey ed25519.PublicKey) (*Service, error) {
	s := &Service{certDir: certDir, anchorPEM: anchorPEM, tenantKey: tenantKey, state: StateSuspended}
	cred, err := loadCredential(certDir)
	if err != nil {
		return nil, fmt.Errorf("activation: load cached credential: %w", err)
	}
	if cred != nil {
		s.credential = cred
		s.state = StateActive
	}
	return s, nil
}

func credentialPath(certDir string) string {
	return filepath.Join(certDir, "credential.json")
}

func loadCredential(certDir string) (*Credential, error) {
	raw, err := os.ReadFile(credentialPath(certDir))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var cred Credential
	if err := json.Unmarshal(raw, &cred); err != nil {
		return nil, fmt.Errorf("decode credential.json: %w", err)
	}
	return &cred, nil
}

func (s *Service) saveCredential(cred *Credential) error {
	raw, err := json.MarshalIndent(cred, "", "  ")
	if err != nil {
		return fmt.Errorf("activation: encode credential: %w", err)
	}
	if err := os.MkdirAll(s.certDir, 0o700); err != nil {
		return fmt.Errorf("activation: create cert dir: %w", err)
	}
	return os.WriteFile(credentialPath(s.certDir), raw, 0o600)
}

// State returns the current activation state.
func (s *Service) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Activate binds a freshly issued credential to this device and persists
// it, transitioning Suspended/Unbound -> Active.
func (s *Service) Activate(cred *Credential) error {
	if err := s.saveCredential(cred); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.credential = cred
	s.state = StateActive
	return nil
}

// Credential returns the active credential, or nil if not activated.
func (s *Service) Credential() *Credential {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.credential
}

// CheckActivation runs the full self-check and returns nil only if the
// edge is activated and every check passes. On any self-check failure it
// wipes the on-disk credential and transitions to Unbound, mirroring
// enter_unbound_state's "clean up corrupted data, ready for reactivation"
// behavior — a failed self-check must never leave stale trust material
// on disk for a later process to trust blindly.
func (s *Service) CheckActivation(ctx context.Context, now time.Time) error {
	s.mu.RLock()
	cred := s.credential
	state := s.state
	s.mu.RUnlock()

	if state != StateActive || cred == nil {
		return errors.New("activation: not activated")
	}

	if err := s.selfCheck(cred, now); err != nil {
		s.enterUnboundState()
		return fmt.Errorf("activation: self-check failed: %w", err)
	}
	return nil
}

// selfCheck runs the five checks that must all pass before an edge is
// trusted to serve mutating APIs: chain validity, the cert's own
// fingerprint matching what the tenant signed into the binding, the
// device_id embedded in the leaf matching this machine's hardware
// fingerprint, the binding's signature, and clock sanity.
func (s *Service) selfCheck(cred *Credential, now time.Time) error {
	if err := pki.VerifyChain(cred.CertPEM, s.anchorPEM); err != nil {
		return fmt.Errorf("cert chain: %w", err)
	}

	leaf, err := pki.ParseLeaf(cred.CertPEM)
	if err != nil {
		return fmt.Errorf("parse leaf: %w", err)
	}
	if leaf.FingerprintSHA != cred.Binding.CertFingerprint {
		return errors.New("certificate fingerprint does not match signed binding")
	}

	hwFingerprint, err := pki.DeviceFingerprint()
	if err != nil {
		return fmt.Errorf("hardware fingerprint: %w", err)
	}
	if leaf.DeviceID != hwFingerprint {
		return errors.New("leaf device_id does not match this device's hardware fingerprint")
	}

	if !cred.Binding.Verify(tenantKeyVerifier{s.tenantKey}) {
		return errors.New("binding signature invalid")
	}

	if cred.Binding.LastVerifiedAt.After(now) {
		return errors.New("binding last_verified_at is in the future")
	}
	return nil
}

// tenantKeyVerifier adapts a bare tenant public key to trust.Signer so
// SignedBinding.Verify can check a binding this process did not itself
// sign. Only Verify is ever called on it; Sign is unreachable here.
type tenantKeyVerifier struct {
	pub ed25519.PublicKey
}

func (v tenantKeyVerifier) Sign(data []byte) (string, error) {
	return "", errors.New("activation: tenantKeyVerifier cannot sign")
}

func (v tenantKeyVerifier) Verify(data []byte, sigHex string) bool {
	ok, err := trust.VerifyWithKey(v.pub, data, sigHex)
	return err == nil && ok
}

func (v tenantKeyVerifier) PublicKey() string               { return fmt.Sprintf("%x", v.pub) }
func (v tenantKeyVerifier) PublicKeyBytes() ed25519.PublicKey { return v.pub }
func (v tenantKeyVerifier) KeyID() string                    { return "tenant" }

func (s *Service) enterUnboundState() {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = os.Remove(credentialPath(s.certDir))
	s.credential = nil
	s.state = StateUnbound
}
