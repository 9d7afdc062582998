package trust

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
)

// CanonicalJSON serializes v as RFC 8785 JSON Canonicalization Scheme
// output: sorted object keys, no insignificant whitespace, no HTML
// escaping. Every checksum and signature payload in this repo that is
// computed over a struct (rather than a handful of scalar fields joined by
// "|") goes through this function so producers and verifiers never
// disagree on byte layout.
func CanonicalJSON(v interface{}) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("trust: marshal for canonicalization: %w", err)
	}
	canon, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("trust: jcs transform: %w", err)
	}
	return canon, nil
}

// CanonicalHash returns the hex SHA-256 digest of v's canonical JSON
// encoding. Used for order-snapshot checksums.
func CanonicalHash(v interface{}) (string, error) {
	canon, err := CanonicalJSON(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canon)
	return hex.EncodeToString(sum[:]), nil
}

// HashChainLink computes SHA-256 over prev followed by each field, each
// field preceded by "|", where fields are already string-rendered by the
// caller. internal/archive computes its chain hashes itself and does not
// call this.
func HashChainLink(prev string, fields ...string) string {
	h := sha256.New()
	h.Write([]byte(prev))
	for _, f := range fields {
		h.Write([]byte("|"))
		h.Write([]byte(f))
	}
	return hex.EncodeToString(h.Sum(nil))
}
