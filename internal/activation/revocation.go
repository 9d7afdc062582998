package activation

import (
	"bytes"
	"context"
	"crypto/x509"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/crypto/ocsp"
)

// RevocationChecker queries a tenant CA's OCSP responder for a leaf
// certificate's status, an extra layer beyond chain verification for
// devices that were deactivated mid-shift (stolen terminal, offboarded
// store) rather than past their certificate's natural expiry.
type RevocationChecker struct {
	ResponderURL string
	HTTPClient   *http.Client
}

// NewRevocationChecker returns a checker against responderURL with a
// 5-second request timeout — an edge device should never block its
// self-check indefinitely on a slow or unreachable responder.
func NewRevocationChecker(responderURL string) *RevocationChecker {
	return &RevocationChecker{
		ResponderURL: responderURL,
		HTTPClient:   &http.Client{Timeout: 5 * time.Second},
	}
}

// Check returns nil if leaf is Good per the OCSP responder, and an error
// for Revoked or Unknown. A transport failure against the responder is
// also returned as an error — callers treat an unreachable responder as
// "could not confirm good standing," never as "assume good."
func (c *RevocationChecker) Check(ctx context.Context, leaf, issuer *x509.Certificate) error {
	req, err := ocsp.CreateRequest(leaf, issuer, nil)
	if err != nil {
		return fmt.Errorf("activation: build ocsp request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.ResponderURL, bytes.NewReader(req))
	if err != nil {
		return fmt.Errorf("activation: build ocsp http request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/ocsp-request")

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("activation: query ocsp responder: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("activation: read ocsp response: %w", err)
	}

	parsed, err := ocsp.ParseResponseForCert(body, leaf, issuer)
	if err != nil {
		return fmt.Errorf("activation: parse ocsp response: %w", err)
	}

	switch parsed.Status {
	case ocsp.Good:
		return nil
	case ocsp.Revoked:
		return fmt.Errorf("activation: certificate revoked at %s", parsed.RevokedAt)
	default:
		return fmt.Errorf("activation: certificate status unknown")
	}
}
