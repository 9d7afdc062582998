package pki

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"net"
	"os"
	"sort"
	"strings"
)

// FingerprintSHA256 is the canonical certificate fingerprint: the SHA-256
// of the DER-encoded certificate, hex-encoded. Accepts either PEM or raw
// DER input.
func FingerprintSHA256(certPEM []byte) (string, error) {
	der, err := certDER(certPEM)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(der)
	return hex.EncodeToString(sum[:]), nil
}

func certDER(certPEM []byte) ([]byte, error) {
	block, _ := pem.Decode(certPEM)
	if block == nil {
		// Not PEM; assume caller already handed us DER.
		return certPEM, nil
	}
	if block.Type != "CERTIFICATE" {
		return nil, fmt.Errorf("pki: unexpected PEM block type %q", block.Type)
	}
	return block.Bytes, nil
}

// DeviceFingerprint computes a stable hash over host-specific attributes:
// the hostname and the sorted set of non-loopback hardware (MAC) addresses.
// It is deliberately independent of IP address or OS clock state so it
// survives DHCP renewal and reboots, but changes if the binary is copied to
// different hardware — which is the property the leaf's embedded device_id
// extension relies on to make cross-machine credential copies detectable.
func DeviceFingerprint() (string, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return "", fmt.Errorf("pki: read hostname: %w", err)
	}
	ifaces, err := net.Interfaces()
	if err != nil {
		return "", fmt.Errorf("pki: enumerate interfaces: %w", err)
	}
	macs := make([]string, 0, len(ifaces))
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		mac := iface.HardwareAddr.String()
		if mac == "" || mac == "00:00:00:00:00:00" {
			continue
		}
		macs = append(macs, mac)
	}
	sort.Strings(macs)
	return deviceFingerprintFrom(hostname, macs), nil
}

// deviceFingerprintFrom is the pure half of DeviceFingerprint, split out so
// tests can exercise the hashing without depending on the host's actual
// network interfaces.
func deviceFingerprintFrom(hostname string, macs []string) string {
	h := sha256.New()
	h.Write([]byte(hostname))
	h.Write([]byte("|"))
	h.Write([]byte(strings.Join(macs, ",")))
	return hex.EncodeToString(h.Sum(nil))
}
