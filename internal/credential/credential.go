// Package credential implements spec §4.7: the signed tenant credential
// that lets an edge node reconnect to the cloud without re-authenticating,
// persisted as JSON under the node's work directory, and the boot
// self-check that walks the mTLS chain of trust before the node is
// allowed to serve traffic. Grounded on
// original_source/crab-cert/src/credential.rs and
// original_source/edge-server/src/services/cert.rs, adapted from Rust's
// signature-over-PEM-key pattern to Go's crypto/ecdsa + crypto/x509.
package credential

import (
	"encoding/base64"
	"fmt"
	"time"
)

// Maximum allowed clock drift before check_clock_tampering fails (spec
// §4.7 "Clock tamper detection").
const (
	maxClockBackward = time.Hour
	maxClockForward  = 30 * 24 * time.Hour
)

// Credential is tenant auth material obtained from the Auth Server at
// activation and cached locally (spec glossary "Credential").
type Credential struct {
	ClientName string  `json:"client_name"`
	TenantID   string  `json:"tenant_id"`
	Token      string  `json:"token"`
	ExpiresAt  *int64  `json:"expires_at,omitempty"`
	DeviceID   *string `json:"device_id,omitempty"`
	Signature  *string `json:"signature,omitempty"`

	// LastVerifiedAt/Signature support check_clock_tampering: a signed
	// timestamp the credential carries forward across boots.
	LastVerifiedAt          *int64  `json:"last_verified_at,omitempty"`
	LastVerifiedAtSignature *string `json:"last_verified_at_signature,omitempty"`
}

// New creates an unsigned credential. expiresAt is a Unix-seconds
// timestamp, or nil for "never expires".
func New(clientName, tenantID, token string, expiresAt *int64) *Credential {
	return &Credential{ClientName: clientName, TenantID: tenantID, Token: token, ExpiresAt: expiresAt}
}

// WithDeviceID binds the credential to a hardware id (spec §4.7 hardware
// binding); returns the same credential for chaining.
func (c *Credential) WithDeviceID(deviceID string) *Credential {
	c.DeviceID = &deviceID
	return c
}

// IsExpired reports whether ExpiresAt has passed.
func (c *Credential) IsExpired() bool {
	if c.ExpiresAt == nil {
		return false
	}
	return time.Now().Unix() > *c.ExpiresAt
}

// IsSigned reports whether the credential carries a Root CA signature.
func (c *Credential) IsSigned() bool {
	return c.Signature != nil
}

func (c *Credential) deviceIDOrEmpty() string {
	if c.DeviceID == nil {
		return ""
	}
	return *c.DeviceID
}

func (c *Credential) expiresAtOrZero() int64 {
	if c.ExpiresAt == nil {
		return 0
	}
	return *c.ExpiresAt
}

// signableData is the exact byte sequence Sign/VerifySignature operate
// over (spec §4.7: `"{client_name}|{tenant_id}|{expires_at}|{device_id}"`).
func (c *Credential) signableData() []byte {
	return []byte(fmt.Sprintf("%s|%s|%d|%s", c.ClientName, c.TenantID, c.expiresAtOrZero(), c.deviceIDOrEmpty()))
}

// Sign signs the credential with the CA's EC private key (PEM) and
// populates Signature.
func (c *Credential) Sign(caKeyPEM []byte) error {
	sig, err := signECDSA(caKeyPEM, c.signableData())
	if err != nil {
		return fmt.Errorf("credential: sign: %w", err)
	}
	encoded := base64.StdEncoding.EncodeToString(sig)
	c.Signature = &encoded
	return nil
}

// VerifySignature checks Signature against the CA certificate's public key.
func (c *Credential) VerifySignature(caCertPEM []byte) error {
	if c.Signature == nil {
		return fmt.Errorf("credential: not signed")
	}
	sig, err := base64.StdEncoding.DecodeString(*c.Signature)
	if err != nil {
		return fmt.Errorf("credential: invalid signature encoding: %w", err)
	}
	return verifyECDSA(caCertPEM, c.signableData(), sig)
}

// MarkVerified stamps LastVerifiedAt with the current time and signs it
// with the tenant CA's private key (the Auth Server is the only party
// that holds it), so a future boot's CheckClockTampering can detect if
// the system clock was rolled back since this boot.
func (c *Credential) MarkVerified(tenantCAKeyPEM []byte) error {
	now := time.Now().Unix()
	data := c.timestampSignableData(now)
	sig, err := signECDSA(tenantCAKeyPEM, data)
	if err != nil {
		return fmt.Errorf("credential: sign timestamp: %w", err)
	}
	encoded := base64.StdEncoding.EncodeToString(sig)
	c.LastVerifiedAt = &now
	c.LastVerifiedAtSignature = &encoded
	return nil
}

func (c *Credential) timestampSignableData(ts int64) []byte {
	return []byte(fmt.Sprintf("%d|%s|%s|%s", ts, c.ClientName, c.TenantID, c.deviceIDOrEmpty()))
}

// VerifyTimestampSignature verifies LastVerifiedAt/LastVerifiedAtSignature
// against the tenant CA certificate that issued the entity's key.
func (c *Credential) VerifyTimestampSignature(tenantCACertPEM []byte) error {
	if c.LastVerifiedAt == nil && c.LastVerifiedAtSignature == nil {
		return nil
	}
	if c.LastVerifiedAt == nil || c.LastVerifiedAtSignature == nil {
		return fmt.Errorf("credential: timestamp/signature mismatch")
	}
	sig, err := base64.StdEncoding.DecodeString(*c.LastVerifiedAtSignature)
	if err != nil {
		return fmt.Errorf("credential: invalid timestamp signature encoding: %w", err)
	}
	data := c.timestampSignableData(*c.LastVerifiedAt)
	if err := verifyECDSA(tenantCACertPEM, data, sig); err != nil {
		return fmt.Errorf("credential: timestamp signature invalid: %w", err)
	}
	return nil
}

// CheckClockTampering implements spec §4.7's two scenarios: the clock
// being set back to extend an expired credential, or jumped forward to
// skip a verification window.
func (c *Credential) CheckClockTampering() error {
	if c.LastVerifiedAt == nil {
		return nil
	}
	if c.LastVerifiedAtSignature == nil {
		return fmt.Errorf("credential: clock timestamp exists but signature is missing")
	}

	last := time.Unix(*c.LastVerifiedAt, 0)
	now := time.Now()

	if last.After(now) && last.Sub(now) > maxClockBackward {
		return fmt.Errorf("credential: clock tampering detected: time moved backward by %s", last.Sub(now))
	}
	if now.After(last) && now.Sub(last) > maxClockForward {
		return fmt.Errorf("credential: clock tampering detected: time jumped forward by %.0f days", now.Sub(last).Hours()/24)
	}
	return nil
}

// Validate runs expiration, hardware-binding, and signature checks (spec
// §4.7 "validate"). Either check is skipped when its corresponding
// argument is empty/nil.
func (c *Credential) Validate(caCertPEM []byte, expectedDeviceID string) error {
	if c.IsExpired() {
		return fmt.Errorf("credential: expired")
	}

	if expectedDeviceID != "" {
		if c.DeviceID == nil {
			return fmt.Errorf("credential: missing device_id")
		}
		if *c.DeviceID != expectedDeviceID {
			return fmt.Errorf("credential: hardware id mismatch: expected %s, got %s", expectedDeviceID, *c.DeviceID)
		}
	}

	if len(caCertPEM) > 0 {
		if err := c.VerifySignature(caCertPEM); err != nil {
			return err
		}
	}
	return nil
}
