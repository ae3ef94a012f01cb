package credential

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"fmt"
)

// signECDSA signs data with an EC private key supplied as PEM (PKCS#8 or
// SEC1), matching the CA key format crab-cert writes to disk.
func signECDSA(keyPEM []byte, data []byte) ([]byte, error) {
	key, err := parseECPrivateKey(keyPEM)
	if err != nil {
		return nil, err
	}
	digest := sha256.Sum256(data)
	return key.Sign(rand.Reader, digest[:], crypto.SHA256)
}

// verifyECDSA verifies a signature against the public key embedded in an
// X.509 certificate supplied as PEM.
func verifyECDSA(certPEM []byte, data []byte, sig []byte) error {
	cert, err := parseCertificate(certPEM)
	if err != nil {
		return err
	}
	pub, ok := cert.PublicKey.(*ecdsa.PublicKey)
	if !ok {
		return fmt.Errorf("credential: certificate does not carry an ECDSA public key")
	}
	digest := sha256.Sum256(data)
	if !ecdsa.VerifyASN1(pub, digest[:], sig) {
		return fmt.Errorf("credential: signature verification failed")
	}
	return nil
}

func parseECPrivateKey(keyPEM []byte) (*ecdsa.PrivateKey, error) {
	block, _ := pem.Decode(keyPEM)
	if block == nil {
		return nil, fmt.Errorf("credential: no PEM block found in key")
	}
	if key, err := x509.ParseECPrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	generic, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("credential: parse EC private key: %w", err)
	}
	key, ok := generic.(*ecdsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("credential: PKCS8 key is not an ECDSA key")
	}
	return key, nil
}

func parseCertificate(certPEM []byte) (*x509.Certificate, error) {
	block, _ := pem.Decode(certPEM)
	if block == nil {
		return nil, fmt.Errorf("credential: no PEM block found in certificate")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("credential: parse certificate: %w", err)
	}
	return cert, nil
}
