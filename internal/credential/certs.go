package credential

import (
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/crabpos/edge/pkg/idgen"
)

// Certificate filenames under work_dir/certs/ (spec §4.7 file layout).
const (
	certsDirName   = "certs"
	rootCAFile     = "root_ca.pem"
	tenantCAFile   = "tenant_ca.pem"
	edgeCertFile   = "edge_cert.pem"
	edgeKeyFile    = "edge_key.pem"
	expiryWarnDays = 7
)

// hardwareIDExtensionOID is the private-enterprise OID, chosen by this
// module, that carries the hardware ID in edge_cert.pem's subject to bind
// the certificate to one machine (spec §4.7 step 4, §2 "subject's
// hardware-ID extension").
var hardwareIDExtensionOID = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 55543, 1, 1}

// CertService manages the mTLS certificate bundle under work_dir/certs
// and runs the boot self-check (spec §4.7), adapted from
// original_source/edge-server/src/services/cert.rs's CertService.
type CertService struct {
	workDir string
}

// NewCertService builds a CertService rooted at workDir.
func NewCertService(workDir string) *CertService {
	return &CertService{workDir: workDir}
}

func (s *CertService) certsDir() string {
	return filepath.Join(s.workDir, certsDirName)
}

// SaveCertificates writes the four-file certificate bundle to
// work_dir/certs/ (spec §4.7 file layout).
func (s *CertService) SaveCertificates(rootCA, tenantCA, edgeCert, edgeKey []byte) error {
	dir := s.certsDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("credential: create certs dir: %w", err)
	}
	writes := map[string][]byte{
		rootCAFile:   rootCA,
		tenantCAFile: tenantCA,
		edgeCertFile: edgeCert,
		edgeKeyFile:  edgeKey,
	}
	for name, data := range writes {
		if err := os.WriteFile(filepath.Join(dir, name), data, 0o600); err != nil {
			return fmt.Errorf("credential: write %s: %w", name, err)
		}
	}
	return nil
}

// DeleteCertificates wipes work_dir/certs entirely (spec §4.7 "the cert
// directory is wiped and the process enters a needs-activation state").
func (s *CertService) DeleteCertificates() error {
	dir := s.certsDir()
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil
	}
	log.Warn().Str("dir", dir).Msg("removing invalid certificates")
	return os.RemoveAll(dir)
}

func (s *CertService) readCerts() (rootCA, tenantCA, edgeCert, edgeKey []byte, err error) {
	dir := s.certsDir()
	read := func(name string) ([]byte, error) {
		return os.ReadFile(filepath.Join(dir, name))
	}
	if rootCA, err = read(rootCAFile); err != nil {
		return
	}
	if tenantCA, err = read(tenantCAFile); err != nil {
		return
	}
	if edgeCert, err = read(edgeCertFile); err != nil {
		return
	}
	edgeKey, err = read(edgeKeyFile)
	return
}

// HasCertificates reports whether all four certificate files exist.
func (s *CertService) HasCertificates() bool {
	_, _, _, _, err := s.readCerts()
	return err == nil
}

// VerifyCertificateChain checks that tenantCA chains to rootCA and that
// edgeCert chains to tenantCA (spec §4.7 steps 2-3).
func VerifyCertificateChain(rootCAPEM, tenantCAPEM, edgeCertPEM []byte) error {
	if err := verifyChainAgainstRoot(tenantCAPEM, rootCAPEM); err != nil {
		return fmt.Errorf("credential: tenant CA validation failed: %w", err)
	}
	if err := verifyChainAgainstRoot(edgeCertPEM, tenantCAPEM); err != nil {
		return fmt.Errorf("credential: edge cert validation failed: %w", err)
	}
	return nil
}

func verifyChainAgainstRoot(certPEM, rootPEM []byte) error {
	cert, err := parseCertificate(certPEM)
	if err != nil {
		return err
	}
	root, err := parseCertificate(rootPEM)
	if err != nil {
		return err
	}
	pool := x509.NewCertPool()
	pool.AddCert(root)
	_, err = cert.Verify(x509.VerifyOptions{
		Roots:     pool,
		KeyUsages: []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	})
	if err != nil {
		return fmt.Errorf("certificate does not chain to the given root: %w", err)
	}
	return nil
}

// HardwareIDFromCert extracts the hardware-id extension value embedded in
// a certificate's subject (spec §4.7 step 4).
func HardwareIDFromCert(certPEM []byte) (string, error) {
	cert, err := parseCertificate(certPEM)
	if err != nil {
		return "", err
	}
	for _, name := range cert.Subject.Names {
		if name.Type.Equal(hardwareIDExtensionOID) {
			if s, ok := name.Value.(string); ok {
				return s, nil
			}
		}
	}
	return "", fmt.Errorf("credential: certificate carries no hardware-id extension")
}

// HardwareIDExtraName builds the pkix.AttributeTypeAndValue a CA embeds
// in an edge cert's subject at issuance time, binding it to hwID.
func HardwareIDExtraName(hwID string) pkix.AttributeTypeAndValue {
	return pkix.AttributeTypeAndValue{Type: hardwareIDExtensionOID, Value: hwID}
}

// NotAfter returns the certificate's expiry.
func NotAfter(certPEM []byte) (time.Time, error) {
	cert, err := parseCertificate(certPEM)
	if err != nil {
		return time.Time{}, err
	}
	return cert.NotAfter, nil
}

// SelfCheck runs the boot chain-of-trust validation (spec §4.7 "Boot
// self-check") and returns an error on any failure so the caller refuses
// to start the TLS listener. A missing certificate file is reported
// without touching the directory; every later check that fails also
// wipes the certificate directory.
func (s *CertService) SelfCheck(cred *Credential) error {
	rootCA, tenantCA, edgeCert, _, err := s.readCerts()
	if err != nil {
		return fmt.Errorf("credential: self-check: missing certificate file: %w", err)
	}

	if err := VerifyCertificateChain(rootCA, tenantCA, edgeCert); err != nil {
		_ = s.DeleteCertificates()
		return err
	}
	log.Info().Msg("certificate chain verified: root CA -> tenant CA -> edge cert")

	hwID, err := idgen.HardwareID()
	if err != nil {
		_ = s.DeleteCertificates()
		return fmt.Errorf("credential: self-check: derive hardware id: %w", err)
	}
	certHWID, err := HardwareIDFromCert(edgeCert)
	if err != nil {
		_ = s.DeleteCertificates()
		return err
	}
	if certHWID != hwID {
		_ = s.DeleteCertificates()
		return fmt.Errorf("credential: self-check: hardware id mismatch: cert=%s machine=%s", certHWID, hwID)
	}

	notAfter, err := NotAfter(edgeCert)
	if err != nil {
		_ = s.DeleteCertificates()
		return err
	}
	if time.Now().After(notAfter) {
		_ = s.DeleteCertificates()
		return fmt.Errorf("credential: self-check: certificate expired at %s", notAfter)
	}
	if time.Now().Add(expiryWarnDays * 24 * time.Hour).After(notAfter) {
		log.Warn().Time("not_after", notAfter).Msg("edge certificate will expire soon")
	}

	if cred != nil && cred.IsSigned() {
		if err := cred.VerifySignature(tenantCA); err != nil {
			_ = s.DeleteCertificates()
			return fmt.Errorf("credential: self-check: credential signature invalid: %w", err)
		}
	}

	if cred != nil {
		if err := cred.CheckClockTampering(); err != nil {
			_ = s.DeleteCertificates()
			return err
		}
	}

	log.Info().Msg("credential self-check passed")
	return nil
}

// LoadTLSConfig builds a server TLS config requiring a client certificate
// signed by the tenant CA (spec §4.7 "TLS acceptor built with tenant_ca
// as client-cert verifier + single edge cert"). Returns (nil, nil) if the
// certificate bundle is not present yet.
func (s *CertService) LoadTLSConfig() (*tls.Config, error) {
	if !s.HasCertificates() {
		return nil, nil
	}
	_, tenantCAPEM, edgeCertPEM, edgeKeyPEM, err := s.readCerts()
	if err != nil {
		return nil, err
	}

	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(tenantCAPEM) {
		return nil, fmt.Errorf("credential: failed to parse tenant CA pool")
	}

	cert, err := tls.X509KeyPair(edgeCertPEM, edgeKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("credential: parse edge cert/key pair: %w", err)
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		ClientCAs:    pool,
		ClientAuth:   tls.RequireAndVerifyClientCert,
		MinVersion:   tls.VersionTLS12,
	}, nil
}

// Fingerprint returns the SHA-256 fingerprint of a PEM certificate,
// hex-encoded, for display/logging (spec §4.7's CertService.get_fingerprint).
func Fingerprint(certPEM []byte) (string, error) {
	block, _ := pem.Decode(certPEM)
	if block == nil {
		return "", fmt.Errorf("credential: no PEM block found")
	}
	sum := sha256.Sum256(block.Bytes)
	return hex.EncodeToString(sum[:]), nil
}
