// Key material loading from a .p12/.pfx bundle or a PEM certificate/key pair.
package keystore

import (
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/crypto/pkcs12"

	"github.com/digitalinvoice/signer-api/internal/domain"
)

// KeyMaterial is an X.509 certificate plus its RSA private key, loaded once
// per signing context. It is read-only during signing and owned by the
// Hash-and-Sign engine for the duration of an operation; it is never logged
// and never serialized.
type KeyMaterial struct {
	cert     *x509.Certificate
	key      *rsa.PrivateKey
	version  string
	loadedAt time.Time
}

// Load reads key material from disk. A path ending in .p12/.pfx is decoded as
// a PKCS#12 bundle using the passphrase; otherwise certPath and keyPath are
// read as PEM. Returns ErrKeyLoad on any failure, including a cert/key pair
// that does not match.
func Load(certPath, keyPath, passphrase string) (*KeyMaterial, error) {
	lower := strings.ToLower(certPath)
	if strings.HasSuffix(lower, ".p12") || strings.HasSuffix(lower, ".pfx") {
		return loadFromP12(certPath, passphrase)
	}
	return loadFromPEM(certPath, keyPath)
}

// New wraps an already-parsed pair (used by tests and by collaborators that
// provision keys out of band). The pair is checked for public-key match.
func New(cert *x509.Certificate, key *rsa.PrivateKey) (*KeyMaterial, error) {
	km := &KeyMaterial{cert: cert, key: key, loadedAt: time.Now()}
	if err := km.checkPair(); err != nil {
		return nil, err
	}
	km.version = fingerprint(cert)
	return km, nil
}

func loadFromP12(path, passphrase string) (*KeyMaterial, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read p12: %v", domain.ErrKeyLoad, err)
	}
	priv, cert, err := pkcs12.Decode(data, passphrase)
	if err != nil {
		return nil, fmt.Errorf("%w: decode p12: %v", domain.ErrKeyLoad, err)
	}
	rsaKey, ok := priv.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: p12 bundle does not contain an RSA key", domain.ErrKeyLoad)
	}
	return New(cert, rsaKey)
}

func loadFromPEM(certPath, keyPath string) (*KeyMaterial, error) {
	certDER, err := readPEMBlock(certPath, "CERTIFICATE")
	if err != nil {
		return nil, err
	}
	cert, err := x509.ParseCertificate(certDER)
	if err != nil {
		return nil, fmt.Errorf("%w: parse certificate: %v", domain.ErrKeyLoad, err)
	}
	if keyPath == "" {
		keyPath = certPath // combined PEM file
	}
	keyDER, err := readPEMBlock(keyPath, "PRIVATE KEY", "RSA PRIVATE KEY")
	if err != nil {
		return nil, err
	}
	key, err := parseRSAKey(keyDER)
	if err != nil {
		return nil, err
	}
	return New(cert, key)
}

func readPEMBlock(path string, types ...string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", domain.ErrKeyLoad, path, err)
	}
	for rest := data; len(rest) > 0; {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		for _, t := range types {
			if block.Type == t {
				return block.Bytes, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: no %s block in %s", domain.ErrKeyLoad, strings.Join(types, "/"), path)
}

func parseRSAKey(der []byte) (*rsa.PrivateKey, error) {
	if key, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return key, nil
	}
	keyAny, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("%w: parse private key: %v", domain.ErrKeyLoad, err)
	}
	key, ok := keyAny.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: private key is not RSA", domain.ErrKeyLoad)
	}
	return key, nil
}

// Certificate returns the signer certificate.
func (km *KeyMaterial) Certificate() *x509.Certificate { return km.cert }

// Key returns the RSA private key.
func (km *KeyMaterial) Key() *rsa.PrivateKey { return km.key }

// Version identifies this key material (the certificate fingerprint).
func (km *KeyMaterial) Version() string { return km.version }

// Fingerprint is the SHA-256 digest of the certificate DER, hex encoded.
func (km *KeyMaterial) Fingerprint() string { return fingerprint(km.cert) }

// CheckValidity rejects signing outside the certificate's validity window.
func (km *KeyMaterial) CheckValidity(now time.Time) error {
	if now.Before(km.cert.NotBefore) {
		return fmt.Errorf("%w: certificate not valid before %s", domain.ErrSigningFailed, km.cert.NotBefore.Format(time.RFC3339))
	}
	if now.After(km.cert.NotAfter) {
		return fmt.Errorf("%w: certificate expired %s", domain.ErrSigningFailed, km.cert.NotAfter.Format(time.RFC3339))
	}
	return nil
}

func (km *KeyMaterial) checkPair() error {
	if km.cert == nil || km.key == nil {
		return fmt.Errorf("%w: certificate and key are both required", domain.ErrKeyLoad)
	}
	certPub, ok := km.cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return fmt.Errorf("%w: certificate public key is not RSA", domain.ErrKeyLoad)
	}
	if !certPub.Equal(&km.key.PublicKey) {
		return fmt.Errorf("%w: certificate does not match private key", domain.ErrKeyLoad)
	}
	return nil
}

// CheckPair re-verifies that the certificate and private key belong together.
// Load already enforces this; the signing engine re-checks so a mismatched
// pair can never reach the crypto primitive, whatever constructed it.
func (km *KeyMaterial) CheckPair() error {
	if err := km.checkPair(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrSigningFailed, err)
	}
	return nil
}

// destroy best-effort zeroes the private key material. Called by the keystore
// once a retired version has no remaining checkouts. Not reliant on GC timing.
func (km *KeyMaterial) destroy() {
	if km.key == nil {
		return
	}
	km.key.D.SetInt64(0)
	for _, p := range km.key.Primes {
		p.SetInt64(0)
	}
	km.key.Precomputed = rsa.PrecomputedValues{}
	km.key = nil
}

func fingerprint(cert *x509.Certificate) string {
	sum := sha256.Sum256(cert.Raw)
	return hex.EncodeToString(sum[:])
}
