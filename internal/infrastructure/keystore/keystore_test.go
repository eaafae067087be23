package keystore

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digitalinvoice/signer-api/internal/domain"
)

func generateKeyMaterial(t *testing.T, cn string, notBefore, notAfter time.Time) *KeyMaterial {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber:          big.NewInt(time.Now().UnixNano()),
		Subject:               pkix.Name{CommonName: cn, Organization: []string{"Test Signer"}},
		NotBefore:             notBefore,
		NotAfter:              notAfter,
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	km, err := New(cert, key)
	require.NoError(t, err)
	return km
}

func TestNew_RejectsMismatchedPair(t *testing.T) {
	km := generateKeyMaterial(t, "signer", time.Now().Add(-time.Hour), time.Now().Add(time.Hour))
	otherKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	_, err = New(km.Certificate(), otherKey)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrKeyLoad)
}

func TestCheckValidity(t *testing.T) {
	now := time.Now()
	km := generateKeyMaterial(t, "signer", now.Add(-time.Hour), now.Add(time.Hour))

	assert.NoError(t, km.CheckValidity(now))

	err := km.CheckValidity(now.Add(2 * time.Hour))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrSigningFailed)

	err = km.CheckValidity(now.Add(-2 * time.Hour))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrSigningFailed)
}

func TestKeystore_CheckoutPinsAcrossRotation(t *testing.T) {
	now := time.Now()
	k1 := generateKeyMaterial(t, "signer-v1", now.Add(-time.Hour), now.Add(time.Hour))
	k2 := generateKeyMaterial(t, "signer-v2", now.Add(-time.Hour), now.Add(time.Hour))

	ks, err := NewKeystore(k1)
	require.NoError(t, err)
	assert.Equal(t, k1.Version(), ks.Version())

	// A signing in flight pins v1; the rotation must not invalidate it.
	pinned := ks.Checkout()
	require.Same(t, k1, pinned)

	require.NoError(t, ks.Rotate(k2))
	assert.Equal(t, k2.Version(), ks.Version(), "new checkouts see the rotated version")

	assert.NotNil(t, pinned.Key(), "pinned key survives rotation while checked out")
	assert.NoError(t, pinned.CheckPair())

	// Last checkin of the retired version zeroes it.
	ks.Checkin(pinned)
	assert.Nil(t, pinned.Key(), "retired key material is destroyed on last checkin")

	next := ks.Checkout()
	require.Same(t, k2, next)
	ks.Checkin(next)
}

func TestKeystore_RotateIdleDestroysImmediately(t *testing.T) {
	now := time.Now()
	k1 := generateKeyMaterial(t, "signer-v1", now.Add(-time.Hour), now.Add(time.Hour))
	k2 := generateKeyMaterial(t, "signer-v2", now.Add(-time.Hour), now.Add(time.Hour))

	ks, err := NewKeystore(k1)
	require.NoError(t, err)
	require.NoError(t, ks.Rotate(k2))
	assert.Nil(t, k1.Key(), "an idle version is destroyed at rotation time")
}

func TestKeystore_NilMaterial(t *testing.T) {
	_, err := NewKeystore(nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrKeyLoad)

	now := time.Now()
	ks, err := NewKeystore(generateKeyMaterial(t, "signer", now.Add(-time.Hour), now.Add(time.Hour)))
	require.NoError(t, err)
	err = ks.Rotate(nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrKeyLoad)
}

func TestKeystore_Close(t *testing.T) {
	now := time.Now()
	km := generateKeyMaterial(t, "signer", now.Add(-time.Hour), now.Add(time.Hour))
	ks, err := NewKeystore(km)
	require.NoError(t, err)
	ks.Close()
	assert.Nil(t, km.Key())
}
