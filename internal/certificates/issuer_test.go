package certificates

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"edistrict/certificate-portal/portal-backend/pkg/security"
)

func newTestIssuer() *Issuer {
	return NewIssuer(security.NewTokenSigner("issuer-test-key"))
}

func mintRequest() MintRequest {
	return MintRequest{
		ApplicationID:   uuid.New(),
		ApplicationCode: "CERT2026-7F3KQD2M",
		CertificateType: "caste",
		IssuedTo:        "Ramesh Kumar",
	}
}

func TestMint(t *testing.T) {
	issuer := newTestIssuer()

	cert := issuer.Mint(mintRequest())

	assert.Regexp(t, `^GC\d{4}-[0-9A-Z]{10}$`, cert.CertificateNumber)
	assert.Equal(t, "Ramesh Kumar", cert.IssuedTo)
	assert.Equal(t, "caste", cert.CertificateType)
	assert.Nil(t, cert.ValidUntil)
	assert.True(t, issuer.VerifySignature(cert))
}

func TestMintIncomeCertificateExpires(t *testing.T) {
	issuer := newTestIssuer()

	req := mintRequest()
	req.CertificateType = "income"
	cert := issuer.Mint(req)

	require.NotNil(t, cert.ValidUntil)
	assert.WithinDuration(t, cert.IssuedDate.Add(incomeValidity), *cert.ValidUntil, time.Second)
}

func TestMintNumbersAreUnique(t *testing.T) {
	issuer := newTestIssuer()

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		cert := issuer.Mint(mintRequest())
		assert.False(t, seen[cert.CertificateNumber], "duplicate number %s", cert.CertificateNumber)
		seen[cert.CertificateNumber] = true
	}
}

func TestVerifySignatureDetectsTampering(t *testing.T) {
	issuer := newTestIssuer()

	cert := issuer.Mint(mintRequest())
	cert.IssuedDate = cert.IssuedDate.Add(24 * time.Hour)
	assert.False(t, issuer.VerifySignature(cert))
}

func TestMemoryStoreUniqueness(t *testing.T) {
	store := NewMemoryStore()
	issuer := newTestIssuer()
	ctx := context.Background()

	cert := issuer.Mint(mintRequest())
	require.NoError(t, store.Create(ctx, cert))

	// Same application, fresh number.
	again := issuer.Mint(MintRequest{
		ApplicationID:   cert.ApplicationID,
		ApplicationCode: cert.ApplicationCode,
		CertificateType: cert.CertificateType,
		IssuedTo:        cert.IssuedTo,
	})
	assert.ErrorIs(t, store.Create(ctx, again), ErrDuplicateForApplication)

	// Different application, reused number.
	clash := issuer.Mint(mintRequest())
	clash.CertificateNumber = cert.CertificateNumber
	assert.ErrorIs(t, store.Create(ctx, clash), ErrDuplicateNumber)

	assert.Equal(t, 1, store.Count())
}

func TestVerify(t *testing.T) {
	store := NewMemoryStore()
	issuer := newTestIssuer()
	ctx := context.Background()

	cert := issuer.Mint(mintRequest())
	require.NoError(t, store.Create(ctx, cert))

	svc := NewService(store, issuer, nil, nil, "Office of the Sub-Divisional Officer", zap.NewNop())

	result, err := svc.Verify(ctx, cert.CertificateNumber)
	require.NoError(t, err)
	assert.True(t, result.IsValid)
	assert.Equal(t, cert.CertificateNumber, result.Certificate.CertificateNumber)

	_, err = svc.Verify(ctx, "GC2026-UNKNOWN000")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestVerifyExpiredCertificate(t *testing.T) {
	store := NewMemoryStore()
	issuer := newTestIssuer()
	ctx := context.Background()

	cert := issuer.Mint(mintRequest())
	expired := time.Now().Add(-time.Hour)
	cert.ValidUntil = &expired
	require.NoError(t, store.Create(ctx, cert))

	svc := NewService(store, issuer, nil, nil, "Office of the Sub-Divisional Officer", zap.NewNop())

	result, err := svc.Verify(ctx, cert.CertificateNumber)
	require.NoError(t, err)
	assert.False(t, result.IsValid)
}
