package certificates

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"edistrict/certificate-portal/portal-backend/pkg/security"
)

// incomeValidity bounds income certificates; other types do not expire.
const incomeValidity = 365 * 24 * time.Hour

const crockford = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

// NewReference derives an n-character Crockford base32 reference from a fresh
// UUID. Collisions are negligible at these lengths but the store still
// enforces uniqueness; callers retry on conflict.
func NewReference(n int) string {
	id := uuid.New()
	if n > len(id) {
		n = len(id)
	}
	buf := make([]byte, n)
	for i := 0; i < n; i++ {
		buf[i] = crockford[int(id[i])%len(crockford)]
	}
	return string(buf)
}

// Issuer mints certificates for approved applications. Persistence happens
// inside the approval transaction, owned by the applications repository, so
// the mint itself is pure value construction.
type Issuer struct {
	signer *security.TokenSigner
}

func NewIssuer(signer *security.TokenSigner) *Issuer {
	return &Issuer{signer: signer}
}

// MintRequest carries the application fields a certificate records.
type MintRequest struct {
	ApplicationID   uuid.UUID
	ApplicationCode string
	CertificateType string
	IssuedTo        string
}

// Mint builds a new certificate with a fresh number and signature token.
func (i *Issuer) Mint(req MintRequest) *Certificate {
	now := time.Now().UTC()
	number := fmt.Sprintf("GC%d-%s", now.Year(), NewReference(10))

	var validUntil *time.Time
	if req.CertificateType == "income" {
		expiry := now.Add(incomeValidity)
		validUntil = &expiry
	}

	return &Certificate{
		ID:                uuid.New(),
		CertificateNumber: number,
		CertificateType:   req.CertificateType,
		IssuedTo:          req.IssuedTo,
		ApplicationID:     req.ApplicationID,
		ApplicationCode:   req.ApplicationCode,
		IssuedDate:        now,
		ValidUntil:        validUntil,
		DigitalSignature:  i.signer.Sign(number, req.ApplicationID.String(), now),
		CreatedAt:         now,
	}
}

// VerifySignature checks the signature token embedded in a stored
// certificate.
func (i *Issuer) VerifySignature(cert *Certificate) bool {
	return i.signer.Verify(cert.DigitalSignature, cert.CertificateNumber, cert.ApplicationID.String(), cert.IssuedDate)
}
