package certificates

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound indicates no certificate exists for the given lookup.
	ErrNotFound = errors.New("certificate not found")

	// ErrDuplicateForApplication indicates the application already has a
	// certificate; issuance happens exactly once.
	ErrDuplicateForApplication = errors.New("certificate already exists for application")

	// ErrDuplicateNumber indicates a freshly minted certificate number
	// collided with an existing one; the issuer regenerates and retries.
	ErrDuplicateNumber = errors.New("certificate number already in use")
)

// Certificate is the immutable artifact created when an application is
// approved. It is independently verifiable by number.
type Certificate struct {
	ID                uuid.UUID  `json:"id" db:"id"`
	CertificateNumber string     `json:"certificate_number" db:"certificate_number"`
	CertificateType   string     `json:"certificate_type" db:"certificate_type"`
	IssuedTo          string     `json:"issued_to" db:"issued_to"`
	ApplicationID     uuid.UUID  `json:"application_id" db:"application_id"`
	ApplicationCode   string     `json:"application_code" db:"application_code"`
	IssuedDate        time.Time  `json:"issued_date" db:"issued_date"`
	ValidUntil        *time.Time `json:"valid_until,omitempty" db:"valid_until"`
	DigitalSignature  string     `json:"digital_signature" db:"digital_signature"`
	CreatedAt         time.Time  `json:"created_at" db:"created_at"`
}

// VerificationResult is the public verification view of a certificate.
type VerificationResult struct {
	Certificate Certificate `json:"certificate"`
	IsValid     bool        `json:"is_valid"`
}
