package applications

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"edistrict/certificate-portal/portal-backend/pkg/workflows"
)

// CertificateType is the kind of certificate an application requests.
type CertificateType string

const (
	TypeCaste     CertificateType = "caste"
	TypeIncome    CertificateType = "income"
	TypeDomicile  CertificateType = "domicile"
	TypeResidence CertificateType = "residence"
)

// ParseCertificateType converts a raw string to a CertificateType.
func ParseCertificateType(s string) (CertificateType, error) {
	t := CertificateType(s)
	switch t {
	case TypeCaste, TypeIncome, TypeDomicile, TypeResidence:
		return t, nil
	}
	return "", fmt.Errorf("unknown certificate type %q", s)
}

// Application is a citizen's request for a certificate, tracked through the
// workflow. Status and the audit trail are written only by the workflow
// engine; applicant fields are owner-editable only while status is pending.
type Application struct {
	ID                uuid.UUID         `json:"id" db:"id"`
	ApplicationID     string            `json:"application_id" db:"application_id"`
	OwnerID           uuid.UUID         `json:"owner_id" db:"owner_id"`
	CertificateType   CertificateType   `json:"certificate_type" db:"certificate_type"`
	FullName          string            `json:"full_name" db:"full_name"`
	FatherName        string            `json:"father_name" db:"father_name"`
	DateOfBirth       string            `json:"date_of_birth" db:"date_of_birth"`
	Address           string            `json:"address" db:"address"`
	PhoneNumber       string            `json:"phone_number" db:"phone_number"`
	Email             string            `json:"email" db:"email"`
	Purpose           string            `json:"purpose" db:"purpose"`
	AdditionalInfo    *string           `json:"additional_info,omitempty" db:"additional_info"`
	Status            workflows.Status  `json:"status" db:"status"`
	VerificationTrack workflows.Track   `json:"verification_track" db:"verification_track"`
	RejectionReason   *string           `json:"rejection_reason,omitempty" db:"rejection_reason"`
	InfoRequested     *string           `json:"additional_info_requested,omitempty" db:"additional_info_requested"`
	InfoRequestedFrom *workflows.Status `json:"info_requested_from,omitempty" db:"info_requested_from"`
	CreatedAt         time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at" db:"updated_at"`
}

// AuditEntry records one workflow transition. Entries are append-only and
// never rewritten.
type AuditEntry struct {
	ID            uuid.UUID        `json:"id" db:"id"`
	ApplicationID uuid.UUID        `json:"application_id" db:"application_id"`
	FromStatus    workflows.Status `json:"from_status" db:"from_status"`
	ToStatus      workflows.Status `json:"to_status" db:"to_status"`
	ActorID       uuid.UUID        `json:"actor_id" db:"actor_id"`
	ActorRole     workflows.Role   `json:"actor_role" db:"actor_role"`
	Reason        *string          `json:"reason,omitempty" db:"reason"`
	CreatedAt     time.Time        `json:"created_at" db:"created_at"`
}

// Actor identifies the authenticated party driving a request.
type Actor struct {
	ID    uuid.UUID
	Roles []workflows.Role
}

// HasRole reports whether the actor carries the given role.
func (a Actor) HasRole(role workflows.Role) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// IsOfficial reports whether the actor holds any departmental role.
func (a Actor) IsOfficial() bool {
	for _, r := range a.Roles {
		if r != workflows.RoleCitizen {
			return true
		}
	}
	return false
}
