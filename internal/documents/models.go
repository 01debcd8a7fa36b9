package documents

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DocumentType is the closed set of supporting-document kinds an application
// may attach.
type DocumentType string

const (
	TypeIdentityProof DocumentType = "identity_proof"
	TypeAddressProof  DocumentType = "address_proof"
	TypeIncomeProof   DocumentType = "income_proof"
	TypeCasteProof    DocumentType = "caste_proof"
	TypeOther         DocumentType = "other"
)

// ParseDocumentType converts a raw string to a DocumentType.
func ParseDocumentType(s string) (DocumentType, error) {
	t := DocumentType(s)
	switch t {
	case TypeIdentityProof, TypeAddressProof, TypeIncomeProof, TypeCasteProof, TypeOther:
		return t, nil
	}
	return "", fmt.Errorf("unknown document type %q", s)
}

// Document is the stored metadata for one uploaded supporting file. The
// bytes themselves live in the blob store under StoragePath.
type Document struct {
	ID            uuid.UUID    `json:"id" db:"id"`
	ApplicationID uuid.UUID    `json:"application_id" db:"application_id"`
	DocumentType  DocumentType `json:"document_type" db:"document_type"`
	FileName      string       `json:"file_name" db:"file_name"`
	FileSize      int64        `json:"file_size" db:"file_size"`
	StoragePath   string       `json:"storage_path" db:"storage_path"`
	UploadedBy    uuid.UUID    `json:"uploaded_by" db:"uploaded_by"`
	UploadedAt    time.Time    `json:"uploaded_at" db:"uploaded_at"`
}
