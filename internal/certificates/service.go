package certificates

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"edistrict/certificate-portal/portal-backend/pkg/pdf"
)

// ApplicantDetails are the application fields printed on the certificate that
// the certificate record itself does not carry.
type ApplicantDetails struct {
	FatherName string
	Address    string
	Purpose    string
}

// ApplicantSource resolves applicant details for a certificate's application.
// Wired in main from the applications module to keep this package free of a
// dependency on it.
type ApplicantSource func(ctx context.Context, applicationID uuid.UUID) (ApplicantDetails, error)

// Service serves public verification lookups and certificate downloads.
type Service struct {
	store      Store
	issuer     *Issuer
	pdf        *pdf.Generator
	applicants ApplicantSource
	authority  string
	logger     *zap.Logger
}

func NewService(store Store, issuer *Issuer, gen *pdf.Generator, applicants ApplicantSource, authority string, logger *zap.Logger) *Service {
	return &Service{
		store:      store,
		issuer:     issuer,
		pdf:        gen,
		applicants: applicants,
		authority:  authority,
		logger:     logger,
	}
}

// Verify looks up a certificate by number. IsValid reflects the validity
// window; the lookup has no side effects and requires no authentication.
func (s *Service) Verify(ctx context.Context, number string) (*VerificationResult, error) {
	cert, err := s.store.GetByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	return &VerificationResult{
		Certificate: *cert,
		IsValid:     cert.ValidUntil == nil || cert.ValidUntil.After(time.Now()),
	}, nil
}

// GetForApplication returns the certificate issued for an application.
func (s *Service) GetForApplication(ctx context.Context, applicationID uuid.UUID) (*Certificate, error) {
	return s.store.GetByApplicationID(ctx, applicationID)
}

// RenderPDF produces the printable certificate document.
func (s *Service) RenderPDF(ctx context.Context, number string) (io.Reader, error) {
	cert, err := s.store.GetByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	if !s.issuer.VerifySignature(cert) {
		s.logger.Error("stored certificate failed signature check",
			zap.String("certificate_number", cert.CertificateNumber))
		return nil, fmt.Errorf("certificate %s failed signature verification", number)
	}

	details, err := s.applicants(ctx, cert.ApplicationID)
	if err != nil {
		return nil, fmt.Errorf("load applicant details: %w", err)
	}

	return s.pdf.Generate(pdf.CertificateData{
		CertificateNumber: cert.CertificateNumber,
		CertificateType:   cert.CertificateType,
		IssuedTo:          cert.IssuedTo,
		FatherName:        details.FatherName,
		Address:           details.Address,
		Purpose:           details.Purpose,
		IssuedDate:        cert.IssuedDate,
		ValidUntil:        cert.ValidUntil,
		DigitalSignature:  cert.DigitalSignature,
		IssuingAuthority:  s.authority,
	})
}
