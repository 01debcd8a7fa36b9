package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"time"
)

// TokenSigner mints and verifies the digital signature tokens embedded in
// issued certificates. The token is an HMAC over the fields that identify the
// certificate, so any party holding the signing key can confirm a presented
// certificate was produced by this system and has not been altered.
type TokenSigner struct {
	key []byte
}

func NewTokenSigner(key string) *TokenSigner {
	return &TokenSigner{key: []byte(key)}
}

// Sign produces the signature token for a certificate.
func (s *TokenSigner) Sign(certificateNumber, applicationID string, issuedDate time.Time) string {
	mac := hmac.New(sha256.New, s.key)
	fmt.Fprintf(mac, "%s|%s|%s", certificateNumber, applicationID, issuedDate.UTC().Format(time.RFC3339))
	return "DS_" + base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// Verify reports whether token matches the certificate fields. Comparison is
// constant time.
func (s *TokenSigner) Verify(token, certificateNumber, applicationID string, issuedDate time.Time) bool {
	expected := s.Sign(certificateNumber, applicationID, issuedDate)
	return hmac.Equal([]byte(token), []byte(expected))
}
