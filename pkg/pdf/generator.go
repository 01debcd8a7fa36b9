package pdf

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// CertificateData carries everything the printed certificate shows.
type CertificateData struct {
	CertificateNumber string
	CertificateType   string
	IssuedTo          string
	FatherName        string
	Address           string
	Purpose           string
	IssuedDate        time.Time
	ValidUntil        *time.Time
	DigitalSignature  string
	IssuingAuthority  string
}

// Generator renders issued certificates as PDF documents.
type Generator struct{}

func NewGenerator() *Generator {
	return &Generator{}
}

// Generate renders the certificate and returns the PDF bytes.
func (g *Generator) Generate(data CertificateData) (io.Reader, error) {
	doc := gofpdf.New("P", "mm", "A4", "")
	doc.AddPage()

	doc.SetFont("Times", "B", 20)
	doc.CellFormat(0, 14, "GOVERNMENT CERTIFICATE", "", 1, "C", false, 0, "")

	doc.SetFont("Times", "", 13)
	doc.CellFormat(0, 8, strings.Title(data.CertificateType)+" Certificate", "", 1, "C", false, 0, "")
	doc.Ln(6)

	doc.SetFont("Times", "", 12)
	rows := [][2]string{
		{"Certificate No.", data.CertificateNumber},
		{"Issued To", data.IssuedTo},
		{"Father's Name", data.FatherName},
		{"Address", data.Address},
		{"Purpose", data.Purpose},
		{"Date of Issue", data.IssuedDate.Format("02 January 2006")},
	}
	if data.ValidUntil != nil {
		rows = append(rows, [2]string{"Valid Until", data.ValidUntil.Format("02 January 2006")})
	}
	for _, row := range rows {
		doc.SetFont("Times", "B", 12)
		doc.CellFormat(50, 9, row[0], "", 0, "L", false, 0, "")
		doc.SetFont("Times", "", 12)
		doc.MultiCell(0, 9, row[1], "", "L", false)
	}

	doc.Ln(14)
	doc.SetFont("Times", "I", 11)
	doc.CellFormat(0, 8, data.IssuingAuthority, "", 1, "R", false, 0, "")
	doc.CellFormat(0, 6, "Sub-Divisional Officer", "", 1, "R", false, 0, "")

	doc.Ln(10)
	doc.SetFont("Courier", "", 8)
	doc.MultiCell(0, 5, fmt.Sprintf("Digital signature: %s", data.DigitalSignature), "", "L", false)
	doc.SetFont("Times", "", 8)
	doc.CellFormat(0, 5, "Verify this certificate online using the certificate number above.", "", 1, "L", false, 0, "")

	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		return nil, fmt.Errorf("render certificate pdf: %w", err)
	}
	return &buf, nil
}
