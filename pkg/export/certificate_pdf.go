package export

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// Certificate is the printable proof that a student finished clearance.
type Certificate struct {
	StudentName   string
	ApplicationID string
	Department    string
	CompletedAt   time.Time
	IssuedAt      time.Time
	// Sections are rendered in order, one table each.
	Sections []CertificateSection
}

// CertificateSection is a titled table such as "Forms" or "Documents".
type CertificateSection struct {
	Title string
	Data  Dataset
}

// CertificateRenderer lays out clearance certificates with gofpdf.
type CertificateRenderer struct {
	institution string
}

func NewCertificateRenderer(institution string) *CertificateRenderer {
	if institution == "" {
		institution = "Office of the Registrar"
	}
	return &CertificateRenderer{institution: institution}
}

// Render produces the PDF bytes.
func (r *CertificateRenderer) Render(cert Certificate) ([]byte, error) {
	if cert.ApplicationID == "" {
		return nil, fmt.Errorf("certificate requires an application id")
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 20, 15)
	pdf.SetTitle("Clearance Certificate "+cert.ApplicationID, false)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.CellFormat(0, 10, r.institution, "", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "B", 13)
	pdf.CellFormat(0, 9, "CLEARANCE CERTIFICATE", "", 1, "C", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont("Arial", "", 11)
	lines := [][2]string{
		{"Student", cert.StudentName},
		{"Application ID", cert.ApplicationID},
		{"Department", cert.Department},
		{"Cleared on", formatStamp(cert.CompletedAt)},
		{"Issued on", formatStamp(cert.IssuedAt)},
	}
	for _, line := range lines {
		pdf.SetFont("Arial", "B", 11)
		pdf.CellFormat(40, 7, line[0]+":", "", 0, "", false, 0, "")
		pdf.SetFont("Arial", "", 11)
		pdf.CellFormat(0, 7, line[1], "", 1, "", false, 0, "")
	}

	for _, section := range cert.Sections {
		if len(section.Data.Headers) == 0 {
			continue
		}
		pdf.Ln(5)
		pdf.SetFont("Arial", "B", 12)
		pdf.CellFormat(0, 8, section.Title, "", 1, "", false, 0, "")

		width := 180.0 / float64(len(section.Data.Headers))
		pdf.SetFont("Arial", "B", 9)
		for _, header := range section.Data.Headers {
			pdf.CellFormat(width, 7, header, "1", 0, "C", false, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Arial", "", 9)
		for _, row := range section.Data.Rows {
			for _, header := range section.Data.Headers {
				pdf.CellFormat(width, 6, row[header], "1", 0, "", false, 0, "")
			}
			pdf.Ln(-1)
		}
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render certificate: %w", err)
	}
	return buf.Bytes(), nil
}

func formatStamp(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format("02 Jan 2006 15:04 UTC")
}
