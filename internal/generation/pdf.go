package generation

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/go-pdf/fpdf"
	"github.com/google/uuid"

	"github.com/aldoetobex/section1983-backend/internal/storage"
)

const (
	pdfFont     = "Times"
	pdfBodySize = 12
	pdfLineH    = 6
)

// RenderPDF writes the complaint as a letter-size PDF. The caption is set
// as-is; every other section gets a centered heading.
func RenderPDF(w io.Writer, c *Complaint) error {
	pdf := fpdf.New("P", "mm", "Letter", "")
	pdf.SetMargins(25, 25, 25)
	pdf.SetAutoPageBreak(true, 25)
	pdf.SetTitle(c.Title, true)
	pdf.SetCreator("section1983-backend", true)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFooterFunc(func() {
		pdf.SetY(-15)
		pdf.SetFont(pdfFont, "", 9)
		pdf.CellFormat(0, 10, fmt.Sprintf("Page %d", pdf.PageNo()), "", 0, "C", false, 0, "")
	})
	pdf.AddPage()

	for i, s := range c.Sections {
		if strings.TrimSpace(s.Text) == "" {
			continue
		}
		if i == 0 {
			pdf.SetFont(pdfFont, "B", pdfBodySize)
			pdf.MultiCell(0, pdfLineH, tr(s.Text), "", "L", false)
			pdf.Ln(pdfLineH)
			continue
		}
		pdf.SetFont(pdfFont, "B", pdfBodySize)
		pdf.CellFormat(0, pdfLineH*1.5, tr(strings.ToUpper(s.Title)), "", 1, "C", false, 0, "")
		pdf.SetFont(pdfFont, "", pdfBodySize)
		pdf.MultiCell(0, pdfLineH, tr(s.Text), "", "J", false)
		pdf.Ln(pdfLineH)
	}
	if err := pdf.Error(); err != nil {
		return fmt.Errorf("render pdf: %w", err)
	}
	return pdf.Output(w)
}

// PublishPDF uploads the rendered complaint and returns a signed link.
func PublishPDF(ctx context.Context, store storage.Store, docID uuid.UUID, c *Complaint, expiresIn int) (key, url string, err error) {
	var buf bytes.Buffer
	if err := RenderPDF(&buf, c); err != nil {
		return "", "", err
	}
	key = storage.ComplaintKey(docID.String())
	if err := store.Upload(ctx, key, &buf, "application/pdf", int64(buf.Len())); err != nil {
		return "", "", fmt.Errorf("upload pdf: %w", err)
	}
	url, err = store.SignedURL(ctx, key, expiresIn)
	if err != nil {
		return "", "", fmt.Errorf("sign pdf url: %w", err)
	}
	return key, url, nil
}
