package epayroll

import (
	"bytes"
	"context"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/shopspring/decimal"
)

// RenderPDF produces the printable representation of a document.
func (s *Service) RenderPDF(ctx context.Context, tenantID, documentID string) ([]byte, error) {
	doc, err := s.store.GetDocument(ctx, tenantID, documentID)
	if err != nil {
		return nil, err
	}
	return RenderDocumentPDF(doc, s.location)
}

func RenderDocumentPDF(doc Document, loc *time.Location) ([]byte, error) {
	if loc == nil {
		loc = time.UTC
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(doc.DocumentNumber, true)
	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 16)
	pdf.Cell(0, 10, "Electronic Payroll Document "+doc.DocumentNumber)
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "", 10)
	line := func(label, value string) {
		pdf.CellFormat(55, 7, label, "", 0, "L", false, 0, "")
		pdf.CellFormat(0, 7, value, "", 1, "L", false, 0, "")
	}
	line("Unique code (CUNE)", doc.UniqueCode)
	line("Issued", doc.IssuedAt.In(loc).Format("2006-01-02 15:04:05 MST"))
	line("Status", doc.Status)
	line("Period type", doc.PeriodType)
	line("Payment method", doc.PaymentMethod)
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "Employer")
	pdf.Ln(8)
	pdf.SetFont("Helvetica", "", 10)
	line("Name", doc.EmployerName)
	line("Tax id", doc.EmployerTaxID)
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "Employee")
	pdf.Ln(8)
	pdf.SetFont("Helvetica", "", 10)
	line("Name", doc.EmployeeName)
	line("Tax id", doc.EmployeeTaxID)
	line("Position", doc.EmployeePosition)
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "Amounts ("+Currency+")")
	pdf.Ln(8)
	pdf.SetFont("Helvetica", "", 10)
	money := func(label string, d decimal.Decimal) {
		pdf.CellFormat(55, 7, label, "", 0, "L", false, 0, "")
		pdf.CellFormat(40, 7, d.StringFixed(2), "", 1, "R", false, 0, "")
	}
	money("Salary", doc.Salary)
	money("Earned income", doc.EarnedIncome)
	money("Deductions", doc.Deductions)
	money("Net payment", doc.NetPayment)

	if doc.Signature != nil {
		pdf.Ln(6)
		pdf.SetFont("Helvetica", "", 7)
		pdf.MultiCell(0, 4, "Signature ("+doc.SignatureAlgorithm+"): "+*doc.Signature, "", "L", false)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
