package epayroll

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBundle() PayslipBundle {
	return PayslipBundle{
		Organization: Organization{ID: "org-1", Name: "Acme Payroll SAS", TaxID: "900123456"},
		Employee: Employee{
			ID:          "emp-1",
			FirstName:   "Ana",
			LastName:    "Gomez",
			TaxID:       "1020304050",
			Position:    "Analyst",
			BankAccount: "001-998877",
		},
		Period: Period{
			ID:        "per-1",
			Name:      "March 2024",
			StartDate: time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC),
			EndDate:   time.Date(2024, time.March, 31, 0, 0, 0, 0, time.UTC),
			PayDate:   time.Date(2024, time.April, 5, 0, 0, 0, 0, time.UTC),
		},
		Payslip: Payslip{
			ID:         "slip-1",
			BaseSalary: decimal.NewFromInt(1000000),
			Overtime:   decimal.NewFromInt(50000),
			Taxes:      decimal.NewFromInt(150000),
			NetPay:     decimal.NewFromInt(850000),
		},
	}
}

func testParams() BuildParams {
	return BuildParams{
		UniqueCode: "0123456789ABCDEF0123456789ABCDEF",
		Sequence:   12,
		IssuedAt:   time.Date(2024, time.April, 1, 15, 30, 0, 0, time.UTC),
		Location:   time.FixedZone("COT", -5*3600),
		SoftwareID: "soft-1",
		ProviderID: "prov-1",
	}
}

func TestBuildDocumentContent(t *testing.T) {
	doc, err := BuildDocument(testBundle(), testParams())
	require.NoError(t, err)
	for _, want := range []string{
		`<cbc:UUID schemeName="CUNE">0123456789ABCDEF0123456789ABCDEF</cbc:UUID>`,
		`<cbc:ID>NE12</cbc:ID>`,
		`<cbc:IssueDate>2024-04-01</cbc:IssueDate>`,
		`<cbc:IssueTime>10:30:00-05:00</cbc:IssueTime>`,
		`<cbc:DueDate>2024-04-05</cbc:DueDate>`,
		`<cbc:InvoiceTypeCode>102</cbc:InvoiceTypeCode>`,
		`<cbc:DocumentCurrencyCode>COP</cbc:DocumentCurrencyCode>`,
		`<cbc:StartDate>2024-03-01</cbc:StartDate>`,
		`<cbc:CompanyID>900123456</cbc:CompanyID>`,
		`<cbc:CompanyID>1020304050</cbc:CompanyID>`,
		`<cbc:JobTitle>Analyst</cbc:JobTitle>`,
		`<cbc:PaymentMeansCode>42</cbc:PaymentMeansCode>`,
		`<cbc:TaxAmount currencyID="COP">150000.00</cbc:TaxAmount>`,
		`<cbc:TaxableAmount currencyID="COP">1000000.00</cbc:TaxableAmount>`,
		`<cbc:Percent>15.00</cbc:Percent>`,
		`<cbc:LineExtensionAmount currencyID="COP">1050000.00</cbc:LineExtensionAmount>`,
		`<cbc:TaxInclusiveAmount currencyID="COP">1150000.00</cbc:TaxInclusiveAmount>`,
		`<cbc:PayableAmount currencyID="COP">850000.00</cbc:PayableAmount>`,
		`<sts:NumberSequence Prefix="NE" Number="12"></sts:NumberSequence>`,
		`<sts:SoftwareID>soft-1</sts:SoftwareID>`,
	} {
		assert.Contains(t, doc.Content, want)
	}
	assert.Equal(t, DocumentStatusGenerated, doc.Status)
	assert.Equal(t, "NE12", doc.DocumentNumber)
	assert.Equal(t, int64(12), doc.SequenceNumber)
	assert.True(t, doc.EarnedIncome.Equal(decimal.NewFromInt(1050000)), "earned %s", doc.EarnedIncome)
	assert.True(t, doc.NetPayment.Equal(decimal.NewFromInt(850000)), "net %s", doc.NetPayment)
	assert.Equal(t, TaxIDSourceTaxID, doc.EmployerTaxIDSource)
	assert.Equal(t, PeriodTypeMonthly, doc.PeriodType)
}

func TestBuildDocumentFallsBackToOrganizationName(t *testing.T) {
	bundle := testBundle()
	bundle.Organization.TaxID = ""
	bundle.Employee.BankAccount = ""
	doc, err := BuildDocument(bundle, testParams())
	require.NoError(t, err)
	assert.Equal(t, "Acme Payroll SAS", doc.EmployerTaxID)
	assert.Equal(t, TaxIDSourceNamePlaceholder, doc.EmployerTaxIDSource)
	assert.Equal(t, PaymentMethodCash, doc.PaymentMethod, "no bank account means cash")
}

func TestBuildDocumentValidation(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*PayslipBundle)
	}{
		{"missing dates", func(b *PayslipBundle) { b.Period.StartDate = time.Time{} }},
		{"end before start", func(b *PayslipBundle) { b.Period.EndDate = b.Period.StartDate.AddDate(0, 0, -1) }},
		{"missing employee tax id", func(b *PayslipBundle) { b.Employee.TaxID = "  " }},
		{"negative net", func(b *PayslipBundle) { b.Payslip.NetPay = decimal.NewFromInt(-1) }},
		{"missing pay date", func(b *PayslipBundle) { b.Period.PayDate = time.Time{} }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			bundle := testBundle()
			tc.mutate(&bundle)
			_, err := BuildDocument(bundle, testParams())
			assert.ErrorIs(t, err, ErrBuild)
		})
	}
}

func TestPeriodTypeFor(t *testing.T) {
	start := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	cases := []struct {
		days int
		want string
	}{
		{7, PeriodTypeWeekly},
		{10, PeriodTypeTenDays},
		{15, PeriodTypeFortnightly},
		{31, PeriodTypeMonthly},
		{90, PeriodTypeOther},
	}
	for _, tc := range cases {
		end := start.AddDate(0, 0, tc.days-1)
		assert.Equal(t, tc.want, PeriodTypeFor(start, end), "%d days", tc.days)
	}
}
