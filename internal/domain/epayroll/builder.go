package epayroll

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"hrpayroll/internal/domain/epayroll/ubl"
)

const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04:05-07:00"

	// Additional account ids: 1 legal entity (employer), 2 natural person.
	accountLegalEntity   = "1"
	accountNaturalPerson = "2"

	environmentProduction = "1"
	environmentTest       = "2"
)

var hundred = decimal.NewFromInt(100)

type BuildParams struct {
	UniqueCode  string
	Sequence    int64
	IssuedAt    time.Time
	Location    *time.Location
	SoftwareID  string
	ProviderID  string
	Environment string
}

// BuildDocument validates the bundle, renders the XML and returns the
// document row snapshot ready for insertion.
func BuildDocument(bundle PayslipBundle, params BuildParams) (Document, error) {
	inv, err := BuildInvoice(bundle, params)
	if err != nil {
		return Document{}, err
	}
	content, err := ubl.Marshal(inv)
	if err != nil {
		return Document{}, fmt.Errorf("%w: %v", ErrBuild, err)
	}

	employerTaxID, source := employerTaxID(bundle.Organization)
	slip := bundle.Payslip
	return Document{
		TenantID:            bundle.Organization.ID,
		PayslipID:           slip.ID,
		UniqueCode:          params.UniqueCode,
		SequenceNumber:      params.Sequence,
		DocumentNumber:      DocumentNumber(params.Sequence),
		DocumentType:        DocumentTypeIndividual,
		PeriodType:          PeriodTypeFor(bundle.Period.StartDate, bundle.Period.EndDate),
		PaymentMethod:       PaymentMethodFor(bundle.Employee),
		EmployerName:        bundle.Organization.Name,
		EmployerTaxID:       employerTaxID,
		EmployerTaxIDSource: source,
		EmployeeName:        bundle.Employee.FullName(),
		EmployeeTaxID:       strings.TrimSpace(bundle.Employee.TaxID),
		EmployeePosition:    bundle.Employee.Position,
		Salary:              slip.BaseSalary,
		EarnedIncome:        slip.BaseSalary.Add(slip.Overtime),
		Deductions:          slip.Taxes,
		NetPayment:          slip.NetPay,
		Content:             string(content),
		Status:              DocumentStatusGenerated,
		IssuedAt:            params.IssuedAt,
	}, nil
}

// BuildInvoice maps a payslip bundle onto the typed UBL model.
func BuildInvoice(bundle PayslipBundle, params BuildParams) (*ubl.Invoice, error) {
	if err := validateBundle(bundle); err != nil {
		return nil, err
	}
	if params.UniqueCode == "" || params.Sequence <= 0 {
		return nil, fmt.Errorf("%w: unique code and sequence are required", ErrBuild)
	}
	loc := params.Location
	if loc == nil {
		loc = time.UTC
	}
	issued := params.IssuedAt.In(loc)
	slip := bundle.Payslip
	period := bundle.Period
	due := period.PayDate
	employerID, _ := employerTaxID(bundle.Organization)
	periodType := PeriodTypeFor(period.StartDate, period.EndDate)

	inv := ubl.New()
	inv.Extensions = ubl.Extensions{Extension: []ubl.Extension{{
		Content: ubl.ExtensionContent{Payroll: &ubl.PayrollExtension{
			SoftwareProvider:   ubl.SoftwareProvider{ProviderID: params.ProviderID, SoftwareID: params.SoftwareID},
			Sequence:           ubl.Sequence{Prefix: DocumentNumberPrefix, Number: params.Sequence},
			UniqueCode:         params.UniqueCode,
			GenerationDateTime: issued.Format(time.RFC3339),
			PeriodType:         periodType,
			Environment:        environmentCode(params.Environment),
		}},
	}}}
	inv.ProfileExecutionID = environmentCode(params.Environment)
	inv.ID = DocumentNumber(params.Sequence)
	inv.UUID = ubl.UUID{SchemeName: ubl.UUIDScheme, Value: params.UniqueCode}
	inv.IssueDate = issued.Format(dateLayout)
	inv.IssueTime = issued.Format(timeLayout)
	inv.DueDate = due.Format(dateLayout)
	inv.InvoiceTypeCode = DocumentTypeIndividual
	inv.Note = period.Name
	inv.DocumentCurrencyCode = Currency
	inv.LineCountNumeric = 1
	inv.InvoicePeriod = ubl.Period{
		StartDate: period.StartDate.Format(dateLayout),
		EndDate:   period.EndDate.Format(dateLayout),
	}
	inv.Supplier = ubl.SupplierParty{
		AdditionalAccountID: accountLegalEntity,
		Party: ubl.Party{
			Name:      ubl.PartyName{Name: bundle.Organization.Name},
			TaxScheme: ubl.PartyTaxScheme{RegistrationName: bundle.Organization.Name, CompanyID: employerID},
		},
	}
	employeeName := bundle.Employee.FullName()
	inv.Customer = ubl.CustomerParty{
		AdditionalAccountID: accountNaturalPerson,
		Party: ubl.Party{
			Name:      ubl.PartyName{Name: employeeName},
			TaxScheme: ubl.PartyTaxScheme{RegistrationName: employeeName, CompanyID: strings.TrimSpace(bundle.Employee.TaxID)},
			Contact:   &ubl.Contact{Name: employeeName},
			JobTitle:  bundle.Employee.Position,
		},
	}
	inv.PaymentMeans = ubl.PaymentMeans{
		ID:               "1",
		PaymentMeansCode: PaymentMethodFor(bundle.Employee),
		PaymentDueDate:   due.Format(dateLayout),
	}
	inv.TaxTotal = ubl.TaxTotal{
		TaxAmount: amount(slip.Taxes),
		TaxSubtotal: ubl.TaxSubtotal{
			TaxableAmount: amount(slip.BaseSalary),
			TaxAmount:     amount(slip.Taxes),
			TaxCategory: ubl.TaxCategory{
				Percent:   taxPercent(slip.Taxes, slip.BaseSalary),
				TaxScheme: ubl.TaxScheme{ID: "01", Name: "Withholding"},
			},
		},
	}
	inv.LegalMonetaryTotal = ubl.MonetaryTotal{
		LineExtensionAmount: amount(slip.BaseSalary.Add(slip.Overtime)),
		TaxExclusiveAmount:  amount(slip.BaseSalary),
		TaxInclusiveAmount:  amount(slip.BaseSalary.Add(slip.Taxes)),
		PayableAmount:       amount(slip.NetPay),
	}
	inv.Lines = []ubl.InvoiceLine{{
		ID:                  "1",
		InvoicedQuantity:    ubl.Quantity{UnitCode: "EA", Value: "1"},
		LineExtensionAmount: amount(slip.BaseSalary),
		Item:                ubl.Item{Description: "Base salary"},
		Price:               ubl.Price{PriceAmount: amount(slip.BaseSalary)},
	}}
	return inv, nil
}

// PeriodTypeFor classifies a pay period by its length in days.
func PeriodTypeFor(start, end time.Time) string {
	days := int(end.Sub(start).Hours()/24) + 1
	switch {
	case days <= 7:
		return PeriodTypeWeekly
	case days <= 10:
		return PeriodTypeTenDays
	case days <= 16:
		return PeriodTypeFortnightly
	case days <= 31:
		return PeriodTypeMonthly
	default:
		return PeriodTypeOther
	}
}

func PaymentMethodFor(emp Employee) string {
	if strings.TrimSpace(emp.BankAccount) != "" {
		return PaymentMethodBankTransfer
	}
	return PaymentMethodCash
}

// employerTaxID falls back to the organization name when no tax id is on
// record; the source value marks the substitution.
func employerTaxID(org Organization) (string, string) {
	if id := strings.TrimSpace(org.TaxID); id != "" {
		return id, TaxIDSourceTaxID
	}
	return org.Name, TaxIDSourceNamePlaceholder
}

func validateBundle(b PayslipBundle) error {
	var problems []string
	if b.Organization.Name == "" {
		problems = append(problems, "organization name is missing")
	}
	if strings.TrimSpace(b.Employee.TaxID) == "" {
		problems = append(problems, "employee tax id is missing")
	}
	if b.Period.StartDate.IsZero() || b.Period.EndDate.IsZero() {
		problems = append(problems, "period dates are missing")
	} else if b.Period.EndDate.Before(b.Period.StartDate) {
		problems = append(problems, "period ends before it starts")
	}
	if b.Period.PayDate.IsZero() {
		problems = append(problems, "period pay date is missing")
	}
	for _, a := range []struct {
		name  string
		value decimal.Decimal
	}{
		{"base salary", b.Payslip.BaseSalary},
		{"overtime", b.Payslip.Overtime},
		{"taxes", b.Payslip.Taxes},
		{"net pay", b.Payslip.NetPay},
	} {
		if a.value.IsNegative() {
			problems = append(problems, a.name+" is negative")
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrBuild, strings.Join(problems, "; "))
	}
	return nil
}

func amount(d decimal.Decimal) ubl.Amount {
	return ubl.Amount{CurrencyID: Currency, Value: d.StringFixed(2)}
}

func taxPercent(taxes, base decimal.Decimal) string {
	if base.IsZero() {
		return decimal.Zero.StringFixed(2)
	}
	return taxes.Div(base).Mul(hundred).StringFixed(2)
}

func environmentCode(env string) string {
	if env == "production" {
		return environmentProduction
	}
	return environmentTest
}
