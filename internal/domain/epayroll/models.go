package epayroll

import (
	"time"

	"github.com/shopspring/decimal"
)

type Organization struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	TaxID string `json:"taxId,omitempty"`
}

type Employee struct {
	ID          string `json:"id"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	TaxID       string `json:"taxId"`
	Position    string `json:"position"`
	BankAccount string `json:"-"`
}

func (e Employee) FullName() string {
	switch {
	case e.FirstName == "":
		return e.LastName
	case e.LastName == "":
		return e.FirstName
	}
	return e.FirstName + " " + e.LastName
}

type Period struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	StartDate time.Time `json:"startDate"`
	EndDate   time.Time `json:"endDate"`
	PayDate   time.Time `json:"payDate"`
	Status    string    `json:"status"`
}

type Payslip struct {
	ID         string          `json:"id"`
	EmployeeID string          `json:"employeeId"`
	PeriodID   string          `json:"periodId"`
	BaseSalary decimal.Decimal `json:"baseSalary"`
	Overtime   decimal.Decimal `json:"overtime"`
	Taxes      decimal.Decimal `json:"taxes"`
	NetPay     decimal.Decimal `json:"netPay"`
}

// PayslipBundle is a payslip joined with the records the document is built from.
type PayslipBundle struct {
	Payslip      Payslip
	Employee     Employee
	Period       Period
	Organization Organization
}

type Document struct {
	ID                  string          `json:"id"`
	TenantID            string          `json:"-"`
	PayslipID           string          `json:"payslipId"`
	UniqueCode          string          `json:"uniqueCode"`
	SequenceNumber      int64           `json:"sequenceNumber"`
	DocumentNumber      string          `json:"documentNumber"`
	DocumentType        string          `json:"documentType"`
	PeriodType          string          `json:"periodType"`
	PaymentMethod       string          `json:"paymentMethod"`
	EmployerName        string          `json:"employerName"`
	EmployerTaxID       string          `json:"employerTaxId"`
	EmployerTaxIDSource string          `json:"employerTaxIdSource"`
	EmployeeName        string          `json:"employeeName"`
	EmployeeTaxID       string          `json:"employeeTaxId"`
	EmployeePosition    string          `json:"employeePosition"`
	Salary              decimal.Decimal `json:"salary"`
	EarnedIncome        decimal.Decimal `json:"earnedIncome"`
	Deductions          decimal.Decimal `json:"deductions"`
	NetPayment          decimal.Decimal `json:"netPayment"`
	Content             string          `json:"content,omitempty"`
	Signature           *string         `json:"signature,omitempty"`
	SignatureAlgorithm  string          `json:"signatureAlgorithm,omitempty"`
	Status              string          `json:"status"`
	IssuedAt            time.Time       `json:"issuedAt"`
	SignedAt            *time.Time      `json:"signedAt,omitempty"`
	TransmittedAt       *time.Time      `json:"transmittedAt,omitempty"`
	CreatedAt           time.Time       `json:"createdAt"`
	UpdatedAt           time.Time       `json:"updatedAt"`
}

type Transmission struct {
	ID              string     `json:"id"`
	TenantID        string     `json:"-"`
	DocumentID      string     `json:"documentId"`
	Status          string     `json:"status"`
	ResponseCode    string     `json:"responseCode"`
	ResponseMessage string     `json:"responseMessage"`
	RetryCount      int        `json:"retryCount"`
	NextRetryAt     *time.Time `json:"nextRetryDate,omitempty"`
	TransmittedAt   time.Time  `json:"transmittedAt"`
	RespondedAt     *time.Time `json:"respondedAt,omitempty"`
}

type PayslipSummary struct {
	ID         string          `json:"id"`
	BaseSalary decimal.Decimal `json:"baseSalary"`
	Taxes      decimal.Decimal `json:"taxes"`
	NetPay     decimal.Decimal `json:"netPay"`
}

type EmployeeSummary struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

type PeriodSummary struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	StartDate time.Time `json:"startDate"`
	EndDate   time.Time `json:"endDate"`
}

// DocumentListItem is a document with the payslip, employee and period it
// was built from. Content is omitted from listings.
type DocumentListItem struct {
	Document
	Payslip  PayslipSummary  `json:"payslip"`
	Employee EmployeeSummary `json:"employee"`
	Period   PeriodSummary   `json:"period"`
}

type TransmissionDocumentSummary struct {
	ID             string          `json:"id"`
	UniqueCode     string          `json:"uniqueCode"`
	DocumentNumber string          `json:"documentNumber"`
	Status         string          `json:"status"`
	Payslip        PayslipSummary  `json:"payslip"`
	Employee       EmployeeSummary `json:"employee"`
}

type TransmissionListItem struct {
	Transmission
	NeedsAttention bool                        `json:"needsAttention"`
	Document       TransmissionDocumentSummary `json:"document"`
}

type DocumentFilter struct {
	Status string
}

type TransmissionFilter struct {
	Status         string
	DocumentID     string
	NeedsAttention bool
	// MaxAttempts is the retry cap used to evaluate NeedsAttention.
	MaxAttempts int
}

type ComplianceStatus struct {
	EmployeeCount int        `json:"employeeCount"`
	IsCompliant   bool       `json:"isCompliant"`
	Message       string     `json:"message"`
	Phase         int        `json:"phase,omitempty"`
	EffectiveDate *time.Time `json:"effectiveDate,omitempty"`
}

type SignResult struct {
	DocumentID string    `json:"documentId"`
	Signature  string    `json:"signature"`
	Algorithm  string    `json:"algorithm"`
	Status     string    `json:"status"`
	SignedAt   time.Time `json:"signedAt"`
}

type AuthorityResponse struct {
	Status  string `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type TransmitResult struct {
	Success      bool              `json:"success"`
	Response     AuthorityResponse `json:"response"`
	Transmission Transmission      `json:"transmission"`
}

type SweepReport struct {
	Recovered int `json:"recovered"`
	Due       int `json:"due"`
	Accepted  int `json:"accepted"`
	Rejected  int `json:"rejected"`
	Terminal  int `json:"terminal"`
	Failed    int `json:"failed"`
}

// SigningCredential is a tenant's stored signing key, encrypted at rest.
type SigningCredential struct {
	TenantID    string
	Format      string
	KeyEnc      []byte
	PasswordEnc []byte
	UpdatedAt   time.Time
}
