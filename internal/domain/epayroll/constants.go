package epayroll

import "time"

const (
	DocumentStatusGenerated = "generated"
	DocumentStatusSigned    = "signed"
	DocumentStatusAccepted  = "accepted"
	DocumentStatusRejected  = "rejected"

	TransmissionStatusSent     = "sent"
	TransmissionStatusAccepted = "accepted"
	TransmissionStatusRejected = "rejected"

	// DocumentTypeIndividual is the authority's type code for an individual
	// electronic payroll document.
	DocumentTypeIndividual = "102"
	Currency               = "COP"
	DocumentNumberPrefix   = "NE"

	PaymentMethodCash         = "10"
	PaymentMethodBankTransfer = "42"

	PeriodTypeWeekly      = "1"
	PeriodTypeTenDays     = "2"
	PeriodTypeFortnightly = "4"
	PeriodTypeMonthly     = "5"
	PeriodTypeOther       = "6"

	TaxIDSourceTaxID           = "tax_id"
	TaxIDSourceNamePlaceholder = "name_placeholder"

	ResponseCodeTransportError = "TRANSPORT_ERROR"
	ResponseCodeStale          = "STALE"

	EmployeeStatusActive = "active"

	DefaultMaxAttempts = 3
	DefaultBackoff     = 24 * time.Hour

	BackoffFixed       = "fixed"
	BackoffExponential = "exponential"
)
