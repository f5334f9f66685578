package epayroll

import "errors"

var (
	ErrPayslipNotFound      = errors.New("payslip not found")
	ErrDocumentNotFound     = errors.New("electronic payroll document not found")
	ErrDuplicateDocument    = errors.New("electronic payroll document already exists for payslip")
	ErrBuild                = errors.New("electronic payroll document build failed")
	ErrSigning              = errors.New("electronic payroll document signing failed")
	ErrAlreadyAccepted      = errors.New("electronic payroll document already accepted")
	ErrTransmissionInFlight = errors.New("electronic payroll document has a transmission in flight")
	ErrNotObligated         = errors.New("organization is not yet obligated to issue electronic payroll")
	ErrCredentialNotFound   = errors.New("signing credential not configured")
	ErrOrganizationNotFound = errors.New("organization not found")
)
