package email

import (
	"context"
	"fmt"
	"strings"
	"time"

	"hrpayroll/internal/domain/epayroll"
)

// FailureAlerts mails operators when a document exhausts its transmission
// retries. An empty recipient disables it.
type FailureAlerts struct {
	Mailer Mailer
	From   string
	To     string
	Loc    *time.Location
}

func NewFailureAlerts(mailer Mailer, from, to string, loc *time.Location) *FailureAlerts {
	if loc == nil {
		loc = time.UTC
	}
	return &FailureAlerts{Mailer: mailer, From: from, To: to, Loc: loc}
}

func (a *FailureAlerts) NotifyTerminalFailure(ctx context.Context, doc epayroll.Document, t epayroll.Transmission) error {
	if a == nil || a.Mailer == nil || strings.TrimSpace(a.To) == "" {
		return nil
	}
	subject := fmt.Sprintf("Electronic payroll %s rejected after %d attempts", doc.DocumentNumber, t.RetryCount)
	return a.Mailer.Send(ctx, a.From, a.To, subject, failureBody(doc, t, a.Loc))
}

func failureBody(doc epayroll.Document, t epayroll.Transmission, loc *time.Location) string {
	lines := []string{
		"The tax authority rejected an electronic payroll document and no retries remain.",
		"",
		"Document:  " + doc.DocumentNumber,
		"CUNE:      " + doc.UniqueCode,
		"Employee:  " + doc.EmployeeName + " (" + doc.EmployeeTaxID + ")",
		"Code:      " + t.ResponseCode,
		"Message:   " + t.ResponseMessage,
		"Last sent: " + t.TransmittedAt.In(loc).Format(time.RFC3339),
		"",
		"Correct the document data and transmit it again manually.",
	}
	return strings.Join(lines, "\n")
}
