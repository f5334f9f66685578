package epayroll

import (
	"context"
	"time"
)

// BuildFunc renders a document for an allocated sequence number. It runs
// inside the allocation transaction; returning an error rolls the
// allocation back.
type BuildFunc func(sequence int64) (Document, error)

type StoreAPI interface {
	GetOrganization(ctx context.Context, tenantID string) (Organization, error)
	CountActiveEmployees(ctx context.Context, tenantID string) (int, error)
	GetPayslipBundle(ctx context.Context, tenantID, payslipID string) (PayslipBundle, error)
	DocumentExistsForPayslip(ctx context.Context, tenantID, payslipID string) (bool, error)
	CreateDocument(ctx context.Context, tenantID string, build BuildFunc) (Document, error)
	GetDocument(ctx context.Context, tenantID, documentID string) (Document, error)
	CountDocuments(ctx context.Context, tenantID string, filter DocumentFilter) (int, error)
	ListDocuments(ctx context.Context, tenantID string, filter DocumentFilter, limit, offset int) ([]DocumentListItem, error)
	UpdateSignature(ctx context.Context, tenantID, documentID, signature, algorithm string, signedAt time.Time) (Document, error)
	LatestTransmission(ctx context.Context, tenantID, documentID string) (Transmission, bool, error)
	BeginTransmission(ctx context.Context, tenantID, documentID string, retryCount int, sentAt time.Time) (Transmission, error)
	CompleteTransmission(ctx context.Context, tenantID string, t Transmission, documentStatus string) error
	ListStaleTransmissions(ctx context.Context, tenantID string, sentBefore time.Time) ([]Transmission, error)
	ListDueRetries(ctx context.Context, tenantID string, now time.Time, maxAttempts int) ([]Transmission, error)
	CountTransmissions(ctx context.Context, tenantID string, filter TransmissionFilter) (int, error)
	ListTransmissions(ctx context.Context, tenantID string, filter TransmissionFilter, limit, offset int) ([]TransmissionListItem, error)
	SaveCredential(ctx context.Context, cred SigningCredential) error
	GetCredential(ctx context.Context, tenantID string) (SigningCredential, error)
}
