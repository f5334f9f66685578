package epayroll

import "context"

// Submission is what gets delivered to the tax authority for one attempt.
type Submission struct {
	TenantID           string
	DocumentID         string
	UniqueCode         string
	DocumentNumber     string
	Content            string
	Signature          string
	SignatureAlgorithm string
}

func NewSubmission(doc Document) Submission {
	sub := Submission{
		TenantID:           doc.TenantID,
		DocumentID:         doc.ID,
		UniqueCode:         doc.UniqueCode,
		DocumentNumber:     doc.DocumentNumber,
		Content:            doc.Content,
		SignatureAlgorithm: doc.SignatureAlgorithm,
	}
	if doc.Signature != nil {
		sub.Signature = *doc.Signature
	}
	return sub
}

// Reply is the authority's verdict. Any status other than "accepted" is a
// rejection.
type Reply struct {
	Status  string `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (r Reply) Accepted() bool {
	return r.Status == TransmissionStatusAccepted
}

type Authority interface {
	Submit(ctx context.Context, sub Submission) (Reply, error)
}

// FailureNotifier is told when a transmission exhausts its retries.
type FailureNotifier interface {
	NotifyTerminalFailure(ctx context.Context, doc Document, t Transmission) error
}

// Observer receives the outcome of every completed transmission attempt.
type Observer interface {
	ObserveTransmission(status string, terminal bool)
}
