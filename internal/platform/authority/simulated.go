package authority

import (
	"context"
	"crypto"
	"strings"

	"github.com/google/uuid"

	"hrpayroll/internal/domain/epayroll"
)

const (
	CodeAccepted         = "00"
	CodeMissingSignature = "SIM_SIGNATURE_MISSING"
	CodeBadSignature     = "SIM_SIGNATURE_INVALID"
	CodeEmptyDocument    = "SIM_EMPTY_DOCUMENT"
)

// Simulated stands in for the authority in development. It accepts every
// signed document and answers with a receipt number. With PublicKey set it
// also checks the signature.
type Simulated struct {
	PublicKey crypto.PublicKey
}

func NewSimulated() *Simulated {
	return &Simulated{}
}

func (s *Simulated) Submit(ctx context.Context, sub epayroll.Submission) (epayroll.Reply, error) {
	if err := ctx.Err(); err != nil {
		return epayroll.Reply{}, err
	}
	switch {
	case strings.TrimSpace(sub.Content) == "":
		return rejected(CodeEmptyDocument, "document content is empty"), nil
	case sub.Signature == "":
		return rejected(CodeMissingSignature, "document is not signed"), nil
	}
	if s.PublicKey != nil {
		if err := epayroll.Verify(sub.Content, sub.Signature, s.PublicKey); err != nil {
			return rejected(CodeBadSignature, err.Error()), nil
		}
	}
	return epayroll.Reply{
		Status:  epayroll.TransmissionStatusAccepted,
		Code:    CodeAccepted,
		Message: "Processed (simulated), receipt " + uuid.NewString(),
	}, nil
}

func rejected(code, message string) epayroll.Reply {
	return epayroll.Reply{Status: epayroll.TransmissionStatusRejected, Code: code, Message: message}
}
