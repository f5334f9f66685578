package epayroll

import (
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

const UniqueCodeLength = 32

type CodeInput struct {
	EmployerID  string
	EmployeeID  string
	PeriodID    string
	Sequence    int64
	GeneratedAt time.Time
}

// GenerateCode derives the document's unique code: the uppercase hex SHA-384
// of the identifying fields, truncated to UniqueCodeLength characters.
func GenerateCode(in CodeInput) string {
	var b strings.Builder
	b.WriteString(in.EmployerID)
	b.WriteString(in.EmployeeID)
	b.WriteString(in.PeriodID)
	fmt.Fprintf(&b, "%010d", in.Sequence)
	b.WriteString(in.GeneratedAt.UTC().Format(time.RFC3339Nano))

	sum := sha512.Sum384([]byte(b.String()))
	return strings.ToUpper(hex.EncodeToString(sum[:]))[:UniqueCodeLength]
}

func DocumentNumber(sequence int64) string {
	return fmt.Sprintf("%s%d", DocumentNumberPrefix, sequence)
}
