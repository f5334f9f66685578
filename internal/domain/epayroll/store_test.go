package epayroll

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hrpayroll/internal/platform/querier"
)

type rowFunc func(dest ...any) error

func (f rowFunc) Scan(dest ...any) error { return f(dest...) }

// scriptedTx answers QueryRow calls in order. Unused pgx.Tx methods panic
// through the nil embedded interface.
type scriptedTx struct {
	pgx.Tx
	rows      []rowFunc
	committed bool
}

func (t *scriptedTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	row := t.rows[0]
	t.rows = t.rows[1:]
	return row
}

func (t *scriptedTx) Commit(ctx context.Context) error {
	t.committed = true
	return nil
}

func (t *scriptedTx) Rollback(ctx context.Context) error { return nil }

type txQuerier struct {
	querier.Querier
	tx *scriptedTx
}

func (q txQuerier) Begin(ctx context.Context) (pgx.Tx, error) { return q.tx, nil }

func createWithInsertError(t *testing.T, insertErr error) (*scriptedTx, error) {
	t.Helper()
	tx := &scriptedTx{rows: []rowFunc{
		func(dest ...any) error {
			*dest[0].(*int64) = 7
			return nil
		},
		func(dest ...any) error { return insertErr },
	}}
	store := NewStore(txQuerier{tx: tx})
	_, err := store.CreateDocument(context.Background(), "tenant-1", func(sequence int64) (Document, error) {
		return Document{PayslipID: "payslip-1", SequenceNumber: sequence}, nil
	})
	return tx, err
}

func TestCreateDocumentMapsPayslipConflictToDuplicate(t *testing.T) {
	tx, err := createWithInsertError(t, &pgconn.PgError{Code: uniqueViolation, ConstraintName: constraintPayslipUnique})
	require.ErrorIs(t, err, ErrDuplicateDocument)
	assert.Contains(t, err.Error(), "payslip-1")
	assert.False(t, tx.committed)
}

func TestCreateDocumentSurfacesOtherUniqueViolations(t *testing.T) {
	for _, constraint := range []string{"epd_code_unique", "epd_sequence_unique"} {
		t.Run(constraint, func(t *testing.T) {
			tx, err := createWithInsertError(t, &pgconn.PgError{Code: uniqueViolation, ConstraintName: constraint})
			require.Error(t, err)
			assert.NotErrorIs(t, err, ErrDuplicateDocument)
			var pgErr *pgconn.PgError
			require.ErrorAs(t, err, &pgErr)
			assert.Equal(t, constraint, pgErr.ConstraintName)
			assert.False(t, tx.committed)
		})
	}
}

func TestIsUniqueViolation(t *testing.T) {
	inFlight := &pgconn.PgError{Code: uniqueViolation, ConstraintName: constraintOneInFlight}
	assert.True(t, isUniqueViolation(inFlight, constraintOneInFlight))
	assert.False(t, isUniqueViolation(inFlight, constraintPayslipUnique))
	assert.False(t, isUniqueViolation(&pgconn.PgError{Code: "23503", ConstraintName: constraintOneInFlight}, constraintOneInFlight))
	assert.False(t, isUniqueViolation(pgx.ErrNoRows, constraintOneInFlight))
}
