package epayroll

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"hrpayroll/internal/platform/querier"
)

const (
	uniqueViolation = "23505"

	constraintPayslipUnique = "epd_payslip_unique"
	constraintOneInFlight   = "ept_one_in_flight_idx"
)

type Store struct {
	DB querier.Querier
}

func NewStore(db querier.Querier) *Store {
	return &Store{DB: db}
}

func (s *Store) GetOrganization(ctx context.Context, tenantID string) (Organization, error) {
	var org Organization
	err := s.DB.QueryRow(ctx, `
    SELECT id, name, COALESCE(tax_id, '')
    FROM tenants
    WHERE id = $1
  `, tenantID).Scan(&org.ID, &org.Name, &org.TaxID)
	if errors.Is(err, pgx.ErrNoRows) {
		return Organization{}, fmt.Errorf("%w: %s", ErrOrganizationNotFound, tenantID)
	}
	return org, err
}

func (s *Store) CountActiveEmployees(ctx context.Context, tenantID string) (int, error) {
	var total int
	if err := s.DB.QueryRow(ctx, "SELECT COUNT(1) FROM employees WHERE tenant_id = $1 AND status = $2", tenantID, EmployeeStatusActive).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

func (s *Store) GetPayslipBundle(ctx context.Context, tenantID, payslipID string) (PayslipBundle, error) {
	var b PayslipBundle
	var base, overtime, taxes, net string
	var start, end, pay *time.Time
	err := s.DB.QueryRow(ctx, `
    SELECT ps.id, ps.employee_id, ps.period_id,
           ps.base_salary::text, ps.overtime::text, ps.taxes::text, ps.net_pay::text,
           e.first_name, e.last_name, COALESCE(e.national_id, ''), COALESCE(e.position, ''), COALESCE(e.bank_account, ''),
           p.name, p.start_date, p.end_date, p.pay_date, p.status,
           t.id, t.name, COALESCE(t.tax_id, '')
    FROM payslips ps
    JOIN employees e ON e.id = ps.employee_id
    JOIN payroll_periods p ON p.id = ps.period_id
    JOIN tenants t ON t.id = ps.tenant_id
    WHERE ps.tenant_id = $1 AND ps.id = $2
  `, tenantID, payslipID).Scan(
		&b.Payslip.ID, &b.Payslip.EmployeeID, &b.Payslip.PeriodID,
		&base, &overtime, &taxes, &net,
		&b.Employee.FirstName, &b.Employee.LastName, &b.Employee.TaxID, &b.Employee.Position, &b.Employee.BankAccount,
		&b.Period.Name, &start, &end, &pay, &b.Period.Status,
		&b.Organization.ID, &b.Organization.Name, &b.Organization.TaxID,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return PayslipBundle{}, fmt.Errorf("%w: %s", ErrPayslipNotFound, payslipID)
	}
	if err != nil {
		return PayslipBundle{}, err
	}
	b.Employee.ID = b.Payslip.EmployeeID
	b.Period.ID = b.Payslip.PeriodID
	b.Period.StartDate = derefTime(start)
	b.Period.EndDate = derefTime(end)
	b.Period.PayDate = derefTime(pay)
	amounts, err := parseDecimals(base, overtime, taxes, net)
	if err != nil {
		return PayslipBundle{}, err
	}
	b.Payslip.BaseSalary, b.Payslip.Overtime, b.Payslip.Taxes, b.Payslip.NetPay = amounts[0], amounts[1], amounts[2], amounts[3]
	return b, nil
}

func (s *Store) DocumentExistsForPayslip(ctx context.Context, tenantID, payslipID string) (bool, error) {
	var exists bool
	err := s.DB.QueryRow(ctx, `
    SELECT EXISTS (SELECT 1 FROM electronic_payroll_documents WHERE tenant_id = $1 AND payslip_id = $2)
  `, tenantID, payslipID).Scan(&exists)
	return exists, err
}

// CreateDocument increments the tenant's counter and inserts the built
// document in one transaction. The counter row lock serializes concurrent
// generation for a tenant until commit.
func (s *Store) CreateDocument(ctx context.Context, tenantID string, build BuildFunc) (Document, error) {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return Document{}, err
	}
	defer tx.Rollback(ctx)

	var sequence int64
	if err := tx.QueryRow(ctx, `
    INSERT INTO electronic_payroll_sequences (tenant_id, last_value)
    VALUES ($1, 1)
    ON CONFLICT (tenant_id) DO UPDATE SET last_value = electronic_payroll_sequences.last_value + 1
    RETURNING last_value
  `, tenantID).Scan(&sequence); err != nil {
		return Document{}, err
	}

	doc, err := build(sequence)
	if err != nil {
		return Document{}, err
	}
	doc.TenantID = tenantID
	err = tx.QueryRow(ctx, `
    INSERT INTO electronic_payroll_documents (
      tenant_id, payslip_id, unique_code, sequence_number, document_number, document_type,
      period_type, payment_method, employer_name, employer_tax_id, employer_tax_id_source,
      employee_name, employee_tax_id, employee_position,
      salary, earned_income, deductions, net_payment, content, status, issued_at
    )
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)
    RETURNING id, created_at, updated_at
  `, tenantID, doc.PayslipID, doc.UniqueCode, doc.SequenceNumber, doc.DocumentNumber, doc.DocumentType,
		doc.PeriodType, doc.PaymentMethod, doc.EmployerName, doc.EmployerTaxID, doc.EmployerTaxIDSource,
		doc.EmployeeName, doc.EmployeeTaxID, doc.EmployeePosition,
		doc.Salary, doc.EarnedIncome, doc.Deductions, doc.NetPayment, doc.Content, doc.Status, doc.IssuedAt,
	).Scan(&doc.ID, &doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err, constraintPayslipUnique) {
			return Document{}, fmt.Errorf("%w: %s", ErrDuplicateDocument, doc.PayslipID)
		}
		return Document{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Document{}, err
	}
	return doc, nil
}

const documentColumns = `
  d.id, d.tenant_id, d.payslip_id, d.unique_code, d.sequence_number, d.document_number, d.document_type,
  d.period_type, d.payment_method, d.employer_name, d.employer_tax_id, d.employer_tax_id_source,
  d.employee_name, d.employee_tax_id, d.employee_position,
  d.salary::text, d.earned_income::text, d.deductions::text, d.net_payment::text,
  d.signature, COALESCE(d.signature_algorithm, ''), d.status, d.issued_at, d.signed_at, d.transmitted_at,
  d.created_at, d.updated_at`

func scanDocument(row pgx.Row, extra ...any) (Document, error) {
	var d Document
	var salary, earned, deductions, net string
	dest := []any{
		&d.ID, &d.TenantID, &d.PayslipID, &d.UniqueCode, &d.SequenceNumber, &d.DocumentNumber, &d.DocumentType,
		&d.PeriodType, &d.PaymentMethod, &d.EmployerName, &d.EmployerTaxID, &d.EmployerTaxIDSource,
		&d.EmployeeName, &d.EmployeeTaxID, &d.EmployeePosition,
		&salary, &earned, &deductions, &net,
		&d.Signature, &d.SignatureAlgorithm, &d.Status, &d.IssuedAt, &d.SignedAt, &d.TransmittedAt,
		&d.CreatedAt, &d.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return Document{}, err
	}
	amounts, err := parseDecimals(salary, earned, deductions, net)
	if err != nil {
		return Document{}, err
	}
	d.Salary, d.EarnedIncome, d.Deductions, d.NetPayment = amounts[0], amounts[1], amounts[2], amounts[3]
	return d, nil
}

func (s *Store) GetDocument(ctx context.Context, tenantID, documentID string) (Document, error) {
	var content string
	doc, err := scanDocument(s.DB.QueryRow(ctx, `
    SELECT `+documentColumns+`, d.content
    FROM electronic_payroll_documents d
    WHERE d.tenant_id = $1 AND d.id = $2
  `, tenantID, documentID), &content)
	if errors.Is(err, pgx.ErrNoRows) {
		return Document{}, fmt.Errorf("%w: %s", ErrDocumentNotFound, documentID)
	}
	if err != nil {
		return Document{}, err
	}
	doc.Content = content
	return doc, nil
}

func (s *Store) CountDocuments(ctx context.Context, tenantID string, filter DocumentFilter) (int, error) {
	var total int
	err := s.DB.QueryRow(ctx, `
    SELECT COUNT(1) FROM electronic_payroll_documents
    WHERE tenant_id = $1 AND ($2 = '' OR status = $2)
  `, tenantID, filter.Status).Scan(&total)
	return total, err
}

func (s *Store) ListDocuments(ctx context.Context, tenantID string, filter DocumentFilter, limit, offset int) ([]DocumentListItem, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT `+documentColumns+`,
           ps.id, ps.base_salary::text, ps.taxes::text, ps.net_pay::text,
           e.id, e.first_name, e.last_name,
           p.id, p.name, p.start_date, p.end_date
    FROM electronic_payroll_documents d
    JOIN payslips ps ON ps.id = d.payslip_id
    JOIN employees e ON e.id = ps.employee_id
    JOIN payroll_periods p ON p.id = ps.period_id
    WHERE d.tenant_id = $1 AND ($2 = '' OR d.status = $2)
    ORDER BY d.created_at DESC
    LIMIT $3 OFFSET $4
  `, tenantID, filter.Status, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []DocumentListItem
	for rows.Next() {
		var item DocumentListItem
		var base, taxes, net string
		var start, end *time.Time
		doc, err := scanDocument(rows,
			&item.Payslip.ID, &base, &taxes, &net,
			&item.Employee.ID, &item.Employee.FirstName, &item.Employee.LastName,
			&item.Period.ID, &item.Period.Name, &start, &end,
		)
		if err != nil {
			return nil, err
		}
		item.Document = doc
		amounts, err := parseDecimals(base, taxes, net)
		if err != nil {
			return nil, err
		}
		item.Payslip.BaseSalary, item.Payslip.Taxes, item.Payslip.NetPay = amounts[0], amounts[1], amounts[2]
		item.Period.StartDate = derefTime(start)
		item.Period.EndDate = derefTime(end)
		items = append(items, item)
	}
	return items, rows.Err()
}

// UpdateSignature stores a signature unless the document was accepted in
// the meantime.
func (s *Store) UpdateSignature(ctx context.Context, tenantID, documentID, signature, algorithm string, signedAt time.Time) (Document, error) {
	tag, err := s.DB.Exec(ctx, `
    UPDATE electronic_payroll_documents
    SET signature = $1, signature_algorithm = $2, signed_at = $3, status = $4, updated_at = now()
    WHERE tenant_id = $5 AND id = $6 AND status <> $7
  `, signature, algorithm, signedAt, DocumentStatusSigned, tenantID, documentID, DocumentStatusAccepted)
	if err != nil {
		return Document{}, err
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.GetDocument(ctx, tenantID, documentID); err != nil {
			return Document{}, err
		}
		return Document{}, ErrAlreadyAccepted
	}
	return s.GetDocument(ctx, tenantID, documentID)
}

const transmissionColumns = `
  t.id, t.tenant_id, t.document_id, t.status, t.response_code, t.response_message,
  t.retry_count, t.next_retry_at, t.transmitted_at, t.responded_at`

func scanTransmission(row pgx.Row, extra ...any) (Transmission, error) {
	var t Transmission
	dest := []any{
		&t.ID, &t.TenantID, &t.DocumentID, &t.Status, &t.ResponseCode, &t.ResponseMessage,
		&t.RetryCount, &t.NextRetryAt, &t.TransmittedAt, &t.RespondedAt,
	}
	err := row.Scan(append(dest, extra...)...)
	return t, err
}

func (s *Store) LatestTransmission(ctx context.Context, tenantID, documentID string) (Transmission, bool, error) {
	t, err := scanTransmission(s.DB.QueryRow(ctx, `
    SELECT `+transmissionColumns+`
    FROM electronic_payroll_transmissions t
    WHERE t.tenant_id = $1 AND t.document_id = $2
    ORDER BY t.transmitted_at DESC
    LIMIT 1
  `, tenantID, documentID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Transmission{}, false, nil
	}
	if err != nil {
		return Transmission{}, false, err
	}
	return t, true, nil
}

// BeginTransmission records a new attempt as sent. Earlier attempts lose
// their pending retry so only the newest one is ever picked up by a sweep.
func (s *Store) BeginTransmission(ctx context.Context, tenantID, documentID string, retryCount int, sentAt time.Time) (Transmission, error) {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return Transmission{}, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
    UPDATE electronic_payroll_transmissions
    SET next_retry_at = NULL
    WHERE tenant_id = $1 AND document_id = $2 AND next_retry_at IS NOT NULL
  `, tenantID, documentID); err != nil {
		return Transmission{}, err
	}
	t := Transmission{
		TenantID:      tenantID,
		DocumentID:    documentID,
		Status:        TransmissionStatusSent,
		RetryCount:    retryCount,
		TransmittedAt: sentAt,
	}
	if err := tx.QueryRow(ctx, `
    INSERT INTO electronic_payroll_transmissions (tenant_id, document_id, status, retry_count, transmitted_at)
    VALUES ($1,$2,$3,$4,$5)
    RETURNING id
  `, tenantID, documentID, t.Status, t.RetryCount, t.TransmittedAt).Scan(&t.ID); err != nil {
		if isUniqueViolation(err, constraintOneInFlight) {
			return Transmission{}, fmt.Errorf("%w: %s", ErrTransmissionInFlight, documentID)
		}
		return Transmission{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Transmission{}, err
	}
	return t, nil
}

// CompleteTransmission writes the attempt outcome and the document status
// together.
func (s *Store) CompleteTransmission(ctx context.Context, tenantID string, t Transmission, documentStatus string) error {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
    UPDATE electronic_payroll_transmissions
    SET status = $1, response_code = $2, response_message = $3, retry_count = $4,
        next_retry_at = $5, responded_at = $6
    WHERE tenant_id = $7 AND id = $8
  `, t.Status, t.ResponseCode, t.ResponseMessage, t.RetryCount, t.NextRetryAt, t.RespondedAt, tenantID, t.ID); err != nil {
		return err
	}
	if documentStatus == DocumentStatusAccepted {
		_, err = tx.Exec(ctx, `
      UPDATE electronic_payroll_documents
      SET status = $1, transmitted_at = $2, updated_at = now()
      WHERE tenant_id = $3 AND id = $4
    `, documentStatus, t.RespondedAt, tenantID, t.DocumentID)
	} else {
		_, err = tx.Exec(ctx, `
      UPDATE electronic_payroll_documents
      SET status = $1, updated_at = now()
      WHERE tenant_id = $2 AND id = $3 AND status <> $4
    `, documentStatus, tenantID, t.DocumentID, DocumentStatusAccepted)
	}
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) ListStaleTransmissions(ctx context.Context, tenantID string, sentBefore time.Time) ([]Transmission, error) {
	return s.queryTransmissions(ctx, `
    SELECT `+transmissionColumns+`
    FROM electronic_payroll_transmissions t
    WHERE t.tenant_id = $1 AND t.status = $2 AND t.transmitted_at < $3
    ORDER BY t.transmitted_at
  `, tenantID, TransmissionStatusSent, sentBefore)
}

// ListDueRetries returns the newest attempt per document when it is a
// rejection under the cap whose retry time has passed.
func (s *Store) ListDueRetries(ctx context.Context, tenantID string, now time.Time, maxAttempts int) ([]Transmission, error) {
	return s.queryTransmissions(ctx, `
    SELECT `+transmissionColumns+`
    FROM (
      SELECT DISTINCT ON (document_id) *
      FROM electronic_payroll_transmissions
      WHERE tenant_id = $1
      ORDER BY document_id, transmitted_at DESC
    ) t
    JOIN electronic_payroll_documents d ON d.id = t.document_id
    WHERE t.status = $2 AND t.retry_count < $3 AND t.next_retry_at IS NOT NULL AND t.next_retry_at <= $4
      AND d.status <> $5
    ORDER BY t.next_retry_at
  `, tenantID, TransmissionStatusRejected, maxAttempts, now, DocumentStatusAccepted)
}

func (s *Store) queryTransmissions(ctx context.Context, sql string, args ...any) ([]Transmission, error) {
	rows, err := s.DB.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Transmission
	for rows.Next() {
		t, err := scanTransmission(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func transmissionWhere(filter TransmissionFilter) (string, []any) {
	clauses := []string{"t.tenant_id = $1"}
	args := []any{}
	add := func(clause string, value any) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)+1))
	}
	if filter.Status != "" {
		add("t.status = $%d", filter.Status)
	}
	if filter.DocumentID != "" {
		add("t.document_id = $%d", filter.DocumentID)
	}
	if filter.NeedsAttention {
		args = append(args, TransmissionStatusRejected, filter.MaxAttempts)
		clauses = append(clauses, fmt.Sprintf("t.status = $%d AND t.retry_count >= $%d", len(args), len(args)+1))
	}
	return strings.Join(clauses, " AND "), args
}

func (s *Store) CountTransmissions(ctx context.Context, tenantID string, filter TransmissionFilter) (int, error) {
	where, args := transmissionWhere(filter)
	var total int
	err := s.DB.QueryRow(ctx, `
    SELECT COUNT(1) FROM electronic_payroll_transmissions t WHERE `+where,
		append([]any{tenantID}, args...)...).Scan(&total)
	return total, err
}

func (s *Store) ListTransmissions(ctx context.Context, tenantID string, filter TransmissionFilter, limit, offset int) ([]TransmissionListItem, error) {
	where, args := transmissionWhere(filter)
	args = append([]any{tenantID}, args...)
	args = append(args, filter.MaxAttempts, limit, offset)
	n := len(args)
	rows, err := s.DB.Query(ctx, `
    SELECT `+transmissionColumns+`,
           (t.status = 'rejected' AND t.retry_count >= $`+fmt.Sprint(n-2)+`),
           d.id, d.unique_code, d.document_number, d.status,
           ps.id, ps.base_salary::text, ps.taxes::text, ps.net_pay::text,
           e.id, e.first_name, e.last_name
    FROM electronic_payroll_transmissions t
    JOIN electronic_payroll_documents d ON d.id = t.document_id
    JOIN payslips ps ON ps.id = d.payslip_id
    JOIN employees e ON e.id = ps.employee_id
    WHERE `+where+`
    ORDER BY t.transmitted_at DESC
    LIMIT $`+fmt.Sprint(n-1)+` OFFSET $`+fmt.Sprint(n),
		args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []TransmissionListItem
	for rows.Next() {
		var item TransmissionListItem
		var base, taxes, net string
		doc := &item.Document
		t, err := scanTransmission(rows,
			&item.NeedsAttention,
			&doc.ID, &doc.UniqueCode, &doc.DocumentNumber, &doc.Status,
			&doc.Payslip.ID, &base, &taxes, &net,
			&doc.Employee.ID, &doc.Employee.FirstName, &doc.Employee.LastName,
		)
		if err != nil {
			return nil, err
		}
		item.Transmission = t
		amounts, err := parseDecimals(base, taxes, net)
		if err != nil {
			return nil, err
		}
		doc.Payslip.BaseSalary, doc.Payslip.Taxes, doc.Payslip.NetPay = amounts[0], amounts[1], amounts[2]
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *Store) SaveCredential(ctx context.Context, cred SigningCredential) error {
	_, err := s.DB.Exec(ctx, `
    INSERT INTO signing_credentials (tenant_id, format, key_enc, password_enc, updated_at)
    VALUES ($1,$2,$3,$4,$5)
    ON CONFLICT (tenant_id) DO UPDATE
    SET format = EXCLUDED.format, key_enc = EXCLUDED.key_enc,
        password_enc = EXCLUDED.password_enc, updated_at = EXCLUDED.updated_at
  `, cred.TenantID, cred.Format, cred.KeyEnc, cred.PasswordEnc, cred.UpdatedAt)
	return err
}

func (s *Store) GetCredential(ctx context.Context, tenantID string) (SigningCredential, error) {
	cred := SigningCredential{TenantID: tenantID}
	err := s.DB.QueryRow(ctx, `
    SELECT format, key_enc, password_enc, updated_at
    FROM signing_credentials
    WHERE tenant_id = $1
  `, tenantID).Scan(&cred.Format, &cred.KeyEnc, &cred.PasswordEnc, &cred.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return SigningCredential{}, ErrCredentialNotFound
	}
	return cred, err
}

// isUniqueViolation reports whether err is a unique violation of the named
// constraint. Violations of other constraints are real faults, not duplicates.
func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == constraint
}

func parseDecimals(values ...string) ([]decimal.Decimal, error) {
	out := make([]decimal.Decimal, len(values))
	for i, v := range values {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return nil, fmt.Errorf("parse amount %q: %w", v, err)
		}
		out[i] = d
	}
	return out, nil
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
