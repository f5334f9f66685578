// Package epayrolltest provides in-memory doubles for the electronic
// payroll service.
package epayrolltest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"hrpayroll/internal/domain/epayroll"
)

type employeeRecord struct {
	tenantID string
	employee epayroll.Employee
	active   bool
}

type payslipRecord struct {
	tenantID string
	payslip  epayroll.Payslip
}

// Store is a StoreAPI held in memory. A single mutex stands in for the
// database transaction, so sequence allocation is serialized like the
// counter row lock.
type Store struct {
	mu            sync.Mutex
	orgs          map[string]epayroll.Organization
	employees     map[string]employeeRecord
	periods       map[string]epayroll.Period
	payslips      map[string]payslipRecord
	sequences     map[string]int64
	documents     map[string]epayroll.Document
	documentOrder []string
	transmissions []epayroll.Transmission
	credentials   map[string]epayroll.SigningCredential
	now           func() time.Time

	beginErrs map[string]error

	// CompleteErr, when set, fails CompleteTransmission.
	CompleteErr error
}

func NewStore() *Store {
	return &Store{
		orgs:        map[string]epayroll.Organization{},
		employees:   map[string]employeeRecord{},
		periods:     map[string]epayroll.Period{},
		payslips:    map[string]payslipRecord{},
		sequences:   map[string]int64{},
		documents:   map[string]epayroll.Document{},
		credentials: map[string]epayroll.SigningCredential{},
		beginErrs:   map[string]error{},
		now:         time.Now,
	}
}

func (s *Store) AddOrganization(org epayroll.Organization) epayroll.Organization {
	s.mu.Lock()
	defer s.mu.Unlock()
	if org.ID == "" {
		org.ID = uuid.NewString()
	}
	s.orgs[org.ID] = org
	return org
}

func (s *Store) AddEmployee(tenantID string, emp epayroll.Employee, active bool) epayroll.Employee {
	s.mu.Lock()
	defer s.mu.Unlock()
	if emp.ID == "" {
		emp.ID = uuid.NewString()
	}
	s.employees[emp.ID] = employeeRecord{tenantID: tenantID, employee: emp, active: active}
	return emp
}

func (s *Store) AddPeriod(period epayroll.Period) epayroll.Period {
	s.mu.Lock()
	defer s.mu.Unlock()
	if period.ID == "" {
		period.ID = uuid.NewString()
	}
	s.periods[period.ID] = period
	return period
}

func (s *Store) AddPayslip(tenantID string, slip epayroll.Payslip) epayroll.Payslip {
	s.mu.Lock()
	defer s.mu.Unlock()
	if slip.ID == "" {
		slip.ID = uuid.NewString()
	}
	s.payslips[slip.ID] = payslipRecord{tenantID: tenantID, payslip: slip}
	return slip
}

// Fixture is a tenant with one employee, a monthly period and a payslip of
// 1,000,000 base, 150,000 taxes and 850,000 net.
type Fixture struct {
	Organization epayroll.Organization
	Employee     epayroll.Employee
	Period       epayroll.Period
	Payslip      epayroll.Payslip
}

func (s *Store) Seed() Fixture {
	org := s.AddOrganization(epayroll.Organization{Name: "Acme Payroll SAS", TaxID: "900123456"})
	emp := s.AddEmployee(org.ID, epayroll.Employee{
		FirstName:   "Ana",
		LastName:    "Gomez",
		TaxID:       "1020304050",
		Position:    "Analyst",
		BankAccount: "001-998877",
	}, true)
	period := s.AddPeriod(epayroll.Period{
		Name:      "March 2024",
		StartDate: time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2024, time.March, 31, 0, 0, 0, 0, time.UTC),
		PayDate:   time.Date(2024, time.April, 5, 0, 0, 0, 0, time.UTC),
		Status:    "finalized",
	})
	slip := s.AddPayslip(org.ID, epayroll.Payslip{
		EmployeeID: emp.ID,
		PeriodID:   period.ID,
		BaseSalary: decimal.NewFromInt(1000000),
		Overtime:   decimal.Zero,
		Taxes:      decimal.NewFromInt(150000),
		NetPay:     decimal.NewFromInt(850000),
	})
	return Fixture{Organization: org, Employee: emp, Period: period, Payslip: slip}
}

// AddPayslipFor adds another payslip for a fresh employee of the fixture tenant.
func (s *Store) AddPayslipFor(f Fixture) epayroll.Payslip {
	emp := s.AddEmployee(f.Organization.ID, epayroll.Employee{
		FirstName: "Extra",
		LastName:  uuid.NewString()[:8],
		TaxID:     uuid.NewString()[:10],
	}, true)
	return s.AddPayslip(f.Organization.ID, epayroll.Payslip{
		EmployeeID: emp.ID,
		PeriodID:   f.Period.ID,
		BaseSalary: f.Payslip.BaseSalary,
		Overtime:   f.Payslip.Overtime,
		Taxes:      f.Payslip.Taxes,
		NetPay:     f.Payslip.NetPay,
	})
}

func (s *Store) GetOrganization(ctx context.Context, tenantID string) (epayroll.Organization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	org, ok := s.orgs[tenantID]
	if !ok {
		return epayroll.Organization{}, fmt.Errorf("%w: %s", epayroll.ErrOrganizationNotFound, tenantID)
	}
	return org, nil
}

func (s *Store) CountActiveEmployees(ctx context.Context, tenantID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, rec := range s.employees {
		if rec.tenantID == tenantID && rec.active {
			count++
		}
	}
	return count, nil
}

func (s *Store) GetPayslipBundle(ctx context.Context, tenantID, payslipID string) (epayroll.PayslipBundle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.payslips[payslipID]
	if !ok || rec.tenantID != tenantID {
		return epayroll.PayslipBundle{}, fmt.Errorf("%w: %s", epayroll.ErrPayslipNotFound, payslipID)
	}
	return epayroll.PayslipBundle{
		Payslip:      rec.payslip,
		Employee:     s.employees[rec.payslip.EmployeeID].employee,
		Period:       s.periods[rec.payslip.PeriodID],
		Organization: s.orgs[tenantID],
	}, nil
}

func (s *Store) DocumentExistsForPayslip(ctx context.Context, tenantID, payslipID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, doc := range s.documents {
		if doc.TenantID == tenantID && doc.PayslipID == payslipID {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) CreateDocument(ctx context.Context, tenantID string, build epayroll.BuildFunc) (epayroll.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sequence := s.sequences[tenantID] + 1
	doc, err := build(sequence)
	if err != nil {
		return epayroll.Document{}, err
	}
	for _, existing := range s.documents {
		if existing.TenantID != tenantID {
			continue
		}
		if existing.PayslipID == doc.PayslipID || existing.UniqueCode == doc.UniqueCode || existing.SequenceNumber == doc.SequenceNumber {
			return epayroll.Document{}, fmt.Errorf("%w: %s", epayroll.ErrDuplicateDocument, doc.PayslipID)
		}
	}
	now := s.now()
	doc.ID = uuid.NewString()
	doc.TenantID = tenantID
	doc.CreatedAt = now
	doc.UpdatedAt = now
	s.sequences[tenantID] = sequence
	s.documents[doc.ID] = doc
	s.documentOrder = append(s.documentOrder, doc.ID)
	return doc, nil
}

func (s *Store) GetDocument(ctx context.Context, tenantID, documentID string) (epayroll.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.documents[documentID]
	if !ok || doc.TenantID != tenantID {
		return epayroll.Document{}, fmt.Errorf("%w: %s", epayroll.ErrDocumentNotFound, documentID)
	}
	return doc, nil
}

func (s *Store) filteredDocuments(tenantID string, filter epayroll.DocumentFilter) []epayroll.Document {
	var out []epayroll.Document
	for i := len(s.documentOrder) - 1; i >= 0; i-- {
		doc := s.documents[s.documentOrder[i]]
		if doc.TenantID != tenantID || (filter.Status != "" && doc.Status != filter.Status) {
			continue
		}
		out = append(out, doc)
	}
	return out
}

func (s *Store) CountDocuments(ctx context.Context, tenantID string, filter epayroll.DocumentFilter) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.filteredDocuments(tenantID, filter)), nil
}

func (s *Store) ListDocuments(ctx context.Context, tenantID string, filter epayroll.DocumentFilter, limit, offset int) ([]epayroll.DocumentListItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var items []epayroll.DocumentListItem
	for _, doc := range page(s.filteredDocuments(tenantID, filter), limit, offset) {
		slip := s.payslips[doc.PayslipID].payslip
		emp := s.employees[slip.EmployeeID].employee
		period := s.periods[slip.PeriodID]
		doc.Content = ""
		items = append(items, epayroll.DocumentListItem{
			Document: doc,
			Payslip:  epayroll.PayslipSummary{ID: slip.ID, BaseSalary: slip.BaseSalary, Taxes: slip.Taxes, NetPay: slip.NetPay},
			Employee: epayroll.EmployeeSummary{ID: emp.ID, FirstName: emp.FirstName, LastName: emp.LastName},
			Period:   epayroll.PeriodSummary{ID: period.ID, Name: period.Name, StartDate: period.StartDate, EndDate: period.EndDate},
		})
	}
	return items, nil
}

func (s *Store) UpdateSignature(ctx context.Context, tenantID, documentID, signature, algorithm string, signedAt time.Time) (epayroll.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.documents[documentID]
	if !ok || doc.TenantID != tenantID {
		return epayroll.Document{}, fmt.Errorf("%w: %s", epayroll.ErrDocumentNotFound, documentID)
	}
	if doc.Status == epayroll.DocumentStatusAccepted {
		return epayroll.Document{}, epayroll.ErrAlreadyAccepted
	}
	doc.Signature = &signature
	doc.SignatureAlgorithm = algorithm
	doc.SignedAt = &signedAt
	doc.Status = epayroll.DocumentStatusSigned
	doc.UpdatedAt = s.now()
	s.documents[documentID] = doc
	return doc, nil
}

func (s *Store) latest(tenantID, documentID string) (int, bool) {
	for i := len(s.transmissions) - 1; i >= 0; i-- {
		t := s.transmissions[i]
		if t.TenantID == tenantID && t.DocumentID == documentID {
			return i, true
		}
	}
	return -1, false
}

func (s *Store) LatestTransmission(ctx context.Context, tenantID, documentID string) (epayroll.Transmission, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.latest(tenantID, documentID)
	if !ok {
		return epayroll.Transmission{}, false, nil
	}
	return s.transmissions[i], true, nil
}

// FailBeginFor makes BeginTransmission fail for one document.
func (s *Store) FailBeginFor(documentID string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.beginErrs[documentID] = err
}

func (s *Store) BeginTransmission(ctx context.Context, tenantID, documentID string, retryCount int, sentAt time.Time) (epayroll.Transmission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.beginErrs[documentID]; err != nil {
		return epayroll.Transmission{}, err
	}
	for i, t := range s.transmissions {
		if t.DocumentID != documentID {
			continue
		}
		if t.Status == epayroll.TransmissionStatusSent {
			return epayroll.Transmission{}, fmt.Errorf("%w: %s", epayroll.ErrTransmissionInFlight, documentID)
		}
		s.transmissions[i].NextRetryAt = nil
	}
	t := epayroll.Transmission{
		ID:            uuid.NewString(),
		TenantID:      tenantID,
		DocumentID:    documentID,
		Status:        epayroll.TransmissionStatusSent,
		RetryCount:    retryCount,
		TransmittedAt: sentAt,
	}
	s.transmissions = append(s.transmissions, t)
	return t, nil
}

func (s *Store) CompleteTransmission(ctx context.Context, tenantID string, t epayroll.Transmission, documentStatus string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.CompleteErr != nil {
		return s.CompleteErr
	}
	for i := range s.transmissions {
		if s.transmissions[i].ID == t.ID && s.transmissions[i].TenantID == tenantID {
			s.transmissions[i] = t
		}
	}
	doc, ok := s.documents[t.DocumentID]
	if !ok || doc.Status == epayroll.DocumentStatusAccepted {
		return nil
	}
	doc.Status = documentStatus
	if documentStatus == epayroll.DocumentStatusAccepted {
		doc.TransmittedAt = t.RespondedAt
	}
	doc.UpdatedAt = s.now()
	s.documents[t.DocumentID] = doc
	return nil
}

func (s *Store) ListStaleTransmissions(ctx context.Context, tenantID string, sentBefore time.Time) ([]epayroll.Transmission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []epayroll.Transmission
	for _, t := range s.transmissions {
		if t.TenantID == tenantID && t.Status == epayroll.TransmissionStatusSent && t.TransmittedAt.Before(sentBefore) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *Store) ListDueRetries(ctx context.Context, tenantID string, now time.Time, maxAttempts int) ([]epayroll.Transmission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []epayroll.Transmission
	for _, docID := range s.documentOrder {
		i, ok := s.latest(tenantID, docID)
		if !ok {
			continue
		}
		t := s.transmissions[i]
		if t.Status != epayroll.TransmissionStatusRejected || t.RetryCount >= maxAttempts {
			continue
		}
		if t.NextRetryAt == nil || t.NextRetryAt.After(now) {
			continue
		}
		if s.documents[docID].Status == epayroll.DocumentStatusAccepted {
			continue
		}
		out = append(out, t)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].NextRetryAt.Before(*out[j].NextRetryAt) })
	return out, nil
}

func (s *Store) filteredTransmissions(tenantID string, filter epayroll.TransmissionFilter) []epayroll.Transmission {
	var out []epayroll.Transmission
	for i := len(s.transmissions) - 1; i >= 0; i-- {
		t := s.transmissions[i]
		if t.TenantID != tenantID {
			continue
		}
		if filter.Status != "" && t.Status != filter.Status {
			continue
		}
		if filter.DocumentID != "" && t.DocumentID != filter.DocumentID {
			continue
		}
		if filter.NeedsAttention && !needsAttention(t, filter.MaxAttempts) {
			continue
		}
		out = append(out, t)
	}
	return out
}

func needsAttention(t epayroll.Transmission, maxAttempts int) bool {
	return t.Status == epayroll.TransmissionStatusRejected && t.RetryCount >= maxAttempts
}

func (s *Store) CountTransmissions(ctx context.Context, tenantID string, filter epayroll.TransmissionFilter) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.filteredTransmissions(tenantID, filter)), nil
}

func (s *Store) ListTransmissions(ctx context.Context, tenantID string, filter epayroll.TransmissionFilter, limit, offset int) ([]epayroll.TransmissionListItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var items []epayroll.TransmissionListItem
	for _, t := range page(s.filteredTransmissions(tenantID, filter), limit, offset) {
		doc := s.documents[t.DocumentID]
		slip := s.payslips[doc.PayslipID].payslip
		emp := s.employees[slip.EmployeeID].employee
		items = append(items, epayroll.TransmissionListItem{
			Transmission:   t,
			NeedsAttention: needsAttention(t, filter.MaxAttempts),
			Document: epayroll.TransmissionDocumentSummary{
				ID:             doc.ID,
				UniqueCode:     doc.UniqueCode,
				DocumentNumber: doc.DocumentNumber,
				Status:         doc.Status,
				Payslip:        epayroll.PayslipSummary{ID: slip.ID, BaseSalary: slip.BaseSalary, Taxes: slip.Taxes, NetPay: slip.NetPay},
				Employee:       epayroll.EmployeeSummary{ID: emp.ID, FirstName: emp.FirstName, LastName: emp.LastName},
			},
		})
	}
	return items, nil
}

func (s *Store) SaveCredential(ctx context.Context, cred epayroll.SigningCredential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.credentials[cred.TenantID] = cred
	return nil
}

func (s *Store) GetCredential(ctx context.Context, tenantID string) (epayroll.SigningCredential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cred, ok := s.credentials[tenantID]
	if !ok {
		return epayroll.SigningCredential{}, epayroll.ErrCredentialNotFound
	}
	return cred, nil
}

// Transmissions returns every attempt recorded for a document, oldest first.
func (s *Store) Transmissions(documentID string) []epayroll.Transmission {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []epayroll.Transmission
	for _, t := range s.transmissions {
		if t.DocumentID == documentID {
			out = append(out, t)
		}
	}
	return out
}

func (s *Store) Credential(tenantID string) (epayroll.SigningCredential, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cred, ok := s.credentials[tenantID]
	return cred, ok
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

var _ epayroll.StoreAPI = (*Store)(nil)
