package epayroll

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Cipher seals signing credentials at rest.
type Cipher interface {
	Encrypt(plain []byte) ([]byte, error)
	Decrypt(ciphertext []byte) ([]byte, error)
}

type Service struct {
	store           StoreAPI
	authority       Authority
	calendar        Calendar
	policy          RetryPolicy
	cipher          Cipher
	notifier        FailureNotifier
	observer        Observer
	now             func() time.Time
	location        *time.Location
	transmitTimeout time.Duration
	staleAfter      time.Duration
	enforce         bool
	softwareID      string
	providerID      string
	environment     string
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithRetryPolicy(p RetryPolicy) Option {
	return func(s *Service) { s.policy = p }
}

func WithCalendar(c Calendar) Option {
	return func(s *Service) { s.calendar = c }
}

func WithCipher(c Cipher) Option {
	return func(s *Service) { s.cipher = c }
}

func WithNotifier(n FailureNotifier) Option {
	return func(s *Service) { s.notifier = n }
}

func WithObserver(o Observer) Option {
	return func(s *Service) { s.observer = o }
}

func WithLocation(loc *time.Location) Option {
	return func(s *Service) { s.location = loc }
}

func WithTransmitTimeout(d time.Duration) Option {
	return func(s *Service) { s.transmitTimeout = d }
}

func WithStaleAfter(d time.Duration) Option {
	return func(s *Service) { s.staleAfter = d }
}

func WithEnforceCompliance(enforce bool) Option {
	return func(s *Service) { s.enforce = enforce }
}

// WithSoftware sets the identifiers the authority assigned to this issuer.
func WithSoftware(providerID, softwareID, environment string) Option {
	return func(s *Service) {
		s.providerID = providerID
		s.softwareID = softwareID
		s.environment = environment
	}
}

func NewService(store StoreAPI, authority Authority, opts ...Option) *Service {
	s := &Service{
		store:           store,
		authority:       authority,
		calendar:        DefaultCalendar(),
		policy:          DefaultRetryPolicy(),
		now:             time.Now,
		location:        time.UTC,
		transmitTimeout: 30 * time.Second,
		staleAfter:      15 * time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) RetryPolicy() RetryPolicy {
	return s.policy
}

// CheckCompliance evaluates the tenant's headcount against the calendar on
// the current date in the document timezone.
func (s *Service) CheckCompliance(ctx context.Context, tenantID string) (ComplianceStatus, error) {
	if _, err := s.store.GetOrganization(ctx, tenantID); err != nil {
		return ComplianceStatus{}, err
	}
	count, err := s.store.CountActiveEmployees(ctx, tenantID)
	if err != nil {
		return ComplianceStatus{}, err
	}
	return s.calendar.Evaluate(count, CalendarDay(s.now(), s.location)), nil
}

// Generate builds and stores the electronic document for a payslip. The
// sequence number is allocated in the same transaction as the insert.
func (s *Service) Generate(ctx context.Context, tenantID, payslipID string) (Document, error) {
	bundle, err := s.store.GetPayslipBundle(ctx, tenantID, payslipID)
	if err != nil {
		return Document{}, err
	}
	exists, err := s.store.DocumentExistsForPayslip(ctx, tenantID, payslipID)
	if err != nil {
		return Document{}, err
	}
	if exists {
		return Document{}, fmt.Errorf("%w: %s", ErrDuplicateDocument, payslipID)
	}
	if s.enforce {
		status, err := s.CheckCompliance(ctx, tenantID)
		if err != nil {
			return Document{}, err
		}
		if !status.IsCompliant {
			return Document{}, fmt.Errorf("%w: %s", ErrNotObligated, status.Message)
		}
	}

	if bundle.Organization.TaxID == "" {
		slog.Warn("employer tax id missing; using organization name", "tenantId", tenantID, "payslipId", payslipID)
	}

	issuedAt := s.now()
	return s.store.CreateDocument(ctx, tenantID, func(sequence int64) (Document, error) {
		code := GenerateCode(CodeInput{
			EmployerID:  bundle.Organization.ID,
			EmployeeID:  bundle.Employee.ID,
			PeriodID:    bundle.Period.ID,
			Sequence:    sequence,
			GeneratedAt: issuedAt,
		})
		return BuildDocument(bundle, BuildParams{
			UniqueCode:  code,
			Sequence:    sequence,
			IssuedAt:    issuedAt,
			Location:    s.location,
			SoftwareID:  s.softwareID,
			ProviderID:  s.providerID,
			Environment: s.environment,
		})
	})
}

func (s *Service) ListDocuments(ctx context.Context, tenantID string, filter DocumentFilter, limit, offset int) ([]DocumentListItem, int, error) {
	total, err := s.store.CountDocuments(ctx, tenantID, filter)
	if err != nil {
		return nil, 0, err
	}
	items, err := s.store.ListDocuments(ctx, tenantID, filter, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (s *Service) GetDocument(ctx context.Context, tenantID, documentID string) (Document, error) {
	return s.store.GetDocument(ctx, tenantID, documentID)
}

// Sign signs the stored document content. An empty key selects the
// tenant's stored credential. Failures leave the document untouched.
func (s *Service) Sign(ctx context.Context, tenantID, documentID string, key KeyMaterial) (SignResult, error) {
	doc, err := s.store.GetDocument(ctx, tenantID, documentID)
	if err != nil {
		return SignResult{}, err
	}
	if doc.Status == DocumentStatusAccepted {
		return SignResult{}, ErrAlreadyAccepted
	}
	if key.Empty() {
		key, err = s.storedKey(ctx, tenantID)
		if err != nil {
			return SignResult{}, err
		}
	}
	signature, algorithm, err := SignContent(doc.Content, key)
	if err != nil {
		return SignResult{}, err
	}
	signedAt := s.now()
	updated, err := s.store.UpdateSignature(ctx, tenantID, documentID, signature, algorithm, signedAt)
	if err != nil {
		return SignResult{}, err
	}
	return SignResult{
		DocumentID: updated.ID,
		Signature:  signature,
		Algorithm:  algorithm,
		Status:     updated.Status,
		SignedAt:   signedAt,
	}, nil
}

// SaveCredential validates and stores a tenant's signing key, encrypted.
func (s *Service) SaveCredential(ctx context.Context, tenantID string, key KeyMaterial) (string, error) {
	signer, err := ParseSigningKey(key)
	if err != nil {
		return "", err
	}
	algorithm, err := algorithmFor(signer.Public())
	if err != nil {
		return "", err
	}
	if s.cipher == nil {
		return "", errors.New("credential storage requires an encryption service")
	}
	keyEnc, err := s.cipher.Encrypt([]byte(key.PrivateKey))
	if err != nil {
		return "", err
	}
	var passwordEnc []byte
	if key.Password != "" {
		if passwordEnc, err = s.cipher.Encrypt([]byte(key.Password)); err != nil {
			return "", err
		}
	}
	err = s.store.SaveCredential(ctx, SigningCredential{
		TenantID:    tenantID,
		Format:      key.Format(),
		KeyEnc:      keyEnc,
		PasswordEnc: passwordEnc,
		UpdatedAt:   s.now(),
	})
	if err != nil {
		return "", err
	}
	return algorithm, nil
}

func (s *Service) storedKey(ctx context.Context, tenantID string) (KeyMaterial, error) {
	if s.cipher == nil {
		return KeyMaterial{}, fmt.Errorf("%w: %w", ErrSigning, ErrCredentialNotFound)
	}
	cred, err := s.store.GetCredential(ctx, tenantID)
	if err != nil {
		if errors.Is(err, ErrCredentialNotFound) {
			return KeyMaterial{}, fmt.Errorf("%w: %w", ErrSigning, err)
		}
		return KeyMaterial{}, err
	}
	plain, err := s.cipher.Decrypt(cred.KeyEnc)
	if err != nil {
		return KeyMaterial{}, fmt.Errorf("%w: decrypt stored key: %v", ErrSigning, err)
	}
	key := KeyMaterial{PrivateKey: string(plain)}
	if len(cred.PasswordEnc) > 0 {
		password, err := s.cipher.Decrypt(cred.PasswordEnc)
		if err != nil {
			return KeyMaterial{}, fmt.Errorf("%w: decrypt stored password: %v", ErrSigning, err)
		}
		key.Password = string(password)
	}
	return key, nil
}
