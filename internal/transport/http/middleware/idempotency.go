package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"hrpayroll/internal/platform/querier"
)

const (
	IdempotencyHeader = "Idempotency-Key"

	defaultIdempotencyTTL = 24 * time.Hour
	maxIdempotencyKeyLen  = 255
)

var ErrIdempotencyConflict = errors.New("idempotency key conflicts with existing request")

// IdempotencyScope identifies one remembered response.
type IdempotencyScope struct {
	TenantID string
	UserID   string
	Endpoint string
	Key      string
}

// ScopeFor builds the scope for the authenticated caller. It reports false
// when the request carries no usable key.
func ScopeFor(r *http.Request, endpoint string) (IdempotencyScope, bool) {
	user, ok := GetUser(r.Context())
	key := IdempotencyKey(r)
	if !ok || key == "" {
		return IdempotencyScope{}, false
	}
	return IdempotencyScope{TenantID: user.TenantID, UserID: user.UserID, Endpoint: endpoint, Key: key}, true
}

// IdempotencyKey reads the request's key header. Blank and oversized values
// are ignored.
func IdempotencyKey(r *http.Request) string {
	key := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
	if len(key) > maxIdempotencyKeyLen {
		return ""
	}
	return key
}

func RequestHash(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// IdempotencyStore remembers responses for TTL. A nil store disables replay.
type IdempotencyStore struct {
	db  querier.Querier
	TTL time.Duration
	now func() time.Time
}

func NewIdempotencyStore(db querier.Querier) *IdempotencyStore {
	return &IdempotencyStore{db: db, TTL: defaultIdempotencyTTL, now: time.Now}
}

func (s *IdempotencyStore) enabled(scope IdempotencyScope) bool {
	return s != nil && s.db != nil && scope.Key != ""
}

func (s *IdempotencyStore) cutoff() time.Time {
	return s.now().Add(-s.TTL)
}

// Check returns the stored response for scope. A live entry recorded for a
// different request hash is a conflict.
func (s *IdempotencyStore) Check(ctx context.Context, scope IdempotencyScope, requestHash string) (json.RawMessage, bool, error) {
	if !s.enabled(scope) {
		return nil, false, nil
	}
	var storedHash string
	var stored json.RawMessage
	err := s.db.QueryRow(ctx, `
    SELECT request_hash, response_json
    FROM idempotency_keys
    WHERE tenant_id = $1 AND user_id = $2 AND key = $3 AND endpoint = $4 AND created_at > $5
  `, scope.TenantID, scope.UserID, scope.Key, scope.Endpoint, s.cutoff()).Scan(&storedHash, &stored)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return nil, false, nil
	case err != nil:
		return nil, false, err
	case storedHash != requestHash:
		return nil, false, ErrIdempotencyConflict
	}
	return stored, true, nil
}

// Save records response for scope. Expired entries are replaced outright.
func (s *IdempotencyStore) Save(ctx context.Context, scope IdempotencyScope, requestHash string, response json.RawMessage) error {
	if !s.enabled(scope) {
		return nil
	}
	tag, err := s.db.Exec(ctx, `
    INSERT INTO idempotency_keys (tenant_id, user_id, key, endpoint, request_hash, response_json, created_at)
    VALUES ($1, $2, $3, $4, $5, $6, now())
    ON CONFLICT (tenant_id, user_id, key, endpoint)
    DO UPDATE SET request_hash = EXCLUDED.request_hash, response_json = EXCLUDED.response_json, created_at = now()
    WHERE idempotency_keys.request_hash = EXCLUDED.request_hash OR idempotency_keys.created_at <= $7
  `, scope.TenantID, scope.UserID, scope.Key, scope.Endpoint, requestHash, response, s.cutoff())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrIdempotencyConflict
	}
	return nil
}
