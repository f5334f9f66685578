package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hrpayroll/internal/app/server"
	"hrpayroll/internal/domain/auth"
	"hrpayroll/internal/domain/epayroll"
	"hrpayroll/internal/domain/epayroll/epayrolltest"
	"hrpayroll/internal/platform/config"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func testConfig(dbURL string) config.Config {
	return config.Config{
		DatabaseURL:            dbURL,
		JWTSecret:              "test-secret",
		DataEncryptionKey:      strings.Repeat("ab", 32),
		Environment:            "test",
		SeedTenantName:         "Journey Tenant",
		SeedTenantTaxID:        "900123456",
		EmailFrom:              "no-reply@test.local",
		RunMigrations:          true,
		RunSeed:                true,
		MigrationsDir:          "../../../migrations",
		MaxBodyBytes:           1048576,
		RateLimitPerMinute:     1000,
		MetricsEnabled:         true,
		AuthorityTimeout:       5 * time.Second,
		AuthorityEnvironment:   "test",
		RetryMaxAttempts:       3,
		RetryBackoff:           24 * time.Hour,
		RetryBackoffStrategy:   epayroll.BackoffFixed,
		StaleTransmissionAfter: 15 * time.Minute,
		DocumentTimezone:       "UTC",
	}
}

func TestElectronicPayrollJourney(t *testing.T) {
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	cfg := testConfig(dbURL)
	app, err := server.New(context.Background(), cfg)
	require.NoError(t, err)
	defer app.Close()

	ts := httptest.NewServer(app.Router)
	defer ts.Close()

	ctx := context.Background()
	var tenantID string
	require.NoError(t, app.DB.QueryRow(ctx, "SELECT id FROM tenants WHERE name = $1", cfg.SeedTenantName).Scan(&tenantID))
	payslipID := seedPayslip(t, app, tenantID)

	token, err := auth.GenerateToken(cfg.JWTSecret, auth.Claims{UserID: "journey-user", TenantID: tenantID, RoleName: auth.RoleHR}, time.Hour)
	require.NoError(t, err)

	compliance := call(t, ts, token, http.MethodGet, "/api/v1/payroll/compliance/check", nil, http.StatusOK)
	var status epayroll.ComplianceStatus
	require.NoError(t, json.Unmarshal(compliance.Data, &status))
	assert.GreaterOrEqual(t, status.EmployeeCount, 1)

	generated := call(t, ts, token, http.MethodPost, "/api/v1/payroll/electronic/"+payslipID+"/generate", nil, http.StatusCreated)
	var doc epayroll.Document
	require.NoError(t, json.Unmarshal(generated.Data, &doc))
	assert.Equal(t, fmt.Sprintf("NE%d", doc.SequenceNumber), doc.DocumentNumber)
	assert.Len(t, doc.UniqueCode, epayroll.UniqueCodeLength)

	dup := call(t, ts, token, http.MethodPost, "/api/v1/payroll/electronic/"+payslipID+"/generate", nil, http.StatusBadRequest)
	assert.Equal(t, "duplicate_document", dup.Error.Code)

	_, pemKey := epayrolltest.Ed25519Key(t)
	call(t, ts, token, http.MethodPut, "/api/v1/payroll/electronic/credentials", map[string]string{"privateKey": pemKey}, http.StatusOK)
	signed := call(t, ts, token, http.MethodPost, "/api/v1/payroll/electronic/"+doc.ID+"/sign", nil, http.StatusOK)
	var sign epayroll.SignResult
	require.NoError(t, json.Unmarshal(signed.Data, &sign))
	assert.Equal(t, epayroll.AlgorithmEd25519, sign.Algorithm)

	transmitted := callWithHeaders(t, ts, token, http.MethodPost, "/api/v1/payroll/electronic/"+doc.ID+"/transmit", nil, map[string]string{"Idempotency-Key": "journey-" + doc.ID}, http.StatusOK)
	var result epayroll.TransmitResult
	require.NoError(t, json.Unmarshal(transmitted.Data, &result))
	assert.True(t, result.Success)

	replay := callWithHeaders(t, ts, token, http.MethodPost, "/api/v1/payroll/electronic/"+doc.ID+"/transmit", nil, map[string]string{"Idempotency-Key": "journey-" + doc.ID}, http.StatusOK)
	assert.JSONEq(t, string(transmitted.Data), string(replay.Data))

	listed := call(t, ts, token, http.MethodGet, "/api/v1/payroll/electronic/transmissions?documentId="+doc.ID, nil, http.StatusOK)
	var page struct {
		Items []epayroll.TransmissionListItem `json:"items"`
		Total int                             `json:"total"`
	}
	require.NoError(t, json.Unmarshal(listed.Data, &page))
	assert.Equal(t, 1, page.Total)
	assert.Equal(t, epayroll.TransmissionStatusAccepted, page.Items[0].Status)

	call(t, ts, token, http.MethodPost, "/api/v1/payroll/electronic/retry/run", nil, http.StatusOK)

	var runs int
	require.NoError(t, app.DB.QueryRow(ctx, "SELECT COUNT(1) FROM job_runs WHERE tenant_id = $1 AND job_type = 'epayroll_retry_sweep'", tenantID).Scan(&runs))
	assert.GreaterOrEqual(t, runs, 1)
}

func TestElectronicPayrollRequiresAuthentication(t *testing.T) {
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	app, err := server.New(context.Background(), testConfig(dbURL))
	require.NoError(t, err)
	defer app.Close()

	ts := httptest.NewServer(app.Router)
	defer ts.Close()

	env := call(t, ts, "", http.MethodGet, "/api/v1/payroll/electronic", nil, http.StatusUnauthorized)
	assert.Equal(t, "unauthorized", env.Error.Code)
}

func seedPayslip(t *testing.T, app *server.App, tenantID string) string {
	t.Helper()
	ctx := context.Background()
	suffix := time.Now().UnixNano()

	var employeeID, periodID, payslipID string
	require.NoError(t, app.DB.QueryRow(ctx, `
    INSERT INTO employees (tenant_id, first_name, last_name, national_id, position, bank_account)
    VALUES ($1, 'Ana', $2, $3, 'Analyst', '001-998877')
    RETURNING id
  `, tenantID, fmt.Sprintf("Journey %d", suffix), fmt.Sprintf("%d", suffix%10000000000)).Scan(&employeeID))
	require.NoError(t, app.DB.QueryRow(ctx, `
    INSERT INTO payroll_periods (tenant_id, name, start_date, end_date, pay_date, status)
    VALUES ($1, 'March 2024', '2024-03-01', '2024-03-31', '2024-04-05', 'finalized')
    RETURNING id
  `, tenantID).Scan(&periodID))
	require.NoError(t, app.DB.QueryRow(ctx, `
    INSERT INTO payslips (tenant_id, period_id, employee_id, base_salary, overtime, taxes, net_pay)
    VALUES ($1, $2, $3, 1000000, 0, 150000, 850000)
    RETURNING id
  `, tenantID, periodID, employeeID).Scan(&payslipID))
	return payslipID
}

func call(t *testing.T, ts *httptest.Server, token, method, path string, body any, want int) envelope {
	return callWithHeaders(t, ts, token, method, path, body, nil, want)
}

func callWithHeaders(t *testing.T, ts *httptest.Server, token, method, path string, body any, headers map[string]string, want int) envelope {
	t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		require.NoError(t, err)
	}
	req, err := http.NewRequest(method, ts.URL+path, bytes.NewReader(payload))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	require.Equal(t, want, resp.StatusCode, "%s %s: %+v", method, path, env.Error)
	return env
}
