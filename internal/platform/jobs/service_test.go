package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hrpayroll/internal/domain/epayroll"
)

type execCall struct {
	sql  string
	args []any
}

type fakeDB struct {
	mu      sync.Mutex
	tenants []string
	runs    []Run
	execs   []execCall
	queries []execCall
}

func (d *fakeDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.execs = append(d.execs, execCall{sql: sql, args: args})
	return pgconn.NewCommandTag("UPDATE 1"), nil
}

func (d *fakeDB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.queries = append(d.queries, execCall{sql: sql, args: args})
	if strings.Contains(sql, "FROM job_runs") {
		return &runRows{runs: d.runs, tenantRows: tenantRows{pos: -1}}, nil
	}
	return &tenantRows{ids: d.tenants, pos: -1}, nil
}

func (d *fakeDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return runIDRow{}
}

func (d *fakeDB) Begin(ctx context.Context) (pgx.Tx, error) {
	return nil, errors.New("not used")
}

func (d *fakeDB) updates() []execCall {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]execCall(nil), d.execs...)
}

type runIDRow struct{}

func (runIDRow) Scan(dest ...any) error {
	*dest[0].(*string) = "run-1"
	return nil
}

type tenantRows struct {
	ids []string
	pos int
}

func (r *tenantRows) Close()                                       {}
func (r *tenantRows) Err() error                                   { return nil }
func (r *tenantRows) CommandTag() pgconn.CommandTag                { return pgconn.NewCommandTag("SELECT") }
func (r *tenantRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *tenantRows) Values() ([]any, error)                       { return nil, nil }
func (r *tenantRows) RawValues() [][]byte                          { return nil }
func (r *tenantRows) Conn() *pgx.Conn                              { return nil }

func (r *tenantRows) Next() bool {
	r.pos++
	return r.pos < len(r.ids)
}

func (r *tenantRows) Scan(dest ...any) error {
	*dest[0].(*string) = r.ids[r.pos]
	return nil
}

type runRows struct {
	tenantRows
	runs []Run
}

func (r *runRows) Next() bool {
	r.pos++
	return r.pos < len(r.runs)
}

func (r *runRows) Scan(dest ...any) error {
	run := r.runs[r.pos]
	*dest[0].(*string) = run.ID
	*dest[1].(*string) = run.JobType
	*dest[2].(*string) = run.Status
	*dest[3].(*json.RawMessage) = run.Details
	*dest[4].(*time.Time) = run.StartedAt
	*dest[5].(**time.Time) = run.CompletedAt
	return nil
}

type fakeSweeper struct {
	mu      sync.Mutex
	tenants []string
	err     error
	done    chan string
}

func (f *fakeSweeper) RetrySweep(ctx context.Context, tenantID string) (epayroll.SweepReport, error) {
	f.mu.Lock()
	f.tenants = append(f.tenants, tenantID)
	f.mu.Unlock()
	if f.done != nil {
		f.done <- tenantID
	}
	return epayroll.SweepReport{Due: 2, Accepted: 1, Rejected: 1}, f.err
}

func TestRunRetrySweepRecordsCompletion(t *testing.T) {
	db := &fakeDB{}
	sweeper := &fakeSweeper{}
	svc := New(db, sweeper, 0)

	report, err := svc.RunRetrySweep(context.Background(), "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, 2, report.Due)
	assert.Equal(t, []string{"tenant-1"}, sweeper.tenants)

	updates := db.updates()
	require.Len(t, updates, 1)
	assert.Equal(t, runStatusCompleted, updates[0].args[0])
	var details epayroll.SweepReport
	require.NoError(t, json.Unmarshal(updates[0].args[1].([]byte), &details))
	assert.Equal(t, 1, details.Accepted)
	assert.Equal(t, "run-1", updates[0].args[2])
}

func TestRunRetrySweepRecordsFailure(t *testing.T) {
	db := &fakeDB{}
	svc := New(db, &fakeSweeper{err: errors.New("db down")}, 0)

	report, err := svc.RunRetrySweep(context.Background(), "tenant-1")
	require.Error(t, err)
	assert.Equal(t, 2, report.Due)

	updates := db.updates()
	require.Len(t, updates, 1)
	assert.Equal(t, runStatusFailed, updates[0].args[0])
	assert.Contains(t, string(updates[0].args[1].([]byte)), "db down")
}

func TestEnqueueSweepsRunsEveryTenant(t *testing.T) {
	db := &fakeDB{tenants: []string{"tenant-1", "tenant-2"}}
	sweeper := &fakeSweeper{done: make(chan string, 2)}
	svc := New(db, sweeper, 0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.Start(ctx)

	assert.Equal(t, 2, svc.enqueueSweeps(ctx))

	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case id := <-sweeper.done:
			seen[id] = true
		case <-time.After(2 * time.Second):
			t.Fatal("sweep did not run")
		}
	}
	assert.True(t, seen["tenant-1"])
	assert.True(t, seen["tenant-2"])
}

func TestEnqueueReportsFullQueue(t *testing.T) {
	svc := New(&fakeDB{}, &fakeSweeper{}, 0)
	for i := 0; i < cap(svc.queue); i++ {
		require.True(t, svc.Enqueue(JobRetrySweep, "tenant-1", func(context.Context) (any, error) { return nil, nil }))
	}
	assert.False(t, svc.Enqueue(JobRetrySweep, "tenant-1", func(context.Context) (any, error) { return nil, nil }))
}

func TestListRunsReturnsTenantHistory(t *testing.T) {
	completed := time.Date(2024, time.April, 1, 10, 0, 5, 0, time.UTC)
	db := &fakeDB{runs: []Run{
		{ID: "run-2", JobType: JobRetrySweep, Status: runStatusCompleted, Details: json.RawMessage(`{"due":0}`), StartedAt: completed, CompletedAt: &completed},
		{ID: "run-1", JobType: JobRetrySweep, Status: runStatusFailed, StartedAt: completed.Add(-time.Hour)},
	}}
	svc := New(db, &fakeSweeper{}, 0)

	runs, err := svc.ListRuns(context.Background(), "tenant-1", JobRetrySweep, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-2", runs[0].ID)
	assert.Equal(t, &completed, runs[0].CompletedAt)
	assert.Nil(t, runs[1].CompletedAt)

	require.Len(t, db.queries, 1)
	assert.Equal(t, []any{"tenant-1", JobRetrySweep, 10}, db.queries[0].args)
}
