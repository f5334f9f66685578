package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"hrpayroll/internal/domain/epayroll"
	"hrpayroll/internal/platform/querier"
)

const JobRetrySweep = "epayroll_retry_sweep"

const (
	runStatusRunning   = "running"
	runStatusCompleted = "completed"
	runStatusFailed    = "failed"
)

// Sweeper re-transmits a tenant's due documents.
type Sweeper interface {
	RetrySweep(ctx context.Context, tenantID string) (epayroll.SweepReport, error)
}

type Service struct {
	DB            querier.Querier
	Sweeper       Sweeper
	SweepInterval time.Duration
	queue         chan job
}

type job struct {
	Type     string
	TenantID string
	Run      func(context.Context) (any, error)
}

type Run struct {
	ID          string          `json:"id"`
	JobType     string          `json:"jobType"`
	Status      string          `json:"status"`
	Details     json.RawMessage `json:"details,omitempty"`
	StartedAt   time.Time       `json:"startedAt"`
	CompletedAt *time.Time      `json:"completedAt,omitempty"`
}

func New(db querier.Querier, sweeper Sweeper, sweepInterval time.Duration) *Service {
	return &Service{
		DB:            db,
		Sweeper:       sweeper,
		SweepInterval: sweepInterval,
		queue:         make(chan job, 128),
	}
}

func (s *Service) Start(ctx context.Context) {
	go s.worker(ctx)
	if s.SweepInterval > 0 && s.Sweeper != nil {
		go s.scheduleRetrySweeps(ctx, s.SweepInterval)
	}
}

func (s *Service) Enqueue(jobType, tenantID string, run func(context.Context) (any, error)) bool {
	select {
	case s.queue <- job{Type: jobType, TenantID: tenantID, Run: run}:
		return true
	default:
		slog.Warn("job queue full", "jobType", jobType, "tenantId", tenantID)
		return false
	}
}

func (s *Service) RunNow(ctx context.Context, jobType, tenantID string, run func(context.Context) (any, error)) (any, error) {
	return s.runJob(ctx, job{Type: jobType, TenantID: tenantID, Run: run})
}

// RunRetrySweep runs one tenant's sweep synchronously and records it.
func (s *Service) RunRetrySweep(ctx context.Context, tenantID string) (epayroll.SweepReport, error) {
	var report epayroll.SweepReport
	_, err := s.RunNow(ctx, JobRetrySweep, tenantID, func(ctx context.Context) (any, error) {
		var err error
		report, err = s.Sweeper.RetrySweep(ctx, tenantID)
		return report, err
	})
	return report, err
}

func (s *Service) sweepFunc(tenantID string) func(context.Context) (any, error) {
	return func(ctx context.Context) (any, error) {
		return s.Sweeper.RetrySweep(ctx, tenantID)
	}
}

func (s *Service) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-s.queue:
			if _, err := s.runJob(ctx, j); err != nil {
				slog.Warn("job run failed", "jobType", j.Type, "tenantId", j.TenantID, "err", err)
			}
		}
	}
}

func (s *Service) runJob(ctx context.Context, j job) (any, error) {
	runID := ""
	if err := s.DB.QueryRow(ctx, `
    INSERT INTO job_runs (tenant_id, job_type, status)
    VALUES ($1,$2,$3)
    RETURNING id
  `, j.TenantID, j.Type, runStatusRunning).Scan(&runID); err != nil {
		slog.Warn("job run insert failed", "jobType", j.Type, "err", err)
	}

	details, err := j.Run(ctx)
	status := runStatusCompleted
	if err != nil {
		status = runStatusFailed
		details = map[string]any{"error": err.Error(), "partial": details}
	}
	detailsJSON, marshalErr := json.Marshal(details)
	if marshalErr != nil {
		slog.Warn("job details marshal failed", "err", marshalErr)
		detailsJSON = []byte("{}")
	}
	if runID != "" {
		if _, updErr := s.DB.Exec(ctx, `
      UPDATE job_runs
      SET status = $1, details_json = $2, completed_at = now()
      WHERE id = $3
    `, status, detailsJSON, runID); updErr != nil {
			slog.Warn("job run update failed", "runId", runID, "err", updErr)
		}
	}
	return details, err
}

func (s *Service) scheduleRetrySweeps(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.enqueueSweeps(ctx)
		}
	}
}

func (s *Service) enqueueSweeps(ctx context.Context) int {
	tenants, err := s.listTenants(ctx)
	if err != nil {
		slog.Warn("retry sweep tenant lookup failed", "err", err)
		return 0
	}
	queued := 0
	for _, tenantID := range tenants {
		if s.Enqueue(JobRetrySweep, tenantID, s.sweepFunc(tenantID)) {
			queued++
		}
	}
	return queued
}

func (s *Service) ListRuns(ctx context.Context, tenantID, jobType string, limit int) ([]Run, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT id, job_type, status, details_json, started_at, completed_at
    FROM job_runs
    WHERE tenant_id = $1 AND job_type = $2
    ORDER BY started_at DESC
    LIMIT $3
  `, tenantID, jobType, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Run
	for rows.Next() {
		var run Run
		if err := rows.Scan(&run.ID, &run.JobType, &run.Status, &run.Details, &run.StartedAt, &run.CompletedAt); err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

func (s *Service) listTenants(ctx context.Context) ([]string, error) {
	rows, err := s.DB.Query(ctx, `SELECT id FROM tenants ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
