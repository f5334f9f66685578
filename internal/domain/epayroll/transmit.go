package epayroll

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Transmit submits a document to the authority and records the outcome. A
// pending retry cycle carries its count; a document whose retries were
// exhausted starts a fresh cycle.
func (s *Service) Transmit(ctx context.Context, tenantID, documentID string) (TransmitResult, error) {
	doc, err := s.store.GetDocument(ctx, tenantID, documentID)
	if err != nil {
		return TransmitResult{}, err
	}
	carried := 0
	latest, ok, err := s.store.LatestTransmission(ctx, tenantID, documentID)
	if err != nil {
		return TransmitResult{}, err
	}
	if ok && latest.Status == TransmissionStatusRejected && !s.policy.Exhausted(latest.RetryCount) {
		carried = latest.RetryCount
	}
	return s.transmit(ctx, doc, carried)
}

func (s *Service) transmit(ctx context.Context, doc Document, carried int) (TransmitResult, error) {
	if doc.Status == DocumentStatusAccepted {
		return TransmitResult{}, ErrAlreadyAccepted
	}
	t, err := s.store.BeginTransmission(ctx, doc.TenantID, doc.ID, carried, s.now())
	if err != nil {
		return TransmitResult{}, err
	}

	callCtx, cancel := context.WithTimeout(ctx, s.transmitTimeout)
	reply, err := s.authority.Submit(callCtx, NewSubmission(doc))
	cancel()
	if err != nil {
		slog.Warn("authority submission failed", "tenantId", doc.TenantID, "documentId", doc.ID, "err", err)
		reply = Reply{Status: TransmissionStatusRejected, Code: ResponseCodeTransportError, Message: err.Error()}
	}

	// The attempt is recorded even if the caller has gone away.
	return s.complete(context.WithoutCancel(ctx), doc, t, reply)
}

func (s *Service) complete(ctx context.Context, doc Document, t Transmission, reply Reply) (TransmitResult, error) {
	respondedAt := s.now()
	t.RespondedAt = &respondedAt
	t.ResponseCode = reply.Code
	t.ResponseMessage = reply.Message
	t.NextRetryAt = nil

	documentStatus := DocumentStatusAccepted
	if reply.Accepted() {
		t.Status = TransmissionStatusAccepted
	} else {
		documentStatus = DocumentStatusRejected
		t.Status = TransmissionStatusRejected
		t.RetryCount++
		t.NextRetryAt = s.policy.NextRetry(t.RetryCount, respondedAt)
	}
	if err := s.store.CompleteTransmission(ctx, doc.TenantID, t, documentStatus); err != nil {
		return TransmitResult{}, err
	}

	terminal := t.Status == TransmissionStatusRejected && t.NextRetryAt == nil
	if s.observer != nil {
		s.observer.ObserveTransmission(t.Status, terminal)
	}
	if terminal {
		slog.Error("electronic payroll transmission exhausted retries",
			"tenantId", doc.TenantID,
			"documentId", doc.ID,
			"documentNumber", doc.DocumentNumber,
			"retryCount", t.RetryCount,
			"code", t.ResponseCode,
			"message", t.ResponseMessage,
		)
		if s.notifier != nil {
			if err := s.notifier.NotifyTerminalFailure(ctx, doc, t); err != nil {
				slog.Warn("terminal failure notification failed", "documentId", doc.ID, "err", err)
			}
		}
	}

	status := reply.Status
	if status != TransmissionStatusAccepted {
		status = TransmissionStatusRejected
	}
	return TransmitResult{
		Success:      t.Status == TransmissionStatusAccepted,
		Response:     AuthorityResponse{Status: status, Code: reply.Code, Message: reply.Message},
		Transmission: t,
	}, nil
}

// RetrySweep first closes attempts that never got an answer, then resubmits
// every rejected document whose retry is due. A failing item never stops
// the sweep.
func (s *Service) RetrySweep(ctx context.Context, tenantID string) (SweepReport, error) {
	var report SweepReport
	now := s.now()

	stale, err := s.store.ListStaleTransmissions(ctx, tenantID, now.Add(-s.staleAfter))
	if err != nil {
		return report, err
	}
	for _, t := range stale {
		doc, err := s.store.GetDocument(ctx, tenantID, t.DocumentID)
		if err != nil {
			report.Failed++
			slog.Warn("stale transmission document lookup failed", "transmissionId", t.ID, "err", err)
			continue
		}
		msg := fmt.Sprintf("no authority response since %s", t.TransmittedAt.UTC().Format(time.RFC3339))
		if _, err := s.complete(ctx, doc, t, Reply{Status: TransmissionStatusRejected, Code: ResponseCodeStale, Message: msg}); err != nil {
			report.Failed++
			slog.Warn("stale transmission recovery failed", "transmissionId", t.ID, "err", err)
			continue
		}
		report.Recovered++
	}

	due, err := s.store.ListDueRetries(ctx, tenantID, now, s.policy.MaxAttempts)
	if err != nil {
		return report, err
	}
	report.Due = len(due)
	for _, t := range due {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		res, err := s.retry(ctx, tenantID, t)
		if err != nil {
			report.Failed++
			slog.Warn("electronic payroll retry failed", "tenantId", tenantID, "documentId", t.DocumentID, "err", err)
			continue
		}
		switch {
		case res.Success:
			report.Accepted++
		case res.Transmission.NextRetryAt == nil:
			report.Terminal++
		default:
			report.Rejected++
		}
	}
	return report, nil
}

func (s *Service) retry(ctx context.Context, tenantID string, t Transmission) (TransmitResult, error) {
	if s.policy.Exhausted(t.RetryCount) {
		return TransmitResult{}, errors.New("retry cap reached")
	}
	doc, err := s.store.GetDocument(ctx, tenantID, t.DocumentID)
	if err != nil {
		return TransmitResult{}, err
	}
	return s.transmit(ctx, doc, t.RetryCount)
}

func (s *Service) ListTransmissions(ctx context.Context, tenantID string, filter TransmissionFilter, limit, offset int) ([]TransmissionListItem, int, error) {
	filter.MaxAttempts = s.policy.MaxAttempts
	total, err := s.store.CountTransmissions(ctx, tenantID, filter)
	if err != nil {
		return nil, 0, err
	}
	items, err := s.store.ListTransmissions(ctx, tenantID, filter, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}
