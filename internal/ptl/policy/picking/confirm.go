package picking

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nerrad567/ptl-core/internal/ledger"
	"github.com/nerrad567/ptl-core/internal/ptl/external"
)

// RedeliveryBatch caps the entries retried by one Redeliver call.
const RedeliveryBatch = 100

// Confirmation outcomes, as recorded by the Recorder.
const (
	OutcomeOK       = "ok"
	OutcomeRetry    = "retry"
	OutcomeRejected = "rejected"
)

// Confirm reports m to the external system and records the outcome in the
// pending-to-send ledger.
//
// A retryable failure leaves the entry pending for Redeliver; a rejection is
// archived as terminal.
//
// Parameters:
//   - ctx: Context for cancellation
//   - m: The completed movement
//
// Returns:
//   - external.Result: Outcome stored with the entry
//   - error: The confirmation or ledger error, nil on success
func (p *Policy) Confirm(ctx context.Context, m Movement) (external.Result, error) {
	start := time.Now()
	res, err := p.confirmer.Confirm(ctx, external.Confirmation{
		ExternalID: m.ExternalID,
		Quantity:   m.Quantity,
		Movement:   m,
	})
	took := time.Since(start)

	var ledgerErr error
	outcome := OutcomeOK
	switch {
	case err == nil:
		ledgerErr = p.ledger.SavePendingOK(ctx, m.Key(), m, res)
		p.logInfo("movement confirmed", "external_id", m.ExternalID, "code", res.Code)
	case external.IsRetryable(err):
		outcome = OutcomeRetry
		ledgerErr = p.ledger.SavePendingError(ctx, m.Key(), m, res)
		p.logWarn("confirmation deferred", "external_id", m.ExternalID, "code", res.Code, "error", err)
	default:
		outcome = OutcomeRejected
		ledgerErr = p.ledger.SavePendingErrorNoRetry(ctx, m.Key(), m, res)
		p.logError("confirmation rejected", "external_id", m.ExternalID, "code", res.Code, "error", err)
	}
	if p.recorder != nil {
		p.recorder.WriteConfirmation(m.LocationCode, m.ExternalID, m.Quantity, outcome, res.Code, took)
	}
	if ledgerErr != nil {
		p.logError("recording confirmation failed", "external_id", m.ExternalID, "error", ledgerErr)
		if err == nil {
			return res, fmt.Errorf("recording confirmation %s: %w", m.Key(), ledgerErr)
		}
	}
	return res, err
}

// confirmAsync runs Confirm off the orchestrator loop. The request is not
// cancelled with ctx; the HTTP client timeout bounds it.
func (p *Policy) confirmAsync(ctx context.Context, m Movement) {
	ctx = context.WithoutCancel(ctx)
	p.inflight.Add(1)
	go func() {
		defer p.inflight.Done()
		_, _ = p.Confirm(ctx, m) //nolint:errcheck // outcome is logged and persisted
	}()
}

// Redeliver retries confirmations left pending by retryable failures.
//
// Returns:
//   - int: Number of entries confirmed
//   - error: Listing error; per-entry failures are logged and persisted
func (p *Policy) Redeliver(ctx context.Context) (int, error) {
	entries, err := p.ledger.ListPending(ctx, ledger.Query{Limit: RedeliveryBatch, OnlyPending: true})
	if err != nil {
		return 0, fmt.Errorf("listing pending confirmations: %w", err)
	}

	confirmed := 0
	for _, e := range entries {
		if ctx.Err() != nil {
			return confirmed, ctx.Err()
		}
		var m Movement
		if err := json.Unmarshal(e.Message, &m); err != nil {
			p.logError("skipping unreadable pending entry", "external_id", e.ExternalID, "error", err)
			continue
		}
		if _, err := p.Confirm(ctx, m); err == nil {
			confirmed++
		}
	}
	if len(entries) > 0 {
		p.logInfo("redelivery pass finished", "pending", len(entries), "confirmed", confirmed)
	}
	return confirmed, nil
}

// RunRedelivery calls Redeliver every interval until ctx is done.
func (p *Policy) RunRedelivery(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.Redeliver(ctx); err != nil && ctx.Err() == nil {
				p.logError("redelivery failed", "error", err)
			}
		}
	}
}
