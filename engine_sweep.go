package tokengate

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Sweep removes refresh records that expired more than Refresh.Retention ago and
// revocation entries whose token has expired. Both parts always run; their errors are
// joined.
func (e *Engine) Sweep(ctx context.Context) (SweepResult, error) {
	if e == nil || e.refresh == nil || e.revocations == nil {
		return SweepResult{}, ErrEngineNotReady
	}

	var (
		res  SweepResult
		errs []error
	)

	cutoff := e.now().Add(-e.config.Refresh.Retention).UTC()
	n, err := e.refresh.DeleteExpired(ctx, cutoff)
	if err != nil {
		errs = append(errs, fmt.Errorf("refresh sweep: %w", storeError(err)))
	} else {
		res.RefreshDeleted = n
	}

	n, err = e.revocations.Sweep(ctx)
	if err != nil {
		errs = append(errs, fmt.Errorf("revocation sweep: %w", storeError(err)))
	} else {
		res.RevocationDeleted = n
	}

	err = errors.Join(errs...)
	if err != nil {
		e.metricInc(MetricSweepFailure)
		e.logger.Warn("sweep failed", "op", "sweep", "err", err)
	} else {
		e.metricInc(MetricSweepRun)
		e.logger.Debug("sweep finished", "op", "sweep",
			"refresh_deleted", res.RefreshDeleted,
			"revocation_deleted", res.RevocationDeleted)
	}
	e.emitAudit(ctx, auditEventSweep, err == nil, "", "", err, func() map[string]string {
		return map[string]string{
			"refresh_deleted":    fmt.Sprint(res.RefreshDeleted),
			"revocation_deleted": fmt.Sprint(res.RevocationDeleted),
		}
	})
	return res, err
}

// StartSweeper runs Sweep every Sweep.Interval until ctx is done or the engine is
// closed. Calling it while a sweeper is running is a no-op.
func (e *Engine) StartSweeper(ctx context.Context) {
	if e == nil || e.config.Sweep.Interval <= 0 {
		return
	}

	e.sweepMu.Lock()
	defer e.sweepMu.Unlock()
	if e.sweepStop != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	e.sweepStop = cancel
	e.sweepDone = done

	go func() {
		defer close(done)
		ticker := time.NewTicker(e.config.Sweep.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_, _ = e.Sweep(ctx)
			}
		}
	}()
}

// StopSweeper stops a running sweeper and waits for it to exit.
func (e *Engine) StopSweeper() {
	if e == nil {
		return
	}
	e.sweepMu.Lock()
	stop, done := e.sweepStop, e.sweepDone
	e.sweepStop, e.sweepDone = nil, nil
	e.sweepMu.Unlock()

	if stop != nil {
		stop()
		<-done
	}
}
