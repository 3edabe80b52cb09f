package bookstore

import (
	"context"
	"errors"
	"time"

	"github.com/xraph/bookstore/order"
)

// SweepExpired cancels unpaid orders created more than threshold before
// now and stamps them with timeout_at. Nothing is refunded since an unpaid
// order never moved money. A payment racing the sweep wins: the cancel is
// guarded on the order still being unpaid. It returns how many orders this
// call cancelled; re-running over the same window cancels nothing more.
func (e *Engine) SweepExpired(ctx context.Context, now time.Time, threshold time.Duration) (int, error) {
	if threshold <= 0 {
		threshold = DefaultSweepThreshold
	}
	cutoff := now.Add(-threshold)
	at := now.UTC().Truncate(time.Millisecond)
	start := time.Now()

	count := 0
	for {
		batch, err := e.store.ListExpired(ctx, cutoff, e.sweepBatch)
		if err != nil {
			return count, Unavailable("list expired", err)
		}

		swept := 0
		for _, o := range batch {
			t := order.Transition{
				OrderID: o.ID,
				From:    order.StatusUnpaid,
				To:      order.StatusCancelled,
				Stamp:   order.StampTimeout,
				At:      at,
			}
			if _, err := e.store.TransitionOrder(ctx, t); err != nil {
				if errors.Is(err, ErrOrderStatusMismatch) {
					continue
				}
				return count, Unavailable("expire order", err)
			}
			swept++

			o.Apply(t)
			e.plugins.EmitOrderCancelled(ctx, o)
		}
		count += swept

		// Orders lost to a racing payment are no longer unpaid, so a full
		// batch always makes progress.
		if len(batch) < e.sweepBatch {
			break
		}
	}

	if count > 0 {
		elapsed := time.Since(start)
		e.plugins.EmitOrdersExpired(ctx, count, elapsed)
		e.logger.Info("expired unpaid orders",
			"count", count,
			"cutoff", cutoff,
			"elapsed_ms", elapsed.Milliseconds(),
		)
	}

	return count, nil
}

// sweepWorker runs SweepExpired on every tick until Stop.
func (e *Engine) sweepWorker(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopChan:
			return

		case <-ctx.Done():
			return

		case <-ticker.C:
			if _, err := e.SweepExpired(ctx, e.now(), e.sweepThreshold); err != nil {
				e.logger.Error("expiry sweep failed",
					"error", err,
				)
			}
		}
	}
}
