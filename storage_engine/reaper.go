package storageengine

import (
	"context"
	"time"

	txn "HelixDB/txn_manager"
)

/*
A transaction that stops making progress but never ends is worse than a slow
one: its snapshot pins the horizon, so dead versions accumulate engine-wide
until it goes away. The reaper force-aborts transactions that have been idle
past the configured limit. The session discovers the abort on its next call
(TryFinish makes the two paths race safely).
*/

// StartReaper launches the background sweep. It stops when ctx is canceled.
func (e *Engine) StartReaper(ctx context.Context) {
	go func() {
		t := time.NewTicker(e.cfg.ReaperInterval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				e.reapIdle()
			}
		}
	}()
}

func (e *Engine) reapIdle() {
	cutoff := time.Now().Add(-e.cfg.MaxIdleTransaction)

	e.openMu.Lock()
	var victims []*txn.Transaction
	for _, t := range e.open {
		if t.IdleSince().Before(cutoff) {
			victims = append(victims, t)
		}
	}
	e.openMu.Unlock()

	for _, t := range victims {
		if !t.TryFinish(txn.StateAborted) {
			continue
		}
		idle := time.Since(t.IdleSince()).Round(time.Second)
		if err := e.resolve(t, txn.StateAborted); err != nil {
			e.log.Error("failed to reap idle transaction",
				"vid", t.VirtualID(), "idle", idle, "error", err)
			continue
		}
		e.log.Warn("aborted idle transaction",
			"vid", t.VirtualID(), "id", t.ID(), "idle", idle)
	}
}
