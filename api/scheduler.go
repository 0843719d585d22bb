/*
scheduler.go - Periodic journal reconciliation sweep

PURPOSE:
  Periodically replays every customer's balance journal and compares it with
  the stored balances. Mismatches mean something wrote around the engine and
  are logged and exported as a gauge.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Sweeps immediately on start, then on every tick
  - Read-only: never rewrites balances, only reports
  - One failing customer does not abort the sweep

CONFIGURATION:
  - CheckInterval: reconcile.interval (0 disables the scheduler)

USAGE:
  scheduler := NewReconciliationScheduler(handler, time.Hour)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: Reconcile endpoint (single customer, on demand)
  - ledger/reader.go: Reader.Reconcile
*/
package api

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/brickbook/sales-ledger/ledger"
)

// SweepResult summarizes one pass over all customers.
type SweepResult struct {
	Checked    int
	Mismatched []ledger.CustomerID
	Failed     int
}

// ReconciliationScheduler runs Reader.Reconcile for every customer on a ticker.
type ReconciliationScheduler struct {
	Handler       *Handler
	CheckInterval time.Duration

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewReconciliationScheduler creates a new scheduler.
func NewReconciliationScheduler(handler *Handler, interval time.Duration) *ReconciliationScheduler {
	return &ReconciliationScheduler{
		Handler:       handler,
		CheckInterval: interval,
	}
}

// Start begins the scheduler. A non-positive interval leaves it disabled.
func (rs *ReconciliationScheduler) Start() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.CheckInterval <= 0 {
		log.Println("[Scheduler] Disabled, not starting")
		return
	}
	if rs.ticker != nil {
		return
	}

	rs.ticker = time.NewTicker(rs.CheckInterval)
	rs.stop = make(chan struct{})
	rs.wg.Add(1)

	go rs.run()

	log.Printf("[Scheduler] Started with check interval: %v", rs.CheckInterval)
}

// Stop stops the scheduler and waits for an in-flight sweep.
func (rs *ReconciliationScheduler) Stop() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.ticker != nil {
		rs.ticker.Stop()
		close(rs.stop)
		rs.wg.Wait()
		rs.ticker = nil
		log.Println("[Scheduler] Stopped")
	}
}

func (rs *ReconciliationScheduler) run() {
	defer rs.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-rs.stop
		cancel()
	}()

	rs.Sweep(ctx)

	for {
		select {
		case <-rs.ticker.C:
			rs.Sweep(ctx)
		case <-rs.stop:
			return
		}
	}
}

// Sweep reconciles every customer once. It is safe to call directly
// (admin trigger, tests) while the scheduler is not running.
func (rs *ReconciliationScheduler) Sweep(ctx context.Context) SweepResult {
	var res SweepResult

	customers, err := rs.Handler.Store.ListCustomers(ctx)
	if err != nil {
		log.Printf("[Scheduler] Error listing customers: %v", err)
		return res
	}

	for _, c := range customers {
		if ctx.Err() != nil {
			break
		}
		rec, err := rs.Handler.Reader.Reconcile(ctx, c.ID)
		if err != nil {
			log.Printf("[Scheduler] Error reconciling %s: %v", c.ID, err)
			res.Failed++
			continue
		}
		res.Checked++
		if !rec.Consistent {
			res.Mismatched = append(res.Mismatched, c.ID)
			log.Printf("[Scheduler] MISMATCH %s: stored wallet=%s outstanding=%s, journal wallet=%s outstanding=%s (%d entries)",
				c.ID, rec.Stored.Wallet, rec.Stored.Outstanding, rec.Replayed.Wallet, rec.Replayed.Outstanding, rec.Entries)
		}
	}

	if rs.Handler.Metrics != nil {
		rs.Handler.Metrics.ReconcileMismatches.Set(float64(len(res.Mismatched)))
	}
	log.Printf("[Scheduler] Completed: %d checked, %d mismatched, %d failed", res.Checked, len(res.Mismatched), res.Failed)
	return res
}
