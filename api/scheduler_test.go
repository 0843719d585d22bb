package api

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brickbook/sales-ledger/ledger"
	"github.com/brickbook/sales-ledger/store/sqldb"
)

func TestSweep_AllConsistent(t *testing.T) {
	s := newTestServer(t)
	s.createCustomer("c1", "Asha", 500)
	s.createCustomer("c2", "Ravi", 0)
	rec := s.do(http.MethodPost, "/api/sales", saleBody("c1", "Advance + Cash", 700, 300, 300))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	res := NewReconciliationScheduler(s.handler, time.Hour).Sweep(context.Background())
	assert.Equal(t, 2, res.Checked)
	assert.Empty(t, res.Mismatched)
	assert.Zero(t, res.Failed)
	assert.Zero(t, testutil.ToFloat64(s.handler.Metrics.ReconcileMismatches))
}

func TestSweep_ReportsWritesAroundTheEngine(t *testing.T) {
	s := newTestServer(t)
	s.createCustomer("c1", "Asha", 500)
	s.createCustomer("c2", "Ravi", 100)

	store := s.handler.Store.(*sqldb.Store)
	_, err := store.DB().Exec(`UPDATE customers SET wallet = '999' WHERE id = 'c2'`)
	require.NoError(t, err)

	res := NewReconciliationScheduler(s.handler, time.Hour).Sweep(context.Background())
	assert.Equal(t, 2, res.Checked)
	assert.Equal(t, []ledger.CustomerID{"c2"}, res.Mismatched)
	assert.Equal(t, 1.0, testutil.ToFloat64(s.handler.Metrics.ReconcileMismatches))
}

func TestScheduler_StartStop(t *testing.T) {
	s := newTestServer(t)
	s.createCustomer("c1", "Asha", 50)

	rs := NewReconciliationScheduler(s.handler, 10*time.Millisecond)
	rs.Start()
	rs.Start()
	time.Sleep(30 * time.Millisecond)
	rs.Stop()
	rs.Stop()

	disabled := NewReconciliationScheduler(s.handler, 0)
	disabled.Start()
	disabled.Stop()
}
