/*
handlers.go - HTTP API handlers for the sales ledger

PURPOSE:
  Exposes the ledger engine and balance reader via REST API. Handles HTTP
  request/response and JSON serialization, and delegates every balance
  change to ledger.Engine.

ENDPOINTS:
  Sales:
    POST   /api/sales                   Create sale (Idempotency-Key header honoured)
    GET    /api/sales                   List sales (?customer_id=&status=&limit=)
    GET    /api/sales/{id}              Get sale with items
    PUT    /api/sales/{id}/payment      Record a later payment
    DELETE /api/sales/{id}              Cancel: reverse balances, keep row
    DELETE /api/sales/delete/{id}       Delete: reverse balances, remove row

  Customers:
    POST   /api/customers               Create customer (balances start at zero)
    GET    /api/customers               List customers
    GET    /api/customers/{id}          Get customer
    PUT    /api/customers/{id}          Update profile fields
    GET    /api/customers/{id}/balance  Wallet, outstanding, total purchases
    GET    /api/customers/{id}/entries  Balance journal
    GET    /api/customers/{id}/reconcile Journal replay vs stored balances
    POST   /api/customers/{id}/deposits    Add wallet credit
    POST   /api/customers/{id}/settlements Pay down dues

  Dashboard:
    GET    /api/dashboard/stats         Totals across customers and sales

ERROR HANDLING:
  See errors.go for the ledger error to status mapping.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/brickbook/sales-ledger/cache"
	"github.com/brickbook/sales-ledger/ledger"
	"github.com/brickbook/sales-ledger/metrics"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine *ledger.Engine
	Reader *ledger.Reader
	Store  ledger.Store

	// Optional. A nil cache reads through to the store, nil metrics record nothing.
	Cache   *cache.Cache
	Metrics *metrics.Metrics

	// Health reports storage reachability for /healthz.
	Health func(ctx context.Context) error
}

func NewHandler(store ledger.TxStore) *Handler {
	return &Handler{
		Engine: ledger.NewEngine(store),
		Reader: ledger.NewReader(store),
		Store:  store,
	}
}

func (h *Handler) observe(op string, err error) {
	if h.Metrics != nil {
		h.Metrics.Operation(op, err)
	}
}

// =============================================================================
// SALE HANDLERS
// =============================================================================

func (h *Handler) CreateSale(w http.ResponseWriter, r *http.Request) {
	var req ledger.NewSale
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	req.IdempotencyKey = strings.TrimSpace(r.Header.Get("Idempotency-Key"))

	sale, err := h.Engine.CreateSale(r.Context(), req)
	h.observe("create_sale", err)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	h.invalidate(r.Context(), sale.CustomerID)
	writeJSON(w, http.StatusCreated, toSaleDTO(*sale))
}

func (h *Handler) ListSales(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ledger.SaleFilter{Status: ledger.SaleStatus(q.Get("status"))}
	if id := q.Get("customer_id"); id != "" {
		cid := ledger.CustomerID(id)
		filter.CustomerID = &cid
	}
	if limit := q.Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit", err)
			return
		}
		filter.Limit = n
	}
	switch filter.Status {
	case "", ledger.SaleActive, ledger.SaleCancelled:
	default:
		writeError(w, http.StatusBadRequest, "Invalid status filter (use active or cancelled)", nil)
		return
	}

	sales, err := h.Store.ListSales(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list sales", err)
		return
	}
	dtos := make([]SaleDTO, len(sales))
	for i, s := range sales {
		dtos[i] = toSaleDTO(s)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) GetSale(w http.ResponseWriter, r *http.Request) {
	sale, err := h.Store.GetSale(r.Context(), ledger.SaleID(chi.URLParam(r, "id")))
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSaleDTO(*sale))
}

func (h *Handler) UpdatePayment(w http.ResponseWriter, r *http.Request) {
	var req ledger.PaymentUpdate
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	sale, err := h.Engine.RecordPayment(r.Context(), ledger.SaleID(chi.URLParam(r, "id")), req)
	h.observe("record_payment", err)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	h.invalidate(r.Context(), sale.CustomerID)
	writeJSON(w, http.StatusOK, toSaleDTO(*sale))
}

// CancelSale reverses a sale and keeps it, marked cancelled.
// An optional ?reason= is appended to the sale notes.
func (h *Handler) CancelSale(w http.ResponseWriter, r *http.Request) {
	sale, rev, err := h.Engine.CancelSale(r.Context(), ledger.SaleID(chi.URLParam(r, "id")), r.URL.Query().Get("reason"))
	h.observe("cancel_sale", err)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	h.invalidate(r.Context(), rev.CustomerID)

	dto := toSaleDTO(*sale)
	resp := toReversalDTO("Sale cancelled", rev)
	resp.Sale = &dto
	writeJSON(w, http.StatusOK, resp)
}

// DeleteSale reverses a sale and removes it with its line items.
func (h *Handler) DeleteSale(w http.ResponseWriter, r *http.Request) {
	rev, err := h.Engine.DeleteSale(r.Context(), ledger.SaleID(chi.URLParam(r, "id")))
	h.observe("delete_sale", err)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	h.invalidate(r.Context(), rev.CustomerID)
	writeJSON(w, http.StatusOK, toReversalDTO("Sale deleted", rev))
}

// invalidate drops cached stats, and the customer's balance for non-walk-in sales.
func (h *Handler) invalidate(ctx context.Context, id *ledger.CustomerID) {
	if id != nil {
		h.Cache.Invalidate(ctx, *id)
		return
	}
	h.Cache.Invalidate(ctx)
}

func toReversalDTO(msg string, rev *ledger.Reversal) ReversalDTO {
	return ReversalDTO{
		Success:    true,
		Message:    msg,
		SaleID:     string(rev.SaleID),
		CustomerID: customerIDPtr(rev.CustomerID),
		Reversed:   toBalancesDTO(rev.Delta),
		Balances:   toBalancesDTO(rev.Balances),
	}
}

// =============================================================================
// CUSTOMER HANDLERS
// =============================================================================

func (h *Handler) CreateCustomer(w http.ResponseWriter, r *http.Request) {
	var req CreateCustomerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := validateRequest(req); err != nil {
		writeLedgerError(w, err)
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	c := ledger.Customer{
		ID:      ledger.CustomerID(req.ID),
		Name:    strings.TrimSpace(req.Name),
		Phone:   req.Phone,
		Email:   req.Email,
		Address: req.Address,
	}
	if err := h.Store.CreateCustomer(r.Context(), c); err != nil {
		writeLedgerError(w, err)
		return
	}
	created, err := h.Store.GetCustomer(r.Context(), c.ID)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	h.Cache.Invalidate(r.Context())
	writeJSON(w, http.StatusCreated, toCustomerDTO(*created))
}

func (h *Handler) ListCustomers(w http.ResponseWriter, r *http.Request) {
	customers, err := h.Store.ListCustomers(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list customers", err)
		return
	}
	dtos := make([]CustomerDTO, len(customers))
	for i, c := range customers {
		dtos[i] = toCustomerDTO(c)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) GetCustomer(w http.ResponseWriter, r *http.Request) {
	c, err := h.Store.GetCustomer(r.Context(), ledger.CustomerID(chi.URLParam(r, "id")))
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCustomerDTO(*c))
}

func (h *Handler) UpdateCustomer(w http.ResponseWriter, r *http.Request) {
	var req UpdateCustomerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := validateRequest(req); err != nil {
		writeLedgerError(w, err)
		return
	}

	id := ledger.CustomerID(chi.URLParam(r, "id"))
	err := h.Store.UpdateCustomer(r.Context(), ledger.Customer{
		ID:      id,
		Name:    strings.TrimSpace(req.Name),
		Phone:   req.Phone,
		Email:   req.Email,
		Address: req.Address,
	})
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	c, err := h.Store.GetCustomer(r.Context(), id)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCustomerDTO(*c))
}

// =============================================================================
// BALANCE HANDLERS
// =============================================================================

// GetBalance serves from the cache when possible.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := ledger.CustomerID(chi.URLParam(r, "id"))

	b, ticket, ok := h.Cache.Balance(ctx, id)
	if ok {
		h.cacheLookup("hit")
		writeJSON(w, http.StatusOK, toBalancesDTO(b))
		return
	}
	h.cacheLookup("miss")

	b, err := h.Reader.CustomerBalance(ctx, id)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	h.Cache.SetBalance(ctx, id, ticket, b)
	writeJSON(w, http.StatusOK, toBalancesDTO(b))
}

func (h *Handler) GetEntries(w http.ResponseWriter, r *http.Request) {
	entries, err := h.Reader.Entries(r.Context(), ledger.CustomerID(chi.URLParam(r, "id")))
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	dtos := make([]EntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toEntryDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	rec, err := h.Reader.Reconcile(r.Context(), ledger.CustomerID(chi.URLParam(r, "id")))
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ReconciliationDTO{
		CustomerID: string(rec.CustomerID),
		Stored:     toBalancesDTO(rec.Stored),
		Replayed:   toBalancesDTO(rec.Replayed),
		Entries:    rec.Entries,
		Consistent: rec.Consistent,
	})
}

func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	h.moneyOp(w, r, "deposit", h.Engine.Deposit)
}

func (h *Handler) SettleDues(w http.ResponseWriter, r *http.Request) {
	h.moneyOp(w, r, "settle_dues", h.Engine.SettleDues)
}

type moneyFunc func(ctx context.Context, id ledger.CustomerID, amount decimal.Decimal, note string) (ledger.Balances, error)

func (h *Handler) moneyOp(w http.ResponseWriter, r *http.Request, op string, fn moneyFunc) {
	var req MoneyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := validateRequest(req); err != nil {
		writeLedgerError(w, err)
		return
	}

	id := ledger.CustomerID(chi.URLParam(r, "id"))
	b, err := fn(r.Context(), id, req.Amount, req.Note)
	h.observe(op, err)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	h.Cache.Invalidate(r.Context(), id)
	writeJSON(w, http.StatusOK, toBalancesDTO(b))
}

// =============================================================================
// DASHBOARD
// =============================================================================

func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	st, ticket, ok := h.Cache.Stats(ctx)
	if ok {
		h.cacheLookup("hit")
		writeJSON(w, http.StatusOK, toStatsDTO(st))
		return
	}
	h.cacheLookup("miss")

	st, err := h.Reader.Stats(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to compute stats", err)
		return
	}
	h.Cache.SetStats(ctx, ticket, st)
	writeJSON(w, http.StatusOK, toStatsDTO(st))
}

func (h *Handler) cacheLookup(result string) {
	if h.Metrics != nil && h.Cache != nil {
		h.Metrics.CacheLookups.WithLabelValues(result).Inc()
	}
}

// =============================================================================
// HEALTH
// =============================================================================

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	if h.Health != nil {
		if err := h.Health(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "Storage unavailable", err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
