package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/Spok95/decant-pricing/internal/domain/materials"
	"github.com/Spok95/decant-pricing/internal/domain/packaging"
	"github.com/Spok95/decant-pricing/internal/pricing"
	"github.com/Spok95/decant-pricing/internal/report"
)

const maxUpload = 10 << 20

// API exposes the engine operations consumed by the storefront, checkout and back office.
type API struct {
	engine  *pricing.Engine
	store   pricing.Reader
	history pricing.HistoryReader // optional
	log     *slog.Logger
}

func NewAPI(engine *pricing.Engine, store pricing.Reader, log *slog.Logger) *API {
	a := &API{engine: engine, store: store, log: log}
	if h, ok := store.(pricing.HistoryReader); ok {
		a.history = h
	}
	return a
}

func (a *API) routes(r chi.Router) {
	r.Route("/products/{id}", func(r chi.Router) {
		r.Get("/prices", a.handlePrices)
		r.Get("/sizes", a.handleSizes)
		r.Get("/cost/{size}", a.handleCost)
		r.Get("/history", a.handleHistory)
		r.Put("/margin", a.handleSetMargin)
		r.Put("/prices/{size}", a.handleSetPrice)
		r.Post("/recalculate", a.handleRecalculate)
	})

	r.Post("/integrity/check", a.handleCheck)
	r.Post("/integrity/fix", a.handleFix)
	r.Get("/integrity/report.xlsx", a.handleReportXLSX)

	r.Post("/packaging/quote", a.handleQuote)

	r.Get("/materials", a.handleMaterials)
	r.Get("/materials/low-stock", a.handleLowStock)
	r.Get("/materials/{id}/lots", a.handleLots)
	r.Post("/materials/{id}/lots", a.handleReceiveLot)
	r.Post("/materials/{id}/consume", a.handleConsume)
	r.Post("/materials/import", a.handleImportCosts)

	r.Get("/prices/export.xlsx", a.handleExportPrices)
}

/* helpers */

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeXLSX(w http.ResponseWriter, name string, data []byte) {
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func statusOf(err error) (int, string) {
	var (
		im *pricing.InvalidMarginError
		mr *pricing.MissingRecipeError
		mm *pricing.MissingMaterialError
	)
	switch {
	case errors.As(err, &im):
		return http.StatusUnprocessableEntity, "invalid_margin"
	case errors.Is(err, packaging.ErrNoRule):
		return http.StatusUnprocessableEntity, "no_packaging_rule"
	case errors.Is(err, pricing.ErrMaterialNotFound):
		return http.StatusNotFound, "material_not_found"
	case errors.As(err, &mr):
		return http.StatusConflict, "missing_recipe"
	case errors.As(err, &mm):
		return http.StatusConflict, "missing_material"
	case errors.Is(err, pricing.ErrMissingMargin):
		return http.StatusConflict, "missing_margin"
	case errors.Is(err, pricing.ErrConcurrentUpdate):
		return http.StatusConflict, "concurrent_update"
	case errors.Is(err, pricing.ErrAuditRunning):
		return http.StatusConflict, "audit_running"
	case errors.Is(err, pricing.ErrProductNotFound):
		return http.StatusNotFound, "product_not_found"
	case errors.Is(err, pricing.ErrSizeNotAvailable):
		return http.StatusUnprocessableEntity, "size_not_available"
	case errors.Is(err, pricing.ErrInvalidPrice),
		errors.Is(err, pricing.ErrEmptyOrder),
		errors.Is(err, pricing.ErrInvalidOrder):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, pricing.ErrUnavailable):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func (a *API) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusOf(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		a.log.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		msg = "internal error"
	}
	writeJSON(w, status, errorBody{Error: code, Message: msg})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: "bad_request", Message: msg})
}

func productID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", chi.URLParam(r, "id"))
	}
	return id, nil
}

func sizeParam(r *http.Request) (int, error) {
	s, err := strconv.Atoi(chi.URLParam(r, "size"))
	if err != nil || s <= 0 {
		return 0, fmt.Errorf("invalid size %q", chi.URLParam(r, "size"))
	}
	return s, nil
}

/* products */

func (a *API) handlePrices(w http.ResponseWriter, r *http.Request) {
	id, err := productID(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	out, err := a.engine.Storefront.Prices(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) handleSizes(w http.ResponseWriter, r *http.Request) {
	id, err := productID(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	out, err := a.engine.Sizes.Sellable(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) handleCost(w http.ResponseWriter, r *http.Request) {
	id, err := productID(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	size, err := sizeParam(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	bd, err := a.engine.Calculator.Cost(r.Context(), id, size)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bd)
}

func (a *API) handleHistory(w http.ResponseWriter, r *http.Request) {
	if a.history == nil {
		writeJSON(w, http.StatusNotImplemented, errorBody{Error: "not_implemented", Message: "history is not kept by this store"})
		return
	}
	id, err := productID(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	out, err := a.history.History(r.Context(), id, limit)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

type marginRequest struct {
	Percentage decimal.Decimal `json:"percentage"`
}

func (a *API) handleSetMargin(w http.ResponseWriter, r *http.Request) {
	id, err := productID(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	var req marginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid body: "+err.Error())
		return
	}
	upd, err := a.engine.Setter.SetMargin(r.Context(), id, req.Percentage)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, upd)
}

type priceRequest struct {
	Price decimal.Decimal `json:"price"`
	Pin   bool            `json:"pin"`
}

func (a *API) handleSetPrice(w http.ResponseWriter, r *http.Request) {
	id, err := productID(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	size, err := sizeParam(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	var req priceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid body: "+err.Error())
		return
	}
	out, err := a.engine.Setter.SetPriceForSize(r.Context(), id, size, req.Price, req.Pin)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) handleRecalculate(w http.ResponseWriter, r *http.Request) {
	id, err := productID(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	upd, err := a.engine.Setter.Recalculate(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, upd)
}

/* integrity */

func (a *API) handleCheck(w http.ResponseWriter, r *http.Request) {
	rep, err := a.engine.Audit.Check(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (a *API) handleFix(w http.ResponseWriter, r *http.Request) {
	fr, err := a.engine.Audit.AutoFix(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, fr)
}

func (a *API) handleReportXLSX(w http.ResponseWriter, r *http.Request) {
	rep, err := a.engine.Audit.Check(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	data, err := report.AuditXLSX(rep, nil)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeXLSX(w, fmt.Sprintf("integrity_%s.xlsx", time.Now().Format("20060102_150405")), data)
}

/* packaging */

type quoteRequest struct {
	Items []pricing.OrderItem `json:"items"`
}

func (a *API) handleQuote(w http.ResponseWriter, r *http.Request) {
	var req quoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid body: "+err.Error())
		return
	}
	q, err := a.engine.Packager.Quote(r.Context(), req.Items)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

/* materials */

type lotRequest struct {
	Quantity    decimal.Decimal `json:"quantity"`
	CostPerUnit decimal.Decimal `json:"cost_per_unit"`
	Supplier    string          `json:"supplier"`
	PurchasedAt *time.Time      `json:"purchased_at"`
	ExpiresAt   *time.Time      `json:"expires_at"`
}

func (a *API) ledger(w http.ResponseWriter) bool {
	if a.engine.Ledger == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "unavailable", Message: "material ledger is not configured"})
		return false
	}
	return true
}

func (a *API) handleReceiveLot(w http.ResponseWriter, r *http.Request) {
	if !a.ledger(w) {
		return
	}
	id, err := productID(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	var req lotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid body: "+err.Error())
		return
	}
	if !req.Quantity.IsPositive() || req.CostPerUnit.IsNegative() {
		badRequest(w, "quantity must be > 0 and cost_per_unit >= 0")
		return
	}
	lot := materials.Lot{
		MaterialID:  id,
		Quantity:    req.Quantity,
		CostPerUnit: req.CostPerUnit,
		Supplier:    req.Supplier,
		ExpiresAt:   req.ExpiresAt,
	}
	if req.PurchasedAt != nil {
		lot.PurchasedAt = *req.PurchasedAt
	}
	ch, err := a.engine.Ledger.ReceiveLot(r.Context(), lot)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ch)
}

func (a *API) handleLots(w http.ResponseWriter, r *http.Request) {
	if !a.ledger(w) {
		return
	}
	id, err := productID(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	out, err := a.engine.Ledger.Lots(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if out == nil {
		out = []materials.Lot{}
	}
	writeJSON(w, http.StatusOK, out)
}

type consumeRequest struct {
	Quantity decimal.Decimal `json:"quantity"`
}

func (a *API) handleConsume(w http.ResponseWriter, r *http.Request) {
	if !a.ledger(w) {
		return
	}
	id, err := productID(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	var req consumeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid body: "+err.Error())
		return
	}
	if !req.Quantity.IsPositive() {
		badRequest(w, "quantity must be > 0")
		return
	}
	m, err := a.engine.Ledger.Consume(r.Context(), id, req.Quantity)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (a *API) handleMaterials(w http.ResponseWriter, r *http.Request) {
	if !a.ledger(w) {
		return
	}
	out, err := a.engine.Ledger.List(r.Context(), r.URL.Query().Get("all") != "true")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if out == nil {
		out = []materials.Material{}
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) handleLowStock(w http.ResponseWriter, r *http.Request) {
	if !a.ledger(w) {
		return
	}
	out, err := a.engine.Ledger.LowStock(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if out == nil {
		out = []materials.Material{}
	}
	writeJSON(w, http.StatusOK, out)
}

// handleImportCosts accepts the xlsx either as a multipart "file" field or as the raw body.
func (a *API) handleImportCosts(w http.ResponseWriter, r *http.Request) {
	if !a.ledger(w) {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUpload)

	var data []byte
	if file, _, err := r.FormFile("file"); err == nil {
		defer func() { _ = file.Close() }()
		data, err = io.ReadAll(file)
		if err != nil {
			badRequest(w, "read upload: "+err.Error())
			return
		}
	} else {
		data, err = io.ReadAll(r.Body)
		if err != nil {
			badRequest(w, "read body: "+err.Error())
			return
		}
	}

	rows, bad, err := report.ParseCostImport(data)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	res, err := a.engine.Ledger.ImportCosts(r.Context(), rows)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	res.Errors = append(bad, res.Errors...)
	writeJSON(w, http.StatusOK, res)
}

func (a *API) handleExportPrices(w http.ResponseWriter, r *http.Request) {
	data, err := report.PricesXLSX(r.Context(), a.store)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeXLSX(w, fmt.Sprintf("prices_%s.xlsx", time.Now().Format("20060102_150405")), data)
}
