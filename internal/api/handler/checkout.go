package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/greyfinance/wallet-ledger/internal/api/problem"
	"github.com/greyfinance/wallet-ledger/internal/domain"
	"github.com/greyfinance/wallet-ledger/internal/gateway"
	"github.com/greyfinance/wallet-ledger/internal/service"
)

// CheckoutHandler serves order creation and capture routes.
type CheckoutHandler struct {
	svc *service.CheckoutService
}

func NewCheckoutHandler(svc *service.CheckoutService) *CheckoutHandler {
	return &CheckoutHandler{svc: svc}
}

type createOrderRequest struct {
	Amount      string `json:"amount"`
	Currency    string `json:"currency"`
	Intent      string `json:"intent"`
	Description string `json:"description"`
	ReturnURL   string `json:"return_url"`
	CancelURL   string `json:"cancel_url"`
}

type createOrderResponse struct {
	OrderID  string         `json:"order_id"`
	Status   string         `json:"status"`
	Amount   string         `json:"amount"`
	Currency string         `json:"currency"`
	Links    []gateway.Link `json:"links,omitempty"`
}

// CreateOrder handles POST /v1/orders.
func (h *CheckoutHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	if _, _, err := requestActor(r); err != nil {
		problem.Write(w, r, http.StatusUnauthorized, problem.Type("auth/unauthenticated"), http.StatusText(http.StatusUnauthorized), err.Error())
		return
	}

	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		problem.Write(w, r, http.StatusBadRequest, problem.Type("request/invalid-body"), http.StatusText(http.StatusBadRequest), "invalid request body")
		return
	}

	out, err := h.svc.CreateOrder(r.Context(), service.CreateOrderInput{
		Amount:      req.Amount,
		Currency:    req.Currency,
		Intent:      req.Intent,
		Description: req.Description,
		ReturnURL:   req.ReturnURL,
		CancelURL:   req.CancelURL,
	})
	if err != nil {
		RespondDomainError(w, r, err)
		return
	}

	RespondJSON(w, http.StatusCreated, createOrderResponse{
		OrderID:  out.Order.ID,
		Status:   out.Order.Status,
		Amount:   out.Amount,
		Currency: out.Currency,
		Links:    out.Order.Links,
	})
}

type captureResponse struct {
	Amount    string `json:"amount"`
	Currency  string `json:"currency"`
	CaptureID string `json:"capture_id"`
}

// CaptureOrder handles POST /v1/orders/{id}/capture.
func (h *CheckoutHandler) CaptureOrder(w http.ResponseWriter, r *http.Request) {
	uid, _, err := requestActor(r)
	if err != nil {
		problem.Write(w, r, http.StatusUnauthorized, problem.Type("auth/unauthenticated"), http.StatusText(http.StatusUnauthorized), err.Error())
		return
	}

	orderID := chi.URLParam(r, "id")
	outcome, err := h.svc.Capture(r.Context(), uid, orderID)
	if err != nil {
		RespondDomainError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, captureResponse{
		Amount:    domain.FormatAmount(outcome.Amount),
		Currency:  outcome.Currency,
		CaptureID: outcome.CaptureID,
	})
}
