package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/greyfinance/wallet-ledger/internal/api/problem"
	"github.com/greyfinance/wallet-ledger/internal/domain"
	"github.com/greyfinance/wallet-ledger/internal/models"
	"github.com/greyfinance/wallet-ledger/internal/service"
)

// WalletHandler serves balance, history, transfer and admin adjustment routes.
type WalletHandler struct {
	ledger *service.LedgerService
}

func NewWalletHandler(ledger *service.LedgerService) *WalletHandler {
	return &WalletHandler{ledger: ledger}
}

type balanceResponse struct {
	Balance  string `json:"balance"`
	Currency string `json:"currency"`
}

// GetBalance handles GET /v1/wallet/balance.
func (h *WalletHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	uid, _, err := requestActor(r)
	if err != nil {
		problem.Write(w, r, http.StatusUnauthorized, problem.Type("auth/unauthenticated"), http.StatusText(http.StatusUnauthorized), err.Error())
		return
	}

	balance, currency, err := h.ledger.GetBalance(r.Context(), uid)
	if err != nil {
		RespondDomainError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, balanceResponse{
		Balance:  domain.FormatAmount(balance),
		Currency: currency,
	})
}

type entryView struct {
	ID           string `json:"id"`
	Type         string `json:"type"`
	Amount       string `json:"amount"`
	Currency     string `json:"currency"`
	Status       string `json:"status"`
	Counterparty string `json:"counterparty,omitempty"`
	Note         string `json:"note,omitempty"`
	OrderID      string `json:"order_id,omitempty"`
	CaptureID    string `json:"capture_id,omitempty"`
	CreatedAt    string `json:"created_at"`
}

type listTransactionsResponse struct {
	Transactions []entryView `json:"transactions"`
	NextCursor   *string     `json:"next_cursor"`
}

// ListTransactions handles GET /v1/wallet/transactions.
func (h *WalletHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	uid, _, err := requestActor(r)
	if err != nil {
		problem.Write(w, r, http.StatusUnauthorized, problem.Type("auth/unauthenticated"), http.StatusText(http.StatusUnauthorized), err.Error())
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := parsePositiveInt(raw)
		if err != nil {
			problem.Write(w, r, http.StatusBadRequest, problem.Type("request/invalid-argument"), http.StatusText(http.StatusBadRequest), "invalid limit")
			return
		}
		limit = parsed
	}
	cursor := r.URL.Query().Get("cursor")

	entries, next, err := h.ledger.ListEntries(r.Context(), uid, limit, cursor)
	if err != nil {
		RespondDomainError(w, r, err)
		return
	}

	resp := listTransactionsResponse{Transactions: make([]entryView, 0, len(entries))}
	for _, e := range entries {
		resp.Transactions = append(resp.Transactions, toEntryView(e))
	}
	if next != "" {
		resp.NextCursor = &next
	}
	RespondJSON(w, http.StatusOK, resp)
}

type transferRequest struct {
	ToUID  string `json:"to_uid"`
	Amount string `json:"amount"`
	Note   string `json:"note"`
}

// Transfer handles POST /v1/transfers.
func (h *WalletHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	uid, _, err := requestActor(r)
	if err != nil {
		problem.Write(w, r, http.StatusUnauthorized, problem.Type("auth/unauthenticated"), http.StatusText(http.StatusUnauthorized), err.Error())
		return
	}

	var req transferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		problem.Write(w, r, http.StatusBadRequest, problem.Type("request/invalid-body"), http.StatusText(http.StatusBadRequest), "invalid request body")
		return
	}

	amount, err := domain.ParseAmount(req.Amount)
	if err != nil {
		RespondDomainError(w, r, domain.InvalidArgument("invalid amount %q", req.Amount))
		return
	}

	if err := h.ledger.Transfer(r.Context(), uid, req.ToUID, amount, req.Note); err != nil {
		RespondDomainError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

type adminAdjustRequest struct {
	UID    string `json:"uid"`
	Delta  string `json:"delta"`
	Reason string `json:"reason"`
}

// AdminAdjust handles POST /v1/admin/adjust.
func (h *WalletHandler) AdminAdjust(w http.ResponseWriter, r *http.Request) {
	uid, isAdmin, err := requestActor(r)
	if err != nil {
		problem.Write(w, r, http.StatusUnauthorized, problem.Type("auth/unauthenticated"), http.StatusText(http.StatusUnauthorized), err.Error())
		return
	}

	var req adminAdjustRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		problem.Write(w, r, http.StatusBadRequest, problem.Type("request/invalid-body"), http.StatusText(http.StatusBadRequest), "invalid request body")
		return
	}

	delta, err := domain.ParseAmount(req.Delta)
	if err != nil {
		RespondDomainError(w, r, domain.InvalidArgument("invalid delta %q", req.Delta))
		return
	}

	entry, err := h.ledger.AdminAdjust(r.Context(), service.Actor{UID: uid, Admin: isAdmin}, req.UID, delta, req.Reason)
	if err != nil {
		RespondDomainError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"entry_id": entry.ID,
	})
}

func toEntryView(e models.LedgerEntry) entryView {
	return entryView{
		ID:           e.ID,
		Type:         e.Type,
		Amount:       domain.FormatAmount(e.Amount),
		Currency:     e.Currency,
		Status:       e.Status,
		Counterparty: e.Counterparty,
		Note:         e.Note,
		OrderID:      e.OrderID,
		CaptureID:    e.CaptureID,
		CreatedAt:    e.CreatedAt.Format("2006-01-02T15:04:05.000Z07:00"),
	}
}

func parsePositiveInt(raw string) (int, error) {
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, domain.InvalidArgument("not a positive number: %q", raw)
	}
	return n, nil
}
