package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/greyfinance/wallet-ledger/internal/api/problem"
	"github.com/greyfinance/wallet-ledger/internal/domain"
	"github.com/greyfinance/wallet-ledger/internal/fx"
	"github.com/greyfinance/wallet-ledger/internal/service"
)

// FXHandler serves standalone currency conversion quotes.
type FXHandler struct {
	rates  *fx.Resolver
	ledger *service.LedgerService
}

func NewFXHandler(rates *fx.Resolver, ledger *service.LedgerService) *FXHandler {
	return &FXHandler{rates: rates, ledger: ledger}
}

type convertRequest struct {
	Amount string `json:"amount"`
	From   string `json:"from"`
	To     string `json:"to"`
}

type convertResponse struct {
	Amount string `json:"amount"`
	From   string `json:"from"`
	To     string `json:"to"`
	Result string `json:"result"`
}

// Convert handles POST /v1/fx/convert. An empty target currency means the
// wallet base currency.
func (h *FXHandler) Convert(w http.ResponseWriter, r *http.Request) {
	var req convertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		problem.Write(w, r, http.StatusBadRequest, problem.Type("request/invalid-body"), http.StatusText(http.StatusBadRequest), "invalid request body")
		return
	}

	amount, err := decimal.NewFromString(strings.TrimSpace(req.Amount))
	if err != nil {
		RespondDomainError(w, r, domain.InvalidArgument("invalid amount %q", req.Amount))
		return
	}
	if !amount.IsPositive() {
		RespondDomainError(w, r, domain.InvalidArgument("amount must be positive"))
		return
	}

	to := domain.NormalizeCurrency(req.To)
	if to == "" {
		to = h.ledger.BaseCurrency()
	}

	result, err := h.rates.Convert(r.Context(), amount, req.From, to)
	if err != nil {
		RespondDomainError(w, r, err)
		return
	}

	RespondJSON(w, http.StatusOK, convertResponse{
		Amount: amount.String(),
		From:   domain.NormalizeCurrency(req.From),
		To:     to,
		Result: result.StringFixed(2),
	})
}
