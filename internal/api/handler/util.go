package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/greyfinance/wallet-ledger/internal/api/middleware"
	"github.com/greyfinance/wallet-ledger/internal/api/problem"
	"github.com/greyfinance/wallet-ledger/internal/domain"
)

// RespondJSON writes a JSON response.
func RespondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// RespondDomainError maps a kind-typed error onto a problem response.
func RespondDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch domain.KindOf(err) {
	case domain.KindInvalidArgument:
		problem.Write(w, r, http.StatusBadRequest, problem.Type("request/invalid-argument"), http.StatusText(http.StatusBadRequest), err.Error())
	case domain.KindUnauthenticated:
		problem.Write(w, r, http.StatusUnauthorized, problem.Type("auth/unauthenticated"), http.StatusText(http.StatusUnauthorized), err.Error())
	case domain.KindPermissionDenied:
		problem.Write(w, r, http.StatusForbidden, problem.Type("auth/permission-denied"), http.StatusText(http.StatusForbidden), err.Error())
	case domain.KindFailedPrecondition:
		problem.Write(w, r, http.StatusUnprocessableEntity, problem.Type("state/failed-precondition"), http.StatusText(http.StatusUnprocessableEntity), err.Error())
	case domain.KindInternal:
		problem.Write(w, r, http.StatusBadGateway, problem.Type("upstream/internal"), http.StatusText(http.StatusBadGateway), err.Error())
	default:
		problem.Write(w, r, http.StatusInternalServerError, problem.Type("internal-server-error"), http.StatusText(http.StatusInternalServerError), "unexpected server error")
	}
}

// requestActor extracts the verified caller from the auth context.
func requestActor(r *http.Request) (string, bool, error) {
	userID := middleware.UserIDFromContext(r.Context())
	if userID == "" {
		return "", false, errors.New("missing user in auth context")
	}
	return userID, middleware.UserRoleFromContext(r.Context()) == "admin", nil
}
