package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ShravaniMogali/4GB-sub001/internal/consignment"
	"github.com/ShravaniMogali/4GB-sub001/internal/identity"
	"github.com/ShravaniMogali/4GB-sub001/internal/ledger"
	"github.com/ShravaniMogali/4GB-sub001/internal/models"
)

// classify maps a service error to a status code and classification.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, consignment.ErrValidation),
		errors.Is(err, ledger.ErrInvalidIdentifier),
		errors.Is(err, identity.ErrInvalidInput),
		errors.Is(err, identity.ErrInvalidRole),
		errors.Is(err, identity.ErrPrincipalExists):
		return http.StatusBadRequest, models.ErrorValidation
	case errors.Is(err, identity.ErrTokenInvalid),
		errors.Is(err, identity.ErrTokenExpired),
		errors.Is(err, identity.ErrInvalidCredential),
		errors.Is(err, identity.ErrPrincipalNotFound):
		return http.StatusUnauthorized, models.ErrorAuth
	case errors.Is(err, consignment.ErrNotPermitted),
		errors.Is(err, identity.ErrAdminNotAllowed):
		return http.StatusForbidden, models.ErrorForbidden
	case errors.Is(err, consignment.ErrConsignmentNotFound):
		return http.StatusNotFound, models.ErrorNotFound
	case errors.Is(err, consignment.ErrDuplicateConsignment),
		errors.Is(err, ledger.ErrTransactionReverted):
		return http.StatusConflict, models.ErrorConflict
	case errors.Is(err, ledger.ErrTransactionRejected),
		errors.Is(err, ledger.ErrFeeCeilingExceeded):
		return http.StatusBadGateway, models.ErrorLedgerRejected
	case errors.Is(err, ledger.ErrLedgerUnreachable):
		return http.StatusServiceUnavailable, models.ErrorLedgerUnreachable
	case errors.Is(err, ledger.ErrNotConfigured):
		return http.StatusServiceUnavailable, models.ErrorConfiguration
	default:
		return http.StatusInternalServerError, models.ErrorInternal
	}
}

// respondError writes err as an ErrorResponse. Unclassified errors are logged.
func respondError(c echo.Context, op string, err error) error {
	status, class := classify(err)
	if status >= http.StatusInternalServerError {
		log.Errorw("Request failed", "op", op, "status", status, "request_id", requestID(c), "error", err)
	} else {
		log.Debugw("Request rejected", "op", op, "status", status, "error", err)
	}
	return c.JSON(status, models.ErrorResponse{
		Error:   class,
		Message: err.Error(),
		Code:    status,
	})
}

func badRequest(c echo.Context, message string) error {
	return c.JSON(http.StatusBadRequest, models.ErrorResponse{
		Error:   models.ErrorValidation,
		Message: message,
		Code:    http.StatusBadRequest,
	})
}

func requestID(c echo.Context) string {
	return c.Response().Header().Get(echo.HeaderXRequestID)
}
