package handler

import (
	"errors"
	"net/http"

	"shardz/internal/service"
)

// writeServiceError maps service sentinels onto HTTP status codes. Anything
// unrecognized is a 500.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound), errors.Is(err, service.ErrUserNotFound), errors.Is(err, service.ErrPaymentNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, service.ErrForbidden):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, service.ErrQuotaExceeded):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, service.ErrObjectExists):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, service.ErrNotImplemented):
		http.Error(w, err.Error(), http.StatusNotImplemented)
	case errors.Is(err, service.ErrInvalidAmount), errors.Is(err, service.ErrNoFile), errors.Is(err, service.ErrUnsupportedFileType):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, service.ErrInvalidCredentials):
		http.Error(w, err.Error(), http.StatusUnauthorized)
	case errors.Is(err, service.ErrEmailAlreadyRegistered):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, service.ErrGatewayTimeout):
		http.Error(w, err.Error(), http.StatusGatewayTimeout)
	case errors.Is(err, service.ErrGateway):
		http.Error(w, err.Error(), http.StatusBadGateway)
	case errors.Is(err, service.ErrManualIntervention):
		http.Error(w, err.Error(), http.StatusInternalServerError)
	default:
		var provErr *service.ProvisioningError
		var deprovErr *service.DeprovisioningError
		if errors.As(err, &provErr) || errors.As(err, &deprovErr) {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
