package http

import (
	"errors"
	"net/http"

	"github.com/garyjia/logistics-console/internal/apperrors"
	"github.com/garyjia/logistics-console/internal/domain/workflow"
)

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Success   bool              `json:"success"`
	Error     string            `json:"error"`
	Fields    map[string]string `json:"fields,omitempty"`
	Retryable bool              `json:"retryable,omitempty"`
	Login     bool              `json:"login,omitempty"`
}

var conflictErrors = []error{
	apperrors.ErrRowBusy,
	apperrors.ErrActionInFlight,
	apperrors.ErrApprovalFinal,
	apperrors.ErrActionNotOffered,
	apperrors.ErrNotLoaded,
	apperrors.ErrSuperseded,
	workflow.ErrInvalidTransition,
}

var notFoundErrors = []error{
	apperrors.ErrSessionNotFound,
	apperrors.ErrUnknownDocumentType,
	apperrors.ErrDocumentNotFound,
	apperrors.ErrLineItemNotFound,
}

// errorResponse maps a service error to its HTTP status and body
func errorResponse(err error) (int, ErrorResponse) {
	body := ErrorResponse{Error: err.Error()}

	if fields := apperrors.FieldErrors(err); fields != nil {
		body.Fields = fields
		return http.StatusUnprocessableEntity, body
	}

	var authErr *apperrors.AuthRequiredError
	if errors.Is(err, apperrors.ErrMissingIdentity) || errors.As(err, &authErr) {
		body.Login = true
		return http.StatusUnauthorized, body
	}

	for _, target := range notFoundErrors {
		if errors.Is(err, target) {
			return http.StatusNotFound, body
		}
	}
	for _, target := range conflictErrors {
		if errors.Is(err, target) {
			return http.StatusConflict, body
		}
	}

	var reqErr *apperrors.RequestError
	var persistErr *apperrors.PersistenceError
	if errors.As(err, &reqErr) || errors.As(err, &persistErr) {
		body.Retryable = apperrors.IsRetryable(err)
		return http.StatusBadGateway, body
	}

	return http.StatusInternalServerError, body
}
