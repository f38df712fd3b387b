package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dmitrijs2005/chunkvault/internal/common"
	"github.com/dmitrijs2005/chunkvault/internal/logging"
)

// Payload is the envelope of every response.
type Payload struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func JSONResponse(w http.ResponseWriter, status int, payload Payload) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func ok(w http.ResponseWriter, status int, msg string, data any) {
	JSONResponse(w, status, Payload{Success: true, Message: msg, Data: data})
}

func fail(w http.ResponseWriter, status int, msg string) {
	JSONResponse(w, status, Payload{Success: false, Message: msg})
}

type incompleteData struct {
	Received int `json:"received"`
	Total    int `json:"total"`
}

// writeError maps a service error to its status. Integrity and sink errors
// are matched first since they may wrap common.ErrNotFound.
func writeError(ctx context.Context, w http.ResponseWriter, log logging.Logger, err error) {
	var inc *common.IncompleteSessionError
	switch {
	case errors.As(err, &inc):
		JSONResponse(w, http.StatusConflict, Payload{
			Message: err.Error(),
			Data:    incompleteData{Received: inc.Received, Total: inc.Total},
		})
	case errors.Is(err, common.ErrIntegrityViolation):
		log.Error(ctx, "integrity violation", "error", err)
		fail(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, common.ErrSinkFailure):
		fail(w, http.StatusBadGateway, err.Error())
	case errors.Is(err, common.ErrLeaseHeld):
		fail(w, http.StatusConflict, err.Error())
	case errors.Is(err, common.ErrInsufficientMemory):
		fail(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, common.ErrInvalidArgument):
		fail(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, common.ErrNotFound):
		fail(w, http.StatusNotFound, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		fail(w, http.StatusGatewayTimeout, "request timed out")
	default:
		log.Error(ctx, "request failed", "error", err)
		fail(w, http.StatusInternalServerError, "internal error")
	}
}
