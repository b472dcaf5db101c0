package shared

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
)

// Status maps a ledger error onto an HTTP status code.
func Status(err error) int {
	switch {
	case errors.Is(err, ErrJournalNotFound), errors.Is(err, ErrMappingNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrAccountNotFound):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrAlreadyPosted), errors.Is(err, ErrNotPosted),
		errors.Is(err, ErrCannotDeletePosted), errors.Is(err, ErrAlreadyReversed),
		errors.Is(err, ErrReversalNotAllowed), errors.Is(err, ErrDependency),
		errors.Is(err, ErrSourceAlreadyLinked):
		return http.StatusConflict
	case errors.Is(err, ErrValidation), errors.Is(err, ErrImbalance), errors.Is(err, ErrInvalidLine),
		errors.Is(err, ErrInactiveAccount), errors.Is(err, ErrHeaderAccount), errors.Is(err, ErrInvariant):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrConcurrency):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// WriteError renders err as a problem document. Internal errors are logged
// and their detail withheld.
func WriteError(w http.ResponseWriter, logger *slog.Logger, err error) {
	if errors.Is(err, httpx.ErrValidation) || errors.Is(err, httpx.ErrNotFound) {
		httpx.RespondError(w, err)
		return
	}
	status := Status(err)
	if status == http.StatusInternalServerError {
		if logger != nil {
			logger.Error("accounting request failed", slog.Any("error", err))
		}
		httpx.Problem(w, status, http.StatusText(status), "")
		return
	}
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
	}
	httpx.WriteProblem(w, httpx.ProblemDetail{
		Title:  http.StatusText(status),
		Status: status,
		Detail: err.Error(),
		Code:   Code(err),
	})
}
