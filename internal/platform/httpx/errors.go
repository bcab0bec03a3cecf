package httpx

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-access/internal/shared"
)

type errorMapping struct {
	target error
	status int
	title  string
	code   string
}

// errorTable is matched in order with errors.Is; the first hit wins.
var errorTable = []errorMapping{
	{shared.ErrNotFound, http.StatusNotFound, "Not Found", "not_found"},
	{shared.ErrDuplicateCode, http.StatusConflict, "Duplicate", "duplicate_code"},
	{shared.ErrInvalidParentType, http.StatusUnprocessableEntity, "Unprocessable", "invalid_parent_type"},
	{shared.ErrCycleDetected, http.StatusUnprocessableEntity, "Unprocessable", "cycle_detected"},
	{shared.ErrInvalidPeriod, http.StatusUnprocessableEntity, "Unprocessable", "invalid_period"},
	{shared.ErrInvalidTransition, http.StatusUnprocessableEntity, "Unprocessable", "invalid_transition"},
	{shared.ErrValidation, http.StatusUnprocessableEntity, "Unprocessable", "validation_failed"},
	{shared.ErrUserBlocked, http.StatusForbidden, "Forbidden", "user_blocked"},
	{shared.ErrInvalidToken, http.StatusUnauthorized, "Unauthorized", "invalid_token"},
	{shared.ErrIssuerUnavailable, http.StatusServiceUnavailable, "Issuer Unavailable", "issuer_unavailable"},
}

// RespondError maps domain errors to problem responses. Unknown errors become
// a 500 without detail.
func RespondError(w http.ResponseWriter, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			fields[fe.Field()] = fe.Tag()
		}
		WriteProblem(w, ProblemDetail{
			Title:  "Validation Failed",
			Status: http.StatusUnprocessableEntity,
			Code:   "validation_failed",
			Detail: err.Error(),
			Fields: fields,
		})
		return
	}
	for _, m := range errorTable {
		if errors.Is(err, m.target) {
			WriteProblem(w, ProblemDetail{Title: m.title, Status: m.status, Code: m.code, Detail: err.Error()})
			return
		}
	}
	WriteProblem(w, ProblemDetail{Title: "Internal Error", Status: http.StatusInternalServerError})
}
