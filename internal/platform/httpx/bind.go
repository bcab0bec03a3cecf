package httpx

import (
	"net/http"

	"github.com/go-playground/validator/v10"
)

// Guard builds privilege-checking middleware for route groups.
type Guard interface {
	RequireAny(privileges ...string) func(http.Handler) http.Handler
}

// OpenGuard lets every request through.
type OpenGuard struct{}

// RequireAny returns a pass-through middleware.
func (OpenGuard) RequireAny(...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler { return next }
}

// Bind decodes the JSON body into target and validates its struct tags.
func Bind(r *http.Request, v *validator.Validate, target any) error {
	if err := DecodeJSON(r, target); err != nil {
		return err
	}
	return v.Struct(target)
}
