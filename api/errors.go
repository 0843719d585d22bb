package api

import (
	"errors"
	"log"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/brickbook/sales-ledger/ledger"
)

// writeLedgerError maps ledger errors onto HTTP responses:
//
//	ValidationError          400, per-field messages in "fields"
//	InsufficientBalanceError 400, with "required" and "available"
//	not found                404
//	cancelled / duplicate    409
//	anything else            500
func writeLedgerError(w http.ResponseWriter, err error) {
	var (
		verr *ledger.ValidationError
		berr *ledger.InsufficientBalanceError
	)
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "Validation failed",
			Code:    "validation_failed",
			Details: err.Error(),
			Fields:  verr.Fields,
		})
	case errors.As(err, &berr):
		required, available := money(berr.Required), money(berr.Available)
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:     "Insufficient wallet balance",
			Code:      "insufficient_balance",
			Required:  &required,
			Available: &available,
		})
	case ledger.IsNotFound(err):
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: err.Error(), Code: "not_found"})
	case errors.Is(err, ledger.ErrAlreadyCancelled):
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: err.Error(), Code: "already_cancelled"})
	case errors.Is(err, ledger.ErrDuplicateIdempotencyKey), errors.Is(err, ledger.ErrDuplicateCustomer):
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: err.Error(), Code: "duplicate"})
	default:
		log.Printf("[API] internal error: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}

// =============================================================================
// REQUEST VALIDATION
// =============================================================================

var requestValidator = func() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}()

func validateRequest(req any) error {
	err := requestValidator.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &ledger.ValidationError{Fields: []ledger.FieldError{{Field: "body", Message: err.Error()}}}
	}
	out := &ledger.ValidationError{}
	for _, fe := range verrs {
		out.Fields = append(out.Fields, ledger.FieldError{Field: fe.Field(), Message: "failed " + fe.Tag() + " check"})
	}
	return out
}
