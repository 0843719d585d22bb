/*
errors.go - Centralized error types for the ledger engine

PURPOSE:
  All error types in one place. Callers branch with errors.Is / errors.As;
  the HTTP layer maps them onto status codes.

ERROR CATEGORIES:
  1. Validation errors - Missing or invalid input, caught before any transaction
  2. Balance errors - Wallet draw exceeds what the customer holds
  3. Lookup errors - Sale or customer absent, sale already cancelled
  4. Store errors - Query or transaction failure, always rolled back

SEE ALSO:
  - engine.go: Returns these errors
  - api/errors.go: Maps them to HTTP responses
*/
package ledger

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrValidation = errors.New("validation failed")

	ErrInsufficientBalance = errors.New("insufficient wallet balance")

	ErrSaleNotFound     = errors.New("sale not found")
	ErrCustomerNotFound = errors.New("customer not found")

	// ErrAlreadyCancelled is returned when reversing a sale twice.
	// Cancellation is deliberately not idempotent.
	ErrAlreadyCancelled = errors.New("sale already cancelled")

	// ErrDuplicateIdempotencyKey is returned when a sale with the same
	// idempotency key already exists.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

	ErrDuplicateCustomer = errors.New("customer already exists")

	ErrStorage = errors.New("storage failure")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// FieldError describes one invalid input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + ": " + f.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func (e *ValidationError) add(field, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message})
}

func (e *ValidationError) orNil() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}

func invalid(field, message string) error {
	return &ValidationError{Fields: []FieldError{{Field: field, Message: message}}}
}

// InsufficientBalanceError reports a wallet draw larger than the wallet.
type InsufficientBalanceError struct {
	CustomerID CustomerID
	Required   decimal.Decimal
	Available  decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient wallet balance: required %s, available %s",
		e.Required.StringFixed(2), e.Available.StringFixed(2))
}

func (e *InsufficientBalanceError) Unwrap() error { return ErrInsufficientBalance }

// StorageError wraps a failure from the underlying store.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() []error { return []error{ErrStorage, e.Err} }

// storageErr wraps err unless it is already one of the ledger's own errors.
func storageErr(op string, err error) error {
	if err == nil || isLedgerError(err) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

func isLedgerError(err error) bool {
	return IsClientError(err) || IsNotFound(err) || errors.Is(err, ErrStorage)
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrAlreadyCancelled) ||
		errors.Is(err, ErrDuplicateIdempotencyKey) ||
		errors.Is(err, ErrDuplicateCustomer)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrSaleNotFound) || errors.Is(err, ErrCustomerNotFound)
}
