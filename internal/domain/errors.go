package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound signals an unknown corpus, collection, version, or format.
	ErrNotFound = errors.New("not found")
	// ErrIntegrity signals a content-hash mismatch on a fetched file.
	ErrIntegrity = errors.New("integrity check failed")
	// ErrSchemaViolation signals a structural failure on a derived table.
	ErrSchemaViolation = errors.New("schema violation")
	// ErrEmptyReport signals reports that normalized to empty strings.
	ErrEmptyReport = errors.New("empty report after normalization")
	// ErrContract signals a missing precondition in corpus metadata.
	ErrContract = errors.New("contract violation")
	// ErrInvalidInput signals a bad argument to a public function.
	ErrInvalidInput = errors.New("invalid input")
	// ErrRegistryInvalid signals a malformed or inconsistent catalog.
	ErrRegistryInvalid = errors.New("invalid registry")
)

// NotFoundError wraps ErrNotFound with the sorted set of valid alternatives.
type NotFoundError struct {
	Kind      string // "corpus", "version", "collection", "format"
	Name      string
	Available []string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q %s. Available: %s",
		e.Kind, e.Name, ErrNotFound.Error(), strings.Join(e.Available, ", "))
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// NewNotFound creates a NotFoundError enumerating the valid alternatives.
// The alternatives must already be sorted.
func NewNotFound(kind, name string, available []string) error {
	return &NotFoundError{Kind: kind, Name: name, Available: available}
}

// IntegrityError wraps ErrIntegrity with the expected and actual digests.
type IntegrityError struct {
	URL  string
	Want string
	Got  string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("%s for %s: got %s, want %s",
		ErrIntegrity.Error(), e.URL, e.Got, e.Want)
}

func (e *IntegrityError) Unwrap() error { return ErrIntegrity }

// SchemaError wraps ErrSchemaViolation with the table and failed rule.
type SchemaError struct {
	Table  string // "reports", "authors", "aggregate"
	Column string
	Reason string
}

func (e *SchemaError) Error() string {
	if e.Column == "" {
		return fmt.Sprintf("%s in %s table: %s", ErrSchemaViolation.Error(), e.Table, e.Reason)
	}
	return fmt.Sprintf("%s in %s table, column %q: %s",
		ErrSchemaViolation.Error(), e.Table, e.Column, e.Reason)
}

func (e *SchemaError) Unwrap() error { return ErrSchemaViolation }

// EmptyReportError wraps ErrEmptyReport with the affected row count.
type EmptyReportError struct {
	Count int
}

func (e *EmptyReportError) Error() string {
	return fmt.Sprintf("found %d report(s) empty after normalization; reports cannot be empty strings", e.Count)
}

func (e *EmptyReportError) Unwrap() error { return ErrEmptyReport }

// ContractError wraps ErrContract with the offending metadata field.
type ContractError struct {
	Field  string
	Reason string
}

func (e *ContractError) Error() string {
	return fmt.Sprintf("%s: metadata field %q %s", ErrContract.Error(), e.Field, e.Reason)
}

func (e *ContractError) Unwrap() error { return ErrContract }

// InputError wraps ErrInvalidInput with an actionable hint.
type InputError struct {
	Argument string
	Reason   string
	Hint     string
}

func (e *InputError) Error() string {
	msg := fmt.Sprintf("%s: %s %s", ErrInvalidInput.Error(), e.Argument, e.Reason)
	if e.Hint != "" {
		msg += " (" + e.Hint + ")"
	}
	return msg
}

func (e *InputError) Unwrap() error { return ErrInvalidInput }
