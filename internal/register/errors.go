package register

import (
	"errors"
	"fmt"
)

var (
	ErrReadOnly           = errors.New("register day is verified or locked")
	ErrStatusRegression   = errors.New("register status can only move forward")
	ErrUnknownChannel     = errors.New("unknown sales channel")
	ErrExpenseNotFound    = errors.New("expense row not found")
	ErrOpeningNotEditable = errors.New("opening cash is carried from the previous day")
	ErrUnknownShop        = errors.New("shop not found")
	ErrUnknownEdit        = errors.New("unknown edit kind")
)

// FetchError reports a failed read. No partial day accompanies it.
type FetchError struct {
	Op  string
	Err error
}

func (e *FetchError) Error() string { return fmt.Sprintf("fetch %s: %v", e.Op, e.Err) }
func (e *FetchError) Unwrap() error { return e.Err }

// AuthError means there is no usable identity for the caller; nothing was written.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string { return "auth: " + e.Reason }

// ConfigError is a per-entry warning: the org lacks a default category or
// payment method, so the entry was skipped while the rest of the save went on.
type ConfigError struct {
	Subject string
	Reason  string
}

func (e *ConfigError) Error() string { return fmt.Sprintf("config: %s: %s", e.Subject, e.Reason) }

// PersistError reports the write step that failed.
type PersistError struct {
	Step string
	Err  error
}

func (e *PersistError) Error() string { return fmt.Sprintf("persist %s: %v", e.Step, e.Err) }
func (e *PersistError) Unwrap() error { return e.Err }

// AuditError is never fatal to a save; it is reported as a warning.
type AuditError struct {
	Err error
}

func (e *AuditError) Error() string { return "audit record: " + e.Err.Error() }
func (e *AuditError) Unwrap() error { return e.Err }

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string { return e.Field + ": " + e.Reason }

// WarningKind names a warning for metrics and API responses.
func WarningKind(err error) string {
	var cfg *ConfigError
	var audit *AuditError
	switch {
	case errors.As(err, &cfg):
		return "config"
	case errors.As(err, &audit):
		return "audit"
	}
	return "other"
}
