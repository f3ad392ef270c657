package reap

import (
	"errors"
	"fmt"
)

// Exit codes reported by the CLI.
const (
	ExitOK           = 0
	ExitFailure      = 1
	ExitNotFound     = 2
	ExitGateRejected = 3
	ExitPartialBatch = 4
	ExitCancelled    = 5
)

// ErrorKind classifies every failure the install pipeline can produce.
type ErrorKind string

const (
	KindNotFound         ErrorKind = "not-found"
	KindFetchFailed      ErrorKind = "fetch-failed"
	KindSignatureMissing ErrorKind = "signature-missing"
	KindSignatureInvalid ErrorKind = "signature-invalid"
	KindGateRejected     ErrorKind = "gate-rejected"
	KindDepConflict      ErrorKind = "dependency-conflict"
	KindBuildFailed      ErrorKind = "build-failed"
	KindInstallFailed    ErrorKind = "install-failed"
	KindDatabaseLocked   ErrorKind = "database-locked"
	KindHookFailed       ErrorKind = "hook-failed"
	KindCancelled        ErrorKind = "cancelled"
	KindConfigError      ErrorKind = "config-error"
	KindIO               ErrorKind = "io"
)

var (
	errPackageNotFound = errors.New("package not found in any source")
	errDatabaseLocked  = errors.New("pacman database is locked")
	errPartialBatch    = errors.New("some packages failed")
)

// ReapError carries the failure kind, the pipeline step that produced it,
// and the package it concerns.
type ReapError struct {
	Kind ErrorKind
	Step string
	Pkg  string
	Err  error
}

func (e *ReapError) Error() string {
	if e.Pkg != "" {
		return fmt.Sprintf("%s: %s failed: %v", e.Pkg, e.Step, e.Err)
	}
	return fmt.Sprintf("%s failed: %v", e.Step, e.Err)
}

func (e *ReapError) Unwrap() error { return e.Err }

func stepError(kind ErrorKind, step, pkg string, err error) *ReapError {
	return &ReapError{Kind: kind, Step: step, Pkg: pkg, Err: err}
}

// ErrKind extracts the kind from an error chain, defaulting to KindIO.
func ErrKind(err error) ErrorKind {
	var re *ReapError
	if errors.As(err, &re) {
		return re.Kind
	}
	if errors.Is(err, errPackageNotFound) {
		return KindNotFound
	}
	if errors.Is(err, errDatabaseLocked) {
		return KindDatabaseLocked
	}
	return KindIO
}

// ExitCodeFor maps an error to the CLI exit code contract.
func ExitCodeFor(err error) int {
	if err == nil {
		return ExitOK
	}
	if errors.Is(err, errPartialBatch) {
		return ExitPartialBatch
	}
	switch ErrKind(err) {
	case KindNotFound:
		return ExitNotFound
	case KindGateRejected, KindSignatureMissing, KindSignatureInvalid:
		return ExitGateRejected
	case KindCancelled:
		return ExitCancelled
	default:
		return ExitFailure
	}
}
