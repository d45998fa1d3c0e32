// Package xerrors provides the structured error type shared by every
// storage-facing package in this module: a closed error code, a message,
// an optional wrapped cause, and free-form details for debugging.
package xerrors

import (
	"errors"
	"fmt"
)

// Code classifies an Error by the taxonomy the store's components
// agree on: input-shape problems the caller can fix, storage failures
// from the underlying filesystem, semantic violations of the store's own
// invariants, and integrity failures detected by a hash or signature
// check.
type Code string

const (
	// Input-shape errors: the caller passed something the codec or
	// store cannot represent.
	CodeInvalidInput  Code = "INPUT_001"
	CodeBlobTooLarge  Code = "INPUT_002"
	CodeInvalidStride Code = "INPUT_003"

	// Storage errors: the underlying file or directory misbehaved.
	CodeIO            Code = "STORE_001"
	CodeInvalidFormat Code = "STORE_002"
	CodeCompression   Code = "STORE_003"
	CodeLocked        Code = "STORE_004"

	// Semantic errors: a request is well-formed but violates a store
	// invariant (reading an index that doesn't exist yet, appending to
	// a closed writer).
	CodeNotFound     Code = "SEM_001"
	CodeFrameNotFound Code = "SEM_002"
	CodeClosed       Code = "SEM_003"
	CodeFull         Code = "SEM_004"

	// Integrity errors: a recomputed hash or signature did not match
	// what was stored.
	CodeHashMismatch      Code = "INTEGRITY_001"
	CodeSignatureInvalid  Code = "INTEGRITY_002"
)

// Error is the structured error type returned across package boundaries
// in this module.
type Error struct {
	Code    Code
	Message string
	Details map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// WithDetail attaches a debugging key/value pair and returns the receiver
// for chaining.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// New constructs a bare Error with no wrapped cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap constructs an Error that carries err as its cause.
func Wrap(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// Is reports whether err is an *Error carrying the given code.
func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// As extracts the *Error from err's chain, if present.
func As(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}

// Storage error constructors.

func IOError(op string, err error) *Error {
	return Wrap(CodeIO, "storage operation failed", err).WithDetail("op", op)
}

func InvalidFormat(reason string) *Error {
	return New(CodeInvalidFormat, "invalid on-disk format").WithDetail("reason", reason)
}

func CompressionFailed(op string, err error) *Error {
	return Wrap(CodeCompression, "compression operation failed", err).WithDetail("op", op)
}

func Locked(path string) *Error {
	return New(CodeLocked, "store is locked by another writer").WithDetail("path", path)
}

// Semantic error constructors.

func MessageNotFound(id uint64) *Error {
	return New(CodeNotFound, "message not found").WithDetail("id", id)
}

func FrameNotFound(idx uint64) *Error {
	return New(CodeFrameNotFound, "frame not found").WithDetail("frame", idx)
}

func Closed(op string) *Error {
	return New(CodeClosed, "operation attempted on a closed store").WithDetail("op", op)
}

func Full(limit int) *Error {
	return New(CodeFull, "store has reached its configured capacity").WithDetail("limit", limit)
}

// Integrity error constructors.

func HashMismatch(id uint64) *Error {
	return New(CodeHashMismatch, "recomputed hash does not match stored hash").WithDetail("id", id)
}

func SignatureInvalid() *Error {
	return New(CodeSignatureInvalid, "signature verification failed")
}
