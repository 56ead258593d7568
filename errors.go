// Copyright (c) 2025 Miniscript developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package miniscript

import "fmt"

// ErrorCode identifies the kind of failure produced anywhere in the
// tokenize -> parse -> type-check -> descriptor-validate -> limit-check ->
// script-emit -> satisfy pipeline. Every Error carries one.
type ErrorCode int

const (
	// Lex / syntax errors.
	ErrNonASCII ErrorCode = iota
	ErrUnexpectedEOF
	ErrUnexpectedToken
	ErrTrailingToken
	ErrMultiColon
	ErrUnknownWrapper
	ErrWrapperChainTooLong
	ErrInvalidNumber
	ErrInvalidHex
	ErrInvalidHexLength
	ErrInvalidLocktime

	// Key errors.
	ErrInvalidKey
	ErrInvalidXOnlyLength

	// Checksum errors.
	ErrInvalidChecksumChar
	ErrInvalidChecksumLength
	ErrChecksumMismatch

	// Descriptor errors.
	ErrIllegalFragment
	ErrUncompressedKey
	ErrKeyNotFound

	// Type errors.
	ErrUnexpectedType
	ErrInvalidThreshold
	ErrEmptyThreshold
	ErrNonZeroZero
	ErrSwapNonOne
	ErrNonTopLevel

	// Limits errors.
	ErrTreeTooDeep
	ErrScriptTooLarge

	// Compile errors.
	ErrNonDefiniteKey

	// Satisfy errors.
	ErrMissingSignature
	ErrMissingLockTime
	ErrMissingPreimage
	ErrInvalidPreimage
	ErrSatisfyNonDefiniteKey
	ErrTaprootNotSupported
	// ErrThresholdIndexOutOfRange replaces the upstream implementation's
	// reuse of a "missing locktime" error as a safety net inside the
	// thresh/multi/multi_a DP; it signals an internal invariant violation
	// (k landed outside the computed sats table), never an absent locktime.
	ErrThresholdIndexOutOfRange

	// Address errors.
	ErrNoAddressForDescriptor
)

var errorCodeNames = map[ErrorCode]string{
	ErrNonASCII:                 "non-ASCII input",
	ErrUnexpectedEOF:            "unexpected end of input",
	ErrUnexpectedToken:          "unexpected token",
	ErrTrailingToken:            "unexpected trailing token",
	ErrMultiColon:               "consecutive wrapper separators",
	ErrUnknownWrapper:           "unknown wrapper character",
	ErrWrapperChainTooLong:      "wrapper chain too long",
	ErrInvalidNumber:            "invalid number",
	ErrInvalidHex:               "invalid hex literal",
	ErrInvalidHexLength:         "invalid hex literal length",
	ErrInvalidLocktime:          "invalid absolute locktime",
	ErrInvalidKey:               "invalid key",
	ErrInvalidXOnlyLength:       "invalid x-only key length",
	ErrInvalidChecksumChar:      "invalid checksum character",
	ErrInvalidChecksumLength:    "invalid checksum length",
	ErrChecksumMismatch:         "checksum mismatch",
	ErrIllegalFragment:          "fragment illegal under current descriptor",
	ErrUncompressedKey:          "uncompressed key under segwit v0",
	ErrKeyNotFound:              "key not found",
	ErrUnexpectedType:           "unexpected type",
	ErrInvalidThreshold:         "invalid threshold",
	ErrEmptyThreshold:           "empty threshold",
	ErrNonZeroZero:              "j: requires child property n",
	ErrSwapNonOne:               "s: requires child property o",
	ErrNonTopLevel:              "non-B type at root",
	ErrTreeTooDeep:              "tree exceeds maximum height",
	ErrScriptTooLarge:           "script exceeds maximum size",
	ErrNonDefiniteKey:           "non-definite key reached the emitter",
	ErrMissingSignature:         "missing signature",
	ErrMissingLockTime:          "missing locktime",
	ErrMissingPreimage:          "missing preimage",
	ErrInvalidPreimage:          "invalid preimage",
	ErrSatisfyNonDefiniteKey:    "non-definite key",
	ErrTaprootNotSupported:      "taproot not supported",
	ErrThresholdIndexOutOfRange: "threshold index out of range",
	ErrNoAddressForDescriptor:   "descriptor has no address",
}

func (c ErrorCode) String() string {
	if s, ok := errorCodeNames[c]; ok {
		return s
	}
	return "unknown error"
}

// Error is the single error type returned anywhere in the pipeline. It
// always carries the offending position (NoPosition when none applies) and
// a free-form Context string with the offending token, the expected vs.
// found type, or whatever other detail the particular ErrorCode needs.
type Error struct {
	Code    ErrorCode
	Pos     Position
	Context string
}

func (e *Error) Error() string {
	if e.Context == "" {
		if e.Pos == NoPosition {
			return e.Code.String()
		}
		return fmt.Sprintf("%s at position %d", e.Code, e.Pos)
	}
	if e.Pos == NoPosition {
		return fmt.Sprintf("%s: %s", e.Code, e.Context)
	}
	return fmt.Sprintf("%s at position %d: %s", e.Code, e.Pos, e.Context)
}

func newError(code ErrorCode, pos Position, context string) *Error {
	return &Error{Code: code, Pos: pos, Context: context}
}

func newErrorf(code ErrorCode, pos Position, format string, args ...interface{}) *Error {
	return newError(code, pos, fmt.Sprintf(format, args...))
}
