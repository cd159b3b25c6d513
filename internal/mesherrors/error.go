// Copyright 2021 FerretDB Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package mesherrors provides typed errors returned by MeshDB packages.
package mesherrors

import (
	"errors"
	"fmt"

	"golang.org/x/exp/slices"
)

//go:generate ../../bin/stringer -linecomment -type ErrorCode

// ErrorCode represents a MeshDB error code.
type ErrorCode int

// Error codes.
const (
	_ ErrorCode = iota

	ErrorCodeMalformedKey               // MalformedKey
	ErrorCodeUnsupportedExpressionShape // UnsupportedExpressionShape
	ErrorCodeUnknownMember              // UnknownMember
	ErrorCodeInvalidValue               // InvalidValue
	ErrorCodeMissingPredicate           // MissingPredicate
	ErrorCodeInvalidDomain              // InvalidDomain
	ErrorCodeDomainDoesNotExist         // DomainDoesNotExist
)

// Error represents a typed MeshDB error.
//
// All of them are detected before any SQL statement is sent.
type Error struct {
	err  error
	arg  any
	code ErrorCode
}

// New creates a new error with the given code and message.
//
// Code must not be 0.
func New(code ErrorCode, msg string) *Error {
	return NewWithArgument(code, errors.New(msg), nil)
}

// Errorf creates a new error with the given code and formatted message.
//
// Code must not be 0.
func Errorf(code ErrorCode, format string, a ...any) *Error {
	return NewWithArgument(code, fmt.Errorf(format, a...), nil)
}

// NewWithArgument creates a new error with an argument describing the offending input
// (a member name, a key text, etc).
//
// Code must not be 0. Err may be nil.
func NewWithArgument(code ErrorCode, err error, arg any) *Error {
	if code == 0 {
		panic("mesherrors.NewWithArgument: code must not be 0")
	}

	return &Error{
		code: code,
		err:  err,
		arg:  arg,
	}
}

// Code returns the error code.
func (e *Error) Code() ErrorCode {
	return e.code
}

// Argument returns the error argument.
func (e *Error) Argument() any {
	return e.arg
}

// Error implements error interface.
func (e *Error) Error() string {
	if e.err == nil {
		return e.code.String()
	}

	return fmt.Sprintf("%s: %v", e.code, e.err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.err
}

// ErrorCodeIs returns true if err or any error in its chain is *Error with one of the given error codes.
//
// At least one error code must be given.
func ErrorCodeIs(err error, code ErrorCode, codes ...ErrorCode) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}

	return e.code == code || slices.Contains(codes, e.code)
}

// check interfaces
var (
	_ error = (*Error)(nil)
)
