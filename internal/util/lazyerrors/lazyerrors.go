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

// Package lazyerrors wraps errors with the caller location.
//
// It is used for internal failures that have no typed code;
// typed failures use the mesherrors package.
package lazyerrors

import (
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
)

// withLocation is an error annotated with the program counter of the wrapping call.
type withLocation struct {
	error
	pc uintptr
}

// Error implements error interface.
func (e withLocation) Error() string {
	if e.pc == 0 {
		return e.error.Error()
	}

	f, _ := runtime.CallersFrames([]uintptr{e.pc}).Next()
	if f.File == "" {
		return "[unknown] " + e.error.Error()
	}

	_, file := filepath.Split(f.File)
	l := file + ":" + strconv.Itoa(f.Line)

	if f.Function != "" {
		i := strings.LastIndex(f.Function, "/")
		l += " " + f.Function[i+1:]
	}

	return fmt.Sprintf("[%s] %s", l, e.error)
}

// Unwrap returns the wrapped error.
func (e withLocation) Unwrap() error {
	return e.error
}

// caller returns the program counter of the caller of the exported function.
func caller() uintptr {
	pcs := make([]uintptr, 1)
	if runtime.Callers(3, pcs) == 0 {
		return 0
	}

	return pcs[0]
}

// New returns a new error with the given text, annotated with the caller location.
func New(s string) error {
	return withLocation{
		error: errors.New(s),
		pc:    caller(),
	}
}

// Error annotates err with the caller location.
//
// It panics if err is nil.
func Error(err error) error {
	if err == nil {
		panic("err is nil")
	}

	return withLocation{
		error: err,
		pc:    caller(),
	}
}

// Errorf returns a formatted error annotated with the caller location.
// Use %w to keep the wrapped error reachable by [errors.Is] and [errors.As].
func Errorf(format string, a ...any) error {
	return withLocation{
		error: fmt.Errorf(format, a...),
		pc:    caller(),
	}
}
