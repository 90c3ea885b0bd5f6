// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package vartype

import (
	"fmt"
)

// NotAvailable is rendered for values that were never set, so that a display never silently shows
// stale or empty data.
const NotAvailable = "N/A"

// VarString is a type alias for Variable[string], representing a string value with initialization tracking.
type VarString = Variable[string]

// Variable represents a generic type wrapper that holds a value and tracks its initialization state.
type Variable[T comparable] struct {
	value T
	isset bool
}

// NewVariable creates and returns a new Variable instance initialized with the provided value.
func NewVariable[T comparable](value T) Variable[T] {
	return Variable[T]{
		isset: true,
		value: value,
	}
}

// NonZero returns a set Variable for a non-zero value and an unset Variable otherwise.
func NonZero[T comparable](value T) Variable[T] {
	var zero T
	if value == zero {
		return Variable[T]{}
	}
	return NewVariable(value)
}

// IsSet returns true if the Variable has been initialized with a value, otherwise false.
func (v Variable[T]) IsSet() bool {
	return v.isset
}

// String returns a string representation of the Variable. If uninitialized, it returns NotAvailable.
func (v Variable[T]) String() string {
	if !v.isset {
		return NotAvailable
	}
	return fmt.Sprint(v.value)
}
