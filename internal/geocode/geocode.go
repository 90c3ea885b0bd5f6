// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geocode

import (
	"context"

	"github.com/wneessen/postalcode/internal/geo"
	"github.com/wneessen/postalcode/internal/geoquery"
	"github.com/wneessen/postalcode/internal/vartype"
)

// AddressDetails holds the address fields derived from a successful geocode response. Absent fields
// render as vartype.NotAvailable.
type AddressDetails struct {
	DisplayName vartype.VarString
	Postcode    vartype.VarString
	Country     vartype.VarString
}

// Kind is the outcome of a single resolution attempt.
type Kind int

const (
	KindFound Kind = iota + 1
	KindNotFound
	KindTransportError
)

func (k Kind) String() string {
	switch k {
	case KindFound:
		return "found"
	case KindNotFound:
		return "not found"
	case KindTransportError:
		return "transport error"
	default:
		return "unknown"
	}
}

// Result is the normalized outcome of a lookup. Address and Coordinate are only meaningful for
// KindFound, Err only for KindTransportError.
type Result struct {
	Kind       Kind
	Address    AddressDetails
	Coordinate geo.Coordinate
	Err        error
	CacheHit   bool
}

// Found returns a successful Result.
func Found(address AddressDetails, coord geo.Coordinate) Result {
	return Result{Kind: KindFound, Address: address, Coordinate: coord}
}

// NotFound returns a Result for a lookup that yielded no usable result.
func NotFound() Result {
	return Result{Kind: KindNotFound}
}

// TransportError returns a Result for a failed lookup.
func TransportError(err error) Result {
	return Result{Kind: KindTransportError, Err: err}
}

// Resolver resolves a request against a geocoding service. A non-nil error is only returned for
// requests that fail validation, in which case no lookup was performed. Every other outcome is
// expressed in the Result. Implementations perform a single attempt and never retry.
type Resolver interface {
	Name() string
	Resolve(ctx context.Context, req geoquery.Request) (Result, error)
}
