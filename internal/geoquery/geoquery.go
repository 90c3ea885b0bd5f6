// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package geoquery turns a resolution request into a single outbound geocoding lookup URL.
package geoquery

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/text/language"

	"github.com/wneessen/postalcode/internal/geo"
)

const (
	ReversePath = "/reverse"
	SearchPath  = "/search"

	// Format is the response format requested from the geocoding service.
	Format = "jsonv2"
)

var ErrInvalidRequest = errors.New("invalid resolution request")

// Mode identifies the lookup direction of a Request.
type Mode int

const (
	// ModeReverse resolves a coordinate to an address.
	ModeReverse Mode = iota + 1
	// ModeForward resolves free text within a country to a coordinate and address.
	ModeForward
)

func (m Mode) String() string {
	switch m {
	case ModeReverse:
		return "reverse"
	case ModeForward:
		return "forward"
	default:
		return "unknown"
	}
}

// Request is a resolution request. Exactly one of its variants is populated; use ByCoordinate or
// ByText to construct one.
type Request struct {
	mode        Mode
	coordinate  geo.Coordinate
	query       string
	countryCode string
}

// ByCoordinate returns a reverse lookup request, used for device fixes and marker drags.
func ByCoordinate(coord geo.Coordinate) Request {
	return Request{mode: ModeReverse, coordinate: coord}
}

// ByText returns a forward lookup request for a free text query filtered by an ISO country code.
func ByText(query, countryCode string) Request {
	return Request{
		mode:        ModeForward,
		query:       strings.TrimSpace(query),
		countryCode: strings.ToLower(strings.TrimSpace(countryCode)),
	}
}

func (r Request) Mode() Mode                 { return r.mode }
func (r Request) Coordinate() geo.Coordinate { return r.coordinate }
func (r Request) Query() string              { return r.query }
func (r Request) CountryCode() string        { return r.countryCode }

// Validate reports whether the request can be turned into a lookup URL.
func (r Request) Validate() error {
	switch r.mode {
	case ModeReverse:
		if !r.coordinate.Valid() {
			return fmt.Errorf("%w: coordinate %v,%v is out of range or not finite", ErrInvalidRequest,
				r.coordinate.Lat, r.coordinate.Lon)
		}
	case ModeForward:
		if r.query == "" {
			return fmt.Errorf("%w: search text is empty", ErrInvalidRequest)
		}
		if r.countryCode == "" {
			return fmt.Errorf("%w: country code is empty", ErrInvalidRequest)
		}
	default:
		return fmt.Errorf("%w: unknown request mode", ErrInvalidRequest)
	}
	return nil
}

// Key returns a stable identity for the request, suitable for caching and logging.
func (r Request) Key() string {
	switch r.mode {
	case ModeReverse:
		return "reverse:" + r.coordinate.LatString() + "," + r.coordinate.LonString()
	case ModeForward:
		return "forward:" + r.countryCode + ":" + strings.ToLower(r.query)
	default:
		return ""
	}
}

// Builder builds lookup URLs against a geocoding service base URL.
type Builder struct {
	base *url.URL
	lang language.Tag
}

// NewBuilder returns a Builder for the given service base URL. The language tag is forwarded as
// accept-language unless it is the root tag.
func NewBuilder(baseURL string, lang language.Tag) (*Builder, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse geocoder base URL: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("geocoder base URL %q must be absolute", baseURL)
	}
	return &Builder{base: base, lang: lang}, nil
}

// Build returns the lookup URL for the request. It has no side effects.
func (b *Builder) Build(req Request) (*url.URL, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("format", Format)
	query.Set("addressdetails", "1")
	if b.lang != language.Und {
		query.Set("accept-language", b.lang.String())
	}

	endpoint := *b.base
	switch req.mode {
	case ModeReverse:
		endpoint.Path = strings.TrimSuffix(endpoint.Path, "/") + ReversePath
		query.Set("lat", req.coordinate.LatString())
		query.Set("lon", req.coordinate.LonString())
	case ModeForward:
		endpoint.Path = strings.TrimSuffix(endpoint.Path, "/") + SearchPath
		query.Set("q", req.query)
		query.Set("countrycodes", req.countryCode)
		query.Set("limit", "1")
	}
	endpoint.RawQuery = query.Encode()

	return &endpoint, nil
}
