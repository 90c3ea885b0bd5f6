// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package nominatim

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/time/rate"

	"github.com/wneessen/postalcode/internal/geo"
	"github.com/wneessen/postalcode/internal/geocode"
	"github.com/wneessen/postalcode/internal/geoquery"
	"github.com/wneessen/postalcode/internal/http"
	"github.com/wneessen/postalcode/internal/vartype"
)

const (
	APIEndpoint = "https://nominatim.openstreetmap.org"
	APITimeout  = time.Second * 10

	// APIRateLimit follows the public Nominatim usage policy of one request per second.
	APIRateLimit = time.Second
	name         = "osm-nominatim"
)

type Nominatim struct {
	http    *http.Client
	builder *geoquery.Builder
	limiter *rate.Limiter
	timeout time.Duration
}

// Place is a single object of a jsonv2 reverse or search response.
type Place struct {
	APILat      string   `json:"lat"`
	APILon      string   `json:"lon"`
	Name        string   `json:"name"`
	DisplayName string   `json:"display_name"`
	Address     *Address `json:"address"`
	Error       string   `json:"error"`
}

type Address struct {
	HouseNumber string `json:"house_number"`
	Road        string `json:"road"`
	Suburb      string `json:"suburb"`
	City        string `json:"city"`
	Town        string `json:"town"`
	Village     string `json:"village"`
	State       string `json:"state"`
	Postcode    string `json:"postcode"`
	Country     string `json:"country"`
	CountryCode string `json:"country_code"`
}

// Option configures a Nominatim provider.
type Option func(*Nominatim)

// WithTimeout bounds each lookup to the given duration.
func WithTimeout(timeout time.Duration) Option {
	return func(n *Nominatim) {
		if timeout > 0 {
			n.timeout = timeout
		}
	}
}

// WithRateLimit allows at most one lookup per interval. A non-positive interval disables limiting.
func WithRateLimit(interval time.Duration) Option {
	return func(n *Nominatim) {
		if interval <= 0 {
			n.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		n.limiter = rate.NewLimiter(rate.Every(interval), 1)
	}
}

// New returns a Nominatim provider for the given service base URL.
func New(client *http.Client, endpoint string, lang language.Tag, opts ...Option) (*Nominatim, error) {
	builder, err := geoquery.NewBuilder(endpoint, lang)
	if err != nil {
		return nil, err
	}
	provider := &Nominatim{
		http:    client,
		builder: builder,
		limiter: rate.NewLimiter(rate.Every(APIRateLimit), 1),
		timeout: APITimeout,
	}
	for _, opt := range opts {
		opt(provider)
	}
	return provider, nil
}

func (n *Nominatim) Name() string {
	return name
}

// Resolve performs a single reverse or forward lookup for the request.
func (n *Nominatim) Resolve(ctx context.Context, req geoquery.Request) (geocode.Result, error) {
	endpoint, err := n.builder.Build(req)
	if err != nil {
		return geocode.Result{}, err
	}
	if err = n.limiter.Wait(ctx); err != nil {
		return geocode.TransportError(fmt.Errorf("rate limited lookup aborted: %w", err)), nil
	}

	var body json.RawMessage
	if _, err = n.http.GetWithTimeout(ctx, endpoint.String(), &body, nil, nil, n.timeout); err != nil {
		return geocode.TransportError(fmt.Errorf("failed to fetch %s lookup from Nominatim API: %w",
			req.Mode(), err)), nil
	}

	switch req.Mode() {
	case geoquery.ModeReverse:
		return n.reverseResult(body, req.Coordinate()), nil
	default:
		return n.searchResult(body), nil
	}
}

// reverseResult interprets a reverse lookup body: a single object that only counts as found if it
// carries an address.
func (n *Nominatim) reverseResult(body json.RawMessage, requested geo.Coordinate) geocode.Result {
	var place Place
	if err := json.Unmarshal(body, &place); err != nil {
		return geocode.TransportError(fmt.Errorf("failed to decode reverse lookup response: %w", err))
	}
	if place.Address == nil {
		return geocode.NotFound()
	}

	coord := requested
	if place.APILat != "" || place.APILon != "" {
		parsed, err := geo.Parse(place.APILat, place.APILon)
		if err != nil {
			return geocode.TransportError(fmt.Errorf("invalid coordinates in Nominatim API response: %w", err))
		}
		coord = parsed
	}
	return geocode.Found(addressDetails(place), coord)
}

// searchResult interprets a forward lookup body: an array of which only the first element is used.
func (n *Nominatim) searchResult(body json.RawMessage) geocode.Result {
	var places []Place
	if err := json.Unmarshal(body, &places); err != nil {
		return geocode.TransportError(fmt.Errorf("failed to decode search response: %w", err))
	}
	if len(places) < 1 {
		return geocode.NotFound()
	}

	coord, err := geo.Parse(places[0].APILat, places[0].APILon)
	if err != nil {
		return geocode.TransportError(fmt.Errorf("invalid coordinates in Nominatim API response: %w", err))
	}
	return geocode.Found(addressDetails(places[0]), coord)
}

func addressDetails(place Place) geocode.AddressDetails {
	details := geocode.AddressDetails{
		DisplayName: vartype.NonZero(place.DisplayName),
	}
	if place.Address != nil {
		details.Postcode = vartype.NonZero(place.Address.Postcode)
		details.Country = vartype.NonZero(place.Address.Country)
	}
	return details
}
