// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geoip

import (
	"context"
	"fmt"
	"time"

	"github.com/wneessen/postalcode/internal/devicegeo"
	"github.com/wneessen/postalcode/internal/geo"
	"github.com/wneessen/postalcode/internal/http"
)

const (
	APIEndpoint   = "https://reallyfreegeoip.org/json/"
	LookupTimeout = time.Second * 5

	name = "geoip"
)

// Locator approximates the device position from the public IP address of the host.
type Locator struct {
	name     string
	http     *http.Client
	endpoint string
}

type APIResult struct {
	IP          string  `json:"ip"`
	CountryCode string  `json:"country_code"`
	Country     string  `json:"country_name"`
	RegionCode  string  `json:"region_code,omitempty"`
	Region      string  `json:"region_name,omitempty"`
	City        string  `json:"city,omitempty"`
	ZipCode     string  `json:"zip_code,omitempty"`
	TimeZone    string  `json:"time_zone"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	MetroCode   int     `json:"metro_code"`
}

func New(http *http.Client) *Locator {
	return &Locator{
		name:     name,
		http:     http,
		endpoint: APIEndpoint,
	}
}

func (l *Locator) Name() string {
	return l.name
}

// Locate looks up the host's public IP address. Results without at least a country are rejected, since
// the API reports 0,0 for addresses it cannot place.
func (l *Locator) Locate(ctx context.Context) (geo.Coordinate, error) {
	result := new(APIResult)
	if _, err := l.http.GetWithTimeout(ctx, l.endpoint, result, nil, nil, LookupTimeout); err != nil {
		return geo.Coordinate{}, fmt.Errorf("failed to get geolocation data from API: %w", err)
	}
	if result.CountryCode == "" {
		return geo.Coordinate{}, fmt.Errorf("%w: IP address %q could not be placed", devicegeo.ErrNoFix,
			result.IP)
	}
	return geo.New(result.Latitude, result.Longitude)
}
