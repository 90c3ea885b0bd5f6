// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geo

import (
	"errors"
	"fmt"
	"math"
	"strconv"
)

const (
	EarthRadius = 6371000.0 // meters

	// DisplayPrecision is the number of decimals used when a coordinate is shown to the user.
	DisplayPrecision = 6
)

var ErrInvalidCoordinate = errors.New("invalid coordinate")

// Coordinate represents a geographic coordinate. It is an immutable value.
type Coordinate struct {
	Lat float64
	Lon float64
}

// New returns a validated Coordinate.
func New(lat, lon float64) (Coordinate, error) {
	c := Coordinate{Lat: lat, Lon: lon}
	if !c.Valid() {
		return Coordinate{}, fmt.Errorf("%w: lat=%v lon=%v", ErrInvalidCoordinate, lat, lon)
	}
	return c, nil
}

// Parse returns a validated Coordinate from the string encoded values the geocoding APIs respond with.
func Parse(lat, lon string) (Coordinate, error) {
	latitude, err := strconv.ParseFloat(lat, 64)
	if err != nil {
		return Coordinate{}, fmt.Errorf("failed to parse latitude: %w", err)
	}
	longitude, err := strconv.ParseFloat(lon, 64)
	if err != nil {
		return Coordinate{}, fmt.Errorf("failed to parse longitude: %w", err)
	}
	return New(latitude, longitude)
}

// Valid checks if the coordinate is finite and within the EPSG:4326 bounds.
func (c Coordinate) Valid() bool {
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lon) || math.IsInf(c.Lat, 0) || math.IsInf(c.Lon, 0) {
		return false
	}
	return c.Lat >= -90 && c.Lat <= 90 && c.Lon >= -180 && c.Lon <= 180
}

// LatString formats the latitude without loss of precision.
func (c Coordinate) LatString() string {
	return strconv.FormatFloat(c.Lat, 'f', -1, 64)
}

// LonString formats the longitude without loss of precision.
func (c Coordinate) LonString() string {
	return strconv.FormatFloat(c.Lon, 'f', -1, 64)
}

// DisplayLat formats the latitude for display.
func (c Coordinate) DisplayLat() string {
	return strconv.FormatFloat(c.Lat, 'f', DisplayPrecision, 64)
}

// DisplayLon formats the longitude for display.
func (c Coordinate) DisplayLon() string {
	return strconv.FormatFloat(c.Lon, 'f', DisplayPrecision, 64)
}

func (c Coordinate) String() string {
	return c.DisplayLat() + "," + c.DisplayLon()
}

// DistanceTo returns the great-circle distance in meters between two coordinates using the Haversine
// formula.
func (c Coordinate) DistanceTo(other Coordinate) float64 {
	dLat := (c.Lat - other.Lat) * math.Pi / 180
	dLon := (c.Lon - other.Lon) * math.Pi / 180
	lat1 := c.Lat * math.Pi / 180
	lat2 := other.Lat * math.Pi / 180
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * EarthRadius * math.Asin(math.Sqrt(h))
}

// Wrapped returns the coordinate with its longitude wrapped into [-180, 180]. Maps that repeat the world
// horizontally report longitudes outside of that range.
func (c Coordinate) Wrapped() Coordinate {
	if math.IsNaN(c.Lon) || math.IsInf(c.Lon, 0) || (c.Lon >= -180 && c.Lon <= 180) {
		return c
	}
	lon := math.Mod(c.Lon+180, 360)
	if lon < 0 {
		lon += 360
	}
	return Coordinate{Lat: c.Lat, Lon: lon - 180}
}
