// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package mapsync

import (
	"math"
	"strconv"
	"strings"

	"github.com/wneessen/postalcode/internal/geo"
)

// maxMercatorLat is the latitude limit of the web mercator projection.
const maxMercatorLat = 85.05112878

var subdomains = []string{"a", "b", "c"}

// TileXY returns the slippy map tile indices containing coord at the given zoom level.
func TileXY(coord geo.Coordinate, zoom int) (int, int) {
	n := math.Exp2(float64(zoom))
	lat := math.Max(-maxMercatorLat, math.Min(maxMercatorLat, coord.Lat))
	latRad := lat * math.Pi / 180

	x := int(math.Floor((coord.Lon + 180) / 360 * n))
	y := int(math.Floor((1 - math.Log(math.Tan(latRad)+1/math.Cos(latRad))/math.Pi) / 2 * n))
	return clampTile(x, int(n)), clampTile(y, int(n))
}

// URL expands the layer's URL template for the tile containing coord.
func (l TileLayer) URL(coord geo.Coordinate, zoom int) string {
	if l.MaxZoom > 0 && zoom > l.MaxZoom {
		zoom = l.MaxZoom
	}
	x, y := TileXY(coord, zoom)
	replacer := strings.NewReplacer(
		"{s}", subdomains[(x+y)%len(subdomains)],
		"{z}", strconv.Itoa(zoom),
		"{x}", strconv.Itoa(x),
		"{y}", strconv.Itoa(y),
		"{r}", "",
	)
	return replacer.Replace(l.URLTemplate)
}

func clampTile(val, n int) int {
	if val < 0 {
		return 0
	}
	if val > n-1 {
		return n - 1
	}
	return val
}
