// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geolocation_file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/wneessen/postalcode/internal/devicegeo"
	"github.com/wneessen/postalcode/internal/geo"
)

const (
	name = "geolocation_file"
)

var ErrNoCoordinates = fmt.Errorf("no valid coordinates found in geolocation file")

// Locator reads a fixed device position from a file. The first line of the form "lat,lon" that is not
// a comment is used.
type Locator struct {
	name     string
	path     string
	locateFn func() (lat, lon float64, err error)
}

func New(path string) *Locator {
	locator := &Locator{
		name: name,
		path: path,
	}
	locator.locateFn = locator.readFile
	return locator
}

// Name returns the name of the Locator instance.
func (l *Locator) Name() string {
	return l.name
}

// Locate returns the position stored in the file. A missing file is reported as
// devicegeo.ErrUnavailable.
func (l *Locator) Locate(ctx context.Context) (geo.Coordinate, error) {
	if err := ctx.Err(); err != nil {
		return geo.Coordinate{}, err
	}
	lat, lon, err := l.locateFn()
	if err != nil {
		return geo.Coordinate{}, err
	}
	return geo.New(lat, lon)
}

// readFile reads geolocation data from the file at the configured path.
// Returns latitude and longitude, or an error if the file cannot be read or parsed correctly.
func (l *Locator) readFile() (lat, lon float64, err error) {
	if l.path == "" {
		return 0, 0, fmt.Errorf("%w: no geolocation file configured", devicegeo.ErrUnavailable)
	}
	data, err := os.ReadFile(l.path)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, 0, fmt.Errorf("%w: geolocation file %q does not exist", devicegeo.ErrUnavailable, l.path)
	}
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read geolocation file %q: %w", l.path, err)
	}
	lines := strings.Split(string(data), "\n")
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "#") {
			continue
		}
		coords := strings.Split(line, ",")
		if len(coords) != 2 {
			continue
		}
		lat, err = strconv.ParseFloat(strings.TrimSpace(coords[0]), 64)
		if err != nil {
			continue
		}
		lon, err = strconv.ParseFloat(strings.TrimSpace(coords[1]), 64)
		if err != nil {
			continue
		}
		return lat, lon, nil
	}
	return 0, 0, ErrNoCoordinates
}
