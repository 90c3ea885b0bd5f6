// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package gpsd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"

	"github.com/stratoberry/go-gpsd"

	"github.com/wneessen/postalcode/internal/devicegeo"
	"github.com/wneessen/postalcode/internal/geo"
)

const (
	host = "localhost"
	port = "2947"
	name = "gpsd"

	watchCommand = `?WATCH={"enable":true,"json":true}`
)

// DefaultAddress is the address of a gpsd daemon on the local machine.
var DefaultAddress = net.JoinHostPort(host, port)

// Fix is a single position report of gpsd.
type Fix struct {
	Lat  float64
	Lon  float64
	Mode gpsd.Mode
}

// Locator determines the device position from the first 2D fix reported by gpsd.
type Locator struct {
	name     string
	addr     string
	locateFn func(ctx context.Context) (Fix, error)
}

func New(addr string) *Locator {
	if addr == "" {
		addr = DefaultAddress
	}
	locator := &Locator{
		name: name,
		addr: addr,
	}
	locator.locateFn = locator.watch
	return locator
}

func (l *Locator) Name() string {
	return l.name
}

// Locate waits for the first report with at least a 2D fix. An unreachable gpsd is reported as
// devicegeo.ErrUnavailable.
func (l *Locator) Locate(ctx context.Context) (geo.Coordinate, error) {
	fix, err := l.locateFn(ctx)
	if err != nil {
		return geo.Coordinate{}, err
	}
	if fix.Mode < gpsd.Mode2D {
		return geo.Coordinate{}, fmt.Errorf("%w: gpsd reported no 2D fix", devicegeo.ErrNoFix)
	}
	return geo.New(fix.Lat, fix.Lon)
}

// watch enables streaming on a gpsd connection and waits for the first TPV report with at least a 2D
// fix. The connection is closed before returning.
func (l *Locator) watch(ctx context.Context) (Fix, error) {
	dialer := &net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", l.addr)
	if err != nil {
		if ctx.Err() != nil {
			return Fix{}, ctx.Err()
		}
		return Fix{}, fmt.Errorf("%w: failed to connect to gpsd at %q: %w", devicegeo.ErrUnavailable,
			l.addr, err)
	}
	defer func() { _ = conn.Close() }()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	if _, err = fmt.Fprint(conn, watchCommand+"\n"); err != nil {
		return Fix{}, fmt.Errorf("%w: failed to enable gpsd watch: %w", devicegeo.ErrNoFix, err)
	}

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		var class struct {
			Class string `json:"class"`
		}
		if err = json.Unmarshal(scanner.Bytes(), &class); err != nil || class.Class != "TPV" {
			continue
		}
		tpv := new(gpsd.TPVReport)
		if err = json.Unmarshal(scanner.Bytes(), tpv); err != nil || tpv.Mode < gpsd.Mode2D {
			continue
		}
		return Fix{Lat: tpv.Lat, Lon: tpv.Lon, Mode: tpv.Mode}, nil
	}

	if ctx.Err() != nil {
		return Fix{}, fmt.Errorf("%w: %w", devicegeo.ErrNoFix, ctx.Err())
	}
	if err = scanner.Err(); err != nil {
		return Fix{}, fmt.Errorf("%w: failed to read from gpsd: %w", devicegeo.ErrNoFix, err)
	}
	return Fix{}, fmt.Errorf("%w: gpsd connection ended before a fix was reported", devicegeo.ErrNoFix)
}
