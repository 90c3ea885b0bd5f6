// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package ichnaea

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	stdhttp "net/http"
	"strings"
	"time"

	"github.com/mdlayher/wifi"

	"github.com/wneessen/postalcode/internal/devicegeo"
	"github.com/wneessen/postalcode/internal/geo"
	"github.com/wneessen/postalcode/internal/http"
	"github.com/wneessen/postalcode/internal/logger"
)

const (
	APIEndpoint   = "https://api.beacondb.net/v1/geolocate"
	LookupTimeout = time.Second * 5

	name = "ichnaea"
)

// Locator determines the device position from the WiFi access points in range, using an
// Ichnaea-compatible geolocation API. Without visible access points the API falls back to the IP
// address of the request.
type Locator struct {
	name     string
	http     *http.Client
	logger   *logger.Logger
	endpoint string
	scanFn   func() ([]WirelessNetwork, error)
}

type APIResult struct {
	Location struct {
		Latitude  float64 `json:"lat"`
		Longitude float64 `json:"lng"`
	} `json:"location"`
	Accuracy float64 `json:"accuracy"`
}

type WirelessNetwork struct {
	LastSeen       int64  `json:"age"`
	MACAddress     string `json:"macAddress"`
	SignalStrength int32  `json:"signalStrength"`
}

type request struct {
	ConsiderIP   bool              `json:"considerIp"`
	AccessPoints []WirelessNetwork `json:"wifiAccessPoints,omitempty"`
}

func New(client *http.Client, log *logger.Logger) *Locator {
	return &Locator{
		name:     name,
		http:     client,
		logger:   log,
		endpoint: APIEndpoint,
		scanFn:   scanAccessPoints,
	}
}

func (l *Locator) Name() string {
	return l.name
}

// Locate scans for access points and asks the API for their position. A failed scan is not fatal, the
// request is sent without access points.
func (l *Locator) Locate(ctx context.Context) (geo.Coordinate, error) {
	aps, err := l.scanFn()
	if err != nil {
		l.logger.Debug("wifi scan failed, locating by IP address only", logger.Err(err))
	}

	body := bytes.NewBuffer(nil)
	if err = json.NewEncoder(body).Encode(request{ConsiderIP: true, AccessPoints: aps}); err != nil {
		return geo.Coordinate{}, fmt.Errorf("failed to encode wifi list to JSON: %w", err)
	}

	result := new(APIResult)
	status, err := l.http.PostWithTimeout(ctx, l.endpoint, result, body, nil, LookupTimeout)
	switch {
	case errors.Is(err, http.ErrUnexpectedStatus) && status == stdhttp.StatusNotFound:
		return geo.Coordinate{}, fmt.Errorf("%w: no position known for %d access points", devicegeo.ErrNoFix,
			len(aps))
	case err != nil:
		return geo.Coordinate{}, fmt.Errorf("failed to get geolocation data from API: %w", err)
	}

	l.logger.Debug("wifi position determined", slog.Int("access_points", len(aps)),
		slog.Float64("accuracy_m", result.Accuracy))
	return geo.New(result.Location.Latitude, result.Location.Longitude)
}

// scanAccessPoints lists the access points seen by all WiFi station interfaces. Hidden networks and
// networks that opted out of mapping with the "_nomap" suffix are skipped.
func scanAccessPoints() ([]WirelessNetwork, error) {
	wlan, err := wifi.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create wifi client: %w", err)
	}
	defer func() { _ = wlan.Close() }()

	ifaces, err := wlan.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("failed to list interfaces: %w", err)
	}

	var list []WirelessNetwork
	for _, iface := range ifaces {
		if iface.Type != wifi.InterfaceTypeStation {
			continue
		}
		aps, err := wlan.AccessPoints(iface)
		if err != nil {
			continue
		}
		for _, ap := range aps {
			if ap.SSID == "" || ap.SSID[0] == '\x00' || strings.HasSuffix(ap.SSID, "_nomap") {
				continue
			}
			list = append(list, WirelessNetwork{
				SignalStrength: ap.Signal / 100,
				MACAddress:     ap.BSSID.String(),
				LastSeen:       ap.LastSeen.Milliseconds(),
			})
		}
	}
	return list, nil
}
