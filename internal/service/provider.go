// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package service

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"

	"github.com/wneessen/postalcode/internal/config"
	"github.com/wneessen/postalcode/internal/devicegeo"
	"github.com/wneessen/postalcode/internal/devicegeo/provider/geoclue"
	"github.com/wneessen/postalcode/internal/devicegeo/provider/geoip"
	"github.com/wneessen/postalcode/internal/devicegeo/provider/geolocation_file"
	"github.com/wneessen/postalcode/internal/devicegeo/provider/gpsd"
	"github.com/wneessen/postalcode/internal/devicegeo/provider/ichnaea"
	"github.com/wneessen/postalcode/internal/geocode"
	nominatim "github.com/wneessen/postalcode/internal/geocode/provider/osm-nominatim"
	"github.com/wneessen/postalcode/internal/http"
	"github.com/wneessen/postalcode/internal/logger"
)

// selectDeviceLocators returns the enabled device locators, most precise first. The list may be empty,
// in which case the GPS lookup reports that geolocation is unavailable.
func selectDeviceLocators(conf *config.Config, log *logger.Logger) []devicegeo.Locator {
	var locators []devicegeo.Locator

	if !conf.GeoLocation.DisableGeolocationFile {
		locators = append(locators, geolocation_file.New(conf.GeoLocation.File))
	}

	if !conf.GeoLocation.DisableGPSD {
		locators = append(locators, gpsd.New(conf.GeoLocation.GPSDAddress))
	}

	if !conf.GeoLocation.DisableGeoClue {
		locators = append(locators, geoclue.New())
	}

	if !conf.GeoLocation.DisableIchnaea {
		locators = append(locators, ichnaea.New(http.New(log), log))
	}

	if !conf.GeoLocation.DisableGeoIP {
		locators = append(locators, geoip.New(http.New(log)))
	}

	return locators
}

func selectGeocodeProvider(conf *config.Config, log *logger.Logger, lang language.Tag) (*geocode.CachedGeocoder, error) {
	var geocoder *geocode.CachedGeocoder

	switch strings.ToLower(conf.Geocoder.Provider) {
	case config.ProviderNominatim:
		coder, err := nominatim.New(http.New(log), conf.Geocoder.Endpoint, lang,
			nominatim.WithTimeout(conf.Geocoder.Timeout), nominatim.WithRateLimit(conf.Geocoder.RateLimit))
		if err != nil {
			return nil, fmt.Errorf("failed to create Nominatim geocoder: %w", err)
		}
		geocoder = geocode.NewCachedGeocoder(coder, conf.Geocoder.CacheHitTTL, conf.Geocoder.CacheMissTTL)
	default:
		return nil, fmt.Errorf("unsupported geocoder type: %s", conf.Geocoder.Provider)
	}

	return geocoder, nil
}
