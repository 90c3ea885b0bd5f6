// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	stdhttp "net/http"
	"os"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/text/language"

	"github.com/wneessen/postalcode/internal/config"
	"github.com/wneessen/postalcode/internal/devicegeo"
	"github.com/wneessen/postalcode/internal/feedback"
	"github.com/wneessen/postalcode/internal/geocode"
	nominatim "github.com/wneessen/postalcode/internal/geocode/provider/osm-nominatim"
	"github.com/wneessen/postalcode/internal/geoquery"
	"github.com/wneessen/postalcode/internal/http"
	"github.com/wneessen/postalcode/internal/i18n"
	"github.com/wneessen/postalcode/internal/logger"
	"github.com/wneessen/postalcode/internal/testhelper"
)

const (
	testDataDir        = "../../testdata/"
	parisSearchFile    = testDataDir + "nominatim_paris_search.json"
	londonReverseFile  = testDataDir + "nominatim_london_reverse.json"
	geolocationFile    = testDataDir + "geolocation"
	nominatimCacheName = "geocoder cache using osm-nominatim"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	m.Run()
}

func TestNew(t *testing.T) {
	t.Run("new service succeeds", func(t *testing.T) {
		serv, err := testService(t, false)
		if err != nil {
			t.Fatalf("failed to create service: %s", err)
		}
		if serv.geocoder.Name() != nominatimCacheName {
			t.Errorf("expected geocoder name to be %q, got %q", nominatimCacheName, serv.geocoder.Name())
		}
		if serv.device.Len() != 5 {
			t.Errorf("expected 5 device locators, got %d", serv.device.Len())
		}
	})
	t.Run("nil logger fails the service initialization", func(t *testing.T) {
		_, err := testService(t, true)
		if err == nil {
			t.Fatal("expected service creation to fail")
		}
		wantErr := "logger is required"
		if !strings.Contains(err.Error(), wantErr) {
			t.Errorf("expected error to contain %q, got %q", wantErr, err)
		}
	})
	t.Run("relative geocoder endpoint fails", func(t *testing.T) {
		t.Setenv("POSTALCODE_GEOCODER_ENDPOINT", "nominatim.local")
		_, err := testService(t, false)
		if err == nil {
			t.Fatal("expected service creation to fail")
		}
		wantErr := "failed to create geocode provider"
		if !strings.Contains(err.Error(), wantErr) {
			t.Errorf("expected error to contain %q, got %q", wantErr, err)
		}
	})
}

func TestService_selectProvider(t *testing.T) {
	t.Run("geocode providers", func(t *testing.T) {
		tests := []struct {
			name     string
			provider string
			wantFail bool
		}{
			{"nominatim", "nominatim", false},
			{"nominatim with mixed case", "Nominatim", false},
			{"unsupported provider", "opencage", true},
		}
		for _, tc := range tests {
			t.Run(tc.name, func(t *testing.T) {
				serv, err := testService(t, false)
				if err != nil {
					t.Fatalf("failed to create service: %s", err)
				}
				serv.config.Geocoder.Provider = tc.provider
				provider, err := selectGeocodeProvider(serv.config, serv.logger, serv.t.Language())
				if tc.wantFail && err == nil {
					t.Fatal("expected geocode provider selection to fail")
				}
				if !tc.wantFail && err != nil {
					t.Fatalf("failed to select geocode provider: %s", err)
				}
				if tc.wantFail {
					wantErr := "unsupported geocoder type: " + tc.provider
					if !strings.Contains(err.Error(), wantErr) {
						t.Errorf("expected error to contain %q, got %q", wantErr, err)
					}
					return
				}
				if provider.Name() != nominatimCacheName {
					t.Errorf("expected geocoder name to be %q, got %q", nominatimCacheName, provider.Name())
				}
			})
		}
	})
	t.Run("device locators", func(t *testing.T) {
		tests := []struct {
			name   string
			confFn func(*config.Config)
			want   []string
		}{
			{
				name:   "all locators enabled",
				confFn: func(*config.Config) {},
				want:   []string{"geolocation_file", "gpsd", "geoclue", "ichnaea", "geoip"},
			},
			{
				name:   "all locators disabled",
				confFn: disableAllLocators,
				want:   []string{},
			},
			{
				name: "only the geolocation file",
				confFn: func(c *config.Config) {
					disableAllLocators(c)
					c.GeoLocation.DisableGeolocationFile = false
				},
				want: []string{"geolocation_file"},
			},
			{
				name: "only the wifi locator",
				confFn: func(c *config.Config) {
					disableAllLocators(c)
					c.GeoLocation.DisableIchnaea = false
				},
				want: []string{"ichnaea"},
			},
		}
		for _, tc := range tests {
			t.Run(tc.name, func(t *testing.T) {
				serv, err := testService(t, false)
				if err != nil {
					t.Fatalf("failed to create service: %s", err)
				}
				tc.confFn(serv.config)
				locators := selectDeviceLocators(serv.config, serv.logger)
				if len(locators) != len(tc.want) {
					t.Fatalf("expected %d locators, got %d", len(tc.want), len(locators))
				}
				for i, locator := range locators {
					if !strings.Contains(strings.ToLower(locator.Name()), tc.want[i]) {
						t.Errorf("expected locator %d to be %q, got %q", i, tc.want[i], locator.Name())
					}
				}
			})
		}
	})
}

func TestService_Run(t *testing.T) {
	t.Run("start the service and gracefully shut it down", func(t *testing.T) {
		t.Setenv("POSTALCODE_SERVER_LISTEN", "127.0.0.1:0")
		serv, err := testService(t, false)
		if err != nil {
			t.Fatalf("failed to create service: %s", err)
		}

		ctx, cancel := context.WithCancel(t.Context())
		defer cancel()
		errChan := make(chan error, 1)
		go func() {
			errChan <- serv.Run(ctx)
		}()

		time.Sleep(time.Millisecond * 100)
		cancel()
		select {
		case err = <-errChan:
			if err != nil {
				t.Errorf("failed to run service: %s", err)
			}
		case <-time.After(time.Second * 10):
			t.Fatal("service did not shut down")
		}
	})
	t.Run("starting service fails due to an invalid listen address", func(t *testing.T) {
		t.Setenv("POSTALCODE_SERVER_LISTEN", "127.0.0.1:-1")
		serv, err := testService(t, false)
		if err != nil {
			t.Fatalf("failed to create service: %s", err)
		}
		err = serv.Run(t.Context())
		if err == nil {
			t.Fatal("expected service to fail")
		}
		wantErr := "http server failed"
		if !strings.Contains(err.Error(), wantErr) {
			t.Errorf("expected error to contain %q, got %q", wantErr, err)
		}
	})
	t.Run("starting service fails due to an invalid purge interval", func(t *testing.T) {
		serv, err := testService(t, false)
		if err != nil {
			t.Fatalf("failed to create service: %s", err)
		}
		serv.config.Geocoder.CachePurgeInterval = 0
		err = serv.Run(t.Context())
		if err == nil {
			t.Fatal("expected service to fail")
		}
		wantErr := "failed to create " + cachePurgeJob
		if !strings.Contains(err.Error(), wantErr) {
			t.Errorf("expected error to contain %q, got %q", wantErr, err)
		}
	})
}

func TestService_purgeCache(t *testing.T) {
	serv, err := testService(t, false)
	if err != nil {
		t.Fatalf("failed to create service: %s", err)
	}
	serv.geocoder = geocode.NewCachedGeocoder(&mockResolver{}, time.Millisecond, time.Millisecond)
	if _, err = serv.geocoder.Resolve(t.Context(), geoquery.ByText("Paris", "FR")); err != nil {
		t.Fatalf("failed to resolve: %s", err)
	}
	buf := &syncBuffer{buf: bytes.NewBuffer(nil)}
	serv.logger = logger.NewLogger(slog.LevelDebug, buf)

	time.Sleep(time.Millisecond * 5)
	serv.purgeCache(t.Context())
	if serv.geocoder.Len() != 0 {
		t.Errorf("expected empty cache, got %d entries", serv.geocoder.Len())
	}
	wantLog := `msg="purged expired geocode cache entries" removed=1 remaining=0`
	if !strings.Contains(buf.String(), wantLog) {
		t.Errorf("expected log to contain %q, got %q", wantLog, buf.String())
	}
}

func TestService_HandleSignals(t *testing.T) {
	t.Run("USR1 signal clears the geocode cache", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		serv, err := testService(t, false)
		if err != nil {
			t.Fatalf("failed to create service: %s", err)
		}
		serv.geocoder = geocode.NewCachedGeocoder(&mockResolver{}, time.Hour, time.Hour)
		if _, err = serv.geocoder.Resolve(t.Context(), geoquery.ByText("Paris", "FR")); err != nil {
			t.Fatalf("failed to resolve: %s", err)
		}
		buf := &syncBuffer{buf: bytes.NewBuffer(nil)}
		serv.logger = logger.NewLogger(slog.LevelInfo, buf)

		sigChan := make(chan os.Signal, 1)
		serv.SignalSrc.Notify(sigChan, syscall.SIGUSR1, syscall.SIGUSR2)
		go func() {
			defer serv.SignalSrc.Stop(sigChan)
			serv.HandleSignals(ctx, sigChan)
		}()

		sigChan <- syscall.SIGUSR1
		time.Sleep(time.Millisecond * 100)
		if serv.geocoder.Len() != 0 {
			t.Errorf("expected empty cache, got %d entries", serv.geocoder.Len())
		}
		wantLog := `msg="geocode cache cleared" removed=1`
		if !strings.Contains(buf.String(), wantLog) {
			t.Errorf("expected log to contain %q, got %q", wantLog, buf.String())
		}
		cancel()
	})
	t.Run("USR2 signal logs the service status", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		serv, err := testService(t, false)
		if err != nil {
			t.Fatalf("failed to create service: %s", err)
		}
		buf := &syncBuffer{buf: bytes.NewBuffer(nil)}
		serv.logger = logger.NewLogger(slog.LevelInfo, buf)
		sigChan := make(chan os.Signal, 1)
		serv.SignalSrc.Notify(sigChan, syscall.SIGUSR1, syscall.SIGUSR2)
		go func() {
			defer serv.SignalSrc.Stop(sigChan)
			serv.HandleSignals(ctx, sigChan)
		}()

		sigChan <- syscall.SIGUSR2
		time.Sleep(time.Millisecond * 100)
		wantLog := `msg="service status" sessions=0 geocoder="` + nominatimCacheName + `" cached_results=0`
		if !strings.Contains(buf.String(), wantLog) {
			t.Errorf("expected log to contain %q, got %q", wantLog, buf.String())
		}
		cancel()
		time.Sleep(time.Millisecond * 100)
	})
}

func TestService_Lookup(t *testing.T) {
	t.Run("search result is rendered", func(t *testing.T) {
		serv, status := lookupService(t, func(req *stdhttp.Request) (*stdhttp.Response, error) {
			return fileResponse(t, parisSearchFile), nil
		})
		out := bytes.NewBuffer(nil)
		if err := serv.Lookup(t.Context(), "Paris", "FR", out); err != nil {
			t.Fatalf("lookup failed: %s", err)
		}
		for _, want := range []string{
			"Address     : Paris, Île-de-France, France métropolitaine, France\n",
			"Postal Code : N/A\n",
			"Country     : France\n",
			"Latitude    : 48.8534951\n",
			"Longitude   : 2.3483915\n",
			"Map         : https://",
		} {
			if !strings.Contains(out.String(), want) {
				t.Errorf("expected output to contain %q, got %q", want, out.String())
			}
		}
		if strings.Contains(out.String(), feedback.NotificationMarkerHint) {
			t.Error("expected no marker hint in terminal output")
		}
		if status.String() != feedback.LabelLoading+"...\n" {
			t.Errorf("unexpected status output %q", status.String())
		}
	})
	t.Run("location not found", func(t *testing.T) {
		serv, status := lookupService(t, func(req *stdhttp.Request) (*stdhttp.Response, error) {
			return jsonResponse(stdhttp.StatusOK, `[]`), nil
		})
		out := bytes.NewBuffer(nil)
		err := serv.Lookup(t.Context(), "Atlantis", "GR", out)
		if err == nil {
			t.Fatal("expected lookup to fail")
		}
		wantErr := "lookup failed: not found"
		if !strings.Contains(err.Error(), wantErr) {
			t.Errorf("expected error to contain %q, got %q", wantErr, err)
		}
		if !strings.Contains(status.String(), "! "+feedback.AlertNotFound) {
			t.Errorf("expected not found alert, got %q", status.String())
		}
		if out.Len() != 0 {
			t.Errorf("expected no output, got %q", out.String())
		}
	})
	t.Run("geocoder transport error", func(t *testing.T) {
		serv, status := lookupService(t, func(req *stdhttp.Request) (*stdhttp.Response, error) {
			return jsonResponse(stdhttp.StatusInternalServerError, `{}`), nil
		})
		err := serv.Lookup(t.Context(), "Paris", "FR", io.Discard)
		if err == nil {
			t.Fatal("expected lookup to fail")
		}
		if !errors.Is(err, http.ErrUnexpectedStatus) {
			t.Errorf("expected error to be %s, got %s", http.ErrUnexpectedStatus, err)
		}
		if !strings.Contains(status.String(), "! "+feedback.AlertTransportError) {
			t.Errorf("expected transport error alert, got %q", status.String())
		}
	})
	t.Run("incomplete search is rejected", func(t *testing.T) {
		calls := 0
		serv, status := lookupService(t, func(req *stdhttp.Request) (*stdhttp.Response, error) {
			calls++
			return fileResponse(t, parisSearchFile), nil
		})
		err := serv.Lookup(t.Context(), "Paris", "", io.Discard)
		if !errors.Is(err, geoquery.ErrInvalidRequest) {
			t.Errorf("expected error to be %s, got %s", geoquery.ErrInvalidRequest, err)
		}
		if !strings.Contains(status.String(), "! "+feedback.AlertIncompleteSearch) {
			t.Errorf("expected incomplete search alert, got %q", status.String())
		}
		if calls != 0 {
			t.Errorf("expected no geocoder calls, got %d", calls)
		}
	})
	t.Run("canceled context aborts the lookup", func(t *testing.T) {
		serv, _ := lookupService(t, func(req *stdhttp.Request) (*stdhttp.Response, error) {
			return fileResponse(t, parisSearchFile), nil
		})
		ctx, cancel := context.WithCancel(t.Context())
		cancel()
		if err := serv.Lookup(ctx, "Paris", "FR", io.Discard); !errors.Is(err, context.Canceled) {
			t.Errorf("expected error to be %s, got %s", context.Canceled, err)
		}
	})
}

func TestService_LookupGPS(t *testing.T) {
	t.Run("device position is reverse geocoded", func(t *testing.T) {
		var gotURL string
		serv, _ := lookupService(t, func(req *stdhttp.Request) (*stdhttp.Response, error) {
			gotURL = req.URL.String()
			return fileResponse(t, londonReverseFile), nil
		})
		disableAllLocators(serv.config)
		serv.config.GeoLocation.DisableGeolocationFile = false
		serv.config.GeoLocation.File = geolocationFile
		serv.device = devicegeo.NewChain(serv.logger, time.Second, selectDeviceLocators(serv.config, serv.logger)...)

		out := bytes.NewBuffer(nil)
		if err := serv.LookupGPS(t.Context(), out); err != nil {
			t.Fatalf("lookup failed: %s", err)
		}
		if !strings.Contains(gotURL, "/reverse?") || !strings.Contains(gotURL, "lat=40.7185") {
			t.Errorf("expected reverse lookup of the device position, got %q", gotURL)
		}
		if !strings.Contains(out.String(), "Postal Code : SW1A 1AA\n") {
			t.Errorf("expected postcode in output, got %q", out.String())
		}
	})
	t.Run("no device locator available", func(t *testing.T) {
		serv, status := lookupService(t, func(req *stdhttp.Request) (*stdhttp.Response, error) {
			return fileResponse(t, londonReverseFile), nil
		})
		disableAllLocators(serv.config)
		serv.device = devicegeo.NewChain(serv.logger, time.Second, selectDeviceLocators(serv.config, serv.logger)...)

		err := serv.LookupGPS(t.Context(), io.Discard)
		if !errors.Is(err, devicegeo.ErrUnavailable) {
			t.Errorf("expected error to be %s, got %s", devicegeo.ErrUnavailable, err)
		}
		if !strings.Contains(status.String(), "! "+feedback.AlertGeolocationMissing) {
			t.Errorf("expected geolocation missing alert, got %q", status.String())
		}
	})
}

func testService(_ *testing.T, nilLogger bool) (*Service, error) {
	conf, err := config.New()
	if err != nil {
		return nil, err
	}
	conf.Locale = "en"

	var log *logger.Logger
	if !nilLogger {
		log = logger.NewLogger(conf.LogLevel, io.Discard)
	}

	lang, err := i18n.New(conf.Locale)
	if err != nil {
		return nil, err
	}
	serv, err := New(conf, log, lang)
	if err != nil {
		return nil, err
	}

	return serv, nil
}

// lookupService returns a service whose geocoder answers through fn. The returned buffer receives the
// busy labels and alerts.
func lookupService(t *testing.T, fn func(*stdhttp.Request) (*stdhttp.Response, error)) (*Service, *syncBuffer) {
	t.Helper()
	serv, err := testService(t, false)
	if err != nil {
		t.Fatalf("failed to create service: %s", err)
	}
	client := http.New(serv.logger)
	client.Transport = testhelper.MockRoundTripper{Fn: fn}
	coder, err := nominatim.New(client, nominatim.APIEndpoint, language.English, nominatim.WithRateLimit(0))
	if err != nil {
		t.Fatalf("failed to create geocoder: %s", err)
	}
	serv.geocoder = geocode.NewCachedGeocoder(coder, time.Minute, time.Minute)
	status := &syncBuffer{buf: bytes.NewBuffer(nil)}
	serv.status = status
	return serv, status
}

func disableAllLocators(c *config.Config) {
	c.GeoLocation.DisableGeolocationFile = true
	c.GeoLocation.DisableGPSD = true
	c.GeoLocation.DisableGeoClue = true
	c.GeoLocation.DisableIchnaea = true
	c.GeoLocation.DisableGeoIP = true
}

func fileResponse(t *testing.T, file string) *stdhttp.Response {
	data, err := os.Open(file)
	if err != nil {
		t.Fatalf("failed to open JSON response file: %s", err)
	}
	return &stdhttp.Response{
		StatusCode: stdhttp.StatusOK,
		Body:       data,
		Header:     make(stdhttp.Header),
	}
}

func jsonResponse(status int, body string) *stdhttp.Response {
	return &stdhttp.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     make(stdhttp.Header),
	}
}

type (
	mockResolver struct{}
	syncBuffer   struct {
		mu  sync.Mutex
		buf *bytes.Buffer
	}
)

func (m *mockResolver) Name() string {
	return "mock geocoder"
}

func (m *mockResolver) Resolve(context.Context, geoquery.Request) (geocode.Result, error) {
	return geocode.NotFound(), nil
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}
