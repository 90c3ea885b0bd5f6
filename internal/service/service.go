// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"syscall"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/vorlif/spreak"

	"github.com/wneessen/postalcode/internal/config"
	"github.com/wneessen/postalcode/internal/devicegeo"
	"github.com/wneessen/postalcode/internal/geocode"
	"github.com/wneessen/postalcode/internal/locator"
	"github.com/wneessen/postalcode/internal/logger"
	"github.com/wneessen/postalcode/internal/mapsync"
	"github.com/wneessen/postalcode/internal/server"
)

const cachePurgeJob = "geocode_cache_purge_job"

type Service struct {
	SignalSrc signalSource

	config    *config.Config
	logger    *logger.Logger
	t         *spreak.Localizer
	scheduler gocron.Scheduler
	geocoder  *geocode.CachedGeocoder
	device    *devicegeo.Chain
	server    *server.Server
	status    io.Writer
}

func New(conf *config.Config, log *logger.Logger, t *spreak.Localizer) (*Service, error) {
	if log == nil {
		return nil, errors.New("logger is required")
	}

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	geocoder, err := selectGeocodeProvider(conf, log, t.Language())
	if err != nil {
		return nil, fmt.Errorf("failed to create geocode provider: %w", err)
	}
	device := devicegeo.NewChain(log, conf.GeoLocation.Timeout, selectDeviceLocators(conf, log)...)

	srv, err := server.New(server.Config{
		Listen:             conf.Server.Listen,
		PingInterval:       conf.Server.PingInterval,
		GeolocationTimeout: conf.GeoLocation.Timeout,
		Countries:          conf.Countries,
		Locator:            locatorConfig(conf, true),
	}, geocoder, t, t.Language(), log)
	if err != nil {
		return nil, fmt.Errorf("failed to create http server: %w", err)
	}

	service := &Service{
		SignalSrc: stdLibSignalSource{},
		config:    conf,
		logger:    log,
		t:         t,
		scheduler: scheduler,
		geocoder:  geocoder,
		device:    device,
		server:    srv,
		status:    os.Stderr,
	}
	return service, nil
}

// Run serves the lookup page until ctx is canceled.
func (s *Service) Run(ctx context.Context) error {
	if err := s.createScheduledJob(ctx, s.config.Geocoder.CachePurgeInterval, s.purgeCache,
		cachePurgeJob); err != nil {
		return err
	}
	s.scheduler.Start()

	sigChan := make(chan os.Signal, 1)
	s.SignalSrc.Notify(sigChan, syscall.SIGUSR1, syscall.SIGUSR2)
	go func() {
		defer s.SignalSrc.Stop(sigChan)
		s.HandleSignals(ctx, sigChan)
	}()

	srvErr := s.server.Start(ctx)
	if err := s.scheduler.Shutdown(); err != nil {
		return errors.Join(srvErr, fmt.Errorf("failed to shut down scheduler: %w", err))
	}
	return srvErr
}

func (s *Service) createScheduledJob(ctx context.Context, interval time.Duration, task func(context.Context),
	jobName string,
) error {
	_, err := s.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(task),
		gocron.WithContext(ctx),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithName(jobName),
	)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", jobName, err)
	}
	return nil
}

// purgeCache removes expired geocode results from the cache.
func (s *Service) purgeCache(context.Context) {
	removed := s.geocoder.Purge()
	s.logger.Debug("purged expired geocode cache entries", slog.Int("removed", removed),
		slog.Int("remaining", s.geocoder.Len()))
}

// locatorConfig maps the configuration onto the controller settings. The marker hint only makes
// sense where the marker can be dragged.
func locatorConfig(conf *config.Config, showHint bool) locator.Config {
	return locator.Config{
		Map: mapsync.Config{
			Container:   conf.Map.Container,
			TileURL:     conf.Map.TileURL,
			Attribution: conf.Map.Attribution,
			Zoom:        conf.Map.Zoom,
			MaxZoom:     conf.Map.MaxZoom,
			ResizeDelay: conf.Map.ResizeDelay,
		},
		ShowHint:         showHint,
		CancelSuperseded: conf.Geocoder.CancelSuperseded,
	}
}
