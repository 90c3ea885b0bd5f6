// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

type signalSource interface {
	Notify(c chan<- os.Signal, sig ...os.Signal)
	Stop(c chan<- os.Signal)
}

type stdLibSignalSource struct{}

func (stdLibSignalSource) Notify(c chan<- os.Signal, sig ...os.Signal) {
	signal.Notify(c, sig...)
}

func (stdLibSignalSource) Stop(c chan<- os.Signal) {
	signal.Stop(c)
}

// HandleSignals clears the geocode cache on SIGUSR1 and logs the service status on SIGUSR2.
func (s *Service) HandleSignals(ctx context.Context, sigChan chan os.Signal) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-sigChan:
			switch sig {
			case syscall.SIGUSR1:
				removed := s.geocoder.Clear()
				s.logger.Info("geocode cache cleared", slog.Int("removed", removed))
			case syscall.SIGUSR2:
				s.logger.Info("service status", slog.Int("sessions", s.server.Sessions()),
					slog.String("geocoder", s.geocoder.Name()), slog.Int("cached_results", s.geocoder.Len()))
			}
		}
	}
}
