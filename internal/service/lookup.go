// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"fmt"
	"io"

	"github.com/wneessen/postalcode/internal/geocode"
	"github.com/wneessen/postalcode/internal/locator"
	"github.com/wneessen/postalcode/internal/terminal"
)

// Lookup searches for query within the country with the given ISO code and writes the results panel
// to out.
func (s *Service) Lookup(ctx context.Context, query, countryCode string, out io.Writer) error {
	return s.lookup(ctx, out, func(ctrl *locator.Controller) {
		ctrl.Search(query, countryCode)
	})
}

// LookupGPS resolves the device position and writes the results panel to out.
func (s *Service) LookupGPS(ctx context.Context, out io.Writer) error {
	return s.lookup(ctx, out, (*locator.Controller).RequestGPS)
}

// lookup runs a controller with terminal projections for a single trigger. Busy labels and alerts
// go to the status writer.
func (s *Service) lookup(ctx context.Context, out io.Writer, trigger func(*locator.Controller)) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	view := terminal.NewView(s.status, s.t)
	termMap := terminal.NewMap()
	ctrl := locator.New(locatorConfig(s.config, false), s.geocoder, s.device, view, termMap, s.t, s.logger)
	settled := make(chan locator.Outcome, 1)
	ctrl.OnSettled(func(outcome locator.Outcome) {
		select {
		case settled <- outcome:
		default:
		}
	})
	go func() { _ = ctrl.Run(ctx) }()
	trigger(ctrl)

	var outcome locator.Outcome
	select {
	case <-ctx.Done():
		return ctx.Err()
	case outcome = <-settled:
	}

	// The map is completed by follow-up tasks on the loop. Wait for them before rendering.
	flushed := make(chan struct{})
	ctrl.Post(func() { close(flushed) })
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-flushed:
	}

	if outcome.Err != nil {
		return fmt.Errorf("lookup failed: %w", outcome.Err)
	}
	if outcome.Kind != geocode.KindFound {
		return fmt.Errorf("lookup failed: %s", outcome.Kind)
	}
	return view.Render(out, termMap)
}
