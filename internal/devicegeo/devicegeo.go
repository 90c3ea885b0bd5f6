// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package devicegeo determines the position of the device the user operates.
package devicegeo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/wneessen/postalcode/internal/geo"
	"github.com/wneessen/postalcode/internal/logger"
)

const (
	// DefaultTimeout bounds a single locator attempt.
	DefaultTimeout = time.Second * 10
	// NoTimeout leaves locator attempts unbounded. The locators are expected to give up on their own.
	NoTimeout time.Duration = -1
)

var (
	// ErrUnavailable is returned if the device has no geolocation capability.
	ErrUnavailable = errors.New("device geolocation is not available")
	// ErrDenied is returned if the user declined the permission to determine the position.
	ErrDenied = errors.New("device geolocation permission denied")
	// ErrNoFix is returned if a capable locator could not determine a position.
	ErrNoFix = errors.New("device position could not be determined")
)

// Locator determines the current device position.
type Locator interface {
	Name() string
	Locate(ctx context.Context) (geo.Coordinate, error)
}

// Chain asks its locators in order and returns the first valid position.
type Chain struct {
	locators []Locator
	logger   *logger.Logger
	timeout  time.Duration
}

// NewChain returns a Chain of the given locators. A zero timeout uses DefaultTimeout, NoTimeout only
// bounds the attempts by the context passed to Locate.
func NewChain(log *logger.Logger, timeout time.Duration, locators ...Locator) *Chain {
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	return &Chain{
		locators: locators,
		logger:   log,
		timeout:  timeout,
	}
}

func (c *Chain) Name() string {
	return "device locator chain"
}

// Len returns the number of locators in the chain.
func (c *Chain) Len() int {
	return len(c.locators)
}

// Locate returns the position of the first locator that succeeds. If all locators fail, the error is
// ErrDenied if any locator was denied, ErrUnavailable if no locator was capable and ErrNoFix otherwise.
func (c *Chain) Locate(ctx context.Context) (geo.Coordinate, error) {
	if len(c.locators) == 0 {
		return geo.Coordinate{}, ErrUnavailable
	}

	var errs []error
	denied, capable := false, false
	for _, locator := range c.locators {
		coord, err := c.locate(ctx, locator)
		if err == nil {
			c.logger.Debug("device position determined", slog.String("locator", locator.Name()),
				slog.String("coordinate", coord.String()))
			return coord, nil
		}
		if ctx.Err() != nil {
			return geo.Coordinate{}, ctx.Err()
		}

		c.logger.Debug("device locator failed", slog.String("locator", locator.Name()), logger.Err(err))
		errs = append(errs, fmt.Errorf("%s: %w", locator.Name(), err))
		switch {
		case errors.Is(err, ErrDenied):
			denied = true
		case !errors.Is(err, ErrUnavailable):
			capable = true
		}
	}

	cause := errors.Join(errs...)
	switch {
	case denied:
		return geo.Coordinate{}, fmt.Errorf("%w: %w", ErrDenied, cause)
	case capable:
		return geo.Coordinate{}, fmt.Errorf("%w: %w", ErrNoFix, cause)
	default:
		return geo.Coordinate{}, fmt.Errorf("%w: %w", ErrUnavailable, cause)
	}
}

func (c *Chain) locate(ctx context.Context, locator Locator) (geo.Coordinate, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	coord, err := locator.Locate(ctx)
	if err != nil {
		return geo.Coordinate{}, err
	}
	if !coord.Valid() {
		return geo.Coordinate{}, fmt.Errorf("%w: invalid coordinate %v,%v", ErrNoFix, coord.Lat, coord.Lon)
	}
	return coord, nil
}
