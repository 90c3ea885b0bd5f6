// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package mapsync keeps a map viewport and its single draggable marker in line with the resolved
// location.
package mapsync

import (
	"errors"
	"log/slog"
	"time"

	"github.com/wneessen/postalcode/internal/geo"
	"github.com/wneessen/postalcode/internal/logger"
)

const (
	// DefaultZoom is the city-scale zoom level applied on every resolution.
	DefaultZoom = 13
	// DefaultMaxZoom is the maximum zoom level of the base tile layer.
	DefaultMaxZoom = 20
	// DefaultResizeDelay is the fallback delay after which the map size is recalculated when the host
	// cannot report container visibility.
	DefaultResizeDelay = time.Millisecond * 300

	DefaultContainer   = "postalcode-map"
	DefaultTileURL     = "https://{s}.tile.openstreetmap.org/{z}/{x}/{y}.png"
	DefaultAttribution = "© OpenStreetMap"
)

var ErrNotCreated = errors.New("map has not been created yet")

// Map is the rendering capability the controller drives. Implementations are only ever called from the
// controller's event loop.
type Map interface {
	ShowContainer()
	Create(container string, center geo.Coordinate, zoom int) error
	AddTileLayer(layer TileLayer) error
	SetView(center geo.Coordinate, zoom int)
	AddMarker(at geo.Coordinate, draggable bool)
	MoveMarker(at geo.Coordinate)
	InvalidateSize()
	// OnDragEnd registers the callback for the end of a marker drag. The callback may be called from
	// any goroutine.
	OnDragEnd(fn func(geo.Coordinate))
}

// VisibilityNotifier is implemented by maps whose host reports when the map container became visible.
// Hosts that report visibility get no fallback size recalculation.
type VisibilityNotifier interface {
	NotifiesVisibility() bool
}

// Scheduler runs functions on the event loop that owns the controller.
type Scheduler interface {
	// Post runs fn on the next loop iteration.
	Post(fn func())
	// AfterFunc runs fn on the loop once d has elapsed.
	AfterFunc(d time.Duration, fn func())
}

// Config holds the static map configuration.
type Config struct {
	Container   string
	TileURL     string
	Attribution string
	Zoom        int
	MaxZoom     int
	ResizeDelay time.Duration
}

// DefaultConfig returns the map configuration for OpenStreetMap tiles.
func DefaultConfig() Config {
	return Config{
		Container:   DefaultContainer,
		TileURL:     DefaultTileURL,
		Attribution: DefaultAttribution,
		Zoom:        DefaultZoom,
		MaxZoom:     DefaultMaxZoom,
		ResizeDelay: DefaultResizeDelay,
	}
}

// TileLayer describes the base tile layer attached to the map.
type TileLayer struct {
	URLTemplate string
	Attribution string
	MaxZoom     int
}

// ViewModel is the projection of a resolved location onto the map.
type ViewModel struct {
	Center geo.Coordinate
	Marker geo.Coordinate
	Zoom   int
}

// NewViewModel returns the view model for a resolved coordinate.
func NewViewModel(coord geo.Coordinate, zoom int) ViewModel {
	return ViewModel{Center: coord, Marker: coord, Zoom: zoom}
}

// Controller owns the map and marker instances. It is not safe for concurrent use; all methods must be
// called from the scheduler's loop.
type Controller struct {
	conf  Config
	m     Map
	sched Scheduler
	log   *logger.Logger

	onDragEnd func(geo.Coordinate)

	created bool
	view    ViewModel
	marker  geo.Coordinate
}

// New returns a Controller for the given map. onDragEnd is called on the loop with the marker's new
// coordinate after every drag.
func New(conf Config, m Map, sched Scheduler, log *logger.Logger, onDragEnd func(geo.Coordinate)) *Controller {
	if conf.Zoom <= 0 {
		conf.Zoom = DefaultZoom
	}
	if conf.MaxZoom <= 0 {
		conf.MaxZoom = DefaultMaxZoom
	}
	if conf.ResizeDelay <= 0 {
		conf.ResizeDelay = DefaultResizeDelay
	}
	return &Controller{
		conf:      conf,
		m:         m,
		sched:     sched,
		log:       log,
		onDragEnd: onDragEnd,
	}
}

// Created reports whether the map instance exists.
func (c *Controller) Created() bool {
	return c.created
}

// Zoom returns the city-scale zoom level applied on every resolution.
func (c *Controller) Zoom() int {
	return c.conf.Zoom
}

// Sync renders the view model. The first render creates the map and its marker, every later render
// moves the existing instances. Rendering a view model that is already displayed is a no-op.
func (c *Controller) Sync(vm ViewModel, first bool) error {
	if !c.created {
		if !first {
			return ErrNotCreated
		}
		return c.create(vm)
	}
	if first {
		c.log.Debug("map already exists, updating view instead of recreating it")
	}
	if vm == c.view && vm.Marker == c.marker {
		return nil
	}

	c.m.ShowContainer()
	c.m.SetView(vm.Center, vm.Zoom)
	c.m.MoveMarker(vm.Marker)
	c.view, c.marker = vm, vm.Marker
	c.scheduleResize()
	return nil
}

// Resize recalculates the map size after the host window changed its dimensions.
func (c *Controller) Resize() {
	if c.created {
		c.m.InvalidateSize()
	}
}

// ContainerVisible recalculates the map size after the map container became visible.
func (c *Controller) ContainerVisible() {
	if c.created {
		c.m.InvalidateSize()
	}
}

func (c *Controller) create(vm ViewModel) error {
	c.m.ShowContainer()
	if err := c.m.Create(c.conf.Container, vm.Center, vm.Zoom); err != nil {
		return err
	}
	c.created = true
	c.m.InvalidateSize()

	layer := TileLayer{
		URLTemplate: c.conf.TileURL,
		Attribution: c.conf.Attribution,
		MaxZoom:     c.conf.MaxZoom,
	}
	c.sched.Post(func() {
		if err := c.m.AddTileLayer(layer); err != nil {
			c.log.Error("failed to attach tile layer", logger.Err(err))
			return
		}
		c.m.InvalidateSize()
	})

	c.m.AddMarker(vm.Marker, true)
	c.m.OnDragEnd(func(coord geo.Coordinate) {
		c.sched.Post(func() { c.dragEnded(coord) })
	})
	c.view, c.marker = vm, vm.Marker
	c.scheduleResize()

	c.log.Debug("map created", slog.String("container", c.conf.Container),
		slog.String("center", vm.Center.String()), slog.Int("zoom", vm.Zoom))
	return nil
}

func (c *Controller) dragEnded(coord geo.Coordinate) {
	c.marker = coord
	if c.onDragEnd != nil {
		c.onDragEnd(coord)
	}
}

// scheduleResize falls back to a delayed size recalculation if the host cannot report visibility.
func (c *Controller) scheduleResize() {
	if notifier, ok := c.m.(VisibilityNotifier); ok && notifier.NotifiesVisibility() {
		return
	}
	c.sched.AfterFunc(c.conf.ResizeDelay, func() {
		if c.created {
			c.m.InvalidateSize()
		}
	})
}
