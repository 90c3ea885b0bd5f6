// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package locator implements the location controller of a single page. It turns GPS, search and marker
// drag triggers into resolution requests and projects confirmed results onto the map and the view.
package locator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/wneessen/postalcode/internal/devicegeo"
	"github.com/wneessen/postalcode/internal/feedback"
	"github.com/wneessen/postalcode/internal/geo"
	"github.com/wneessen/postalcode/internal/geocode"
	"github.com/wneessen/postalcode/internal/geoquery"
	"github.com/wneessen/postalcode/internal/location"
	"github.com/wneessen/postalcode/internal/logger"
	"github.com/wneessen/postalcode/internal/mapsync"
)

// Config holds the per-page controller settings.
type Config struct {
	Map mapsync.Config
	// ShowHint shows the marker hint notification after the first resolution.
	ShowHint bool
	// CancelSuperseded aborts in-flight lookups that were superseded by a newer request.
	CancelSuperseded bool
}

// Outcome reports how a trigger ended. It is passed to the settled hook.
type Outcome struct {
	Surface  feedback.Surface
	Seq      uint64
	Kind     geocode.Kind
	Stale    bool
	Updated  bool
	Err      error
	Snapshot location.Snapshot
}

// Controller owns the location state, the map and the view of one page. All state is confined to the
// goroutine executing Run; the exported trigger methods may be called from any goroutine.
type Controller struct {
	conf     Config
	resolver geocode.Resolver
	device   devicegeo.Locator
	logger   *logger.Logger

	state    *location.State
	feedback *feedback.Feedback
	mapsync  *mapsync.Controller

	queueLock sync.Mutex
	queue     []func()
	wake      chan struct{}

	ctx      context.Context
	cancelFn context.CancelFunc
	settled  func(Outcome)
}

// New returns a Controller. device may be nil if the host has no geolocation capability.
func New(conf Config, resolver geocode.Resolver, device devicegeo.Locator, view feedback.View,
	m mapsync.Map, t feedback.Translator, log *logger.Logger,
) *Controller {
	c := &Controller{
		conf:     conf,
		resolver: resolver,
		device:   device,
		logger:   log,
		state:    location.New(),
		feedback: feedback.New(view, t, conf.ShowHint),
		wake:     make(chan struct{}, 1),
	}
	c.mapsync = mapsync.New(conf.Map, m, c, log, c.dragged)
	return c
}

// OnSettled registers fn to be called on the loop whenever a trigger has been fully handled. It must
// be called before Run.
func (c *Controller) OnSettled(fn func(Outcome)) {
	c.settled = fn
}

// Run executes the event loop until ctx is canceled.
func (c *Controller) Run(ctx context.Context) error {
	c.ctx = ctx
	c.logger.Debug("location controller started")
	defer c.logger.Debug("location controller stopped")

	for {
		select {
		case <-ctx.Done():
			if c.cancelFn != nil {
				c.cancelFn()
			}
			return ctx.Err()
		case <-c.wake:
			c.queueLock.Lock()
			batch := c.queue
			c.queue = nil
			c.queueLock.Unlock()
			for _, fn := range batch {
				fn()
			}
		}
	}
}

// Post runs fn on the next loop iteration.
func (c *Controller) Post(fn func()) {
	c.queueLock.Lock()
	c.queue = append(c.queue, fn)
	c.queueLock.Unlock()
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// AfterFunc runs fn on the loop once d has elapsed.
func (c *Controller) AfterFunc(d time.Duration, fn func()) {
	time.AfterFunc(d, func() { c.Post(fn) })
}

// RequestGPS resolves the device position.
func (c *Controller) RequestGPS() {
	c.Post(c.requestGPS)
}

// Search resolves free text within the country with the given ISO code.
func (c *Controller) Search(query, countryCode string) {
	c.Post(func() { c.search(query, countryCode) })
}

// Resize recalculates the map size after the host window was resized.
func (c *Controller) Resize() {
	c.Post(c.mapsync.Resize)
}

// ContainerVisible recalculates the map size after the map container became visible.
func (c *Controller) ContainerVisible() {
	c.Post(c.mapsync.ContainerVisible)
}

// DismissHint hides the marker hint notification.
func (c *Controller) DismissHint() {
	c.Post(c.feedback.DismissHint)
}

// Snapshot returns a copy of the current location state.
func (c *Controller) Snapshot() location.Snapshot {
	return c.state.Snapshot()
}

func (c *Controller) requestGPS() {
	ticket := c.feedback.Begin(feedback.SurfaceGPS)
	if c.device == nil {
		c.geolocationFailed(ticket, devicegeo.ErrUnavailable)
		return
	}

	// The sequence number is taken on the click. A fix arriving after a newer trigger is dropped.
	seq, ctx := c.supersede()
	go func() {
		coord, err := c.device.Locate(ctx)
		c.Post(func() { c.located(ctx, ticket, seq, coord, err) })
	}()
}

func (c *Controller) located(ctx context.Context, ticket, seq uint64, coord geo.Coordinate, err error) {
	if !c.state.IsLatest(seq) {
		c.logger.Debug("discarding superseded device position", slog.Uint64("seq", seq),
			slog.Uint64("latest", c.state.Latest()))
		c.feedback.End(feedback.SurfaceGPS, ticket)
		c.settle(Outcome{Surface: feedback.SurfaceGPS, Seq: seq, Stale: true, Snapshot: c.state.Snapshot()})
		return
	}
	if err != nil {
		c.geolocationFailed(ticket, err)
		return
	}

	req := geoquery.ByCoordinate(coord)
	if !c.valid(req, feedback.SurfaceGPS, ticket) {
		return
	}
	c.issue(ctx, seq, req, feedback.SurfaceGPS, ticket, location.ProvenanceGPS)
}

func (c *Controller) geolocationFailed(ticket uint64, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	c.logger.Warn("failed to determine device position", logger.Err(err))
	c.feedback.GeolocationFailed(errors.Is(err, devicegeo.ErrUnavailable))
	c.feedback.End(feedback.SurfaceGPS, ticket)
	c.settle(Outcome{Surface: feedback.SurfaceGPS, Err: err})
}

func (c *Controller) search(query, countryCode string) {
	req := geoquery.ByText(query, countryCode)
	if err := req.Validate(); err != nil {
		c.logger.Debug("rejecting incomplete search", logger.Err(err))
		c.feedback.IncompleteSearch()
		c.settle(Outcome{Surface: feedback.SurfaceSearch, Err: err})
		return
	}
	ticket := c.feedback.Begin(feedback.SurfaceSearch)
	c.dispatch(req, feedback.SurfaceSearch, ticket, location.ProvenanceSearch)
}

// dragged handles the end of a marker drag. The marker leads: the coordinate fields follow it at once,
// the address fields only once the lookup of the new position completes.
func (c *Controller) dragged(coord geo.Coordinate) {
	coord = coord.Wrapped()
	if current, ok := c.state.Coordinate(); ok {
		c.logger.Debug("marker dragged", slog.String("to", coord.String()),
			slog.Float64("distance_m", current.DistanceTo(coord)))
	}
	c.feedback.MirrorCoordinate(coord)
	ticket := c.feedback.Begin(feedback.SurfaceMarker)
	c.dispatch(geoquery.ByCoordinate(coord), feedback.SurfaceMarker, ticket, location.ProvenanceDrag)
}

// dispatch issues the lookup for req under a new sequence number.
func (c *Controller) dispatch(req geoquery.Request, surface feedback.Surface, ticket uint64,
	prov location.Provenance,
) {
	if !c.valid(req, surface, ticket) {
		return
	}
	seq, ctx := c.supersede()
	c.issue(ctx, seq, req, surface, ticket, prov)
}

// supersede issues the sequence number for a new trigger and returns the context its work runs under.
func (c *Controller) supersede() (uint64, context.Context) {
	seq := c.state.Next()
	ctx := c.ctx
	if c.conf.CancelSuperseded {
		if c.cancelFn != nil {
			c.cancelFn()
		}
		ctx, c.cancelFn = context.WithCancel(c.ctx)
	}
	return seq, ctx
}

func (c *Controller) valid(req geoquery.Request, surface feedback.Surface, ticket uint64) bool {
	err := req.Validate()
	if err == nil {
		return true
	}
	c.logger.Error("refusing to dispatch invalid request", slog.String("surface", surface.String()),
		logger.Err(err))
	c.feedback.Failed(geocode.KindNotFound)
	c.feedback.End(surface, ticket)
	c.settle(Outcome{Surface: surface, Err: err})
	return false
}

func (c *Controller) issue(ctx context.Context, seq uint64, req geoquery.Request, surface feedback.Surface,
	ticket uint64, prov location.Provenance,
) {
	c.logger.Debug("dispatching lookup", slog.Uint64("seq", seq), slog.String("surface", surface.String()),
		slog.String("request", req.Key()))

	go func() {
		result, err := c.resolver.Resolve(ctx, req)
		if err != nil {
			result = geocode.TransportError(fmt.Errorf("lookup rejected: %w", err))
		}
		c.Post(func() { c.resolved(surface, ticket, prov, seq, result) })
	}()
}

func (c *Controller) resolved(surface feedback.Surface, ticket uint64, prov location.Provenance, seq uint64,
	result geocode.Result,
) {
	c.feedback.End(surface, ticket)

	change := c.state.Apply(result, seq, prov)
	outcome := Outcome{
		Surface: surface,
		Seq:     seq,
		Kind:    result.Kind,
		Stale:   change.Stale,
		Updated: change.Updated,
		Err:     change.Err,
	}
	switch {
	case change.Stale:
		c.logger.Debug("discarding stale lookup response", slog.Uint64("seq", seq),
			slog.Uint64("latest", c.state.Latest()), slog.String("kind", result.Kind.String()))
	case result.Kind == geocode.KindNotFound:
		c.logger.Info("lookup yielded no location", slog.Uint64("seq", seq),
			slog.String("surface", surface.String()))
		c.feedback.Failed(result.Kind)
	case !change.Updated:
		c.logger.Error("lookup failed", slog.Uint64("seq", seq), slog.String("surface", surface.String()),
			logger.Err(result.Err))
		c.feedback.Failed(result.Kind)
	default:
		c.render(result.CacheHit)
	}

	outcome.Snapshot = c.state.Snapshot()
	c.settle(outcome)
}

// render projects the location state onto the view and the map.
func (c *Controller) render(cacheHit bool) {
	snap := c.state.Snapshot()
	c.logger.Debug("location resolved", slog.Uint64("seq", snap.Seq),
		slog.String("provenance", snap.Provenance.String()), slog.String("coordinate", snap.Coordinate.String()),
		slog.String("postcode", snap.Address.Postcode.String()), slog.Bool("cache_hit", cacheHit))

	if !snap.Address.Postcode.IsSet() {
		c.logger.Info("resolved location has no postal code", slog.Uint64("seq", snap.Seq),
			slog.String("coordinate", snap.Coordinate.String()))
	}
	c.feedback.Resolved(snap.Address, snap.Coordinate)
	vm := mapsync.NewViewModel(snap.Coordinate, c.mapsync.Zoom())
	if err := c.mapsync.Sync(vm, !c.mapsync.Created()); err != nil {
		c.logger.Error("failed to render map", logger.Err(err))
	}
}

func (c *Controller) settle(outcome Outcome) {
	if c.settled != nil {
		c.settled(outcome)
	}
}
