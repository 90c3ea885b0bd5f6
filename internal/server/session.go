// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/wneessen/postalcode/internal/devicegeo"
	"github.com/wneessen/postalcode/internal/feedback"
	"github.com/wneessen/postalcode/internal/geo"
	"github.com/wneessen/postalcode/internal/job"
	"github.com/wneessen/postalcode/internal/locator"
	"github.com/wneessen/postalcode/internal/logger"
	"github.com/wneessen/postalcode/internal/mapsync"
)

const (
	writeWait   = time.Second * 10
	outboxSize  = 64
	maxReadSize = 4096
)

// session connects one page to one location controller.
type session struct {
	id     string
	conn   *websocket.Conn
	logger *logger.Logger
	ctx    context.Context
	cancel context.CancelFunc
	out    chan Message

	ctrl      *locator.Controller
	browser   *browserLocator
	dragLock  sync.Mutex
	onDragEnd func(geo.Coordinate)
}

func newSession(parent context.Context, conn *websocket.Conn, geolocationTimeout time.Duration,
	log *logger.Logger,
) *session {
	id := uuid.NewString()
	ctx, cancel := context.WithCancel(parent)
	sess := &session{
		id:     id,
		conn:   conn,
		logger: &logger.Logger{Logger: log.With(slog.String("session", id))},
		ctx:    ctx,
		cancel: cancel,
		out:    make(chan Message, outboxSize),
	}
	sess.browser = &browserLocator{send: sess.send, timeout: geolocationTimeout}
	return sess
}

// run serves the session until the page disconnects, the keepalive fails or ctx is canceled.
func (s *session) run(pingInterval time.Duration) {
	var wg sync.WaitGroup
	ctx, cancel := s.ctx, s.cancel
	defer cancel()
	stop := context.AfterFunc(ctx, func() { _ = s.conn.Close() })
	defer stop()

	pongWait := pingInterval * 2
	s.conn.SetReadLimit(maxReadSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	wg.Go(func() {
		if err := s.ctrl.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("location controller failed", logger.Err(err))
		}
	})
	wg.Go(func() {
		s.write(ctx)
		cancel()
	})
	wg.Go(func() {
		keepalive := job.New(pingInterval, s.ping)
		if err := keepalive.Start(ctx); err != nil {
			s.logger.Warn("websocket keepalive failed", logger.Err(err))
			cancel()
		}
	})

	s.logger.Info("websocket session started")
	s.read(ctx)
	cancel()
	wg.Wait()
	s.logger.Info("websocket session closed")
}

func (s *session) read(ctx context.Context) {
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil && websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway,
				websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				s.logger.Warn("failed to read from websocket", logger.Err(err))
			}
			return
		}
		var msg inboundMessage
		if err = json.Unmarshal(data, &msg); err != nil {
			s.logger.Warn("ignoring undecodable message", logger.Err(err))
			continue
		}
		if err = s.handle(msg); err != nil {
			s.logger.Warn("ignoring malformed message", slog.String("type", msg.Type), logger.Err(err))
		}
	}
}

func (s *session) handle(msg inboundMessage) error {
	switch msg.Type {
	case MsgGPS:
		s.ctrl.RequestGPS()
	case MsgSearch:
		var payload SearchPayload
		if err := decode(msg.Payload, &payload); err != nil {
			return err
		}
		s.ctrl.Search(payload.Query, payload.Country)
	case MsgDragEnd:
		var payload PositionPayload
		if err := decode(msg.Payload, &payload); err != nil {
			return err
		}
		s.dragEnded(geo.Coordinate{Lat: payload.Lat, Lon: payload.Lon})
	case MsgResize:
		s.ctrl.Resize()
	case MsgVisible:
		s.ctrl.ContainerVisible()
	case MsgDismiss:
		s.ctrl.DismissHint()
	case MsgPosition:
		var payload PositionPayload
		if err := decode(msg.Payload, &payload); err != nil {
			return err
		}
		s.browser.deliver(geo.Coordinate{Lat: payload.Lat, Lon: payload.Lon}, nil)
	case MsgPositionError:
		var payload PositionErrorPayload
		if err := decode(msg.Payload, &payload); err != nil {
			return err
		}
		s.browser.deliver(geo.Coordinate{}, positionError(payload.Code))
	default:
		return fmt.Errorf("unknown message type")
	}
	return nil
}

func (s *session) write(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-s.out:
			if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := s.conn.WriteJSON(msg); err != nil {
				s.logger.Warn("failed to write to websocket", slog.String("type", msg.Type), logger.Err(err))
				return
			}
		}
	}
}

func (s *session) ping(context.Context) error {
	return s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// send queues a message for the page. It blocks while the outbox is full.
func (s *session) send(msgType string, payload any) {
	select {
	case s.out <- Message{Type: msgType, Payload: payload}:
	case <-s.ctx.Done():
	}
}

func (s *session) dragEnded(coord geo.Coordinate) {
	s.dragLock.Lock()
	fn := s.onDragEnd
	s.dragLock.Unlock()
	if fn == nil {
		s.logger.Debug("ignoring drag before the marker was created")
		return
	}
	fn(coord)
}

func decode(raw json.RawMessage, target any) error {
	if len(raw) == 0 {
		return errors.New("missing payload")
	}
	return json.Unmarshal(raw, target)
}

func positionError(code int) error {
	switch code {
	case PositionUnsupported:
		return fmt.Errorf("%w: browser has no geolocation support", devicegeo.ErrUnavailable)
	case PositionPermissionDenied:
		return fmt.Errorf("%w: browser reported permission denied", devicegeo.ErrDenied)
	default:
		return fmt.Errorf("%w: browser reported error code %d", devicegeo.ErrNoFix, code)
	}
}

// view projects the feedback onto the page.
type view struct{ *session }

func (v view) SetBusy(surface feedback.Surface, busy bool, label string) {
	v.send(MsgBusy, BusyPayload{Surface: surface.String(), Busy: busy, Label: label})
}

func (v view) SetField(field feedback.Field, text string) {
	v.send(MsgField, FieldPayload{Field: field.String(), Text: text})
}

func (v view) Alert(message string) {
	v.send(MsgAlert, TextPayload{Message: message})
}

func (v view) ShowResults()    { v.send(MsgResults, nil) }
func (v view) ScrollIntoView() { v.send(MsgScroll, nil) }

func (v view) ShowNotification(message string) {
	v.send(MsgNotify, TextPayload{Message: message})
}

func (v view) HideNotification() { v.send(MsgNotifyHide, nil) }

// pageMap projects the map onto the Leaflet map of the page. The page reports when the map container
// became visible.
type pageMap struct{ *session }

func (m pageMap) NotifiesVisibility() bool { return true }

func (m pageMap) ShowContainer() { m.send(MsgMapShow, nil) }

func (m pageMap) Create(container string, center geo.Coordinate, zoom int) error {
	m.send(MsgMapCreate, MapCreatePayload{Container: container, Lat: center.Lat, Lon: center.Lon, Zoom: zoom})
	return nil
}

func (m pageMap) AddTileLayer(layer mapsync.TileLayer) error {
	m.send(MsgTileLayer, TileLayerPayload{
		URL:         layer.URLTemplate,
		Attribution: layer.Attribution,
		MaxZoom:     layer.MaxZoom,
	})
	return nil
}

func (m pageMap) SetView(center geo.Coordinate, zoom int) {
	m.send(MsgView, ViewPayload{Lat: center.Lat, Lon: center.Lon, Zoom: zoom})
}

func (m pageMap) AddMarker(at geo.Coordinate, draggable bool) {
	m.send(MsgMarkerAdd, MarkerPayload{Lat: at.Lat, Lon: at.Lon, Draggable: draggable})
}

func (m pageMap) MoveMarker(at geo.Coordinate) {
	m.send(MsgMarkerMove, MarkerPayload{Lat: at.Lat, Lon: at.Lon})
}

func (m pageMap) InvalidateSize() { m.send(MsgInvalidate, nil) }

func (m pageMap) OnDragEnd(fn func(geo.Coordinate)) {
	m.dragLock.Lock()
	defer m.dragLock.Unlock()
	m.onDragEnd = fn
}

type locateResult struct {
	coord geo.Coordinate
	err   error
}

// browserLocator asks the page for the browser's position. Concurrent calls share one browser request.
type browserLocator struct {
	send    func(string, any)
	timeout time.Duration

	mu      sync.Mutex
	waiting []chan locateResult
}

func (b *browserLocator) Name() string {
	return "browser geolocation"
}

func (b *browserLocator) Locate(ctx context.Context) (geo.Coordinate, error) {
	result := make(chan locateResult, 1)
	b.mu.Lock()
	first := len(b.waiting) == 0
	b.waiting = append(b.waiting, result)
	b.mu.Unlock()

	if first {
		b.send(MsgGeolocate, GeolocatePayload{Timeout: b.timeout.Milliseconds()})
	}

	select {
	case res := <-result:
		return res.coord, res.err
	case <-ctx.Done():
		b.remove(result)
		return geo.Coordinate{}, ctx.Err()
	}
}

func (b *browserLocator) deliver(coord geo.Coordinate, err error) {
	b.mu.Lock()
	waiting := b.waiting
	b.waiting = nil
	b.mu.Unlock()

	for _, result := range waiting {
		result <- locateResult{coord: coord, err: err}
	}
}

func (b *browserLocator) remove(result chan locateResult) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, waiting := range b.waiting {
		if waiting == result {
			b.waiting = append(b.waiting[:i], b.waiting[i+1:]...)
			return
		}
	}
}
