// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package server

import (
	"encoding/json"
)

// Message types sent by the page.
const (
	MsgGPS           = "gps"
	MsgSearch        = "search"
	MsgDragEnd       = "dragend"
	MsgResize        = "resize"
	MsgVisible       = "visible"
	MsgDismiss       = "dismiss"
	MsgPosition      = "position"
	MsgPositionError = "position_error"
)

// Message types sent to the page.
const (
	MsgBusy       = "busy"
	MsgField      = "field"
	MsgAlert      = "alert"
	MsgResults    = "results"
	MsgScroll     = "scroll"
	MsgNotify     = "notify"
	MsgNotifyHide = "notify_hide"
	MsgMapShow    = "map_show"
	MsgMapCreate  = "map_create"
	MsgTileLayer  = "tile_layer"
	MsgView       = "view"
	MsgMarkerAdd  = "marker_add"
	MsgMarkerMove = "marker_move"
	MsgInvalidate = "invalidate"
	MsgGeolocate  = "geolocate"
)

// Position error codes reported by the page. The codes 1 to 3 are the ones of the browser's
// GeolocationPositionError, 0 is sent if the browser has no geolocation support at all.
const (
	PositionUnsupported      = 0
	PositionPermissionDenied = 1
	PositionUnavailable      = 2
	PositionTimeout          = 3
)

// Message is the envelope of every websocket message.
type Message struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type BusyPayload struct {
	Surface string `json:"surface"`
	Busy    bool   `json:"busy"`
	Label   string `json:"label"`
}

type FieldPayload struct {
	Field string `json:"field"`
	Text  string `json:"text"`
}

type TextPayload struct {
	Message string `json:"message"`
}

type MapCreatePayload struct {
	Container string  `json:"container"`
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
	Zoom      int     `json:"zoom"`
}

type TileLayerPayload struct {
	URL         string `json:"url"`
	Attribution string `json:"attribution"`
	MaxZoom     int    `json:"max_zoom"`
}

type ViewPayload struct {
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
	Zoom int     `json:"zoom"`
}

type MarkerPayload struct {
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
	Draggable bool    `json:"draggable,omitempty"`
}

// GeolocatePayload asks the page for the browser's position. Timeout is in milliseconds and does not
// include the time the browser's permission prompt is open.
type GeolocatePayload struct {
	Timeout int64 `json:"timeout"`
}

type SearchPayload struct {
	Query   string `json:"query"`
	Country string `json:"country"`
}

type PositionPayload struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

type PositionErrorPayload struct {
	Code int `json:"code"`
}
