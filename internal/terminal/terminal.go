// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package terminal renders the lookup surfaces as plain text for one-shot command line lookups.
package terminal

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/mattn/go-runewidth"

	"github.com/wneessen/postalcode/internal/feedback"
	"github.com/wneessen/postalcode/internal/geo"
	"github.com/wneessen/postalcode/internal/mapsync"
)

const (
	alertPrefix        = "! "
	notificationPrefix = "i "
	separator          = " : "
)

// View collects the results panel in memory and writes alerts and busy labels to a status writer as
// they happen.
type View struct {
	t feedback.Translator

	mu           sync.Mutex
	status       io.Writer
	fields       map[feedback.Field]string
	alerts       []string
	notification string
	visible      bool
}

// NewView returns a View that reports progress and alerts to status.
func NewView(status io.Writer, t feedback.Translator) *View {
	return &View{
		t:      t,
		status: status,
		fields: make(map[feedback.Field]string),
	}
}

func (v *View) SetBusy(_ feedback.Surface, busy bool, label string) {
	if !busy {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	_, _ = fmt.Fprintf(v.status, "%s...\n", label)
}

func (v *View) SetField(field feedback.Field, text string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.fields[field] = text
}

func (v *View) Alert(message string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.alerts = append(v.alerts, message)
	_, _ = fmt.Fprintln(v.status, alertPrefix+message)
}

func (v *View) ShowResults() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.visible = true
}

// ScrollIntoView is a no-op, the results panel is written at the end of the lookup.
func (v *View) ScrollIntoView() {}

func (v *View) ShowNotification(message string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.notification = message
}

func (v *View) HideNotification() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.notification = ""
}

// Alerts returns the alerts raised so far.
func (v *View) Alerts() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]string(nil), v.alerts...)
}

// Field returns the current text of a result field.
func (v *View) Field(field feedback.Field) string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.fields[field]
}

// Render writes the results panel to w. Field captions are translated and aligned by their display
// width. If m is not nil, the tile under the marker is appended. Nothing is written while the panel is
// hidden.
func (v *View) Render(w io.Writer, m *Map) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.visible {
		return nil
	}

	captions := make([]string, len(feedback.Fields))
	width := 0
	for i, field := range feedback.Fields {
		captions[i] = v.t.Get(field.Label())
		width = max(width, runewidth.StringWidth(captions[i]))
	}
	mapCaption := v.t.Get("Map")
	if m != nil {
		width = max(width, runewidth.StringWidth(mapCaption))
	}

	var sb strings.Builder
	for i, field := range feedback.Fields {
		sb.WriteString(runewidth.FillRight(captions[i], width))
		sb.WriteString(separator)
		sb.WriteString(v.fields[field])
		sb.WriteByte('\n')
	}
	if m != nil {
		if tile := m.TileURL(); tile != "" {
			sb.WriteString(runewidth.FillRight(mapCaption, width))
			sb.WriteString(separator)
			sb.WriteString(tile)
			sb.WriteByte('\n')
		}
	}
	if v.notification != "" {
		sb.WriteString(notificationPrefix + v.notification + "\n")
	}

	if _, err := io.WriteString(w, sb.String()); err != nil {
		return fmt.Errorf("failed to write results: %w", err)
	}
	return nil
}

// Map is a headless map. It tracks the view and marker so the tile under the marker can be printed.
// Markers can't be dragged in a terminal, so the drag callback is stored but never called.
type Map struct {
	mu        sync.Mutex
	created   bool
	container string
	center    geo.Coordinate
	marker    geo.Coordinate
	hasMarker bool
	zoom      int
	layer     mapsync.TileLayer
	hasLayer  bool
	onDragEnd func(geo.Coordinate)
}

// NewMap returns an empty headless map.
func NewMap() *Map {
	return &Map{}
}

// NotifiesVisibility reports true, a terminal has no hidden containers to wait for.
func (m *Map) NotifiesVisibility() bool { return true }

func (m *Map) ShowContainer() {}

func (m *Map) Create(container string, center geo.Coordinate, zoom int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.created {
		return fmt.Errorf("map %q already created", m.container)
	}
	m.created = true
	m.container = container
	m.center = center
	m.zoom = zoom
	return nil
}

func (m *Map) AddTileLayer(layer mapsync.TileLayer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.created {
		return mapsync.ErrNotCreated
	}
	m.layer = layer
	m.hasLayer = true
	return nil
}

func (m *Map) SetView(center geo.Coordinate, zoom int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.center = center
	m.zoom = zoom
}

func (m *Map) AddMarker(at geo.Coordinate, _ bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.marker = at
	m.hasMarker = true
}

func (m *Map) MoveMarker(at geo.Coordinate) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.marker = at
}

func (m *Map) InvalidateSize() {}

func (m *Map) OnDragEnd(fn func(geo.Coordinate)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onDragEnd = fn
}

// Center returns the current view center and zoom.
func (m *Map) Center() (geo.Coordinate, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.center, m.zoom
}

// TileURL returns the URL of the tile under the marker, or an empty string if no marker or tile layer
// was added yet.
func (m *Map) TileURL() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.hasMarker || !m.hasLayer {
		return ""
	}
	return m.layer.URL(m.marker, m.zoom)
}
