// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package feedback renders the request lifecycle of the location controller: busy indicators of the
// triggering surfaces, user-visible alerts and the results panel.
package feedback

import (
	"github.com/wneessen/postalcode/internal/geo"
	"github.com/wneessen/postalcode/internal/geocode"
)

// Surface is a user affordance that can trigger a resolution.
type Surface int

const (
	SurfaceGPS Surface = iota
	SurfaceSearch
	SurfaceMarker
)

func (s Surface) String() string {
	switch s {
	case SurfaceGPS:
		return "gps"
	case SurfaceSearch:
		return "search"
	case SurfaceMarker:
		return "marker"
	default:
		return "unknown"
	}
}

// Field is one of the read-only result displays.
type Field int

const (
	FieldAddress Field = iota
	FieldPostcode
	FieldCountry
	FieldLatitude
	FieldLongitude
)

func (f Field) String() string {
	switch f {
	case FieldAddress:
		return "address"
	case FieldPostcode:
		return "postcode"
	case FieldCountry:
		return "country"
	case FieldLatitude:
		return "latitude"
	case FieldLongitude:
		return "longitude"
	default:
		return "unknown"
	}
}

// Label returns the message id of the field's caption.
func (f Field) Label() string {
	switch f {
	case FieldAddress:
		return "Address"
	case FieldPostcode:
		return "Postal Code"
	case FieldCountry:
		return "Country"
	case FieldLatitude:
		return "Latitude"
	case FieldLongitude:
		return "Longitude"
	default:
		return f.String()
	}
}

// Fields lists all result fields in display order.
var Fields = []Field{FieldAddress, FieldPostcode, FieldCountry, FieldLatitude, FieldLongitude}

// Messages rendered by the feedback. They double as message ids of the translation catalogues.
const (
	LabelLoading = "Loading"
	LabelGPS     = "Use My Current Location"
	LabelSearch  = "Find Postal Code"

	AlertNotFound           = "Location not found. Please try again."
	AlertTransportError     = "An error occurred while fetching the location."
	AlertGeolocationFailed  = "Unable to retrieve your location."
	AlertGeolocationMissing = "Geolocation is not supported by your device."
	AlertIncompleteSearch   = "Please select a country and enter a location."
	NotificationMarkerHint  = "You can move the map marker to target a more precise location."
)

// View is the write-only user interface surface. Implementations are only called from the
// controller's event loop.
type View interface {
	SetBusy(surface Surface, busy bool, label string)
	SetField(field Field, text string)
	Alert(message string)
	ShowResults()
	ScrollIntoView()
	ShowNotification(message string)
	HideNotification()
}

// Translator translates user-visible messages.
type Translator interface {
	Get(msgID string) string
}

// Feedback tracks the busy state per surface and renders resolution outcomes. It is not safe for
// concurrent use.
type Feedback struct {
	view View
	t    Translator

	showHint     bool
	hintShown    bool
	resultsShown bool
	tickets      map[Surface]uint64
	busy         map[Surface]bool
	lastTicket   uint64
}

// New returns a Feedback rendering to view. If showHint is set, the marker hint notification is shown
// after the first successful resolution.
func New(view View, t Translator, showHint bool) *Feedback {
	return &Feedback{
		view:     view,
		t:        t,
		showHint: showHint,
		tickets:  make(map[Surface]uint64),
		busy:     make(map[Surface]bool),
	}
}

// Begin marks the surface as busy and returns the ticket that ends this busy period.
func (f *Feedback) Begin(surface Surface) uint64 {
	f.lastTicket++
	f.tickets[surface] = f.lastTicket
	if !f.busy[surface] {
		f.busy[surface] = true
		f.view.SetBusy(surface, true, f.t.Get(LabelLoading))
	}
	return f.lastTicket
}

// End reverts the surface to idle if ticket belongs to the surface's latest trigger. Tickets of
// superseded triggers leave the surface busy.
func (f *Feedback) End(surface Surface, ticket uint64) {
	if f.tickets[surface] != ticket || !f.busy[surface] {
		return
	}
	f.busy[surface] = false
	f.view.SetBusy(surface, false, label(f.t, surface))
}

// Resolved renders a successful resolution into the result fields, reveals the results panel and
// scrolls it into view.
func (f *Feedback) Resolved(address geocode.AddressDetails, coord geo.Coordinate) {
	f.view.SetField(FieldAddress, address.DisplayName.String())
	f.view.SetField(FieldPostcode, address.Postcode.String())
	f.view.SetField(FieldCountry, address.Country.String())
	f.view.SetField(FieldLatitude, coord.LatString())
	f.view.SetField(FieldLongitude, coord.LonString())

	if !f.resultsShown {
		f.resultsShown = true
		f.view.ShowResults()
	}
	f.view.ScrollIntoView()

	if f.showHint && !f.hintShown {
		f.hintShown = true
		f.view.ShowNotification(f.t.Get(NotificationMarkerHint))
	}
}

// MirrorCoordinate shows an unconfirmed coordinate in the coordinate fields. The address fields keep
// their text until the resolution of the coordinate completes.
func (f *Feedback) MirrorCoordinate(coord geo.Coordinate) {
	f.view.SetField(FieldLatitude, coord.DisplayLat())
	f.view.SetField(FieldLongitude, coord.DisplayLon())
}

// Failed alerts the user about a resolution that yielded no location.
func (f *Feedback) Failed(kind geocode.Kind) {
	switch kind {
	case geocode.KindNotFound:
		f.view.Alert(f.t.Get(AlertNotFound))
	default:
		f.view.Alert(f.t.Get(AlertTransportError))
	}
}

// GeolocationFailed alerts the user that the device position could not be determined. unsupported
// is set if the device has no geolocation capability at all.
func (f *Feedback) GeolocationFailed(unsupported bool) {
	if unsupported {
		f.view.Alert(f.t.Get(AlertGeolocationMissing))
		return
	}
	f.view.Alert(f.t.Get(AlertGeolocationFailed))
}

// IncompleteSearch alerts the user that country or search text are missing.
func (f *Feedback) IncompleteSearch() {
	f.view.Alert(f.t.Get(AlertIncompleteSearch))
}

// DismissHint hides the marker hint notification. It is not shown again.
func (f *Feedback) DismissHint() {
	f.hintShown = true
	f.view.HideNotification()
}

// Labels returns the idle labels of the triggering surfaces.
func Labels(t Translator) map[Surface]string {
	return map[Surface]string{
		SurfaceGPS:    label(t, SurfaceGPS),
		SurfaceSearch: label(t, SurfaceSearch),
	}
}

func label(t Translator, surface Surface) string {
	switch surface {
	case SurfaceGPS:
		return t.Get(LabelGPS)
	case SurfaceSearch:
		return t.Get(LabelSearch)
	default:
		return ""
	}
}
