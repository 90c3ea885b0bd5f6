// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geoclue

import (
	"context"
	"errors"
	"fmt"

	"github.com/godbus/dbus/v5"

	"github.com/wneessen/postalcode/internal/devicegeo"
	"github.com/wneessen/postalcode/internal/geo"
)

const (
	GeoClueBusName   = "org.freedesktop.GeoClue2"
	GeoClueDesktopID = "postalcode"

	managerPath       = "/org/freedesktop/GeoClue2/Manager"
	managerInterface  = "org.freedesktop.GeoClue2.Manager"
	clientInterface   = "org.freedesktop.GeoClue2.Client"
	locationInterface = "org.freedesktop.GeoClue2.Location"
	propertiesSet     = "org.freedesktop.DBus.Properties.Set"

	errAccessDenied   = "org.freedesktop.DBus.Error.AccessDenied"
	errServiceUnknown = "org.freedesktop.DBus.Error.ServiceUnknown"
	errNameHasNoOwner = "org.freedesktop.DBus.Error.NameHasNoOwner"

	// accuracyLevelExact requests the most exact position GeoClue can provide.
	accuracyLevelExact = uint32(8)

	name = "geoclue"
)

// Locator determines the device position through the GeoClue2 service on the system bus. A GeoClue
// agent that declines the request is reported as devicegeo.ErrDenied.
type Locator struct {
	name      string
	desktopID string
	locateFn  func(ctx context.Context) (lat, lon float64, err error)
}

func New() *Locator {
	locator := &Locator{
		name:      name,
		desktopID: GeoClueDesktopID,
	}
	locator.locateFn = locator.locate
	return locator
}

func (l *Locator) Name() string {
	return l.name
}

func (l *Locator) Locate(ctx context.Context) (geo.Coordinate, error) {
	lat, lon, err := l.locateFn(ctx)
	if err != nil {
		return geo.Coordinate{}, err
	}
	return geo.New(lat, lon)
}

func (l *Locator) locate(ctx context.Context) (lat, lon float64, err error) {
	conn, err := dbus.ConnectSystemBus(dbus.WithContext(ctx))
	if err != nil {
		return 0, 0, fmt.Errorf("%w: failed to connect to system bus: %w", devicegeo.ErrUnavailable, err)
	}
	defer func() {
		if closeErr := conn.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("failed to close system bus: %w", closeErr))
		}
	}()

	var clientPath dbus.ObjectPath
	manager := conn.Object(GeoClueBusName, managerPath)
	if err = manager.CallWithContext(ctx, managerInterface+".GetClient", 0).Store(&clientPath); err != nil {
		return 0, 0, mapError("failed to get geoclue client", err)
	}

	client := conn.Object(GeoClueBusName, clientPath)
	if err = client.CallWithContext(ctx, propertiesSet, 0, clientInterface, "DesktopId",
		dbus.MakeVariant(l.desktopID)).Err; err != nil {
		return 0, 0, mapError("failed to set desktop id", err)
	}
	if err = client.CallWithContext(ctx, propertiesSet, 0, clientInterface, "RequestedAccuracyLevel",
		dbus.MakeVariant(accuracyLevelExact)).Err; err != nil {
		return 0, 0, mapError("failed to set requested accuracy level", err)
	}

	if err = conn.AddMatchSignal(
		dbus.WithMatchObjectPath(clientPath),
		dbus.WithMatchInterface(clientInterface),
		dbus.WithMatchMember("LocationUpdated"),
	); err != nil {
		return 0, 0, fmt.Errorf("failed to subscribe to location updates: %w", err)
	}
	signals := make(chan *dbus.Signal, 4)
	conn.Signal(signals)

	if err = client.CallWithContext(ctx, clientInterface+".Start", 0).Err; err != nil {
		return 0, 0, mapError("failed to start geoclue client", err)
	}
	defer client.Call(clientInterface+".Stop", 0)

	for {
		select {
		case <-ctx.Done():
			return 0, 0, fmt.Errorf("%w: %w", devicegeo.ErrNoFix, ctx.Err())
		case signal, ok := <-signals:
			if !ok {
				return 0, 0, fmt.Errorf("%w: system bus connection closed", devicegeo.ErrNoFix)
			}
			path, isUpdate := locationPath(signal, clientPath)
			if !isUpdate {
				continue
			}
			return readLocation(ctx, conn.Object(GeoClueBusName, path))
		}
	}
}

// locationPath returns the path of the new location object announced by a LocationUpdated signal.
func locationPath(signal *dbus.Signal, clientPath dbus.ObjectPath) (dbus.ObjectPath, bool) {
	if signal == nil || signal.Path != clientPath || signal.Name != clientInterface+".LocationUpdated" {
		return "", false
	}
	if len(signal.Body) != 2 {
		return "", false
	}
	path, ok := signal.Body[1].(dbus.ObjectPath)
	return path, ok && path.IsValid()
}

func readLocation(ctx context.Context, location dbus.BusObject) (lat, lon float64, err error) {
	if lat, err = floatProperty(ctx, location, "Latitude"); err != nil {
		return 0, 0, err
	}
	if lon, err = floatProperty(ctx, location, "Longitude"); err != nil {
		return 0, 0, err
	}
	return lat, lon, nil
}

func floatProperty(ctx context.Context, obj dbus.BusObject, property string) (float64, error) {
	var variant dbus.Variant
	if err := obj.CallWithContext(ctx, "org.freedesktop.DBus.Properties.Get", 0, locationInterface,
		property).Store(&variant); err != nil {
		return 0, mapError("failed to read location "+property, err)
	}
	val, ok := variant.Value().(float64)
	if !ok {
		return 0, fmt.Errorf("%w: location %s has unexpected type %s", devicegeo.ErrNoFix, property,
			variant.Signature())
	}
	return val, nil
}

// mapError translates D-Bus error replies into devicegeo errors.
func mapError(msg string, err error) error {
	var name string
	var valErr dbus.Error
	var ptrErr *dbus.Error
	switch {
	case errors.As(err, &valErr):
		name = valErr.Name
	case errors.As(err, &ptrErr):
		name = ptrErr.Name
	}

	switch name {
	case errAccessDenied:
		return fmt.Errorf("%w: %s: %w", devicegeo.ErrDenied, msg, err)
	case errServiceUnknown, errNameHasNoOwner:
		return fmt.Errorf("%w: %s: %w", devicegeo.ErrUnavailable, msg, err)
	default:
		return fmt.Errorf("%s: %w", msg, err)
	}
}
