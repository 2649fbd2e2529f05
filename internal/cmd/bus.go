package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/Alia5/usbforge/device"
	"github.com/Alia5/usbforge/device/demo"
	"github.com/Alia5/usbforge/usb"
	"github.com/Alia5/usbforge/virtualbus"
)

var ErrNoSuchDevice = errors.New("no such device")

// DemoBus builds a bus holding the demo catalog with immediate completion.
func DemoBus(logger *slog.Logger) (*virtualbus.Bus, error) {
	bus := virtualbus.New(virtualbus.WithCompletionDelay(0), virtualbus.WithLogger(logger))
	if err := demo.Populate(bus); err != nil {
		_ = bus.Close()
		return nil, err
	}
	return bus, nil
}

// parseLang accepts an empty string as "no language".
func parseLang(s string) (usb.LangID, error) {
	if s == "" {
		return 0, nil
	}
	return usb.ParseLangID(s)
}

// location is a bus and address as printed by ls. Address 0 matches any
// device on the bus.
type location struct {
	bus  uint32
	addr uint32
}

func (l location) matches(e virtualbus.Entry) bool {
	return l.bus == e.Bus && (l.addr == 0 || l.addr == uint32(e.Address))
}

func parseNumber(s, what string) (uint32, error) {
	n, err := strconv.ParseUint(s, 10, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", what, s)
	}
	return uint32(n), nil
}

func parseLocation(s string) (location, error) {
	busStr, addrStr, hasAddr := strings.Cut(s, ":")
	bus, err := parseNumber(busStr, "bus")
	if err != nil {
		return location{}, err
	}
	loc := location{bus: bus}
	if hasAddr {
		if loc.addr, err = parseNumber(addrStr, "address"); err != nil {
			return location{}, err
		}
	}
	return loc, nil
}

func findDevice(bus *virtualbus.Bus, loc location) (virtualbus.Entry, error) {
	for _, e := range bus.Devices() {
		if loc.addr != 0 && loc.matches(e) {
			return e, nil
		}
	}
	return virtualbus.Entry{}, fmt.Errorf("%w %d:%d", ErrNoSuchDevice, loc.bus, loc.addr)
}

// fetchString reads string index in lang through the bus. It reports false
// for index 0, a not-found answer or a malformed descriptor.
func fetchString(ctx context.Context, bus *virtualbus.Bus, addr virtualbus.Address, index uint8, lang usb.LangID) (string, bool) {
	if index == 0 {
		return "", false
	}
	b, err := bus.Control(ctx, addr, usb.GetDescriptor(usb.DescriptorTypeString, index, lang, 255))
	if err != nil || len(b) == 0 {
		return "", false
	}
	s, err := usb.DecodeStringDescriptor(b)
	if err != nil {
		return "", false
	}
	return s, true
}

func stringIndexes(dev *device.Emulated) (manufacturer, product, serial uint8) {
	d := dev.DeviceDescriptor()
	return d[14], d[15], d[16]
}
