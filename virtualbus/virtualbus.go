// Package virtualbus is the registry of emulated devices keyed by address,
// and the asynchronous control-transfer engine in front of them.
package virtualbus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"slices"
	"sync"
	"time"

	"github.com/Alia5/usbforge/device"
	"github.com/Alia5/usbforge/usb"
	"github.com/Alia5/usbforge/usbip"
)

const basepath = "/sys/devices/pci0000:00/0000:00:08.1/0000:00:04:00.3/usb"

const (
	DefaultBusBase         = 240
	DefaultCompletionDelay = time.Millisecond

	maxAddress = 127
	eventDepth = 64
)

// Address is a device address on the bus.
type Address uint8

var (
	ErrAddressInUse   = errors.New("address already in use")
	ErrInvalidAddress = errors.New("address must be 1..127")
	ErrNoDevice       = errors.New("no device at address")
	ErrClosed         = errors.New("bus closed")
)

// CollisionError reports a second registration at an occupied address,
// naming both call sites.
type CollisionError struct {
	Address   Address
	Existing  string
	Attempted string
}

func (e *CollisionError) Error() string {
	return fmt.Sprintf("address 0x%02x registered at %s, again at %s", uint8(e.Address), e.Existing, e.Attempted)
}

func (e *CollisionError) Unwrap() error { return ErrAddressInUse }

// Bus manages emulated devices keyed by address. Devices at different
// addresses are independent; requests to one device are serialized by the
// device itself.
type Bus struct {
	mutex   sync.Mutex
	base    uint8
	delay   time.Duration
	logger  *slog.Logger
	devices map[Address]*busDevice
	events  chan *Transfer
	closed  bool
}

type busDevice struct {
	dev    *device.Emulated
	site   string
	ctx    context.Context
	cancel context.CancelFunc
}

// Option configures a Bus.
type Option func(*Bus)

// WithBusBase sets the USB-IP bus number of addresses 0x00-0x0F; each
// following group of sixteen addresses sits on the next bus.
func WithBusBase(base uint8) Option { return func(b *Bus) { b.base = base } }

// WithCompletionDelay sets the delay between computing a response and
// signalling completion.
func WithCompletionDelay(d time.Duration) Option { return func(b *Bus) { b.delay = d } }

func WithLogger(l *slog.Logger) Option { return func(b *Bus) { b.logger = l } }

// New creates an empty bus.
func New(opts ...Option) *Bus {
	b := &Bus{
		base:    DefaultBusBase,
		delay:   DefaultCompletionDelay,
		logger:  slog.Default(),
		devices: make(map[Address]*busDevice),
		events:  make(chan *Transfer, eventDepth),
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

func callSite(skip int) string {
	_, file, line, ok := runtime.Caller(skip + 1)
	if !ok {
		return "unknown"
	}
	return fmt.Sprintf("%s:%d", file, line)
}

// Add registers dev at addr.
func (b *Bus) Add(addr Address, dev *device.Emulated) error {
	site := callSite(1)
	if addr == 0 || addr > maxAddress {
		return fmt.Errorf("%w: 0x%02x", ErrInvalidAddress, uint8(addr))
	}
	if dev == nil {
		return fmt.Errorf("device at 0x%02x is nil", uint8(addr))
	}

	b.mutex.Lock()
	defer b.mutex.Unlock()
	if b.closed {
		return ErrClosed
	}
	if existing, ok := b.devices[addr]; ok {
		return &CollisionError{Address: addr, Existing: existing.site, Attempted: site}
	}
	ctx, cancel := context.WithCancel(context.Background())
	b.devices[addr] = &busDevice{dev: dev, site: site, ctx: ctx, cancel: cancel}
	b.logger.Debug("device added", "addr", addr, "vid", fmt.Sprintf("%04x", dev.VendorID()), "pid", fmt.Sprintf("%04x", dev.ProductID()))
	return nil
}

// Remove unregisters the device at addr and cancels its pending transfers.
func (b *Bus) Remove(addr Address) error {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	d, ok := b.devices[addr]
	if !ok {
		return fmt.Errorf("%w: 0x%02x", ErrNoDevice, uint8(addr))
	}
	d.cancel()
	delete(b.devices, addr)
	b.logger.Debug("device removed", "addr", addr)
	return nil
}

// Lookup returns the device at addr.
func (b *Bus) Lookup(addr Address) (*device.Emulated, bool) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	d, ok := b.devices[addr]
	if !ok {
		return nil, false
	}
	return d.dev, true
}

// DeviceInfo is the USB-IP identity of a registered device.
type DeviceInfo struct {
	Address Address
	Bus     uint32
	Port    uint32
	Speed   uint32
	Meta    usbip.ExportMeta
}

// BusID is the "<bus>-<port>" identifier a USB-IP client imports.
func (i DeviceInfo) BusID() string { return fmt.Sprintf("%d-%d", i.Bus, i.Port) }

func (b *Bus) info(addr Address, dev *device.Emulated) DeviceInfo {
	bus := uint32(b.base) + uint32(addr>>4)
	port := uint32(addr & 0x0F)
	speed := usbip.SpeedFull
	if dev.USBVersion() == usb.NewBCD(2, 0) {
		speed = usbip.SpeedHigh
	}
	busID := fmt.Sprintf("%d-%d", bus, port)
	return DeviceInfo{
		Address: addr,
		Bus:     bus,
		Port:    port,
		Speed:   speed,
		Meta:    usbip.NewExportMeta(fmt.Sprintf("%s%d/%s", basepath, bus, busID), busID, bus, port),
	}
}

// Info returns the USB-IP identity of the device at addr.
func (b *Bus) Info(addr Address) (DeviceInfo, error) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	d, ok := b.devices[addr]
	if !ok {
		return DeviceInfo{}, fmt.Errorf("%w: 0x%02x", ErrNoDevice, uint8(addr))
	}
	return b.info(addr, d.dev), nil
}

// Entry is one registered device.
type Entry struct {
	DeviceInfo
	Device *device.Emulated
}

// Devices returns all registered devices ordered by address.
func (b *Bus) Devices() []Entry {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	out := make([]Entry, 0, len(b.devices))
	for addr, d := range b.devices {
		out = append(out, Entry{DeviceInfo: b.info(addr, d.dev), Device: d.dev})
	}
	slices.SortFunc(out, func(a, b Entry) int { return int(a.Address) - int(b.Address) })
	return out
}

// Close removes every device, cancelling their pending transfers. The
// events channel stays open.
func (b *Bus) Close() error {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	for addr, d := range b.devices {
		d.cancel()
		delete(b.devices, addr)
	}
	b.closed = true
	return nil
}

// Events delivers every completed transfer. Delivery is best effort: when
// nobody drains the channel, signals are dropped.
func (b *Bus) Events() <-chan *Transfer { return b.events }

func (b *Bus) signal(t *Transfer) {
	select {
	case b.events <- t:
	default:
	}
}
