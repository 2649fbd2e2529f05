// Package device models an emulated USB device that answers standard
// control transfers from its encoded descriptors.
package device

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/Alia5/usbforge/usb"
)

// StringSource answers string descriptor lookups. *usb.Dictionary is one.
type StringSource interface {
	Get(index uint8, lang usb.LangID) ([]byte, bool)
}

// Config is the static description of a device. All buffers are encoded
// descriptors, typically from usb.Compose.
type Config struct {
	Device         []byte
	Qualifier      []byte
	Configurations [][]byte
	Strings        StringSource

	// InitialConfiguration is a bConfigurationValue applied at construction
	// as if by SET_CONFIGURATION. Zero leaves the device unconfigured.
	InitialConfiguration uint8

	// BusPowered clears the self-powered bit reported by GET_STATUS.
	BusPowered bool
}

// InterfaceInfo summarizes one interface descriptor of a configuration.
type InterfaceInfo struct {
	Number    uint8
	Alternate uint8
	Class     usb.ClassCode
	SubClass  uint8
	Protocol  uint8
}

// Emulated is one emulated device. Descriptor buffers are immutable after
// New; the configuration, alternate settings, address and status are
// guarded by a mutex, so concurrent Control calls are serialized.
type Emulated struct {
	device     []byte
	qualifier  []byte
	configs    [][]byte
	interfaces [][]InterfaceInfo
	strings    StringSource

	mu      sync.Mutex
	active  int
	alt     map[uint8]uint8
	address uint8
	status  uint16
}

// New validates cfg and returns a device in its initial state.
func New(cfg Config) (*Emulated, error) {
	if len(cfg.Device) != usb.DeviceDescLen || cfg.Device[0] != usb.DeviceDescLen ||
		usb.DescriptorType(cfg.Device[1]) != usb.DescriptorTypeDevice {
		return nil, fmt.Errorf("%w: got %d bytes", ErrDeviceDescriptorSize, len(cfg.Device))
	}
	if n := len(cfg.Qualifier); n != 0 && (n != usb.DeviceQualifierDescLen ||
		usb.DescriptorType(cfg.Qualifier[1]) != usb.DescriptorTypeDeviceQualifier) {
		return nil, fmt.Errorf("%w: got %d bytes", ErrQualifierSize, n)
	}
	if declared := int(cfg.Device[17]); declared != len(cfg.Configurations) {
		return nil, fmt.Errorf("%w: declared %d, supplied %d", ErrConfigurationCount, declared, len(cfg.Configurations))
	}

	e := &Emulated{
		device:  clone(cfg.Device),
		strings: cfg.Strings,
		active:  -1,
		alt:     map[uint8]uint8{},
		status:  usb.StatusSelfPowered,
	}
	if len(cfg.Qualifier) > 0 {
		e.qualifier = clone(cfg.Qualifier)
	}
	if cfg.BusPowered {
		e.status = 0
	}
	for i, c := range cfg.Configurations {
		infos, err := parseConfiguration(c)
		if err != nil {
			return nil, fmt.Errorf("configuration %d: %w", i, err)
		}
		e.configs = append(e.configs, clone(c))
		e.interfaces = append(e.interfaces, infos)
		for _, in := range infos {
			e.alt[in.Number] = 0
		}
	}
	if cfg.InitialConfiguration != 0 {
		if !e.selectConfiguration(cfg.InitialConfiguration) {
			return nil, fmt.Errorf("%w: %d", ErrUnknownConfiguration, cfg.InitialConfiguration)
		}
	}
	return e, nil
}

func parseConfiguration(c []byte) ([]InterfaceInfo, error) {
	if len(c) < usb.ConfigDescLen || usb.DescriptorType(c[1]) != usb.DescriptorTypeConfiguration {
		return nil, ErrMalformedConfiguration
	}
	if total := int(binary.LittleEndian.Uint16(c[2:4])); total != len(c) {
		return nil, fmt.Errorf("%w: wTotalLength %d, buffer %d bytes", ErrMalformedConfiguration, total, len(c))
	}
	spans, err := usb.Walk(c)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedConfiguration, err)
	}
	var infos []InterfaceInfo
	for _, s := range spans {
		if s.Type != usb.DescriptorTypeInterface || s.Length < usb.InterfaceDescLen {
			continue
		}
		b := c[s.Offset:]
		infos = append(infos, InterfaceInfo{
			Number:    b[2],
			Alternate: b[3],
			Class:     usb.ClassCode(b[5]),
			SubClass:  b[6],
			Protocol:  b[7],
		})
	}
	return infos, nil
}

func clone(b []byte) []byte { return append([]byte(nil), b...) }

// selectConfiguration applies SET_CONFIGURATION semantics; the caller holds
// mu or owns e exclusively.
func (e *Emulated) selectConfiguration(value uint8) bool {
	idx := -1
	if value != 0 {
		for i, c := range e.configs {
			if c[usb.ConfigValueOffset] == value {
				idx = i
				break
			}
		}
		if idx < 0 {
			return false
		}
	}
	e.active = idx
	for n := range e.alt {
		e.alt[n] = 0
	}
	return true
}

// Control serves one standard control request. It returns the response
// truncated to wLength, ErrNotFound for a handled request that could not
// be satisfied, or ErrStall when no handler took the request.
func (e *Emulated) Control(req usb.SetupPacket) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	x := &exchange{dev: e}
	if !standardRequests.Dispatch(x, req) {
		return nil, ErrStall
	}
	if x.err != nil {
		return nil, x.err
	}
	if x.untruncated || len(x.data) <= int(req.Length) {
		return clone(x.data), nil
	}
	return clone(x.data[:req.Length]), nil
}

// ActiveConfiguration returns the index and bConfigurationValue of the
// active configuration; ok is false while the device is unconfigured.
func (e *Emulated) ActiveConfiguration() (index int, value uint8, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active < 0 {
		return -1, 0, false
	}
	return e.active, e.configs[e.active][usb.ConfigValueOffset], true
}

// AlternateSetting returns the current alternate setting of an interface
// declared by any configuration.
func (e *Emulated) AlternateSetting(intf uint8) (uint8, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	alt, ok := e.alt[intf]
	return alt, ok
}

// Address is the last address assigned by SET_ADDRESS.
func (e *Emulated) Address() uint8 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.address
}

// Status is the GET_STATUS(Device) bitmap.
func (e *Emulated) Status() uint16 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// DeviceDescriptor returns a copy of the device descriptor.
func (e *Emulated) DeviceDescriptor() []byte { return clone(e.device) }

// Qualifier returns a copy of the device qualifier, or nil.
func (e *Emulated) Qualifier() []byte {
	if e.qualifier == nil {
		return nil
	}
	return clone(e.qualifier)
}

// Configuration returns a copy of configuration i.
func (e *Emulated) Configuration(i int) ([]byte, bool) {
	if i < 0 || i >= len(e.configs) {
		return nil, false
	}
	return clone(e.configs[i]), true
}

func (e *Emulated) NumConfigurations() int { return len(e.configs) }

// Interfaces lists the interface descriptors of configuration i in wire
// order, alternates included.
func (e *Emulated) Interfaces(i int) []InterfaceInfo {
	if i < 0 || i >= len(e.interfaces) {
		return nil
	}
	return append([]InterfaceInfo(nil), e.interfaces[i]...)
}

func (e *Emulated) USBVersion() usb.BCD { return usb.BCD(binary.LittleEndian.Uint16(e.device[2:4])) }
func (e *Emulated) Class() usb.ClassCode { return usb.ClassCode(e.device[4]) }
func (e *Emulated) SubClass() uint8      { return e.device[5] }
func (e *Emulated) Protocol() uint8      { return e.device[6] }
func (e *Emulated) VendorID() uint16     { return binary.LittleEndian.Uint16(e.device[8:10]) }
func (e *Emulated) ProductID() uint16    { return binary.LittleEndian.Uint16(e.device[10:12]) }
func (e *Emulated) Release() usb.BCD     { return usb.BCD(binary.LittleEndian.Uint16(e.device[12:14])) }
