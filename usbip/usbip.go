// Package usbip implements the USB/IP v1.1.1 wire format. All integers are
// big-endian; fixed-size records are encoded with encoding/binary.
package usbip

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Wire constants (network byte order / big-endian)
const (
	Version = 0x0111

	// Management commands
	OpReqDevlist = 0x8005
	OpRepDevlist = 0x0005
	OpReqImport  = 0x8003
	OpRepImport  = 0x0003

	// URB transfer commands
	CmdSubmitCode = 0x00000001
	CmdUnlinkCode = 0x00000002
	RetSubmitCode = 0x00000003
	RetUnlinkCode = 0x00000004

	// Directions used in usbip_header_basic.direction
	DirOut = 0x00000000
	DirIn  = 0x00000001
)

// Kernel usb_device_speed values.
const (
	SpeedLow  uint32 = 1
	SpeedFull uint32 = 2
	SpeedHigh uint32 = 3
)

// URB status values, negated errno as the kernel reports them.
const (
	StatusOK        int32 = 0
	StatusNoDevice  int32 = -19  // -ENODEV
	StatusStall     int32 = -32  // -EPIPE
	StatusConnReset int32 = -104 // -ECONNRESET
)

// OpStatusError is the management reply status for a failed request.
const OpStatusError uint32 = 1

const (
	// MgmtHeaderSize is the OP_* header length.
	MgmtHeaderSize = 8
	// URBHeaderSize is the fixed USBIP_CMD_* / USBIP_RET_* header length.
	URBHeaderSize = 0x30
	// BusIDSize is the busid field of an import request.
	BusIDSize = 32
	// PathSize is the sysfs path field of an exported device.
	PathSize = 256
)

var (
	ErrVersion     = errors.New("unsupported usbip version")
	ErrUnknownCode = errors.New("unknown usbip command")
)

// MgmtHeader is the 8-byte header for management ops (devlist/import).
type MgmtHeader struct {
	Version uint16
	Command uint16
	Status  uint32
}

func (h *MgmtHeader) Write(w io.Writer) error {
	return binary.Write(w, binary.BigEndian, h)
}

// ReadMgmtHeader reads an OP_* header and checks its version.
func ReadMgmtHeader(r io.Reader) (MgmtHeader, error) {
	var h MgmtHeader
	if err := binary.Read(r, binary.BigEndian, &h); err != nil {
		return h, err
	}
	if h.Version != Version {
		return h, fmt.Errorf("%w: 0x%04x", ErrVersion, h.Version)
	}
	return h, nil
}

// DevListReplyHeader is the header after MgmtHeader for OP_REP_DEVLIST.
type DevListReplyHeader struct {
	NDevices uint32
}

func (d *DevListReplyHeader) Write(w io.Writer) error {
	return binary.Write(w, binary.BigEndian, d)
}

// ExportMeta carries USB-IP bus identity for an emulated device.
// Uses fixed-size arrays matching the wire protocol format.
type ExportMeta struct {
	Path     [PathSize]byte
	USBBusId [BusIDSize]byte
	BusId    uint32
	DevId    uint32
}

// NewExportMeta fills the fixed-size fields from their string forms.
func NewExportMeta(path, busID string, bus, dev uint32) ExportMeta {
	var m ExportMeta
	copy(m.Path[:], path)
	copy(m.USBBusId[:], busID)
	m.BusId = bus
	m.DevId = dev
	return m
}

// BusID returns the busid as a string.
func (m *ExportMeta) BusID() string { return cString(m.USBBusId[:]) }

// SysPath returns the sysfs path as a string.
func (m *ExportMeta) SysPath() string { return cString(m.Path[:]) }

func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

// exportedHeader is the fixed 312-byte part of an exported device record.
type exportedHeader struct {
	ExportMeta
	Speed               uint32
	IDVendor            uint16
	IDProduct           uint16
	BcdDevice           uint16
	BDeviceClass        uint8
	BDeviceSubClass     uint8
	BDeviceProtocol     uint8
	BConfigurationValue uint8
	BNumConfigurations  uint8
	BNumInterfaces      uint8
}

// ExportedDevice describes one exported device in devlist/import replies.
type ExportedDevice struct {
	ExportMeta
	Speed uint32

	IDVendor            uint16
	IDProduct           uint16
	BcdDevice           uint16
	BDeviceClass        uint8
	BDeviceSubClass     uint8
	BDeviceProtocol     uint8
	BConfigurationValue uint8
	BNumConfigurations  uint8
	BNumInterfaces      uint8

	// Interfaces are only carried by OP_REP_DEVLIST.
	Interfaces []InterfaceDesc
}

// InterfaceDesc is one (class, subclass, protocol, pad) devlist entry.
type InterfaceDesc struct {
	Class    uint8
	SubClass uint8
	Protocol uint8
	_        uint8
}

func (d *ExportedDevice) header() exportedHeader {
	return exportedHeader{
		ExportMeta:          d.ExportMeta,
		Speed:               d.Speed,
		IDVendor:            d.IDVendor,
		IDProduct:           d.IDProduct,
		BcdDevice:           d.BcdDevice,
		BDeviceClass:        d.BDeviceClass,
		BDeviceSubClass:     d.BDeviceSubClass,
		BDeviceProtocol:     d.BDeviceProtocol,
		BConfigurationValue: d.BConfigurationValue,
		BNumConfigurations:  d.BNumConfigurations,
		BNumInterfaces:      d.BNumInterfaces,
	}
}

// WriteDevlist writes the device entry for OP_REP_DEVLIST (includes interface triplets).
func (d *ExportedDevice) WriteDevlist(w io.Writer) error {
	if err := d.WriteImport(w); err != nil {
		return err
	}
	return binary.Write(w, binary.BigEndian, d.Interfaces)
}

// WriteImport writes the device entry for OP_REP_IMPORT (ends at bNumInterfaces).
func (d *ExportedDevice) WriteImport(w io.Writer) error {
	h := d.header()
	return binary.Write(w, binary.BigEndian, &h)
}

// ReadExportedDevice reads one device record; withInterfaces selects the
// devlist form.
func ReadExportedDevice(r io.Reader, withInterfaces bool) (ExportedDevice, error) {
	var h exportedHeader
	if err := binary.Read(r, binary.BigEndian, &h); err != nil {
		return ExportedDevice{}, err
	}
	d := ExportedDevice{
		ExportMeta:          h.ExportMeta,
		Speed:               h.Speed,
		IDVendor:            h.IDVendor,
		IDProduct:           h.IDProduct,
		BcdDevice:           h.BcdDevice,
		BDeviceClass:        h.BDeviceClass,
		BDeviceSubClass:     h.BDeviceSubClass,
		BDeviceProtocol:     h.BDeviceProtocol,
		BConfigurationValue: h.BConfigurationValue,
		BNumConfigurations:  h.BNumConfigurations,
		BNumInterfaces:      h.BNumInterfaces,
	}
	if withInterfaces && h.BNumInterfaces > 0 {
		d.Interfaces = make([]InterfaceDesc, h.BNumInterfaces)
		if err := binary.Read(r, binary.BigEndian, d.Interfaces); err != nil {
			return ExportedDevice{}, err
		}
	}
	return d, nil
}

// HeaderBasic is common to all URB cmds and replies.
type HeaderBasic struct {
	Command uint32
	Seqnum  uint32
	Devid   uint32
	Dir     uint32
	Ep      uint32
}

// CmdSubmit header (before payload) length is 0x30.
type CmdSubmit struct {
	Basic             HeaderBasic
	TransferFlags     uint32
	TransferBufferLen uint32
	StartFrame        uint32
	NumberOfPackets   uint32
	Interval          uint32
	Setup             [8]byte
}

func (c *CmdSubmit) Write(w io.Writer) error {
	return binary.Write(w, binary.BigEndian, c)
}

// RetSubmit header (before payload) length is 0x30.
type RetSubmit struct {
	Basic           HeaderBasic
	Status          int32
	ActualLength    uint32
	StartFrame      uint32
	NumberOfPackets uint32
	ErrorCount      uint32
	Padding         [8]byte
}

func (r *RetSubmit) Write(w io.Writer) error {
	return binary.Write(w, binary.BigEndian, r)
}

// CmdUnlink and RetUnlink
type CmdUnlink struct {
	Basic        HeaderBasic
	UnlinkSeqnum uint32
	Padding      [24]byte
}

type RetUnlink struct {
	Basic   HeaderBasic
	Status  int32
	Padding [24]byte
}

func (c *CmdUnlink) Write(w io.Writer) error {
	return binary.Write(w, binary.BigEndian, c)
}

func (r *RetUnlink) Write(w io.Writer) error {
	return binary.Write(w, binary.BigEndian, r)
}

// ReadCommand reads one URB command header. It returns a *CmdSubmit or a
// *CmdUnlink; the OUT payload of a submit is left on r.
func ReadCommand(r io.Reader) (any, error) {
	var hdr [URBHeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	switch code := binary.BigEndian.Uint32(hdr[0:4]); code {
	case CmdSubmitCode:
		var c CmdSubmit
		if err := binary.Read(bytes.NewReader(hdr[:]), binary.BigEndian, &c); err != nil {
			return nil, err
		}
		return &c, nil
	case CmdUnlinkCode:
		var c CmdUnlink
		if err := binary.Read(bytes.NewReader(hdr[:]), binary.BigEndian, &c); err != nil {
			return nil, err
		}
		return &c, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownCode, code)
	}
}

// ReadRetSubmit reads a RET_SUBMIT header and, for IN transfers, its payload.
func ReadRetSubmit(r io.Reader, dir uint32) (RetSubmit, []byte, error) {
	var ret RetSubmit
	if err := binary.Read(r, binary.BigEndian, &ret); err != nil {
		return ret, nil, err
	}
	if ret.Basic.Command != RetSubmitCode {
		return ret, nil, fmt.Errorf("%w: expected RET_SUBMIT, got %d", ErrUnknownCode, ret.Basic.Command)
	}
	if dir != DirIn || ret.ActualLength == 0 {
		return ret, nil, nil
	}
	data := make([]byte, ret.ActualLength)
	if _, err := io.ReadFull(r, data); err != nil {
		return ret, nil, err
	}
	return ret, data, nil
}

// ReadRetUnlink reads a RET_UNLINK.
func ReadRetUnlink(r io.Reader) (RetUnlink, error) {
	var ret RetUnlink
	if err := binary.Read(r, binary.BigEndian, &ret); err != nil {
		return ret, err
	}
	if ret.Basic.Command != RetUnlinkCode {
		return ret, fmt.Errorf("%w: expected RET_UNLINK, got %d", ErrUnknownCode, ret.Basic.Command)
	}
	return ret, nil
}
