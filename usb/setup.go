package usb

import (
	"encoding/binary"
	"fmt"
)

// SetupPacketSize is the size of a control SETUP packet in bytes.
const SetupPacketSize = 8

const (
	requestTypeDirectionMask = 0x80
	requestTypeKindMask      = 0x60
	requestTypeRecipientMask = 0x1F
)

// SetupPacket is the 8-byte header of a control transfer (USB 2.0 Table 9-2).
type SetupPacket struct {
	RequestType uint8 // bmRequestType
	Request     RequestCode
	Value       uint16
	Index       uint16
	Length      uint16
}

// ParseSetup decodes a setup packet from the first 8 bytes of data.
func ParseSetup(data []byte) (SetupPacket, error) {
	if len(data) < SetupPacketSize {
		return SetupPacket{}, fmt.Errorf("%w: %d bytes", ErrSetupPacketTooShort, len(data))
	}
	return SetupPacket{
		RequestType: data[0],
		Request:     RequestCode(data[1]),
		Value:       binary.LittleEndian.Uint16(data[2:4]),
		Index:       binary.LittleEndian.Uint16(data[4:6]),
		Length:      binary.LittleEndian.Uint16(data[6:8]),
	}, nil
}

// MarshalTo writes the packet into buf and returns the number of bytes
// written, or 0 if buf is too small.
func (s SetupPacket) MarshalTo(buf []byte) int {
	if len(buf) < SetupPacketSize {
		return 0
	}
	buf[0] = s.RequestType
	buf[1] = uint8(s.Request)
	binary.LittleEndian.PutUint16(buf[2:4], s.Value)
	binary.LittleEndian.PutUint16(buf[4:6], s.Index)
	binary.LittleEndian.PutUint16(buf[6:8], s.Length)
	return SetupPacketSize
}

// Bytes returns the wire form of the packet.
func (s SetupPacket) Bytes() []byte {
	b := make([]byte, SetupPacketSize)
	s.MarshalTo(b)
	return b
}

func (s SetupPacket) Direction() Direction { return Direction(s.RequestType & requestTypeDirectionMask) }
func (s SetupPacket) Kind() RequestKind    { return RequestKind(s.RequestType & requestTypeKindMask) }
func (s SetupPacket) Recipient() Recipient { return Recipient(s.RequestType & requestTypeRecipientMask) }

// DescriptorType is the high byte of wValue in GET_DESCRIPTOR.
func (s SetupPacket) DescriptorType() DescriptorType { return DescriptorType(s.Value >> 8) }

// DescriptorIndex is the low byte of wValue in GET_DESCRIPTOR.
func (s SetupPacket) DescriptorIndex() uint8 { return uint8(s.Value) }

// LangID is wIndex of a string GET_DESCRIPTOR.
func (s SetupPacket) LangID() LangID { return LangID(s.Index) }

// InterfaceNumber is the low byte of wIndex for interface requests.
func (s SetupPacket) InterfaceNumber() uint8 { return uint8(s.Index) }

func (s SetupPacket) String() string {
	return fmt.Sprintf("%s %s %s %s wValue=0x%04x wIndex=0x%04x wLength=%d",
		s.Direction(), s.Kind(), s.Recipient(), s.Request, s.Value, s.Index, s.Length)
}

// RequestType assembles bmRequestType.
func RequestType(dir Direction, kind RequestKind, rcpt Recipient) uint8 {
	return uint8(dir) | uint8(kind) | uint8(rcpt)
}

// Standard builds a standard request.
func Standard(dir Direction, rcpt Recipient, req RequestCode, value, index, length uint16) SetupPacket {
	return SetupPacket{
		RequestType: RequestType(dir, KindStandard, rcpt),
		Request:     req,
		Value:       value,
		Index:       index,
		Length:      length,
	}
}

// GetDescriptor builds GET_DESCRIPTOR(dt, index) with wIndex set to lang.
func GetDescriptor(dt DescriptorType, index uint8, lang LangID, length uint16) SetupPacket {
	return Standard(DeviceToHost, RecipientDevice, RequestGetDescriptor,
		uint16(dt)<<8|uint16(index), uint16(lang), length)
}

func GetConfiguration() SetupPacket {
	return Standard(DeviceToHost, RecipientDevice, RequestGetConfiguration, 0, 0, 1)
}

func SetConfiguration(value uint8) SetupPacket {
	return Standard(HostToDevice, RecipientDevice, RequestSetConfiguration, uint16(value), 0, 0)
}

func GetInterface(intf uint8) SetupPacket {
	return Standard(DeviceToHost, RecipientInterface, RequestGetInterface, 0, uint16(intf), 1)
}

func SetInterface(intf, alt uint8) SetupPacket {
	return Standard(HostToDevice, RecipientInterface, RequestSetInterface, uint16(alt), uint16(intf), 0)
}

func GetStatus(rcpt Recipient, index uint16) SetupPacket {
	return Standard(DeviceToHost, rcpt, RequestGetStatus, 0, index, 2)
}

func SetAddress(addr uint8) SetupPacket {
	return Standard(HostToDevice, RecipientDevice, RequestSetAddress, uint16(addr), 0, 0)
}

func SetFeature(rcpt Recipient, feature, index uint16) SetupPacket {
	return Standard(HostToDevice, rcpt, RequestSetFeature, feature, index, 0)
}

func ClearFeature(rcpt Recipient, feature, index uint16) SetupPacket {
	return Standard(HostToDevice, rcpt, RequestClearFeature, feature, index, 0)
}
