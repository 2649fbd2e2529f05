// Package cdc declares Communications Device Class functional descriptors
// and the CDC control interface.
package cdc

import "github.com/Alia5/usbforge/usb"

// Communications interface subclasses.
const (
	SubclassACM uint8 = 0x02
	SubclassECM uint8 = 0x06
	SubclassNCM uint8 = 0x0D
)

// Communications interface protocols.
const (
	ProtocolNone uint8 = 0x00
	ProtocolV250 uint8 = 0x01
)

// Functional descriptor subtypes (CDC 1.2 Table 13).
const (
	SubtypeHeader             uint8 = 0x00
	SubtypeCallManagement     uint8 = 0x01
	SubtypeACM                uint8 = 0x02
	SubtypeUnion              uint8 = 0x06
	SubtypeEthernetNetworking uint8 = 0x0F
)

// Call management capabilities.
const (
	CallManagementSelf     uint8 = 1 << 0
	CallManagementOverData uint8 = 1 << 1
)

// Abstract control management capabilities.
const (
	ACMCommFeatures      uint8 = 1 << 0
	ACMLineCoding        uint8 = 1 << 1
	ACMSendBreak         uint8 = 1 << 2
	ACMNetworkConnection uint8 = 1 << 3
)

func functional(subtype uint8, f ...usb.Field) usb.ClassSpecific {
	return usb.ClassSpecific{Type: usb.DescriptorTypeCSInterface, Subtype: subtype, Fields: f}
}

// Header is the CDC header functional descriptor.
func Header(bcdCDC usb.BCD) usb.ClassSpecific {
	return functional(SubtypeHeader, usb.BCDField(bcdCDC))
}

// CallManagement is the call management functional descriptor.
func CallManagement(capabilities, dataInterface uint8) usb.ClassSpecific {
	return functional(SubtypeCallManagement, usb.U8(capabilities), usb.U8(dataInterface))
}

// ACM is the abstract control management functional descriptor.
func ACM(capabilities uint8) usb.ClassSpecific {
	return functional(SubtypeACM, usb.U8(capabilities))
}

// Union groups a control interface with its subordinate interfaces.
func Union(control uint8, subordinates ...uint8) usb.ClassSpecific {
	f := []usb.Field{usb.U8(control)}
	for _, s := range subordinates {
		f = append(f, usb.U8(s))
	}
	return functional(SubtypeUnion, f...)
}

// EthernetNetworking is the ECM functional descriptor.
func EthernetNetworking(iMACAddress uint8, statistics uint32, maxSegment, mcFilters uint16, powerFilters uint8) usb.ClassSpecific {
	return functional(SubtypeEthernetNetworking,
		usb.U8(iMACAddress),
		usb.U32(statistics),
		usb.U16(maxSegment),
		usb.U16(mcFilters),
		usb.U8(powerFilters),
	)
}

// Control is a communications class interface. The header functional
// descriptor always comes first, followed by Functional and then the
// notification endpoints.
type Control struct {
	BInterfaceNumber   uint8
	BAlternateSetting  uint8
	BInterfaceSubClass uint8
	BInterfaceProtocol uint8
	IInterface         uint8
	BcdCDC             usb.BCD
	Functional         usb.Collection
	Endpoints          usb.Collection
}

func (c Control) iface() usb.InterfaceDescriptor {
	return usb.InterfaceDescriptor{
		BInterfaceNumber:   c.BInterfaceNumber,
		BAlternateSetting:  c.BAlternateSetting,
		BInterfaceClass:    usb.ClassCDC,
		BInterfaceSubClass: c.BInterfaceSubClass,
		BInterfaceProtocol: c.BInterfaceProtocol,
		IInterface:         c.IInterface,
		Class:              usb.Concat(usb.List{Header(c.BcdCDC)}, c.Functional),
		Endpoints:          c.Endpoints,
	}
}

func (c Control) DescriptorType() usb.DescriptorType { return usb.DescriptorTypeInterface }
func (c Control) InterfaceNumber() uint8             { return c.BInterfaceNumber }
func (c Control) Layout() []usb.Field                { return c.iface().Layout() }
func (c Control) Nested() usb.Collection             { return c.iface().Nested() }

// Data is a CDC data class interface.
func Data(intf, alt uint8, endpoints ...usb.EndpointDescriptor) usb.InterfaceDescriptor {
	return usb.InterfaceDescriptor{
		BInterfaceNumber:  intf,
		BAlternateSetting: alt,
		BInterfaceClass:   usb.ClassCDCData,
		Endpoints:         usb.Array[usb.EndpointDescriptor](endpoints),
	}
}
