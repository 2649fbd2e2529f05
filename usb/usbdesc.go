// Package usb contains the descriptor composition model and the standard
// USB descriptors, requests and strings built on it.
package usb

// Fixed descriptor lengths (USB 2.0 chapter 9).
const (
	DeviceDescLen               = 18
	DeviceQualifierDescLen      = 10
	ConfigDescLen               = 9
	InterfaceDescLen            = 9
	EndpointDescLen             = 7
	InterfaceAssociationDescLen = 8
)

// ConfigValueOffset is the offset of bConfigurationValue inside an encoded
// configuration descriptor.
const ConfigValueOffset = 5

// DeviceDescriptor is the standard device descriptor (USB 2.0 Table 9-8).
// bLength and bDescriptorType are derived.
type DeviceDescriptor struct {
	BcdUSB             BCD
	BDeviceClass       ClassCode
	BDeviceSubClass    uint8
	BDeviceProtocol    uint8
	BMaxPacketSize0    MaxPacketSize0
	IDVendor           uint16
	IDProduct          uint16
	BcdDevice          BCD
	IManufacturer      uint8
	IProduct           uint8
	ISerialNumber      uint8
	BNumConfigurations uint8
}

func (DeviceDescriptor) DescriptorType() DescriptorType { return DescriptorTypeDevice }
func (DeviceDescriptor) Nested() Collection             { return Empty{} }

func (d DeviceDescriptor) Layout() []Field {
	return []Field{
		Length(),
		Type(),
		BCDField(d.BcdUSB),
		Tagged(d.BDeviceClass),
		U8(d.BDeviceSubClass),
		U8(d.BDeviceProtocol),
		Tagged(d.BMaxPacketSize0),
		U16(d.IDVendor),
		U16(d.IDProduct),
		BCDField(d.BcdDevice),
		U8(d.IManufacturer),
		U8(d.IProduct),
		U8(d.ISerialNumber),
		U8(d.BNumConfigurations),
	}
}

// DeviceQualifierDescriptor describes how a high-speed capable device would
// look at the other speed (USB 2.0 Table 9-9).
type DeviceQualifierDescriptor struct {
	BcdUSB             BCD
	BDeviceClass       ClassCode
	BDeviceSubClass    uint8
	BDeviceProtocol    uint8
	BMaxPacketSize0    MaxPacketSize0
	BNumConfigurations uint8
}

func (DeviceQualifierDescriptor) DescriptorType() DescriptorType {
	return DescriptorTypeDeviceQualifier
}
func (DeviceQualifierDescriptor) Nested() Collection { return Empty{} }

func (q DeviceQualifierDescriptor) Layout() []Field {
	return []Field{
		Length(),
		Type(),
		BCDField(q.BcdUSB),
		Tagged(q.BDeviceClass),
		U8(q.BDeviceSubClass),
		U8(q.BDeviceProtocol),
		Tagged(q.BMaxPacketSize0),
		U8(q.BNumConfigurations),
		Reserved(1),
	}
}

// ConfigDescriptor is a configuration and everything below it
// (USB 2.0 Table 9-10). wTotalLength and bNumInterfaces are derived from
// Interfaces.
type ConfigDescriptor struct {
	BConfigurationValue uint8
	IConfiguration      uint8
	BMAttributes        ConfigAttributes
	MaxPower            Power
	Interfaces          Collection
}

func (ConfigDescriptor) DescriptorType() DescriptorType { return DescriptorTypeConfiguration }
func (c ConfigDescriptor) Nested() Collection          { return c.Interfaces }

func (c ConfigDescriptor) Layout() []Field {
	return []Field{
		Length(),
		Type(),
		TotalLength(),
		InterfaceCountOf(c.Interfaces),
		U8(c.BConfigurationValue),
		U8(c.IConfiguration),
		U8(c.BMAttributes.Bits()),
		MaxPowerField(c.MaxPower),
	}
}

// OtherSpeedConfigDescriptor has the layout of a configuration descriptor
// and describes the configuration at the other speed (USB 2.0 Table 9-11).
type OtherSpeedConfigDescriptor ConfigDescriptor

func (OtherSpeedConfigDescriptor) DescriptorType() DescriptorType {
	return DescriptorTypeOtherSpeedConfiguration
}
func (o OtherSpeedConfigDescriptor) Nested() Collection { return o.Interfaces }
func (o OtherSpeedConfigDescriptor) Layout() []Field    { return ConfigDescriptor(o).Layout() }

// InterfaceDescriptor is one interface alternate setting (USB 2.0
// Table 9-12). Class holds class-specific records that sit between the
// interface and its endpoints; bNumEndpoints counts Endpoints only.
type InterfaceDescriptor struct {
	BInterfaceNumber   uint8
	BAlternateSetting  uint8
	BInterfaceClass    ClassCode
	BInterfaceSubClass uint8
	BInterfaceProtocol uint8
	IInterface         uint8
	Class              Collection
	Endpoints          Collection
}

func (InterfaceDescriptor) DescriptorType() DescriptorType { return DescriptorTypeInterface }
func (i InterfaceDescriptor) InterfaceNumber() uint8      { return i.BInterfaceNumber }

func (i InterfaceDescriptor) Nested() Collection {
	return Concat(i.Class, i.Endpoints)
}

func (i InterfaceDescriptor) Layout() []Field {
	return []Field{
		Length(),
		Type(),
		U8(i.BInterfaceNumber),
		U8(i.BAlternateSetting),
		CountOf(i.Endpoints),
		Tagged(i.BInterfaceClass),
		U8(i.BInterfaceSubClass),
		U8(i.BInterfaceProtocol),
		U8(i.IInterface),
	}
}

// EndpointDescriptor (USB 2.0 Table 9-13). Class holds class-specific
// endpoint records that follow it.
type EndpointDescriptor struct {
	BEndpointAddress uint8
	BMAttributes     uint8
	WMaxPacketSize   uint16
	BInterval        uint8
	Class            Collection
}

func (EndpointDescriptor) DescriptorType() DescriptorType { return DescriptorTypeEndpoint }
func (e EndpointDescriptor) Nested() Collection          { return e.Class }

func (e EndpointDescriptor) Layout() []Field {
	return []Field{
		Length(),
		Type(),
		U8(e.BEndpointAddress),
		U8(e.BMAttributes),
		U16(e.WMaxPacketSize),
		U8(e.BInterval),
	}
}

// InterfaceAssociationDescriptor groups consecutive interfaces into one
// function. The grouped interfaces are its siblings, not its children.
type InterfaceAssociationDescriptor struct {
	BFirstInterface   uint8
	BInterfaceCount   uint8
	BFunctionClass    ClassCode
	BFunctionSubClass uint8
	BFunctionProtocol uint8
	IFunction         uint8
}

func (InterfaceAssociationDescriptor) DescriptorType() DescriptorType {
	return DescriptorTypeInterfaceAssociation
}
func (InterfaceAssociationDescriptor) Nested() Collection { return Empty{} }

func (a InterfaceAssociationDescriptor) Layout() []Field {
	return []Field{
		Length(),
		Type(),
		U8(a.BFirstInterface),
		U8(a.BInterfaceCount),
		Tagged(a.BFunctionClass),
		U8(a.BFunctionSubClass),
		U8(a.BFunctionProtocol),
		U8(a.IFunction),
	}
}

// HIDClassDescriptor names one subordinate descriptor of a HID descriptor.
type HIDClassDescriptor struct {
	Type   DescriptorType
	Length uint16
}

// HIDDescriptor is the HID class descriptor (0x21). bNumDescriptors is
// derived from Descriptors.
type HIDDescriptor struct {
	BcdHID       BCD
	BCountryCode uint8
	Descriptors  []HIDClassDescriptor
}

func (HIDDescriptor) DescriptorType() DescriptorType { return DescriptorTypeHID }
func (HIDDescriptor) Nested() Collection             { return Empty{} }

func (h HIDDescriptor) Layout() []Field {
	f := []Field{
		Length(),
		Type(),
		BCDField(h.BcdHID),
		U8(h.BCountryCode),
		Count(len(h.Descriptors)),
	}
	for _, d := range h.Descriptors {
		f = append(f, Tagged(d.Type), U16(d.Length))
	}
	return f
}

// Concat joins collections in order into one list.
func Concat(cs ...Collection) List {
	var out List
	for _, c := range cs {
		if c == nil {
			continue
		}
		out = append(out, c.Records()...)
	}
	return out
}
