// Package audio declares USB Audio Class 1.0 descriptors on top of the usb
// composition model.
package audio

import "github.com/Alia5/usbforge/usb"

// Interface subclasses.
const (
	SubclassAudioControl   uint8 = 0x01
	SubclassAudioStreaming uint8 = 0x02
)

// Class-specific AC interface descriptor subtypes.
const (
	SubtypeHeader         uint8 = 0x01
	SubtypeInputTerminal  uint8 = 0x02
	SubtypeOutputTerminal uint8 = 0x03
	SubtypeFeatureUnit    uint8 = 0x06
)

// Class-specific AS interface and endpoint descriptor subtypes.
const (
	SubtypeASGeneral  uint8 = 0x01
	SubtypeFormatType uint8 = 0x02
	SubtypeEPGeneral  uint8 = 0x01
)

// Terminal types.
const (
	TerminalUSBStreaming uint16 = 0x0101
	TerminalMicrophone   uint16 = 0x0201
	TerminalSpeaker      uint16 = 0x0301
	TerminalHeadphones   uint16 = 0x0302
)

// Spatial locations for wChannelConfig.
const (
	ChannelLeftFront  uint16 = 1 << 0
	ChannelRightFront uint16 = 1 << 1
	ChannelCenter     uint16 = 1 << 2
)

// Feature unit controls.
const (
	ControlMute   uint16 = 1 << 0
	ControlVolume uint16 = 1 << 1
)

const (
	FormatTagPCM              uint16 = 0x0001
	EndpointSamplingFrequency uint8  = 0x01
	LockDelayMilliseconds     uint8  = 0x01

	formatTypeI uint8 = 0x01
)

// Control is an AudioControl interface: the standard interface descriptor,
// the class-specific header spanning Units, then Endpoints.
type Control struct {
	BInterfaceNumber  uint8
	BAlternateSetting uint8
	IInterface        uint8
	BcdADC            usb.BCD
	Streaming         []uint8
	Units             usb.Collection
	Endpoints         usb.Collection
}

func (c Control) iface() usb.InterfaceDescriptor {
	return usb.InterfaceDescriptor{
		BInterfaceNumber:   c.BInterfaceNumber,
		BAlternateSetting:  c.BAlternateSetting,
		BInterfaceClass:    usb.ClassAudio,
		BInterfaceSubClass: SubclassAudioControl,
		IInterface:         c.IInterface,
		Class: usb.List{usb.ClassHeader{
			Type:       usb.DescriptorTypeCSInterface,
			Subtype:    SubtypeHeader,
			Release:    c.BcdADC,
			Interfaces: c.Streaming,
			Units:      c.Units,
		}},
		Endpoints: c.Endpoints,
	}
}

func (c Control) DescriptorType() usb.DescriptorType { return usb.DescriptorTypeInterface }
func (c Control) InterfaceNumber() uint8             { return c.BInterfaceNumber }
func (c Control) Layout() []usb.Field                { return c.iface().Layout() }
func (c Control) Nested() usb.Collection             { return c.iface().Nested() }

// InputTerminal (UAC1 Table 4-3).
type InputTerminal struct {
	BTerminalID    uint8
	WTerminalType  uint16
	BAssocTerminal uint8
	BNrChannels    uint8
	WChannelConfig uint16
	IChannelNames  uint8
	ITerminal      uint8
}

func (InputTerminal) DescriptorType() usb.DescriptorType { return usb.DescriptorTypeCSInterface }
func (InputTerminal) Nested() usb.Collection             { return usb.Empty{} }

func (t InputTerminal) Layout() []usb.Field {
	return usb.ClassSpecific{
		Type:    usb.DescriptorTypeCSInterface,
		Subtype: SubtypeInputTerminal,
		Fields: []usb.Field{
			usb.U8(t.BTerminalID),
			usb.U16(t.WTerminalType),
			usb.U8(t.BAssocTerminal),
			usb.U8(t.BNrChannels),
			usb.U16(t.WChannelConfig),
			usb.U8(t.IChannelNames),
			usb.U8(t.ITerminal),
		},
	}.Layout()
}

// OutputTerminal (UAC1 Table 4-4).
type OutputTerminal struct {
	BTerminalID    uint8
	WTerminalType  uint16
	BAssocTerminal uint8
	BSourceID      uint8
	ITerminal      uint8
}

func (OutputTerminal) DescriptorType() usb.DescriptorType { return usb.DescriptorTypeCSInterface }
func (OutputTerminal) Nested() usb.Collection             { return usb.Empty{} }

func (t OutputTerminal) Layout() []usb.Field {
	return usb.ClassSpecific{
		Type:    usb.DescriptorTypeCSInterface,
		Subtype: SubtypeOutputTerminal,
		Fields: []usb.Field{
			usb.U8(t.BTerminalID),
			usb.U16(t.WTerminalType),
			usb.U8(t.BAssocTerminal),
			usb.U8(t.BSourceID),
			usb.U8(t.ITerminal),
		},
	}.Layout()
}

// FeatureUnit (UAC1 Table 4-7). Controls holds the master channel first,
// each entry two bytes wide.
type FeatureUnit struct {
	BUnitID   uint8
	BSourceID uint8
	Controls  []uint16
	IFeature  uint8
}

func (FeatureUnit) DescriptorType() usb.DescriptorType { return usb.DescriptorTypeCSInterface }
func (FeatureUnit) Nested() usb.Collection             { return usb.Empty{} }

func (u FeatureUnit) Layout() []usb.Field {
	f := []usb.Field{usb.U8(u.BUnitID), usb.U8(u.BSourceID), usb.U8(2)}
	for _, c := range u.Controls {
		f = append(f, usb.U16(c))
	}
	f = append(f, usb.U8(u.IFeature))
	return usb.ClassSpecific{Type: usb.DescriptorTypeCSInterface, Subtype: SubtypeFeatureUnit, Fields: f}.Layout()
}

// ZeroBandwidth is alternate setting 0 of a streaming interface.
func ZeroBandwidth(intf uint8) usb.InterfaceDescriptor {
	return usb.InterfaceDescriptor{
		BInterfaceNumber:   intf,
		BInterfaceClass:    usb.ClassAudio,
		BInterfaceSubClass: SubclassAudioStreaming,
	}
}

// Streaming is an operational AudioStreaming alternate setting with its
// AS_GENERAL header, formats and endpoints.
type Streaming struct {
	BInterfaceNumber  uint8
	BAlternateSetting uint8
	IInterface        uint8
	BTerminalLink     uint8
	BDelay            uint8
	WFormatTag        uint16
	Formats           usb.Collection
	Endpoints         usb.Collection
}

func (s Streaming) iface() usb.InterfaceDescriptor {
	general := usb.ClassSpecific{
		Type:    usb.DescriptorTypeCSInterface,
		Subtype: SubtypeASGeneral,
		Fields:  []usb.Field{usb.U8(s.BTerminalLink), usb.U8(s.BDelay), usb.U16(s.WFormatTag)},
	}
	return usb.InterfaceDescriptor{
		BInterfaceNumber:   s.BInterfaceNumber,
		BAlternateSetting:  s.BAlternateSetting,
		BInterfaceClass:    usb.ClassAudio,
		BInterfaceSubClass: SubclassAudioStreaming,
		IInterface:         s.IInterface,
		Class:              usb.Concat(usb.List{general}, s.Formats),
		Endpoints:          s.Endpoints,
	}
}

func (s Streaming) DescriptorType() usb.DescriptorType { return usb.DescriptorTypeInterface }
func (s Streaming) InterfaceNumber() uint8             { return s.BInterfaceNumber }
func (s Streaming) Layout() []usb.Field                { return s.iface().Layout() }
func (s Streaming) Nested() usb.Collection             { return s.iface().Nested() }

// FormatTypeI is a Type I format descriptor with discrete sampling
// frequencies; bSamFreqType is derived from Frequencies.
type FormatTypeI struct {
	BNrChannels    uint8
	BSubframeSize  uint8
	BBitResolution uint8
	Frequencies    []uint32
}

func (FormatTypeI) DescriptorType() usb.DescriptorType { return usb.DescriptorTypeCSInterface }
func (FormatTypeI) Nested() usb.Collection             { return usb.Empty{} }

func (f FormatTypeI) Layout() []usb.Field {
	fields := []usb.Field{
		usb.U8(formatTypeI),
		usb.U8(f.BNrChannels),
		usb.U8(f.BSubframeSize),
		usb.U8(f.BBitResolution),
		usb.Count(len(f.Frequencies)),
	}
	for _, hz := range f.Frequencies {
		fields = append(fields, usb.U24(hz))
	}
	return usb.ClassSpecific{Type: usb.DescriptorTypeCSInterface, Subtype: SubtypeFormatType, Fields: fields}.Layout()
}

// Endpoint is the 9-byte audio endpoint descriptor. General, when set,
// follows it as the class-specific EP_GENERAL descriptor.
type Endpoint struct {
	BEndpointAddress uint8
	BMAttributes     uint8
	WMaxPacketSize   uint16
	BInterval        uint8
	BRefresh         uint8
	BSynchAddress    uint8
	General          *GeneralEndpoint
}

// GeneralEndpoint is the class-specific AS isochronous data endpoint
// descriptor (UAC1 Table 4-21).
type GeneralEndpoint struct {
	BMAttributes    uint8
	BLockDelayUnits uint8
	WLockDelay      uint16
}

func (Endpoint) DescriptorType() usb.DescriptorType { return usb.DescriptorTypeEndpoint }

func (e Endpoint) Layout() []usb.Field {
	return []usb.Field{
		usb.Length(),
		usb.Type(),
		usb.U8(e.BEndpointAddress),
		usb.U8(e.BMAttributes),
		usb.U16(e.WMaxPacketSize),
		usb.U8(e.BInterval),
		usb.U8(e.BRefresh),
		usb.U8(e.BSynchAddress),
	}
}

func (e Endpoint) Nested() usb.Collection {
	if e.General == nil {
		return usb.Empty{}
	}
	return usb.List{usb.ClassSpecific{
		Type:    usb.DescriptorTypeCSEndpoint,
		Subtype: SubtypeEPGeneral,
		Fields: []usb.Field{
			usb.U8(e.General.BMAttributes),
			usb.U8(e.General.BLockDelayUnits),
			usb.U16(e.General.WLockDelay),
		},
	}}
}
