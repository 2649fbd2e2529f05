// Package demo is the catalog of emulated devices served by the CLI and
// used throughout the tests.
package demo

import (
	"fmt"

	"github.com/Alia5/usbforge/device"
	"github.com/Alia5/usbforge/usb"
	"github.com/Alia5/usbforge/usb/audio"
	"github.com/Alia5/usbforge/usb/cdc"
	"github.com/Alia5/usbforge/virtualbus"
)

// Bus addresses of the catalog devices.
const (
	AddrUAC1  virtualbus.Address = 0x01
	AddrCDC   virtualbus.Address = 0x03
	AddrTest1 virtualbus.Address = 0x20
	AddrTest2 virtualbus.Address = 0x21
)

const (
	VendorID  uint16 = 0x0102
	ProductID uint16 = 0x0304

	audioProtocolV2 uint8 = 0x20
)

func deviceDescriptor(bcdUSB usb.BCD, numConfigurations uint8) usb.DeviceDescriptor {
	return usb.DeviceDescriptor{
		BcdUSB:             bcdUSB,
		BMaxPacketSize0:    usb.MaxPacketSize64,
		IDVendor:           VendorID,
		IDProduct:          ProductID,
		BcdDevice:          usb.NewBCD(1, 0),
		IManufacturer:      strings1.IndexOf(Manufacturer),
		IProduct:           strings1.IndexOf(Product),
		ISerialNumber:      strings1.IndexOf(SerialNumber),
		BNumConfigurations: numConfigurations,
	}
}

// Qualifier is the full-speed view of the high-speed test devices.
var Qualifier = usb.DeviceQualifierDescriptor{
	BcdUSB:             usb.NewBCD(1, 0),
	BMaxPacketSize0:    usb.MaxPacketSize16,
	BNumConfigurations: 1,
}

func isoEndpoint(addr uint8) usb.EndpointDescriptor {
	return usb.EndpointDescriptor{
		BEndpointAddress: addr,
		BMAttributes:     usb.EndpointAttributes(usb.TransferIsochronous, usb.SyncNone, usb.UsageData),
		WMaxPacketSize:   256,
		BInterval:        1,
	}
}

func audioInterface(num, protocol uint8, eps ...usb.EndpointDescriptor) usb.InterfaceDescriptor {
	in := usb.InterfaceDescriptor{
		BInterfaceNumber:   num,
		BAlternateSetting:  1,
		BInterfaceClass:    usb.ClassAudio,
		BInterfaceProtocol: protocol,
	}
	if len(eps) > 0 {
		in.Endpoints = usb.Array[usb.EndpointDescriptor](eps)
	}
	return in
}

// Configuration1 has two endpointless interfaces and supports remote wakeup.
var Configuration1 = usb.ConfigDescriptor{
	BConfigurationValue: 1,
	BMAttributes:        usb.AttrRemoteWakeup,
	MaxPower:            usb.MilliAmps(100),
	Interfaces: usb.Array[usb.InterfaceDescriptor]{
		audioInterface(1, 0),
		audioInterface(2, 0),
	},
}

// Configuration2 has two interfaces with an isochronous endpoint pair each.
var Configuration2 = usb.ConfigDescriptor{
	BConfigurationValue: 2,
	MaxPower:            usb.MilliAmps(100),
	Interfaces: usb.Array[usb.InterfaceDescriptor]{
		audioInterface(1, audioProtocolV2, isoEndpoint(usb.EndpointIn(1)), isoEndpoint(usb.EndpointOut(2))),
		audioInterface(2, audioProtocolV2, isoEndpoint(usb.EndpointIn(3)), isoEndpoint(usb.EndpointOut(4))),
	},
}

// Configuration3 mixes an endpointless interface with two endpoint pairs.
var Configuration3 = usb.ConfigDescriptor{
	BConfigurationValue: 3,
	MaxPower:            usb.MilliAmps(100),
	Interfaces: usb.List{
		audioInterface(1, 0),
		audioInterface(2, 0, isoEndpoint(usb.EndpointIn(1)), isoEndpoint(usb.EndpointOut(2))),
		audioInterface(3, 0, isoEndpoint(usb.EndpointIn(3)), isoEndpoint(usb.EndpointOut(4))),
	},
}

func compose(records ...usb.Record) ([][]byte, error) {
	out := make([][]byte, len(records))
	for i, r := range records {
		d, err := usb.Compose(r)
		if err != nil {
			return nil, fmt.Errorf("compose %s: %w", r.DescriptorType(), err)
		}
		out[i] = d.Bytes()
	}
	return out, nil
}

func build(dev usb.DeviceDescriptor, qualifier usb.Record, strings *usb.Dictionary, configs ...usb.Record) (*device.Emulated, error) {
	descs, err := compose(append([]usb.Record{dev}, configs...)...)
	if err != nil {
		return nil, err
	}
	cfg := device.Config{
		Device:         descs[0],
		Configurations: descs[1:],
	}
	if qualifier != nil {
		q, err := usb.Compose(qualifier)
		if err != nil {
			return nil, fmt.Errorf("compose qualifier: %w", err)
		}
		cfg.Qualifier = q.Bytes()
	}
	if strings != nil {
		cfg.Strings = strings
	}
	return device.New(cfg)
}

// Test1 is a USB 2.0 device with English strings and configurations 1 and 2.
func Test1() (*device.Emulated, error) {
	return build(deviceDescriptor(usb.NewBCD(2, 0), 2), nil, strings1, Configuration1, Configuration2)
}

// Test2 adds a qualifier and a three-language string table, and offers
// configurations 2 and 3.
func Test2() (*device.Emulated, error) {
	return build(deviceDescriptor(usb.NewBCD(2, 0), 2), Qualifier, matrix, Configuration2, Configuration3)
}

// CDCConfiguration is a CDC ECM function: a control interface with a
// notification endpoint and a data interface whose alternate setting 1
// carries the bulk pair.
var CDCConfiguration = usb.ConfigDescriptor{
	BConfigurationValue: 1,
	BMAttributes:        usb.AttrRemoteWakeup,
	MaxPower:            usb.MilliAmps(100),
	Interfaces: usb.List{
		usb.InterfaceAssociationDescriptor{
			BFirstInterface:   0,
			BInterfaceCount:   2,
			BFunctionClass:    usb.ClassCDC,
			BFunctionSubClass: cdc.SubclassECM,
			BFunctionProtocol: cdc.ProtocolNone,
		},
		cdc.Control{
			BInterfaceNumber:   0,
			BInterfaceSubClass: cdc.SubclassECM,
			BInterfaceProtocol: cdc.ProtocolNone,
			BcdCDC:             usb.NewBCD(1, 10),
			Functional: usb.List{
				cdc.Union(0, 1),
				cdc.EthernetNetworking(strings1.IndexOf(MACAddress), 0, 1514, 0, 0),
			},
			Endpoints: usb.Array[usb.EndpointDescriptor]{{
				BEndpointAddress: usb.EndpointIn(1),
				BMAttributes:     usb.EndpointAttributes(usb.TransferInterrupt, usb.SyncNone, usb.UsageData),
				WMaxPacketSize:   16,
				BInterval:        16,
			}},
		},
		cdc.Data(1, 0),
		cdc.Data(1, 1,
			usb.EndpointDescriptor{
				BEndpointAddress: usb.EndpointOut(2),
				BMAttributes:     usb.EndpointAttributes(usb.TransferBulk, usb.SyncNone, usb.UsageData),
				WMaxPacketSize:   64,
			},
			usb.EndpointDescriptor{
				BEndpointAddress: usb.EndpointIn(2),
				BMAttributes:     usb.EndpointAttributes(usb.TransferBulk, usb.SyncNone, usb.UsageData),
				WMaxPacketSize:   64,
			},
		),
	},
}

// CDC is a network adapter speaking CDC ECM.
func CDC() (*device.Emulated, error) {
	return build(deviceDescriptor(usb.NewBCD(2, 0), 1), nil, strings1, CDCConfiguration)
}

// SpeakerConfiguration is a UAC1 stereo speaker: an AudioControl interface
// routing the USB stream through a feature unit to the speaker, and a
// streaming interface with a zero-bandwidth alternate setting 0.
var SpeakerConfiguration = usb.ConfigDescriptor{
	BConfigurationValue: 1,
	MaxPower:            usb.MilliAmps(100),
	Interfaces: usb.List{
		audio.Control{
			BInterfaceNumber: 0,
			BcdADC:           usb.NewBCD(1, 0),
			Streaming:        []uint8{1},
			Units: usb.List{
				audio.InputTerminal{
					BTerminalID:    1,
					WTerminalType:  audio.TerminalUSBStreaming,
					BNrChannels:    2,
					WChannelConfig: audio.ChannelLeftFront | audio.ChannelRightFront,
				},
				audio.FeatureUnit{
					BUnitID:   2,
					BSourceID: 1,
					Controls:  []uint16{audio.ControlMute | audio.ControlVolume, 0, 0},
				},
				audio.OutputTerminal{
					BTerminalID:   3,
					WTerminalType: audio.TerminalSpeaker,
					BSourceID:     2,
				},
			},
		},
		audio.ZeroBandwidth(1),
		audio.Streaming{
			BInterfaceNumber:  1,
			BAlternateSetting: 1,
			BTerminalLink:     1,
			BDelay:            1,
			WFormatTag:        audio.FormatTagPCM,
			Formats: usb.List{audio.FormatTypeI{
				BNrChannels:    2,
				BSubframeSize:  2,
				BBitResolution: 16,
				Frequencies:    []uint32{48000},
			}},
			Endpoints: usb.Array[audio.Endpoint]{{
				BEndpointAddress: usb.EndpointOut(1),
				BMAttributes:     usb.EndpointAttributes(usb.TransferIsochronous, usb.SyncAdaptive, usb.UsageData),
				WMaxPacketSize:   192,
				BInterval:        1,
				General: &audio.GeneralEndpoint{
					BMAttributes: audio.EndpointSamplingFrequency,
				},
			}},
		},
	},
}

// Speaker is a full-speed UAC1 speaker.
func Speaker() (*device.Emulated, error) {
	return build(deviceDescriptor(usb.NewBCD(1, 10), 1), nil, strings1, SpeakerConfiguration)
}

func must(dev *device.Emulated, err error) *device.Emulated {
	if err != nil {
		panic(err)
	}
	return dev
}

func MustTest1() *device.Emulated   { return must(Test1()) }
func MustTest2() *device.Emulated   { return must(Test2()) }
func MustCDC() *device.Emulated     { return must(CDC()) }
func MustSpeaker() *device.Emulated { return must(Speaker()) }

// Entry pairs a catalog device with its address.
type Entry struct {
	Name    string
	Address virtualbus.Address
	New     func() (*device.Emulated, error)
}

// Catalog lists every demo device in address order.
var Catalog = []Entry{
	{Name: "uac1", Address: AddrUAC1, New: Speaker},
	{Name: "cdc", Address: AddrCDC, New: CDC},
	{Name: "test1", Address: AddrTest1, New: Test1},
	{Name: "test2", Address: AddrTest2, New: Test2},
}

// Populate builds every catalog device and attaches it to bus.
func Populate(bus *virtualbus.Bus) error {
	for _, e := range Catalog {
		dev, err := e.New()
		if err != nil {
			return fmt.Errorf("%s: %w", e.Name, err)
		}
		if err := bus.Add(e.Address, dev); err != nil {
			return fmt.Errorf("%s: %w", e.Name, err)
		}
	}
	return nil
}
