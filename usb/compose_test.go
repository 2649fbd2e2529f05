package usb_test

import (
	"bytes"
	"testing"

	"github.com/Alia5/usbforge/usb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isoEndpoint(addr uint8) usb.EndpointDescriptor {
	return usb.EndpointDescriptor{
		BEndpointAddress: addr,
		BMAttributes:     usb.EndpointAttributes(usb.TransferIsochronous, usb.SyncNone, usb.UsageData),
		WMaxPacketSize:   256,
		BInterval:        1,
	}
}

func audioInterface(num uint8, eps ...usb.EndpointDescriptor) usb.InterfaceDescriptor {
	var proto uint8
	if len(eps) > 0 {
		proto = 0x20
	}
	return usb.InterfaceDescriptor{
		BInterfaceNumber:   num,
		BAlternateSetting:  1,
		BInterfaceClass:    usb.ClassAudio,
		BInterfaceProtocol: proto,
		Endpoints:          usb.Array[usb.EndpointDescriptor](eps),
	}
}

func TestComposeStandardDescriptors(t *testing.T) {
	type testCase struct {
		name     string
		record   usb.Record
		expected []byte
	}

	cases := []testCase{
		{
			name: "device usb 2.00",
			record: usb.DeviceDescriptor{
				BcdUSB:             usb.NewBCD(2, 0),
				BDeviceClass:       usb.ClassHID,
				BDeviceSubClass:    1,
				BMaxPacketSize0:    usb.MaxPacketSize64,
				IDVendor:           0x0102,
				IDProduct:          0x0304,
				BcdDevice:          usb.NewBCD(1, 0),
				IManufacturer:      1,
				IProduct:           2,
				ISerialNumber:      4,
				BNumConfigurations: 2,
			},
			expected: []byte{0x12, 0x01, 0x00, 0x02, 0x03, 0x01, 0x00, 0x40, 0x02, 0x01, 0x04, 0x03, 0x00, 0x01, 0x01, 0x02, 0x04, 0x02},
		},
		{
			name: "device usb 1.00",
			record: usb.DeviceDescriptor{
				BcdUSB:             usb.NewBCD(1, 0),
				BDeviceClass:       usb.ClassCDC,
				BDeviceSubClass:    7,
				BMaxPacketSize0:    usb.MaxPacketSize32,
				IDVendor:           0x0101,
				IDProduct:          0x0101,
				BcdDevice:          usb.NewBCD(1, 0),
				IManufacturer:      1,
				IProduct:           2,
				ISerialNumber:      4,
				BNumConfigurations: 1,
			},
			expected: []byte{0x12, 0x01, 0x00, 0x01, 0x02, 0x07, 0x00, 0x20, 0x01, 0x01, 0x01, 0x01, 0x00, 0x01, 0x01, 0x02, 0x04, 0x01},
		},
		{
			name: "device per-interface class",
			record: usb.DeviceDescriptor{
				BcdUSB:             usb.NewBCD(2, 0),
				BDeviceClass:       usb.ClassPerInterface,
				BMaxPacketSize0:    usb.MaxPacketSize64,
				IDVendor:           0x0102,
				IDProduct:          0x0304,
				BcdDevice:          usb.NewBCD(1, 0),
				IManufacturer:      1,
				IProduct:           2,
				ISerialNumber:      4,
				BNumConfigurations: 2,
			},
			expected: []byte{0x12, 0x01, 0x00, 0x02, 0x00, 0x00, 0x00, 0x40, 0x02, 0x01, 0x04, 0x03, 0x00, 0x01, 0x01, 0x02, 0x04, 0x02},
		},
		{
			name: "device qualifier",
			record: usb.DeviceQualifierDescriptor{
				BcdUSB:             usb.NewBCD(1, 0),
				BMaxPacketSize0:    usb.MaxPacketSize16,
				BNumConfigurations: 1,
			},
			expected: []byte{0x0A, 0x06, 0x00, 0x01, 0x00, 0x00, 0x00, 0x10, 0x01, 0x00},
		},
		{
			name:     "iso endpoint",
			record:   isoEndpoint(usb.EndpointIn(1)),
			expected: []byte{0x07, 0x05, 0x81, 0x01, 0x00, 0x01, 0x01},
		},
		{
			name: "two empty interfaces",
			record: usb.ConfigDescriptor{
				BConfigurationValue: 1,
				BMAttributes:        usb.AttrRemoteWakeup,
				MaxPower:            usb.MilliAmps(100),
				Interfaces:          usb.Array[usb.InterfaceDescriptor]{audioInterface(1), audioInterface(2)},
			},
			expected: []byte{
				0x09, 0x02, 0x1B, 0x00, 0x02, 0x01, 0x00, 0xA0, 0x32,
				0x09, 0x04, 0x01, 0x01, 0x00, 0x01, 0x00, 0x00, 0x00,
				0x09, 0x04, 0x02, 0x01, 0x00, 0x01, 0x00, 0x00, 0x00,
			},
		},
		{
			name: "two interfaces with iso endpoints",
			record: usb.ConfigDescriptor{
				BConfigurationValue: 2,
				MaxPower:            usb.MilliAmps(100),
				Interfaces: usb.Array[usb.InterfaceDescriptor]{
					audioInterface(1, isoEndpoint(usb.EndpointIn(1)), isoEndpoint(usb.EndpointOut(2))),
					audioInterface(2, isoEndpoint(usb.EndpointIn(3)), isoEndpoint(usb.EndpointOut(4))),
				},
			},
			expected: []byte{
				0x09, 0x02, 0x37, 0x00, 0x02, 0x02, 0x00, 0x80, 0x32,
				0x09, 0x04, 0x01, 0x01, 0x02, 0x01, 0x00, 0x20, 0x00,
				0x07, 0x05, 0x81, 0x01, 0x00, 0x01, 0x01,
				0x07, 0x05, 0x02, 0x01, 0x00, 0x01, 0x01,
				0x09, 0x04, 0x02, 0x01, 0x02, 0x01, 0x00, 0x20, 0x00,
				0x07, 0x05, 0x83, 0x01, 0x00, 0x01, 0x01,
				0x07, 0x05, 0x04, 0x01, 0x00, 0x01, 0x01,
			},
		},
		{
			name: "interface association",
			record: usb.InterfaceAssociationDescriptor{
				BFirstInterface:   0,
				BInterfaceCount:   2,
				BFunctionClass:    usb.ClassCDC,
				BFunctionSubClass: 2,
				BFunctionProtocol: 1,
			},
			expected: []byte{0x08, 0x0B, 0x00, 0x02, 0x02, 0x02, 0x01, 0x00},
		},
		{
			name: "hid with report",
			record: usb.HIDDescriptor{
				BcdHID:      usb.NewBCD(1, 11),
				Descriptors: []usb.HIDClassDescriptor{{Type: usb.DescriptorTypeReport, Length: 63}},
			},
			expected: []byte{0x09, 0x21, 0x11, 0x01, 0x00, 0x01, 0x22, 0x3F, 0x00},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d, err := usb.Compose(tc.record)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, d.Bytes())
			assert.Equal(t, int(tc.expected[0]), d.Length())
			assert.Equal(t, len(tc.expected), d.TotalLength())
			assert.Equal(t, tc.record.DescriptorType(), d.DescriptorType())
		})
	}
}

func TestComposeConsistency(t *testing.T) {
	cfg := usb.ConfigDescriptor{
		BConfigurationValue: 3,
		MaxPower:            usb.MilliAmps(100),
		Interfaces: usb.List{
			usb.InterfaceAssociationDescriptor{BFirstInterface: 1, BInterfaceCount: 3, BFunctionClass: usb.ClassAudio},
			audioInterface(1),
			audioInterface(2, isoEndpoint(usb.EndpointIn(1)), isoEndpoint(usb.EndpointOut(2))),
			audioInterface(3, isoEndpoint(usb.EndpointIn(3)), isoEndpoint(usb.EndpointOut(4))),
			usb.InterfaceDescriptor{BInterfaceNumber: 3, BAlternateSetting: 2, BInterfaceClass: usb.ClassAudio},
		},
	}
	d, err := usb.Compose(cfg)
	require.NoError(t, err)
	b := d.Bytes()

	t.Run("length", func(t *testing.T) {
		for _, s := range d.Spans() {
			assert.Equal(t, s.Length, int(b[s.Offset]), "span at %d", s.Offset)
			assert.Equal(t, s.Type, usb.DescriptorType(b[s.Offset+1]), "span at %d", s.Offset)
		}
	})

	t.Run("total length", func(t *testing.T) {
		assert.Equal(t, 8+9+23+23+9+9, d.TotalLength())
		assert.Equal(t, uint16(d.TotalLength()), uint16(b[2])|uint16(b[3])<<8)
		spans := d.Spans()
		sum := 0
		for _, s := range spans[1:] {
			sum += s.Length
		}
		assert.Equal(t, spans[0].Length+sum, spans[0].Total)
	})

	t.Run("counts", func(t *testing.T) {
		assert.Equal(t, uint8(3), b[4], "alternate settings count once")
		for _, s := range d.Spans() {
			if s.Type == usb.DescriptorTypeInterface {
				eps := 0
				for _, c := range d.Spans() {
					if c.Offset > s.Offset && c.Offset < s.Offset+s.Total && c.Type == usb.DescriptorTypeEndpoint {
						eps++
					}
				}
				assert.Equal(t, eps, int(b[s.Offset+4]))
			}
		}
	})

	t.Run("walk round trip", func(t *testing.T) {
		walked, err := usb.Walk(b)
		require.NoError(t, err)
		declared := d.Spans()
		require.Len(t, walked, len(declared))
		for i := range walked {
			assert.Equal(t, declared[i].Offset, walked[i].Offset)
			assert.Equal(t, declared[i].Length, walked[i].Length)
			assert.Equal(t, declared[i].Type, walked[i].Type)
		}
	})

	t.Run("bytes is a copy", func(t *testing.T) {
		b[0] = 0xFF
		assert.Equal(t, uint8(9), d.Bytes()[0])
	})
}

func TestComposeErrors(t *testing.T) {
	manyEndpoints := make(usb.Array[usb.EndpointDescriptor], 256)
	var huge usb.List
	for i := 0; i < 300; i++ {
		huge = append(huge, usb.ClassSpecific{Type: usb.DescriptorTypeCSInterface, Fields: []usb.Field{usb.Reserved(250)}})
	}

	type testCase struct {
		name   string
		record usb.Record
		err    error
	}

	cases := []testCase{
		{
			name:   "nil nested record",
			record: usb.ConfigDescriptor{Interfaces: usb.List{nil}},
			err:    usb.ErrNilRecord,
		},
		{
			name:   "invalid max packet size",
			record: usb.DeviceDescriptor{BMaxPacketSize0: 7},
			err:    usb.ErrInvalidTag,
		},
		{
			name:   "invalid class",
			record: usb.InterfaceDescriptor{BInterfaceClass: 0x42},
			err:    usb.ErrInvalidTag,
		},
		{
			name:   "invalid descriptor type",
			record: usb.ClassSpecific{Type: 0x77},
			err:    usb.ErrInvalidTag,
		},
		{
			name:   "record longer than bLength",
			record: usb.ClassSpecific{Type: usb.DescriptorTypeCSInterface, Fields: []usb.Field{usb.Reserved(300)}},
			err:    usb.ErrLengthOverflow,
		},
		{
			name:   "configuration longer than wTotalLength",
			record: usb.ConfigDescriptor{Interfaces: usb.List{usb.InterfaceDescriptor{Class: huge}}},
			err:    usb.ErrTotalLengthOverflow,
		},
		{
			name:   "too many endpoints",
			record: usb.InterfaceDescriptor{Endpoints: manyEndpoints},
			err:    usb.ErrCountOverflow,
		},
		{
			name:   "max power",
			record: usb.ConfigDescriptor{MaxPower: usb.MilliAmps(512)},
			err:    usb.ErrPowerOverflow,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := usb.Compose(tc.record)
			assert.ErrorIs(t, err, tc.err)
			assert.Panics(t, func() { usb.MustCompose(tc.record) })
		})
	}
}

func TestClassHeader(t *testing.T) {
	h := usb.ClassHeader{
		Type:       usb.DescriptorTypeCSInterface,
		Subtype:    0x01,
		Release:    usb.NewBCD(1, 0),
		Interfaces: []uint8{1, 2},
		Units: usb.List{
			usb.ClassSpecific{Type: usb.DescriptorTypeCSInterface, Subtype: 0x02, Fields: []usb.Field{usb.U8(1), usb.U16(0x0101)}},
		},
	}
	d, err := usb.Compose(h)
	require.NoError(t, err)
	assert.Equal(t, []byte{
		0x0A, 0x24, 0x01, 0x00, 0x01, 0x10, 0x00, 0x02, 0x01, 0x02,
		0x06, 0x24, 0x02, 0x01, 0x01, 0x01,
	}, d.Bytes())
}

func TestNumericHelpers(t *testing.T) {
	t.Run("bcd", func(t *testing.T) {
		assert.Equal(t, usb.BCD(0x0200), usb.NewBCD(2, 0))
		assert.Equal(t, usb.BCD(0x0110), usb.NewBCD(1, 10))
		assert.Equal(t, usb.BCD(0x9999), usb.NewBCD(99, 99))
		assert.Equal(t, usb.BCD(0x0005), usb.NewBCD(-1, 5))
		assert.Equal(t, usb.BCD(0x9900), usb.NewBCD(150, -20))
		assert.Equal(t, "2.00", usb.NewBCD(2, 0).String())

		for in, want := range map[string]usb.BCD{"2.00": 0x0200, "2.0": 0x0200, "1.1": 0x0110, "1.11": 0x0111, "12": 0x1200} {
			got, err := usb.ParseBCD(in)
			require.NoError(t, err, in)
			assert.Equal(t, want, got, in)
		}
		for _, in := range []string{"", "1.234", "a.0", "123.0"} {
			_, err := usb.ParseBCD(in)
			assert.Error(t, err, in)
		}
	})

	t.Run("power", func(t *testing.T) {
		assert.Equal(t, uint8(0x32), usb.MilliAmps(100).Units())
		assert.Equal(t, uint8(0xFF), usb.MilliAmps(510).Units())
	})

	t.Run("attributes", func(t *testing.T) {
		assert.Equal(t, uint8(0x80), usb.ConfigAttributes(0).Bits())
		assert.Equal(t, uint8(0xE0), (usb.AttrSelfPowered | usb.AttrRemoteWakeup).Bits())
		assert.Equal(t, uint8(0x83), usb.EndpointIn(3))
		assert.Equal(t, uint8(0x03), usb.EndpointOut(0x83))
		assert.Equal(t, uint8(0x25), usb.EndpointAttributes(usb.TransferIsochronous, usb.SyncAsynchronous, usb.UsageImplicitFeedback))
	})

	t.Run("little endian fields", func(t *testing.T) {
		d, err := usb.Compose(usb.ClassSpecific{
			Type:    usb.DescriptorTypeCSEndpoint,
			Subtype: 1,
			Fields:  []usb.Field{usb.U24(44100), usb.U32(0x01020304), usb.I16(-2), usb.Bytes(0xAA, 0xBB)},
		})
		require.NoError(t, err)
		assert.True(t, bytes.Equal([]byte{
			0x0E, 0x25, 0x01,
			0x44, 0xAC, 0x00,
			0x04, 0x03, 0x02, 0x01,
			0xFE, 0xFF,
			0xAA, 0xBB,
		}, d.Bytes()))
	})
}

func TestWalkMalformed(t *testing.T) {
	type testCase struct {
		name  string
		input []byte
	}

	cases := []testCase{
		{name: "zero length", input: []byte{0x00, 0x02, 0x00}},
		{name: "length past end", input: []byte{0x09, 0x02, 0x00}},
		{name: "one trailing byte", input: []byte{0x02, 0x24, 0x05}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := usb.Walk(tc.input)
			assert.ErrorIs(t, err, usb.ErrMalformed)
		})
	}
}
