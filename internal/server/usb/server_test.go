package usb_test

import (
	"testing"
	"time"

	"github.com/Alia5/usbforge/device/demo"
	"github.com/Alia5/usbforge/usb"
	"github.com/Alia5/usbforge/usbip"
	"github.com/Alia5/usbforge/virtualbus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	usbforgeTesting "github.com/Alia5/usbforge/testing"
)

func newDemoServer(t *testing.T, opts ...virtualbus.Option) (*virtualbus.Bus, *usbforgeTesting.TestUsbIpClient) {
	t.Helper()
	bus := virtualbus.New(opts...)
	t.Cleanup(func() { _ = bus.Close() })
	require.NoError(t, demo.Populate(bus))
	srv := usbforgeTesting.NewTestServer(t, bus)
	return bus, usbforgeTesting.NewUsbIpClient(t, srv.Addr().String())
}

func TestDevList(t *testing.T) {
	_, client := newDemoServer(t)

	devices, err := client.ListDevices()
	require.NoError(t, err)
	require.Len(t, devices, len(demo.Catalog))

	type testCase struct {
		busID      string
		speed      uint32
		configs    uint8
		interfaces int
	}
	cases := []testCase{
		{busID: "240-1", speed: usbip.SpeedFull, configs: 1, interfaces: 2},
		{busID: "240-3", speed: usbip.SpeedHigh, configs: 1, interfaces: 2},
		{busID: "242-0", speed: usbip.SpeedHigh, configs: 2, interfaces: 2},
		{busID: "242-1", speed: usbip.SpeedHigh, configs: 2, interfaces: 2},
	}
	for i, tc := range cases {
		t.Run(tc.busID, func(t *testing.T) {
			d := devices[i]
			assert.Equal(t, tc.busID, d.BusID())
			assert.Equal(t, tc.speed, d.Speed)
			assert.Equal(t, demo.VendorID, d.IDVendor)
			assert.Equal(t, demo.ProductID, d.IDProduct)
			assert.Equal(t, tc.configs, d.BNumConfigurations)
			assert.Equal(t, uint8(0), d.BConfigurationValue)
			assert.Len(t, d.Interfaces, tc.interfaces)
			assert.Equal(t, uint8(tc.interfaces), d.BNumInterfaces)
		})
	}
	assert.Equal(t, uint8(usb.ClassCDC), devices[1].Interfaces[0].Class)
	assert.Equal(t, uint8(usb.ClassCDCData), devices[1].Interfaces[1].Class)
}

func TestImportAndControl(t *testing.T) {
	_, client := newDemoServer(t)

	_, err := client.AttachDevice("9-9")
	require.Error(t, err)

	sess, err := client.AttachDevice("242-1")
	require.NoError(t, err)
	defer sess.Close()
	assert.Equal(t, "242-1", sess.Exported.BusID())

	type testCase struct {
		name   string
		req    usb.SetupPacket
		status int32
		data   []byte
	}
	cases := []testCase{
		{
			name:   "device descriptor",
			req:    usb.GetDescriptor(usb.DescriptorTypeDevice, 0, 0, 8),
			status: usbip.StatusOK,
			data:   []byte{0x12, 0x01, 0x00, 0x02, 0x00, 0x00, 0x00, 0x40},
		},
		{
			name:   "language list",
			req:    usb.GetDescriptor(usb.DescriptorTypeString, 0, 0, 255),
			status: usbip.StatusOK,
			data:   []byte{0x08, 0x03, 0x09, 0x04, 0x09, 0x08, 0x22, 0x04},
		},
		{
			name:   "qualifier",
			req:    usb.GetDescriptor(usb.DescriptorTypeDeviceQualifier, 0, 0, 10),
			status: usbip.StatusOK,
			data:   []byte{0x0A, 0x06, 0x00, 0x01, 0x00, 0x00, 0x00, 0x10, 0x01, 0x00},
		},
		{
			name:   "missing serial number",
			req:    usb.GetDescriptor(usb.DescriptorTypeString, 4, usb.LangEnglishUS, 255),
			status: usbip.StatusOK,
		},
		{
			name:   "unsupported request",
			req:    usb.Standard(usb.HostToDevice, usb.RecipientDevice, usb.RequestSetDescriptor, 0, 0, 0),
			status: usbip.StatusStall,
		},
		{
			name:   "set configuration",
			req:    usb.SetConfiguration(3),
			status: usbip.StatusOK,
		},
		{
			name:   "get configuration",
			req:    usb.GetConfiguration(),
			status: usbip.StatusOK,
			data:   []byte{3},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, data, err := sess.Control(tc.req)
			require.NoError(t, err)
			assert.Equal(t, tc.status, status)
			if tc.data == nil {
				assert.Empty(t, data)
			} else {
				assert.Equal(t, tc.data, data)
			}
		})
	}

	devices, err := client.ListDevices()
	require.NoError(t, err)
	assert.Equal(t, uint8(3), devices[3].BConfigurationValue)
	assert.Len(t, devices[3].Interfaces, 3)
}

func TestNonControlEndpointStalls(t *testing.T) {
	_, client := newDemoServer(t)
	sess, err := client.AttachDevice("240-3")
	require.NoError(t, err)
	defer sess.Close()

	seq, err := sess.SendTo(2, usb.SetupPacket{}, []byte{1, 2, 3})
	require.NoError(t, err)
	ret, data, err := sess.ReadSubmit(usbip.DirOut)
	require.NoError(t, err)
	assert.Equal(t, seq, ret.Basic.Seqnum)
	assert.Equal(t, usbip.StatusStall, ret.Status)
	assert.Empty(t, data)
}

func TestOversizedOutPayloadClosesStream(t *testing.T) {
	type testCase struct {
		name  string
		ep    uint32
		setup usb.SetupPacket
		len   uint32
	}
	cases := []testCase{
		{name: "ep0 beyond wLength", ep: 0, setup: usb.Standard(usb.HostToDevice, usb.RecipientDevice, usb.RequestSetDescriptor, 0x0100, 0, 4), len: 0x7FFFFFFF},
		{name: "bulk beyond limit", ep: 2, len: 0x10000},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, client := newDemoServer(t)
			sess, err := client.AttachDevice("240-3")
			require.NoError(t, err)
			defer sess.Close()

			cmd := usbip.CmdSubmit{
				Basic:             usbip.HeaderBasic{Command: usbip.CmdSubmitCode, Seqnum: 1, Dir: usbip.DirOut, Ep: tc.ep},
				TransferBufferLen: tc.len,
			}
			tc.setup.MarshalTo(cmd.Setup[:])
			require.NoError(t, cmd.Write(sess.Conn))

			_, _, err = sess.ReadSubmit(usbip.DirOut)
			assert.Error(t, err, "connection closed without a reply")
		})
	}
}

func TestUnlinkPending(t *testing.T) {
	_, client := newDemoServer(t, virtualbus.WithCompletionDelay(time.Hour))
	sess, err := client.AttachDevice("242-0")
	require.NoError(t, err)
	defer sess.Close()

	seq, err := sess.Send(usb.GetConfiguration())
	require.NoError(t, err)
	own, err := sess.Unlink(seq)
	require.NoError(t, err)

	ret, err := sess.ReadUnlink()
	require.NoError(t, err)
	assert.Equal(t, own, ret.Basic.Seqnum)
	assert.Equal(t, usbip.StatusConnReset, ret.Status)

	again, err := sess.Unlink(seq)
	require.NoError(t, err)
	ret, err = sess.ReadUnlink()
	require.NoError(t, err)
	assert.Equal(t, again, ret.Basic.Seqnum)
	assert.Equal(t, usbip.StatusOK, ret.Status)
}

func TestRemovedDevice(t *testing.T) {
	bus, client := newDemoServer(t, virtualbus.WithCompletionDelay(time.Hour))
	sess, err := client.AttachDevice("242-0")
	require.NoError(t, err)
	defer sess.Close()

	seq, err := sess.Send(usb.GetConfiguration())
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, bus.Remove(demo.AddrTest1))

	ret, data, err := sess.ReadSubmit(usbip.DirIn)
	require.NoError(t, err)
	assert.Equal(t, seq, ret.Basic.Seqnum)
	assert.Equal(t, usbip.StatusNoDevice, ret.Status)
	assert.Empty(t, data)
}
