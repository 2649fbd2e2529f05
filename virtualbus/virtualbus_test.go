package virtualbus_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Alia5/usbforge/device"
	"github.com/Alia5/usbforge/usb"
	"github.com/Alia5/usbforge/usbip"
	"github.com/Alia5/usbforge/virtualbus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDevice(t *testing.T, bcdUSB usb.BCD) *device.Emulated {
	t.Helper()
	cfg := usb.MustCompose(usb.ConfigDescriptor{
		BConfigurationValue: 1,
		MaxPower:            usb.MilliAmps(100),
		Interfaces: usb.Array[usb.InterfaceDescriptor]{
			{BInterfaceNumber: 0, BInterfaceClass: usb.ClassVendor},
		},
	})
	dev, err := device.New(device.Config{
		Device: usb.MustCompose(usb.DeviceDescriptor{
			BcdUSB:             bcdUSB,
			BMaxPacketSize0:    usb.MaxPacketSize64,
			IDVendor:           0x1209,
			IDProduct:          0x0001,
			BNumConfigurations: 1,
		}).Bytes(),
		Configurations: [][]byte{cfg.Bytes()},
	})
	require.NoError(t, err)
	return dev
}

func TestAddRemove(t *testing.T) {
	bus := virtualbus.New()
	defer bus.Close()
	dev := newDevice(t, usb.NewBCD(2, 0))

	require.NoError(t, bus.Add(0x20, dev))

	err := bus.Add(0x20, newDevice(t, usb.NewBCD(2, 0)))
	require.ErrorIs(t, err, virtualbus.ErrAddressInUse)
	var collision *virtualbus.CollisionError
	require.True(t, errors.As(err, &collision))
	assert.Equal(t, virtualbus.Address(0x20), collision.Address)
	assert.Contains(t, collision.Existing, "virtualbus_test.go")
	assert.Contains(t, collision.Attempted, "virtualbus_test.go")
	assert.NotEqual(t, collision.Existing, collision.Attempted)

	assert.ErrorIs(t, bus.Add(0, dev), virtualbus.ErrInvalidAddress)
	assert.ErrorIs(t, bus.Add(128, dev), virtualbus.ErrInvalidAddress)

	got, ok := bus.Lookup(0x20)
	assert.True(t, ok)
	assert.Same(t, dev, got)

	require.NoError(t, bus.Remove(0x20))
	assert.ErrorIs(t, bus.Remove(0x20), virtualbus.ErrNoDevice)
	_, ok = bus.Lookup(0x20)
	assert.False(t, ok)

	require.NoError(t, bus.Add(0x20, dev))
}

func TestDevicesAndInfo(t *testing.T) {
	bus := virtualbus.New(virtualbus.WithBusBase(240))
	defer bus.Close()

	require.NoError(t, bus.Add(0x21, newDevice(t, usb.NewBCD(2, 0))))
	require.NoError(t, bus.Add(0x03, newDevice(t, usb.NewBCD(1, 1))))
	require.NoError(t, bus.Add(0x20, newDevice(t, usb.NewBCD(2, 0))))

	entries := bus.Devices()
	require.Len(t, entries, 3)
	assert.Equal(t, virtualbus.Address(0x03), entries[0].Address)
	assert.Equal(t, virtualbus.Address(0x20), entries[1].Address)
	assert.Equal(t, virtualbus.Address(0x21), entries[2].Address)

	type testCase struct {
		addr  virtualbus.Address
		bus   uint32
		port  uint32
		speed uint32
		busID string
	}
	cases := []testCase{
		{addr: 0x03, bus: 240, port: 3, speed: usbip.SpeedFull, busID: "240-3"},
		{addr: 0x20, bus: 242, port: 0, speed: usbip.SpeedHigh, busID: "242-0"},
		{addr: 0x21, bus: 242, port: 1, speed: usbip.SpeedHigh, busID: "242-1"},
	}
	for _, tc := range cases {
		t.Run(tc.busID, func(t *testing.T) {
			info, err := bus.Info(tc.addr)
			require.NoError(t, err)
			assert.Equal(t, tc.bus, info.Bus)
			assert.Equal(t, tc.port, info.Port)
			assert.Equal(t, tc.speed, info.Speed)
			assert.Equal(t, tc.busID, info.BusID())
			assert.Equal(t, tc.busID, info.Meta.BusID())
			assert.Contains(t, info.Meta.SysPath(), tc.busID)
		})
	}

	_, err := bus.Info(0x40)
	assert.ErrorIs(t, err, virtualbus.ErrNoDevice)
}

func TestSubmitCompletes(t *testing.T) {
	bus := virtualbus.New(virtualbus.WithCompletionDelay(5 * time.Millisecond))
	defer bus.Close()
	require.NoError(t, bus.Add(0x20, newDevice(t, usb.NewBCD(2, 0))))

	var called sync.WaitGroup
	called.Add(1)
	tr, err := bus.Submit(context.Background(), 0x20, usb.GetDescriptor(usb.DescriptorTypeDevice, 0, 0, 8).Bytes(), func(*virtualbus.Transfer) {
		called.Done()
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, tr.Wait(ctx))
	called.Wait()

	assert.Equal(t, virtualbus.Completed, tr.Status())
	data, err := tr.Result()
	require.NoError(t, err)
	assert.Equal(t, []byte{0x12, 0x01, 0x00, 0x02, 0x00, 0x00, 0x00, 0x40}, data)
	assert.False(t, tr.Cancel())

	select {
	case ev := <-bus.Events():
		assert.Equal(t, tr.ID, ev.ID)
	case <-ctx.Done():
		t.Fatal("no completion event")
	}
}

func TestSubmitOutcomes(t *testing.T) {
	bus := virtualbus.New(virtualbus.WithCompletionDelay(0))
	defer bus.Close()
	require.NoError(t, bus.Add(0x20, newDevice(t, usb.NewBCD(2, 0))))

	type testCase struct {
		name   string
		req    usb.SetupPacket
		status virtualbus.TransferStatus
		err    error
	}
	cases := []testCase{
		{name: "completed", req: usb.GetConfiguration(), status: virtualbus.Completed},
		{name: "not found", req: usb.GetDescriptor(usb.DescriptorTypeConfiguration, 5, 0, 255), status: virtualbus.NotFound, err: device.ErrNotFound},
		{name: "stalled", req: usb.Standard(usb.HostToDevice, usb.RecipientDevice, usb.RequestSetDescriptor, 0, 0, 0), status: virtualbus.Stalled, err: device.ErrStall},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tr, err := bus.Submit(context.Background(), 0x20, tc.req.Bytes(), nil)
			require.NoError(t, err)
			require.NoError(t, tr.Wait(context.Background()))
			assert.Equal(t, tc.status, tr.Status())
			_, err = tr.Result()
			if tc.err == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tc.err)
			}
		})
	}

	_, err := bus.Submit(context.Background(), 0x40, usb.GetConfiguration().Bytes(), nil)
	assert.ErrorIs(t, err, virtualbus.ErrNoDevice)
	_, err = bus.Submit(context.Background(), 0x20, []byte{0x80, 0x06}, nil)
	assert.ErrorIs(t, err, usb.ErrSetupPacketTooShort)
}

func TestCancel(t *testing.T) {
	bus := virtualbus.New(virtualbus.WithCompletionDelay(time.Hour))
	defer bus.Close()
	require.NoError(t, bus.Add(0x20, newDevice(t, usb.NewBCD(2, 0))))

	tr, err := bus.Submit(context.Background(), 0x20, usb.GetConfiguration().Bytes(), nil)
	require.NoError(t, err)
	_, err = tr.Result()
	assert.ErrorIs(t, err, virtualbus.ErrPending)

	assert.True(t, tr.Cancel())
	assert.False(t, tr.Cancel())
	<-tr.Done()
	assert.Equal(t, virtualbus.Cancelled, tr.Status())
	_, err = tr.Result()
	assert.ErrorIs(t, err, virtualbus.ErrCancelled)
}

func TestCancelKeepsSubmittedEffect(t *testing.T) {
	bus := virtualbus.New(virtualbus.WithCompletionDelay(time.Hour))
	defer bus.Close()
	dev := newDevice(t, usb.NewBCD(2, 0))
	require.NoError(t, bus.Add(0x20, dev))

	tr, err := bus.Submit(context.Background(), 0x20, usb.SetConfiguration(1).Bytes(), nil)
	require.NoError(t, err)
	_, value, ok := dev.ActiveConfiguration()
	require.True(t, ok, "applied at submission")
	assert.Equal(t, uint8(1), value)

	assert.True(t, tr.Cancel())
	<-tr.Done()
	assert.Equal(t, virtualbus.Cancelled, tr.Status())
	_, value, ok = dev.ActiveConfiguration()
	assert.True(t, ok)
	assert.Equal(t, uint8(1), value)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	tr, err = bus.Submit(ctx, 0x20, usb.SetConfiguration(0).Bytes(), nil)
	require.NoError(t, err)
	<-tr.Done()
	assert.Equal(t, virtualbus.Cancelled, tr.Status())
	_, _, ok = dev.ActiveConfiguration()
	assert.True(t, ok, "a done ctx never reaches the device")
}

func TestRemoveCancelsPending(t *testing.T) {
	bus := virtualbus.New(virtualbus.WithCompletionDelay(time.Hour))
	defer bus.Close()
	require.NoError(t, bus.Add(0x20, newDevice(t, usb.NewBCD(2, 0))))

	tr, err := bus.Submit(context.Background(), 0x20, usb.GetConfiguration().Bytes(), nil)
	require.NoError(t, err)
	require.NoError(t, bus.Remove(0x20))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, tr.Wait(ctx))
	assert.Equal(t, virtualbus.NoDevice, tr.Status())
}

func TestControl(t *testing.T) {
	bus := virtualbus.New()
	defer bus.Close()
	require.NoError(t, bus.Add(0x20, newDevice(t, usb.NewBCD(2, 0))))

	_, err := bus.Control(context.Background(), 0x20, usb.SetConfiguration(1))
	require.NoError(t, err)
	got, err := bus.Control(context.Background(), 0x20, usb.GetConfiguration())
	require.NoError(t, err)
	assert.Equal(t, []byte{1}, got)

	slow := virtualbus.New(virtualbus.WithCompletionDelay(time.Hour))
	defer slow.Close()
	require.NoError(t, slow.Add(0x20, newDevice(t, usb.NewBCD(2, 0))))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = slow.Control(ctx, 0x20, usb.GetConfiguration())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestIndependentAddresses(t *testing.T) {
	bus := virtualbus.New(virtualbus.WithCompletionDelay(0))
	defer bus.Close()
	require.NoError(t, bus.Add(0x20, newDevice(t, usb.NewBCD(2, 0))))
	require.NoError(t, bus.Add(0x21, newDevice(t, usb.NewBCD(2, 0))))

	_, err := bus.Control(context.Background(), 0x20, usb.SetConfiguration(1))
	require.NoError(t, err)

	got, err := bus.Control(context.Background(), 0x21, usb.GetConfiguration())
	require.NoError(t, err)
	assert.Equal(t, []byte{0}, got)
}
