package usbip_test

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/Alia5/usbforge/usbip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExportedDeviceLayout(t *testing.T) {
	dev := usbip.ExportedDevice{
		ExportMeta:          usbip.NewExportMeta("/sys/devices/usb242/242-1", "242-1", 242, 1),
		Speed:               usbip.SpeedHigh,
		IDVendor:            0x0102,
		IDProduct:           0x0304,
		BcdDevice:           0x0100,
		BConfigurationValue: 1,
		BNumConfigurations:  2,
		BNumInterfaces:      2,
		Interfaces: []usbip.InterfaceDesc{
			{Class: 0x01, SubClass: 0x01},
			{Class: 0x01, SubClass: 0x02, Protocol: 0x20},
		},
	}

	var devlist bytes.Buffer
	require.NoError(t, dev.WriteDevlist(&devlist))
	b := devlist.Bytes()
	require.Len(t, b, 312+2*4)

	assert.Equal(t, "/sys/devices/usb242/242-1", string(bytes.TrimRight(b[:256], "\x00")))
	assert.Equal(t, "242-1", string(bytes.TrimRight(b[256:288], "\x00")))
	assert.Equal(t, uint32(242), binary.BigEndian.Uint32(b[288:292]))
	assert.Equal(t, uint32(1), binary.BigEndian.Uint32(b[292:296]))
	assert.Equal(t, usbip.SpeedHigh, binary.BigEndian.Uint32(b[296:300]))
	assert.Equal(t, []byte{0x01, 0x02, 0x03, 0x04, 0x01, 0x00}, b[300:306])
	assert.Equal(t, []byte{0, 0, 0, 1, 2, 2}, b[306:312])
	assert.Equal(t, []byte{0x01, 0x01, 0x00, 0x00, 0x01, 0x02, 0x20, 0x00}, b[312:])

	var imp bytes.Buffer
	require.NoError(t, dev.WriteImport(&imp))
	assert.Equal(t, b[:312], imp.Bytes())

	back, err := usbip.ReadExportedDevice(bytes.NewReader(b), true)
	require.NoError(t, err)
	assert.Equal(t, "242-1", back.BusID())
	assert.Equal(t, dev.Interfaces, back.Interfaces)
}

func TestReadCommand(t *testing.T) {
	submit := usbip.CmdSubmit{
		Basic:             usbip.HeaderBasic{Command: usbip.CmdSubmitCode, Seqnum: 7, Devid: 0x00F20001, Dir: usbip.DirIn},
		TransferBufferLen: 18,
		Setup:             [8]byte{0x80, 0x06, 0x00, 0x01, 0x00, 0x00, 0x12, 0x00},
	}
	unlink := usbip.CmdUnlink{
		Basic:        usbip.HeaderBasic{Command: usbip.CmdUnlinkCode, Seqnum: 8},
		UnlinkSeqnum: 7,
	}

	var stream bytes.Buffer
	require.NoError(t, submit.Write(&stream))
	assert.Equal(t, usbip.URBHeaderSize, stream.Len())
	require.NoError(t, unlink.Write(&stream))
	assert.Equal(t, 2*usbip.URBHeaderSize, stream.Len())

	cmd, err := usbip.ReadCommand(&stream)
	require.NoError(t, err)
	require.IsType(t, &usbip.CmdSubmit{}, cmd)
	assert.Equal(t, submit, *cmd.(*usbip.CmdSubmit))

	cmd, err = usbip.ReadCommand(&stream)
	require.NoError(t, err)
	require.IsType(t, &usbip.CmdUnlink{}, cmd)
	assert.Equal(t, uint32(7), cmd.(*usbip.CmdUnlink).UnlinkSeqnum)

	bogus := make([]byte, usbip.URBHeaderSize)
	bogus[3] = 9
	_, err = usbip.ReadCommand(bytes.NewReader(bogus))
	assert.ErrorIs(t, err, usbip.ErrUnknownCode)
}

func TestRetSubmit(t *testing.T) {
	ret := usbip.RetSubmit{
		Basic:        usbip.HeaderBasic{Command: usbip.RetSubmitCode, Seqnum: 3},
		Status:       usbip.StatusStall,
		ActualLength: 2,
	}
	var buf bytes.Buffer
	require.NoError(t, ret.Write(&buf))
	b := buf.Bytes()
	require.Len(t, b, usbip.URBHeaderSize)
	assert.Equal(t, []byte{0xFF, 0xFF, 0xFF, 0xE0}, b[20:24])

	buf.Write([]byte{0x01, 0x00})
	got, data, err := usbip.ReadRetSubmit(&buf, usbip.DirIn)
	require.NoError(t, err)
	assert.Equal(t, usbip.StatusStall, got.Status)
	assert.Equal(t, []byte{0x01, 0x00}, data)
}

func TestMgmtHeaderVersion(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, (&usbip.MgmtHeader{Version: usbip.Version, Command: usbip.OpReqDevlist}).Write(&buf))
	assert.Equal(t, []byte{0x01, 0x11, 0x80, 0x05, 0, 0, 0, 0}, buf.Bytes())

	h, err := usbip.ReadMgmtHeader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, uint16(usbip.OpReqDevlist), h.Command)

	_, err = usbip.ReadMgmtHeader(bytes.NewReader([]byte{0x01, 0x06, 0x80, 0x05, 0, 0, 0, 0}))
	assert.ErrorIs(t, err, usbip.ErrVersion)
}
