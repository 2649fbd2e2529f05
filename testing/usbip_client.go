// Package testing is a minimal USB-IP client for exercising the server in
// tests.
package testing

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Alia5/usbforge/usb"
	"github.com/Alia5/usbforge/usbip"
)

const defaultTimeout = 750 * time.Millisecond

type TestUsbIpClient struct {
	address string
	seq     uint32
}

func NewUsbIpClient(t testing.TB, addr string) *TestUsbIpClient {
	t.Helper()
	return &TestUsbIpClient{address: addr}
}

func readBE(r io.Reader, v any) error { return binary.Read(r, binary.BigEndian, v) }

func (c *TestUsbIpClient) nextSeq() uint32 {
	return atomic.AddUint32(&c.seq, 1)
}

// ListDevices performs OP_REQ_DEVLIST.
func (c *TestUsbIpClient) ListDevices() ([]usbip.ExportedDevice, error) {
	conn, err := net.DialTimeout("tcp", c.address, defaultTimeout)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(defaultTimeout))

	if err := (&usbip.MgmtHeader{Version: usbip.Version, Command: usbip.OpReqDevlist}).Write(conn); err != nil {
		return nil, err
	}
	hdr, err := usbip.ReadMgmtHeader(conn)
	if err != nil {
		return nil, err
	}
	if hdr.Command != usbip.OpRepDevlist {
		return nil, fmt.Errorf("unexpected reply command %x", hdr.Command)
	}
	var n usbip.DevListReplyHeader
	if err := readBE(conn, &n); err != nil {
		return nil, err
	}
	devices := make([]usbip.ExportedDevice, 0, n.NDevices)
	for i := uint32(0); i < n.NDevices; i++ {
		dev, err := usbip.ReadExportedDevice(conn, true)
		if err != nil {
			return nil, err
		}
		devices = append(devices, dev)
	}
	return devices, nil
}

// Session is an imported device.
type Session struct {
	Conn     net.Conn
	Exported usbip.ExportedDevice
	client   *TestUsbIpClient
}

// AttachDevice performs OP_REQ_IMPORT for busID.
func (c *TestUsbIpClient) AttachDevice(busID string) (*Session, error) {
	conn, err := net.DialTimeout("tcp", c.address, defaultTimeout)
	if err != nil {
		return nil, err
	}
	_ = conn.SetDeadline(time.Now().Add(defaultTimeout))

	var req bytes.Buffer
	_ = (&usbip.MgmtHeader{Version: usbip.Version, Command: usbip.OpReqImport}).Write(&req)
	var bus [usbip.BusIDSize]byte
	copy(bus[:], busID)
	req.Write(bus[:])
	if _, err := conn.Write(req.Bytes()); err != nil {
		conn.Close()
		return nil, err
	}

	hdr, err := usbip.ReadMgmtHeader(conn)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if hdr.Command != usbip.OpRepImport {
		conn.Close()
		return nil, fmt.Errorf("unexpected reply command %x", hdr.Command)
	}
	if hdr.Status != 0 {
		conn.Close()
		return nil, fmt.Errorf("import %s refused with status %d", busID, hdr.Status)
	}
	dev, err := usbip.ReadExportedDevice(conn, false)
	if err != nil {
		conn.Close()
		return nil, err
	}
	_ = conn.SetDeadline(time.Time{})
	return &Session{Conn: conn, Exported: dev, client: c}, nil
}

func (s *Session) Close() error { return s.Conn.Close() }

// Send writes a CMD_SUBMIT for req on EP0 without waiting for the reply and
// returns its seqnum.
func (s *Session) Send(req usb.SetupPacket) (uint32, error) {
	return s.SendTo(0, req, nil)
}

// SendTo writes a CMD_SUBMIT to endpoint ep.
func (s *Session) SendTo(ep uint32, req usb.SetupPacket, out []byte) (uint32, error) {
	seq := s.client.nextSeq()
	dir := uint32(usbip.DirOut)
	length := uint32(len(out))
	if req.Direction() == usb.DeviceToHost {
		dir = usbip.DirIn
		length = uint32(req.Length)
	}
	cmd := usbip.CmdSubmit{
		Basic:             usbip.HeaderBasic{Command: usbip.CmdSubmitCode, Seqnum: seq, Dir: dir, Ep: ep},
		TransferBufferLen: length,
	}
	req.MarshalTo(cmd.Setup[:])

	var buf bytes.Buffer
	_ = cmd.Write(&buf)
	buf.Write(out)
	_ = s.Conn.SetWriteDeadline(time.Now().Add(defaultTimeout))
	_, err := s.Conn.Write(buf.Bytes())
	return seq, err
}

// Unlink writes a CMD_UNLINK for seq and returns its own seqnum.
func (s *Session) Unlink(seq uint32) (uint32, error) {
	own := s.client.nextSeq()
	cmd := usbip.CmdUnlink{Basic: usbip.HeaderBasic{Command: usbip.CmdUnlinkCode, Seqnum: own}, UnlinkSeqnum: seq}
	_ = s.Conn.SetWriteDeadline(time.Now().Add(defaultTimeout))
	return own, cmd.Write(s.Conn)
}

// ReadSubmit reads the next RET_SUBMIT.
func (s *Session) ReadSubmit(dir uint32) (usbip.RetSubmit, []byte, error) {
	_ = s.Conn.SetReadDeadline(time.Now().Add(defaultTimeout))
	return usbip.ReadRetSubmit(s.Conn, dir)
}

// ReadUnlink reads the next RET_UNLINK.
func (s *Session) ReadUnlink() (usbip.RetUnlink, error) {
	_ = s.Conn.SetReadDeadline(time.Now().Add(defaultTimeout))
	return usbip.ReadRetUnlink(s.Conn)
}

// Control performs one control transfer and returns the status and IN data.
func (s *Session) Control(req usb.SetupPacket) (int32, []byte, error) {
	seq, err := s.Send(req)
	if err != nil {
		return 0, nil, err
	}
	dir := uint32(usbip.DirOut)
	if req.Direction() == usb.DeviceToHost {
		dir = usbip.DirIn
	}
	ret, data, err := s.ReadSubmit(dir)
	if err != nil {
		return 0, nil, err
	}
	if ret.Basic.Seqnum != seq {
		return 0, nil, fmt.Errorf("reply for seq %d, expected %d", ret.Basic.Seqnum, seq)
	}
	return ret.Status, data, nil
}
