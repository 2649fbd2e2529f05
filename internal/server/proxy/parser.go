package proxy

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/Alia5/usbforge/usb"
	"github.com/Alia5/usbforge/usbip"
)

const (
	// maxPending bounds the bytes buffered while waiting for a complete packet.
	maxPending = 1 << 20
	maxDevices = 1024
)

// errIncomplete means the buffer ends inside a packet.
var errIncomplete = errors.New("incomplete packet")

type stream struct {
	buf []byte
	urb bool
}

// Parser decodes both directions of one USB-IP connection for structured
// logging. It tolerates packets split across reads.
type Parser struct {
	logger *slog.Logger

	mu      sync.Mutex
	client  stream
	server  stream
	dirs    map[uint32]uint32 // submit seq -> URB direction
	unlinks map[uint32]uint32 // unlink seq -> submit seq
}

func NewParser(logger *slog.Logger) *Parser {
	return &Parser{
		logger:  logger,
		dirs:    map[uint32]uint32{},
		unlinks: map[uint32]uint32{},
	}
}

// Parse appends data to the stream of one direction and logs every packet
// it completes.
func (p *Parser) Parse(data []byte, clientToServer bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	st := &p.server
	if clientToServer {
		st = &p.client
	}
	st.buf = append(st.buf, data...)

	for len(st.buf) > 0 {
		r := bytes.NewReader(st.buf)
		var err error
		if clientToServer {
			err = p.clientPacket(r, st)
		} else {
			err = p.serverPacket(r, st)
		}
		if errors.Is(err, errIncomplete) {
			break
		}
		if err != nil {
			p.logger.Warn("Undecodable USB-IP traffic, resynchronising", "dir", dirString(clientToServer), "error", err)
			st.buf = st.buf[:0]
			return
		}
		st.buf = st.buf[len(st.buf)-r.Len():]
	}
	if len(st.buf) > maxPending {
		p.logger.Warn("Parser buffer overflow, resetting", "dir", dirString(clientToServer))
		st.buf = st.buf[:0]
	}
}

func incomplete(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return errIncomplete
	}
	return err
}

func (p *Parser) clientPacket(r *bytes.Reader, st *stream) error {
	dir := dirString(true)
	if !st.urb {
		h, err := usbip.ReadMgmtHeader(r)
		if err != nil {
			return incomplete(err)
		}
		switch h.Command {
		case usbip.OpReqDevlist:
			p.logger.Info("USBIP packet", "dir", dir, "op", "OP_REQ_DEVLIST")
		case usbip.OpReqImport:
			var busID [usbip.BusIDSize]byte
			if _, err := io.ReadFull(r, busID[:]); err != nil {
				return incomplete(err)
			}
			m := usbip.ExportMeta{USBBusId: busID}
			p.logger.Info("USBIP packet", "dir", dir, "op", "OP_REQ_IMPORT", "busid", m.BusID())
			st.urb = true
		default:
			return fmt.Errorf("%w: op 0x%04x", usbip.ErrUnknownCode, h.Command)
		}
		return nil
	}

	cmd, err := usbip.ReadCommand(r)
	if err != nil {
		return incomplete(err)
	}
	switch c := cmd.(type) {
	case *usbip.CmdSubmit:
		if c.Basic.Dir == usbip.DirOut && c.TransferBufferLen > 0 {
			if uint32(r.Len()) < c.TransferBufferLen {
				return errIncomplete
			}
			if _, err := r.Seek(int64(c.TransferBufferLen), io.SeekCurrent); err != nil {
				return err
			}
		}
		p.dirs[c.Basic.Seqnum] = c.Basic.Dir
		args := []any{
			"dir", dir,
			"op", "CMD_SUBMIT",
			"seq", c.Basic.Seqnum,
			"devid", c.Basic.Devid,
			"ep", c.Basic.Ep,
			"urb_dir", urbDirString(c.Basic.Dir),
			"len", c.TransferBufferLen,
		}
		if c.Basic.Ep == 0 {
			if setup, err := usb.ParseSetup(c.Setup[:]); err == nil {
				args = append(args, "setup", setup.String())
			}
		}
		p.logger.Info("USBIP packet", args...)
	case *usbip.CmdUnlink:
		p.unlinks[c.Basic.Seqnum] = c.UnlinkSeqnum
		p.logger.Info("USBIP packet",
			"dir", dir,
			"op", "CMD_UNLINK",
			"seq", c.Basic.Seqnum,
			"unlink_seq", c.UnlinkSeqnum)
	}
	return nil
}

func (p *Parser) serverPacket(r *bytes.Reader, st *stream) error {
	dir := dirString(false)
	if !st.urb {
		h, err := usbip.ReadMgmtHeader(r)
		if err != nil {
			return incomplete(err)
		}
		switch h.Command {
		case usbip.OpRepDevlist:
			var n usbip.DevListReplyHeader
			if err := binary.Read(r, binary.BigEndian, &n); err != nil {
				return incomplete(err)
			}
			if n.NDevices > maxDevices {
				return fmt.Errorf("devlist of %d devices", n.NDevices)
			}
			devices := make([]usbip.ExportedDevice, 0, n.NDevices)
			for i := uint32(0); i < n.NDevices; i++ {
				d, err := usbip.ReadExportedDevice(r, true)
				if err != nil {
					return incomplete(err)
				}
				devices = append(devices, d)
			}
			p.logger.Info("USBIP packet", "dir", dir, "op", "OP_REP_DEVLIST", "nDevices", n.NDevices)
			for _, d := range devices {
				p.logDevice("  Device", d)
				for j, in := range d.Interfaces {
					p.logger.Info("    Interface",
						"num", j,
						"class", fmt.Sprintf("%02x", in.Class),
						"subclass", fmt.Sprintf("%02x", in.SubClass),
						"protocol", fmt.Sprintf("%02x", in.Protocol))
				}
			}
		case usbip.OpRepImport:
			if h.Status != 0 {
				p.logger.Info("USBIP packet", "dir", dir, "op", "OP_REP_IMPORT", "status", h.Status)
				return nil
			}
			d, err := usbip.ReadExportedDevice(r, false)
			if err != nil {
				return incomplete(err)
			}
			p.logger.Info("USBIP packet", "dir", dir, "op", "OP_REP_IMPORT", "status", h.Status)
			p.logDevice("  Device", d)
			st.urb = true
		default:
			return fmt.Errorf("%w: op 0x%04x", usbip.ErrUnknownCode, h.Command)
		}
		return nil
	}

	if len(st.buf) < 8 {
		return errIncomplete
	}
	switch code := binary.BigEndian.Uint32(st.buf[:4]); code {
	case usbip.RetSubmitCode:
		seq := binary.BigEndian.Uint32(st.buf[4:8])
		urbDir, ok := p.dirs[seq]
		if !ok {
			urbDir = usbip.DirIn
		}
		ret, _, err := usbip.ReadRetSubmit(r, urbDir)
		if err != nil {
			return incomplete(err)
		}
		delete(p.dirs, seq)
		p.logger.Info("USBIP packet",
			"dir", dir,
			"op", "RET_SUBMIT",
			"seq", ret.Basic.Seqnum,
			"status", ret.Status,
			"actual_len", ret.ActualLength)
	case usbip.RetUnlinkCode:
		ret, err := usbip.ReadRetUnlink(r)
		if err != nil {
			return incomplete(err)
		}
		// A non-zero status means the URB was cancelled and gets no RET_SUBMIT.
		if target, ok := p.unlinks[ret.Basic.Seqnum]; ok {
			delete(p.unlinks, ret.Basic.Seqnum)
			if ret.Status != usbip.StatusOK {
				delete(p.dirs, target)
			}
		}
		p.logger.Info("USBIP packet",
			"dir", dir,
			"op", "RET_UNLINK",
			"seq", ret.Basic.Seqnum,
			"status", ret.Status)
	default:
		return fmt.Errorf("%w: %d", usbip.ErrUnknownCode, code)
	}
	return nil
}

func (p *Parser) logDevice(msg string, d usbip.ExportedDevice) {
	p.logger.Info(msg,
		"path", d.SysPath(),
		"busid", d.BusID(),
		"bus", d.BusId,
		"dev", d.DevId,
		"speed", d.Speed,
		"vid", fmt.Sprintf("%04x", d.IDVendor),
		"pid", fmt.Sprintf("%04x", d.IDProduct),
		"bcd", fmt.Sprintf("%04x", d.BcdDevice),
		"class", fmt.Sprintf("%02x", d.BDeviceClass),
		"config", d.BConfigurationValue,
		"nConfigs", d.BNumConfigurations,
		"nInterfaces", d.BNumInterfaces)
}

func dirString(clientToServer bool) string {
	if clientToServer {
		return "C->S"
	}
	return "S->C"
}

func urbDirString(dir uint32) string {
	if dir == usbip.DirOut {
		return "OUT"
	}
	return "IN"
}
