package usb

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/Alia5/usbforge/usbip"
	"github.com/Alia5/usbforge/virtualbus"
)

// urbStream serves one imported device. Submissions complete out of order;
// writes to the connection are serialized by wmu.
type urbStream struct {
	s    *Server
	conn net.Conn
	addr virtualbus.Address

	wmu sync.Mutex

	mu      sync.Mutex
	pending map[uint32]*virtualbus.Transfer
}

func (s *Server) handleUrbStream(ctx context.Context, conn net.Conn, e virtualbus.Entry) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	st := &urbStream{s: s, conn: conn, addr: e.Address, pending: map[uint32]*virtualbus.Transfer{}}
	logger := s.logger.With("busid", e.BusID())
	for {
		cmd, err := usbip.ReadCommand(conn)
		if err != nil {
			return fmt.Errorf("read URB header: %w", err)
		}
		switch c := cmd.(type) {
		case *usbip.CmdSubmit:
			var out []byte
			if c.Basic.Dir == usbip.DirOut && c.TransferBufferLen > 0 {
				if err := checkOutLength(c); err != nil {
					return err
				}
				out = make([]byte, c.TransferBufferLen)
				if _, err := io.ReadFull(conn, out); err != nil {
					return fmt.Errorf("read OUT payload: %w", err)
				}
			}
			if c.Basic.Ep != 0 {
				logger.Debug("stalling non-control endpoint", "seq", c.Basic.Seqnum, "ep", c.Basic.Ep)
				if err := st.reply(c.Basic.Seqnum, usbip.StatusStall, nil); err != nil {
					return err
				}
				continue
			}
			if err := st.submit(ctx, c, uint32(len(out))); err != nil {
				if errors.Is(err, virtualbus.ErrNoDevice) {
					logger.Info("device removed, closing URB stream")
					return st.reply(c.Basic.Seqnum, usbip.StatusNoDevice, nil)
				}
				logger.Debug("rejecting submit", "seq", c.Basic.Seqnum, "error", err)
				if err := st.reply(c.Basic.Seqnum, usbip.StatusStall, nil); err != nil {
					return err
				}
			}
		case *usbip.CmdUnlink:
			status := st.unlink(c.UnlinkSeqnum)
			logger.Debug("USBIP_CMD_UNLINK", "seq", c.Basic.Seqnum, "unlink", c.UnlinkSeqnum, "status", status)
			ret := usbip.RetUnlink{Basic: usbip.HeaderBasic{Command: usbip.RetUnlinkCode, Seqnum: c.Basic.Seqnum}, Status: status}
			if err := st.write(&ret, nil); err != nil {
				return err
			}
		}
	}
}

// maxOutLength bounds an OUT payload on endpoints without a setup packet.
const maxOutLength = 0xFFFF

// checkOutLength rejects an OUT payload longer than the request allows. On
// EP0 the bound is the setup packet's wLength.
func checkOutLength(c *usbip.CmdSubmit) error {
	limit := uint32(maxOutLength)
	if c.Basic.Ep == 0 {
		limit = uint32(binary.LittleEndian.Uint16(c.Setup[6:8]))
	}
	if c.TransferBufferLen > limit {
		return fmt.Errorf("%w: seq %d OUT length %d exceeds %d", ErrProtocol, c.Basic.Seqnum, c.TransferBufferLen, limit)
	}
	return nil
}

func (st *urbStream) submit(ctx context.Context, c *usbip.CmdSubmit, outLen uint32) error {
	seq, dir := c.Basic.Seqnum, c.Basic.Dir

	st.mu.Lock()
	defer st.mu.Unlock()
	t, err := st.s.bus.Submit(ctx, st.addr, c.Setup[:], func(t *virtualbus.Transfer) {
		st.complete(seq, dir, outLen, t)
	})
	if err != nil {
		return err
	}
	st.pending[seq] = t
	st.s.logger.Debug("USBIP_CMD_SUBMIT", "seq", seq, "id", t.ID, "setup", t.Setup)
	return nil
}

// complete runs on the transfer's goroutine. A cancelled transfer gets no
// RET_SUBMIT; its RET_UNLINK answers for it.
func (st *urbStream) complete(seq, dir, outLen uint32, t *virtualbus.Transfer) {
	st.mu.Lock()
	delete(st.pending, seq)
	st.mu.Unlock()

	data, _ := t.Result()
	status := usbip.StatusOK
	switch t.Status() {
	case virtualbus.Completed:
		if dir != usbip.DirIn {
			data = nil
		}
	case virtualbus.NotFound:
		data = nil
	case virtualbus.Stalled:
		status, data = usbip.StatusStall, nil
	case virtualbus.NoDevice:
		status, data = usbip.StatusNoDevice, nil
	default:
		return
	}

	ret := usbip.RetSubmit{
		Basic:        usbip.HeaderBasic{Command: usbip.RetSubmitCode, Seqnum: seq},
		Status:       status,
		ActualLength: uint32(len(data)),
	}
	if dir == usbip.DirOut && status == usbip.StatusOK {
		ret.ActualLength = outLen
	}
	if err := st.write(&ret, data); err != nil {
		st.s.logger.Debug("write RET_SUBMIT", "seq", seq, "error", err)
	}
}

// unlink cancels the transfer submitted as seq and returns the RET_UNLINK
// status.
func (st *urbStream) unlink(seq uint32) int32 {
	st.mu.Lock()
	t := st.pending[seq]
	st.mu.Unlock()
	if t != nil && t.Cancel() {
		return usbip.StatusConnReset
	}
	return usbip.StatusOK
}

func (st *urbStream) reply(seq uint32, status int32, data []byte) error {
	ret := usbip.RetSubmit{
		Basic:        usbip.HeaderBasic{Command: usbip.RetSubmitCode, Seqnum: seq},
		Status:       status,
		ActualLength: uint32(len(data)),
	}
	return st.write(&ret, data)
}

type wireWriter interface {
	Write(w io.Writer) error
}

func (st *urbStream) write(hdr wireWriter, data []byte) error {
	var out bytes.Buffer
	if err := hdr.Write(&out); err != nil {
		return fmt.Errorf("encode reply: %w", err)
	}
	out.Write(data)

	st.wmu.Lock()
	defer st.wmu.Unlock()
	if _, err := st.conn.Write(out.Bytes()); err != nil {
		return fmt.Errorf("write reply: %w", err)
	}
	return nil
}
