// Package usb serves the devices of a virtual bus over USB-IP.
package usb

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/Alia5/usbforge/internal/log"
	"github.com/Alia5/usbforge/usbip"
	"github.com/Alia5/usbforge/virtualbus"
)

// ErrProtocol is a client that skipped or garbled the management phase, or
// sent an OUT payload longer than its request allows.
var ErrProtocol = errors.New("usbip protocol violation")

type Server struct {
	config    *ServerConfig
	logger    *slog.Logger
	rawLogger log.RawLogger
	bus       *virtualbus.Bus
	ready     chan struct{}
	readyOnce sync.Once
	lnMu      sync.Mutex
	ln        net.Listener
}

func New(config ServerConfig, bus *virtualbus.Bus, logger *slog.Logger, rawLogger log.RawLogger) *Server {
	if rawLogger == nil {
		rawLogger = log.NewRaw(nil)
	}
	return &Server{
		config:    &config,
		logger:    logger,
		rawLogger: rawLogger,
		bus:       bus,
		ready:     make(chan struct{}),
	}
}

// ListenAndServe accepts USB-IP clients until Close is called or ctx ends.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := listen(ctx, s.config.Addr)
	if err != nil {
		return err
	}
	s.lnMu.Lock()
	s.ln = ln
	s.lnMu.Unlock()
	s.readyOnce.Do(func() { close(s.ready) })
	s.logger.Info("USBIP server listening", "addr", ln.Addr())

	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()

	connCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer wg.Wait()
	defer cancel()

	for {
		c, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				s.logger.Info("USBIP server stopped")
				return nil
			}
			s.logger.Error("Accept error", "error", err)
			continue
		}
		s.logger.Info("Client connected", "remote", c.RemoteAddr())
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.handleConn(connCtx, c); err != nil {
				if isClientDisconnect(err) {
					s.logger.Info("Client disconnected", "error", err)
				} else {
					s.logger.Error("Connection handler error", "error", err)
				}
			}
		}()
	}
}

// Ready returns a channel that is closed once the server has successfully bound
// to its listen address and is ready to accept connections.
func (s *Server) Ready() <-chan struct{} { return s.ready }

// Addr is the bound listen address, or nil before Ready.
func (s *Server) Addr() net.Addr {
	s.lnMu.Lock()
	defer s.lnMu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Close stops the USB server by closing its listener.
func (s *Server) Close() error {
	s.lnMu.Lock()
	defer s.lnMu.Unlock()
	if s.ln != nil {
		return s.ln.Close()
	}
	return nil
}

// GetListenPort extracts and returns the port number from the server's listen address.
func (s *Server) GetListenPort() uint16 {
	addr := s.config.Addr
	if a := s.Addr(); a != nil {
		addr = a.String()
	}
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return 0
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return 0
	}
	return uint16(port)
}

// --

func (s *Server) handleConn(ctx context.Context, conn net.Conn) error {
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()
	conn = &logConn{Conn: conn, s: s}
	if s.config.ConnectionTimeout > 0 {
		if err := conn.SetDeadline(time.Now().Add(s.config.ConnectionTimeout)); err != nil {
			s.logger.Warn("Failed to set deadline", "error", err)
		}
	}

	hdr, err := usbip.ReadMgmtHeader(conn)
	if err != nil {
		return fmt.Errorf("read header: %w", err)
	}

	switch hdr.Command {
	case usbip.OpReqDevlist:
		s.logger.Info("OP_REQ_DEVLIST")
		return s.handleDevList(conn)
	case usbip.OpReqImport:
		s.logger.Info("OP_REQ_IMPORT")
		entry, err := s.handleImport(conn)
		if err != nil {
			return fmt.Errorf("handle import: %w", err)
		}
		_ = conn.SetDeadline(time.Time{})
		return s.handleUrbStream(ctx, conn, entry)
	}
	return fmt.Errorf("%w: command 0x%04x without OP_REQ_IMPORT", ErrProtocol, hdr.Command)
}

// exported describes a device the way the kernel's usbip_usb_device does,
// using the active configuration, or the first one while unconfigured. Each
// interface is listed once, by its first alternate setting.
func exported(e virtualbus.Entry) usbip.ExportedDevice {
	dev := e.Device
	idx, value, ok := dev.ActiveConfiguration()
	if !ok {
		idx = 0
	}
	exp := usbip.ExportedDevice{
		ExportMeta:          e.Meta,
		Speed:               e.Speed,
		IDVendor:            dev.VendorID(),
		IDProduct:           dev.ProductID(),
		BcdDevice:           uint16(dev.Release()),
		BDeviceClass:        uint8(dev.Class()),
		BDeviceSubClass:     dev.SubClass(),
		BDeviceProtocol:     dev.Protocol(),
		BConfigurationValue: value,
		BNumConfigurations:  uint8(dev.NumConfigurations()),
	}
	seen := map[uint8]bool{}
	for _, in := range dev.Interfaces(idx) {
		if seen[in.Number] {
			continue
		}
		seen[in.Number] = true
		exp.Interfaces = append(exp.Interfaces, usbip.InterfaceDesc{
			Class:    uint8(in.Class),
			SubClass: in.SubClass,
			Protocol: in.Protocol,
		})
	}
	exp.BNumInterfaces = uint8(len(exp.Interfaces))
	return exp
}

func (s *Server) handleDevList(conn net.Conn) error {
	var buf bytes.Buffer
	rep := usbip.MgmtHeader{Version: usbip.Version, Command: usbip.OpRepDevlist}
	_ = rep.Write(&buf)
	entries := s.bus.Devices()
	dlh := usbip.DevListReplyHeader{NDevices: uint32(len(entries))}
	_ = dlh.Write(&buf)
	for _, e := range entries {
		exp := exported(e)
		if err := exp.WriteDevlist(&buf); err != nil {
			return fmt.Errorf("encode devlist: %w", err)
		}
	}
	if _, err := conn.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("write devlist: %w", err)
	}
	return nil
}

func (s *Server) handleImport(conn net.Conn) (virtualbus.Entry, error) {
	var busID [usbip.BusIDSize]byte
	if _, err := io.ReadFull(conn, busID[:]); err != nil {
		return virtualbus.Entry{}, fmt.Errorf("read import busid: %w", err)
	}
	req := string(bytes.TrimRight(busID[:], "\x00"))
	s.logger.Info("Import request", "busid", req)

	for _, e := range s.bus.Devices() {
		if e.BusID() != req {
			continue
		}
		var buf bytes.Buffer
		rep := usbip.MgmtHeader{Version: usbip.Version, Command: usbip.OpRepImport}
		_ = rep.Write(&buf)
		exp := exported(e)
		_ = exp.WriteImport(&buf)
		if _, err := conn.Write(buf.Bytes()); err != nil {
			return virtualbus.Entry{}, fmt.Errorf("write import reply failed: %w", err)
		}
		return e, nil
	}

	rep := usbip.MgmtHeader{Version: usbip.Version, Command: usbip.OpRepImport, Status: usbip.OpStatusError}
	_ = rep.Write(conn)
	return virtualbus.Entry{}, fmt.Errorf("no device matches busid %s", req)
}

type logConn struct {
	net.Conn
	s *Server
}

func (lc *logConn) Read(p []byte) (int, error) {
	n, err := lc.Conn.Read(p)
	if n > 0 {
		lc.s.rawLogger.Log(true, p[:n])
	}
	return n, err
}

func (lc *logConn) Write(p []byte) (int, error) {
	n, err := lc.Conn.Write(p)
	if n > 0 {
		lc.s.rawLogger.Log(false, p[:n])
	}
	return n, err
}

// isClientDisconnect tests whether an error represents a normal client
// disconnect (EOF, ECONNRESET, broken pipe, or the Windows WSAECONNRESET
// translated error). We treat those as normal client disconnects and log
// them at Info level instead of Error.
func isClientDisconnect(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) {
		return true
	}
	e := strings.ToLower(err.Error())
	return strings.Contains(e, "connection reset by peer") || strings.Contains(e, "forcibly closed") || strings.Contains(e, "aborted")
}
