// Package proxy forwards USB-IP connections to an upstream server and logs
// the decoded traffic.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Alia5/usbforge/internal/log"
)

type Server struct {
	listenAddr        string
	upstreamAddr      string
	connectionTimeout time.Duration
	logger            *slog.Logger
	rawLogger         log.RawLogger

	ready     chan struct{}
	readyOnce sync.Once
	lnMu      sync.Mutex
	ln        net.Listener
}

func New(listenAddr, upstreamAddr string, connectionTimeout time.Duration, logger *slog.Logger, rawLogger log.RawLogger) *Server {
	if rawLogger == nil {
		rawLogger = log.NewRaw(nil)
	}
	return &Server{
		listenAddr:        listenAddr,
		upstreamAddr:      upstreamAddr,
		connectionTimeout: connectionTimeout,
		logger:            logger,
		rawLogger:         rawLogger,
		ready:             make(chan struct{}),
	}
}

// ListenAndServe accepts clients until ctx ends or Close is called.
func (s *Server) ListenAndServe(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.listenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.listenAddr, err)
	}
	s.lnMu.Lock()
	s.ln = ln
	s.lnMu.Unlock()
	s.readyOnce.Do(func() { close(s.ready) })
	s.logger.Info("USB-IP proxy listening", "addr", ln.Addr(), "upstream", s.upstreamAddr)

	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		clientConn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				s.logger.Info("Proxy server stopped")
				return nil
			}
			s.logger.Error("Accept error", "error", err)
			continue
		}
		s.logger.Info("Client connected", "remote", clientConn.RemoteAddr())
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.handleProxy(ctx, clientConn)
		}()
	}
}

// Ready is closed once the listener is bound.
func (s *Server) Ready() <-chan struct{} { return s.ready }

// Addr is the bound listener address, or nil before Ready.
func (s *Server) Addr() net.Addr {
	s.lnMu.Lock()
	defer s.lnMu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

func (s *Server) Close() error {
	s.lnMu.Lock()
	defer s.lnMu.Unlock()
	if s.ln != nil {
		return s.ln.Close()
	}
	return nil
}

func (s *Server) handleProxy(ctx context.Context, clientConn net.Conn) {
	defer clientConn.Close()

	d := net.Dialer{Timeout: s.connectionTimeout}
	upstreamConn, err := d.DialContext(ctx, "tcp", s.upstreamAddr)
	if err != nil {
		s.logger.Error("Failed to connect to upstream", "upstream", s.upstreamAddr, "error", err)
		return
	}
	defer upstreamConn.Close()

	s.logger.Info("Proxying connection", "client", clientConn.RemoteAddr(), "upstream", upstreamConn.RemoteAddr())

	deadline := time.Now().Add(s.connectionTimeout)
	if err := clientConn.SetDeadline(deadline); err != nil {
		s.logger.Error("Failed to set client deadline", "error", err)
		return
	}
	if err := upstreamConn.SetDeadline(deadline); err != nil {
		s.logger.Error("Failed to set upstream deadline", "error", err)
		return
	}

	stop := context.AfterFunc(ctx, func() {
		_ = clientConn.Close()
		_ = upstreamConn.Close()
	})
	defer stop()

	// One parser per connection: RET_SUBMIT decoding needs the direction
	// recorded from the matching CMD_SUBMIT.
	parser := NewParser(s.logger)

	var g errgroup.Group
	g.Go(func() error {
		n, err := s.copyWithLogging(upstreamConn, clientConn, parser, true)
		s.logger.Debug("Client->Server stream ended", "bytes", n)
		halfClose(upstreamConn, true)
		halfClose(clientConn, false)
		return err
	})
	g.Go(func() error {
		n, err := s.copyWithLogging(clientConn, upstreamConn, parser, false)
		s.logger.Debug("Server->Client stream ended", "bytes", n)
		halfClose(clientConn, true)
		halfClose(upstreamConn, false)
		return err
	})
	if err := g.Wait(); err != nil && !isExpectedDisconnect(err) {
		s.logger.Debug("Proxy copy error", "error", err)
	}
	s.logger.Info("Connection closed", "client", clientConn.RemoteAddr())
}

func (s *Server) copyWithLogging(dst, src net.Conn, parser *Parser, clientToServer bool) (int64, error) {
	buf := make([]byte, 32*1024)
	var total int64
	firstPacket := true

	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			s.rawLogger.Log(clientToServer, buf[:n])
			// Parse before forwarding so a reply is never decoded ahead of
			// its command.
			parser.Parse(buf[:n], clientToServer)

			if firstPacket {
				if err := src.SetDeadline(time.Time{}); err != nil {
					return total, err
				}
				if err := dst.SetDeadline(time.Time{}); err != nil {
					return total, err
				}
				firstPacket = false
			}

			wn, werr := dst.Write(buf[:n])
			total += int64(wn)
			if werr != nil {
				return total, werr
			}
			if wn != n {
				return total, fmt.Errorf("short write: wrote %d of %d", wn, n)
			}
		}
		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				return total, nil
			}
			return total, rerr
		}
	}
}

func halfClose(conn net.Conn, write bool) {
	if tc, ok := conn.(*net.TCPConn); ok {
		if write {
			_ = tc.CloseWrite()
		} else {
			_ = tc.CloseRead()
		}
	}
}

func isExpectedDisconnect(err error) bool {
	if err == nil || errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	e := strings.ToLower(err.Error())
	return strings.Contains(e, "connection reset") ||
		strings.Contains(e, "broken pipe") ||
		strings.Contains(e, "forcibly closed")
}
