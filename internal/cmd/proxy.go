package cmd

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Alia5/usbforge/internal/log"
	"github.com/Alia5/usbforge/internal/server/proxy"
)

// ErrNoUpstream is a proxy started without an upstream address.
var ErrNoUpstream = errors.New("upstream address is empty")

// Proxy forwards USB-IP clients to another server and logs the decoded
// traffic.
type Proxy struct {
	ListenAddr        string        `help:"Proxy listen address" default:":3242" env:"USBFORGE_PROXY_ADDR"`
	UpstreamAddr      string        `help:"Upstream USB-IP server address" default:"localhost:3241" env:"USBFORGE_PROXY_UPSTREAM"`
	ConnectionTimeout time.Duration `help:"Connection timeout" default:"30s" env:"USBFORGE_PROXY_TIMEOUT"`
}

// Run is called by Kong when the proxy command is executed.
func (p *Proxy) Run(logger *slog.Logger, rawLogger log.RawLogger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := p.NewServer(logger, rawLogger)
	if err != nil {
		return err
	}
	logger.Info("Starting usbforge USB-IP proxy", "listen", p.ListenAddr, "upstream", p.UpstreamAddr)
	return srv.ListenAndServe(ctx)
}

// NewServer validates the flags and builds the proxy server.
func (p *Proxy) NewServer(logger *slog.Logger, rawLogger log.RawLogger) (*proxy.Server, error) {
	if p.UpstreamAddr == "" {
		return nil, ErrNoUpstream
	}
	return proxy.New(p.ListenAddr, p.UpstreamAddr, p.ConnectionTimeout, logger, rawLogger), nil
}
