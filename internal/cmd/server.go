package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Alia5/usbforge/device/demo"
	"github.com/Alia5/usbforge/internal/log"
	"github.com/Alia5/usbforge/internal/server/usb"
	"github.com/Alia5/usbforge/virtualbus"
)

// Serve exports the demo devices over USB-IP.
type Serve struct {
	UsbServerConfig   usb.ServerConfig `embed:"" prefix:"usb."`
	ConnectionTimeout time.Duration    `help:"Management phase timeout per connection" default:"30s" env:"USBFORGE_CONNECTION_TIMEOUT"`
	CompletionDelay   time.Duration    `help:"Delay before a submitted control transfer completes" default:"1ms" env:"USBFORGE_COMPLETION_DELAY"`
	BusBase           uint8            `help:"USB-IP bus number of addresses 0x00-0x0F" default:"240" env:"USBFORGE_BUS_BASE"`
}

// Run is called by Kong when the serve command is executed.
func (s *Serve) Run(logger *slog.Logger, rawLogger log.RawLogger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return s.StartServer(ctx, logger, rawLogger)
}

func (s *Serve) newBus(logger *slog.Logger) (*virtualbus.Bus, error) {
	bus := virtualbus.New(
		virtualbus.WithBusBase(s.BusBase),
		virtualbus.WithCompletionDelay(s.CompletionDelay),
		virtualbus.WithLogger(logger),
	)
	if err := demo.Populate(bus); err != nil {
		_ = bus.Close()
		return nil, fmt.Errorf("populate bus: %w", err)
	}
	return bus, nil
}

// StartServer serves until ctx ends or the listener fails.
func (s *Serve) StartServer(ctx context.Context, logger *slog.Logger, rawLogger log.RawLogger) error {
	s.UsbServerConfig.ConnectionTimeout = s.ConnectionTimeout

	bus, err := s.newBus(logger)
	if err != nil {
		return err
	}
	defer bus.Close()

	for _, e := range bus.Devices() {
		logger.Info("Device attached", "busid", e.BusID(), "addr", e.Address,
			"vid", fmt.Sprintf("%04x", e.Device.VendorID()), "pid", fmt.Sprintf("%04x", e.Device.ProductID()))
	}

	logger.Info("Starting usbforge USB-IP server", "addr", s.UsbServerConfig.Addr)
	usbSrv := usb.New(s.UsbServerConfig, bus, logger, rawLogger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return usbSrv.ListenAndServe(gctx)
	})
	g.Go(func() error {
		select {
		case <-usbSrv.Ready():
			logger.Info("Ready", "port", usbSrv.GetListenPort())
		case <-gctx.Done():
		}
		return nil
	})
	return g.Wait()
}
