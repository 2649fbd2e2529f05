package testing

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/Alia5/usbforge/internal/server/usb"
	"github.com/Alia5/usbforge/virtualbus"
)

// NewTestServer starts a USB-IP server for bus on a free local port and
// stops it when the test ends.
func NewTestServer(t testing.TB, bus *virtualbus.Bus) *usb.Server {
	t.Helper()

	srv := usb.New(usb.ServerConfig{
		Addr:              "127.0.0.1:0",
		ConnectionTimeout: time.Second,
	}, bus, slog.Default(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		errCh <- srv.ListenAndServe(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-stopped:
		case <-time.After(2 * time.Second):
			t.Errorf("USB server did not stop")
		}
	})

	select {
	case <-srv.Ready():
	case err := <-errCh:
		if err == nil {
			err = io.ErrUnexpectedEOF
		}
		t.Fatalf("USB server failed to start: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatalf("USB server did not become ready")
	}
	return srv
}
