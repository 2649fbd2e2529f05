package virtualbus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Alia5/usbforge/device"
	"github.com/Alia5/usbforge/usb"
	"github.com/google/uuid"
)

// TransferStatus is the lifecycle state of a Transfer.
type TransferStatus int

const (
	Pending TransferStatus = iota
	Completed
	Stalled
	NotFound
	Cancelled
	NoDevice
)

func (s TransferStatus) String() string {
	switch s {
	case Pending:
		return "pending"
	case Completed:
		return "completed"
	case Stalled:
		return "stalled"
	case NotFound:
		return "not-found"
	case Cancelled:
		return "cancelled"
	case NoDevice:
		return "no-device"
	}
	return fmt.Sprintf("TransferStatus(%d)", int(s))
}

var (
	ErrPending   = errors.New("transfer pending")
	ErrCancelled = errors.New("transfer cancelled")
)

// Transfer is one submitted control transfer. Its outcome is fixed once,
// by completion or cancellation, whichever comes first.
type Transfer struct {
	ID      uuid.UUID
	Address Address
	Setup   usb.SetupPacket

	mu     sync.Mutex
	status TransferStatus
	data   []byte
	err    error
	done   chan struct{}
	cancel context.CancelCauseFunc
	notify func(*Transfer)
}

// Status returns the current state.
func (t *Transfer) Status() TransferStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Result returns the response of a finished transfer. The error is
// device.ErrStall, device.ErrNotFound, ErrCancelled or ErrNoDevice for the
// matching status, and ErrPending before the transfer finished.
func (t *Transfer) Result() ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status == Pending {
		return nil, ErrPending
	}
	return t.data, t.err
}

// Done is closed when the transfer finishes.
func (t *Transfer) Done() <-chan struct{} { return t.done }

// Wait blocks until the transfer finishes or ctx ends.
func (t *Transfer) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Cancel cancels a pending transfer. It reports false when the transfer had
// already finished.
func (t *Transfer) Cancel() bool {
	if !t.finish(Cancelled, nil, ErrCancelled) {
		return false
	}
	t.cancel(ErrCancelled)
	return true
}

func (t *Transfer) finish(status TransferStatus, data []byte, err error) bool {
	t.mu.Lock()
	if t.status != Pending {
		t.mu.Unlock()
		return false
	}
	t.status, t.data, t.err = status, data, err
	close(t.done)
	t.mu.Unlock()

	t.notify(t)
	return true
}

func statusOf(err error) TransferStatus {
	switch {
	case err == nil:
		return Completed
	case errors.Is(err, device.ErrStall):
		return Stalled
	default:
		return NotFound
	}
}

// Submit hands a control transfer to the device at addr and returns without
// waiting for its completion. The device handles the request before Submit
// returns, so its effect is fixed by the submission; only the completion is
// deferred by the bus delay. done, when not nil, runs once the transfer
// finishes, before Done is observable through Events. Cancelling ctx or
// removing the device cancels the completion. A ctx that is already done
// cancels the transfer before the device sees it.
func (b *Bus) Submit(ctx context.Context, addr Address, setup []byte, done func(*Transfer)) (*Transfer, error) {
	req, err := usb.ParseSetup(setup)
	if err != nil {
		return nil, err
	}

	b.mutex.Lock()
	d, ok := b.devices[addr]
	b.mutex.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: 0x%02x", ErrNoDevice, uint8(addr))
	}

	tctx, cancel := context.WithCancelCause(ctx)
	stop := context.AfterFunc(d.ctx, func() { cancel(ErrNoDevice) })

	t := &Transfer{
		ID:      uuid.New(),
		Address: addr,
		Setup:   req,
		done:    make(chan struct{}),
		cancel:  cancel,
	}
	t.notify = func(t *Transfer) {
		stop()
		cancel(nil)
		if done != nil {
			done(t)
		}
		b.signal(t)
	}
	b.logger.Debug("transfer submitted", "id", t.ID, "addr", addr, "setup", req)

	if tctx.Err() != nil {
		go b.abort(tctx, t)
		return t, nil
	}

	data, err := d.dev.Control(req)
	if errors.Is(err, device.ErrStall) {
		b.logger.Debug("request stalled", "id", t.ID, "addr", addr, "setup", req)
	}

	go b.complete(tctx, t, data, err)
	return t, nil
}

// complete finishes t with the device's response after the completion delay.
func (b *Bus) complete(ctx context.Context, t *Transfer, data []byte, err error) {
	if b.delay > 0 {
		timer := time.NewTimer(b.delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			b.abort(ctx, t)
			return
		}
	} else if ctx.Err() != nil {
		b.abort(ctx, t)
		return
	}

	if t.finish(statusOf(err), data, err) {
		b.logger.Debug("transfer completed", "id", t.ID, "addr", t.Address, "len", len(data), "status", statusOf(err))
	}
}

func (b *Bus) abort(ctx context.Context, t *Transfer) {
	if cause := context.Cause(ctx); errors.Is(cause, ErrNoDevice) {
		t.finish(NoDevice, nil, ErrNoDevice)
		return
	}
	t.finish(Cancelled, nil, ErrCancelled)
}

// Control submits req to addr and waits for the outcome.
func (b *Bus) Control(ctx context.Context, addr Address, req usb.SetupPacket) ([]byte, error) {
	t, err := b.Submit(ctx, addr, req.Bytes(), nil)
	if err != nil {
		return nil, err
	}
	if err := t.Wait(ctx); err != nil {
		t.Cancel()
		return nil, err
	}
	return t.Result()
}
