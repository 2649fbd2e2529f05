// Package dispatch routes standard control requests to handlers through an
// ordered list of predicate bindings.
package dispatch

import "github.com/Alia5/usbforge/usb"

// Predicate reports whether a binding applies to a request.
type Predicate func(usb.SetupPacket) bool

// Handler serves a request against state S. It returns true once it has
// taken responsibility for the request, whether or not it could satisfy
// it; false means the request is not meant for it.
type Handler[S any] func(S, usb.SetupPacket) bool

// Binding pairs a predicate with a handler.
type Binding[S any] struct {
	When   Predicate
	Handle Handler[S]
}

// To binds h to requests matching when.
func To[S any](h Handler[S], when Predicate) Binding[S] {
	return Binding[S]{When: when, Handle: h}
}

// Dispatcher evaluates its bindings in declaration order. It holds no
// mutable state and may be shared between goroutines.
type Dispatcher[S any] struct {
	bindings []Binding[S]
}

// New builds a dispatcher. Put specific predicates before general ones
// that overlap them.
func New[S any](bindings ...Binding[S]) *Dispatcher[S] {
	return &Dispatcher[S]{bindings: append([]Binding[S](nil), bindings...)}
}

// Dispatch offers req to each binding whose predicate matches until a
// handler accepts it. False means no binding took the request and the
// caller should stall.
func (d *Dispatcher[S]) Dispatch(s S, req usb.SetupPacket) bool {
	for _, b := range d.bindings {
		if b.When(req) && b.Handle(s, req) {
			return true
		}
	}
	return false
}

// Match is the exact (direction, kind, recipient, request) predicate.
func Match(dir usb.Direction, kind usb.RequestKind, rcpt usb.Recipient, code usb.RequestCode) Predicate {
	rt := usb.RequestType(dir, kind, rcpt)
	return func(req usb.SetupPacket) bool {
		return req.Request == code && req.RequestType == rt
	}
}

func anyRecipient(dir usb.Direction, code usb.RequestCode) Predicate {
	return func(req usb.SetupPacket) bool {
		if req.Request != code || req.Kind() != usb.KindStandard || req.Direction() != dir {
			return false
		}
		r := req.Recipient()
		return r == usb.RecipientDevice || r == usb.RecipientInterface || r == usb.RecipientEndpoint
	}
}

// directionOf is the data direction USB 2.0 Table 9-3 fixes for code.
func directionOf(code usb.RequestCode) usb.Direction {
	switch code {
	case usb.RequestGetStatus, usb.RequestGetConfiguration, usb.RequestGetDescriptor,
		usb.RequestGetInterface, usb.RequestSynchFrame:
		return usb.DeviceToHost
	default:
		return usb.HostToDevice
	}
}

// When matches a standard request with the bmRequestType combination USB
// 2.0 Table 9-3 allows for it. CLEAR_FEATURE, SET_FEATURE and GET_STATUS
// accept any of the device, interface and endpoint recipients.
func When(code usb.RequestCode) Predicate {
	dir := directionOf(code)
	switch code {
	case usb.RequestClearFeature, usb.RequestSetFeature, usb.RequestGetStatus:
		return anyRecipient(dir, code)
	case usb.RequestGetInterface, usb.RequestSetInterface:
		return Match(dir, usb.KindStandard, usb.RecipientInterface, code)
	case usb.RequestSynchFrame:
		return Match(dir, usb.KindStandard, usb.RecipientEndpoint, code)
	default:
		return Match(dir, usb.KindStandard, usb.RecipientDevice, code)
	}
}

// WhenTo matches code sent to one recipient, in the direction USB 2.0
// Table 9-3 fixes for code.
func WhenTo(code usb.RequestCode, rcpt usb.Recipient) Predicate {
	return Match(directionOf(code), usb.KindStandard, rcpt, code)
}

// WhenDescriptor matches GET_DESCRIPTOR for descriptor type dt.
func WhenDescriptor(dt usb.DescriptorType) Predicate {
	getDescriptor := When(usb.RequestGetDescriptor)
	return func(req usb.SetupPacket) bool {
		return req.DescriptorType() == dt && getDescriptor(req)
	}
}
