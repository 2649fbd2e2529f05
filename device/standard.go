package device

import (
	"encoding/binary"

	"github.com/Alia5/usbforge/dispatch"
	"github.com/Alia5/usbforge/usb"
)

// exchange is the per-request state handed to the standard handlers.
type exchange struct {
	dev         *Emulated
	data        []byte
	err         error
	untruncated bool
}

func (x *exchange) reply(b []byte) bool {
	x.data = b
	return true
}

func (x *exchange) notFound() bool {
	x.err = ErrNotFound
	return true
}

const maxAddress = 127

var debugDescriptor = []byte{0, 0, 0, 0}

// standardRequests is evaluated in order; descriptor handlers keyed on a
// specific type precede the general ones.
var standardRequests = dispatch.New(
	dispatch.To(getDevice, dispatch.WhenDescriptor(usb.DescriptorTypeDevice)),
	dispatch.To(getQualifier, dispatch.WhenDescriptor(usb.DescriptorTypeDeviceQualifier)),
	dispatch.To(getConfigurationDescriptor, dispatch.WhenDescriptor(usb.DescriptorTypeConfiguration)),
	dispatch.To(getOtherSpeed, dispatch.WhenDescriptor(usb.DescriptorTypeOtherSpeedConfiguration)),
	dispatch.To(acknowledge, dispatch.WhenDescriptor(usb.DescriptorTypeInterface)),
	dispatch.To(acknowledge, dispatch.WhenDescriptor(usb.DescriptorTypeInterfaceAssociation)),
	dispatch.To(getDebug, dispatch.WhenDescriptor(usb.DescriptorTypeDebug)),
	dispatch.To(getString, dispatch.WhenDescriptor(usb.DescriptorTypeString)),
	dispatch.To(getConfiguration, dispatch.When(usb.RequestGetConfiguration)),
	dispatch.To(setConfiguration, dispatch.When(usb.RequestSetConfiguration)),
	dispatch.To(getDeviceStatus, dispatch.WhenTo(usb.RequestGetStatus, usb.RecipientDevice)),
	dispatch.To(getStatus, dispatch.When(usb.RequestGetStatus)),
	dispatch.To(getInterface, dispatch.When(usb.RequestGetInterface)),
	dispatch.To(setInterface, dispatch.When(usb.RequestSetInterface)),
	dispatch.To(setAddress, dispatch.When(usb.RequestSetAddress)),
	dispatch.To(setFeature, dispatch.When(usb.RequestSetFeature)),
	dispatch.To(clearFeature, dispatch.When(usb.RequestClearFeature)),
)

func getDevice(x *exchange, _ usb.SetupPacket) bool { return x.reply(x.dev.device) }

func getQualifier(x *exchange, _ usb.SetupPacket) bool {
	if x.dev.qualifier == nil {
		return x.notFound()
	}
	return x.reply(x.dev.qualifier)
}

func getConfigurationDescriptor(x *exchange, req usb.SetupPacket) bool {
	idx := int(req.DescriptorIndex())
	if idx >= len(x.dev.configs) {
		return x.notFound()
	}
	return x.reply(x.dev.configs[idx])
}

// getOtherSpeed serves configuration idx re-tagged as OTHER_SPEED. Only a
// device that declares a qualifier operates at another speed.
func getOtherSpeed(x *exchange, req usb.SetupPacket) bool {
	idx := int(req.DescriptorIndex())
	if x.dev.qualifier == nil || idx >= len(x.dev.configs) {
		return x.notFound()
	}
	b := clone(x.dev.configs[idx])
	b[1] = byte(usb.DescriptorTypeOtherSpeedConfiguration)
	return x.reply(b)
}

func acknowledge(*exchange, usb.SetupPacket) bool { return true }

func getDebug(x *exchange, _ usb.SetupPacket) bool { return x.reply(debugDescriptor) }

// getString answers with the string's own bLength when the host asks for
// zero bytes.
func getString(x *exchange, req usb.SetupPacket) bool {
	if x.dev.strings == nil {
		return x.notFound()
	}
	b, ok := x.dev.strings.Get(req.DescriptorIndex(), req.LangID())
	if !ok {
		return x.notFound()
	}
	x.untruncated = req.Length == 0
	return x.reply(b)
}

func getConfiguration(x *exchange, _ usb.SetupPacket) bool {
	if x.dev.active < 0 {
		return x.reply([]byte{0})
	}
	return x.reply([]byte{x.dev.configs[x.dev.active][usb.ConfigValueOffset]})
}

func setConfiguration(x *exchange, req usb.SetupPacket) bool {
	if req.Value > 0xFF || !x.dev.selectConfiguration(uint8(req.Value)) {
		return x.notFound()
	}
	return true
}

func getDeviceStatus(x *exchange, _ usb.SetupPacket) bool {
	return x.reply(binary.LittleEndian.AppendUint16(nil, x.dev.status))
}

func getStatus(x *exchange, _ usb.SetupPacket) bool { return x.reply([]byte{0, 0}) }

func getInterface(x *exchange, req usb.SetupPacket) bool {
	alt, ok := x.dev.alt[req.InterfaceNumber()]
	if !ok {
		return x.notFound()
	}
	return x.reply([]byte{alt})
}

func setInterface(x *exchange, req usb.SetupPacket) bool {
	intf := req.InterfaceNumber()
	if _, ok := x.dev.alt[intf]; !ok {
		return x.notFound()
	}
	x.dev.alt[intf] = uint8(req.Value)
	return true
}

func setAddress(x *exchange, req usb.SetupPacket) bool {
	if req.Value > maxAddress {
		return x.notFound()
	}
	x.dev.address = uint8(req.Value)
	return true
}

func setFeature(x *exchange, req usb.SetupPacket) bool {
	if req.Recipient() == usb.RecipientDevice && req.Value == usb.FeatureDeviceRemoteWakeup {
		x.dev.status |= usb.StatusRemoteWakeup
	}
	return true
}

func clearFeature(x *exchange, req usb.SetupPacket) bool {
	if req.Recipient() == usb.RecipientDevice && req.Value == usb.FeatureDeviceRemoteWakeup {
		x.dev.status &^= usb.StatusRemoteWakeup
	}
	return true
}
