package usb

import "time"

// ServerConfig represents the USB-IP listener configuration.
type ServerConfig struct {
	Addr              string        `help:"USB-IP server listen address" default:":3241" env:"USBFORGE_USB_ADDR"`
	ConnectionTimeout time.Duration `kong:"-"`
}
