package demo

import "github.com/Alia5/usbforge/usb"

const (
	Manufacturer = "MegaCool Corp."
	Product      = "SuperPuper device"
	Interface    = "Interface"
	SerialNumber = "SN-12C55F2"
	MACAddress   = "123456789ab"

	ukManufacturer = "MegaKool Korp."
	ukProduct      = "SuperPuper prystriy"
)

// strings1 is the single-language table shared by Test1 and the class
// devices; the MAC address is only referenced by the CDC device.
var strings1 = usb.MustDictionary(
	usb.Strings(usb.LangEnglishUS, Manufacturer, Product, Interface, SerialNumber, MACAddress),
)

// matrix has three languages and no serial number, so Test2's
// iSerialNumber points past the table.
var matrix = usb.MustDictionary(
	usb.Strings(usb.LangEnglishUS, Manufacturer, Product, Interface),
	usb.Strings(usb.LangEnglishUK, Manufacturer, Product, Interface),
	usb.Strings(usb.LangUkrainian, ukManufacturer, ukProduct, Interface),
)
