package usb

import "fmt"

// DescriptorType is the bDescriptorType tag of a descriptor record.
type DescriptorType uint8

// USB descriptor types (USB 2.0 Table 9-5, plus class-defined types)
const (
	DescriptorTypeDevice                  DescriptorType = 0x01
	DescriptorTypeConfiguration           DescriptorType = 0x02
	DescriptorTypeString                  DescriptorType = 0x03
	DescriptorTypeInterface               DescriptorType = 0x04
	DescriptorTypeEndpoint                DescriptorType = 0x05
	DescriptorTypeDeviceQualifier         DescriptorType = 0x06
	DescriptorTypeOtherSpeedConfiguration DescriptorType = 0x07
	DescriptorTypeInterfacePower          DescriptorType = 0x08
	DescriptorTypeOTG                     DescriptorType = 0x09
	DescriptorTypeDebug                   DescriptorType = 0x0A
	DescriptorTypeInterfaceAssociation    DescriptorType = 0x0B
	DescriptorTypeHID                     DescriptorType = 0x21
	DescriptorTypeReport                  DescriptorType = 0x22
	DescriptorTypeCSInterface             DescriptorType = 0x24
	DescriptorTypeCSEndpoint              DescriptorType = 0x25
)

var descriptorTypeNames = map[DescriptorType]string{
	DescriptorTypeDevice:                  "DEVICE",
	DescriptorTypeConfiguration:           "CONFIGURATION",
	DescriptorTypeString:                  "STRING",
	DescriptorTypeInterface:               "INTERFACE",
	DescriptorTypeEndpoint:                "ENDPOINT",
	DescriptorTypeDeviceQualifier:         "DEVICE_QUALIFIER",
	DescriptorTypeOtherSpeedConfiguration: "OTHER_SPEED_CONFIGURATION",
	DescriptorTypeInterfacePower:          "INTERFACE_POWER",
	DescriptorTypeOTG:                     "OTG",
	DescriptorTypeDebug:                   "DEBUG",
	DescriptorTypeInterfaceAssociation:    "INTERFACE_ASSOCIATION",
	DescriptorTypeHID:                     "HID",
	DescriptorTypeReport:                  "REPORT",
	DescriptorTypeCSInterface:             "CS_INTERFACE",
	DescriptorTypeCSEndpoint:              "CS_ENDPOINT",
}

func (t DescriptorType) Valid() bool {
	_, ok := descriptorTypeNames[t]
	return ok
}

func (t DescriptorType) String() string {
	if s, ok := descriptorTypeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("DescriptorType(0x%02x)", uint8(t))
}

// RequestCode is the bRequest field of a standard request (USB 2.0 Table 9-4).
type RequestCode uint8

const (
	RequestGetStatus        RequestCode = 0x00
	RequestClearFeature     RequestCode = 0x01
	RequestSetFeature       RequestCode = 0x03
	RequestSetAddress       RequestCode = 0x05
	RequestGetDescriptor    RequestCode = 0x06
	RequestSetDescriptor    RequestCode = 0x07
	RequestGetConfiguration RequestCode = 0x08
	RequestSetConfiguration RequestCode = 0x09
	RequestGetInterface     RequestCode = 0x0A
	RequestSetInterface     RequestCode = 0x0B
	RequestSynchFrame       RequestCode = 0x0C
)

var requestCodeNames = map[RequestCode]string{
	RequestGetStatus:        "GET_STATUS",
	RequestClearFeature:     "CLEAR_FEATURE",
	RequestSetFeature:       "SET_FEATURE",
	RequestSetAddress:       "SET_ADDRESS",
	RequestGetDescriptor:    "GET_DESCRIPTOR",
	RequestSetDescriptor:    "SET_DESCRIPTOR",
	RequestGetConfiguration: "GET_CONFIGURATION",
	RequestSetConfiguration: "SET_CONFIGURATION",
	RequestGetInterface:     "GET_INTERFACE",
	RequestSetInterface:     "SET_INTERFACE",
	RequestSynchFrame:       "SYNCH_FRAME",
}

func (c RequestCode) Valid() bool {
	_, ok := requestCodeNames[c]
	return ok
}

func (c RequestCode) String() string {
	if s, ok := requestCodeNames[c]; ok {
		return s
	}
	return fmt.Sprintf("RequestCode(0x%02x)", uint8(c))
}

// Direction is bit 7 of bmRequestType.
type Direction uint8

const (
	HostToDevice Direction = 0x00
	DeviceToHost Direction = 0x80
)

func (d Direction) Valid() bool { return d == HostToDevice || d == DeviceToHost }

func (d Direction) String() string {
	if d == DeviceToHost {
		return "IN"
	}
	return "OUT"
}

// RequestKind is bits 6..5 of bmRequestType.
type RequestKind uint8

const (
	KindStandard RequestKind = 0x00
	KindClass    RequestKind = 0x20
	KindVendor   RequestKind = 0x40
)

func (k RequestKind) Valid() bool {
	return k == KindStandard || k == KindClass || k == KindVendor
}

func (k RequestKind) String() string {
	switch k {
	case KindClass:
		return "Class"
	case KindVendor:
		return "Vendor"
	case KindStandard:
		return "Standard"
	}
	return fmt.Sprintf("RequestKind(0x%02x)", uint8(k))
}

// Recipient is bits 4..0 of bmRequestType.
type Recipient uint8

const (
	RecipientDevice    Recipient = 0x00
	RecipientInterface Recipient = 0x01
	RecipientEndpoint  Recipient = 0x02
	RecipientOther     Recipient = 0x03
)

func (r Recipient) Valid() bool { return r <= RecipientOther }

func (r Recipient) String() string {
	switch r {
	case RecipientDevice:
		return "Device"
	case RecipientInterface:
		return "Interface"
	case RecipientEndpoint:
		return "Endpoint"
	case RecipientOther:
		return "Other"
	}
	return fmt.Sprintf("Recipient(0x%02x)", uint8(r))
}

// ClassCode is a USB-IF base class code.
type ClassCode uint8

const (
	ClassPerInterface ClassCode = 0x00
	ClassAudio        ClassCode = 0x01
	ClassCDC          ClassCode = 0x02
	ClassHID          ClassCode = 0x03
	ClassPhysical     ClassCode = 0x05
	ClassImage        ClassCode = 0x06
	ClassPrinter      ClassCode = 0x07
	ClassMassStorage  ClassCode = 0x08
	ClassHub          ClassCode = 0x09
	ClassCDCData      ClassCode = 0x0A
	ClassSmartCard    ClassCode = 0x0B
	ClassVideo        ClassCode = 0x0E
	ClassAudioVideo   ClassCode = 0x10
	ClassDiagnostic   ClassCode = 0xDC
	ClassWireless     ClassCode = 0xE0
	ClassMisc         ClassCode = 0xEF
	ClassApplication  ClassCode = 0xFE
	ClassVendor       ClassCode = 0xFF
)

var classCodeNames = map[ClassCode]string{
	ClassPerInterface: "PerInterface",
	ClassAudio:        "Audio",
	ClassCDC:          "CDC",
	ClassHID:          "HID",
	ClassPhysical:     "Physical",
	ClassImage:        "Image",
	ClassPrinter:      "Printer",
	ClassMassStorage:  "MassStorage",
	ClassHub:          "Hub",
	ClassCDCData:      "CDCData",
	ClassSmartCard:    "SmartCard",
	ClassVideo:        "Video",
	ClassAudioVideo:   "AudioVideo",
	ClassDiagnostic:   "Diagnostic",
	ClassWireless:     "Wireless",
	ClassMisc:         "Miscellaneous",
	ClassApplication:  "Application",
	ClassVendor:       "Vendor",
}

func (c ClassCode) Valid() bool {
	_, ok := classCodeNames[c]
	return ok
}

func (c ClassCode) String() string {
	if s, ok := classCodeNames[c]; ok {
		return s
	}
	return fmt.Sprintf("ClassCode(0x%02x)", uint8(c))
}

// MaxPacketSize0 is the set of legal bMaxPacketSize0 values.
type MaxPacketSize0 uint8

const (
	MaxPacketSize8  MaxPacketSize0 = 8
	MaxPacketSize16 MaxPacketSize0 = 16
	MaxPacketSize32 MaxPacketSize0 = 32
	MaxPacketSize64 MaxPacketSize0 = 64
)

func (m MaxPacketSize0) Valid() bool {
	switch m {
	case MaxPacketSize8, MaxPacketSize16, MaxPacketSize32, MaxPacketSize64:
		return true
	}
	return false
}

func (m MaxPacketSize0) String() string { return fmt.Sprintf("%d", uint8(m)) }

// TransferType is bits 1..0 of an endpoint's bmAttributes.
type TransferType uint8

const (
	TransferControl     TransferType = 0x00
	TransferIsochronous TransferType = 0x01
	TransferBulk        TransferType = 0x02
	TransferInterrupt   TransferType = 0x03
)

func (t TransferType) Valid() bool { return t <= TransferInterrupt }

func (t TransferType) String() string {
	return [...]string{"Control", "Isochronous", "Bulk", "Interrupt"}[t&0x03]
}

// SyncType is bits 3..2 of an isochronous endpoint's bmAttributes.
type SyncType uint8

const (
	SyncNone         SyncType = 0x00
	SyncAsynchronous SyncType = 0x04
	SyncAdaptive     SyncType = 0x08
	SyncSynchronous  SyncType = 0x0C
)

func (s SyncType) Valid() bool { return s&^0x0C == 0 }

func (s SyncType) String() string {
	return [...]string{"None", "Asynchronous", "Adaptive", "Synchronous"}[(s>>2)&0x03]
}

// UsageType is bits 5..4 of an isochronous endpoint's bmAttributes.
type UsageType uint8

const (
	UsageData             UsageType = 0x00
	UsageFeedback         UsageType = 0x10
	UsageImplicitFeedback UsageType = 0x20
)

func (u UsageType) Valid() bool { return u == UsageData || u == UsageFeedback || u == UsageImplicitFeedback }

func (u UsageType) String() string {
	return [...]string{"Data", "Feedback", "ImplicitFeedback", "Reserved"}[(u>>4)&0x03]
}

// Feature selectors (USB 2.0 Table 9-6).
const (
	FeatureEndpointHalt       uint16 = 0x00
	FeatureDeviceRemoteWakeup uint16 = 0x01
	FeatureTestMode           uint16 = 0x02
)

// Device status bits returned by GET_STATUS(Device).
const (
	StatusSelfPowered  uint16 = 0x0001
	StatusRemoteWakeup uint16 = 0x0002
)
