package usb

import "errors"

// Composition errors. These are author mistakes in a descriptor declaration
// and surface from Compose before any request is served.
var (
	ErrNilRecord           = errors.New("nil record")
	ErrInvalidTag          = errors.New("value is not a member of its tag set")
	ErrLengthOverflow      = errors.New("record length exceeds bLength")
	ErrTotalLengthOverflow = errors.New("total length exceeds wTotalLength")
	ErrCountOverflow       = errors.New("collection cardinality exceeds its count field")
	ErrPowerOverflow       = errors.New("max power exceeds 510 mA")
	ErrMalformed           = errors.New("malformed descriptor chain")
)

// Setup packet errors.
var (
	ErrSetupPacketTooShort = errors.New("setup packet too short")
)

// String dictionary errors.
var (
	ErrNoLanguages         = errors.New("string dictionary has no languages")
	ErrStringCountMismatch = errors.New("languages enumerate a different number of strings")
	ErrDuplicateLanguage   = errors.New("language registered twice")
	ErrStringTooLong       = errors.New("string descriptor exceeds 255 bytes")
	ErrTooManyStrings      = errors.New("string dictionary exceeds 255 entries")
	ErrUnknownLanguage     = errors.New("unknown language")
)
