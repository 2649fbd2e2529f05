package device

import "errors"

// Construction errors.
var (
	ErrDeviceDescriptorSize   = errors.New("device descriptor must be 18 bytes of type DEVICE")
	ErrQualifierSize          = errors.New("device qualifier must be absent or 10 bytes of type DEVICE_QUALIFIER")
	ErrConfigurationCount     = errors.New("bNumConfigurations does not match the configurations supplied")
	ErrMalformedConfiguration = errors.New("malformed configuration descriptor")
	ErrUnknownConfiguration   = errors.New("initial configuration value not declared")
)

// Control transfer outcomes.
var (
	// ErrNotFound is a handled request that could not be satisfied. The
	// host sees an empty response.
	ErrNotFound = errors.New("not found")
	// ErrStall is a request no handler took. The host sees a protocol stall.
	ErrStall = errors.New("request not supported")
)
