package usb

import (
	"fmt"
	"strconv"
	"strings"
)

// BCD is a binary-coded-decimal release number such as bcdUSB, one decimal
// digit per nibble: 2.00 is 0x0200, 1.10 is 0x0110.
type BCD uint16

// NewBCD encodes major.minor. Each part is clamped to 0..99.
func NewBCD(major, minor int) BCD {
	major = min(max(major, 0), 99)
	minor = min(max(minor, 0), 99)
	return BCD(major/10<<12 | major%10<<8 | minor/10<<4 | minor%10)
}

// ParseBCD parses a dotted release number such as "2.00", "2.0" or "1.1".
// A single minor digit is a tenth, so "1.1" is 1.10.
func ParseBCD(s string) (BCD, error) {
	major, minor, _ := strings.Cut(s, ".")
	if len(major) == 0 || len(major) > 2 || len(minor) > 2 {
		return 0, fmt.Errorf("invalid BCD %q", s)
	}
	for len(minor) < 2 {
		minor += "0"
	}
	ma, err := strconv.ParseUint(major, 10, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid BCD %q: %w", s, err)
	}
	mi, err := strconv.ParseUint(minor, 10, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid BCD %q: %w", s, err)
	}
	return NewBCD(int(ma), int(mi)), nil
}

// Major returns the integer part.
func (b BCD) Major() int { return int(b>>12&0xF)*10 + int(b>>8&0xF) }

// Minor returns the two fractional digits.
func (b BCD) Minor() int { return int(b>>4&0xF)*10 + int(b&0xF) }

func (b BCD) String() string { return fmt.Sprintf("%d.%02d", b.Major(), b.Minor()) }

// Power is a bus current draw in milliamperes.
type Power uint16

// MilliAmps returns a Power of n mA.
func MilliAmps(n int) Power { return Power(n) }

// Units returns the power in the 2 mA units of bMaxPower.
func (p Power) Units() uint8 { return uint8(p / 2) }

// ConfigAttributes is the bmAttributes bitmap of a configuration. Bit 7 is
// reserved and always set on the wire.
type ConfigAttributes uint8

const (
	AttrSelfPowered  ConfigAttributes = 0x40
	AttrRemoteWakeup ConfigAttributes = 0x20

	attrReserved ConfigAttributes = 0x80
)

// Bits returns the wire value, with the reserved bit set.
func (a ConfigAttributes) Bits() uint8 { return uint8(a | attrReserved) }

// EndpointIn returns the address of IN endpoint n.
func EndpointIn(n uint8) uint8 { return n&0x0F | uint8(DeviceToHost) }

// EndpointOut returns the address of OUT endpoint n.
func EndpointOut(n uint8) uint8 { return n & 0x0F }

// EndpointAttributes builds an endpoint's bmAttributes.
func EndpointAttributes(t TransferType, s SyncType, u UsageType) uint8 {
	return uint8(t)&0x03 | uint8(s)&0x0C | uint8(u)&0x30
}
