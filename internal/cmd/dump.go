package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"golang.org/x/term"

	"github.com/Alia5/usbforge/usb"
	"github.com/Alia5/usbforge/virtualbus"
)

var (
	ErrInvalidFormat = errors.New("invalid format specifier")
	ErrInvalidTarget = errors.New("invalid descriptor target")
	ErrTerminal      = errors.New("refusing to write binary to a terminal")
)

// DumpFormat selects how descriptor bytes are printed.
type DumpFormat struct {
	Kind  byte // B, C, D, H or X
	Upper bool
}

// ParseDumpFormat reads a single format letter. Lowercase letters select
// lowercase hex digits.
func ParseDumpFormat(s string) (DumpFormat, error) {
	if len(s) != 1 || !strings.ContainsAny(s, "BbCcDdHhXx") {
		return DumpFormat{}, fmt.Errorf("%w %q", ErrInvalidFormat, s)
	}
	c := s[0]
	upper := c >= 'A' && c <= 'Z'
	if !upper {
		c -= 'a' - 'A'
	}
	return DumpFormat{Kind: c, Upper: upper}, nil
}

var dumpVerbs = map[bool]map[byte]string{
	false: {'D': "%3d", 'H': "%02x", 'X': "0x%02x", 'C': "0x%x"},
	true:  {'D': "%3d", 'H': "%02X", 'X': "0x%02X", 'C': "0x%X"},
}

// Binary reports whether f writes raw bytes.
func (f DumpFormat) Binary() bool { return f.Kind == 'B' }

// Write prints data in format f followed by a newline. Binary output is
// written as is.
func (f DumpFormat) Write(w io.Writer, data []byte) error {
	if f.Binary() {
		_, err := w.Write(data)
		return err
	}
	verb := dumpVerbs[f.Upper][f.Kind]
	open, sep, end := "", " ", ""
	if f.Kind == 'C' {
		open, sep, end = "{", ", ", "};"
	}

	var b strings.Builder
	b.WriteString(open)
	for i, v := range data {
		if i > 0 {
			b.WriteString(sep)
		}
		fmt.Fprintf(&b, verb, v)
	}
	b.WriteString(end)
	b.WriteByte('\n')
	_, err := io.WriteString(w, b.String())
	return err
}

// Target names one descriptor: bus:addr:D|Q|C|S[:index].
type Target struct {
	Bus     uint32
	Address uint32
	Type    usb.DescriptorType
	Index   uint8
}

// ParseTarget parses a dump target. Device and qualifier targets ignore
// the index; configuration and string targets require one.
func ParseTarget(s string) (Target, error) {
	parts := strings.Split(s, ":")
	if len(parts) < 3 || len(parts) > 4 {
		return Target{}, fmt.Errorf("%w %q", ErrInvalidTarget, s)
	}
	loc, err := parseLocation(parts[0] + ":" + parts[1])
	if err != nil {
		return Target{}, fmt.Errorf("%w %q: %w", ErrInvalidTarget, s, err)
	}
	t := Target{Bus: loc.bus, Address: loc.addr}
	switch parts[2] {
	case "D":
		t.Type = usb.DescriptorTypeDevice
	case "Q":
		t.Type = usb.DescriptorTypeDeviceQualifier
	case "C":
		t.Type = usb.DescriptorTypeConfiguration
	case "S":
		t.Type = usb.DescriptorTypeString
	default:
		return Target{}, fmt.Errorf("%w: descriptor type %q", ErrInvalidTarget, parts[2])
	}
	indexed := t.Type == usb.DescriptorTypeConfiguration || t.Type == usb.DescriptorTypeString
	switch {
	case indexed && len(parts) == 3:
		return Target{}, fmt.Errorf("%w: missing descriptor index in %q", ErrInvalidTarget, s)
	case indexed:
		n, err := strconv.ParseUint(parts[3], 10, 8)
		if err != nil {
			return Target{}, fmt.Errorf("%w: index %q", ErrInvalidTarget, parts[3])
		}
		t.Index = uint8(n)
	}
	return t, nil
}

// request is the GET_DESCRIPTOR that fetches t, sized for the largest
// answer of its type.
func (t Target) request(lang usb.LangID) usb.SetupPacket {
	switch t.Type {
	case usb.DescriptorTypeDevice:
		return usb.GetDescriptor(t.Type, 0, 0, usb.DeviceDescLen)
	case usb.DescriptorTypeDeviceQualifier:
		return usb.GetDescriptor(t.Type, 0, 0, usb.DeviceQualifierDescLen)
	case usb.DescriptorTypeString:
		return usb.GetDescriptor(t.Type, t.Index, lang, 255)
	}
	return usb.GetDescriptor(t.Type, t.Index, 0, 0xFFFF)
}

// Dump prints one descriptor of a demo device.
type Dump struct {
	Format string `help:"Output format: B binary, C C array, D decimal, H hex, X hex with 0x prefix; lowercase for lowercase hex" default:"D"`
	Lang   string `help:"Language of string descriptors: ISO 639 code or hexadecimal LANGID" env:"USBFORGE_LANG"`
	Target string `arg:"" name:"target" help:"Descriptor to dump: bus:addr:D|Q|C|S[:index]"`
}

// Run is called by Kong when the dump command is executed.
func (c *Dump) Run(logger *slog.Logger) error {
	f, err := ParseDumpFormat(c.Format)
	if err != nil {
		return err
	}
	if f.Binary() && term.IsTerminal(int(os.Stdout.Fd())) {
		return ErrTerminal
	}
	bus, err := DemoBus(logger)
	if err != nil {
		return err
	}
	defer bus.Close()
	return c.Print(context.Background(), bus, os.Stdout)
}

// Print fetches the target descriptor from bus and writes it to w.
func (c *Dump) Print(ctx context.Context, bus *virtualbus.Bus, w io.Writer) error {
	f, err := ParseDumpFormat(c.Format)
	if err != nil {
		return err
	}
	lang, err := parseLang(c.Lang)
	if err != nil {
		return err
	}
	t, err := ParseTarget(c.Target)
	if err != nil {
		return err
	}
	e, err := findDevice(bus, location{bus: t.Bus, addr: t.Address})
	if err != nil {
		return err
	}
	data, err := bus.Control(ctx, e.Address, t.request(lang))
	if err != nil {
		return fmt.Errorf("get %s descriptor %d from %d:%d: %w", t.Type, t.Index, t.Bus, t.Address, err)
	}
	return f.Write(w, data)
}
