package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/Alia5/usbforge/virtualbus"
)

// Ls lists the demo devices the way lsusb does, reading the strings over
// control transfers.
type Ls struct {
	Lang   string   `help:"Language of the strings: ISO 639 code or hexadecimal LANGID" env:"USBFORGE_LANG"`
	Filter []string `arg:"" optional:"" name:"filter" help:"Only list devices matching bus[:addr]"`
}

// Run is called by Kong when the ls command is executed.
func (c *Ls) Run(logger *slog.Logger) error {
	bus, err := DemoBus(logger)
	if err != nil {
		return err
	}
	defer bus.Close()
	return c.Print(context.Background(), bus, os.Stdout)
}

// Print writes one line per matching device on bus.
func (c *Ls) Print(ctx context.Context, bus *virtualbus.Bus, w io.Writer) error {
	lang, err := parseLang(c.Lang)
	if err != nil {
		return err
	}
	filter := make([]location, 0, len(c.Filter))
	for _, f := range c.Filter {
		loc, err := parseLocation(f)
		if err != nil {
			return err
		}
		filter = append(filter, loc)
	}

	for _, e := range bus.Devices() {
		if !pass(filter, e) {
			continue
		}
		line := fmt.Sprintf("%d:%d ID [%04x:%04x] Port: %d",
			e.Bus, uint8(e.Address), e.Device.VendorID(), e.Device.ProductID(), e.Port)

		m, p, s := stringIndexes(e.Device)
		for _, str := range []struct {
			index uint8
			label string
		}{{m, "Manufacturer"}, {p, "Product"}, {s, "Serial Number"}} {
			if v, ok := fetchString(ctx, bus, e.Address, str.index, lang); ok {
				line += fmt.Sprintf(" %s: '%s'", str.label, v)
			}
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

func pass(filter []location, e virtualbus.Entry) bool {
	if len(filter) == 0 {
		return true
	}
	for _, f := range filter {
		if f.matches(e) {
			return true
		}
	}
	return false
}
