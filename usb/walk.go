package usb

import "fmt"

// Walk splits a flattened descriptor buffer into its records by following
// the (bLength, bDescriptorType) chain. Depth is not recoverable from the
// wire and is reported as 0.
func Walk(b []byte) ([]Span, error) {
	var spans []Span
	for off := 0; off < len(b); {
		rest := len(b) - off
		if rest < 2 {
			return spans, fmt.Errorf("%w: %d trailing bytes at offset %d", ErrMalformed, rest, off)
		}
		n := int(b[off])
		if n < 2 {
			return spans, fmt.Errorf("%w: bLength %d at offset %d", ErrMalformed, n, off)
		}
		if n > rest {
			return spans, fmt.Errorf("%w: bLength %d exceeds %d remaining bytes at offset %d", ErrMalformed, n, rest, off)
		}
		spans = append(spans, Span{Offset: off, Length: n, Total: n, Type: DescriptorType(b[off+1])})
		off += n
	}
	return spans, nil
}
