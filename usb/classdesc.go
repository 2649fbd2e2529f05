package usb

// ClassSpecific is a class-specific descriptor made of bLength,
// bDescriptorType and bDescriptorSubtype followed by Fields.
type ClassSpecific struct {
	Type    DescriptorType
	Subtype uint8
	Fields  []Field
}

func (c ClassSpecific) DescriptorType() DescriptorType { return c.Type }
func (ClassSpecific) Nested() Collection               { return Empty{} }

func (c ClassSpecific) Layout() []Field {
	return append([]Field{Length(), Type(), U8(c.Subtype)}, c.Fields...)
}

// ClassHeader is a class-specific header that owns the units following it,
// such as the audio control header. wTotalLength spans the header and its
// Units; bInCollection is the length of Interfaces.
type ClassHeader struct {
	Type       DescriptorType
	Subtype    uint8
	Release    BCD
	Interfaces []uint8
	Units      Collection
}

func (h ClassHeader) DescriptorType() DescriptorType { return h.Type }
func (h ClassHeader) Nested() Collection             { return h.Units }

func (h ClassHeader) Layout() []Field {
	f := []Field{
		Length(),
		Type(),
		U8(h.Subtype),
		BCDField(h.Release),
		TotalLength(),
		Count(len(h.Interfaces)),
	}
	for _, n := range h.Interfaces {
		f = append(f, U8(n))
	}
	return f
}
