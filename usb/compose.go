package usb

import "fmt"

// Span locates one record inside a composed buffer.
type Span struct {
	Offset int
	Length int // the record's own bytes
	Total  int // own bytes plus everything nested under it
	Type   DescriptorType
	Depth  int
}

// Descriptor is an immutable, transport-ready descriptor buffer.
type Descriptor struct {
	buf   []byte
	spans []Span
}

// Bytes returns a copy of the encoded descriptor.
func (d *Descriptor) Bytes() []byte { return append([]byte(nil), d.buf...) }

// Length is the top-level record's own length (its bLength).
func (d *Descriptor) Length() int { return d.spans[0].Length }

// TotalLength is the byte count of the whole tree.
func (d *Descriptor) TotalLength() int { return len(d.buf) }

// DescriptorType is the top-level record's tag.
func (d *Descriptor) DescriptorType() DescriptorType { return d.spans[0].Type }

// Spans lists every record of the tree in wire order.
func (d *Descriptor) Spans() []Span { return append([]Span(nil), d.spans...) }

type node struct {
	rec      Record
	name     string
	fields   []Field
	own      int
	total    int
	children []*node
}

func measure(r Record) (*node, error) {
	if r == nil {
		return nil, ErrNilRecord
	}
	n := &node{rec: r, name: fmt.Sprintf("%T", r), fields: r.Layout()}
	for _, f := range n.fields {
		n.own += f.Width()
	}
	n.total = n.own
	for _, c := range nested(r) {
		cn, err := measure(c)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", n.name, err)
		}
		n.children = append(n.children, cn)
		n.total += cn.total
	}
	return n, nil
}

func (n *node) write(buf []byte, off, depth int, spans *[]Span) (int, error) {
	f := &frame{record: n.name, dtype: n.rec.DescriptorType(), length: n.own, total: n.total}
	*spans = append(*spans, Span{Offset: off, Length: n.own, Total: n.total, Type: f.dtype, Depth: depth})
	for _, fld := range n.fields {
		w := fld.Width()
		if err := fld.encode(buf[off:off+w], f); err != nil {
			return 0, err
		}
		off += w
	}
	for _, c := range n.children {
		var err error
		if off, err = c.write(buf, off, depth+1, spans); err != nil {
			return 0, err
		}
	}
	return off, nil
}

// Compose flattens a record tree into one little-endian buffer. Length,
// type, total-length and count fields are computed from the tree; a value
// that does not fit its wire field is an error.
func Compose(r Record) (*Descriptor, error) {
	root, err := measure(r)
	if err != nil {
		return nil, err
	}
	d := &Descriptor{buf: make([]byte, root.total)}
	if _, err := root.write(d.buf, 0, 0, &d.spans); err != nil {
		return nil, err
	}
	return d, nil
}

// MustCompose is like Compose but panics on error. It is meant for
// package-level descriptor declarations.
func MustCompose(r Record) *Descriptor {
	d, err := Compose(r)
	if err != nil {
		panic(err)
	}
	return d
}
