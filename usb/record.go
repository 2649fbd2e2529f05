package usb

// Record is a fixed-layout descriptor: its own fields, followed on the wire
// by the records of its nested collection.
type Record interface {
	DescriptorType() DescriptorType
	Layout() []Field
	Nested() Collection
}

// Collection is an ordered group of records. Declaration order is wire
// order.
type Collection interface {
	Records() []Record
}

// Empty is a collection with no records.
type Empty struct{}

func (Empty) Records() []Record { return nil }

// Array is a homogeneous collection.
type Array[T Record] []T

func (a Array[T]) Records() []Record {
	out := make([]Record, len(a))
	for i, r := range a {
		out[i] = r
	}
	return out
}

// List is a heterogeneous collection, such as an interface association
// followed by the interfaces it groups.
type List []Record

func (l List) Records() []Record { return l }

// Len returns the number of records in c. A nil collection is empty.
func Len(c Collection) int {
	if c == nil {
		return 0
	}
	return len(c.Records())
}

// interfaceNumbered is implemented by records that declare an interface.
type interfaceNumbered interface {
	InterfaceNumber() uint8
}

func interfaceCount(c Collection) int {
	if c == nil {
		return 0
	}
	seen := map[uint8]bool{}
	for _, r := range c.Records() {
		if in, ok := r.(interfaceNumbered); ok {
			seen[in.InterfaceNumber()] = true
		}
	}
	return len(seen)
}

func nested(r Record) []Record {
	c := r.Nested()
	if c == nil {
		return nil
	}
	return c.Records()
}
