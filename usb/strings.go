package usb

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/text/encoding/unicode"
)

var utf16le = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// EncodeStringDescriptor encodes s as a STRING descriptor: bLength, 0x03 and
// the UTF-16LE code units of s.
func EncodeStringDescriptor(s string) ([]byte, error) {
	u, err := utf16le.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return nil, fmt.Errorf("encode %q: %w", s, err)
	}
	if len(u)+2 > 0xFF {
		return nil, fmt.Errorf("%w: %q", ErrStringTooLong, s)
	}
	out := make([]byte, 2, 2+len(u))
	out[0] = uint8(2 + len(u))
	out[1] = uint8(DescriptorTypeString)
	return append(out, u...), nil
}

// DecodeStringDescriptor returns the text of a STRING descriptor.
func DecodeStringDescriptor(b []byte) (string, error) {
	if len(b) < 2 || int(b[0]) > len(b) || b[0] < 2 || DescriptorType(b[1]) != DescriptorTypeString {
		return "", fmt.Errorf("%w: not a string descriptor", ErrMalformed)
	}
	s, err := utf16le.NewDecoder().Bytes(b[2:b[0]])
	if err != nil {
		return "", fmt.Errorf("decode string descriptor: %w", err)
	}
	return string(s), nil
}

// DecodeLanguageList returns the LANGIDs of a string descriptor zero.
func DecodeLanguageList(b []byte) ([]LangID, error) {
	if len(b) < 2 || int(b[0]) > len(b) || b[0] < 2 || b[0]%2 != 0 || DescriptorType(b[1]) != DescriptorTypeString {
		return nil, fmt.Errorf("%w: not a language list", ErrMalformed)
	}
	var ids []LangID
	for i := 2; i < int(b[0]); i += 2 {
		ids = append(ids, LangID(binary.LittleEndian.Uint16(b[i:])))
	}
	return ids, nil
}

// Table is one language's strings, in index order starting at 1.
type Table struct {
	Lang    LangID
	Strings []string
}

// Strings builds a Table.
func Strings(lang LangID, s ...string) Table {
	return Table{Lang: lang, Strings: s}
}

// LanguagePolicy decides what Get does for a language that has no table.
type LanguagePolicy int

const (
	// FallbackToFirst answers with the first registered language.
	FallbackToFirst LanguagePolicy = iota
	// RejectUnknown answers not found.
	RejectUnknown
)

// Dictionary maps (index, language) to encoded string descriptors. Index 0
// is the list of supported languages. It is read-only after construction.
type Dictionary struct {
	langs   []LangID
	canon   []string
	encoded map[LangID][][]byte
	list    []byte
	policy  LanguagePolicy
}

// NewDictionary encodes every table up front. All tables must hold the same
// number of strings; the first table is the canonical one for IndexOf and
// for language fallback.
func NewDictionary(tables ...Table) (*Dictionary, error) {
	if len(tables) == 0 {
		return nil, ErrNoLanguages
	}
	n := len(tables[0].Strings)
	if n > 0xFF {
		return nil, fmt.Errorf("%w: %d", ErrTooManyStrings, n)
	}
	if 2+2*len(tables) > 0xFF {
		return nil, fmt.Errorf("%w: %d languages", ErrLengthOverflow, len(tables))
	}
	d := &Dictionary{
		canon:   append([]string(nil), tables[0].Strings...),
		encoded: make(map[LangID][][]byte, len(tables)),
		list:    make([]byte, 2, 2+2*len(tables)),
	}
	d.list[0] = uint8(2 + 2*len(tables))
	d.list[1] = uint8(DescriptorTypeString)
	for _, t := range tables {
		if len(t.Strings) != n {
			return nil, fmt.Errorf("%w: %s has %d, %s has %d",
				ErrStringCountMismatch, tables[0].Lang, n, t.Lang, len(t.Strings))
		}
		if _, dup := d.encoded[t.Lang]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateLanguage, t.Lang)
		}
		enc := make([][]byte, n)
		for i, s := range t.Strings {
			b, err := EncodeStringDescriptor(s)
			if err != nil {
				return nil, fmt.Errorf("%s string %d: %w", t.Lang, i+1, err)
			}
			enc[i] = b
		}
		d.encoded[t.Lang] = enc
		d.langs = append(d.langs, t.Lang)
		d.list = binary.LittleEndian.AppendUint16(d.list, uint16(t.Lang))
	}
	return d, nil
}

// MustDictionary is like NewDictionary but panics on error.
func MustDictionary(tables ...Table) *Dictionary {
	d, err := NewDictionary(tables...)
	if err != nil {
		panic(err)
	}
	return d
}

// WithPolicy returns a dictionary sharing d's strings with a different
// language policy.
func (d *Dictionary) WithPolicy(p LanguagePolicy) *Dictionary {
	c := *d
	c.policy = p
	return &c
}

// IndexOf returns the 1-based index of s in the canonical table, or 0.
func (d *Dictionary) IndexOf(s string) uint8 {
	for i, c := range d.canon {
		if c == s {
			return uint8(i + 1)
		}
	}
	return 0
}

// Get returns the descriptor for index in lang. Index 0 is the language
// list and ignores lang.
func (d *Dictionary) Get(index uint8, lang LangID) ([]byte, bool) {
	if index == 0 {
		return append([]byte(nil), d.list...), true
	}
	if int(index) > len(d.canon) {
		return nil, false
	}
	enc, ok := d.encoded[lang]
	if !ok {
		if d.policy == RejectUnknown {
			return nil, false
		}
		enc = d.encoded[d.langs[0]]
	}
	return append([]byte(nil), enc[index-1]...), true
}

// Languages returns the registered languages in registration order.
func (d *Dictionary) Languages() []LangID { return append([]LangID(nil), d.langs...) }

// Len is the number of strings per language.
func (d *Dictionary) Len() int { return len(d.canon) }
