// Package bytestr contains the byte string and cursor primitives the mbox
// parser is built on.  A String is a length-delimited view of bytes that
// remembers where its storage came from, so the writer can tell original
// mailbox bytes (re-emitted verbatim) apart from synthesized replacements.
package bytestr

import (
	"bytes"
	"fmt"

	"golang.org/x/sys/unix"
)

// Provenance records who owns a String's backing bytes.
type Provenance uint8

const (
	// Borrowed views share another String's storage and own nothing.
	Borrowed Provenance = iota
	// Owned strings hold heap bytes of their own.
	Owned
	// Mapped strings own an mmap region released by Release.
	Mapped
	// Static strings wrap compiled-in literals.
	Static
)

// String is an immutable view of bytes plus its provenance.  The zero value
// is the empty string.
type String struct {
	b    []byte
	prov Provenance
}

// New wraps the given bytes without copying them.
func New(b []byte, prov Provenance) String {
	return String{b: b, prov: prov}
}

// S wraps a Go string literal as a Static string; the conversion copies its
// bytes.
func S(s string) String {
	return String{b: []byte(s), prov: Static}
}

// Copy allocates an Owned copy of the given bytes.
func Copy(b []byte) String {
	return String{b: append([]byte(nil), b...), prov: Owned}
}

// Len returns the number of bytes viewed.
func (s String) Len() int { return len(s.b) }

// IsEmpty reports whether the view has zero length.
func (s String) IsEmpty() bool { return len(s.b) == 0 }

// IsZero reports whether the String is the zero value, which callers use to
// distinguish "absent" from "present but empty".
func (s String) IsZero() bool { return s.b == nil }

// Bytes exposes the underlying view.  Callers must not mutate it.
func (s String) Bytes() []byte { return s.b }

// Provenance returns who owns the backing bytes.
func (s String) Provenance() Provenance { return s.prov }

func (s String) String() string { return string(s.b) }

// At returns the byte at pos, or -1 when out of range.
func (s String) At(pos int) int {
	if pos < 0 || pos >= len(s.b) {
		return -1
	}
	return int(s.b[pos])
}

// Sub returns a Borrowed view of s[start:end].
func (s String) Sub(start, end int) String {
	return String{b: s.b[start:end], prov: Borrowed}
}

// Clone returns a Borrowed view of the whole string.
func (s String) Clone() String {
	return String{b: s.b, prov: Borrowed}
}

// Release returns an mmap region to the kernel.  Owned and Borrowed strings
// are garbage collected; releasing them is a no-op.
func (s String) Release() error {
	if s.prov == Mapped && s.b != nil {
		return unix.Munmap(s.b)
	}
	return nil
}

// Append concatenates the given parts into a new Owned string.
func Append(parts ...String) String {
	n := 0
	for _, p := range parts {
		n += p.Len()
	}
	b := make([]byte, 0, n)
	for _, p := range parts {
		b = append(b, p.b...)
	}
	return String{b: b, prov: Owned}
}

// Join concatenates parts with delim between them into a new Owned string.
func Join(parts []String, delim String) String {
	n := 0
	for i, p := range parts {
		if i > 0 {
			n += delim.Len()
		}
		n += p.Len()
	}
	b := make([]byte, 0, n)
	for i, p := range parts {
		if i > 0 {
			b = append(b, delim.b...)
		}
		b = append(b, p.b...)
	}
	return String{b: b, prov: Owned}
}

// Printf formats into a new Owned string.
func Printf(format string, args ...interface{}) String {
	return String{b: []byte(fmt.Sprintf(format, args...)), prov: Owned}
}

// Equal compares byte content, case sensitively or not.
func (s String) Equal(o String, sameCase bool) bool {
	if sameCase {
		return bytes.Equal(s.b, o.b)
	}
	return len(s.b) == len(o.b) && asciiEqualFold(s.b, o.b)
}

// EqualString compares against a literal.
func (s String) EqualString(o string, sameCase bool) bool {
	return s.Equal(S(o), sameCase)
}

// HasPrefix reports whether s begins with sub.
func (s String) HasPrefix(sub String, sameCase bool) bool {
	if len(s.b) < len(sub.b) {
		return false
	}
	if sameCase {
		return bytes.HasPrefix(s.b, sub.b)
	}
	return asciiEqualFold(s.b[:len(sub.b)], sub.b)
}

// HasSuffix reports whether s ends with sub.
func (s String) HasSuffix(sub String, sameCase bool) bool {
	if len(s.b) < len(sub.b) {
		return false
	}
	if sameCase {
		return bytes.HasSuffix(s.b, sub.b)
	}
	return asciiEqualFold(s.b[len(s.b)-len(sub.b):], sub.b)
}

// Compare orders byte content, optionally folding ASCII case.  Shorter
// prefixes sort first, so the empty string sorts before everything.
func (s String) Compare(o String, sameCase bool) int {
	if sameCase {
		return bytes.Compare(s.b, o.b)
	}
	n := len(s.b)
	if len(o.b) < n {
		n = len(o.b)
	}
	for i := 0; i < n; i++ {
		ca, cb := lowerASCII(s.b[i]), lowerASCII(o.b[i])
		if ca != cb {
			return int(ca) - int(cb)
		}
	}
	return len(s.b) - len(o.b)
}

// NotFound is returned by the Find family when no match exists.
const NotFound = -1

// FindByte returns the offset of the first occurrence of ch.
func (s String) FindByte(ch byte, sameCase bool) int {
	if sameCase {
		return bytes.IndexByte(s.b, ch)
	}
	lo, up := lowerASCII(ch), upperASCII(ch)
	if lo == up {
		return bytes.IndexByte(s.b, ch)
	}
	for i, c := range s.b {
		if c == lo || c == up {
			return i
		}
	}
	return NotFound
}

// FindLastByte returns the offset of the last occurrence of ch.
func (s String) FindLastByte(ch byte, sameCase bool) int {
	lo, up := lowerASCII(ch), upperASCII(ch)
	for i := len(s.b) - 1; i >= 0; i-- {
		c := s.b[i]
		if c == ch || (!sameCase && (c == lo || c == up)) {
			return i
		}
	}
	return NotFound
}

// Find returns the offset of the first occurrence of sub.  The empty string
// is a substring of everything, at offset zero.
func (s String) Find(sub String, sameCase bool) int {
	if len(sub.b) == 0 {
		return 0
	}
	if sameCase {
		return bytes.Index(s.b, sub.b)
	}
	// Scan for the first byte, then confirm the rest case insensitively.
	rest := s
	offset := 0
	for {
		pos := rest.FindByte(sub.b[0], false)
		if pos == NotFound {
			return NotFound
		}
		rest = rest.Sub(pos, rest.Len())
		offset += pos
		if rest.HasPrefix(sub, false) {
			return offset
		}
		rest = rest.Sub(1, rest.Len())
		offset++
	}
}

// Contains reports whether sub occurs in s.
func (s String) Contains(sub String, sameCase bool) bool {
	return s.Find(sub, sameCase) != NotFound
}

// FindNewline returns the offset of the first CR or LF.
func (s String) FindNewline() int {
	return bytes.IndexAny(s.b, "\r\n")
}

// TrimSpaces returns a view with leading and trailing whitespace removed.
func (s String) TrimSpaces() String {
	b, e := 0, len(s.b)
	for b < e && isSpace(s.b[b]) {
		b++
	}
	for e > b && isSpace(s.b[e-1]) {
		e--
	}
	return String{b: s.b[b:e], prov: Borrowed}
}

// ToInt parses leading decimal digits, returning def when there are none.
func (s String) ToInt(def int) int {
	cur := NewCursor(s)
	if n, ok := cur.TakeInteger(); ok {
		return n
	}
	return def
}

func isSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '\v', '\f':
		return true
	}
	return false
}

func lowerASCII(c byte) byte {
	if c >= 'A' && c <= 'Z' {
		return c + ('a' - 'A')
	}
	return c
}

func upperASCII(c byte) byte {
	if c >= 'a' && c <= 'z' {
		return c - ('a' - 'A')
	}
	return c
}

func asciiEqualFold(a, b []byte) bool {
	for i := range a {
		if lowerASCII(a[i]) != lowerASCII(b[i]) {
			return false
		}
	}
	return true
}

// IsNewlineByte reports whether c is CR or LF.
func IsNewlineByte(c byte) bool { return c == '\r' || c == '\n' }

// QuoteByte renders a byte the way it should appear in a diagnostic, using
// C-style escapes for anything unprintable.
func QuoteByte(c byte) string {
	if c < ' ' || c > '~' {
		switch c {
		case '\t':
			return `'\t'`
		case '\n':
			return `'\n'`
		case '\r':
			return `'\r'`
		default:
			return fmt.Sprintf(`'\%03o'`, c)
		}
	}
	if c == '\'' {
		return `'\''`
	}
	return fmt.Sprintf("'%c'", c)
}

// Quoted renders the string inside double quotes with unprintable bytes
// escaped, truncated with an ellipsis past maxLen (negative means no limit).
func (s String) Quoted(maxLen int) string {
	b := s.b
	truncated := false
	if maxLen >= 0 && maxLen < len(b) {
		b = b[:maxLen]
		truncated = true
	}
	var out bytes.Buffer
	out.WriteByte('"')
	for _, c := range b {
		switch {
		case c == '\n':
			out.WriteString(`\n`)
		case c == '\r':
			out.WriteString(`\r`)
		case c == '\t':
			out.WriteString(`\t`)
		case c == '"':
			out.WriteString(`\"`)
		case c < ' ' || c > '~':
			fmt.Fprintf(&out, `\%03o`, c)
		default:
			out.WriteByte(c)
		}
	}
	out.WriteByte('"')
	if truncated {
		out.WriteString("...")
	}
	return out.String()
}

const maxPrettyLength = 32

// Pretty renders short, simple, printable single-word strings raw and quotes
// everything else.
func (s String) Pretty() string {
	if s.Len() == 0 || s.Len() > maxPrettyLength {
		return s.Quoted(maxPrettyLength)
	}
	for _, c := range s.b {
		if c <= ' ' || c > '~' {
			return s.Quoted(maxPrettyLength)
		}
	}
	return s.String()
}
