package mbox

import (
	"github.com/inbucket/mfck/pkg/bytestr"
)

// Well known header keys.  Comparison is always case insensitive.
const (
	KeyBcc             = "bcc"
	KeyCc              = "cc"
	KeyContentLength   = "Content-Length"
	KeyContentType     = "Content-Type"
	KeyDate            = "Date"
	KeyFrom            = "From"
	KeyMessageID       = "Message-ID"
	KeyReceived        = "Received"
	KeyResentBcc       = "Resent-bcc"
	KeyResentCc        = "Resent-cc"
	KeyResentDate      = "Resent-Date"
	KeyResentFrom      = "Resent-From"
	KeyResentMessageID = "Resent-Message-ID"
	KeyResentSender    = "Resent-Sender"
	KeyResentSubject   = "Resent-Subject"
	KeyResentTo        = "Resent-To"
	KeyReturnPath      = "Return-Path"
	KeySender          = "Sender"
	KeyStatus          = "Status"
	KeySubject         = "Subject"
	KeyTo              = "To"
	KeyXcc             = "X-cc"
	KeyXDate           = "X-Date"
	KeyXFrom           = "X-From"
	KeyXIMAP           = "X-IMAP"
	KeyXIMAPBase       = "X-IMAPBase"
	KeyXKeywords       = "X-Keywords"
	KeyXMessageID      = "X-Message-ID"
	KeyXSubject        = "X-Subject"
	KeyXTo             = "X-To"
	KeyXUID            = "X-UID"

	// keyFromSpace is the envelope marker; it shows up as a header key only
	// in corrupt mailboxes.
	keyFromSpace = "From "
	// KeyGTFromSpace is the quoted envelope marker some agents leave behind
	// as a pseudo header.
	KeyGTFromSpace = ">From "
)

// Header is one RFC-822 header: a key, its folded-and-trimmed value, and the
// verbatim line(s) it came from.  line is zeroed when the header is mutated;
// serialization then reconstructs "key: value\n".
type Header struct {
	key   bytestr.String
	value bytestr.String
	line  bytestr.String
	next  *Header
}

// Key returns the header name, trailing whitespace and colon stripped.
func (h *Header) Key() bytestr.String { return h.key }

// Value returns the unfolded, trimmed header content.
func (h *Header) Value() bytestr.String { return h.value }

// Line returns the verbatim on-disk text, or the zero String after mutation.
func (h *Header) Line() bytestr.String { return h.line }

// Next returns the following header in the list.
func (h *Header) Next() *Header { return h.next }

// HeaderList is an ordered list of headers owned by one Message.  Duplicate
// keys are preserved in order.
type HeaderList struct {
	root *Header
	msg  *Message
}

// Root returns the first header, for iteration.
func (hl *HeaderList) Root() *Header { return hl.root }

// Find returns the first header with the given key.
func (hl *HeaderList) Find(key string) *Header {
	k := bytestr.S(key)
	for h := hl.root; h != nil; h = h.next {
		if h.key.Equal(k, false) {
			return h
		}
	}
	return nil
}

// FindLast returns the last header with the given key.
func (hl *HeaderList) FindLast(key string) *Header {
	k := bytestr.S(key)
	var last *Header
	for h := hl.root; h != nil; h = h.next {
		if h.key.Equal(k, false) {
			last = h
		}
	}
	return last
}

// Get returns the value of the first header with the given key.  The zero
// String means the header is absent.
func (hl *HeaderList) Get(key string) bytestr.String {
	if h := hl.Find(key); h != nil {
		return h.value
	}
	return bytestr.String{}
}

// GetLast returns the value of the last header with the given key.
func (hl *HeaderList) GetLast(key string) bytestr.String {
	if h := hl.FindLast(key); h != nil {
		return h.value
	}
	return bytestr.String{}
}

// Set replaces the value of the first header with the given key, or appends
// a new header.  The original line is discarded so the writer reconstructs
// the header, and the owning message goes dirty.
func (hl *HeaderList) Set(key string, value bytestr.String) {
	if h := hl.Find(key); h != nil {
		h.value = value
		h.line = bytestr.String{}
	} else {
		hl.Append(bytestr.S(key), value)
		return
	}
	hl.msg.setDirty(true)
}

// Append adds a header at the end of the list.
func (hl *HeaderList) Append(key, value bytestr.String) {
	p := &hl.root
	for *p != nil {
		p = &(*p).next
	}
	*p = &Header{key: key, value: value}
	hl.msg.setDirty(true)
}

// Delete removes the first (or all) headers with the given key, reporting
// whether any was removed.
func (hl *HeaderList) Delete(key string, all bool) bool {
	k := bytestr.S(key)
	removed := false
	p := &hl.root
	for *p != nil {
		if (*p).key.Equal(k, false) {
			*p = (*p).next
			removed = true
			hl.msg.setDirty(true)
			if !all {
				break
			}
			continue
		}
		p = &(*p).next
	}
	return removed
}

// clone copies the list for a new owning message.
func (hl *HeaderList) clone(msg *Message) *HeaderList {
	nl := &HeaderList{msg: msg}
	p := &nl.root
	for h := hl.root; h != nil; h = h.next {
		*p = &Header{key: h.key.Clone(), value: h.value.Clone(), line: h.line.Clone()}
		p = &(*p).next
	}
	return nl
}
