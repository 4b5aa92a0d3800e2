package mbox

import (
	"crypto/md5"
	"fmt"

	"github.com/inbucket/mfck/pkg/bytestr"
	"github.com/inbucket/mfck/pkg/extension/event"
)

// syntheticIDSuffix tags Message-IDs we had to invent.
const syntheticIDSuffix = "@synthesized-by-mfck"

// BugMask records which variant of the Dovecot From-space corruption was
// detected in a message body.
type BugMask uint8

const (
	// BugXUIDKeys marks injected X-UID / X-Keywords headers.
	BugXUIDKeys BugMask = 1 << iota
	// BugContentLength marks an injected Content-Length header.
	BugContentLength
	// BugStatus marks an injected Status header.
	BugStatus
	// BugNewline marks an injected terminating blank line.
	BugNewline
)

// Message is one mail message inside a Mailbox.  Its raw extent, envelope,
// headers, and body are zero-copy views into the mailbox data until repair
// replaces them with owned allocations.
type Message struct {
	num       int
	mbox      *Mailbox
	tag       string
	data      bytestr.String // envelope line through end of body
	envelope  bytestr.String // verbatim "From " line, zero when absent
	envSender bytestr.String
	envDate   CTime
	headers   *HeaderList
	body      bytestr.String
	cachedID  bytestr.String
	hasID     bool
	deleted   bool
	dirty     bool
	dovecot   BugMask
	next      *Message
}

func newMessage(mbox *Mailbox, num int) *Message {
	msg := &Message{mbox: mbox, num: num}
	msg.headers = &HeaderList{msg: msg}
	return msg
}

// Number returns the message's 1-based position at parse time.  Numbers are
// not reassigned when other messages are deleted.
func (msg *Message) Number() int { return msg.num }

// Tag returns the human readable label, e.g. "#3 {@1024}".
func (msg *Message) Tag() string { return msg.tag }

// Mailbox returns the owning mailbox.
func (msg *Message) Mailbox() *Mailbox { return msg.mbox }

// Next returns the following message in file order.
func (msg *Message) Next() *Message { return msg.next }

// Raw returns the message's full on-disk extent.
func (msg *Message) Raw() bytestr.String { return msg.data }

// Envelope returns the verbatim "From " line, zero when the message had
// none.
func (msg *Message) Envelope() bytestr.String { return msg.envelope }

// EnvelopeSender returns the parsed envelope sender, zero when absent.
func (msg *Message) EnvelopeSender() bytestr.String { return msg.envSender }

// EnvelopeDate returns the parsed envelope date.  It is only meaningful when
// EnvelopeSender is non-zero.
func (msg *Message) EnvelopeDate() CTime { return msg.envDate }

// Headers returns the message's header list.
func (msg *Message) Headers() *HeaderList { return msg.headers }

// Body returns the message body.
func (msg *Message) Body() bytestr.String { return msg.body }

// BodyLength returns the body size in bytes.
func (msg *Message) BodyLength() int { return msg.body.Len() }

// SetBody replaces the body, regenerates Content-Length, and marks the
// message dirty.
func (msg *Message) SetBody(body bytestr.String) {
	msg.body = body
	msg.headers.Set(KeyContentLength, bytestr.Printf("%d", body.Len()))
	msg.setDirty(true)
}

// DovecotBug returns the detected From-space corruption mask, zero when the
// message is clean.
func (msg *Message) DovecotBug() BugMask { return msg.dovecot }

// IsDeleted reports the tombstone flag.
func (msg *Message) IsDeleted() bool { return msg.deleted }

// SetDeleted flips the tombstone flag, dirtying the message when it changes.
func (msg *Message) SetDeleted(flag bool) {
	if msg.deleted != flag {
		msg.deleted = flag
		msg.setDirty(true)
	}
}

// IsDirty reports whether any field diverges from the raw bytes.
func (msg *Message) IsDirty() bool { return msg.dirty }

func (msg *Message) setDirty(flag bool) {
	if msg == nil {
		return
	}
	msg.dirty = flag
	if flag && msg.mbox != nil {
		msg.mbox.dirty = true
	}
}

// MessageID returns the message's Message-ID header value, cached after the
// first lookup.  The zero String means none is present.
func (msg *Message) MessageID() bytestr.String {
	if !msg.hasID {
		msg.cachedID = msg.headers.Get(KeyMessageID)
		msg.hasID = true
	}
	return msg.cachedID
}

// Clone copies the message without attaching it to a mailbox.  The clone is
// born dirty so saving it to another mailbox serializes it.
func (msg *Message) Clone() *Message {
	n := &Message{
		tag:       msg.tag,
		data:      msg.data.Clone(),
		envelope:  msg.envelope.Clone(),
		envSender: msg.envSender.Clone(),
		envDate:   msg.envDate,
		body:      msg.body.Clone(),
		deleted:   msg.deleted,
		dirty:     true,
		dovecot:   msg.dovecot,
	}
	n.headers = msg.headers.clone(n)
	return n
}

// Join appends other's entire raw extent (envelope, headers, and body) onto
// msg's body and tombstones other.
func (msg *Message) Join(other *Message) {
	msg.SetBody(bytestr.Append(msg.body, bytestr.S("\n"), other.data))
	other.SetDeleted(true)
}

// idHeaderKeys are the identifying headers mixed into a synthesized
// Message-ID.  Their values are mixed in the order the headers appear in the
// message.
var idHeaderKeys = []string{KeyCc, KeyDate, KeyFrom, KeySender, KeySubject, KeyTo}

// SynthesizeMessageID derives a Message-ID from the MD5 of identifying
// header values plus the body.
func (msg *Message) SynthesizeMessageID() bytestr.String {
	sum := md5.New()
	for h := msg.headers.Root(); h != nil; h = h.Next() {
		for _, key := range idHeaderKeys {
			if h.Key().EqualString(key, false) {
				sum.Write(h.Value().Bytes())
				break
			}
		}
	}
	sum.Write(msg.body.Bytes())
	return bytestr.Printf("<%x%s>", sum.Sum(nil), syntheticIDSuffix)
}

// Info summarizes the message for extension listeners.
func (msg *Message) Info() *event.MessageInfo {
	mailbox := ""
	if msg.mbox != nil {
		mailbox = msg.mbox.Name()
	}
	return &event.MessageInfo{
		Mailbox:        mailbox,
		Tag:            msg.tag,
		Number:         msg.num,
		EnvelopeSender: msg.envSender.String(),
		MessageID:      msg.MessageID().String(),
		Subject:        msg.headers.Get(KeySubject).String(),
		BodySize:       msg.body.Len(),
		Deleted:        msg.deleted,
		DovecotBug:     msg.dovecot != 0,
	}
}

func (msg *Message) String() string {
	return fmt.Sprintf("message %s", msg.tag)
}
