package mbox

import (
	"fmt"

	"github.com/inbucket/mfck/pkg/bytestr"
	"github.com/inbucket/mfck/pkg/config"
	"github.com/inbucket/mfck/pkg/diag"
)

// parser carries the cursor, console, and configuration through one parse.
type parser struct {
	cur *bytestr.Cursor
	con *diag.Console
	cfg *config.Core
}

// warnContext warns with a bit of surrounding mailbox text when context
// display is on.
func (p *parser) warnContext(format string, args ...interface{}) {
	p.con.WarnContext(p.cur.Base().Bytes(), p.cur.Pos(), format, args...)
}

// parseFromSpaceLine parses a full "From <sender> <ctime>" envelope line,
// trailing uucp style garbage tolerated.  On failure the cursor is fully
// rewound.
func parseFromSpaceLine(cur *bytestr.Cursor) (line, sender bytestr.String, date CTime, ok bool) {
	start := cur.Pos()
	if !cur.TakeLiteralString(keyFromSpace, true) {
		return
	}
	s, found := cur.TakeUntilSpace()
	if !found {
		cur.MoveTo(start)
		return
	}
	// There still shouldn't be more than one space, but just in case.
	cur.TakeSpaces()
	if !ParseCTime(cur, &date) {
		cur.MoveTo(start)
		return
	}
	// Allow "garbage" after the timestamp, e.g. "remote from foobar" like in
	// the old uucp days.
	_, _ = cur.TakeUntilNewline()
	if !cur.TakeNewline() {
		cur.MoveTo(start)
		return
	}
	return cur.Since(start), s, date, true
}

// fromLineValid reports whether a valid envelope line starts at the cursor,
// consuming it when so and rewinding when not.
func fromLineValid(cur *bytestr.Cursor) bool {
	_, _, _, ok := parseFromSpaceLine(cur)
	return ok
}

// parseUntilFromSpace advances to the next "From " preceded by the required
// number of newlines, leaving the cursor before those newlines.  Without a
// match the cursor stays put.
func parseUntilFromSpace(cur *bytestr.Cursor, newlines int) bool {
	savedPos := cur.Pos()
	fromSpace := bytestr.S(keyFromSpace)
	for {
		if _, ok := cur.TakeUntil(fromSpace, true); !ok {
			break
		}
		pos := cur.Pos()
		i := 0
		for ; i < newlines && cur.BackOverNewline(); i++ {
		}
		// We succeeded if we found enough newlines before the From_ line and
		// we didn't go back before our starting position.
		if i == newlines && cur.Pos() > savedPos {
			return true
		}
		cur.MoveTo(pos + fromSpace.Len())
	}
	cur.MoveTo(savedPos)
	return false
}

// parseHeader parses one header at the cursor.  It fails with the cursor
// rewound to the line start when the line is really a "From " envelope,
// which ends the current header block in malformed mailboxes.
func (p *parser) parseHeader() (*Header, bool) {
	cur := p.cur
	head := &Header{}

	ch := cur.Peek()
	if (ch >= 0 && ch <= ' ') || ch == ':' {
		p.warnContext("Header starts with illegal character %s", bytestr.QuoteByte(byte(ch)))
		return nil, false
	}

	// Parse header name.
	lineMark := cur.Pos()
	keyMark := cur.Pos()
	sawColon := false
	for {
		c, ok := cur.TakeChar()
		if !ok {
			break
		}
		if c == ':' {
			sawColon = true
			break
		}
		if c == ' ' {
			// Whoa, hold it right there!  There shouldn't be any spaces in
			// header keys.  Is it a "From " line that we've stumbled upon?
			key := cur.Since(keyMark)
			if key.EqualString(keyFromSpace, true) {
				// Yup, complain & back up.
				cur.MoveTo(lineMark)
				p.warnContext("Encountered unexpected \"From \" line in headers {@%d}",
					cur.Pos())
				return nil, false
			}
			// Or is it a ">From" line?
			if key.EqualString(KeyGTFromSpace, true) {
				// Yup, complain & accept it.
				p.warnContext("Encountered unexpected %s line in headers {@%d}",
					key.Quoted(-1), cur.Pos())
				head.key = key
				break
			}
		}
	}
	if sawColon {
		key := cur.Since(keyMark)
		head.key = key.Sub(0, key.Len()-1).TrimSpaces()
	}

	// Parse header value: RFC-822 folding continues on lines that begin with
	// space or tab.
	cur.TakeSpaces()
	valMark := cur.Pos()
	valEnd := cur.Pos()
	for {
		_, _ = cur.TakeUntilNewline()
		valEnd = cur.Pos()
		cur.TakeNewline()
		c := cur.Peek()
		if c != ' ' && c != '\t' {
			break
		}
	}
	head.value = cur.Base().Sub(valMark, valEnd).TrimSpaces()
	head.line = cur.Since(lineMark)

	return head, true
}

// parseHeaders parses headers until and including the blank line.  A
// premature end keeps the partial list with a warning.
func (p *parser) parseHeaders(msg *Message) {
	pHead := &msg.headers.root
	for !p.cur.TakeNewline() {
		if p.cur.AtEnd() {
			p.warnContext("Message %s: Header parsing ended prematurely", msg.tag)
			break
		}
		head, ok := p.parseHeader()
		if !ok {
			// Arguably we should fail here, but it's better to keep what we
			// got.
			p.warnContext("Message %s: Header parsing ended prematurely", msg.tag)
			break
		}
		*pHead = head
		pHead = &head.next
	}
}

// mimeParameter extracts a single parameter from a Content-Type style header
// value, tolerating both quoted and bare forms.
func mimeParameter(value bytestr.String, key string) (bytestr.String, bool) {
	cur := bytestr.NewCursor(value)
	for {
		if _, ok := cur.TakeUntilByte(';', false); !ok {
			return bytestr.String{}, false
		}
		cur.TakeByte(';', false)
		cur.TakeSpaces()
		if !cur.TakeLiteralString(key, false) {
			continue
		}
		cur.TakeSpaces()
		if !cur.TakeByte('=', false) {
			continue
		}
		cur.TakeSpaces()
		if cur.TakeByte('"', false) {
			if v, ok := cur.TakeUntilByte('"', false); ok {
				return v, true
			}
		}
		if v, ok := cur.TakeUntilByte(';', false); ok {
			return v.TrimSpaces(), true
		}
		return cur.TakeToEnd().TrimSpaces(), true
	}
}

// parseMessage parses one message at the cursor.  When useAllData is set the
// body runs to the end of data instead of through the boundary engine.
func (p *parser) parseMessage(mb *Mailbox, useAllData bool) (*Message, bool) {
	cur := p.cur

	// Skip over possible newlines (should not be here, but...).
	if cur.TakeNewline() {
		p.con.Warnf("Unexpected newline(s) after message %d", mb.count)
		for cur.TakeNewline() {
		}
	}

	if cur.AtEnd() {
		return nil, false
	}

	mb.count++
	msg := newMessage(mb, mb.count)
	msg.tag = fmt.Sprintf("#%d {@%d}", msg.num, cur.Pos())

	dataMark := cur.Pos()

	// Allow (expect) a "From " envelope to start the message.
	if line, sender, date, ok := parseFromSpaceLine(cur); ok {
		msg.envelope, msg.envSender, msg.envDate = line, sender, date
		if sender.IsEmpty() {
			p.warnContext("Empty envelope sender for message %s", msg.tag)
		}
	} else {
		p.warnContext("Could not find a valid \"From \" line for message %s", msg.tag)
	}

	// Parse headers (until & including empty line).
	p.parseHeaders(msg)

	// Parse body: find the end of the message.
	bodyMark := cur.Pos()
	if useAllData {
		cur.TakeToEnd()
	} else {
		p.moveToEndOfMessage(msg)
	}
	msg.body = cur.Since(bodyMark)
	msg.data = cur.Since(dataMark)

	return msg, true
}

// parseMessages appends every message in the cursor's data to the mailbox.
func (p *parser) parseMessages(mb *Mailbox) {
	if p.cfg.Verbose {
		p.con.Notef("Parsing mailbox %s", mb.Name())
	}
	pMsg := &mb.root
	for *pMsg != nil {
		pMsg = &(*pMsg).next
	}
	for {
		msg, ok := p.parseMessage(mb, false)
		if !ok {
			break
		}
		*pMsg = msg
		pMsg = &msg.next
		p.cur.TakeNewline()
	}
	if !p.cur.AtEnd() {
		p.warnContext("Unparsable garbage at end of mailbox (@%d):\n %s",
			p.cur.Pos(), p.cur.Rest().Quoted(72))
	}
}
