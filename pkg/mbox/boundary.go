package mbox

import (
	"github.com/inbucket/mfck/pkg/bytestr"
	"github.com/inbucket/mfck/pkg/diag"
)

// warnContentLength reports a Content-Length mismatch.  A one byte delta is
// only worth a warning in strict mode.
func warnContentLength(con *diag.Console, msg *Message, contLen, bodyLen int, strict bool) {
	delta := contLen - bodyLen
	if delta < 0 {
		delta = -delta
	}
	switch {
	case delta > 1 && contLen > bodyLen:
		con.Warnf("Message %s: Truncated, %d bytes missing", msg.tag, contLen-bodyLen)
	case delta > 1 && contLen < bodyLen:
		con.Warnf("Message %s: Oversized, %d bytes too many", msg.tag, bodyLen-contLen)
	case strict:
		con.Warnf("Message %s: Incorrect Content-Length: %d; using %d",
			msg.tag, contLen, bodyLen)
	}
}

// moveToEndOfMessage advances the cursor from the start of msg's body to its
// end.  Strategies, in order: trust Content-Length, recognize the Dovecot
// From-space corruption, find the closing MIME boundary, scan for the next
// valid "From " line, and finally end of file.
func (p *parser) moveToEndOfMessage(msg *Message) {
	cur := p.cur
	bodyPos := cur.Pos()
	clstr := msg.headers.Get(KeyContentLength)
	cllen := clstr.ToInt(-1)

	if !clstr.IsZero() && cllen >= 0 && cur.Move(cllen) {
		// Great, we have a Content-Length.  Make sure it's good and proper
		// before using it, though.  There should be a newline immediately
		// after this message followed by EOF or the next message's "From "
		// line; the newline may also be missing right at EOF.
		endPos := cur.Pos()

		// The newline may have been miscounted: an 'F' right at the claimed
		// end with a newline just before it means the end is one byte early.
		// Content-Length plus trailing newline stays authoritative; the byte
		// before the claimed end must be that newline.
		if cur.Peek() == 'F' {
			cur.Move(-1)
			if cur.Peek() != '\n' {
				cur.Move(1)
			} else {
				endPos = cur.Pos()
			}
		}

		// We want either EOF, "\n" EOF, or "\nFrom ".
		accepted := cur.AtEnd()
		if !accepted && cur.TakeNewline() {
			accepted = cur.AtEnd() || cur.TakeLiteralString(keyFromSpace, true)
		}
		if accepted {
			cur.MoveTo(endPos)
			return
		}

		if p.tryDovecotWorkaround(msg, cllen, bodyPos+cllen) {
			// Didn't find the "From " line where we expected it, but we did
			// find a case of the Dovecot bug that splits up messages, adding
			// extraneous headers.
			return
		}

		// Couldn't find a proper "From " line where we expected it.  Start
		// scanning at the beginning of the message and break at the first
		// proper "From " line we find.
		cur.MoveTo(bodyPos)
		fromPos := -1
		for parseUntilFromSpace(cur, 2) {
			cur.TakeNewline()
			fromPos = cur.Pos()
			cur.TakeNewline()
			if fromLineValid(cur) {
				break
			}
		}
		if fromPos == -1 {
			// Never found *any* "From " line -- go to end.
			cur.TakeToEnd()
			fromPos = cur.Pos()
		}
		warnContentLength(p.con, msg, cllen, fromPos-bodyPos, p.cfg.Strict)
		cur.MoveTo(fromPos)
		return
	}

	// Invalid or missing Content-Length.  See if we happen to have a
	// multipart message with a valid ending boundary.  If so, we can be
	// pretty sure where the message ends.
	contentType := msg.headers.Get(KeyContentType)
	if !contentType.IsZero() && contentType.HasPrefix(bytestr.S("multipart"), false) {
		if boundary, ok := mimeParameter(contentType, "boundary"); ok {
			boundaryEnd := bytestr.Append(bytestr.S("--"), boundary, bytestr.S("--"))
			if _, ok := cur.TakeUntil(boundaryEnd, true); ok {
				if cur.Move(-1) && cur.TakeNewline() &&
					cur.TakeLiteral(boundaryEnd, true) && cur.TakeNewline() {
					// Got it!
					return
				}
			}
		}
	}

	// As a last resort, try searching for a valid "\nFrom " line instead.
	// This is a bit dodgy as messages may contain such a line as part of
	// their bodies, e.g. when quoting another message.  But what can you do.
	//
	// Look for a valid "From " line, either as the first line of the body,
	// or later on preceded by a newline.  In the former case the newline
	// terminating the headers serves double duty.
	cur.MoveTo(bodyPos)
	pos := cur.Pos()
	for {
		if fromLineValid(cur) {
			cur.MoveTo(pos)
			return
		}
		if !parseUntilFromSpace(cur, 1) {
			break
		}
		pos = cur.Pos()
		if !cur.TakeNewline() {
			break
		}
	}

	// Go to the end of the mailbox minus one trailing newline.
	cur.TakeToEnd()
	cur.Move(-1)
	if ch := cur.Peek(); !(ch == '\n' || ch == '\r') {
		cur.Move(1)
	}
}
