package mbox

import (
	"github.com/inbucket/mfck/pkg/bytestr"
	"github.com/inbucket/mfck/pkg/diag"
)

// dovecotPatterns are the header subsets Dovecot has been seen injecting,
// tried in this order: the header-only subsets from most specific to least,
// then the same subsets with an injected blank line.
var dovecotPatterns = []BugMask{
	BugXUIDKeys | BugContentLength | BugStatus,
	BugXUIDKeys | BugContentLength,
	BugXUIDKeys | BugStatus,
	BugXUIDKeys,
	BugXUIDKeys | BugContentLength | BugStatus | BugNewline,
	BugXUIDKeys | BugContentLength | BugNewline,
	BugXUIDKeys | BugStatus | BugNewline,
	BugXUIDKeys | BugNewline,
}

// processDovecotBody walks the body from the cursor to endPos, accounting
// for every artifact the given bug pattern says Dovecot injected after a
// "From " line: any subset of X-UID, X-Keywords, Content-Length, and Status
// headers, plus possibly the terminating blank line.  It returns the total
// injected byte count and the artifact kinds actually observed.  When parts
// is non-nil, the body segments between the artifacts are collected into it,
// which is how repair rebuilds the body.
func processDovecotBody(cur *bytestr.Cursor, endPos int, bug BugMask, parts *[]bytestr.String) (int, BugMask) {
	xHeadSpace := 0
	seen := BugMask(0)
	partMark := cur.Pos()

	// Dovecot isn't very stringent about what precedes a legal "From " line,
	// so look for a single newline instead of two.  The first line may be a
	// valid "From " line too, so the parsing order below matters.
	for {
		if !fromLineValid(cur) {
			if _, ok := cur.TakeUntilNewline(); !ok || cur.Pos() >= endPos {
				break
			}
			cur.TakeNewline()
			continue
		}

		// Got one!  Go scan the headers...
		for !cur.AtEnd() {
			pos := cur.Pos()

			if cur.TakeNewline() {
				// This is the terminating newline, but maybe we should
				// include it too?
				if bug&BugNewline != 0 {
					nlLen := cur.Pos() - pos
					xHeadSpace += nlLen
					seen |= BugNewline
					if parts != nil {
						*parts = append(*parts, cur.Base().Sub(partMark, pos))
						partMark = cur.Pos()
					}
				}
				// Go back before the newline so that we can start looking
				// for a new "\nFrom " immediately again.  Dovecot thinks the
				// newline that terminates the headers could also be the
				// newline that precedes the next "From " line.
				cur.MoveTo(pos)
				break
			}

			// Looking for Content-Length, X-UID, X-Keywords, and Status.
			var kind BugMask
			switch {
			case bug&BugContentLength != 0 && cur.TakeLiteralString(KeyContentLength, false):
				kind = BugContentLength
			case bug&BugXUIDKeys != 0 && cur.TakeLiteralString(KeyXUID, false):
				kind = BugXUIDKeys
			case bug&BugXUIDKeys != 0 && cur.TakeLiteralString(KeyXKeywords, false):
				kind = BugXUIDKeys
			case bug&BugStatus != 0 && cur.TakeLiteralString(KeyStatus, false):
				kind = BugStatus
			}
			if kind != 0 && cur.TakeByte(':', true) {
				cur.TakeLine()
				// Account for this header.
				hlen := cur.Pos() - pos
				xHeadSpace += hlen
				seen |= kind
				if parts != nil {
					*parts = append(*parts, cur.Base().Sub(partMark, pos))
					partMark = cur.Pos()
				}
			} else {
				cur.TakeLine()
			}
		}
	}

	if parts != nil {
		cur.TakeToEnd()
		*parts = append(*parts, cur.Base().Sub(partMark, cur.Pos()))
	}

	return xHeadSpace, seen
}

// tryDovecotWorkaround is called when the Content-Length doesn't seem to be
// correct for the message being parsed.  It checks whether the body between
// its start and the claimed end contains a "From " line followed by injected
// Dovecot headers; if discounting those makes the Content-Length land on a
// valid message end, we have our culprit: the pattern is recorded on the
// message and the cursor is left at the real end.  Otherwise the cursor is
// restored and false returned.
func (p *parser) tryDovecotWorkaround(msg *Message, cllen, claimedEnd int) bool {
	cur := p.cur

	for _, bug := range dovecotPatterns {
		// Go back to point at the body.
		cur.MoveTo(claimedEnd - cllen)
		xHeadSpace, seen := processDovecotBody(cur, claimedEnd, bug, nil)

		// Did we find anything, and if so, did it make the Content-Length
		// valid?
		if xHeadSpace > 0 && cur.MoveTo(claimedEnd+xHeadSpace) {
			// Look for "[\n]\nFrom "...
			if ch := cur.Peek(); ch == 'F' || ch == -1 {
				// Got an 'F' instead of a newline.  Maybe we've arrived
				// right at the next message's "From " line instead?  Check
				// whether a newline precedes us; if so, continue as if
				// nothing had happened.
				cur.Move(-1)
				if cur.Peek() != '\n' {
					cur.Move(1)
				}
			}

			pos := cur.Pos()

			// Allow one or two newlines here as one might have been added by
			// Dovecot along with the extra headers.
			if !cur.TakeNewline() {
				continue
			}
			if cur.TakeNewline() {
				pos = cur.Pos() - 1
			}

			if cur.AtEnd() || fromLineValid(cur) {
				// Yup!  Move to the new end and remember the artifact kinds
				// we actually saw, which is what repair must elide.
				cur.MoveTo(pos)
				msg.dovecot = seen
				return true
			}
		}
	}

	cur.MoveTo(claimedEnd)
	return false
}

// RepairDovecot rebuilds the body of a message whose dovecot_bug mask is
// set, eliding the injected artifacts, then recomputes Content-Length and
// clears the mask.
func (msg *Message) RepairDovecot(con *diag.Console, strict bool) {
	if msg.dovecot == 0 {
		return
	}
	cur := bytestr.NewCursor(msg.body)
	var parts []bytestr.String
	_, _ = processDovecotBody(cur, msg.body.Len(), msg.dovecot, &parts)
	body := bytestr.Join(parts, bytestr.String{})
	msg.dovecot = 0

	// Content-Length should be correct now, but better check it.
	clstr := msg.headers.Get(KeyContentLength)
	cllen := clstr.ToInt(-1)
	if !clstr.IsZero() && cllen != -1 && cllen != body.Len() {
		warnContentLength(con, msg, cllen, body.Len(), strict)
	}
	msg.SetBody(body)
}
