package mbox

import (
	"github.com/inbucket/mfck/pkg/bytestr"
	"github.com/inbucket/mfck/pkg/config"
	"github.com/inbucket/mfck/pkg/diag"
)

// SplitConfirm lets interactive callers approve a split.  line is the
// candidate envelope without its newline; pos is its offset within body.
type SplitConfirm func(body bytestr.String, line bytestr.String, pos int) bool

// Split scans the body for an embedded "\n\nFrom " envelope and, when found
// (and confirmed), truncates the body just before it, parses the tail as new
// messages, and splices them into the list after msg.  Reports whether a
// split happened.
func (msg *Message) Split(cfg *config.Core, con *diag.Console, confirm SplitConfirm) bool {
	body := msg.body
	cur := bytestr.NewCursor(body)

	for {
		if !parseUntilFromSpace(cur, 2) {
			break
		}
		if !cur.TakeNewline() || !cur.TakeNewline() {
			con.Errorf("Internal error, couldn't parse double newline splitting %s", msg.tag)
			return false
		}
		pos := cur.Pos()

		line, _, _, ok := parseFromSpaceLine(cur)
		if !ok {
			continue
		}
		// Drop the newline from the line we display.
		if !line.IsEmpty() {
			line = line.Sub(0, line.Len()-1)
		}
		con.Notef("Message %s: Found \"From \" line in body:\n %s", msg.tag, line.Quoted(-1))

		if confirm != nil && !confirm(body, line, pos) {
			continue
		}

		p := &parser{cur: cur, con: con, cfg: cfg}
		cur.MoveTo(pos)
		var newMsg *Message
		truncate := true
		for {
			m, ok := p.parseMessage(msg.mbox, false)
			if !ok {
				break
			}
			if truncate {
				// Shorten the old body and link in the new message.
				msg.body = body.Sub(0, pos-1)
				msg.setDirty(true)
				truncate = false
			}
			m.next = msg.next
			msg.next = m
			con.Notef("Created new message %s", m.tag)
			m.setDirty(true)
			msg = m
			newMsg = m
			cur.TakeNewline()
		}
		return newMsg != nil
	}

	return false
}
