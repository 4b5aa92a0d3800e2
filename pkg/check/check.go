// Package check runs the mailbox invariant rules: report in check mode,
// fix in repair mode, with per-occurrence prompting when interactive.
package check

import (
	"github.com/inbucket/mfck/pkg/bytestr"
	"github.com/inbucket/mfck/pkg/diag"
	"github.com/inbucket/mfck/pkg/extension"
	"github.com/inbucket/mfck/pkg/extension/event"
	"github.com/inbucket/mfck/pkg/mbox"
)

const maxCharWarnCount = 5

// state tracks one checking run's repair decisions.
type state struct {
	repair     bool
	autoChoice byte // nonzero applies to every remaining question
	quit       bool
	con        *diag.Console
	ext        *extension.Host
}

func newState(repair, interactive bool, con *diag.Console, ext *extension.Host) *state {
	s := &state{repair: repair, con: con, ext: ext}
	if !interactive {
		s.autoChoice = 'y'
	}
	return s
}

// repairingAll reports whether fixes are being applied without asking.
func (s *state) repairingAll() bool {
	return s.repair && s.autoChoice == 'y'
}

// shouldRepair decides whether to apply the current fix, asking the user
// when no standing answer exists.  An uppercase answer applies to all
// remaining questions.
func (s *state) shouldRepair() bool {
	if !s.repair {
		return false
	}
	choice := s.autoChoice
	if choice == 0 {
		choice = s.con.AskChoice(" Repair [ynq]?", "ynYNq", 'y')
	}
	if choice >= 'A' && choice <= 'Z' {
		choice += 'a' - 'A'
		s.autoChoice = choice
	}
	s.quit = choice == 'q'
	return choice == 'y'
}

// finding reports one rule hit to the console and the extension host.
func (s *state) finding(msg *mbox.Message, rule, detail string, format string, args ...interface{}) {
	s.con.Warnf(format, args...)
	if s.ext != nil {
		s.ext.Events.AfterCheckFinding.Emit(&event.CheckFinding{
			Mailbox: msg.Mailbox().Name(),
			Tag:     msg.Tag(),
			Rule:    rule,
			Detail:  detail,
		})
	}
}

// repairSuffix annotates warnings when the fix will be applied unasked.
func (s *state) repairSuffix(suffix string) string {
	if s.repairingAll() {
		return suffix
	}
	return ""
}

// Mailbox runs the rule battery over every message.  Strict mode widens the
// rule set; repair mode applies fixes, prompting per occurrence when the
// console is interactive.
func Mailbox(mb *mbox.Mailbox, strict, repair, interactive bool,
	con *diag.Console, ext *extension.Host) {
	s := newState(repair, interactive, con, ext)

	for msg := mb.Root(); msg != nil && !s.quit; msg = msg.Next() {
		if s.checkContentLength(msg, strict); s.quit {
			break
		}
		if s.checkMessageID(msg, strict); s.quit {
			break
		}
		if !strict {
			continue
		}
		if s.checkStrayFromHeader(msg); s.quit {
			break
		}
		if s.checkFromPresent(msg); s.quit {
			break
		}
		if s.checkDatePresent(msg); s.quit {
			break
		}
		s.checkHeaderBytes(msg)
	}
}

// checkContentLength cares about incorrect Content-Lengths always, missing
// ones only in strict mode.  A message carrying a Dovecot From-space mask is
// repaired by rebuilding its body instead of patching the header.
func (s *state) checkContentLength(msg *mbox.Message, strict bool) {
	value := msg.Headers().Get(mbox.KeyContentLength)
	cllen := value.ToInt(-1)
	bodyLen := msg.BodyLength()
	if cllen == bodyLen || (value.IsZero() && !strict) {
		return
	}

	if msg.DovecotBug() != 0 {
		s.finding(msg, "dovecot-from-space", "",
			"Message %s: Corrupted by Dovecot \"From \" bug%s",
			msg.Tag(), s.repairSuffix(" (repairing)"))
		if s.shouldRepair() {
			msg.RepairDovecot(s.con, strict)
		}
		return
	}

	if value.IsZero() {
		s.finding(msg, "content-length", "missing",
			"Message %s: Missing Content-Length:, should be %d%s",
			msg.Tag(), bodyLen, s.repairSuffix(" (repairing)"))
	} else {
		s.finding(msg, "content-length", value.String(),
			"Message %s: Incorrect Content-Length: %s, should be %d%s",
			msg.Tag(), value.Pretty(), bodyLen, s.repairSuffix(" (repairing)"))
	}
	if s.shouldRepair() {
		msg.Headers().Set(mbox.KeyContentLength, bytestr.Printf("%d", bodyLen))
	}
}

// checkMessageID substitutes X-Message-ID for a missing Message-ID, and in
// strict mode synthesizes one from the message contents when neither exists.
func (s *state) checkMessageID(msg *mbox.Message, strict bool) {
	value := msg.Headers().Get(mbox.KeyMessageID)
	if !value.IsZero() && !value.IsEmpty() {
		return
	}
	alt := msg.Headers().Get(mbox.KeyXMessageID)
	if !alt.IsZero() && !alt.IsEmpty() {
		s.finding(msg, "message-id", "substituted",
			"Message %s: Missing Message-ID: header, %s with %s",
			msg.Tag(), replacingVerb(s.repairingAll()), alt.Pretty())
		if s.shouldRepair() {
			msg.Headers().Set(mbox.KeyMessageID, alt.Clone())
		}
		return
	}
	if !strict {
		return
	}
	synthID := msg.SynthesizeMessageID()
	s.finding(msg, "message-id", "synthesized",
		"Message %s: Missing Message-ID: header, %s with %s",
		msg.Tag(), replacingVerb(s.repairingAll()), synthID)
	if s.shouldRepair() {
		msg.Headers().Set(mbox.KeyMessageID, synthID)
	}
}

func replacingVerb(repairing bool) string {
	if repairing {
		return "replacing"
	}
	return "could replace"
}

// checkStrayFromHeader deletes a bogus ">From " pseudo header.
func (s *state) checkStrayFromHeader(msg *mbox.Message) {
	value := msg.Headers().Get(mbox.KeyGTFromSpace)
	if value.IsZero() {
		return
	}
	s.finding(msg, "stray-gtfrom", value.String(),
		"Message %s: Bogus \">From \" line in the headers:\n \">From %s\"%s",
		msg.Tag(), value, s.repairSuffix(" (removing)"))
	if s.shouldRepair() {
		msg.Headers().Delete(mbox.KeyGTFromSpace, false)
	}
}

// checkFromPresent repairs a missing From header from the best available
// substitute: X-From, Sender, Return-Path, then the envelope sender.
func (s *state) checkFromPresent(msg *mbox.Message) {
	if !msg.Headers().Get(mbox.KeyFrom).IsZero() {
		return
	}
	source := mbox.KeyXFrom
	value := msg.Headers().Get(mbox.KeyXFrom)
	if value.IsZero() {
		source = mbox.KeySender
		value = msg.Headers().Get(mbox.KeySender)
	}
	if value.IsZero() {
		source = mbox.KeyReturnPath
		value = msg.Headers().Get(mbox.KeyReturnPath)
	}
	if value.IsZero() {
		source = "envelope sender"
		value = msg.EnvelopeSender()
	}
	if value.IsZero() {
		s.finding(msg, "from", "missing", "Message %s: Missing From: header", msg.Tag())
		return
	}
	s.finding(msg, "from", source,
		"Message %s: Missing From: header, %s %s:\n \"%s\"",
		msg.Tag(), usingVerb(s.repairingAll()), source, value)
	if s.shouldRepair() {
		msg.Headers().Set(mbox.KeyFrom, value.Clone())
	}
}

// checkDatePresent repairs a missing Date header from X-Date, the timestamp
// of the last Received header, or the envelope date.
func (s *state) checkDatePresent(msg *mbox.Message) {
	if !msg.Headers().Get(mbox.KeyDate).IsZero() {
		return
	}
	source := mbox.KeyXDate
	value := msg.Headers().Get(mbox.KeyXDate)
	if value.IsZero() {
		// Look for "Received: <junk>; <date>".
		if received := msg.Headers().GetLast(mbox.KeyReceived); !received.IsZero() {
			if pos := received.FindByte(';', true); pos != bytestr.NotFound {
				cur := bytestr.NewCursor(received)
				cur.MoveTo(pos + 1)
				cur.TakeSpaces()
				source = mbox.KeyReceived
				value = cur.TakeToEnd()
			}
		}
	}
	if value.IsZero() && !msg.EnvelopeSender().IsZero() {
		source = "envelope date"
		value = msg.EnvelopeDate().RFC822()
	}
	if value.IsZero() {
		s.finding(msg, "date", "missing", "Message %s: Missing Date: header", msg.Tag())
		return
	}
	s.finding(msg, "date", source,
		"Message %s: Missing Date: header, %s %s:\n \"%s\"",
		msg.Tag(), usingVerb(s.repairingAll()), source, value)
	if s.shouldRepair() {
		msg.Headers().Set(mbox.KeyDate, value.Clone())
	}
}

func usingVerb(repairing bool) string {
	if repairing {
		return "using"
	}
	return "but could use"
}

// checkHeaderBytes flags undeclared binary data in header lines: control
// bytes other than tab and line endings, DEL, and anything past ASCII.
// Report only; warnings are capped per message.
func (s *state) checkHeaderBytes(msg *mbox.Message) {
	warnCount := 0
	for h := msg.Headers().Root(); h != nil; h = h.Next() {
		line := h.Line()
		if line.IsZero() {
			line = h.Value()
		}
		pos := findIllegalByte(line)
		if pos < 0 {
			continue
		}
		warnCount++
		if warnCount >= maxCharWarnCount {
			s.finding(msg, "header-bytes", "",
				"Message %s: Illegal character %s in header (and more):\n %s",
				msg.Tag(), bytestr.QuoteByte(line.Bytes()[pos]), line.Pretty())
			break
		}
		s.finding(msg, "header-bytes", "",
			"Message %s: Illegal character %s in header:\n %s",
			msg.Tag(), bytestr.QuoteByte(line.Bytes()[pos]), line.Pretty())
	}
}

// findIllegalByte returns the offset of the first byte that may not appear
// in a header, or -1.
func findIllegalByte(s bytestr.String) int {
	for i, c := range s.Bytes() {
		if c == '\r' || c == '\n' || c == '\t' {
			continue
		}
		if c < ' ' || c == 0x7F || c > 0x7E {
			return i
		}
	}
	return -1
}
