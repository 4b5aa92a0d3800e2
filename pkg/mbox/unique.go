package mbox

import (
	"sort"

	"github.com/inbucket/mfck/pkg/diag"
)

// uniqueCheckKeys are the headers that must all match, beyond the
// Message-ID, before two messages are considered the same.
var uniqueCheckKeys = []string{
	KeyFrom, KeyTo, KeyCc, KeyBcc, KeySubject, KeyDate,
	KeyResentFrom, KeyResentTo, KeyResentCc, KeyResentBcc,
	KeyResentSubject, KeyResentDate, KeyResentMessageID,
	KeyXFrom, KeyXTo, KeyXcc, KeyXSubject, KeyXDate,
}

// Chooser resolves a near-duplicate pair interactively.  It returns how many
// of the two were deleted, or -1 to stop uniquing.
type Chooser func(a, b *Message) int

// Messages returns the mailbox's messages as a slice, tombstones included.
func (mb *Mailbox) Messages() []*Message {
	msgs := make([]*Message, 0, mb.count)
	for msg := mb.root; msg != nil; msg = msg.next {
		msgs = append(msgs, msg)
	}
	return msgs
}

// sortByMessageID caches each message's Message-ID and sorts the slice by it,
// case sensitively, absent and empty IDs first.
func sortByMessageID(msgs []*Message, con *diag.Console, verbose bool) {
	if verbose {
		con.Notef("Sorting messages")
	}
	for _, msg := range msgs {
		msg.MessageID()
	}
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].cachedID.Compare(msgs[j].cachedID, true) < 0
	})
}

// Unique deletes duplicate messages: pairs with equal Message-IDs whose
// salient headers and bodies also match.  Near-duplicates are handed to
// choose when one is supplied, as interactive mode does.
func (mb *Mailbox) Unique(con *diag.Console, verbose bool, choose Chooser) {
	msgs := mb.Messages()
	if len(msgs) == 0 {
		con.Notef("Found 0 duplicates")
		return
	}
	sortByMessageID(msgs, con, verbose)

	allDups := 0
	m := msgs[0]
	for i := 1; i < len(msgs); i++ {
		n := msgs[i]
		if quit := uniquePair(m, n, con, choose, &allDups); quit {
			break
		}
		m = n
	}

	verb := "Deleted"
	if allDups == 0 {
		verb = "Found"
	}
	plural := "s"
	if allDups == 1 {
		plural = ""
	}
	con.Notef("%s %d duplicate%s", verb, allDups, plural)
}

// uniquePair compares one adjacent pair, deleting the latter when they are
// the same message.  quit is reported when the chooser asked to stop.
func uniquePair(m, n *Message, con *diag.Console, choose Chooser, allDups *int) (quit bool) {
	if m.IsDeleted() || n.IsDeleted() {
		return false
	}
	if m.cachedID.IsZero() || n.cachedID.IsZero() {
		return false
	}
	if !m.cachedID.Equal(n.cachedID, true) {
		return false
	}

	// They've got the same Message-IDs; what about other salient details
	// like the body and certain key headers?
	same := true
	for _, key := range uniqueCheckKeys {
		if !m.headers.Get(key).Equal(n.headers.Get(key), true) {
			con.Notef("Messages %s and %s have the same Message-ID\n %s, but different %s lines",
				m.tag, n.tag, m.cachedID.Pretty(), key)
			same = false
			break
		}
	}
	if same && !m.body.Equal(n.body, true) {
		con.Notef("Messages %s and %s have the same Message-ID\n%s, but different bodies",
			m.tag, n.tag, m.cachedID.Pretty())
		same = false
	}

	if same {
		con.Notef("Messages %s and %s with Message-ID\n %s are the same, deleting the latter",
			m.tag, n.tag, m.cachedID.Pretty())
		n.SetDeleted(true)
		*allDups++
		return false
	}
	if choose != nil {
		dups := choose(m, n)
		if dups < 0 {
			return true
		}
		*allDups += dups
	}
	return false
}
