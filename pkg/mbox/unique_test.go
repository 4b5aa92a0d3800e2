package mbox

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dupMessage(sender, id, subject, body string) string {
	return "From " + sender + " Mon Apr  7 12:34:56 2008\n" +
		"From: " + sender + "\n" +
		"To: rcpt@example.com\n" +
		"Subject: " + subject + "\n" +
		"Date: Mon, 7 Apr 2008 12:34:56 -0000\n" +
		"Message-ID: " + id + "\n" +
		"\n" +
		body +
		"\n"
}

// Exact duplicates: the latter is tombstoned and the writer emits one copy.
func TestUniqueDeletesExactDuplicate(t *testing.T) {
	content := dupMessage("a@b", "<dup@x>", "same", "body text\n") +
		dupMessage("a@b", "<dup@x>", "same", "body text\n") +
		dupMessage("c@d", "<other@x>", "different", "body text\n")
	mb, con, buf := openString(t, content)
	require.Equal(t, 3, mb.Count())

	mb.Unique(con, false, nil)

	deleted := 0
	for _, msg := range mb.Messages() {
		if msg.IsDeleted() {
			deleted++
		}
	}
	assert.Equal(t, 1, deleted)
	assert.Contains(t, buf.String(), "Deleted 1 duplicate")

	out := &bytes.Buffer{}
	require.NoError(t, mb.WriteTo(out, true))
	assert.Equal(t, 2, bytes.Count(out.Bytes(), []byte("Subject:")))
}

// Same Message-ID but a differing header is only a note, not a deletion,
// when no chooser is available.
func TestUniqueNearDuplicateKept(t *testing.T) {
	content := dupMessage("a@b", "<dup@x>", "one", "body\n") +
		dupMessage("a@b", "<dup@x>", "two", "body\n")
	mb, con, buf := openString(t, content)

	mb.Unique(con, false, nil)

	for _, msg := range mb.Messages() {
		assert.False(t, msg.IsDeleted())
	}
	assert.Contains(t, buf.String(), "different Subject lines")
	assert.Contains(t, buf.String(), "Found 0 duplicates")
}

func TestUniqueDifferentBodies(t *testing.T) {
	content := dupMessage("a@b", "<dup@x>", "same", "body one\n") +
		dupMessage("a@b", "<dup@x>", "same", "body two\n")
	mb, con, buf := openString(t, content)

	mb.Unique(con, false, nil)
	assert.Contains(t, buf.String(), "different bodies")
	for _, msg := range mb.Messages() {
		assert.False(t, msg.IsDeleted())
	}
}

// Messages without a Message-ID never pair up.
func TestUniqueIgnoresMissingIDs(t *testing.T) {
	noID := "From a@b Mon Apr  7 12:34:56 2008\n" +
		"Subject: x\n" +
		"Content-Length: 2\n" +
		"\n" +
		"b\n" +
		"\n"
	mb, con, _ := openString(t, noID+noID)
	mb.Unique(con, false, nil)
	for _, msg := range mb.Messages() {
		assert.False(t, msg.IsDeleted())
	}
}

// The chooser resolves near duplicates and may stop the run.
func TestUniqueChooser(t *testing.T) {
	content := dupMessage("a@b", "<dup@x>", "one", "body\n") +
		dupMessage("a@b", "<dup@x>", "two", "body\n")
	mb, con, _ := openString(t, content)

	calls := 0
	mb.Unique(con, false, func(a, b *Message) int {
		calls++
		b.SetDeleted(true)
		return 1
	})
	assert.Equal(t, 1, calls)
	assert.True(t, mb.Messages()[1].IsDeleted())
}

func TestUniqueChooserQuit(t *testing.T) {
	content := dupMessage("a@b", "<dup@x>", "one", "body\n") +
		dupMessage("a@b", "<dup@x>", "two", "body\n") +
		dupMessage("a@b", "<dup@x>", "three", "body\n")
	mb, con, _ := openString(t, content)

	calls := 0
	mb.Unique(con, false, func(a, b *Message) int {
		calls++
		return -1
	})
	assert.Equal(t, 1, calls)
	for _, msg := range mb.Messages() {
		assert.False(t, msg.IsDeleted())
	}
}
