package mbox

import (
	"bytes"
	"io"
	"os"
	"strings"
	"testing"

	gombox "github.com/emersion/go-mbox"
	"github.com/inbucket/mfck/pkg/bytestr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// A mutated header loses its verbatim line and is reconstructed on write;
// untouched headers are emitted byte for byte.
func TestWriterReconstructsDirtyHeaders(t *testing.T) {
	mb, _, _ := openString(t, cleanMbox)
	mb.Root().Headers().Set(KeySubject, bytestr.S("Rewritten"))

	out := &bytes.Buffer{}
	require.NoError(t, mb.WriteTo(out, true))
	assert.Contains(t, out.String(), "Subject: Rewritten\n")
	assert.Contains(t, out.String(), "From: alice@example.com\n")
	assert.Contains(t, out.String(), "Subject: Re: Hello\n")
}

// A message without its original envelope line gets one reconstructed from
// the parsed sender and date.
func TestWriterReconstructsEnvelope(t *testing.T) {
	msg := &Message{
		envSender: bytestr.S("x@y"),
		envDate:   CTime{Sec: 3, Min: 2, Hour: 1, Day: 9, Mon: 0, Year: 1999, Wday: 6},
		body:      bytestr.S("b\n"),
	}
	msg.headers = &HeaderList{msg: msg}

	out := &bytes.Buffer{}
	require.NoError(t, WriteMessage(out, msg))
	assert.Equal(t, "From x@y Sat Jan 09 01:02:03 1999\n\nb\n", out.String())
}

// The ">From " pseudo header is written without a colon separator.
func TestWriterGTFromHeader(t *testing.T) {
	msg := &Message{body: bytestr.S("")}
	msg.headers = &HeaderList{msg: msg}
	msg.headers.Append(bytestr.S(KeyGTFromSpace), bytestr.S("old envelope"))

	out := &bytes.Buffer{}
	require.NoError(t, WriteMessage(out, msg))
	assert.Equal(t, ">From old envelope\n\n", out.String())
}

// IMAP-base bookkeeping migrates to the first surviving message when its
// holder is deleted.
func TestIMAPBaseMigration(t *testing.T) {
	mb, _, _ := openString(t,
		"From a@b Mon Apr  7 12:34:56 2008\n"+
			"X-IMAPbase: 1234 5678\n"+
			"Subject: one\n"+
			"Content-Length: 2\n"+
			"\n"+
			"1\n"+
			"\n"+
			"From c@d Tue Apr  8 01:02:03 2008\n"+
			"Subject: two\n"+
			"Content-Length: 2\n"+
			"\n"+
			"2\n"+
			"\n")
	mb.Root().SetDeleted(true)

	out := &bytes.Buffer{}
	require.NoError(t, mb.WriteTo(out, true))
	written := out.String()

	assert.NotContains(t, written, "Subject: one")
	assert.True(t, strings.HasPrefix(written, "From c@d "))
	assert.Contains(t, written, "X-IMAPBase: 1234 5678\n")
	assert.Equal(t, 1, strings.Count(strings.ToLower(written), "x-imapbase"))

	// Surviving message now carries the header.
	mb2, _, _ := openString(t, written)
	require.Equal(t, 1, mb2.Count())
	assert.Equal(t, "1234 5678", mb2.Root().Headers().Get(KeyXIMAPBase).String())
}

// The migration is a no-op when the holder is still the first survivor.
func TestIMAPBaseStaysPut(t *testing.T) {
	mb, _, _ := openString(t,
		"From a@b Mon Apr  7 12:34:56 2008\n"+
			"X-IMAPbase: 1 2\n"+
			"Content-Length: 2\n"+
			"\n"+
			"1\n"+
			"\n")
	out := &bytes.Buffer{}
	require.NoError(t, mb.WriteTo(out, true))
	assert.Contains(t, out.String(), "X-IMAPbase: 1 2\n")
	assert.False(t, mb.IsDirty())
}

// An independent mbox implementation agrees on the message framing of our
// output.
func TestWriterGoMboxCrossCheck(t *testing.T) {
	mb, _, _ := openString(t, cleanMbox)
	out := &bytes.Buffer{}
	require.NoError(t, mb.WriteTo(out, true))

	reader := gombox.NewReader(bytes.NewReader(out.Bytes()))
	count := 0
	var bodies []string
	for {
		mr, err := reader.NextMessage()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		raw, err := io.ReadAll(mr)
		require.NoError(t, err)
		bodies = append(bodies, string(raw))
		count++
	}
	require.Equal(t, 2, count)
	assert.Contains(t, bodies[0], "Subject: Hello")
	assert.Contains(t, bodies[1], "Subject: Re: Hello")
}

// WriteFile goes through a temp file and an atomic rename, keeping a backup
// when asked.
func TestWriteFileBackup(t *testing.T) {
	mb, con, _ := openString(t, cleanMbox)
	mb.Root().Headers().Set(KeySubject, bytestr.S("changed"))

	cfg := testCore()
	cfg.Backup = true
	require.NoError(t, mb.WriteFile(mb.Source(), cfg, con))
	assert.False(t, mb.IsDirty())

	backup, err := os.ReadFile(mb.Source() + "~")
	require.NoError(t, err)
	assert.Equal(t, cleanMbox, string(backup))

	current, err := os.ReadFile(mb.Source())
	require.NoError(t, err)
	assert.Contains(t, string(current), "Subject: changed\n")
}

func TestSaveCleanMailboxIsNoop(t *testing.T) {
	mb, con, buf := openString(t, cleanMbox)
	before, err := os.ReadFile(mb.Source())
	require.NoError(t, err)

	require.NoError(t, mb.Save(false, testCore(), con))
	assert.Contains(t, buf.String(), "unchanged")

	after, err := os.ReadFile(mb.Source())
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestDryRunInhibitsWrite(t *testing.T) {
	mb, con, _ := openString(t, cleanMbox)
	mb.Root().Headers().Set(KeySubject, bytestr.S("changed"))

	cfg := testCore()
	cfg.DryRun = true
	require.NoError(t, mb.WriteFile(mb.Source(), cfg, con))

	current, err := os.ReadFile(mb.Source())
	require.NoError(t, err)
	assert.Equal(t, cleanMbox, string(current))
	assert.True(t, mb.IsDirty())
}
