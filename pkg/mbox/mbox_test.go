package mbox

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/inbucket/mfck/pkg/bytestr"
	"github.com/inbucket/mfck/pkg/config"
	"github.com/inbucket/mfck/pkg/diag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testCore returns a Core configuration suitable for tests: no mmap, short
// lock timeout.
func testCore() *config.Core {
	return &config.Core{
		UseMmap:     false,
		MmapMin:     8192,
		LockTimeout: time.Second,
		Pager:       "cat",
		Editor:      "true",
		PageWidth:   80,
		PageHeight:  24,
	}
}

// testConsole returns a console capturing output in a buffer.
func testConsole() (*diag.Console, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	return diag.NewConsole(buf, buf, nil), buf
}

// openString writes content to a temp mailbox file and opens it.
func openString(t *testing.T, content string) (*Mailbox, *diag.Console, *bytes.Buffer) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mbox")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	con, buf := testConsole()
	mb, err := Open(path, false, testCore(), con)
	require.NoError(t, err)
	t.Cleanup(mb.Close)
	return mb, con, buf
}

const cleanMbox = "From alice@example.com Mon Apr  7 12:34:56 2008\n" +
	"From: alice@example.com\n" +
	"Subject: Hello\n" +
	"Content-Length: 6\n" +
	"\n" +
	"Hello\n" +
	"\n" +
	"From bob@example.com Tue Apr  8 01:02:03 2008\n" +
	"From: bob@example.com\n" +
	"Subject: Re: Hello\n" +
	"Content-Length: 6\n" +
	"\n" +
	"World\n" +
	"\n"

func TestCleanParse(t *testing.T) {
	mb, con, _ := openString(t, cleanMbox)
	assert.Equal(t, 0, con.Warnings())
	assert.False(t, mb.IsDirty())
	require.Equal(t, 2, mb.Count())

	msg := mb.Root()
	assert.Equal(t, 1, msg.Number())
	assert.Equal(t, "alice@example.com", msg.EnvelopeSender().String())
	assert.Equal(t, 2008, msg.EnvelopeDate().Year)
	assert.Equal(t, "Hello\n", msg.Body().String())
	assert.Equal(t, "Hello", msg.Headers().Get(KeySubject).String())

	msg = msg.Next()
	assert.Equal(t, 2, msg.Number())
	assert.Equal(t, "World\n", msg.Body().String())
	assert.Nil(t, msg.Next())
}

// Round-trip identity: a mailbox parsed without complaint serializes back
// byte for byte.
func TestCleanRoundTrip(t *testing.T) {
	mb, con, _ := openString(t, cleanMbox)
	require.Equal(t, 0, con.Warnings())
	require.False(t, mb.IsDirty())

	out := &bytes.Buffer{}
	require.NoError(t, mb.WriteTo(out, true))
	assert.Equal(t, cleanMbox, out.String())
}

func TestMessageByNumber(t *testing.T) {
	mb, _, _ := openString(t, cleanMbox)
	assert.Nil(t, mb.MessageByNumber(0))
	assert.Nil(t, mb.MessageByNumber(3))
	require.NotNil(t, mb.MessageByNumber(2))
	assert.Equal(t, 2, mb.MessageByNumber(2).Number())
}

func TestDirtyPropagation(t *testing.T) {
	mb, _, _ := openString(t, cleanMbox)
	require.False(t, mb.IsDirty())

	msg := mb.Root()
	msg.Headers().Set(KeySubject, bytestr.S("Changed"))
	assert.True(t, msg.IsDirty())
	assert.True(t, mb.IsDirty())
}

func TestDeletedSkippedOnWrite(t *testing.T) {
	mb, _, _ := openString(t, cleanMbox)
	mb.Root().SetDeleted(true)
	assert.True(t, mb.IsDirty())

	out := &bytes.Buffer{}
	require.NoError(t, mb.WriteTo(out, true))
	assert.NotContains(t, out.String(), "alice@example.com")
	assert.Contains(t, out.String(), "bob@example.com")
}

func TestTombstoneNumbersStable(t *testing.T) {
	mb, _, _ := openString(t, cleanMbox)
	mb.Root().SetDeleted(true)
	// Numbers are not reassigned on delete.
	assert.Equal(t, 1, mb.Root().Number())
	assert.Equal(t, 2, mb.Root().Next().Number())
	assert.Equal(t, 2, mb.Count())
}

func TestAppendClone(t *testing.T) {
	mb, _, _ := openString(t, cleanMbox)

	path := filepath.Join(t.TempDir(), "dest")
	con, _ := testConsole()
	dest, err := Open(path, true, testCore(), con)
	require.NoError(t, err)
	defer dest.Close()

	require.NoError(t, dest.Append(mb.Root().Clone()))
	assert.Equal(t, 1, dest.Count())
	assert.True(t, dest.IsDirty())

	// Tied messages are refused.
	err = dest.Append(mb.Root())
	require.Error(t, err)
	var fatal *diag.FatalError
	require.ErrorAs(t, err, &fatal)
	assert.Equal(t, diag.ExSoftware, fatal.Code)

	require.NoError(t, dest.Save(false, testCore(), con))
	reread, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(reread), "alice@example.com")
}

func TestMissingFileWithoutCreate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nope")
	con, _ := testConsole()
	_, err := Open(path, false, testCore(), con)
	require.Error(t, err)
	assert.ErrorIs(t, err, diag.ErrResource)
	// A failed open must not leave the lock behind.
	_, statErr := os.Stat(path + ".lock")
	assert.True(t, os.IsNotExist(statErr))
}

func TestEmptyMailboxCreate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "new")
	con, _ := testConsole()
	mb, err := Open(path, true, testCore(), con)
	require.NoError(t, err)
	defer mb.Close()
	assert.Equal(t, 0, mb.Count())
	assert.Nil(t, mb.Root())
}
