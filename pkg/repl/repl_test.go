package repl

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/inbucket/mfck/pkg/config"
	"github.com/inbucket/mfck/pkg/diag"
	"github.com/inbucket/mfck/pkg/extension"
	"github.com/inbucket/mfck/pkg/extension/event"
	"github.com/inbucket/mfck/pkg/mbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

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

const testMbox = "From alice@example.com Mon Apr  7 12:34:56 2008\n" +
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

// openREPL builds a REPL plus an open mailbox over content.
func openREPL(t *testing.T, content, input string) (*REPL, *mbox.Mailbox, *bytes.Buffer, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mbox")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	buf := &bytes.Buffer{}
	var con *diag.Console
	if input != "" {
		con = diag.NewConsole(buf, buf, strings.NewReader(input))
	} else {
		con = diag.NewConsole(buf, buf, nil)
	}
	cfg := testCore()
	mb, err := mbox.Open(path, false, cfg, con)
	require.NoError(t, err)
	t.Cleanup(mb.Close)
	return New(cfg, con, extension.NewHost()), mb, buf, path
}

func TestMatchCommand(t *testing.T) {
	tests := []struct {
		word string
		want command
	}{
		{"check", cmdCheck},
		{"che", cmdCheck},
		{"c", cmdCheck},
		{"z", cmdListNext},
		{"z-", cmdListPrevious},
		{"p", cmdShowPrevious}, // previous comes before print
		{"pr", cmdShowPrevious},
		{"print", cmdShow},
		{"q", cmdExit},
		{"?", cmdHelp},
		{"+", cmdShowNext},
		{"bogus", cmdNone},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, matchCommand(tc.word), "word %q", tc.word)
	}
}

func TestTrueString(t *testing.T) {
	assert.True(t, trueString("yes", false))
	assert.True(t, trueString("ON", false))
	assert.True(t, trueString("t", false))
	assert.False(t, trueString("off", true))
	assert.True(t, trueString("", true))
	assert.False(t, trueString("", false))
}

func TestToMessageNumber(t *testing.T) {
	_, mb, _, _ := openREPL(t, testMbox, "")
	assert.Equal(t, 2, toMessageNumber("$", mb))
	assert.Equal(t, 1, toMessageNumber("1", mb))
	assert.Equal(t, -1, toMessageNumber("x", mb))
}

func TestArgReader(t *testing.T) {
	buf := &bytes.Buffer{}
	a := &argReader{args: []string{"one", "two"}, con: diag.NewConsole(buf, buf, nil)}

	arg, ok := a.next(true)
	require.True(t, ok)
	assert.Equal(t, "one", arg)
	assert.False(t, a.noMore())

	_, _ = a.next(false)
	assert.True(t, a.noMore())

	_, ok = a.next(true)
	assert.False(t, ok)
	assert.Contains(t, buf.String(), "Missing argument")
}

func TestMessageSetArgsDefault(t *testing.T) {
	r, _, _, _ := openREPL(t, testMbox, "")
	buf := &bytes.Buffer{}
	a := &argReader{con: diag.NewConsole(buf, buf, nil)}
	set := r.messageSetArgs(a, 0, 2, 2)
	require.NotNil(t, set)
	assert.Equal(t, 2, set.First())
	assert.Equal(t, -1, set.Next(2))
}

func TestFindMessages(t *testing.T) {
	r, mb, buf, _ := openREPL(t, testMbox, "")

	r.FindMessages(mb, "", "World")
	assert.Contains(t, buf.String(), "Re: Hello")
	assert.NotContains(t, buf.String(), " 1: ")

	buf.Reset()
	r.FindMessages(mb, "Subject", "hello")
	// Case insensitive, matches both subjects.
	assert.Contains(t, buf.String(), "Hello")
	assert.Contains(t, buf.String(), "Re: Hello")

	buf.Reset()
	r.FindMessages(mb, "Body", "Hello")
	assert.Contains(t, buf.String(), "alice@example.com")
	assert.NotContains(t, buf.String(), "bob@example.com")
}

func TestListMailbox(t *testing.T) {
	r, mb, buf, _ := openREPL(t, testMbox, "")
	r.ListMailbox(mb, 1, -1)
	out := buf.String()
	assert.Contains(t, out, "alice@example.com")
	assert.Contains(t, out, "bob@example.com")
	assert.Contains(t, out, "Hello")
}

func TestRunLoopDeleteAutosaves(t *testing.T) {
	r, mb, _, path := openREPL(t, testMbox, "")
	r.RunLoop(mb, []string{"delete 1"})

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "alice@example.com")
	assert.Contains(t, string(data), "bob@example.com")
	assert.False(t, mb.IsDirty())
}

func TestRunLoopRepairCommand(t *testing.T) {
	stale := "From foo@x Wed Jan  1 00:00:00 2020\n" +
		"Subject: s2\n" +
		"Content-Length: 9\n" +
		"\n" +
		"abc\n" +
		"\n" +
		"From bar@x Thu Jan  2 00:00:00 2020\n" +
		"\n" +
		"ok\n"
	r, mb, _, path := openREPL(t, stale, "")
	r.RunLoop(mb, []string{"repair"})

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Content-Length: 4\n")
}

func TestRunLoopQuitLeavesUnsaved(t *testing.T) {
	r, mb, buf, path := openREPL(t, testMbox, "delete 1\nquit\n")
	r.cfg.Interactive = true
	r.RunLoop(mb, nil)

	assert.Contains(t, buf.String(), "Leaving modified mailbox unsaved")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, testMbox, string(data))
	assert.True(t, mb.IsDirty())
}

func TestRunLoopDryRun(t *testing.T) {
	r, mb, buf, path := openREPL(t, testMbox, "")
	r.cfg.DryRun = true
	r.RunLoop(mb, []string{"delete 1"})

	assert.Contains(t, buf.String(), "Dry run mode")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, testMbox, string(data))
}

func TestRunLoopUniqueCommand(t *testing.T) {
	dup := "From a@b Mon Apr  7 12:34:56 2008\n" +
		"From: a@b\n" +
		"Subject: s\n" +
		"Message-ID: <dup@x>\n" +
		"Content-Length: 2\n" +
		"\n" +
		"b\n" +
		"\n"
	r, mb, _, path := openREPL(t, dup+dup, "")
	r.RunLoop(mb, []string{"unique"})

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(data), "Message-ID: <dup@x>"))
}

func TestRunLoopStrictToggle(t *testing.T) {
	r, mb, buf, _ := openREPL(t, testMbox, "")
	require.False(t, r.cfg.Strict)
	r.RunLoop(mb, []string{"strict"})
	assert.True(t, r.cfg.Strict)
	assert.Contains(t, buf.String(), "Strict checking mode is turned on")
}

func TestRunLoopUnknownCommand(t *testing.T) {
	r, mb, buf, _ := openREPL(t, testMbox, "")
	r.RunLoop(mb, []string{"frobnicate"})
	assert.Contains(t, buf.String(), "Unknown command: frobnicate")
}

func TestRunLoopWriteVeto(t *testing.T) {
	r, mb, buf, path := openREPL(t, testMbox, "")
	r.ext.Events.BeforeMailboxWritten.AddListener("test",
		func(event.MailboxInfo) *event.WriteDecision {
			return &event.WriteDecision{Allow: false}
		})

	r.RunLoop(mb, []string{"delete 1"})
	assert.Contains(t, buf.String(), "write vetoed by extension")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, testMbox, string(data))
}

func TestShowHelp(t *testing.T) {
	r, _, buf, _ := openREPL(t, testMbox, "")
	r.showHelp("")
	assert.Contains(t, buf.String(), "unique")
	assert.Contains(t, buf.String(), "help <cmd>")

	buf.Reset()
	r.showHelp("join")
	assert.Contains(t, buf.String(), "join messages by replacing them")

	buf.Reset()
	r.showHelp("all")
	assert.Contains(t, buf.String(), "undelete one or more messages")
}

func TestJoinCommand(t *testing.T) {
	r, mb, buf, path := openREPL(t, testMbox, "")
	r.RunLoop(mb, []string{"join 1,2"})

	assert.Contains(t, buf.String(), "Appended 1 message onto message #1")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	// One envelope at the top; bob's old envelope is now body text.
	assert.True(t, strings.HasPrefix(string(data), "From alice@example.com "))
	assert.Contains(t, string(data), "From bob@example.com")
	require.NoError(t, err)
}

func TestInterruptFlag(t *testing.T) {
	r, _, _, _ := openREPL(t, testMbox, "")
	assert.False(t, r.canceled())
	r.Interrupt()
	assert.True(t, r.canceled())
	assert.False(t, r.canceled())
}
