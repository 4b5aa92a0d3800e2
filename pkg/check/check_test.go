package check

import (
	"bytes"
	"crypto/md5"
	"fmt"
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
	"github.com/jhillyerd/goldiff"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCore() *config.Core {
	return &config.Core{
		UseMmap:     false,
		MmapMin:     8192,
		LockTimeout: time.Second,
		PageWidth:   80,
		PageHeight:  24,
	}
}

// openString opens a throwaway mailbox over the given content, optionally
// with interactive input.
func openString(t *testing.T, content, input string) (*mbox.Mailbox, *diag.Console, *bytes.Buffer) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mbox")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	buf := &bytes.Buffer{}
	var in *strings.Reader
	if input != "" {
		in = strings.NewReader(input)
	}
	var con *diag.Console
	if in != nil {
		con = diag.NewConsole(buf, buf, in)
	} else {
		con = diag.NewConsole(buf, buf, nil)
	}
	mb, err := mbox.Open(path, false, testCore(), con)
	require.NoError(t, err)
	t.Cleanup(mb.Close)
	return mb, con, buf
}

const staleMbox = "From foo@x Wed Jan  1 00:00:00 2020\n" +
	"Subject: s2\n" +
	"Content-Length: 9\n" +
	"\n" +
	"abc\n" +
	"\n" +
	"From bar@x Thu Jan  2 00:00:00 2020\n" +
	"\n" +
	"ok\n"

// Report mode quantifies the stale Content-Length without touching it.
func TestContentLengthReport(t *testing.T) {
	mb, _, buf := openString(t, staleMbox, "")
	Mailbox(mb, false, false, false, nil2con(buf), nil)
	assert.Contains(t, buf.String(), "Incorrect Content-Length:")
	assert.Equal(t, "9", mb.Root().Headers().Get(mbox.KeyContentLength).String())
	assert.False(t, mb.Root().IsDirty())
}

// nil2con rebuilds a console over the same buffer; the parse-time console
// already counted its own warnings.
func nil2con(buf *bytes.Buffer) *diag.Console {
	return diag.NewConsole(buf, buf, nil)
}

// Repair mode fixes the Content-Length; the rewritten mailbox matches the
// golden copy and re-checking it finds nothing.
func TestContentLengthRepair(t *testing.T) {
	mb, con, _ := openString(t, staleMbox, "")
	Mailbox(mb, false, true, false, con, nil)

	assert.Equal(t, "4", mb.Root().Headers().Get(mbox.KeyContentLength).String())
	assert.True(t, mb.IsDirty())

	out := &bytes.Buffer{}
	require.NoError(t, mb.WriteTo(out, true))
	goldiff.File(t, out.Bytes(), "testdata", "s2_repaired.golden")

	// Idempotent repair: a second pass is a fixed point.
	mb2, con2, _ := openString(t, out.String(), "")
	assert.Equal(t, 0, con2.Warnings())
	Mailbox(mb2, false, true, false, con2, nil)
	assert.Equal(t, 0, con2.Warnings())
	assert.False(t, mb2.IsDirty())

	out2 := &bytes.Buffer{}
	require.NoError(t, mb2.WriteTo(out2, true))
	assert.Equal(t, out.String(), out2.String())
}

// Missing Content-Length is only strict business.
func TestContentLengthMissing(t *testing.T) {
	content := "From a@b Mon Apr  7 12:34:56 2008\n" +
		"Subject: x\n" +
		"\n" +
		"hey\n"
	mb, con, buf := openString(t, content, "")

	Mailbox(mb, false, true, false, con, nil)
	assert.True(t, mb.Root().Headers().Get(mbox.KeyContentLength).IsZero())

	Mailbox(mb, true, true, false, con, nil)
	assert.Contains(t, buf.String(), "Missing Content-Length:, should be 3")
	assert.Equal(t, "3", mb.Root().Headers().Get(mbox.KeyContentLength).String())
}

// The Dovecot corruption is repaired by rebuilding the body, not by
// patching the header.
func TestDovecotRepairViaChecker(t *testing.T) {
	part1 := "line one\n"
	fromLine := "From dove@x Tue Apr  8 11:00:00 2008\n"
	injected := "X-UID: 42\nContent-Length: 200\n"
	part2 := "tail\n"
	trueLen := len(part1) + len(fromLine) + len(part2)
	content := "From sender@x Mon Apr  7 10:00:00 2008\n" +
		fmt.Sprintf("Content-Length: %d\n", trueLen) +
		"\n" +
		part1 + fromLine + injected + part2 +
		"\n"

	mb, con, buf := openString(t, content, "")
	require.NotZero(t, mb.Root().DovecotBug())

	Mailbox(mb, false, true, false, con, nil)
	assert.Contains(t, buf.String(), "Corrupted by Dovecot \"From \" bug")
	assert.Zero(t, mb.Root().DovecotBug())
	assert.Equal(t, part1+fromLine+part2, mb.Root().Body().String())
	assert.Equal(t, fmt.Sprintf("%d", trueLen),
		mb.Root().Headers().Get(mbox.KeyContentLength).String())
}

// Strict repair synthesizes a Message-ID from the identifying headers plus
// the body.
func TestMessageIDSynthesis(t *testing.T) {
	content := "From a@b Mon Apr  7 12:34:56 2008\n" +
		"Date: Mon, 7 Apr 2008 12:34:56 -0000\n" +
		"From: a@b\n" +
		"Subject: synth me\n" +
		"To: c@d\n" +
		"Content-Length: 5\n" +
		"\n" +
		"body\n"
	mb, con, _ := openString(t, content, "")

	Mailbox(mb, true, true, false, con, nil)

	sum := md5.New()
	sum.Write([]byte("Mon, 7 Apr 2008 12:34:56 -0000")) // Date
	sum.Write([]byte("a@b"))                            // From
	sum.Write([]byte("synth me"))                       // Subject
	sum.Write([]byte("c@d"))                            // To
	sum.Write([]byte("body\n"))
	want := fmt.Sprintf("<%x@synthesized-by-mfck>", sum.Sum(nil))
	assert.Equal(t, want, mb.Root().Headers().Get(mbox.KeyMessageID).String())
}

// Without strict mode a missing Message-ID is only substituted from
// X-Message-ID, never synthesized.
func TestMessageIDSubstitution(t *testing.T) {
	content := "From a@b Mon Apr  7 12:34:56 2008\n" +
		"X-Message-ID: <alt@x>\n" +
		"Content-Length: 2\n" +
		"\n" +
		"b\n"
	mb, con, _ := openString(t, content, "")
	Mailbox(mb, false, true, false, con, nil)
	assert.Equal(t, "<alt@x>", mb.Root().Headers().Get(mbox.KeyMessageID).String())
}

func TestMessageIDNotSynthesizedNonStrict(t *testing.T) {
	content := "From a@b Mon Apr  7 12:34:56 2008\n" +
		"Subject: x\n" +
		"Content-Length: 2\n" +
		"\n" +
		"b\n"
	mb, con, _ := openString(t, content, "")
	Mailbox(mb, false, true, false, con, nil)
	assert.True(t, mb.Root().Headers().Get(mbox.KeyMessageID).IsZero())
}

// Strict repair deletes the stray ">From " pseudo header.
func TestStrayFromHeaderRemoved(t *testing.T) {
	content := "From a@b Mon Apr  7 12:34:56 2008\n" +
		">From stray envelope\n" +
		"Message-ID: <m@x>\n" +
		"Content-Length: 2\n" +
		"\n" +
		"b\n"
	mb, con, buf := openString(t, content, "")
	Mailbox(mb, true, true, false, con, nil)
	assert.Contains(t, buf.String(), "Bogus \">From \" line")
	assert.Nil(t, mb.Root().Headers().Find(mbox.KeyGTFromSpace))
}

// A missing From header is repaired from the best substitute available.
func TestFromRepair(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
	}{
		{"x-from", "X-From: xf@x\n", "xf@x"},
		{"sender", "Sender: snd@x\n", "snd@x"},
		{"return-path", "Return-Path: <rp@x>\n", "<rp@x>"},
		{"envelope", "", "a@b"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			content := "From a@b Mon Apr  7 12:34:56 2008\n" +
				tc.header +
				"Message-ID: <m@x>\n" +
				"Date: Mon, 7 Apr 2008 12:34:56 -0000\n" +
				"Content-Length: 2\n" +
				"\n" +
				"b\n"
			mb, con, _ := openString(t, content, "")
			Mailbox(mb, true, true, false, con, nil)
			assert.Equal(t, tc.want, mb.Root().Headers().Get(mbox.KeyFrom).String())
		})
	}
}

// A missing Date header prefers X-Date, then the last Received timestamp,
// then the envelope date.
func TestDateRepair(t *testing.T) {
	tests := []struct {
		name    string
		headers string
		want    string
	}{
		{"x-date", "X-Date: Tue, 8 Apr 2008 01:02:03 -0000\n",
			"Tue, 8 Apr 2008 01:02:03 -0000"},
		{"received", "Received: from relay (relay.x) by mx.x; Tue, 8 Apr 2008 09:08:07 -0000\n",
			"Tue, 8 Apr 2008 09:08:07 -0000"},
		{"envelope", "", "Mon,  7 Apr 2008 12:34:56 -0000"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			content := "From a@b Mon Apr  7 12:34:56 2008\n" +
				"From: a@b\n" +
				"Message-ID: <m@x>\n" +
				tc.headers +
				"Content-Length: 2\n" +
				"\n" +
				"b\n"
			mb, con, _ := openString(t, content, "")
			Mailbox(mb, true, true, false, con, nil)
			assert.Equal(t, tc.want, mb.Root().Headers().Get(mbox.KeyDate).String())
		})
	}
}

// Illegal bytes in header lines are reported, never repaired.
func TestIllegalHeaderBytes(t *testing.T) {
	content := "From a@b Mon Apr  7 12:34:56 2008\n" +
		"From: a@b\n" +
		"Date: now\n" +
		"Message-ID: <m@x>\n" +
		"X-Odd: bin\x01ary\n" +
		"Content-Length: 2\n" +
		"\n" +
		"b\n"
	mb, con, buf := openString(t, content, "")
	Mailbox(mb, true, false, false, con, nil)
	assert.Contains(t, buf.String(), "Illegal character '\\001' in header")
	assert.False(t, mb.IsDirty())
}

// Answering q at the repair prompt stops the run without repairing.
func TestRepairPromptQuit(t *testing.T) {
	mb, con, _ := openString(t, staleMbox, "q\n")
	Mailbox(mb, false, true, true, con, nil)
	assert.Equal(t, "9", mb.Root().Headers().Get(mbox.KeyContentLength).String())
	assert.False(t, mb.IsDirty())
}

// Answering n skips one repair, y applies the next.
func TestRepairPromptPerOccurrence(t *testing.T) {
	content := staleMbox
	mb, con, _ := openString(t, content, "n\ny\n")
	Mailbox(mb, true, true, true, con, nil)
	// First question (msg1 Content-Length) answered n.
	assert.Equal(t, "9", mb.Root().Headers().Get(mbox.KeyContentLength).String())
}

// Findings are published to the extension host.
func TestFindingsEmitted(t *testing.T) {
	mb, con, _ := openString(t, staleMbox, "")
	ext := extension.NewHost()
	var findings []event.CheckFinding
	ext.Events.AfterCheckFinding.AddListener("test",
		func(f event.CheckFinding) *extension.Void {
			findings = append(findings, f)
			return nil
		})

	Mailbox(mb, false, false, false, con, ext)
	require.NotEmpty(t, findings)
	assert.Equal(t, "content-length", findings[0].Rule)
	assert.Equal(t, "#1 {@0}", findings[0].Tag)
}
