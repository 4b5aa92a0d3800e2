// Package repl implements the interactive command loop: a line oriented
// inspector over one open mailbox, with a pager, an external editor, and
// cooperative SIGINT cancellation.
package repl

import (
	"strings"
	"sync/atomic"

	"github.com/inbucket/mfck/pkg/bytestr"
	"github.com/inbucket/mfck/pkg/config"
	"github.com/inbucket/mfck/pkg/diag"
	"github.com/inbucket/mfck/pkg/extension"
	"github.com/inbucket/mfck/pkg/extension/event"
	"github.com/inbucket/mfck/pkg/mbox"
)

type command int

const (
	cmdNone command = iota
	cmdCheck
	cmdDelete
	cmdDeleteAndShowNext
	cmdDiff
	cmdEdit
	cmdExit
	cmdFind
	cmdHelp
	cmdJoin
	cmdList
	cmdListNext
	cmdListPrevious
	cmdRepair
	cmdSave
	cmdShow
	cmdShowPrevious
	cmdShowNext
	cmdSplit
	cmdStrict
	cmdUndelete
	cmdUnique
	cmdWriteAndExit
)

type commandEntry struct {
	name string
	args string
	typ  command
	desc string
}

// commandTable order is significant: when a prefix matches multiple
// commands, the first one wins.
var commandTable = []commandEntry{
	{"+", "", cmdShowNext,
		"go to the next message and display it"},
	{"-", "", cmdShowPrevious,
		"go to the previous message and display it"},
	{"check", "[strict]", cmdCheck,
		"check the mailbox' internal consistency"},
	{"delete", "[<msgs>]", cmdDelete,
		"mark one or more messages as deleted"},
	{"diff", "<msg1> <msg2>", cmdDiff,
		"compare two messages and show the differences"},
	{"dp", "", cmdDeleteAndShowNext,
		"delete the current message, then show the next message"},
	{"edit", "[<msg>]", cmdEdit,
		"edit the specified message using a file-based editor"},
	{"exit", "", cmdWriteAndExit,
		"save any changes, then leave the mailbox"},
	{"find", "[<header>:] <string>", cmdFind,
		"find any messages containing the given string"},
	{"headers", "[<msg>]", cmdList,
		"list a page full of message descriptions"},
	{"list", "[<msg>]", cmdList,
		"list a page full of message descriptions"},
	{"help", "[<cmd>]", cmdHelp,
		"get help on a specific command or all commands"},
	{"join", "<msgs>", cmdJoin,
		"join messages by replacing them with a single message"},
	{"more", "[<msgs>]", cmdShow,
		"display the contents of the given message(s)"},
	{"next", "", cmdShowNext,
		"go to the next message and display it"},
	{"previous", "", cmdShowPrevious,
		"go to the previous message and display it"},
	{"print", "[<msgs>]", cmdShow,
		"display the contents of the given message(s)"},
	{"quit", "", cmdExit,
		"leave the mailbox without saving any changes"},
	{"repair", "[strict]", cmdRepair,
		"check the mailbox' internal state and repair if needed"},
	{"save", "[<msgs>] <file>", cmdSave,
		"save the messages to the given file"},
	{"split", "[<msgs>]", cmdSplit,
		"look for 'From ' lines in the messages and split them"},
	{"strict", "[<on/off>]", cmdStrict,
		"set/show 'strict' mode when checking mailboxes"},
	{"undelete", "[<msgs>]", cmdUndelete,
		"undelete one or more messages"},
	{"unique", "", cmdUnique,
		"unique the messages in the mailbox by removing dups"},
	{"xit", "", cmdExit,
		"leave the mailbox without saving any changes"},
	{"z", "", cmdListNext,
		"show the next page of message descriptions"},
	{"z-", "", cmdListPrevious,
		"show the previous page of message descriptions"},
	{"?", "", cmdHelp,
		"get help on a specific command or all commands"},
}

// REPL drives the interactive loop over one mailbox at a time.
type REPL struct {
	cfg *config.Core
	con *diag.Console
	ext *extension.Host

	interrupted atomic.Bool
	pager       *pagerPipe
}

// New builds a REPL.  ext may be nil when no extension script is loaded.
func New(cfg *config.Core, con *diag.Console, ext *extension.Host) *REPL {
	return &REPL{cfg: cfg, con: con, ext: ext}
}

// Interrupt requests cancellation of the running command.  Safe to call
// from a signal handler goroutine: commands poll the flag at their
// boundaries and any open pager pipe is closed immediately.
func (r *REPL) Interrupt() {
	r.interrupted.Store(true)
	if p := r.pager; p != nil {
		p.kill()
	}
}

// canceled polls and clears the interruption flag.
func (r *REPL) canceled() bool {
	return r.interrupted.Swap(false)
}

// allowWrite asks extensions for permission to write the mailbox.
func (r *REPL) allowWrite(mb *mbox.Mailbox) bool {
	if r.ext == nil {
		return true
	}
	d := r.ext.Events.BeforeMailboxWritten.Emit(&event.MailboxInfo{
		Name:     mb.Name(),
		Source:   mb.Source(),
		Messages: mb.Count(),
		Dirty:    mb.IsDirty(),
	})
	if d != nil && !d.Allow {
		r.con.Warnf("Mailbox %s: write vetoed by extension", mb.Name())
		return false
	}
	return true
}

// trueString recognizes the usual affirmative spellings, returning def for
// an empty argument.
func trueString(arg string, def bool) bool {
	if arg == "" {
		return def
	}
	switch strings.ToLower(arg) {
	case "y", "yes", "t", "true", "on":
		return true
	}
	return false
}

// toMessageNumber resolves a message number argument; "$" names the last
// message.
func toMessageNumber(arg string, mb *mbox.Mailbox) int {
	if arg == "$" {
		return mb.Count()
	}
	return bytestr.S(arg).ToInt(-1)
}

// messageByNumber looks a message up, reporting an error for bad numbers.
func (r *REPL) messageByNumber(mb *mbox.Mailbox, num int) *mbox.Message {
	msg := mb.MessageByNumber(num)
	if msg == nil {
		r.con.Errorf("Message %d does not exist", num)
	}
	return msg
}

// argReader steps through a command's arguments.
type argReader struct {
	args []string
	i    int
	con  *diag.Console
}

// next returns the next argument, complaining when a required one is
// missing.
func (a *argReader) next(required bool) (string, bool) {
	if a.i < len(a.args) {
		arg := a.args[a.i]
		a.i++
		return arg, true
	}
	if required {
		a.con.Errorf("Missing argument")
	}
	return "", false
}

// remaining returns how many arguments are left.
func (a *argReader) remaining() int { return len(a.args) - a.i }

// noMore complains when arguments remain.
func (a *argReader) noMore() bool {
	if a.i < len(a.args) {
		a.con.Errorf("Too many arguments")
		return false
	}
	return true
}

// messageSet parses a message set argument, or nil on failure.
func (r *REPL) messageSet(arg string, last int) *mbox.Set {
	set, err := mbox.ParseSetString(arg, last)
	if err != nil {
		r.con.Errorf("Malformed message set: %s", arg)
		return nil
	}
	return set
}

// messageSetArgs consumes all but leave trailing arguments as message sets,
// falling back to a single defNum range when none are present.
func (r *REPL) messageSetArgs(a *argReader, leave, defNum, maxNum int) *mbox.Set {
	var set *mbox.Set
	count := a.remaining() - leave
	for ; count > 0; count-- {
		arg, _ := a.next(true)
		s := r.messageSet(arg, maxNum)
		if s == nil {
			return nil
		}
		set = set.Append(s)
	}
	if set == nil {
		set = &mbox.Set{Min: defNum, Max: defNum}
	}
	return set
}

// matchCommand resolves an input word against the command table, first
// match wins.
func matchCommand(word string) command {
	w := bytestr.S(word)
	for _, ct := range commandTable {
		if bytestr.S(ct.name).HasPrefix(w, false) {
			return ct.typ
		}
	}
	return cmdNone
}
