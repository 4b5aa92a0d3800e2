// Package mbox contains the mbox data model, parser, corruption detector,
// repair engine, and writer.  All parsed substrings are zero-copy views into
// the mailbox bytes until a repair replaces them with owned allocations.
package mbox

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/inbucket/mfck/pkg/bytestr"
	"github.com/inbucket/mfck/pkg/config"
	"github.com/inbucket/mfck/pkg/diag"
	"github.com/inbucket/mfck/pkg/lockfile"
	"github.com/rs/zerolog/log"
)

// Mailbox owns a sequence of Messages in file order plus the bytes they are
// parsed from.  The mailbox must outlive its messages, and the messages must
// outlive every borrowed view their headers and bodies produced.
type Mailbox struct {
	source string
	name   string
	data   bytestr.String
	root   *Message
	count  int
	dirty  bool

	cfg *config.Core
	con *diag.Console
}

// Open locks and parses the mailbox at source.  When create is set, a
// missing file yields an empty mailbox instead of an error.
func Open(source string, create bool, cfg *config.Core, con *diag.Console) (*Mailbox, error) {
	if cfg.Verbose {
		con.Notef("Locking mailbox %s", source)
	}
	if err := lockfile.Lock(source, cfg.LockTimeout, con, cfg.DryRun); err != nil {
		return nil, err
	}
	if cfg.Verbose {
		con.Notef("Opening mailbox %s", source)
	}
	mb, err := openQuietly(source, create, cfg, con)
	if err != nil {
		lockfile.Unlock(source, con, cfg.DryRun)
		return nil, err
	}
	return mb, nil
}

// openQuietly reads and parses without locking.
func openQuietly(source string, create bool, cfg *config.Core, con *diag.Console) (*Mailbox, error) {
	mb := &Mailbox{source: source, cfg: cfg, con: con}
	f, err := os.Open(source)
	if err != nil {
		if os.IsNotExist(err) && create {
			return mb, nil
		}
		return nil, fmt.Errorf("could not open %s: %v: %w", source, err, diag.ErrResource)
	}
	data, err := readContents(f, cfg, con)
	_ = f.Close()
	if err != nil {
		return nil, err
	}
	mb.data = data
	p := &parser{cur: bytestr.NewCursor(data), con: con, cfg: cfg}
	p.parseMessages(mb)
	return mb, nil
}

// Close unlocks the mailbox and returns any mapped bytes to the kernel.
// The mailbox and its messages must not be used afterwards.
func (mb *Mailbox) Close() {
	lockfile.Unlock(mb.source, mb.con, mb.cfg.DryRun)
	if err := mb.data.Release(); err != nil {
		log.Error().Str("module", "mbox").Str("path", mb.source).Err(err).
			Msg("Failed to release mailbox data")
	}
	mb.data = bytestr.String{}
	mb.root = nil
}

// Source returns the path the mailbox was opened from.
func (mb *Mailbox) Source() string { return mb.source }

// Name returns the mailbox display name, the final path element.
func (mb *Mailbox) Name() string {
	if mb.name == "" {
		mb.name = filepath.Base(mb.source)
	}
	return mb.name
}

// Data returns the underlying mailbox bytes.
func (mb *Mailbox) Data() bytestr.String { return mb.data }

// Count returns the number of messages, tombstones included.
func (mb *Mailbox) Count() int { return mb.count }

// IsDirty reports whether any owned message diverges from the file.
func (mb *Mailbox) IsDirty() bool { return mb.dirty }

// SetDirty overrides the dirty flag; the writer clears it after a save.
func (mb *Mailbox) SetDirty(flag bool) { mb.dirty = flag }

// Root returns the first message.
func (mb *Mailbox) Root() *Message { return mb.root }

// MessageByNumber returns the message with the given 1-based number, or nil.
func (mb *Mailbox) MessageByNumber(num int) *Message {
	if num <= 0 {
		return nil
	}
	msg := mb.root
	for i := 1; msg != nil && i < num; i++ {
		msg = msg.next
	}
	return msg
}

// ParseOne parses a single message from data, attaching it to the mailbox.
// With useAllData set the whole of data becomes the body extent, which is
// how externally edited messages are reloaded.
func (mb *Mailbox) ParseOne(data bytestr.String, useAllData bool) (*Message, bool) {
	p := &parser{cur: bytestr.NewCursor(data), con: mb.con, cfg: mb.cfg}
	return p.parseMessage(mb, useAllData)
}

// ReplaceMessage splices repl into the list in old's position, reporting
// whether old was found.  When it wasn't, repl is appended at the end of the
// list as a fallback.
func (mb *Mailbox) ReplaceMessage(old, repl *Message) bool {
	p := &mb.root
	for *p != nil && *p != old {
		p = &(*p).next
	}
	found := *p == old && old != nil
	if found {
		repl.next = old.next
	}
	*p = repl
	repl.setDirty(true)
	return found
}

// Append adds an untied message to the end of the list, renumbering it and
// dirtying the mailbox.
func (mb *Mailbox) Append(msg *Message) error {
	if msg.mbox != nil || msg.next != nil {
		return diag.Fatalf(diag.ExSoftware,
			"internal error: trying to add tied message %s to mailbox %s",
			msg.tag, mb.Name())
	}
	p := &mb.root
	for *p != nil {
		p = &(*p).next
	}
	*p = msg
	msg.mbox = mb
	mb.count++
	msg.num = mb.count
	mb.dirty = true
	return nil
}
