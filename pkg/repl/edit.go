package repl

import (
	"os"
	"os/exec"

	"github.com/inbucket/mfck/pkg/bytestr"
	"github.com/inbucket/mfck/pkg/mbox"
)

// editFile runs the configured editor on path, reporting whether the file
// was modified.
func (r *REPL) editFile(path string) bool {
	fi, err := os.Stat(path)
	if err != nil {
		r.con.Errorf("%s: %v", path, err)
		return false
	}
	oldMtime := fi.ModTime()

	r.con.Notef("Editing message file %s", path)

	cmd := exec.Command("/bin/sh", "-c", r.cfg.Editor+" "+path)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		if _, ok := err.(*exec.ExitError); ok {
			r.con.Errorf("%s signalled an error, discarding changes", r.cfg.Editor)
		} else {
			r.con.Errorf("Could not execute %s: %v", r.cfg.Editor, err)
		}
		return false
	}

	fi, err = os.Stat(path)
	if err != nil || fi.ModTime().Equal(oldMtime) {
		return false
	}
	return true
}

// EditMessage writes the message to a temp file, runs the editor on it, and
// splices the re-parsed result back into the mailbox.
func (r *REPL) EditMessage(msg *mbox.Message) {
	path, err := saveTempMessage(msg)
	if err != nil {
		r.con.Errorf("Could not save message %s: %v", msg.Tag(), err)
		return
	}
	defer os.Remove(path)

	if !r.editFile(path) {
		r.con.Notef("Message unchanged")
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		r.con.Errorf("%s: %v", path, err)
		return
	}

	newMsg, ok := msg.Mailbox().ParseOne(bytestr.New(data, bytestr.Owned), true)
	if !ok {
		r.con.Errorf("Could not parse message")
		return
	}

	if !msg.Mailbox().ReplaceMessage(msg, newMsg) {
		r.con.Warnf("Internal error: Can't find message %s in mailbox %s",
			msg.Tag(), msg.Mailbox().Source())
	}
}
