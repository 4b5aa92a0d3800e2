package mbox

import (
	"bufio"
	"io"
	"os"
	"path/filepath"

	"github.com/inbucket/mfck/pkg/bytestr"
	"github.com/inbucket/mfck/pkg/config"
	"github.com/inbucket/mfck/pkg/diag"
	"github.com/rs/zerolog/log"
)

// writeHeaders emits each header verbatim when its original line survives,
// reconstructed otherwise.  The ">From " pseudo key carries no colon.
func writeHeaders(w io.Writer, hl *HeaderList) error {
	for h := hl.Root(); h != nil; h = h.Next() {
		if !h.line.IsZero() {
			// Already have a preformatted (original) header line.
			if _, err := w.Write(h.line.Bytes()); err != nil {
				return err
			}
			continue
		}
		if _, err := w.Write(h.key.Bytes()); err != nil {
			return err
		}
		if !h.key.EqualString(KeyGTFromSpace, true) {
			if _, err := io.WriteString(w, ": "); err != nil {
				return err
			}
		}
		if _, err := w.Write(h.value.Bytes()); err != nil {
			return err
		}
		if _, err := io.WriteString(w, "\n"); err != nil {
			return err
		}
	}
	return nil
}

// WriteMessage emits one message: envelope, headers, blank line, and the
// body verbatim.
func WriteMessage(w io.Writer, msg *Message) error {
	if !msg.envelope.IsZero() {
		if _, err := w.Write(msg.envelope.Bytes()); err != nil {
			return err
		}
	} else if !msg.envSender.IsZero() {
		if _, err := io.WriteString(w, keyFromSpace); err != nil {
			return err
		}
		if _, err := w.Write(msg.envSender.Bytes()); err != nil {
			return err
		}
		if _, err := io.WriteString(w, " "); err != nil {
			return err
		}
		if err := writeCTime(w, msg.envDate); err != nil {
			return err
		}
		if _, err := io.WriteString(w, "\n"); err != nil {
			return err
		}
	}
	if err := writeHeaders(w, msg.headers); err != nil {
		return err
	}
	if _, err := io.WriteString(w, "\n"); err != nil {
		return err
	}
	_, err := w.Write(msg.body.Bytes())
	return err
}

// sanitizeIMAPBase keeps Dovecot and c-client IMAP bookkeeping intact:
// X-IMAP / X-IMAPbase must live on the first message in the mailbox, so when
// the holder is no longer first its value migrates to an X-IMAPbase header
// on the new first message.
func (mb *Mailbox) sanitizeIMAPBase() {
	var first *Message
	for first = mb.root; first != nil; first = first.next {
		if !first.IsDeleted() {
			break
		}
	}
	var holder *Message
	var imap bytestr.String
	for holder = mb.root; holder != nil; holder = holder.next {
		imap = holder.headers.Get(KeyXIMAPBase)
		if imap.IsZero() {
			imap = holder.headers.Get(KeyXIMAP)
		}
		if !imap.IsZero() {
			break
		}
	}
	if holder != nil && first != nil && holder != first {
		first.headers.Set(KeyXIMAPBase, imap.Clone())
		holder.headers.Delete(KeyXIMAP, false)
		holder.headers.Delete(KeyXIMAPBase, false)
	}
}

// WriteTo emits every non-deleted message, separated by one blank line.
// sanitize enables the IMAP-base migration and should be set for full
// mailbox writes.
func (mb *Mailbox) WriteTo(w io.Writer, sanitize bool) error {
	if sanitize {
		mb.sanitizeIMAPBase()
	}
	for msg := mb.root; msg != nil; msg = msg.next {
		if msg.IsDeleted() {
			continue
		}
		if err := WriteMessage(w, msg); err != nil {
			return err
		}
		if _, err := io.WriteString(w, "\n"); err != nil {
			return err
		}
	}
	return nil
}

// WriteFile serializes the mailbox to destination via a sibling temp file
// and an atomic rename, optionally keeping a "~" backup of the original.
// Rename failures are fatal.
func (mb *Mailbox) WriteFile(destination string, cfg *config.Core, con *diag.Console) error {
	if cfg.DryRun {
		con.Notef("Dry run mode -- not writing %s", destination)
		return nil
	}
	if cfg.Verbose {
		if destination == mb.source {
			con.Notef("Saving mailbox %s", mb.Name())
		} else {
			con.Notef("Saving mailbox %s to %s", mb.Name(), destination)
		}
	}

	tmp, err := os.CreateTemp(filepath.Dir(destination), filepath.Base(destination)+"-")
	if err != nil {
		return diag.Fatalf(diag.ExCantCreat, "Can't create temporary file %s-XXXXXX: %v",
			destination, err)
	}
	tmpName := tmp.Name()
	bw := bufio.NewWriter(tmp)
	if err := mb.WriteTo(bw, true); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return diag.Fatalf(diag.ExIOErr, "Could not write to %s: %v", tmpName, err)
	}
	if err := bw.Flush(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return diag.Fatalf(diag.ExIOErr, "Could not write to %s: %v", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return diag.Fatalf(diag.ExIOErr, "%v: %s", err, tmpName)
	}

	if cfg.Backup {
		bakPath := destination + "~"
		if err := os.Rename(destination, bakPath); err != nil {
			_ = os.Remove(tmpName)
			return diag.Fatalf(diag.ExCantCreat, "Could not rename %s to %s: %v",
				destination, bakPath, err)
		}
	}
	if err := os.Rename(tmpName, destination); err != nil {
		_ = os.Remove(tmpName)
		return diag.Fatalf(diag.ExCantCreat, "Could not rename %s to %s: %v",
			tmpName, destination, err)
	}
	log.Debug().Str("module", "mbox").Str("path", destination).Msg("Mailbox written")

	mb.SetDirty(false)
	return nil
}

// Save writes the mailbox back to its source when dirty or forced.
func (mb *Mailbox) Save(force bool, cfg *config.Core, con *diag.Console) error {
	if !mb.IsDirty() && !force {
		con.Notef("Leaving mailbox %s unchanged", mb.Name())
		return nil
	}
	return mb.WriteFile(mb.source, cfg, con)
}
