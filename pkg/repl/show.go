package repl

import (
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/inbucket/mfck/pkg/bytestr"
	"github.com/inbucket/mfck/pkg/diag"
	"github.com/inbucket/mfck/pkg/mbox"
	"github.com/rs/zerolog/log"
)

// pagerPipe feeds output through the user's pager subprocess.  Write errors
// are swallowed; a closed pager must not take the process down with it.
type pagerPipe struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
}

func startPager(pager string) (*pagerPipe, error) {
	cmd := exec.Command("/bin/sh", "-c", pager)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return &pagerPipe{cmd: cmd, stdin: stdin}, nil
}

func (p *pagerPipe) Write(b []byte) (int, error) {
	n, err := p.stdin.Write(b)
	if err != nil {
		// The user quit the pager; discard the rest.
		return len(b), nil
	}
	return n, nil
}

func (p *pagerPipe) close() {
	_ = p.stdin.Close()
	_ = p.cmd.Wait()
}

func (p *pagerPipe) kill() {
	if p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
}

// ShowMessage displays one message through the pager.
func (r *REPL) ShowMessage(msg *mbox.Message) {
	out := io.Writer(r.con.Out())
	pager, err := startPager(r.cfg.Pager)
	if err != nil {
		log.Error().Str("module", "repl").Str("pager", r.cfg.Pager).Err(err).
			Msg("Could not start pager")
	} else {
		r.pager = pager
		out = pager
	}

	fmt.Fprintf(out, "[Mailbox %s: Message %s]\n", msg.Mailbox().Name(), msg.Tag())
	_ = mbox.WriteMessage(out, msg)

	if pager != nil {
		pager.close()
		r.pager = nil
	}
}

// printShortDate compresses an RFC-822 date down to " 1 Jan 00:00".
func printShortDate(w io.Writer, rfc822Date bytestr.String) {
	cur := bytestr.NewCursor(rfc822Date)
	cur.TakeSpaces()

	pos := cur.Pos()
	if pos+4 < rfc822Date.Len() && rfc822Date.At(pos+3) == ',' {
		// Skip weekday.
		_, _ = cur.TakeUntilSpace()
		cur.TakeSpaces()
	}

	// Should be pointing to the day now (which may be one or two digits).
	day, _ := cur.TakeUntilSpace()
	cur.TakeSpaces()
	mon, _ := cur.TakeUntilSpace()
	cur.TakeSpaces()
	_, _ = cur.TakeUntilSpace() // year
	cur.TakeSpaces()
	tim, _ := cur.TakeUntilSpace()

	fmt.Fprintf(w, "%2.2s %-3.3s %-5.5s", day, mon, tim)
}

// intLength returns the number of decimal digits in num.
func intLength(num int) int {
	if num == 0 {
		return 1
	}
	digits := 0
	for ; num > 0; num /= 10 {
		digits++
	}
	return digits
}

// listMessage prints one line per message plus optional body preview lines:
// marker, number, short date, from, subject, and size.
func (r *REPL) listMessage(w io.Writer, num, numWidth int, msg *mbox.Message,
	previewLines, cur int) {
	sizeStr := diag.ByteSize(msg.Raw().Len())
	fromSubjectWidth := r.cfg.PageWidth - 27 - numWidth
	fromWidth := fromSubjectWidth * 2 / 5
	subjectWidth := fromSubjectWidth - fromWidth

	mark := byte(' ')
	if num == cur {
		mark = '>'
	}
	delMark := byte(':')
	if msg.IsDeleted() {
		delMark = 'D'
	}
	fmt.Fprintf(w, "%c%*d%c ", mark, numWidth, num, delMark)
	printShortDate(w, msg.Headers().Get(mbox.KeyDate))
	fmt.Fprintf(w, "  %-*.*s", fromWidth, fromWidth, msg.Headers().Get(mbox.KeyFrom))
	fmt.Fprintf(w, "  %-*.*s", subjectWidth, subjectWidth, msg.Headers().Get(mbox.KeySubject))
	fmt.Fprintf(w, " %6s\n", sizeStr)

	cur2 := bytestr.NewCursor(msg.Body())
	for ; previewLines > 0; previewLines-- {
		line, ok := cur2.TakeUntilNewline()
		if !ok {
			break
		}
		cur2.TakeNewline()
		fmt.Fprintf(w, " %*s  |%.*s\n", numWidth, "",
			r.cfg.PageWidth-numWidth-3, line)
	}
}

// ListMailbox prints one listing page starting at message start.  A
// negative count lists through the end of the mailbox.
func (r *REPL) ListMailbox(mb *mbox.Mailbox, start, count int) {
	if count < 0 {
		count = mb.Count() - start + 1
	}
	digits := intLength(start + count)
	i := 1
	msg := mb.Root()
	for ; msg != nil && i < start; msg = msg.Next() {
		i++
	}
	for ; msg != nil && i < start+count; msg = msg.Next() {
		r.listMessage(r.con.Out(), i, digits, msg, 0, start)
		i++
	}
}

// FindMessages lists messages containing the string: in the named header, in
// any header when key is empty, or in the body for the "Body" pseudo key.
func (r *REPL) FindMessages(mb *mbox.Mailbox, key, str string) {
	numWidth := intLength(mb.Count())
	target := bytestr.S(str)
	bodyOnly := bytestr.S(key).EqualString("body", false)
	for msg := mb.Root(); msg != nil; msg = msg.Next() {
		found := false
		switch {
		case key == "":
			for h := msg.Headers().Root(); h != nil; h = h.Next() {
				if h.Value().Contains(target, false) {
					found = true
					break
				}
			}
		case !bodyOnly:
			if value := msg.Headers().Get(key); !value.IsZero() {
				found = value.Contains(target, false)
			}
		}
		if !found && (key == "" || bodyOnly) {
			found = msg.Body().Contains(target, false)
		}
		if found {
			r.listMessage(r.con.Out(), msg.Number(), numWidth, msg, 0, -1)
		}
	}
}

// writeQuotedExcerpt shows a few lines around pos in str, each prefixed.
func writeQuotedExcerpt(w io.Writer, str bytestr.String, pos, lines int, prefix string) {
	chars := str.Bytes()
	if pos > len(chars) {
		pos = len(chars)
	}
	counter := lines / 2
	b := pos
	for ; b > 0; b-- {
		if chars[b-1] == '\n' {
			if counter == 0 {
				break
			}
			counter--
		}
	}
	counter = lines - lines/2
	e := pos
	for ; e < len(chars); e++ {
		if chars[e] == '\n' {
			if counter == 0 {
				break
			}
			counter--
		}
	}
	for i := b; i < e; i++ {
		if i == b || chars[i-1] == '\n' {
			fmt.Fprint(w, prefix)
		}
		fmt.Fprintf(w, "%c", chars[i])
	}
	if e > b && chars[e-1] != '\n' {
		fmt.Fprintln(w)
	}
}

// splitConfirm shows the candidate's context and asks before splitting.
func (r *REPL) splitConfirm() mbox.SplitConfirm {
	return func(body, line bytestr.String, pos int) bool {
		fmt.Fprint(r.con.Out(), "Message context:\n")
		writeQuotedExcerpt(r.con.Out(), body, pos, 15, "| ")
		return r.con.AskYesNo("Split message?", true)
	}
}

// saveTempMessage serializes a message to a temp file for diffing and
// editing.
func saveTempMessage(msg *mbox.Message) (string, error) {
	f, err := os.CreateTemp("", "mfck-")
	if err != nil {
		return "", err
	}
	if err := mbox.WriteMessage(f, msg); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

// DiffMessages runs diff over two serialized messages, paged.
func (r *REPL) DiffMessages(a, b *mbox.Message) {
	pathA, err := saveTempMessage(a)
	if err != nil {
		r.con.Errorf("Could not save message %s: %v", a.Tag(), err)
		return
	}
	defer os.Remove(pathA)
	pathB, err := saveTempMessage(b)
	if err != nil {
		r.con.Errorf("Could not save message %s: %v", b.Tag(), err)
		return
	}
	defer os.Remove(pathB)

	shell := fmt.Sprintf("diff -dc %s %s | %s", pathA, pathB, r.cfg.Pager)
	cmd := exec.Command("/bin/sh", "-c", shell)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		if _, ok := err.(*exec.ExitError); !ok {
			r.con.Errorf("Could not execute %q: %v", shell, err)
		}
	}
}

// duplicateChooser prompts the user to resolve near-duplicates found by
// unique.  An uppercase answer applies to all remaining pairs.
func (r *REPL) duplicateChooser() mbox.Chooser {
	autoChoice := byte(0)
	return func(a, b *mbox.Message) int {
		fmt.Fprintln(r.con.Out())
		r.listMessage(r.con.Out(), 1, 1, a, 4, -1)
		r.listMessage(r.con.Out(), 2, 1, b, 4, -1)
		fmt.Fprintln(r.con.Out())

		for {
			choice := autoChoice
			if choice == 0 {
				choice = r.con.AskChoice(
					"Please choose which message to delete (or b(oth), d(iff), or n(either)):",
					"12bnBNdq", 'n')
			}
			if choice >= 'A' && choice <= 'Z' {
				choice += 'a' - 'A'
				autoChoice = choice
			}
			switch choice {
			case '1':
				r.con.Notef("Deleting the first message")
				a.SetDeleted(true)
				return 1
			case '2':
				r.con.Notef("Deleting the second message")
				b.SetDeleted(true)
				return 1
			case 'b':
				r.con.Notef("Deleting both messages")
				a.SetDeleted(true)
				b.SetDeleted(true)
				return 2
			case 'd':
				r.DiffMessages(a, b)
			case 'n':
				r.con.Notef("Deleting no messages")
				return 0
			case 'q':
				return -1
			}
		}
	}
}
