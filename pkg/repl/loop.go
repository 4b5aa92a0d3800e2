package repl

import (
	"fmt"
	"strings"

	"github.com/inbucket/mfck/pkg/check"
	"github.com/inbucket/mfck/pkg/mbox"
)

// RunLoop executes the queued commands, then prompts interactively.  It
// returns once the user leaves the mailbox; a dirty mailbox is autosaved
// unless this is a dry run or the user left with quit.
func (r *REPL) RunLoop(mb *mbox.Mailbox, commands []string) {
	cur := 1
	ci := 0
	done := false

	for !done {
		if r.canceled() {
			fmt.Fprintln(r.con.Out())
		}

		var cmdLine string
		if ci < len(commands) {
			cmdLine = commands[ci]
			ci++
		} else if !r.cfg.Interactive {
			break
		} else {
			line, ok := r.con.AskLine("@", true)
			if !ok {
				break
			}
			cmdLine = line
		}

		args := strings.Fields(cmdLine)

		// Update the message count each time around in case the mailbox has
		// been modified.
		msgCount := mb.Count()

		a := &argReader{args: args, con: r.con}
		cmd := cmdNone
		var word string
		if len(args) == 0 {
			// A bare return shows the next message.
			cmd = cmdShowNext
		} else {
			word, _ = a.next(true)
			cmd = matchCommand(word)
			// If we didn't find it, assume show if the first arg is
			// numeric.
			if cmd == cmdNone {
				if num := toMessageNumber(word, mb); num > 0 {
					cmd = cmdShow
					a.i--
				}
			}
		}

		switch cmd {
		case cmdShow:
			set := r.messageSetArgs(a, 0, cur, msgCount)
			if set == nil {
				break
			}
			for num := set.First(); num != -1 && !r.canceled(); num = set.Next(num) {
				msg := r.messageByNumber(mb, num)
				if msg == nil {
					break
				}
				r.ShowMessage(msg)
				cur = num
			}

		case cmdShowPrevious:
			if !a.noMore() {
				break
			}
			if cur <= 1 {
				r.con.Errorf("No more messages")
				break
			}
			cur--
			if msg := r.messageByNumber(mb, cur); msg != nil {
				r.ShowMessage(msg)
			}

		case cmdShowNext:
			if !a.noMore() {
				break
			}
			cur = r.showNext(mb, cur, msgCount)

		case cmdDelete, cmdUndelete:
			set := r.messageSetArgs(a, 0, cur, msgCount)
			if set == nil {
				break
			}
			for num := set.First(); num != -1; num = set.Next(num) {
				msg := r.messageByNumber(mb, num)
				if msg == nil {
					break
				}
				msg.SetDeleted(cmd == cmdDelete)
				cur = num
			}

		case cmdDeleteAndShowNext:
			if !a.noMore() {
				break
			}
			if msg := r.messageByNumber(mb, cur); msg != nil {
				msg.SetDeleted(true)
				cur = r.showNext(mb, cur, msgCount)
			}

		case cmdDiff:
			arg, ok := a.next(true)
			if !ok {
				break
			}
			msg1 := r.messageByNumber(mb, toMessageNumber(arg, mb))
			if msg1 == nil {
				break
			}
			arg, ok = a.next(true)
			if !ok {
				break
			}
			msg2 := r.messageByNumber(mb, toMessageNumber(arg, mb))
			if msg2 == nil {
				break
			}
			r.DiffMessages(msg1, msg2)

		case cmdList:
			arg, present := a.next(false)
			switch {
			case present && arg == "-":
				cur = r.listPrevious(mb, cur)
			case present && arg == "+":
				cur = r.listNext(mb, cur, msgCount)
			default:
				if present {
					cur = toMessageNumber(arg, mb)
				}
				num := r.cfg.PageHeight - 1
				if end, ok := a.next(false); ok {
					num = toMessageNumber(end, mb) - cur
					if num < 1 {
						num = 1
					}
				}
				if !a.noMore() {
					break
				}
				r.ListMailbox(mb, cur, num)
			}

		case cmdListNext:
			if !a.noMore() {
				break
			}
			cur = r.listNext(mb, cur, msgCount)

		case cmdListPrevious:
			if !a.noMore() {
				break
			}
			cur = r.listPrevious(mb, cur)

		case cmdFind:
			// Args are [<header>:] <string>...
			arg, ok := a.next(true)
			if !ok {
				break
			}
			key := ""
			if strings.HasSuffix(arg, ":") {
				key = strings.TrimSuffix(arg, ":")
			} else {
				a.i--
			}
			str := strings.Join(a.args[a.i:], " ")
			r.FindMessages(mb, key, str)

		case cmdStrict:
			arg, _ := a.next(false)
			if !a.noMore() {
				break
			}
			r.cfg.Strict = trueString(arg, !r.cfg.Strict)
			onOff := "off"
			if r.cfg.Strict {
				onOff = "on"
			}
			r.con.Notef("Strict checking mode is turned %s", onOff)

		case cmdCheck, cmdRepair:
			arg, _ := a.next(false)
			if !a.noMore() {
				break
			}
			strict := trueString(arg, r.cfg.Strict)
			if arg != "" && strings.HasPrefix("strict", strings.ToLower(arg)) {
				strict = true
			}
			check.Mailbox(mb, strict, cmd == cmdRepair, r.cfg.Interactive, r.con, r.ext)

		case cmdUnique:
			if !a.noMore() {
				break
			}
			var choose mbox.Chooser
			if r.cfg.Interactive {
				choose = r.duplicateChooser()
			}
			mb.Unique(r.con, r.cfg.Verbose, choose)

		case cmdJoin:
			if a.remaining() == 0 {
				r.con.Errorf("Missing argument")
				break
			}
			set := r.messageSetArgs(a, 0, -1, msgCount)
			if set == nil {
				break
			}
			num := set.First()
			cur = num
			first := r.messageByNumber(mb, cur)
			if first == nil {
				break
			}
			count := 0
			for num = set.Next(num); num != -1; num = set.Next(num) {
				if msg := r.messageByNumber(mb, num); msg != nil {
					first.Join(msg)
					count++
				}
			}
			if count == 0 {
				r.con.Errorf("Please supply multiple messages to join")
			} else {
				plural := "s"
				if count == 1 {
					plural = ""
				}
				r.con.Notef("Appended %d message%s onto message %s",
					count, plural, first.Tag())
			}

		case cmdSplit:
			set := r.messageSetArgs(a, 0, cur, msgCount)
			if set == nil {
				break
			}
			var confirm mbox.SplitConfirm
			if r.cfg.Interactive {
				confirm = r.splitConfirm()
			}
			for num := set.First(); num != -1 && !r.canceled(); num = set.Next(num) {
				if msg := r.messageByNumber(mb, num); msg != nil {
					msg.Split(r.cfg, r.con, confirm)
					cur = num
				}
			}

		case cmdEdit:
			arg, present := a.next(false)
			num := cur
			if present {
				num = toMessageNumber(arg, mb)
			}
			if !a.noMore() {
				break
			}
			if msg := r.messageByNumber(mb, num); msg != nil {
				r.EditMessage(msg)
				cur = num
			}

		case cmdSave:
			set := r.messageSetArgs(a, 1, cur, msgCount)
			if set == nil {
				break
			}
			arg, ok := a.next(true)
			if !ok {
				break
			}
			cur = r.saveMessages(mb, set, arg, cur)

		case cmdExit:
			if !a.noMore() {
				break
			}
			if mb.IsDirty() {
				r.con.Notef("Leaving modified mailbox unsaved")
			}
			return

		case cmdWriteAndExit:
			if !a.noMore() {
				break
			}
			done = true

		case cmdHelp:
			arg, _ := a.next(false)
			r.showHelp(arg)

		case cmdNone:
			r.con.Errorf("Unknown command: %s", word)
		}
	}

	// Autosave if needed.
	if mb.IsDirty() {
		if r.cfg.DryRun {
			r.con.Notef("Dry run mode -- not autosaving modified mailbox")
		} else if r.allowWrite(mb) {
			if err := mb.Save(false, r.cfg, r.con); err != nil {
				r.con.Errorf("%v", err)
			}
		}
	}
}

func (r *REPL) showNext(mb *mbox.Mailbox, cur, msgCount int) int {
	if cur >= msgCount {
		r.con.Errorf("No more messages")
		return cur
	}
	cur++
	if msg := r.messageByNumber(mb, cur); msg != nil {
		r.ShowMessage(msg)
	}
	return cur
}

func (r *REPL) listNext(mb *mbox.Mailbox, cur, msgCount int) int {
	if cur < 1 {
		cur = 1
	}
	cur += r.cfg.PageHeight - 1
	if cur > msgCount {
		cur = msgCount
	}
	r.ListMailbox(mb, cur, r.cfg.PageHeight-1)
	return cur
}

func (r *REPL) listPrevious(mb *mbox.Mailbox, cur int) int {
	cur -= r.cfg.PageHeight - 1
	if cur < 1 {
		cur = 1
	}
	r.ListMailbox(mb, cur, r.cfg.PageHeight-1)
	return cur
}

// saveMessages clones the set into another mailbox and writes it.
func (r *REPL) saveMessages(mb *mbox.Mailbox, set *mbox.Set, path string, cur int) int {
	mb2, err := mbox.Open(path, true, r.cfg, r.con)
	if err != nil {
		r.con.Errorf("%v", err)
		return cur
	}
	defer mb2.Close()

	count := 0
	for num := set.First(); num != -1; num = set.Next(num) {
		if msg := r.messageByNumber(mb, num); msg != nil {
			if err := mb2.Append(msg.Clone()); err != nil {
				r.con.Errorf("%v", err)
				return cur
			}
			cur = num
			count++
		}
	}
	if !r.allowWrite(mb2) {
		return cur
	}
	if err := mb2.Save(false, r.cfg, r.con); err != nil {
		r.con.Errorf("%v", err)
		return cur
	}
	plural := "s"
	if count == 1 {
		plural = ""
	}
	r.con.Notef("%d message%s saved to %s", count, plural, path)
	return cur
}

// showHelp lists the available commands, or describes one of them.
func (r *REPL) showHelp(cmd string) {
	out := r.con.Out()
	if cmd == "" {
		pos := 3
		fmt.Fprint(out, " Please enter one of the following commands:\n   ")
		for i, ct := range commandTable {
			if i > 0 {
				fmt.Fprint(out, ", ")
				pos += 2
			}
			if pos+len(ct.name) >= r.cfg.PageWidth {
				fmt.Fprint(out, "\n   ")
				pos = 3
			}
			fmt.Fprint(out, ct.name)
			pos += len(ct.name)
		}
		fmt.Fprint(out, "\n\n Enter \"help <cmd>\" for more information about a"+
			" specific command or\n \"help all\" for all commands.\n")
		return
	}

	isAll := strings.EqualFold(cmd, "all")
	leftWidth := 0
	for _, ct := range commandTable {
		width := 1 + len(ct.name) + 1 + 1 + len(ct.args)
		if leftWidth < width {
			leftWidth = width
		}
	}
	fmt.Fprint(out, " These commands are available:\n")
	for _, ct := range commandTable {
		if !isAll && !strings.EqualFold(cmd, ct.name) {
			continue
		}
		width := 1 + len(ct.name) + 1 + 1 + len(ct.args)
		fmt.Fprintf(out, " %s %s %*s-- %s\n",
			ct.name, ct.args, leftWidth-width, "", ct.desc)
	}
}
