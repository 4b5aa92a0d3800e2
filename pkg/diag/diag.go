// Package diag implements the user-facing diagnostic console: notes,
// warnings, errors, interactive prompts, and the process-wide warning
// counter.  Output formats are part of the tool's contract; structured
// telemetry goes through zerolog instead.
package diag

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog/log"
)

// Severity sentinels for the error taxonomy.  Wrap these with fmt.Errorf and
// %w so callers can classify failures without string matching.
var (
	// ErrParse marks bytes that did not match the expected grammar.
	ErrParse = fmt.Errorf("parse error")
	// ErrIntegrity marks a violated mailbox invariant.
	ErrIntegrity = fmt.Errorf("integrity error")
	// ErrResource marks I/O, memory, and lock failures.
	ErrResource = fmt.Errorf("resource error")
	// ErrUserAbort marks an interactive cancellation.
	ErrUserAbort = fmt.Errorf("user abort")
)

// Exit codes from sysexits.h, the contract the shell sees.
const (
	ExOK          = 0
	ExUsage       = 64
	ExNoInput     = 66
	ExUnavailable = 69
	ExSoftware    = 70
	ExCantCreat   = 73
	ExIOErr       = 74
)

// FatalError carries the exit code a failure should terminate with.
type FatalError struct {
	Code int
	Err  error
}

func (e *FatalError) Error() string { return e.Err.Error() }

func (e *FatalError) Unwrap() error { return e.Err }

// Fatalf builds a FatalError for the given exit code.
func Fatalf(code int, format string, args ...interface{}) *FatalError {
	return &FatalError{Code: code, Err: fmt.Errorf(format, args...)}
}

// Console is the diagnostic and prompting surface.  A single Console is
// threaded through the parser, checker, and interactive loop.
type Console struct {
	Quiet       bool
	ShowContext bool

	out      io.Writer
	errOut   io.Writer
	in       *bufio.Reader
	warnings int
}

// NewConsole builds a Console over the given streams.  in may be nil for
// non-interactive use.
func NewConsole(out, errOut io.Writer, in io.Reader) *Console {
	c := &Console{out: out, errOut: errOut}
	if in != nil {
		c.in = bufio.NewReader(in)
	}
	return c
}

// Out returns the console's output stream, for commands that render listings.
func (c *Console) Out() io.Writer { return c.out }

// Notef prints an informational message unless quiet.
func (c *Console) Notef(format string, args ...interface{}) {
	if !c.Quiet {
		fmt.Fprintf(c.out, "["+format+"]\n", args...)
	}
}

// Warnf prints a warning unless quiet, and always counts it.
func (c *Console) Warnf(format string, args ...interface{}) {
	if !c.Quiet {
		fmt.Fprintf(c.out, "%%"+format+"\n", args...)
	}
	c.warnings++
}

// Errorf prints an error to the error stream.  It does not exit.
func (c *Console) Errorf(format string, args ...interface{}) {
	fmt.Fprintf(c.errOut, "?"+format+"\n", args...)
}

// Warnings returns the number of warnings issued so far.
func (c *Console) Warnings() int { return c.warnings }

// ResetWarnings clears the warning counter.
func (c *Console) ResetWarnings() { c.warnings = 0 }

const contextLineCount = 2 // before & after

// WarnContext warns, then shows a few lines of context around pos in text
// when context display is enabled.
func (c *Console) WarnContext(text []byte, pos int, format string, args ...interface{}) {
	c.Warnf(format, args...)
	if c.ShowContext {
		c.showContext(text, pos)
	}
}

// showContext prints contextLineCount lines either side of pos, each
// prefixed with "] ".
func (c *Console) showContext(text []byte, pos int) {
	if pos > len(text) {
		pos = len(text)
	}
	b, count := pos, contextLineCount+1
	for ; b > 0 && count > 0; b-- {
		if isNewline(text[b-1]) {
			count--
		}
	}
	if count == 0 {
		b++
	}
	e, count := pos, contextLineCount+1
	for ; e < len(text) && count > 0; e++ {
		if isNewline(text[e]) {
			count--
		}
	}
	for i := b; i < e; i++ {
		if i == b || text[i-1] == '\n' {
			fmt.Fprint(c.errOut, "] ")
		}
		fmt.Fprintf(c.errOut, "%c", text[i])
	}
	if e > b && text[e-1] != '\n' {
		fmt.Fprintln(c.errOut)
	}
}

func isNewline(c byte) bool { return c == '\r' || c == '\n' }

// AskLine prompts and reads one line, reporting false at EOF.
func (c *Console) AskLine(prompt string, trim bool) (string, bool) {
	if c.in == nil {
		return "", false
	}
	fmt.Fprint(c.out, prompt)
	line, err := c.in.ReadString('\n')
	if err != nil && line == "" {
		return "", false
	}
	line = strings.TrimSuffix(line, "\n")
	line = strings.TrimSuffix(line, "\r")
	if trim {
		line = strings.TrimSpace(line)
	}
	return line, true
}

// AskChoice asks a single-character question, returning def on a bare
// newline or EOF.  Answers not in choices are asked again.
func (c *Console) AskChoice(question, choices string, def byte) byte {
	if c.in == nil {
		return def
	}
	for {
		fmt.Fprintf(c.out, "%s %c\010", question, def)
		line, ok := c.AskLine("", false)
		if !ok {
			return def
		}
		line = strings.TrimLeft(line, " ")
		if line == "" {
			return def
		}
		if strings.IndexByte(choices, line[0]) >= 0 {
			return line[0]
		}
		log.Debug().Str("module", "diag").Str("answer", line).Msg("Unrecognized choice")
	}
}

// AskYesNo asks a y/n question.
func (c *Console) AskYesNo(question string, def bool) bool {
	d := byte('n')
	if def {
		d = 'y'
	}
	return c.AskChoice(question, "yn", d) == 'y'
}

// ByteSize renders a size with a K-based unit suffix, e.g. "3.4KB".
func ByteSize(size int) string {
	fsize := float64(size) / 1024
	suffixes := "KMGT"
	i := 0
	for fsize > 999 && i < len(suffixes)-1 {
		fsize /= 1024
		i++
	}
	switch {
	case fsize == 0:
		return fmt.Sprintf("%.1f%cB", fsize, suffixes[i])
	case fsize < 10:
		return fmt.Sprintf("%.1f%cB", fsize+0.09, suffixes[i])
	default:
		return fmt.Sprintf("%.0f%cB", fsize+0.9, suffixes[i])
	}
}
