// main is the mfck mailbox checker launcher.
package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/inbucket/mfck/pkg/config"
	"github.com/inbucket/mfck/pkg/diag"
	"github.com/inbucket/mfck/pkg/extension"
	"github.com/inbucket/mfck/pkg/extension/luahost"
	"github.com/inbucket/mfck/pkg/lockfile"
	"github.com/inbucket/mfck/pkg/mbox"
	"github.com/inbucket/mfck/pkg/repl"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sys/unix"
)

var (
	// version contains the build version number, populated during linking.
	version = "1.0"

	// date contains the build date, populated during linking.
	date = "undefined"
)

func main() {
	os.Exit(run(os.Args))
}

func run(args []string) int {
	conf, err := config.Process()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		return diag.ExUsage
	}
	config.Version = version
	config.BuildDate = date
	cfg := conf.Core()
	con := diag.NewConsole(os.Stdout, os.Stderr, os.Stdin)

	// Give usage if no arguments at all were given.
	if len(args) == 1 {
		usage(args[0], false)
		return diag.ExUsage
	}

	var commands []string
	var files []string
	var outFile string
	errors := 0

	ac := 1
	for ; ac < len(args) && strings.HasPrefix(args[ac], "-"); ac++ {
		if strings.HasPrefix(args[ac], "--") {
			opt := args[ac][2:]
			switch opt {
			case "debug":
				cfg.Debug = true
			case "nomap":
				cfg.UseMmap = false
			case "verbose":
				cfg.Verbose = true
			case "help":
				usage(args[0], true)
				return diag.ExUsage
			case "version":
				showVersion()
				return diag.ExOK
			default:
				// Any other long option runs as an interactive command.
				commands = append(commands, opt)
			}
			continue
		}
		for _, opt := range args[ac][1:] {
			switch opt {
			case 'b':
				cfg.Backup = true
			case 'c':
				commands = append(commands, "check")
			case 'd':
				cfg.Debug = true
			case 'f':
				arg, ok := nextMainArg(&ac, args)
				if !ok {
					usage(args[0], false)
					return diag.ExUsage
				}
				if addFiles(&files, arg, con) != 0 {
					return 1
				}
			case 'h':
				usage(args[0], true)
				return diag.ExUsage
			case 'i':
				cfg.Interactive = true
			case 'l':
				commands = append(commands, "list")
			case 'n':
				cfg.DryRun = true
			case 'o':
				arg, ok := nextMainArg(&ac, args)
				if !ok {
					usage(args[0], false)
					return diag.ExUsage
				}
				outFile = arg
			case 'q':
				cfg.Quiet = true
			case 'r':
				commands = append(commands, "repair")
			case 's':
				cfg.Strict = true
			case 'u':
				commands = append(commands, "unique")
			case 'v':
				cfg.Verbose = true
			case 'w':
				cfg.AutoWrite = true
			case 'C':
				cfg.ShowContext = true
			case 'N':
				cfg.UseMmap = false
			case 'V':
				showVersion()
				return diag.ExOK
			default:
				usage(args[0], false)
				return diag.ExUsage
			}
		}
	}
	con.Quiet = cfg.Quiet
	con.ShowContext = cfg.ShowContext
	openLog(conf.LogLevel, cfg)

	// Extension host; scripts attach through the Lua bridge.
	extHost := extension.NewHost()
	if _, err := luahost.New(conf.Lua, extHost); err != nil {
		con.Errorf("Fatal Error: could not load Lua script: %v", err)
		return diag.ExSoftware
	}

	// Figure out the terminal window size.
	if ws, err := unix.IoctlGetWinsize(int(os.Stdout.Fd()), unix.TIOCGWINSZ); err == nil {
		if ws.Col > 0 {
			cfg.PageWidth = int(ws.Col)
		}
		if ws.Row > 0 {
			cfg.PageHeight = int(ws.Row)
		}
	}
	// There's no height limit if we're not interactive.
	if !cfg.Interactive {
		cfg.PageHeight = -1
	}

	loop := repl.New(cfg, con, extHost)

	// We don't care about broken (pager) pipes.  SIGINT unwinds to the
	// command prompt; the other signals release held locks and die.
	signal.Ignore(syscall.SIGPIPE)
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGHUP, syscall.SIGINT, syscall.SIGQUIT,
		syscall.SIGABRT, syscall.SIGTERM)
	go func() {
		for sig := range sigChan {
			if sig == syscall.SIGINT && cfg.Interactive {
				fmt.Fprintln(os.Stdout)
				loop.Interrupt()
				continue
			}
			lockfile.UnlockAll(con)
			os.Exit(diag.ExUnavailable)
		}
	}()

	var output io.Writer
	var outStream *os.File
	if outFile != "" && !cfg.DryRun {
		outStream, err = os.Create(outFile)
		if err != nil {
			con.Errorf("Fatal Error: Can't open file %s: %v", outFile, err)
			return diag.ExCantCreat
		}
		output = outStream
	}

	// The rest should all be mbox files (or directories thereof).
	if ac < len(args) {
		for ; ac < len(args); ac++ {
			errors += addFiles(&files, args[ac], con)
		}
	} else if len(files) == 0 {
		// Default to the user's inbox if no explicit files were given.
		mailFile := os.Getenv("MAIL")
		if mailFile == "" {
			mailFile = "/var/mail/" + os.Getenv("LOGNAME")
		}
		errors += addFiles(&files, mailFile, con)
	}

	// Process the mbox files.
	for _, file := range files {
		if !processFile(file, commands, output, cfg, con, extHost, loop) {
			errors++
		}
		if cfg.Quiet && cfg.Verbose && con.Warnings() > 0 {
			con.Quiet = false
			verb := "s were"
			if con.Warnings() == 1 {
				verb = " was"
			}
			con.Warnf("%d warning%s issued", con.Warnings(), verb)
			con.ResetWarnings()
			con.Quiet = true
		}
	}

	if outStream != nil {
		if err := outStream.Close(); err != nil {
			con.Errorf("Fatal Error: %v: %s", err, outFile)
			return diag.ExIOErr
		}
	}

	if n := con.Warnings(); n > 0 {
		verb := "s were"
		if n == 1 {
			verb = " was"
		}
		con.Notef("%d warning%s issued", n, verb)
	}

	lockfile.UnlockAll(con)
	return errors
}

// processFile opens and works through one mailbox.
func processFile(file string, commands []string, output io.Writer,
	cfg *config.Core, con *diag.Console, extHost *extension.Host, loop *repl.REPL) bool {
	mb, err := mbox.Open(file, false, cfg, con)
	if err != nil {
		con.Errorf("%v", err)
		return false
	}
	defer mb.Close()

	if !cfg.Quiet || cfg.Verbose {
		count := mb.Count()
		plural := "s"
		if count == 1 {
			plural = ""
		}
		wasQuiet := con.Quiet
		con.Quiet = false
		con.Notef("%s: %d message%s, %s", file, count, plural, diag.ByteSize(mb.Data().Len()))
		con.Quiet = wasQuiet
	}

	emitParsedEvents(mb, extHost)

	if cfg.Interactive || len(commands) > 0 {
		loop.RunLoop(mb, commands)
	}

	if output != nil {
		if err := mb.WriteTo(output, true); err != nil {
			con.Errorf("Fatal Error: %v", err)
			lockfile.UnlockAll(con)
			os.Exit(diag.ExIOErr)
		}
	}

	return true
}

// emitParsedEvents tells extensions about each parsed message.
func emitParsedEvents(mb *mbox.Mailbox, extHost *extension.Host) {
	for _, msg := range mb.Messages() {
		extHost.Events.AfterMessageParsed.Emit(msg.Info())
	}
}

// nextMainArg consumes an option's value argument.
func nextMainArg(ac *int, args []string) (string, bool) {
	if *ac+1 >= len(args) {
		return "", false
	}
	*ac++
	return args[*ac], true
}

// addFiles appends all "unhidden" files at or below path, returning the
// number of errors.
func addFiles(files *[]string, path string, con *diag.Console) int {
	fi, err := os.Stat(path)
	if err != nil {
		con.Errorf("%s: %v", path, err)
		return 1
	}
	if !fi.IsDir() {
		*files = append(*files, path)
		return 0
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		con.Errorf("%s: %v", path, err)
		return 1
	}
	errors := 0
	for _, de := range entries {
		// Ignore ./.. and any other .file.
		if strings.HasPrefix(de.Name(), ".") {
			continue
		}
		errors += addFiles(files, filepath.Join(path, de.Name()), con)
	}
	return errors
}

// openLog configures zerolog for console output on stderr.
func openLog(level string, cfg *config.Core) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logLevel := zerolog.WarnLevel
	switch strings.ToUpper(level) {
	case "DEBUG":
		logLevel = zerolog.DebugLevel
	case "INFO":
		logLevel = zerolog.InfoLevel
	case "ERROR":
		logLevel = zerolog.ErrorLevel
	}
	if cfg.Debug {
		logLevel = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(logLevel)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
}

func showVersion() {
	fmt.Printf("mfck version %s (built %s)\n", version, date)
}

func usage(pname string, help bool) {
	pname = filepath.Base(pname)
	fmt.Fprintf(os.Stderr, "Usage: %s [-bcdfhilnoqrsuvwCNV] <mbox> ...\n", pname)
	if !help {
		fmt.Fprintf(os.Stderr, " (Run \"%s -h\" for more information)\n", pname)
		return
	}
	fmt.Fprintf(os.Stderr, "\n%s is a mailbox file checking tool.  It will allow "+
		"you to check\nyour mbox files' integrity, examine their contents, and "+
		"optionally\nperform automatic repairs.\n", pname)
	fmt.Fprint(os.Stderr, "\nOptions include:\n"+
		"  -b \t\tbackup mbox to mbox~ before changing it\n"+
		"  -c \t\tcheck the mbox for consistency\n"+
		"  -d \t\tdebug mode (verbose logging)\n"+
		"  -f <file> \tprocess mbox <file>\n"+
		"  -h \t\tprint out this help text\n"+
		"  -i \t\tinitiate interactive mode\n"+
		"  -l \t\tlist the messages in the mbox\n"+
		"  -n \t\tdry run -- no changes will be made to any file\n"+
		"  -o <file> \tconcatenate messages into <file>\n"+
		"  -q \t\tbe quiet and don't report warnings or notices\n"+
		"  -r \t\trepair the given mailboxes\n"+
		"  -s \t\tbe strict and report more indiscretions than otherwise\n"+
		"  -u \t\tunique messages in each mailbox by removing duplicates\n"+
		"  -v \t\tbe verbose and print out more progress information\n"+
		"  -w \t\tautomatically write back modified mailboxes\n"+
		"  -C \t\tshow a few lines of context around parse errors\n"+
		"  -N \t\tdon't try to mmap the mbox file\n"+
		"  -V \t\tprint out version information and then exit\n")
	fmt.Fprintf(os.Stderr, "\nIf given no options, %s will simply try to read "+
		"the given mbox files\nand then quit. ", pname)
	fmt.Fprint(os.Stderr, "More interesting usage examples would be:\n\n")
	fmt.Fprintf(os.Stderr, "%s -c mbox\tto check the mbox file and report most errors\n", pname)
	fmt.Fprintf(os.Stderr, "%s -cs mbox\tto check the mbox file and report more errors\n", pname)
	fmt.Fprintf(os.Stderr, "%s -rb mbox\tto check the mbox, perform any necessary repairs, "+
		"and save\n\t\tthe original file as mbox~\n", pname)
	fmt.Fprintf(os.Stderr, "%s -ci mbox\tto check the mbox and then enter an interactive "+
		"mode where\n\t\tyou can further inspect it and make possible changes\n", pname)
	fmt.Fprint(os.Stderr, "\nIf you just want to test things out without making "+
		"any changes, add the -n\nflag and no files will be modified.\n")
}
