// Package config contains the process configuration.  Defaults come from
// struct tags, an optional YAML rc file may override them, and environment
// variables (prefix MFCK) win over both.  Command line flags are applied on
// top by the mfck binary.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

const (
	prefix      = "mfck"
	tableFormat = `mfck is configured via the environment. The following environment
variables can be used:

KEY	DEFAULT	REQUIRED	DESCRIPTION
{{range .}}{{usage_key .}}	{{usage_default .}}	{{usage_required .}}	{{usage_description .}}
{{end}}`
)

var (
	// Version of this build, set by main.
	Version = ""

	// BuildDate for this build, set by main.
	BuildDate = ""
)

// Root wraps all other configurations.
type Root struct {
	LogLevel    string        `required:"true" default:"WARN" desc:"DEBUG, INFO, WARN, or ERROR"`
	LockTimeout time.Duration `required:"true" default:"5s" desc:"Mailbox lock acquisition timeout"`
	MmapMin     int           `required:"true" default:"8192" desc:"Minimum file size to memory map"`
	NoMmap      bool          `default:"false" desc:"Never memory map mailbox files"`
	Strict      bool          `default:"false" desc:"Strict checking by default"`
	Quiet       bool          `default:"false" desc:"Suppress notes and warnings"`
	Verbose     bool          `default:"false" desc:"Report progress information"`
	Backup      bool          `default:"false" desc:"Keep a mbox~ backup when rewriting"`
	Pager       string        `desc:"Pager command, overrides $PAGER"`
	Editor      string        `desc:"Editor command, overrides $EDITOR"`
	Lua         Lua
}

// Lua contains the extension script configuration.
type Lua struct {
	Path string `desc:"Lua extension script path"`
}

// rcFile mirrors Root for the YAML rc file.  Durations are strings there.
type rcFile struct {
	LogLevel    string `yaml:"loglevel"`
	LockTimeout string `yaml:"locktimeout"`
	MmapMin     int    `yaml:"mmapmin"`
	NoMmap      bool   `yaml:"nommap"`
	Strict      bool   `yaml:"strict"`
	Quiet       bool   `yaml:"quiet"`
	Verbose     bool   `yaml:"verbose"`
	Backup      bool   `yaml:"backup"`
	Pager       string `yaml:"pager"`
	Editor      string `yaml:"editor"`
	Lua         struct {
		Path string `yaml:"path"`
	} `yaml:"lua"`
}

// Core is the subset of configuration threaded through the checker, writer,
// and interactive loop, merged from Root plus command line flags.
type Core struct {
	AutoWrite   bool
	Backup      bool
	Debug       bool
	DryRun      bool
	Interactive bool
	Quiet       bool
	ShowContext bool
	Strict      bool
	Verbose     bool

	UseMmap bool
	MmapMin int

	LockTimeout time.Duration
	Pager       string
	Editor      string

	PageWidth  int
	PageHeight int
}

// Process loads the rc file and environment into a Root.
func Process() (*Root, error) {
	root := &Root{}
	if err := envconfig.Process(prefix, root); err != nil {
		return nil, err
	}
	rcPath := os.Getenv("MFCK_RC")
	if rcPath == "" {
		if home, err := os.UserHomeDir(); err == nil {
			rcPath = filepath.Join(home, ".mfckrc")
		}
	}
	if rcPath != "" {
		if err := root.applyRC(rcPath); err != nil {
			return nil, err
		}
	}
	return root, nil
}

// applyRC merges the YAML rc file into root.  A field is only taken from the
// file when its environment variable is unset, so the env keeps priority.
func (root *Root) applyRC(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	rc := rcFile{}
	if err := yaml.Unmarshal(data, &rc); err != nil {
		return err
	}
	if !envSet("LOGLEVEL") && rc.LogLevel != "" {
		root.LogLevel = rc.LogLevel
	}
	if !envSet("LOCKTIMEOUT") && rc.LockTimeout != "" {
		d, err := time.ParseDuration(rc.LockTimeout)
		if err != nil {
			return fmt.Errorf("rc file %s: locktimeout: %v", path, err)
		}
		root.LockTimeout = d
	}
	if !envSet("MMAPMIN") && rc.MmapMin != 0 {
		root.MmapMin = rc.MmapMin
	}
	if !envSet("NOMMAP") && rc.NoMmap {
		root.NoMmap = true
	}
	if !envSet("STRICT") && rc.Strict {
		root.Strict = true
	}
	if !envSet("QUIET") && rc.Quiet {
		root.Quiet = true
	}
	if !envSet("VERBOSE") && rc.Verbose {
		root.Verbose = true
	}
	if !envSet("BACKUP") && rc.Backup {
		root.Backup = true
	}
	if !envSet("PAGER") && rc.Pager != "" {
		root.Pager = rc.Pager
	}
	if !envSet("EDITOR") && rc.Editor != "" {
		root.Editor = rc.Editor
	}
	if !envSet("LUA_PATH") && rc.Lua.Path != "" {
		root.Lua.Path = rc.Lua.Path
	}
	return nil
}

func envSet(key string) bool {
	_, ok := os.LookupEnv("MFCK_" + key)
	return ok
}

// Core builds the threaded configuration from this Root, resolving the pager
// and editor through the environment per tradition: $PAGER falls back to
// more, $EDITOR falls back to ed.
func (root *Root) Core() *Core {
	pager := root.Pager
	if pager == "" {
		pager = os.Getenv("PAGER")
	}
	if pager == "" {
		pager = "more"
	}
	editor := root.Editor
	if editor == "" {
		editor = os.Getenv("EDITOR")
	}
	if editor == "" {
		editor = "ed"
	}
	return &Core{
		Backup:      root.Backup,
		Quiet:       root.Quiet,
		Strict:      root.Strict,
		Verbose:     root.Verbose,
		UseMmap:     !root.NoMmap,
		MmapMin:     root.MmapMin,
		LockTimeout: root.LockTimeout,
		Pager:       pager,
		Editor:      editor,
		PageWidth:   80,
		PageHeight:  24,
	}
}

// Usage prints out the envconfig usage to stderr.
func Usage() {
	tabs := tabwriter.NewWriter(os.Stderr, 1, 0, 4, ' ', 0)
	if err := envconfig.Usagef(prefix, &Root{}, tabs, tableFormat); err != nil {
		panic(err)
	}
	_ = tabs.Flush()
}
