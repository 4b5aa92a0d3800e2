// Package luahost loads a Lua extension script and bridges mfck's extension
// events into it.
package luahost

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/inbucket/mfck/pkg/config"
	"github.com/inbucket/mfck/pkg/extension"
	"github.com/inbucket/mfck/pkg/extension/event"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"
)

// Host of Lua extensions.
type Host struct {
	extHost    *extension.Host
	pool       *statePool
	logContext zerolog.Context
}

// New constructs a new Lua Host, pre-compiling the source.  A nil Host and
// nil error mean no script is configured.
func New(conf config.Lua, extHost *extension.Host) (*Host, error) {
	scriptPath := conf.Path
	if scriptPath == "" {
		return nil, nil
	}

	logContext := log.With().Str("module", "lua")
	logger := logContext.Str("phase", "startup").Str("path", scriptPath).Logger()

	if fi, err := os.Stat(scriptPath); err != nil {
		logger.Info().Msg("Script file not found")
		return nil, nil
	} else if fi.IsDir() {
		return nil, fmt.Errorf("Lua script %v is a directory", scriptPath)
	}

	logger.Info().Msg("Loading script")
	file, err := os.Open(scriptPath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return NewFromReader(extHost, bufio.NewReader(file), scriptPath)
}

// NewFromReader constructs a new Lua Host, loading Lua source from the
// provided reader.  The path is used in logging and error messages.
func NewFromReader(extHost *extension.Host, r io.Reader, path string) (*Host, error) {
	logContext := log.With().Str("module", "lua")

	chunk, err := parse.Parse(r, path)
	if err != nil {
		return nil, err
	}
	proto, err := lua.Compile(chunk, path)
	if err != nil {
		return nil, err
	}

	pool := newStatePool(logContext.Logger(), proto)
	h := &Host{extHost: extHost, pool: pool, logContext: logContext}

	// Run the script once to confirm LState creation works and to discover
	// which hooks it registered.
	ls, err := pool.getState()
	if err != nil {
		return nil, err
	}
	m, err := getMfck(ls)
	if err != nil {
		pool.putState(ls)
		return nil, err
	}
	if m.After.MessageParsed != nil {
		extHost.Events.AfterMessageParsed.AddListener("lua", h.handleAfterMessageParsed)
	}
	if m.After.CheckFinding != nil {
		extHost.Events.AfterCheckFinding.AddListener("lua", h.handleAfterCheckFinding)
	}
	if m.Before.MailboxWritten != nil {
		extHost.Events.BeforeMailboxWritten.AddListener("lua", h.handleBeforeMailboxWritten)
	}
	pool.putState(ls)

	return h, nil
}

func (h *Host) handleAfterMessageParsed(ev event.MessageInfo) *extension.Void {
	logger := h.logContext.Str("event", "message_parsed").Logger()
	ls, err := h.pool.getState()
	if err != nil {
		logger.Error().Err(err).Msg("Failed to obtain LState")
		return nil
	}
	defer h.pool.putState(ls)

	m, err := getMfck(ls)
	if err != nil || m.After.MessageParsed == nil {
		return nil
	}
	err = ls.CallByParam(
		lua.P{Fn: m.After.MessageParsed, NRet: 0, Protect: true},
		wrapMessageInfo(ls, &ev))
	if err != nil {
		logger.Error().Err(err).Msg("Script failed")
	}
	return nil
}

func (h *Host) handleAfterCheckFinding(ev event.CheckFinding) *extension.Void {
	logger := h.logContext.Str("event", "check_finding").Logger()
	ls, err := h.pool.getState()
	if err != nil {
		logger.Error().Err(err).Msg("Failed to obtain LState")
		return nil
	}
	defer h.pool.putState(ls)

	m, err := getMfck(ls)
	if err != nil || m.After.CheckFinding == nil {
		return nil
	}
	err = ls.CallByParam(
		lua.P{Fn: m.After.CheckFinding, NRet: 0, Protect: true},
		wrapCheckFinding(ls, &ev))
	if err != nil {
		logger.Error().Err(err).Msg("Script failed")
	}
	return nil
}

func (h *Host) handleBeforeMailboxWritten(ev event.MailboxInfo) *event.WriteDecision {
	logger := h.logContext.Str("event", "mailbox_written").Logger()
	ls, err := h.pool.getState()
	if err != nil {
		logger.Error().Err(err).Msg("Failed to obtain LState")
		return nil
	}
	defer h.pool.putState(ls)

	m, err := getMfck(ls)
	if err != nil || m.Before.MailboxWritten == nil {
		return nil
	}
	err = ls.CallByParam(
		lua.P{Fn: m.Before.MailboxWritten, NRet: 1, Protect: true},
		wrapMailboxInfo(ls, &ev))
	if err != nil {
		logger.Error().Err(err).Msg("Script failed")
		return nil
	}
	ret := ls.Get(-1)
	ls.Pop(1)
	if b, ok := ret.(lua.LBool); ok && !bool(b) {
		return &event.WriteDecision{Allow: false}
	}
	return nil
}
