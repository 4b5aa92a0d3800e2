package luahost

import (
	"errors"
	"fmt"

	lua "github.com/yuin/gopher-lua"
)

const (
	mfckName       = "mfck"
	mfckAfterName  = "mfck_after"
	mfckBeforeName = "mfck_before"
)

// Mfck is the root object exposed to scripts; hooks are registered by
// assigning functions to its after/before fields.
type Mfck struct {
	After  MfckAfterFuncs
	Before MfckBeforeFuncs
}

// MfckAfterFuncs holds the observation hooks.
type MfckAfterFuncs struct {
	MessageParsed *lua.LFunction
	CheckFinding  *lua.LFunction
}

// MfckBeforeFuncs holds the hooks that may alter behavior.
type MfckBeforeFuncs struct {
	MailboxWritten *lua.LFunction
}

func registerMfckTypes(ls *lua.LState) {
	// mfck type.
	mt := ls.NewTypeMetatable(mfckName)
	ls.SetField(mt, "__index", ls.NewFunction(mfckIndex))

	// mfck.after type.
	mt = ls.NewTypeMetatable(mfckAfterName)
	ls.SetField(mt, "__index", ls.NewFunction(mfckAfterIndex))
	ls.SetField(mt, "__newindex", ls.NewFunction(mfckAfterNewIndex))

	// mfck.before type.
	mt = ls.NewTypeMetatable(mfckBeforeName)
	ls.SetField(mt, "__index", ls.NewFunction(mfckBeforeIndex))
	ls.SetField(mt, "__newindex", ls.NewFunction(mfckBeforeNewIndex))

	// mfck global.
	ud := ls.NewUserData()
	ud.Value = &Mfck{}
	ls.SetMetatable(ud, ls.GetTypeMetatable(mfckName))
	ls.SetGlobal(mfckName, ud)
}

func getMfck(ls *lua.LState) (*Mfck, error) {
	lv := ls.GetGlobal(mfckName)
	if lv == nil {
		return nil, errors.New("mfck object was nil")
	}
	ud, ok := lv.(*lua.LUserData)
	if !ok {
		return nil, fmt.Errorf("mfck object was type %s instead of UserData", lv.Type())
	}
	val, ok := ud.Value.(*Mfck)
	if !ok {
		return nil, fmt.Errorf("mfck object (%v) could not be cast", ud.Value)
	}
	return val, nil
}

func checkMfck(ls *lua.LState, pos int) *Mfck {
	ud := ls.CheckUserData(pos)
	if val, ok := ud.Value.(*Mfck); ok {
		return val
	}
	ls.ArgError(1, mfckName+" expected")
	return nil
}

func checkMfckAfter(ls *lua.LState, pos int) *MfckAfterFuncs {
	ud := ls.CheckUserData(pos)
	if val, ok := ud.Value.(*MfckAfterFuncs); ok {
		return val
	}
	ls.ArgError(1, mfckAfterName+" expected")
	return nil
}

func checkMfckBefore(ls *lua.LState, pos int) *MfckBeforeFuncs {
	ud := ls.CheckUserData(pos)
	if val, ok := ud.Value.(*MfckBeforeFuncs); ok {
		return val
	}
	ls.ArgError(1, mfckBeforeName+" expected")
	return nil
}

// mfck getter.
func mfckIndex(ls *lua.LState) int {
	m := checkMfck(ls, 1)
	field := ls.CheckString(2)

	switch field {
	case "after":
		ud := ls.NewUserData()
		ud.Value = &m.After
		ls.SetMetatable(ud, ls.GetTypeMetatable(mfckAfterName))
		ls.Push(ud)
	case "before":
		ud := ls.NewUserData()
		ud.Value = &m.Before
		ls.SetMetatable(ud, ls.GetTypeMetatable(mfckBeforeName))
		ls.Push(ud)
	default:
		ls.Push(lua.LNil)
	}

	return 1
}

// mfck.after getter.
func mfckAfterIndex(ls *lua.LState) int {
	after := checkMfckAfter(ls, 1)
	field := ls.CheckString(2)

	switch field {
	case "message_parsed":
		ls.Push(funcOrNil(after.MessageParsed))
	case "check_finding":
		ls.Push(funcOrNil(after.CheckFinding))
	default:
		ls.Push(lua.LNil)
	}

	return 1
}

// mfck.after setter.
func mfckAfterNewIndex(ls *lua.LState) int {
	after := checkMfckAfter(ls, 1)
	index := ls.CheckString(2)

	switch index {
	case "message_parsed":
		after.MessageParsed = ls.CheckFunction(3)
	case "check_finding":
		after.CheckFinding = ls.CheckFunction(3)
	default:
		ls.RaiseError("invalid mfck.after index %q", index)
	}

	return 0
}

// mfck.before getter.
func mfckBeforeIndex(ls *lua.LState) int {
	before := checkMfckBefore(ls, 1)
	field := ls.CheckString(2)

	switch field {
	case "mailbox_written":
		ls.Push(funcOrNil(before.MailboxWritten))
	default:
		ls.Push(lua.LNil)
	}

	return 1
}

// mfck.before setter.
func mfckBeforeNewIndex(ls *lua.LState) int {
	before := checkMfckBefore(ls, 1)
	index := ls.CheckString(2)

	switch index {
	case "mailbox_written":
		before.MailboxWritten = ls.CheckFunction(3)
	default:
		ls.RaiseError("invalid mfck.before index %q", index)
	}

	return 0
}

func funcOrNil(f *lua.LFunction) lua.LValue {
	if f == nil {
		return lua.LNil
	}
	return f
}
