package luahost

import (
	"github.com/inbucket/mfck/pkg/extension/event"
	lua "github.com/yuin/gopher-lua"
)

const checkFindingName = "check_finding"

func registerCheckFindingType(ls *lua.LState) {
	mt := ls.NewTypeMetatable(checkFindingName)
	ls.SetGlobal(checkFindingName, mt)
	ls.SetField(mt, "__index", ls.NewFunction(checkFindingIndex))
}

func wrapCheckFinding(ls *lua.LState, val *event.CheckFinding) *lua.LUserData {
	ud := ls.NewUserData()
	ud.Value = val
	ls.SetMetatable(ud, ls.GetTypeMetatable(checkFindingName))

	return ud
}

func checkCheckFinding(ls *lua.LState, pos int) *event.CheckFinding {
	ud := ls.CheckUserData(pos)
	if val, ok := ud.Value.(*event.CheckFinding); ok {
		return val
	}
	ls.ArgError(pos, checkFindingName+" expected")
	return nil
}

func checkFindingIndex(ls *lua.LState) int {
	f := checkCheckFinding(ls, 1)
	field := ls.CheckString(2)

	switch field {
	case "mailbox":
		ls.Push(lua.LString(f.Mailbox))
	case "tag":
		ls.Push(lua.LString(f.Tag))
	case "rule":
		ls.Push(lua.LString(f.Rule))
	case "detail":
		ls.Push(lua.LString(f.Detail))
	default:
		ls.Push(lua.LNil)
	}

	return 1
}
