package luahost

import (
	"github.com/inbucket/mfck/pkg/extension/event"
	lua "github.com/yuin/gopher-lua"
)

const messageInfoName = "message_info"

func registerMessageInfoType(ls *lua.LState) {
	mt := ls.NewTypeMetatable(messageInfoName)
	ls.SetGlobal(messageInfoName, mt)
	ls.SetField(mt, "__index", ls.NewFunction(messageInfoIndex))
}

func wrapMessageInfo(ls *lua.LState, val *event.MessageInfo) *lua.LUserData {
	ud := ls.NewUserData()
	ud.Value = val
	ls.SetMetatable(ud, ls.GetTypeMetatable(messageInfoName))

	return ud
}

func checkMessageInfo(ls *lua.LState, pos int) *event.MessageInfo {
	ud := ls.CheckUserData(pos)
	if val, ok := ud.Value.(*event.MessageInfo); ok {
		return val
	}
	ls.ArgError(pos, messageInfoName+" expected")
	return nil
}

func messageInfoIndex(ls *lua.LState) int {
	mi := checkMessageInfo(ls, 1)
	field := ls.CheckString(2)

	switch field {
	case "mailbox":
		ls.Push(lua.LString(mi.Mailbox))
	case "tag":
		ls.Push(lua.LString(mi.Tag))
	case "number":
		ls.Push(lua.LNumber(mi.Number))
	case "envelope_sender":
		ls.Push(lua.LString(mi.EnvelopeSender))
	case "message_id":
		ls.Push(lua.LString(mi.MessageID))
	case "subject":
		ls.Push(lua.LString(mi.Subject))
	case "body_size":
		ls.Push(lua.LNumber(mi.BodySize))
	case "deleted":
		ls.Push(lua.LBool(mi.Deleted))
	case "dovecot_bug":
		ls.Push(lua.LBool(mi.DovecotBug))
	default:
		ls.Push(lua.LNil)
	}

	return 1
}
