package luahost

import (
	"github.com/inbucket/mfck/pkg/extension/event"
	lua "github.com/yuin/gopher-lua"
)

const mailboxInfoName = "mailbox_info"

func registerMailboxInfoType(ls *lua.LState) {
	mt := ls.NewTypeMetatable(mailboxInfoName)
	ls.SetGlobal(mailboxInfoName, mt)
	ls.SetField(mt, "__index", ls.NewFunction(mailboxInfoIndex))
}

func wrapMailboxInfo(ls *lua.LState, val *event.MailboxInfo) *lua.LUserData {
	ud := ls.NewUserData()
	ud.Value = val
	ls.SetMetatable(ud, ls.GetTypeMetatable(mailboxInfoName))

	return ud
}

func checkMailboxInfo(ls *lua.LState, pos int) *event.MailboxInfo {
	ud := ls.CheckUserData(pos)
	if val, ok := ud.Value.(*event.MailboxInfo); ok {
		return val
	}
	ls.ArgError(pos, mailboxInfoName+" expected")
	return nil
}

func mailboxInfoIndex(ls *lua.LState) int {
	mi := checkMailboxInfo(ls, 1)
	field := ls.CheckString(2)

	switch field {
	case "name":
		ls.Push(lua.LString(mi.Name))
	case "source":
		ls.Push(lua.LString(mi.Source))
	case "messages":
		ls.Push(lua.LNumber(mi.Messages))
	case "dirty":
		ls.Push(lua.LBool(mi.Dirty))
	default:
		ls.Push(lua.LNil)
	}

	return 1
}
