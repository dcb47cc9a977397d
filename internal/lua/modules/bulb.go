package modules

import (
	"context"
	"fmt"

	lua "github.com/yuin/gopher-lua"

	"github.com/dokzlo13/kl130d/internal/bulb"
	"github.com/dokzlo13/kl130d/internal/color"
)

const bulbTypeName = "kl130.bulb"

// Controller runs commands against named bulbs.
type Controller interface {
	Names() []string
	Snapshot(name string) (map[string]any, error)
	Dispatch(ctx context.Context, name, label, source string, args ...int) error
	Query(ctx context.Context, name, source string) (bulb.Status, error)
}

// BulbModule provides bulb.* functions to Lua.
//
// Functions that talk to a bulb return (result, nil) on success and
// (nil, "error message") on failure. Successful commands return the handle
// so calls can be chained:
//
//	local desk = bulb.get("desk")
//	desk:on():color(255, 136, 0)
//
//	local level, err = desk:update()
//	if err then
//	    log.warn("Query failed", { error = err })
//	end
type BulbModule struct {
	controller Controller
}

// NewBulbModule creates a new bulb module
func NewBulbModule(controller Controller) *BulbModule {
	return &BulbModule{controller: controller}
}

type bulbHandle struct {
	name string
}

// Loader is the module loader for Lua
func (m *BulbModule) Loader(L *lua.LState) int {
	mt := L.NewTypeMetatable(bulbTypeName)
	L.SetField(mt, "__index", L.SetFuncs(L.NewTable(), map[string]lua.LGFunction{
		"name":   m.handleName,
		"on":     m.handleCommand(bulb.CommandOn),
		"off":    m.handleCommand(bulb.CommandOff),
		"color":  m.handleColor,
		"hex":    m.handleHex,
		"update": m.handleUpdate,
		"send":   m.handleSend,
		"state":  m.handleState,
	}))

	mod := L.NewTable()
	L.SetField(mod, "get", L.NewFunction(m.get))
	L.SetField(mod, "names", L.NewFunction(m.names))
	L.SetField(mod, "commands", GoToLuaValue(L, bulb.Commands))

	L.Push(mod)
	return 1
}

// bulb.get(name) -> handle | nil, err
func (m *BulbModule) get(L *lua.LState) int {
	name := L.CheckString(1)
	if _, err := m.controller.Snapshot(name); err != nil {
		return pushError(L, err)
	}

	ud := L.NewUserData()
	ud.Value = &bulbHandle{name: name}
	L.SetMetatable(ud, L.GetTypeMetatable(bulbTypeName))
	L.Push(ud)
	return 1
}

// bulb.names() -> {string}
func (m *BulbModule) names(L *lua.LState) int {
	L.Push(GoToLuaValue(L, m.controller.Names()))
	return 1
}

func checkBulb(L *lua.LState) (*bulbHandle, *lua.LUserData) {
	ud := L.CheckUserData(1)
	if h, ok := ud.Value.(*bulbHandle); ok {
		return h, ud
	}
	L.ArgError(1, bulbTypeName+" expected")
	return nil, nil
}

// handle:name() -> string
func (m *BulbModule) handleName(L *lua.LState) int {
	h, _ := checkBulb(L)
	L.Push(lua.LString(h.name))
	return 1
}

// handle:on() / handle:off() -> self | nil, err
func (m *BulbModule) handleCommand(label string) lua.LGFunction {
	return func(L *lua.LState) int {
		h, ud := checkBulb(L)
		return m.dispatch(L, h, ud, label)
	}
}

// handle:color(r, g, b) -> self | nil, err
func (m *BulbModule) handleColor(L *lua.LState) int {
	h, ud := checkBulb(L)
	rgb := color.RGB{R: L.CheckInt(2), G: L.CheckInt(3), B: L.CheckInt(4)}
	if !rgb.Valid() {
		return pushError(L, fmt.Errorf("color components must be within 0..255, got %s", rgb))
	}
	return m.dispatch(L, h, ud, bulb.CommandExact, rgb.R, rgb.G, rgb.B)
}

// handle:hex("#rrggbb") -> self | nil, err
func (m *BulbModule) handleHex(L *lua.LState) int {
	h, ud := checkBulb(L)
	rgb, err := color.ParseHex(L.CheckString(2))
	if err != nil {
		return pushError(L, err)
	}
	return m.dispatch(L, h, ud, bulb.CommandExact, rgb.R, rgb.G, rgb.B)
}

// handle:send(label, ...) -> self | nil, err
func (m *BulbModule) handleSend(L *lua.LState) int {
	h, ud := checkBulb(L)
	label := L.CheckString(2)
	var args []int
	for i := 3; i <= L.GetTop(); i++ {
		args = append(args, L.CheckInt(i))
	}
	return m.dispatch(L, h, ud, label, args...)
}

// handle:update() -> "on" | "off" | nil, err
// Returns a single nil when the bulb did not report its power state.
func (m *BulbModule) handleUpdate(L *lua.LState) int {
	h, _ := checkBulb(L)
	st, err := m.controller.Query(luaContext(L), h.name, "lua")
	if err != nil {
		return pushError(L, err)
	}
	switch {
	case st.Power == nil:
		L.Push(lua.LNil)
	case *st.Power:
		L.Push(lua.LString(bulb.LevelOn))
	default:
		L.Push(lua.LString(bulb.LevelOff))
	}
	return 1
}

// handle:state() -> table | nil, err
func (m *BulbModule) handleState(L *lua.LState) int {
	h, _ := checkBulb(L)
	snap, err := m.controller.Snapshot(h.name)
	if err != nil {
		return pushError(L, err)
	}
	L.Push(MapToLuaTable(L, snap))
	return 1
}

func (m *BulbModule) dispatch(L *lua.LState, h *bulbHandle, ud *lua.LUserData, label string, args ...int) int {
	if err := m.controller.Dispatch(luaContext(L), h.name, label, "lua", args...); err != nil {
		return pushError(L, err)
	}
	L.Push(ud)
	return 1
}
