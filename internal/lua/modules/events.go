package modules

import (
	"github.com/rs/zerolog/log"
	lua "github.com/yuin/gopher-lua"
)

// EventsModule lets scripts react to finished commands.
//
//	local events = require("events")
//	events.on_command(function(ev)
//	    if ev.error then log.warn("Command failed", ev) end
//	end)
//
// Handlers are stored in the Lua state and must only be invoked from the
// goroutine that owns it.
type EventsModule struct {
	handlers []*lua.LFunction
}

// NewEventsModule creates a new events module
func NewEventsModule() *EventsModule {
	return &EventsModule{}
}

// Loader is the module loader for Lua
func (m *EventsModule) Loader(L *lua.LState) int {
	mod := L.NewTable()
	L.SetField(mod, "on_command", L.NewFunction(m.onCommand))
	L.Push(mod)
	return 1
}

// HasHandlers reports whether a script registered any handler.
func (m *EventsModule) HasHandlers() bool {
	return len(m.handlers) > 0
}

// events.on_command(fn)
func (m *EventsModule) onCommand(L *lua.LState) int {
	m.handlers = append(m.handlers, L.CheckFunction(1))
	return 0
}

// Fire calls every handler with data as a table. A failing handler is logged
// and does not stop the rest.
func (m *EventsModule) Fire(L *lua.LState, data map[string]any) {
	for _, fn := range m.handlers {
		err := L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}, MapToLuaTable(L, data))
		if err != nil {
			log.Error().Err(err).Interface("event", data).Msg("Lua event handler failed")
		}
	}
}
