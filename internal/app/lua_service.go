package app

import (
	"context"

	"github.com/dokzlo13/kl130d/internal/config"
	"github.com/dokzlo13/kl130d/internal/dispatch"
	"github.com/dokzlo13/kl130d/internal/eventbus"
	luart "github.com/dokzlo13/kl130d/internal/lua"
)

// LuaService wraps the Lua runtime and provides thread-safe execution.
type LuaService struct {
	cfg     *config.Config
	Runtime *luart.Runtime
	bus     *eventbus.Bus
}

// NewLuaService creates a new LuaService.
func NewLuaService(cfg *config.Config, d *dispatch.Dispatcher, bus *eventbus.Bus) *LuaService {
	return &LuaService{
		cfg:     cfg,
		Runtime: luart.NewRuntime(d),
		bus:     bus,
	}
}

// Enabled reports whether a script is configured.
func (s *LuaService) Enabled() bool {
	return s.cfg.Script != ""
}

// LoadScript runs the configured script. Must be called before Start().
func (s *LuaService) LoadScript(ctx context.Context) error {
	if !s.Enabled() {
		return nil
	}
	return s.Runtime.LoadScript(ctx, s.cfg.Script)
}

// Start begins the Lua worker goroutine and forwards command events to the
// script's handlers.
func (s *LuaService) Start(ctx context.Context) {
	if !s.Enabled() {
		return
	}

	go s.Runtime.Run(ctx)

	if !s.Runtime.Events().HasHandlers() {
		return
	}
	s.bus.Subscribe(eventbus.EventTypeCommand, func(event eventbus.Event) {
		// commands issued by scripts are not echoed back to them
		if event.Data["source"] == "lua" {
			return
		}
		s.Runtime.FireCommand(ctx, event.Data)
	})
}

// Close closes the Lua runtime.
func (s *LuaService) Close() {
	if s.Runtime != nil {
		s.Runtime.Close()
	}
}
