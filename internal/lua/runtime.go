// Package lua runs user scripts that drive bulbs through the bulb, events and
// log modules.
package lua

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	lua "github.com/yuin/gopher-lua"

	"github.com/dokzlo13/kl130d/internal/lua/modules"
)

// ErrRuntimeClosed is returned when the Lua runtime is closed
var ErrRuntimeClosed = fmt.Errorf("lua runtime closed")

// LuaWork represents work to be executed on the Lua VM.
// All Lua execution after LoadScript must go through Do or DoSync.
type LuaWork func(ctx context.Context)

// Runtime manages the Lua VM with single-threaded execution
type Runtime struct {
	L *lua.LState

	events *modules.EventsModule

	workQueue chan LuaWork

	// held by Run for its lifetime; Close takes it before closing L
	owner sync.Mutex

	closing   chan struct{}
	closeOnce sync.Once
}

// NewRuntime creates a Lua runtime whose bulb module drives controller
func NewRuntime(controller modules.Controller) *Runtime {
	L := lua.NewState()

	r := &Runtime{
		L:         L,
		events:    modules.NewEventsModule(),
		workQueue: make(chan LuaWork, 100),
		closing:   make(chan struct{}),
	}

	L.PreloadModule("log", modules.NewLogModule().Loader)
	L.PreloadModule("bulb", modules.NewBulbModule(controller).Loader)
	L.PreloadModule("events", r.events.Loader)

	return r
}

// Close signals the runtime to stop accepting new work, waits for Run to
// return and closes the Lua state.
func (r *Runtime) Close() {
	r.closeOnce.Do(func() {
		close(r.closing)
	})
	// workQueue stays open so late senders never panic; Run exits on closing.
	r.owner.Lock()
	defer r.owner.Unlock()
	r.L.Close()
}

// LoadScript executes the script at path on the calling goroutine. It must
// be called before Run.
func (r *Runtime) LoadScript(ctx context.Context, path string) error {
	log.Info().Str("path", path).Msg("Loading Lua script")

	r.L.SetContext(ctx)
	defer r.L.RemoveContext()

	if err := r.L.DoFile(path); err != nil {
		return fmt.Errorf("failed to execute Lua script: %w", err)
	}

	log.Info().Msg("Lua script loaded successfully")
	return nil
}

// DoString executes a chunk of Lua on the calling goroutine. It must not be
// used concurrently with Run.
func (r *Runtime) DoString(ctx context.Context, source string) error {
	r.L.SetContext(ctx)
	defer r.L.RemoveContext()
	return r.L.DoString(source)
}

// Events returns the events module holding script handlers.
func (r *Runtime) Events() *modules.EventsModule {
	return r.events
}

// FireCommand queues a call of the script's command handlers.
func (r *Runtime) FireCommand(ctx context.Context, data map[string]any) bool {
	if !r.events.HasHandlers() {
		return false
	}
	return r.Do(ctx, func(context.Context) {
		r.events.Fire(r.L, data)
	})
}

// Do queues work to be executed on the Lua VM without blocking.
// Returns false if the runtime is closing, the queue is full, or ctx is done.
func (r *Runtime) Do(ctx context.Context, work LuaWork) bool {
	select {
	case <-r.closing:
		log.Warn().Msg("Lua runtime closing, dropping work")
		return false
	case <-ctx.Done():
		log.Warn().Msg("Context cancelled, dropping Lua work")
		return false
	case r.workQueue <- work:
		return true
	default:
		log.Warn().Msg("Lua work queue full, dropping work")
		return false
	}
}

// DoSync queues work, waits for it to run and returns its error.
func (r *Runtime) DoSync(ctx context.Context, work func(context.Context) error) error {
	done := make(chan error, 1)
	wrapped := LuaWork(func(c context.Context) {
		done <- work(c)
	})

	select {
	case <-r.closing:
		return ErrRuntimeClosed
	case <-ctx.Done():
		return ctx.Err()
	case r.workQueue <- wrapped:
	}

	select {
	case <-r.closing:
		return ErrRuntimeClosed
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}

// Run is the only goroutine that touches the Lua state once started.
// Exits when ctx is cancelled or the runtime is closed.
func (r *Runtime) Run(ctx context.Context) {
	r.owner.Lock()
	defer r.owner.Unlock()

	select {
	case <-r.closing:
		return
	default:
	}

	for {
		select {
		case <-ctx.Done():
			r.drainQueue(ctx)
			return
		case <-r.closing:
			return
		case work := <-r.workQueue:
			r.executeWork(ctx, work)
		}
	}
}

func (r *Runtime) drainQueue(ctx context.Context) {
	for {
		select {
		case work := <-r.workQueue:
			r.executeWork(ctx, work)
		default:
			return
		}
	}
}

func (r *Runtime) executeWork(ctx context.Context, work LuaWork) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().
				Interface("panic", rec).
				Msg("Lua work panicked - worker continuing")
		}
	}()
	// modules reach the context through L.Context()
	r.L.SetContext(ctx)
	defer r.L.RemoveContext()
	work(ctx)
}
