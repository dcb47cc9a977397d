package lua

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	lua "github.com/yuin/gopher-lua"

	"github.com/dokzlo13/kl130d/internal/bulb"
	"github.com/dokzlo13/kl130d/internal/bulb/bulbtest"
	"github.com/dokzlo13/kl130d/internal/dispatch"
	"github.com/dokzlo13/kl130d/internal/storage"
)

func newRuntime(t *testing.T) (*Runtime, *dispatch.Dispatcher, *bulbtest.Transport) {
	t.Helper()
	metrics := storage.NewMemory()
	d := dispatch.New(metrics)
	dev, tr := bulbtest.NewDevice(t, "desk", storage.Device(metrics, "desk"))
	require.NoError(t, d.Add(dev))
	require.NoError(t, d.Init())

	r := NewRuntime(d)
	t.Cleanup(r.Close)
	return r, d, tr
}

func TestRuntime_BulbModule(t *testing.T) {
	r, d, tr := newRuntime(t)
	tr.SetPower(bulbtest.Bool(false))

	err := r.DoString(context.Background(), `
		local bulb = require("bulb")
		local desk = assert(bulb.get("desk"))
		assert(desk:name() == "desk")
		assert(desk:on():color(255, 136, 0))

		local state = desk:state()
		assert(state["metrics:level"] == "on", "level")
		assert(state["metrics:color:g"] == 136, "green")

		level = assert(desk:update())
		names = bulb.names()
	`)
	require.NoError(t, err)

	assert.Equal(t, lua.LString("off"), r.L.GetGlobal("level"))
	names := r.L.GetGlobal("names").(*lua.LTable)
	assert.Equal(t, lua.LString("desk"), names.RawGetInt(1))

	snap, err := d.Snapshot("desk")
	require.NoError(t, err)
	assert.Equal(t, "off", snap[bulb.PathLevel])
	assert.Len(t, tr.Commands(), 3)
}

func TestRuntime_ErrorsAreReturned(t *testing.T) {
	r, _, tr := newRuntime(t)

	err := r.DoString(context.Background(), `
		local bulb = require("bulb")
		missing, missingErr = bulb.get("garage")

		local desk = bulb.get("desk")
		sent, sendErr = desk:send("toggle")
		_, colorErr = desk:color(300, 0, 0)
		_, hexErr = desk:hex("#nothex")
	`)
	require.NoError(t, err)

	assert.Equal(t, lua.LNil, r.L.GetGlobal("missing"))
	assert.Contains(t, r.L.GetGlobal("missingErr").String(), "unknown device")
	assert.Equal(t, lua.LNil, r.L.GetGlobal("sent"))
	assert.Contains(t, r.L.GetGlobal("sendErr").String(), "unrecognized command")
	assert.NotEqual(t, lua.LNil, r.L.GetGlobal("colorErr"))
	assert.NotEqual(t, lua.LNil, r.L.GetGlobal("hexErr"))
	assert.Empty(t, tr.Commands())
}

func TestRuntime_UpdateWithoutPower(t *testing.T) {
	r, _, _ := newRuntime(t)

	err := r.DoString(context.Background(), `
		local desk = require("bulb").get("desk")
		level, err = desk:update()
	`)
	require.NoError(t, err)
	assert.Equal(t, lua.LNil, r.L.GetGlobal("level"))
	assert.Equal(t, lua.LNil, r.L.GetGlobal("err"))
}

func TestRuntime_LoadScriptAndEvents(t *testing.T) {
	r, _, _ := newRuntime(t)

	path := filepath.Join(t.TempDir(), "script.lua")
	require.NoError(t, os.WriteFile(path, []byte(`
		local events = require("events")
		local log = require("log")
		seen = 0
		events.on_command(function(ev)
			log.info("command finished", ev)
			seen = seen + 1
			last = ev.device .. ":" .. ev.command
		end)
	`), 0o600))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, r.LoadScript(ctx, path))
	require.True(t, r.Events().HasHandlers())

	go r.Run(ctx)
	require.True(t, r.FireCommand(ctx, map[string]any{"device": "desk", "command": "on"}))

	var last string
	require.Eventually(t, func() bool {
		err := r.DoSync(ctx, func(context.Context) error {
			last = r.L.GetGlobal("last").String()
			return nil
		})
		return err == nil && last == "desk:on"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRuntime_LoadScriptError(t *testing.T) {
	r, _, _ := newRuntime(t)

	err := r.LoadScript(context.Background(), filepath.Join(t.TempDir(), "missing.lua"))
	assert.Error(t, err)
}

func TestRuntime_CloseWaitsForRunningWork(t *testing.T) {
	r, _, _ := newRuntime(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	started := make(chan struct{})
	var finished atomic.Bool
	require.True(t, r.Do(ctx, func(context.Context) {
		close(started)
		time.Sleep(100 * time.Millisecond)
		finished.Store(true)
	}))

	<-started
	cancel()
	r.Close()
	assert.True(t, finished.Load(), "Close returned while work still held the Lua state")

	assert.False(t, r.Do(context.Background(), func(context.Context) {}))
}

func TestRuntime_RunAfterClose(t *testing.T) {
	r, _, _ := newRuntime(t)
	r.Close()

	done := make(chan struct{})
	go func() {
		r.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return on a closed runtime")
	}
}
