package app

import (
	"context"

	"github.com/dokzlo13/kl130d/internal/bulb"
	"github.com/dokzlo13/kl130d/internal/config"
	"github.com/dokzlo13/kl130d/internal/db"
	"github.com/dokzlo13/kl130d/internal/ledger"
	"github.com/dokzlo13/kl130d/internal/storage"
)

// Services is a container for all application services.
// It manages service initialization order and dependencies.
type Services struct {
	cfg *config.Config

	// Core infrastructure
	DB     *db.DB
	Ledger *ledger.Ledger
	Store  *storage.Store

	// High-level services
	Bulbs  *BulbService
	Poll   *PollService
	Lua    *LuaService
	API    *APIService
	Health *HealthService
}

// NewServices creates all services with proper dependency injection.
func NewServices(cfg *config.Config, opts ...bulb.Option) (*Services, error) {
	s := &Services{cfg: cfg}

	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	s.DB = database

	s.Ledger = ledger.New(database.DB)
	s.Store = storage.NewStore(database.DB)

	s.Bulbs, err = NewBulbService(cfg, s.Store, s.Ledger, opts...)
	if err != nil {
		s.Close()
		return nil, err
	}

	s.Poll = NewPollService(cfg, s.Bulbs.Dispatcher, s.Bulbs.Bus, s.Ledger)
	s.Lua = NewLuaService(cfg, s.Bulbs.Dispatcher, s.Bulbs.Bus)
	s.API = NewAPIService(cfg, s.Bulbs.Dispatcher, s.Ledger)
	s.Health = NewHealthService(cfg)

	return s, nil
}

// Start starts all services in the correct order.
func (s *Services) Start(ctx context.Context) error {
	if err := s.Bulbs.Start(ctx); err != nil {
		return err
	}

	// Script runs before pollers and the API so its handlers see every event
	if err := s.Lua.LoadScript(ctx); err != nil {
		return err
	}

	s.Lua.Start(ctx)
	s.Poll.Start(ctx)
	s.API.Start(ctx)
	s.Health.Start(ctx)
	s.Health.SetReady(true)

	return nil
}

// ClearState removes the metrics of every bulb.
func (s *Services) ClearState() error {
	return s.Store.Clear("")
}

// Stop gracefully stops all services.
func (s *Services) Stop() error {
	s.Close()
	return nil
}

// Close releases all resources.
func (s *Services) Close() {
	if s.Health != nil {
		s.Health.SetReady(false)
	}
	if s.Lua != nil {
		s.Lua.Close()
	}
	if s.Bulbs != nil {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.GetShutdownTimeout())
		s.Bulbs.Close(ctx)
		cancel()
	}
	if s.DB != nil {
		s.DB.Close()
	}
}
