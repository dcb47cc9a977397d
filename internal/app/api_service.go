package app

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/kl130d/internal/api"
	"github.com/dokzlo13/kl130d/internal/config"
	"github.com/dokzlo13/kl130d/internal/dispatch"
	"github.com/dokzlo13/kl130d/internal/ledger"
)

// APIService runs the HTTP control API.
type APIService struct {
	cfg    *config.Config
	server *api.Server
}

// NewAPIService creates a new APIService.
func NewAPIService(cfg *config.Config, d *dispatch.Dispatcher, l *ledger.Ledger) *APIService {
	return &APIService{
		cfg:    cfg,
		server: api.NewServer(cfg.API.Host, cfg.API.Port, d, l),
	}
}

// Start begins the API server if enabled.
func (s *APIService) Start(ctx context.Context) {
	if !s.cfg.API.Enabled {
		log.Info().Msg("API server is disabled")
		return
	}

	go func() {
		if err := s.server.Run(ctx, s.cfg.GetShutdownTimeout()); err != nil {
			log.Error().Err(err).Msg("API server error")
		}
	}()
}
