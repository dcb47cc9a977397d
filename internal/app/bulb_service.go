package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/kl130d/internal/bulb"
	"github.com/dokzlo13/kl130d/internal/config"
	"github.com/dokzlo13/kl130d/internal/dispatch"
	"github.com/dokzlo13/kl130d/internal/eventbus"
	"github.com/dokzlo13/kl130d/internal/ledger"
	"github.com/dokzlo13/kl130d/internal/storage"
)

// BulbService owns the configured bulbs and the event bus their commands
// are announced on.
type BulbService struct {
	cfg        *config.Config
	Bus        *eventbus.Bus
	Dispatcher *dispatch.Dispatcher
}

// NewBulbService creates a client and device for every configured bulb.
func NewBulbService(cfg *config.Config, metrics storage.Metrics, l *ledger.Ledger, opts ...bulb.Option) (*BulbService, error) {
	bus := eventbus.NewWithConfig(cfg.EventBus.GetWorkers(), cfg.EventBus.GetQueueSize())

	d := dispatch.New(metrics,
		dispatch.WithRateLimit(cfg.Exchange.RateLimitRPS),
		dispatch.WithRecorder(l),
		dispatch.WithBus(bus),
	)

	for _, b := range cfg.Bulbs {
		clientOpts := append([]bulb.Option{bulb.WithTimeout(b.Timeout.Duration())}, opts...)
		client, err := bulb.NewClient(bulb.Endpoint{IP: b.IP, Port: b.Port}, clientOpts...)
		if err != nil {
			bus.Close(context.Background())
			return nil, fmt.Errorf("bulb %q: %w", b.Name, err)
		}
		if err := d.Add(bulb.NewDevice(b.Name, client, storage.Device(metrics, b.Name))); err != nil {
			bus.Close(context.Background())
			return nil, err
		}
	}

	return &BulbService{
		cfg:        cfg,
		Bus:        bus,
		Dispatcher: d,
	}, nil
}

// Start writes default metrics for every bulb.
func (s *BulbService) Start(ctx context.Context) error {
	if err := s.Dispatcher.Init(); err != nil {
		return err
	}

	for _, name := range s.Dispatcher.Names() {
		dev, _ := s.Dispatcher.Device(name)
		log.Info().
			Str("device", name).
			Stringer("endpoint", dev.Client().Endpoint()).
			Dur("timeout", dev.Client().Timeout()).
			Msg("Bulb registered")
	}
	return nil
}

// Close stops the event bus, waiting for queued handlers until ctx is done.
func (s *BulbService) Close(ctx context.Context) {
	s.Bus.Close(ctx)
}
