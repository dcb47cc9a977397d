package app

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/kl130d/internal/config"
	"github.com/dokzlo13/kl130d/internal/dispatch"
	"github.com/dokzlo13/kl130d/internal/eventbus"
	"github.com/dokzlo13/kl130d/internal/ledger"
)

// PollService periodically queries every bulb and prunes the ledger.
type PollService struct {
	cfg        *config.Config
	dispatcher *dispatch.Dispatcher
	bus        *eventbus.Bus
	ledger     *ledger.Ledger
}

// NewPollService creates a new PollService.
func NewPollService(cfg *config.Config, d *dispatch.Dispatcher, bus *eventbus.Bus, l *ledger.Ledger) *PollService {
	return &PollService{
		cfg:        cfg,
		dispatcher: d,
		bus:        bus,
		ledger:     l,
	}
}

// Start subscribes the query handler and begins the periodic tasks.
func (s *PollService) Start(ctx context.Context) {
	s.bus.Subscribe(eventbus.EventTypePoll, func(event eventbus.Event) {
		// failures are logged and recorded by the dispatcher
		_, _ = s.dispatcher.Query(ctx, event.Device(), "poll")
	})

	if interval := s.cfg.Poll.Interval.Duration(); interval > 0 {
		log.Info().Dur("interval", interval).Msg("Status polling enabled")
		go s.runPoll(ctx, interval)
	} else {
		log.Info().Msg("Status polling is disabled")
	}

	go s.runLedgerCleanup(ctx)
}

// PollOnce publishes a poll event for every bulb.
func (s *PollService) PollOnce() int {
	queued := 0
	for _, name := range s.dispatcher.Names() {
		queued += s.bus.Publish(eventbus.Event{
			Type: eventbus.EventTypePoll,
			Data: map[string]any{"device": name},
		})
	}
	return queued
}

func (s *PollService) runPoll(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.PollOnce()
		}
	}
}

// runLedgerCleanup periodically removes ledger entries past retention.
func (s *PollService) runLedgerCleanup(ctx context.Context) {
	retention := s.cfg.Ledger.Retention()
	interval := s.cfg.Ledger.CleanupInterval.Duration()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := s.ledger.DeleteOlderThan(retention)
			if err != nil {
				log.Error().Err(err).Msg("Failed to cleanup old ledger entries")
			} else if deleted > 0 {
				log.Info().Int64("deleted", deleted).Dur("retention", retention).Msg("Cleaned up old ledger entries")
			}
		}
	}
}
