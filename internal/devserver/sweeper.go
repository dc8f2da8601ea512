package devserver

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/unitlink/unitlink/internal/storage"
)

// Sweeper marks units OFFLINE once they have been silent for longer than
// the threshold
type Sweeper struct {
	store     storage.Store
	server    *RESTServer
	threshold time.Duration
}

// NewSweeper creates a sweeper
func NewSweeper(store storage.Store, server *RESTServer, threshold time.Duration) *Sweeper {
	return &Sweeper{store: store, server: server, threshold: threshold}
}

// Run sweeps every half threshold until ctx is done
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.threshold / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep marks every silent unit OFFLINE and returns how many were marked
func (s *Sweeper) Sweep(ctx context.Context) int {
	devices, err := s.store.ListDevicesSeenBefore(ctx, s.server.now().Add(-s.threshold))
	if err != nil {
		log.Error().Err(err).Msg("Failed to list silent devices")
		return 0
	}

	marked := 0
	for _, d := range devices {
		if _, err := s.server.MarkOffline(ctx, d.ID); err != nil {
			log.Warn().Err(err).Str("device", d.Name).Msg("Failed to mark device offline")
			continue
		}
		log.Info().Str("device", d.Name).Time("last_seen", *d.LastSeen).Msg("Device silent, marked offline")
		marked++
	}
	return marked
}
