// Package reconnect restarts broken streams with capped exponential backoff.
// Auth failures are terminal: they surface to the user instead of retrying.
package reconnect

import (
	"context"
	"time"

	"github.com/yarsha/chatsync/internal/bus"
	"github.com/yarsha/chatsync/internal/stream"
	"go.uber.org/zap"
)

// A connection that stays up this long counts as healthy and resets the
// backoff ladder.
const healthyAfter = 30 * time.Second

// Supervisor reruns a connect function until the context ends or the session
// token is rejected.
type Supervisor struct {
	bus     *bus.Bus
	logger  *zap.Logger
	initial time.Duration
	max     time.Duration
}

// New creates a supervisor with the given backoff bounds.
func New(b *bus.Bus, logger *zap.Logger, initial, max time.Duration) *Supervisor {
	if initial <= 0 {
		initial = time.Second
	}
	if max < initial {
		max = initial
	}
	return &Supervisor{bus: b, logger: logger, initial: initial, max: max}
}

// Run drives connect in a loop. connect should block for the lifetime of one
// connection and return the error that broke it; a nil return is treated as
// a clean shutdown and ends the loop.
//
// On an auth error Run publishes a single session.invalidated event and
// stops. Everything else backs off and retries.
func (s *Supervisor) Run(ctx context.Context, name string, connect func(context.Context) error) error {
	delay := s.initial
	for {
		started := time.Now()
		err := connect(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err == nil {
			s.logger.Info("stream finished", zap.String("stream", name))
			return nil
		}
		if stream.IsAuthError(err) {
			s.logger.Warn("session invalidated, not reconnecting",
				zap.String("stream", name), zap.Error(err))
			s.bus.Publish(bus.Event{
				Kind:      bus.KindSessionInvalidated,
				Timestamp: time.Now(),
				Payload:   name,
			})
			return err
		}

		if time.Since(started) >= healthyAfter {
			delay = s.initial
		}
		s.logger.Warn("stream broke, reconnecting",
			zap.String("stream", name),
			zap.Duration("backoff", delay),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		delay *= 2
		if delay > s.max {
			delay = s.max
		}
	}
}
