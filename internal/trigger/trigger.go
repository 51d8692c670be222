// Package trigger delivers reading-created events to the reading
// processor, either in-process or through Kafka. Delivery is
// at-least-once and ordered per bin.
package trigger

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"

	"smartbin-backend/internal/metrics"
	"smartbin-backend/internal/models"
)

// Handler processes one event. Errors wrapping models.ErrTransientStore
// are retried; anything else is dropped with a warning.
type Handler func(ctx context.Context, evt models.ReadingCreated) error

// Retry policy defaults
const (
	DefaultMaxAttempts = 3
	DefaultBackoff     = 200 * time.Millisecond
)

var ErrClosed = errors.New("trigger is closed")

// deliver runs h with exponential backoff on transient failures. It
// returns the last error when every attempt failed or the error was not
// retryable.
func deliver(ctx context.Context, h Handler, evt models.ReadingCreated, maxAttempts int, backoff time.Duration, log zerolog.Logger) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Str("reading_id", evt.ReadingID).
				Msg("❌ Reading handler panic recovered")
			err = fmt.Errorf("reading handler panic: %v", r)
		}
	}()

	for attempt := 1; ; attempt++ {
		err = h(ctx, evt)
		if err == nil {
			return nil
		}
		if !models.IsRetryable(err) {
			log.Warn().
				Err(err).
				Str("reading_id", evt.ReadingID).
				Str("bin_id", evt.BinID).
				Msg("⚠️ Dropping reading-created event")
			return err
		}
		if attempt >= maxAttempts {
			log.Error().
				Err(err).
				Str("reading_id", evt.ReadingID).
				Str("bin_id", evt.BinID).
				Int("attempts", attempt).
				Msg("❌ Reading-created event failed after all retries")
			return err
		}

		wait := backoff << (attempt - 1)
		metrics.TriggerRetries.Inc()
		log.Warn().
			Err(err).
			Str("reading_id", evt.ReadingID).
			Int("attempt", attempt).
			Dur("backoff", wait).
			Msg("🔄 Retrying reading-created event")

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
