// Package scheduler runs the pipeline's polling loops.
package scheduler

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Func is one polling cycle. Returned errors are logged and never stop the loop.
type Func func(ctx context.Context) error

// Poll runs fn immediately and then every interval until ctx is cancelled.
// Cycles never overlap: a cycle that outlasts the interval delays the next
// one instead of stacking up. Cancellation is observed between cycles.
func Poll(ctx context.Context, log logrus.FieldLogger, name string, interval time.Duration, fn Func) {
	log = log.WithField("loop", name)
	log.WithField("interval", interval.String()).Info("polling loop started")
	defer log.Info("polling loop stopped")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if ctx.Err() != nil {
			return
		}
		start := time.Now()
		if err := fn(ctx); err != nil && ctx.Err() == nil {
			log.WithError(err).Error("polling cycle failed")
		}
		log.WithField("duration_ms", time.Since(start).Milliseconds()).Debug("polling cycle finished")

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
