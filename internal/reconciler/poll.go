package reconciler

import (
	"context"
	"time"
)

// runLoop is the generic ticking poll driver every per-kind lifecycle loop
// and the CertificateRequest loop run on. step returns true when it found
// and processed a row, so the driver can immediately re-poll on BusyInterval
// instead of waiting out a full PollInterval while a backlog drains.
func runLoop(ctx context.Context, cfg LoopConfig, step func(ctx context.Context) (bool, error), onErr func(error)) {
	interval := cfg.PollInterval
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		busy, err := step(ctx)
		if err != nil && onErr != nil {
			onErr(err)
		}

		if busy {
			interval = cfg.BusyInterval
		} else {
			interval = cfg.PollInterval
		}
		timer.Reset(interval)
	}
}
