package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fabricpilot/vanctl/internal/config"
	"github.com/fabricpilot/vanctl/internal/store"
	"github.com/fabricpilot/vanctl/internal/store/models"

	"github.com/briandowns/spinner"
	"github.com/jedib0t/go-pretty/v6/table"
)

// openStore loads vanctl.yaml the same way vanctl-controller does and opens
// a store.Store against its database. Each command opens and closes its own
// handle; this is a one-shot CLI, not a long-lived daemon.
func openStore(ctx context.Context) (*store.Store, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	return store.Open(ctx, cfg.Database)
}

func newTable() table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleRounded)
	return t
}

// waitForLifecycle polls fn every interval, showing a spinner, until it
// reports models.LifecycleReady or models.LifecycleActive (returns nil),
// models.LifecycleFailed (returns an error carrying the failure text), or
// ctx is done (returns ctx.Err()). It mirrors §4.5's reconcile loop from the CLI's side: nothing here
// mutates state, it only watches the rows a background reconciler advances.
func waitForLifecycle(ctx context.Context, label string, interval time.Duration, fn func(ctx context.Context) (models.Lifecycle, string, error)) error {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Suffix = " " + label
	s.Start()
	defer s.Stop()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		lc, failureText, err := fn(ctx)
		if err != nil {
			return err
		}
		switch lc {
		case models.LifecycleReady, models.LifecycleActive:
			return nil
		case models.LifecycleFailed:
			return fmt.Errorf("%s failed: %s", label, failureText)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
