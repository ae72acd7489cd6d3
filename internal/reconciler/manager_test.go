package reconciler

import (
	"context"
	"testing"
	"time"

	"github.com/fabricpilot/vanctl/internal/store"
	"github.com/fabricpilot/vanctl/internal/store/models"
	"github.com/fabricpilot/vanctl/internal/testutil"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestManagerDrivesBackboneToReady(t *testing.T) {
	s := openTestStore(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	coll := testutil.NewFakeCluster()
	mgr := New(s, coll, "vanctl", nil, nil, NewMetrics(prometheus.NewRegistry()))
	mgr.loopCfg = LoopConfig{PollInterval: 20 * time.Millisecond, BusyInterval: 5 * time.Millisecond}

	bb, err := store.InsertBackbone(context.Background(), s.DB(), "manager-smoke-backbone-test", false)
	require.NoError(t, err)

	mgr.Start(ctx)
	defer mgr.Stop()

	require.Eventually(t, func() bool {
		got, err := store.GetBackbone(context.Background(), s.DB(), bb.ID)
		return err == nil && got.Lifecycle == models.LifecycleReady
	}, 4*time.Second, 20*time.Millisecond, "backbone should reach ready via the lifecycle+certrequest+finalizer loops")
}
