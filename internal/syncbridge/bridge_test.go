package syncbridge

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/fabricpilot/vanctl/internal/config"
	"github.com/fabricpilot/vanctl/internal/statesync"
	"github.com/fabricpilot/vanctl/internal/store"
	"github.com/fabricpilot/vanctl/internal/store/models"
	"github.com/fabricpilot/vanctl/internal/testutil"

	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	dsn := os.Getenv("VANCTL_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("VANCTL_TEST_DATABASE_URL not set, skipping syncbridge integration test")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s, err := store.Open(ctx, config.DatabaseConfig{DSN: dsn})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOnNewPeerBackboneSiteTransitionsReadyToActive(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	fc := testutil.NewFakeCluster()
	bridge := New(s, fc, "vanctl", nil)

	bb, err := store.InsertBackbone(ctx, s.Queryer(), "syncbridge-bb-1", false)
	require.NoError(t, err)
	site, err := store.InsertInteriorSite(ctx, s.Queryer(), bb.ID, "site-1", "kube")
	require.NoError(t, err)
	require.NoError(t, store.UpdateInteriorSiteLifecycle(ctx, s.Queryer(), site.ID, models.LifecycleReady))

	local, remote, err := bridge.OnNewPeer(ctx, site.ID, statesync.ClassBackbone)
	require.NoError(t, err)
	require.Contains(t, local, "tls-site-"+site.ID)
	require.Empty(t, remote) // no ready APs on this fresh site

	reloaded, err := store.GetInteriorSite(ctx, s.Queryer(), site.ID)
	require.NoError(t, err)
	require.Equal(t, models.LifecycleActive, reloaded.Lifecycle)
	require.NotNil(t, reloaded.FirstActiveTime)
}

func TestOnStateChangePromotesPartialAccessPoint(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	fc := testutil.NewFakeCluster()
	bridge := New(s, fc, "vanctl", nil)

	bb, err := store.InsertBackbone(ctx, s.Queryer(), "syncbridge-bb-2", false)
	require.NoError(t, err)
	site, err := store.InsertInteriorSite(ctx, s.Queryer(), bb.ID, "site-2", "kube")
	require.NoError(t, err)
	ap, err := store.InsertAccessPoint(ctx, s.Queryer(), site.ID, models.AccessPointPeer, "0.0.0.0", nil, nil)
	require.NoError(t, err)
	require.Equal(t, models.LifecyclePartial, ap.Lifecycle)

	hash := "H1"
	bridge.OnStateChange(ctx, site.ID, "accessstatus-"+ap.ID, &hash, []byte(`{"host":"ap.example.com","port":"55671"}`))

	reloaded, err := store.GetAccessPoint(ctx, s.Queryer(), ap.ID)
	require.NoError(t, err)
	require.Equal(t, models.LifecycleNew, reloaded.Lifecycle)
	require.NotNil(t, reloaded.Host)
	require.Equal(t, "ap.example.com", *reloaded.Host)
}

func TestOnStateRequestAccessPointReturnsKindPayload(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	fc := testutil.NewFakeCluster()
	bridge := New(s, fc, "vanctl", nil)

	bb, err := store.InsertBackbone(ctx, s.Queryer(), "syncbridge-bb-3", false)
	require.NoError(t, err)
	site, err := store.InsertInteriorSite(ctx, s.Queryer(), bb.ID, "site-3", "kube")
	require.NoError(t, err)
	ap, err := store.InsertAccessPoint(ctx, s.Queryer(), site.ID, models.AccessPointClaim, "0.0.0.0", nil, nil)
	require.NoError(t, err)

	hash, data, err := bridge.OnStateRequest(ctx, site.ID, "access-"+ap.ID)
	require.NoError(t, err)
	require.NotEmpty(t, hash)
	require.Contains(t, string(data), `"claim"`)
}
