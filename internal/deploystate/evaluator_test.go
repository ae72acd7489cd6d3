package deploystate

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/fabricpilot/vanctl/internal/config"
	"github.com/fabricpilot/vanctl/internal/store"
	"github.com/fabricpilot/vanctl/internal/store/models"

	"github.com/stretchr/testify/require"
)

// openTestStore mirrors internal/store's env-gated integration pattern
// (VANCTL_TEST_DATABASE_URL); these tests exercise real multi-table joins
// the evaluator issues and are not worth faking with an in-memory stand-in.
func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	dsn := os.Getenv("VANCTL_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("VANCTL_TEST_DATABASE_URL not set, skipping deploystate integration test")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s, err := store.Open(ctx, config.DatabaseConfig{DSN: dsn})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestEvaluateNotReadyByDefault(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	bb, err := store.InsertBackbone(ctx, s.Queryer(), "deploystate-bb-1", false)
	require.NoError(t, err)
	site, err := store.InsertInteriorSite(ctx, s.Queryer(), bb.ID, "site-1", "kube")
	require.NoError(t, err)

	state, err := Evaluate(ctx, s.Queryer(), site)
	require.NoError(t, err)
	require.Equal(t, models.DeploymentNotReady, state)
}

func TestEvaluateReadyBootstrapWithManageAP(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	bb, err := store.InsertBackbone(ctx, s.Queryer(), "deploystate-bb-2", false)
	require.NoError(t, err)
	site, err := store.InsertInteriorSite(ctx, s.Queryer(), bb.ID, "site-2", "kube")
	require.NoError(t, err)
	require.NoError(t, store.UpdateInteriorSiteLifecycle(ctx, s.Queryer(), site.ID, models.LifecycleReady))
	site.Lifecycle = models.LifecycleReady

	host, port := "ap.example.com", "55671"
	_, err = store.InsertAccessPoint(ctx, s.Queryer(), site.ID, models.AccessPointManage, "0.0.0.0", &host, &port)
	require.NoError(t, err)

	state, err := Evaluate(ctx, s.Queryer(), site)
	require.NoError(t, err)
	require.Equal(t, models.DeploymentReadyBootstrap, state)
}

func TestEvaluateActiveCascadesIntoUpstreamLinks(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	bb, err := store.InsertBackbone(ctx, s.Queryer(), "deploystate-bb-3", false)
	require.NoError(t, err)

	downstream, err := store.InsertInteriorSite(ctx, s.Queryer(), bb.ID, "downstream", "kube")
	require.NoError(t, err)
	require.NoError(t, store.UpdateInteriorSiteLifecycle(ctx, s.Queryer(), downstream.ID, models.LifecycleActive))
	downstream.Lifecycle = models.LifecycleActive

	upstream, err := store.InsertInteriorSite(ctx, s.Queryer(), bb.ID, "upstream", "kube")
	require.NoError(t, err)
	require.NoError(t, store.UpdateInteriorSiteLifecycle(ctx, s.Queryer(), upstream.ID, models.LifecycleReady))
	upstream.Lifecycle = models.LifecycleReady

	host, port := "peer.example.com", "55671"
	ap, err := store.InsertAccessPoint(ctx, s.Queryer(), downstream.ID, models.AccessPointPeer, "0.0.0.0", &host, &port)
	require.NoError(t, err)
	_, err = store.InsertInterRouterLink(ctx, s.Queryer(), upstream.ID, ap.ID, 1)
	require.NoError(t, err)

	_, err = Evaluate(ctx, s.Queryer(), downstream)
	require.NoError(t, err)

	reloadedUpstream, err := store.GetInteriorSite(ctx, s.Queryer(), upstream.ID)
	require.NoError(t, err)
	require.Equal(t, models.DeploymentReadyAutomatic, reloadedUpstream.DeploymentState)
}
