package reconciler

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/fabricpilot/vanctl/internal/config"
	"github.com/fabricpilot/vanctl/internal/store"
	"github.com/fabricpilot/vanctl/internal/store/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	dsn := os.Getenv("VANCTL_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("VANCTL_TEST_DATABASE_URL not set, skipping reconciler integration test")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s, err := store.Open(ctx, config.DatabaseConfig{DSN: dsn})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testMetrics(t *testing.T) *Metrics {
	t.Helper()
	return NewMetrics(prometheus.NewRegistry())
}

func TestAdvanceBackboneRaisesRootCertificateRequest(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	m := testMetrics(t)

	bb, err := store.InsertBackbone(ctx, s.DB(), "advance-backbone-test", false)
	require.NoError(t, err)

	processed, err := advanceBackbone(ctx, s, m)
	require.NoError(t, err)
	require.True(t, processed)

	got, err := store.GetBackbone(ctx, s.DB(), bb.ID)
	require.NoError(t, err)
	require.Equal(t, models.LifecycleSkxCrCreated, got.Lifecycle)

	reqs, err := store.ListPendingCertificateRequestsByTarget(ctx, s.DB(), bb.ID)
	require.NoError(t, err)
	require.Len(t, reqs, 1)
	require.Equal(t, models.CertRequestBackbone, reqs[0].Kind)
	require.Nil(t, reqs[0].IssuerID)
	require.Equal(t, DurationBackboneCA, reqs[0].Duration)
}

func TestAdvanceInteriorSiteWaitsForBackboneCertificate(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	m := testMetrics(t)

	bb, err := store.InsertBackbone(ctx, s.DB(), "wait-backbone-test", false)
	require.NoError(t, err)
	site, err := store.InsertInteriorSite(ctx, s.DB(), bb.ID, "wait-site-test", "kube")
	require.NoError(t, err)

	processed, err := advanceInteriorSite(ctx, s, m)
	require.NoError(t, err)
	require.False(t, processed, "site should stay at 'new' until its backbone has a certificate")

	got, err := store.GetInteriorSite(ctx, s.DB(), site.ID)
	require.NoError(t, err)
	require.Equal(t, models.LifecycleNew, got.Lifecycle)

	cert, err := store.InsertTlsCertificate(ctx, s.DB(), "cert-root-"+bb.ID, true, nil, time.Now().Add(DurationBackboneCA), time.Now().Add(DurationBackboneCA/2))
	require.NoError(t, err)
	require.NoError(t, store.SetBackboneCertificate(ctx, s.DB(), bb.ID, cert.ID))

	processed, err = advanceInteriorSite(ctx, s, m)
	require.NoError(t, err)
	require.True(t, processed)

	got, err = store.GetInteriorSite(ctx, s.DB(), site.ID)
	require.NoError(t, err)
	require.Equal(t, models.LifecycleSkxCrCreated, got.Lifecycle)

	reqs, err := store.ListPendingCertificateRequestsByTarget(ctx, s.DB(), site.ID)
	require.NoError(t, err)
	require.Len(t, reqs, 1)
	require.Equal(t, cert.ID, *reqs[0].IssuerID)
}
