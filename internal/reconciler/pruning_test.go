package reconciler

import (
	"context"
	"testing"
	"time"

	"github.com/fabricpilot/vanctl/internal/store"
	"github.com/fabricpilot/vanctl/internal/store/models"
	"github.com/fabricpilot/vanctl/internal/testutil"

	"github.com/stretchr/testify/require"
)

func TestPruneExpiredCertificatesRaisesRenewalRequest(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	m := testMetrics(t)

	bb, err := store.InsertBackbone(ctx, s.DB(), "prune-renewal-backbone-test", false)
	require.NoError(t, err)
	cert, err := store.InsertTlsCertificate(ctx, s.DB(), "cert-prune-renewal-test", true, nil, time.Now().Add(time.Hour), time.Now().Add(-time.Minute))
	require.NoError(t, err)
	require.NoError(t, store.SetBackboneCertificate(ctx, s.DB(), bb.ID, cert.ID))

	pruned, err := pruneExpiredCertificates(ctx, s, time.Now, m)
	require.NoError(t, err)
	require.Equal(t, 1, pruned)

	reqs, err := store.ListPendingCertificateRequestsByTarget(ctx, s.DB(), bb.ID)
	require.NoError(t, err)
	require.Len(t, reqs, 1)
	require.Equal(t, models.CertRequestBackbone, reqs[0].Kind)
}

func TestPruneOrphanedCertificateRequestsDeletesDanglingRequest(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	m := testMetrics(t)
	coll := testutil.NewFakeCluster()

	bb, err := store.InsertBackbone(ctx, s.DB(), "prune-orphan-backbone-test", false)
	require.NoError(t, err)
	site, err := store.InsertInteriorSite(ctx, s.DB(), bb.ID, "prune-orphan-site-test", "kube")
	require.NoError(t, err)
	ap, err := store.InsertAccessPoint(ctx, s.DB(), site.ID, models.AccessPointPeer, "0.0.0.0", nil, nil)
	require.NoError(t, err)
	req, err := store.InsertCertificateRequest(ctx, s.DB(), models.CertRequestAccessPoint, ap.ID, nil, DurationAccessPoint, time.Now())
	require.NoError(t, err)

	require.NoError(t, store.DeleteAccessPoint(ctx, s.DB(), ap.ID))

	pruned, err := pruneOrphanedCertificateRequests(ctx, s, coll, "vanctl", m)
	require.NoError(t, err)
	require.Equal(t, 1, pruned)

	_, err = store.GetCertificateRequest(ctx, s.DB(), req.ID)
	require.Error(t, err)
}

func TestPruneUnreferencedCertificatesDeletesDeadLeaf(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	m := testMetrics(t)
	coll := testutil.NewFakeCluster()

	cert, err := store.InsertTlsCertificate(ctx, s.DB(), "cert-dead-leaf-test", false, nil, time.Now().Add(time.Hour), time.Now().Add(time.Minute))
	require.NoError(t, err)

	pruned, err := pruneUnreferencedCertificates(ctx, s, coll, "vanctl", m)
	require.NoError(t, err)
	require.Equal(t, 1, pruned)

	_, err = store.GetTlsCertificate(ctx, s.DB(), cert.ID)
	require.Error(t, err)
}
