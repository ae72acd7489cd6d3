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

func TestAdvanceCertificateRequestEnsuresClusterCertificate(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	m := testMetrics(t)
	coll := testutil.NewFakeCluster()

	bb, err := store.InsertBackbone(ctx, s.DB(), "certreq-backbone-test", false)
	require.NoError(t, err)
	req, err := store.InsertCertificateRequest(ctx, s.DB(), models.CertRequestBackbone, bb.ID, nil, DurationBackboneCA, time.Now().Add(-time.Second))
	require.NoError(t, err)

	processed, err := advanceCertificateRequest(ctx, s, coll, "vanctl", time.Now, m)
	require.NoError(t, err)
	require.True(t, processed)

	got, err := store.GetCertificateRequest(ctx, s.DB(), req.ID)
	require.NoError(t, err)
	require.Equal(t, models.LifecycleCmCertCreated, got.Lifecycle)

	status, err := coll.GetCertificateStatus(ctx, certObjectName(req.ID), "vanctl")
	require.NoError(t, err)
	require.True(t, status.Ready, "FakeCluster defaults to AutoReady")
}

func TestAdvanceCertificateRequestSkipsFutureRequestTime(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	m := testMetrics(t)
	coll := testutil.NewFakeCluster()

	bb, err := store.InsertBackbone(ctx, s.DB(), "certreq-future-test", false)
	require.NoError(t, err)
	_, err = store.InsertCertificateRequest(ctx, s.DB(), models.CertRequestBackbone, bb.ID, nil, DurationBackboneCA, time.Now().Add(time.Hour))
	require.NoError(t, err)

	processed, err := advanceCertificateRequest(ctx, s, coll, "vanctl", time.Now, m)
	require.NoError(t, err)
	require.False(t, processed)
}
