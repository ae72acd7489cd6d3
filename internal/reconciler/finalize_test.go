package reconciler

import (
	"context"
	"testing"
	"time"

	"github.com/fabricpilot/vanctl/internal/cluster"
	"github.com/fabricpilot/vanctl/internal/store"
	"github.com/fabricpilot/vanctl/internal/store/models"
	"github.com/fabricpilot/vanctl/internal/testutil"

	"github.com/stretchr/testify/require"
)

func TestHandleCertificateEventFinalizesReadyRequest(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	m := testMetrics(t)
	coll := testutil.NewFakeCluster()

	bb, err := store.InsertBackbone(ctx, s.DB(), "finalize-backbone-test", false)
	require.NoError(t, err)
	req, err := store.InsertCertificateRequest(ctx, s.DB(), models.CertRequestBackbone, bb.ID, nil, DurationBackboneCA, time.Now().Add(-time.Second))
	require.NoError(t, err)

	processed, err := advanceCertificateRequest(ctx, s, coll, "vanctl", time.Now, m)
	require.NoError(t, err)
	require.True(t, processed)

	err = handleCertificateEvent(ctx, s, coll, "vanctl", certObjectName(req.ID), nil, nil, m)
	require.NoError(t, err)

	_, err = store.GetCertificateRequest(ctx, s.DB(), req.ID)
	require.Error(t, err, "request should be deleted once finalized")

	got, err := store.GetBackbone(ctx, s.DB(), bb.ID)
	require.NoError(t, err)
	require.Equal(t, models.LifecycleReady, got.Lifecycle)
	require.NotNil(t, got.CertificateID)

	cert, err := store.GetTlsCertificate(ctx, s.DB(), *got.CertificateID)
	require.NoError(t, err)
	require.True(t, cert.IsCA)
	require.Nil(t, cert.SignedBy)
}

func TestHandleCertificateEventMarksEntityFailed(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	m := testMetrics(t)
	coll := testutil.NewFakeCluster()
	coll.AutoReady = false

	bb, err := store.InsertBackbone(ctx, s.DB(), "finalize-fail-backbone-test", false)
	require.NoError(t, err)
	req, err := store.InsertCertificateRequest(ctx, s.DB(), models.CertRequestBackbone, bb.ID, nil, DurationBackboneCA, time.Now().Add(-time.Second))
	require.NoError(t, err)

	processed, err := advanceCertificateRequest(ctx, s, coll, "vanctl", time.Now, m)
	require.NoError(t, err)
	require.True(t, processed)

	coll.FailCertificate(certObjectName(req.ID), "vanctl", "issuer rejected request")

	err = handleCertificateEvent(ctx, s, coll, "vanctl", certObjectName(req.ID), nil, nil, m)
	require.NoError(t, err)

	_, err = store.GetCertificateRequest(ctx, s.DB(), req.ID)
	require.Error(t, err)

	got, err := store.GetBackbone(ctx, s.DB(), bb.ID)
	require.NoError(t, err)
	require.Equal(t, models.LifecycleFailed, got.Lifecycle)
	require.NotNil(t, got.FailureText)
	require.Equal(t, "issuer rejected request", *got.FailureText)
}

func TestHandleCertificateEventRefreshesExistingRenewal(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	coll := testutil.NewFakeCluster()

	objectName := "cert-renewal-test-object"
	cert, err := store.InsertTlsCertificate(ctx, s.DB(), objectName, true, nil, time.Now().Add(time.Hour), time.Now().Add(-time.Minute))
	require.NoError(t, err)

	// Drive the fake collaborator's status for this object directly via
	// EnsureCertificate + CompleteCertificate, since no CertificateRequest
	// ever existed for it (it's simulating cert-manager's own renewal).
	require.NoError(t, coll.EnsureCertificate(ctx, cluster.CertificateSpec{ObjectName: objectName, Namespace: "vanctl", Duration: DurationBackboneCA}))
	coll.CompleteCertificate(objectName, "vanctl", DurationBackboneCA)

	err = handleCertificateEvent(ctx, s, coll, "vanctl", objectName, nil, nil, nil)
	require.NoError(t, err)

	got, err := store.GetTlsCertificate(ctx, s.DB(), cert.ID)
	require.NoError(t, err)
	require.True(t, got.RenewalTime.After(time.Now()))
}
