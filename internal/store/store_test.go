package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/fabricpilot/vanctl/internal/apperr"
	"github.com/fabricpilot/vanctl/internal/config"
	"github.com/fabricpilot/vanctl/internal/store/models"

	"github.com/stretchr/testify/require"
)

// testDSN returns the connection string for a throwaway Postgres instance,
// skipping the test when it isn't configured. Mirrors the env-var-gated
// integration test pattern used for the SQL backend this package's driver
// stack is grounded on: set VANCTL_TEST_DATABASE_URL to run these against a
// real server.
//
//	VANCTL_TEST_DATABASE_URL='postgres:///vanctl_test?sslmode=disable' go test ./internal/store/...
func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("VANCTL_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("VANCTL_TEST_DATABASE_URL not set, skipping store integration test")
	}
	return dsn
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := testDSN(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s, err := Open(ctx, config.DatabaseConfig{DSN: dsn})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestWithTxRollsBackOnError(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	boom := apperr.Validation("synthetic failure")
	err := s.WithTx(ctx, func(tx *Tx) error {
		_, insertErr := InsertBackbone(ctx, tx.Queryer(), "rollback-test-backbone", false)
		require.NoError(t, insertErr)
		return boom
	})
	require.Error(t, err)
	require.True(t, apperr.Is(err, apperr.KindValidation))

	_, lookupErr := GetBackboneByName(ctx, s.Queryer(), "rollback-test-backbone")
	require.Error(t, lookupErr)
}

func TestWithTxCommitsOnSuccess(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	var created *models.Backbone
	err := s.WithTx(ctx, func(tx *Tx) error {
		bb, insertErr := InsertBackbone(ctx, tx.Queryer(), "committed-backbone", true)
		created = bb
		return insertErr
	})
	require.NoError(t, err)
	require.NotNil(t, created)

	fetched, err := GetBackbone(ctx, s.Queryer(), created.ID)
	require.NoError(t, err)
	require.Equal(t, "committed-backbone", fetched.Name)
	require.Equal(t, models.LifecycleNew, fetched.Lifecycle)
	require.True(t, fetched.IsManagement)
}

func TestSelectNewBackboneSkipsLockedRows(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := InsertBackbone(ctx, s.Queryer(), "skip-locked-backbone", false)
	require.NoError(t, err)

	holdTx, err := s.DB().BeginTxx(ctx, nil)
	require.NoError(t, err)
	defer func() { _ = holdTx.Rollback() }()

	held := &Tx{tx: holdTx}
	_, err = SelectNewBackbone(ctx, held.Queryer())
	require.NoError(t, err)

	// A second transaction must not observe the locked row.
	other, err := s.DB().BeginTxx(ctx, nil)
	require.NoError(t, err)
	defer func() { _ = other.Rollback() }()
	otherTx := &Tx{tx: other}
	_, err = SelectNewBackbone(ctx, otherTx.Queryer())
	require.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestIncrementInvitationInstanceCountStopsAtLimit(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	bb, err := InsertBackbone(ctx, s.Queryer(), "invite-limit-backbone", false)
	require.NoError(t, err)
	net, err := InsertApplicationNetwork(ctx, s.Queryer(), bb.ID, "invite-limit-van", nil, nil)
	require.NoError(t, err)
	site, err := InsertInteriorSite(ctx, s.Queryer(), bb.ID, "invite-limit-site", "kube")
	require.NoError(t, err)
	ap, err := InsertAccessPoint(ctx, s.Queryer(), site.ID, models.AccessPointClaim, "0.0.0.0", nil, nil)
	require.NoError(t, err)
	inv, err := InsertMemberInvitation(ctx, s.Queryer(), net.ID, "invite", "", "member-", 1, nil, ap.ID)
	require.NoError(t, err)

	ok, err := IncrementInvitationInstanceCount(ctx, s.Queryer(), inv.ID)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = IncrementInvitationInstanceCount(ctx, s.Queryer(), inv.ID)
	require.NoError(t, err)
	require.False(t, ok, "second increment must fail once instance_count reaches instance_limit")
}
