package claim

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/fabricpilot/vanctl/internal/config"
	"github.com/fabricpilot/vanctl/internal/protocol"
	"github.com/fabricpilot/vanctl/internal/store"
	"github.com/fabricpilot/vanctl/internal/store/models"
	"github.com/fabricpilot/vanctl/internal/testutil"
	"github.com/fabricpilot/vanctl/internal/transport"

	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	dsn := os.Getenv("VANCTL_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("VANCTL_TEST_DATABASE_URL not set, skipping claim integration test")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s, err := store.Open(ctx, config.DatabaseConfig{DSN: dsn})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// bridgeLink forwards every Send straight into target's Deliver, modeling
// two directly-wired peers without a real network.
type bridgeLink struct {
	target *transport.Session
}

func (b *bridgeLink) Send(ctx context.Context, msg transport.Message) error {
	b.target.Deliver(msg)
	return nil
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestServerRedeemsClaimAndBlocksUntilCompletion(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	q := s.Queryer()

	bb, err := store.InsertBackbone(ctx, q, "claim-bb-1", false)
	require.NoError(t, err)
	network, err := store.InsertApplicationNetwork(ctx, q, bb.ID, "van-1", nil, nil)
	require.NoError(t, err)
	site, err := store.InsertInteriorSite(ctx, q, bb.ID, "claim-site", "kube")
	require.NoError(t, err)
	claimAP, err := store.InsertAccessPoint(ctx, q, site.ID, models.AccessPointClaim, "0.0.0.0", nil, nil)
	require.NoError(t, err)
	host, port := "member.example.com", "55671"
	memberAP, err := store.InsertAccessPoint(ctx, q, site.ID, models.AccessPointMember, "0.0.0.0", &host, &port)
	require.NoError(t, err)
	invitation, err := store.InsertMemberInvitation(ctx, q, network.ID, "inv-1", "member", "m-", 5, nil, claimAP.ID)
	require.NoError(t, err)
	_, err = store.InsertEdgeLink(ctx, q, invitation.ID, memberAP.ID, 1)
	require.NoError(t, err)

	fc := testutil.NewFakeCluster()
	server := New(s, fc, "vanctl", "skx/claim")

	serverLink := &bridgeLink{}
	clientLink := &bridgeLink{}
	serverSession := transport.NewSession(serverLink, "")
	clientSession := transport.NewSession(clientLink, "")
	serverLink.target = clientSession
	clientLink.target = serverSession

	server.AttachToSession(serverSession)

	claimBody, err := json.Marshal(protocol.NewClaim(invitation.ID, "member-1"))
	require.NoError(t, err)

	type requestResult struct {
		body []byte
		err  error
	}
	resultCh := make(chan requestResult, 1)
	go func() {
		_, body, err := clientSession.Request(ctx, "skx/claim", claimBody, nil, 5*time.Second)
		resultCh <- requestResult{body: body, err: err}
	}()

	var member *models.MemberSite
	waitFor(t, func() bool {
		members, err := store.ListMemberSitesByInvitation(ctx, q, invitation.ID)
		if err != nil || len(members) == 0 {
			return false
		}
		member = &members[0]
		return true
	})

	server.CompleteMember(ctx, member.ID)

	select {
	case res := <-resultCh:
		require.NoError(t, res.err)
		var reply protocol.ClaimReply
		require.NoError(t, json.Unmarshal(res.body, &reply))
		require.Equal(t, 200, reply.StatusCode)
		require.Equal(t, member.ID, reply.SiteID)
		require.Len(t, reply.OutgoingLinks, 1)
		require.Equal(t, "member.example.com", reply.OutgoingLinks[0].Host)
		require.Equal(t, 1, reply.OutgoingLinks[0].Cost)
	case <-time.After(3 * time.Second):
		t.Fatal("claim request never completed")
	}
}

func TestServerRejectsExpiredInvitation(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	q := s.Queryer()

	bb, err := store.InsertBackbone(ctx, q, "claim-bb-2", false)
	require.NoError(t, err)
	network, err := store.InsertApplicationNetwork(ctx, q, bb.ID, "van-2", nil, nil)
	require.NoError(t, err)
	site, err := store.InsertInteriorSite(ctx, q, bb.ID, "claim-site-2", "kube")
	require.NoError(t, err)
	claimAP, err := store.InsertAccessPoint(ctx, q, site.ID, models.AccessPointClaim, "0.0.0.0", nil, nil)
	require.NoError(t, err)
	pastDeadline := time.Now().Add(-time.Hour)
	invitation, err := store.InsertMemberInvitation(ctx, q, network.ID, "inv-2", "member", "m-", 5, &pastDeadline, claimAP.ID)
	require.NoError(t, err)
	require.NoError(t, store.UpdateApplicationNetworkLifecycle(ctx, q, network.ID, models.LifecycleReady))

	fc := testutil.NewFakeCluster()
	server := New(s, fc, "vanctl", "skx/claim")

	reply, err := server.handleClaim(protocol.NewClaim(invitation.ID, "member-2"))
	require.Error(t, err)
	require.Equal(t, protocol.ClaimReply{}, reply)
}
