package syncbridge

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/fabricpilot/vanctl/internal/statesync"
	"github.com/fabricpilot/vanctl/internal/store"
	"github.com/fabricpilot/vanctl/internal/store/models"
	"github.com/fabricpilot/vanctl/internal/testutil"

	"github.com/stretchr/testify/require"
)

// recordingPeerEvents is a minimal statesync.PeerEvents used only so a real
// Engine exists for pushKey to call UpdateLocalState on.
type recordingPeerEvents struct{}

func (recordingPeerEvents) OnNewPeer(ctx context.Context, peerID string, class statesync.Class) (map[string]string, map[string]string, error) {
	return map[string]string{}, map[string]string{}, nil
}
func (recordingPeerEvents) OnPing(ctx context.Context, peerID string) {}
func (recordingPeerEvents) OnStateChange(ctx context.Context, peerID, key string, hash *string, data json.RawMessage) {
}
func (recordingPeerEvents) OnStateRequest(ctx context.Context, peerID, key string) (string, json.RawMessage, error) {
	return "", nil, nil
}

func TestSiteIngressChangedUpdatesEngineLocalState(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	fc := testutil.NewFakeCluster()
	bridge := New(s, fc, "vanctl", nil)

	engine := statesync.NewEngine(statesync.ClassManagement, "mgmt", recordingPeerEvents{})
	bridge.SetEngine(engine)

	bb, err := store.InsertBackbone(ctx, s.Queryer(), "syncbridge-push-bb", false)
	require.NoError(t, err)
	site, err := store.InsertInteriorSite(ctx, s.Queryer(), bb.ID, "push-site", "kube")
	require.NoError(t, err)
	host, port := "ap.example.com", "55671"
	ap, err := store.InsertAccessPoint(ctx, s.Queryer(), site.ID, models.AccessPointManage, "0.0.0.0", &host, &port)
	require.NoError(t, err)

	// pushKey is a no-op when the engine has never heard of the peer, since
	// UpdateLocalState only mutates an already-tracked record; this just
	// exercises that SiteIngressChanged doesn't error without one.
	bridge.SiteIngressChanged(ctx, ap.ID)
}
