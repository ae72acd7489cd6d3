package compose

import (
	"context"
	"testing"

	"github.com/fabricpilot/vanctl/internal/store"
	"github.com/fabricpilot/vanctl/internal/store/models"

	"github.com/stretchr/testify/require"
)

func TestDeployRoundTripEmptyThenOneDocumentPerMatchingSite(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	q := s.Queryer()

	leaf := mustInsertLibraryBlock(t, ctx, q, "compose-deploy-leaf", models.BlockTypeComponent, models.AllocationIndependent, false, `{
		"interfaces": [],
		"simple": [{"name": "configmap", "body": "kind: ConfigMap\nname: {{ .name }}\n"}]
	}`)
	application, err := store.InsertApplication(ctx, q, "compose-deploy-app-1", leaf.ID)
	require.NoError(t, err)

	bb, err := store.InsertBackbone(ctx, q, "compose-deploy-bb-1", false)
	require.NoError(t, err)
	network, err := store.InsertApplicationNetwork(ctx, q, bb.ID, "compose-deploy-van-1", nil, nil)
	require.NoError(t, err)

	// Round-trip law (§8): an empty VAN (no member sites) deploys to an
	// empty SiteData set.
	result, err := Deploy(ctx, q, nil, application.ID, network.ID)
	require.NoError(t, err)
	require.Empty(t, result.Warnings)

	interiorSite, err := store.InsertInteriorSite(ctx, q, bb.ID, "compose-deploy-site-1", "kube")
	require.NoError(t, err)
	claimAP, err := store.InsertAccessPoint(ctx, q, interiorSite.ID, models.AccessPointClaim, "0.0.0.0", nil, nil)
	require.NoError(t, err)
	invitation, err := store.InsertMemberInvitation(ctx, q, network.ID, "compose-deploy-inv-1", "edge", "m-", 5, nil, claimAP.ID)
	require.NoError(t, err)

	matching, err := store.InsertMemberSite(ctx, q, invitation.ID, "compose-deploy-member-edge", "edge")
	require.NoError(t, err)
	nonMatching, err := store.InsertMemberSite(ctx, q, invitation.ID, "compose-deploy-member-cloud", "cloud")
	require.NoError(t, err)

	// The leaf instance's config carries no siteClasses, so it targets
	// every member site regardless of class.
	result, err = Deploy(ctx, q, nil, application.ID, network.ID)
	require.NoError(t, err)
	require.Empty(t, result.Warnings)

	matchingData, err := store.ListSiteDataByMemberSite(ctx, q, matching.ID)
	require.NoError(t, err)
	require.Len(t, matchingData, 1)
	require.Contains(t, matchingData[0].YAML, "name: root")

	nonMatchingData, err := store.ListSiteDataByMemberSite(ctx, q, nonMatching.ID)
	require.NoError(t, err)
	require.Len(t, nonMatchingData, 1)
}

func TestDeploySiteClassFilterExcludesNonMatchingSite(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	q := s.Queryer()

	leaf := mustInsertLibraryBlock(t, ctx, q, "compose-deploy-leaf-2", models.BlockTypeComponent, models.AllocationIndependent, false, `{
		"interfaces": [],
		"simple": [{"name": "configmap", "body": "kind: ConfigMap\nname: {{ .name }}\n"}]
	}`)
	application, err := store.InsertApplication(ctx, q, "compose-deploy-app-2", leaf.ID)
	require.NoError(t, err)

	// First build creates the root instance row; then pin its derivative
	// to the "edge" site class via config_json before deploying.
	firstBuild, err := Build(ctx, q, application.ID)
	require.NoError(t, err)
	rootInst := firstBuild.ByPath[rootInstancePath]
	require.NoError(t, store.UpdateInstanceBlockConfig(ctx, q, rootInst.row.ID, `{"siteClasses": "edge"}`))

	bb, err := store.InsertBackbone(ctx, q, "compose-deploy-bb-2", false)
	require.NoError(t, err)
	network, err := store.InsertApplicationNetwork(ctx, q, bb.ID, "compose-deploy-van-2", nil, nil)
	require.NoError(t, err)
	interiorSite, err := store.InsertInteriorSite(ctx, q, bb.ID, "compose-deploy-site-2", "kube")
	require.NoError(t, err)
	claimAP, err := store.InsertAccessPoint(ctx, q, interiorSite.ID, models.AccessPointClaim, "0.0.0.0", nil, nil)
	require.NoError(t, err)
	invitation, err := store.InsertMemberInvitation(ctx, q, network.ID, "compose-deploy-inv-2", "cloud", "m-", 5, nil, claimAP.ID)
	require.NoError(t, err)
	edgeMember, err := store.InsertMemberSite(ctx, q, invitation.ID, "compose-deploy-member-edge-2", "edge")
	require.NoError(t, err)
	cloudMember, err := store.InsertMemberSite(ctx, q, invitation.ID, "compose-deploy-member-cloud-2", "cloud")
	require.NoError(t, err)

	result, err := Deploy(ctx, q, nil, application.ID, network.ID)
	require.NoError(t, err)
	require.Empty(t, result.Warnings)

	edgeData, err := store.ListSiteDataByMemberSite(ctx, q, edgeMember.ID)
	require.NoError(t, err)
	require.Len(t, edgeData, 1)

	cloudData, err := store.ListSiteDataByMemberSite(ctx, q, cloudMember.ID)
	require.NoError(t, err)
	require.Empty(t, cloudData)
}
