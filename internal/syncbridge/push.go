package syncbridge

import (
	"context"

	"github.com/fabricpilot/vanctl/internal/store"
	"github.com/fabricpilot/vanctl/pkg/logging"
)

// SiteCertificateChanged recomputes tls-site-<siteID>'s hash and forces a
// heartbeat carrying it, per §4.7's push paths. Called by the reconciler
// once a site's certificate secret is (re)issued.
func (b *Bridge) SiteCertificateChanged(ctx context.Context, siteID string) {
	b.pushKey(ctx, siteID, siteID, "tls-site-"+siteID)
}

// AccessCertificateChanged recomputes tls-server-<apID>'s hash, advertised
// under the owning site's peer id.
func (b *Bridge) AccessCertificateChanged(ctx context.Context, apID string) {
	ap, err := store.GetAccessPoint(ctx, b.st.Queryer(), apID)
	if err != nil {
		logging.Error(subsystem, err, "loading access point %s for AccessCertificateChanged", apID)
		return
	}
	b.pushKey(ctx, ap.InteriorSiteID, ap.InteriorSiteID, "tls-server-"+apID)
}

// SiteIngressChanged recomputes access-<apID>'s hash, advertised under the
// owning site's peer id (the host/port an AP publishes once it reaches
// ready, or an operator edit of its bind host).
func (b *Bridge) SiteIngressChanged(ctx context.Context, apID string) {
	ap, err := store.GetAccessPoint(ctx, b.st.Queryer(), apID)
	if err != nil {
		logging.Error(subsystem, err, "loading access point %s for SiteIngressChanged", apID)
		return
	}
	b.pushKey(ctx, ap.InteriorSiteID, ap.InteriorSiteID, "access-"+apID)
}

// LinkChanged recomputes link-<linkID>'s hash. For an inter-router link this
// is advertised under the connecting site's peer id; for an edge link it is
// advertised under every member site that redeemed the owning invitation.
func (b *Bridge) LinkChanged(ctx context.Context, linkID string) {
	q := b.st.Queryer()

	if link, err := store.GetInterRouterLink(ctx, q, linkID); err == nil {
		b.pushKey(ctx, link.ConnectingInteriorSite, link.ConnectingInteriorSite, "link-"+linkID)
		return
	}

	// Not an inter-router link: it must be an edge link, fanned out to
	// every member site that redeemed its owning invitation.
	edgeLink, err := store.GetEdgeLink(ctx, q, linkID)
	if err != nil {
		logging.Warn(subsystem, "LinkChanged for unknown link %s", linkID)
		return
	}
	members, err := store.ListMemberSitesByInvitation(ctx, q, edgeLink.InvitationID)
	if err != nil {
		logging.Error(subsystem, err, "listing member sites for invitation %s", edgeLink.InvitationID)
		return
	}
	for _, member := range members {
		b.pushKey(ctx, member.ID, member.ID, "link-"+linkID)
	}
}

// NewIngressAvailable is a documented no-op hook (spec §9 Open Question 2):
// nothing in the data model distinguishes "ingress became available" from
// the accessstatus-<id> push already driven by OnStateChange, so there is
// no additional action to take here. Kept as an explicit extension point
// rather than silently absent.
func (b *Bridge) NewIngressAvailable(apID string) {
	logging.Debug(subsystem, "NewIngressAvailable no-op for access point %s", apID)
}

func (b *Bridge) pushKey(ctx context.Context, peerID, engineID, key string) {
	hash, _, err := b.hashForKey(ctx, b.st.Queryer(), peerID, key)
	if err != nil {
		logging.Error(subsystem, err, "recomputing %s for push", key)
		return
	}
	if b.engine == nil {
		return
	}
	b.engine.UpdateLocalState(engineID, key, &hash)
}
