package claim

import (
	"context"

	"github.com/fabricpilot/vanctl/internal/cluster"
	"github.com/fabricpilot/vanctl/internal/protocol"
	"github.com/fabricpilot/vanctl/internal/store"
	"github.com/fabricpilot/vanctl/internal/store/models"

	"github.com/jmoiron/sqlx"
)

// buildCompletion loads the new member's secret and its invitation's edge
// links, building the (outgoingLinks, siteClient) pair the CLAIM reply
// carries (§4.8 step 2). Called by the cert reconciler once the member
// site's credential finalizes.
func buildCompletion(ctx context.Context, q sqlx.ExtContext, coll cluster.Collaborator, namespace string, member *models.MemberSite) ([]protocol.OutgoingLink, map[string]interface{}, error) {
	var siteClient map[string]interface{}
	if member.CertificateID != nil {
		cert, err := store.GetTlsCertificate(ctx, q, *member.CertificateID)
		if err != nil {
			return nil, nil, err
		}
		secret, err := coll.LoadSecret(ctx, cert.ObjectName, namespace)
		if err != nil {
			return nil, nil, err
		}
		siteClient = map[string]interface{}{
			"stateKey": "tls-site-" + member.ID,
			"caCrt":    string(secret.CACrt),
			"tlsCrt":   string(secret.TLSCrt),
			"tlsKey":   string(secret.TLSKey),
		}
	}

	edgeLinks, err := store.ListEdgeLinksByInvitation(ctx, q, member.InvitationID)
	if err != nil {
		return nil, nil, err
	}

	var outgoing []protocol.OutgoingLink
	for _, link := range edgeLinks {
		ap, err := store.GetAccessPoint(ctx, q, link.AccessPointID)
		if err != nil || ap.Host == nil || ap.Port == nil {
			continue
		}
		outgoing = append(outgoing, protocol.OutgoingLink{
			Host: *ap.Host,
			Port: *ap.Port,
			Cost: 1, // edge links always cost 1, per §4.7
		})
	}

	return outgoing, siteClient, nil
}
