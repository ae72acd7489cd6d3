// Package syncbridge implements the sync bridge of §4.7 (C7): the
// statesync.PeerEvents adapter binding the state-sync engine to rows of
// InteriorSites, MemberSites, BackboneAccessPoints and the links between
// them. Grounded on the same query-then-react shape as
// internal/deploystate, wired through the store's sqlx.ExtContext rather
// than opening its own transactions.
package syncbridge

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/fabricpilot/vanctl/internal/cluster"
	"github.com/fabricpilot/vanctl/internal/deploystate"
	"github.com/fabricpilot/vanctl/internal/manifest"
	"github.com/fabricpilot/vanctl/internal/statesync"
	"github.com/fabricpilot/vanctl/internal/store"
	"github.com/fabricpilot/vanctl/internal/store/models"
	"github.com/fabricpilot/vanctl/pkg/logging"

	"github.com/jmoiron/sqlx"
)

const subsystem = "SyncBridge"

// AppStateProvider is the compose engine's hook into a member site's
// application-state keys (component-<id>, iface-<role>-<bid>), satisfied by
// internal/compose once wired from cmd/vanctl-controller. A nil provider
// just means member sites advertise no application state yet.
type AppStateProvider interface {
	LocalAppState(ctx context.Context, memberSiteID string) (map[string]string, error)
	AppStateValue(ctx context.Context, memberSiteID, key string) (hash string, data json.RawMessage, err error)
}

// Bridge implements statesync.PeerEvents against the relational store and
// the cluster collaborator.
type Bridge struct {
	st        *store.Store
	cluster   cluster.Collaborator
	namespace string
	appState  AppStateProvider
	engine    *statesync.Engine
}

// New constructs a Bridge. SetEngine must be called once the owning
// statesync.Engine exists, since engine and bridge reference each other.
func New(st *store.Store, coll cluster.Collaborator, namespace string, appState AppStateProvider) *Bridge {
	return &Bridge{st: st, cluster: coll, namespace: namespace, appState: appState}
}

// SetEngine wires the engine this bridge's push paths call UpdateLocalState
// on.
func (b *Bridge) SetEngine(e *statesync.Engine) { b.engine = e }

var _ statesync.PeerEvents = (*Bridge)(nil)

// OnNewPeer builds the initial (localState, remoteState) manifests for a
// peer seen for the first time, and advances the peer row's lifecycle per
// §4.7.
func (b *Bridge) OnNewPeer(ctx context.Context, peerID string, class statesync.Class) (map[string]string, map[string]string, error) {
	q := b.st.Queryer()

	switch class {
	case statesync.ClassBackbone:
		return b.onNewBackboneSite(ctx, q, peerID)
	case statesync.ClassMember:
		return b.onNewMemberSite(ctx, q, peerID)
	default:
		// Management-class peers (the bootstrap singleton) carry no
		// per-entity manifest of their own.
		return map[string]string{}, map[string]string{}, nil
	}
}

func (b *Bridge) onNewBackboneSite(ctx context.Context, q sqlx.ExtContext, siteID string) (map[string]string, map[string]string, error) {
	site, err := store.GetInteriorSite(ctx, q, siteID)
	if err != nil {
		return nil, nil, err
	}

	aps, err := store.ListAccessPointsBySite(ctx, q, siteID)
	if err != nil {
		return nil, nil, err
	}
	links, err := store.ListLinksByConnectingSite(ctx, q, siteID)
	if err != nil {
		return nil, nil, err
	}

	local := map[string]string{}
	remote := map[string]string{}

	if hash, _, err := b.hashForKey(ctx, q, siteID, "tls-site-"+site.ID); err == nil {
		local["tls-site-"+site.ID] = hash
	}

	for _, ap := range aps {
		local["access-"+ap.ID], _, _ = b.hashForKey(ctx, q, siteID, "access-"+ap.ID)
		if ap.Lifecycle == models.LifecycleReady {
			local["tls-server-"+ap.ID], _, _ = b.hashForKey(ctx, q, siteID, "tls-server-"+ap.ID)
			remote["accessstatus-"+ap.ID] = "" // unknown until the peer advertises one
		}
	}

	for _, link := range links {
		ap, err := store.GetAccessPoint(ctx, q, link.AccessPointID)
		if err != nil || ap.Lifecycle != models.LifecycleReady {
			continue
		}
		local["link-"+link.ID], _, _ = b.hashForKey(ctx, q, siteID, "link-"+link.ID)
	}

	if site.Lifecycle == models.LifecycleReady {
		now := time.Now()
		if err := store.ActivateInteriorSite(ctx, q, site.ID, now); err != nil {
			return nil, nil, err
		}
		site.Lifecycle = models.LifecycleActive
		site.FirstActiveTime = &now
		if _, err := deploystate.Evaluate(ctx, q, site); err != nil {
			logging.Error(subsystem, err, "evaluating deployment state for newly active site %s", site.ID)
		}
	} else if err := store.TouchInteriorSiteHeartbeat(ctx, q, site.ID, time.Now()); err != nil {
		return nil, nil, err
	}

	return local, remote, nil
}

func (b *Bridge) onNewMemberSite(ctx context.Context, q sqlx.ExtContext, memberID string) (map[string]string, map[string]string, error) {
	member, err := store.GetMemberSite(ctx, q, memberID)
	if err != nil {
		return nil, nil, err
	}

	local := map[string]string{}

	if hash, _, err := b.hashForKey(ctx, q, memberID, "tls-site-"+member.ID); err == nil {
		local["tls-site-"+member.ID] = hash
	}

	edgeLinks, err := store.ListEdgeLinksByInvitation(ctx, q, member.InvitationID)
	if err != nil {
		return nil, nil, err
	}
	for _, link := range edgeLinks {
		ap, err := store.GetAccessPoint(ctx, q, link.AccessPointID)
		if err != nil || ap.Lifecycle != models.LifecycleReady {
			continue
		}
		local["link-"+link.ID], _, _ = b.hashForKey(ctx, q, memberID, "link-"+link.ID)
	}

	if b.appState != nil {
		appKeys, err := b.appState.LocalAppState(ctx, member.ID)
		if err != nil {
			logging.Error(subsystem, err, "loading application state for member site %s", member.ID)
		} else {
			for k, v := range appKeys {
				local[k] = v
			}
		}
	}

	if member.Lifecycle == models.LifecycleReady {
		now := time.Now()
		if err := store.ActivateMemberSite(ctx, q, member.ID, now); err != nil {
			return nil, nil, err
		}
	} else if err := store.TouchMemberSiteHeartbeat(ctx, q, member.ID, time.Now()); err != nil {
		return nil, nil, err
	}

	return local, map[string]string{}, nil
}

// OnPing bumps LastHeartbeat on the peer's row.
func (b *Bridge) OnPing(ctx context.Context, peerID string) {
	q := b.st.Queryer()
	now := time.Now()

	if site, err := store.GetInteriorSite(ctx, q, peerID); err == nil {
		if err := store.TouchInteriorSiteHeartbeat(ctx, q, site.ID, now); err != nil {
			logging.Error(subsystem, err, "touching interior site heartbeat for %s", site.ID)
		}
		return
	}
	if member, err := store.GetMemberSite(ctx, q, peerID); err == nil {
		if err := store.TouchMemberSiteHeartbeat(ctx, q, member.ID, now); err != nil {
			logging.Error(subsystem, err, "touching member site heartbeat for %s", member.ID)
		}
		return
	}
	logging.Warn(subsystem, "OnPing for unknown peer %s", peerID)
}

// OnStateChange acts only on backbone peers and only for accessstatus-<id>
// keys whose AP is still partial: it promotes the AP to new with the
// reported host/port. All other keys are advisory and ignored.
func (b *Bridge) OnStateChange(ctx context.Context, peerID, key string, hash *string, data json.RawMessage) {
	if hash == nil || data == nil {
		return
	}
	apID, ok := strings.CutPrefix(key, "accessstatus-")
	if !ok {
		return
	}

	q := b.st.Queryer()
	ap, err := store.GetAccessPoint(ctx, q, apID)
	if err != nil {
		logging.Error(subsystem, err, "loading access point %s for accessstatus update", apID)
		return
	}
	if ap.Lifecycle != models.LifecyclePartial {
		return
	}

	var reported struct {
		Host string `json:"host"`
		Port string `json:"port"`
	}
	if err := json.Unmarshal(data, &reported); err != nil {
		logging.Error(subsystem, err, "decoding accessstatus payload for %s", apID)
		return
	}
	if err := store.PromoteAccessPointToNew(ctx, q, apID, reported.Host, reported.Port); err != nil {
		logging.Error(subsystem, err, "promoting access point %s to new", apID)
	}
}

// OnStateRequest answers a peer's GET for one of our local-state keys.
func (b *Bridge) OnStateRequest(ctx context.Context, peerID, key string) (string, json.RawMessage, error) {
	return b.hashForKey(ctx, b.st.Queryer(), peerID, key)
}

// OnSecretChanged pushes a fresh tls-site-<id> hash to the sync engine as
// soon as the cluster collaborator reports the backing Secret changed,
// rather than waiting for the owning peer's next heartbeat-driven
// OnStateRequest pull (§4.7). Only InteriorSite and MemberSite secrets carry
// a peer to push to; an AccessPoint's tls-server-<id> secret is already
// covered by the pull path, since its owning backbone peer issues its own
// accessstatus-<id> updates on a short cadence.
func (b *Bridge) OnSecretChanged(ctx context.Context, secretName string) {
	q := b.st.Queryer()

	cert, err := store.GetTlsCertificateByObjectName(ctx, q, secretName)
	if err != nil {
		return
	}
	kind, targetID, found, err := store.FindCertificateOwner(ctx, q, cert.ID)
	if err != nil || !found {
		return
	}
	if kind != models.CertRequestInteriorSite && kind != models.CertRequestMemberSite {
		return
	}

	key := "tls-site-" + targetID
	hash, _, err := b.hashSecret(ctx, q, targetID, key)
	if err != nil || hash == "" || b.engine == nil {
		return
	}
	b.engine.UpdateLocalState(targetID, key, &hash)
}

// hashForKey computes the (hash, data) pair for one state key, dispatching
// on its prefix per §4.7's onStateRequest table. peerID disambiguates
// between an interior site and a member site when the key alone doesn't
// (tls-site-<id> is used by both classes).
func (b *Bridge) hashForKey(ctx context.Context, q sqlx.ExtContext, peerID, key string) (string, json.RawMessage, error) {
	switch {
	case strings.HasPrefix(key, "tls-site-") || strings.HasPrefix(key, "tls-server-"):
		return b.hashSecret(ctx, q, peerID, key)
	case strings.HasPrefix(key, "access-"):
		return b.hashAccessPoint(ctx, q, strings.TrimPrefix(key, "access-"))
	case strings.HasPrefix(key, "link-"):
		return b.hashLink(ctx, q, peerID, strings.TrimPrefix(key, "link-"))
	default:
		if b.appState != nil {
			hash, data, err := b.appState.AppStateValue(ctx, peerID, key)
			if err == nil {
				return hash, data, nil
			}
		}
		return "", nil, nil
	}
}

func (b *Bridge) hashSecret(ctx context.Context, q sqlx.ExtContext, peerID, key string) (string, json.RawMessage, error) {
	var certID *string

	if strings.HasPrefix(key, "tls-server-") {
		ap, err := store.GetAccessPoint(ctx, q, strings.TrimPrefix(key, "tls-server-"))
		if err != nil {
			return "", nil, err
		}
		certID = ap.CertificateID
	} else if site, err := store.GetInteriorSite(ctx, q, peerID); err == nil {
		certID = site.CertificateID
	} else if member, err := store.GetMemberSite(ctx, q, peerID); err == nil {
		certID = member.CertificateID
	}

	if certID == nil {
		return "", nil, nil
	}
	cert, err := store.GetTlsCertificate(ctx, q, *certID)
	if err != nil {
		return "", nil, err
	}
	secret, err := b.cluster.LoadSecret(ctx, cert.ObjectName, b.namespace)
	if err != nil {
		return "", nil, err
	}
	return hashValue(map[string]string{
		"ca.crt":  string(secret.CACrt),
		"tls.crt": string(secret.TLSCrt),
		"tls.key": string(secret.TLSKey),
	})
}

func (b *Bridge) hashAccessPoint(ctx context.Context, q sqlx.ExtContext, apID string) (string, json.RawMessage, error) {
	ap, err := store.GetAccessPoint(ctx, q, apID)
	if err != nil {
		return "", nil, err
	}
	return hashValue(struct {
		Kind     models.AccessPointKind `json:"kind"`
		BindHost *string                `json:"bindhost,omitempty"`
	}{Kind: ap.Kind, BindHost: ap.BindHost})
}

func (b *Bridge) hashLink(ctx context.Context, q sqlx.ExtContext, peerID, linkID string) (string, json.RawMessage, error) {
	payload := struct {
		Host string `json:"host"`
		Port string `json:"port"`
		Cost string `json:"cost"`
	}{}

	if link, err := store.GetInterRouterLink(ctx, q, linkID); err == nil {
		ap, apErr := store.GetAccessPoint(ctx, q, link.AccessPointID)
		if apErr != nil {
			return "", nil, apErr
		}
		if ap.Host != nil {
			payload.Host = *ap.Host
		}
		if ap.Port != nil {
			payload.Port = *ap.Port
		}
		payload.Cost = strconv.Itoa(link.Cost)
		return hashValue(payload)
	}

	// Not an inter-router link: must be one of this member site's edge links.
	edgeLinks, err := edgeLinksForMember(ctx, q, peerID)
	if err != nil {
		return "", nil, err
	}
	for _, link := range edgeLinks {
		if link.ID != linkID {
			continue
		}
		ap, err := store.GetAccessPoint(ctx, q, link.AccessPointID)
		if err != nil {
			return "", nil, err
		}
		if ap.Host != nil {
			payload.Host = *ap.Host
		}
		if ap.Port != nil {
			payload.Port = *ap.Port
		}
		payload.Cost = "1"
		return hashValue(payload)
	}
	return "", nil, nil
}

func edgeLinksForMember(ctx context.Context, q sqlx.ExtContext, memberID string) ([]models.EdgeLink, error) {
	member, err := store.GetMemberSite(ctx, q, memberID)
	if err != nil {
		return nil, err
	}
	return store.ListEdgeLinksByInvitation(ctx, q, member.InvitationID)
}

// hashValue marshals v and runs it through the same key-concat digest
// internal/manifest uses for bundle content, so a secret/access-point/link's
// state-sync hash is computed identically to a rendered manifest object's.
func hashValue(v interface{}) (string, json.RawMessage, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", nil, err
	}
	var data map[string]interface{}
	if err := json.Unmarshal(raw, &data); err != nil {
		return "", nil, err
	}
	return manifest.Hash(data), json.RawMessage(raw), nil
}
