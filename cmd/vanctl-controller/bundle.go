package main

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/fabricpilot/vanctl/internal/cluster"
	"github.com/fabricpilot/vanctl/internal/config"
	"github.com/fabricpilot/vanctl/internal/manifest"
	"github.com/fabricpilot/vanctl/internal/store"
	"github.com/fabricpilot/vanctl/internal/store/models"

	"github.com/jmoiron/sqlx"

	"github.com/fabricpilot/vanctl/pkg/logging"
)

// bundleMux serves the §6 site bootstrap bundle: the multi-document YAML
// stream a newly-claimed interior or member site downloads once to stand
// up its router Deployment, RBAC and TLS credential, rendered by
// internal/manifest from the same store rows the reconciler already owns.
func bundleMux(st *store.Store, coll cluster.Collaborator, namespace string, cfg config.BundleConfig) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/bundle/interior/", bundleHandler(st, coll, namespace, cfg, renderInteriorBundle))
	mux.HandleFunc("/bundle/member/", bundleHandler(st, coll, namespace, cfg, renderMemberBundle))
	return mux
}

type bundleRenderer func(ctx context.Context, q sqlx.ExtContext, coll cluster.Collaborator, namespace string, cfg config.BundleConfig, id string) (string, error)

func bundleHandler(st *store.Store, coll cluster.Collaborator, namespace string, cfg config.BundleConfig, render bundleRenderer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/bundle/interior/"), "/")
		id = strings.TrimSuffix(strings.TrimPrefix(id, "/bundle/member/"), "/")
		if id == "" {
			http.NotFound(w, r)
			return
		}

		doc, err := render(r.Context(), st.Queryer(), coll, namespace, cfg, id)
		if err != nil {
			logging.Error("Bundle", err, "rendering bundle for %s", id)
			http.Error(w, "rendering bundle failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/yaml")
		_, _ = w.Write([]byte(doc))
	}
}

// renderInteriorBundle builds the bootstrap bundle for a backbone's
// interior site: its own router deployment plus every access point it
// hosts, but no access-point client secrets -- it's the side those access
// points terminate on, not the side dialing out.
func renderInteriorBundle(ctx context.Context, q sqlx.ExtContext, coll cluster.Collaborator, namespace string, cfg config.BundleConfig, id string) (string, error) {
	site, err := store.GetInteriorSite(ctx, q, id)
	if err != nil {
		return "", fmt.Errorf("loading interior site %s: %w", id, err)
	}
	if site.CertificateID == nil {
		return "", fmt.Errorf("interior site %s has no certificate yet", id)
	}
	cert, err := store.GetTlsCertificate(ctx, q, *site.CertificateID)
	if err != nil {
		return "", err
	}
	secret, err := coll.LoadSecret(ctx, cert.ObjectName, namespace)
	if err != nil {
		return "", err
	}

	spec := manifest.SiteSpec{
		Name:           site.Name,
		Namespace:      namespace,
		Platform:       site.Platform,
		Mode:           manifest.RouterModeInterior,
		Role:           manifest.SiteRoleBackbone,
		RouterImage:    cfg.RouterImage,
		DataplaneImage: cfg.DataplaneImage,
	}

	aps, err := store.ListAccessPointsBySite(ctx, q, id)
	if err != nil {
		return "", err
	}
	links, err := store.ListLinksByConnectingSite(ctx, q, id)
	if err != nil {
		return "", err
	}

	bundle := manifest.Bundle{
		Site:           spec,
		IncludeService: site.Platform == "kube",
		Secret: manifest.SiteSecretSpec{
			SiteSpec: spec,
			CACrt:    secret.CACrt,
			TLSCrt:   secret.TLSCrt,
			TLSKey:   secret.TLSKey,
			StateKey: "tls-site-" + site.ID,
		},
	}
	for _, ap := range aps {
		if ap.Host == nil || ap.Port == nil {
			continue
		}
		bundle.AccessPointConfigMaps = append(bundle.AccessPointConfigMaps, manifest.BundleAccessPointConfigMap{
			AccessPointID: ap.ID, Host: *ap.Host, Port: *ap.Port,
		})
	}
	for _, link := range links {
		ap, err := store.GetAccessPoint(ctx, q, link.AccessPointID)
		if err != nil || ap.Host == nil || ap.Port == nil {
			continue
		}
		bundle.LinkConfigMaps = append(bundle.LinkConfigMaps, manifest.BundleLinkConfigMap{
			LinkID: link.ID, Host: *ap.Host, Port: *ap.Port,
		})
	}

	return manifest.Render(bundle)
}

// renderMemberBundle builds the bootstrap bundle for a member site: an
// edge-mode router plus, while the member hasn't yet reached 'active', the
// client credential for every access point one of its edge links dials --
// the ready-bootstrap case of §4.6, letting the member complete its first
// connection without a second round trip through the claim protocol.
func renderMemberBundle(ctx context.Context, q sqlx.ExtContext, coll cluster.Collaborator, namespace string, cfg config.BundleConfig, id string) (string, error) {
	member, err := store.GetMemberSite(ctx, q, id)
	if err != nil {
		return "", fmt.Errorf("loading member site %s: %w", id, err)
	}
	if member.CertificateID == nil {
		return "", fmt.Errorf("member site %s has no certificate yet", id)
	}
	cert, err := store.GetTlsCertificate(ctx, q, *member.CertificateID)
	if err != nil {
		return "", err
	}
	secret, err := coll.LoadSecret(ctx, cert.ObjectName, namespace)
	if err != nil {
		return "", err
	}

	spec := manifest.SiteSpec{
		Name:           member.Name,
		Namespace:      namespace,
		Platform:       "kube",
		Mode:           manifest.RouterModeEdge,
		Role:           manifest.SiteRoleMember,
		RouterImage:    cfg.RouterImage,
		DataplaneImage: cfg.DataplaneImage,
	}

	bundle := manifest.Bundle{
		Site:           spec,
		IncludeService: false,
		Secret: manifest.SiteSecretSpec{
			SiteSpec: spec,
			CACrt:    secret.CACrt,
			TLSCrt:   secret.TLSCrt,
			TLSKey:   secret.TLSKey,
			StateKey: "tls-site-" + member.ID,
		},
		IncludeAccessPointSecrets: member.Lifecycle != models.LifecycleActive,
	}

	edgeLinks, err := store.ListEdgeLinksByInvitation(ctx, q, member.InvitationID)
	if err != nil {
		return "", err
	}
	for _, link := range edgeLinks {
		ap, err := store.GetAccessPoint(ctx, q, link.AccessPointID)
		if err != nil || ap.Host == nil || ap.Port == nil {
			continue
		}
		bundle.LinkConfigMaps = append(bundle.LinkConfigMaps, manifest.BundleLinkConfigMap{
			LinkID: link.ID, Host: *ap.Host, Port: *ap.Port,
		})
		if bundle.IncludeAccessPointSecrets {
			bundle.AccessPointSecrets = append(bundle.AccessPointSecrets, manifest.BundleAccessPointSecret{
				AccessPointID: ap.ID, CACrt: secret.CACrt, TLSCrt: secret.TLSCrt, TLSKey: secret.TLSKey,
			})
		}
	}

	return manifest.Render(bundle)
}
