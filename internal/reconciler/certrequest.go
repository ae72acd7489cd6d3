package reconciler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fabricpilot/vanctl/internal/cluster"
	"github.com/fabricpilot/vanctl/internal/store"
	"github.com/fabricpilot/vanctl/internal/store/models"

	"github.com/jmoiron/sqlx"
)

// certObjectPrefix names every cert-manager Certificate object this package
// creates; the finalize/watch path strips it back off to recover the
// CertificateRequest id a watched object name belongs to (§13 Open Question
// decision: object naming doubles as the annotation scheme the literal spec
// describes, since cluster.Collaborator already abstracts away the
// annotation mechanics).
const certObjectPrefix = "cert-"

func certObjectName(requestID string) string { return certObjectPrefix + requestID }

func certRequestIDFromObjectName(objectName string) (string, bool) {
	if !strings.HasPrefix(objectName, certObjectPrefix) {
		return "", false
	}
	return strings.TrimPrefix(objectName, certObjectPrefix), true
}

// certIsCA reports whether a kind's certificate must itself be a CA,
// because it issues a descendant kind's certificate in the trust forest of
// §4.5: Backbone is the forest root; InteriorSite signs AccessPoint;
// ApplicationNetwork signs NetworkCredential and MemberInvitation;
// MemberInvitation signs MemberSite.
func certIsCA(kind models.CertRequestKind) bool {
	switch kind {
	case models.CertRequestBackbone, models.CertRequestInteriorSite,
		models.CertRequestApplicationNetwork, models.CertRequestMemberInvitation:
		return true
	default:
		return false
	}
}

// advanceCertificateRequest implements the §4.5(b) loop: pop the oldest
// CertificateRequest whose request_time has arrived, synthesize the
// cert-manager Certificate spec for its kind, ask the collaborator to
// ensure it exists, and move the request to cm_cert_created.
func advanceCertificateRequest(ctx context.Context, st *store.Store, coll cluster.Collaborator, namespace string, now func() time.Time, m *Metrics) (bool, error) {
	processed := false
	err := st.WithTx(ctx, func(tx *store.Tx) error {
		req, err := store.SelectNewCertificateRequest(ctx, tx.Queryer(), now())
		if err != nil {
			return ignoreNotFound(err)
		}

		spec, err := buildCertificateSpec(ctx, tx.Queryer(), namespace, req)
		if err != nil {
			return err
		}

		if err := coll.EnsureCertificate(ctx, spec); err != nil {
			return err
		}

		processed = true
		return store.UpdateCertificateRequestLifecycle(ctx, tx.Queryer(), req.ID, models.LifecycleCmCertCreated)
	})
	if err != nil && m != nil {
		m.CertRequestsFailed.Inc()
	} else if processed && m != nil {
		m.CertRequestsIssued.Inc()
	}
	return processed, err
}

// buildCertificateSpec synthesizes the cert-manager Certificate spec for
// one CertificateRequest, per §4.5's "name, flags, DNS name, issuer
// reference" synthesis.
func buildCertificateSpec(ctx context.Context, q sqlx.ExtContext, namespace string, req *models.CertificateRequest) (cluster.CertificateSpec, error) {
	dns, err := dnsNameForTarget(ctx, q, req.Kind, req.TargetID)
	if err != nil {
		return cluster.CertificateSpec{}, err
	}

	issuerName, err := issuerObjectName(ctx, q, req.IssuerID)
	if err != nil {
		return cluster.CertificateSpec{}, err
	}

	objectName := certObjectName(req.ID)
	return cluster.CertificateSpec{
		ObjectName: objectName,
		Namespace:  namespace,
		DNSNames:   []string{dns},
		IsCA:       certIsCA(req.Kind),
		IssuerName: issuerName,
		Duration:   req.Duration,
		SecretName: objectName,
	}, nil
}

// dnsNameForTarget picks the identifying DNS/CN value for a request's
// target row. Only AccessPoint certificates serve real TLS connections
// against a routable host; the rest use their entity name as a stable
// identifier cert-manager's Certificate.spec.dnsNames still requires.
func dnsNameForTarget(ctx context.Context, q sqlx.ExtContext, kind models.CertRequestKind, targetID string) (string, error) {
	switch kind {
	case models.CertRequestManagementController:
		row, err := store.GetManagementController(ctx, q, targetID)
		if err != nil {
			return "", err
		}
		return row.Name, nil
	case models.CertRequestBackbone:
		row, err := store.GetBackbone(ctx, q, targetID)
		if err != nil {
			return "", err
		}
		return row.Name, nil
	case models.CertRequestInteriorSite:
		row, err := store.GetInteriorSite(ctx, q, targetID)
		if err != nil {
			return "", err
		}
		return row.Name, nil
	case models.CertRequestAccessPoint:
		row, err := store.GetAccessPoint(ctx, q, targetID)
		if err != nil {
			return "", err
		}
		if row.Host != nil && *row.Host != "" {
			return *row.Host, nil
		}
		if row.BindHost != nil && *row.BindHost != "" {
			return *row.BindHost, nil
		}
		return string(row.Kind) + "-" + row.ID, nil
	case models.CertRequestApplicationNetwork:
		row, err := store.GetApplicationNetwork(ctx, q, targetID)
		if err != nil {
			return "", err
		}
		return row.Name, nil
	case models.CertRequestNetworkCredential:
		row, err := store.GetNetworkCredential(ctx, q, targetID)
		if err != nil {
			return "", err
		}
		return "network-credential-" + row.ID, nil
	case models.CertRequestMemberInvitation:
		row, err := store.GetMemberInvitation(ctx, q, targetID)
		if err != nil {
			return "", err
		}
		return row.Name, nil
	case models.CertRequestMemberSite:
		row, err := store.GetMemberSite(ctx, q, targetID)
		if err != nil {
			return "", err
		}
		return row.Name, nil
	default:
		return "", fmt.Errorf("unknown certificate request kind %q", kind)
	}
}

// issuerObjectName resolves a CertificateRequest's issuer reference to the
// cert-manager object name of the parent TlsCertificate it should chain to.
// A nil issuerID means the request is for a root self-signed certificate
// (Backbone) or a root-external leaf (ManagementController); either way the
// collaborator is told there is no in-cluster issuer to reference.
func issuerObjectName(ctx context.Context, q sqlx.ExtContext, issuerID *string) (string, error) {
	if issuerID == nil {
		return "", nil
	}
	issuer, err := store.GetTlsCertificate(ctx, q, *issuerID)
	if err != nil {
		return "", err
	}
	return issuer.ObjectName, nil
}
