package reconciler

import (
	"context"
	"fmt"
	"time"

	"github.com/fabricpilot/vanctl/internal/apperr"
	"github.com/fabricpilot/vanctl/internal/claim"
	"github.com/fabricpilot/vanctl/internal/cluster"
	"github.com/fabricpilot/vanctl/internal/deploystate"
	"github.com/fabricpilot/vanctl/internal/store"
	"github.com/fabricpilot/vanctl/internal/store/models"
	"github.com/fabricpilot/vanctl/internal/syncbridge"
	"github.com/fabricpilot/vanctl/pkg/logging"

	"github.com/jmoiron/sqlx"
)

// finalizeNotify carries what happened to a finalized CertificateRequest
// out of its transaction, so the syncbridge/claim notifications of §4.5's
// finalization step only fire after the commit that made them true.
type finalizeNotify struct {
	kind     models.CertRequestKind
	targetID string
	failed   bool
	errText  string
}

// watchFinalizer drains cluster.Collaborator.WatchCertificates and finalizes
// or refreshes each reported object, until ctx is cancelled.
func watchFinalizer(ctx context.Context, st *store.Store, coll cluster.Collaborator, namespace string, bridge *syncbridge.Bridge, claimSrv *claim.Server, m *Metrics) error {
	ch, err := coll.WatchCertificates(ctx)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case objectName, ok := <-ch:
			if !ok {
				return nil
			}
			if err := handleCertificateEvent(ctx, st, coll, namespace, objectName, bridge, claimSrv, m); err != nil {
				logging.Error(subsystem, err, "handling certificate event for %s", objectName)
			}
		}
	}
}

const subsystem = "Reconciler"

// handleCertificateEvent implements §4.5's finalization (cm_cert_created ->
// ready) and watch-refresh (keep an already-ready TlsCertificate's
// expiration/renewal times current) paths for one reported object name.
func handleCertificateEvent(ctx context.Context, st *store.Store, coll cluster.Collaborator, namespace, objectName string, bridge *syncbridge.Bridge, claimSrv *claim.Server, m *Metrics) error {
	status, err := coll.GetCertificateStatus(ctx, objectName, namespace)
	if err != nil {
		return err
	}
	if !status.Ready && !status.Failed {
		return nil // still progressing inside cert-manager
	}

	if _, err := store.GetTlsCertificateByObjectName(ctx, st.Queryer(), objectName); err == nil {
		return refreshExistingCertificate(ctx, st, objectName, status)
	} else if !apperr.Is(err, apperr.KindNotFound) {
		return err
	}
	if requestID, ok := certRequestIDFromObjectName(objectName); ok {
		return finalizePendingRequest(ctx, st, coll, requestID, objectName, status, bridge, claimSrv, m)
	}
	return refreshExistingCertificate(ctx, st, objectName, status)
}

func finalizePendingRequest(ctx context.Context, st *store.Store, coll cluster.Collaborator, requestID, objectName string, status cluster.CertificateStatus, bridge *syncbridge.Bridge, claimSrv *claim.Server, m *Metrics) error {
	var notify *finalizeNotify
	err := st.WithTx(ctx, func(tx *store.Tx) error {
		req, err := store.GetCertificateRequest(ctx, tx.Queryer(), requestID)
		if err != nil {
			return ignoreNotFound(err) // already finalized by a prior event
		}
		if req.Lifecycle != models.LifecycleCmCertCreated {
			return nil
		}

		if status.Failed {
			if err := markTargetFailed(ctx, tx.Queryer(), req.Kind, req.TargetID, status.FailureMessage); err != nil {
				return err
			}
			notify = &finalizeNotify{kind: req.Kind, targetID: req.TargetID, failed: true, errText: status.FailureMessage}
			return store.DeleteCertificateRequest(ctx, tx.Queryer(), req.ID)
		}

		cert, err := store.InsertTlsCertificate(ctx, tx.Queryer(), objectName, certIsCA(req.Kind), req.IssuerID, status.ExpirationTime, status.RenewalTime)
		if err != nil {
			return err
		}
		if certIsCA(req.Kind) {
			// This kind signs a descendant kind in the trust forest (§4.5):
			// its certificate's secret must be fronted by a ClusterIssuer of
			// the same name before any descendant's issuerRef can resolve.
			if err := coll.ApplyObject(ctx, cluster.NewIssuerObject(objectName, objectName)); err != nil {
				return fmt.Errorf("applying issuer for %s: %w", objectName, err)
			}
		}
		renewal, err := targetAlreadyIssued(ctx, tx.Queryer(), req.Kind, req.TargetID)
		if err != nil {
			return err
		}
		if renewal {
			// The §12 expiry sweep raised this request for an entity that
			// already completed first issuance (InteriorSite/MemberSite may
			// since have advanced to 'active'); only swap the certificate
			// reference, never regress lifecycle back to 'ready'.
			if err := touchTargetCertificate(ctx, tx.Queryer(), req.Kind, req.TargetID, cert.ID); err != nil {
				return err
			}
		} else if err := setTargetCertificate(ctx, tx.Queryer(), req.Kind, req.TargetID, cert.ID); err != nil {
			return err
		}
		if req.Kind == models.CertRequestInteriorSite {
			site, err := store.GetInteriorSite(ctx, tx.Queryer(), req.TargetID)
			if err != nil {
				return err
			}
			if _, err := deploystate.Evaluate(ctx, tx.Queryer(), site); err != nil {
				return err
			}
		}
		if m != nil {
			m.FinalizeLatency.Observe(time.Since(req.CreatedAt).Seconds())
		}
		notify = &finalizeNotify{kind: req.Kind, targetID: req.TargetID}
		return store.DeleteCertificateRequest(ctx, tx.Queryer(), req.ID)
	})
	if err != nil {
		if m != nil {
			m.CertRequestsFailed.Inc()
		}
		return err
	}
	if notify != nil {
		dispatchNotify(ctx, bridge, claimSrv, notify)
	}
	return nil
}

func refreshExistingCertificate(ctx context.Context, st *store.Store, objectName string, status cluster.CertificateStatus) error {
	if status.Failed {
		// A post-ready renewal failure leaves the existing certificate valid
		// until its current expiration; the §12 expiry sweep raises a fresh
		// CertificateRequest well before then, so nothing to do here.
		return nil
	}
	return st.WithTx(ctx, func(tx *store.Tx) error {
		cert, err := store.GetTlsCertificateByObjectName(ctx, tx.Queryer(), objectName)
		if err != nil {
			return ignoreNotFound(err)
		}
		return store.UpdateTlsCertificateExpiry(ctx, tx.Queryer(), cert.ID, status.ExpirationTime, status.RenewalTime)
	})
}

// setTargetCertificate dispatches to the per-kind store function that sets
// certificate_id and advances lifecycle to ready in one statement.
func setTargetCertificate(ctx context.Context, q sqlx.ExtContext, kind models.CertRequestKind, targetID, certID string) error {
	switch kind {
	case models.CertRequestManagementController:
		return store.SetManagementControllerCertificate(ctx, q, targetID, certID)
	case models.CertRequestBackbone:
		return store.SetBackboneCertificate(ctx, q, targetID, certID)
	case models.CertRequestInteriorSite:
		return store.SetInteriorSiteCertificate(ctx, q, targetID, certID)
	case models.CertRequestAccessPoint:
		return store.SetAccessPointCertificate(ctx, q, targetID, certID)
	case models.CertRequestApplicationNetwork:
		return store.SetApplicationNetworkCertificate(ctx, q, targetID, certID)
	case models.CertRequestNetworkCredential:
		return store.SetNetworkCredentialCertificate(ctx, q, targetID, certID)
	case models.CertRequestMemberInvitation:
		return store.SetMemberInvitationCertificate(ctx, q, targetID, certID)
	case models.CertRequestMemberSite:
		return store.SetMemberSiteCertificate(ctx, q, targetID, certID)
	default:
		return nil
	}
}

// targetAlreadyIssued reports whether targetID already carries a
// certificate reference, distinguishing a renewal request (raised by the
// §12 expiry sweep against an entity long past first issuance) from a
// first-time issuance.
func targetAlreadyIssued(ctx context.Context, q sqlx.ExtContext, kind models.CertRequestKind, targetID string) (bool, error) {
	switch kind {
	case models.CertRequestInteriorSite:
		row, err := store.GetInteriorSite(ctx, q, targetID)
		if err != nil {
			return false, err
		}
		return row.CertificateID != nil, nil
	case models.CertRequestMemberSite:
		row, err := store.GetMemberSite(ctx, q, targetID)
		if err != nil {
			return false, err
		}
		return row.CertificateID != nil, nil
	default:
		return false, nil
	}
}

// touchTargetCertificate is the renewal counterpart of setTargetCertificate
// for the two kinds with an 'active' lifecycle state beyond 'ready'.
func touchTargetCertificate(ctx context.Context, q sqlx.ExtContext, kind models.CertRequestKind, targetID, certID string) error {
	switch kind {
	case models.CertRequestInteriorSite:
		return store.TouchInteriorSiteCertificate(ctx, q, targetID, certID)
	case models.CertRequestMemberSite:
		return store.TouchMemberSiteCertificate(ctx, q, targetID, certID)
	default:
		return setTargetCertificate(ctx, q, kind, targetID, certID)
	}
}

func markTargetFailed(ctx context.Context, q sqlx.ExtContext, kind models.CertRequestKind, targetID, reason string) error {
	switch kind {
	case models.CertRequestManagementController:
		return store.SetManagementControllerFailed(ctx, q, targetID, reason)
	case models.CertRequestBackbone:
		return store.SetBackboneFailed(ctx, q, targetID, reason)
	case models.CertRequestInteriorSite:
		return store.SetInteriorSiteFailed(ctx, q, targetID, reason)
	case models.CertRequestAccessPoint:
		return store.SetAccessPointFailed(ctx, q, targetID, reason)
	case models.CertRequestApplicationNetwork:
		return store.SetApplicationNetworkFailed(ctx, q, targetID, reason)
	case models.CertRequestNetworkCredential:
		return store.SetNetworkCredentialFailed(ctx, q, targetID, reason)
	case models.CertRequestMemberInvitation:
		return store.SetMemberInvitationFailed(ctx, q, targetID, reason)
	case models.CertRequestMemberSite:
		return store.SetMemberSiteFailed(ctx, q, targetID, reason)
	default:
		return nil
	}
}

// dispatchNotify fires the post-commit notifications §4.5 describes: the
// sync bridge for InteriorSite/AccessPoint certificate changes, and the
// claim server's blocked completion for MemberSite.
func dispatchNotify(ctx context.Context, bridge *syncbridge.Bridge, claimSrv *claim.Server, n *finalizeNotify) {
	switch n.kind {
	case models.CertRequestInteriorSite:
		if bridge != nil {
			bridge.SiteCertificateChanged(ctx, n.targetID)
		}
	case models.CertRequestAccessPoint:
		if bridge != nil {
			bridge.AccessCertificateChanged(ctx, n.targetID)
		}
	case models.CertRequestMemberSite:
		if claimSrv == nil {
			return
		}
		if n.failed {
			claimSrv.CompleteMemberError(n.targetID, apperr.Fatal("%s", n.errText))
		} else {
			claimSrv.CompleteMember(ctx, n.targetID)
		}
	}
}
