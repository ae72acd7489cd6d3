package reconciler

import (
	"context"
	"time"

	"github.com/fabricpilot/vanctl/internal/cluster"
	"github.com/fabricpilot/vanctl/internal/store"
	"github.com/fabricpilot/vanctl/internal/store/models"
	"github.com/fabricpilot/vanctl/pkg/logging"
)

// durationForKind returns the default certificate lifetime to request when
// renewing an existing certificate for kind, mirroring the defaults a first
// issuance uses (types.go's Duration* constants).
func durationForKind(kind models.CertRequestKind) time.Duration {
	switch kind {
	case models.CertRequestManagementController:
		return DurationManagementController
	case models.CertRequestBackbone:
		return DurationBackboneCA
	case models.CertRequestInteriorSite:
		return DurationInteriorSite
	case models.CertRequestAccessPoint:
		return DurationAccessPoint
	case models.CertRequestApplicationNetwork:
		return DurationApplicationNetwork
	case models.CertRequestNetworkCredential:
		return DurationNetworkCredential
	case models.CertRequestMemberInvitation:
		return DurationMemberInvitation
	case models.CertRequestMemberSite:
		return DurationMemberSite
	default:
		return DurationAccessPoint
	}
}

// pruneExpiredCertificates implements the §12 supplemented low-frequency
// renewal sweep: every TlsCertificate past its renewal_time gets a fresh
// CertificateRequest raised against the same target, chained to the same
// issuer it was originally signed by.
func pruneExpiredCertificates(ctx context.Context, st *store.Store, now func() time.Time, m *Metrics) (int, error) {
	pruned := 0
	err := st.WithTx(ctx, func(tx *store.Tx) error {
		due, err := store.ListCertificatesDueForRenewal(ctx, tx.Queryer(), now())
		if err != nil {
			return err
		}
		for _, cert := range due {
			kind, targetID, found, err := store.FindCertificateOwner(ctx, tx.Queryer(), cert.ID)
			if err != nil {
				return err
			}
			if !found {
				continue // owner already gone; the orphan sweep below will clean up
			}
			if _, err := store.InsertCertificateRequest(ctx, tx.Queryer(), kind, targetID, cert.SignedBy, durationForKind(kind), now()); err != nil {
				return err
			}
			pruned++
		}
		return nil
	})
	if m != nil && pruned > 0 {
		m.PruneDeletedTotal.WithLabelValues("renewals-raised").Add(float64(pruned))
	}
	return pruned, err
}

// pruneOrphanedCertificateRequests implements §4.5's first pruning sweep:
// a CertificateRequest whose owning entity row was deleted (e.g. an
// AccessPoint or MemberSite removed by an administrator) is deleted
// along with its best-effort cluster object.
func pruneOrphanedCertificateRequests(ctx context.Context, st *store.Store, coll cluster.Collaborator, namespace string, m *Metrics) (int, error) {
	var orphans []models.CertificateRequest
	err := st.WithTx(ctx, func(tx *store.Tx) error {
		var err error
		orphans, err = store.ListOrphanedCertificateRequests(ctx, tx.Queryer())
		if err != nil {
			return err
		}
		for _, req := range orphans {
			if err := store.DeleteCertificateRequest(ctx, tx.Queryer(), req.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	for _, req := range orphans {
		if dErr := coll.DeleteCertificate(ctx, certObjectName(req.ID), namespace); dErr != nil {
			logging.Warn(subsystem, "deleting orphaned cluster object for request %s: %v", req.ID, dErr)
		}
	}
	if m != nil && len(orphans) > 0 {
		m.PruneDeletedTotal.WithLabelValues("orphaned-requests").Add(float64(len(orphans)))
	}
	return len(orphans), nil
}

// pruneUnreferencedCertificates implements §4.5's second pruning sweep: a
// TlsCertificate row no owning entity references and that signs no other
// certificate is a dead leaf, removed along with its cluster object. Called
// repeatedly, this drains the trust forest depth-first since a cert with a
// live child is never selected until that child is itself pruned.
func pruneUnreferencedCertificates(ctx context.Context, st *store.Store, coll cluster.Collaborator, namespace string, m *Metrics) (int, error) {
	var dead []models.TlsCertificate
	err := st.WithTx(ctx, func(tx *store.Tx) error {
		var err error
		dead, err = store.ListUnreferencedCertificates(ctx, tx.Queryer())
		if err != nil {
			return err
		}
		for _, cert := range dead {
			if err := store.DeleteTlsCertificate(ctx, tx.Queryer(), cert.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	for _, cert := range dead {
		if dErr := coll.DeleteCertificate(ctx, cert.ObjectName, namespace); dErr != nil {
			logging.Warn(subsystem, "deleting unreferenced cluster object %s: %v", cert.ObjectName, dErr)
		}
	}
	if m != nil && len(dead) > 0 {
		m.PruneDeletedTotal.WithLabelValues("unreferenced-certificates").Add(float64(len(dead)))
	}
	return len(dead), nil
}
