package reconciler

import (
	"context"
	"time"

	"github.com/fabricpilot/vanctl/internal/apperr"
	"github.com/fabricpilot/vanctl/internal/store"
	"github.com/fabricpilot/vanctl/internal/store/models"
)

// The per-kind advance functions below implement the §4.5(a) loop: select
// one row stuck at lifecycle 'new' (FOR UPDATE SKIP LOCKED, so concurrent
// controller replicas never race on the same row), raise a
// CertificateRequest referencing its issuer's current certificate, and move
// the row to skx_cr_created -- all inside one transaction. An entity whose
// issuer hasn't reached 'ready' yet (no CertificateID) is left at 'new' for
// a later pass; that's reported as "no row processed" rather than an error,
// since it's an expected steady-state condition, not a failure.

func advanceManagementController(ctx context.Context, st *store.Store, m *Metrics) (bool, error) {
	processed := false
	err := st.WithTx(ctx, func(tx *store.Tx) error {
		row, err := store.SelectNewManagementController(ctx, tx.Queryer())
		if err != nil {
			return ignoreNotFound(err)
		}
		if err := raiseCertificateRequest(ctx, tx, models.CertRequestManagementController, row.ID, nil, DurationManagementController); err != nil {
			return err
		}
		processed = true
		return store.UpdateManagementControllerLifecycle(ctx, tx.Queryer(), row.ID, models.LifecycleSkxCrCreated)
	})
	recordAttempt(m, KindManagementController, err)
	return processed, err
}

func advanceBackbone(ctx context.Context, st *store.Store, m *Metrics) (bool, error) {
	processed := false
	err := st.WithTx(ctx, func(tx *store.Tx) error {
		row, err := store.SelectNewBackbone(ctx, tx.Queryer())
		if err != nil {
			return ignoreNotFound(err)
		}
		// Backbones are the root of the trust forest: self-signed, no issuer.
		if err := raiseCertificateRequest(ctx, tx, models.CertRequestBackbone, row.ID, nil, DurationBackboneCA); err != nil {
			return err
		}
		processed = true
		return store.UpdateBackboneLifecycle(ctx, tx.Queryer(), row.ID, models.LifecycleSkxCrCreated)
	})
	recordAttempt(m, KindBackbone, err)
	return processed, err
}

func advanceInteriorSite(ctx context.Context, st *store.Store, m *Metrics) (bool, error) {
	processed := false
	err := st.WithTx(ctx, func(tx *store.Tx) error {
		row, err := store.SelectNewInteriorSite(ctx, tx.Queryer())
		if err != nil {
			return ignoreNotFound(err)
		}
		backbone, err := store.GetBackbone(ctx, tx.Queryer(), row.BackboneID)
		if err != nil {
			return err
		}
		if backbone.CertificateID == nil {
			return nil // backbone CA not ready yet, try again next pass
		}
		if err := raiseCertificateRequest(ctx, tx, models.CertRequestInteriorSite, row.ID, backbone.CertificateID, DurationInteriorSite); err != nil {
			return err
		}
		processed = true
		return store.UpdateInteriorSiteLifecycle(ctx, tx.Queryer(), row.ID, models.LifecycleSkxCrCreated)
	})
	recordAttempt(m, KindInteriorSite, err)
	return processed, err
}

func advanceAccessPoint(ctx context.Context, st *store.Store, m *Metrics) (bool, error) {
	processed := false
	err := st.WithTx(ctx, func(tx *store.Tx) error {
		row, err := store.SelectNewAccessPoint(ctx, tx.Queryer())
		if err != nil {
			return ignoreNotFound(err)
		}
		site, err := store.GetInteriorSite(ctx, tx.Queryer(), row.InteriorSiteID)
		if err != nil {
			return err
		}
		if site.CertificateID == nil {
			return nil // owning site not ready yet
		}
		if err := raiseCertificateRequest(ctx, tx, models.CertRequestAccessPoint, row.ID, site.CertificateID, DurationAccessPoint); err != nil {
			return err
		}
		processed = true
		return store.UpdateAccessPointLifecycle(ctx, tx.Queryer(), row.ID, models.LifecycleSkxCrCreated)
	})
	recordAttempt(m, KindAccessPoint, err)
	return processed, err
}

func advanceApplicationNetwork(ctx context.Context, st *store.Store, m *Metrics) (bool, error) {
	processed := false
	err := st.WithTx(ctx, func(tx *store.Tx) error {
		row, err := store.SelectNewApplicationNetwork(ctx, tx.Queryer())
		if err != nil {
			return ignoreNotFound(err)
		}
		backbone, err := store.GetBackbone(ctx, tx.Queryer(), row.BackboneID)
		if err != nil {
			return err
		}
		if backbone.CertificateID == nil {
			return nil
		}
		if err := raiseCertificateRequest(ctx, tx, models.CertRequestApplicationNetwork, row.ID, backbone.CertificateID, DurationApplicationNetwork); err != nil {
			return err
		}
		processed = true
		return store.UpdateApplicationNetworkLifecycle(ctx, tx.Queryer(), row.ID, models.LifecycleSkxCrCreated)
	})
	recordAttempt(m, KindApplicationNetwork, err)
	return processed, err
}

func advanceNetworkCredential(ctx context.Context, st *store.Store, m *Metrics) (bool, error) {
	processed := false
	err := st.WithTx(ctx, func(tx *store.Tx) error {
		row, err := store.SelectNewNetworkCredential(ctx, tx.Queryer())
		if err != nil {
			return ignoreNotFound(err)
		}
		van, err := store.GetApplicationNetwork(ctx, tx.Queryer(), row.NetworkID)
		if err != nil {
			return err
		}
		if van.CertificateID == nil {
			return nil
		}
		if err := raiseCertificateRequest(ctx, tx, models.CertRequestNetworkCredential, row.ID, van.CertificateID, DurationNetworkCredential); err != nil {
			return err
		}
		processed = true
		return store.UpdateNetworkCredentialLifecycle(ctx, tx.Queryer(), row.ID, models.LifecycleSkxCrCreated)
	})
	recordAttempt(m, KindNetworkCredential, err)
	return processed, err
}

func advanceMemberInvitation(ctx context.Context, st *store.Store, m *Metrics) (bool, error) {
	processed := false
	err := st.WithTx(ctx, func(tx *store.Tx) error {
		row, err := store.SelectNewMemberInvitation(ctx, tx.Queryer())
		if err != nil {
			return ignoreNotFound(err)
		}
		van, err := store.GetApplicationNetwork(ctx, tx.Queryer(), row.NetworkID)
		if err != nil {
			return err
		}
		if van.CertificateID == nil {
			return nil
		}
		if err := raiseCertificateRequest(ctx, tx, models.CertRequestMemberInvitation, row.ID, van.CertificateID, DurationMemberInvitation); err != nil {
			return err
		}
		processed = true
		return store.UpdateMemberInvitationLifecycle(ctx, tx.Queryer(), row.ID, models.LifecycleSkxCrCreated)
	})
	recordAttempt(m, KindMemberInvitation, err)
	return processed, err
}

func advanceMemberSite(ctx context.Context, st *store.Store, m *Metrics) (bool, error) {
	processed := false
	err := st.WithTx(ctx, func(tx *store.Tx) error {
		row, err := store.SelectNewMemberSite(ctx, tx.Queryer())
		if err != nil {
			return ignoreNotFound(err)
		}
		invitation, err := store.GetMemberInvitation(ctx, tx.Queryer(), row.InvitationID)
		if err != nil {
			return err
		}
		if invitation.CertificateID == nil {
			return nil
		}
		if err := raiseCertificateRequest(ctx, tx, models.CertRequestMemberSite, row.ID, invitation.CertificateID, DurationMemberSite); err != nil {
			return err
		}
		processed = true
		return store.UpdateMemberSiteLifecycle(ctx, tx.Queryer(), row.ID, models.LifecycleSkxCrCreated)
	})
	recordAttempt(m, KindMemberSite, err)
	return processed, err
}

// raiseCertificateRequest inserts the CertificateRequest row a target
// entity's lifecycle advance needs, with request_time "now". Renewal
// requests are raised separately by the expiry sweep in pruning.go.
func raiseCertificateRequest(ctx context.Context, tx *store.Tx, kind models.CertRequestKind, targetID string, issuerID *string, duration time.Duration) error {
	_, err := store.InsertCertificateRequest(ctx, tx.Queryer(), kind, targetID, issuerID, duration, time.Now())
	return err
}

func ignoreNotFound(err error) error {
	if apperr.Is(err, apperr.KindNotFound) {
		return nil
	}
	return err
}

func recordAttempt(m *Metrics, kind Kind, err error) {
	if m == nil {
		return
	}
	m.ReconcileAttempts.WithLabelValues(string(kind)).Inc()
	if err != nil {
		m.ReconcileFailures.WithLabelValues(string(kind)).Inc()
	}
}
