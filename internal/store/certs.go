package store

import (
	"context"
	"time"

	"github.com/fabricpilot/vanctl/internal/store/models"

	"github.com/jmoiron/sqlx"
)

// --- TlsCertificate ---

func GetTlsCertificate(ctx context.Context, q sqlx.ExtContext, id string) (*models.TlsCertificate, error) {
	var c models.TlsCertificate
	if err := getRow(ctx, q, &c, `SELECT * FROM tls_certificates WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return &c, nil
}

func GetTlsCertificateByObjectName(ctx context.Context, q sqlx.ExtContext, objectName string) (*models.TlsCertificate, error) {
	var c models.TlsCertificate
	if err := getRow(ctx, q, &c, `SELECT * FROM tls_certificates WHERE object_name = $1`, objectName); err != nil {
		return nil, err
	}
	return &c, nil
}

// InsertTlsCertificate records a certificate once the cluster collaborator
// confirms the cert-manager Certificate object reached Ready (§4.5's
// cm_cert_created -> ready transition).
func InsertTlsCertificate(ctx context.Context, q sqlx.ExtContext, objectName string, isCA bool, signedBy *string, expiration, renewal time.Time) (*models.TlsCertificate, error) {
	c := models.TlsCertificate{
		ID:             NewID(),
		ObjectName:     objectName,
		IsCA:           isCA,
		SignedBy:       signedBy,
		ExpirationTime: expiration,
		RenewalTime:    renewal,
		CreatedAt:      time.Now(),
	}
	_, err := q.ExecContext(ctx,
		`INSERT INTO tls_certificates (id, object_name, is_ca, signed_by, expiration_time, renewal_time, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		c.ID, c.ObjectName, c.IsCA, c.SignedBy, c.ExpirationTime, c.RenewalTime, c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// UpdateTlsCertificateExpiry refreshes a certificate's expiration/renewal
// times after the watch-refresh path of §4.5 observes cert-manager rotated
// the underlying secret ahead of a new CertificateRequest ever being
// raised (cert-manager's own renewal, not a fabric-initiated one).
func UpdateTlsCertificateExpiry(ctx context.Context, q sqlx.ExtContext, id string, expiration, renewal time.Time) error {
	_, err := q.ExecContext(ctx,
		`UPDATE tls_certificates SET expiration_time = $1, renewal_time = $2 WHERE id = $3`,
		expiration, renewal, id)
	return err
}

// ListCertificatesDueForRenewal supports the §12 supplemented expiry sweep:
// certificates whose renewal_time has passed need a fresh CertificateRequest
// raised against their same target.
func ListCertificatesDueForRenewal(ctx context.Context, q sqlx.ExtContext, now time.Time) ([]models.TlsCertificate, error) {
	var rows []models.TlsCertificate
	err := selectRows(ctx, q, &rows, `SELECT * FROM tls_certificates WHERE renewal_time < $1`, now)
	return rows, err
}

// --- CertificateRequest ---

func GetCertificateRequest(ctx context.Context, q sqlx.ExtContext, id string) (*models.CertificateRequest, error) {
	var r models.CertificateRequest
	if err := getRow(ctx, q, &r, `SELECT * FROM certificate_requests WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return &r, nil
}

// InsertCertificateRequest raises a new cert job; callers supply the issuer
// (nil for self-signed / root requests) and the not-before RequestTime the
// §4.5 reconciler uses to decide when the cert-manager object should be
// created.
func InsertCertificateRequest(ctx context.Context, q sqlx.ExtContext, kind models.CertRequestKind, targetID string, issuerID *string, duration time.Duration, requestTime time.Time) (*models.CertificateRequest, error) {
	r := models.CertificateRequest{
		ID:          NewID(),
		Kind:        kind,
		TargetID:    targetID,
		IssuerID:    issuerID,
		Duration:    duration,
		RequestTime: requestTime,
		Lifecycle:   models.LifecycleNew,
		CreatedAt:   time.Now(),
	}
	_, err := q.ExecContext(ctx,
		`INSERT INTO certificate_requests (id, kind, target_id, issuer_id, duration_ns, request_time, lifecycle, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		r.ID, r.Kind, r.TargetID, r.IssuerID, int64(r.Duration), r.RequestTime, r.Lifecycle, r.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// SelectNewCertificateRequest implements §4.5's CertificateRequest loop
// predicate: lifecycle 'new' and request_time has arrived.
func SelectNewCertificateRequest(ctx context.Context, q sqlx.ExtContext, now time.Time) (*models.CertificateRequest, error) {
	var r models.CertificateRequest
	err := getRow(ctx, q, &r, `
		SELECT * FROM certificate_requests
		WHERE lifecycle = 'new' AND request_time <= $1
		ORDER BY request_time LIMIT 1 FOR UPDATE SKIP LOCKED
	`, now)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func UpdateCertificateRequestLifecycle(ctx context.Context, q sqlx.ExtContext, id string, lc models.Lifecycle) error {
	_, err := q.ExecContext(ctx, `UPDATE certificate_requests SET lifecycle = $1 WHERE id = $2`, lc, id)
	return err
}

func DeleteCertificateRequest(ctx context.Context, q sqlx.ExtContext, id string) error {
	_, err := q.ExecContext(ctx, `DELETE FROM certificate_requests WHERE id = $1`, id)
	return err
}

// ListOrphanedCertificateRequests supports the §4.5 pruning sweep: a
// CertificateRequest whose owning entity row no longer exists (deleted
// directly, e.g. an AccessPoint or MemberSite) can never finalize and
// would otherwise sit forever.
func ListOrphanedCertificateRequests(ctx context.Context, q sqlx.ExtContext) ([]models.CertificateRequest, error) {
	var rows []models.CertificateRequest
	err := selectRows(ctx, q, &rows, `
		SELECT r.* FROM certificate_requests r WHERE
		(r.kind = 'ManagementController' AND NOT EXISTS (SELECT 1 FROM management_controllers t WHERE t.id = r.target_id)) OR
		(r.kind = 'Backbone' AND NOT EXISTS (SELECT 1 FROM backbones t WHERE t.id = r.target_id)) OR
		(r.kind = 'InteriorSite' AND NOT EXISTS (SELECT 1 FROM interior_sites t WHERE t.id = r.target_id)) OR
		(r.kind = 'AccessPoint' AND NOT EXISTS (SELECT 1 FROM backbone_access_points t WHERE t.id = r.target_id)) OR
		(r.kind = 'ApplicationNetwork' AND NOT EXISTS (SELECT 1 FROM application_networks t WHERE t.id = r.target_id)) OR
		(r.kind = 'NetworkCredential' AND NOT EXISTS (SELECT 1 FROM network_credentials t WHERE t.id = r.target_id)) OR
		(r.kind = 'MemberInvitation' AND NOT EXISTS (SELECT 1 FROM member_invitations t WHERE t.id = r.target_id)) OR
		(r.kind = 'MemberSite' AND NOT EXISTS (SELECT 1 FROM member_sites t WHERE t.id = r.target_id))
	`)
	return rows, err
}

// ListUnreferencedCertificates supports the §4.5 pruning sweep's other
// half: a TlsCertificate no longer referenced by any owning entity's
// certificate_id and not acting as another certificate's issuer (signed_by)
// is a dead leaf of the trust forest. Deleting only leaves each pass makes
// repeated calls drain the forest depth-first, from the leaves inward.
func ListUnreferencedCertificates(ctx context.Context, q sqlx.ExtContext) ([]models.TlsCertificate, error) {
	var rows []models.TlsCertificate
	err := selectRows(ctx, q, &rows, `
		SELECT c.* FROM tls_certificates c WHERE
		NOT EXISTS (SELECT 1 FROM tls_certificates ch WHERE ch.signed_by = c.id) AND
		NOT EXISTS (SELECT 1 FROM management_controllers t WHERE t.certificate_id = c.id) AND
		NOT EXISTS (SELECT 1 FROM backbones t WHERE t.certificate_id = c.id) AND
		NOT EXISTS (SELECT 1 FROM interior_sites t WHERE t.certificate_id = c.id) AND
		NOT EXISTS (SELECT 1 FROM backbone_access_points t WHERE t.certificate_id = c.id) AND
		NOT EXISTS (SELECT 1 FROM application_networks t WHERE t.certificate_id = c.id) AND
		NOT EXISTS (SELECT 1 FROM network_credentials t WHERE t.certificate_id = c.id) AND
		NOT EXISTS (SELECT 1 FROM member_invitations t WHERE t.certificate_id = c.id) AND
		NOT EXISTS (SELECT 1 FROM member_sites t WHERE t.certificate_id = c.id)
	`)
	return rows, err
}

// DeleteTlsCertificate removes a dead trust-forest leaf found by
// ListUnreferencedCertificates.
func DeleteTlsCertificate(ctx context.Context, q sqlx.ExtContext, id string) error {
	_, err := q.ExecContext(ctx, `DELETE FROM tls_certificates WHERE id = $1`, id)
	return err
}

// FindCertificateOwner resolves which entity currently references certID,
// for the §12 renewal sweep to know what kind/target to raise a fresh
// CertificateRequest against.
func FindCertificateOwner(ctx context.Context, q sqlx.ExtContext, certID string) (models.CertRequestKind, string, bool, error) {
	type probe struct {
		kind  models.CertRequestKind
		table string
	}
	probes := []probe{
		{models.CertRequestManagementController, "management_controllers"},
		{models.CertRequestBackbone, "backbones"},
		{models.CertRequestInteriorSite, "interior_sites"},
		{models.CertRequestAccessPoint, "backbone_access_points"},
		{models.CertRequestApplicationNetwork, "application_networks"},
		{models.CertRequestNetworkCredential, "network_credentials"},
		{models.CertRequestMemberInvitation, "member_invitations"},
		{models.CertRequestMemberSite, "member_sites"},
	}
	for _, p := range probes {
		var id string
		err := getRow(ctx, q, &id, `SELECT id FROM `+p.table+` WHERE certificate_id = $1`, certID)
		if err == nil {
			return p.kind, id, true, nil
		}
	}
	return "", "", false, nil
}

// ListPendingCertificateRequestsByTarget supports the watch-refresh path of
// §4.5: when the cluster collaborator reports a cert-manager Certificate
// object changed, the reconciler looks up the owning request by target id.
func ListPendingCertificateRequestsByTarget(ctx context.Context, q sqlx.ExtContext, targetID string) ([]models.CertificateRequest, error) {
	var rows []models.CertificateRequest
	err := selectRows(ctx, q, &rows,
		`SELECT * FROM certificate_requests WHERE target_id = $1 AND lifecycle != 'ready' ORDER BY created_at`,
		targetID)
	return rows, err
}
