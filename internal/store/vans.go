package store

import (
	"context"
	"time"

	"github.com/fabricpilot/vanctl/internal/store/models"

	"github.com/jmoiron/sqlx"
)

// --- ApplicationNetwork ---

func GetApplicationNetwork(ctx context.Context, q sqlx.ExtContext, id string) (*models.ApplicationNetwork, error) {
	var n models.ApplicationNetwork
	if err := getRow(ctx, q, &n, `SELECT * FROM application_networks WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return &n, nil
}

// GetApplicationNetworkByBackboneAndName resolves the (backbone, name) pair
// an operator passes to `vanctl invitations create` to a row.
func GetApplicationNetworkByBackboneAndName(ctx context.Context, q sqlx.ExtContext, backboneID, name string) (*models.ApplicationNetwork, error) {
	var n models.ApplicationNetwork
	err := getRow(ctx, q, &n, `SELECT * FROM application_networks WHERE backbone_id = $1 AND name = $2`, backboneID, name)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func InsertApplicationNetwork(ctx context.Context, q sqlx.ExtContext, backboneID, name string, validFrom, validUntil *time.Time) (*models.ApplicationNetwork, error) {
	n := models.ApplicationNetwork{
		ID:         NewID(),
		BackboneID: backboneID,
		Name:       name,
		Lifecycle:  models.LifecycleNew,
		ValidFrom:  validFrom,
		ValidUntil: validUntil,
		CreatedAt:  time.Now(),
	}
	_, err := q.ExecContext(ctx,
		`INSERT INTO application_networks (id, backbone_id, name, lifecycle, valid_from, valid_until, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		n.ID, n.BackboneID, n.Name, n.Lifecycle, n.ValidFrom, n.ValidUntil, n.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// SelectNewApplicationNetwork implements §4.5's predicate for VANs: new AND
// parent backbone ready.
func SelectNewApplicationNetwork(ctx context.Context, q sqlx.ExtContext) (*models.ApplicationNetwork, error) {
	var n models.ApplicationNetwork
	err := getRow(ctx, q, &n, `
		SELECT n.* FROM application_networks n
		JOIN backbones b ON b.id = n.backbone_id
		WHERE n.lifecycle = 'new' AND b.lifecycle = 'ready'
		ORDER BY n.created_at LIMIT 1 FOR UPDATE SKIP LOCKED OF n
	`)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func UpdateApplicationNetworkLifecycle(ctx context.Context, q sqlx.ExtContext, id string, lc models.Lifecycle) error {
	_, err := q.ExecContext(ctx, `UPDATE application_networks SET lifecycle = $1 WHERE id = $2`, lc, id)
	return err
}

func SetApplicationNetworkCertificate(ctx context.Context, q sqlx.ExtContext, id, certID string) error {
	_, err := q.ExecContext(ctx, `UPDATE application_networks SET lifecycle = 'ready', certificate_id = $1 WHERE id = $2`, certID, id)
	return err
}

func SetApplicationNetworkConnected(ctx context.Context, q sqlx.ExtContext, id string, connected bool) error {
	_, err := q.ExecContext(ctx, `UPDATE application_networks SET connected = $1 WHERE id = $2`, connected, id)
	return err
}

// ExpireApplicationNetworks implements the §12 supplemented expiry sweep:
// any ready VAN whose valid_until has passed moves to expired.
func ExpireApplicationNetworks(ctx context.Context, q sqlx.ExtContext, now time.Time) (int64, error) {
	res, err := q.ExecContext(ctx,
		`UPDATE application_networks SET lifecycle = 'expired'
		 WHERE lifecycle IN ('ready') AND valid_until IS NOT NULL AND valid_until < $1`,
		now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func ListApplicationNetworksByBackbone(ctx context.Context, q sqlx.ExtContext, backboneID string) ([]models.ApplicationNetwork, error) {
	var rows []models.ApplicationNetwork
	err := selectRows(ctx, q, &rows, `SELECT * FROM application_networks WHERE backbone_id = $1 ORDER BY created_at`, backboneID)
	return rows, err
}

// --- NetworkCredential ---

func InsertNetworkCredential(ctx context.Context, q sqlx.ExtContext, networkID string) (*models.NetworkCredential, error) {
	c := models.NetworkCredential{
		ID:        NewID(),
		NetworkID: networkID,
		Lifecycle: models.LifecycleNew,
		CreatedAt: time.Now(),
	}
	_, err := q.ExecContext(ctx,
		`INSERT INTO network_credentials (id, network_id, lifecycle, created_at) VALUES ($1,$2,$3,$4)`,
		c.ID, c.NetworkID, c.Lifecycle, c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func SelectNewNetworkCredential(ctx context.Context, q sqlx.ExtContext) (*models.NetworkCredential, error) {
	var c models.NetworkCredential
	err := getRow(ctx, q, &c, `
		SELECT c.* FROM network_credentials c
		JOIN application_networks n ON n.id = c.network_id
		WHERE c.lifecycle = 'new' AND n.lifecycle IN ('ready', 'active')
		ORDER BY c.created_at LIMIT 1 FOR UPDATE SKIP LOCKED OF c
	`)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func SetNetworkCredentialCertificate(ctx context.Context, q sqlx.ExtContext, id, certID string) error {
	_, err := q.ExecContext(ctx, `UPDATE network_credentials SET lifecycle = 'ready', certificate_id = $1 WHERE id = $2`, certID, id)
	return err
}

func UpdateNetworkCredentialLifecycle(ctx context.Context, q sqlx.ExtContext, id string, lc models.Lifecycle) error {
	_, err := q.ExecContext(ctx, `UPDATE network_credentials SET lifecycle = $1 WHERE id = $2`, lc, id)
	return err
}

func GetNetworkCredential(ctx context.Context, q sqlx.ExtContext, id string) (*models.NetworkCredential, error) {
	var c models.NetworkCredential
	if err := getRow(ctx, q, &c, `SELECT * FROM network_credentials WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return &c, nil
}

// --- MemberInvitation ---

func GetMemberInvitation(ctx context.Context, q sqlx.ExtContext, id string) (*models.MemberInvitation, error) {
	var inv models.MemberInvitation
	if err := getRow(ctx, q, &inv, `SELECT * FROM member_invitations WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return &inv, nil
}

func InsertMemberInvitation(ctx context.Context, q sqlx.ExtContext, networkID, name, classes, namePrefix string, instanceLimit int, deadline *time.Time, claimAP string) (*models.MemberInvitation, error) {
	inv := models.MemberInvitation{
		ID:               NewID(),
		NetworkID:        networkID,
		Name:             name,
		Lifecycle:        models.LifecycleNew,
		Deadline:         deadline,
		Classes:          classes,
		InstanceLimit:    instanceLimit,
		NamePrefix:       namePrefix,
		ClaimAccessPoint: claimAP,
		CreatedAt:        time.Now(),
	}
	_, err := q.ExecContext(ctx,
		`INSERT INTO member_invitations
		   (id, network_id, name, lifecycle, deadline, classes, instance_limit, instance_count, name_prefix, claim_access_point_id, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,0,$8,$9,$10)`,
		inv.ID, inv.NetworkID, inv.Name, inv.Lifecycle, inv.Deadline, inv.Classes, inv.InstanceLimit, inv.NamePrefix, inv.ClaimAccessPoint, inv.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

func SelectNewMemberInvitation(ctx context.Context, q sqlx.ExtContext) (*models.MemberInvitation, error) {
	var inv models.MemberInvitation
	err := getRow(ctx, q, &inv, `
		SELECT i.* FROM member_invitations i
		JOIN application_networks n ON n.id = i.network_id
		WHERE i.lifecycle = 'new' AND n.lifecycle IN ('ready', 'active')
		ORDER BY i.created_at LIMIT 1 FOR UPDATE SKIP LOCKED OF i
	`)
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

func SetMemberInvitationCertificate(ctx context.Context, q sqlx.ExtContext, id, certID string) error {
	_, err := q.ExecContext(ctx, `UPDATE member_invitations SET lifecycle = 'ready', certificate_id = $1 WHERE id = $2`, certID, id)
	return err
}

func UpdateMemberInvitationLifecycle(ctx context.Context, q sqlx.ExtContext, id string, lc models.Lifecycle) error {
	_, err := q.ExecContext(ctx, `UPDATE member_invitations SET lifecycle = $1 WHERE id = $2`, lc, id)
	return err
}

// IncrementInvitationInstanceCount enforces §3's instance_limit invariant:
// the row is only incremented while instance_count < instance_limit, so a
// racing claim never oversubscribes the invitation (paired with the claim
// server's completion-slot serialization, §4.8).
func IncrementInvitationInstanceCount(ctx context.Context, q sqlx.ExtContext, id string) (bool, error) {
	res, err := q.ExecContext(ctx,
		`UPDATE member_invitations SET instance_count = instance_count + 1
		 WHERE id = $1 AND instance_count < instance_limit`,
		id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// ExpireMemberInvitations implements the deadline half of §3's lifecycle:
// ready invitations past their deadline move to expired.
func ExpireMemberInvitations(ctx context.Context, q sqlx.ExtContext, now time.Time) (int64, error) {
	res, err := q.ExecContext(ctx,
		`UPDATE member_invitations SET lifecycle = 'expired'
		 WHERE lifecycle = 'ready' AND deadline IS NOT NULL AND deadline < $1`,
		now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// --- EdgeLink ---

func InsertEdgeLink(ctx context.Context, q sqlx.ExtContext, invitationID, apID string, priority int) (*models.EdgeLink, error) {
	l := models.EdgeLink{
		ID:            NewID(),
		InvitationID:  invitationID,
		AccessPointID: apID,
		Priority:      priority,
		CreatedAt:     time.Now(),
	}
	_, err := q.ExecContext(ctx,
		`INSERT INTO edge_links (id, invitation_id, access_point_id, priority, created_at) VALUES ($1,$2,$3,$4,$5)`,
		l.ID, l.InvitationID, l.AccessPointID, l.Priority, l.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// GetEdgeLink looks up a single edge link by id, used by the sync bridge to
// resolve a "link-<id>" push back to its owning invitation.
func GetEdgeLink(ctx context.Context, q sqlx.ExtContext, id string) (*models.EdgeLink, error) {
	var l models.EdgeLink
	if err := getRow(ctx, q, &l, `SELECT * FROM edge_links WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return &l, nil
}

func ListEdgeLinksByInvitation(ctx context.Context, q sqlx.ExtContext, invitationID string) ([]models.EdgeLink, error) {
	var rows []models.EdgeLink
	err := selectRows(ctx, q, &rows, `SELECT * FROM edge_links WHERE invitation_id = $1 ORDER BY priority`, invitationID)
	return rows, err
}

// --- MemberSite ---

func GetMemberSite(ctx context.Context, q sqlx.ExtContext, id string) (*models.MemberSite, error) {
	var m models.MemberSite
	if err := getRow(ctx, q, &m, `SELECT * FROM member_sites WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return &m, nil
}

// InsertMemberSite is the §4.8 claim-completion write: a new member site is
// created atomically with the invitation's instance-count increment inside
// the same WithTx call.
func InsertMemberSite(ctx context.Context, q sqlx.ExtContext, invitationID, name, siteClasses string) (*models.MemberSite, error) {
	m := models.MemberSite{
		ID:           NewID(),
		InvitationID: invitationID,
		Name:         name,
		Lifecycle:    models.LifecycleNew,
		SiteClasses:  siteClasses,
		CreatedAt:    time.Now(),
	}
	_, err := q.ExecContext(ctx,
		`INSERT INTO member_sites (id, invitation_id, name, lifecycle, site_classes, created_at) VALUES ($1,$2,$3,$4,$5,$6)`,
		m.ID, m.InvitationID, m.Name, m.Lifecycle, m.SiteClasses, m.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func SelectNewMemberSite(ctx context.Context, q sqlx.ExtContext) (*models.MemberSite, error) {
	var m models.MemberSite
	err := getRow(ctx, q, &m, `SELECT * FROM member_sites WHERE lifecycle = 'new' ORDER BY created_at LIMIT 1 FOR UPDATE SKIP LOCKED`)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func SetMemberSiteCertificate(ctx context.Context, q sqlx.ExtContext, id, certID string) error {
	_, err := q.ExecContext(ctx, `UPDATE member_sites SET lifecycle = 'ready', certificate_id = $1 WHERE id = $2`, certID, id)
	return err
}

func UpdateMemberSiteLifecycle(ctx context.Context, q sqlx.ExtContext, id string, lc models.Lifecycle) error {
	_, err := q.ExecContext(ctx, `UPDATE member_sites SET lifecycle = $1 WHERE id = $2`, lc, id)
	return err
}

// TouchMemberSiteCertificate is MemberSite's renewal-path analogue of
// TouchInteriorSiteCertificate: updates certificate_id only, so a renewal
// never regresses an 'active' member site back to 'ready'.
func TouchMemberSiteCertificate(ctx context.Context, q sqlx.ExtContext, id, certID string) error {
	_, err := q.ExecContext(ctx, `UPDATE member_sites SET certificate_id = $1 WHERE id = $2`, certID, id)
	return err
}

func ActivateMemberSite(ctx context.Context, q sqlx.ExtContext, id string, now time.Time) error {
	_, err := q.ExecContext(ctx,
		`UPDATE member_sites SET lifecycle = 'active', first_active_time = $2, last_heartbeat = $2 WHERE id = $1`,
		id, now)
	return err
}

func TouchMemberSiteHeartbeat(ctx context.Context, q sqlx.ExtContext, id string, now time.Time) error {
	_, err := q.ExecContext(ctx, `UPDATE member_sites SET last_heartbeat = $2 WHERE id = $1`, id, now)
	return err
}

func ListMemberSitesByInvitation(ctx context.Context, q sqlx.ExtContext, invitationID string) ([]models.MemberSite, error) {
	var rows []models.MemberSite
	err := selectRows(ctx, q, &rows, `SELECT * FROM member_sites WHERE invitation_id = $1 ORDER BY created_at`, invitationID)
	return rows, err
}

// ListMemberSitesByNetwork returns every member site that redeemed an
// invitation against networkID, the membership the compose engine's Deploy
// step (§4.10) fans its per-site rendering out over.
func ListMemberSitesByNetwork(ctx context.Context, q sqlx.ExtContext, networkID string) ([]models.MemberSite, error) {
	var rows []models.MemberSite
	err := selectRows(ctx, q, &rows, `
		SELECT m.* FROM member_sites m
		JOIN member_invitations i ON i.id = m.invitation_id
		WHERE i.network_id = $1
		ORDER BY m.created_at
	`, networkID)
	return rows, err
}
