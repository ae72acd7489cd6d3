package store

import (
	"context"
	"time"

	"github.com/fabricpilot/vanctl/internal/store/models"

	"github.com/jmoiron/sqlx"
)

// --- InteriorSite ---

func GetInteriorSite(ctx context.Context, q sqlx.ExtContext, id string) (*models.InteriorSite, error) {
	var s models.InteriorSite
	if err := getRow(ctx, q, &s, `SELECT * FROM interior_sites WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return &s, nil
}

// GetInteriorSiteByBackboneAndName resolves the (backbone, name) pair an
// operator gives `vanctl sites ingress` to a row.
func GetInteriorSiteByBackboneAndName(ctx context.Context, q sqlx.ExtContext, backboneID, name string) (*models.InteriorSite, error) {
	var s models.InteriorSite
	err := getRow(ctx, q, &s, `SELECT * FROM interior_sites WHERE backbone_id = $1 AND name = $2`, backboneID, name)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func InsertInteriorSite(ctx context.Context, q sqlx.ExtContext, backboneID, name, platform string) (*models.InteriorSite, error) {
	s := models.InteriorSite{
		ID:              NewID(),
		BackboneID:      backboneID,
		Name:            name,
		Lifecycle:       models.LifecycleNew,
		DeploymentState: models.DeploymentNotReady,
		Platform:        platform,
		CreatedAt:       time.Now(),
	}
	_, err := q.ExecContext(ctx,
		`INSERT INTO interior_sites (id, backbone_id, name, lifecycle, deployment_state, platform, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		s.ID, s.BackboneID, s.Name, s.Lifecycle, s.DeploymentState, s.Platform, s.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// SelectNewInteriorSite implements the AP-style predicate from §4.5: the
// site is 'new' AND its parent backbone is 'ready'.
func SelectNewInteriorSite(ctx context.Context, q sqlx.ExtContext) (*models.InteriorSite, error) {
	var s models.InteriorSite
	err := getRow(ctx, q, &s, `
		SELECT s.* FROM interior_sites s
		JOIN backbones b ON b.id = s.backbone_id
		WHERE s.lifecycle = 'new' AND b.lifecycle = 'ready'
		ORDER BY s.created_at LIMIT 1 FOR UPDATE SKIP LOCKED OF s
	`)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func UpdateInteriorSiteLifecycle(ctx context.Context, q sqlx.ExtContext, id string, lc models.Lifecycle) error {
	_, err := q.ExecContext(ctx, `UPDATE interior_sites SET lifecycle = $1 WHERE id = $2`, lc, id)
	return err
}

func SetInteriorSiteCertificate(ctx context.Context, q sqlx.ExtContext, id, certID string) error {
	_, err := q.ExecContext(ctx, `UPDATE interior_sites SET lifecycle = 'ready', certificate_id = $1 WHERE id = $2`, certID, id)
	return err
}

// TouchInteriorSiteCertificate updates only certificate_id, for the §12
// renewal sweep refreshing an already-active site's credential without
// regressing its lifecycle back to 'ready' the way SetInteriorSiteCertificate
// (first-issuance only) would.
func TouchInteriorSiteCertificate(ctx context.Context, q sqlx.ExtContext, id, certID string) error {
	_, err := q.ExecContext(ctx, `UPDATE interior_sites SET certificate_id = $1 WHERE id = $2`, certID, id)
	return err
}

// ActivateInteriorSite performs the "active" transition C7 owns on first
// heartbeat when the site is ready (§3 Lifecycles).
func ActivateInteriorSite(ctx context.Context, q sqlx.ExtContext, id string, now time.Time) error {
	_, err := q.ExecContext(ctx,
		`UPDATE interior_sites SET lifecycle = 'active', first_active_time = $2, last_heartbeat = $2 WHERE id = $1`,
		id, now)
	return err
}

func TouchInteriorSiteHeartbeat(ctx context.Context, q sqlx.ExtContext, id string, now time.Time) error {
	_, err := q.ExecContext(ctx, `UPDATE interior_sites SET last_heartbeat = $2 WHERE id = $1`, id, now)
	return err
}

func UpdateInteriorSiteDeploymentState(ctx context.Context, q sqlx.ExtContext, id string, state models.DeploymentState) error {
	_, err := q.ExecContext(ctx, `UPDATE interior_sites SET deployment_state = $1 WHERE id = $2`, state, id)
	return err
}

// ListInteriorSitesByBackbone supports site-template expansion and CLI status.
func ListInteriorSitesByBackbone(ctx context.Context, q sqlx.ExtContext, backboneID string) ([]models.InteriorSite, error) {
	var rows []models.InteriorSite
	err := selectRows(ctx, q, &rows, `SELECT * FROM interior_sites WHERE backbone_id = $1 ORDER BY created_at`, backboneID)
	return rows, err
}

// StalePeers answers the §9/§13 Open Question #3 query hook: rows whose
// LastHeartbeat is older than window. No reconciler consumes this yet --
// peer-lost detection is intentionally not wired, per the spec.
func StalePeers(ctx context.Context, q sqlx.ExtContext, window time.Duration) ([]models.InteriorSite, error) {
	var rows []models.InteriorSite
	err := selectRows(ctx, q, &rows,
		`SELECT * FROM interior_sites WHERE last_heartbeat IS NOT NULL AND last_heartbeat < $1`,
		time.Now().Add(-window))
	return rows, err
}

// --- BackboneAccessPoint ---

func GetAccessPoint(ctx context.Context, q sqlx.ExtContext, id string) (*models.BackboneAccessPoint, error) {
	var ap models.BackboneAccessPoint
	if err := getRow(ctx, q, &ap, `SELECT * FROM backbone_access_points WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return &ap, nil
}

// InsertAccessPoint creates an AP. Per §3 invariant 3, lifecycle starts
// 'partial' unless both host and port are supplied at creation time, in
// which case it starts 'new' directly.
func InsertAccessPoint(ctx context.Context, q sqlx.ExtContext, siteID string, kind models.AccessPointKind, bindHost string, host, port *string) (*models.BackboneAccessPoint, error) {
	lc := models.LifecyclePartial
	if host != nil && port != nil {
		lc = models.LifecycleNew
	}
	ap := models.BackboneAccessPoint{
		ID:             NewID(),
		InteriorSiteID: siteID,
		Kind:           kind,
		Lifecycle:      lc,
		Host:           host,
		Port:           port,
		BindHost:       &bindHost,
		CreatedAt:      time.Now(),
	}
	_, err := q.ExecContext(ctx,
		`INSERT INTO backbone_access_points (id, interior_site_id, kind, lifecycle, host, port, bind_host, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		ap.ID, ap.InteriorSiteID, ap.Kind, ap.Lifecycle, ap.Host, ap.Port, ap.BindHost, ap.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &ap, nil
}

// PromoteAccessPointToNew moves a 'partial' AP to 'new' once host/port are
// both known (§3 invariant 3, §4.7 onStateChange).
func PromoteAccessPointToNew(ctx context.Context, q sqlx.ExtContext, id, host, port string) error {
	_, err := q.ExecContext(ctx,
		`UPDATE backbone_access_points SET lifecycle = 'new', host = $2, port = $3 WHERE id = $1 AND lifecycle = 'partial'`,
		id, host, port)
	return err
}

// SelectNewAccessPoint implements §4.5's AP predicate:
// lifecycle='new' AND parent backbone='ready'.
func SelectNewAccessPoint(ctx context.Context, q sqlx.ExtContext) (*models.BackboneAccessPoint, error) {
	var ap models.BackboneAccessPoint
	err := getRow(ctx, q, &ap, `
		SELECT ap.* FROM backbone_access_points ap
		JOIN interior_sites s ON s.id = ap.interior_site_id
		JOIN backbones b ON b.id = s.backbone_id
		WHERE ap.lifecycle = 'new' AND b.lifecycle = 'ready'
		ORDER BY ap.created_at LIMIT 1 FOR UPDATE SKIP LOCKED OF ap
	`)
	if err != nil {
		return nil, err
	}
	return &ap, nil
}

func UpdateAccessPointLifecycle(ctx context.Context, q sqlx.ExtContext, id string, lc models.Lifecycle) error {
	_, err := q.ExecContext(ctx, `UPDATE backbone_access_points SET lifecycle = $1 WHERE id = $2`, lc, id)
	return err
}

func SetAccessPointCertificate(ctx context.Context, q sqlx.ExtContext, id, certID string) error {
	_, err := q.ExecContext(ctx, `UPDATE backbone_access_points SET lifecycle = 'ready', certificate_id = $1 WHERE id = $2`, certID, id)
	return err
}

func DeleteAccessPoint(ctx context.Context, q sqlx.ExtContext, id string) error {
	_, err := q.ExecContext(ctx, `DELETE FROM backbone_access_points WHERE id = $1`, id)
	return err
}

// ListAccessPointsBySite supports site bundle download (§6) and bridge
// manifest construction (§4.7).
func ListAccessPointsBySite(ctx context.Context, q sqlx.ExtContext, siteID string) ([]models.BackboneAccessPoint, error) {
	var rows []models.BackboneAccessPoint
	err := selectRows(ctx, q, &rows, `SELECT * FROM backbone_access_points WHERE interior_site_id = $1 ORDER BY created_at`, siteID)
	return rows, err
}

func ListReadyAccessPointsBySiteAndKind(ctx context.Context, q sqlx.ExtContext, siteID string, kind models.AccessPointKind) ([]models.BackboneAccessPoint, error) {
	var rows []models.BackboneAccessPoint
	err := selectRows(ctx, q, &rows,
		`SELECT * FROM backbone_access_points WHERE interior_site_id = $1 AND kind = $2 AND lifecycle = 'ready' ORDER BY created_at`,
		siteID, kind)
	return rows, err
}

// --- InterRouterLink ---

// InsertInterRouterLink enforces §3 invariant 5 at the call site (callers
// must have already checked AP.Kind == peer and same-backbone membership;
// internal/deploystate re-validates when evaluating).
func InsertInterRouterLink(ctx context.Context, q sqlx.ExtContext, connectingSiteID, apID string, cost int) (*models.InterRouterLink, error) {
	l := models.InterRouterLink{
		ID:                     NewID(),
		ConnectingInteriorSite: connectingSiteID,
		AccessPointID:          apID,
		Cost:                   cost,
		CreatedAt:              time.Now(),
	}
	_, err := q.ExecContext(ctx,
		`INSERT INTO inter_router_links (id, connecting_interior_site_id, access_point_id, cost, created_at) VALUES ($1,$2,$3,$4,$5)`,
		l.ID, l.ConnectingInteriorSite, l.AccessPointID, l.Cost, l.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// GetInterRouterLink looks up a single link by id, used by the sync bridge
// to resolve a "link-<id>" state key back to its host/port/cost payload.
func GetInterRouterLink(ctx context.Context, q sqlx.ExtContext, id string) (*models.InterRouterLink, error) {
	var l models.InterRouterLink
	if err := getRow(ctx, q, &l, `SELECT * FROM inter_router_links WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return &l, nil
}

func DeleteInterRouterLink(ctx context.Context, q sqlx.ExtContext, id string) error {
	_, err := q.ExecContext(ctx, `DELETE FROM inter_router_links WHERE id = $1`, id)
	return err
}

func ListLinksByConnectingSite(ctx context.Context, q sqlx.ExtContext, siteID string) ([]models.InterRouterLink, error) {
	var rows []models.InterRouterLink
	err := selectRows(ctx, q, &rows, `SELECT * FROM inter_router_links WHERE connecting_interior_site_id = $1`, siteID)
	return rows, err
}

// ListLinksIntoSite finds links whose target AP belongs to siteID, for the
// §4.6 cascade ("every site with a link into this site is re-evaluated").
func ListLinksIntoSite(ctx context.Context, q sqlx.ExtContext, siteID string) ([]models.InterRouterLink, error) {
	var rows []models.InterRouterLink
	err := selectRows(ctx, q, &rows, `
		SELECT l.* FROM inter_router_links l
		JOIN backbone_access_points ap ON ap.id = l.access_point_id
		WHERE ap.interior_site_id = $1
	`, siteID)
	return rows, err
}
