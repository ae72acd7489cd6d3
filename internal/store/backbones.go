package store

import (
	"context"
	"time"

	"github.com/fabricpilot/vanctl/internal/store/models"

	"github.com/jmoiron/sqlx"
)

// --- ManagementController ---

// GetManagementControllerByName implements the §4.4 bootstrap read: "waits
// until a ManagementController row with the configured name reaches ready;
// before that, the manager polls and inserts the row if missing."
func GetManagementControllerByName(ctx context.Context, q sqlx.ExtContext, name string) (*models.ManagementController, error) {
	var mc models.ManagementController
	err := getRow(ctx, q, &mc, `SELECT * FROM management_controllers WHERE name = $1`, name)
	if err != nil {
		return nil, err
	}
	return &mc, nil
}

// GetManagementController reads a ManagementController by id, used by the
// §4.5 CertificateRequest loop to resolve a request's target row.
func GetManagementController(ctx context.Context, q sqlx.ExtContext, id string) (*models.ManagementController, error) {
	var mc models.ManagementController
	err := getRow(ctx, q, &mc, `SELECT * FROM management_controllers WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	return &mc, nil
}

// InsertManagementController creates the bootstrap row when absent.
func InsertManagementController(ctx context.Context, q sqlx.ExtContext, name string) (*models.ManagementController, error) {
	mc := models.ManagementController{
		ID:        NewID(),
		Name:      name,
		Lifecycle: models.LifecycleNew,
		CreatedAt: time.Now(),
	}
	_, err := q.ExecContext(ctx,
		`INSERT INTO management_controllers (id, name, lifecycle, created_at) VALUES ($1,$2,$3,$4)`,
		mc.ID, mc.Name, mc.Lifecycle, mc.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &mc, nil
}

// SelectNewManagementController selects one row in lifecycle 'new', for the
// §4.5 certificate reconciler loop, FOR UPDATE SKIP LOCKED so concurrent
// reconciler replicas never double-issue a request for the same row.
func SelectNewManagementController(ctx context.Context, q sqlx.ExtContext) (*models.ManagementController, error) {
	var mc models.ManagementController
	err := getRow(ctx, q, &mc,
		`SELECT * FROM management_controllers WHERE lifecycle = 'new' ORDER BY created_at LIMIT 1 FOR UPDATE SKIP LOCKED`)
	if err != nil {
		return nil, err
	}
	return &mc, nil
}

// UpdateManagementControllerLifecycle sets lifecycle in one statement; it
// does not touch certificate_id or failure_text.
func UpdateManagementControllerLifecycle(ctx context.Context, q sqlx.ExtContext, id string, lc models.Lifecycle) error {
	_, err := q.ExecContext(ctx, `UPDATE management_controllers SET lifecycle = $1 WHERE id = $2`, lc, id)
	return err
}

// SetManagementControllerCertificate finalizes the row to ready with its
// certificate reference (§4.5 finalization).
func SetManagementControllerCertificate(ctx context.Context, q sqlx.ExtContext, id, certID string) error {
	_, err := q.ExecContext(ctx,
		`UPDATE management_controllers SET lifecycle = 'ready', certificate_id = $1 WHERE id = $2`,
		certID, id)
	return err
}

// --- Backbone ---

func GetBackbone(ctx context.Context, q sqlx.ExtContext, id string) (*models.Backbone, error) {
	var bb models.Backbone
	if err := getRow(ctx, q, &bb, `SELECT * FROM backbones WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return &bb, nil
}

// GetBackboneByName resolves the name an operator types at the CLI to a row,
// the same lookup GetManagementControllerByName does for the bootstrap
// controller.
func GetBackboneByName(ctx context.Context, q sqlx.ExtContext, name string) (*models.Backbone, error) {
	var bb models.Backbone
	if err := getRow(ctx, q, &bb, `SELECT * FROM backbones WHERE name = $1`, name); err != nil {
		return nil, err
	}
	return &bb, nil
}

// ListBackbones returns every backbone, newest first, for `vanctl backbones
// list`.
func ListBackbones(ctx context.Context, q sqlx.ExtContext) ([]models.Backbone, error) {
	var rows []models.Backbone
	err := selectRows(ctx, q, &rows, `SELECT * FROM backbones ORDER BY created_at DESC`)
	return rows, err
}

func InsertBackbone(ctx context.Context, q sqlx.ExtContext, name string, isManagement bool) (*models.Backbone, error) {
	bb := models.Backbone{
		ID:           NewID(),
		Name:         name,
		Lifecycle:    models.LifecycleNew,
		IsManagement: isManagement,
		CreatedAt:    time.Now(),
	}
	_, err := q.ExecContext(ctx,
		`INSERT INTO backbones (id, name, lifecycle, is_management, created_at) VALUES ($1,$2,$3,$4,$5)`,
		bb.ID, bb.Name, bb.Lifecycle, bb.IsManagement, bb.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &bb, nil
}

// SelectNewBackbone is the §4.5 "select one row with the kind's new
// predicate" step for Backbone: any row in lifecycle 'new'.
func SelectNewBackbone(ctx context.Context, q sqlx.ExtContext) (*models.Backbone, error) {
	var bb models.Backbone
	err := getRow(ctx, q, &bb, `SELECT * FROM backbones WHERE lifecycle = 'new' ORDER BY created_at LIMIT 1 FOR UPDATE SKIP LOCKED`)
	if err != nil {
		return nil, err
	}
	return &bb, nil
}

func UpdateBackboneLifecycle(ctx context.Context, q sqlx.ExtContext, id string, lc models.Lifecycle) error {
	_, err := q.ExecContext(ctx, `UPDATE backbones SET lifecycle = $1 WHERE id = $2`, lc, id)
	return err
}

func SetBackboneCertificate(ctx context.Context, q sqlx.ExtContext, id, certID string) error {
	_, err := q.ExecContext(ctx, `UPDATE backbones SET lifecycle = 'ready', certificate_id = $1 WHERE id = $2`, certID, id)
	return err
}

// ListReadyManageAccessPointsByReadyBackbone supports §4.4: "queries the
// database for ready manage-kind APs belonging to ready backbones, one row
// per backbone." Ties are broken by access point creation order so the
// choice is deterministic across polls.
type ReadyManageAP struct {
	BackboneID    string `db:"backbone_id"`
	AccessPointID string `db:"access_point_id"`
	Host          string `db:"host"`
	Port          string `db:"port"`
}

func ListReadyManageAccessPointsByReadyBackbone(ctx context.Context, q sqlx.ExtContext) ([]ReadyManageAP, error) {
	var rows []ReadyManageAP
	err := selectRows(ctx, q, &rows, `
		SELECT DISTINCT ON (b.id) b.id AS backbone_id, ap.id AS access_point_id, ap.host AS host, ap.port AS port
		FROM backbones b
		JOIN interior_sites s ON s.backbone_id = b.id
		JOIN backbone_access_points ap ON ap.interior_site_id = s.id
		WHERE b.lifecycle = 'ready' AND ap.lifecycle = 'ready' AND ap.kind = 'manage'
		ORDER BY b.id, ap.created_at
	`)
	return rows, err
}
