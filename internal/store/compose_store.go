package store

import (
	"context"
	"time"

	"github.com/fabricpilot/vanctl/internal/store/models"

	"github.com/jmoiron/sqlx"
)

// --- LibraryBlock ---

func GetLibraryBlock(ctx context.Context, q sqlx.ExtContext, id string) (*models.LibraryBlock, error) {
	var b models.LibraryBlock
	if err := getRow(ctx, q, &b, `SELECT * FROM library_blocks WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return &b, nil
}

// GetLatestLibraryBlockByName returns the highest-revision row for name, the
// resolution rule instance blocks use when a path references a block by
// name without pinning a revision (§4.10).
func GetLatestLibraryBlockByName(ctx context.Context, q sqlx.ExtContext, name string) (*models.LibraryBlock, error) {
	var b models.LibraryBlock
	err := getRow(ctx, q, &b, `SELECT * FROM library_blocks WHERE name = $1 ORDER BY revision DESC LIMIT 1`, name)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func GetLibraryBlockByNameRevision(ctx context.Context, q sqlx.ExtContext, name string, revision int) (*models.LibraryBlock, error) {
	var b models.LibraryBlock
	err := getRow(ctx, q, &b, `SELECT * FROM library_blocks WHERE name = $1 AND revision = $2`, name, revision)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func InsertLibraryBlock(ctx context.Context, q sqlx.ExtContext, b models.LibraryBlock) (*models.LibraryBlock, error) {
	b.ID = NewID()
	b.CreatedAt = time.Now()
	_, err := q.ExecContext(ctx,
		`INSERT INTO library_blocks (id, name, revision, type, allow_north, allow_south, allocation, composite, body_json, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		b.ID, b.Name, b.Revision, b.Type, b.AllowNorth, b.AllowSouth, b.Allocation, b.Composite, b.BodyJSON, b.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func ListLibraryBlocks(ctx context.Context, q sqlx.ExtContext) ([]models.LibraryBlock, error) {
	var rows []models.LibraryBlock
	err := selectRows(ctx, q, &rows, `SELECT * FROM library_blocks ORDER BY name, revision`)
	return rows, err
}

// --- Application ---

func GetApplication(ctx context.Context, q sqlx.ExtContext, id string) (*models.Application, error) {
	var a models.Application
	if err := getRow(ctx, q, &a, `SELECT * FROM applications WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return &a, nil
}

func GetApplicationByName(ctx context.Context, q sqlx.ExtContext, name string) (*models.Application, error) {
	var a models.Application
	if err := getRow(ctx, q, &a, `SELECT * FROM applications WHERE name = $1`, name); err != nil {
		return nil, err
	}
	return &a, nil
}

func InsertApplication(ctx context.Context, q sqlx.ExtContext, name, rootBlockID string) (*models.Application, error) {
	a := models.Application{
		ID:          NewID(),
		Name:        name,
		RootBlockID: rootBlockID,
		Lifecycle:   "new",
		CreatedAt:   time.Now(),
	}
	_, err := q.ExecContext(ctx,
		`INSERT INTO applications (id, name, root_block_id, lifecycle, build_log, deploy_log, created_at)
		 VALUES ($1,$2,$3,$4,'','',$5)`,
		a.ID, a.Name, a.RootBlockID, a.Lifecycle, a.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// UpdateApplicationBuildResult records the outcome of the compose engine's
// Build step (§4.10): lifecycle becomes "ready" on a clean build, or
// "build-warnings"/"build-errors" otherwise, with the accumulated log text.
func UpdateApplicationBuildResult(ctx context.Context, q sqlx.ExtContext, id, lifecycle, buildLog string) error {
	_, err := q.ExecContext(ctx, `UPDATE applications SET lifecycle = $1, build_log = $2 WHERE id = $3`, lifecycle, buildLog, id)
	return err
}

func UpdateApplicationDeployResult(ctx context.Context, q sqlx.ExtContext, id, lifecycle, deployLog string) error {
	_, err := q.ExecContext(ctx, `UPDATE applications SET lifecycle = $1, deploy_log = $2 WHERE id = $3`, lifecycle, deployLog, id)
	return err
}

func ListApplications(ctx context.Context, q sqlx.ExtContext) ([]models.Application, error) {
	var rows []models.Application
	err := selectRows(ctx, q, &rows, `SELECT * FROM applications ORDER BY name`)
	return rows, err
}

func DeleteApplication(ctx context.Context, q sqlx.ExtContext, id string) error {
	_, err := q.ExecContext(ctx, `DELETE FROM applications WHERE id = $1`, id)
	return err
}

// --- InstanceBlock ---

func InsertInstanceBlock(ctx context.Context, q sqlx.ExtContext, applicationID, libraryBlockID, path, configJSON string, allocateToSite bool) (*models.InstanceBlock, error) {
	ib := models.InstanceBlock{
		ID:             NewID(),
		ApplicationID:  applicationID,
		LibraryBlockID: libraryBlockID,
		Path:           path,
		ConfigJSON:     configJSON,
		AllocateToSite: allocateToSite,
		CreatedAt:      time.Now(),
	}
	_, err := q.ExecContext(ctx,
		`INSERT INTO instance_blocks (id, application_id, library_block_id, path, config_json, allocate_to_site, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		ib.ID, ib.ApplicationID, ib.LibraryBlockID, ib.Path, ib.ConfigJSON, ib.AllocateToSite, ib.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &ib, nil
}

func ListInstanceBlocksByApplication(ctx context.Context, q sqlx.ExtContext, applicationID string) ([]models.InstanceBlock, error) {
	var rows []models.InstanceBlock
	err := selectRows(ctx, q, &rows, `SELECT * FROM instance_blocks WHERE application_id = $1 ORDER BY path`, applicationID)
	return rows, err
}

func GetInstanceBlockByPath(ctx context.Context, q sqlx.ExtContext, applicationID, path string) (*models.InstanceBlock, error) {
	var ib models.InstanceBlock
	err := getRow(ctx, q, &ib, `SELECT * FROM instance_blocks WHERE application_id = $1 AND path = $2`, applicationID, path)
	if err != nil {
		return nil, err
	}
	return &ib, nil
}

// UpdateInstanceBlockConfig overwrites one instance's config_json, e.g. to
// set or change the "siteClasses" key the compose engine's Deploy step
// reads an instance's derivative target classes from.
func UpdateInstanceBlockConfig(ctx context.Context, q sqlx.ExtContext, id, configJSON string) error {
	_, err := q.ExecContext(ctx, `UPDATE instance_blocks SET config_json = $1 WHERE id = $2`, configJSON, id)
	return err
}

// SetInstanceBlockAllocateToSite records the compose engine's derivative
// generation decision (§4.10): true for every instance whose library
// block's allocation is "independent" and whose body is not composite.
func SetInstanceBlockAllocateToSite(ctx context.Context, q sqlx.ExtContext, id string, allocate bool) error {
	_, err := q.ExecContext(ctx, `UPDATE instance_blocks SET allocate_to_site = $1 WHERE id = $2`, allocate, id)
	return err
}

// --- Binding ---

func InsertBinding(ctx context.Context, q sqlx.ExtContext, applicationID, northPath, southPath, role string) (*models.Binding, error) {
	b := models.Binding{
		ID:            NewID(),
		ApplicationID: applicationID,
		NorthPath:     northPath,
		SouthPath:     southPath,
		Role:          role,
		CreatedAt:     time.Now(),
	}
	_, err := q.ExecContext(ctx,
		`INSERT INTO bindings (id, application_id, north_path, south_path, role, created_at) VALUES ($1,$2,$3,$4,$5,$6)`,
		b.ID, b.ApplicationID, b.NorthPath, b.SouthPath, b.Role, b.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func ListBindingsByApplication(ctx context.Context, q sqlx.ExtContext, applicationID string) ([]models.Binding, error) {
	var rows []models.Binding
	err := selectRows(ctx, q, &rows, `SELECT * FROM bindings WHERE application_id = $1`, applicationID)
	return rows, err
}

// --- DeployedApplication ---

func InsertDeployedApplication(ctx context.Context, q sqlx.ExtContext, applicationID, networkID string) (*models.DeployedApplication, error) {
	d := models.DeployedApplication{
		ID:            NewID(),
		ApplicationID: applicationID,
		NetworkID:     networkID,
		CreatedAt:     time.Now(),
	}
	_, err := q.ExecContext(ctx,
		`INSERT INTO deployed_applications (id, application_id, network_id, created_at) VALUES ($1,$2,$3,$4)
		 ON CONFLICT (application_id, network_id) DO NOTHING`,
		d.ID, d.ApplicationID, d.NetworkID, d.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func ListDeployedApplicationsByNetwork(ctx context.Context, q sqlx.ExtContext, networkID string) ([]models.DeployedApplication, error) {
	var rows []models.DeployedApplication
	err := selectRows(ctx, q, &rows, `SELECT * FROM deployed_applications WHERE network_id = $1`, networkID)
	return rows, err
}

func DeleteDeployedApplication(ctx context.Context, q sqlx.ExtContext, applicationID, networkID string) error {
	_, err := q.ExecContext(ctx, `DELETE FROM deployed_applications WHERE application_id = $1 AND network_id = $2`, applicationID, networkID)
	return err
}

// --- SiteData ---

// UpsertSiteData writes the per-site YAML bundle Deploy produces for one
// (member site, application) pair (§4.10, §6).
func UpsertSiteData(ctx context.Context, q sqlx.ExtContext, memberSiteID, applicationID, yaml string) (*models.SiteData, error) {
	d := models.SiteData{
		ID:            NewID(),
		MemberSiteID:  memberSiteID,
		ApplicationID: applicationID,
		YAML:          yaml,
		UpdatedAt:     time.Now(),
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO site_data (id, member_site_id, application_id, yaml, updated_at)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (member_site_id, application_id) DO UPDATE SET yaml = EXCLUDED.yaml, updated_at = EXCLUDED.updated_at
	`, d.ID, d.MemberSiteID, d.ApplicationID, d.YAML, d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func ListSiteDataByMemberSite(ctx context.Context, q sqlx.ExtContext, memberSiteID string) ([]models.SiteData, error) {
	var rows []models.SiteData
	err := selectRows(ctx, q, &rows, `SELECT * FROM site_data WHERE member_site_id = $1 ORDER BY updated_at`, memberSiteID)
	return rows, err
}
