package store

import (
	"context"

	"github.com/jmoiron/sqlx"
)

// The Set<Kind>Failed functions implement the §4.5 failure path: a
// cert-manager Certificate that never reaches Ready moves its owning row to
// lifecycle 'failed' with a human-readable reason instead of leaving it
// stuck in cm_cert_created forever.

func SetManagementControllerFailed(ctx context.Context, q sqlx.ExtContext, id, reason string) error {
	_, err := q.ExecContext(ctx, `UPDATE management_controllers SET lifecycle = 'failed', failure_text = $1 WHERE id = $2`, reason, id)
	return err
}

func SetBackboneFailed(ctx context.Context, q sqlx.ExtContext, id, reason string) error {
	_, err := q.ExecContext(ctx, `UPDATE backbones SET lifecycle = 'failed', failure_text = $1 WHERE id = $2`, reason, id)
	return err
}

func SetInteriorSiteFailed(ctx context.Context, q sqlx.ExtContext, id, reason string) error {
	_, err := q.ExecContext(ctx, `UPDATE interior_sites SET lifecycle = 'failed', failure_text = $1 WHERE id = $2`, reason, id)
	return err
}

func SetAccessPointFailed(ctx context.Context, q sqlx.ExtContext, id, reason string) error {
	_, err := q.ExecContext(ctx, `UPDATE backbone_access_points SET lifecycle = 'failed', failure_text = $1 WHERE id = $2`, reason, id)
	return err
}

func SetApplicationNetworkFailed(ctx context.Context, q sqlx.ExtContext, id, reason string) error {
	_, err := q.ExecContext(ctx, `UPDATE application_networks SET lifecycle = 'failed', failure_text = $1 WHERE id = $2`, reason, id)
	return err
}

// SetNetworkCredentialFailed marks the credential failed; the table carries
// no failure_text column since NetworkCredential has no admin-facing status
// surface distinct from its owning ApplicationNetwork's.
func SetNetworkCredentialFailed(ctx context.Context, q sqlx.ExtContext, id, reason string) error {
	_, err := q.ExecContext(ctx, `UPDATE network_credentials SET lifecycle = 'failed' WHERE id = $1`, id)
	return err
}

func SetMemberInvitationFailed(ctx context.Context, q sqlx.ExtContext, id, reason string) error {
	_, err := q.ExecContext(ctx, `UPDATE member_invitations SET lifecycle = 'failed', failure_text = $1 WHERE id = $2`, reason, id)
	return err
}

func SetMemberSiteFailed(ctx context.Context, q sqlx.ExtContext, id, reason string) error {
	_, err := q.ExecContext(ctx, `UPDATE member_sites SET lifecycle = 'failed', failure_text = $1 WHERE id = $2`, reason, id)
	return err
}
