// Package deploystate implements the deployment-state evaluator of §4.6
// (C6): given one InteriorSite and the database, computes the site's
// DeploymentState and, on an active transition, cascades re-evaluation to
// every site with a link into it.
package deploystate

import (
	"context"

	"github.com/fabricpilot/vanctl/internal/store"
	"github.com/fabricpilot/vanctl/internal/store/models"

	"github.com/jmoiron/sqlx"
)

// Evaluate computes the §4.6 rules for site and writes DeploymentState if it
// changed, returning the resulting state. Callers are expected to invoke
// this inside the same transaction as the triggering mutation (site
// lifecycle change, link add/delete, manage-AP add/delete), per §5's
// transactional discipline.
func Evaluate(ctx context.Context, q sqlx.ExtContext, site *models.InteriorSite) (models.DeploymentState, error) {
	next, err := computeState(ctx, q, site)
	if err != nil {
		return site.DeploymentState, err
	}

	if next == site.DeploymentState {
		return next, nil // no-op write suppressed
	}

	if err := store.UpdateInteriorSiteDeploymentState(ctx, q, site.ID, next); err != nil {
		return site.DeploymentState, err
	}
	previous := site.DeploymentState
	site.DeploymentState = next

	if next == models.DeploymentDeployed && previous != models.DeploymentDeployed {
		if err := cascadeIntoLinks(ctx, q, site.ID); err != nil {
			return next, err
		}
	}

	return next, nil
}

// computeState applies the four ordered rules of §4.6.
func computeState(ctx context.Context, q sqlx.ExtContext, site *models.InteriorSite) (models.DeploymentState, error) {
	if site.Lifecycle == models.LifecycleActive {
		return models.DeploymentDeployed, nil
	}

	if site.Lifecycle == models.LifecycleReady {
		links, err := store.ListLinksByConnectingSite(ctx, q, site.ID)
		if err != nil {
			return site.DeploymentState, err
		}
		for _, link := range links {
			ap, err := store.GetAccessPoint(ctx, q, link.AccessPointID)
			if err != nil {
				return site.DeploymentState, err
			}
			targetSite, err := store.GetInteriorSite(ctx, q, ap.InteriorSiteID)
			if err != nil {
				return site.DeploymentState, err
			}
			if targetSite.DeploymentState == models.DeploymentDeployed {
				return models.DeploymentReadyAutomatic, nil
			}
		}

		aps, err := store.ListAccessPointsBySite(ctx, q, site.ID)
		if err != nil {
			return site.DeploymentState, err
		}
		for _, ap := range aps {
			if ap.Kind == models.AccessPointManage {
				return models.DeploymentReadyBootstrap, nil
			}
		}
	}

	return models.DeploymentNotReady, nil
}

// cascadeIntoLinks re-evaluates every site with an InterRouterLink whose
// target AP belongs to siteID, the §4.6 cascade that runs "when a site
// becomes active".
func cascadeIntoLinks(ctx context.Context, q sqlx.ExtContext, siteID string) error {
	links, err := store.ListLinksIntoSite(ctx, q, siteID)
	if err != nil {
		return err
	}
	for _, link := range links {
		upstream, err := store.GetInteriorSite(ctx, q, link.ConnectingInteriorSite)
		if err != nil {
			return err
		}
		if _, err := Evaluate(ctx, q, upstream); err != nil {
			return err
		}
	}
	return nil
}
