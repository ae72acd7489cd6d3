package compose

import (
	"context"
	"fmt"
	"strings"

	"github.com/fabricpilot/vanctl/internal/apperr"
	"github.com/fabricpilot/vanctl/internal/exprtemplate"
	"github.com/fabricpilot/vanctl/internal/store"
	"github.com/fabricpilot/vanctl/internal/store/models"

	"github.com/jmoiron/sqlx"
)

// DeployResult is what Deploy hands back: the warnings recorded into
// deploy_log, one per unresolved template variable or per-site rendering
// problem.
type DeployResult struct {
	Warnings []string
}

// Deploy always rebuilds the application (picking up any graph changes
// since the last build) and then, for every member site of networkID,
// renders every allocated instance's simple-body templates whose
// derivative site classes intersect the site's own, concatenating the
// per-site result into one SiteData row (§4.10, §6). A VAN with no
// matching sites, or an application with no allocated instances, yields no
// SiteData rows at all -- the round-trip law of §8. cache may be nil; when
// set, Deploy refills it with the fresh build (§9).
func Deploy(ctx context.Context, q sqlx.ExtContext, cache *Cache, applicationID, networkID string) (*DeployResult, error) {
	built, err := Build(ctx, q, applicationID)
	if err != nil {
		return nil, err
	}
	if cache != nil {
		cache.Publish(applicationID, built)
	}

	if _, err := store.InsertDeployedApplication(ctx, q, applicationID, networkID); err != nil {
		return nil, apperr.Deploy(err)
	}

	sites, err := store.ListMemberSitesByNetwork(ctx, q, networkID)
	if err != nil {
		return nil, apperr.Deploy(err)
	}

	var warnings []string
	for _, site := range sites {
		docs, siteWarnings, err := renderSite(built, site)
		if err != nil {
			return nil, apperr.Deploy(err)
		}
		warnings = append(warnings, siteWarnings...)
		if len(docs) == 0 {
			continue
		}
		yaml := strings.Join(docs, "\n---\n")
		if _, err := store.UpsertSiteData(ctx, q, site.ID, applicationID, yaml); err != nil {
			return nil, apperr.Deploy(err)
		}
	}

	lifecycle := "ready"
	if len(warnings) > 0 {
		lifecycle = "deploy-errors"
	}
	if err := store.UpdateApplicationDeployResult(ctx, q, applicationID, lifecycle, strings.Join(warnings, "\n")); err != nil {
		return nil, apperr.Deploy(err)
	}

	return &DeployResult{Warnings: warnings}, nil
}

// renderSite expands every allocated instance's simple templates that
// target site against its derivative site classes, platform, and bound
// peers.
func renderSite(built *BuildResult, site models.MemberSite) ([]string, []string, error) {
	siteClasses := splitClasses(site.SiteClasses)
	platform, hasPlatform := sitePlatform(siteClasses)

	siteScope := map[string]interface{}{
		"metadata": map[string]interface{}{
			"name":        site.Name,
			"siteClasses": toInterfaceSlice(siteClasses),
			"lifecycle":   string(site.Lifecycle),
		},
	}

	var docs []string
	var warnings []string

	for _, inst := range built.ByPath {
		if !inst.row.AllocateToSite {
			continue
		}
		cfg, err := decodeConfig(inst.row.ConfigJSON)
		if err != nil {
			return nil, nil, err
		}
		derivClasses := instanceSiteClasses(cfg)
		if len(derivClasses) > 0 && !classesIntersect(siteClasses, derivClasses) {
			continue
		}

		local := mergeConfig(inst.block.body.Defaults, cfg, map[string]interface{}{
			"name":       lastPathSegment(inst.row.Path),
			"path":       inst.row.Path,
			"block":      inst.block.row.Name,
			"blockType":  string(inst.block.row.Type),
			"allocation": string(inst.block.row.Allocation),
		})
		remote := map[string]interface{}{"site": siteScope}
		addBoundPeerScope(remote, built.ByPath, inst)

		for _, tmpl := range inst.block.body.Simple {
			if hasPlatform && len(tmpl.Platforms) > 0 && !containsString(tmpl.Platforms, platform) {
				continue
			}
			if len(tmpl.Affinity) > 0 && !classesIntersect(tmpl.Affinity, siteClasses) {
				continue
			}
			out, unresolved, err := exprtemplate.Expand(tmpl.Body, local, remote)
			if err != nil {
				warnings = append(warnings, fmt.Sprintf("%s/%s: %v", inst.row.Path, tmpl.Name, err))
				continue
			}
			for _, u := range unresolved {
				warnings = append(warnings, fmt.Sprintf("%s/%s: unresolved %s", inst.row.Path, tmpl.Name, u))
			}
			docs = append(docs, out)
		}
	}

	return docs, warnings, nil
}

// addBoundPeerScope exposes peerif/peerblock (or, for an affinity-role
// binding, affif/affblock) when inst has exactly one bound interface of
// that kind (§4.10 "from bound peer per interface, if exactly one").
func addBoundPeerScope(remote map[string]interface{}, byPath map[string]*instance, inst *instance) {
	var peer, aff *boundInterface
	peerCount, affCount := 0, 0

	for _, bi := range inst.interfaces {
		if bi.boundCount != 1 || bi.boundPartner == "" {
			continue
		}
		if bi.boundRole == roleAffinity {
			aff = bi
			affCount++
		} else {
			peer = bi
			peerCount++
		}
	}

	if peerCount == 1 {
		if partnerInst, partnerBI, ifaceName := lookupPartner(byPath, peer.boundPartner); partnerBI != nil {
			remote["peerif"] = interfaceScope(ifaceName, partnerBI)
			remote["peerblock"] = blockScope(partnerInst)
		}
	}
	if affCount == 1 {
		if partnerInst, partnerBI, ifaceName := lookupPartner(byPath, aff.boundPartner); partnerBI != nil {
			remote["affif"] = interfaceScope(ifaceName, partnerBI)
			remote["affblock"] = blockScope(partnerInst)
		}
	}
}

func lookupPartner(byPath map[string]*instance, partnerPath string) (*instance, *boundInterface, string) {
	instancePath, ifaceName, ok := splitInterfacePath(partnerPath)
	if !ok {
		return nil, nil, ""
	}
	inst, ok := byPath[instancePath]
	if !ok {
		return nil, nil, ""
	}
	bi, ok := inst.interfaces[ifaceName]
	if !ok {
		return nil, nil, ""
	}
	return inst, bi, ifaceName
}

func interfaceScope(name string, bi *boundInterface) map[string]interface{} {
	return map[string]interface{}{
		"name":     name,
		"role":     bi.spec.Role,
		"polarity": string(bi.spec.Polarity),
	}
}

func blockScope(inst *instance) map[string]interface{} {
	cfg, _ := decodeConfig(inst.row.ConfigJSON)
	return map[string]interface{}{
		"name":   lastPathSegment(inst.row.Path),
		"path":   inst.row.Path,
		"block":  inst.block.row.Name,
		"config": cfg,
	}
}

func toInterfaceSlice(in []string) []interface{} {
	out := make([]interface{}, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}
