package compose

import (
	"context"
	"fmt"
	"strings"

	"github.com/fabricpilot/vanctl/internal/apperr"
	"github.com/fabricpilot/vanctl/internal/store"
	"github.com/fabricpilot/vanctl/internal/store/models"

	"github.com/jmoiron/sqlx"
)

// rootInstancePath names the application's root InstanceBlock. Children
// are path-joined beneath it ("root/child", "root/child/grandchild", ...).
const rootInstancePath = "root"

// BuildResult is what Build hands back after instantiating and pairing an
// application's graph: the in-memory tree (reused by Deploy so it doesn't
// have to re-walk the library), plus the warnings recorded into build_log.
type BuildResult struct {
	Application *models.Application
	ByPath      map[string]*instance
	Root        *instance
	Warnings    []string
}

// Build loads an application's root library block, recursively
// instantiates its graph (creating InstanceBlock rows idempotently),
// synthesizes each composite's intra-child bindings into the bindings
// table, pairs every declared and synthesized binding, flags unmatched
// interfaces, and marks independent-allocation leaves for site deployment
// (§4.10). The result is always returned, even when warnings accumulate --
// only a load/decode failure aborts with an error.
func Build(ctx context.Context, q sqlx.ExtContext, applicationID string) (*BuildResult, error) {
	app, err := store.GetApplication(ctx, q, applicationID)
	if err != nil {
		return nil, apperr.Build(err)
	}

	libCache := map[string]loadedBlock{}
	rootBlock, err := loadLibraryBlock(ctx, q, libCache, app.RootBlockID)
	if err != nil {
		_ = store.UpdateApplicationBuildResult(ctx, q, applicationID, "build-errors", err.Error())
		return nil, apperr.Build(err)
	}

	byPath := map[string]*instance{}
	var instantiate func(path string, lb loadedBlock) (*instance, error)
	instantiate = func(path string, lb loadedBlock) (*instance, error) {
		row, err := store.GetInstanceBlockByPath(ctx, q, applicationID, path)
		if err != nil {
			if !apperr.Is(err, apperr.KindNotFound) {
				return nil, err
			}
			row, err = store.InsertInstanceBlock(ctx, q, applicationID, lb.row.ID, path, "{}", false)
			if err != nil {
				return nil, err
			}
		}

		inst := &instance{row: *row, block: lb, interfaces: newBoundInterfaces(lb.body.Interfaces)}
		byPath[path] = inst

		if lb.body.IsComposite() {
			inst.children = map[string]*instance{}
			for childName, ref := range lb.body.Composite {
				childBlock, err := resolveChildRef(ctx, q, libCache, ref)
				if err != nil {
					return nil, err
				}
				child, err := instantiate(path+"/"+childName, childBlock)
				if err != nil {
					return nil, err
				}
				inst.children[childName] = child
			}
		}
		return inst, nil
	}

	root, err := instantiate(rootInstancePath, rootBlock)
	if err != nil {
		_ = store.UpdateApplicationBuildResult(ctx, q, applicationID, "build-errors", err.Error())
		return nil, apperr.Build(err)
	}

	if err := synthesizeChildBindings(ctx, q, applicationID, byPath); err != nil {
		_ = store.UpdateApplicationBuildResult(ctx, q, applicationID, "build-errors", err.Error())
		return nil, apperr.Build(err)
	}

	rows, err := store.ListBindingsByApplication(ctx, q, applicationID)
	if err != nil {
		return nil, apperr.Build(err)
	}

	var warnings []string
	for _, b := range rows {
		if msg := pairBinding(byPath, b.NorthPath, b.SouthPath, b.Role); msg != "" {
			warnings = append(warnings, msg)
		}
	}
	warnings = append(warnings, unmatchedInterfaces(byPath)...)

	if err := generateDerivatives(ctx, q, byPath); err != nil {
		return nil, apperr.Build(err)
	}

	lifecycle := "ready"
	if len(warnings) > 0 {
		lifecycle = "build-warnings"
	}
	if err := store.UpdateApplicationBuildResult(ctx, q, applicationID, lifecycle, strings.Join(warnings, "\n")); err != nil {
		return nil, apperr.Build(err)
	}

	return &BuildResult{Application: app, ByPath: byPath, Root: root, Warnings: warnings}, nil
}

// synthesizeChildBindings walks every composite instance's declared
// childBindings and writes a bindings-table row for each one not already
// present, so a rebuild is idempotent.
func synthesizeChildBindings(ctx context.Context, q sqlx.ExtContext, applicationID string, byPath map[string]*instance) error {
	existing, err := store.ListBindingsByApplication(ctx, q, applicationID)
	if err != nil {
		return err
	}
	seen := make(map[string]bool, len(existing))
	for _, b := range existing {
		seen[b.NorthPath+"->"+b.SouthPath] = true
	}

	for _, inst := range byPath {
		if !inst.block.body.IsComposite() {
			continue
		}
		for _, cb := range inst.block.body.ChildBindings {
			north, ok := inst.children[cb.NorthChild]
			if !ok {
				return fmt.Errorf("compose: %s: childBinding references unknown child %q", inst.row.Path, cb.NorthChild)
			}
			south, ok := inst.children[cb.SouthChild]
			if !ok {
				return fmt.Errorf("compose: %s: childBinding references unknown child %q", inst.row.Path, cb.SouthChild)
			}
			northPath := north.interfacePath(cb.NorthInterface)
			southPath := south.interfacePath(cb.SouthInterface)
			key := northPath + "->" + southPath
			if seen[key] {
				continue
			}
			if _, err := store.InsertBinding(ctx, q, applicationID, northPath, southPath, cb.Role); err != nil {
				return err
			}
			seen[key] = true
		}
	}
	return nil
}

// generateDerivatives sets allocate_to_site on every instance whose
// library block type allocates independently and isn't composite (§4.10),
// the step that decides which instances Deploy renders per site.
func generateDerivatives(ctx context.Context, q sqlx.ExtContext, byPath map[string]*instance) error {
	for _, inst := range byPath {
		allocate := inst.block.row.Allocation == models.AllocationIndependent && !inst.block.body.IsComposite()
		if inst.row.AllocateToSite == allocate {
			continue
		}
		if err := store.SetInstanceBlockAllocateToSite(ctx, q, inst.row.ID, allocate); err != nil {
			return err
		}
		inst.row.AllocateToSite = allocate
	}
	return nil
}
