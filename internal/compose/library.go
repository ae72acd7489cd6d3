package compose

import (
	"context"
	"fmt"

	"github.com/fabricpilot/vanctl/internal/store"
	"github.com/fabricpilot/vanctl/internal/store/models"

	"github.com/jmoiron/sqlx"
)

// loadLibraryBlock fetches and decodes a LibraryBlock row by id, memoized
// per build via cache.
func loadLibraryBlock(ctx context.Context, q sqlx.ExtContext, cache map[string]loadedBlock, id string) (loadedBlock, error) {
	if lb, ok := cache[id]; ok {
		return lb, nil
	}
	row, err := store.GetLibraryBlock(ctx, q, id)
	if err != nil {
		return loadedBlock{}, fmt.Errorf("compose: loading library block %s: %w", id, err)
	}
	body, err := ParseBody(row.BodyJSON)
	if err != nil {
		return loadedBlock{}, fmt.Errorf("compose: library block %s: %w", row.Name, err)
	}
	lb := loadedBlock{row: *row, body: body}
	cache[id] = lb
	return lb, nil
}

// resolveChildRef resolves a composite block's named child reference to
// its LibraryBlock, by revision if pinned or latest otherwise.
func resolveChildRef(ctx context.Context, q sqlx.ExtContext, cache map[string]loadedBlock, ref ChildRef) (loadedBlock, error) {
	var row *models.LibraryBlock
	var err error
	if ref.Revision != nil {
		row, err = store.GetLibraryBlockByNameRevision(ctx, q, ref.Block, *ref.Revision)
	} else {
		row, err = store.GetLatestLibraryBlockByName(ctx, q, ref.Block)
	}
	if err != nil {
		return loadedBlock{}, fmt.Errorf("compose: resolving child block %q: %w", ref.Block, err)
	}
	return loadLibraryBlock(ctx, q, cache, row.ID)
}

func newBoundInterfaces(specs []InterfaceSpec) map[string]*boundInterface {
	m := make(map[string]*boundInterface, len(specs))
	for _, s := range specs {
		m[s.Name] = &boundInterface{spec: s}
	}
	return m
}
