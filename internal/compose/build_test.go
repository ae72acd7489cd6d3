package compose

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/fabricpilot/vanctl/internal/config"
	"github.com/fabricpilot/vanctl/internal/store"
	"github.com/fabricpilot/vanctl/internal/store/models"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

// openTestStore mirrors the env-gated integration pattern used throughout
// internal/store and internal/reconciler (VANCTL_TEST_DATABASE_URL): the
// compose engine's graph walk exercises real multi-table joins not worth
// faking with an in-memory stand-in.
func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	dsn := os.Getenv("VANCTL_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("VANCTL_TEST_DATABASE_URL not set, skipping compose integration test")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s, err := store.Open(ctx, config.DatabaseConfig{DSN: dsn})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func mustInsertLibraryBlock(t *testing.T, ctx context.Context, q sqlx.ExtContext, name string, typ models.BlockType, allocation models.Allocation, composite bool, bodyJSON string) *models.LibraryBlock {
	t.Helper()
	b, err := store.InsertLibraryBlock(ctx, q, models.LibraryBlock{
		Name:       name,
		Revision:   1,
		Type:       typ,
		AllowNorth: true,
		AllowSouth: true,
		Allocation: allocation,
		Composite:  composite,
		BodyJSON:   bodyJSON,
	})
	require.NoError(t, err)
	return b
}

func TestBuildPairsChildBindingsAndFlagsUnmatchedInterface(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	q := s.Queryer()

	web := mustInsertLibraryBlock(t, ctx, q, "compose-web", models.BlockTypeComponent, models.AllocationIndependent, false, `{
		"interfaces": [
			{"name": "pub", "polarity": "north", "role": "http"},
			{"name": "logs", "polarity": "south", "role": "logging", "maxBindings": 1}
		],
		"simple": [{"name": "deployment", "body": "kind: Deployment\nname: {{ .name }}"}]
	}`)
	db := mustInsertLibraryBlock(t, ctx, q, "compose-db", models.BlockTypeComponent, models.AllocationIndependent, false, `{
		"interfaces": [{"name": "db", "polarity": "south", "role": "http"}],
		"simple": [{"name": "statefulset", "body": "kind: StatefulSet"}]
	}`)
	app := mustInsertLibraryBlock(t, ctx, q, "compose-app", models.BlockTypeTopLevel, models.AllocationShared, true, `{
		"interfaces": [],
		"composite": {"web": {"block": "compose-web"}, "db": {"block": "compose-db"}},
		"childBindings": [{"northChild": "web", "northInterface": "pub", "southChild": "db", "southInterface": "db", "role": "http"}]
	}`)

	application, err := store.InsertApplication(ctx, q, "compose-app-instance-1", app.ID)
	require.NoError(t, err)

	built, err := Build(ctx, q, application.ID)
	require.NoError(t, err)
	require.NotNil(t, built.Root)

	require.Len(t, built.Warnings, 1)
	require.Contains(t, built.Warnings[0], "root/web#logs")
	require.Contains(t, built.Warnings[0], "unmatched")

	webInst, ok := built.ByPath["root/web"]
	require.True(t, ok)
	require.True(t, webInst.row.AllocateToSite)
	require.Equal(t, 1, webInst.interfaces["pub"].boundCount)
	require.Equal(t, 0, webInst.interfaces["logs"].boundCount)

	dbInst, ok := built.ByPath["root/db"]
	require.True(t, ok)
	require.True(t, dbInst.row.AllocateToSite)
	require.Equal(t, 1, dbInst.interfaces["db"].boundCount)

	rootInst, ok := built.ByPath["root"]
	require.True(t, ok)
	require.False(t, rootInst.row.AllocateToSite)
	require.Equal(t, web.ID, webInst.row.LibraryBlockID)
	require.Equal(t, db.ID, dbInst.row.LibraryBlockID)

	bindings, err := store.ListBindingsByApplication(ctx, q, application.ID)
	require.NoError(t, err)
	require.Len(t, bindings, 1)
	require.Equal(t, "root/web#pub", bindings[0].NorthPath)
	require.Equal(t, "root/db#db", bindings[0].SouthPath)

	// Rebuilding is idempotent: no duplicate instance or binding rows.
	built2, err := Build(ctx, q, application.ID)
	require.NoError(t, err)
	require.Len(t, built2.Warnings, 1)
	bindingsAgain, err := store.ListBindingsByApplication(ctx, q, application.ID)
	require.NoError(t, err)
	require.Len(t, bindingsAgain, 1)
}

func TestBuildSuperBindingWalksThroughComposite(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	q := s.Queryer()

	leaf := mustInsertLibraryBlock(t, ctx, q, "compose-leaf", models.BlockTypeComponent, models.AllocationIndependent, false, `{
		"interfaces": [{"name": "north", "polarity": "north", "role": "http"}],
		"simple": [{"name": "deployment", "body": "kind: Deployment"}]
	}`)
	wrapper := mustInsertLibraryBlock(t, ctx, q, "compose-wrapper", models.BlockTypeMixed, models.AllocationShared, true, `{
		"interfaces": [{"name": "exposed", "polarity": "north", "role": "http"}],
		"composite": {"inner": {"block": "compose-leaf"}},
		"superBindings": [{"interface": "exposed", "child": "inner", "childInterface": "north"}]
	}`)
	peer := mustInsertLibraryBlock(t, ctx, q, "compose-peer", models.BlockTypeComponent, models.AllocationIndependent, false, `{
		"interfaces": [{"name": "south", "polarity": "south", "role": "http"}],
		"simple": [{"name": "deployment", "body": "kind: Deployment"}]
	}`)
	root := mustInsertLibraryBlock(t, ctx, q, "compose-root", models.BlockTypeTopLevel, models.AllocationShared, true, `{
		"interfaces": [],
		"composite": {"wrapped": {"block": "compose-wrapper"}, "peer": {"block": "compose-peer"}},
		"childBindings": [{"northChild": "wrapped", "northInterface": "exposed", "southChild": "peer", "southInterface": "south", "role": "http"}]
	}`)
	_ = leaf
	_ = wrapper
	_ = peer

	application, err := store.InsertApplication(ctx, q, "compose-app-instance-2", root.ID)
	require.NoError(t, err)

	built, err := Build(ctx, q, application.ID)
	require.NoError(t, err)
	require.Empty(t, built.Warnings)

	wrapperInst := built.ByPath["root/wrapped"]
	require.True(t, wrapperInst.interfaces["exposed"].boundThrough)

	innerInst := built.ByPath["root/wrapped/inner"]
	require.Equal(t, 1, innerInst.interfaces["north"].boundCount)
}
