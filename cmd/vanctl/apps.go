package main

import (
	"fmt"
	"os"

	"github.com/fabricpilot/vanctl/internal/compose"
	"github.com/fabricpilot/vanctl/internal/store"
	"github.com/fabricpilot/vanctl/internal/store/models"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func newAppsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apps",
		Short: "Manage the application compose engine's library blocks and applications",
	}
	cmd.AddCommand(newAppsCreateBlockCmd())
	cmd.AddCommand(newAppsCreateCmd())
	cmd.AddCommand(newAppsBuildCmd())
	cmd.AddCommand(newAppsDeployCmd())
	cmd.AddCommand(newAppsListCmd())
	return cmd
}

func newAppsCreateBlockCmd() *cobra.Command {
	var blockType, allocation string
	var composite, allowNorth, allowSouth bool
	cmd := &cobra.Command{
		Use:   "create-block NAME BODY-FILE",
		Short: "Publish a new revision of a library block from a JSON body file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			body, err := os.ReadFile(args[1])
			if err != nil {
				return fmt.Errorf("reading %s: %w", args[1], err)
			}

			st, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			revision := 1
			if prior, err := store.GetLatestLibraryBlockByName(ctx, st.Queryer(), args[0]); err == nil {
				revision = prior.Revision + 1
			}

			block, err := store.InsertLibraryBlock(ctx, st.Queryer(), models.LibraryBlock{
				Name:       args[0],
				Revision:   revision,
				Type:       models.BlockType(blockType),
				AllowNorth: allowNorth,
				AllowSouth: allowSouth,
				Allocation: models.Allocation(allocation),
				Composite:  composite,
				BodyJSON:   string(body),
			})
			if err != nil {
				return fmt.Errorf("publishing block %q: %w", args[0], err)
			}
			fmt.Printf("library block %s revision %d published (id %s)\n", block.Name, block.Revision, block.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&blockType, "type", string(models.BlockTypeComponent), "component|connector|toplevel|mixed|ingress|egress")
	cmd.Flags().StringVar(&allocation, "allocation", string(models.AllocationShared), "independent|shared")
	cmd.Flags().BoolVar(&composite, "composite", false, "body describes a composite (child block map) rather than templates")
	cmd.Flags().BoolVar(&allowNorth, "allow-north", true, "block may bind a north-facing interface")
	cmd.Flags().BoolVar(&allowSouth, "allow-south", true, "block may bind a south-facing interface")
	return cmd
}

func newAppsCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create NAME ROOT-BLOCK-NAME",
		Short: "Create an application rooted at the latest revision of a library block",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			root, err := store.GetLatestLibraryBlockByName(ctx, st.Queryer(), args[1])
			if err != nil {
				return fmt.Errorf("resolving root block %q: %w", args[1], err)
			}

			app, err := store.InsertApplication(ctx, st.Queryer(), args[0], root.ID)
			if err != nil {
				return fmt.Errorf("creating application %q: %w", args[0], err)
			}
			fmt.Printf("application %s created on %s rev %d (id %s)\n", app.Name, root.Name, root.Revision, app.ID)
			return nil
		},
	}
	return cmd
}

func newAppsBuildCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build NAME",
		Short: "Instantiate and pair an application's graph (§4.10 build step)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			app, err := store.GetApplicationByName(ctx, st.Queryer(), args[0])
			if err != nil {
				return fmt.Errorf("resolving application %q: %w", args[0], err)
			}

			result, err := compose.Build(ctx, st.Queryer(), app.ID)
			if err != nil {
				return fmt.Errorf("building %q: %w", args[0], err)
			}
			fmt.Printf("built %s: %d instances, %d warnings\n", args[0], len(result.ByPath), len(result.Warnings))
			for _, w := range result.Warnings {
				fmt.Println("  warning:", w)
			}
			return nil
		},
	}
	return cmd
}

func newAppsDeployCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deploy BACKBONE VAN APP",
		Short: "Rebuild and deploy an application onto every member site of a VAN (§4.10 deploy step)",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			bb, err := store.GetBackboneByName(ctx, st.Queryer(), args[0])
			if err != nil {
				return fmt.Errorf("resolving backbone %q: %w", args[0], err)
			}
			van, err := store.GetApplicationNetworkByBackboneAndName(ctx, st.Queryer(), bb.ID, args[1])
			if err != nil {
				return fmt.Errorf("resolving VAN %q: %w", args[1], err)
			}
			app, err := store.GetApplicationByName(ctx, st.Queryer(), args[2])
			if err != nil {
				return fmt.Errorf("resolving application %q: %w", args[2], err)
			}

			// A one-shot CLI invocation has no use for a long-lived build
			// cache, so Deploy runs an uncached Build; the controller's
			// AppStateProvider reads the site_data rows Deploy writes.
			result, err := compose.Deploy(ctx, st.Queryer(), nil, app.ID, van.ID)
			if err != nil {
				return fmt.Errorf("deploying %q onto %q: %w", args[2], args[1], err)
			}
			fmt.Printf("deployed %s onto %s: %d warnings\n", args[2], args[1], len(result.Warnings))
			for _, w := range result.Warnings {
				fmt.Println("  warning:", w)
			}
			return nil
		},
	}
	return cmd
}

func newAppsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List applications and their build/deploy lifecycle",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			apps, err := store.ListApplications(ctx, st.Queryer())
			if err != nil {
				return err
			}

			t := newTable()
			t.AppendHeader(table.Row{"NAME", "LIFECYCLE", "CREATED"})
			for _, a := range apps {
				t.AppendRow(table.Row{a.Name, a.Lifecycle, a.CreatedAt.Format("2006-01-02T15:04:05Z07:00")})
			}
			t.Render()
			return nil
		},
	}
	return cmd
}
