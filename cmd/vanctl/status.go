package main

import (
	"fmt"

	"github.com/fabricpilot/vanctl/internal/store"
	"github.com/fabricpilot/vanctl/internal/store/models"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Read-only rollup of backbone/site/VAN counts by lifecycle",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			q := st.Queryer()
			backbones, err := store.ListBackbones(ctx, q)
			if err != nil {
				return fmt.Errorf("listing backbones: %w", err)
			}

			counts := map[string]map[models.Lifecycle]int{
				"backbones": {},
				"sites":     {},
				"vans":      {},
			}
			for _, bb := range backbones {
				counts["backbones"][bb.Lifecycle]++

				sites, err := store.ListInteriorSitesByBackbone(ctx, q, bb.ID)
				if err != nil {
					return fmt.Errorf("listing sites for backbone %s: %w", bb.Name, err)
				}
				for _, s := range sites {
					counts["sites"][s.Lifecycle]++
				}

				vans, err := store.ListApplicationNetworksByBackbone(ctx, q, bb.ID)
				if err != nil {
					return fmt.Errorf("listing VANs for backbone %s: %w", bb.Name, err)
				}
				for _, v := range vans {
					counts["vans"][v.Lifecycle]++
				}
			}

			t := newTable()
			t.AppendHeader(table.Row{"KIND", "LIFECYCLE", "COUNT"})
			for _, kind := range []string{"backbones", "sites", "vans"} {
				for lc, n := range counts[kind] {
					t.AppendRow(table.Row{kind, lc, n})
				}
			}
			t.Render()
			return nil
		},
	}
}
