package main

import (
	"context"
	"fmt"
	"time"

	"github.com/fabricpilot/vanctl/internal/store"
	"github.com/fabricpilot/vanctl/internal/store/models"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func newBackbonesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backbones",
		Short: "Manage backbones",
	}
	cmd.AddCommand(newBackbonesCreateCmd())
	cmd.AddCommand(newBackbonesListCmd())
	return cmd
}

func newBackbonesCreateCmd() *cobra.Command {
	var management bool
	var wait bool
	cmd := &cobra.Command{
		Use:   "create NAME",
		Short: "Create a backbone and wait for it to become ready",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			bb, err := store.InsertBackbone(ctx, st.Queryer(), args[0], management)
			if err != nil {
				return fmt.Errorf("creating backbone %q: %w", args[0], err)
			}
			fmt.Printf("backbone %s created (id %s)\n", bb.Name, bb.ID)

			if !wait {
				return nil
			}
			return waitForLifecycle(ctx, fmt.Sprintf("waiting for backbone %s to become ready", bb.Name), 2*time.Second,
				func(ctx context.Context) (models.Lifecycle, string, error) {
					row, err := store.GetBackbone(ctx, st.Queryer(), bb.ID)
					if err != nil {
						return "", "", err
					}
					failureText := ""
					if row.FailureText != nil {
						failureText = *row.FailureText
					}
					return row.Lifecycle, failureText, nil
				})
		},
	}
	cmd.Flags().BoolVar(&management, "management", false, "mark this as the fabric's management backbone")
	cmd.Flags().BoolVar(&wait, "wait", true, "wait for the backbone to reach ready before returning")
	return cmd
}

func newBackbonesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all backbones",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			rows, err := store.ListBackbones(ctx, st.Queryer())
			if err != nil {
				return fmt.Errorf("listing backbones: %w", err)
			}

			t := newTable()
			t.AppendHeader(table.Row{"NAME", "LIFECYCLE", "MANAGEMENT", "CREATED"})
			for _, bb := range rows {
				t.AppendRow(table.Row{bb.Name, bb.Lifecycle, bb.IsManagement, bb.CreatedAt.Format(time.RFC3339)})
			}
			t.Render()
			return nil
		},
	}
}
