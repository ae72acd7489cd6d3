package main

import (
	"fmt"
	"time"

	"github.com/fabricpilot/vanctl/internal/store"

	"github.com/spf13/cobra"
)

func newVansCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vans",
		Short: "Manage application networks (VANs)",
	}
	cmd.AddCommand(newVansCreateCmd())
	return cmd
}

func newVansCreateCmd() *cobra.Command {
	var validUntil string
	cmd := &cobra.Command{
		Use:   "create BACKBONE NAME",
		Short: "Create an application network on a backbone",
		Args:  cobra.ExactArgs(2),
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

			var until *time.Time
			if validUntil != "" {
				t, err := time.Parse(time.RFC3339, validUntil)
				if err != nil {
					return fmt.Errorf("parsing --valid-until %q: %w", validUntil, err)
				}
				until = &t
			}

			now := time.Now()
			van, err := store.InsertApplicationNetwork(ctx, st.Queryer(), bb.ID, args[1], &now, until)
			if err != nil {
				return fmt.Errorf("creating VAN %q: %w", args[1], err)
			}
			fmt.Printf("application network %s created on backbone %s (id %s)\n", van.Name, bb.Name, van.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&validUntil, "valid-until", "", "RFC3339 expiry; the VAN never expires if omitted")
	return cmd
}
