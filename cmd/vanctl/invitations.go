package main

import (
	"fmt"
	"time"

	"github.com/fabricpilot/vanctl/internal/store"

	"github.com/spf13/cobra"
)

func newInvitationsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "invitations",
		Short: "Manage member invitations",
	}
	cmd.AddCommand(newInvitationsCreateCmd())
	return cmd
}

func newInvitationsCreateCmd() *cobra.Command {
	var classes, namePrefix, claimAP string
	var instanceLimit int
	var deadline string
	cmd := &cobra.Command{
		Use:   "create BACKBONE VAN NAME",
		Short: "Create a member invitation on an application network",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			if claimAP == "" {
				return fmt.Errorf("--claim-ap is required: the access point id a claiming peer dials")
			}

			bb, err := store.GetBackboneByName(ctx, st.Queryer(), args[0])
			if err != nil {
				return fmt.Errorf("resolving backbone %q: %w", args[0], err)
			}
			van, err := store.GetApplicationNetworkByBackboneAndName(ctx, st.Queryer(), bb.ID, args[1])
			if err != nil {
				return fmt.Errorf("resolving application network %q on backbone %q: %w", args[1], args[0], err)
			}

			var deadlinePtr *time.Time
			if deadline != "" {
				t, err := time.Parse(time.RFC3339, deadline)
				if err != nil {
					return fmt.Errorf("parsing --deadline %q: %w", deadline, err)
				}
				deadlinePtr = &t
			}

			inv, err := store.InsertMemberInvitation(ctx, st.Queryer(), van.ID, args[2], classes, namePrefix, instanceLimit, deadlinePtr, claimAP)
			if err != nil {
				return fmt.Errorf("creating invitation %q: %w", args[2], err)
			}
			fmt.Printf("invitation %s created on VAN %s (id %s)\n", inv.Name, van.Name, inv.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&classes, "classes", "", "comma-separated SiteClasses member sites must present to claim")
	cmd.Flags().StringVar(&namePrefix, "name-prefix", "", "prefix applied to auto-generated member site names")
	cmd.Flags().IntVar(&instanceLimit, "instance-limit", 1, "maximum number of member sites this invitation can claim")
	cmd.Flags().StringVar(&deadline, "deadline", "", "RFC3339 time after which the invitation can no longer be claimed")
	cmd.Flags().StringVar(&claimAP, "claim-ap", "", "access point id a claiming peer dials (required)")
	return cmd
}
