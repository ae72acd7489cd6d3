package main

import (
	"fmt"

	"github.com/fabricpilot/vanctl/internal/store"
	"github.com/fabricpilot/vanctl/internal/store/models"

	"github.com/spf13/cobra"
)

func newSitesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sites",
		Short: "Manage interior sites",
	}
	cmd.AddCommand(newSitesCreateCmd())
	cmd.AddCommand(newSitesIngressCmd())
	return cmd
}

func newSitesCreateCmd() *cobra.Command {
	var platform string
	cmd := &cobra.Command{
		Use:   "create BACKBONE NAME",
		Short: "Add an interior site to a backbone",
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

			site, err := store.InsertInteriorSite(ctx, st.Queryer(), bb.ID, args[1], platform)
			if err != nil {
				return fmt.Errorf("creating site %q: %w", args[1], err)
			}
			fmt.Printf("interior site %s created on backbone %s (id %s)\n", site.Name, bb.Name, site.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&platform, "platform", "kube", "deployment platform for this site's manifests")
	return cmd
}

func newSitesIngressCmd() *cobra.Command {
	var host, port, bindHost string
	cmd := &cobra.Command{
		Use:   "ingress BACKBONE SITE KIND",
		Short: "Open an access point on a site (kind: claim, peer, member, manage, van)",
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
			site, err := store.GetInteriorSiteByBackboneAndName(ctx, st.Queryer(), bb.ID, args[1])
			if err != nil {
				return fmt.Errorf("resolving site %q on backbone %q: %w", args[1], args[0], err)
			}

			kind := models.AccessPointKind(args[2])
			var hostPtr, portPtr *string
			if host != "" && port != "" {
				hostPtr, portPtr = &host, &port
			}

			ap, err := store.InsertAccessPoint(ctx, st.Queryer(), site.ID, kind, bindHost, hostPtr, portPtr)
			if err != nil {
				return fmt.Errorf("opening %s access point on %q: %w", kind, args[1], err)
			}
			fmt.Printf("%s access point %s opened on site %s (%s)\n", kind, ap.ID, site.Name, ap.Lifecycle)
			return nil
		},
	}
	cmd.Flags().StringVar(&host, "host", "", "externally reachable host (leave blank to let the reconciler assign one)")
	cmd.Flags().StringVar(&port, "port", "", "externally reachable port")
	cmd.Flags().StringVar(&bindHost, "bind-host", "0.0.0.0", "interface the router binds this listener to")
	return cmd
}
