package main

import (
	"fmt"

	"github.com/fabricpilot/vanctl/internal/cluster"
	"github.com/fabricpilot/vanctl/internal/config"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func newCertsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "certs",
		Short: "Inspect cert-manager Certificate objects the cluster collaborator manages",
	}
	cmd.AddCommand(newCertsShowCmd())
	return cmd
}

func newCertsShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show OBJECT-NAME",
		Short: "Print the cert-manager Certificate spec behind a TlsCertificate's object name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("loading configuration: %w", err)
			}
			coll, namespace, err := cluster.NewFromConfig(cfg.Cluster)
			if err != nil {
				return fmt.Errorf("building cluster collaborator: %w", err)
			}

			spec, err := coll.LoadCertificate(ctx, args[0], namespace)
			if err != nil {
				return fmt.Errorf("loading certificate %s: %w", args[0], err)
			}

			t := newTable()
			t.AppendHeader(table.Row{"FIELD", "VALUE"})
			t.AppendRow(table.Row{"object", spec.ObjectName})
			t.AppendRow(table.Row{"namespace", spec.Namespace})
			t.AppendRow(table.Row{"isCA", spec.IsCA})
			t.AppendRow(table.Row{"issuer", spec.IssuerName})
			t.AppendRow(table.Row{"secret", spec.SecretName})
			t.AppendRow(table.Row{"dnsNames", spec.DNSNames})
			t.AppendRow(table.Row{"duration", spec.Duration})
			t.Render()
			return nil
		},
	}
	return cmd
}
