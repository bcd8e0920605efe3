package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dropDatabas3/fitlink/internal/store"
	"github.com/dropDatabas3/fitlink/internal/store/pg"
)

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	var statusOnly bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Aplica las migraciones embebidas de PostgreSQL",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.cfg
			if cfg.Storage.Driver != "postgres" {
				return fmt.Errorf("migrate requiere storage.driver=postgres (actual %q)", cfg.Storage.Driver)
			}

			ctx := cmd.Context()
			s, err := pg.Connect(ctx, pg.Config{DSN: cfg.Storage.DSN, MaxConns: 2})
			if err != nil {
				return err
			}
			defer s.Close()

			m := store.SchemaMigrator()
			out := cmd.OutOrStdout()

			if statusOnly {
				pending, err := m.HasPending(ctx, s.Pool())
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "pending=%t\n", pending)
				return nil
			}

			res, err := m.Run(ctx, s.Pool())
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "applied=%v skipped=%v duration=%s\n", res.Applied, res.Skipped, res.Duration)
			return nil
		},
	}
	cmd.Flags().BoolVar(&statusOnly, "status", false, "Solo informar si hay migraciones pendientes")
	return cmd
}
