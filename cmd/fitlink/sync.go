package main

import (
	"encoding/json"
	"errors"

	"github.com/spf13/cobra"

	"github.com/dropDatabas3/fitlink/internal/app"
	"github.com/dropDatabas3/fitlink/internal/domain/types"
	syncsvc "github.com/dropDatabas3/fitlink/internal/services/sync"
)

func newSyncCmd(opts *rootOptions) *cobra.Command {
	var (
		userID int64
		days   int
	)

	cmd := &cobra.Command{
		Use:       "sync <garmin|strava>",
		Short:     "Ejecuta un sync manual para un usuario",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{string(types.ProviderGarmin), string(types.ProviderStrava)},
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID <= 0 {
				return errors.New("--user es requerido")
			}
			ctx := cmd.Context()
			c, err := app.Build(ctx, opts.cfg, app.Options{})
			if err != nil {
				return err
			}
			defer c.Close()

			var res *syncsvc.Result
			switch types.Provider(args[0]) {
			case types.ProviderGarmin:
				if days <= 0 {
					days = opts.cfg.Sync.DefaultDaysGarmin
				}
				res, err = c.Sync.SyncGarmin(ctx, userID, days)
			default:
				if days <= 0 {
					days = opts.cfg.Sync.DefaultDaysStrava
				}
				res, err = c.Sync.SyncStrava(ctx, userID, days)
			}
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}
	cmd.Flags().Int64Var(&userID, "user", 0, "ID del usuario")
	cmd.Flags().IntVar(&days, "days", 0, "Ventana en días (0 = default del proveedor)")
	return cmd
}
