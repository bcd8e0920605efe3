package main

import (
	"errors"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/dropDatabas3/fitlink/internal/config"
	"github.com/dropDatabas3/fitlink/internal/observability/logger"
)

// rootOptions se comparte entre subcomandos; cfg queda cargada después de
// PersistentPreRunE.
type rootOptions struct {
	configPath string
	envFile    string
	cfg        *config.Config
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{
		configPath: envOr("FITLINK_CONFIG", ""),
		envFile:    ".env",
	}

	root := &cobra.Command{
		Use:           "fitlink",
		Short:         "Vincula cuentas de Garmin y Strava y sincroniza sus métricas",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.envFile != "" {
				// .env es opcional
				if err := godotenv.Load(opts.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
					return err
				}
			}
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			opts.cfg = cfg
			logger.Init(logger.Config{
				Env:         cfg.App.Env,
				Level:       cfg.Log.Level,
				ServiceName: "fitlink",
				Version:     cfg.App.Version,
			})
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = logger.Sync()
		},
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", opts.configPath, "Path al YAML de config (env FITLINK_CONFIG)")
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", opts.envFile, "Archivo .env a cargar antes de la config (vacío = ninguno)")

	root.AddCommand(
		newServeCmd(opts),
		newMigrateCmd(opts),
		newSyncCmd(opts),
		newGarminCmd(opts),
		newTokenCmd(opts),
	)
	return root
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
