package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/voyz/tokenauth"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Delete expired sessions once and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger, err := newLogger()
		if err != nil {
			return err
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		store, closeStore, err := openStore(cmd.Context(), cfg.Session.RedisPrefix)
		if err != nil {
			return err
		}
		defer closeStore()

		engine, err := tokenauth.New().WithConfig(cfg).WithStore(store).WithLogger(logger).Build()
		if err != nil {
			return fmt.Errorf("building engine: %w", err)
		}
		defer engine.Close()

		removed, err := engine.SweepExpired(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "removed %d expired sessions\n", removed)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sweepCmd)
	addStoreFlags(sweepCmd)
}
