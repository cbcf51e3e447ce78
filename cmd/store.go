package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ShravaniMogali/4GB-sub001/internal/config"
	"github.com/ShravaniMogali/4GB-sub001/internal/store"
)

var StoreCmd = &cobra.Command{
	Use:   "store",
	Short: "Manage store operations",
	Long:  `Commands for inspecting the principal store directly, without the HTTP service.`,
	// serve binds the same keys to its own flags, so these are bound only
	// when a store command runs
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		for key, flag := range map[string]string{
			"store.backend":          "store-backend",
			"store.region":           "store-region",
			"store.principals_table": "store-principals-table",
			"store.endpoint":         "store-endpoint",
			"store.sqlite_path":      "store-sqlite-path",
		} {
			if err := viper.BindPFlag(key, flags.Lookup(flag)); err != nil {
				return err
			}
		}
		return initConfig()
	},
}

var getPrincipalCmd = &cobra.Command{
	Use:   "get-principal [id]",
	Short: "Show a stored principal",
	Long:  `Show the role, ledger address and timestamps of a stored principal. Key material and credential hashes are never printed.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.StoreFromViper(viper.GetViper())
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		if cfg.Backend == config.StoreMemory {
			return fmt.Errorf("the memory store only lives inside a running server; use --store-backend dynamo or sqlite")
		}

		db, closeStore, err := store.Open(cfg)
		if err != nil {
			return fmt.Errorf("failed to initialize store: %w", err)
		}
		defer closeStore()

		p, err := db.Get(cmd.Context(), args[0])
		if errors.Is(err, store.ErrPrincipalNotFound) {
			return fmt.Errorf("principal %s not found", args[0])
		}
		if err != nil {
			return fmt.Errorf("failed to get principal: %w", err)
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		// secrets carry json:"-"
		return enc.Encode(p)
	},
}

func init() {
	// Add store flags (same keys as the serve command)
	StoreCmd.PersistentFlags().String("store-backend", "", "Principal store backend (dynamo, sqlite)")
	StoreCmd.PersistentFlags().String("store-region", "", "AWS region for DynamoDB")
	StoreCmd.PersistentFlags().String("store-principals-table", "", "DynamoDB table name for principals")
	StoreCmd.PersistentFlags().String("store-endpoint", "", "DynamoDB endpoint (for local testing)")
	StoreCmd.PersistentFlags().String("store-sqlite-path", "", "SQLite database file")

	// Add subcommands
	StoreCmd.AddCommand(getPrincipalCmd)
}
