package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/fx"

	"github.com/ShravaniMogali/4GB-sub001/internal/config"
	"github.com/ShravaniMogali/4GB-sub001/internal/providers"
	"github.com/ShravaniMogali/4GB-sub001/internal/server"
)

var ServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long:  `Start the consignment HTTP server against the configured ledger node.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app := fx.New(
			fx.Provide(
				// Configuration
				config.NewConfig,

				// Ledger node connection
				providers.ProvideLedgerBackend,

				// Server
				server.NewServer,
			),
			// Store, gateway, services and handlers
			providers.Module,
			fx.Invoke(server.Start),
		)

		app.Run()
		return app.Err()
	},
}

func init() {
	// Server flags
	ServeCmd.Flags().String("host", "0.0.0.0", "Server host")
	ServeCmd.Flags().Int("port", 8080, "Server port")

	// Auth flags
	ServeCmd.Flags().String("token-secret", "", "Secret used to sign session tokens (at least 16 bytes)")
	ServeCmd.Flags().Duration("token-ttl", 0, "Session token lifetime")
	ServeCmd.Flags().StringSlice("admin-ids", nil, "Principal ids allowed to register with the admin role")

	// Store flags
	ServeCmd.Flags().String("store-backend", "", "Principal store backend (memory, dynamo, sqlite)")
	ServeCmd.Flags().String("store-region", "", "AWS region for DynamoDB")
	ServeCmd.Flags().String("store-principals-table", "", "DynamoDB table name for principals")
	ServeCmd.Flags().String("store-endpoint", "", "DynamoDB endpoint (for local testing)")
	ServeCmd.Flags().String("store-sqlite-path", "", "SQLite database file")

	// Ledger flags
	ServeCmd.Flags().String("ledger-endpoint", "", "JSON-RPC URL of the ledger node")
	ServeCmd.Flags().String("ledger-contract-address", "", "Address of the deployed consignment contract")
	ServeCmd.Flags().Int64("ledger-chain-id", 0, "Chain id used for signing (queried from the node when 0)")
	ServeCmd.Flags().Uint64("ledger-from-block", 0, "First block scanned for contract events")
	ServeCmd.Flags().String("ledger-faucet-key", "", "Hex private key that funds newly registered principals")

	// Consignment flags
	ServeCmd.Flags().String("update-policy", "", "Who may update a consignment's status (open, participants)")

	// Bind flags to viper
	cobra.CheckErr(viper.BindPFlag("server.host", ServeCmd.Flags().Lookup("host")))
	cobra.CheckErr(viper.BindPFlag("server.port", ServeCmd.Flags().Lookup("port")))

	cobra.CheckErr(viper.BindPFlag("auth.token_secret", ServeCmd.Flags().Lookup("token-secret")))
	cobra.CheckErr(viper.BindPFlag("auth.token_ttl", ServeCmd.Flags().Lookup("token-ttl")))
	cobra.CheckErr(viper.BindPFlag("auth.admin_ids", ServeCmd.Flags().Lookup("admin-ids")))

	cobra.CheckErr(viper.BindPFlag("store.backend", ServeCmd.Flags().Lookup("store-backend")))
	cobra.CheckErr(viper.BindPFlag("store.region", ServeCmd.Flags().Lookup("store-region")))
	cobra.CheckErr(viper.BindPFlag("store.principals_table", ServeCmd.Flags().Lookup("store-principals-table")))
	cobra.CheckErr(viper.BindPFlag("store.endpoint", ServeCmd.Flags().Lookup("store-endpoint")))
	cobra.CheckErr(viper.BindPFlag("store.sqlite_path", ServeCmd.Flags().Lookup("store-sqlite-path")))

	cobra.CheckErr(viper.BindPFlag("ledger.endpoint", ServeCmd.Flags().Lookup("ledger-endpoint")))
	cobra.CheckErr(viper.BindPFlag("ledger.contract_address", ServeCmd.Flags().Lookup("ledger-contract-address")))
	cobra.CheckErr(viper.BindPFlag("ledger.chain_id", ServeCmd.Flags().Lookup("ledger-chain-id")))
	cobra.CheckErr(viper.BindPFlag("ledger.from_block", ServeCmd.Flags().Lookup("ledger-from-block")))
	cobra.CheckErr(viper.BindPFlag("ledger.faucet_key", ServeCmd.Flags().Lookup("ledger-faucet-key")))

	cobra.CheckErr(viper.BindPFlag("consignment.update_policy", ServeCmd.Flags().Lookup("update-policy")))
}
