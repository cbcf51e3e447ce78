package cmd

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ShravaniMogali/4GB-sub001/internal/models"
	"github.com/ShravaniMogali/4GB-sub001/pkg/client"
)

var (
	apiURL  string
	timeout time.Duration
)

// clientCmd represents the client command
var clientCmd = &cobra.Command{
	Use:   "client",
	Short: "consignd CLI client",
	Long: `CLI client for interacting with the consignd API.

Provides commands for principal registration and login, and for creating,
updating and inspecting consignments. Commands that change ledger state need a
session token, passed with --token or CONSIGND_CLIENT_TOKEN.`,
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check service and ledger health",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, c *client.Client) (any, error) {
			return c.HealthCheck(ctx)
		})
	},
}

var registerCmd = &cobra.Command{
	Use:   "register [id] [credential] [role]",
	Short: "Register a principal",
	Long: `Register a principal with one of the roles producer, handler, distributor,
retailer or admin. Prints the ledger address and a session token.`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, c *client.Client) (any, error) {
			return c.Register(ctx, args[0], args[1], args[2])
		})
	},
}

var loginCmd = &cobra.Command{
	Use:   "login [id] [credential]",
	Short: "Exchange a credential for a session token",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, c *client.Client) (any, error) {
			return c.Authenticate(ctx, args[0], args[1])
		})
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the principal of the session token",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, c *client.Client) (any, error) {
			return c.Me(ctx)
		})
	},
}

var consignmentCmd = &cobra.Command{
	Use:   "consignment",
	Short: "Consignment commands",
}

var createFlags models.CreateConsignmentRequest

var createConsignmentCmd = &cobra.Command{
	Use:   "create [id]",
	Short: "Record a new consignment",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := createFlags
		req.ConsignmentID = args[0]
		return withClient(cmd, func(ctx context.Context, c *client.Client) (any, error) {
			return c.CreateConsignment(ctx, req)
		})
	},
}

var updateStatusCmd = &cobra.Command{
	Use:   "update-status [id] [status] [location]",
	Short: "Append a status update to a consignment",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, c *client.Client) (any, error) {
			return c.UpdateStatus(ctx, args[0], args[1], args[2])
		})
	},
}

var detailsCmd = &cobra.Command{
	Use:   "details [id]",
	Short: "Show the current state of a consignment",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, c *client.Client) (any, error) {
			return c.GetConsignment(ctx, args[0])
		})
	},
}

var historyCmd = &cobra.Command{
	Use:   "history [id]",
	Short: "List the status updates of a consignment",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, c *client.Client) (any, error) {
			return c.GetHistory(ctx, args[0])
		})
	},
}

var trailCmd = &cobra.Command{
	Use:   "trail [id]",
	Short: "Show the audit trail of a consignment",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, c *client.Client) (any, error) {
			return c.GetTrail(ctx, args[0])
		})
	},
}

var contractCmd = &cobra.Command{
	Use:   "contract [address]",
	Short: "Show the configured contract, or set it when an address is given",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, c *client.Client) (any, error) {
			if len(args) == 1 {
				return c.SetContract(ctx, args[0])
			}
			return c.GetContract(ctx)
		})
	},
}

func init() {
	rootCmd.AddCommand(clientCmd)

	// Client-specific flags
	clientCmd.PersistentFlags().StringVar(&apiURL, "api-url", "http://localhost:8080", "consignd API base URL")
	clientCmd.PersistentFlags().DurationVar(&timeout, "timeout", 3*time.Minute, "request timeout")
	clientCmd.PersistentFlags().String("token", "", "session token")
	cobra.CheckErr(viper.BindPFlag("client.token", clientCmd.PersistentFlags().Lookup("token")))

	createConsignmentCmd.Flags().StringVar(&createFlags.ProductName, "product-name", "", "product name (required)")
	createConsignmentCmd.Flags().StringVar(&createFlags.ProductionDate, "production-date", "", "production date (required)")
	createConsignmentCmd.Flags().StringVar(&createFlags.FarmLocation, "farm-location", "", "farm location (required)")
	createConsignmentCmd.Flags().StringVar(&createFlags.ProducerInfo, "producer-info", "", "producer information (required)")
	for _, f := range []string{"product-name", "production-date", "farm-location", "producer-info"} {
		cobra.CheckErr(createConsignmentCmd.MarkFlagRequired(f))
	}

	clientCmd.AddCommand(healthCmd, registerCmd, loginCmd, whoamiCmd, contractCmd, consignmentCmd)
	consignmentCmd.AddCommand(createConsignmentCmd, updateStatusCmd, detailsCmd, historyCmd, trailCmd)
}

// newClient creates a configured consignd client
func newClient() (*client.Client, error) {
	baseURL := apiURL
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	return client.New(baseURL,
		client.WithTimeout(timeout),
		client.WithUserAgent("consignd-cli/1.0"),
		client.WithToken(viper.GetString("client.token")),
	)
}

// withClient runs fn with a configured client and prints its result as JSON.
func withClient(cmd *cobra.Command, fn func(context.Context, *client.Client) (any, error)) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	out, err := fn(ctx, c)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
