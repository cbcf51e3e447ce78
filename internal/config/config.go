package config

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Store backends.
const (
	StoreMemory = "memory"
	StoreDynamo = "dynamo"
	StoreSQLite = "sqlite"
)

// Update policies for status changes.
const (
	PolicyOpen         = "open"
	PolicyParticipants = "participants"
)

type Config struct {
	Server      ServerConfig
	Auth        AuthConfig
	Store       StoreConfig
	Ledger      LedgerConfig
	Consignment ConsignmentConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type AuthConfig struct {
	// TokenSecret signs session tokens. Tokens issued under one secret do not
	// verify under another.
	TokenSecret string
	TokenTTL    time.Duration
	BcryptCost  int
	// AdminIDs are the principal ids allowed to register with the admin role.
	AdminIDs []string
}

type StoreConfig struct {
	Backend    string
	Dynamo     DynamoConfig
	SQLitePath string
}

type DynamoConfig struct {
	// Region of the dynamoDB instance
	Region string
	// Name of the table principals are persisted to
	PrincipalsTable string

	// Endpoint may be set for local testing, usually with docker, e.g.
	// docker run -p 8000:8000 amazon/dynamodb-local -jar DynamoDBLocal.jar -sharedDb
	// then set endpoint to http://localhost:8000
	// Do not set for production.
	Endpoint string // for development
}

type LedgerConfig struct {
	// Endpoint is the JSON-RPC URL of the ledger node.
	Endpoint string
	// ContractAddress may be empty; it can be set later through POST /contract.
	ContractAddress string
	// ChainID is queried from the node when zero.
	ChainID         int64
	FromBlock       uint64
	EstimateTimeout time.Duration
	CallTimeout     time.Duration
	SubmitTimeout   time.Duration
	ReadRetries     uint
	// FaucetKey is a hex private key used to fund new principals. Optional.
	FaucetKey  string
	FundingWei string
}

type ConsignmentConfig struct {
	UpdatePolicy     string
	SerializeUpdates bool
}

// SetDefaults registers default values for every key.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 3*time.Minute)

	v.SetDefault("auth.token_ttl", 24*time.Hour)
	v.SetDefault("auth.bcrypt_cost", 10)

	v.SetDefault("store.backend", StoreMemory)
	v.SetDefault("store.principals_table", "consignd-principals")
	v.SetDefault("store.sqlite_path", "consignd.db")

	v.SetDefault("ledger.endpoint", "http://127.0.0.1:8545")
	v.SetDefault("ledger.estimate_timeout", 10*time.Second)
	v.SetDefault("ledger.call_timeout", 10*time.Second)
	v.SetDefault("ledger.submit_timeout", 2*time.Minute)
	v.SetDefault("ledger.read_retries", 3)
	v.SetDefault("ledger.funding_wei", "100000000000000000")

	v.SetDefault("consignment.update_policy", PolicyOpen)
	v.SetDefault("consignment.serialize_updates", true)
}

// NewConfig assembles the configuration from the global viper instance.
func NewConfig() (*Config, error) {
	return FromViper(viper.GetViper())
}

func FromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:         v.GetString("server.host"),
			Port:         v.GetInt("server.port"),
			ReadTimeout:  v.GetDuration("server.read_timeout"),
			WriteTimeout: v.GetDuration("server.write_timeout"),
		},
		Auth: AuthConfig{
			TokenSecret: v.GetString("auth.token_secret"),
			TokenTTL:    v.GetDuration("auth.token_ttl"),
			BcryptCost:  v.GetInt("auth.bcrypt_cost"),
			AdminIDs:    splitList(v.GetStringSlice("auth.admin_ids")),
		},
		Store: storeFromViper(v),
		Ledger: LedgerConfig{
			Endpoint:        v.GetString("ledger.endpoint"),
			ContractAddress: v.GetString("ledger.contract_address"),
			ChainID:         v.GetInt64("ledger.chain_id"),
			FromBlock:       v.GetUint64("ledger.from_block"),
			EstimateTimeout: v.GetDuration("ledger.estimate_timeout"),
			CallTimeout:     v.GetDuration("ledger.call_timeout"),
			SubmitTimeout:   v.GetDuration("ledger.submit_timeout"),
			ReadRetries:     v.GetUint("ledger.read_retries"),
			FaucetKey:       v.GetString("ledger.faucet_key"),
			FundingWei:      v.GetString("ledger.funding_wei"),
		},
		Consignment: ConsignmentConfig{
			UpdatePolicy:     strings.ToLower(v.GetString("consignment.update_policy")),
			SerializeUpdates: v.GetBool("consignment.serialize_updates"),
		},
	}

	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Auth.TokenTTL == 0 {
		cfg.Auth.TokenTTL = 24 * time.Hour
	}
	if cfg.Consignment.UpdatePolicy == "" {
		cfg.Consignment.UpdatePolicy = PolicyOpen
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if len(c.Auth.TokenSecret) < 16 {
		return fmt.Errorf("auth token secret not set or shorter than 16 bytes")
	}
	if c.Auth.TokenTTL < 0 {
		return fmt.Errorf("auth token ttl must be positive")
	}

	if err := c.Store.Validate(); err != nil {
		return err
	}

	if c.Ledger.Endpoint == "" {
		return fmt.Errorf("ledger endpoint not set")
	}
	if c.Ledger.FaucetKey != "" {
		if _, ok := new(big.Int).SetString(c.Ledger.FundingWei, 10); !ok {
			return fmt.Errorf("ledger funding wei %q is not a decimal integer", c.Ledger.FundingWei)
		}
	}

	switch c.Consignment.UpdatePolicy {
	case PolicyOpen, PolicyParticipants:
	default:
		return fmt.Errorf("unknown consignment update policy %q", c.Consignment.UpdatePolicy)
	}
	return nil
}

// splitList accepts both YAML lists and comma separated env values.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// StoreFromViper reads only the principal store settings, for commands that
// operate on the store without running the service.
func StoreFromViper(v *viper.Viper) (StoreConfig, error) {
	cfg := storeFromViper(v)
	if err := cfg.Validate(); err != nil {
		return StoreConfig{}, err
	}
	return cfg, nil
}

func storeFromViper(v *viper.Viper) StoreConfig {
	cfg := StoreConfig{
		Backend: strings.ToLower(v.GetString("store.backend")),
		Dynamo: DynamoConfig{
			Region:          v.GetString("store.region"),
			PrincipalsTable: v.GetString("store.principals_table"),
			Endpoint:        v.GetString("store.endpoint"),
		},
		SQLitePath: v.GetString("store.sqlite_path"),
	}
	if cfg.Backend == "" {
		cfg.Backend = StoreMemory
	}
	return cfg
}

func (c *StoreConfig) Validate() error {
	switch c.Backend {
	case StoreMemory:
	case StoreDynamo:
		if c.Dynamo.Region == "" {
			return fmt.Errorf("store region not set")
		}
		if c.Dynamo.PrincipalsTable == "" {
			return fmt.Errorf("store principals table not set")
		}
	case StoreSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("store sqlite path not set")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Backend)
	}
	return nil
}

func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
