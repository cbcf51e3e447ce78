package providers

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	logging "github.com/ipfs/go-log/v2"
	"go.uber.org/fx"

	"github.com/ShravaniMogali/4GB-sub001/internal/config"
	"github.com/ShravaniMogali/4GB-sub001/internal/consignment"
	"github.com/ShravaniMogali/4GB-sub001/internal/handlers"
	"github.com/ShravaniMogali/4GB-sub001/internal/identity"
	"github.com/ShravaniMogali/4GB-sub001/internal/ledger"
	"github.com/ShravaniMogali/4GB-sub001/internal/store"
)

var log = logging.Logger("providers")

// Module wires every service component except the ledger backend, which the
// caller supplies (ProvideLedgerBackend in production, a fake node in tests).
var Module = fx.Options(
	fx.Provide(
		ProvidePrincipalStore,
		ProvideGateway,
		ProvideIdentity,
		ProvideConsignment,
		ProvideHandlers,
	),
)

type StoreParams struct {
	fx.In
	Lifecycle fx.Lifecycle
	Config    *config.Config
}

func ProvidePrincipalStore(params StoreParams) (store.PrincipalStore, error) {
	s, closeStore, err := store.Open(params.Config.Store)
	if err != nil {
		return nil, err
	}
	params.Lifecycle.Append(fx.StopHook(closeStore))
	return s, nil
}

type LedgerBackendParams struct {
	fx.In
	Lifecycle fx.Lifecycle
	Config    *config.Config
}

// ProvideLedgerBackend dials the JSON-RPC endpoint of the ledger node. Dialing
// an http endpoint does not contact the node.
func ProvideLedgerBackend(params LedgerBackendParams) (ledger.Backend, error) {
	client, err := ethclient.Dial(params.Config.Ledger.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to dial ledger node: %w", err)
	}
	params.Lifecycle.Append(fx.StopHook(client.Close))
	return client, nil
}

type GatewayParams struct {
	fx.In
	Lifecycle fx.Lifecycle
	Config    *config.Config
	Backend   ledger.Backend
}

// ProvideGateway validates the embedded contract schema and, when a contract
// address is configured, binds it once the application starts.
func ProvideGateway(params GatewayParams) (*ledger.Gateway, error) {
	schema, err := ledger.LoadSchema()
	if err != nil {
		return nil, err
	}
	gcfg, err := gatewayConfig(params.Config.Ledger)
	if err != nil {
		return nil, err
	}
	gw := ledger.NewGateway(params.Backend, schema, gcfg)

	if addr := params.Config.Ledger.ContractAddress; addr != "" {
		if !common.IsHexAddress(addr) {
			return nil, fmt.Errorf("invalid contract address %q", addr)
		}
		params.Lifecycle.Append(fx.StartHook(func(ctx context.Context) error {
			if err := gw.SetContract(ctx, common.HexToAddress(addr)); err != nil {
				return fmt.Errorf("binding contract %s: %w", addr, err)
			}
			return nil
		}))
	} else {
		log.Warn("No contract address configured, consignment operations fail until POST /contract")
	}
	return gw, nil
}

func gatewayConfig(cfg config.LedgerConfig) (ledger.Config, error) {
	out := ledger.Config{
		FromBlock:       cfg.FromBlock,
		EstimateTimeout: cfg.EstimateTimeout,
		CallTimeout:     cfg.CallTimeout,
		SubmitTimeout:   cfg.SubmitTimeout,
		ReadRetries:     cfg.ReadRetries,
	}
	if cfg.ChainID != 0 {
		out.ChainID = big.NewInt(cfg.ChainID)
	}
	if cfg.FaucetKey != "" {
		key, err := parseKey(cfg.FaucetKey)
		if err != nil {
			return ledger.Config{}, fmt.Errorf("failed to parse faucet key: %w", err)
		}
		wei, ok := new(big.Int).SetString(cfg.FundingWei, 10)
		if !ok {
			return ledger.Config{}, fmt.Errorf("invalid funding amount %q", cfg.FundingWei)
		}
		out.FaucetKey = key
		out.FundingWei = wei
	}
	return out, nil
}

func parseKey(s string) (*ecdsa.PrivateKey, error) {
	return crypto.HexToECDSA(strings.TrimPrefix(s, "0x"))
}

type IdentityParams struct {
	fx.In
	Config *config.Config
	Store  store.PrincipalStore
	Funder *ledger.Gateway
}

func ProvideIdentity(params IdentityParams) (*identity.Service, error) {
	tokens := identity.NewTokenIssuer(
		[]byte(params.Config.Auth.TokenSecret),
		identity.WithTTL(params.Config.Auth.TokenTTL),
	)
	return identity.NewService(params.Store, tokens,
		identity.WithBcryptCost(params.Config.Auth.BcryptCost),
		identity.WithFunder(params.Funder),
		identity.WithAdminIDs(params.Config.Auth.AdminIDs...),
	)
}

type ConsignmentParams struct {
	fx.In
	Config   *config.Config
	Ledger   *ledger.Gateway
	Identity *identity.Service
}

func ProvideConsignment(params ConsignmentParams) (*consignment.Service, error) {
	policy, err := consignment.ParsePolicy(params.Config.Consignment.UpdatePolicy)
	if err != nil {
		return nil, err
	}
	return consignment.NewService(params.Ledger, params.Identity,
		consignment.WithPolicy(policy),
		consignment.WithSerializedUpdates(params.Config.Consignment.SerializeUpdates),
	), nil
}

type HandlersParams struct {
	fx.In
	Identity     *identity.Service
	Consignments *consignment.Service
	Ledger       *ledger.Gateway
}

func ProvideHandlers(params HandlersParams) *handlers.Handlers {
	return handlers.NewHandlers(params.Identity, params.Consignments, params.Ledger)
}
