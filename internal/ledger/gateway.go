package ledger

import (
	"cmp"
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"iter"
	"math/big"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	logging "github.com/ipfs/go-log/v2"

	"github.com/ShravaniMogali/4GB-sub001/internal/keyedmutex"
)

var log = logging.Logger("ledger")

// Fee ceiling = estimate * feeMarginNum / feeMarginDen. Execution cost can
// drift between the estimate and inclusion; the margin absorbs it.
const (
	feeMarginNum = 3
	feeMarginDen = 2
)

// gas for a plain value transfer
const transferGas = 21000

type Config struct {
	// ChainID used for signing. Queried from the node when nil.
	ChainID *big.Int
	// FromBlock is the first block scanned for events, usually the contract
	// deployment block.
	FromBlock uint64

	EstimateTimeout time.Duration
	CallTimeout     time.Duration
	SubmitTimeout   time.Duration

	// ReadRetries is the number of extra attempts for calls, event queries
	// and fee estimates. Submits are never retried.
	ReadRetries   uint
	RetryInterval time.Duration

	// FaucetKey funds newly registered principals when set.
	FaucetKey  *ecdsa.PrivateKey
	FundingWei *big.Int
}

func (c *Config) setDefaults() {
	if c.EstimateTimeout == 0 {
		c.EstimateTimeout = 10 * time.Second
	}
	if c.CallTimeout == 0 {
		c.CallTimeout = 10 * time.Second
	}
	if c.SubmitTimeout == 0 {
		c.SubmitTimeout = 2 * time.Minute
	}
	if c.RetryInterval == 0 {
		c.RetryInterval = 200 * time.Millisecond
	}
}

// binding is an immutable snapshot of the configured contract location.
type binding struct {
	address common.Address
	bound   *bind.BoundContract
}

// Gateway is the only component that talks to the ledger node.
type Gateway struct {
	backend Backend
	schema  *Schema
	cfg     Config

	contract atomic.Pointer[binding]
	// serialises submissions per signer so nonces do not collide
	signers *keyedmutex.Mutex

	chainMu sync.Mutex
	chainID *big.Int
}

func NewGateway(backend Backend, schema *Schema, cfg Config) *Gateway {
	cfg.setDefaults()
	return &Gateway{
		backend: backend,
		schema:  schema,
		cfg:     cfg,
		signers: keyedmutex.New(),
		chainID: cfg.ChainID,
	}
}

// SetContract points the gateway at a deployed contract. The address must hold
// code. In-flight operations keep using the previous binding.
func (g *Gateway) SetContract(ctx context.Context, address common.Address) error {
	code, err := retryRead(ctx, g, g.cfg.CallTimeout, func(ctx context.Context) ([]byte, error) {
		return g.backend.CodeAt(ctx, address, nil)
	})
	if err != nil {
		return fmt.Errorf("checking contract code at %s: %w", address, err)
	}
	if len(code) == 0 {
		return fmt.Errorf("%w: no code at %s", ErrNotConfigured, address)
	}
	b := &binding{
		address: address,
		bound:   bind.NewBoundContract(address, g.schema.ABI, g.backend, g.backend, g.backend),
	}
	if prev := g.contract.Swap(b); prev != nil {
		log.Infow("contract location changed", "previous", prev.address, "address", address, "schema", g.schema.Version)
	} else {
		log.Infow("contract location set", "address", address, "schema", g.schema.Version)
	}
	return nil
}

// ContractAddress returns the configured contract location, if any.
func (g *Gateway) ContractAddress() (common.Address, bool) {
	b := g.contract.Load()
	if b == nil {
		return common.Address{}, false
	}
	return b.address, true
}

func (g *Gateway) current() (*binding, error) {
	b := g.contract.Load()
	if b == nil {
		return nil, ErrNotConfigured
	}
	return b, nil
}

// EstimateFee asks the node for the gas a state-changing call would consume
// when sent from the given address.
func (g *Gateway) EstimateFee(ctx context.Context, from common.Address, call Call) (FeeEstimate, error) {
	b, err := g.current()
	if err != nil {
		return FeeEstimate{}, err
	}
	data, err := g.schema.ABI.Pack(call.Method, call.Args...)
	if err != nil {
		return FeeEstimate{}, fmt.Errorf("packing %s: %w", call.Method, err)
	}
	gas, err := retryRead(ctx, g, g.cfg.EstimateTimeout, func(ctx context.Context) (uint64, error) {
		return g.backend.EstimateGas(ctx, ethereum.CallMsg{From: from, To: &b.address, Data: data})
	})
	if err != nil {
		return FeeEstimate{}, fmt.Errorf("estimating %s: %w", call.Method, err)
	}
	return FeeEstimate{Gas: gas, Ceiling: gas * feeMarginNum / feeMarginDen}, nil
}

// Submit signs and sends call with the estimate's ceiling as gas limit, then
// waits for inclusion. It is never retried.
func (g *Gateway) Submit(ctx context.Context, key *ecdsa.PrivateKey, call Call, fee FeeEstimate) (*Receipt, error) {
	b, err := g.current()
	if err != nil {
		return nil, err
	}
	data, err := g.schema.ABI.Pack(call.Method, call.Args...)
	if err != nil {
		return nil, fmt.Errorf("packing %s: %w", call.Method, err)
	}
	from := crypto.PubkeyToAddress(key.PublicKey)

	unlock := g.signers.Lock(from.Hex())
	defer unlock()

	chainID, err := g.chain(ctx)
	if err != nil {
		return nil, err
	}
	opts, err := bind.NewKeyedTransactorWithChainID(key, chainID)
	if err != nil {
		return nil, fmt.Errorf("building transactor: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, g.cfg.SubmitTimeout)
	defer cancel()
	opts.Context = ctx
	opts.GasLimit = fee.Ceiling

	tx, err := b.bound.RawTransact(opts, data)
	if err != nil {
		if isUnreachable(err) {
			return nil, fmt.Errorf("%w: sending %s: %v", ErrLedgerUnreachable, call.Method, err)
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrTransactionRejected, call.Method, err)
	}
	log.Debugw("transaction sent", "method", call.Method, "tx", tx.Hash(), "from", from, "gas_limit", tx.Gas())

	receipt, err := bind.WaitMined(ctx, g.backend, tx)
	if err != nil {
		// the transaction may still be mined; do not resend
		log.Warnw("gave up waiting for transaction", "tx", tx.Hash(), "error", err)
		return nil, fmt.Errorf("%w: waiting for %s: %v", ErrLedgerUnreachable, tx.Hash(), err)
	}
	if receipt.Status == types.ReceiptStatusFailed {
		if receipt.GasUsed >= tx.Gas() {
			return nil, fmt.Errorf("%w: %s used all %d gas (estimate %d)", ErrFeeCeilingExceeded, call.Method, tx.Gas(), fee.Gas)
		}
		return nil, fmt.Errorf("%w: %s in %s", ErrTransactionReverted, call.Method, tx.Hash())
	}
	out := &Receipt{
		TxHash:   receipt.TxHash,
		GasUsed:  receipt.GasUsed,
		GasLimit: tx.Gas(),
	}
	if receipt.BlockNumber != nil {
		out.BlockNumber = receipt.BlockNumber.Uint64()
	}
	log.Infow("transaction mined", "method", call.Method, "tx", out.TxHash, "block", out.BlockNumber, "gas_used", out.GasUsed)
	return out, nil
}

// Call performs a read-only contract call and unpacks the outputs into out,
// which must be a pointer to a struct whose fields match the output names.
func (g *Gateway) Call(ctx context.Context, method string, out any, args ...any) error {
	b, err := g.current()
	if err != nil {
		return err
	}
	data, err := g.schema.ABI.Pack(method, args...)
	if err != nil {
		return fmt.Errorf("packing %s: %w", method, err)
	}
	raw, err := retryRead(ctx, g, g.cfg.CallTimeout, func(ctx context.Context) ([]byte, error) {
		return g.backend.CallContract(ctx, ethereum.CallMsg{To: &b.address, Data: data}, nil)
	})
	if err != nil {
		return fmt.Errorf("calling %s: %w", method, err)
	}
	if len(raw) == 0 {
		return fmt.Errorf("%w: empty result from %s at %s", ErrNotConfigured, method, b.address)
	}
	if err := g.schema.ABI.UnpackIntoInterface(out, method, raw); err != nil {
		return fmt.Errorf("decoding %s: %w", method, err)
	}
	return nil
}

// Consignment reads the current record for id. Missing records come back with
// Exists() == false.
func (g *Gateway) Consignment(ctx context.Context, id EncodedID) (*ConsignmentRecord, error) {
	var t consignmentTuple
	if err := g.Call(ctx, MethodGetConsignment, &t, [32]byte(id)); err != nil {
		return nil, err
	}
	return &ConsignmentRecord{
		ID:              EncodedID(t.Id),
		ProductName:     t.ProductName,
		ProductionDate:  t.ProductionDate,
		FarmLocation:    t.FarmLocation,
		ProducerInfo:    t.ProducerInfo,
		CurrentStatus:   t.CurrentStatus,
		CurrentLocation: t.CurrentLocation,
		Producer:        t.Producer,
		CreatedAt:       unixTime(t.CreatedAt),
	}, nil
}

// StatusUpdates reads the status updates kept in contract storage for id.
// The entries carry no block or transaction information.
func (g *Gateway) StatusUpdates(ctx context.Context, id EncodedID) ([]Event, error) {
	var t StatusUpdatesTuple
	if err := g.Call(ctx, MethodGetStatusUpdates, &t, [32]byte(id)); err != nil {
		return nil, err
	}
	n := len(t.Statuses)
	if len(t.Locations) != n || len(t.Handlers) != n || len(t.Timestamps) != n {
		return nil, fmt.Errorf("%w: %s returned arrays of different lengths", ErrSchemaMismatch, MethodGetStatusUpdates)
	}
	out := make([]Event, n)
	for i := range n {
		out[i] = Event{
			Kind:          EventStatusUpdated,
			ConsignmentID: id,
			Actor:         t.Handlers[i],
			Status:        t.Statuses[i],
			Location:      t.Locations[i],
			Timestamp:     unixTime(t.Timestamps[i]),
		}
	}
	return out, nil
}

// Events returns the logs of kind for id in ledger order (block, then log
// index). The sequence is lazy: the node is queried when iteration starts, and
// every new iteration queries again.
func (g *Gateway) Events(ctx context.Context, kind EventKind, id EncodedID) iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		b, err := g.current()
		if err != nil {
			yield(Event{}, err)
			return
		}
		ev, err := g.schema.Event(kind)
		if err != nil {
			yield(Event{}, err)
			return
		}
		q := ethereum.FilterQuery{
			FromBlock: new(big.Int).SetUint64(g.cfg.FromBlock),
			Addresses: []common.Address{b.address},
			Topics:    [][]common.Hash{{ev.ID}, {common.Hash(id)}},
		}
		logs, err := retryRead(ctx, g, g.cfg.CallTimeout, func(ctx context.Context) ([]types.Log, error) {
			return g.backend.FilterLogs(ctx, q)
		})
		if err != nil {
			yield(Event{}, fmt.Errorf("querying %s events: %w", kind, err))
			return
		}
		slices.SortStableFunc(logs, func(a, b types.Log) int {
			if c := cmp.Compare(a.BlockNumber, b.BlockNumber); c != 0 {
				return c
			}
			return cmp.Compare(a.Index, b.Index)
		})
		for _, l := range logs {
			if l.Removed {
				continue
			}
			e, err := g.decodeEvent(kind, l)
			if !yield(e, err) || err != nil {
				return
			}
		}
	}
}

func (g *Gateway) decodeEvent(kind EventKind, l types.Log) (Event, error) {
	if len(l.Topics) < 3 {
		return Event{}, fmt.Errorf("%w: %s log %s/%d has %d topics", ErrSchemaMismatch, kind, l.TxHash, l.Index, len(l.Topics))
	}
	e := Event{
		Kind:          kind,
		ConsignmentID: EncodedID(l.Topics[1]),
		Actor:         common.BytesToAddress(l.Topics[2].Bytes()),
		BlockNumber:   l.BlockNumber,
		LogIndex:      l.Index,
		TxHash:        l.TxHash,
	}
	switch kind {
	case EventConsignmentCreated:
		var p createdPayload
		if err := g.schema.ABI.UnpackIntoInterface(&p, string(kind), l.Data); err != nil {
			return Event{}, fmt.Errorf("decoding %s: %w", kind, err)
		}
		e.ProductName = p.ProductName
		e.Timestamp = unixTime(p.Timestamp)
	case EventStatusUpdated:
		var p statusPayload
		if err := g.schema.ABI.UnpackIntoInterface(&p, string(kind), l.Data); err != nil {
			return Event{}, fmt.Errorf("decoding %s: %w", kind, err)
		}
		e.Status = p.Status
		e.Location = p.Location
		e.Timestamp = unixTime(p.Timestamp)
	default:
		return Event{}, fmt.Errorf("%w: unknown event %s", ErrSchemaMismatch, kind)
	}
	return e, nil
}

// Head returns the node's latest block.
func (g *Gateway) Head(ctx context.Context) (*Head, error) {
	h, err := retryRead(ctx, g, g.cfg.CallTimeout, func(ctx context.Context) (*types.Header, error) {
		return g.backend.HeaderByNumber(ctx, nil)
	})
	if err != nil {
		return nil, err
	}
	return &Head{Number: h.Number.Uint64(), Time: time.Unix(int64(h.Time), 0).UTC()}, nil
}

// FundingEnabled reports whether a faucet key is configured.
func (g *Gateway) FundingEnabled() bool {
	return g.cfg.FaucetKey != nil && g.cfg.FundingWei != nil && g.cfg.FundingWei.Sign() > 0
}

// Fund transfers the configured funding amount from the faucet to address so
// it can pay for its own transactions. It is a no-op without a faucet.
func (g *Gateway) Fund(ctx context.Context, address common.Address) error {
	if !g.FundingEnabled() {
		return nil
	}
	key := g.cfg.FaucetKey
	from := crypto.PubkeyToAddress(key.PublicKey)

	unlock := g.signers.Lock(from.Hex())
	defer unlock()

	chainID, err := g.chain(ctx)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, g.cfg.SubmitTimeout)
	defer cancel()

	nonce, err := g.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return fmt.Errorf("%w: faucet nonce: %v", ErrLedgerUnreachable, err)
	}
	gasPrice, err := g.backend.SuggestGasPrice(ctx)
	if err != nil {
		return fmt.Errorf("%w: gas price: %v", ErrLedgerUnreachable, err)
	}
	tx, err := types.SignTx(types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &address,
		Value:    g.cfg.FundingWei,
		Gas:      transferGas,
		GasPrice: gasPrice,
	}), types.LatestSignerForChainID(chainID), key)
	if err != nil {
		return fmt.Errorf("signing funding transfer: %w", err)
	}
	if err := g.backend.SendTransaction(ctx, tx); err != nil {
		if isUnreachable(err) {
			return fmt.Errorf("%w: funding %s: %v", ErrLedgerUnreachable, address, err)
		}
		return fmt.Errorf("%w: funding %s: %v", ErrTransactionRejected, address, err)
	}
	receipt, err := bind.WaitMined(ctx, g.backend, tx)
	if err != nil {
		return fmt.Errorf("%w: waiting for funding %s: %v", ErrLedgerUnreachable, tx.Hash(), err)
	}
	if receipt.Status == types.ReceiptStatusFailed {
		return fmt.Errorf("%w: funding %s", ErrTransactionReverted, tx.Hash())
	}
	log.Infow("funded principal address", "address", address, "wei", g.cfg.FundingWei, "tx", tx.Hash())
	return nil
}

func (g *Gateway) chain(ctx context.Context) (*big.Int, error) {
	g.chainMu.Lock()
	defer g.chainMu.Unlock()
	if g.chainID != nil {
		return g.chainID, nil
	}
	id, err := retryRead(ctx, g, g.cfg.CallTimeout, func(ctx context.Context) (*big.Int, error) {
		cb, ok := g.backend.(interface {
			ChainID(context.Context) (*big.Int, error)
		})
		if !ok {
			return nil, fmt.Errorf("%w: chain id not configured and backend cannot report it", ErrNotConfigured)
		}
		return cb.ChainID(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("fetching chain id: %w", err)
	}
	g.chainID = id
	return id, nil
}

// retryRead runs a read-only node operation with a per-attempt timeout,
// retrying transport failures with exponential backoff. Reverts and other
// answers from the node are returned immediately.
func retryRead[T any](ctx context.Context, g *Gateway, timeout time.Duration, op func(context.Context) (T, error)) (T, error) {
	attempt := func() (T, error) {
		actx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		v, err := op(actx)
		switch {
		case err == nil:
			return v, nil
		case isRevert(err):
			return v, backoff.Permanent(fmt.Errorf("%w: %v", ErrTransactionReverted, err))
		case ctx.Err() != nil:
			return v, backoff.Permanent(fmt.Errorf("%w: %v", ErrLedgerUnreachable, err))
		case isUnreachable(err):
			log.Debugw("ledger read failed, may retry", "error", err)
			return v, fmt.Errorf("%w: %v", ErrLedgerUnreachable, err)
		default:
			return v, backoff.Permanent(err)
		}
	}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = g.cfg.RetryInterval
	v, err := backoff.Retry(ctx, attempt,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(g.cfg.ReadRetries+1),
	)
	if err != nil && ctx.Err() != nil && !errors.Is(err, ErrLedgerUnreachable) {
		err = fmt.Errorf("%w: %v", ErrLedgerUnreachable, err)
	}
	return v, err
}
