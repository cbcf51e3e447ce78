// Package ledgertest provides an in-process ledger node that executes the
// consignment contract, for tests that need a Backend without a real chain.
package ledgertest

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/ShravaniMogali/4GB-sub001/internal/ledger"
)

// ErrUnreachable is returned by every method while the node is marked down.
// Its text matches what a refused RPC dial reports.
var ErrUnreachable = errors.New("dial tcp 127.0.0.1:8545: connect: connection refused")

const (
	DefaultCreateGas = 180_000
	DefaultUpdateGas = 90_000
	transferGas      = 21_000
)

var DefaultChainID = big.NewInt(1337)

type record struct {
	id              [32]byte
	productName     string
	productionDate  string
	farmLocation    string
	producerInfo    string
	currentStatus   string
	currentLocation string
	producer        common.Address
	createdAt       uint64
}

type update struct {
	status    string
	location  string
	handler   common.Address
	timestamp uint64
}

// Node is a single-contract chain that mines each accepted transaction into
// its own block.
type Node struct {
	mu sync.Mutex

	abi      abi.ABI
	chainID  *big.Int
	contract common.Address
	code     []byte

	block     uint64
	blockTime time.Time
	// BlockInterval is added to the clock for every mined block.
	BlockInterval time.Duration

	nonces   map[common.Address]uint64
	balances map[common.Address]*big.Int
	receipts map[common.Hash]*types.Receipt
	logs     []types.Log

	records map[[32]byte]*record
	updates map[[32]byte][]update

	// Estimates returned by EstimateGas per method.
	Estimates map[string]uint64
	// Gas actually consumed on execution per method. Defaults to the estimate.
	Required map[string]uint64

	down     bool
	failNext int
	sent     int

	hang     map[string]bool
	attempts map[string]int
}

func NewNode() *Node {
	schema, err := ledger.LoadSchema()
	if err != nil {
		panic(err)
	}
	return &Node{
		abi:           schema.ABI,
		chainID:       new(big.Int).Set(DefaultChainID),
		blockTime:     time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC),
		BlockInterval: time.Second,
		nonces:        make(map[common.Address]uint64),
		balances:      make(map[common.Address]*big.Int),
		receipts:      make(map[common.Hash]*types.Receipt),
		records:       make(map[[32]byte]*record),
		updates:       make(map[[32]byte][]update),
		Estimates: map[string]uint64{
			ledger.MethodCreateConsignment: DefaultCreateGas,
			ledger.MethodUpdateStatus:      DefaultUpdateGas,
		},
		Required: map[string]uint64{},
		hang:     make(map[string]bool),
		attempts: make(map[string]int),
	}
}

// Deploy places the contract at a fresh address and returns it.
func (n *Node) Deploy() common.Address {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.contract = crypto.CreateAddress(common.HexToAddress("0xfeed"), n.block)
	n.code = []byte{0x60, 0x80, 0x60, 0x40, 0x52}
	n.block++
	return n.contract
}

// SetDown makes every call fail as a transport error until cleared.
func (n *Node) SetDown(down bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.down = down
}

// FailNext makes the next count calls fail as transport errors.
func (n *Node) FailNext(count int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failNext = count
}

// Hang makes the named backend methods (EstimateGas, CallContract,
// SendTransaction, TransactionReceipt, FilterLogs, HeaderByNumber) block until
// the caller's context is done, like a node that accepts connections but never
// answers. Hang() with no names clears it.
func (n *Node) Hang(methods ...string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	clear(n.hang)
	for _, m := range methods {
		n.hang[m] = true
	}
}

// Attempts returns how many times the named backend method was invoked.
func (n *Node) Attempts(method string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.attempts[method]
}

// enter counts the invocation and blocks on ctx while method hangs. It must
// be called without mu held.
func (n *Node) enter(ctx context.Context, method string) error {
	n.mu.Lock()
	n.attempts[method]++
	hang := n.hang[method]
	n.mu.Unlock()
	if !hang {
		return nil
	}
	<-ctx.Done()
	return ctx.Err()
}

// SetRequiredGas overrides the gas a method consumes on execution.
func (n *Node) SetRequiredGas(method string, gas uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Required[method] = gas
}

// Sent returns how many transactions were accepted into blocks.
func (n *Node) Sent() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.sent
}

// Balance returns the wei credited to address by value transfers.
func (n *Node) Balance(address common.Address) *big.Int {
	n.mu.Lock()
	defer n.mu.Unlock()
	if b, ok := n.balances[address]; ok {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}

// BlockNumber returns the latest block.
func (n *Node) BlockNumber() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.block
}

// must be called with mu held
func (n *Node) check() error {
	if n.down {
		return ErrUnreachable
	}
	if n.failNext > 0 {
		n.failNext--
		return ErrUnreachable
	}
	return nil
}

func (n *Node) ChainID(ctx context.Context) (*big.Int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.check(); err != nil {
		return nil, err
	}
	return new(big.Int).Set(n.chainID), nil
}

func (n *Node) CodeAt(ctx context.Context, contract common.Address, blockNumber *big.Int) ([]byte, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.check(); err != nil {
		return nil, err
	}
	if contract == n.contract && n.code != nil {
		return n.code, nil
	}
	return nil, nil
}

func (n *Node) PendingCodeAt(ctx context.Context, account common.Address) ([]byte, error) {
	return n.CodeAt(ctx, account, nil)
}

func (n *Node) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.check(); err != nil {
		return 0, err
	}
	return n.nonces[account], nil
}

func (n *Node) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.check(); err != nil {
		return nil, err
	}
	return big.NewInt(1_000_000_000), nil
}

func (n *Node) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	return n.SuggestGasPrice(ctx)
}

// HeaderByNumber reports the latest header. BaseFee is nil so transactors
// build legacy transactions.
func (n *Node) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	if err := n.enter(ctx, "HeaderByNumber"); err != nil {
		return nil, err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.check(); err != nil {
		return nil, err
	}
	return &types.Header{
		Number: new(big.Int).SetUint64(n.block),
		Time:   uint64(n.blockTime.Unix()),
	}, nil
}

func (n *Node) EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error) {
	if err := n.enter(ctx, "EstimateGas"); err != nil {
		return 0, err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.check(); err != nil {
		return 0, err
	}
	if call.To == nil || *call.To != n.contract || len(call.Data) == 0 {
		return transferGas, nil
	}
	method, args, err := n.decode(call.Data)
	if err != nil {
		return 0, err
	}
	if err := n.validate(method.Name, args); err != nil {
		return 0, err
	}
	return n.Estimates[method.Name], nil
}

func (n *Node) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	if err := n.enter(ctx, "CallContract"); err != nil {
		return nil, err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.check(); err != nil {
		return nil, err
	}
	if call.To == nil || *call.To != n.contract || n.code == nil {
		return nil, nil
	}
	method, args, err := n.decode(call.Data)
	if err != nil {
		return nil, err
	}
	id := args[0].([32]byte)
	switch method.Name {
	case ledger.MethodGetConsignment:
		r, ok := n.records[id]
		if !ok {
			r = &record{}
		}
		return method.Outputs.Pack(r.id, r.productName, r.productionDate, r.farmLocation, r.producerInfo,
			r.currentStatus, r.currentLocation, r.producer, new(big.Int).SetUint64(r.createdAt))
	case ledger.MethodGetStatusUpdates:
		ups := n.updates[id]
		statuses := make([]string, len(ups))
		locations := make([]string, len(ups))
		handlers := make([]common.Address, len(ups))
		timestamps := make([]*big.Int, len(ups))
		for i, u := range ups {
			statuses[i] = u.status
			locations[i] = u.location
			handlers[i] = u.handler
			timestamps[i] = new(big.Int).SetUint64(u.timestamp)
		}
		return method.Outputs.Pack(statuses, locations, handlers, timestamps)
	default:
		return nil, fmt.Errorf("execution reverted: %s is not a view", method.Name)
	}
}

func (n *Node) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	if err := n.enter(ctx, "SendTransaction"); err != nil {
		return err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.check(); err != nil {
		return err
	}
	from, err := types.Sender(types.LatestSignerForChainID(n.chainID), tx)
	if err != nil {
		return fmt.Errorf("invalid sender: %w", err)
	}
	switch want := n.nonces[from]; {
	case tx.Nonce() < want:
		return fmt.Errorf("nonce too low: address %s, tx: %d state: %d", from, tx.Nonce(), want)
	case tx.Nonce() > want:
		return fmt.Errorf("nonce too high: address %s, tx: %d state: %d", from, tx.Nonce(), want)
	}
	if tx.Gas() < transferGas {
		return fmt.Errorf("intrinsic gas too low: have %d, want %d", tx.Gas(), transferGas)
	}
	n.nonces[from]++
	n.mine()

	receipt := &types.Receipt{
		Type:        tx.Type(),
		Status:      types.ReceiptStatusSuccessful,
		TxHash:      tx.Hash(),
		BlockNumber: new(big.Int).SetUint64(n.block),
		GasUsed:     transferGas,
	}
	n.receipts[tx.Hash()] = receipt
	n.sent++

	to := tx.To()
	if to == nil || *to != n.contract || len(tx.Data()) == 0 {
		if to != nil && tx.Value() != nil {
			bal, ok := n.balances[*to]
			if !ok {
				bal = new(big.Int)
				n.balances[*to] = bal
			}
			bal.Add(bal, tx.Value())
		}
		return nil
	}

	method, args, err := n.decode(tx.Data())
	if err != nil {
		receipt.Status = types.ReceiptStatusFailed
		return nil
	}
	required, ok := n.Required[method.Name]
	if !ok {
		required = n.Estimates[method.Name]
	}
	if tx.Gas() < required {
		receipt.Status = types.ReceiptStatusFailed
		receipt.GasUsed = tx.Gas()
		return nil
	}
	receipt.GasUsed = required
	if err := n.validate(method.Name, args); err != nil {
		receipt.Status = types.ReceiptStatusFailed
		receipt.GasUsed = required / 2
		return nil
	}
	receipt.Logs = n.execute(method.Name, args, from, tx.Hash())
	return nil
}

func (n *Node) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	if err := n.enter(ctx, "TransactionReceipt"); err != nil {
		return nil, err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.check(); err != nil {
		return nil, err
	}
	r, ok := n.receipts[txHash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return r, nil
}

func (n *Node) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	if err := n.enter(ctx, "FilterLogs"); err != nil {
		return nil, err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.check(); err != nil {
		return nil, err
	}
	var out []types.Log
	for _, l := range n.logs {
		if q.FromBlock != nil && l.BlockNumber < q.FromBlock.Uint64() {
			continue
		}
		if len(q.Addresses) > 0 && !containsAddress(q.Addresses, l.Address) {
			continue
		}
		if !matchTopics(q.Topics, l.Topics) {
			continue
		}
		out = append(out, l)
	}
	// newest first, so callers cannot rely on node ordering
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (n *Node) SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error) {
	return nil, errors.New("subscriptions are not supported")
}

func (n *Node) mine() {
	n.block++
	n.blockTime = n.blockTime.Add(n.BlockInterval)
}

func (n *Node) decode(data []byte) (*abi.Method, []any, error) {
	if len(data) < 4 {
		return nil, nil, errors.New("execution reverted: short calldata")
	}
	method, err := n.abi.MethodById(data[:4])
	if err != nil {
		return nil, nil, fmt.Errorf("execution reverted: %w", err)
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, nil, fmt.Errorf("execution reverted: %w", err)
	}
	return method, args, nil
}

// validate applies the contract's require checks.
func (n *Node) validate(method string, args []any) error {
	id := args[0].([32]byte)
	_, exists := n.records[id]
	switch method {
	case ledger.MethodCreateConsignment:
		if exists {
			return errors.New("execution reverted: consignment already exists")
		}
	case ledger.MethodUpdateStatus:
		if !exists {
			return errors.New("execution reverted: consignment does not exist")
		}
	default:
		return fmt.Errorf("execution reverted: %s is read-only", method)
	}
	return nil
}

func (n *Node) execute(method string, args []any, from common.Address, txHash common.Hash) []*types.Log {
	id := args[0].([32]byte)
	ts := uint64(n.blockTime.Unix())
	var l types.Log
	switch method {
	case ledger.MethodCreateConsignment:
		r := &record{
			id:             id,
			productName:    args[1].(string),
			productionDate: args[2].(string),
			farmLocation:   args[3].(string),
			producerInfo:   args[4].(string),
			currentStatus:  "created",
			producer:       from,
			createdAt:      ts,
		}
		r.currentLocation = r.farmLocation
		n.records[id] = r
		l = n.eventLog(ledger.EventConsignmentCreated, id, from, r.productName, new(big.Int).SetUint64(ts))
	case ledger.MethodUpdateStatus:
		r := n.records[id]
		u := update{status: args[1].(string), location: args[2].(string), handler: from, timestamp: ts}
		r.currentStatus = u.status
		r.currentLocation = u.location
		n.updates[id] = append(n.updates[id], u)
		l = n.eventLog(ledger.EventStatusUpdated, id, from, u.status, u.location, new(big.Int).SetUint64(ts))
	}
	l.BlockNumber = n.block
	l.TxHash = txHash
	l.Index = uint(len(n.logs))
	n.logs = append(n.logs, l)
	return []*types.Log{&l}
}

func (n *Node) eventLog(kind ledger.EventKind, id [32]byte, actor common.Address, data ...any) types.Log {
	ev := n.abi.Events[string(kind)]
	packed, err := ev.Inputs.NonIndexed().Pack(data...)
	if err != nil {
		panic(fmt.Sprintf("packing %s: %v", kind, err))
	}
	return types.Log{
		Address: n.contract,
		Topics:  []common.Hash{ev.ID, common.Hash(id), common.BytesToHash(actor.Bytes())},
		Data:    packed,
	}
}

func containsAddress(list []common.Address, a common.Address) bool {
	for _, x := range list {
		if x == a {
			return true
		}
	}
	return false
}

func matchTopics(filter [][]common.Hash, topics []common.Hash) bool {
	if len(filter) > len(topics) {
		return false
	}
	for i, alts := range filter {
		if len(alts) == 0 {
			continue
		}
		found := false
		for _, t := range alts {
			if t == topics[i] {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
