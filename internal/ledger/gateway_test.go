package ledger_test

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/ShravaniMogali/4GB-sub001/internal/ledger"
	"github.com/ShravaniMogali/4GB-sub001/internal/ledger/ledgertest"
)

func newGateway(t *testing.T, node *ledgertest.Node, mutate func(*ledger.Config)) *ledger.Gateway {
	t.Helper()
	schema, err := ledger.LoadSchema()
	if err != nil {
		t.Fatalf("LoadSchema() error = %v", err)
	}
	cfg := ledger.Config{
		ChainID:       ledgertest.DefaultChainID,
		ReadRetries:   2,
		RetryInterval: time.Millisecond,
		SubmitTimeout: 5 * time.Second,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	return ledger.NewGateway(node, schema, cfg)
}

func deployed(t *testing.T) (*ledgertest.Node, *ledger.Gateway) {
	t.Helper()
	node := ledgertest.NewNode()
	addr := node.Deploy()
	gw := newGateway(t, node, nil)
	if err := gw.SetContract(context.Background(), addr); err != nil {
		t.Fatalf("SetContract() error = %v", err)
	}
	return node, gw
}

func newKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	return key
}

func createCall(t *testing.T, id string) ledger.Call {
	t.Helper()
	enc, err := ledger.EncodeID(id)
	if err != nil {
		t.Fatal(err)
	}
	return ledger.Call{
		Method: ledger.MethodCreateConsignment,
		Args:   []any{[32]byte(enc), "Tomatoes", "2024-03-01", "Salinas Valley", "Green Acres"},
	}
}

func updateCall(t *testing.T, id, status, location string) ledger.Call {
	t.Helper()
	enc, err := ledger.EncodeID(id)
	if err != nil {
		t.Fatal(err)
	}
	return ledger.Call{Method: ledger.MethodUpdateStatus, Args: []any{[32]byte(enc), status, location}}
}

func submit(t *testing.T, gw *ledger.Gateway, key *ecdsa.PrivateKey, call ledger.Call) (*ledger.Receipt, error) {
	t.Helper()
	ctx := context.Background()
	fee, err := gw.EstimateFee(ctx, crypto.PubkeyToAddress(key.PublicKey), call)
	if err != nil {
		return nil, err
	}
	return gw.Submit(ctx, key, call, fee)
}

func TestGatewayNotConfigured(t *testing.T) {
	node := ledgertest.NewNode()
	gw := newGateway(t, node, nil)
	ctx := context.Background()

	if _, ok := gw.ContractAddress(); ok {
		t.Error("ContractAddress() reported a location before SetContract")
	}
	if _, err := gw.Consignment(ctx, ledger.EncodedID{}); !errors.Is(err, ledger.ErrNotConfigured) {
		t.Errorf("Consignment() error = %v, want ErrNotConfigured", err)
	}
	if _, err := gw.EstimateFee(ctx, common.Address{}, createCall(t, "X")); !errors.Is(err, ledger.ErrNotConfigured) {
		t.Errorf("EstimateFee() error = %v, want ErrNotConfigured", err)
	}
	err := gw.SetContract(ctx, common.HexToAddress("0x1234"))
	if !errors.Is(err, ledger.ErrNotConfigured) {
		t.Errorf("SetContract(no code) error = %v, want ErrNotConfigured", err)
	}
}

func TestEstimateFeeCeiling(t *testing.T) {
	_, gw := deployed(t)
	key := newKey(t)

	fee, err := gw.EstimateFee(context.Background(), crypto.PubkeyToAddress(key.PublicKey), createCall(t, "TOMATO-001"))
	if err != nil {
		t.Fatalf("EstimateFee() error = %v", err)
	}
	if fee.Gas != ledgertest.DefaultCreateGas {
		t.Errorf("Gas = %d, want %d", fee.Gas, ledgertest.DefaultCreateGas)
	}
	if want := uint64(ledgertest.DefaultCreateGas * 3 / 2); fee.Ceiling != want {
		t.Errorf("Ceiling = %d, want %d", fee.Ceiling, want)
	}
}

func TestSubmitAndRead(t *testing.T) {
	_, gw := deployed(t)
	key := newKey(t)
	ctx := context.Background()

	receipt, err := submit(t, gw, key, createCall(t, "TOMATO-001"))
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if receipt.TxHash == (common.Hash{}) {
		t.Error("receipt has no transaction hash")
	}
	if receipt.GasUsed > receipt.GasLimit {
		t.Errorf("GasUsed %d above limit %d", receipt.GasUsed, receipt.GasLimit)
	}

	id, _ := ledger.EncodeID("TOMATO-001")
	rec, err := gw.Consignment(ctx, id)
	if err != nil {
		t.Fatalf("Consignment() error = %v", err)
	}
	if !rec.Exists() {
		t.Fatal("record does not exist after create")
	}
	if rec.ID.String() != "TOMATO-001" || rec.ProductName != "Tomatoes" {
		t.Errorf("unexpected record %+v", rec)
	}
	if rec.Producer != crypto.PubkeyToAddress(key.PublicKey) {
		t.Errorf("Producer = %s, want signer", rec.Producer)
	}

	missing, _ := ledger.EncodeID("NOPE")
	rec, err = gw.Consignment(ctx, missing)
	if err != nil {
		t.Fatalf("Consignment(missing) error = %v", err)
	}
	if rec.Exists() {
		t.Error("missing record reported as existing")
	}
}

func TestSubmitFeeCeiling(t *testing.T) {
	tests := []struct {
		name     string
		required uint64
		wantErr  error
	}{
		{name: "within estimate", required: ledgertest.DefaultCreateGas},
		{name: "at ceiling", required: ledgertest.DefaultCreateGas * 3 / 2},
		{name: "above ceiling", required: ledgertest.DefaultCreateGas*3/2 + 1, wantErr: ledger.ErrFeeCeilingExceeded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node, gw := deployed(t)
			node.SetRequiredGas(ledger.MethodCreateConsignment, tt.required)

			_, err := submit(t, gw, newKey(t), createCall(t, "TOMATO-001"))
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Submit() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestSubmitRevert(t *testing.T) {
	_, gw := deployed(t)
	key := newKey(t)
	call := createCall(t, "TOMATO-001")

	if _, err := submit(t, gw, key, call); err != nil {
		t.Fatalf("first Submit() error = %v", err)
	}

	// estimation catches the duplicate before anything is sent
	_, err := gw.EstimateFee(context.Background(), crypto.PubkeyToAddress(key.PublicKey), call)
	if !errors.Is(err, ledger.ErrTransactionReverted) {
		t.Fatalf("EstimateFee(duplicate) error = %v, want ErrTransactionReverted", err)
	}

	// a stale estimate still reverts at execution
	fee := ledger.FeeEstimate{Gas: ledgertest.DefaultCreateGas, Ceiling: ledgertest.DefaultCreateGas * 3 / 2}
	_, err = gw.Submit(context.Background(), key, call, fee)
	if !errors.Is(err, ledger.ErrTransactionReverted) {
		t.Fatalf("Submit(duplicate) error = %v, want ErrTransactionReverted", err)
	}
}

func TestSubmitUnreachableIsNotRetried(t *testing.T) {
	node, gw := deployed(t)
	node.SetDown(true)

	fee := ledger.FeeEstimate{Gas: ledgertest.DefaultCreateGas, Ceiling: ledgertest.DefaultCreateGas * 3 / 2}
	_, err := gw.Submit(context.Background(), newKey(t), createCall(t, "TOMATO-001"), fee)
	if !errors.Is(err, ledger.ErrLedgerUnreachable) {
		t.Fatalf("Submit() error = %v, want ErrLedgerUnreachable", err)
	}
	node.SetDown(false)
	if node.Sent() != 0 {
		t.Errorf("Sent() = %d, want 0", node.Sent())
	}
}

func TestReadRetries(t *testing.T) {
	node, gw := deployed(t)
	id, _ := ledger.EncodeID("TOMATO-001")

	node.FailNext(2)
	if _, err := gw.Consignment(context.Background(), id); err != nil {
		t.Fatalf("Consignment() after 2 transient failures error = %v", err)
	}

	node.FailNext(3)
	_, err := gw.Consignment(context.Background(), id)
	if !errors.Is(err, ledger.ErrLedgerUnreachable) {
		t.Fatalf("Consignment() error = %v, want ErrLedgerUnreachable", err)
	}
}

// hungGateway returns a gateway whose per-operation timeouts are short enough
// to observe a node that never answers.
func hungGateway(t *testing.T) (*ledgertest.Node, *ledger.Gateway) {
	t.Helper()
	node := ledgertest.NewNode()
	addr := node.Deploy()
	gw := newGateway(t, node, func(cfg *ledger.Config) {
		cfg.EstimateTimeout = 50 * time.Millisecond
		cfg.CallTimeout = 50 * time.Millisecond
		cfg.SubmitTimeout = 50 * time.Millisecond
		cfg.ReadRetries = 1
	})
	if err := gw.SetContract(context.Background(), addr); err != nil {
		t.Fatalf("SetContract() error = %v", err)
	}
	return node, gw
}

func TestReadsBoundedByTimeout(t *testing.T) {
	key := newKey(t)
	id, _ := ledger.EncodeID("TOMATO-001")

	tests := []struct {
		name   string
		method string
		read   func(gw *ledger.Gateway) error
	}{
		{
			name:   "estimate",
			method: "EstimateGas",
			read: func(gw *ledger.Gateway) error {
				_, err := gw.EstimateFee(context.Background(), crypto.PubkeyToAddress(key.PublicKey), createCall(t, "TOMATO-001"))
				return err
			},
		},
		{
			name:   "call",
			method: "CallContract",
			read: func(gw *ledger.Gateway) error {
				_, err := gw.Consignment(context.Background(), id)
				return err
			},
		},
		{
			name:   "events",
			method: "FilterLogs",
			read: func(gw *ledger.Gateway) error {
				for _, err := range gw.Events(context.Background(), ledger.EventStatusUpdated, id) {
					if err != nil {
						return err
					}
				}
				return nil
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node, gw := hungGateway(t)
			node.Hang(tt.method)

			start := time.Now()
			err := tt.read(gw)
			elapsed := time.Since(start)

			if !errors.Is(err, ledger.ErrLedgerUnreachable) {
				t.Fatalf("error = %v, want ErrLedgerUnreachable", err)
			}
			// two attempts of 50ms each plus backoff
			if elapsed > 2*time.Second {
				t.Errorf("took %s, want it bounded by the per-attempt timeout", elapsed)
			}
			if got := node.Attempts(tt.method); got != 2 {
				t.Errorf("%s attempts = %d, want 2", tt.method, got)
			}
		})
	}
}

func TestSubmitBoundedByTimeout(t *testing.T) {
	tests := []struct {
		name     string
		hang     string
		wantSent int
	}{
		{name: "send never answers", hang: "SendTransaction", wantSent: 0},
		{name: "receipt never answers", hang: "TransactionReceipt", wantSent: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node, gw := hungGateway(t)
			node.Hang(tt.hang)

			fee := ledger.FeeEstimate{Gas: ledgertest.DefaultCreateGas, Ceiling: ledgertest.DefaultCreateGas * 3 / 2}
			start := time.Now()
			_, err := gw.Submit(context.Background(), newKey(t), createCall(t, "TOMATO-001"), fee)
			elapsed := time.Since(start)

			if !errors.Is(err, ledger.ErrLedgerUnreachable) {
				t.Fatalf("Submit() error = %v, want ErrLedgerUnreachable", err)
			}
			if elapsed > 2*time.Second {
				t.Errorf("Submit() took %s, want it bounded by the submit timeout", elapsed)
			}
			if got := node.Attempts("SendTransaction"); got != 1 {
				t.Errorf("SendTransaction attempts = %d, want 1", got)
			}
			if node.Sent() != tt.wantSent {
				t.Errorf("Sent() = %d, want %d", node.Sent(), tt.wantSent)
			}
		})
	}
}

func TestEventsInLedgerOrder(t *testing.T) {
	_, gw := deployed(t)
	producer, carrier := newKey(t), newKey(t)

	if _, err := submit(t, gw, producer, createCall(t, "TOMATO-001")); err != nil {
		t.Fatal(err)
	}
	if _, err := submit(t, gw, producer, createCall(t, "OTHER-1")); err != nil {
		t.Fatal(err)
	}
	steps := []struct{ status, location string }{
		{"in-transit", "Fresno"},
		{"at-warehouse", "Oakland"},
		{"delivered", "San Francisco"},
	}
	for _, s := range steps {
		if _, err := submit(t, gw, carrier, updateCall(t, "TOMATO-001", s.status, s.location)); err != nil {
			t.Fatalf("update %s error = %v", s.status, err)
		}
	}

	id, _ := ledger.EncodeID("TOMATO-001")
	var got []ledger.Event
	for ev, err := range gw.Events(context.Background(), ledger.EventStatusUpdated, id) {
		if err != nil {
			t.Fatalf("Events() error = %v", err)
		}
		got = append(got, ev)
	}
	if len(got) != len(steps) {
		t.Fatalf("got %d events, want %d", len(got), len(steps))
	}
	for i, ev := range got {
		if ev.Status != steps[i].status || ev.Location != steps[i].location {
			t.Errorf("event %d = %s@%s, want %s@%s", i, ev.Status, ev.Location, steps[i].status, steps[i].location)
		}
		if ev.Actor != crypto.PubkeyToAddress(carrier.PublicKey) {
			t.Errorf("event %d actor = %s, want carrier", i, ev.Actor)
		}
		if ev.ConsignmentID != id {
			t.Errorf("event %d id = %s", i, ev.ConsignmentID)
		}
		if i > 0 && !ev.Timestamp.After(got[i-1].Timestamp) {
			t.Errorf("event %d timestamp %s not after %s", i, ev.Timestamp, got[i-1].Timestamp)
		}
	}

	state, err := gw.StatusUpdates(context.Background(), id)
	if err != nil {
		t.Fatalf("StatusUpdates() error = %v", err)
	}
	if len(state) != len(steps) {
		t.Fatalf("StatusUpdates() returned %d entries, want %d", len(state), len(steps))
	}
	for i, ev := range state {
		if ev.Status != got[i].Status || !ev.Timestamp.Equal(got[i].Timestamp) || ev.Actor != got[i].Actor {
			t.Errorf("state entry %d = %+v, event = %+v", i, ev, got[i])
		}
	}

	var created int
	for ev, err := range gw.Events(context.Background(), ledger.EventConsignmentCreated, id) {
		if err != nil {
			t.Fatal(err)
		}
		if ev.ProductName != "Tomatoes" || ev.Actor != crypto.PubkeyToAddress(producer.PublicKey) {
			t.Errorf("unexpected creation event %+v", ev)
		}
		created++
	}
	if created != 1 {
		t.Errorf("got %d creation events, want 1", created)
	}
}

func TestHead(t *testing.T) {
	node, gw := deployed(t)
	head, err := gw.Head(context.Background())
	if err != nil {
		t.Fatalf("Head() error = %v", err)
	}
	if head.Number != node.BlockNumber() {
		t.Errorf("Number = %d, want %d", head.Number, node.BlockNumber())
	}
}

func TestFund(t *testing.T) {
	node := ledgertest.NewNode()
	addr := node.Deploy()
	faucet := newKey(t)
	amount := big.NewInt(1_000_000_000_000_000_000)
	gw := newGateway(t, node, func(c *ledger.Config) {
		c.FaucetKey = faucet
		c.FundingWei = amount
	})
	if err := gw.SetContract(context.Background(), addr); err != nil {
		t.Fatal(err)
	}
	if !gw.FundingEnabled() {
		t.Fatal("FundingEnabled() = false with faucet configured")
	}

	recipient := crypto.PubkeyToAddress(newKey(t).PublicKey)
	if err := gw.Fund(context.Background(), recipient); err != nil {
		t.Fatalf("Fund() error = %v", err)
	}
	if got := node.Balance(recipient); got.Cmp(amount) != 0 {
		t.Errorf("Balance() = %s, want %s", got, amount)
	}

	// without a faucet Fund is a no-op
	plain := newGateway(t, node, nil)
	if err := plain.Fund(context.Background(), recipient); err != nil {
		t.Errorf("Fund() without faucet error = %v", err)
	}
}
