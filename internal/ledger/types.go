package ledger

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
)

// Backend is the node surface the gateway needs. *ethclient.Client satisfies it.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
}

// Call is a contract function invocation, before ABI packing.
type Call struct {
	Method string
	Args   []any
}

// FeeEstimate is the node's gas estimate for a pending call together with the
// ceiling the transaction will be submitted with.
type FeeEstimate struct {
	Gas     uint64
	Ceiling uint64
}

// Receipt summarises a mined, successful transaction.
type Receipt struct {
	TxHash      common.Hash
	BlockNumber uint64
	GasUsed     uint64
	GasLimit    uint64
}

// ConsignmentRecord is the decoded result of getConsignment.
type ConsignmentRecord struct {
	ID              EncodedID
	ProductName     string
	ProductionDate  string
	FarmLocation    string
	ProducerInfo    string
	CurrentStatus   string
	CurrentLocation string
	Producer        common.Address
	CreatedAt       time.Time
}

// Exists reports whether the contract returned a populated record; missing
// identifiers come back zeroed.
func (r *ConsignmentRecord) Exists() bool {
	return r != nil && !r.CreatedAt.IsZero()
}

// consignmentTuple mirrors the getConsignment outputs for abi unpacking.
type consignmentTuple struct {
	Id              [32]byte
	ProductName     string
	ProductionDate  string
	FarmLocation    string
	ProducerInfo    string
	CurrentStatus   string
	CurrentLocation string
	Producer        common.Address
	CreatedAt       *big.Int
}

// StatusUpdatesTuple mirrors the getStatusUpdates outputs.
type StatusUpdatesTuple struct {
	Statuses   []string
	Locations  []string
	Handlers   []common.Address
	Timestamps []*big.Int
}

// Event is a decoded contract log. Actor is the producer for
// ConsignmentCreated and the handler for StatusUpdated.
type Event struct {
	Kind          EventKind
	ConsignmentID EncodedID
	Actor         common.Address
	ProductName   string
	Status        string
	Location      string
	Timestamp     time.Time
	BlockNumber   uint64
	LogIndex      uint
	TxHash        common.Hash
}

// non-indexed event payloads
type createdPayload struct {
	ProductName string
	Timestamp   *big.Int
}

type statusPayload struct {
	Status    string
	Location  string
	Timestamp *big.Int
}

// Head is the latest block header the node reports.
type Head struct {
	Number uint64
	Time   time.Time
}

func unixTime(v *big.Int) time.Time {
	if v == nil || v.Sign() == 0 {
		return time.Time{}
	}
	return time.Unix(v.Int64(), 0).UTC()
}
