package consignment

import (
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ShravaniMogali/4GB-sub001/internal/ledger"
)

var (
	ErrValidation           = errors.New("validation failed")
	ErrConsignmentNotFound  = errors.New("consignment not found")
	ErrDuplicateConsignment = errors.New("consignment already exists")
	ErrNotPermitted         = errors.New("not permitted")
)

// StatusCreated is what a new consignment reports before any update.
const StatusCreated = "created"

// CreateParams are the attributes fixed at creation.
type CreateParams struct {
	ConsignmentID  string
	ProductName    string
	ProductionDate string
	FarmLocation   string
	ProducerInfo   string
}

// Result describes a mined state change.
type Result struct {
	TransactionHash common.Hash
	ConsignmentID   string
	Status          string
	BlockNumber     uint64
}

// Consignment is the current ledger view of a shipment.
type Consignment struct {
	ConsignmentID   string
	ProductName     string
	ProductionDate  string
	FarmLocation    string
	ProducerInfo    string
	CurrentStatus   string
	CurrentLocation string
	ProducerAddress common.Address
	CreatedAt       time.Time
}

// StatusUpdate is one replayed StatusUpdated event. BlockNumber and
// TransactionHash are zero when the entry was read from contract storage.
type StatusUpdate struct {
	ConsignmentID   string
	Status          string
	Location        string
	HandlerAddress  common.Address
	Timestamp       time.Time
	BlockNumber     uint64
	TransactionHash common.Hash
}

// TrailEntry is an entry of the full audit trail: the creation followed by
// every status update.
type TrailEntry struct {
	Kind            ledger.EventKind
	Actor           common.Address
	ProductName     string
	Status          string
	Location        string
	Timestamp       time.Time
	BlockNumber     uint64
	TransactionHash common.Hash
}

func fromRecord(id string, r *ledger.ConsignmentRecord) *Consignment {
	return &Consignment{
		ConsignmentID:   id,
		ProductName:     r.ProductName,
		ProductionDate:  r.ProductionDate,
		FarmLocation:    r.FarmLocation,
		ProducerInfo:    r.ProducerInfo,
		CurrentStatus:   r.CurrentStatus,
		CurrentLocation: r.CurrentLocation,
		ProducerAddress: r.Producer,
		CreatedAt:       r.CreatedAt,
	}
}

func fromEvent(id string, e ledger.Event) StatusUpdate {
	return StatusUpdate{
		ConsignmentID:   id,
		Status:          e.Status,
		Location:        e.Location,
		HandlerAddress:  e.Actor,
		Timestamp:       e.Timestamp,
		BlockNumber:     e.BlockNumber,
		TransactionHash: e.TxHash,
	}
}
