package consignment

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"iter"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	logging "github.com/ipfs/go-log/v2"

	"github.com/ShravaniMogali/4GB-sub001/internal/identity"
	"github.com/ShravaniMogali/4GB-sub001/internal/keyedmutex"
	"github.com/ShravaniMogali/4GB-sub001/internal/ledger"
)

var log = logging.Logger("consignment")

// Ledger is the part of the ledger gateway the lifecycle needs.
type Ledger interface {
	EstimateFee(ctx context.Context, from common.Address, call ledger.Call) (ledger.FeeEstimate, error)
	Submit(ctx context.Context, key *ecdsa.PrivateKey, call ledger.Call, fee ledger.FeeEstimate) (*ledger.Receipt, error)
	Consignment(ctx context.Context, id ledger.EncodedID) (*ledger.ConsignmentRecord, error)
	StatusUpdates(ctx context.Context, id ledger.EncodedID) ([]ledger.Event, error)
	Events(ctx context.Context, kind ledger.EventKind, id ledger.EncodedID) iter.Seq2[ledger.Event, error]
}

// Signers resolves the ledger key of an authenticated principal.
type Signers interface {
	Signer(ctx context.Context, p identity.Principal) (*ecdsa.PrivateKey, error)
}

type Service struct {
	ledger  Ledger
	signers Signers
	policy  Policy
	// nil when same-process writers are not serialised
	locks *keyedmutex.Mutex
}

type Option func(*Service)

func WithPolicy(p Policy) Option {
	return func(s *Service) {
		s.policy = p
	}
}

// WithSerializedUpdates makes writes to the same consignment from this
// process wait for each other.
func WithSerializedUpdates(enabled bool) Option {
	return func(s *Service) {
		if enabled {
			s.locks = keyedmutex.New()
		} else {
			s.locks = nil
		}
	}
}

func NewService(l Ledger, signers Signers, opts ...Option) *Service {
	s := &Service{
		ledger:  l,
		signers: signers,
		policy:  PolicyOpen,
		locks:   keyedmutex.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create records a new consignment on the ledger, signed by p.
func (s *Service) Create(ctx context.Context, p identity.Principal, params CreateParams) (*Result, error) {
	params.ConsignmentID = strings.TrimSpace(params.ConsignmentID)
	params.ProductName = strings.TrimSpace(params.ProductName)
	if params.ConsignmentID == "" {
		return nil, fmt.Errorf("%w: consignmentId is required", ErrValidation)
	}
	if params.ProductName == "" {
		return nil, fmt.Errorf("%w: productName is required", ErrValidation)
	}
	enc, err := ledger.EncodeID(params.ConsignmentID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	if err := s.authorizeCreate(p); err != nil {
		return nil, err
	}

	unlock := s.lock(params.ConsignmentID)
	defer unlock()

	call := ledger.Call{
		Method: ledger.MethodCreateConsignment,
		Args:   []any{[32]byte(enc), params.ProductName, params.ProductionDate, params.FarmLocation, params.ProducerInfo},
	}
	receipt, err := s.submit(ctx, p, call)
	if err != nil {
		if errors.Is(err, ledger.ErrTransactionReverted) {
			return nil, s.duplicateOr(ctx, enc, err)
		}
		return nil, err
	}

	log.Infow("Created consignment", "consignment_id", params.ConsignmentID, "principal", p.ID, "tx", receipt.TxHash, "block", receipt.BlockNumber)
	return &Result{
		TransactionHash: receipt.TxHash,
		ConsignmentID:   params.ConsignmentID,
		Status:          StatusCreated,
		BlockNumber:     receipt.BlockNumber,
	}, nil
}

// UpdateStatus appends a status update to an existing consignment. Any
// status string is accepted.
func (s *Service) UpdateStatus(ctx context.Context, p identity.Principal, id, status, location string) (*Result, error) {
	id = strings.TrimSpace(id)
	status = strings.TrimSpace(status)
	location = strings.TrimSpace(location)
	if status == "" {
		return nil, fmt.Errorf("%w: status is required", ErrValidation)
	}
	enc, err := ledger.EncodeID(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}

	unlock := s.lock(id)
	defer unlock()

	rec, err := s.ledger.Consignment(ctx, enc)
	if err != nil {
		return nil, err
	}
	if !rec.Exists() {
		return nil, fmt.Errorf("%w: %s", ErrConsignmentNotFound, id)
	}
	if err := s.authorizeUpdate(ctx, p, enc, rec); err != nil {
		return nil, err
	}

	call := ledger.Call{
		Method: ledger.MethodUpdateStatus,
		Args:   []any{[32]byte(enc), status, location},
	}
	receipt, err := s.submit(ctx, p, call)
	if err != nil {
		return nil, err
	}

	log.Infow("Updated consignment status", "consignment_id", id, "status", status, "location", location, "principal", p.ID, "tx", receipt.TxHash)
	return &Result{
		TransactionHash: receipt.TxHash,
		ConsignmentID:   id,
		Status:          status,
		BlockNumber:     receipt.BlockNumber,
	}, nil
}

// Details returns the current ledger record for id.
func (s *Service) Details(ctx context.Context, id string) (*Consignment, error) {
	enc, rec, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return fromRecord(enc.String(), rec), nil
}

// History replays the status updates of id in ledger order. A consignment
// that exists but was never updated has an empty, non-nil history.
func (s *Service) History(ctx context.Context, id string) ([]StatusUpdate, error) {
	enc, _, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	id = enc.String()

	history := []StatusUpdate{}
	for ev, err := range s.ledger.Events(ctx, ledger.EventStatusUpdated, enc) {
		if err != nil {
			return nil, err
		}
		history = append(history, fromEvent(id, ev))
	}

	// logs can be pruned or scanned from a too-late block; contract storage
	// still holds every update
	state, err := s.ledger.StatusUpdates(ctx, enc)
	if err != nil {
		log.Warnw("Could not cross-check history against contract state", "consignment_id", id, "error", err)
		return history, nil
	}
	if len(state) > len(history) {
		log.Warnw("Event log is missing status updates, using contract state",
			"consignment_id", id, "events", len(history), "state", len(state))
		history = history[:0]
		for _, ev := range state {
			history = append(history, fromEvent(id, ev))
		}
	}
	return history, nil
}

// Trail returns the creation event followed by every status update.
func (s *Service) Trail(ctx context.Context, id string) ([]TrailEntry, error) {
	enc, rec, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	var trail []TrailEntry
	for _, kind := range []ledger.EventKind{ledger.EventConsignmentCreated, ledger.EventStatusUpdated} {
		for ev, err := range s.ledger.Events(ctx, kind, enc) {
			if err != nil {
				return nil, err
			}
			trail = append(trail, TrailEntry{
				Kind:            ev.Kind,
				Actor:           ev.Actor,
				ProductName:     ev.ProductName,
				Status:          ev.Status,
				Location:        ev.Location,
				Timestamp:       ev.Timestamp,
				BlockNumber:     ev.BlockNumber,
				TransactionHash: ev.TxHash,
			})
		}
	}
	if len(trail) == 0 || trail[0].Kind != ledger.EventConsignmentCreated {
		// creation log not visible; synthesise it from the record
		trail = append([]TrailEntry{{
			Kind:        ledger.EventConsignmentCreated,
			Actor:       rec.Producer,
			ProductName: rec.ProductName,
			Status:      StatusCreated,
			Location:    rec.FarmLocation,
			Timestamp:   rec.CreatedAt,
		}}, trail...)
	} else {
		trail[0].Status = StatusCreated
		trail[0].Location = rec.FarmLocation
	}
	return trail, nil
}

func (s *Service) load(ctx context.Context, id string) (ledger.EncodedID, *ledger.ConsignmentRecord, error) {
	id = strings.TrimSpace(id)
	enc, err := ledger.EncodeID(id)
	if err != nil {
		return enc, nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	rec, err := s.ledger.Consignment(ctx, enc)
	if err != nil {
		return enc, nil, err
	}
	if !rec.Exists() {
		return enc, nil, fmt.Errorf("%w: %s", ErrConsignmentNotFound, id)
	}
	return enc, rec, nil
}

func (s *Service) submit(ctx context.Context, p identity.Principal, call ledger.Call) (*ledger.Receipt, error) {
	key, err := s.signers.Signer(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("resolving signer: %w", err)
	}
	fee, err := s.ledger.EstimateFee(ctx, p.Address, call)
	if err != nil {
		return nil, err
	}
	log.Debugw("Estimated fee", "method", call.Method, "gas", fee.Gas, "ceiling", fee.Ceiling)
	return s.ledger.Submit(ctx, key, call, fee)
}

// duplicateOr reports ErrDuplicateConsignment when the revert was caused by
// an existing record, and err otherwise.
func (s *Service) duplicateOr(ctx context.Context, enc ledger.EncodedID, err error) error {
	rec, rerr := s.ledger.Consignment(ctx, enc)
	if rerr == nil && rec.Exists() {
		return fmt.Errorf("%w: %s", ErrDuplicateConsignment, enc)
	}
	return err
}

func (s *Service) lock(id string) func() {
	if s.locks == nil {
		return func() {}
	}
	return s.locks.Lock(id)
}
