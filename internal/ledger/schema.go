package ledger

import (
	"bytes"
	_ "embed"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// SchemaVersion identifies the deployed contract interface this build is
// compatible with. Bump it together with consignment.abi.json.
const SchemaVersion = "consignment/v1"

// Contract function names.
const (
	MethodCreateConsignment = "createConsignment"
	MethodUpdateStatus      = "updateStatus"
	MethodGetConsignment    = "getConsignment"
	MethodGetStatusUpdates  = "getStatusUpdates"
)

// EventKind names a contract event.
type EventKind string

const (
	EventConsignmentCreated EventKind = "ConsignmentCreated"
	EventStatusUpdated      EventKind = "StatusUpdated"
)

//go:embed consignment.abi.json
var consignmentABI []byte

type descriptorKind string

const (
	kindFunction descriptorKind = "function"
	kindEvent    descriptorKind = "event"
)

// descriptor pins one function or event to its canonical signature. Argument
// order and types must match the deployed contract exactly.
type descriptor struct {
	kind      descriptorKind
	name      string
	signature string
	// indexed argument positions, events only
	indexed []int
}

var descriptors = []descriptor{
	{kind: kindFunction, name: MethodCreateConsignment, signature: "createConsignment(bytes32,string,string,string,string)"},
	{kind: kindFunction, name: MethodUpdateStatus, signature: "updateStatus(bytes32,string,string)"},
	{kind: kindFunction, name: MethodGetConsignment, signature: "getConsignment(bytes32)"},
	{kind: kindFunction, name: MethodGetStatusUpdates, signature: "getStatusUpdates(bytes32)"},
	{kind: kindEvent, name: string(EventConsignmentCreated), signature: "ConsignmentCreated(bytes32,string,address,uint256)", indexed: []int{0, 2}},
	{kind: kindEvent, name: string(EventStatusUpdated), signature: "StatusUpdated(bytes32,string,string,address,uint256)", indexed: []int{0, 3}},
}

// Schema is the parsed, validated contract interface.
type Schema struct {
	Version string
	ABI     abi.ABI
}

// LoadSchema parses the embedded ABI and checks it against the pinned
// descriptors.
func LoadSchema() (*Schema, error) {
	return ParseSchema(consignmentABI)
}

// ParseSchema parses raw ABI JSON and validates it.
func ParseSchema(raw []byte) (*Schema, error) {
	parsed, err := abi.JSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parsing contract abi: %w", err)
	}
	s := &Schema{Version: SchemaVersion, ABI: parsed}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks that every required function and event is present with the
// expected signature and indexed arguments.
func (s *Schema) Validate() error {
	for _, d := range descriptors {
		switch d.kind {
		case kindFunction:
			m, ok := s.ABI.Methods[d.name]
			if !ok {
				return fmt.Errorf("%w: missing function %s", ErrSchemaMismatch, d.name)
			}
			if m.Sig != d.signature {
				return fmt.Errorf("%w: function %s has signature %s, want %s", ErrSchemaMismatch, d.name, m.Sig, d.signature)
			}
		case kindEvent:
			ev, ok := s.ABI.Events[d.name]
			if !ok {
				return fmt.Errorf("%w: missing event %s", ErrSchemaMismatch, d.name)
			}
			if ev.Sig != d.signature {
				return fmt.Errorf("%w: event %s has signature %s, want %s", ErrSchemaMismatch, d.name, ev.Sig, d.signature)
			}
			for _, i := range d.indexed {
				if i >= len(ev.Inputs) || !ev.Inputs[i].Indexed {
					return fmt.Errorf("%w: event %s argument %d must be indexed", ErrSchemaMismatch, d.name, i)
				}
			}
		}
	}
	return nil
}

// Event returns the ABI event for kind.
func (s *Schema) Event(kind EventKind) (abi.Event, error) {
	ev, ok := s.ABI.Events[string(kind)]
	if !ok {
		return abi.Event{}, fmt.Errorf("%w: unknown event %s", ErrSchemaMismatch, kind)
	}
	return ev, nil
}
