package consignment

import (
	"context"
	"fmt"

	"github.com/ShravaniMogali/4GB-sub001/internal/identity"
	"github.com/ShravaniMogali/4GB-sub001/internal/ledger"
)

// Policy decides who may change a consignment.
type Policy string

const (
	// PolicyOpen lets any authenticated principal create consignments and
	// update any consignment.
	PolicyOpen Policy = "open"
	// PolicyParticipants restricts creation to producers and updates to the
	// consignment's producer and previous handlers. Admins may do both.
	PolicyParticipants Policy = "participants"
)

func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(s); p {
	case PolicyOpen, PolicyParticipants:
		return p, nil
	case "":
		return PolicyOpen, nil
	default:
		return "", fmt.Errorf("unknown update policy %q", s)
	}
}

func (s *Service) authorizeCreate(p identity.Principal) error {
	if s.policy != PolicyParticipants || p.IsAdmin() || p.Role == identity.RoleProducer {
		return nil
	}
	return fmt.Errorf("%w: role %s may not create consignments", ErrNotPermitted, p.Role)
}

func (s *Service) authorizeUpdate(ctx context.Context, p identity.Principal, enc ledger.EncodedID, rec *ledger.ConsignmentRecord) error {
	if s.policy != PolicyParticipants || p.IsAdmin() || rec.Producer == p.Address {
		return nil
	}
	updates, err := s.ledger.StatusUpdates(ctx, enc)
	if err != nil {
		return fmt.Errorf("loading handlers: %w", err)
	}
	for _, u := range updates {
		if u.Actor == p.Address {
			return nil
		}
	}
	return fmt.Errorf("%w: %s has not handled %s", ErrNotPermitted, p.ID, enc)
}
