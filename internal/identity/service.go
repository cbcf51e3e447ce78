package identity

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	logging "github.com/ipfs/go-log/v2"
	"golang.org/x/crypto/bcrypt"

	"github.com/ShravaniMogali/4GB-sub001/internal/store"
)

var log = logging.Logger("identity")

// bcrypt only hashes the first 72 bytes and refuses longer input.
const maxCredentialBytes = 72

// Funder sends a newly registered address enough value to pay for its own
// transactions.
type Funder interface {
	FundingEnabled() bool
	Fund(ctx context.Context, address common.Address) error
}

// Session is the result of a successful registration or authentication.
type Session struct {
	Token     string
	ExpiresAt time.Time
	Principal Principal
}

type Service struct {
	store      store.PrincipalStore
	tokens     *TokenIssuer
	bcryptCost int
	funder     Funder
	adminIDs   map[string]struct{}
	// compared against when the principal is unknown so both failure paths
	// cost one bcrypt comparison
	decoyHash []byte
}

type Option func(*Service)

func WithBcryptCost(cost int) Option {
	return func(s *Service) {
		if cost >= bcrypt.MinCost && cost <= bcrypt.MaxCost {
			s.bcryptCost = cost
		}
	}
}

func WithFunder(f Funder) Option {
	return func(s *Service) {
		s.funder = f
	}
}

// WithAdminIDs lists the principal ids allowed to register with the admin
// role. With none, nobody can.
func WithAdminIDs(ids ...string) Option {
	return func(s *Service) {
		for _, id := range ids {
			if id = strings.TrimSpace(id); id != "" {
				s.adminIDs[id] = struct{}{}
			}
		}
	}
}

func NewService(principals store.PrincipalStore, tokens *TokenIssuer, opts ...Option) (*Service, error) {
	s := &Service{
		store:      principals,
		tokens:     tokens,
		bcryptCost: bcrypt.DefaultCost,
		adminIDs:   make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	decoy, err := bcrypt.GenerateFromPassword([]byte("decoy credential"), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hashing decoy credential: %w", err)
	}
	s.decoyHash = decoy
	return s, nil
}

// Register creates a principal with a fresh ledger key pair and returns a
// session for it.
func (s *Service) Register(ctx context.Context, id, credential string, role Role) (*Session, error) {
	id = strings.TrimSpace(id)
	if id == "" || credential == "" {
		return nil, fmt.Errorf("%w: id and credential are required", ErrInvalidInput)
	}
	if err := checkCredential(credential); err != nil {
		return nil, err
	}
	role, err := ParseRole(string(role))
	if err != nil {
		return nil, err
	}
	if role == RoleAdmin {
		if _, ok := s.adminIDs[id]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrAdminNotAllowed, id)
		}
	}

	exists, err := s.store.Exists(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("checking principal: %w", err)
	}
	if exists {
		return nil, fmt.Errorf("%w: %s", ErrPrincipalExists, id)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(credential), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hashing credential: %w", err)
	}
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("generating key pair: %w", err)
	}
	p := Principal{ID: id, Role: role, Address: crypto.PubkeyToAddress(key.PublicKey)}

	err = s.store.Put(ctx, store.Principal{
		ID:             id,
		Role:           string(role),
		Address:        p.Address.Hex(),
		PrivateKey:     hex.EncodeToString(crypto.FromECDSA(key)),
		CredentialHash: string(hash),
	})
	if err != nil {
		if errors.Is(err, store.ErrPrincipalExists) {
			return nil, fmt.Errorf("%w: %s", ErrPrincipalExists, id)
		}
		return nil, fmt.Errorf("storing principal: %w", err)
	}
	log.Infow("Registered principal", "id", id, "role", role, "address", p.Address)

	if s.funder != nil && s.funder.FundingEnabled() {
		// the principal exists either way; an unfunded address can be topped up later
		if err := s.funder.Fund(ctx, p.Address); err != nil {
			log.Warnw("Failed to fund principal address", "id", id, "address", p.Address, "error", err)
		}
	}

	return s.session(p)
}

// Authenticate checks id and credential and returns a new session.
func (s *Service) Authenticate(ctx context.Context, id, credential string) (*Session, error) {
	rec, err := s.store.Get(ctx, strings.TrimSpace(id))
	if err != nil {
		if errors.Is(err, store.ErrPrincipalNotFound) {
			_ = bcrypt.CompareHashAndPassword(s.decoyHash, []byte(credential))
			return nil, fmt.Errorf("%w: %s", ErrPrincipalNotFound, id)
		}
		return nil, fmt.Errorf("loading principal: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(rec.CredentialHash), []byte(credential)); err != nil {
		log.Debugw("Credential mismatch", "id", id)
		return nil, ErrInvalidCredential
	}
	p, err := principalFromRecord(rec)
	if err != nil {
		return nil, err
	}
	return s.session(p)
}

// Verify validates a session token. It is a pure function of the token and
// the signing secret.
func (s *Service) Verify(token string) (Principal, error) {
	return s.tokens.Verify(token)
}

// RotateCredential replaces a principal's credential after checking the
// current one. The ledger key pair is unchanged and previously issued tokens
// stay valid until they expire.
func (s *Service) RotateCredential(ctx context.Context, id, current, next string) error {
	if next == "" {
		return fmt.Errorf("%w: new credential is required", ErrInvalidInput)
	}
	if err := checkCredential(next); err != nil {
		return err
	}
	rec, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrPrincipalNotFound) {
			return fmt.Errorf("%w: %s", ErrPrincipalNotFound, id)
		}
		return fmt.Errorf("loading principal: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(rec.CredentialHash), []byte(current)); err != nil {
		return ErrInvalidCredential
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(next), s.bcryptCost)
	if err != nil {
		return fmt.Errorf("hashing credential: %w", err)
	}
	if err := s.store.UpdateCredential(ctx, id, string(hash)); err != nil {
		return fmt.Errorf("updating credential: %w", err)
	}
	log.Infow("Rotated credential", "id", id)
	return nil
}

// Signer returns the ledger key of an authenticated principal.
func (s *Service) Signer(ctx context.Context, p Principal) (*ecdsa.PrivateKey, error) {
	rec, err := s.store.Get(ctx, p.ID)
	if err != nil {
		if errors.Is(err, store.ErrPrincipalNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrPrincipalNotFound, p.ID)
		}
		return nil, fmt.Errorf("loading principal: %w", err)
	}
	key, err := crypto.HexToECDSA(rec.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("decoding key for %s: %w", p.ID, err)
	}
	if crypto.PubkeyToAddress(key.PublicKey) != p.Address {
		return nil, fmt.Errorf("%w: token address does not match principal %s", ErrTokenInvalid, p.ID)
	}
	return key, nil
}

func (s *Service) session(p Principal) (*Session, error) {
	token, expiresAt, err := s.tokens.Issue(p)
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, ExpiresAt: expiresAt, Principal: p}, nil
}

func checkCredential(credential string) error {
	if len(credential) > maxCredentialBytes {
		return fmt.Errorf("%w: credential is %d bytes, max %d", ErrInvalidInput, len(credential), maxCredentialBytes)
	}
	return nil
}

func principalFromRecord(rec *store.Principal) (Principal, error) {
	role, err := ParseRole(rec.Role)
	if err != nil {
		return Principal{}, fmt.Errorf("stored principal %s: %w", rec.ID, err)
	}
	if !common.IsHexAddress(rec.Address) {
		return Principal{}, fmt.Errorf("stored principal %s has invalid address %q", rec.ID, rec.Address)
	}
	return Principal{ID: rec.ID, Role: role, Address: common.HexToAddress(rec.Address)}, nil
}
