package store

import (
	"context"
	"errors"
	"time"

	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("store")

var (
	ErrPrincipalNotFound = errors.New("principal not found")
	ErrPrincipalExists   = errors.New("principal already exists")
)

// Principal is the persisted form of a registered identity.
type Principal struct {
	// ID is the caller-chosen principal identifier, e.g. "alice".
	ID string `json:"id" db:"id"`
	// Role is one of producer, handler, distributor, retailer or admin.
	Role string `json:"role" db:"role"`
	// Address is the hex ledger address derived from PrivateKey.
	Address string `json:"address" db:"address"`
	// PrivateKey is the hex encoded secp256k1 key used to sign ledger
	// transactions on the principal's behalf.
	PrivateKey string `json:"-" db:"private_key"`
	// CredentialHash is the bcrypt hash of the principal's credential.
	CredentialHash string `json:"-" db:"credential_hash"`
	// CreatedAt is the time this record was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	// UpdatedAt is the time the credential was last changed.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// PrincipalStore is the principal directory. Implementations must be safe
// for concurrent use and must make Put fail with ErrPrincipalExists when the
// id is taken, even under concurrent registration.
type PrincipalStore interface {
	Get(ctx context.Context, id string) (*Principal, error)
	Put(ctx context.Context, p Principal) error
	Exists(ctx context.Context, id string) (bool, error)
	UpdateCredential(ctx context.Context, id string, credentialHash string) error
}
