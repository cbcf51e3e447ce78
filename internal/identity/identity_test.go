package identity

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/bcrypt"

	"github.com/ShravaniMogali/4GB-sub001/internal/store"
)

var testSecret = []byte("test-secret-0123456789")

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type recordingFunder struct {
	funded []common.Address
	err    error
}

func (f *recordingFunder) FundingEnabled() bool { return true }

func (f *recordingFunder) Fund(ctx context.Context, address common.Address) error {
	f.funded = append(f.funded, address)
	return f.err
}

func newService(t *testing.T, opts ...Option) (*Service, *clock) {
	t.Helper()
	clk := &clock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	tokens := NewTokenIssuer(testSecret, WithClock(clk.Now))
	opts = append([]Option{WithBcryptCost(bcrypt.MinCost)}, opts...)
	svc, err := NewService(store.NewMemoryStore(), tokens, opts...)
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	return svc, clk
}

func TestTokenExpiry(t *testing.T) {
	svc, clk := newService(t)
	issued := clk.Now()

	sess, err := svc.Register(context.Background(), "alice", "s3cret", RoleProducer)
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if want := issued.Add(24 * time.Hour); !sess.ExpiresAt.Equal(want) {
		t.Fatalf("ExpiresAt = %s, want %s", sess.ExpiresAt, want)
	}

	tests := []struct {
		name    string
		at      time.Time
		wantErr error
	}{
		{name: "at issue", at: issued},
		{name: "one second before expiry", at: sess.ExpiresAt.Add(-time.Second)},
		{name: "exactly at expiry", at: sess.ExpiresAt, wantErr: ErrTokenExpired},
		{name: "after expiry", at: sess.ExpiresAt.Add(time.Hour), wantErr: ErrTokenExpired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clk.Set(tt.at)
			p, err := svc.Verify(sess.Token)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Verify() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr == nil && (p.ID != "alice" || p.Role != RoleProducer || p.Address != sess.Principal.Address) {
				t.Errorf("Verify() = %+v", p)
			}
		})
	}
}

func TestVerifyRejectsForgedTokens(t *testing.T) {
	svc, clk := newService(t)
	sess, err := svc.Register(context.Background(), "alice", "s3cret", RoleProducer)
	if err != nil {
		t.Fatal(err)
	}

	other := NewTokenIssuer([]byte("another-secret-abcdef"), WithClock(clk.Now))
	foreign, _, err := other.Issue(sess.Principal)
	if err != nil {
		t.Fatal(err)
	}

	parts := strings.Split(sess.Token, ".")
	tampered := parts[0] + "." + parts[1] + "x." + parts[2]

	for name, token := range map[string]string{
		"empty":        "",
		"garbage":      "not-a-token",
		"wrong secret": foreign,
		"tampered":     tampered,
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := svc.Verify(token); !errors.Is(err, ErrTokenInvalid) {
				t.Errorf("Verify() error = %v, want ErrTokenInvalid", err)
			}
		})
	}
}

func TestRegister(t *testing.T) {
	funder := &recordingFunder{}
	svc, _ := newService(t, WithFunder(funder))
	ctx := context.Background()

	sess, err := svc.Register(ctx, "alice", "s3cret", "Producer")
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if sess.Principal.Role != RoleProducer {
		t.Errorf("Role = %s", sess.Principal.Role)
	}
	if sess.Principal.Address == (common.Address{}) {
		t.Error("no ledger address generated")
	}
	if len(funder.funded) != 1 || funder.funded[0] != sess.Principal.Address {
		t.Errorf("funded = %v, want [%s]", funder.funded, sess.Principal.Address)
	}

	tests := []struct {
		name     string
		id, cred string
		role     Role
		wantErr  error
	}{
		{name: "duplicate", id: "alice", cred: "other", role: RoleHandler, wantErr: ErrPrincipalExists},
		{name: "missing id", id: "", cred: "x", role: RoleHandler, wantErr: ErrInvalidInput},
		{name: "missing credential", id: "bob", cred: "", role: RoleHandler, wantErr: ErrInvalidInput},
		{name: "unknown role", id: "bob", cred: "x", role: "farmer", wantErr: ErrInvalidRole},
		{name: "credential over 72 bytes", id: "bob", cred: strings.Repeat("x", 73), role: RoleHandler, wantErr: ErrInvalidInput},
		{name: "self-registered admin", id: "mallory", cred: "x", role: RoleAdmin, wantErr: ErrAdminNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Register(ctx, tt.id, tt.cred, tt.role); !errors.Is(err, tt.wantErr) {
				t.Errorf("Register() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestRegisterAdmin(t *testing.T) {
	svc, _ := newService(t, WithAdminIDs("root", " ops "))
	ctx := context.Background()

	for _, id := range []string{"root", "ops"} {
		sess, err := svc.Register(ctx, id, "s3cret", "ADMIN")
		if err != nil {
			t.Fatalf("Register(%s) error = %v", id, err)
		}
		if !sess.Principal.IsAdmin() {
			t.Errorf("Register(%s) role = %s, want admin", id, sess.Principal.Role)
		}
	}
	if _, err := svc.Register(ctx, "mallory", "s3cret", RoleAdmin); !errors.Is(err, ErrAdminNotAllowed) {
		t.Errorf("Register(mallory, admin) error = %v, want ErrAdminNotAllowed", err)
	}
}

func TestRegisterLongestCredential(t *testing.T) {
	svc, _ := newService(t)
	cred := strings.Repeat("x", 72)
	if _, err := svc.Register(context.Background(), "alice", cred, RoleHandler); err != nil {
		t.Fatalf("Register(72 byte credential) error = %v", err)
	}
	if _, err := svc.Authenticate(context.Background(), "alice", cred); err != nil {
		t.Errorf("Authenticate(72 byte credential) error = %v", err)
	}
}

func TestRegisterSurvivesFundingFailure(t *testing.T) {
	svc, _ := newService(t, WithFunder(&recordingFunder{err: errors.New("faucet empty")}))
	if _, err := svc.Register(context.Background(), "alice", "s3cret", RoleProducer); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
}

func TestAuthenticate(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	reg, err := svc.Register(ctx, "alice", "s3cret", RoleProducer)
	if err != nil {
		t.Fatal(err)
	}

	sess, err := svc.Authenticate(ctx, "alice", "s3cret")
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if sess.Principal != reg.Principal {
		t.Errorf("Principal = %+v, want %+v", sess.Principal, reg.Principal)
	}
	if _, err := svc.Verify(sess.Token); err != nil {
		t.Errorf("Verify(new token) error = %v", err)
	}

	if _, err := svc.Authenticate(ctx, "alice", "wrong"); !errors.Is(err, ErrInvalidCredential) {
		t.Errorf("Authenticate(wrong credential) error = %v", err)
	}
	if _, err := svc.Authenticate(ctx, "nobody", "s3cret"); !errors.Is(err, ErrPrincipalNotFound) {
		t.Errorf("Authenticate(unknown) error = %v", err)
	}
}

func TestRotateCredential(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	reg, err := svc.Register(ctx, "alice", "old", RoleHandler)
	if err != nil {
		t.Fatal(err)
	}

	if err := svc.RotateCredential(ctx, "alice", "wrong", "new"); !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("RotateCredential(wrong current) error = %v", err)
	}
	if err := svc.RotateCredential(ctx, "alice", "old", ""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("RotateCredential(empty) error = %v", err)
	}
	if err := svc.RotateCredential(ctx, "alice", "old", strings.Repeat("n", 73)); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("RotateCredential(73 bytes) error = %v, want ErrInvalidInput", err)
	}
	if err := svc.RotateCredential(ctx, "alice", "old", "new"); err != nil {
		t.Fatalf("RotateCredential() error = %v", err)
	}

	if _, err := svc.Authenticate(ctx, "alice", "old"); !errors.Is(err, ErrInvalidCredential) {
		t.Errorf("old credential still accepted: %v", err)
	}
	sess, err := svc.Authenticate(ctx, "alice", "new")
	if err != nil {
		t.Fatalf("Authenticate(new) error = %v", err)
	}
	if sess.Principal.Address != reg.Principal.Address {
		t.Error("rotation changed the ledger address")
	}
}

func TestSigner(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	reg, err := svc.Register(ctx, "alice", "s3cret", RoleProducer)
	if err != nil {
		t.Fatal(err)
	}

	key, err := svc.Signer(ctx, reg.Principal)
	if err != nil {
		t.Fatalf("Signer() error = %v", err)
	}
	if crypto.PubkeyToAddress(key.PublicKey) != reg.Principal.Address {
		t.Error("signer key does not match principal address")
	}

	forged := reg.Principal
	forged.Address = common.HexToAddress("0x1")
	if _, err := svc.Signer(ctx, forged); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("Signer(mismatched address) error = %v", err)
	}
	if _, err := svc.Signer(ctx, Principal{ID: "ghost"}); !errors.Is(err, ErrPrincipalNotFound) {
		t.Errorf("Signer(unknown) error = %v", err)
	}
}
