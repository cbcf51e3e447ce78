package config

import (
	"slices"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestFromViper(t *testing.T) {
	tests := []struct {
		name    string
		set     map[string]any
		wantErr bool
		check   func(t *testing.T, cfg *Config)
	}{
		{
			name: "defaults",
			set:  map[string]any{"auth.token_secret": "0123456789abcdef"},
			check: func(t *testing.T, cfg *Config) {
				if cfg.Server.Address() != "0.0.0.0:8080" {
					t.Errorf("Address() = %s", cfg.Server.Address())
				}
				if cfg.Auth.TokenTTL != 24*time.Hour {
					t.Errorf("TokenTTL = %s, want 24h", cfg.Auth.TokenTTL)
				}
				if cfg.Store.Backend != StoreMemory {
					t.Errorf("Backend = %s", cfg.Store.Backend)
				}
				if len(cfg.Auth.AdminIDs) != 0 {
					t.Errorf("AdminIDs = %q, want none", cfg.Auth.AdminIDs)
				}
				if cfg.Consignment.UpdatePolicy != PolicyOpen || !cfg.Consignment.SerializeUpdates {
					t.Errorf("Consignment = %+v", cfg.Consignment)
				}
			},
		},
		{
			name: "admin ids from a list",
			set: map[string]any{
				"auth.token_secret": "0123456789abcdef",
				"auth.admin_ids":    []string{"root", " ops "},
			},
			check: func(t *testing.T, cfg *Config) {
				if !slices.Equal(cfg.Auth.AdminIDs, []string{"root", "ops"}) {
					t.Errorf("AdminIDs = %q", cfg.Auth.AdminIDs)
				}
			},
		},
		{
			name: "admin ids from a comma separated env value",
			set: map[string]any{
				"auth.token_secret": "0123456789abcdef",
				"auth.admin_ids":    "root,ops,",
			},
			check: func(t *testing.T, cfg *Config) {
				if !slices.Equal(cfg.Auth.AdminIDs, []string{"root", "ops"}) {
					t.Errorf("AdminIDs = %q", cfg.Auth.AdminIDs)
				}
			},
		},
		{
			name:    "missing secret",
			set:     map[string]any{},
			wantErr: true,
		},
		{
			name: "dynamo without region",
			set: map[string]any{
				"auth.token_secret": "0123456789abcdef",
				"store.backend":     "dynamo",
			},
			wantErr: true,
		},
		{
			name: "dynamo",
			set: map[string]any{
				"auth.token_secret": "0123456789abcdef",
				"store.backend":     "DYNAMO",
				"store.region":      "us-west-2",
			},
			check: func(t *testing.T, cfg *Config) {
				if cfg.Store.Dynamo.PrincipalsTable != "consignd-principals" {
					t.Errorf("PrincipalsTable = %s", cfg.Store.Dynamo.PrincipalsTable)
				}
			},
		},
		{
			name: "unknown backend",
			set: map[string]any{
				"auth.token_secret": "0123456789abcdef",
				"store.backend":     "postgres",
			},
			wantErr: true,
		},
		{
			name: "unknown policy",
			set: map[string]any{
				"auth.token_secret":         "0123456789abcdef",
				"consignment.update_policy": "everyone",
			},
			wantErr: true,
		},
		{
			name: "bad funding amount",
			set: map[string]any{
				"auth.token_secret":  "0123456789abcdef",
				"ledger.faucet_key":  "abc",
				"ledger.funding_wei": "lots",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := viper.New()
			SetDefaults(v)
			for k, val := range tt.set {
				v.Set(k, val)
			}
			cfg, err := FromViper(v)
			if (err != nil) != tt.wantErr {
				t.Fatalf("FromViper() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.check != nil {
				tt.check(t, cfg)
			}
		})
	}
}

func TestStoreFromViperSkipsServiceSettings(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.Set("store.backend", "SQLite")

	// no token secret: store commands do not need one
	cfg, err := StoreFromViper(v)
	if err != nil {
		t.Fatalf("StoreFromViper() error = %v", err)
	}
	if cfg.Backend != StoreSQLite || cfg.SQLitePath != "consignd.db" {
		t.Errorf("cfg = %+v", cfg)
	}

	v.Set("store.backend", "dynamo")
	if _, err := StoreFromViper(v); err == nil {
		t.Error("dynamo without region accepted")
	}
}
