package store

import (
	"fmt"

	"github.com/ShravaniMogali/4GB-sub001/internal/config"
)

// Open returns the principal store selected by cfg.Backend and a function that
// releases its resources.
func Open(cfg config.StoreConfig) (PrincipalStore, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Backend {
	case config.StoreMemory, "":
		log.Warn("Using in-memory principal store, principals are lost on restart")
		return NewMemoryStore(), noop, nil
	case config.StoreDynamo:
		d, err := NewDynamoDBStore(cfg.Dynamo)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize dynamo store: %w", err)
		}
		return d, noop, nil
	case config.StoreSQLite:
		sq, err := OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		return sq, sq.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}
