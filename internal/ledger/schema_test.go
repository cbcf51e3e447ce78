package ledger

import (
	"bytes"
	"errors"
	"testing"
)

func TestLoadSchema(t *testing.T) {
	s, err := LoadSchema()
	if err != nil {
		t.Fatalf("LoadSchema() error = %v", err)
	}
	if s.Version != SchemaVersion {
		t.Errorf("Version = %s, want %s", s.Version, SchemaVersion)
	}
	for _, kind := range []EventKind{EventConsignmentCreated, EventStatusUpdated} {
		if _, err := s.Event(kind); err != nil {
			t.Errorf("Event(%s) error = %v", kind, err)
		}
	}
	if _, err := s.Event("Bogus"); !errors.Is(err, ErrSchemaMismatch) {
		t.Errorf("Event(Bogus) error = %v, want ErrSchemaMismatch", err)
	}
}

func TestParseSchemaRejectsDrift(t *testing.T) {
	tests := []struct {
		name string
		old  string
		new  string
	}{
		{
			name: "unindexed handler",
			old:  `{ "name": "handler", "type": "address", "indexed": true }`,
			new:  `{ "name": "handler", "type": "address", "indexed": false }`,
		},
		{
			name: "renamed function",
			old:  `"name": "updateStatus"`,
			new:  `"name": "setStatus"`,
		},
		{
			name: "changed argument type",
			old:  `{ "name": "productionDate", "type": "string" }`,
			new:  `{ "name": "productionDate", "type": "uint256" }`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !bytes.Contains(consignmentABI, []byte(tt.old)) {
				t.Fatalf("fixture %q not found in abi", tt.old)
			}
			raw := bytes.Replace(consignmentABI, []byte(tt.old), []byte(tt.new), 1)
			if _, err := ParseSchema(raw); !errors.Is(err, ErrSchemaMismatch) {
				t.Errorf("ParseSchema() error = %v, want ErrSchemaMismatch", err)
			}
		})
	}
}
