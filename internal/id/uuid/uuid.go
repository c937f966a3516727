// Package uuid generates scan identifiers.
package uuid

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/JakeFAU/gridrank/internal/gridrank"
)

var _ gridrank.IDGenerator = (*Generator)(nil)

// Generator creates UUIDv7 strings. Version 7 ids sort by creation time, which
// keeps the grid_rank_scans primary key index append-mostly.
type Generator struct{}

// NewUUIDGenerator creates a new Generator.
func NewUUIDGenerator() *Generator {
	return &Generator{}
}

// NewID returns a UUIDv7 string.
func (*Generator) NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate uuid7: %w", err)
	}
	return id.String(), nil
}
