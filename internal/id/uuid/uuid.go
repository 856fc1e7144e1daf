// Package uuid provides ID generation helpers.
package uuid

import (
	"fmt"

	"github.com/google/uuid"
)

// datasetSpace namespaces name-derived dataset IDs.
var datasetSpace = uuid.MustParse("6f1d2a4c-0b7e-4f5a-9c3d-8e2b1a7f4c60")

// Generator creates UUID v7 run IDs and name-derived dataset IDs.
type Generator struct{}

// New creates a new Generator.
func New() *Generator {
	return &Generator{}
}

// NewID returns a UUID7 string.
func (Generator) NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate uuid7: %w", err)
	}
	return id.String(), nil
}

// NameID returns a stable UUID5 for name, so re-saving the same dataset name maps to
// the same row.
func (Generator) NameID(name string) string {
	return uuid.NewSHA1(datasetSpace, []byte(name)).String()
}
