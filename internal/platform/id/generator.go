package id

import (
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

// Generator creates opaque IDs suitable for external references.
type Generator interface {
	NewID() (string, error)
}

type UUIDGenerator struct{}

func NewUUIDGenerator() *UUIDGenerator {
	return &UUIDGenerator{}
}

func (g *UUIDGenerator) NewID() (string, error) {
	value, err := uuid.NewRandom()
	if err != nil {
		return "", errors.Wrap(err, "generate uuid")
	}

	return value.String(), nil
}

// Canonical parses raw as a UUID and returns its lower-case hyphenated form.
func Canonical(raw string) (string, bool) {
	value, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", false
	}
	return value.String(), true
}
