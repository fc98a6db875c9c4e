// Package id provides the identifier generators used at checkout.
package id

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// UUIDGenerator issues v4 UUIDs for entity ids.
type UUIDGenerator struct{}

func (UUIDGenerator) NewID() string { return uuid.NewString() }

// OrderNumberGenerator produces human-facing order numbers of the form
// ORD-20260828-7F3A1C. Uniqueness is enforced by the store's constraint,
// not here; the checkout flow regenerates once on collision.
type OrderNumberGenerator struct{}

func (OrderNumberGenerator) Next() string {
	u := uuid.New()
	return fmt.Sprintf("ORD-%s-%X", time.Now().UTC().Format("20060102"), u[:3])
}
