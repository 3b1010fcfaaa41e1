package domain

import (
	"time"

	"github.com/google/uuid"
)

// NodeSummary is the immutable projection of a NodeHandle returned by
// asSummary() / the status() endpoint. It carries no internal lock or
// mutable state, so it can be copied freely across goroutines.
type NodeSummary struct {
	ID                   uuid.UUID
	URI                  string
	Status               Availability
	Load                 float64
	Stereotypes          []Stereotype
	LastSessionCreatedAt time.Time
	UsedSlots            int
	MaxSlots             int
}
