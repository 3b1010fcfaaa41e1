package domain

import "github.com/google/uuid"

// Availability is the health state a node reports about itself in a
// NodeStatus snapshot, and the state a NodeHandle tracks internally.
type Availability string

const (
	Up       Availability = "UP"
	Draining Availability = "DRAINING"
	Down     Availability = "DOWN"
)

// NodeStatus is a snapshot message published by a node (directly, or
// relayed over the event bus as a NODE_STATUS event). It is immutable
// once received; the distributor never mutates a NodeStatus value, only
// the NodeHandle fields derived from it.
type NodeStatus struct {
	NodeID              uuid.UUID
	URI                 string
	Stereotypes         []Stereotype
	CurrentSessionCount int
	Availability        Availability
	RegistrationSecret  string
}
