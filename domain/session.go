package domain

import "github.com/google/uuid"

// SessionRecord is the record written to the Session Map after a
// successful reservation and remote session creation.
type SessionRecord struct {
	SessionID    uuid.UUID
	URI          string
	Capabilities Capabilities
}

// NewSessionRequest is the transport-agnostic payload for a new-session
// call: a non-empty ordered sequence of alternative capability sets. Only
// the first is ever served (see DESIGN.md); the rest are reported in the
// failure message if selection fails.
type NewSessionRequest struct {
	CapabilitySets []Capabilities
}

// First returns the capability set that is actually served, and true if
// the request carries at least one set.
func (r NewSessionRequest) First() (Capabilities, bool) {
	if len(r.CapabilitySets) == 0 {
		return nil, false
	}
	return r.CapabilitySets[0], true
}
