package domain

// Stereotype is a capability template a node advertises as "I can serve
// sessions matching this template", paired with the number of concurrent
// slots the node will run against it.
type Stereotype struct {
	Capabilities Capabilities
	Slots        int
}

// Matches reports whether this stereotype can serve a request for caps:
// the requested capabilities must be a subset of what the stereotype
// advertises.
func (s Stereotype) Matches(caps Capabilities) bool {
	return caps.IsSubsetOf(s.Capabilities)
}

// BrowserName is a convenience accessor used by the rarity prefilter's
// bucketization step.
func (s Stereotype) BrowserName() string {
	return s.Capabilities.BrowserName()
}
