// Package domain holds the plain data types shared by the distributor,
// the selection policy, the node handles and the session map: capability
// sets, stereotypes, node status snapshots, session records and their
// summaries. None of these types perform I/O.
package domain

// BrowserNameKey is the capability key the rarity prefilter keys its
// buckets on.
const BrowserNameKey = "browserName"

// Capabilities is an opaque, JSON-shaped map of requested or advertised
// session attributes (browser, version, platform, vendor options). It is
// treated as immutable by every consumer in this module: callers must not
// mutate a Capabilities value obtained from a NodeStatus or a request.
type Capabilities map[string]any

// BrowserName returns the value of the distinguished "browserName" key as
// a string, or "" if absent or not a string.
func (c Capabilities) BrowserName() string {
	v, ok := c[BrowserNameKey]
	if !ok {
		return ""
	}
	name, _ := v.(string)
	return name
}

// IsSubsetOf reports whether every key in c is present in other with an
// equal value. An empty Capabilities is a subset of anything, including
// another empty Capabilities. This is the matching rule a stereotype uses
// to decide whether it can serve a requested capability set.
func (c Capabilities) IsSubsetOf(other Capabilities) bool {
	for k, v := range c {
		ov, ok := other[k]
		if !ok || !valuesEqual(v, ov) {
			return false
		}
	}
	return true
}

// valuesEqual compares two JSON-shaped values for equality. Maps and
// slices compare deeply; everything else compares with ==.
func valuesEqual(a, b any) bool {
	switch av := a.(type) {
	case map[string]any:
		bv, ok := b.(map[string]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			if ov, ok := bv[k]; !ok || !valuesEqual(v, ov) {
				return false
			}
		}
		return true
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !valuesEqual(av[i], bv[i]) {
				return false
			}
		}
		return true
	default:
		return a == b
	}
}

// Clone returns a shallow copy of c. Used when a caller needs a
// Capabilities value it is free to hold onto past the lifetime of the
// request it came from.
func (c Capabilities) Clone() Capabilities {
	if c == nil {
		return nil
	}
	out := make(Capabilities, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}
