// Package policy implements the rarity-aware prefilter and ordering the
// Distributor applies to candidate nodes before reserving capacity. It is
// pure (no I/O) and deterministic given its inputs, matching spec.md
// §4.4 and kept as an independent package so it is unit-testable without
// a Distributor, a Session Map or an event bus — the way
// service.routeMatcherGeneric is a standalone, pure package in the
// teacher's gateway.
package policy

import (
	"sort"

	"github.com/moneytech/selenium/domain"
)

// Candidate is the minimal view of a node the policy needs: the
// stereotypes it advertises. The final id tie-break is done by the
// caller, so no id is required here. *nodehandle.Handle satisfies this
// directly; the policy package itself never depends on nodehandle.
type Candidate interface {
	Stereotypes() []domain.Stereotype
}

// Prefilter applies the rarity-aware bucketization algorithm to
// candidates, for a request whose browser name is browserName, and
// returns the distinct subset of candidates that should be considered
// for selection.
//
// Algorithm (spec.md §4.4):
//  1. Bucketize candidates by browser name: a candidate lands in bucket
//     B if any of its stereotypes advertises browserName == B.
//  2. If every bucket has the same size, return the union unchanged.
//  3. Otherwise, repeatedly remove the smallest bucket whose key is not
//     the requested browserName (skipping the requested browser's own
//     bucket even if it happens to be smallest) and rebucketize; stop as
//     soon as all remaining buckets are equal-sized. If no such stopping
//     point is reached before the candidate set would otherwise be
//     exhausted, fall back to the original, unfiltered candidate set.
func Prefilter[C Candidate](candidates []C, browserName string) []C {
	working := make([]C, len(candidates))
	copy(working, candidates)

	buckets := bucketize(working)
	if bucketsEqualSized(buckets) {
		return dedupe(working)
	}

	original := make([]C, len(working))
	copy(original, working)

	for {
		keys := sortedBucketKeysBySize(buckets)
		removed := false
		for _, key := range keys {
			if key == browserName {
				continue
			}
			working = removeBucketMembers(working, buckets[key])
			removed = true
			if len(working) == 0 {
				return dedupe(original)
			}
			buckets = bucketize(working)
			if bucketsEqualSized(buckets) {
				return dedupe(working)
			}
			break // rebucketize and recompute sizes before removing again
		}
		if !removed {
			// Every remaining bucket is the requested browser's own
			// bucket (or there are no buckets left); no legal removal
			// can bring sizes into balance.
			return dedupe(original)
		}
	}
}

// bucketSet maps a browser name to the indices, into the slice it was
// built from, of the candidates advertising that browser name.
type bucketSet[C Candidate] map[string][]int

func bucketize[C Candidate](candidates []C) bucketSet[C] {
	b := make(bucketSet[C])
	for i, c := range candidates {
		names := map[string]struct{}{}
		for _, st := range c.Stereotypes() {
			name := st.BrowserName()
			if name == "" {
				continue
			}
			names[name] = struct{}{}
		}
		for name := range names {
			b[name] = append(b[name], i)
		}
	}
	return b
}

func bucketsEqualSized[C Candidate](b bucketSet[C]) bool {
	size := -1
	for _, members := range b {
		if size == -1 {
			size = len(members)
			continue
		}
		if len(members) != size {
			return false
		}
	}
	return true
}

func sortedBucketKeysBySize[C Candidate](b bucketSet[C]) []string {
	keys := make([]string, 0, len(b))
	for k := range b {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(b[keys[i]]) != len(b[keys[j]]) {
			return len(b[keys[i]]) < len(b[keys[j]])
		}
		return keys[i] < keys[j]
	})
	return keys
}

func removeBucketMembers[C Candidate](candidates []C, indices []int) []C {
	remove := make(map[int]struct{}, len(indices))
	for _, i := range indices {
		remove[i] = struct{}{}
	}
	out := make([]C, 0, len(candidates))
	for i, c := range candidates {
		if _, drop := remove[i]; drop {
			continue
		}
		out = append(out, c)
	}
	return out
}

func dedupe[C Candidate](candidates []C) []C {
	// candidates never contains duplicates by construction (bucketize
	// walks the slice once per candidate), but callers (spec.md §8's
	// idempotence property) expect a defensive copy, never the same
	// backing array as a previous call's result.
	out := make([]C, len(candidates))
	copy(out, candidates)
	return out
}
