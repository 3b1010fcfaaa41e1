package policy

import (
	"testing"

	"github.com/moneytech/selenium/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCandidate struct {
	name        string
	stereotypes []domain.Stereotype
}

func (f *fakeCandidate) Stereotypes() []domain.Stereotype { return f.stereotypes }

func stereo(browser string) domain.Stereotype {
	return domain.Stereotype{Capabilities: domain.Capabilities{domain.BrowserNameKey: browser}, Slots: 1}
}

func TestPrefilter_EqualBucketsUnchanged(t *testing.T) {
	cands := []*fakeCandidate{
		{name: "c1", stereotypes: []domain.Stereotype{stereo("chrome")}},
		{name: "c2", stereotypes: []domain.Stereotype{stereo("firefox")}},
	}
	out := Prefilter(cands, "chrome")
	assert.ElementsMatch(t, cands, out)
}

func TestPrefilter_ExcludesRareBrowser(t *testing.T) {
	edge := &fakeCandidate{name: "edge", stereotypes: []domain.Stereotype{stereo("edge")}}
	c1 := &fakeCandidate{name: "c1", stereotypes: []domain.Stereotype{stereo("chrome")}}
	c2 := &fakeCandidate{name: "c2", stereotypes: []domain.Stereotype{stereo("chrome")}}
	c3 := &fakeCandidate{name: "c3", stereotypes: []domain.Stereotype{stereo("chrome")}}
	all := []*fakeCandidate{edge, c1, c2, c3}

	out := Prefilter(all, "chrome")
	assert.NotContains(t, out, edge)
	assert.ElementsMatch(t, []*fakeCandidate{c1, c2, c3}, out)

	// Requesting edge must still surface the edge node.
	outEdge := Prefilter(all, "edge")
	assert.Contains(t, outEdge, edge)
}

func TestPrefilter_Idempotent(t *testing.T) {
	edge := &fakeCandidate{name: "edge", stereotypes: []domain.Stereotype{stereo("edge")}}
	c1 := &fakeCandidate{name: "c1", stereotypes: []domain.Stereotype{stereo("chrome")}}
	c2 := &fakeCandidate{name: "c2", stereotypes: []domain.Stereotype{stereo("chrome")}}
	all := []*fakeCandidate{edge, c1, c2}

	once := Prefilter(all, "chrome")
	twice := Prefilter(once, "chrome")
	require.ElementsMatch(t, once, twice)
}

func TestPrefilter_FallsBackWhenOnlyRequestedBrowserRemains(t *testing.T) {
	edge := &fakeCandidate{name: "edge", stereotypes: []domain.Stereotype{stereo("edge")}}
	out := Prefilter([]*fakeCandidate{edge}, "edge")
	assert.ElementsMatch(t, []*fakeCandidate{edge}, out)
}

func TestPrefilter_MultiStereotypeNodeCountsInEveryBucket(t *testing.T) {
	multi := &fakeCandidate{name: "multi", stereotypes: []domain.Stereotype{stereo("chrome"), stereo("edge")}}
	c1 := &fakeCandidate{name: "c1", stereotypes: []domain.Stereotype{stereo("chrome")}}
	c2 := &fakeCandidate{name: "c2", stereotypes: []domain.Stereotype{stereo("chrome")}}

	out := Prefilter([]*fakeCandidate{multi, c1, c2}, "chrome")
	// "edge" bucket has size 1 (multi only), "chrome" bucket has size 3;
	// edge is the smaller non-requested bucket and gets removed, taking
	// multi with it, leaving the two dedicated chrome nodes.
	assert.ElementsMatch(t, []*fakeCandidate{c1, c2}, out)
}
