package distributor

import (
	"context"
	"sync"
	"testing"

	"github.com/go-kit/log"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moneytech/selenium/domain"
	"github.com/moneytech/selenium/eventbus"
	"github.com/moneytech/selenium/graverr"
	"github.com/moneytech/selenium/healthcheck"
	"github.com/moneytech/selenium/sessionmap/memory"
)

// fakeCreator creates a session record synchronously and never fails,
// unless forceErr is set.
type fakeCreator struct {
	mu       sync.Mutex
	created  int
	forceErr error
}

func (c *fakeCreator) CreateSession(_ context.Context, uri string, caps domain.Capabilities) (domain.SessionRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.forceErr != nil {
		return domain.SessionRecord{}, c.forceErr
	}
	c.created++
	return domain.SessionRecord{SessionID: uuid.New(), URI: uri, Capabilities: caps}, nil
}

type noopProber struct{ healthy bool }

func (p noopProber) Probe(_ context.Context, _ string) bool { return p.healthy }

func newTestDistributor(t *testing.T, creator *fakeCreator) (*Distributor, eventbus.Bus) {
	t.Helper()
	logger := log.NewNopLogger()
	bus := eventbus.NewLocal(logger)
	sessions := memory.New(bus)
	checker := healthcheck.New(noopProber{healthy: true}, logger)
	d := New(bus, sessions, checker, creator, logger)
	t.Cleanup(func() { d.Close() })
	return d, bus
}

func chromeStatus(uri string, slots int) domain.NodeStatus {
	return domain.NodeStatus{
		NodeID:       uuid.New(),
		URI:          uri,
		Availability: domain.Up,
		Stereotypes: []domain.Stereotype{
			{Capabilities: domain.Capabilities{"browserName": "chrome"}, Slots: slots},
		},
	}
}

func TestNewSession_SingleNodeHappyPath(t *testing.T) {
	creator := &fakeCreator{}
	d, _ := newTestDistributor(t, creator)
	d.Add(chromeStatus("http://n1:5555", 2))

	rec, err := d.NewSession(context.Background(), domain.NewSessionRequest{
		CapabilitySets: []domain.Capabilities{{"browserName": "chrome"}},
	})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, rec.SessionID)

	statuses := d.Status()
	require.Len(t, statuses, 1)
	assert.Equal(t, 1, statuses[0].UsedSlots)
}

func TestNewSession_CapacityExhaustion(t *testing.T) {
	creator := &fakeCreator{}
	d, _ := newTestDistributor(t, creator)
	d.Add(chromeStatus("http://n1:5555", 1))

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := d.NewSession(context.Background(), domain.NewSessionRequest{
				CapabilitySets: []domain.Capabilities{{"browserName": "chrome"}},
			})
			results[i] = err
		}(i)
	}
	wg.Wait()

	successes, failures := 0, 0
	for _, err := range results {
		if err == nil {
			successes++
		} else {
			failures++
			assert.Equal(t, graverr.SessionNotCreated, graverr.Code(err))
		}
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, failures)
}

func TestNewSession_RarityPrefilterExcludesEdge(t *testing.T) {
	creator := &fakeCreator{}
	d, _ := newTestDistributor(t, creator)

	edgeID := uuid.New()
	d.Add(domain.NodeStatus{
		NodeID: edgeID, URI: "http://edge:5555", Availability: domain.Up,
		Stereotypes: []domain.Stereotype{{Capabilities: domain.Capabilities{"browserName": "edge"}, Slots: 1}},
	})
	for i := 0; i < 3; i++ {
		d.Add(chromeStatus("http://c"+string(rune('1'+i))+":5555", 1))
	}

	rec, err := d.NewSession(context.Background(), domain.NewSessionRequest{
		CapabilitySets: []domain.Capabilities{{"browserName": "chrome"}},
	})
	require.NoError(t, err)

	var usedEdge bool
	for _, s := range d.Status() {
		if s.ID == edgeID && s.UsedSlots > 0 {
			usedEdge = true
		}
	}
	assert.False(t, usedEdge)
	assert.NotEqual(t, "http://edge:5555", rec.URI)

	// Requesting edge explicitly must still reach the edge node.
	rec2, err := d.NewSession(context.Background(), domain.NewSessionRequest{
		CapabilitySets: []domain.Capabilities{{"browserName": "edge"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "http://edge:5555", rec2.URI)
}

func TestNewSession_EmptyDirectoryFails(t *testing.T) {
	creator := &fakeCreator{}
	d, _ := newTestDistributor(t, creator)
	_, err := d.NewSession(context.Background(), domain.NewSessionRequest{
		CapabilitySets: []domain.Capabilities{{"browserName": "chrome"}},
	})
	require.Error(t, err)
	assert.Equal(t, graverr.SessionNotCreated, graverr.Code(err))
}

func TestRestartWithSameURI_ReplacesNode(t *testing.T) {
	creator := &fakeCreator{}
	d, bus := newTestDistributor(t, creator)

	var removedIDs, addedIDs []uuid.UUID
	bus.Subscribe(eventbus.TopicNodeRemoved, func(p any) { removedIDs = append(removedIDs, p.(uuid.UUID)) })
	bus.Subscribe(eventbus.TopicNodeAdded, func(p any) { addedIDs = append(addedIDs, p.(uuid.UUID)) })

	oldStatus := chromeStatus("http://n1:5555", 1)
	d.Add(oldStatus)

	newID := uuid.New()
	newStatus := oldStatus
	newStatus.NodeID = newID
	d.Add(newStatus)

	require.Len(t, removedIDs, 1)
	assert.Equal(t, oldStatus.NodeID, removedIDs[0])
	require.Len(t, addedIDs, 2) // first registration + replacement
	assert.Equal(t, newID, addedIDs[1])

	statuses := d.Status()
	require.Len(t, statuses, 1)
	assert.Equal(t, newID, statuses[0].ID)
}

func TestBadSecret_RejectsAndFiresEvent(t *testing.T) {
	creator := &fakeCreator{}
	d, bus := newTestDistributor(t, creator)
	d.SetRegistrationSecret("correct")

	var rejectedURIs []string
	bus.Subscribe(eventbus.TopicNodeRejected, func(p any) { rejectedURIs = append(rejectedURIs, p.(string)) })

	status := chromeStatus("http://n1:5555", 1)
	status.RegistrationSecret = "wrong"
	d.onNodeStatus(status)

	require.Len(t, rejectedURIs, 1)
	assert.Equal(t, "http://n1:5555", rejectedURIs[0])
	assert.Empty(t, d.Status())
}

func TestDrainComplete_RemovesNode(t *testing.T) {
	creator := &fakeCreator{}
	d, bus := newTestDistributor(t, creator)
	status := chromeStatus("http://n1:5555", 1)
	d.Add(status)
	require.Len(t, d.Status(), 1)

	bus.Publish(eventbus.TopicNodeDrainComplete, status.NodeID)
	assert.Empty(t, d.Status())

	_, err := d.NewSession(context.Background(), domain.NewSessionRequest{
		CapabilitySets: []domain.Capabilities{{"browserName": "chrome"}},
	})
	require.Error(t, err)
}

func TestAddThenRemove_DeregistersHealthCheck(t *testing.T) {
	creator := &fakeCreator{}
	logger := log.NewNopLogger()
	bus := eventbus.NewLocal(logger)
	sessions := memory.New(bus)
	checker := healthcheck.New(noopProber{healthy: true}, logger)
	d := New(bus, sessions, checker, creator, logger)
	defer d.Close()

	status := chromeStatus("http://n1:5555", 1)
	d.Add(status)
	assert.Equal(t, 1, checker.RegisteredCount())

	d.Remove(status.NodeID)
	assert.Equal(t, 0, checker.RegisteredCount())
	assert.Empty(t, d.Status())
}
