package nodehandle

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moneytech/selenium/domain"
)

type fakeCreator struct {
	rec domain.SessionRecord
	err error
}

func (f *fakeCreator) CreateSession(_ context.Context, uri string, caps domain.Capabilities) (domain.SessionRecord, error) {
	if f.err != nil {
		return domain.SessionRecord{}, f.err
	}
	rec := f.rec
	rec.URI = uri
	rec.Capabilities = caps
	return rec, nil
}

func chromeStatus(slots int) domain.NodeStatus {
	return domain.NodeStatus{
		NodeID:             uuid.New(),
		URI:                "http://node1:5555",
		RegistrationSecret: "s",
		Availability:       domain.Up,
		Stereotypes: []domain.Stereotype{
			{Capabilities: domain.Capabilities{"browserName": "chrome"}, Slots: slots},
		},
	}
}

func TestHandle_ReserveAndFinalize(t *testing.T) {
	h := New(chromeStatus(2))
	caps := domain.Capabilities{"browserName": "chrome"}
	require.True(t, h.HasCapacity(caps))

	res, err := h.Reserve(caps, &fakeCreator{rec: domain.SessionRecord{SessionID: uuid.New()}})
	require.NoError(t, err)
	assert.Equal(t, 0.5, h.Load())

	rec, err := res.Finalize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "http://node1:5555", rec.URI)
	assert.Equal(t, 0.5, h.Load())
}

func TestHandle_ReserveReleasedOnFinalizeFailure(t *testing.T) {
	h := New(chromeStatus(1))
	caps := domain.Capabilities{"browserName": "chrome"}
	res, err := h.Reserve(caps, &fakeCreator{err: assertErr{}})
	require.NoError(t, err)
	_, err = res.Finalize(context.Background())
	require.Error(t, err)
	assert.Equal(t, 0.0, h.Load())
	assert.True(t, h.HasCapacity(caps))
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }

func TestHandle_ExhaustedCapacity(t *testing.T) {
	h := New(chromeStatus(1))
	caps := domain.Capabilities{"browserName": "chrome"}
	res1, err := h.Reserve(caps, &fakeCreator{})
	require.NoError(t, err)
	_, err = h.Reserve(caps, &fakeCreator{})
	require.Error(t, err)
	res1.Release()
	_, err = h.Reserve(caps, &fakeCreator{})
	require.NoError(t, err)
}

func TestHandle_DrainingRefusesReservations(t *testing.T) {
	status := chromeStatus(2)
	h := New(status)
	h.Update(domain.NodeStatus{
		NodeID:       status.NodeID,
		URI:          status.URI,
		Stereotypes:  status.Stereotypes,
		Availability: domain.Draining,
	})
	assert.Equal(t, domain.Draining, h.Status())
	_, err := h.Reserve(domain.Capabilities{"browserName": "chrome"}, &fakeCreator{})
	require.Error(t, err)
}

func TestHandle_HealthCheckTransitionsToDownAndBack(t *testing.T) {
	h := New(chromeStatus(1))
	h.RunHealthCheck(false)
	h.RunHealthCheck(false)
	assert.Equal(t, domain.Up, h.Status())
	h.RunHealthCheck(false)
	assert.Equal(t, domain.Down, h.Status())
	h.RunHealthCheck(true)
	assert.Equal(t, domain.Up, h.Status())
}
