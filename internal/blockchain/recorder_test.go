package blockchain

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"upcycle-api-server/internal/logger"
	"upcycle-api-server/internal/marketplace"
	"upcycle-api-server/internal/models"
)

type fakeContract struct {
	calls [][]string
	err   error
}

func (c *fakeContract) SubmitTransaction(name string, args ...string) ([]byte, error) {
	if c.err != nil {
		return nil, c.err
	}
	c.calls = append(c.calls, append([]string{name}, args...))
	return []byte("ok"), nil
}

func completedEvent() marketplace.RequestEvent {
	return marketplace.RequestEvent{
		Type:     marketplace.EventRequestCompleted,
		Request:  &models.Request{ID: "r1", MaterialID: "m1", BuyerID: "b1", Quantity: decimal.RequireFromString("7.5")},
		Material: &models.Material{ID: "m1", OrgID: "o1", Unit: "kg"},
		At:       time.Date(2025, 5, 4, 10, 30, 0, 0, time.UTC),
	}
}

func TestRecorderSubmitsCompletedRequests(t *testing.T) {
	c := &fakeContract{}
	r := NewTransferRecorder(c, logger.Nop())

	require.NoError(t, r.Observe(context.Background(), completedEvent()))
	require.Len(t, c.calls, 1)
	assert.Equal(t, []string{"RecordTransfer", "r1", "m1", "o1", "b1", "7.5", "kg", "2025-05-04T10:30:00Z"}, c.calls[0])
}

func TestRecorderIgnoresOtherEvents(t *testing.T) {
	c := &fakeContract{}
	r := NewTransferRecorder(c, logger.Nop())

	ev := completedEvent()
	ev.Type = marketplace.EventRequestAccepted
	require.NoError(t, r.Observe(context.Background(), ev))
	assert.Empty(t, c.calls)
}

func TestRecorderSurfacesChainErrors(t *testing.T) {
	c := &fakeContract{err: errors.New("endorsement failed")}
	err := NewTransferRecorder(c, logger.Nop()).Observe(context.Background(), completedEvent())
	assert.ErrorContains(t, err, "endorsement failed")
}
