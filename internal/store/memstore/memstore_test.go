package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"upcycle-api-server/internal/models"
	"upcycle-api-server/internal/store"
)

func TestReportsListedNewestFirstThenByID(t *testing.T) {
	ctx := context.Background()
	s := New()
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		for _, rep := range []models.Report{
			{ID: "rep-a", OrgID: "org-1", CreatedAt: at},
			{ID: "rep-c", OrgID: "org-1", CreatedAt: at},
			{ID: "rep-b", OrgID: "org-1", CreatedAt: at},
			{ID: "rep-old", OrgID: "org-1", CreatedAt: at.Add(-time.Hour)},
			{ID: "rep-new", OrgID: "org-1", CreatedAt: at.Add(time.Hour)},
			{ID: "rep-x", OrgID: "org-2", CreatedAt: at},
		} {
			rep := rep
			if err := tx.Reports().Create(ctx, &rep); err != nil {
				return err
			}
		}
		return nil
	}))

	var ids []string
	require.NoError(t, s.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		list, err := tx.Reports().ListByOrganization(ctx, "org-1")
		for _, rep := range list {
			ids = append(ids, rep.ID)
		}
		return err
	}))
	assert.Equal(t, []string{"rep-new", "rep-c", "rep-b", "rep-a", "rep-old"}, ids)
}

func TestUpdateStatusStampsGivenTime(t *testing.T) {
	ctx := context.Background()
	s := New()
	created := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	at := created.Add(90 * time.Minute)

	err := s.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.Requests().Create(ctx, &models.Request{
			ID: "r1", MaterialID: "m1", BuyerID: "b1",
			Quantity: decimal.NewFromInt(3), Status: models.RequestPending,
			CreatedAt: created, UpdatedAt: created,
		})
	})
	require.NoError(t, err)

	require.NoError(t, s.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.Requests().UpdateStatus(ctx, "r1", models.RequestPending, models.RequestAccepted, at)
	}))

	err = s.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.Requests().UpdateStatus(ctx, "r1", models.RequestPending, models.RequestRejected, at)
	})
	assert.ErrorIs(t, err, store.ErrConflict)

	require.NoError(t, s.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		req, err := tx.Requests().Get(ctx, "r1")
		require.NoError(t, err)
		assert.Equal(t, models.RequestAccepted, req.Status)
		assert.True(t, req.UpdatedAt.Equal(at))
		return nil
	}))
}
