package database

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"upcycle-api-server/internal/logger"
	"upcycle-api-server/internal/models"
	"upcycle-api-server/internal/store"
	"upcycle-api-server/internal/store/memstore"
)

func TestSeedDemoData(t *testing.T) {
	ctx := context.Background()
	db := memstore.New()

	require.NoError(t, SeedDemoData(ctx, db, logger.Nop()))

	var mat *models.Material
	require.NoError(t, db.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.Organizations().Get(ctx, DemoOrgID); err != nil {
			return err
		}
		var err error
		mat, err = tx.Materials().Get(ctx, DemoMaterialID)
		return err
	}))
	assert.Equal(t, DemoOrgID, mat.OrgID)
	assert.True(t, mat.Remaining().Equal(decimal.NewFromInt(100)))
	assert.Equal(t, models.MaterialAvailable, mat.Status)
}

func TestSeedDemoDataKeepsExistingRows(t *testing.T) {
	ctx := context.Background()
	db := memstore.New()
	require.NoError(t, SeedDemoData(ctx, db, logger.Nop()))

	// a partially allocated listing must not be reset by a restart
	require.NoError(t, db.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		m, err := tx.Materials().Get(ctx, DemoMaterialID)
		if err != nil {
			return err
		}
		m.RemainingQuantity = decimal.NewNullDecimal(decimal.NewFromInt(40))
		m.Status = models.MaterialPartiallyAllocated
		return tx.Materials().Update(ctx, m)
	}))

	require.NoError(t, SeedDemoData(ctx, db, logger.Nop()))

	require.NoError(t, db.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		m, err := tx.Materials().Get(ctx, DemoMaterialID)
		require.NoError(t, err)
		assert.True(t, m.Remaining().Equal(decimal.NewFromInt(40)))
		assert.Equal(t, models.MaterialPartiallyAllocated, m.Status)
		return nil
	}))
}

func TestCheckListing(t *testing.T) {
	tests := []struct {
		total string
		ok    bool
	}{
		{"100", true},
		{"0.25", true},
		{"0", false},
		{"12.345", false},
		{"10000000000", false},
	}
	for _, tt := range tests {
		t.Run(tt.total, func(t *testing.T) {
			err := checkListing(&models.Material{ID: "m", TotalQuantity: decimal.RequireFromString(tt.total)})
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
