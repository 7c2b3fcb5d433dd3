package mongostore

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"upcycle-api-server/internal/apperr"
	"upcycle-api-server/internal/ledger"
	"upcycle-api-server/internal/logger"
	"upcycle-api-server/internal/models"
	"upcycle-api-server/internal/store"
)

func TestDecimalCodecRoundTrip(t *testing.T) {
	in := models.Material{
		ID:                "m1",
		TotalQuantity:     decimal.RequireFromString("1250.75"),
		RemainingQuantity: decimal.NewNullDecimal(decimal.RequireFromString("0.25")),
		Status:            models.MaterialPartiallyAllocated,
	}
	raw, err := bson.MarshalWithRegistry(Registry(), in)
	require.NoError(t, err)

	var doc bson.M
	require.NoError(t, bson.Unmarshal(raw, &doc))
	assert.IsType(t, primitive.Decimal128{}, doc["totalQuantity"])
	assert.IsType(t, primitive.Decimal128{}, doc["remainingQuantity"])

	var out models.Material
	require.NoError(t, bson.UnmarshalWithRegistry(Registry(), raw, &out))
	assert.True(t, out.TotalQuantity.Equal(in.TotalQuantity))
	assert.True(t, out.RemainingQuantity.Valid)
	assert.True(t, out.RemainingQuantity.Decimal.Equal(decimal.RequireFromString("0.25")))
}

func TestNullDecimalEncodesAsNull(t *testing.T) {
	raw, err := bson.MarshalWithRegistry(Registry(), models.Material{ID: "m1", TotalQuantity: decimal.NewFromInt(5)})
	require.NoError(t, err)

	var doc bson.M
	require.NoError(t, bson.Unmarshal(raw, &doc))
	v, ok := doc["remainingQuantity"]
	require.True(t, ok)
	assert.Nil(t, v)

	var out models.Material
	require.NoError(t, bson.UnmarshalWithRegistry(Registry(), raw, &out))
	assert.False(t, out.RemainingQuantity.Valid)
	assert.True(t, out.Remaining().Equal(decimal.NewFromInt(5)))
}

func TestDecimalDecodesLegacyNumbers(t *testing.T) {
	raw, err := bson.Marshal(bson.M{"_id": "m1", "totalQuantity": 40.5, "remainingQuantity": int32(12)})
	require.NoError(t, err)

	var out models.Material
	require.NoError(t, bson.UnmarshalWithRegistry(Registry(), raw, &out))
	assert.True(t, out.TotalQuantity.Equal(decimal.RequireFromString("40.5")))
	assert.True(t, out.RemainingQuantity.Decimal.Equal(decimal.NewFromInt(12)))
}

// openTestStore needs a replica set, e.g.
// MONGO_TEST_URI=mongodb://localhost:27017/?replicaSet=rs0
func openTestStore(t *testing.T) *Store {
	t.Helper()
	uri := os.Getenv("MONGO_TEST_URI")
	if uri == "" {
		t.Skip("MONGO_TEST_URI not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	s, err := Open(ctx, uri, "upcycle_test_"+uuid.NewString()[:8], logger.Nop())
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.db.Drop(context.Background())
		_ = s.Close(context.Background())
	})
	return s
}

func TestMongoRequestsAreUniquePerBuyer(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	req := func(id string) *models.Request {
		return &models.Request{ID: id, MaterialID: "m1", BuyerID: "b1", Quantity: decimal.NewFromInt(1), Status: models.RequestPending, CreatedAt: now}
	}

	err := s.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error { return tx.Requests().Create(ctx, req("r1")) })
	require.NoError(t, err)
	err = s.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error { return tx.Requests().Create(ctx, req("r2")) })
	require.ErrorIs(t, err, store.ErrDuplicate)

	// rejecting the first frees the slot
	err = s.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.Requests().UpdateStatus(ctx, "r1", models.RequestPending, models.RequestRejected, time.Now().UTC())
	})
	require.NoError(t, err)
	err = s.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error { return tx.Requests().Create(ctx, req("r3")) })
	require.NoError(t, err)

	err = s.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.Requests().UpdateStatus(ctx, "r1", models.RequestPending, models.RequestAccepted, time.Now().UTC())
	})
	assert.ErrorIs(t, err, store.ErrConflict)
}

func TestMongoConcurrentReservations(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.PutMaterial(ctx, &models.Material{
		ID: "m1", OrgID: "o1", TotalQuantity: decimal.NewFromInt(100), Status: models.MaterialAvailable,
	}))
	l := ledger.New(logger.Nop())

	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
				_, err := l.Reserve(ctx, tx.Materials(), "m1", decimal.NewFromInt(30))
				return err
			})
			if err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			} else if !errors.Is(err, apperr.ErrInsufficientQuantity) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 3, ok)

	err := s.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		m, err := tx.Materials().Get(ctx, "m1")
		if err != nil {
			return err
		}
		assert.True(t, m.Remaining().Equal(decimal.NewFromInt(10)))
		assert.EqualValues(t, 3, m.Version)
		return nil
	})
	require.NoError(t, err)
}
