// Package ledger is the single owner of a material's remaining quantity and
// availability status.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"upcycle-api-server/internal/apperr"
	"upcycle-api-server/internal/logger"
	"upcycle-api-server/internal/models"
	"upcycle-api-server/internal/store"
)

// Reserve takes qty out of the material's remaining quantity. It mutates m
// only on success.
func Reserve(m *models.Material, qty decimal.Decimal) error {
	if !qty.IsPositive() {
		return apperr.New(apperr.KindValidation, "reserved quantity must be positive, got %s", qty)
	}
	if !m.Status.Allocatable() {
		return apperr.New(apperr.KindMaterialUnavailable, "material %s is %s", m.ID, m.Status)
	}
	remaining := m.Remaining()
	if qty.GreaterThan(remaining) {
		return apperr.New(apperr.KindInsufficientQuantity,
			"insufficient quantity on material %s: available %s, requested %s", m.ID, remaining, qty)
	}

	left := remaining.Sub(qty)
	m.RemainingQuantity = decimal.NewNullDecimal(left)
	if left.IsZero() {
		m.Status = models.MaterialExhausted
	} else {
		m.Status = models.MaterialPartiallyAllocated
	}
	return nil
}

// Finalize marks the material as fully handed over.
func Finalize(m *models.Material) {
	m.Status = models.MaterialTransferred
}

// Ledger applies Reserve and Finalize as a locked read-modify-write against
// the material row of the current transaction.
type Ledger struct {
	log *logger.Logger
	now func() time.Time
}

func New(log *logger.Logger) *Ledger {
	return &Ledger{log: log.With("service", "Ledger"), now: time.Now}
}

func (l *Ledger) Reserve(ctx context.Context, materials store.Materials, materialID string, qty decimal.Decimal) (*models.Material, error) {
	return l.mutate(ctx, materials, materialID, func(m *models.Material) error {
		return Reserve(m, qty)
	})
}

func (l *Ledger) Finalize(ctx context.Context, materials store.Materials, materialID string) (*models.Material, error) {
	return l.mutate(ctx, materials, materialID, func(m *models.Material) error {
		Finalize(m)
		return nil
	})
}

func (l *Ledger) mutate(ctx context.Context, materials store.Materials, materialID string, apply func(*models.Material) error) (*models.Material, error) {
	m, err := materials.GetForUpdate(ctx, materialID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.New(apperr.KindNotFound, "material %s not found", materialID)
		}
		return nil, fmt.Errorf("lock material %s: %w", materialID, err)
	}
	before := m.Remaining()
	if err := apply(m); err != nil {
		return nil, err
	}
	m.UpdatedAt = l.now().UTC()
	if err := materials.Update(ctx, m); err != nil {
		if errors.Is(err, store.ErrConflict) {
			// The row was claimed, so a version miss means the lock was not honoured.
			return nil, apperr.Wrap(apperr.KindUnavailable, err, "material %s changed underneath the ledger", materialID)
		}
		return nil, fmt.Errorf("update material %s: %w", materialID, err)
	}
	l.log.Debug("material updated",
		"material_id", m.ID,
		"remaining_before", before.String(),
		"remaining_after", m.Remaining().String(),
		"status", m.Status,
		"version", m.Version,
	)
	return m, nil
}
