// server/internal/database/seeder.go
package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"upcycle-api-server/internal/logger"
	"upcycle-api-server/internal/models"
	"upcycle-api-server/internal/store"
)

// Target is a store that also accepts seeded rows.
type Target interface {
	store.Store
	store.Seeder
}

const (
	DemoOrgID      = "demo-org"
	DemoMaterialID = "demo-material"
)

// SeedDemoData inserts one organization and one listing unless they are
// already present. Buyers live in tokens only and need no row.
func SeedDemoData(ctx context.Context, db Target, log *logger.Logger) error {
	now := time.Now().UTC()

	orgExists, matExists := false, false
	err := db.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		if orgExists, err = exists(tx.Organizations().Get(ctx, DemoOrgID)); err != nil {
			return err
		}
		matExists, err = exists(tx.Materials().Get(ctx, DemoMaterialID))
		return err
	})
	if err != nil {
		return err
	}

	if orgExists {
		log.Info("Demo organization already exists. Seeding skipped.", "org_id", DemoOrgID)
	} else {
		org := &models.Organization{ID: DemoOrgID, Name: "Demo Recycling Co", Email: "demo@example.com", CreatedAt: now}
		if err := db.PutOrganization(ctx, org); err != nil {
			return err
		}
		log.Info("Demo organization seeded.", "org_id", DemoOrgID)
	}

	if matExists {
		log.Info("Demo material already exists. Seeding skipped.", "material_id", DemoMaterialID)
		return nil
	}
	m := &models.Material{
		ID:            DemoMaterialID,
		OrgID:         DemoOrgID,
		Title:         "Shredded PET offcuts",
		Category:      "plastic",
		Unit:          "kg",
		TotalQuantity: decimal.NewFromInt(100),
		Status:        models.MaterialAvailable,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := checkListing(m); err != nil {
		return err
	}
	if err := db.PutMaterial(ctx, m); err != nil {
		return err
	}
	log.Info("Demo material seeded.", "material_id", DemoMaterialID)
	return nil
}

// checkListing rejects totals the quantity columns cannot hold exactly.
func checkListing(m *models.Material) error {
	if !m.TotalQuantity.IsPositive() {
		return fmt.Errorf("material %s: total quantity must be positive", m.ID)
	}
	if err := models.CheckQuantity(m.TotalQuantity); err != nil {
		return fmt.Errorf("material %s: %w", m.ID, err)
	}
	return nil
}

func exists[T any](_ T, err error) (bool, error) {
	if err == nil {
		return true, nil
	}
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	return false, err
}
