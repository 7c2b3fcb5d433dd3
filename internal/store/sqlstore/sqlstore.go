// Package sqlstore implements store.Store with gorm on Postgres or SQLite.
// Material rows are locked with SELECT ... FOR UPDATE where the dialect has
// it; SQLite gets the same effect from IMMEDIATE transactions.
package sqlstore

import (
	"context"
	"errors"
	"fmt"
	stdlog "log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormLogger "gorm.io/gorm/logger"

	"upcycle-api-server/internal/logger"
	"upcycle-api-server/internal/models"
	"upcycle-api-server/internal/store"
)

type Store struct {
	db  *gorm.DB
	log *logger.Logger
}

func OpenPostgres(dsn string, log *logger.Logger) (*Store, error) {
	return Open(postgres.Open(dsn), log)
}

// OpenSQLite opens a file database. Transactions take the write lock up
// front so concurrent reservations queue instead of failing with SQLITE_BUSY.
func OpenSQLite(path string, log *logger.Logger) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=10000&_txlock=immediate", path)
	return Open(sqlite.Open(dsn), log)
}

// Open connects through the given dialector and migrates the schema.
func Open(dialector gorm.Dialector, log *logger.Logger) (*Store, error) {
	gormLog := gormLogger.New(
		stdlog.New(os.Stdout, "\r\n", stdlog.LstdFlags),
		gormLogger.Config{
			SlowThreshold:             1 * time.Second,
			LogLevel:                  gormLogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(dialector, &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		TranslateError:                           true,
		Logger:                                   gormLog,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", dialector.Name(), err)
	}
	s := &Store{db: db, log: log.With("store", dialector.Name())}
	if err := s.Migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) Migrate() error {
	if err := s.db.AutoMigrate(
		&models.Organization{},
		&models.Material{},
		&models.Request{},
		&models.Feedback{},
		&models.Report{},
	); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	s.log.Debug("schema migrated")
	return nil
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(gtx *gorm.DB) error {
		return fn(ctx, &tx{db: gtx})
	})
}

func (s *Store) Close(context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) PutOrganization(ctx context.Context, org *models.Organization) error {
	if err := s.db.WithContext(ctx).Save(org).Error; err != nil {
		return fmt.Errorf("save organization %s: %w", org.ID, err)
	}
	return nil
}

func (s *Store) PutMaterial(ctx context.Context, m *models.Material) error {
	if err := s.db.WithContext(ctx).Save(m).Error; err != nil {
		return fmt.Errorf("save material %s: %w", m.ID, err)
	}
	return nil
}

type tx struct{ db *gorm.DB }

func (t *tx) Materials() store.Materials         { return materials{t.db} }
func (t *tx) Organizations() store.Organizations { return organizations{t.db} }
func (t *tx) Requests() store.Requests           { return requests{t.db} }
func (t *tx) Feedback() store.Feedback           { return feedback{t.db} }
func (t *tx) Reports() store.Reports             { return reports{t.db} }

func translate(err error, what string) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return store.ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%s: %w", what, store.ErrDuplicate)
	}
	return fmt.Errorf("%s: %w", what, err)
}

func first[T any](ctx context.Context, db *gorm.DB, what string, query string, args ...any) (*T, error) {
	var out T
	if err := db.WithContext(ctx).Where(query, args...).First(&out).Error; err != nil {
		return nil, translate(err, what)
	}
	return &out, nil
}

// missingOrConflict runs after a conditional update touched no rows.
func missingOrConflict[T any](ctx context.Context, db *gorm.DB, id string) error {
	var n int64
	if err := db.WithContext(ctx).Model(new(T)).Where("id = ?", id).Count(&n).Error; err != nil {
		return fmt.Errorf("count %s: %w", id, err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return store.ErrConflict
}

type materials struct{ db *gorm.DB }

func (r materials) Get(ctx context.Context, id string) (*models.Material, error) {
	return first[models.Material](ctx, r.db, "get material", "id = ?", id)
}

func (r materials) GetForUpdate(ctx context.Context, id string) (*models.Material, error) {
	locked := r.db.Clauses(clause.Locking{Strength: "UPDATE"})
	return first[models.Material](ctx, locked, "lock material", "id = ?", id)
}

func (r materials) Update(ctx context.Context, m *models.Material) error {
	res := r.db.WithContext(ctx).Model(&models.Material{}).
		Where("id = ? AND version = ?", m.ID, m.Version).
		Updates(map[string]interface{}{
			"remaining_quantity": m.RemainingQuantity,
			"status":             m.Status,
			"updated_at":         m.UpdatedAt,
			"version":            m.Version + 1,
		})
	if res.Error != nil {
		return translate(res.Error, "update material")
	}
	if res.RowsAffected == 0 {
		return missingOrConflict[models.Material](ctx, r.db, m.ID)
	}
	m.Version++
	return nil
}

type organizations struct{ db *gorm.DB }

func (r organizations) Get(ctx context.Context, id string) (*models.Organization, error) {
	return first[models.Organization](ctx, r.db, "get organization", "id = ?", id)
}

type requests struct{ db *gorm.DB }

func (r requests) Create(ctx context.Context, req *models.Request) error {
	if err := r.db.WithContext(ctx).Create(req).Error; err != nil {
		return translate(err, "insert request")
	}
	return nil
}

func (r requests) Get(ctx context.Context, id string) (*models.Request, error) {
	return first[models.Request](ctx, r.db, "get request", "id = ?", id)
}

func (r requests) FindByMaterialAndBuyer(ctx context.Context, materialID, buyerID string) (*models.Request, error) {
	return first[models.Request](ctx, r.db, "find request",
		"material_id = ? AND buyer_id = ? AND status <> ?", materialID, buyerID, models.RequestRejected)
}

func (r requests) ListByMaterial(ctx context.Context, materialID string) ([]models.Request, error) {
	out := []models.Request{}
	err := r.db.WithContext(ctx).
		Where("material_id = ?", materialID).
		Order("created_at DESC").Order("id DESC").
		Find(&out).Error
	if err != nil {
		return nil, translate(err, "list requests")
	}
	return out, nil
}

func (r requests) ListByOrganization(ctx context.Context, orgID string) ([]models.Request, error) {
	owned := r.db.Model(&models.Material{}).Select("id").Where("org_id = ?", orgID)
	out := []models.Request{}
	err := r.db.WithContext(ctx).
		Where("material_id IN (?)", owned).
		Order("created_at DESC").Order("id DESC").
		Find(&out).Error
	if err != nil {
		return nil, translate(err, "list organization requests")
	}
	return out, nil
}

func (r requests) UpdateStatus(ctx context.Context, id string, from, to models.RequestStatus, at time.Time) error {
	res := r.db.WithContext(ctx).Model(&models.Request{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]interface{}{"status": to, "updated_at": at})
	if res.Error != nil {
		return translate(res.Error, "update request")
	}
	if res.RowsAffected == 0 {
		return missingOrConflict[models.Request](ctx, r.db, id)
	}
	return nil
}

type feedback struct{ db *gorm.DB }

func (r feedback) Create(ctx context.Context, f *models.Feedback) error {
	if err := r.db.WithContext(ctx).Create(f).Error; err != nil {
		return translate(err, "insert feedback")
	}
	return nil
}

func (r feedback) GetByRequest(ctx context.Context, requestID string) (*models.Feedback, error) {
	return first[models.Feedback](ctx, r.db, "get feedback", "request_id = ?", requestID)
}

type reports struct{ db *gorm.DB }

func (r reports) Create(ctx context.Context, rep *models.Report) error {
	if err := r.db.WithContext(ctx).Create(rep).Error; err != nil {
		return translate(err, "insert report")
	}
	return nil
}

func (r reports) Get(ctx context.Context, id string) (*models.Report, error) {
	return first[models.Report](ctx, r.db, "get report", "id = ?", id)
}

func (r reports) ListByOrganization(ctx context.Context, orgID string) ([]models.Report, error) {
	out := []models.Report{}
	err := r.db.WithContext(ctx).
		Where("org_id = ?", orgID).
		Order("created_at DESC").Order("id DESC").
		Find(&out).Error
	if err != nil {
		return nil, translate(err, "list reports")
	}
	return out, nil
}

func (r reports) SetEvidence(ctx context.Context, id, url string) error {
	res := r.db.WithContext(ctx).Model(&models.Report{}).Where("id = ?", id).Update("evidence_url", url)
	if res.Error != nil {
		return translate(res.Error, "update report")
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}
