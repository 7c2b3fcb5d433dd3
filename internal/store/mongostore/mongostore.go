// Package mongostore implements store.Store on MongoDB. Units of work run in
// multi-document transactions, so the server must be a replica set.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"

	"upcycle-api-server/internal/logger"
	"upcycle-api-server/internal/models"
	"upcycle-api-server/internal/store"
)

var (
	materialsColl = models.Material{}.TableName()
	orgsColl      = models.Organization{}.TableName()
	requestsColl  = models.Request{}.TableName()
	feedbackColl  = models.Feedback{}.TableName()
	reportsColl   = models.Report{}.TableName()
)

type Store struct {
	client *mongo.Client
	db     *mongo.Database
	log    *logger.Logger
}

// Open connects, pings and makes sure the indexes exist.
func Open(ctx context.Context, uri, dbName string, log *logger.Logger) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri).SetRegistry(Registry()))
	if err != nil {
		return nil, fmt.Errorf("connect to mongo: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	s := New(client, dbName, log)
	if err := s.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return s, nil
}

// New wraps an existing client. The client must have been built with Registry().
func New(client *mongo.Client, dbName string, log *logger.Logger) *Store {
	return &Store{client: client, db: client.Database(dbName), log: log.With("store", "mongo")}
}

// EnsureIndexes creates the unique and listing indexes. The partial filter
// with $in needs MongoDB 6.0 or newer.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	live := bson.A{models.RequestPending, models.RequestAccepted, models.RequestCompleted}
	indexes := map[string][]mongo.IndexModel{
		requestsColl: {
			{
				Keys: bson.D{{Key: "materialID", Value: 1}, {Key: "buyerID", Value: 1}},
				Options: options.Index().
					SetName("idx_request_material_buyer").
					SetUnique(true).
					SetPartialFilterExpression(bson.M{"status": bson.M{"$in": live}}),
			},
			{Keys: bson.D{{Key: "materialID", Value: 1}, {Key: "createdAt", Value: -1}}},
		},
		feedbackColl: {
			{Keys: bson.D{{Key: "requestID", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		reportsColl: {
			{Keys: bson.D{{Key: "orgID", Value: 1}, {Key: "createdAt", Value: -1}}},
		},
		materialsColl: {
			{Keys: bson.D{{Key: "orgID", Value: 1}}},
		},
	}
	for coll, idx := range indexes {
		if _, err := s.db.Collection(coll).Indexes().CreateMany(ctx, idx); err != nil {
			return fmt.Errorf("create indexes on %s: %w", coll, err)
		}
		s.log.Debug("indexes ensured", "collection", coll, "count", len(idx))
	}
	return nil
}

// WithinTx runs fn inside a snapshot transaction. The driver re-runs fn on
// TransientTransactionError, which is how write conflicts on a locked
// material resolve: the retry re-reads the committed row.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	sess, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer sess.EndSession(ctx)

	txOpts := options.Transaction().
		SetReadConcern(readconcern.Snapshot()).
		SetWriteConcern(writeconcern.Majority())
	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc, &tx{db: s.db})
	}, txOpts)
	return err
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *Store) PutOrganization(ctx context.Context, org *models.Organization) error {
	_, err := s.db.Collection(orgsColl).ReplaceOne(ctx, bson.M{"_id": org.ID}, org, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("upsert organization %s: %w", org.ID, err)
	}
	return nil
}

func (s *Store) PutMaterial(ctx context.Context, m *models.Material) error {
	_, err := s.db.Collection(materialsColl).ReplaceOne(ctx, bson.M{"_id": m.ID}, m, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("upsert material %s: %w", m.ID, err)
	}
	return nil
}

type tx struct{ db *mongo.Database }

func (t *tx) Materials() store.Materials         { return materials{t.db.Collection(materialsColl)} }
func (t *tx) Organizations() store.Organizations { return organizations{t.db.Collection(orgsColl)} }
func (t *tx) Requests() store.Requests {
	return requests{coll: t.db.Collection(requestsColl), materials: t.db.Collection(materialsColl)}
}
func (t *tx) Feedback() store.Feedback { return feedback{t.db.Collection(feedbackColl)} }
func (t *tx) Reports() store.Reports   { return reports{t.db.Collection(reportsColl)} }

func findOne[T any](ctx context.Context, coll *mongo.Collection, filter bson.M) (*T, error) {
	var out T
	if err := coll.FindOne(ctx, filter).Decode(&out); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("find in %s: %w", coll.Name(), err)
	}
	return &out, nil
}

func findAll[T any](ctx context.Context, coll *mongo.Collection, filter bson.M) ([]T, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}})
	cursor, err := coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find in %s: %w", coll.Name(), err)
	}
	out := []T{}
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode %s: %w", coll.Name(), err)
	}
	return out, nil
}

// missingOrConflict tells a vanished document from a failed condition after
// a conditional update matched nothing.
func missingOrConflict(ctx context.Context, coll *mongo.Collection, id string) error {
	n, err := coll.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("count in %s: %w", coll.Name(), err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return store.ErrConflict
}

type materials struct{ coll *mongo.Collection }

func (r materials) Get(ctx context.Context, id string) (*models.Material, error) {
	return findOne[models.Material](ctx, r.coll, bson.M{"_id": id})
}

// GetForUpdate writes a fresh lock token onto the document. Inside a
// transaction that write is the intent lock: a second transaction touching
// the same material gets a WriteConflict until this one ends.
func (r materials) GetForUpdate(ctx context.Context, id string) (*models.Material, error) {
	var m models.Material
	err := r.coll.FindOneAndUpdate(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"lockToken": uuid.NewString()}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&m)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("lock material %s: %w", id, err)
	}
	return &m, nil
}

func (r materials) Update(ctx context.Context, m *models.Material) error {
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": m.ID, "version": m.Version},
		bson.M{"$set": bson.M{
			"remainingQuantity": m.RemainingQuantity,
			"status":            m.Status,
			"updatedAt":         m.UpdatedAt,
			"version":           m.Version + 1,
		}},
	)
	if err != nil {
		return fmt.Errorf("update material %s: %w", m.ID, err)
	}
	if res.MatchedCount == 0 {
		return missingOrConflict(ctx, r.coll, m.ID)
	}
	m.Version++
	return nil
}

type organizations struct{ coll *mongo.Collection }

func (r organizations) Get(ctx context.Context, id string) (*models.Organization, error) {
	return findOne[models.Organization](ctx, r.coll, bson.M{"_id": id})
}

type requests struct {
	coll      *mongo.Collection
	materials *mongo.Collection
}

func (r requests) Create(ctx context.Context, req *models.Request) error {
	if _, err := r.coll.InsertOne(ctx, req); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("insert request: %w", store.ErrDuplicate)
		}
		return fmt.Errorf("insert request: %w", err)
	}
	return nil
}

func (r requests) Get(ctx context.Context, id string) (*models.Request, error) {
	return findOne[models.Request](ctx, r.coll, bson.M{"_id": id})
}

func (r requests) FindByMaterialAndBuyer(ctx context.Context, materialID, buyerID string) (*models.Request, error) {
	return findOne[models.Request](ctx, r.coll, bson.M{
		"materialID": materialID,
		"buyerID":    buyerID,
		"status":     bson.M{"$ne": models.RequestRejected},
	})
}

func (r requests) ListByMaterial(ctx context.Context, materialID string) ([]models.Request, error) {
	return findAll[models.Request](ctx, r.coll, bson.M{"materialID": materialID})
}

func (r requests) ListByOrganization(ctx context.Context, orgID string) ([]models.Request, error) {
	cursor, err := r.materials.Find(ctx, bson.M{"orgID": orgID}, options.Find().SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return nil, fmt.Errorf("find materials of %s: %w", orgID, err)
	}
	var owned []struct {
		ID string `bson:"_id"`
	}
	if err := cursor.All(ctx, &owned); err != nil {
		return nil, fmt.Errorf("decode materials of %s: %w", orgID, err)
	}
	if len(owned) == 0 {
		return []models.Request{}, nil
	}
	ids := make([]string, 0, len(owned))
	for _, m := range owned {
		ids = append(ids, m.ID)
	}
	return findAll[models.Request](ctx, r.coll, bson.M{"materialID": bson.M{"$in": ids}})
}

func (r requests) UpdateStatus(ctx context.Context, id string, from, to models.RequestStatus, at time.Time) error {
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": id, "status": from},
		bson.M{"$set": bson.M{"status": to, "updatedAt": at}},
	)
	if err != nil {
		return fmt.Errorf("update request %s: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return missingOrConflict(ctx, r.coll, id)
	}
	return nil
}

type feedback struct{ coll *mongo.Collection }

func (r feedback) Create(ctx context.Context, f *models.Feedback) error {
	if _, err := r.coll.InsertOne(ctx, f); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("insert feedback: %w", store.ErrDuplicate)
		}
		return fmt.Errorf("insert feedback: %w", err)
	}
	return nil
}

func (r feedback) GetByRequest(ctx context.Context, requestID string) (*models.Feedback, error) {
	return findOne[models.Feedback](ctx, r.coll, bson.M{"requestID": requestID})
}

type reports struct{ coll *mongo.Collection }

func (r reports) Create(ctx context.Context, rep *models.Report) error {
	if _, err := r.coll.InsertOne(ctx, rep); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("insert report: %w", store.ErrDuplicate)
		}
		return fmt.Errorf("insert report: %w", err)
	}
	return nil
}

func (r reports) Get(ctx context.Context, id string) (*models.Report, error) {
	return findOne[models.Report](ctx, r.coll, bson.M{"_id": id})
}

func (r reports) ListByOrganization(ctx context.Context, orgID string) ([]models.Report, error) {
	return findAll[models.Report](ctx, r.coll, bson.M{"orgID": orgID})
}

func (r reports) SetEvidence(ctx context.Context, id, url string) error {
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"evidenceURL": url}})
	if err != nil {
		return fmt.Errorf("update report %s: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}
