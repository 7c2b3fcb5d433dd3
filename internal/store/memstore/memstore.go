// Package memstore is an in-memory store.Store. Transactions are fully
// serialized: WithinTx holds the store mutex for the whole unit of work and
// publishes a copy of the data only when fn succeeds.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"upcycle-api-server/internal/models"
	"upcycle-api-server/internal/store"
)

type Store struct {
	mu   sync.Mutex
	data *dataset
}

type dataset struct {
	orgs      map[string]models.Organization
	materials map[string]models.Material
	requests  map[string]models.Request
	feedback  map[string]models.Feedback
	reports   map[string]models.Report
}

func New() *Store {
	return &Store{data: &dataset{
		orgs:      map[string]models.Organization{},
		materials: map[string]models.Material{},
		requests:  map[string]models.Request{},
		feedback:  map[string]models.Feedback{},
		reports:   map[string]models.Report{},
	}}
}

func (d *dataset) clone() *dataset {
	return &dataset{
		orgs:      cloneMap(d.orgs),
		materials: cloneMap(d.materials),
		requests:  cloneMap(d.requests),
		feedback:  cloneMap(d.feedback),
		reports:   cloneMap(d.reports),
	}
}

func cloneMap[V any](in map[string]V) map[string]V {
	out := make(map[string]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.data.clone()
	if err := fn(ctx, &tx{d: work}); err != nil {
		return err
	}
	s.data = work
	return nil
}

func (s *Store) Close(context.Context) error { return nil }

func (s *Store) PutOrganization(_ context.Context, org *models.Organization) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.orgs[org.ID] = *org
	return nil
}

func (s *Store) PutMaterial(_ context.Context, m *models.Material) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.materials[m.ID] = *m
	return nil
}

// SetBlocked flips an organization's blocked flag, standing in for the admin surface.
func (s *Store) SetBlocked(id string, blocked bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	org, ok := s.data.orgs[id]
	if !ok {
		return store.ErrNotFound
	}
	org.Blocked = blocked
	s.data.orgs[id] = org
	return nil
}

type tx struct{ d *dataset }

func (t *tx) Materials() store.Materials         { return materials{t.d} }
func (t *tx) Organizations() store.Organizations { return organizations{t.d} }
func (t *tx) Requests() store.Requests           { return requests{t.d} }
func (t *tx) Feedback() store.Feedback           { return feedback{t.d} }
func (t *tx) Reports() store.Reports             { return reports{t.d} }

type materials struct{ d *dataset }

func (r materials) Get(_ context.Context, id string) (*models.Material, error) {
	m, ok := r.d.materials[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &m, nil
}

// GetForUpdate needs no extra claim: the whole transaction already holds the store mutex.
func (r materials) GetForUpdate(ctx context.Context, id string) (*models.Material, error) {
	return r.Get(ctx, id)
}

func (r materials) Update(_ context.Context, m *models.Material) error {
	cur, ok := r.d.materials[m.ID]
	if !ok {
		return store.ErrNotFound
	}
	if cur.Version != m.Version {
		return store.ErrConflict
	}
	m.Version++
	r.d.materials[m.ID] = *m
	return nil
}

type organizations struct{ d *dataset }

func (r organizations) Get(_ context.Context, id string) (*models.Organization, error) {
	org, ok := r.d.orgs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &org, nil
}

type requests struct{ d *dataset }

func (r requests) Create(_ context.Context, req *models.Request) error {
	if _, ok := r.d.requests[req.ID]; ok {
		return store.ErrDuplicate
	}
	for _, existing := range r.d.requests {
		if existing.MaterialID == req.MaterialID && existing.BuyerID == req.BuyerID && existing.Status.Holds() {
			return store.ErrDuplicate
		}
	}
	r.d.requests[req.ID] = *req
	return nil
}

func (r requests) Get(_ context.Context, id string) (*models.Request, error) {
	req, ok := r.d.requests[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &req, nil
}

func (r requests) FindByMaterialAndBuyer(_ context.Context, materialID, buyerID string) (*models.Request, error) {
	for _, req := range r.d.requests {
		if req.MaterialID == materialID && req.BuyerID == buyerID && req.Status.Holds() {
			found := req
			return &found, nil
		}
	}
	return nil, store.ErrNotFound
}

func (r requests) ListByMaterial(_ context.Context, materialID string) ([]models.Request, error) {
	return r.filter(func(req models.Request) bool { return req.MaterialID == materialID }), nil
}

func (r requests) ListByOrganization(_ context.Context, orgID string) ([]models.Request, error) {
	return r.filter(func(req models.Request) bool {
		m, ok := r.d.materials[req.MaterialID]
		return ok && m.OrgID == orgID
	}), nil
}

func (r requests) filter(keep func(models.Request) bool) []models.Request {
	out := []models.Request{}
	for _, req := range r.d.requests {
		if keep(req) {
			out = append(out, req)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (r requests) UpdateStatus(_ context.Context, id string, from, to models.RequestStatus, at time.Time) error {
	req, ok := r.d.requests[id]
	if !ok {
		return store.ErrNotFound
	}
	if req.Status != from {
		return store.ErrConflict
	}
	req.Status = to
	req.UpdatedAt = at
	r.d.requests[id] = req
	return nil
}

type feedback struct{ d *dataset }

func (r feedback) Create(_ context.Context, f *models.Feedback) error {
	for _, existing := range r.d.feedback {
		if existing.RequestID == f.RequestID {
			return store.ErrDuplicate
		}
	}
	r.d.feedback[f.ID] = *f
	return nil
}

func (r feedback) GetByRequest(_ context.Context, requestID string) (*models.Feedback, error) {
	for _, f := range r.d.feedback {
		if f.RequestID == requestID {
			found := f
			return &found, nil
		}
	}
	return nil, store.ErrNotFound
}

type reports struct{ d *dataset }

func (r reports) Create(_ context.Context, rep *models.Report) error {
	if _, ok := r.d.reports[rep.ID]; ok {
		return store.ErrDuplicate
	}
	r.d.reports[rep.ID] = *rep
	return nil
}

func (r reports) Get(_ context.Context, id string) (*models.Report, error) {
	rep, ok := r.d.reports[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &rep, nil
}

func (r reports) ListByOrganization(_ context.Context, orgID string) ([]models.Report, error) {
	out := []models.Report{}
	for _, rep := range r.d.reports {
		if rep.OrgID == orgID {
			out = append(out, rep)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (r reports) SetEvidence(_ context.Context, id, url string) error {
	rep, ok := r.d.reports[id]
	if !ok {
		return store.ErrNotFound
	}
	rep.EvidenceURL = url
	r.d.reports[id] = rep
	return nil
}
