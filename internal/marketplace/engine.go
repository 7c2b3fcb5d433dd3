// Package marketplace implements the request lifecycle: creation, the
// accept/reject/complete state machine with quantity reservation, and the
// feedback and report gates that hang off completed requests.
package marketplace

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"upcycle-api-server/internal/apperr"
	"upcycle-api-server/internal/ledger"
	"upcycle-api-server/internal/logger"
	"upcycle-api-server/internal/models"
	"upcycle-api-server/internal/store"
)

var tracer = otel.Tracer("upcycle-api-server/internal/marketplace")

type Engine struct {
	store     store.Store
	ledger    *ledger.Ledger
	log       *logger.Logger
	policy    CompletionPolicy
	observers []Observer

	now   func() time.Time
	newID func() string
}

type Option func(*Engine)

func WithCompletionPolicy(p CompletionPolicy) Option {
	return func(e *Engine) { e.policy = p }
}

func WithObservers(obs ...Observer) Option {
	return func(e *Engine) { e.observers = append(e.observers, obs...) }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func NewEngine(s store.Store, l *ledger.Ledger, log *logger.Logger, opts ...Option) *Engine {
	e := &Engine{
		store:  s,
		ledger: l,
		log:    log.With("service", "AllocationEngine"),
		policy: CompletionRetain,
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Policy() CompletionPolicy { return e.policy }

// CreateRequest records a pending claim by a buyer against a material.
func (e *Engine) CreateRequest(ctx context.Context, actor models.Actor, materialID string, qty decimal.Decimal, message string) (*models.Request, error) {
	ctx, span := tracer.Start(ctx, "marketplace.CreateRequest", trace.WithAttributes(
		attribute.String("material.id", materialID),
		attribute.String("actor.id", actor.ID),
	))
	defer span.End()

	if !actor.Is(models.ActorBuyer) {
		return nil, e.fail(span, apperr.New(apperr.KindForbidden, "only buyers can request materials"))
	}
	if !qty.IsPositive() {
		return nil, e.fail(span, apperr.New(apperr.KindValidation, "requested quantity must be positive"))
	}
	if err := models.CheckQuantity(qty); err != nil {
		return nil, e.fail(span, apperr.New(apperr.KindValidation, "requested %v", err))
	}

	now := e.now().UTC()
	req := &models.Request{
		ID:         e.newID(),
		MaterialID: materialID,
		BuyerID:    actor.ID,
		Quantity:   qty,
		Message:    strings.TrimSpace(message),
		Status:     models.RequestPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	var material *models.Material
	err := e.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		m, err := tx.Materials().Get(ctx, materialID)
		if err != nil {
			return notFound(err, "material %s not found", materialID)
		}
		if !m.Status.Allocatable() {
			return apperr.New(apperr.KindMaterialUnavailable, "material %s is %s", m.ID, m.Status)
		}
		// Buyers request against the nominal listing size, not what is left.
		if qty.GreaterThan(m.TotalQuantity) {
			return apperr.New(apperr.KindInsufficientQuantity,
				"requested quantity %s exceeds listed quantity %s", qty, m.TotalQuantity)
		}

		org, err := tx.Organizations().Get(ctx, m.OrgID)
		if err != nil {
			return notFound(err, "organization %s not found", m.OrgID)
		}
		if org.Blocked {
			return apperr.New(apperr.KindOrganizationBlocked, "cannot request from this seller")
		}

		if _, err := tx.Requests().FindByMaterialAndBuyer(ctx, materialID, actor.ID); err == nil {
			return apperr.New(apperr.KindDuplicateRequest, "you have already requested this material")
		} else if !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("look up existing request: %w", err)
		}

		if err := tx.Requests().Create(ctx, req); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				return apperr.Wrap(apperr.KindDuplicateRequest, err, "you have already requested this material")
			}
			return fmt.Errorf("insert request: %w", err)
		}
		material = m
		return nil
	})
	if err != nil {
		return nil, e.fail(span, err)
	}

	e.log.Info("request created", "request_id", req.ID, "material_id", materialID, "buyer_id", actor.ID, "quantity", qty.String())
	e.notify(ctx, RequestEvent{Type: EventRequestCreated, Request: req, Material: material, ActorID: actor.ID, At: now})
	return req, nil
}

// UpdateRequestStatus runs one transition of the request state machine on
// behalf of the organization owning the material. Request and material
// changes commit together or not at all.
func (e *Engine) UpdateRequestStatus(ctx context.Context, actor models.Actor, requestID string, next models.RequestStatus) (*models.Request, error) {
	ctx, span := tracer.Start(ctx, "marketplace.UpdateRequestStatus", trace.WithAttributes(
		attribute.String("request.id", requestID),
		attribute.String("request.next_status", string(next)),
		attribute.String("actor.id", actor.ID),
	))
	defer span.End()

	if !actor.Is(models.ActorOrganization) {
		return nil, e.fail(span, apperr.New(apperr.KindForbidden, "only the owning organization can change request status"))
	}
	if !next.Valid() {
		return nil, e.fail(span, apperr.New(apperr.KindValidation, "invalid status %q", next))
	}

	now := e.now().UTC()
	var (
		updated  *models.Request
		material *models.Material
	)
	err := e.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		req, err := tx.Requests().Get(ctx, requestID)
		if err != nil {
			return notFound(err, "request %s not found", requestID)
		}
		m, err := tx.Materials().Get(ctx, req.MaterialID)
		if err != nil {
			return notFound(err, "material %s not found", req.MaterialID)
		}
		if m.OrgID != actor.ID {
			return apperr.New(apperr.KindForbidden, "request %s does not belong to your materials", requestID)
		}
		if err := checkTransition(req, next); err != nil {
			return err
		}

		switch next {
		case models.RequestAccepted:
			if err := e.checkNotBlocked(ctx, tx, actor); err != nil {
				return err
			}
			if m, err = e.ledger.Reserve(ctx, tx.Materials(), m.ID, req.Quantity); err != nil {
				return err
			}
		case models.RequestCompleted:
			if e.policy == CompletionTransfer {
				if m, err = e.ledger.Finalize(ctx, tx.Materials(), m.ID); err != nil {
					return err
				}
			}
		}

		if err := tx.Requests().UpdateStatus(ctx, req.ID, req.Status, next, now); err != nil {
			if errors.Is(err, store.ErrConflict) {
				return apperr.Wrap(apperr.KindInvalidTransition, err, "request %s was changed by another operation", req.ID)
			}
			return fmt.Errorf("update request status: %w", err)
		}
		req.Status = next
		req.UpdatedAt = now
		updated, material = req, m
		return nil
	})
	if err != nil {
		return nil, e.fail(span, err)
	}

	e.log.Info("request status changed",
		"request_id", updated.ID,
		"material_id", material.ID,
		"status", next,
		"material_status", material.Status,
		"remaining", material.Remaining().String(),
	)
	e.notify(ctx, RequestEvent{Type: eventForStatus(next), Request: updated, Material: material, ActorID: actor.ID, At: now})
	return updated, nil
}

func (e *Engine) checkNotBlocked(ctx context.Context, tx store.Tx, actor models.Actor) error {
	if actor.Blocked {
		return apperr.New(apperr.KindOrganizationBlocked, "blocked organization cannot accept requests")
	}
	org, err := tx.Organizations().Get(ctx, actor.ID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("load organization: %w", err)
	}
	if org == nil || org.Blocked {
		return apperr.New(apperr.KindOrganizationBlocked, "blocked organization cannot accept requests")
	}
	return nil
}

// GetRequestsForMaterial lists requests on a material, newest first. Only the
// owning organization and admins may look.
func (e *Engine) GetRequestsForMaterial(ctx context.Context, actor models.Actor, materialID string) ([]models.Request, error) {
	ctx, span := tracer.Start(ctx, "marketplace.GetRequestsForMaterial")
	defer span.End()

	var out []models.Request
	err := e.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		m, err := tx.Materials().Get(ctx, materialID)
		if err != nil {
			return notFound(err, "material %s not found", materialID)
		}
		if !actor.Is(models.ActorAdmin) && !(actor.Is(models.ActorOrganization) && m.OrgID == actor.ID) {
			return apperr.New(apperr.KindForbidden, "material %s is not yours", materialID)
		}
		out, err = tx.Requests().ListByMaterial(ctx, materialID)
		return err
	})
	if err != nil {
		return nil, e.fail(span, err)
	}
	return out, nil
}

// GetRequestsForOrganization lists every request over the actor's materials.
func (e *Engine) GetRequestsForOrganization(ctx context.Context, actor models.Actor) ([]models.Request, error) {
	ctx, span := tracer.Start(ctx, "marketplace.GetRequestsForOrganization")
	defer span.End()

	if !actor.Is(models.ActorOrganization) {
		return nil, e.fail(span, apperr.New(apperr.KindForbidden, "only organizations have incoming requests"))
	}
	var out []models.Request
	err := e.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		out, err = tx.Requests().ListByOrganization(ctx, actor.ID)
		return err
	})
	if err != nil {
		return nil, e.fail(span, err)
	}
	return out, nil
}

// GetRequest returns a request to its buyer, the owning organization or an admin.
func (e *Engine) GetRequest(ctx context.Context, actor models.Actor, requestID string) (*models.Request, error) {
	ctx, span := tracer.Start(ctx, "marketplace.GetRequest")
	defer span.End()

	var out *models.Request
	err := e.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		req, err := tx.Requests().Get(ctx, requestID)
		if err != nil {
			return notFound(err, "request %s not found", requestID)
		}
		switch actor.Kind {
		case models.ActorAdmin:
		case models.ActorBuyer:
			if req.BuyerID != actor.ID {
				return apperr.New(apperr.KindForbidden, "request %s is not yours", requestID)
			}
		case models.ActorOrganization:
			m, err := tx.Materials().Get(ctx, req.MaterialID)
			if err != nil {
				return notFound(err, "material %s not found", req.MaterialID)
			}
			if m.OrgID != actor.ID {
				return apperr.New(apperr.KindForbidden, "request %s does not belong to your materials", requestID)
			}
		default:
			return apperr.New(apperr.KindForbidden, "unknown actor kind %q", actor.Kind)
		}
		out = req
		return nil
	})
	if err != nil {
		return nil, e.fail(span, err)
	}
	return out, nil
}

// MarkTransferred lets the owner hand over a material explicitly, whatever
// its allocation state.
func (e *Engine) MarkTransferred(ctx context.Context, actor models.Actor, materialID string) (*models.Material, error) {
	ctx, span := tracer.Start(ctx, "marketplace.MarkTransferred")
	defer span.End()

	if !actor.Is(models.ActorOrganization) {
		return nil, e.fail(span, apperr.New(apperr.KindForbidden, "only the owning organization can transfer a material"))
	}
	var out *models.Material
	err := e.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		m, err := tx.Materials().Get(ctx, materialID)
		if err != nil {
			return notFound(err, "material %s not found", materialID)
		}
		if m.OrgID != actor.ID {
			return apperr.New(apperr.KindForbidden, "material %s is not yours", materialID)
		}
		out, err = e.ledger.Finalize(ctx, tx.Materials(), materialID)
		return err
	})
	if err != nil {
		return nil, e.fail(span, err)
	}
	e.log.Info("material transferred", "material_id", materialID, "org_id", actor.ID)
	e.notify(ctx, RequestEvent{Type: EventMaterialTransferred, Material: out, ActorID: actor.ID, At: e.now().UTC()})
	return out, nil
}

func (e *Engine) notify(ctx context.Context, ev RequestEvent) {
	for _, o := range e.observers {
		if err := o.Observe(ctx, ev); err != nil {
			e.log.Warn("observer failed", "observer", o.Name(), "event", ev.Type, "error", err)
		}
	}
}

func (e *Engine) fail(span trace.Span, err error) error {
	err = classify(err)
	span.RecordError(err)
	span.SetStatus(codes.Error, apperr.KindOf(err).String())
	return err
}

// classify turns anything that is not already a marketplace error into a
// transient persistence failure.
func classify(err error) error {
	if apperr.KindOf(err) != apperr.KindUnknown {
		return err
	}
	return apperr.Wrap(apperr.KindUnavailable, err, "storage unavailable")
}

func notFound(err error, format string, args ...any) error {
	if errors.Is(err, store.ErrNotFound) {
		return apperr.New(apperr.KindNotFound, format, args...)
	}
	return err
}
