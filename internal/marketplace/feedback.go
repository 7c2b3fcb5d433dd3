package marketplace

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"upcycle-api-server/internal/apperr"
	"upcycle-api-server/internal/logger"
	"upcycle-api-server/internal/models"
	"upcycle-api-server/internal/store"
)

const (
	MinRating = 1
	MaxRating = 5
)

type FeedbackService struct {
	store store.Store
	log   *logger.Logger
	now   func() time.Time
	newID func() string
}

func NewFeedbackService(s store.Store, log *logger.Logger) *FeedbackService {
	return &FeedbackService{
		store: s,
		log:   log.With("service", "FeedbackService"),
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// Create stores the buyer's rating of a completed request. Each request
// takes at most one feedback entry.
func (s *FeedbackService) Create(ctx context.Context, actor models.Actor, requestID string, rating int, comment string) (*models.Feedback, error) {
	if !actor.Is(models.ActorBuyer) {
		return nil, apperr.New(apperr.KindForbidden, "only buyers can leave feedback")
	}
	if rating < MinRating || rating > MaxRating {
		return nil, apperr.New(apperr.KindValidation, "rating must be between %d and %d", MinRating, MaxRating)
	}

	fb := &models.Feedback{
		ID:        s.newID(),
		RequestID: requestID,
		BuyerID:   actor.ID,
		Rating:    rating,
		Comment:   strings.TrimSpace(comment),
		CreatedAt: s.now().UTC(),
	}
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		req, err := tx.Requests().Get(ctx, requestID)
		if err != nil {
			return notFound(err, "request %s not found", requestID)
		}
		if req.BuyerID != actor.ID {
			return apperr.New(apperr.KindForbidden, "request %s is not yours", requestID)
		}
		if req.Status != models.RequestCompleted {
			return apperr.New(apperr.KindValidation, "feedback is only accepted for completed requests")
		}
		m, err := tx.Materials().Get(ctx, req.MaterialID)
		if err != nil {
			return notFound(err, "material %s not found", req.MaterialID)
		}
		fb.OrgID = m.OrgID

		if _, err := tx.Feedback().GetByRequest(ctx, requestID); err == nil {
			return apperr.New(apperr.KindDuplicateFeedback, "feedback already submitted for this request")
		} else if !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("look up feedback: %w", err)
		}
		if err := tx.Feedback().Create(ctx, fb); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				return apperr.Wrap(apperr.KindDuplicateFeedback, err, "feedback already submitted for this request")
			}
			return fmt.Errorf("insert feedback: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, classify(err)
	}
	s.log.Info("feedback created", "request_id", requestID, "org_id", fb.OrgID, "rating", rating)
	return fb, nil
}

// ForRequest returns the feedback left on a request.
func (s *FeedbackService) ForRequest(ctx context.Context, requestID string) (*models.Feedback, error) {
	var out *models.Feedback
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		fb, err := tx.Feedback().GetByRequest(ctx, requestID)
		if err != nil {
			return notFound(err, "no feedback for request %s", requestID)
		}
		out = fb
		return nil
	})
	if err != nil {
		return nil, classify(err)
	}
	return out, nil
}
