package marketplace

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"upcycle-api-server/internal/apperr"
	"upcycle-api-server/internal/logger"
	"upcycle-api-server/internal/models"
	"upcycle-api-server/internal/store"
)

// Uploader puts a file somewhere public and returns its URL.
type Uploader interface {
	UploadFile(ctx context.Context, file io.Reader, objectKey, contentType string) (string, error)
}

type ReportService struct {
	store    store.Store
	uploader Uploader
	log      *logger.Logger
	now      func() time.Time
	newID    func() string
}

// NewReportService builds the service. uploader may be nil, in which case
// AttachEvidence reports the feature as unavailable.
func NewReportService(s store.Store, uploader Uploader, log *logger.Logger) *ReportService {
	return &ReportService{
		store:    s,
		uploader: uploader,
		log:      log.With("service", "ReportService"),
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// Create files a report against the buyer of one of the organization's requests.
func (s *ReportService) Create(ctx context.Context, actor models.Actor, requestID, reason, description string) (*models.Report, error) {
	if !actor.Is(models.ActorOrganization) {
		return nil, apperr.New(apperr.KindForbidden, "only organizations can report buyers")
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperr.New(apperr.KindValidation, "reason is required")
	}

	rep := &models.Report{
		ID:          s.newID(),
		RequestID:   requestID,
		OrgID:       actor.ID,
		Reason:      reason,
		Description: strings.TrimSpace(description),
		Status:      models.ReportPending,
		CreatedAt:   s.now().UTC(),
	}
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
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
		rep.BuyerID = req.BuyerID
		if err := tx.Reports().Create(ctx, rep); err != nil {
			return fmt.Errorf("insert report: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, classify(err)
	}
	s.log.Info("report created", "report_id", rep.ID, "request_id", requestID, "buyer_id", rep.BuyerID)
	return rep, nil
}

func (s *ReportService) ListForOrganization(ctx context.Context, actor models.Actor) ([]models.Report, error) {
	if !actor.Is(models.ActorOrganization) {
		return nil, apperr.New(apperr.KindForbidden, "only organizations have reports")
	}
	var out []models.Report
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		out, err = tx.Reports().ListByOrganization(ctx, actor.ID)
		return err
	})
	if err != nil {
		return nil, classify(err)
	}
	return out, nil
}

// AttachEvidence uploads a file and links it to the report. The upload runs
// before the transaction opens; only the URL write is transactional.
func (s *ReportService) AttachEvidence(ctx context.Context, actor models.Actor, reportID, filename, contentType string, file io.Reader) (*models.Report, error) {
	if s.uploader == nil {
		return nil, apperr.New(apperr.KindUnavailable, "evidence uploads are not configured")
	}
	if !actor.Is(models.ActorOrganization) {
		return nil, apperr.New(apperr.KindForbidden, "only organizations can attach evidence")
	}

	var rep *models.Report
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		r, err := tx.Reports().Get(ctx, reportID)
		if err != nil {
			return notFound(err, "report %s not found", reportID)
		}
		if r.OrgID != actor.ID {
			return apperr.New(apperr.KindForbidden, "report %s is not yours", reportID)
		}
		rep = r
		return nil
	})
	if err != nil {
		return nil, classify(err)
	}

	key := fmt.Sprintf("reports/%s/%s%s", reportID, s.newID(), strings.ToLower(path.Ext(filename)))
	url, err := s.uploader.UploadFile(ctx, file, key, contentType)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUnavailable, err, "upload evidence")
	}

	err = s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.Reports().SetEvidence(ctx, reportID, url)
	})
	if err != nil {
		return nil, classify(notFound(err, "report %s not found", reportID))
	}
	rep.EvidenceURL = url
	s.log.Info("report evidence attached", "report_id", reportID, "object_key", key)
	return rep, nil
}
