package documents

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.uber.org/multierr"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/aldoetobex/section1983-backend/pkg/logger"
	"github.com/aldoetobex/section1983-backend/pkg/metrics"
	"github.com/aldoetobex/section1983-backend/pkg/models"
	"github.com/aldoetobex/section1983-backend/pkg/utils"
)

const DefaultTitle = "Section 1983 Civil Rights Complaint"

var (
	ErrNotFound          = errors.New("document not found")
	ErrProfileIncomplete = errors.New("profile incomplete")
	ErrConsentsRequired  = errors.New("consents not accepted")
	ErrExpired           = errors.New("document expired")
	ErrFinalized         = errors.New("document finalized")
	ErrNotEditable       = errors.New("document not editable")
	ErrPaymentRequired   = errors.New("payment required")
	ErrNotDraft          = errors.New("document is not a draft")
)

// Service owns the document lifecycle rules shared by the web flow, the wizard,
// AI assists and billing.
type Service struct {
	db      *gorm.DB
	policy  models.Policy
	log     *logger.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewService(db *gorm.DB, policy models.Policy, log *logger.Logger, m *metrics.Metrics) *Service {
	return &Service{db: db, policy: policy, log: log, metrics: m, now: time.Now}
}

// WithClock replaces the time source. Tests only.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) Policy() models.Policy { return s.policy }
func (s *Service) Now() time.Time        { return s.now() }
func (s *Service) DB() *gorm.DB          { return s.db }

/* ================================ Create ================================ */

// Create starts a draft with all ten sections and plaintiff_info pre-filled
// from the profile.
func (s *Service) Create(ctx context.Context, u *models.User, title string) (*models.Document, error) {
	if !u.IsProfileComplete() {
		return nil, ErrProfileIncomplete
	}
	if !u.HasAcceptedConsents() {
		return nil, ErrConsentsRequired
	}
	title = strings.TrimSpace(title)
	if title == "" {
		title = DefaultTitle
	}

	doc := &models.Document{
		UserID:        u.ID,
		Title:         title,
		PaymentStatus: models.PaymentDraft,
		StoryStatus:   models.JobIdle,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(doc).Error; err != nil {
			return fmt.Errorf("create document: %w", err)
		}

		sections := make([]models.DocumentSection, 0, len(models.SectionTypes))
		for i, t := range models.SectionTypes {
			sections = append(sections, models.DocumentSection{
				DocumentID:  doc.ID,
				SectionType: t,
				Status:      models.SectionNotStarted,
				SortOrder:   i + 1,
			})
		}
		if err := tx.Create(&sections).Error; err != nil {
			return fmt.Errorf("create sections: %w", err)
		}

		pi := PlaintiffFromUser(doc.ID, u)
		if err := tx.Create(pi).Error; err != nil {
			return fmt.Errorf("prefill plaintiff: %w", err)
		}
		return SetSectionStatus(tx, doc.ID, models.SectionPlaintiffInfo, models.SectionCompleted)
	})
	if err != nil {
		return nil, err
	}

	utils.LogDocumentHistory(ctx, s.db, doc.ID, u.ID, "created", "", models.PaymentDraft, "")
	return s.Get(ctx, u.ID, doc.ID)
}

// PlaintiffFromUser copies the profile fields used on the complaint.
func PlaintiffFromUser(docID uuid.UUID, u *models.User) *models.PlaintiffInfo {
	return &models.PlaintiffInfo{
		DocumentID: docID,
		FirstName:  strings.TrimSpace(u.FirstName),
		LastName:   strings.TrimSpace(u.LastName),
		Street:     strings.TrimSpace(u.Street),
		City:       strings.TrimSpace(u.City),
		State:      strings.ToUpper(strings.TrimSpace(u.State)),
		ZipCode:    strings.TrimSpace(u.ZipCode),
		Phone:      strings.TrimSpace(u.Phone),
		Email:      u.Email,
	}
}

/* ================================= Load ================================= */

// Get loads an owned document with its sections. A stale draft is flipped to
// expired on the way out.
func (s *Service) Get(ctx context.Context, userID, docID uuid.UUID) (*models.Document, error) {
	return s.load(ctx, userID, docID, false)
}

// GetFull also preloads every child record.
func (s *Service) GetFull(ctx context.Context, userID, docID uuid.UUID) (*models.Document, error) {
	return s.load(ctx, userID, docID, true)
}

func (s *Service) load(ctx context.Context, userID, docID uuid.UUID, full bool) (*models.Document, error) {
	q := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", docID, userID).
		Preload("Sections", func(db *gorm.DB) *gorm.DB { return db.Order("sort_order ASC") })
	if full {
		q = Preloaded(q)
	}

	var doc models.Document
	if err := q.First(&doc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	s.RefreshExpiry(ctx, &doc)
	return &doc, nil
}

// Preloaded adds every child association to q.
func Preloaded(q *gorm.DB) *gorm.DB {
	return q.
		Preload("PlaintiffInfo").
		Preload("IncidentOverview").
		Preload("Narrative").
		Preload("RightsViolated").
		Preload("Defendants", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		Preload("Witnesses", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		Preload("Evidence", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		Preload("Damages").
		Preload("PriorComplaints").
		Preload("ReliefSought")
}

// RefreshExpiry persists the lazy draft to expired transition.
func (s *Service) RefreshExpiry(ctx context.Context, doc *models.Document) {
	if !doc.RefreshExpiry(s.now(), s.policy) {
		return
	}
	res := s.db.WithContext(ctx).Model(&models.Document{}).
		Where("id = ? AND payment_status = ?", doc.ID, models.PaymentDraft).
		Update("payment_status", models.PaymentExpired)
	if res.Error != nil {
		s.log.Error(ctx, "persist draft expiry", res.Error)
		return
	}
	if res.RowsAffected == 1 {
		s.metrics.AddExpired(1)
		utils.LogDocumentHistory(ctx, s.db, doc.ID, uuid.Nil, "expired",
			models.PaymentDraft, models.PaymentExpired, "draft window elapsed")
	}
}

// Editable loads an owned document and rejects it when it cannot be edited.
func (s *Service) Editable(ctx context.Context, userID, docID uuid.UUID) (*models.Document, error) {
	doc, err := s.Get(ctx, userID, docID)
	if err != nil {
		return nil, err
	}
	if err := s.EditDenial(doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// EditDenial explains why doc cannot be edited, or returns nil.
func (s *Service) EditDenial(doc *models.Document) error {
	if doc.CanEdit(s.now(), s.policy) {
		return nil
	}
	switch {
	case doc.IsExpired(s.now(), s.policy):
		return ErrExpired
	case doc.PaymentStatus == models.PaymentFinalized:
		return ErrFinalized
	default:
		return ErrNotEditable
	}
}

// Completion returns the completion percentage from the sections table.
func (s *Service) Completion(ctx context.Context, docID uuid.UUID) (int, error) {
	var sections []models.DocumentSection
	if err := s.db.WithContext(ctx).Where("document_id = ?", docID).Find(&sections).Error; err != nil {
		return 0, err
	}
	return models.CompletionPercentage(sections), nil
}

/* =========================== Section status ============================= */

// SetSectionStatus writes the status of one section.
func SetSectionStatus(tx *gorm.DB, docID uuid.UUID, t models.SectionType, st models.SectionStatus) error {
	return tx.Model(&models.DocumentSection{}).
		Where("document_id = ? AND section_type = ?", docID, t).
		Update("status", st).Error
}

// TouchSection moves an untouched section to in_progress. Other states are kept.
func TouchSection(tx *gorm.DB, docID uuid.UUID, t models.SectionType) error {
	return tx.Model(&models.DocumentSection{}).
		Where("document_id = ? AND section_type = ? AND status = ?", docID, t, models.SectionNotStarted).
		Update("status", models.SectionInProgress).Error
}

func statusFor(complete bool) models.SectionStatus {
	if complete {
		return models.SectionCompleted
	}
	return models.SectionInProgress
}

/* ========================= Finalize / Delete ============================ */

// Finalize locks a paid document.
func (s *Service) Finalize(ctx context.Context, userID, docID uuid.UUID) (*models.Document, error) {
	var doc models.Document
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ? AND user_id = ?", docID, userID).
			First(&doc).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		switch doc.PaymentStatus {
		case models.PaymentPaid:
		case models.PaymentFinalized:
			return ErrFinalized
		default:
			return ErrPaymentRequired
		}

		now := s.now()
		if err := tx.Model(&doc).Updates(map[string]any{
			"payment_status": models.PaymentFinalized,
			"finalized_at":   now,
		}).Error; err != nil {
			return err
		}
		doc.PaymentStatus = models.PaymentFinalized
		doc.FinalizedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}
	utils.LogDocumentHistory(ctx, s.db, doc.ID, userID, "finalized",
		models.PaymentPaid, models.PaymentFinalized, "")
	return &doc, nil
}

// DeleteDraft removes a draft (or expired draft) and every child row.
func (s *Service) DeleteDraft(ctx context.Context, userID, docID uuid.UUID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var doc models.Document
		if err := tx.Where("id = ? AND user_id = ?", docID, userID).First(&doc).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if doc.PaymentStatus != models.PaymentDraft && doc.PaymentStatus != models.PaymentExpired {
			return ErrNotDraft
		}
		for _, m := range childModels() {
			if err := tx.Where("document_id = ?", doc.ID).Delete(m).Error; err != nil {
				return err
			}
		}
		return tx.Delete(&doc).Error
	})
}

func childModels() []any {
	return []any{
		&models.DocumentSection{}, &models.PlaintiffInfo{}, &models.IncidentOverview{},
		&models.IncidentNarrative{}, &models.RightsViolated{}, &models.Defendant{},
		&models.Witness{}, &models.Evidence{}, &models.Damages{}, &models.PriorComplaints{},
		&models.ReliefSought{}, &models.TranscriptJob{}, &models.DocumentHistory{},
	}
}

/* ================================ Sweep ================================= */

// ExpireStaleDrafts flips every draft past the expiry window to expired and
// writes a history row for each one it changed. Errors are combined, not
// short-circuited.
func (s *Service) ExpireStaleDrafts(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-s.policy.DraftExpiry)

	var ids []uuid.UUID
	if err := s.db.WithContext(ctx).Model(&models.Document{}).
		Where("payment_status = ? AND created_at < ?", models.PaymentDraft, cutoff).
		Pluck("id", &ids).Error; err != nil {
		return 0, fmt.Errorf("select stale drafts: %w", err)
	}

	var (
		expired int64
		errs    error
	)
	for _, id := range ids {
		ok, err := s.expireDraft(ctx, id)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("expire %s: %w", id, err))
			continue
		}
		if ok {
			expired++
		}
	}
	s.metrics.AddExpired(expired)
	return expired, errs
}

// expireDraft moves one document from draft to expired. It reports false
// when the document left draft after it was selected (paid or deleted).
func (s *Service) expireDraft(ctx context.Context, id uuid.UUID) (bool, error) {
	changed := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Document{}).
			Where("id = ? AND payment_status = ?", id, models.PaymentDraft).
			Update("payment_status", models.PaymentExpired)
		if res.Error != nil || res.RowsAffected == 0 {
			return res.Error
		}
		changed = true
		return tx.Create(&models.DocumentHistory{
			DocumentID: id,
			Action:     "expired",
			OldStatus:  models.PaymentDraft,
			NewStatus:  models.PaymentExpired,
			Reason:     "expiry sweep",
		}).Error
	})
	if err != nil {
		return false, err
	}
	return changed, nil
}

// RunSweep calls ExpireStaleDrafts every interval until ctx is done.
func (s *Service) RunSweep(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := s.ExpireStaleDrafts(ctx)
			if err != nil {
				for _, e := range multierr.Errors(err) {
					s.log.Error(ctx, "draft expiry sweep", e)
				}
			}
			if n > 0 {
				s.log.Event(ctx, zerolog.InfoLevel).Int64("expired", n).Msg("expired stale drafts")
			}
		}
	}
}
