package transcript

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aldoetobex/section1983-backend/internal/documents"
	"github.com/aldoetobex/section1983-backend/pkg/logger"
	"github.com/aldoetobex/section1983-backend/pkg/metrics"
	"github.com/aldoetobex/section1983-backend/pkg/models"
)

var (
	ErrEvidenceNotFound = errors.New("evidence not found")
	ErrNoVideo          = errors.New("evidence has no video url")
	ErrNoJob            = errors.New("no transcript requested")
	ErrUpstream         = errors.New("transcript service failed")
)

type Service struct {
	db      *gorm.DB
	docs    *documents.Service
	api     Transcriber
	log     *logger.Logger
	metrics *metrics.Metrics
}

func NewService(docs *documents.Service, api Transcriber, log *logger.Logger, m *metrics.Metrics) *Service {
	return &Service{db: docs.DB(), docs: docs, api: api, log: log, metrics: m}
}

func (s *Service) evidence(ctx context.Context, docID, evID uuid.UUID) (*models.Evidence, error) {
	var ev models.Evidence
	err := s.db.WithContext(ctx).Where("id = ? AND document_id = ?", evID, docID).First(&ev).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrEvidenceNotFound
	}
	return &ev, err
}

func (s *Service) latest(ctx context.Context, evID uuid.UUID) (*models.TranscriptJob, error) {
	var job models.TranscriptJob
	err := s.db.WithContext(ctx).Where("evidence_id = ?", evID).Order("created_at desc").First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoJob
	}
	return &job, err
}

// Start submits the evidence video for transcription. A job still processing
// for the same evidence is returned as is; created reports whether a new one
// was submitted.
func (s *Service) Start(ctx context.Context, userID, docID, evID uuid.UUID) (job *models.TranscriptJob, created bool, err error) {
	if _, err := s.docs.Editable(ctx, userID, docID); err != nil {
		return nil, false, err
	}
	ev, err := s.evidence(ctx, docID, evID)
	if err != nil {
		return nil, false, err
	}
	videoURL := strings.TrimSpace(ev.VideoURL)
	if videoURL == "" {
		return nil, false, ErrNoVideo
	}

	prev, err := s.latest(ctx, evID)
	switch {
	case err == nil && prev.Status == models.JobProcessing && prev.VideoURL == videoURL:
		return prev, false, nil
	case err != nil && !errors.Is(err, ErrNoJob):
		return nil, false, err
	}

	ctx = s.log.WithFields(ctx, map[string]any{"document_id": docID.String(), "evidence_id": evID.String()})
	job = &models.TranscriptJob{
		EvidenceID: evID,
		DocumentID: docID,
		VideoURL:   videoURL,
		Status:     models.JobProcessing,
	}
	providerID, err := s.api.Submit(ctx, videoURL)
	if err != nil {
		s.log.Error(ctx, "transcript submit failed", err)
		s.metrics.IncJob("transcript", "submit_error")
		if errors.Is(err, ErrNotConfigured) {
			return nil, false, err
		}
		job.Status = models.JobFailed
		job.Error = "The transcript request failed. Please try again."
		if cerr := s.db.WithContext(ctx).Create(job).Error; cerr != nil {
			return nil, false, cerr
		}
		return job, true, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	job.ProviderJobID = providerID
	if err := s.db.WithContext(ctx).Create(job).Error; err != nil {
		return nil, false, err
	}
	s.metrics.IncJob("transcript", "submitted")
	s.log.Info(ctx, "transcript job submitted")
	return job, true, nil
}

// Poll asks the provider once about the latest job for the evidence and
// stores what it says. A completed transcript is copied onto the evidence.
func (s *Service) Poll(ctx context.Context, userID, docID, evID uuid.UUID) (*models.TranscriptJob, error) {
	if _, err := s.docs.Get(ctx, userID, docID); err != nil {
		return nil, err
	}
	if _, err := s.evidence(ctx, docID, evID); err != nil {
		return nil, err
	}
	job, err := s.latest(ctx, evID)
	if err != nil || job.Status != models.JobProcessing {
		return job, err
	}

	ctx = s.log.WithFields(ctx, map[string]any{"document_id": docID.String(), "transcript_job_id": job.ID.String()})
	remote, err := s.api.Fetch(ctx, job.ProviderJobID)
	if err != nil {
		s.log.Error(ctx, "transcript fetch failed", err)
		s.metrics.IncJob("transcript", "fetch_error")
		return job, fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	switch remote.Status {
	case StatusCompleted:
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Model(job).Updates(map[string]any{
				"status": models.JobCompleted, "transcript": remote.Text, "error": "",
			}).Error; err != nil {
				return err
			}
			return tx.Model(&models.Evidence{}).Where("id = ?", evID).Update("transcript", remote.Text).Error
		})
		if err != nil {
			return nil, err
		}
		job.Status, job.Transcript, job.Error = models.JobCompleted, remote.Text, ""
		s.metrics.IncJob("transcript", "completed")
		s.log.Info(ctx, "transcript completed")
	case StatusFailed:
		msg := remote.Error
		if msg == "" {
			msg = "The video could not be transcribed."
		}
		if err := s.db.WithContext(ctx).Model(job).Updates(map[string]any{
			"status": models.JobFailed, "error": msg,
		}).Error; err != nil {
			return nil, err
		}
		job.Status, job.Error = models.JobFailed, msg
		s.metrics.IncJob("transcript", "failed")
		s.log.Warn(ctx, "transcript failed: "+msg)
	}
	return job, nil
}
