package wizard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/aldoetobex/section1983-backend/internal/assist"
	"github.com/aldoetobex/section1983-backend/internal/documents"
	"github.com/aldoetobex/section1983-backend/internal/jobs"
	"github.com/aldoetobex/section1983-backend/pkg/logger"
	"github.com/aldoetobex/section1983-backend/pkg/models"
)

var (
	ErrSessionNotFound = errors.New("wizard session not found")
	ErrCompleted       = errors.New("wizard session already completed")
	ErrUnknownStep     = errors.New("unknown wizard step")
	ErrStepLocked      = errors.New("finish the earlier steps first")
	ErrMissingSteps    = errors.New("wizard steps missing")
	ErrInvalidPayload  = errors.New("invalid step payload")
)

// MissingStepsError lists the steps still unanswered at completion.
type MissingStepsError struct{ Steps []int }

func (e *MissingStepsError) Error() string {
	return fmt.Sprintf("%s: %v", ErrMissingSteps, e.Steps)
}

func (e *MissingStepsError) Unwrap() error { return ErrMissingSteps }

type Service struct {
	db   *gorm.DB
	docs *documents.Service
	ai   *assist.Service
	log  *logger.Logger
}

func NewService(docs *documents.Service, ai *assist.Service, log *logger.Logger) *Service {
	return &Service{db: docs.DB(), docs: docs, ai: ai, log: log}
}

/* =============================== Sessions =============================== */

// Start resumes the caller's open session, or opens one. created reports
// whether a new row was made.
func (s *Service) Start(ctx context.Context, userID uuid.UUID, fresh bool) (sess *models.WizardSession, created bool, err error) {
	if !fresh {
		var open models.WizardSession
		err := s.db.WithContext(ctx).
			Where("user_id = ? AND completed_at IS NULL", userID).
			Order("updated_at desc").First(&open).Error
		if err == nil {
			return &open, false, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, err
		}
	}
	sess = &models.WizardSession{
		UserID:         userID,
		CurrentStep:    1,
		StepData:       datatypes.JSONMap{},
		StoryStatus:    models.JobIdle,
		AnalysisStatus: models.JobIdle,
	}
	if err := s.db.WithContext(ctx).Create(sess).Error; err != nil {
		return nil, false, err
	}
	return sess, true, nil
}

func (s *Service) Get(ctx context.Context, userID, sessionID uuid.UUID) (*models.WizardSession, error) {
	var sess models.WizardSession
	err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", sessionID, userID).First(&sess).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSessionNotFound
	}
	return &sess, err
}

// stepInto decodes the stored answers of step n into dst.
func stepInto(sess *models.WizardSession, n int, dst any) bool {
	raw, ok := sess.StepData[strconv.Itoa(n)]
	if !ok || raw == nil {
		return false
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return false
	}
	return json.Unmarshal(b, dst) == nil
}

/* ================================ Steps ================================= */

// SaveStep validates payload for step and stores exactly that step's fields.
// Validation failures come back as field errors with a nil error.
func (s *Service) SaveStep(ctx context.Context, userID, sessionID uuid.UUID, step int, payload []byte) (*models.WizardSession, map[string][]string, error) {
	def, ok := StepByNumber(step)
	if !ok {
		return nil, nil, ErrUnknownStep
	}
	data, fieldErrs, err := def.Decode(payload)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: step %d: %v", ErrInvalidPayload, step, err)
	}
	if fieldErrs != nil {
		return nil, fieldErrs, nil
	}

	var sess models.WizardSession
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ? AND user_id = ?", sessionID, userID).First(&sess).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrSessionNotFound
			}
			return err
		}
		if sess.CompletedAt != nil {
			return ErrCompleted
		}
		if step > sess.CurrentStep {
			return ErrStepLocked
		}
		if sess.StepData == nil {
			sess.StepData = datatypes.JSONMap{}
		}
		sess.StepData[strconv.Itoa(step)] = data
		sess.CurrentStep, sess.ProgressPercent = advance(sess.CurrentStep, sess.ProgressPercent, step)
		return tx.Model(&sess).Updates(map[string]any{
			"step_data":        sess.StepData,
			"current_step":     sess.CurrentStep,
			"progress_percent": sess.ProgressPercent,
		}).Error
	})
	if err != nil {
		return nil, nil, err
	}
	return &sess, nil, nil
}

/* ============================ Background jobs =========================== */

// JobPoll is the body of the story and analysis status endpoints.
type JobPoll struct {
	Status models.JobStatus `json:"status"`
	Error  string           `json:"error,omitempty"`
	Result json.RawMessage  `json:"result,omitempty"`
}

type jobColumns struct {
	name, status, errCol, started, result string
}

var (
	storyJob    = jobColumns{"wizard_story", "story_status", "story_error", "story_started_at", "story_result"}
	analysisJob = jobColumns{"wizard_analysis", "analysis_status", "analysis_error", "analysis_started_at", "analysis_result"}
)

// startJob applies duplicate suppression and the AI gate, marks the job
// processing and runs work in the background. started is false when a
// recent run is still going.
func (s *Service) startJob(ctx context.Context, userID uuid.UUID, sess *models.WizardSession, col jobColumns,
	status models.JobStatus, startedAt *time.Time, work func(ctx context.Context) (any, error)) (bool, error) {

	now := s.docs.Now()
	if jobs.InFlight(status, startedAt, now, s.ai.DuplicateWindow()) {
		return false, nil
	}
	var u models.User
	if err := s.db.WithContext(ctx).First(&u, "id = ?", userID).Error; err != nil {
		return false, assist.ErrUnauthorized
	}
	if err := s.ai.AllowUser(ctx, &u); err != nil {
		return false, err
	}
	if err := s.db.WithContext(ctx).Model(&models.WizardSession{}).Where("id = ?", sess.ID).Updates(map[string]any{
		col.status:  models.JobProcessing,
		col.started: now,
		col.errCol:  "",
	}).Error; err != nil {
		return false, err
	}

	sessionID := sess.ID
	ctx = s.log.WithField(ctx, "wizard_session_id", sessionID.String())
	s.ai.Runner().Go(ctx, col.name, func(ctx context.Context) error {
		result, err := work(ctx)
		if err != nil {
			return err
		}
		raw, _ := json.Marshal(result)
		s.finishJob(ctx, sessionID, col, models.JobCompleted, raw, "")
		if err := assist.Record(ctx, s.db, &u, &models.Document{PaymentStatus: models.PaymentDraft}); err != nil {
			s.log.Error(ctx, "record wizard ai usage", err)
		}
		return nil
	}, func(ctx context.Context, _ error) {
		s.finishJob(ctx, sessionID, col, models.JobFailed, nil, "The AI request failed. Please try again.")
	})
	return true, nil
}

func (s *Service) finishJob(ctx context.Context, sessionID uuid.UUID, col jobColumns, st models.JobStatus, result []byte, msg string) {
	updates := map[string]any{col.status: st, col.errCol: msg}
	if result != nil {
		updates[col.result] = datatypes.JSON(result)
	}
	if err := s.db.WithContext(ctx).Model(&models.WizardSession{}).Where("id = ?", sessionID).Updates(updates).Error; err != nil {
		s.log.Error(ctx, "write wizard job result", err)
	}
}

// SubmitStory parses the step 3 story (or story, when given) in the background.
func (s *Service) SubmitStory(ctx context.Context, userID, sessionID uuid.UUID, story string) (*JobPoll, bool, error) {
	sess, err := s.open(ctx, userID, sessionID)
	if err != nil {
		return nil, false, err
	}
	story = strings.TrimSpace(story)
	if story == "" {
		var st StoryStep
		stepInto(sess, 3, &st)
		story = st.StoryText
	}
	if story == "" {
		return nil, false, assist.ErrStoryMissing
	}
	var inc IncidentStep
	stepInto(sess, 2, &inc)

	started, err := s.startJob(ctx, userID, sess, storyJob, sess.StoryStatus, sess.StoryStartedAt, func(ctx context.Context) (any, error) {
		return s.ai.ExtractStory(ctx, story, inc.State)
	})
	if err != nil {
		return nil, false, err
	}
	if !started {
		return &JobPoll{Status: sess.StoryStatus}, false, nil
	}
	return &JobPoll{Status: models.JobProcessing}, true, nil
}

// SubmitAnalysis suggests violated rights from the answers so far.
func (s *Service) SubmitAnalysis(ctx context.Context, userID, sessionID uuid.UUID) (*JobPoll, bool, error) {
	sess, err := s.open(ctx, userID, sessionID)
	if err != nil {
		return nil, false, err
	}
	facts := documents.FactsText(draftDocument(sess))
	if strings.TrimSpace(facts) == "" {
		return nil, false, assist.ErrStoryMissing
	}

	started, err := s.startJob(ctx, userID, sess, analysisJob, sess.AnalysisStatus, sess.AnalysisStartedAt, func(ctx context.Context) (any, error) {
		vs, err := s.ai.SuggestRights(ctx, facts)
		if err != nil {
			return nil, err
		}
		return map[string]any{"violations": vs}, nil
	})
	if err != nil {
		return nil, false, err
	}
	if !started {
		return &JobPoll{Status: sess.AnalysisStatus}, false, nil
	}
	return &JobPoll{Status: models.JobProcessing}, true, nil
}

func (s *Service) StoryPoll(ctx context.Context, userID, sessionID uuid.UUID) (*JobPoll, error) {
	sess, err := s.Get(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	return &JobPoll{Status: sess.StoryStatus, Error: sess.StoryError, Result: json.RawMessage(sess.StoryResult)}, nil
}

func (s *Service) AnalysisPoll(ctx context.Context, userID, sessionID uuid.UUID) (*JobPoll, error) {
	sess, err := s.Get(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	return &JobPoll{Status: sess.AnalysisStatus, Error: sess.AnalysisError, Result: json.RawMessage(sess.AnalysisResult)}, nil
}

func (s *Service) open(ctx context.Context, userID, sessionID uuid.UUID) (*models.WizardSession, error) {
	sess, err := s.Get(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.CompletedAt != nil {
		return nil, ErrCompleted
	}
	return sess, nil
}
