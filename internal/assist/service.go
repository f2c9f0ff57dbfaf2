package assist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"gorm.io/gorm"

	"github.com/aldoetobex/section1983-backend/internal/documents"
	"github.com/aldoetobex/section1983-backend/internal/jobs"
	"github.com/aldoetobex/section1983-backend/internal/prompts"
	"github.com/aldoetobex/section1983-backend/pkg/llm"
	"github.com/aldoetobex/section1983-backend/pkg/logger"
	"github.com/aldoetobex/section1983-backend/pkg/metrics"
	"github.com/aldoetobex/section1983-backend/pkg/models"
	"github.com/aldoetobex/section1983-backend/pkg/redis"
)

var (
	ErrUnauthorized    = errors.New("user not found")
	ErrAILimit         = errors.New("AI limit reached")
	ErrRateLimited     = errors.New("too many AI requests")
	ErrUpstream        = errors.New("AI service failed")
	ErrBadModelOutput  = errors.New("AI returned an unexpected response")
	ErrStoryMissing    = errors.New("story text is empty")
	ErrFieldNotFixable = errors.New("field cannot be changed by a fix")
)

// Deps wires the assist service.
type Deps struct {
	Docs    *documents.Service
	Prompts *prompts.Store
	LLM     llm.Completer
	Cache   *redis.Client // optional; nil disables rate limiting
	Runner  *jobs.Runner
	Log     *logger.Logger
	Metrics *metrics.Metrics

	RequestsPerMinute int
	DuplicateWindow   time.Duration
}

type Service struct {
	docs      *documents.Service
	db        *gorm.DB
	prompts   *prompts.Store
	llm       llm.Completer
	cache     *redis.Client
	runner    *jobs.Runner
	log       *logger.Logger
	metrics   *metrics.Metrics
	perMinute int
	dupWindow time.Duration
}

func NewService(d Deps) (*Service, error) {
	switch {
	case d.Docs == nil:
		return nil, errors.New("documents service required")
	case d.Prompts == nil:
		return nil, errors.New("prompt store required")
	case d.LLM == nil:
		return nil, errors.New("llm client required")
	case d.Runner == nil:
		return nil, errors.New("job runner required")
	}
	if d.DuplicateWindow <= 0 {
		d.DuplicateWindow = 2 * time.Minute
	}
	return &Service{
		docs:      d.Docs,
		db:        d.Docs.DB(),
		prompts:   d.Prompts,
		llm:       d.LLM,
		cache:     d.Cache,
		runner:    d.Runner,
		log:       d.Log,
		metrics:   d.Metrics,
		perMinute: d.RequestsPerMinute,
		dupWindow: d.DuplicateWindow,
	}, nil
}

/* ============================ Access checks ============================= */

// load fetches the user and the fully preloaded document.
func (s *Service) load(ctx context.Context, userID, docID uuid.UUID) (*models.User, *models.Document, error) {
	var u models.User
	if err := s.db.WithContext(ctx).First(&u, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrUnauthorized
		}
		return nil, nil, err
	}
	doc, err := s.docs.GetFull(ctx, userID, docID)
	if err != nil {
		return nil, nil, err
	}
	return &u, doc, nil
}

// allow applies the AI quota and the per-user rate limit.
func (s *Service) allow(ctx context.Context, u *models.User, doc *models.Document) error {
	if !doc.CanUseAI(u, s.docs.Now(), s.docs.Policy()) {
		return ErrAILimit
	}
	return s.rateLimit(ctx, u.ID)
}

// AllowUser gates AI calls made before a document exists (the wizard). Only
// the free allowance and the rate limit apply.
func (s *Service) AllowUser(ctx context.Context, u *models.User) error {
	if !u.CanUseFreeAI(s.docs.Policy().FreeAIGenerations) {
		return ErrAILimit
	}
	return s.rateLimit(ctx, u.ID)
}

func (s *Service) rateLimit(ctx context.Context, userID uuid.UUID) error {
	if s.cache == nil || s.perMinute <= 0 {
		return nil
	}
	ok, _, err := s.cache.FixedWindowAllow(ctx, "ai:"+userID.String(), s.perMinute, time.Minute)
	if err != nil {
		// Redis down should not take the AI features with it.
		s.log.Warn(ctx, "ai rate limit check failed: "+err.Error())
		return nil
	}
	if !ok {
		return ErrRateLimited
	}
	return nil
}

// begin is load followed by allow.
func (s *Service) begin(ctx context.Context, userID, docID uuid.UUID) (*models.User, *models.Document, error) {
	u, doc, err := s.load(ctx, userID, docID)
	if err != nil {
		return nil, nil, err
	}
	if err := s.allow(ctx, u, doc); err != nil {
		return nil, nil, err
	}
	return u, doc, nil
}

// Record counts one successful AI call against u and doc and persists the
// counters as increments.
func Record(ctx context.Context, db *gorm.DB, u *models.User, doc *models.Document) error {
	before := *u
	beforeDoc := doc.AIGenerationsUsed
	doc.RecordAIUsage(u)

	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.User{}).Where("id = ?", u.ID).UpdateColumns(map[string]any{
			"free_ai_generations_used": gorm.Expr("free_ai_generations_used + ?", u.FreeAIGenerationsUsed-before.FreeAIGenerationsUsed),
			"total_ai_generations":     gorm.Expr("total_ai_generations + ?", u.TotalAIGenerations-before.TotalAIGenerations),
		}).Error; err != nil {
			return err
		}
		if doc.ID == uuid.Nil || doc.AIGenerationsUsed == beforeDoc {
			return nil
		}
		return tx.Model(&models.Document{}).Where("id = ?", doc.ID).
			UpdateColumn("ai_generations_used", gorm.Expr("ai_generations_used + ?", doc.AIGenerationsUsed-beforeDoc)).Error
	})
}

func (s *Service) record(ctx context.Context, u *models.User, doc *models.Document) {
	if err := Record(ctx, s.db, u, doc); err != nil {
		s.log.Error(ctx, "record ai usage", err)
	}
}

/* ============================== LLM calls =============================== */

// Complete renders prompt key with values and calls the model once.
func (s *Service) Complete(ctx context.Context, key string, values map[string]string) (string, error) {
	p, user, err := s.prompts.RenderUser(ctx, key, values)
	if err != nil {
		return "", err
	}
	start := time.Now()
	out, err := s.llm.Complete(ctx, llm.Request{
		System:      p.System,
		User:        user,
		Model:       p.Model,
		Temperature: p.Temperature,
		MaxTokens:   p.MaxTokens,
		JSON:        p.JSON,
	})
	if err != nil {
		s.metrics.ObserveLLM(key, "error", time.Since(start))
		s.log.Error(ctx, "llm call "+key, err)
		return "", fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	s.metrics.ObserveLLM(key, "ok", time.Since(start))
	return out, nil
}

// CompleteJSON is Complete followed by ExtractJSON on the reply.
func (s *Service) CompleteJSON(ctx context.Context, key string, values map[string]string) (gjson.Result, error) {
	out, err := s.Complete(ctx, key, values)
	if err != nil {
		return gjson.Result{}, err
	}
	r, err := llm.ExtractJSON(out)
	if err != nil {
		s.log.Warn(ctx, "llm "+key+" returned no JSON")
		return gjson.Result{}, ErrBadModelOutput
	}
	return r, nil
}

// Runner exposes the job runner to callers sharing it (the wizard).
func (s *Service) Runner() *jobs.Runner { return s.runner }

// DuplicateWindow is how long a processing job suppresses a resubmit.
func (s *Service) DuplicateWindow() time.Duration { return s.dupWindow }
