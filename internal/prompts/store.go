// Package prompts holds the LLM prompt templates: built-in defaults embedded
// from defaults.yaml, overridable per key by an active ai_prompts row.
package prompts

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
	"gorm.io/gorm"

	"github.com/aldoetobex/section1983-backend/pkg/logger"
	"github.com/aldoetobex/section1983-backend/pkg/models"
	"github.com/aldoetobex/section1983-backend/pkg/redis"
)

//go:embed defaults.yaml
var defaultsYAML []byte

var ErrPromptNotFound = errors.New("prompt not found")

const (
	SourceDatabase = "database"
	SourceDefault  = "default"
)

// Prompt is a resolved template ready to render.
type Prompt struct {
	Key         string  `json:"key" yaml:"-"`
	Description string  `json:"description" yaml:"description"`
	System      string  `json:"system" yaml:"system"`
	User        string  `json:"user" yaml:"user"`
	Model       string  `json:"model,omitempty" yaml:"model"`
	Temperature float64 `json:"temperature" yaml:"temperature"`
	MaxTokens   int     `json:"max_tokens" yaml:"max_tokens"`
	JSON        bool    `json:"json" yaml:"json"`
	Source      string  `json:"source" yaml:"-"`
}

// Store resolves prompts by key: active DB override, then embedded default.
type Store struct {
	db       *gorm.DB
	cache    *redis.Client
	ttl      time.Duration
	log      *logger.Logger
	defaults map[string]Prompt
}

func NewStore(db *gorm.DB, cache *redis.Client, ttl time.Duration, log *logger.Logger) (*Store, error) {
	defaults, err := ParseDefaults(defaultsYAML)
	if err != nil {
		return nil, err
	}
	return &Store{db: db, cache: cache, ttl: ttl, log: log, defaults: defaults}, nil
}

// ParseDefaults reads the defaults.yaml layout and checks every template.
func ParseDefaults(data []byte) (map[string]Prompt, error) {
	var doc struct {
		Prompts map[string]Prompt `yaml:"prompts"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse default prompts: %w", err)
	}
	out := make(map[string]Prompt, len(doc.Prompts))
	for key, p := range doc.Prompts {
		p.Key = key
		p.Source = SourceDefault
		if _, err := Placeholders(p.User); err != nil {
			return nil, fmt.Errorf("default prompt %s: %w", key, err)
		}
		if _, err := Placeholders(p.System); err != nil {
			return nil, fmt.Errorf("default prompt %s system: %w", key, err)
		}
		out[key] = p
	}
	return out, nil
}

func fromRow(row models.AIPrompt) Prompt {
	return Prompt{
		Key:         row.Key,
		Description: row.Description,
		System:      row.SystemMessage,
		User:        row.UserTemplate,
		Model:       row.Model,
		Temperature: row.Temperature,
		MaxTokens:   row.MaxTokens,
		JSON:        row.JSONMode,
		Source:      SourceDatabase,
	}
}

// Get returns the prompt for key.
func (s *Store) Get(ctx context.Context, key string) (Prompt, error) {
	cacheKey := s.cache.CacheKey("prompt", key)
	if raw, err := s.cache.Get(ctx, cacheKey); err == nil {
		var p Prompt
		if json.Unmarshal([]byte(raw), &p) == nil {
			return p, nil
		}
	}

	p, err := s.load(ctx, key)
	if err != nil {
		return Prompt{}, err
	}
	if s.cache != nil {
		b, _ := json.Marshal(p)
		if err := s.cache.Set(ctx, cacheKey, string(b), s.ttl); err != nil {
			s.log.Warn(ctx, "prompt cache set failed: "+err.Error())
		}
	}
	return p, nil
}

func (s *Store) load(ctx context.Context, key string) (Prompt, error) {
	var row models.AIPrompt
	err := s.db.WithContext(ctx).Where(&models.AIPrompt{Key: key, IsActive: true}).First(&row).Error
	switch {
	case err == nil:
		return fromRow(row), nil
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return Prompt{}, fmt.Errorf("load prompt %s: %w", key, err)
	}
	if p, ok := s.defaults[key]; ok {
		return p, nil
	}
	return Prompt{}, fmt.Errorf("%w: %s", ErrPromptNotFound, key)
}

// Invalidate drops the cached copy of key.
func (s *Store) Invalidate(ctx context.Context, key string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, s.cache.CacheKey("prompt", key)); err != nil {
		s.log.Warn(ctx, "prompt cache invalidate failed: "+err.Error())
	}
}

// RenderUser fetches key and renders its user template.
func (s *Store) RenderUser(ctx context.Context, key string, values map[string]string) (Prompt, string, error) {
	p, err := s.Get(ctx, key)
	if err != nil {
		return Prompt{}, "", err
	}
	out, err := Render(p.User, values)
	if err != nil {
		return Prompt{}, "", fmt.Errorf("render prompt %s: %w", key, err)
	}
	return p, out, nil
}

// Default returns the built-in prompt for key.
func (s *Store) Default(key string) (Prompt, bool) {
	p, ok := s.defaults[key]
	return p, ok
}

// DefaultKeys lists built-in keys, sorted.
func (s *Store) DefaultKeys() []string {
	keys := make([]string, 0, len(s.defaults))
	for k := range s.defaults {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
