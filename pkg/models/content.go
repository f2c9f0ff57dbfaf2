package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// CaseLaw is a curated precedent shown next to the rights a user selects.
type CaseLaw struct {
	Base
	Name     string `gorm:"not null" json:"name"`
	Citation string `gorm:"not null" json:"citation"`
	Court    string `json:"court"`
	Year     int    `json:"year"`
	Category string `gorm:"type:varchar(40);not null;index" json:"category"`
	Summary  string `gorm:"type:text" json:"summary"`
	Holding  string `gorm:"type:text" json:"holding"`
	Keywords string `json:"keywords"`
	IsActive bool   `gorm:"not null" json:"is_active"`
}

// AIPrompt overrides the built-in prompt with the same Key.
type AIPrompt struct {
	Base
	Key           string  `gorm:"type:varchar(60);uniqueIndex;not null" json:"key"`
	Description   string  `json:"description"`
	SystemMessage string  `gorm:"type:text;not null" json:"system_message"`
	UserTemplate  string  `gorm:"type:text;not null" json:"user_template"`
	Model         string  `json:"model"`
	Temperature   float64 `gorm:"not null;default:0" json:"temperature"`
	MaxTokens     int     `gorm:"not null;default:0" json:"max_tokens"`
	JSONMode      bool    `gorm:"not null;default:false" json:"json_mode"`
	IsActive      bool    `gorm:"not null" json:"is_active"`
}

// TranscriptJob tracks a video transcription request for an evidence item.
type TranscriptJob struct {
	Base
	EvidenceID    uuid.UUID `gorm:"type:uuid;not null;index" json:"evidence_id"`
	DocumentID    uuid.UUID `gorm:"type:uuid;not null;index" json:"document_id"`
	VideoURL      string    `gorm:"not null" json:"video_url"`
	ProviderJobID string    `json:"provider_job_id"`
	Status        JobStatus `gorm:"type:varchar(20);not null;default:'processing'" json:"status"`
	Transcript    string    `gorm:"type:text" json:"transcript"`
	Error         string    `gorm:"type:text" json:"error"`
}

// WizardSession is the mobile one-story-at-a-time flow. StepData is keyed by
// step number ("1".."7") and holds whatever fields the client sent.
type WizardSession struct {
	Base
	UserID          uuid.UUID         `gorm:"type:uuid;not null;index" json:"user_id"`
	DocumentID      *uuid.UUID        `gorm:"type:uuid" json:"document_id,omitempty"`
	CurrentStep     int               `gorm:"not null;default:1" json:"current_step"`
	ProgressPercent int               `gorm:"not null;default:0" json:"progress_percent"`
	StepData        datatypes.JSONMap `json:"step_data"`

	StoryStatus    JobStatus      `gorm:"type:varchar(20);not null;default:'idle'" json:"story_status"`
	StoryError     string         `gorm:"type:text" json:"story_error,omitempty"`
	StoryStartedAt *time.Time     `json:"story_started_at,omitempty"`
	StoryResult    datatypes.JSON `json:"story_result,omitempty"`

	AnalysisStatus    JobStatus      `gorm:"type:varchar(20);not null;default:'idle'" json:"analysis_status"`
	AnalysisError     string         `gorm:"type:text" json:"analysis_error,omitempty"`
	AnalysisStartedAt *time.Time     `json:"analysis_started_at,omitempty"`
	AnalysisResult    datatypes.JSON `json:"analysis_result,omitempty"`

	CompletedAt *time.Time `json:"completed_at,omitempty"`
}
