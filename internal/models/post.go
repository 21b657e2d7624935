package models

import (
	"time"
)

type PostStatus string

const (
	PostStatusDraft     PostStatus = "draft"
	PostStatusScheduled PostStatus = "scheduled"
	PostStatusPosted    PostStatus = "posted"
	PostStatusFailed    PostStatus = "failed"
)

// Terminal reports whether no further transition is allowed.
func (s PostStatus) Terminal() bool {
	return s == PostStatusPosted || s == PostStatusFailed
}

// CanTransition allows only draft/scheduled -> posted|failed and draft -> scheduled.
func (s PostStatus) CanTransition(to PostStatus) bool {
	switch s {
	case PostStatusDraft:
		return to == PostStatusScheduled || to == PostStatusPosted || to == PostStatusFailed
	case PostStatusScheduled:
		return to == PostStatusPosted || to == PostStatusFailed
	default:
		return false
	}
}

type GeneratedPost struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	UserID           uint       `gorm:"not null;index" json:"user_id"`
	AccountID        uint       `gorm:"not null;index" json:"social_account_id"`
	ScheduleID       *uint      `gorm:"index" json:"schedule_id"`
	FiringID         string     `gorm:"size:64;index" json:"firing_id"`
	Content          string     `gorm:"type:text;not null" json:"content"`
	Platform         Platform   `gorm:"not null;size:50" json:"platform"`
	Status           PostStatus `gorm:"not null;size:20;index" json:"status"`
	ScheduledAt      *time.Time `json:"scheduled_at"`
	PostedAt         *time.Time `json:"posted_at"`
	PlatformPostID   string     `gorm:"size:255" json:"platform_post_id"`
	PlatformPostURL  string     `gorm:"size:1000" json:"platform_post_url"`
	ErrorMessage     string     `gorm:"type:text" json:"error_message"`
	AIGenerated      bool       `gorm:"not null" json:"ai_generated"`
	GenerationPrompt string     `gorm:"type:text" json:"generation_prompt"`
	CreatedAt        time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// PostStatusUpdate is the terminal outcome written back after a publish attempt.
type PostStatusUpdate struct {
	Status          PostStatus
	PostedAt        *time.Time
	PlatformPostID  string
	PlatformPostURL string
	ErrorMessage    string
}
