package models

import (
	"time"
)

type Platform string

const (
	PlatformTwitter Platform = "twitter"
	PlatformTikTok  Platform = "tiktok"
)

type Frequency string

const (
	FrequencyHourly Frequency = "hourly"
	FrequencyDaily  Frequency = "daily"
	FrequencyWeekly Frequency = "weekly"
	FrequencyCustom Frequency = "custom"
)

// Schedule is a user-defined recurring posting policy. The scheduler only
// writes LastRun; everything else is owned by the API layer.
type Schedule struct {
	ID               uint        `gorm:"primaryKey" json:"id"`
	UserID           uint        `gorm:"not null;index" json:"user_id"`
	Name             string      `gorm:"not null;size:255" json:"name"`
	Platform         Platform    `gorm:"not null;size:50" json:"platform"`
	Frequency        Frequency   `gorm:"not null;size:20" json:"frequency_type"`
	FrequencyValue   *int        `json:"frequency_value"`
	TimeSlots        StringArray `gorm:"type:text[]" json:"time_slots"`
	IsActive         bool        `gorm:"not null;index" json:"is_active"`
	UseTrendingData  bool        `gorm:"not null" json:"use_trending_data"`
	UseKnowledgeBase bool        `gorm:"not null" json:"use_knowledge_base"`
	ContentTemplate  string      `gorm:"type:text" json:"content_template"`
	LastRun          *time.Time  `json:"last_run"`
	CreatedAt        time.Time   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time   `gorm:"autoUpdateTime" json:"updated_at"`
}

// PublishAccount holds the credentials a platform adapter needs. The
// scheduler never inspects the tokens, it only passes them through.
type PublishAccount struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	UserID           uint       `gorm:"not null;index" json:"user_id"`
	Platform         Platform   `gorm:"not null;size:50;index" json:"platform"`
	PlatformUserID   string     `gorm:"size:255" json:"platform_user_id"`
	PlatformUsername string     `gorm:"size:255" json:"platform_username"`
	AccessToken      string     `gorm:"type:text;not null" json:"-"`
	RefreshToken     string     `gorm:"type:text" json:"-"`
	TokenExpiresAt   *time.Time `json:"token_expires_at"`
	IsActive         bool       `gorm:"not null" json:"is_active"`
	CreatedAt        time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

type KnowledgeDoc struct {
	ID        uint        `gorm:"primaryKey" json:"id"`
	UserID    uint        `gorm:"not null;index" json:"user_id"`
	Title     string      `gorm:"not null;size:500" json:"title"`
	Content   string      `gorm:"type:text;not null" json:"content"`
	SourceURL string      `gorm:"size:1000" json:"source_url"`
	Category  string      `gorm:"size:100" json:"category"`
	Keywords  StringArray `gorm:"type:text[]" json:"keywords"`
	IsActive  bool        `gorm:"not null" json:"is_active"`
	CreatedAt time.Time   `gorm:"autoCreateTime" json:"created_at"`
}
