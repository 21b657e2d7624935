package models

import (
	"time"
)

// PlatformStats holds per-day post counts for one platform.
type PlatformStats struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	Date           time.Time  `gorm:"uniqueIndex:idx_platform_stats_day;not null" json:"date"`
	Platform       Platform   `gorm:"uniqueIndex:idx_platform_stats_day;size:50;not null" json:"platform"`
	TotalPosts     int        `gorm:"default:0" json:"total_posts"`
	PostedPosts    int        `gorm:"default:0" json:"posted_posts"`
	FailedPosts    int        `gorm:"default:0" json:"failed_posts"`
	ScheduledPosts int        `gorm:"default:0" json:"scheduled_posts"`
	LastSuccessAt  *time.Time `json:"last_success_at"`
	LastFailureAt  *time.Time `json:"last_failure_at"`
	CreatedAt      time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// ErrorLog records a failure that did not reach a post row (or explains one
// that did).
type ErrorLog struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	Level      string     `gorm:"size:20;not null;index" json:"level"`   // ERROR, WARN
	Source     string     `gorm:"size:100;not null;index" json:"source"` // scheduler, publisher, generator
	Platform   Platform   `gorm:"size:50;index" json:"platform"`
	ScheduleID *uint      `gorm:"index" json:"schedule_id"`
	PostID     *uint      `gorm:"index" json:"post_id"`
	FiringID   string     `gorm:"size:64;index" json:"firing_id"`
	Title      string     `gorm:"size:500;not null" json:"title"`
	Message    string     `gorm:"type:text;not null" json:"message"`
	Context    string     `gorm:"type:jsonb" json:"context"`
	Resolved   bool       `gorm:"default:false;index" json:"resolved"`
	ResolvedAt *time.Time `json:"resolved_at"`
	CreatedAt  time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
}

type MetricsSample struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	MetricName string    `gorm:"size:100;not null;index" json:"metric_name"`
	MetricType string    `gorm:"size:50;not null" json:"metric_type"` // gauge, counter
	Value      float64   `gorm:"not null" json:"value"`
	Tags       string    `gorm:"type:jsonb" json:"tags"`
	Timestamp  time.Time `gorm:"not null;index" json:"timestamp"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
}
