package service

import (
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ifuryst/postpilot/internal/models"
)

const (
	MetricPublishSuccess = "publish_success"
	MetricPublishFailure = "publish_failure"
)

// MonitoringService persists error logs, metric samples and daily
// per-platform post statistics.
type MonitoringService struct {
	db     *gorm.DB
	logger *zap.Logger
	now    func() time.Time
}

func NewMonitoringService(db *gorm.DB, logger *zap.Logger) *MonitoringService {
	return &MonitoringService{
		db:     db,
		logger: logger,
		now:    time.Now,
	}
}

// RecordError 记录错误日志
func (m *MonitoringService) RecordError(level, source, title, message string, options ...ErrorLogOption) error {
	errorLog := &models.ErrorLog{
		Level:   level,
		Source:  source,
		Title:   title,
		Message: message,
		Context: "{}",
	}

	for _, option := range options {
		option(errorLog)
	}

	return m.db.Create(errorLog).Error
}

// ErrorLogOption 错误日志选项
type ErrorLogOption func(*models.ErrorLog)

func WithPlatform(platform string) ErrorLogOption {
	return func(e *models.ErrorLog) {
		e.Platform = models.Platform(platform)
	}
}

func WithSchedule(scheduleID uint) ErrorLogOption {
	return func(e *models.ErrorLog) {
		e.ScheduleID = &scheduleID
	}
}

func WithPost(postID uint) ErrorLogOption {
	return func(e *models.ErrorLog) {
		e.PostID = &postID
	}
}

func WithFiring(firingID string) ErrorLogOption {
	return func(e *models.ErrorLog) {
		e.FiringID = firingID
	}
}

// WithContext 设置上下文信息
func WithContext(context map[string]interface{}) ErrorLogOption {
	return func(e *models.ErrorLog) {
		if contextBytes, err := json.Marshal(context); err == nil {
			e.Context = string(contextBytes)
		}
	}
}

// RecordFiringError stores a firing failure. Storage errors are logged only,
// a firing never fails because monitoring did.
func (m *MonitoringService) RecordFiringError(scheduleID uint, firingID, platform, title string, err error) {
	message := "unknown error"
	if err != nil {
		message = err.Error()
	}

	opts := []ErrorLogOption{WithSchedule(scheduleID), WithFiring(firingID)}
	if platform != "" {
		opts = append(opts, WithPlatform(platform))
	}

	if recErr := m.RecordError("ERROR", "scheduler", title, message, opts...); recErr != nil {
		m.logger.Warn("Failed to record firing error",
			zap.String("firing_id", firingID),
			zap.Error(recErr))
	}
}

func (m *MonitoringService) RecordPublishOutcome(platform string, success bool) {
	name := MetricPublishSuccess
	if !success {
		name = MetricPublishFailure
	}
	if err := m.RecordMetric(name, "counter", 1, map[string]interface{}{"platform": platform}); err != nil {
		m.logger.Warn("Failed to record publish metric", zap.String("metric", name), zap.Error(err))
	}
}

// RecordMetric 记录指标数据
func (m *MonitoringService) RecordMetric(name, metricType string, value float64, tags map[string]interface{}) error {
	tagsJSON := "{}"
	if tags != nil {
		if tagsBytes, err := json.Marshal(tags); err == nil {
			tagsJSON = string(tagsBytes)
		}
	}

	metric := &models.MetricsSample{
		MetricName: name,
		MetricType: metricType,
		Value:      value,
		Tags:       tagsJSON,
		Timestamp:  m.now(),
	}

	return m.db.Create(metric).Error
}

type platformCounts struct {
	Platform       models.Platform
	TotalPosts     int
	PostedPosts    int
	FailedPosts    int
	ScheduledPosts int
	LastSuccessAt  *time.Time
	LastFailureAt  *time.Time
}

// UpdatePlatformStats 更新平台统计数据
func (m *MonitoringService) UpdatePlatformStats() error {
	today := m.now().UTC().Truncate(24 * time.Hour)

	var counts []platformCounts
	if err := m.db.Model(&models.GeneratedPost{}).
		Select(`platform,
			COUNT(*) AS total_posts,
			COUNT(*) FILTER (WHERE status = ?) AS posted_posts,
			COUNT(*) FILTER (WHERE status = ?) AS failed_posts,
			COUNT(*) FILTER (WHERE status = ?) AS scheduled_posts,
			MAX(posted_at) AS last_success_at,
			MAX(updated_at) FILTER (WHERE status = ?) AS last_failure_at`,
			models.PostStatusPosted, models.PostStatusFailed, models.PostStatusScheduled, models.PostStatusFailed).
		Where("created_at >= ?", today).
		Group("platform").
		Scan(&counts).Error; err != nil {
		return fmt.Errorf("failed to count posts: %w", err)
	}

	for _, c := range counts {
		stats := models.PlatformStats{
			Date:           today,
			Platform:       c.Platform,
			TotalPosts:     c.TotalPosts,
			PostedPosts:    c.PostedPosts,
			FailedPosts:    c.FailedPosts,
			ScheduledPosts: c.ScheduledPosts,
			LastSuccessAt:  c.LastSuccessAt,
			LastFailureAt:  c.LastFailureAt,
		}
		if err := m.db.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "date"}, {Name: "platform"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"total_posts", "posted_posts", "failed_posts", "scheduled_posts",
				"last_success_at", "last_failure_at", "updated_at",
			}),
		}).Create(&stats).Error; err != nil {
			return fmt.Errorf("failed to upsert %s stats: %w", c.Platform, err)
		}
	}

	return nil
}

// GetRecentErrors 获取最近的错误日志
func (m *MonitoringService) GetRecentErrors(limit int) ([]models.ErrorLog, error) {
	var logs []models.ErrorLog
	err := m.db.Order("created_at desc").
		Limit(limit).
		Find(&logs).Error
	return logs, err
}

// GetPlatformStats 获取平台统计数据
func (m *MonitoringService) GetPlatformStats(days int) ([]models.PlatformStats, error) {
	var stats []models.PlatformStats
	startDate := m.now().UTC().AddDate(0, 0, -days).Truncate(24 * time.Hour)

	err := m.db.Where("date >= ?", startDate).
		Order("date desc, platform").
		Find(&stats).Error
	return stats, err
}

// CleanupOldData 清理旧数据
func (m *MonitoringService) CleanupOldData(daysToKeep int) error {
	cutoffDate := m.now().AddDate(0, 0, -daysToKeep)

	if err := m.db.Where("timestamp < ?", cutoffDate).Delete(&models.MetricsSample{}).Error; err != nil {
		return fmt.Errorf("failed to cleanup metrics samples: %w", err)
	}

	if err := m.db.Where("date < ?", cutoffDate).Delete(&models.PlatformStats{}).Error; err != nil {
		return fmt.Errorf("failed to cleanup platform stats: %w", err)
	}

	if err := m.db.Where("created_at < ? AND resolved = ?", cutoffDate, true).Delete(&models.ErrorLog{}).Error; err != nil {
		return fmt.Errorf("failed to cleanup resolved errors: %w", err)
	}

	return nil
}
