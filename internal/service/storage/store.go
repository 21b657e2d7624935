// Package storage is the gorm-backed repository for schedules, publish
// accounts, generated posts and knowledge documents.
package storage

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"gorm.io/gorm"

	"github.com/ifuryst/postpilot/internal/models"
)

var (
	ErrNotFound          = errors.New("record not found")
	ErrUnavailable       = errors.New("storage unavailable")
	ErrInvalidTransition = errors.New("invalid post status transition")
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// classify marks gorm errors with the package sentinels so callers can branch
// on errors.Is without knowing about gorm.
func classify(err error, op string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errors.Mark(errors.Wrap(err, op), ErrNotFound)
	}
	return errors.Mark(errors.Wrap(err, op), ErrUnavailable)
}

func (s *Store) GetSchedule(ctx context.Context, id uint) (*models.Schedule, error) {
	var schedule models.Schedule
	if err := s.db.WithContext(ctx).First(&schedule, id).Error; err != nil {
		return nil, classify(err, "get schedule")
	}
	return &schedule, nil
}

func (s *Store) ListActiveSchedules(ctx context.Context) ([]models.Schedule, error) {
	var schedules []models.Schedule
	if err := s.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("id").
		Find(&schedules).Error; err != nil {
		return nil, classify(err, "list active schedules")
	}
	return schedules, nil
}

func (s *Store) ListSchedules(ctx context.Context, userID uint) ([]models.Schedule, error) {
	var schedules []models.Schedule
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id").
		Find(&schedules).Error; err != nil {
		return nil, classify(err, "list schedules")
	}
	return schedules, nil
}

func (s *Store) CreateSchedule(ctx context.Context, schedule *models.Schedule) error {
	return classify(s.db.WithContext(ctx).Create(schedule).Error, "create schedule")
}

// SetScheduleActive flips the active flag and returns the updated row.
func (s *Store) SetScheduleActive(ctx context.Context, id uint, active bool) (*models.Schedule, error) {
	result := s.db.WithContext(ctx).
		Model(&models.Schedule{}).
		Where("id = ?", id).
		Update("is_active", active)
	if result.Error != nil {
		return nil, classify(result.Error, "set schedule active")
	}
	if result.RowsAffected == 0 {
		return nil, errors.Wrapf(ErrNotFound, "schedule %d", id)
	}
	return s.GetSchedule(ctx, id)
}

func (s *Store) DeleteSchedule(ctx context.Context, id uint) error {
	result := s.db.WithContext(ctx).Delete(&models.Schedule{}, id)
	if result.Error != nil {
		return classify(result.Error, "delete schedule")
	}
	if result.RowsAffected == 0 {
		return errors.Wrapf(ErrNotFound, "schedule %d", id)
	}
	return nil
}

func (s *Store) UpdateLastRun(ctx context.Context, id uint, ts time.Time) error {
	result := s.db.WithContext(ctx).
		Model(&models.Schedule{}).
		Where("id = ?", id).
		Update("last_run", ts)
	if result.Error != nil {
		return classify(result.Error, "update last run")
	}
	if result.RowsAffected == 0 {
		return errors.Wrapf(ErrNotFound, "schedule %d", id)
	}
	return nil
}

func (s *Store) GetActiveAccount(ctx context.Context, userID uint, platform models.Platform) (*models.PublishAccount, error) {
	var account models.PublishAccount
	if err := s.db.WithContext(ctx).
		Where("user_id = ? AND platform = ? AND is_active = ?", userID, platform, true).
		Order("id").
		First(&account).Error; err != nil {
		return nil, classify(err, "get active account")
	}
	return &account, nil
}

func (s *Store) CreatePost(ctx context.Context, post *models.GeneratedPost) error {
	return classify(s.db.WithContext(ctx).Create(post).Error, "create post")
}

// UpdatePostStatus moves a draft or scheduled post to a terminal state. Posts
// that are already terminal are left untouched and ErrInvalidTransition is
// returned.
func (s *Store) UpdatePostStatus(ctx context.Context, id uint, update models.PostStatusUpdate) error {
	if !update.Status.Terminal() {
		return errors.Wrapf(ErrInvalidTransition, "target status %q", update.Status)
	}

	fields := map[string]interface{}{
		"status":            update.Status,
		"error_message":     update.ErrorMessage,
		"platform_post_id":  update.PlatformPostID,
		"platform_post_url": update.PlatformPostURL,
	}
	if update.PostedAt != nil {
		fields["posted_at"] = *update.PostedAt
	}

	result := s.db.WithContext(ctx).
		Model(&models.GeneratedPost{}).
		Where("id = ? AND status IN ?", id, []models.PostStatus{models.PostStatusDraft, models.PostStatusScheduled}).
		Updates(fields)
	if result.Error != nil {
		return classify(result.Error, "update post status")
	}
	if result.RowsAffected == 0 {
		return errors.Wrapf(ErrInvalidTransition, "post %d", id)
	}
	return nil
}

// PostFilter narrows ListPosts. Zero fields match everything.
type PostFilter struct {
	UserID   uint
	Status   models.PostStatus
	Platform models.Platform
	Limit    int
}

// ListPosts returns post history newest first.
func (s *Store) ListPosts(ctx context.Context, filter PostFilter) ([]models.GeneratedPost, error) {
	query := s.db.WithContext(ctx).Where("user_id = ?", filter.UserID)
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Platform != "" {
		query = query.Where("platform = ?", filter.Platform)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var posts []models.GeneratedPost
	if err := query.Order("created_at DESC").Find(&posts).Error; err != nil {
		return nil, classify(err, "list posts")
	}
	return posts, nil
}

// FailStalePosts fails scheduled posts created before the cutoff. They belong
// to firings that a previous process never finished.
func (s *Store) FailStalePosts(ctx context.Context, before time.Time, reason string) (int64, error) {
	result := s.db.WithContext(ctx).
		Model(&models.GeneratedPost{}).
		Where("status = ? AND created_at < ?", models.PostStatusScheduled, before).
		Updates(map[string]interface{}{
			"status":        models.PostStatusFailed,
			"error_message": reason,
		})
	if result.Error != nil {
		return 0, classify(result.Error, "fail stale posts")
	}
	return result.RowsAffected, nil
}

func (s *Store) ListKnowledgeSnippets(ctx context.Context, userID uint, limit int) ([]string, error) {
	var snippets []string
	if err := s.db.WithContext(ctx).
		Model(&models.KnowledgeDoc{}).
		Where("user_id = ? AND is_active = ?", userID, true).
		Order("id").
		Limit(limit).
		Pluck("content", &snippets).Error; err != nil {
		return nil, classify(err, "list knowledge snippets")
	}
	return snippets, nil
}

func (s *Store) ListKnowledgeDocs(ctx context.Context, userID uint) ([]models.KnowledgeDoc, error) {
	var docs []models.KnowledgeDoc
	if err := s.db.WithContext(ctx).
		Where("user_id = ? AND is_active = ?", userID, true).
		Order("id").
		Find(&docs).Error; err != nil {
		return nil, classify(err, "list knowledge docs")
	}
	return docs, nil
}

func (s *Store) CreateKnowledgeDoc(ctx context.Context, doc *models.KnowledgeDoc) error {
	return classify(s.db.WithContext(ctx).Create(doc).Error, "create knowledge doc")
}

func (s *Store) DeleteKnowledgeDoc(ctx context.Context, id uint) error {
	result := s.db.WithContext(ctx).Delete(&models.KnowledgeDoc{}, id)
	if result.Error != nil {
		return classify(result.Error, "delete knowledge doc")
	}
	if result.RowsAffected == 0 {
		return errors.Wrapf(ErrNotFound, "knowledge doc %d", id)
	}
	return nil
}

// UpsertKnowledgeDoc inserts doc, or refreshes the row with the same owner and
// source url. It reports whether a new row was created.
func (s *Store) UpsertKnowledgeDoc(ctx context.Context, doc *models.KnowledgeDoc) (bool, error) {
	var existing models.KnowledgeDoc
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND source_url = ?", doc.UserID, doc.SourceURL).
		First(&existing).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return true, classify(s.db.WithContext(ctx).Create(doc).Error, "create knowledge doc")
	case err != nil:
		return false, classify(err, "find knowledge doc")
	}

	doc.ID = existing.ID
	err = s.db.WithContext(ctx).
		Model(&models.KnowledgeDoc{}).
		Where("id = ?", existing.ID).
		Updates(map[string]interface{}{
			"title":     doc.Title,
			"content":   doc.Content,
			"category":  doc.Category,
			"keywords":  doc.Keywords,
			"is_active": doc.IsActive,
		}).Error
	return false, classify(err, "update knowledge doc")
}
