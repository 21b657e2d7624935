package publisher

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/ifuryst/postpilot/internal/models"
)

var (
	// ErrUnsupportedContent is returned when a platform structurally cannot
	// publish the given content, before any network call is made.
	ErrUnsupportedContent = errors.New("unsupported content")
	ErrUnknownPlatform    = errors.New("no publisher registered for platform")
)

// PublishError is the normalized failure of a publish attempt.
type PublishError struct {
	Platform string
	Err      error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish to %s: %v", e.Platform, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }

// Reason is the adapter's own failure text, stored on the failed post.
func (e *PublishError) Reason() string {
	if e.Err == nil {
		return "unknown error"
	}
	return e.Err.Error()
}

// PublishContent represents the content to be published
type PublishContent struct {
	ID        string            `json:"id"`
	Content   string            `json:"content"`
	Tags      []string          `json:"tags"`
	Metadata  map[string]string `json:"metadata"`
	Resources []Resource        `json:"resources"`
}

// Resource represents a media resource (image, video, etc.)
type Resource struct {
	ID       string            `json:"id"`
	Type     ResourceType      `json:"type"`
	URL      string            `json:"url"`
	Metadata map[string]string `json:"metadata"`
}

type ResourceType string

const (
	ResourceTypeImage ResourceType = "image"
	ResourceTypeVideo ResourceType = "video"
)

// Credentials are passed through from the publish account untouched.
type Credentials struct {
	PlatformUserID string
	Username       string
	AccessToken    string
	RefreshToken   string
	ExpiresAt      *time.Time
}

// PublishResult represents the result of a publish operation
type PublishResult struct {
	PostID      string            `json:"post_id"`
	URL         string            `json:"url,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	PublishedAt time.Time         `json:"published_at"`
}

// Publisher is implemented once per platform.
type Publisher interface {
	GetPlatformName() string

	// ValidateContent reports ErrUnsupportedContent for content the platform
	// can never accept.
	ValidateContent(content PublishContent) error
	PublishDirect(ctx context.Context, content PublishContent, creds Credentials) (*PublishResult, error)
}

// FromGeneratedPost converts a stored post into publishable content.
func FromGeneratedPost(post *models.GeneratedPost) PublishContent {
	metadata := map[string]string{
		"post_id": strconv.FormatUint(uint64(post.ID), 10),
	}
	if post.FiringID != "" {
		metadata["firing_id"] = post.FiringID
	}
	if post.ScheduleID != nil {
		metadata["schedule_id"] = strconv.FormatUint(uint64(*post.ScheduleID), 10)
	}

	return PublishContent{
		ID:        metadata["post_id"],
		Content:   post.Content,
		Metadata:  metadata,
		Resources: []Resource{},
	}
}

func CredentialsFromAccount(account *models.PublishAccount) Credentials {
	return Credentials{
		PlatformUserID: account.PlatformUserID,
		Username:       account.PlatformUsername,
		AccessToken:    account.AccessToken,
		RefreshToken:   account.RefreshToken,
		ExpiresAt:      account.TokenExpiresAt,
	}
}
