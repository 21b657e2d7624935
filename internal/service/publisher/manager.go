package publisher

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ifuryst/postpilot/internal/models"
)

type registration struct {
	publisher Publisher
	limiter   *rate.Limiter
}

// Manager routes a post to the publisher registered for its account's
// platform and normalizes every failure into a *PublishError.
type Manager struct {
	mu         sync.RWMutex
	publishers map[string]registration
	logger     *zap.Logger
	now        func() time.Time
}

func NewPublishManager(logger *zap.Logger) *Manager {
	return &Manager{
		publishers: make(map[string]registration),
		logger:     logger,
		now:        time.Now,
	}
}

// RegisterPublisher adds a platform adapter. ratePerMinute <= 0 disables
// client-side rate limiting for that platform.
func (m *Manager) RegisterPublisher(publisher Publisher, ratePerMinute float64) error {
	platformName := publisher.GetPlatformName()

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.publishers[platformName]; exists {
		return errors.Newf("publisher for platform %s already registered", platformName)
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if ratePerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(ratePerMinute/60), 1)
	}

	m.publishers[platformName] = registration{publisher: publisher, limiter: limiter}
	m.logger.Info("Publisher registered",
		zap.String("platform", platformName),
		zap.Float64("rate_per_minute", ratePerMinute))
	return nil
}

func (m *Manager) GetPublisher(platformName string) (Publisher, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	reg, exists := m.publishers[platformName]
	if !exists {
		return nil, errors.Wrapf(ErrUnknownPlatform, "%s", platformName)
	}
	return reg.publisher, nil
}

func (m *Manager) Platforms() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.publishers))
	for name := range m.publishers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Publish sends post through the adapter selected by account.Platform.
func (m *Manager) Publish(ctx context.Context, post *models.GeneratedPost, account *models.PublishAccount) (*PublishResult, error) {
	platformName := string(account.Platform)
	fail := func(err error) (*PublishResult, error) {
		return nil, &PublishError{Platform: platformName, Err: err}
	}

	if post.Platform != "" && post.Platform != account.Platform {
		return fail(errors.Newf("post platform %s does not match account platform %s", post.Platform, account.Platform))
	}

	m.mu.RLock()
	reg, exists := m.publishers[platformName]
	m.mu.RUnlock()
	if !exists {
		return fail(ErrUnknownPlatform)
	}

	content := FromGeneratedPost(post)
	if err := reg.publisher.ValidateContent(content); err != nil {
		return fail(err)
	}

	if err := reg.limiter.Wait(ctx); err != nil {
		return fail(errors.Wrap(err, "rate limiter"))
	}

	start := m.now()
	result, err := reg.publisher.PublishDirect(ctx, content, CredentialsFromAccount(account))
	if err != nil {
		m.logger.Warn("Publish failed",
			zap.String("platform", platformName),
			zap.Uint("post_id", post.ID),
			zap.Duration("elapsed", m.now().Sub(start)),
			zap.Error(err))
		return fail(err)
	}
	if result == nil || result.PostID == "" {
		return fail(errors.New("platform returned no post id"))
	}
	if result.PublishedAt.IsZero() {
		result.PublishedAt = m.now()
	}

	m.logger.Info("Publish succeeded",
		zap.String("platform", platformName),
		zap.Uint("post_id", post.ID),
		zap.String("platform_post_id", result.PostID),
		zap.Duration("elapsed", m.now().Sub(start)))
	return result, nil
}
