package publisher

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ifuryst/postpilot/internal/models"
)

type stubPublisher struct {
	name        string
	validateErr error
	result      *PublishResult
	err         error
	got         PublishContent
	creds       Credentials
	calls       int
}

func (s *stubPublisher) GetPlatformName() string { return s.name }

func (s *stubPublisher) ValidateContent(content PublishContent) error { return s.validateErr }

func (s *stubPublisher) PublishDirect(ctx context.Context, content PublishContent, creds Credentials) (*PublishResult, error) {
	s.calls++
	s.got = content
	s.creds = creds
	return s.result, s.err
}

func twitterAccount() *models.PublishAccount {
	return &models.PublishAccount{ID: 7, UserID: 1, Platform: models.PlatformTwitter, AccessToken: "tok", PlatformUsername: "alice"}
}

func TestManager_RegisterDuplicate(t *testing.T) {
	m := NewPublishManager(zap.NewNop())
	require.NoError(t, m.RegisterPublisher(&stubPublisher{name: "twitter"}, 0))
	assert.Error(t, m.RegisterPublisher(&stubPublisher{name: "twitter"}, 0))
	assert.Equal(t, []string{"twitter"}, m.Platforms())
}

func TestManager_PublishRoutesByAccountPlatform(t *testing.T) {
	tw := &stubPublisher{name: "twitter", result: &PublishResult{PostID: "123", URL: "https://x/123"}}
	tt := &stubPublisher{name: "tiktok"}
	m := NewPublishManager(zap.NewNop())
	require.NoError(t, m.RegisterPublisher(tw, 60))
	require.NoError(t, m.RegisterPublisher(tt, 0))

	scheduleID := uint(3)
	post := &models.GeneratedPost{ID: 11, ScheduleID: &scheduleID, FiringID: "f-1", Content: "Hello world #test", Platform: models.PlatformTwitter}

	result, err := m.Publish(context.Background(), post, twitterAccount())
	require.NoError(t, err)
	assert.Equal(t, "123", result.PostID)
	assert.False(t, result.PublishedAt.IsZero())

	assert.Equal(t, 1, tw.calls)
	assert.Equal(t, 0, tt.calls)
	assert.Equal(t, "Hello world #test", tw.got.Content)
	assert.Equal(t, "3", tw.got.Metadata["schedule_id"])
	assert.Equal(t, "f-1", tw.got.Metadata["firing_id"])
	assert.Equal(t, "tok", tw.creds.AccessToken)
	assert.Equal(t, "alice", tw.creds.Username)
}

func TestManager_PublishErrorsAreNormalized(t *testing.T) {
	post := &models.GeneratedPost{ID: 1, Content: "hi", Platform: models.PlatformTwitter}

	t.Run("adapter failure keeps its reason", func(t *testing.T) {
		m := NewPublishManager(zap.NewNop())
		require.NoError(t, m.RegisterPublisher(&stubPublisher{name: "twitter", err: errors.New("rate limited")}, 0))

		_, err := m.Publish(context.Background(), post, twitterAccount())
		var pubErr *PublishError
		require.True(t, errors.As(err, &pubErr))
		assert.Equal(t, "twitter", pubErr.Platform)
		assert.Equal(t, "rate limited", pubErr.Reason())
	})

	t.Run("unsupported content skips the adapter call", func(t *testing.T) {
		stub := &stubPublisher{name: "twitter", validateErr: errors.Wrap(ErrUnsupportedContent, "too long")}
		m := NewPublishManager(zap.NewNop())
		require.NoError(t, m.RegisterPublisher(stub, 0))

		_, err := m.Publish(context.Background(), post, twitterAccount())
		assert.True(t, errors.Is(err, ErrUnsupportedContent))
		assert.Equal(t, 0, stub.calls)
	})

	t.Run("unknown platform", func(t *testing.T) {
		m := NewPublishManager(zap.NewNop())
		_, err := m.Publish(context.Background(), post, twitterAccount())
		assert.True(t, errors.Is(err, ErrUnknownPlatform))
	})

	t.Run("platform mismatch", func(t *testing.T) {
		m := NewPublishManager(zap.NewNop())
		require.NoError(t, m.RegisterPublisher(&stubPublisher{name: "tiktok"}, 0))
		account := &models.PublishAccount{Platform: models.PlatformTikTok}

		_, err := m.Publish(context.Background(), post, account)
		var pubErr *PublishError
		assert.True(t, errors.As(err, &pubErr))
	})

	t.Run("missing post id", func(t *testing.T) {
		m := NewPublishManager(zap.NewNop())
		require.NoError(t, m.RegisterPublisher(&stubPublisher{name: "twitter", result: &PublishResult{}}, 0))

		_, err := m.Publish(context.Background(), post, twitterAccount())
		assert.Error(t, err)
	})

	t.Run("cancelled while waiting for the limiter", func(t *testing.T) {
		stub := &stubPublisher{name: "twitter", result: &PublishResult{PostID: "1"}}
		m := NewPublishManager(zap.NewNop())
		require.NoError(t, m.RegisterPublisher(stub, 1))

		_, err := m.Publish(context.Background(), post, twitterAccount())
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err = m.Publish(ctx, post, twitterAccount())
		assert.Error(t, err)
		assert.Equal(t, 1, stub.calls)
	})
}

func TestPublishError_Reason(t *testing.T) {
	assert.Equal(t, "unknown error", (&PublishError{Platform: "x"}).Reason())
	assert.Equal(t, "publish to x: boom", (&PublishError{Platform: "x", Err: errors.New("boom")}).Error())
}
