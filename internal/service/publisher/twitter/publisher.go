package twitter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/ifuryst/postpilot/internal/service/publisher"
)

const (
	PlatformName   = "twitter"
	DefaultBaseURL = "https://api.twitter.com"
	MaxTweetLength = 280
)

// TwitterPublisher posts text tweets through the v2 API.
type TwitterPublisher struct {
	logger  *zap.Logger
	client  *http.Client
	baseURL string
}

type createTweetRequest struct {
	Text string `json:"text"`
}

type createTweetResponse struct {
	Data struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

func NewTwitterPublisher(baseURL string, timeout time.Duration, logger *zap.Logger) *TwitterPublisher {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &TwitterPublisher{
		logger:  logger,
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

func (p *TwitterPublisher) GetPlatformName() string {
	return PlatformName
}

func (p *TwitterPublisher) ValidateContent(content publisher.PublishContent) error {
	text := strings.TrimSpace(content.Content)
	if text == "" {
		return errors.Wrap(publisher.ErrUnsupportedContent, "tweet text is empty")
	}
	if n := utf8.RuneCountInString(text); n > MaxTweetLength {
		return errors.Wrapf(publisher.ErrUnsupportedContent, "tweet is %d characters, limit is %d", n, MaxTweetLength)
	}
	return nil
}

func (p *TwitterPublisher) PublishDirect(ctx context.Context, content publisher.PublishContent, creds publisher.Credentials) (*publisher.PublishResult, error) {
	if creds.AccessToken == "" {
		return nil, errors.New("missing twitter access token")
	}

	body, err := json.Marshal(createTweetRequest{Text: strings.TrimSpace(content.Content)})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal tweet: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/2/tweets", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+creds.AccessToken)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, errors.New("rate limited")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errors.Newf("twitter api returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var out createTweetResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if out.Data.ID == "" {
		if len(out.Errors) > 0 {
			return nil, errors.Newf("twitter api error: %s", out.Errors[0].Message)
		}
		return nil, errors.New("twitter api returned no tweet id")
	}

	p.logger.Debug("Tweet created", zap.String("tweet_id", out.Data.ID))

	return &publisher.PublishResult{
		PostID:      out.Data.ID,
		URL:         fmt.Sprintf("https://twitter.com/i/status/%s", out.Data.ID),
		PublishedAt: time.Now(),
	}, nil
}
