// Package trending scrapes trending topics used as optional generation context.
package trending

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ifuryst/postpilot/pkg/util"
)

type Topic struct {
	Platform    string    `json:"platform"`
	Topic       string    `json:"topic"`
	Description string    `json:"description"`
	URL         string    `json:"url"`
	Volume      int       `json:"volume"`
	ScrapedAt   time.Time `json:"scraped_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type Config struct {
	FeedURL  string
	Timeout  time.Duration
	CacheTTL time.Duration
	MaxItems int
}

// GoogleTrends reads the Google Trends daily RSS feed and caches the result.
type GoogleTrends struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
	now    func() time.Time

	mu        sync.Mutex
	cached    []Topic
	fetchedAt time.Time
}

func NewGoogleTrends(cfg Config, logger *zap.Logger) *GoogleTrends {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxItems <= 0 {
		cfg.MaxItems = 10
	}
	return &GoogleTrends{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
		now:    time.Now,
	}
}

// GetTrendingTopics never returns an error: failures are logged and yield
// the last good result if it is still fresh, otherwise nothing.
func (g *GoogleTrends) GetTrendingTopics(ctx context.Context) []Topic {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if g.cached != nil && now.Sub(g.fetchedAt) < g.cfg.CacheTTL {
		return g.cached
	}

	topics, err := g.fetch(ctx, now)
	if err != nil {
		g.logger.Warn("Trending topics unavailable", zap.String("feed", g.cfg.FeedURL), zap.Error(err))
		return nil
	}

	g.cached = topics
	g.fetchedAt = now
	return topics
}

type rssFeed struct {
	Channel struct {
		Items []rssItem `xml:"item"`
	} `xml:"channel"`
}

type rssItem struct {
	Title         string `xml:"title"`
	Description   string `xml:"description"`
	Link          string `xml:"link"`
	ApproxTraffic string `xml:"approx_traffic"`
}

func (g *GoogleTrends) fetch(ctx context.Context, now time.Time) ([]Topic, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.cfg.FeedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("trends feed returned status %d: %s", resp.StatusCode, string(body))
	}

	var feed rssFeed
	if err := xml.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return nil, fmt.Errorf("failed to decode feed: %w", err)
	}

	items := feed.Channel.Items
	if len(items) > g.cfg.MaxItems {
		items = items[:g.cfg.MaxItems]
	}

	topics := make([]Topic, 0, len(items))
	for _, item := range items {
		title := strings.TrimSpace(item.Title)
		if title == "" {
			continue
		}
		topics = append(topics, Topic{
			Platform:    "google",
			Topic:       title,
			Description: util.CollapseSpace(item.Description),
			URL:         strings.TrimSpace(item.Link),
			Volume:      parseTraffic(item.ApproxTraffic),
			ScrapedAt:   now,
			ExpiresAt:   now.Add(24 * time.Hour),
		})
	}
	return topics, nil
}

// parseTraffic reads values like "200,000+".
func parseTraffic(raw string) int {
	cleaned := strings.NewReplacer("+", "", ",", "").Replace(strings.TrimSpace(raw))
	v, err := strconv.Atoi(cleaned)
	if err != nil {
		return 0
	}
	return v
}
