package trending

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const sampleFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:ht="https://trends.google.com/trends/trendingsearches/daily">
  <channel>
    <title>Daily Search Trends</title>
    <item>
      <title>Solar eclipse</title>
      <ht:approx_traffic>500,000+</ht:approx_traffic>
      <description>When and where   to watch</description>
      <link>https://trends.google.com/eclipse</link>
    </item>
    <item>
      <title>Playoffs</title>
      <ht:approx_traffic>100+</ht:approx_traffic>
      <description>Scores</description>
      <link>https://trends.google.com/playoffs</link>
    </item>
    <item>
      <title></title>
      <description>untitled items are dropped</description>
    </item>
  </channel>
</rss>`

func TestGoogleTrends_ParsesFeed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		w.Write([]byte(sampleFeed))
	}))
	defer srv.Close()

	g := NewGoogleTrends(Config{FeedURL: srv.URL, CacheTTL: time.Hour}, zap.NewNop())

	topics := g.GetTrendingTopics(context.Background())
	require.Len(t, topics, 2)
	assert.Equal(t, "Solar eclipse", topics[0].Topic)
	assert.Equal(t, "When and where to watch", topics[0].Description)
	assert.Equal(t, 500000, topics[0].Volume)
	assert.Equal(t, "google", topics[0].Platform)
	assert.Equal(t, 100, topics[1].Volume)
}

func TestGoogleTrends_CachesWithinTTL(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Write([]byte(sampleFeed))
	}))
	defer srv.Close()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	g := NewGoogleTrends(Config{FeedURL: srv.URL, CacheTTL: time.Hour}, zap.NewNop())
	g.now = func() time.Time { return now }

	g.GetTrendingTopics(context.Background())
	g.GetTrendingTopics(context.Background())
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))

	now = now.Add(2 * time.Hour)
	g.GetTrendingTopics(context.Background())
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
}

func TestGoogleTrends_FailureYieldsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	g := NewGoogleTrends(Config{FeedURL: srv.URL, CacheTTL: time.Hour}, zap.NewNop())
	assert.Empty(t, g.GetTrendingTopics(context.Background()))

	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<rss><channel><item>"))
	}))
	defer bad.Close()

	g = NewGoogleTrends(Config{FeedURL: bad.URL}, zap.NewNop())
	assert.Empty(t, g.GetTrendingTopics(context.Background()))
}
