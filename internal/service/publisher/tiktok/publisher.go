package tiktok

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/ifuryst/postpilot/internal/service/publisher"
)

const (
	PlatformName   = "tiktok"
	DefaultBaseURL = "https://open.tiktokapis.com"
	maxCaption     = 2200
)

// TikTokPublisher initializes video posts through the Content Posting API.
// The video itself is pulled by TikTok from the resource URL.
type TikTokPublisher struct {
	logger       *zap.Logger
	client       *http.Client
	baseURL      string
	privacyLevel string
}

type postInfo struct {
	Title                 string `json:"title"`
	PrivacyLevel          string `json:"privacy_level"`
	DisableDuet           bool   `json:"disable_duet"`
	DisableComment        bool   `json:"disable_comment"`
	DisableStitch         bool   `json:"disable_stitch"`
	VideoCoverTimestampMS int    `json:"video_cover_timestamp_ms"`
}

type sourceInfo struct {
	Source   string `json:"source"`
	VideoURL string `json:"video_url"`
}

type initRequest struct {
	PostInfo   postInfo   `json:"post_info"`
	SourceInfo sourceInfo `json:"source_info"`
}

type initResponse struct {
	Data struct {
		PublishID string `json:"publish_id"`
	} `json:"data"`
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		LogID   string `json:"log_id"`
	} `json:"error"`
}

func NewTikTokPublisher(baseURL string, timeout time.Duration, logger *zap.Logger) *TikTokPublisher {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &TikTokPublisher{
		logger:       logger,
		client:       &http.Client{Timeout: timeout},
		baseURL:      strings.TrimRight(baseURL, "/"),
		privacyLevel: "PUBLIC_TO_EVERYONE",
	}
}

func (p *TikTokPublisher) GetPlatformName() string {
	return PlatformName
}

func (p *TikTokPublisher) ValidateContent(content publisher.PublishContent) error {
	if videoURL(content) == "" {
		return errors.Wrap(publisher.ErrUnsupportedContent, "tiktok requires video content")
	}
	return nil
}

func (p *TikTokPublisher) PublishDirect(ctx context.Context, content publisher.PublishContent, creds publisher.Credentials) (*publisher.PublishResult, error) {
	if err := p.ValidateContent(content); err != nil {
		return nil, err
	}
	if creds.AccessToken == "" {
		return nil, errors.New("missing tiktok access token")
	}

	caption := []rune(strings.TrimSpace(content.Content))
	if len(caption) > maxCaption {
		caption = caption[:maxCaption]
	}

	body, err := json.Marshal(initRequest{
		PostInfo: postInfo{
			Title:                 string(caption),
			PrivacyLevel:          p.privacyLevel,
			VideoCoverTimestampMS: 1000,
		},
		SourceInfo: sourceInfo{
			Source:   "PULL_FROM_URL",
			VideoURL: videoURL(content),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v2/post/publish/video/init/", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")
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
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Newf("tiktok api returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var out initResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if out.Error.Code != "" && out.Error.Code != "ok" {
		return nil, errors.Newf("tiktok api error %s: %s", out.Error.Code, out.Error.Message)
	}
	if out.Data.PublishID == "" {
		return nil, errors.New("tiktok api returned no publish id")
	}

	p.logger.Debug("TikTok publish initialized", zap.String("publish_id", out.Data.PublishID))

	return &publisher.PublishResult{
		PostID:      out.Data.PublishID,
		Metadata:    map[string]string{"status": "processing"},
		PublishedAt: time.Now(),
	}, nil
}

func videoURL(content publisher.PublishContent) string {
	for _, r := range content.Resources {
		if r.Type == publisher.ResourceTypeVideo && r.URL != "" {
			return r.URL
		}
	}
	return ""
}
