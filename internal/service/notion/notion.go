// Package notion imports pages of a Notion database into a user's knowledge
// base, where the content pipeline picks them up as context snippets.
package notion

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/ifuryst/postpilot/internal/config"
	"github.com/ifuryst/postpilot/internal/models"
)

type (
	DatabaseResponse struct {
		Results    []PageResponse `json:"results"`
		NextCursor string         `json:"next_cursor"`
		HasMore    bool           `json:"has_more"`
	}

	PageResponse struct {
		ID             string         `json:"id"`
		URL            string         `json:"url"`
		LastEditedTime string         `json:"last_edited_time"`
		Archived       bool           `json:"archived"`
		Properties     map[string]any `json:"properties"`
	}
)

// KnowledgeStore persists imported pages.
type KnowledgeStore interface {
	UpsertKnowledgeDoc(ctx context.Context, doc *models.KnowledgeDoc) (bool, error)
}

// SyncResult counts what one Sync did.
type SyncResult struct {
	Created int
	Updated int
	Failed  int
}

type Service struct {
	config *config.NotionConfig
	store  KnowledgeStore
	logger *zap.Logger
	client *http.Client
}

func NewService(cfg *config.NotionConfig, store KnowledgeStore, logger *zap.Logger) *Service {
	tr := &http.Transport{
		IdleConnTimeout:       120 * time.Second,
		MaxIdleConns:          10,
		MaxIdleConnsPerHost:   10,
		TLSHandshakeTimeout:   20 * time.Second,
		ResponseHeaderTimeout: 20 * time.Second,
	}
	return &Service{
		config: cfg,
		store:  store,
		logger: logger,
		client: &http.Client{
			Transport: tr,
			Timeout:   30 * time.Second,
		},
	}
}

// Sync walks every page of the configured database and upserts one knowledge
// doc per page. A page that fails is logged and counted; only a failed
// database query aborts the run.
func (s *Service) Sync(ctx context.Context) (SyncResult, error) {
	var result SyncResult
	s.logger.Info("Starting Notion knowledge sync", zap.String("database_id", s.config.DatabaseID))

	cursor := ""
	for {
		response, err := s.queryDatabase(ctx, cursor)
		if err != nil {
			return result, errors.Wrap(err, "query database")
		}

		for _, page := range response.Results {
			created, err := s.processPage(ctx, page)
			if err != nil {
				result.Failed++
				s.logger.Error("Failed to import page", zap.String("page_id", page.ID), zap.Error(err))
				continue
			}
			if created {
				result.Created++
			} else {
				result.Updated++
			}
		}

		if !response.HasMore || response.NextCursor == "" {
			break
		}
		cursor = response.NextCursor
	}

	s.logger.Info("Notion knowledge sync completed",
		zap.Int("created", result.Created),
		zap.Int("updated", result.Updated),
		zap.Int("failed", result.Failed))
	return result, nil
}

func (s *Service) processPage(ctx context.Context, page PageResponse) (bool, error) {
	content, err := s.getPageContent(ctx, page.ID)
	if err != nil {
		return false, errors.Wrap(err, "get page content")
	}

	title := extractTitle(page.Properties)
	if content == "" {
		content = title
	}

	sourceURL := page.URL
	if sourceURL == "" {
		sourceURL = "notion://" + page.ID
	}

	doc := &models.KnowledgeDoc{
		UserID:    s.config.UserID,
		Title:     title,
		Content:   content,
		SourceURL: sourceURL,
		Category:  s.config.Category,
		Keywords:  extractTags(page.Properties),
		IsActive:  !page.Archived,
	}

	created, err := s.store.UpsertKnowledgeDoc(ctx, doc)
	if err != nil {
		return false, err
	}

	s.logger.Debug("Imported page",
		zap.String("page_id", page.ID),
		zap.String("title", title),
		zap.Bool("created", created))
	return created, nil
}

func (s *Service) getPageContent(ctx context.Context, pageID string) (string, error) {
	blocks, err := s.getAllBlocksRecursively(ctx, pageID)
	if err != nil {
		return "", err
	}

	lines := make([]string, 0, len(blocks))
	for _, block := range blocks {
		if text := strings.TrimSpace(extractTextFromBlock(block)); text != "" {
			lines = append(lines, text)
		}
	}
	return strings.Join(lines, "\n"), nil
}
