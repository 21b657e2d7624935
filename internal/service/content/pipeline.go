// Package content gathers context for a post and asks the generation
// backend for its text.
package content

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/ifuryst/postpilot/internal/models"
	"github.com/ifuryst/postpilot/internal/service/trending"
	"github.com/ifuryst/postpilot/pkg/util"
)

const (
	maxKnowledgeSnippets = 3
	maxTrendingTopics    = 3
	maxTopicDescription  = 200
)

var ErrGenerationFailed = errors.New("generation failed")

// Generator is the text generation backend.
type Generator interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string, temperature float64, maxTokens int) (string, error)
}

type KnowledgeSource interface {
	ListKnowledgeSnippets(ctx context.Context, userID uint, limit int) ([]string, error)
}

// TrendSource never fails; an unreachable source yields no topics.
type TrendSource interface {
	GetTrendingTopics(ctx context.Context) []trending.Topic
}

type Request struct {
	UserID           uint
	Platform         models.Platform
	UseKnowledgeBase bool
	UseTrending      bool
	Template         string
	// Tone overrides Options.Tone for this request when set.
	Tone string
}

type Options struct {
	Temperature float64
	MaxTokens   int
	Tone        string
}

type Pipeline struct {
	generator Generator
	knowledge KnowledgeSource
	trends    TrendSource
	opts      Options
	logger    *zap.Logger
}

func NewPipeline(generator Generator, knowledge KnowledgeSource, trends TrendSource, opts Options, logger *zap.Logger) *Pipeline {
	if opts.Temperature == 0 {
		opts.Temperature = 0.8
	}
	if opts.MaxTokens == 0 {
		opts.MaxTokens = 500
	}
	if opts.Tone == "" {
		opts.Tone = "professional"
	}
	return &Pipeline{
		generator: generator,
		knowledge: knowledge,
		trends:    trends,
		opts:      opts,
		logger:    logger,
	}
}

// Generate returns the post text. Context sources degrade to empty; only the
// generation call itself can fail, always with ErrGenerationFailed marked.
func (p *Pipeline) Generate(ctx context.Context, req Request) (string, error) {
	var knowledge []string
	if req.UseKnowledgeBase && p.knowledge != nil {
		knowledge = p.gatherKnowledge(ctx, req.UserID)
	}

	var topics []string
	if req.UseTrending && p.trends != nil {
		topics = p.gatherTrending(ctx)
	}

	tone := p.opts.Tone
	if t := strings.TrimSpace(req.Tone); t != "" {
		tone = t
	}
	systemPrompt := buildSystemPrompt(req.Platform, tone)
	userPrompt := buildUserPrompt(req.Platform, knowledge, topics, req.Template)

	p.logger.Debug("Generating post content",
		zap.String("platform", string(req.Platform)),
		zap.Int("knowledge_snippets", len(knowledge)),
		zap.Int("trending_topics", len(topics)))

	text, err := p.generator.Generate(ctx, systemPrompt, userPrompt, p.opts.Temperature, p.opts.MaxTokens)
	if err != nil {
		return "", errors.Mark(errors.Wrap(err, "generate post"), ErrGenerationFailed)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", errors.Wrap(ErrGenerationFailed, "empty response")
	}
	return text, nil
}

func (p *Pipeline) gatherKnowledge(ctx context.Context, userID uint) []string {
	snippets, err := p.knowledge.ListKnowledgeSnippets(ctx, userID, maxKnowledgeSnippets)
	if err != nil {
		p.logger.Warn("Knowledge base unavailable, continuing without it",
			zap.Uint("user_id", userID), zap.Error(err))
		return nil
	}

	out := make([]string, 0, maxKnowledgeSnippets)
	for _, s := range snippets {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
		if len(out) == maxKnowledgeSnippets {
			break
		}
	}
	return out
}

func (p *Pipeline) gatherTrending(ctx context.Context) []string {
	topics := p.trends.GetTrendingTopics(ctx)

	out := make([]string, 0, maxTrendingTopics)
	for _, t := range topics {
		if strings.TrimSpace(t.Topic) == "" {
			continue
		}
		out = append(out, t.Topic+": "+util.Truncate(t.Description, maxTopicDescription))
		if len(out) == maxTrendingTopics {
			break
		}
	}
	return out
}
