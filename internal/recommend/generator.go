package recommend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"cinememory/backend/internal/llm"
	"cinememory/backend/internal/logger"
)

type ModelSettings struct {
	Model           string
	Temperature     float64
	MaxOutputTokens int
}

type Input struct {
	User        User
	Favorites   []Movie
	Interesting []Movie
	Excluded    []Genre
}

// Generator produces a recommendation from the model, or from the fallback
// whenever the model call or its output is unusable.
type Generator struct {
	client   llm.Client
	parser   *Parser
	fallback *Fallback
	settings ModelSettings
	metrics  *Metrics
	log      *zap.Logger
	now      func() time.Time
}

func NewGenerator(client llm.Client, parser *Parser, fallback *Fallback, settings ModelSettings, metrics *Metrics, log *zap.Logger) *Generator {
	if settings.Temperature == 0 {
		settings.Temperature = 0.7
	}
	if settings.MaxOutputTokens == 0 {
		settings.MaxOutputTokens = 2000
	}
	return &Generator{
		client:   client,
		parser:   parser,
		fallback: fallback,
		settings: settings,
		metrics:  metrics,
		log:      logger.OrNop(log),
		now:      time.Now,
	}
}

func (g *Generator) Generate(ctx context.Context, in Input) Recommendation {
	rec, err := g.fromModel(ctx, in)
	if err == nil {
		g.metrics.observeGeneration("recommend", SourceModel)
		return rec
	}

	g.log.Warn("model recommendation unusable, using fallback",
		logger.WithUserID(in.User.ID),
		zap.Error(err),
	)
	rec = g.fallback.Generate(ctx, in.User)
	g.metrics.observeGeneration("recommend", SourceFallback)
	return rec
}

var errNoResolvedMovies = errors.New("no recommended movie matched the catalog")

func (g *Generator) fromModel(ctx context.Context, in Input) (rec Recommendation, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("model path panicked: %v", r)
		}
	}()

	prompt := BuildRecommendationPrompt(in.User, in.Favorites, in.Interesting, in.Excluded, g.now())
	started := time.Now()
	resp, err := g.client.Complete(ctx, llm.Request{
		Model:           g.settings.Model,
		SystemPrompt:    prompt.System,
		UserPrompt:      prompt.User,
		Temperature:     g.settings.Temperature,
		MaxOutputTokens: g.settings.MaxOutputTokens,
	})
	g.metrics.observeModelCall("recommend", started, err)
	if err != nil {
		return Recommendation{}, fmt.Errorf("model call: %w", err)
	}

	rec, err = g.parser.Parse(ctx, resp.Answer, in.User)
	if err != nil {
		return Recommendation{}, err
	}
	if len(rec.Movies) == 0 {
		return Recommendation{}, errNoResolvedMovies
	}
	return rec, nil
}
