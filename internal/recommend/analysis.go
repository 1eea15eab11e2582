package recommend

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"cinememory/backend/internal/llm"
	"cinememory/backend/internal/logger"
)

// DefaultAnalysis is used whenever the analysis call fails.
func DefaultAnalysis() TasteAnalysis {
	return TasteAnalysis{
		PreferredGenres:        []string{"드라마", "액션", "코미디"},
		PreferredDecades:       []string{"2000s", "2010s"},
		StorytellingPreference: "균형잡힌 스토리텔링",
		TonePreference:         "다양한 톤",
		RecommendationKeywords: []string{"가족", "우정", "성장", "모험", "사랑"},
		AnalysisSummary:        "다양한 장르를 선호하는 균형잡힌 취향의 사용자입니다.",
	}
}

type Analyzer struct {
	client   llm.Client
	settings ModelSettings
	metrics  *Metrics
	log      *zap.Logger
	now      func() time.Time
}

func NewAnalyzer(client llm.Client, settings ModelSettings, metrics *Metrics, log *zap.Logger) *Analyzer {
	if settings.Temperature == 0 {
		settings.Temperature = 0.3
	}
	if settings.MaxOutputTokens == 0 {
		settings.MaxOutputTokens = 800
	}
	return &Analyzer{
		client:   client,
		settings: settings,
		metrics:  metrics,
		log:      logger.OrNop(log),
		now:      time.Now,
	}
}

func (a *Analyzer) Analyze(ctx context.Context, user User, selected []Movie) (TasteAnalysis, Source) {
	analysis, err := a.fromModel(ctx, user, selected)
	if err != nil {
		a.log.Warn("taste analysis unusable, using default analysis",
			logger.WithUserID(user.ID),
			zap.Error(err),
		)
		a.metrics.observeGeneration("analyze", SourceFallback)
		return DefaultAnalysis(), SourceFallback
	}
	a.metrics.observeGeneration("analyze", SourceModel)
	return analysis, SourceModel
}

func (a *Analyzer) fromModel(ctx context.Context, user User, selected []Movie) (TasteAnalysis, error) {
	prompt := BuildAnalysisPrompt(user, selected, a.now())
	started := time.Now()
	resp, err := a.client.Complete(ctx, llm.Request{
		Model:           a.settings.Model,
		SystemPrompt:    prompt.System,
		UserPrompt:      prompt.User,
		Temperature:     a.settings.Temperature,
		MaxOutputTokens: a.settings.MaxOutputTokens,
	})
	a.metrics.observeModelCall("analyze", started, err)
	if err != nil {
		return TasteAnalysis{}, fmt.Errorf("model call: %w", err)
	}
	return parseAnalysis(resp.Answer)
}

func parseAnalysis(raw string) (TasteAnalysis, error) {
	document, err := extractJSONObject(raw)
	if err != nil {
		return TasteAnalysis{}, err
	}
	var analysis TasteAnalysis
	if err := json.Unmarshal([]byte(document), &analysis); err != nil {
		return TasteAnalysis{}, fmt.Errorf("%w: %v", ErrUnparseable, err)
	}
	analysis.PreferredGenres = compactStrings(analysis.PreferredGenres)
	analysis.PreferredDecades = compactStrings(analysis.PreferredDecades)
	analysis.RecommendationKeywords = compactStrings(analysis.RecommendationKeywords)
	analysis.StorytellingPreference = strings.TrimSpace(analysis.StorytellingPreference)
	analysis.TonePreference = strings.TrimSpace(analysis.TonePreference)
	analysis.AnalysisSummary = strings.TrimSpace(analysis.AnalysisSummary)
	return analysis, nil
}

// compactStrings trims entries and drops blanks and repeats, keeping order.
func compactStrings(items []string) []string {
	out := make([]string, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		trimmed := strings.TrimSpace(item)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	return out
}
