package recommend

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cinememory/backend/internal/llm"
)

type serviceFixture struct {
	service *Service
	store   *memoryStore
	client  *llm.MockClient
	metrics *Metrics
}

func newServiceFixture(catalog *memoryCatalog, client *llm.MockClient) serviceFixture {
	metrics := NewMetrics(prometheus.NewRegistry())
	store := newMemoryStore()
	analyzer := NewAnalyzer(client, ModelSettings{Model: "analysis-model"}, metrics, nil)
	analyzer.now = fixedNow
	timeline := newTestTimelineBuilder(catalog)
	svc := NewService(newTestGenerator(catalog, client, metrics), analyzer, timeline, store, metrics, nil)
	svc.now = fixedNow
	return serviceFixture{service: svc, store: store, client: client, metrics: metrics}
}

func TestRecommendPersistsContiguousDistinctEntries(t *testing.T) {
	fx := newServiceFixture(scenarioCatalog(), &llm.MockClient{Answer: scenarioAnswer})

	rec, err := fx.service.Recommend(context.Background(), scenarioInput())
	require.NoError(t, err)

	require.Len(t, rec.Movies, 5)
	for i, movie := range rec.Movies {
		assert.Equal(t, i+1, movie.Order)
	}
	assert.Equal(t, []int64{1, 2, 3, 4, 5}, movieIDs(rec.Movies))

	stored := fx.store.entriesFor("user-1")
	require.Len(t, stored, 5)
	for i, entry := range stored {
		assert.Equal(t, rec.Movies[i].MovieID, entry.MovieID)
		assert.Equal(t, i+1, entry.Order)
	}
	assert.Equal(t, "COMPLETED", fx.store.state.onboarding["user-1"])
	assert.Equal(t, rec.TasteSummary, fx.store.state.userSummaries["user-1"])
	assert.Equal(t, rec.TasteSummary, fx.store.state.sets["user-1"].TasteSummary)
	assert.Equal(t, 1.0, testutil.ToFloat64(fx.metrics.duplicatesSkipped))
}

func TestRecommendFallsBackWhenModelTimesOut(t *testing.T) {
	fx := newServiceFixture(scenarioCatalog(), &llm.MockClient{Err: context.DeadlineExceeded})

	rec, err := fx.service.Recommend(context.Background(), scenarioInput())
	require.NoError(t, err)

	assert.Equal(t, SourceFallback, rec.Source)
	assert.Contains(t, rec.TasteSummary, "minji")
	require.Len(t, rec.Movies, MaxRecommendedMovies)
	for _, movie := range rec.Movies {
		assert.GreaterOrEqual(t, movie.TargetAge, 10)
		assert.NotEqual(t, int64(8), movie.MovieID)
	}
	assert.Len(t, fx.store.entriesFor("user-1"), MaxRecommendedMovies)
	assert.Equal(t, "COMPLETED", fx.store.state.onboarding["user-1"])
}

func TestRegenerateRequiresExistingSet(t *testing.T) {
	fx := newServiceFixture(scenarioCatalog(), &llm.MockClient{Answer: scenarioAnswer})

	_, err := fx.service.Regenerate(context.Background(), scenarioInput())
	assert.ErrorIs(t, err, ErrRecommendationNotFound)
	assert.Zero(t, fx.client.Calls)
	assert.Empty(t, fx.store.state.sets)
}

func TestRegenerateReplacesEntriesIdempotently(t *testing.T) {
	fx := newServiceFixture(scenarioCatalog(), &llm.MockClient{Answer: scenarioAnswer})
	ctx := context.Background()

	_, err := fx.service.Recommend(ctx, scenarioInput())
	require.NoError(t, err)
	setID := fx.store.state.sets["user-1"].ID
	fx.store.state.onboarding["user-1"] = "REOPENED"

	for range 2 {
		rec, err := fx.service.Regenerate(ctx, scenarioInput())
		require.NoError(t, err)
		assert.Len(t, rec.Movies, 5)
	}

	require.Len(t, fx.store.state.sets, 1)
	assert.Equal(t, setID, fx.store.state.sets["user-1"].ID)
	stored := fx.store.entriesFor("user-1")
	require.Len(t, stored, 5)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, entryOrders(stored))
	assert.Equal(t, "REOPENED", fx.store.state.onboarding["user-1"], "regeneration must not touch onboarding state")
}

func TestRegenerateRollsBackOnInsertFailure(t *testing.T) {
	fx := newServiceFixture(scenarioCatalog(), &llm.MockClient{Answer: scenarioAnswer})
	ctx := context.Background()

	first, err := fx.service.Recommend(ctx, scenarioInput())
	require.NoError(t, err)
	before := append([]RecommendedMovieEntry(nil), fx.store.entriesFor("user-1")...)

	fx.client.Answer = `{"taste_summary": "새로운 요약", "movies": [
		{"title": "Arrival", "release_year": "2016"},
		{"title": "Inception", "release_year": "2010"},
		{"title": "Whiplash", "release_year": "2014"}
	]}`
	fx.store.failOnInsert = fx.store.inserts + 2

	_, err = fx.service.Regenerate(ctx, scenarioInput())
	require.ErrorIs(t, err, ErrGenerationFailed)
	assert.ErrorContains(t, err, errInjected.Error())

	assert.Equal(t, before, fx.store.entriesFor("user-1"))
	assert.Equal(t, first.TasteSummary, fx.store.state.sets["user-1"].TasteSummary)
	assert.Equal(t, first.TasteSummary, fx.store.state.userSummaries["user-1"])
}

func TestRecommendSkipsMoviesAlreadyStoredForSet(t *testing.T) {
	fx := newServiceFixture(scenarioCatalog(), &llm.MockClient{Answer: `{"taste_summary": "요약", "movies": [
		{"title": "Interstellar", "release_year": "2014"},
		{"title": "The Dark Knight", "release_year": "2008"},
		{"title": "Parasite", "release_year": "2019"}
	]}`})
	fx.store.phantomMovieID = 2

	rec, err := fx.service.Recommend(context.Background(), scenarioInput())
	require.NoError(t, err)

	assert.Equal(t, []int64{1, 3}, movieIDs(rec.Movies))
	assert.Equal(t, 1, rec.Movies[0].Order)
	assert.Equal(t, 2, rec.Movies[1].Order)
	assert.Len(t, fx.store.entriesFor("user-1"), 3)
	assert.Equal(t, 1.0, testutil.ToFloat64(fx.metrics.duplicatesSkipped))
}

func analysisAnswer() string {
	return `{
  "preferred_genres": ["드라마"],
  "preferred_decades": ["2010s"],
  "storytelling_preference": "인물 중심",
  "tone_preference": "진지한 톤",
  "recommendation_keywords": ["성장"],
  "analysis_summary": "드라마를 즐기는 사용자입니다."
}`
}

func TestAnalyzePreferencesRequiresFiveMovies(t *testing.T) {
	fx := newServiceFixture(scenarioCatalog(), &llm.MockClient{Answer: analysisAnswer()})

	_, err := fx.service.AnalyzePreferences(context.Background(), AnalyzeInput{
		User:     testUser(),
		Selected: scenarioCatalog().movies[:3],
	})
	require.ErrorIs(t, err, ErrNotEnoughSelections)
	var countErr *SelectionCountError
	require.True(t, errors.As(err, &countErr))
	assert.Equal(t, 3, countErr.Selected)

	assert.Zero(t, fx.client.Calls)
	assert.Zero(t, fx.store.state.saveProfileCalls)
	assert.Empty(t, fx.store.state.profiles)
}

func TestAnalyzePreferencesKeepsExistingAnalysisUnlessForced(t *testing.T) {
	fx := newServiceFixture(scenarioCatalog(), &llm.MockClient{Answer: analysisAnswer()})
	existing := TasteProfile{UserID: "user-1", IsAnalyzed: true, Analysis: DefaultAnalysis()}

	result, err := fx.service.AnalyzePreferences(context.Background(), AnalyzeInput{
		User:     testUser(),
		Profile:  existing,
		Selected: scenarioCatalog().movies[:5],
	})
	require.NoError(t, err)
	assert.True(t, result.AlreadyAnalyzed)
	assert.Equal(t, existing, result.Profile)
	assert.Zero(t, fx.client.Calls)

	result, err = fx.service.AnalyzePreferences(context.Background(), AnalyzeInput{
		User:     testUser(),
		Profile:  existing,
		Selected: scenarioCatalog().movies[:5],
		Force:    true,
	})
	require.NoError(t, err)
	assert.False(t, result.AlreadyAnalyzed)
	assert.Equal(t, 1, fx.client.Calls)
	assert.Equal(t, []string{"드라마"}, result.Profile.Analysis.PreferredGenres)
}

func TestAnalyzePreferencesWritesProfileAndTimeline(t *testing.T) {
	fx := newServiceFixture(scenarioCatalog(), &llm.MockClient{Answer: analysisAnswer()})
	fx.store.state.timeline["user-1"] = []TimelineEntry{{UserID: "user-1", UserAge: 99, MovieID: 8}}

	result, err := fx.service.AnalyzePreferences(context.Background(), AnalyzeInput{
		User:     testUser(),
		Selected: scenarioCatalog().movies[:5],
	})
	require.NoError(t, err)
	assert.Equal(t, SourceModel, result.Source)

	profile := fx.store.state.profiles["user-1"]
	assert.True(t, profile.IsAnalyzed)
	require.NotNil(t, profile.AnalyzedAt)
	assert.Equal(t, fixedNow(), *profile.AnalyzedAt)
	assert.Equal(t, []int64{1, 2, 3, 4, 5}, profile.SelectedMovieIDs)

	rows := fx.store.state.timeline["user-1"]
	require.NotEmpty(t, rows)
	assert.Equal(t, result.TimelineCreated, len(rows))
	for _, row := range rows {
		assert.NotEqual(t, 99, row.UserAge)
		assert.LessOrEqual(t, row.UserAge, 30)
	}
}

func TestAnalyzePreferencesIsAtomic(t *testing.T) {
	fx := newServiceFixture(scenarioCatalog(), &llm.MockClient{Answer: analysisAnswer()})
	fx.store.failOnInsert = 1

	_, err := fx.service.AnalyzePreferences(context.Background(), AnalyzeInput{
		User:     testUser(),
		Selected: scenarioCatalog().movies[:5],
	})
	require.ErrorIs(t, err, ErrGenerationFailed)
	assert.Empty(t, fx.store.state.profiles)
	assert.Empty(t, fx.store.state.timeline)
	assert.Zero(t, fx.store.state.saveProfileCalls)
}

func movieIDs(movies []RecommendedMovie) []int64 {
	out := make([]int64, 0, len(movies))
	for _, movie := range movies {
		out = append(out, movie.MovieID)
	}
	return out
}

func entryOrders(entries []RecommendedMovieEntry) []int {
	out := make([]int, 0, len(entries))
	for _, entry := range entries {
		out = append(out, entry.Order)
	}
	return out
}
