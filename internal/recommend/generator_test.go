package recommend

import (
	"context"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cinememory/backend/internal/llm"
)

func scenarioCatalog() *memoryCatalog {
	return newMemoryCatalog(
		Movie{ID: 1, Title: "Interstellar", ReleaseDate: date(2014), Popularity: 90, VoteAverage: 8.4, Genres: []string{"SF", "드라마"}},
		Movie{ID: 2, Title: "The Dark Knight", ReleaseDate: date(2008), Popularity: 85, VoteAverage: 8.5, Genres: []string{"액션", "범죄"}},
		Movie{ID: 3, Title: "Parasite", ReleaseDate: date(2019), Popularity: 80, VoteAverage: 8.5, Genres: []string{"드라마", "스릴러"}},
		Movie{ID: 4, Title: "La La Land", ReleaseDate: date(2016), Popularity: 70, VoteAverage: 7.9, Genres: []string{"로맨스", "드라마"}},
		Movie{ID: 5, Title: "Whiplash", ReleaseDate: date(2014), Popularity: 65, VoteAverage: 8.4, Genres: []string{"드라마"}},
		Movie{ID: 6, Title: "Inception", ReleaseDate: date(2010), Popularity: 95, VoteAverage: 8.4, Genres: []string{"SF", "액션"}},
		Movie{ID: 7, Title: "Arrival", ReleaseDate: date(2016), Popularity: 60, VoteAverage: 7.6, Genres: []string{"SF", "드라마"}},
		Movie{ID: 8, Title: "Hereditary", ReleaseDate: date(2018), Popularity: 30, VoteAverage: 7.3, Genres: []string{"호러"}},
	)
}

const scenarioAnswer = "```json\n" + `{
  "taste_summary": "minji님은 시간과 기억을 다루는 지적인 서사를 좋아하는 취향이시네요.",
  "movies": [
    {"movie_id": "1", "title": "Interstellar", "release_year": "2014", "reason": "인셉션의 시간 구조를 좋아한다면", "target_age": "19세"},
    {"movie_id": "2", "title": "The Dark Knight", "release_year": "2008", "reason": "놀란 감독의 대표작", "target_age": 13},
    {"movie_id": "3", "title": "Parasite", "release_year": "2019", "reason": "치밀한 구성", "target_age": "24"},
    {"movie_id": "9", "title": "Nonexistent Dream Movie", "release_year": "2020", "reason": "가상의 영화", "target_age": 25},
    {"movie_id": "2", "title": "The Dark Knight", "release_year": "2008", "reason": "중복", "target_age": 13},
    {"movie_id": "4", "title": "La La Land", "release_year": "2016", "reason": "음악과 꿈", "target_age": "21세"},
    {"movie_id": "5", "title": "Whiplash", "release_year": "2014", "reason": "집념의 드라마", "target_age": null}
  ]
}` + "\n```"

func scenarioInput() Input {
	return Input{
		User:      testUser(),
		Favorites: []Movie{{ID: 6, Title: "Inception", ReleaseDate: date(2010)}},
		Excluded:  []Genre{{ID: 27, Name: "Horror"}},
	}
}

func newTestGenerator(catalog Catalog, client llm.Client, metrics *Metrics) *Generator {
	fallback := NewFallback(catalog, FallbackConfig{}, rand.New(rand.NewPCG(7, 11)), nil)
	g := NewGenerator(client, NewParser(NewMatcher(catalog, nil)), fallback, ModelSettings{Model: "test-model"}, metrics, nil)
	g.now = fixedNow
	return g
}

func TestGeneratorUsesModelAnswer(t *testing.T) {
	client := &llm.MockClient{Answer: scenarioAnswer}
	metrics := NewMetrics(prometheus.NewRegistry())

	rec := newTestGenerator(scenarioCatalog(), client, metrics).Generate(context.Background(), scenarioInput())

	assert.Equal(t, SourceModel, rec.Source)
	assert.True(t, strings.HasPrefix(rec.TasteSummary, "minji님은"))
	ids := make([]int64, 0, len(rec.Movies))
	for _, movie := range rec.Movies {
		ids = append(ids, movie.MovieID)
	}
	assert.Equal(t, []int64{1, 2, 3, 2, 4, 5}, ids)
	assert.Equal(t, 19, rec.Movies[0].TargetAge)
	assert.Equal(t, DefaultTargetAge, rec.Movies[5].TargetAge)

	require.Equal(t, 1, client.Calls)
	assert.Equal(t, "test-model", client.Last.Model)
	assert.Equal(t, 0.7, client.Last.Temperature)
	assert.Equal(t, 2000, client.Last.MaxOutputTokens)
	assert.Contains(t, client.Last.UserPrompt, "Inception (2010)")
	assert.Contains(t, client.Last.UserPrompt, "Horror")
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.generations.WithLabelValues("recommend", string(SourceModel))))
}

func TestGeneratorFallsBackOnModelError(t *testing.T) {
	client := &llm.MockClient{Err: context.DeadlineExceeded}
	metrics := NewMetrics(prometheus.NewRegistry())

	rec := newTestGenerator(scenarioCatalog(), client, metrics).Generate(context.Background(), scenarioInput())

	assert.Equal(t, SourceFallback, rec.Source)
	assert.Contains(t, rec.TasteSummary, "minji")
	assert.Len(t, rec.Movies, MaxRecommendedMovies)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.generations.WithLabelValues("recommend", string(SourceFallback))))
	assert.Equal(t, 1, testutil.CollectAndCount(metrics.modelCallDuration))
}

func TestGeneratorFallsBackOnUnusableAnswers(t *testing.T) {
	answers := map[string]string{
		"prose":             "죄송하지만 지금은 추천을 드릴 수 없습니다.",
		"nothing resolves":  `{"taste_summary": "요약", "movies": [{"title": "Nonexistent Dream Movie", "release_year": "2020"}]}`,
		"empty movie array": `{"taste_summary": "요약", "movies": []}`,
	}
	for name, answer := range answers {
		t.Run(name, func(t *testing.T) {
			rec := newTestGenerator(scenarioCatalog(), &llm.MockClient{Answer: answer}, nil).
				Generate(context.Background(), scenarioInput())
			assert.Equal(t, SourceFallback, rec.Source)
			assert.NotEmpty(t, rec.Movies)
		})
	}
}

type panickingClient struct{}

func (panickingClient) Complete(context.Context, llm.Request) (llm.Response, error) {
	panic("boom")
}

func TestGeneratorRecoversFromPanics(t *testing.T) {
	rec := newTestGenerator(scenarioCatalog(), panickingClient{}, nil).Generate(context.Background(), scenarioInput())
	assert.Equal(t, SourceFallback, rec.Source)
}
