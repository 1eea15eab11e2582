package recommend

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parserCatalog() *memoryCatalog {
	movies := make([]Movie, 0, 10)
	for i := 1; i <= 10; i++ {
		movies = append(movies, Movie{
			ID:          int64(i),
			Title:       fmt.Sprintf("Movie %02d", i),
			ReleaseDate: date(2000 + i),
		})
	}
	return newMemoryCatalog(movies...)
}

func newTestParser() *Parser {
	return NewParser(NewMatcher(parserCatalog(), nil))
}

func TestNormalizeTargetAge(t *testing.T) {
	cases := []struct {
		name string
		raw  any
		want int
	}{
		{name: "korean suffix", raw: "7세", want: 7},
		{name: "number", raw: float64(7), want: 7},
		{name: "int", raw: 7, want: 7},
		{name: "fraction", raw: 12.9, want: 12},
		{name: "embedded digits", raw: "약 15살쯤", want: 15},
		{name: "empty string", raw: "", want: DefaultTargetAge},
		{name: "no digits", raw: "어린 시절", want: DefaultTargetAge},
		{name: "nil", raw: nil, want: DefaultTargetAge},
		{name: "zero", raw: float64(0), want: DefaultTargetAge},
		{name: "zero string", raw: "0세", want: 0},
		{name: "bare zero string", raw: "0", want: 0},
		{name: "bool", raw: true, want: DefaultTargetAge},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, NormalizeTargetAge(tc.raw))
		})
	}
}

func TestParseReleaseYear(t *testing.T) {
	assert.Equal(t, 2010, parseReleaseYear("2010"))
	assert.Equal(t, 2010, parseReleaseYear(" 2010년 "))
	assert.Equal(t, 2010, parseReleaseYear("2010-07-16"))
	assert.Equal(t, 2010, parseReleaseYear(float64(2010)))
	assert.Equal(t, 0, parseReleaseYear("10"))
	assert.Equal(t, 0, parseReleaseYear("201012"))
	assert.Equal(t, 0, parseReleaseYear("N/A"))
	assert.Equal(t, 0, parseReleaseYear(nil))
	assert.Equal(t, 0, parseReleaseYear(float64(12)))
}

func TestParseResolvesMoviesInModelOrder(t *testing.T) {
	raw := "여기 추천 결과입니다:\n```json\n" + `{
		"taste_summary": "minji님은 잔잔한 성장 서사를 좋아하는 취향이시네요.",
		"movies": [
			{"movie_id": "x", "title": "Movie 03", "release_year": "2003", "reason": "이유 3", "target_age": "8세"},
			{"movie_id": "y", "title": "Movie 01", "release_year": 2001, "reason": "이유 1", "target_age": 6},
			{"movie_id": "z", "title": "Nonexistent Film", "release_year": "1999", "reason": "없음", "target_age": 4}
		]
	}` + "\n```"

	rec, err := newTestParser().Parse(context.Background(), raw, testUser())
	require.NoError(t, err)

	assert.Equal(t, SourceModel, rec.Source)
	assert.Equal(t, "minji님은 잔잔한 성장 서사를 좋아하는 취향이시네요.", rec.TasteSummary)
	require.Len(t, rec.Movies, 2)
	assert.Equal(t, RecommendedMovie{MovieID: 3, Title: "Movie 03", Reason: "이유 3", TargetAge: 8}, rec.Movies[0])
	assert.Equal(t, RecommendedMovie{MovieID: 1, Title: "Movie 01", Reason: "이유 1", TargetAge: 6}, rec.Movies[1])
}

func TestParseCapsAtSixMovies(t *testing.T) {
	items := make([]string, 0, 9)
	for i := 1; i <= 9; i++ {
		items = append(items, fmt.Sprintf(`{"title": "Movie %02d", "release_year": "%d", "target_age": %d}`, i, 2000+i, i))
	}
	raw := `{"taste_summary": "요약", "movies": [` + strings.Join(items, ",") + `]}`

	rec, err := newTestParser().Parse(context.Background(), raw, testUser())
	require.NoError(t, err)
	require.Len(t, rec.Movies, MaxRecommendedMovies)
	for i, movie := range rec.Movies {
		assert.Equal(t, int64(i+1), movie.MovieID)
		assert.Equal(t, defaultReason, movie.Reason)
	}
}

func TestParseDefaultsTasteSummary(t *testing.T) {
	rec, err := newTestParser().Parse(context.Background(), `{"movies": [{"title": "Movie 05"}]}`, testUser())
	require.NoError(t, err)
	assert.Equal(t, "minji님의 취향을 분석했습니다.", rec.TasteSummary)
	require.Len(t, rec.Movies, 1)
	assert.Equal(t, DefaultTargetAge, rec.Movies[0].TargetAge)
}

func TestParseRejectsUnusableOutput(t *testing.T) {
	cases := map[string]string{
		"no braces":        "죄송합니다. 추천을 생성할 수 없습니다.",
		"only closing":     "} nothing here",
		"reversed braces":  "} {",
		"broken json":      `{"taste_summary": "x", "movies": [}`,
		"movies not array": `{"taste_summary": "x", "movies": {"title": "Movie 01"}}`,
		"movie not object": `{"taste_summary": "x", "movies": ["Movie 01"]}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := newTestParser().Parse(context.Background(), raw, testUser())
			assert.ErrorIs(t, err, ErrUnparseable)
		})
	}
}

func TestParseAcceptsMissingMovies(t *testing.T) {
	rec, err := newTestParser().Parse(context.Background(), `{"taste_summary": "요약", "movies": null}`, testUser())
	require.NoError(t, err)
	assert.Empty(t, rec.Movies)
}
