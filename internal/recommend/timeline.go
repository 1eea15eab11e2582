package recommend

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"
)

const (
	timelineYearWindow   = 2
	timelineMinRating    = 6.0
	timelineMoviesPerAge = 6

	genreWeight      = 0.5
	ratingWeight     = 0.3
	popularityWeight = 0.2
)

type TimelineBuilder struct {
	catalog Catalog
	now     func() time.Time
}

func NewTimelineBuilder(catalog Catalog) *TimelineBuilder {
	return &TimelineBuilder{catalog: catalog, now: time.Now}
}

// Build returns up to six scored movies for every age from 0 through the
// user's current age. It only reads the catalog.
func (b *TimelineBuilder) Build(ctx context.Context, user User, analysis TasteAnalysis) ([]TimelineEntry, error) {
	preferred := compactStrings(analysis.PreferredGenres)
	if len(preferred) == 0 {
		return nil, nil
	}

	birthYear := user.BirthYear()
	currentAge := user.AgeIn(b.now())
	entries := make([]TimelineEntry, 0)
	for age := 0; age <= currentAge; age++ {
		year := birthYear + age
		candidates, err := b.catalog.TimelineCandidates(ctx, CandidateQuery{
			Genres:    preferred,
			FromYear:  year - timelineYearWindow,
			ToYear:    year + timelineYearWindow,
			MinRating: timelineMinRating,
			Limit:     timelineMoviesPerAge,
		})
		if err != nil {
			return nil, fmt.Errorf("timeline candidates for age %d: %w", age, err)
		}
		candidates = distinctMovies(candidates)
		sortCandidates(candidates)
		if len(candidates) > timelineMoviesPerAge {
			candidates = candidates[:timelineMoviesPerAge]
		}

		for idx, movie := range candidates {
			entries = append(entries, TimelineEntry{
				UserID:          user.ID,
				UserAge:         age,
				Year:            year,
				MovieID:         movie.ID,
				Reason:          fmt.Sprintf("%d세 때 추천하는 영화입니다.", age),
				PreferenceScore: PreferenceScore(movie, preferred),
				DisplayOrder:    idx,
			})
		}
	}
	return entries, nil
}

func distinctMovies(movies []Movie) []Movie {
	out := movies[:0:0]
	seen := make(map[int64]struct{}, len(movies))
	for _, movie := range movies {
		if _, ok := seen[movie.ID]; ok {
			continue
		}
		seen[movie.ID] = struct{}{}
		out = append(out, movie)
	}
	return out
}

func sortCandidates(movies []Movie) {
	sort.SliceStable(movies, func(i, j int) bool {
		if movies[i].VoteAverage != movies[j].VoteAverage {
			return movies[i].VoteAverage > movies[j].VoteAverage
		}
		return movies[i].Popularity > movies[j].Popularity
	})
}

// PreferenceScore weighs genre overlap, rating and popularity into [0, 1].
func PreferenceScore(movie Movie, preferredGenres []string) float64 {
	preferred := compactStrings(preferredGenres)
	score := 0.0

	if len(preferred) > 0 {
		movieGenres := make(map[string]struct{}, len(movie.Genres))
		for _, genre := range movie.Genres {
			movieGenres[genre] = struct{}{}
		}
		matches := 0
		for _, genre := range preferred {
			if _, ok := movieGenres[genre]; ok {
				matches++
			}
		}
		score += genreWeight * float64(matches) / float64(len(preferred))
	}

	score += ratingWeight * clampUnit(movie.VoteAverage/10)
	score += popularityWeight * clampUnit(movie.Popularity/100)
	return clampUnit(score)
}

func clampUnit(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
