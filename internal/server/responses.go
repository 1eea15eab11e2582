package server

import (
	"time"

	"cinememory/backend/internal/recommend"
	"cinememory/backend/internal/store"
)

type movieResponse struct {
	ID          int64    `json:"id"`
	Title       string   `json:"title"`
	ReleaseDate *string  `json:"release_date"`
	ReleaseYear *int     `json:"release_year"`
	PosterPath  string   `json:"poster_path,omitempty"`
	Popularity  float64  `json:"popularity"`
	VoteAverage float64  `json:"vote_average"`
	Genres      []string `json:"genres"`
}

func toMovieResponse(movie recommend.Movie) movieResponse {
	out := movieResponse{
		ID:          movie.ID,
		Title:       movie.Title,
		PosterPath:  movie.PosterPath,
		Popularity:  movie.Popularity,
		VoteAverage: movie.VoteAverage,
		Genres:      movie.Genres,
	}
	if out.Genres == nil {
		out.Genres = []string{}
	}
	if movie.ReleaseDate != nil && !movie.ReleaseDate.IsZero() {
		date := movie.ReleaseDate.Format("2006-01-02")
		year := movie.ReleaseYear()
		out.ReleaseDate = &date
		out.ReleaseYear = &year
	}
	return out
}

func toMovieResponses(movies []recommend.Movie) []movieResponse {
	out := make([]movieResponse, 0, len(movies))
	for _, movie := range movies {
		out = append(out, toMovieResponse(movie))
	}
	return out
}

type genreResponse struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

func toGenreResponses(genres []recommend.Genre) []genreResponse {
	out := make([]genreResponse, 0, len(genres))
	for _, genre := range genres {
		out = append(out, genreResponse{ID: genre.ID, Name: genre.Name})
	}
	return out
}

type onboardingResponse struct {
	State               string  `json:"state"`
	Step                int     `json:"step"`
	Completed           bool    `json:"completed"`
	FavoriteMovieIDs    []int64 `json:"favorite_movie_ids"`
	InterestingMovieIDs []int64 `json:"interesting_movie_ids"`
	ExcludedGenreIDs    []int64 `json:"excluded_genre_ids"`
}

func toOnboardingResponse(progress store.Onboarding) onboardingResponse {
	return onboardingResponse{
		State:               string(progress.State),
		Step:                progress.State.Step(),
		Completed:           progress.Completed(),
		FavoriteMovieIDs:    nonNilIDs(progress.Selections.FavoriteMovieIDs),
		InterestingMovieIDs: nonNilIDs(progress.Selections.InterestingMovieIDs),
		ExcludedGenreIDs:    nonNilIDs(progress.Selections.ExcludedGenreIDs),
	}
}

type recommendedMovieResponse struct {
	Order     int           `json:"order"`
	Reason    string        `json:"reason"`
	TargetAge int           `json:"target_age"`
	Movie     movieResponse `json:"movie"`
}

type recommendationResponse struct {
	TasteSummary string                     `json:"taste_summary"`
	Source       string                     `json:"source,omitempty"`
	Movies       []recommendedMovieResponse `json:"movies"`
	UpdatedAt    *time.Time                 `json:"updated_at,omitempty"`
}

// toGeneratedResponse joins the generated entries with catalog rows; entries
// whose movie cannot be loaded keep only id and title.
func toGeneratedResponse(rec recommend.Recommendation, movies []recommend.Movie) recommendationResponse {
	byID := make(map[int64]recommend.Movie, len(movies))
	for _, movie := range movies {
		byID[movie.ID] = movie
	}
	out := recommendationResponse{
		TasteSummary: rec.TasteSummary,
		Source:       string(rec.Source),
		Movies:       make([]recommendedMovieResponse, 0, len(rec.Movies)),
	}
	for _, item := range rec.Movies {
		movie, ok := byID[item.MovieID]
		if !ok {
			movie = recommend.Movie{ID: item.MovieID, Title: item.Title}
		}
		out.Movies = append(out.Movies, recommendedMovieResponse{
			Order:     item.Order,
			Reason:    item.Reason,
			TargetAge: item.TargetAge,
			Movie:     toMovieResponse(movie),
		})
	}
	return out
}

func toStoredResponse(view store.RecommendationView) recommendationResponse {
	updatedAt := view.Set.UpdatedAt
	out := recommendationResponse{
		TasteSummary: view.Set.TasteSummary,
		Movies:       make([]recommendedMovieResponse, 0, len(view.Entries)),
		UpdatedAt:    &updatedAt,
	}
	for _, entry := range view.Entries {
		out.Movies = append(out.Movies, recommendedMovieResponse{
			Order:     entry.Order,
			Reason:    entry.Reason,
			TargetAge: entry.TargetAge,
			Movie:     toMovieResponse(entry.Movie),
		})
	}
	return out
}

type preferenceResponse struct {
	SelectedMovieIDs []int64                  `json:"selected_movie_ids"`
	IsAnalyzed       bool                     `json:"is_analyzed"`
	AnalyzedAt       *time.Time               `json:"analyzed_at"`
	Analysis         *recommend.TasteAnalysis `json:"analysis_result"`
}

func toPreferenceResponse(profile recommend.TasteProfile) preferenceResponse {
	out := preferenceResponse{
		SelectedMovieIDs: nonNilIDs(profile.SelectedMovieIDs),
		IsAnalyzed:       profile.IsAnalyzed,
		AnalyzedAt:       profile.AnalyzedAt,
	}
	if profile.IsAnalyzed {
		analysis := profile.Analysis
		out.Analysis = &analysis
	}
	return out
}

type timelineMovieResponse struct {
	Reason          string        `json:"reason"`
	PreferenceScore float64       `json:"preference_score"`
	DisplayOrder    int           `json:"display_order"`
	Movie           movieResponse `json:"movie"`
}

type timelineAgeResponse struct {
	Age    int                     `json:"age"`
	Year   int                     `json:"year"`
	Movies []timelineMovieResponse `json:"movies"`
}

type timelineResponse struct {
	Timeline    []timelineAgeResponse `json:"timeline"`
	TotalAges   int                   `json:"total_ages"`
	TotalMovies int                   `json:"total_movies"`
}

// groupTimeline expects rows ordered by (age, display order).
func groupTimeline(rows []store.TimelineRow) timelineResponse {
	out := timelineResponse{Timeline: make([]timelineAgeResponse, 0), TotalMovies: len(rows)}
	for _, row := range rows {
		last := len(out.Timeline) - 1
		if last < 0 || out.Timeline[last].Age != row.UserAge {
			out.Timeline = append(out.Timeline, timelineAgeResponse{Age: row.UserAge, Year: row.Year})
			last++
		}
		out.Timeline[last].Movies = append(out.Timeline[last].Movies, timelineMovieResponse{
			Reason:          row.Reason,
			PreferenceScore: row.PreferenceScore,
			DisplayOrder:    row.DisplayOrder,
			Movie:           toMovieResponse(row.Movie),
		})
	}
	out.TotalAges = len(out.Timeline)
	return out
}

func nonNilIDs(ids []int64) []int64 {
	if ids == nil {
		return []int64{}
	}
	return ids
}
