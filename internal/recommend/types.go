// Package recommend turns onboarding signal into persisted movie
// recommendations and age-indexed timelines.
package recommend

import (
	"context"
	"errors"
	"time"
)

const (
	MaxRecommendedMovies = 6
	DefaultTargetAge     = 20
	MinAnalysisMovies    = 5
)

var (
	ErrUnparseable            = errors.New("model output is not parseable")
	ErrNotEnoughSelections    = errors.New("at least 5 selected movies are required")
	ErrRecommendationNotFound = errors.New("recommendation set does not exist")
	ErrOnboardingIncomplete   = errors.New("onboarding steps are not complete")
	ErrGenerationFailed       = errors.New("recommendation generation failed")
)

type Movie struct {
	ID          int64
	Title       string
	ReleaseDate *time.Time
	Popularity  float64
	VoteAverage float64
	Genres      []string
	PosterPath  string
}

// ReleaseYear is 0 when the release date is unknown.
func (m Movie) ReleaseYear() int {
	if m.ReleaseDate == nil || m.ReleaseDate.IsZero() {
		return 0
	}
	return m.ReleaseDate.Year()
}

type Genre struct {
	ID   int64
	Name string
}

type User struct {
	ID        string
	Username  string
	BirthDate time.Time
}

func (u User) BirthYear() int {
	return u.BirthDate.Year()
}

// AgeIn is the user's age by calendar year, without birthday adjustment.
func (u User) AgeIn(now time.Time) int {
	return now.Year() - u.BirthYear()
}

type RecommendedMovie struct {
	MovieID   int64  `json:"movie_id"`
	Title     string `json:"title"`
	Reason    string `json:"reason"`
	TargetAge int    `json:"target_age"`
	Order     int    `json:"order,omitempty"`
}

type Source string

const (
	SourceModel    Source = "model"
	SourceFallback Source = "fallback"
)

type Recommendation struct {
	TasteSummary string             `json:"taste_summary"`
	Movies       []RecommendedMovie `json:"movies"`
	Source       Source             `json:"-"`
}

type RecommendationSet struct {
	ID           string
	UserID       string
	TasteSummary string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type RecommendedMovieEntry struct {
	SetID     string
	MovieID   int64
	Order     int
	Reason    string
	TargetAge int
}

type TasteAnalysis struct {
	PreferredGenres        []string `json:"preferred_genres"`
	PreferredDecades       []string `json:"preferred_decades"`
	StorytellingPreference string   `json:"storytelling_preference"`
	TonePreference         string   `json:"tone_preference"`
	RecommendationKeywords []string `json:"recommendation_keywords"`
	AnalysisSummary        string   `json:"analysis_summary"`
}

type TasteProfile struct {
	UserID           string
	SelectedMovieIDs []int64
	Analysis         TasteAnalysis
	IsAnalyzed       bool
	AnalyzedAt       *time.Time
}

type TimelineEntry struct {
	UserID          string
	UserAge         int
	Year            int
	MovieID         int64
	Reason          string
	PreferenceScore float64
	DisplayOrder    int
}

type CandidateQuery struct {
	Genres    []string
	FromYear  int
	ToYear    int
	MinRating float64
	Limit     int
}

// Catalog is the read-only movie catalog.
type Catalog interface {
	// FirstByTitle returns the first movie, in catalog order, whose title
	// contains fragment case-insensitively. A non-zero year also requires the
	// release date to fall in that calendar year.
	FirstByTitle(ctx context.Context, fragment string, year int) (Movie, bool, error)
	PopularMovies(ctx context.Context, minPopularity float64, limit int) ([]Movie, error)
	TimelineCandidates(ctx context.Context, q CandidateQuery) ([]Movie, error)
}

// Tx is the set of writes one orchestration run performs atomically.
type Tx interface {
	GetRecommendationSet(ctx context.Context, userID string) (RecommendationSet, bool, error)
	UpsertRecommendationSet(ctx context.Context, userID, tasteSummary string) (RecommendationSet, error)
	DeleteRecommendedMovies(ctx context.Context, setID string) error
	RecommendedMovieExists(ctx context.Context, setID string, movieID int64) (bool, error)
	InsertRecommendedMovie(ctx context.Context, entry RecommendedMovieEntry) error
	CompleteOnboarding(ctx context.Context, userID string) error
	UpdateUserTasteSummary(ctx context.Context, userID, tasteSummary string) error

	SaveTasteProfile(ctx context.Context, profile TasteProfile) error
	DeleteTimeline(ctx context.Context, userID string) error
	InsertTimelineEntry(ctx context.Context, entry TimelineEntry) error
}

// UnitOfWork runs fn in one transaction; any error from fn rolls back every
// write made through tx.
type UnitOfWork interface {
	Within(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
