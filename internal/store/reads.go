package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"

	"cinememory/backend/internal/recommend"
)

type RecommendationView struct {
	Set     recommend.RecommendationSet
	Entries []RecommendationEntryView
}

type RecommendationEntryView struct {
	Order     int
	Reason    string
	TargetAge int
	Movie     recommend.Movie
}

// GetRecommendationView returns the user's set with entries ordered by rank.
// Set and entries are read from one repeatable-read snapshot.
func (s *Store) GetRecommendationView(ctx context.Context, userID string) (RecommendationView, bool, error) {
	var (
		view  RecommendationView
		found bool
	)
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}, func(tx pgx.Tx) error {
		var err error
		view, found, err = readRecommendationView(ctx, tx, userID)
		return err
	})
	if err != nil {
		return RecommendationView{}, false, err
	}
	return view, found, nil
}

func readRecommendationView(ctx context.Context, q dbQuerier, userID string) (RecommendationView, bool, error) {
	var view RecommendationView
	err := q.QueryRow(
		ctx,
		`SELECT id, "userId", "tasteSummary", "createdAt", "updatedAt"
		 FROM "RecommendationSet"
		 WHERE "userId" = $1`,
		userID,
	).Scan(&view.Set.ID, &view.Set.UserID, &view.Set.TasteSummary, &view.Set.CreatedAt, &view.Set.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return RecommendationView{}, false, nil
	}
	if err != nil {
		return RecommendationView{}, false, fmt.Errorf("query recommendation set: %w", err)
	}

	rows, err := q.Query(
		ctx,
		`SELECT rm."order", rm.reason, rm."targetAge", `+movieColumns+`
		 FROM "RecommendedMovie" rm
		 JOIN "Movie" m ON m.id = rm."movieId"
		 WHERE rm."setId" = $1
		 ORDER BY rm."order"`,
		view.Set.ID,
	)
	if err != nil {
		return RecommendationView{}, false, fmt.Errorf("query recommended movies: %w", err)
	}
	defer rows.Close()

	view.Entries = make([]RecommendationEntryView, 0, recommend.MaxRecommendedMovies)
	for rows.Next() {
		var (
			entry   RecommendationEntryView
			release *time.Time
			genres  []string
		)
		if err := rows.Scan(
			&entry.Order,
			&entry.Reason,
			&entry.TargetAge,
			&entry.Movie.ID,
			&entry.Movie.Title,
			&release,
			&entry.Movie.Popularity,
			&entry.Movie.VoteAverage,
			&entry.Movie.PosterPath,
			&genres,
		); err != nil {
			return RecommendationView{}, false, err
		}
		entry.Movie.ReleaseDate = release
		entry.Movie.Genres = genres
		view.Entries = append(view.Entries, entry)
	}
	if err := rows.Err(); err != nil {
		return RecommendationView{}, false, err
	}
	return view, true, nil
}

// GetTasteProfile returns an empty, unanalyzed profile when none is stored.
func (s *Store) GetTasteProfile(ctx context.Context, userID string) (recommend.TasteProfile, error) {
	profile := recommend.TasteProfile{UserID: userID, SelectedMovieIDs: []int64{}}
	var raw []byte
	err := s.pool.QueryRow(
		ctx,
		`SELECT "selectedMovieIds", "analysisJson", "isAnalyzed", "analyzedAt"
		 FROM "UserTasteProfile"
		 WHERE "userId" = $1`,
		userID,
	).Scan(&profile.SelectedMovieIDs, &raw, &profile.IsAnalyzed, &profile.AnalyzedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return profile, nil
	}
	if err != nil {
		return recommend.TasteProfile{}, fmt.Errorf("query taste profile: %w", err)
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &profile.Analysis); err != nil {
			return recommend.TasteProfile{}, fmt.Errorf("decode taste analysis: %w", err)
		}
	}
	return profile, nil
}

// SaveSelectedMovies replaces the preference-screen selection. A changed
// selection keeps the previous analysis until the next analyze call.
func (s *Store) SaveSelectedMovies(ctx context.Context, userID string, movieIDs []int64) error {
	_, err := s.pool.Exec(
		ctx,
		`INSERT INTO "UserTasteProfile" ("userId", "selectedMovieIds", "updatedAt")
		 VALUES ($1, $2, NOW())
		 ON CONFLICT ("userId") DO UPDATE
		   SET "selectedMovieIds" = EXCLUDED."selectedMovieIds",
		       "updatedAt" = NOW()`,
		userID,
		nonNilIDs(movieIDs),
	)
	if err != nil {
		return fmt.Errorf("save selected movies: %w", err)
	}
	return nil
}

type TimelineRow struct {
	UserAge         int
	Year            int
	Reason          string
	PreferenceScore float64
	DisplayOrder    int
	Movie           recommend.Movie
}

// Timeline returns the user's rows ordered by age, then display order.
func (s *Store) Timeline(ctx context.Context, userID string) ([]TimelineRow, error) {
	rows, err := s.pool.Query(
		ctx,
		`SELECT t."userAge", t.year, t.reason, t."preferenceScore", t."displayOrder", `+movieColumns+`
		 FROM "PersonalizedTimeline" t
		 JOIN "Movie" m ON m.id = t."movieId"
		 WHERE t."userId" = $1
		 ORDER BY t."userAge", t."displayOrder"`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query timeline: %w", err)
	}
	defer rows.Close()

	out := make([]TimelineRow, 0)
	for rows.Next() {
		var (
			row     TimelineRow
			release *time.Time
			genres  []string
		)
		if err := rows.Scan(
			&row.UserAge,
			&row.Year,
			&row.Reason,
			&row.PreferenceScore,
			&row.DisplayOrder,
			&row.Movie.ID,
			&row.Movie.Title,
			&release,
			&row.Movie.Popularity,
			&row.Movie.VoteAverage,
			&row.Movie.PosterPath,
			&genres,
		); err != nil {
			return nil, err
		}
		row.Movie.ReleaseDate = release
		row.Movie.Genres = genres
		out = append(out, row)
	}
	return out, rows.Err()
}
