package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"cinememory/backend/internal/db"
	"cinememory/backend/internal/recommend"
)

// Within runs fn in a single database transaction.
func (s *Store) Within(ctx context.Context, fn func(ctx context.Context, tx recommend.Tx) error) error {
	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txWriter{q: tx})
	})
}

type txWriter struct {
	q dbQuerier
}

// GetRecommendationSet locks the row so concurrent regenerations for one user
// serialize.
func (w *txWriter) GetRecommendationSet(ctx context.Context, userID string) (recommend.RecommendationSet, bool, error) {
	var set recommend.RecommendationSet
	err := w.q.QueryRow(
		ctx,
		`SELECT id, "userId", "tasteSummary", "createdAt", "updatedAt"
		 FROM "RecommendationSet"
		 WHERE "userId" = $1
		 FOR UPDATE`,
		userID,
	).Scan(&set.ID, &set.UserID, &set.TasteSummary, &set.CreatedAt, &set.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return recommend.RecommendationSet{}, false, nil
	}
	if err != nil {
		return recommend.RecommendationSet{}, false, err
	}
	return set, true, nil
}

func (w *txWriter) UpsertRecommendationSet(ctx context.Context, userID, tasteSummary string) (recommend.RecommendationSet, error) {
	var set recommend.RecommendationSet
	err := w.q.QueryRow(
		ctx,
		`INSERT INTO "RecommendationSet" (id, "userId", "tasteSummary", "createdAt", "updatedAt")
		 VALUES ($1, $2, $3, NOW(), NOW())
		 ON CONFLICT ("userId") DO UPDATE
		   SET "tasteSummary" = EXCLUDED."tasteSummary",
		       "updatedAt" = NOW()
		 RETURNING id, "userId", "tasteSummary", "createdAt", "updatedAt"`,
		uuid.NewString(),
		userID,
		tasteSummary,
	).Scan(&set.ID, &set.UserID, &set.TasteSummary, &set.CreatedAt, &set.UpdatedAt)
	if err != nil {
		return recommend.RecommendationSet{}, err
	}
	return set, nil
}

func (w *txWriter) DeleteRecommendedMovies(ctx context.Context, setID string) error {
	_, err := w.q.Exec(ctx, `DELETE FROM "RecommendedMovie" WHERE "setId" = $1`, setID)
	return err
}

func (w *txWriter) RecommendedMovieExists(ctx context.Context, setID string, movieID int64) (bool, error) {
	var exists bool
	err := w.q.QueryRow(
		ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM "RecommendedMovie" WHERE "setId" = $1 AND "movieId" = $2
		 )`,
		setID,
		movieID,
	).Scan(&exists)
	return exists, err
}

func (w *txWriter) InsertRecommendedMovie(ctx context.Context, entry recommend.RecommendedMovieEntry) error {
	_, err := w.q.Exec(
		ctx,
		`INSERT INTO "RecommendedMovie" (id, "setId", "movieId", "order", reason, "targetAge")
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		uuid.NewString(),
		entry.SetID,
		entry.MovieID,
		entry.Order,
		entry.Reason,
		entry.TargetAge,
	)
	return err
}

func (w *txWriter) CompleteOnboarding(ctx context.Context, userID string) error {
	return setOnboardingState(ctx, w.q, userID, StateCompleted)
}

func (w *txWriter) UpdateUserTasteSummary(ctx context.Context, userID, tasteSummary string) error {
	tag, err := w.q.Exec(
		ctx,
		`UPDATE "User" SET "tasteSummary" = $2 WHERE id = $1`,
		userID,
		tasteSummary,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (w *txWriter) SaveTasteProfile(ctx context.Context, profile recommend.TasteProfile) error {
	analysisJSON, err := json.Marshal(profile.Analysis)
	if err != nil {
		return fmt.Errorf("encode analysis: %w", err)
	}
	a := profile.Analysis
	_, err = w.q.Exec(
		ctx,
		`INSERT INTO "UserTasteProfile" (
		   "userId", "selectedMovieIds", "tasteSummary", "preferredGenres", "preferredDecades",
		   "storytellingPreference", "tonePreference", "recommendationKeywords",
		   "analysisJson", "isAnalyzed", "analyzedAt", "updatedAt"
		 ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::jsonb, $10, $11, NOW())
		 ON CONFLICT ("userId") DO UPDATE SET
		   "selectedMovieIds" = EXCLUDED."selectedMovieIds",
		   "tasteSummary" = EXCLUDED."tasteSummary",
		   "preferredGenres" = EXCLUDED."preferredGenres",
		   "preferredDecades" = EXCLUDED."preferredDecades",
		   "storytellingPreference" = EXCLUDED."storytellingPreference",
		   "tonePreference" = EXCLUDED."tonePreference",
		   "recommendationKeywords" = EXCLUDED."recommendationKeywords",
		   "analysisJson" = EXCLUDED."analysisJson",
		   "isAnalyzed" = EXCLUDED."isAnalyzed",
		   "analyzedAt" = EXCLUDED."analyzedAt",
		   "updatedAt" = NOW()`,
		profile.UserID,
		nonNilIDs(profile.SelectedMovieIDs),
		a.AnalysisSummary,
		nonNilStrings(a.PreferredGenres),
		nonNilStrings(a.PreferredDecades),
		a.StorytellingPreference,
		a.TonePreference,
		nonNilStrings(a.RecommendationKeywords),
		string(analysisJSON),
		profile.IsAnalyzed,
		profile.AnalyzedAt,
	)
	return err
}

func (w *txWriter) DeleteTimeline(ctx context.Context, userID string) error {
	_, err := w.q.Exec(ctx, `DELETE FROM "PersonalizedTimeline" WHERE "userId" = $1`, userID)
	return err
}

func (w *txWriter) InsertTimelineEntry(ctx context.Context, entry recommend.TimelineEntry) error {
	_, err := w.q.Exec(
		ctx,
		`INSERT INTO "PersonalizedTimeline" (
		   id, "userId", "userAge", year, "movieId", reason, "preferenceScore", "displayOrder", "createdAt"
		 ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())`,
		uuid.NewString(),
		entry.UserID,
		entry.UserAge,
		entry.Year,
		entry.MovieID,
		entry.Reason,
		entry.PreferenceScore,
		entry.DisplayOrder,
	)
	return err
}

func nonNilIDs(ids []int64) []int64 {
	if ids == nil {
		return []int64{}
	}
	return ids
}

func nonNilStrings(items []string) []string {
	if items == nil {
		return []string{}
	}
	return items
}
