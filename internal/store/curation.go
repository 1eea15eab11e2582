package store

import (
	"context"

	"github.com/jackc/pgx/v5"
)

type OnboardingPick struct {
	MovieID  int64
	Category string
	Priority int
}

// DefaultOnboardingPicks is the curated famous-movie list. Priorities are
// grouped by category in blocks of five.
var DefaultOnboardingPicks = []OnboardingPick{
	{MovieID: 155, Category: "액션", Priority: 1},
	{MovieID: 24428, Category: "액션", Priority: 2},
	{MovieID: 278, Category: "드라마", Priority: 6},
	{MovieID: 238, Category: "드라마", Priority: 7},
	{MovieID: 862, Category: "코미디", Priority: 11},
	{MovieID: 603, Category: "SF", Priority: 16},
	{MovieID: 27205, Category: "SF", Priority: 17},
	{MovieID: 597, Category: "로맨스", Priority: 21},
	{MovieID: 12, Category: "애니메이션", Priority: 26},
	{MovieID: 10681, Category: "애니메이션", Priority: 27},
}

type CurationResult struct {
	Updated []OnboardingPick
	Missing []int64
}

// CurateOnboardingMovies flags every pick that exists in the catalog. Picks
// for unknown movie ids are reported, not created.
func CurateOnboardingMovies(ctx context.Context, tx pgx.Tx, picks []OnboardingPick) (CurationResult, error) {
	result := CurationResult{}
	for _, pick := range picks {
		tag, err := tx.Exec(
			ctx,
			`UPDATE "Movie"
			 SET "isOnboardingMovie" = TRUE,
			     "onboardingPriority" = $2,
			     "onboardingCategory" = $3
			 WHERE id = $1`,
			pick.MovieID,
			pick.Priority,
			pick.Category,
		)
		if err != nil {
			return CurationResult{}, err
		}
		if tag.RowsAffected() == 0 {
			result.Missing = append(result.Missing, pick.MovieID)
			continue
		}
		result.Updated = append(result.Updated, pick)
	}
	return result, nil
}

func ClearOnboardingMovies(ctx context.Context, tx pgx.Tx) (int64, error) {
	tag, err := tx.Exec(
		ctx,
		`UPDATE "Movie"
		 SET "isOnboardingMovie" = FALSE,
		     "onboardingPriority" = 0,
		     "onboardingCategory" = NULL
		 WHERE "isOnboardingMovie"`,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
