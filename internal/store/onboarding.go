package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"

	"cinememory/backend/internal/db"
)

type OnboardingState string

const (
	StateSelectingFavorites   OnboardingState = "SELECTING_FAVORITES"
	StateSelectingInteresting OnboardingState = "SELECTING_INTERESTING"
	StateExcludingGenres      OnboardingState = "EXCLUDING_GENRES"
	StateAwaitingAnalysis     OnboardingState = "AWAITING_ANALYSIS"
	StateCompleted            OnboardingState = "COMPLETED"
)

var onboardingStages = []OnboardingState{
	StateSelectingFavorites,
	StateSelectingInteresting,
	StateExcludingGenres,
	StateAwaitingAnalysis,
	StateCompleted,
}

// Step is the 1-based wizard step for the state.
func (s OnboardingState) Step() int {
	for idx, stage := range onboardingStages {
		if stage == s {
			return idx + 1
		}
	}
	return 1
}

// Advance moves forward to next, never backward. Re-saving an earlier step
// keeps the furthest stage reached.
func (s OnboardingState) Advance(next OnboardingState) OnboardingState {
	if next.Step() > s.Step() {
		return next
	}
	return s
}

type Selections struct {
	FavoriteMovieIDs    []int64 `json:"favorite_movie_ids"`
	InterestingMovieIDs []int64 `json:"interesting_movie_ids"`
	ExcludedGenreIDs    []int64 `json:"excluded_genre_ids"`
}

type Onboarding struct {
	UserID     string
	State      OnboardingState
	Selections Selections
}

func (o Onboarding) Completed() bool {
	return o.State == StateCompleted
}

// GetOnboarding returns the first stage for users without a progress row.
func (s *Store) GetOnboarding(ctx context.Context, userID string) (Onboarding, error) {
	return getOnboarding(ctx, s.pool, userID, false)
}

func getOnboarding(ctx context.Context, q dbQuerier, userID string, lock bool) (Onboarding, error) {
	progress := Onboarding{UserID: userID, State: StateSelectingFavorites}
	query := `SELECT state, "selectionsJson" FROM "OnboardingProgress" WHERE "userId" = $1`
	if lock {
		query += ` FOR UPDATE`
	}
	var (
		state string
		raw   []byte
	)
	err := q.QueryRow(ctx, query, userID).Scan(&state, &raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return progress, nil
	}
	if err != nil {
		return Onboarding{}, err
	}
	progress.State = OnboardingState(state)
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &progress.Selections); err != nil {
			return Onboarding{}, fmt.Errorf("decode onboarding selections: %w", err)
		}
	}
	return progress, nil
}

// SaveOnboardingStep applies mutate to the stored selections and advances
// the state in one transaction.
func (s *Store) SaveOnboardingStep(ctx context.Context, userID string, next OnboardingState, mutate func(*Selections)) (Onboarding, error) {
	var saved Onboarding
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		progress, err := getOnboarding(ctx, tx, userID, true)
		if err != nil {
			return err
		}
		if mutate != nil {
			mutate(&progress.Selections)
		}
		progress.State = progress.State.Advance(next)
		if err := writeOnboarding(ctx, tx, progress); err != nil {
			return err
		}
		saved = progress
		return nil
	})
	if err != nil {
		return Onboarding{}, err
	}
	return saved, nil
}

func writeOnboarding(ctx context.Context, q dbQuerier, progress Onboarding) error {
	selections, err := json.Marshal(progress.Selections)
	if err != nil {
		return fmt.Errorf("encode onboarding selections: %w", err)
	}
	_, err = q.Exec(
		ctx,
		`INSERT INTO "OnboardingProgress" ("userId", state, "selectionsJson", "updatedAt")
		 VALUES ($1, $2, $3::jsonb, NOW())
		 ON CONFLICT ("userId") DO UPDATE
		   SET state = EXCLUDED.state,
		       "selectionsJson" = EXCLUDED."selectionsJson",
		       "updatedAt" = NOW()`,
		progress.UserID,
		string(progress.State),
		string(selections),
	)
	return err
}

func setOnboardingState(ctx context.Context, q dbQuerier, userID string, state OnboardingState) error {
	_, err := q.Exec(
		ctx,
		`INSERT INTO "OnboardingProgress" ("userId", state, "selectionsJson", "updatedAt")
		 VALUES ($1, $2, '{}'::jsonb, NOW())
		 ON CONFLICT ("userId") DO UPDATE
		   SET state = EXCLUDED.state,
		       "updatedAt" = NOW()`,
		userID,
		string(state),
	)
	return err
}
