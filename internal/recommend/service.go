package recommend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"cinememory/backend/internal/logger"
)

// SelectionCountError reports how many movies were selected when analysis
// needs more.
type SelectionCountError struct {
	Selected int
}

func (e *SelectionCountError) Error() string {
	return fmt.Sprintf("%v (selected %d)", ErrNotEnoughSelections, e.Selected)
}

func (e *SelectionCountError) Is(target error) bool {
	return target == ErrNotEnoughSelections
}

type Service struct {
	generator *Generator
	analyzer  *Analyzer
	timeline  *TimelineBuilder
	uow       UnitOfWork
	metrics   *Metrics
	log       *zap.Logger
	now       func() time.Time
}

func NewService(generator *Generator, analyzer *Analyzer, timeline *TimelineBuilder, uow UnitOfWork, metrics *Metrics, log *zap.Logger) *Service {
	return &Service{
		generator: generator,
		analyzer:  analyzer,
		timeline:  timeline,
		uow:       uow,
		metrics:   metrics,
		log:       logger.OrNop(log),
		now:       time.Now,
	}
}

// Recommend generates the first recommendation set, persists it and
// completes onboarding.
func (s *Service) Recommend(ctx context.Context, in Input) (Recommendation, error) {
	rec := s.generator.Generate(ctx, in)
	return s.persist(ctx, in.User, rec, false)
}

// Regenerate replaces an existing set without touching onboarding state.
func (s *Service) Regenerate(ctx context.Context, in Input) (Recommendation, error) {
	err := s.uow.Within(ctx, func(ctx context.Context, tx Tx) error {
		_, ok, err := tx.GetRecommendationSet(ctx, in.User.ID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrRecommendationNotFound
		}
		return nil
	})
	if errors.Is(err, ErrRecommendationNotFound) {
		return Recommendation{}, err
	}
	if err != nil {
		return Recommendation{}, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}

	rec := s.generator.Generate(ctx, in)
	return s.persist(ctx, in.User, rec, true)
}

func (s *Service) persist(ctx context.Context, user User, rec Recommendation, regenerate bool) (Recommendation, error) {
	var saved []RecommendedMovie
	err := s.uow.Within(ctx, func(ctx context.Context, tx Tx) error {
		saved = saved[:0]
		if regenerate {
			_, ok, err := tx.GetRecommendationSet(ctx, user.ID)
			if err != nil {
				return err
			}
			if !ok {
				return ErrRecommendationNotFound
			}
		}

		set, err := tx.UpsertRecommendationSet(ctx, user.ID, rec.TasteSummary)
		if err != nil {
			return fmt.Errorf("upsert recommendation set: %w", err)
		}
		if err := tx.DeleteRecommendedMovies(ctx, set.ID); err != nil {
			return fmt.Errorf("clear recommended movies: %w", err)
		}

		seen := make(map[int64]struct{}, len(rec.Movies))
		for _, movie := range rec.Movies {
			if _, dup := seen[movie.MovieID]; dup {
				s.log.Info("skipping duplicate recommended movie", logger.WithUserID(user.ID), logger.WithMovieID(movie.MovieID))
				s.metrics.observeDuplicate()
				continue
			}
			seen[movie.MovieID] = struct{}{}

			// A concurrent writer outside this transaction can still have
			// inserted the row after the delete above.
			exists, err := tx.RecommendedMovieExists(ctx, set.ID, movie.MovieID)
			if err != nil {
				return fmt.Errorf("check recommended movie: %w", err)
			}
			if exists {
				s.log.Warn("recommended movie already stored for set", logger.WithUserID(user.ID), logger.WithMovieID(movie.MovieID))
				s.metrics.observeDuplicate()
				continue
			}

			movie.Order = len(saved) + 1
			if err := tx.InsertRecommendedMovie(ctx, RecommendedMovieEntry{
				SetID:     set.ID,
				MovieID:   movie.MovieID,
				Order:     movie.Order,
				Reason:    movie.Reason,
				TargetAge: movie.TargetAge,
			}); err != nil {
				return fmt.Errorf("insert recommended movie %d: %w", movie.MovieID, err)
			}
			saved = append(saved, movie)
		}

		if !regenerate {
			if err := tx.CompleteOnboarding(ctx, user.ID); err != nil {
				return fmt.Errorf("complete onboarding: %w", err)
			}
		}
		if err := tx.UpdateUserTasteSummary(ctx, user.ID, rec.TasteSummary); err != nil {
			return fmt.Errorf("update user taste summary: %w", err)
		}
		return nil
	})
	if errors.Is(err, ErrRecommendationNotFound) {
		return Recommendation{}, err
	}
	if err != nil {
		s.log.Error("recommendation persistence failed", logger.WithUserID(user.ID), zap.Error(err))
		return Recommendation{}, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}

	s.log.Info("recommendation saved",
		logger.WithUserID(user.ID),
		zap.String("source", string(rec.Source)),
		zap.Int("movies", len(saved)),
		zap.Bool("regenerate", regenerate),
	)
	return Recommendation{
		TasteSummary: rec.TasteSummary,
		Movies:       append([]RecommendedMovie(nil), saved...),
		Source:       rec.Source,
	}, nil
}

type AnalyzeInput struct {
	User     User
	Profile  TasteProfile
	Selected []Movie
	Force    bool
}

type AnalyzeResult struct {
	Profile         TasteProfile
	TimelineCreated int
	AlreadyAnalyzed bool
	Source          Source
}

// AnalyzePreferences builds the taste profile and rebuilds the personalized
// timeline. Profile and timeline are written in one transaction.
func (s *Service) AnalyzePreferences(ctx context.Context, in AnalyzeInput) (AnalyzeResult, error) {
	if len(in.Selected) < MinAnalysisMovies {
		return AnalyzeResult{}, &SelectionCountError{Selected: len(in.Selected)}
	}
	if in.Profile.IsAnalyzed && !in.Force {
		return AnalyzeResult{Profile: in.Profile, AlreadyAnalyzed: true}, nil
	}

	analysis, source := s.analyzer.Analyze(ctx, in.User, in.Selected)
	entries, err := s.timeline.Build(ctx, in.User, analysis)
	if err != nil {
		return AnalyzeResult{}, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}

	analyzedAt := s.now().UTC()
	profile := in.Profile
	profile.UserID = in.User.ID
	profile.Analysis = analysis
	profile.IsAnalyzed = true
	profile.AnalyzedAt = &analyzedAt
	if len(profile.SelectedMovieIDs) == 0 {
		for _, movie := range in.Selected {
			profile.SelectedMovieIDs = append(profile.SelectedMovieIDs, movie.ID)
		}
	}

	err = s.uow.Within(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.SaveTasteProfile(ctx, profile); err != nil {
			return fmt.Errorf("save taste profile: %w", err)
		}
		if err := tx.DeleteTimeline(ctx, in.User.ID); err != nil {
			return fmt.Errorf("clear timeline: %w", err)
		}
		for _, entry := range entries {
			if err := tx.InsertTimelineEntry(ctx, entry); err != nil {
				return fmt.Errorf("insert timeline entry age=%d movie=%d: %w", entry.UserAge, entry.MovieID, err)
			}
		}
		return nil
	})
	if err != nil {
		s.log.Error("taste analysis persistence failed", logger.WithUserID(in.User.ID), zap.Error(err))
		return AnalyzeResult{}, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}

	s.metrics.observeTimelineRows(len(entries))
	return AnalyzeResult{
		Profile:         profile,
		TimelineCreated: len(entries),
		Source:          source,
	}, nil
}
