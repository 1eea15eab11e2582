package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"cinememory/backend/internal/recommend"
	"cinememory/backend/internal/store"
)

type movieSelectionRequest struct {
	MovieIDs []int64 `json:"movie_ids"`
}

type genreSelectionRequest struct {
	GenreIDs []int64 `json:"genre_ids"`
}

func (a *App) onboardingStatus(c *gin.Context) {
	user, ok := authUserFromContext(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "Unauthorized")
		return
	}
	progress, err := a.store.GetOnboarding(c.Request.Context(), user.ID)
	if err != nil {
		a.internalError(c, "load onboarding failed", err)
		return
	}
	c.JSON(http.StatusOK, toOnboardingResponse(progress))
}

func (a *App) famousMovies(c *gin.Context) {
	movies, err := a.store.OnboardingMovies(c.Request.Context())
	if err != nil {
		a.internalError(c, "load onboarding movies failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"movies": toMovieResponses(movies), "count": len(movies)})
}

func (a *App) hiddenMovies(c *gin.Context) {
	movies, err := a.store.HiddenGems(c.Request.Context())
	if err != nil {
		a.internalError(c, "load hidden movies failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"movies": toMovieResponses(movies), "count": len(movies)})
}

func (a *App) randomMovie(c *gin.Context) {
	movie, ok, err := a.store.RandomPopularMovie(c.Request.Context())
	if err != nil {
		a.internalError(c, "load random movie failed", err)
		return
	}
	if !ok {
		writeError(c, http.StatusNotFound, "영화를 찾을 수 없습니다.")
		return
	}
	c.JSON(http.StatusOK, gin.H{"movie": toMovieResponse(movie)})
}

func (a *App) listGenres(c *gin.Context) {
	genres, err := a.store.ListGenres(c.Request.Context())
	if err != nil {
		a.internalError(c, "load genres failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"genres": toGenreResponses(genres)})
}

func (a *App) saveFavoriteMovies(c *gin.Context) {
	var payload movieSelectionRequest
	if !mustJSON(c, &payload) {
		return
	}
	ids := distinctIDs(payload.MovieIDs)
	if len(ids) == 0 {
		writeError(c, http.StatusBadRequest, "최소 1개의 영화를 선택해주세요.")
		return
	}
	a.saveOnboardingStep(c, store.StateSelectingInteresting, func(sel *store.Selections) {
		sel.FavoriteMovieIDs = ids
	})
}

func (a *App) saveInterestingMovies(c *gin.Context) {
	var payload movieSelectionRequest
	if !mustJSON(c, &payload) {
		return
	}
	ids := distinctIDs(payload.MovieIDs)
	a.saveOnboardingStep(c, store.StateExcludingGenres, func(sel *store.Selections) {
		sel.InterestingMovieIDs = ids
	})
}

func (a *App) saveExcludedGenres(c *gin.Context) {
	var payload genreSelectionRequest
	if !mustJSON(c, &payload) {
		return
	}
	ids := distinctIDs(payload.GenreIDs)
	a.saveOnboardingStep(c, store.StateAwaitingAnalysis, func(sel *store.Selections) {
		sel.ExcludedGenreIDs = ids
	})
}

func (a *App) saveOnboardingStep(c *gin.Context, next store.OnboardingState, mutate func(*store.Selections)) {
	user, ok := authUserFromContext(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "Unauthorized")
		return
	}
	progress, err := a.store.SaveOnboardingStep(c.Request.Context(), user.ID, next, mutate)
	if err != nil {
		a.internalError(c, "save onboarding step failed", err)
		return
	}
	c.JSON(http.StatusOK, toOnboardingResponse(progress))
}

func (a *App) generateRecommendations(c *gin.Context) {
	user, ok := authUserFromContext(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "Unauthorized")
		return
	}
	in, err := a.recommendationInput(c, user)
	if err != nil {
		a.writeRecommendError(c, err)
		return
	}
	rec, err := a.service.Recommend(c.Request.Context(), in)
	if err != nil {
		a.writeRecommendError(c, err)
		return
	}
	a.writeGenerated(c, rec)
}

// recommendationInput loads the stored onboarding signal. Favorites are the
// only required step.
func (a *App) recommendationInput(c *gin.Context, user recommend.User) (recommend.Input, error) {
	ctx := c.Request.Context()
	progress, err := a.store.GetOnboarding(ctx, user.ID)
	if err != nil {
		return recommend.Input{}, err
	}
	if len(progress.Selections.FavoriteMovieIDs) == 0 {
		return recommend.Input{}, recommend.ErrOnboardingIncomplete
	}

	favorites, err := a.store.MoviesByIDs(ctx, progress.Selections.FavoriteMovieIDs)
	if err != nil {
		return recommend.Input{}, err
	}
	interesting, err := a.store.MoviesByIDs(ctx, progress.Selections.InterestingMovieIDs)
	if err != nil {
		return recommend.Input{}, err
	}
	excluded, err := a.store.GenresByIDs(ctx, progress.Selections.ExcludedGenreIDs)
	if err != nil {
		return recommend.Input{}, err
	}
	return recommend.Input{
		User:        user,
		Favorites:   favorites,
		Interesting: interesting,
		Excluded:    excluded,
	}, nil
}

func (a *App) internalError(c *gin.Context, msg string, err error) {
	a.log.Error(msg, loggerFields(c, err)...)
	writeError(c, http.StatusInternalServerError, "Internal server error")
}

func distinctIDs(ids []int64) []int64 {
	out := make([]int64, 0, len(ids))
	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if id <= 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
