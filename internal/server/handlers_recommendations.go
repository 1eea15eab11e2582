package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"cinememory/backend/internal/recommend"
)

func (a *App) getRecommendations(c *gin.Context) {
	user, ok := authUserFromContext(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "Unauthorized")
		return
	}
	view, found, err := a.store.GetRecommendationView(c.Request.Context(), user.ID)
	if err != nil {
		a.internalError(c, "load recommendations failed", err)
		return
	}
	if !found {
		writeError(c, http.StatusNotFound, "추천 결과가 없습니다.")
		return
	}
	c.JSON(http.StatusOK, toStoredResponse(view))
}

func (a *App) regenerateRecommendations(c *gin.Context) {
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
	rec, err := a.service.Regenerate(c.Request.Context(), in)
	if err != nil {
		a.writeRecommendError(c, err)
		return
	}
	a.writeGenerated(c, rec)
}

func (a *App) writeGenerated(c *gin.Context, rec recommend.Recommendation) {
	ids := make([]int64, 0, len(rec.Movies))
	for _, movie := range rec.Movies {
		ids = append(ids, movie.MovieID)
	}
	// The set is already committed; without movie rows entries keep id and title.
	movies, err := a.store.MoviesByIDs(c.Request.Context(), ids)
	if err != nil {
		a.log.Warn("load recommended movies failed", loggerFields(c, err)...)
		movies = nil
	}
	c.JSON(http.StatusOK, toGeneratedResponse(rec, movies))
}

// writeRecommendError hides persistence detail behind one generic message.
func (a *App) writeRecommendError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, recommend.ErrOnboardingIncomplete):
		writeError(c, http.StatusBadRequest, "온보딩 단계를 먼저 완료해주세요.")
	case errors.Is(err, recommend.ErrRecommendationNotFound):
		writeError(c, http.StatusNotFound, "추천 결과가 없습니다.")
	case errors.Is(err, recommend.ErrGenerationFailed):
		a.log.Warn("recommendation generation failed", loggerFields(c, err)...)
		writeError(c, http.StatusInternalServerError, "추천 생성 중 오류가 발생했습니다.")
	default:
		a.internalError(c, "recommendation request failed", err)
	}
}
