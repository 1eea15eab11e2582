package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"cinememory/backend/internal/logger"
	"cinememory/backend/internal/recommend"
)

type analyzeRequest struct {
	ForceReanalyze bool `json:"force_reanalyze"`
}

func (a *App) getPreferences(c *gin.Context) {
	user, ok := authUserFromContext(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "Unauthorized")
		return
	}
	profile, err := a.store.GetTasteProfile(c.Request.Context(), user.ID)
	if err != nil {
		a.internalError(c, "load preferences failed", err)
		return
	}
	c.JSON(http.StatusOK, toPreferenceResponse(profile))
}

func (a *App) savePreferences(c *gin.Context) {
	user, ok := authUserFromContext(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "Unauthorized")
		return
	}
	var payload movieSelectionRequest
	if !mustJSON(c, &payload) {
		return
	}
	ctx := c.Request.Context()
	ids := distinctIDs(payload.MovieIDs)
	if err := a.store.SaveSelectedMovies(ctx, user.ID, ids); err != nil {
		a.internalError(c, "save preferences failed", err)
		return
	}
	profile, err := a.store.GetTasteProfile(ctx, user.ID)
	if err != nil {
		a.internalError(c, "load preferences failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"preference": toPreferenceResponse(profile),
		"message":    "취향 정보가 저장되었습니다.",
	})
}

// analyzePreferences accepts an empty body as force_reanalyze=false.
func (a *App) analyzePreferences(c *gin.Context) {
	user, ok := authUserFromContext(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "Unauthorized")
		return
	}
	var payload analyzeRequest
	if c.Request.ContentLength != 0 && !mustJSON(c, &payload) {
		return
	}

	ctx := c.Request.Context()
	profile, err := a.store.GetTasteProfile(ctx, user.ID)
	if err != nil {
		a.internalError(c, "load preferences failed", err)
		return
	}
	selected, err := a.store.MoviesByIDs(ctx, profile.SelectedMovieIDs)
	if err != nil {
		a.internalError(c, "load selected movies failed", err)
		return
	}

	result, err := a.service.AnalyzePreferences(ctx, recommend.AnalyzeInput{
		User:     user,
		Profile:  profile,
		Selected: selected,
		Force:    payload.ForceReanalyze,
	})
	var countErr *recommend.SelectionCountError
	switch {
	case errors.As(err, &countErr):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"detail":         "최소 5개의 영화를 선택해주세요.",
			"selected_count": countErr.Selected,
		})
		return
	case errors.Is(err, recommend.ErrGenerationFailed):
		a.log.Warn("taste analysis failed", loggerFields(c, err)...)
		writeError(c, http.StatusInternalServerError, "분석 중 오류가 발생했습니다.")
		return
	case err != nil:
		a.internalError(c, "taste analysis failed", err)
		return
	}

	if result.AlreadyAnalyzed {
		c.JSON(http.StatusOK, gin.H{
			"message":         "이미 분석이 완료되었습니다.",
			"analysis_result": result.Profile.Analysis,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":          "취향 분석이 완료되었습니다.",
		"analysis_result":  result.Profile.Analysis,
		"timeline_created": result.TimelineCreated,
		"source":           string(result.Source),
	})
}

func (a *App) getTimeline(c *gin.Context) {
	user, ok := authUserFromContext(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "Unauthorized")
		return
	}
	rows, err := a.store.Timeline(c.Request.Context(), user.ID)
	if err != nil {
		a.internalError(c, "load timeline failed", err)
		return
	}
	c.JSON(http.StatusOK, groupTimeline(rows))
}

func loggerFields(c *gin.Context, err error) []zap.Field {
	fields := []zap.Field{zap.Error(err), zap.String("path", routePath(c))}
	if user, ok := authUserFromContext(c); ok {
		fields = append(fields, logger.WithUserID(user.ID))
	}
	return fields
}
