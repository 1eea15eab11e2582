package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"cinememory/backend/internal/config"
	"cinememory/backend/internal/logger"
	"cinememory/backend/internal/recommend"
	"cinememory/backend/internal/store"
)

// dataStore is the subset of *store.Store the handlers read and write.
type dataStore interface {
	GetUser(ctx context.Context, userID string) (recommend.User, error)
	CreateUser(ctx context.Context, user recommend.User) (recommend.User, error)

	MoviesByIDs(ctx context.Context, ids []int64) ([]recommend.Movie, error)
	OnboardingMovies(ctx context.Context) ([]recommend.Movie, error)
	HiddenGems(ctx context.Context) ([]recommend.Movie, error)
	RandomPopularMovie(ctx context.Context) (recommend.Movie, bool, error)
	ListGenres(ctx context.Context) ([]recommend.Genre, error)
	GenresByIDs(ctx context.Context, ids []int64) ([]recommend.Genre, error)

	GetOnboarding(ctx context.Context, userID string) (store.Onboarding, error)
	SaveOnboardingStep(ctx context.Context, userID string, next store.OnboardingState, mutate func(*store.Selections)) (store.Onboarding, error)

	GetRecommendationView(ctx context.Context, userID string) (store.RecommendationView, bool, error)
	GetTasteProfile(ctx context.Context, userID string) (recommend.TasteProfile, error)
	SaveSelectedMovies(ctx context.Context, userID string, movieIDs []int64) error
	Timeline(ctx context.Context, userID string) ([]store.TimelineRow, error)
}

type recommender interface {
	Recommend(ctx context.Context, in recommend.Input) (recommend.Recommendation, error)
	Regenerate(ctx context.Context, in recommend.Input) (recommend.Recommendation, error)
	AnalyzePreferences(ctx context.Context, in recommend.AnalyzeInput) (recommend.AnalyzeResult, error)
}

type App struct {
	cfg      config.Config
	store    dataStore
	service  recommender
	log      *zap.Logger
	gatherer prometheus.Gatherer
	metrics  *httpMetrics
}

type Deps struct {
	Store    dataStore
	Service  recommender
	Log      *zap.Logger
	Registry *prometheus.Registry
}

func New(cfg config.Config, deps Deps) *App {
	app := &App{
		cfg:     cfg,
		store:   deps.Store,
		service: deps.Service,
		log:     logger.OrNop(deps.Log),
	}
	if deps.Registry != nil {
		app.gatherer = deps.Registry
		app.metrics = newHTTPMetrics(deps.Registry)
	}
	return app
}

func (a *App) Router() *gin.Engine {
	router := gin.New()
	router.Use(a.requestLogger(), gin.Recovery())
	if a.metrics != nil {
		router.Use(a.metrics.middleware())
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     a.cfg.CORSAllowOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/health", a.health)
	if a.gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(a.gatherer, promhttp.HandlerOpts{})))
	}

	api := router.Group(a.cfg.APIPrefix)
	api.Use(a.authMiddleware())

	api.GET("/onboarding/status", a.onboardingStatus)
	api.GET("/onboarding/movies/famous", a.famousMovies)
	api.GET("/onboarding/movies/hidden", a.hiddenMovies)
	api.GET("/onboarding/movies/random", a.randomMovie)
	api.GET("/onboarding/genres", a.listGenres)
	api.POST("/onboarding/step1", a.saveFavoriteMovies)
	api.POST("/onboarding/step2", a.saveInterestingMovies)
	api.POST("/onboarding/step3", a.saveExcludedGenres)
	api.POST("/onboarding/step4/generate", a.generateRecommendations)
	api.GET("/recommendations", a.getRecommendations)
	api.POST("/recommendations/regenerate", a.regenerateRecommendations)
	api.GET("/preferences", a.getPreferences)
	api.PUT("/preferences", a.savePreferences)
	api.POST("/preferences/analyze", a.analyzePreferences)
	api.GET("/timeline", a.getTimeline)

	return router
}

func (a *App) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "cinememory-api",
	})
}

func (a *App) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if !strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
			writeError(c, http.StatusUnauthorized, "Bearer token required")
			return
		}
		tokenString := strings.TrimSpace(authHeader[len("Bearer "):])
		if tokenString == "" {
			writeError(c, http.StatusUnauthorized, "Bearer token required")
			return
		}

		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
			if token.Method == nil || token.Method.Alg() != a.cfg.JWTAlgorithm {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return []byte(a.cfg.JWTSecret), nil
		})
		if err != nil || !token.Valid {
			writeError(c, http.StatusUnauthorized, "Invalid bearer token")
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			writeError(c, http.StatusUnauthorized, "Invalid token payload")
			return
		}
		if a.cfg.JWTAudience != "" && !claimHasAudience(claims["aud"], a.cfg.JWTAudience) {
			writeError(c, http.StatusUnauthorized, "Invalid token audience")
			return
		}
		if a.cfg.JWTIssuer != "" {
			issuer, _ := claims["iss"].(string)
			if issuer != a.cfg.JWTIssuer {
				writeError(c, http.StatusUnauthorized, "Invalid token issuer")
				return
			}
		}
		sub, _ := claims["sub"].(string)
		sub = strings.TrimSpace(sub)
		if sub == "" {
			writeError(c, http.StatusUnauthorized, "Token subject missing")
			return
		}

		user, err := a.getOrCreateUser(c.Request.Context(), sub, claims)
		if err != nil {
			writeError(c, http.StatusUnauthorized, err.Error())
			return
		}

		c.Set("authUser", user)
		c.Next()
	}
}

func claimHasAudience(value any, audience string) bool {
	switch v := value.(type) {
	case string:
		return v == audience
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && s == audience {
				return true
			}
		}
	case []string:
		for _, item := range v {
			if item == audience {
				return true
			}
		}
	}
	return false
}

// getOrCreateUser creates users on first sight when AUTH_AUTOCREATE_USER is
// on. The token must then carry a birth_date claim, since every
// recommendation depends on it.
func (a *App) getOrCreateUser(ctx context.Context, userID string, claims jwt.MapClaims) (recommend.User, error) {
	user, err := a.store.GetUser(ctx, userID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, store.ErrUserNotFound) {
		return recommend.User{}, err
	}
	if !a.cfg.AuthAutoCreateUser {
		return recommend.User{}, errors.New("User not found")
	}

	rawBirth, _ := claims["birth_date"].(string)
	birthDate, err := parseDate(rawBirth)
	if err != nil {
		return recommend.User{}, errors.New("birth_date claim required")
	}

	username := ""
	for _, key := range []string{"username", "name"} {
		if raw, ok := claims[key].(string); ok && strings.TrimSpace(raw) != "" {
			username = strings.TrimSpace(raw)
			break
		}
	}
	if username == "" {
		username = fmt.Sprintf("user-%s", truncate(userID, 8))
	}

	return a.store.CreateUser(ctx, recommend.User{
		ID:        userID,
		Username:  username,
		BirthDate: birthDate,
	})
}

func truncate(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	return value[:limit]
}

func authUserFromContext(c *gin.Context) (recommend.User, bool) {
	raw, ok := c.Get("authUser")
	if !ok {
		return recommend.User{}, false
	}
	user, ok := raw.(recommend.User)
	return user, ok
}

func writeError(c *gin.Context, status int, detail string) {
	c.AbortWithStatusJSON(status, gin.H{"detail": detail})
}

func mustJSON(c *gin.Context, payload any) bool {
	if err := c.ShouldBindJSON(payload); err != nil {
		writeError(c, http.StatusBadRequest, "Invalid request payload")
		return false
	}
	return true
}

func parseDate(value string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", strings.TrimSpace(value))
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
}
