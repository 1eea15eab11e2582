package recommend

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"

	"go.uber.org/zap"

	"cinememory/backend/internal/logger"
)

const (
	fallbackPoolSize     = 20
	fallbackMinTargetAge = 10
)

type FallbackConfig struct {
	ReferenceYear int
	MinPopularity float64
}

// Fallback builds a catalog-only recommendation when the model path fails.
type Fallback struct {
	catalog Catalog
	cfg     FallbackConfig
	log     *zap.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

func NewFallback(catalog Catalog, cfg FallbackConfig, rng *rand.Rand, log *zap.Logger) *Fallback {
	if cfg.ReferenceYear == 0 {
		cfg.ReferenceYear = 2024
	}
	if cfg.MinPopularity == 0 {
		cfg.MinPopularity = 50
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Fallback{catalog: catalog, cfg: cfg, rng: rng, log: logger.OrNop(log)}
}

// Generate never fails: a catalog error yields an empty movie list with the
// templated summary.
func (f *Fallback) Generate(ctx context.Context, user User) Recommendation {
	result := Recommendation{
		TasteSummary: fmt.Sprintf(
			"%s님의 설문을 기반으로 취향을 파악해봤습니다! \n%s님은 다양한 장르를 즐기는 열린 취향이시네요.",
			user.Username,
			user.Username,
		),
		Movies: []RecommendedMovie{},
		Source: SourceFallback,
	}

	popular, err := f.catalog.PopularMovies(ctx, f.cfg.MinPopularity, fallbackPoolSize)
	if err != nil {
		f.log.Error("fallback catalog query failed", logger.WithUserID(user.ID), zap.Error(err))
		return result
	}

	for _, movie := range f.sample(popular, MaxRecommendedMovies) {
		result.Movies = append(result.Movies, RecommendedMovie{
			MovieID:   movie.ID,
			Title:     movie.Title,
			Reason:    fmt.Sprintf("%s은 많은 사람들에게 사랑받는 작품으로, 당신의 취향에도 잘 맞을 것 같습니다.", movie.Title),
			TargetAge: f.targetAge(user, movie),
		})
	}
	return result
}

func (f *Fallback) sample(movies []Movie, n int) []Movie {
	if len(movies) < n {
		n = len(movies)
	}
	f.mu.Lock()
	perm := f.rng.Perm(len(movies))
	f.mu.Unlock()

	picked := make([]Movie, 0, n)
	for _, idx := range perm[:n] {
		picked = append(picked, movies[idx])
	}
	return picked
}

// targetAge anchors on the reference year, which reduces to release year
// minus birth year, floored at fallbackMinTargetAge.
func (f *Fallback) targetAge(user User, movie Movie) int {
	release := movie.ReleaseYear()
	if release == 0 || user.BirthDate.IsZero() {
		return DefaultTargetAge
	}
	ref := f.cfg.ReferenceYear
	age := ref - user.BirthYear() - (ref - release)
	return max(age, fallbackMinTargetAge)
}
