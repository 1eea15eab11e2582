package recommend

import (
	"context"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"cinememory/backend/internal/logger"
)

// Matcher resolves a model-supplied (title, year) pair against the catalog.
type Matcher struct {
	catalog Catalog
	log     *zap.Logger
}

func NewMatcher(catalog Catalog, log *zap.Logger) *Matcher {
	return &Matcher{catalog: catalog, log: logger.OrNop(log)}
}

// Match tries title+year, then title alone, then each token longer than two
// characters. Lookup errors count as no match.
func (m *Matcher) Match(ctx context.Context, title string, year int) (Movie, bool) {
	title = strings.TrimSpace(title)
	if title == "" {
		return Movie{}, false
	}

	movie, ok, err := m.match(ctx, title, year)
	if err != nil {
		m.log.Warn("catalog lookup failed",
			zap.String("title", title),
			zap.Int("year", year),
			zap.Error(err),
		)
		return Movie{}, false
	}
	return movie, ok
}

func (m *Matcher) match(ctx context.Context, title string, year int) (Movie, bool, error) {
	if year > 0 {
		movie, ok, err := m.catalog.FirstByTitle(ctx, title, year)
		if err != nil || ok {
			return movie, ok, err
		}
	}

	movie, ok, err := m.catalog.FirstByTitle(ctx, title, 0)
	if err != nil || ok {
		return movie, ok, err
	}

	for _, word := range strings.Fields(title) {
		if utf8.RuneCountInString(word) <= 2 {
			continue
		}
		movie, ok, err := m.catalog.FirstByTitle(ctx, word, 0)
		if err != nil || ok {
			return movie, ok, err
		}
	}
	return Movie{}, false, nil
}
