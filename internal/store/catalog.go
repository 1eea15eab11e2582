package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"cinememory/backend/internal/recommend"
)

const (
	onboardingMovieLimit = 30
	hiddenGemMinRating   = 7.0
	hiddenGemMaxPop      = 50.0
	randomMovieMinPop    = 50.0
)

func (s *Store) FirstByTitle(ctx context.Context, fragment string, year int) (recommend.Movie, bool, error) {
	movie, err := scanMovie(s.pool.QueryRow(
		ctx,
		`SELECT `+movieColumns+`
		 FROM "Movie" m
		 WHERE m.title ILIKE $1
		   AND ($2::int = 0 OR EXTRACT(YEAR FROM m."releaseDate")::int = $2::int)
		 ORDER BY m.id
		 LIMIT 1`,
		likePattern(fragment),
		year,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return recommend.Movie{}, false, nil
	}
	if err != nil {
		return recommend.Movie{}, false, fmt.Errorf("find movie by title: %w", err)
	}
	return movie, true, nil
}

func (s *Store) PopularMovies(ctx context.Context, minPopularity float64, limit int) ([]recommend.Movie, error) {
	rows, err := s.pool.Query(
		ctx,
		`SELECT `+movieColumns+`
		 FROM "Movie" m
		 WHERE m.popularity > $1
		 ORDER BY m.popularity DESC, m.id
		 LIMIT $2`,
		minPopularity,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query popular movies: %w", err)
	}
	return collectMovies(rows)
}

func (s *Store) TimelineCandidates(ctx context.Context, q recommend.CandidateQuery) ([]recommend.Movie, error) {
	rows, err := s.pool.Query(
		ctx,
		`SELECT `+movieColumns+`
		 FROM "Movie" m
		 WHERE EXISTS (
		   SELECT 1 FROM "MovieGenre" mg
		   JOIN "Genre" g ON g.id = mg."genreId"
		   WHERE mg."movieId" = m.id AND g.name = ANY($1::text[])
		 )
		   AND EXTRACT(YEAR FROM m."releaseDate")::int BETWEEN $2::int AND $3::int
		   AND m."voteAverage" >= $4
		 ORDER BY m."voteAverage" DESC, m.popularity DESC, m.id
		 LIMIT $5`,
		q.Genres,
		q.FromYear,
		q.ToYear,
		q.MinRating,
		q.Limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query timeline candidates: %w", err)
	}
	return collectMovies(rows)
}

// MoviesByIDs returns the movies in the order of ids, skipping unknown ids.
func (s *Store) MoviesByIDs(ctx context.Context, ids []int64) ([]recommend.Movie, error) {
	if len(ids) == 0 {
		return []recommend.Movie{}, nil
	}
	rows, err := s.pool.Query(
		ctx,
		`SELECT `+movieColumns+`
		 FROM "Movie" m
		 WHERE m.id = ANY($1::bigint[])`,
		ids,
	)
	if err != nil {
		return nil, fmt.Errorf("query movies by id: %w", err)
	}
	movies, err := collectMovies(rows)
	if err != nil {
		return nil, err
	}
	return orderByIDs(movies, ids), nil
}

func orderByIDs(movies []recommend.Movie, ids []int64) []recommend.Movie {
	byID := make(map[int64]recommend.Movie, len(movies))
	for _, movie := range movies {
		byID[movie.ID] = movie
	}
	out := make([]recommend.Movie, 0, len(ids))
	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		movie, ok := byID[id]
		if !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, movie)
	}
	return out
}

// OnboardingMovies returns the curated famous titles by priority.
func (s *Store) OnboardingMovies(ctx context.Context) ([]recommend.Movie, error) {
	rows, err := s.pool.Query(
		ctx,
		`SELECT `+movieColumns+`
		 FROM "Movie" m
		 WHERE m."isOnboardingMovie"
		 ORDER BY m."onboardingPriority", m.id
		 LIMIT $1`,
		onboardingMovieLimit,
	)
	if err != nil {
		return nil, fmt.Errorf("query onboarding movies: %w", err)
	}
	return collectMovies(rows)
}

// HiddenGems returns well rated movies that few people have seen.
func (s *Store) HiddenGems(ctx context.Context) ([]recommend.Movie, error) {
	rows, err := s.pool.Query(
		ctx,
		`SELECT `+movieColumns+`
		 FROM "Movie" m
		 WHERE m."voteAverage" >= $1 AND m.popularity < $2
		 ORDER BY m."voteAverage" DESC, m.id
		 LIMIT $3`,
		hiddenGemMinRating,
		hiddenGemMaxPop,
		onboardingMovieLimit,
	)
	if err != nil {
		return nil, fmt.Errorf("query hidden gems: %w", err)
	}
	return collectMovies(rows)
}

// RandomPopularMovie is shown while analysis runs. ok is false on an empty
// catalog.
func (s *Store) RandomPopularMovie(ctx context.Context) (recommend.Movie, bool, error) {
	movie, err := scanMovie(s.pool.QueryRow(
		ctx,
		`SELECT `+movieColumns+`
		 FROM "Movie" m
		 WHERE m.popularity > $1
		 ORDER BY random()
		 LIMIT 1`,
		randomMovieMinPop,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return recommend.Movie{}, false, nil
	}
	if err != nil {
		return recommend.Movie{}, false, fmt.Errorf("query random movie: %w", err)
	}
	return movie, true, nil
}

func (s *Store) ListGenres(ctx context.Context) ([]recommend.Genre, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name FROM "Genre" ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query genres: %w", err)
	}
	defer rows.Close()

	genres := make([]recommend.Genre, 0)
	for rows.Next() {
		var genre recommend.Genre
		if err := rows.Scan(&genre.ID, &genre.Name); err != nil {
			return nil, err
		}
		genres = append(genres, genre)
	}
	return genres, rows.Err()
}

func (s *Store) GenresByIDs(ctx context.Context, ids []int64) ([]recommend.Genre, error) {
	if len(ids) == 0 {
		return []recommend.Genre{}, nil
	}
	rows, err := s.pool.Query(
		ctx,
		`SELECT id, name FROM "Genre" WHERE id = ANY($1::bigint[]) ORDER BY id`,
		ids,
	)
	if err != nil {
		return nil, fmt.Errorf("query genres by id: %w", err)
	}
	defer rows.Close()

	genres := make([]recommend.Genre, 0, len(ids))
	for rows.Next() {
		var genre recommend.Genre
		if err := rows.Scan(&genre.ID, &genre.Name); err != nil {
			return nil, err
		}
		genres = append(genres, genre)
	}
	return genres, rows.Err()
}
