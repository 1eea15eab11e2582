// Package store is the Postgres side of the recommendation pipeline.
package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"cinememory/backend/internal/logger"
	"cinememory/backend/internal/recommend"
)

var ErrUserNotFound = errors.New("user not found")

type dbQuerier interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
}

type Store struct {
	pool *pgxpool.Pool
	log  *zap.Logger
}

func New(pool *pgxpool.Pool, log *zap.Logger) *Store {
	return &Store{pool: pool, log: logger.OrNop(log)}
}

var (
	_ recommend.Catalog    = (*Store)(nil)
	_ recommend.UnitOfWork = (*Store)(nil)
	_ recommend.Tx         = (*txWriter)(nil)
)

const movieColumns = `m.id, m.title, m."releaseDate", m.popularity, m."voteAverage", COALESCE(m."posterPath", ''),
	ARRAY(
	  SELECT g.name FROM "MovieGenre" mg
	  JOIN "Genre" g ON g.id = mg."genreId"
	  WHERE mg."movieId" = m.id
	  ORDER BY g.id
	)`

func scanMovie(row pgx.Row) (recommend.Movie, error) {
	var (
		movie   recommend.Movie
		release *time.Time
		genres  []string
	)
	if err := row.Scan(
		&movie.ID,
		&movie.Title,
		&release,
		&movie.Popularity,
		&movie.VoteAverage,
		&movie.PosterPath,
		&genres,
	); err != nil {
		return recommend.Movie{}, err
	}
	movie.ReleaseDate = release
	movie.Genres = genres
	return movie, nil
}

func collectMovies(rows pgx.Rows) ([]recommend.Movie, error) {
	defer rows.Close()
	movies := make([]recommend.Movie, 0)
	for rows.Next() {
		movie, err := scanMovie(rows)
		if err != nil {
			return nil, err
		}
		movies = append(movies, movie)
	}
	return movies, rows.Err()
}

// likePattern escapes LIKE wildcards so model text is matched literally.
func likePattern(fragment string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + replacer.Replace(fragment) + "%"
}

func (s *Store) GetUser(ctx context.Context, userID string) (recommend.User, error) {
	return getUser(ctx, s.pool, userID)
}

func getUser(ctx context.Context, q dbQuerier, userID string) (recommend.User, error) {
	var user recommend.User
	err := q.QueryRow(
		ctx,
		`SELECT id, username, "birthDate" FROM "User" WHERE id = $1`,
		userID,
	).Scan(&user.ID, &user.Username, &user.BirthDate)
	if errors.Is(err, pgx.ErrNoRows) {
		return recommend.User{}, ErrUserNotFound
	}
	if err != nil {
		return recommend.User{}, err
	}
	return user, nil
}

// CreateUser inserts the user, or returns the stored row when the id exists.
func (s *Store) CreateUser(ctx context.Context, user recommend.User) (recommend.User, error) {
	if _, err := s.pool.Exec(
		ctx,
		`INSERT INTO "User" (id, username, "birthDate", "createdAt")
		 VALUES ($1, $2, $3, NOW())
		 ON CONFLICT (id) DO NOTHING`,
		user.ID,
		user.Username,
		user.BirthDate,
	); err != nil {
		return recommend.User{}, err
	}
	return getUser(ctx, s.pool, user.ID)
}
