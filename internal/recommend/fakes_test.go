package recommend

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

func date(year int) *time.Time {
	t := time.Date(year, time.June, 1, 0, 0, 0, 0, time.UTC)
	return &t
}

func testUser() User {
	return User{
		ID:        "user-1",
		Username:  "minji",
		BirthDate: time.Date(1995, time.March, 14, 0, 0, 0, 0, time.UTC),
	}
}

func fixedNow() time.Time {
	return time.Date(2025, time.October, 1, 12, 0, 0, 0, time.UTC)
}

// memoryCatalog orders by id, which stands in for the catalog's default ordering.
type memoryCatalog struct {
	movies  []Movie
	err     error
	queries []string
}

func newMemoryCatalog(movies ...Movie) *memoryCatalog {
	sorted := append([]Movie(nil), movies...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })
	return &memoryCatalog{movies: sorted}
}

func (c *memoryCatalog) FirstByTitle(_ context.Context, fragment string, year int) (Movie, bool, error) {
	c.queries = append(c.queries, fragment)
	if c.err != nil {
		return Movie{}, false, c.err
	}
	needle := strings.ToLower(fragment)
	for _, movie := range c.movies {
		if !strings.Contains(strings.ToLower(movie.Title), needle) {
			continue
		}
		if year != 0 && movie.ReleaseYear() != year {
			continue
		}
		return movie, true, nil
	}
	return Movie{}, false, nil
}

func (c *memoryCatalog) PopularMovies(_ context.Context, minPopularity float64, limit int) ([]Movie, error) {
	if c.err != nil {
		return nil, c.err
	}
	out := make([]Movie, 0)
	for _, movie := range c.movies {
		if movie.Popularity > minPopularity {
			out = append(out, movie)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Popularity > out[j].Popularity })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (c *memoryCatalog) TimelineCandidates(_ context.Context, q CandidateQuery) ([]Movie, error) {
	if c.err != nil {
		return nil, c.err
	}
	wanted := make(map[string]struct{}, len(q.Genres))
	for _, g := range q.Genres {
		wanted[g] = struct{}{}
	}
	out := make([]Movie, 0)
	for _, movie := range c.movies {
		year := movie.ReleaseYear()
		if year < q.FromYear || year > q.ToYear || movie.VoteAverage < q.MinRating {
			continue
		}
		for _, g := range movie.Genres {
			if _, ok := wanted[g]; ok {
				out = append(out, movie)
				break
			}
		}
	}
	sortCandidates(out)
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

type storeState struct {
	sets             map[string]RecommendationSet
	entries          map[string][]RecommendedMovieEntry
	onboarding       map[string]string
	userSummaries    map[string]string
	profiles         map[string]TasteProfile
	timeline         map[string][]TimelineEntry
	saveProfileCalls int
}

func newStoreState() storeState {
	return storeState{
		sets:          map[string]RecommendationSet{},
		entries:       map[string][]RecommendedMovieEntry{},
		onboarding:    map[string]string{},
		userSummaries: map[string]string{},
		profiles:      map[string]TasteProfile{},
		timeline:      map[string][]TimelineEntry{},
	}
}

func (s storeState) clone() storeState {
	out := newStoreState()
	for k, v := range s.sets {
		out.sets[k] = v
	}
	for k, v := range s.entries {
		out.entries[k] = append([]RecommendedMovieEntry(nil), v...)
	}
	for k, v := range s.onboarding {
		out.onboarding[k] = v
	}
	for k, v := range s.userSummaries {
		out.userSummaries[k] = v
	}
	for k, v := range s.profiles {
		out.profiles[k] = v
	}
	for k, v := range s.timeline {
		out.timeline[k] = append([]TimelineEntry(nil), v...)
	}
	out.saveProfileCalls = s.saveProfileCalls
	return out
}

var errInjected = errors.New("injected persistence failure")

// memoryStore copies state at the start of Within and only publishes the
// copy when fn succeeds.
type memoryStore struct {
	mu             sync.Mutex
	state          storeState
	failOnInsert   int
	inserts        int
	phantomMovieID int64
}

func newMemoryStore() *memoryStore {
	return &memoryStore{state: newStoreState()}
}

func (m *memoryStore) Within(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx := &memoryTx{store: m, state: m.state.clone()}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	m.state = tx.state
	return nil
}

func (m *memoryStore) entriesFor(userID string) []RecommendedMovieEntry {
	set, ok := m.state.sets[userID]
	if !ok {
		return nil
	}
	return m.state.entries[set.ID]
}

type memoryTx struct {
	store *memoryStore
	state storeState
}

func (t *memoryTx) GetRecommendationSet(_ context.Context, userID string) (RecommendationSet, bool, error) {
	set, ok := t.state.sets[userID]
	return set, ok, nil
}

func (t *memoryTx) UpsertRecommendationSet(_ context.Context, userID, tasteSummary string) (RecommendationSet, error) {
	set, ok := t.state.sets[userID]
	if !ok {
		set = RecommendationSet{ID: uuid.NewString(), UserID: userID, CreatedAt: fixedNow()}
	}
	set.TasteSummary = tasteSummary
	set.UpdatedAt = fixedNow()
	t.state.sets[userID] = set
	return set, nil
}

func (t *memoryTx) DeleteRecommendedMovies(_ context.Context, setID string) error {
	delete(t.state.entries, setID)
	if t.store.phantomMovieID != 0 {
		t.state.entries[setID] = []RecommendedMovieEntry{{SetID: setID, MovieID: t.store.phantomMovieID, Order: 99}}
	}
	return nil
}

func (t *memoryTx) RecommendedMovieExists(_ context.Context, setID string, movieID int64) (bool, error) {
	for _, entry := range t.state.entries[setID] {
		if entry.MovieID == movieID {
			return true, nil
		}
	}
	return false, nil
}

func (t *memoryTx) InsertRecommendedMovie(_ context.Context, entry RecommendedMovieEntry) error {
	t.store.inserts++
	if t.store.failOnInsert > 0 && t.store.inserts == t.store.failOnInsert {
		return errInjected
	}
	for _, existing := range t.state.entries[entry.SetID] {
		if existing.MovieID == entry.MovieID {
			return errors.New("unique violation on (set, movie)")
		}
	}
	t.state.entries[entry.SetID] = append(t.state.entries[entry.SetID], entry)
	return nil
}

func (t *memoryTx) CompleteOnboarding(_ context.Context, userID string) error {
	t.state.onboarding[userID] = "COMPLETED"
	return nil
}

func (t *memoryTx) UpdateUserTasteSummary(_ context.Context, userID, tasteSummary string) error {
	t.state.userSummaries[userID] = tasteSummary
	return nil
}

func (t *memoryTx) SaveTasteProfile(_ context.Context, profile TasteProfile) error {
	t.state.saveProfileCalls++
	t.state.profiles[profile.UserID] = profile
	return nil
}

func (t *memoryTx) DeleteTimeline(_ context.Context, userID string) error {
	delete(t.state.timeline, userID)
	return nil
}

func (t *memoryTx) InsertTimelineEntry(_ context.Context, entry TimelineEntry) error {
	t.store.inserts++
	if t.store.failOnInsert > 0 && t.store.inserts == t.store.failOnInsert {
		return errInjected
	}
	t.state.timeline[entry.UserID] = append(t.state.timeline[entry.UserID], entry)
	return nil
}
