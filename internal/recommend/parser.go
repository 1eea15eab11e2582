package recommend

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

const defaultReason = "추천 근거"

var (
	digitRun     = regexp.MustCompile(`\d+`)
	leadingYear  = regexp.MustCompile(`^(\d{4})(?:\D|$)`)
	nullLiteral  = []byte("null")
	minValidYear = 1870
	maxValidYear = 9999
)

type modelPayload struct {
	TasteSummary any             `json:"taste_summary"`
	Movies       json.RawMessage `json:"movies"`
}

type modelMovie struct {
	MovieID     any `json:"movie_id"`
	Title       any `json:"title"`
	ReleaseYear any `json:"release_year"`
	Reason      any `json:"reason"`
	TargetAge   any `json:"target_age"`
}

// Parser reconciles the model's free-text answer with the catalog.
type Parser struct {
	matcher *Matcher
}

func NewParser(matcher *Matcher) *Parser {
	return &Parser{matcher: matcher}
}

// Parse returns at most six catalog-resolved movies in model order, or an
// error wrapping ErrUnparseable when no usable JSON document is present.
// Entries without a catalog match are dropped.
func (p *Parser) Parse(ctx context.Context, raw string, user User) (Recommendation, error) {
	payload, movies, err := decodeModelPayload(raw)
	if err != nil {
		return Recommendation{}, err
	}

	resolved := make([]RecommendedMovie, 0, MaxRecommendedMovies)
	for _, item := range movies {
		title, _ := item.Title.(string)
		movie, ok := p.matcher.Match(ctx, title, parseReleaseYear(item.ReleaseYear))
		if !ok {
			continue
		}
		reason, _ := item.Reason.(string)
		if strings.TrimSpace(reason) == "" {
			reason = defaultReason
		}
		resolved = append(resolved, RecommendedMovie{
			MovieID:   movie.ID,
			Title:     movie.Title,
			Reason:    strings.TrimSpace(reason),
			TargetAge: NormalizeTargetAge(item.TargetAge),
		})
		if len(resolved) == MaxRecommendedMovies {
			break
		}
	}

	summary, _ := payload.TasteSummary.(string)
	if strings.TrimSpace(summary) == "" {
		summary = fmt.Sprintf("%s님의 취향을 분석했습니다.", user.Username)
	}
	return Recommendation{
		TasteSummary: strings.TrimSpace(summary),
		Movies:       resolved,
		Source:       SourceModel,
	}, nil
}

func decodeModelPayload(raw string) (modelPayload, []modelMovie, error) {
	document, err := extractJSONObject(raw)
	if err != nil {
		return modelPayload{}, nil, err
	}

	var payload modelPayload
	if err := json.Unmarshal([]byte(document), &payload); err != nil {
		return modelPayload{}, nil, fmt.Errorf("%w: %v", ErrUnparseable, err)
	}

	trimmed := bytes.TrimSpace(payload.Movies)
	if len(trimmed) == 0 || bytes.Equal(trimmed, nullLiteral) {
		return payload, nil, nil
	}
	var movies []modelMovie
	if err := json.Unmarshal(trimmed, &movies); err != nil {
		return modelPayload{}, nil, fmt.Errorf("%w: movies: %v", ErrUnparseable, err)
	}
	return payload, movies, nil
}

// extractJSONObject slices from the first '{' to the last '}', which strips
// code fences and chatter around the document.
func extractJSONObject(raw string) (string, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start == -1 || end == -1 || end < start {
		return "", fmt.Errorf("%w: no JSON object found", ErrUnparseable)
	}
	return raw[start : end+1], nil
}

// NormalizeTargetAge accepts "7세", 7 or 7.0. Text keeps its first digit run
// as is, "0세" included; missing, empty, numeric zero or digit-free values
// become DefaultTargetAge.
func NormalizeTargetAge(raw any) int {
	switch v := raw.(type) {
	case string:
		match := digitRun.FindString(v)
		if match == "" {
			return DefaultTargetAge
		}
		age, err := strconv.Atoi(match)
		if err != nil {
			return DefaultTargetAge
		}
		return age
	case float64:
		if v == 0 || math.IsNaN(v) || math.Abs(v) > math.MaxInt32 {
			return DefaultTargetAge
		}
		return int(v)
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return DefaultTargetAge
		}
		return NormalizeTargetAge(f)
	case int:
		if v == 0 {
			return DefaultTargetAge
		}
		return v
	default:
		return DefaultTargetAge
	}
}

// parseReleaseYear returns 0 unless raw holds a plausible 4-digit year.
func parseReleaseYear(raw any) int {
	var year int
	switch v := raw.(type) {
	case string:
		match := leadingYear.FindStringSubmatch(strings.TrimSpace(v))
		if match == nil {
			return 0
		}
		year, _ = strconv.Atoi(match[1])
	case float64:
		if v != math.Trunc(v) {
			return 0
		}
		year = int(v)
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0
		}
		year = int(n)
	default:
		return 0
	}
	if year < minValidYear || year > maxValidYear {
		return 0
	}
	return year
}
