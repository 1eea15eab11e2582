package recommend

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	adultAge           = 19
	noMoviesSelected   = "선택 안함"
	noGenresExcluded   = "없음"
	listSeparator      = ", "
	unknownReleaseYear = "N/A"
)

type Prompt struct {
	System string
	User   string
}

const recommendationSystemPrompt = "당신은 영화 추천 전문가입니다. 사용자의 취향을 분석하고 개인화된 영화를 추천해주세요. 반드시 요청된 JSON 형식으로 응답해주세요."

// BuildRecommendationPrompt assembles the instruction block for the
// onboarding recommendation call.
func BuildRecommendationPrompt(user User, favorites, interesting []Movie, excluded []Genre, now time.Time) Prompt {
	birthYear := user.BirthYear()
	age := user.AgeIn(now)
	adult := "미성년자"
	if age >= adultAge {
		adult = "성인"
	}

	excludedNames := make([]string, 0, len(excluded))
	for _, genre := range excluded {
		if name := strings.TrimSpace(genre.Name); name != "" {
			excludedNames = append(excludedNames, name)
		}
	}

	lines := []string{
		"사용자 정보 분석 및 영화 추천 요청:",
		"",
		"**사용자 프로필:**",
		"- 이름: " + user.Username,
		fmt.Sprintf("- 출생년도: %d년", birthYear),
		fmt.Sprintf("- 현재 나이: %d세", age),
		"- 성인 여부: " + adult,
		"",
		"**재밌게 본 영화들:**",
		joinOrPlaceholder(movieSignals(favorites), noMoviesSelected),
		"",
		"**재밌어 보이는 영화들:**",
		joinOrPlaceholder(movieSignals(interesting), noMoviesSelected),
		"",
		"**제외할 장르:**",
		joinOrPlaceholder(excludedNames, noGenresExcluded),
		"",
		"**요청사항:**",
		"1. 사용자의 영화 취향을 분석하여 개성 있는 취향 분석 텍스트를 작성해주세요.",
		fmt.Sprintf(`- 형식: "%s님은 [구체적인 취향 분석] 취향이시네요."`, user.Username),
		"- 단순한 장르 나열이 아닌, 영화를 통해 추구하는 가치나 선호하는 스토리텔링 방식 등을 포함해주세요.",
		fmt.Sprintf("2. %d년 이후 개봉한 영화 중에서 사용자의 취향과 맞는 영화 정확히 %d개를 추천해주세요.", birthYear, MaxRecommendedMovies),
		"- 다양한 개봉 연도의 영화를 포함해주세요.",
		"- 제외 장르는 피해서 추천해주세요.",
		"- 각 영화에 대해 사용자가 몇 살 때 개봉했는지 계산해주세요. (target_age는 반드시 숫자만 입력)",
		"3. 각 영화별로 왜 이 사용자에게 맞는지, 사용자가 선택한 영화들과의 연관성을 바탕으로 구체적인 추천 근거를 제시해주세요.",
		"",
		"**응답 형식 (반드시 유효한 JSON 객체만 반환):**",
		recommendationSchema,
		"실제 존재하는 영화만 추천해주세요. 마크다운, 코드펜스, 부가 설명 텍스트는 금지합니다.",
	}
	return Prompt{
		System: recommendationSystemPrompt,
		User:   strings.Join(lines, "\n"),
	}
}

const recommendationSchema = `{
  "taste_summary": "취향 분석한 결과 텍스트",
  "movies": [
    {
      "movie_id": "영화 고유 번호",
      "title": "영화 제목",
      "release_year": "개봉년도",
      "reason": "이 영화를 추천하는 구체적 이유",
      "target_age": 0
    }
  ]
}`

func movieSignals(movies []Movie) []string {
	out := make([]string, 0, len(movies))
	for _, movie := range movies {
		out = append(out, formatMovieSignal(movie))
	}
	return out
}

func formatMovieSignal(movie Movie) string {
	year := unknownReleaseYear
	if y := movie.ReleaseYear(); y > 0 {
		year = strconv.Itoa(y)
	}
	return fmt.Sprintf("%s (%s)", strings.TrimSpace(movie.Title), year)
}

func joinOrPlaceholder(items []string, placeholder string) string {
	if len(items) == 0 {
		return placeholder
	}
	return strings.Join(items, listSeparator)
}

const analysisSystemPrompt = "당신은 영화 전문가이며, 사용자의 영화 취향을 정확히 분석하는 전문가입니다. 반드시 유효한 JSON 형식으로 응답해주세요."

// BuildAnalysisPrompt asks for a structured taste profile from the movies a
// user picked on the preference screen.
func BuildAnalysisPrompt(user User, selected []Movie, now time.Time) Prompt {
	movieLines := make([]string, 0, len(selected))
	for _, movie := range selected {
		genres := strings.Join(movie.Genres, listSeparator)
		movieLines = append(movieLines, fmt.Sprintf(
			"- %s | 장르: %s | 평점: %s",
			formatMovieSignal(movie),
			genres,
			strconv.FormatFloat(movie.VoteAverage, 'f', -1, 64),
		))
	}

	lines := []string{
		"사용자가 선택한 영화들을 분석하여 취향을 파악해주세요:",
		"",
		"사용자 정보:",
		"- 생년월일: " + user.BirthDate.Format("2006-01-02"),
		fmt.Sprintf("- 현재 나이: %d세", exactAge(user.BirthDate, now)),
		"",
		"선택된 영화들:",
		strings.Join(movieLines, "\n"),
		"",
		"다음 JSON 형식으로 정확히 분석 결과를 제공해주세요:",
		analysisSchema,
		"",
		"분석 기준:",
		"1. 장르는 한국어로 표기 (액션, 드라마, 코미디, SF, 로맨스, 스릴러, 호러, 애니메이션 등)",
		"2. 연대는 영어로 표기 (1980s, 1990s, 2000s, 2010s, 2020s)",
		"3. 사용자의 나이를 고려한 맞춤형 분석",
		"4. 선택한 영화들의 공통점과 패턴 파악",
	}
	return Prompt{
		System: analysisSystemPrompt,
		User:   strings.Join(lines, "\n"),
	}
}

const analysisSchema = `{
  "preferred_genres": ["장르1", "장르2", "장르3"],
  "preferred_decades": ["1990s", "2000s", "2010s"],
  "storytelling_preference": "액션 중심적 스토리텔링",
  "tone_preference": "진지하고 현실적인 톤",
  "recommendation_keywords": ["키워드1", "키워드2", "키워드3", "키워드4", "키워드5"],
  "analysis_summary": "이 사용자는... (100자 이내 요약)"
}`

func exactAge(birth, now time.Time) int {
	age := now.Year() - birth.Year()
	if now.Month() < birth.Month() || (now.Month() == birth.Month() && now.Day() < birth.Day()) {
		age--
	}
	return age
}
