// Package extractors holds the heuristic text signals computed for every
// scraped item. Apart from Readability, all of them are pure functions of
// their input.
package extractors

import (
	"sort"
	"strings"

	"github.com/tomakado/containers/set"
)

type Language struct {
	Language   string  `json:"language"`
	Confidence float64 `json:"confidence"`
}

const (
	languageSampleWords = 100
	defaultLanguage     = "en"
)

var (
	englishWords = set.New("the", "be", "to", "of", "and", "a", "in", "that", "have", "it")
	spanishWords = set.New("el", "la", "de", "que", "y", "a", "en", "un", "ser", "se")
	frenchWords  = set.New("le", "de", "un", "être", "et", "à", "il", "avoir", "ne", "je")
	germanWords  = set.New("der", "die", "und", "in", "den", "von", "zu", "das", "mit", "sich")
)

// Earlier profiles win ties.
var languageProfiles = []struct {
	code     string
	contains func(string) bool
}{
	{"en", englishWords.Contains},
	{"es", spanishWords.Contains},
	{"fr", frenchWords.Contains},
	{"de", germanWords.Contains},
}

// DetectLanguage scores the first hundred words against small common-word
// lists. No hit at all falls back to English at 0.5.
func DetectLanguage(text string) Language {
	words := strings.Fields(strings.ToLower(text))
	if len(words) > languageSampleWords {
		words = words[:languageSampleWords]
	}

	best, bestScore := defaultLanguage, 0
	for _, profile := range languageProfiles {
		score := 0
		for _, w := range words {
			if profile.contains(w) {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = profile.code, score
		}
	}

	if bestScore == 0 {
		return Language{Language: defaultLanguage, Confidence: 0.5}
	}
	return Language{Language: best, Confidence: minFloat(float64(bestScore)/10, 1)}
}

type Keyphrase struct {
	Phrase string  `json:"phrase"`
	Score  float64 `json:"score"`
}

const maxKeyphrases = 10

var stopWords = set.New(
	"the", "be", "to", "of", "and", "a", "in", "that", "have", "it",
	"for", "not", "on", "with", "he", "as", "you", "do", "at", "this",
)

// ExtractKeyphrases ranks words longer than three characters by frequency.
// Equal frequencies keep first-occurrence order, so output is deterministic.
func ExtractKeyphrases(text string) []Keyphrase {
	counts := map[string]int{}
	var order []string
	for _, w := range strings.Fields(strings.ToLower(text)) {
		if len([]rune(w)) <= 3 || stopWords.Contains(w) {
			continue
		}
		if counts[w] == 0 {
			order = append(order, w)
		}
		counts[w]++
	}

	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})
	if len(order) > maxKeyphrases {
		order = order[:maxKeyphrases]
	}

	out := make([]Keyphrase, 0, len(order))
	if len(order) == 0 {
		return out
	}
	maxFreq := float64(counts[order[0]])
	for _, phrase := range order {
		out = append(out, Keyphrase{Phrase: phrase, Score: float64(counts[phrase]) / maxFreq})
	}
	return out
}

type Sentiment struct {
	Score float64 `json:"score"`
	Label string  `json:"label"`
}

const (
	SentimentPositive = "positive"
	SentimentNeutral  = "neutral"
	SentimentNegative = "negative"
)

var (
	positiveWords = set.New(
		"good", "great", "excellent", "amazing", "wonderful", "fantastic", "awesome",
		"best", "love", "perfect", "beautiful", "brilliant", "outstanding", "superb",
	)
	negativeWords = set.New(
		"bad", "terrible", "awful", "horrible", "worst", "hate", "poor", "disappointing",
		"useless", "waste", "annoying", "frustrating", "difficult", "problem",
	)
)

// AnalyzeSentiment nets lexicon hits and scales them by a tenth of the word
// count (at least one), clamped to [-1, 1].
func AnalyzeSentiment(text string) Sentiment {
	words := strings.Fields(strings.ToLower(text))

	hits := 0
	for _, w := range words {
		if positiveWords.Contains(w) {
			hits++
		}
		if negativeWords.Contains(w) {
			hits--
		}
	}

	scale := float64(len(words)) / 10
	if scale < 1 {
		scale = 1
	}
	score := float64(hits) / scale
	if score > 1 {
		score = 1
	} else if score < -1 {
		score = -1
	}

	label := SentimentNeutral
	switch {
	case score > 0.1:
		label = SentimentPositive
	case score < -0.1:
		label = SentimentNegative
	}
	return Sentiment{Score: score, Label: label}
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
