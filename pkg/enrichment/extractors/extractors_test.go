package extractors

import (
	"context"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectLanguage(t *testing.T) {
	cases := []struct {
		text       string
		language   string
		confidence float64
	}{
		{"The cat sat in the hat and it was fine", "en", 0.5},
		{"el perro de la casa que come en un parque", "es", 0.6},
		{"der Hund und die Katze mit den Kindern", "de", 0.5},
		{"zzz qqq", "en", 0.5},
		{"", "en", 0.5},
	}
	for _, tc := range cases {
		got := DetectLanguage(tc.text)
		assert.Equal(t, tc.language, got.Language, tc.text)
		assert.InDelta(t, tc.confidence, got.Confidence, 1e-9, tc.text)
	}

	long := strings.Repeat("the ", 40)
	assert.Equal(t, 1.0, DetectLanguage(long).Confidence)
}

func TestExtractKeyphrasesRanksAndIsDeterministic(t *testing.T) {
	text := "Startup tooling for startup founders: tooling matters, startup speed matters more. This that with"
	first := ExtractKeyphrases(text)
	second := ExtractKeyphrases(text)
	assert.Equal(t, first, second)

	require.NotEmpty(t, first)
	assert.Equal(t, Keyphrase{Phrase: "startup", Score: 1}, first[0])
	assert.Equal(t, "tooling", first[1].Phrase)
	assert.InDelta(t, 2.0/3.0, first[1].Score, 1e-9)
	for _, kp := range first {
		assert.Greater(t, len(kp.Phrase), 3)
		assert.NotEqual(t, "this", kp.Phrase)
	}
}

func TestExtractKeyphrasesCapsAtTen(t *testing.T) {
	words := []string{"alpha", "bravo", "charlie", "delta", "echo", "foxtrot", "golf", "hotel", "india", "juliet", "kilo", "lima"}
	got := ExtractKeyphrases(strings.Join(words, " "))
	require.Len(t, got, 10)
	assert.Equal(t, "alpha", got[0].Phrase)
	assert.Equal(t, "juliet", got[9].Phrase)

	assert.Empty(t, ExtractKeyphrases("Foo"))
}

func TestEntityExtractorDefaultRules(t *testing.T) {
	extractor, err := NewEntityExtractor(DefaultEntityRules())
	require.NoError(t, err)

	text := "Mail jane@example.com or see https://example.com/pricing. Raised $1,200.50 and 300 usd, up 12.5% with Acme Rocket Labs and New York City Tech Hub Group"
	entities := extractor.Extract(text)

	byType := map[string][]string{}
	var order []string
	for _, e := range entities {
		if len(byType[e.Type]) == 0 {
			order = append(order, e.Type)
		}
		byType[e.Type] = append(byType[e.Type], e.Text)
	}

	assert.Equal(t, []string{"email", "url", "money", "percentage", "proper_noun"}, order)
	assert.Equal(t, []string{"jane@example.com"}, byType["email"])
	assert.Contains(t, byType["money"], "$1,200.50")
	assert.Contains(t, byType["money"], "300 usd")
	assert.Contains(t, byType["percentage"], "12.5%")
	assert.Contains(t, byType["proper_noun"], "Acme Rocket Labs")
	assert.NotContains(t, byType["proper_noun"], "New York City Tech Hub Group")
}

func TestEntityExtractorCapsResults(t *testing.T) {
	extractor, err := NewEntityExtractor(DefaultEntityRules())
	require.NoError(t, err)
	assert.Len(t, extractor.Extract(strings.Repeat("5% ", 80)), 50)
}

func TestLoadEntityRulesFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
rules:
  - name: Ticker
    type: ticker
    pattern: '\$[A-Z]{2,5}\b'
    enabled: true
  - name: Off
    type: off
    pattern: '.'
    enabled: false
`), 0o600))

	rules, err := LoadEntityRules(path)
	require.NoError(t, err)
	extractor, err := NewEntityExtractor(rules)
	require.NoError(t, err)
	assert.Equal(t, []Entity{{Text: "$TSLA", Type: "ticker"}}, extractor.Extract("long $TSLA today"))

	_, err = NewEntityExtractor(EntityRules{Rules: []EntityRule{{Name: "bad", Pattern: "(", Enabled: true}}})
	assert.Error(t, err)
}

func TestAnalyzeSentiment(t *testing.T) {
	assert.Equal(t, Sentiment{Score: 1, Label: SentimentPositive}, AnalyzeSentiment("great great excellent"))
	assert.Equal(t, Sentiment{Score: -1, Label: SentimentNegative}, AnalyzeSentiment("terrible problem"))
	assert.Equal(t, SentimentNeutral, AnalyzeSentiment("a plain sentence").Label)

	mixed := AnalyzeSentiment(strings.Repeat("word ", 19) + "good")
	assert.InDelta(t, 0.5, mixed.Score, 1e-9)
	assert.Equal(t, SentimentPositive, mixed.Label)
}

func TestGenerateEmbedding(t *testing.T) {
	a := GenerateEmbedding("hello world")
	b := GenerateEmbedding("hello world")
	assert.Equal(t, a, b)
	assert.Equal(t, EmbeddingModel, a.Model)
	require.Len(t, a.Vector, EmbeddingDimensions)

	var sum float64
	for _, v := range a.Vector {
		sum += v * v
	}
	assert.InDelta(t, 1.0, math.Sqrt(sum), 1e-9)

	empty := GenerateEmbedding("")
	require.Len(t, empty.Vector, EmbeddingDimensions)
	for _, v := range empty.Vector {
		assert.Zero(t, v)
	}
}

func TestReadabilityExtract(t *testing.T) {
	words := strings.Repeat("lorem ", 250)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.Header.Get("User-Agent"), "EnrichmentBot")
		w.Write([]byte(`<html><head><title>Page</title><style>.x{}</style></head><body>
<script>var ignored = 1;</script><h1>Heading</h1><p>` + words + `</p><p>tail</p></body></html>`))
	}))
	defer srv.Close()

	got := NewReadability(srv.Client(), time.Second).Extract(context.Background(), srv.URL)
	assert.Equal(t, 252, got.WordCount)
	assert.Equal(t, 2, got.ReadingTime)
	assert.True(t, strings.HasPrefix(got.Content, "Heading lorem"))
	assert.NotContains(t, got.Content, "ignored")
	assert.True(t, strings.HasSuffix(got.Content, "lorem tail"))
	assert.Len(t, []rune(got.Excerpt), 500)
}

func TestReadabilityFailuresYieldZero(t *testing.T) {
	notFound := httptest.NewServer(http.NotFoundHandler())
	defer notFound.Close()

	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer slow.Close()

	r := NewReadability(nil, 50*time.Millisecond)
	for _, u := range []string{notFound.URL, slow.URL, "", "mailto:x@y.z", "http://127.0.0.1:1/"} {
		assert.Equal(t, ReadabilityResult{}, r.Extract(context.Background(), u), u)
	}
}
