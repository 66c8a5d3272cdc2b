package extractors

import (
	"bytes"
	"context"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"github.com/ideaforge/platform/pkg/common/logger"
)

const (
	wordsPerMinute     = 200
	excerptChars       = 500
	readabilityMaxBody = 5 << 20
	readabilityAgent   = "Mozilla/5.0 (compatible; EnrichmentBot/1.0)"
)

type ReadabilityResult struct {
	Title       string `json:"title,omitempty"`
	Content     string `json:"content,omitempty"`
	Excerpt     string `json:"excerpt,omitempty"`
	WordCount   int    `json:"wordCount"`
	ReadingTime int    `json:"readingTime"`
}

// Readability fetches the item page and measures its visible text. Every
// failure yields the zero result.
type Readability struct {
	client  *http.Client
	timeout time.Duration
}

func NewReadability(client *http.Client, timeout time.Duration) *Readability {
	if client == nil {
		client = http.DefaultClient
	}
	return &Readability{client: client, timeout: timeout}
}

func (r *Readability) Extract(ctx context.Context, pageURL string) ReadabilityResult {
	parsed, err := url.Parse(pageURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return ReadabilityResult{}
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	body, err := r.fetch(ctx, pageURL)
	if err != nil {
		logger.Log.WithError(err).WithField("url", pageURL).Debug("readability fetch failed")
		return ReadabilityResult{}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return ReadabilityResult{}
	}
	content := visibleText(doc)
	wordCount := len(strings.Fields(content))

	result := ReadabilityResult{
		Content:     content,
		Excerpt:     truncateRunes(content, excerptChars),
		WordCount:   wordCount,
		ReadingTime: int(math.Ceil(float64(wordCount) / wordsPerMinute)),
	}
	if article, err := readability.FromReader(bytes.NewReader(body), parsed); err == nil {
		result.Title = strings.TrimSpace(article.Title)
	}
	return result
}

func (r *Readability) fetch(ctx context.Context, pageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", readabilityAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &statusError{code: resp.StatusCode}
	}
	return io.ReadAll(io.LimitReader(resp.Body, readabilityMaxBody))
}

type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return "unexpected status " + http.StatusText(e.code)
}

// visibleText drops script and style blocks and separates every element
// boundary with a space before collapsing whitespace.
func visibleText(doc *goquery.Document) string {
	doc.Find("script, style").Remove()
	root := doc.Find("body")
	if root.Length() == 0 {
		root = doc.Selection
	}
	root.Find("*").Each(func(_ int, s *goquery.Selection) {
		s.PrependHtml(" ")
		s.AppendHtml(" ")
	})
	return strings.Join(strings.Fields(root.Text()), " ")
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
