package enrichment

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"runtime/debug"
	"strings"

	"github.com/ideaforge/platform/pkg/enrichment/extractors"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"
)

const topKeyphraseTags = 5

// Extractors are the six signal passes. Readability is the only one doing
// I/O; it must honour ctx.
type Extractors struct {
	Readability func(ctx context.Context, url string) extractors.ReadabilityResult
	Language    func(text string) extractors.Language
	Keyphrases  func(text string) []extractors.Keyphrase
	Entities    func(text string) []extractors.Entity
	Sentiment   func(text string) extractors.Sentiment
	Embedding   func(text string) extractors.Embedding
}

func DefaultExtractors(readability *extractors.Readability, entities *extractors.EntityExtractor) Extractors {
	return Extractors{
		Readability: readability.Extract,
		Language:    extractors.DetectLanguage,
		Keyphrases:  extractors.ExtractKeyphrases,
		Entities:    entities.Extract,
		Sentiment:   extractors.AnalyzeSentiment,
		Embedding:   extractors.GenerateEmbedding,
	}
}

type signalSet struct {
	readability extractors.ReadabilityResult
	language    extractors.Language
	keyphrases  []extractors.Keyphrase
	entities    []extractors.Entity
	sentiment   extractors.Sentiment
	embedding   extractors.Embedding
}

// ExtractorError names the pass that failed. Panics are turned into one,
// keeping the goroutine stack.
type ExtractorError struct {
	Extractor string
	Err       error
	Stack     string
}

func (e *ExtractorError) Error() string {
	return fmt.Sprintf("%s extractor: %v", e.Extractor, e.Err)
}

func (e *ExtractorError) Unwrap() error { return e.Err }

func guard(name string, fn func() error) func() error {
	return func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = &ExtractorError{Extractor: name, Err: fmt.Errorf("panic: %v", r), Stack: string(debug.Stack())}
			}
		}()
		if err := fn(); err != nil {
			return &ExtractorError{Extractor: name, Err: err}
		}
		return nil
	}
}

// run fans out to every extractor and joins. The first failure cancels
// the readability fetch and is returned; no partial set is produced.
func (x Extractors) run(ctx context.Context, url, text string) (signalSet, error) {
	var out signalSet
	g, gctx := errgroup.WithContext(ctx)

	g.Go(guard("readability", func() error {
		out.readability = x.Readability(gctx, url)
		return nil
	}))
	g.Go(guard("language", func() error {
		out.language = x.Language(text)
		return nil
	}))
	g.Go(guard("keyphrases", func() error {
		out.keyphrases = x.Keyphrases(text)
		return nil
	}))
	g.Go(guard("entities", func() error {
		out.entities = x.Entities(text)
		return nil
	}))
	g.Go(guard("sentiment", func() error {
		out.sentiment = x.Sentiment(text)
		return nil
	}))
	g.Go(guard("embedding", func() error {
		out.embedding = x.Embedding(text)
		if len(out.embedding.Vector) == 0 {
			return fmt.Errorf("empty vector")
		}
		return nil
	}))

	if err := g.Wait(); err != nil {
		return signalSet{}, err
	}
	return out, nil
}

func (s signalSet) merged(isDuplicate bool) map[string]interface{} {
	return map[string]interface{}{
		"readability": s.readability,
		"language":    s.language,
		"keyphrases":  s.keyphrases,
		"entities":    s.entities,
		"sentiment":   s.sentiment,
		"embedding": map[string]interface{}{
			"model":      s.embedding.Model,
			"dimensions": len(s.embedding.Vector),
		},
		"isDuplicate": isDuplicate,
	}
}

// TitleHash is the cross-source duplicate key of an idea.
func TitleHash(title string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(title))))
	return hex.EncodeToString(sum[:])
}

type enrichment struct {
	idea        *IdeaModel
	signals     map[string]interface{}
	isDuplicate bool
}

// enrich computes the idea for one raw item. Nothing is written; the caller
// stores the idea together with the job result.
func (s *Service) enrich(ctx context.Context, itemID int64, h hint) (*enrichment, error) {
	item, err := s.store.GetRawItem(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("loading raw item %d: %w", itemID, err)
	}

	raw := map[string]interface{}(item.Raw)
	if raw == nil {
		raw = map[string]interface{}{}
	}
	norm := item.Item()
	title := firstString(norm.Title, h.Title, raw["title"])
	summary := firstString(norm.Summary, raw["summary"], raw["description"])
	url := firstString(h.URL, norm.URL, item.URL)
	text := title + " " + summary

	signals, err := s.extractors.run(ctx, url, text)
	if err != nil {
		return nil, err
	}

	titleHash := TitleHash(title)
	isDuplicate, err := s.store.ExistsByTitleHash(ctx, titleHash)
	if err != nil {
		return nil, fmt.Errorf("checking title hash: %w", err)
	}

	merged := signals.merged(isDuplicate)
	idea := &IdeaModel{
		Title:       title,
		Description: summary,
		Source:      IdeaSourceScraper,
		SourceURL:   url,
		RawData:     datatypes.JSONMap(raw),
		Signals:     datatypes.JSONMap(merged),
		Tags:        ideaTags(norm.Tags, raw, signals.keyphrases),
		TitleHash:   titleHash,
		Vectors:     signals.embedding.Vector,
		Status:      IdeaStatusCompleted,
	}
	return &enrichment{idea: idea, signals: merged, isDuplicate: isDuplicate}, nil
}

// ideaTags keeps normalized and adapter tags first, then up to five top
// keyphrases.
func ideaTags(normalized []string, raw map[string]interface{}, keyphrases []extractors.Keyphrase) []string {
	tags := append(lo.Compact(normalized), scraperTags(raw["tags"])...)
	tags = append(tags, scraperTags(raw["category"])...)
	for _, kp := range lo.Slice(keyphrases, 0, topKeyphraseTags) {
		tags = append(tags, kp.Phrase)
	}
	return lo.Uniq(tags)
}

func scraperTags(v interface{}) []string {
	switch t := v.(type) {
	case []interface{}:
		return lo.FilterMap(t, func(e interface{}, _ int) (string, bool) {
			s := fmt.Sprint(e)
			return s, e != nil && s != ""
		})
	case []string:
		return lo.Compact(t)
	case string:
		return lo.Compact([]string{t})
	}
	return nil
}

func firstString(values ...interface{}) string {
	for _, v := range values {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return ""
}
