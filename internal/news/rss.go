package news

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mmcdole/gofeed"

	"covidboard/internal/config"
	"covidboard/internal/model"
)

// RSSFetcher loads articles from configured RSS/Atom sources.
type RSSFetcher struct {
	parser *gofeed.Parser
}

func NewRSSFetcher() *RSSFetcher {
	return &RSSFetcher{parser: gofeed.NewParser()}
}

// Fetch parses one source into articles. Items without a parsed publish
// date get the fetch time so ordering stays stable.
func (f *RSSFetcher) Fetch(ctx context.Context, source config.RSSConfig) ([]model.Article, error) {
	feed, err := f.parser.ParseURLWithContext(source.URL, ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", source.ID, err)
	}

	now := time.Now()
	label := source.Name
	if label == "" {
		label = source.ID
	}

	articles := make([]model.Article, 0, len(feed.Items))
	for _, item := range feed.Items {
		pub := now
		if item.PublishedParsed != nil {
			pub = *item.PublishedParsed
		} else if item.UpdatedParsed != nil {
			pub = *item.UpdatedParsed
		}

		content := item.Description
		if content == "" {
			content = item.Content
		}

		articles = append(articles, model.Article{
			ID:          articleID(item.Link),
			Source:      label,
			Title:       item.Title,
			URL:         item.Link,
			Content:     stripHTML(content),
			PublishedAt: pub,
		})
	}
	return articles, nil
}

// FetchAll fans out over all sources concurrently and collects articles
// and per-source errors.
func (f *RSSFetcher) FetchAll(ctx context.Context, sources []config.RSSConfig) ([]model.Article, []error) {
	var (
		mu       sync.Mutex
		articles []model.Article
		errs     []error
		wg       sync.WaitGroup
	)

	for _, src := range sources {
		wg.Add(1)
		go func(s config.RSSConfig) {
			defer wg.Done()
			got, err := f.Fetch(ctx, s)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			articles = append(articles, got...)
		}(src)
	}

	wg.Wait()
	return articles, errs
}

// stripHTML removes tags and collapses whitespace; feed descriptions
// routinely embed markup that would break the teaser rendering.
func stripHTML(s string) string {
	var b strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
