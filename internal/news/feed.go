package news

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"covidboard/internal/config"
	appLog "covidboard/internal/log"
	"covidboard/internal/model"
)

// Feed owns the current article list and the set of titles the user has
// dismissed. Dismissed articles never re-enter the list for the rest of
// the session, whatever refreshes happen in between.
type Feed struct {
	api     *APIClient
	rss     *RSSFetcher
	sources []config.RSSConfig
	terms   string

	mu        sync.RWMutex
	articles  []model.Article
	dismissed map[string]bool
}

// NewFeed builds a Feed. api may be nil when no news API key is
// configured; RSS sources still work in that case.
func NewFeed(api *APIClient, sources []config.RSSConfig, terms string) *Feed {
	return &Feed{
		api:       api,
		rss:       NewRSSFetcher(),
		sources:   sources,
		terms:     terms,
		dismissed: make(map[string]bool),
	}
}

// Refresh re-fetches every source and replaces the article list with
// the merged result, minus dismissed titles, sorted newest first.
// Partial source failures keep the successful sources' articles and are
// reported in the returned aggregate error. If every source fails the
// previous list is kept.
func (f *Feed) Refresh(ctx context.Context) error {
	// With no API key and no RSS sources there is nothing to fetch;
	// keep whatever the list holds (e.g. the persisted cache).
	if f.api == nil && len(f.sources) == 0 {
		appLog.Warn("no news sources configured, nothing to refresh")
		return nil
	}

	var (
		fetched []model.Article
		errs    []error
		ok      int
	)

	if f.api != nil {
		articles, err := f.api.Fetch(ctx, f.terms)
		if err != nil {
			errs = append(errs, err)
		} else {
			fetched = append(fetched, articles...)
			ok++
		}
	}

	if len(f.sources) > 0 {
		articles, rssErrs := f.rss.FetchAll(ctx, f.sources)
		fetched = append(fetched, articles...)
		errs = append(errs, rssErrs...)
		ok += len(f.sources) - len(rssErrs)
	}

	if ok == 0 && len(errs) > 0 {
		return aggregate(errs)
	}

	sort.SliceStable(fetched, func(i, j int) bool {
		return fetched[i].PublishedAt.After(fetched[j].PublishedAt)
	})

	f.mu.Lock()
	f.articles = f.articles[:0]
	seen := make(map[string]bool, len(fetched))
	for _, a := range fetched {
		if a.Title == "" || f.dismissed[a.Title] || seen[a.ID] {
			continue
		}
		seen[a.ID] = true
		f.articles = append(f.articles, a)
	}
	count := len(f.articles)
	f.mu.Unlock()

	appLog.Info("news refreshed", "articles", count, "failed_sources", len(errs))
	return aggregate(errs)
}

// Dismiss records the title and removes any current article carrying
// it. Dismissing a title that is not on the list is a logged no-op; the
// title is still remembered so it cannot appear later.
func (f *Feed) Dismiss(title string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.dismissed[title] = true
	for i, a := range f.articles {
		if a.Title == title {
			f.articles = append(f.articles[:i], f.articles[i+1:]...)
			appLog.Info("article dismissed", "title", title)
			return
		}
	}
	appLog.Warn("dismiss requested for unknown article", "title", title)
}

// Dismissed returns the dismissed titles, for persistence.
func (f *Feed) Dismissed() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]string, 0, len(f.dismissed))
	for t := range f.dismissed {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// SetDismissed preloads dismissed titles (from the store, at boot).
func (f *Feed) SetDismissed(titles []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range titles {
		f.dismissed[t] = true
	}
}

// SetArticles replaces the article list, dropping dismissed titles.
// Used to serve a persisted cache before the first live fetch.
func (f *Feed) SetArticles(articles []model.Article) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.articles = f.articles[:0]
	for _, a := range articles {
		if !f.dismissed[a.Title] {
			f.articles = append(f.articles, a)
		}
	}
}

// Articles returns a copy of the full current list.
func (f *Feed) Articles() []model.Article {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]model.Article, len(f.articles))
	copy(out, f.articles)
	return out
}

// Top returns the first n articles with their content cut down to a
// 100-rune teaser for the dashboard column.
func (f *Feed) Top(n int) []model.Article {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if n > len(f.articles) {
		n = len(f.articles)
	}
	out := make([]model.Article, n)
	for i := 0; i < n; i++ {
		a := f.articles[i]
		a.Content = truncate(a.Content, 100)
		out[i] = a
	}
	return out
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	if n <= 3 {
		return string(runes[:n])
	}
	return string(runes[:n-3]) + "..."
}

func aggregate(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	var b strings.Builder
	for i, e := range errs {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(e.Error())
	}
	return errors.New(b.String())
}
