package news

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	appLog "covidboard/internal/log"
	"covidboard/internal/model"
)

// DefaultEndpoint is the newsapi.org "everything" search endpoint.
const DefaultEndpoint = "https://newsapi.org/v2/everything"

// APIClient fetches articles matching the configured search terms from
// newsapi.org.
type APIClient struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

func NewAPIClient(endpoint, apiKey string) *APIClient {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &APIClient{
		endpoint: endpoint,
		apiKey:   apiKey,
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

type apiArticle struct {
	Source struct {
		Name string `json:"name"`
	} `json:"source"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	URL         string    `json:"url"`
	Content     string    `json:"content"`
	PublishedAt time.Time `json:"publishedAt"`
}

type apiResponse struct {
	Status       string       `json:"status"`
	Code         string       `json:"code"`
	Message      string       `json:"message"`
	TotalResults int          `json:"totalResults"`
	Articles     []apiArticle `json:"articles"`
}

// Fetch queries articles matching terms, a space-separated list joined
// into a single "+term1+term2" query the way the dashboard has always
// searched. An API-level error payload (status "error") is returned as
// an error.
func (c *APIClient) Fetch(ctx context.Context, terms string) ([]model.Article, error) {
	q := "+" + strings.Join(strings.Fields(terms), "+")

	params := url.Values{}
	params.Set("q", q)
	params.Set("apiKey", c.apiKey)
	reqURL := c.endpoint + "?" + params.Encode()

	appLog.Info("news API request", "terms", terms)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build news request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("news API request: %w", err)
	}
	defer resp.Body.Close()

	var payload apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode news response: %w", err)
	}

	// newsapi reports failures in the body with an error status; the
	// HTTP status is not reliable enough on its own.
	if payload.Status == "error" {
		return nil, fmt.Errorf("news API error %s: %s", payload.Code, payload.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("news API status %d", resp.StatusCode)
	}

	articles := make([]model.Article, 0, len(payload.Articles))
	for _, a := range payload.Articles {
		content := a.Content
		if content == "" {
			content = a.Description
		}
		articles = append(articles, model.Article{
			ID:          articleID(a.URL),
			Source:      a.Source.Name,
			Title:       a.Title,
			URL:         a.URL,
			Content:     content,
			PublishedAt: a.PublishedAt,
		})
	}

	appLog.Debug("news API response", "articles", len(articles), "total", payload.TotalResults)
	return articles, nil
}

// articleID derives a stable ID from the article URL so the same story
// keeps its identity across refreshes and in the cache table.
func articleID(link string) string {
	h := sha256.Sum256([]byte(link))
	return fmt.Sprintf("%x", h[:16])
}
