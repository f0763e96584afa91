package content

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/nofus-backend/internal/engine"
)

const (
	DefaultWikipediaURL = "https://en.wikipedia.org/api/rest_v1"
	userAgent           = "nofus-host/1.0 (https://github.com/DoyleJ11/nofus-backend)"
	maxParallelFetches  = 4
)

// Wikipedia fetches random page summaries from the Wikimedia REST API.
type Wikipedia struct {
	BaseURL string
	Client  *http.Client
}

func NewWikipedia(baseURL string) *Wikipedia {
	if baseURL == "" {
		baseURL = DefaultWikipediaURL
	}
	return &Wikipedia{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type summaryResponse struct {
	PageID  int    `json:"pageid"`
	Title   string `json:"title"`
	Extract string `json:"extract"`
	URLs    struct {
		Desktop struct {
			Page string `json:"page"`
		} `json:"desktop"`
	} `json:"content_urls"`
}

// Articles fetches n random summaries concurrently. Duplicate pages are
// dropped, so fewer than n articles may come back; any failed request fails
// the whole batch.
func (w *Wikipedia) Articles(ctx context.Context, n int) ([]engine.Article, error) {
	results := make([]engine.Article, n)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelFetches)
	for i := range n {
		g.Go(func() error {
			a, err := w.random(ctx)
			if err != nil {
				return err
			}
			results[i] = a
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	seen := make(map[string]bool, n)
	out := results[:0]
	for _, a := range results {
		if seen[a.ID] {
			continue
		}
		seen[a.ID] = true
		out = append(out, a)
	}
	if len(out) == 0 {
		return nil, ErrNoArticles
	}
	return out, nil
}

func (w *Wikipedia) random(ctx context.Context) (engine.Article, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.BaseURL+"/page/random/summary", nil)
	if err != nil {
		return engine.Article{}, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := w.Client.Do(req)
	if err != nil {
		return engine.Article{}, fmt.Errorf("content: fetch random summary: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return engine.Article{}, fmt.Errorf("content: random summary: unexpected status %d", resp.StatusCode)
	}

	var body summaryResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return engine.Article{}, fmt.Errorf("content: decode summary: %w", err)
	}
	if body.Title == "" {
		return engine.Article{}, fmt.Errorf("content: summary without title")
	}

	id := strconv.Itoa(body.PageID)
	if body.PageID == 0 {
		id = body.Title
	}
	return engine.Article{
		ID:      id,
		Title:   body.Title,
		URL:     body.URLs.Desktop.Page,
		Extract: body.Extract,
	}, nil
}
