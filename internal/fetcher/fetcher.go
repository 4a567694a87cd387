// Package fetcher talks to the Hacker News APIs and returns feed stories.
package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"hntldr/internal/model"
)

// Default API endpoints.
const (
	FirebaseURL = "https://hacker-news.firebaseio.com/v0"
	AlgoliaURL  = "https://hn.algolia.com/api/v1"
)

const (
	userAgent    = "hntldr/1.0"
	maxBodyBytes = 5 * 1024 * 1024
)

// ErrNotFound is returned when a story no longer exists, is dead or deleted.
var ErrNotFound = errors.New("story not found")

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client fetches top story ids and story details.
type Client struct {
	client      HTTPClient
	firebaseURL string
	algoliaURL  string
	rssURL      string
	limit       int
	now         func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURLs overrides the Firebase and Algolia endpoints.
func WithBaseURLs(firebase, algolia string) Option {
	return func(c *Client) {
		c.firebaseURL = firebase
		c.algoliaURL = algolia
	}
}

// WithRSSFeed lists top identifiers from an RSS feed instead of Firebase.
func WithRSSFeed(url string) Option {
	return func(c *Client) { c.rssURL = url }
}

// WithLimit caps the number of identifiers returned by ListTopIdentifiers.
func WithLimit(n int) Option {
	return func(c *Client) { c.limit = n }
}

// WithClock overrides the clock used for Story.FetchedAt.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// New creates a Client with the given HTTP client.
func New(client HTTPClient, opts ...Option) *Client {
	c := &Client{
		client:      client,
		firebaseURL: FirebaseURL,
		algoliaURL:  AlgoliaURL,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ListTopIdentifiers returns the current front page ids, most relevant first.
func (c *Client) ListTopIdentifiers(ctx context.Context) ([]string, error) {
	var ids []string
	if c.rssURL != "" {
		var err error
		ids, err = c.listRSS(ctx)
		if err != nil {
			return nil, err
		}
	} else {
		var raw []int64
		if err := c.getJSON(ctx, c.firebaseURL+"/topstories.json", &raw); err != nil {
			return nil, fmt.Errorf("fetch top stories: %w", err)
		}
		ids = make([]string, 0, len(raw))
		for _, id := range raw {
			ids = append(ids, strconv.FormatInt(id, 10))
		}
	}

	if c.limit > 0 && len(ids) > c.limit {
		ids = ids[:c.limit]
	}
	return ids, nil
}

type algoliaItem struct {
	Title       string `json:"title"`
	StoryTitle  string `json:"story_title"`
	URL         string `json:"url"`
	StoryURL    string `json:"story_url"`
	Author      string `json:"author"`
	Text        string `json:"text"`
	Type        string `json:"type"`
	Points      *int   `json:"points"`
	NumComments *int   `json:"num_comments"`
}

type firebaseItem struct {
	Title       string  `json:"title"`
	URL         string  `json:"url"`
	By          string  `json:"by"`
	Text        string  `json:"text"`
	Type        string  `json:"type"`
	Score       int     `json:"score"`
	Descendants *int    `json:"descendants"`
	Kids        []int64 `json:"kids"`
	Dead        bool    `json:"dead"`
	Deleted     bool    `json:"deleted"`
}

func (f *firebaseItem) comments() int {
	if f.Descendants != nil {
		return *f.Descendants
	}
	return len(f.Kids)
}

// FetchStory returns the story with the given id.
// Algolia is tried first; Firebase is the fallback and the source of truth
// for dead or deleted items.
func (c *Client) FetchStory(ctx context.Context, id string) (*model.Story, error) {
	story, err := c.fetchAlgolia(ctx, id)
	if err != nil {
		story, err = c.fetchFirebase(ctx, id)
		if err != nil {
			return nil, err
		}
	}
	if story.Title == "" {
		return nil, fmt.Errorf("story %s has no title: %w", id, ErrNotFound)
	}
	return story, nil
}

func (c *Client) fetchAlgolia(ctx context.Context, id string) (*model.Story, error) {
	var item algoliaItem
	if err := c.getJSON(ctx, c.algoliaURL+"/items/"+id, &item); err != nil {
		return nil, fmt.Errorf("algolia item %s: %w", id, err)
	}

	story := &model.Story{
		ID:        id,
		Title:     firstNonEmpty(item.Title, item.StoryTitle),
		URL:       firstNonEmpty(item.URL, item.StoryURL),
		Text:      item.Text,
		Author:    item.Author,
		FetchedAt: c.now().UTC(),
	}
	story.Category = model.DetectCategory(story.Title, item.Type)
	if item.Points != nil {
		story.Score = *item.Points
	}

	if item.NumComments != nil {
		story.Comments = *item.NumComments
	} else if fb, err := c.getFirebaseItem(ctx, id); err == nil && fb != nil {
		story.Comments = fb.comments()
	}
	return story, nil
}

func (c *Client) fetchFirebase(ctx context.Context, id string) (*model.Story, error) {
	item, err := c.getFirebaseItem(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("firebase item %s: %w", id, err)
	}
	if item == nil || item.Dead || item.Deleted {
		return nil, fmt.Errorf("firebase item %s: %w", id, ErrNotFound)
	}

	story := &model.Story{
		ID:        id,
		Title:     item.Title,
		URL:       item.URL,
		Text:      item.Text,
		Author:    item.By,
		Score:     item.Score,
		Comments:  item.comments(),
		FetchedAt: c.now().UTC(),
		Category:  model.DetectCategory(item.Title, item.Type),
	}
	return story, nil
}

// getFirebaseItem returns nil without error when the API answers "null".
func (c *Client) getFirebaseItem(ctx context.Context, id string) (*firebaseItem, error) {
	var item *firebaseItem
	if err := c.getJSON(ctx, c.firebaseURL+"/item/"+id+".json", &item); err != nil {
		return nil, err
	}
	return item, nil
}

func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

func (c *Client) getJSON(ctx context.Context, url string, dst any) error {
	body, err := c.get(ctx, url)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
