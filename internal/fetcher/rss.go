package fetcher

import (
	"context"
	"fmt"
	"regexp"

	"github.com/mmcdole/gofeed"
)

var itemIDPattern = regexp.MustCompile(`news\.ycombinator\.com/item\?id=(\d+)`)

// listRSS reads story ids from an hnrss-style feed, keeping feed order.
func (c *Client) listRSS(ctx context.Context) ([]string, error) {
	body, err := c.get(ctx, c.rssURL)
	if err != nil {
		return nil, fmt.Errorf("fetch rss feed: %w", err)
	}

	parser := gofeed.NewParser()
	feed, err := parser.ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	seen := make(map[string]bool, len(feed.Items))
	ids := make([]string, 0, len(feed.Items))
	for _, item := range feed.Items {
		id := ItemID(item)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids, nil
}

// ItemID extracts the Hacker News id from a feed item's GUID or links.
// It returns "" when the item does not point at a Hacker News discussion.
func ItemID(item *gofeed.Item) string {
	candidates := []string{item.GUID, item.Link}
	candidates = append(candidates, item.Links...)
	for _, s := range candidates {
		if m := itemIDPattern.FindStringSubmatch(s); m != nil {
			return m[1]
		}
	}
	return ""
}
