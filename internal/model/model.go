// Package model defines the domain types used across the application.
package model

import (
	"strings"
	"time"
)

// Category classifies a story for threshold lookup.
type Category string

// Supported categories.
const (
	CategoryDefault Category = "default"
	CategoryShow    Category = "show"
	CategoryAsk     Category = "ask"
	CategoryLaunch  Category = "launch"
	CategoryTell    Category = "tell"
	CategoryJob     Category = "job"
)

// Categories lists every known category.
var Categories = []Category{
	CategoryDefault,
	CategoryShow,
	CategoryAsk,
	CategoryLaunch,
	CategoryTell,
	CategoryJob,
}

var titlePrefixes = []struct {
	prefix   string
	category Category
}{
	{"show hn:", CategoryShow},
	{"ask hn:", CategoryAsk},
	{"launch hn:", CategoryLaunch},
	{"tell hn:", CategoryTell},
}

// DetectCategory derives a category from the item type and title prefix.
func DetectCategory(title, itemType string) Category {
	if itemType == "job" {
		return CategoryJob
	}
	lower := strings.ToLower(strings.TrimSpace(title))
	for _, p := range titlePrefixes {
		if strings.HasPrefix(lower, p.prefix) {
			return p.category
		}
	}
	return CategoryDefault
}

// Story is a feed item as fetched during a cycle. It is never persisted.
type Story struct {
	ID        string
	Category  Category
	Title     string
	URL       string
	Text      string
	Author    string
	Score     int
	Comments  int
	FetchedAt time.Time
}

// MessageHandle identifies a published Telegram message so it can be edited.
type MessageHandle struct {
	ChatID    int64
	MessageID int
}

// PostRecord is the durable proof that a story was published.
type PostRecord struct {
	StoryID         string
	Handle          MessageHandle
	Title           string
	URL             string
	Hook            string
	Score           int
	Comments        int
	FirstPostedAt   time.Time
	LastRefreshedAt time.Time
}

// Disabled is the threshold sentinel meaning "never publish this category".
const Disabled = -1

// ThresholdConfig maps a category to its minimum score.
// A negative value disables the category.
type ThresholdConfig map[Category]int
