// Package filter implements the publish/skip decision for feed stories.
package filter

import "hntldr/internal/model"

// Threshold returns the minimum score for a category.
// Categories without an entry use the default category's minimum.
// A config without a default entry disables unknown categories.
func Threshold(category model.Category, cfg model.ThresholdConfig) int {
	if min, ok := cfg[category]; ok {
		return min
	}
	if min, ok := cfg[model.CategoryDefault]; ok {
		return min
	}
	return model.Disabled
}

// ShouldPublish reports whether a story clears its category threshold.
// It has no side effects and never fails.
func ShouldPublish(story model.Story, cfg model.ThresholdConfig) bool {
	min := Threshold(story.Category, cfg)
	if min < 0 {
		return false
	}
	return story.Score >= min
}

// Select returns the stories that pass ShouldPublish, keeping input order.
func Select(stories []model.Story, cfg model.ThresholdConfig) []model.Story {
	var out []model.Story
	for _, s := range stories {
		if ShouldPublish(s, cfg) {
			out = append(out, s)
		}
	}
	return out
}
