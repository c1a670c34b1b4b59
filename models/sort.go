package models

import "sort"

// Map iteration order is random so all list results are sorted by id
// for deterministic output.

func sortTimelines(timelines []*Timeline) {
	sort.Slice(timelines, func(i, j int) bool {
		return timelines[i].ID < timelines[j].ID
	})
}

func sortViews(views []*View) {
	sort.Slice(views, func(i, j int) bool {
		return views[i].ID < views[j].ID
	})
}

func sortStories(stories []*Story) {
	sort.Slice(stories, func(i, j int) bool {
		return stories[i].ID < stories[j].ID
	})
}

func sortAnalyses(analyses []*Analysis) {
	sort.Slice(analyses, func(i, j int) bool {
		return analyses[i].ID < analyses[j].ID
	})
}

func sortAttributes(attributes []*Attribute) {
	sort.Slice(attributes, func(i, j int) bool {
		return attributes[i].Name < attributes[j].Name
	})
}
