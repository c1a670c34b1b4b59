/*
Timesketch Analyzer Engine - Collaborative Forensic Timelines
Copyright (C) 2026 Timesketch Authors.

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU Affero General Public License as published
by the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU Affero General Public License for more details.

You should have received a copy of the GNU Affero General Public License
along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/
package analyzers

import (
	"fmt"

	"github.com/Velocidex/json"
	"github.com/Velocidex/ordereddict"
	"www.timesketch.org/golang/timesketch/models"
	"www.timesketch.org/golang/timesketch/ontology"
)

// Sketch is the handle analyzers use to attach views, stories,
// aggregations and attributes to the sketch they run on.
type Sketch struct {
	runtime *Runtime
}

func (self *Sketch) ID() int64 {
	return self.runtime.Sketch.ID
}

func (self *Sketch) IsArchived() bool {
	return self.runtime.Sketch.Status == models.SketchStatusArchived
}

// AddView saves a named search. Views are idempotent per name so a
// rerun updates the earlier view instead of stacking duplicates.
func (self *Sketch) AddView(
	name, query_string, query_dsl, query_filter string) (
	*models.View, error) {

	if self.IsArchived() {
		return nil, ConfigErrorf(
			"sketch %d is archived", self.runtime.Sketch.ID)
	}

	if query_string == "" && query_dsl == "" {
		return nil, ConfigErrorf(
			"a view needs a query_string or a query_dsl")
	}

	view := &models.View{
		SketchID: self.runtime.Sketch.ID,
		Name: fmt.Sprintf("[%s] %s",
			self.runtime.AnalyzerName, name),
		Query:    query_string,
		QueryDSL: query_dsl,
		Filter:   query_filter,
	}
	err := self.runtime.DB.UpsertView(view)
	if err != nil {
		return nil, err
	}

	self.runtime.Output.SavedViews = appendUniqueID(
		self.runtime.Output.SavedViews, view.ID)
	return view, nil
}

// AddAggregation saves an aggregation definition for the UI.
func (self *Sketch) AddAggregation(
	name, agg_type, description string,
	parameters *ordereddict.Dict) (*models.Aggregation, error) {

	if self.IsArchived() {
		return nil, ConfigErrorf(
			"sketch %d is archived", self.runtime.Sketch.ID)
	}

	serialized, err := json.Marshal(parameters)
	if err != nil {
		return nil, err
	}

	agg := &models.Aggregation{
		SketchID:    self.runtime.Sketch.ID,
		Name:        name,
		AggType:     agg_type,
		Description: description,
		Parameters:  string(serialized),
	}
	err = self.runtime.DB.CreateAggregation(agg)
	if err != nil {
		return nil, err
	}

	self.runtime.Output.SavedAggregations = appendUniqueID(
		self.runtime.Output.SavedAggregations, agg.ID)
	return agg, nil
}

// AddSketchAttribute stores a typed key value attribute on the
// sketch. The value is validated against the declared ontology type.
func (self *Sketch) AddSketchAttribute(
	name string, value interface{}, type_tag string) error {

	encoded, err := ontology.Encode(type_tag, value)
	if err != nil {
		return ConfigErrorf("attribute %s: %v", name, err)
	}
	return self.runtime.DB.SetSketchAttribute(
		self.runtime.Sketch.ID, name, type_tag, encoded)
}

// AllIndices returns the distinct index names behind the sketch's
// ready timelines.
func (self *Sketch) AllIndices() ([]string, error) {
	timelines, err := self.readyTimelines()
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	result := []string{}
	for _, timeline := range timelines {
		index, err := self.runtime.DB.GetSearchIndexByID(
			timeline.SearchIndexID)
		if err != nil {
			return nil, err
		}
		if !seen[index.IndexName] {
			seen[index.IndexName] = true
			result = append(result, index.IndexName)
		}
	}
	return result, nil
}

// ActiveTimelineIDs returns the ids of all ready timelines in the
// sketch, used to scope searches in shared indices.
func (self *Sketch) ActiveTimelineIDs() ([]int64, error) {
	timelines, err := self.readyTimelines()
	if err != nil {
		return nil, err
	}

	result := []int64{}
	for _, timeline := range timelines {
		result = append(result, timeline.ID)
	}
	return result, nil
}

func (self *Sketch) readyTimelines() ([]*models.Timeline, error) {
	timelines, err := self.runtime.DB.TimelinesForSketch(
		self.runtime.Sketch.ID)
	if err != nil {
		return nil, err
	}

	result := []*models.Timeline{}
	for _, timeline := range timelines {
		if timeline.Status == models.TimelineStatusReady {
			result = append(result, timeline)
		}
	}
	return result, nil
}

// AddStory opens a story writer. Blocks appended to the writer are
// persisted on every Flush.
func (self *Sketch) AddStory(title string) (*Story, error) {
	if self.IsArchived() {
		return nil, ConfigErrorf(
			"sketch %d is archived", self.runtime.Sketch.ID)
	}

	story := &models.Story{
		SketchID: self.runtime.Sketch.ID,
		Title:    title,
	}
	err := self.runtime.DB.CreateStory(story)
	if err != nil {
		return nil, err
	}

	self.runtime.Output.SavedStories = appendUniqueID(
		self.runtime.Output.SavedStories, story.ID)

	return &Story{
		runtime: self.runtime,
		story:   story,
		blocks:  []*ordereddict.Dict{},
	}, nil
}

// Story appends rendered blocks to a saved story. The block format
// matches what the frontend story editor writes.
type Story struct {
	runtime *Runtime
	story   *models.Story
	blocks  []*ordereddict.Dict
}

func (self *Story) ID() int64 {
	return self.story.ID
}

func newBlock(component string) *ordereddict.Dict {
	return ordereddict.NewDict().
		Set("componentName", component).
		Set("componentProps", ordereddict.NewDict()).
		Set("content", "").
		Set("edit", false).
		Set("showPanel", false).
		Set("isActive", false)
}

// AddText appends a markdown text block.
func (self *Story) AddText(text string) error {
	block := newBlock("")
	block.Set("content", text)
	self.blocks = append(self.blocks, block)
	return self.Flush()
}

// AddView appends an embedded event list for a saved view.
func (self *Story) AddView(view *models.View) error {
	block := newBlock("TsViewEventList")
	block.Set("componentProps", ordereddict.NewDict().
		Set("view", ordereddict.NewDict().
			Set("id", view.ID).
			Set("name", view.Name)))
	self.blocks = append(self.blocks, block)
	return self.Flush()
}

// AddAggregation appends an embedded aggregation chart.
func (self *Story) AddAggregation(agg *models.Aggregation) error {
	block := newBlock("TsAggregationCompact")
	block.Set("componentProps", ordereddict.NewDict().
		Set("aggregation", ordereddict.NewDict().
			Set("id", agg.ID).
			Set("name", agg.Name).
			Set("agg_type", agg.AggType)))
	self.blocks = append(self.blocks, block)
	return self.Flush()
}

// Flush serializes the accumulated blocks into the story content.
func (self *Story) Flush() error {
	serialized, err := json.Marshal(self.blocks)
	if err != nil {
		return err
	}
	self.story.Content = string(serialized)
	return self.runtime.DB.UpdateStory(self.story)
}

func appendUniqueID(ids []int64, id int64) []int64 {
	for _, item := range ids {
		if item == id {
			return ids
		}
	}
	return append(ids, id)
}
