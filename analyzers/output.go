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
	"github.com/Velocidex/ordereddict"
	"github.com/Velocidex/json"
)

var (
	valid_statuses = map[string]bool{
		"SUCCESS": true,
		"ERROR":   true,
	}

	// Ordered from least to most important so SetPriority can keep
	// the highest one seen.
	priority_rank = map[string]int{
		"NOTE":   0,
		"LOW":    1,
		"MEDIUM": 2,
		"HIGH":   3,
	}
)

// Output is the structured result record every analyzer run produces.
// It is serialized into the analysis row and surfaced in the UI and
// the CLI.
type Output struct {
	AnalyzerIdentifier string
	AnalyzerName       string

	ResultStatus     string
	ResultPriority   string
	ResultSummary    string
	ResultMarkdown   string
	References       []string
	ResultAttributes *ordereddict.Dict

	// Platform metadata filled in by the runtime.
	TimesketchInstance string
	SketchID           int64
	TimelineID         int64

	SavedViews        []int64
	SavedStories      []int64
	SavedAggregations []int64
	CreatedTags       []string
}

func NewOutput(identifier, name string) *Output {
	return &Output{
		AnalyzerIdentifier: identifier,
		AnalyzerName:       name,
		ResultPriority:     "NOTE",
	}
}

// SetPriority raises the output priority, it never lowers it. Unknown
// values are ignored.
func (self *Output) SetPriority(priority string) {
	new_rank, pres := priority_rank[priority]
	if !pres {
		return
	}
	if new_rank > priority_rank[self.ResultPriority] {
		self.ResultPriority = priority
	}
}

func (self *Output) AddReference(reference string) {
	for _, item := range self.References {
		if item == reference {
			return
		}
	}
	self.References = append(self.References, reference)
}

func (self *Output) AddCreatedTag(tag string) {
	for _, item := range self.CreatedTags {
		if item == tag {
			return
		}
	}
	self.CreatedTags = append(self.CreatedTags, tag)
}

// Validate checks the required fields before the record is stored.
func (self *Output) Validate() error {
	if !valid_statuses[self.ResultStatus] {
		return &ValidationError{
			Msg: "result_status must be SUCCESS or ERROR",
		}
	}
	_, pres := priority_rank[self.ResultPriority]
	if !pres {
		return &ValidationError{
			Msg: "result_priority must be one of NOTE, LOW, MEDIUM, HIGH",
		}
	}
	if self.ResultSummary == "" {
		return &ValidationError{Msg: "result_summary must not be empty"}
	}
	return nil
}

// ToDict renders the record in its canonical serialized form with a
// stable key order.
func (self *Output) ToDict() *ordereddict.Dict {
	meta := ordereddict.NewDict().
		Set("timesketch_instance", self.TimesketchInstance).
		Set("sketch_id", self.SketchID).
		Set("timeline_id", self.TimelineID)

	if len(self.SavedViews) > 0 {
		meta.Set("saved_views", self.SavedViews)
	}
	if len(self.SavedStories) > 0 {
		meta.Set("saved_stories", self.SavedStories)
	}
	if len(self.SavedAggregations) > 0 {
		meta.Set("saved_aggregations", self.SavedAggregations)
	}
	if len(self.CreatedTags) > 0 {
		meta.Set("created_tags", self.CreatedTags)
	}

	result := ordereddict.NewDict().
		Set("platform", "timesketch").
		Set("analyzer_identifier", self.AnalyzerIdentifier).
		Set("analyzer_name", self.AnalyzerName).
		Set("result_status", self.ResultStatus).
		Set("result_priority", self.ResultPriority).
		Set("result_summary", self.ResultSummary)

	if self.ResultMarkdown != "" {
		result.Set("result_markdown", self.ResultMarkdown)
	}
	if len(self.References) > 0 {
		result.Set("references", self.References)
	}
	if self.ResultAttributes != nil {
		result.Set("result_attributes", self.ResultAttributes)
	}
	result.Set("platform_meta_data", meta)

	return result
}

func (self *Output) ToJson() (string, error) {
	serialized, err := json.Marshal(self.ToDict())
	if err != nil {
		return "", err
	}
	return string(serialized), nil
}
