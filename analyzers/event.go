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
	"strings"

	"github.com/Velocidex/ordereddict"
	"www.timesketch.org/golang/timesketch/datastore"
	"www.timesketch.org/golang/timesketch/models"
)

// Labels only the system itself may manage.
var reserved_labels = map[string]bool{
	"__ts_star":    true,
	"__ts_hidden":  true,
	"__ts_comment": true,
}

// IsReservedLabel reports whether a label is managed by the system
// and may only be set through the dedicated event helpers.
func IsReservedLabel(label string) bool {
	return reserved_labels[label] || strings.HasPrefix(label, "__ts_")
}

// Event is the handle an analyzer gets for each streamed document.
// Attribute changes are staged locally and written back as a single
// partial update on Commit.
type Event struct {
	runtime *Runtime
	doc     *datastore.EventDoc
	staged  *ordereddict.Dict
}

func NewEvent(runtime *Runtime, doc *datastore.EventDoc) *Event {
	return &Event{
		runtime: runtime,
		doc:     doc,
		staged:  ordereddict.NewDict(),
	}
}

func (self *Event) ID() string {
	return self.doc.ID
}

func (self *Event) Index() string {
	return self.doc.Index
}

func (self *Event) Source() *ordereddict.Dict {
	return self.doc.Source
}

// Get returns the current value of an attribute, preferring any
// staged change over the stored document.
func (self *Event) Get(field string) (interface{}, bool) {
	value, pres := self.staged.Get(field)
	if pres {
		return value, true
	}
	if self.doc.Source == nil {
		return nil, false
	}
	return self.doc.Source.Get(field)
}

func (self *Event) GetString(field string) string {
	value, pres := self.Get(field)
	if !pres {
		return ""
	}
	switch t := value.(type) {
	case string:
		return t
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", t)
	}
}

// AddAttributes stages plain attribute values. Reserved system fields
// must go through their dedicated helpers.
func (self *Event) AddAttributes(attributes *ordereddict.Dict) {
	for _, key := range attributes.Keys() {
		value, _ := attributes.Get(key)
		self.staged.Set(key, value)
	}
}

// AddTags stages the union of the existing tag list and the new tags,
// preserving first-seen order.
func (self *Event) AddTags(tags []string) {
	self.mergeList("tag", tags)
}

// AddEmojis stages emoji codes on the event. Callers pass the codes
// from the emojis package.
func (self *Event) AddEmojis(codes []string) {
	self.mergeList("__ts_emojis", codes)
}

func (self *Event) mergeList(field string, additions []string) {
	existing := self.stringList(field)
	seen := make(map[string]bool)
	merged := []string{}
	for _, item := range existing {
		if !seen[item] {
			seen[item] = true
			merged = append(merged, item)
		}
	}
	changed := false
	for _, item := range additions {
		if item == "" || seen[item] {
			continue
		}
		seen[item] = true
		merged = append(merged, item)
		changed = true
	}
	if changed || len(existing) != len(merged) {
		self.staged.Set(field, merged)
	}
}

// AddHumanReadable stages an annotation attributed to the analyzer.
// By default the new entry goes first so the most recent finding
// leads the list.
func (self *Event) AddHumanReadable(text string, append_entry bool) {
	entry := fmt.Sprintf("[%s] %s",
		strings.ToLower(self.runtime.AnalyzerName), text)

	existing := self.stringList("human_readable")
	for _, item := range existing {
		if item == entry {
			return
		}
	}

	var updated []string
	if append_entry {
		updated = append(existing, entry)
	} else {
		updated = append([]string{entry}, existing...)
	}
	self.staged.Set("human_readable", updated)
}

// AddLabel queues a scripted label update through the bulk importer.
func (self *Event) AddLabel(label string, toggle bool) error {
	script := datastore.LabelUpdateScript(
		self.runtime.Sketch.ID, 0, label, toggle, false)
	return self.runtime.Store.ImportEvent(
		self.runtime.Ctx, self.doc.Index, script, self.doc.ID, 0)
}

func (self *Event) AddStar() error {
	return self.AddLabel("__ts_star", false)
}

// AddComment stores the comment row and marks the event as commented.
func (self *Event) AddComment(text string) error {
	err := self.runtime.DB.CreateComment(&models.Comment{
		SketchID:  self.runtime.Sketch.ID,
		IndexName: self.doc.Index,
		EventID:   self.doc.ID,
		Comment:   text,
	})
	if err != nil {
		return err
	}
	return self.AddLabel("__ts_comment", false)
}

// Commit writes all staged changes back as one partial update.
func (self *Event) Commit() error {
	if len(self.staged.Keys()) == 0 {
		return nil
	}
	err := self.runtime.Store.ImportEvent(
		self.runtime.Ctx, self.doc.Index, self.staged,
		self.doc.ID, 0)
	if err != nil {
		return err
	}
	self.staged = ordereddict.NewDict()
	return nil
}

func (self *Event) stringList(field string) []string {
	value, pres := self.Get(field)
	if !pres {
		return nil
	}

	switch t := value.(type) {
	case []string:
		return t
	case []interface{}:
		result := make([]string, 0, len(t))
		for _, item := range t {
			str, ok := item.(string)
			if ok {
				result = append(result, str)
			}
		}
		return result
	case string:
		if t == "" {
			return nil
		}
		return []string{t}
	default:
		return nil
	}
}
