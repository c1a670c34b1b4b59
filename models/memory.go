package models

import (
	"sync"
	"time"
)

// MemoryStore keeps all metadata in process. Used by tests and by
// command line tools that do not carry a database around.
type MemoryStore struct {
	mu      sync.Mutex
	next_id int64

	sketches   map[int64]*Sketch
	indices    map[string]*SearchIndex
	timelines  map[int64]*Timeline
	views      map[int64]*View
	stories    map[int64]*Story
	aggs       map[int64]*Aggregation
	comments   []*Comment
	sessions   map[int64]*AnalysisSession
	analyses   map[int64]*Analysis
	attributes map[int64]map[string]*Attribute
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sketches:   make(map[int64]*Sketch),
		indices:    make(map[string]*SearchIndex),
		timelines:  make(map[int64]*Timeline),
		views:      make(map[int64]*View),
		stories:    make(map[int64]*Story),
		aggs:       make(map[int64]*Aggregation),
		sessions:   make(map[int64]*AnalysisSession),
		analyses:   make(map[int64]*Analysis),
		attributes: make(map[int64]map[string]*Attribute),
	}
}

func (self *MemoryStore) nextID() int64 {
	self.next_id++
	return self.next_id
}

func (self *MemoryStore) CreateSketch(sketch *Sketch) error {
	self.mu.Lock()
	defer self.mu.Unlock()

	sketch.ID = self.nextID()
	sketch.CreatedAt = time.Now().UTC()
	clone := *sketch
	self.sketches[sketch.ID] = &clone
	return nil
}

func (self *MemoryStore) GetSketch(id int64) (*Sketch, error) {
	self.mu.Lock()
	defer self.mu.Unlock()

	sketch, ok := self.sketches[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *sketch
	return &clone, nil
}

func (self *MemoryStore) CreateSearchIndex(index *SearchIndex) error {
	self.mu.Lock()
	defer self.mu.Unlock()

	index.ID = self.nextID()
	index.CreatedAt = time.Now().UTC()
	if index.Status == "" {
		index.Status = IndexStatusNew
	}
	clone := *index
	self.indices[index.IndexName] = &clone
	return nil
}

func (self *MemoryStore) GetSearchIndex(index_name string) (*SearchIndex, error) {
	self.mu.Lock()
	defer self.mu.Unlock()

	index, ok := self.indices[index_name]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *index
	return &clone, nil
}

func (self *MemoryStore) GetSearchIndexByID(id int64) (*SearchIndex, error) {
	self.mu.Lock()
	defer self.mu.Unlock()

	for _, index := range self.indices {
		if index.ID == id {
			clone := *index
			return &clone, nil
		}
	}
	return nil, ErrNotFound
}

func (self *MemoryStore) SetSearchIndexStatus(index_name, status string) error {
	self.mu.Lock()
	defer self.mu.Unlock()

	index, ok := self.indices[index_name]
	if !ok {
		return ErrNotFound
	}
	index.Status = status
	return nil
}

func (self *MemoryStore) AppendSearchIndexDescription(
	index_name, text string) error {
	self.mu.Lock()
	defer self.mu.Unlock()

	index, ok := self.indices[index_name]
	if !ok {
		return ErrNotFound
	}
	if index.Description != "" {
		index.Description += "\n"
	}
	index.Description += text
	return nil
}

func (self *MemoryStore) CreateTimeline(timeline *Timeline) error {
	self.mu.Lock()
	defer self.mu.Unlock()

	timeline.ID = self.nextID()
	timeline.CreatedAt = time.Now().UTC()
	if timeline.Status == "" {
		timeline.Status = TimelineStatusProcessing
	}
	clone := *timeline
	self.timelines[timeline.ID] = &clone
	return nil
}

func (self *MemoryStore) GetTimeline(id int64) (*Timeline, error) {
	self.mu.Lock()
	defer self.mu.Unlock()

	timeline, ok := self.timelines[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *timeline
	return &clone, nil
}

func (self *MemoryStore) TimelinesForSketch(sketch_id int64) ([]*Timeline, error) {
	self.mu.Lock()
	defer self.mu.Unlock()

	result := []*Timeline{}
	for _, timeline := range self.timelines {
		if timeline.SketchID == sketch_id {
			clone := *timeline
			result = append(result, &clone)
		}
	}
	sortTimelines(result)
	return result, nil
}

func (self *MemoryStore) SetTimelineStatus(id int64, status string) error {
	self.mu.Lock()
	defer self.mu.Unlock()

	timeline, ok := self.timelines[id]
	if !ok {
		return ErrNotFound
	}
	timeline.Status = status
	return nil
}

func (self *MemoryStore) ActiveTimelinesForIndex(
	index_name string) ([]*Timeline, error) {
	self.mu.Lock()
	defer self.mu.Unlock()

	index, ok := self.indices[index_name]
	if !ok {
		return nil, ErrNotFound
	}

	result := []*Timeline{}
	for _, timeline := range self.timelines {
		if timeline.SearchIndexID != index.ID {
			continue
		}
		if timeline.Status == TimelineStatusArchived ||
			timeline.Status == TimelineStatusDeleted {
			continue
		}
		clone := *timeline
		result = append(result, &clone)
	}
	sortTimelines(result)
	return result, nil
}

func (self *MemoryStore) UpsertView(view *View) error {
	self.mu.Lock()
	defer self.mu.Unlock()

	now := time.Now().UTC()
	for _, existing := range self.views {
		if existing.SketchID == view.SketchID &&
			existing.Name == view.Name {
			existing.Query = view.Query
			existing.Filter = view.Filter
			existing.UpdatedAt = now
			view.ID = existing.ID
			return nil
		}
	}

	view.ID = self.nextID()
	view.CreatedAt = now
	view.UpdatedAt = now
	clone := *view
	self.views[view.ID] = &clone
	return nil
}

func (self *MemoryStore) ViewsForSketch(sketch_id int64) ([]*View, error) {
	self.mu.Lock()
	defer self.mu.Unlock()

	result := []*View{}
	for _, view := range self.views {
		if view.SketchID == sketch_id {
			clone := *view
			result = append(result, &clone)
		}
	}
	sortViews(result)
	return result, nil
}

func (self *MemoryStore) CreateStory(story *Story) error {
	self.mu.Lock()
	defer self.mu.Unlock()

	story.ID = self.nextID()
	story.CreatedAt = time.Now().UTC()
	clone := *story
	self.stories[story.ID] = &clone
	return nil
}

func (self *MemoryStore) UpdateStory(story *Story) error {
	self.mu.Lock()
	defer self.mu.Unlock()

	existing, ok := self.stories[story.ID]
	if !ok {
		return ErrNotFound
	}
	existing.Title = story.Title
	existing.Content = story.Content
	return nil
}

func (self *MemoryStore) StoriesForSketch(sketch_id int64) ([]*Story, error) {
	self.mu.Lock()
	defer self.mu.Unlock()

	result := []*Story{}
	for _, story := range self.stories {
		if story.SketchID == sketch_id {
			clone := *story
			result = append(result, &clone)
		}
	}
	sortStories(result)
	return result, nil
}

func (self *MemoryStore) CreateAggregation(agg *Aggregation) error {
	self.mu.Lock()
	defer self.mu.Unlock()

	agg.ID = self.nextID()
	agg.CreatedAt = time.Now().UTC()
	clone := *agg
	self.aggs[agg.ID] = &clone
	return nil
}

func (self *MemoryStore) CreateComment(comment *Comment) error {
	self.mu.Lock()
	defer self.mu.Unlock()

	comment.ID = self.nextID()
	comment.CreatedAt = time.Now().UTC()
	clone := *comment
	self.comments = append(self.comments, &clone)
	return nil
}

func (self *MemoryStore) CommentsForEvent(
	index_name, event_id string) ([]*Comment, error) {
	self.mu.Lock()
	defer self.mu.Unlock()

	result := []*Comment{}
	for _, comment := range self.comments {
		if comment.IndexName == index_name &&
			comment.EventID == event_id {
			clone := *comment
			result = append(result, &clone)
		}
	}
	return result, nil
}

func (self *MemoryStore) CreateAnalysisSession(session *AnalysisSession) error {
	self.mu.Lock()
	defer self.mu.Unlock()

	session.ID = self.nextID()
	session.CreatedAt = time.Now().UTC()
	clone := *session
	self.sessions[session.ID] = &clone
	return nil
}

func (self *MemoryStore) CreateAnalysis(analysis *Analysis) error {
	self.mu.Lock()
	defer self.mu.Unlock()

	analysis.ID = self.nextID()
	analysis.CreatedAt = time.Now().UTC()
	analysis.UpdatedAt = analysis.CreatedAt
	if analysis.Status == "" {
		analysis.Status = AnalysisStatusPending
	}
	clone := *analysis
	self.analyses[analysis.ID] = &clone
	return nil
}

func (self *MemoryStore) GetAnalysis(id int64) (*Analysis, error) {
	self.mu.Lock()
	defer self.mu.Unlock()

	analysis, ok := self.analyses[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *analysis
	return &clone, nil
}

func (self *MemoryStore) UpdateAnalysis(analysis *Analysis) error {
	self.mu.Lock()
	defer self.mu.Unlock()

	existing, ok := self.analyses[analysis.ID]
	if !ok {
		return ErrNotFound
	}
	analysis.UpdatedAt = time.Now().UTC()
	clone := *analysis
	*existing = clone
	return nil
}

func (self *MemoryStore) SetAnalysisStatus(id int64, status string) error {
	self.mu.Lock()
	defer self.mu.Unlock()

	analysis, ok := self.analyses[id]
	if !ok {
		return ErrNotFound
	}
	analysis.Status = status
	analysis.UpdatedAt = time.Now().UTC()
	return nil
}

func (self *MemoryStore) GetAnalysisStatus(id int64) (string, error) {
	self.mu.Lock()
	defer self.mu.Unlock()

	analysis, ok := self.analyses[id]
	if !ok {
		return "", ErrNotFound
	}
	return analysis.Status, nil
}

func (self *MemoryStore) AnalysesForTimeline(
	timeline_id int64, analyzer_name string) ([]*Analysis, error) {
	self.mu.Lock()
	defer self.mu.Unlock()

	result := []*Analysis{}
	for _, analysis := range self.analyses {
		if analysis.TimelineID == timeline_id &&
			(analyzer_name == "" ||
				analysis.AnalyzerName == analyzer_name) {
			clone := *analysis
			result = append(result, &clone)
		}
	}
	sortAnalyses(result)
	return result, nil
}

func (self *MemoryStore) AnalysesForSession(
	session_id int64) ([]*Analysis, error) {
	self.mu.Lock()
	defer self.mu.Unlock()

	result := []*Analysis{}
	for _, analysis := range self.analyses {
		if analysis.SessionID == session_id {
			clone := *analysis
			result = append(result, &clone)
		}
	}
	sortAnalyses(result)
	return result, nil
}

func (self *MemoryStore) SetSketchAttribute(
	sketch_id int64, name, ontology, value string) error {
	self.mu.Lock()
	defer self.mu.Unlock()

	attrs, ok := self.attributes[sketch_id]
	if !ok {
		attrs = make(map[string]*Attribute)
		self.attributes[sketch_id] = attrs
	}
	attrs[name] = &Attribute{
		SketchID: sketch_id,
		Name:     name,
		Ontology: ontology,
		Value:    value,
	}
	return nil
}

func (self *MemoryStore) GetSketchAttributes(
	sketch_id int64) ([]*Attribute, error) {
	self.mu.Lock()
	defer self.mu.Unlock()

	result := []*Attribute{}
	for _, attr := range self.attributes[sketch_id] {
		clone := *attr
		result = append(result, &clone)
	}
	sortAttributes(result)
	return result, nil
}

func (self *MemoryStore) Close() error {
	return nil
}
