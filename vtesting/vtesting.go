// Package vtesting has test utilities shared across packages.
package vtesting

import (
	"context"
	"fmt"
	"sync"

	"github.com/Velocidex/ordereddict"

	"www.timesketch.org/golang/timesketch/config"
	"www.timesketch.org/golang/timesketch/datastore"
)

type ImportedEvent struct {
	IndexName  string
	EventID    string
	TimelineID int64
	Event      *ordereddict.Dict
}

type LabelCall struct {
	IndexName string
	EventID   string
	SketchID  int64
	Label     string
	Toggle    bool
	Remove    bool
}

// MockEventStore plays back preset events and records every write so
// tests can assert on what an analyzer committed.
type MockEventStore struct {
	mu sync.Mutex

	// Preset responses.
	Events  []*datastore.EventDoc
	Buckets map[string][]datastore.Bucket
	Count   int64

	// Recorded calls.
	Imported   []*ImportedEvent
	Labels     []*LabelCall
	Requests   []*datastore.SearchRequest
	FlushCount int
	Refreshed  []string
	Created    []string
	Closed     []string
	Deleted    []string
}

func NewMockEventStore() *MockEventStore {
	return &MockEventStore{
		Buckets: make(map[string][]datastore.Bucket),
	}
}

// MakeEvent builds an event doc from key/value pairs.
func MakeEvent(event_id, index_name string,
	kv ...interface{}) *datastore.EventDoc {

	source := ordereddict.NewDict()
	for i := 0; i+1 < len(kv); i += 2 {
		source.Set(fmt.Sprintf("%v", kv[i]), kv[i+1])
	}
	return &datastore.EventDoc{
		ID:     event_id,
		Index:  index_name,
		Source: source,
	}
}

func TestConfig() *config.Config {
	return config.GetDefaultConfig()
}

func (self *MockEventStore) CreateIndex(
	ctx context.Context, index_name string) error {
	self.mu.Lock()
	defer self.mu.Unlock()

	self.Created = append(self.Created, index_name)
	return nil
}

func (self *MockEventStore) DeleteIndex(
	ctx context.Context, index_name string) error {
	self.mu.Lock()
	defer self.mu.Unlock()

	self.Deleted = append(self.Deleted, index_name)
	return nil
}

func (self *MockEventStore) CloseIndex(
	ctx context.Context, index_name string) error {
	self.mu.Lock()
	defer self.mu.Unlock()

	self.Closed = append(self.Closed, index_name)
	return nil
}

func (self *MockEventStore) Refresh(
	ctx context.Context, index_name string) error {
	self.mu.Lock()
	defer self.mu.Unlock()

	self.Refreshed = append(self.Refreshed, index_name)
	return nil
}

func (self *MockEventStore) Search(
	ctx context.Context,
	req *datastore.SearchRequest) (*datastore.SearchResult, error) {
	self.mu.Lock()
	self.Requests = append(self.Requests, req)
	self.mu.Unlock()

	return &datastore.SearchResult{
		Hits:  self.Events,
		Total: int64(len(self.Events)),
	}, nil
}

func (self *MockEventStore) StreamEvents(
	ctx context.Context, req *datastore.SearchRequest,
	cb func(event *datastore.EventDoc) error) error {
	self.mu.Lock()
	self.Requests = append(self.Requests, req)
	events := self.Events
	self.mu.Unlock()

	for _, event := range events {
		err := ctx.Err()
		if err != nil {
			return err
		}
		err = cb(event)
		if err != nil {
			return err
		}
	}
	return nil
}

func (self *MockEventStore) ImportEvent(
	ctx context.Context, index_name string,
	event *ordereddict.Dict, event_id string,
	timeline_id int64) error {
	self.mu.Lock()
	defer self.mu.Unlock()

	self.Imported = append(self.Imported, &ImportedEvent{
		IndexName:  index_name,
		EventID:    event_id,
		TimelineID: timeline_id,
		Event:      event,
	})
	return nil
}

func (self *MockEventStore) Flush(
	ctx context.Context) (*datastore.ImportResult, error) {
	self.mu.Lock()
	defer self.mu.Unlock()

	self.FlushCount++
	return &datastore.ImportResult{
		NumberOfEvents: len(self.Imported),
		TotalEvents:    len(self.Imported),
		ErrorContainer: make(map[string]*datastore.IndexErrors),
	}, nil
}

func (self *MockEventStore) SetLabel(
	ctx context.Context, index_name, event_id string,
	sketch_id, user_id int64, label string,
	toggle, remove bool) error {
	self.mu.Lock()
	defer self.mu.Unlock()

	self.Labels = append(self.Labels, &LabelCall{
		IndexName: index_name,
		EventID:   event_id,
		SketchID:  sketch_id,
		Label:     label,
		Toggle:    toggle,
		Remove:    remove,
	})
	return nil
}

func (self *MockEventStore) CountEvents(
	ctx context.Context, indices []string) (int64, error) {
	if self.Count > 0 {
		return self.Count, nil
	}
	return int64(len(self.Events)), nil
}

func (self *MockEventStore) FieldBucket(
	ctx context.Context, indices []string,
	field string, limit int) ([]datastore.Bucket, error) {
	self.mu.Lock()
	defer self.mu.Unlock()

	// A preset keyed "index/field" is scoped to that index,
	// otherwise the field wide preset is served.
	if len(indices) == 1 {
		buckets, pres := self.Buckets[indices[0]+"/"+field]
		if pres {
			return buckets, nil
		}
	}
	return self.Buckets[field], nil
}

// UpdatesForEvent returns the partial updates recorded for one event.
func (self *MockEventStore) UpdatesForEvent(
	event_id string) []*ordereddict.Dict {
	self.mu.Lock()
	defer self.mu.Unlock()

	result := []*ordereddict.Dict{}
	for _, imported := range self.Imported {
		if imported.EventID == event_id {
			result = append(result, imported.Event)
		}
	}
	return result
}
