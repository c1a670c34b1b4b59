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

// Package datastore is the adapter between analyzers and the event
// store backend. All event reads and writes go through the EventStore
// interface so analyzers never see the wire client.
package datastore

import (
	"context"

	"github.com/Velocidex/ordereddict"
)

const (
	DefaultSize          = 100
	DefaultFlushInterval = 1000

	// Max events per page when streaming results.
	DefaultStreamLimit = 5000

	// Max retries for flushing the bulk queue.
	DefaultFlushRetryLimit = 3

	// How long the server keeps scroll state between pages.
	DefaultScrollTimeout = "5m"
)

// One event document as stored in the backend.
type EventDoc struct {
	ID     string            `json:"_id"`
	Index  string            `json:"_index"`
	Source *ordereddict.Dict `json:"_source"`
}

type EventRef struct {
	IndexName string
	EventID   string
}

// Chip is one UI originated filter element.
type Chip struct {
	Type     string
	Field    string
	Value    interface{}
	Operator string
	Disabled bool
}

type Filter struct {
	From           int
	Size           int
	TerminateAfter int
	Order          string
	Chips          []*Chip

	// When set the query is an exact event lookup.
	Events []*EventRef
}

type SearchRequest struct {
	SketchID     int64
	Indices      []string
	QueryString  string
	QueryDSL     string
	Filter       *Filter
	ReturnFields []string
	TimelineIDs  []int64
	EnableScroll bool
}

type SearchResult struct {
	Hits     []*EventDoc
	Total    int64
	ScrollID string
}

type Bucket struct {
	Key   string
	Count int64
}

// Per index error accounting for a bulk upload.
type IndexErrors struct {
	Errors  []string
	Types   map[string]int
	Details map[string]int
}

type ImportResult struct {
	NumberOfEvents int
	TotalEvents    int
	ErrorsInUpload bool
	ErrorContainer map[string]*IndexErrors
}

type EventStore interface {
	CreateIndex(ctx context.Context, index_name string) error
	DeleteIndex(ctx context.Context, index_name string) error
	CloseIndex(ctx context.Context, index_name string) error
	Refresh(ctx context.Context, index_name string) error

	Search(ctx context.Context, req *SearchRequest) (*SearchResult, error)

	// StreamEvents delivers each matching event exactly once to the
	// callback. Returning an error from the callback stops the
	// stream and surfaces that error.
	StreamEvents(ctx context.Context, req *SearchRequest,
		cb func(event *EventDoc) error) error

	// ImportEvent queues one document for bulk upload. A non empty
	// event_id makes it a partial update of an existing document.
	ImportEvent(ctx context.Context, index_name string,
		event *ordereddict.Dict, event_id string,
		timeline_id int64) error

	// Flush sends everything queued by ImportEvent.
	Flush(ctx context.Context) (*ImportResult, error)

	// SetLabel updates a label on one event immediately.
	SetLabel(ctx context.Context, index_name, event_id string,
		sketch_id, user_id int64, label string,
		toggle, remove bool) error

	CountEvents(ctx context.Context, indices []string) (int64, error)

	// FieldBucket runs a terms aggregation over one field.
	FieldBucket(ctx context.Context, indices []string,
		field string, limit int) ([]Bucket, error)
}
