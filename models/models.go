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

// Package models holds the relational metadata around the event
// store: sketches, timelines, search indices, saved views, stories
// and analysis bookkeeping. The Store interface has a sqlite backed
// implementation for deployments and a memory one for tools and
// tests.
package models

import (
	"errors"
	"fmt"
	"time"

	"www.timesketch.org/golang/timesketch/config"
)

var ErrNotFound = errors.New("not found")

// Sketch status values.
const (
	SketchStatusNew      = "new"
	SketchStatusReady    = "ready"
	SketchStatusArchived = "archived"
)

// Search index status values.
const (
	IndexStatusNew        = "new"
	IndexStatusProcessing = "processing"
	IndexStatusReady      = "ready"
	IndexStatusFail       = "fail"
)

// Timeline status values.
const (
	TimelineStatusReady      = "ready"
	TimelineStatusProcessing = "processing"
	TimelineStatusFail       = "fail"
	TimelineStatusArchived   = "archived"
	TimelineStatusDeleted    = "deleted"
)

// Analysis status values.
const (
	AnalysisStatusPending = "PENDING"
	AnalysisStatusStarted = "STARTED"
	AnalysisStatusDone    = "DONE"
	AnalysisStatusError   = "ERROR"

	// Set externally to request that a running analysis stops at the
	// next event boundary.
	AnalysisStatusStopping = "STOPPING"
)

type Sketch struct {
	ID          int64
	Name        string
	Description string
	Status      string
	CreatedAt   time.Time
}

type SearchIndex struct {
	ID          int64
	Name        string
	IndexName   string
	Description string
	Status      string
	CreatedAt   time.Time
}

type Timeline struct {
	ID            int64
	Name          string
	Description   string
	SketchID      int64
	SearchIndexID int64
	Status        string
	Color         string
	CreatedAt     time.Time
}

type View struct {
	ID        int64
	SketchID  int64
	Name      string
	Query     string
	QueryDSL  string
	Filter    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Story struct {
	ID        int64
	SketchID  int64
	Title     string
	Content   string
	CreatedAt time.Time
}

type Aggregation struct {
	ID          int64
	SketchID    int64
	Name        string
	AggType     string
	Description string
	Parameters  string
	CreatedAt   time.Time
}

type Comment struct {
	ID        int64
	SketchID  int64
	IndexName string
	EventID   string
	Comment   string
	CreatedAt time.Time
}

type Analysis struct {
	ID           int64
	SketchID     int64
	TimelineID   int64
	SessionID    int64
	AnalyzerName string
	Parameters   string
	Status       string
	Result       string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type AnalysisSession struct {
	ID        int64
	SketchID  int64
	CreatedAt time.Time
}

type Attribute struct {
	SketchID int64
	Name     string
	Ontology string
	Value    string
}

type Store interface {
	CreateSketch(sketch *Sketch) error
	GetSketch(id int64) (*Sketch, error)

	CreateSearchIndex(index *SearchIndex) error
	GetSearchIndex(index_name string) (*SearchIndex, error)
	GetSearchIndexByID(id int64) (*SearchIndex, error)
	SetSearchIndexStatus(index_name, status string) error

	// Used to surface ingest errors to the user.
	AppendSearchIndexDescription(index_name, text string) error

	CreateTimeline(timeline *Timeline) error
	GetTimeline(id int64) (*Timeline, error)
	TimelinesForSketch(sketch_id int64) ([]*Timeline, error)
	SetTimelineStatus(id int64, status string) error
	ActiveTimelinesForIndex(index_name string) ([]*Timeline, error)

	// Views are idempotent per (sketch, name).
	UpsertView(view *View) error
	ViewsForSketch(sketch_id int64) ([]*View, error)

	CreateStory(story *Story) error
	UpdateStory(story *Story) error
	StoriesForSketch(sketch_id int64) ([]*Story, error)

	CreateAggregation(agg *Aggregation) error

	CreateComment(comment *Comment) error
	CommentsForEvent(index_name, event_id string) ([]*Comment, error)

	CreateAnalysisSession(session *AnalysisSession) error
	CreateAnalysis(analysis *Analysis) error
	GetAnalysis(id int64) (*Analysis, error)
	UpdateAnalysis(analysis *Analysis) error
	SetAnalysisStatus(id int64, status string) error
	GetAnalysisStatus(id int64) (string, error)
	AnalysesForTimeline(
		timeline_id int64, analyzer_name string) ([]*Analysis, error)
	AnalysesForSession(session_id int64) ([]*Analysis, error)

	SetSketchAttribute(
		sketch_id int64, name, ontology, value string) error
	GetSketchAttributes(sketch_id int64) ([]*Attribute, error)

	Close() error
}

func NewStore(config_obj *config.Config) (Store, error) {
	switch config_obj.Datastore.Implementation {
	case "", "Memory":
		return NewMemoryStore(), nil

	case "Sqlite":
		return NewSqliteStore(config_obj.Datastore.Location)
	}

	return nil, fmt.Errorf("unknown datastore implementation %q",
		config_obj.Datastore.Implementation)
}
