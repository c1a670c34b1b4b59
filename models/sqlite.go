package models

import (
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

var schema = []string{`
CREATE TABLE IF NOT EXISTS sketch (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL,
    description TEXT DEFAULT '',
    status TEXT DEFAULT '',
    created_at TIMESTAMP
)`, `
CREATE TABLE IF NOT EXISTS searchindex (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL,
    index_name TEXT NOT NULL UNIQUE,
    description TEXT DEFAULT '',
    status TEXT DEFAULT 'new',
    created_at TIMESTAMP
)`, `
CREATE TABLE IF NOT EXISTS timeline (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL,
    description TEXT DEFAULT '',
    sketch_id INTEGER NOT NULL,
    searchindex_id INTEGER NOT NULL,
    status TEXT DEFAULT 'processing',
    color TEXT DEFAULT '',
    created_at TIMESTAMP
)`, `
CREATE TABLE IF NOT EXISTS view (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    sketch_id INTEGER NOT NULL,
    name TEXT NOT NULL,
    query TEXT DEFAULT '',
    query_dsl TEXT DEFAULT '',
    filter TEXT DEFAULT '',
    created_at TIMESTAMP,
    updated_at TIMESTAMP,
    UNIQUE (sketch_id, name)
)`, `
CREATE TABLE IF NOT EXISTS story (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    sketch_id INTEGER NOT NULL,
    title TEXT DEFAULT '',
    content TEXT DEFAULT '',
    created_at TIMESTAMP
)`, `
CREATE TABLE IF NOT EXISTS aggregation (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    sketch_id INTEGER NOT NULL,
    name TEXT DEFAULT '',
    agg_type TEXT DEFAULT '',
    description TEXT DEFAULT '',
    parameters TEXT DEFAULT '',
    created_at TIMESTAMP
)`, `
CREATE TABLE IF NOT EXISTS comment (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    sketch_id INTEGER NOT NULL,
    index_name TEXT NOT NULL,
    event_id TEXT NOT NULL,
    comment TEXT DEFAULT '',
    created_at TIMESTAMP
)`, `
CREATE TABLE IF NOT EXISTS analysis_session (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    sketch_id INTEGER NOT NULL,
    created_at TIMESTAMP
)`, `
CREATE TABLE IF NOT EXISTS analysis (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    sketch_id INTEGER NOT NULL,
    timeline_id INTEGER NOT NULL,
    session_id INTEGER DEFAULT 0,
    analyzer_name TEXT NOT NULL,
    parameters TEXT DEFAULT '',
    status TEXT DEFAULT 'PENDING',
    result TEXT DEFAULT '',
    created_at TIMESTAMP,
    updated_at TIMESTAMP
)`, `
CREATE TABLE IF NOT EXISTS attribute (
    sketch_id INTEGER NOT NULL,
    name TEXT NOT NULL,
    ontology TEXT DEFAULT 'str',
    value TEXT DEFAULT '',
    PRIMARY KEY (sketch_id, name)
)`,
}

type SqliteStore struct {
	db *sql.DB
}

func NewSqliteStore(location string) (*SqliteStore, error) {
	if location == "" {
		location = ":memory:"
	}

	db, err := sql.Open("sqlite3", location)
	if err != nil {
		return nil, errors.Wrap(err, "opening sqlite database")
	}

	// Sqlite does not tolerate concurrent writers on one file.
	db.SetMaxOpenConns(1)

	for _, statement := range schema {
		_, err := db.Exec(statement)
		if err != nil {
			db.Close()
			return nil, errors.Wrap(err, "applying sqlite schema")
		}
	}

	return &SqliteStore{db: db}, nil
}

func (self *SqliteStore) CreateSketch(sketch *Sketch) error {
	sketch.CreatedAt = time.Now().UTC()
	result, err := self.db.Exec(`
           INSERT INTO sketch (name, description, status, created_at)
           VALUES (?, ?, ?, ?)`,
		sketch.Name, sketch.Description, sketch.Status, sketch.CreatedAt)
	if err != nil {
		return err
	}
	sketch.ID, err = result.LastInsertId()
	return err
}

func (self *SqliteStore) GetSketch(id int64) (*Sketch, error) {
	sketch := &Sketch{}
	err := self.db.QueryRow(`
           SELECT id, name, description, status, created_at
           FROM sketch WHERE id = ?`, id).Scan(
		&sketch.ID, &sketch.Name, &sketch.Description,
		&sketch.Status, &sketch.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return sketch, err
}

func (self *SqliteStore) CreateSearchIndex(index *SearchIndex) error {
	index.CreatedAt = time.Now().UTC()
	if index.Status == "" {
		index.Status = IndexStatusNew
	}
	result, err := self.db.Exec(`
           INSERT INTO searchindex
             (name, index_name, description, status, created_at)
           VALUES (?, ?, ?, ?, ?)`,
		index.Name, index.IndexName, index.Description,
		index.Status, index.CreatedAt)
	if err != nil {
		return err
	}
	index.ID, err = result.LastInsertId()
	return err
}

func (self *SqliteStore) GetSearchIndex(index_name string) (*SearchIndex, error) {
	index := &SearchIndex{}
	err := self.db.QueryRow(`
           SELECT id, name, index_name, description, status, created_at
           FROM searchindex WHERE index_name = ?`, index_name).Scan(
		&index.ID, &index.Name, &index.IndexName,
		&index.Description, &index.Status, &index.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return index, err
}

func (self *SqliteStore) GetSearchIndexByID(id int64) (*SearchIndex, error) {
	index := &SearchIndex{}
	err := self.db.QueryRow(`
           SELECT id, name, index_name, description, status, created_at
           FROM searchindex WHERE id = ?`, id).Scan(
		&index.ID, &index.Name, &index.IndexName,
		&index.Description, &index.Status, &index.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return index, err
}

func (self *SqliteStore) SetSearchIndexStatus(index_name, status string) error {
	return self.mustUpdate(`
           UPDATE searchindex SET status = ? WHERE index_name = ?`,
		status, index_name)
}

func (self *SqliteStore) AppendSearchIndexDescription(
	index_name, text string) error {
	return self.mustUpdate(`
           UPDATE searchindex
           SET description = CASE description
               WHEN '' THEN ?
               ELSE description || char(10) || ?
           END
           WHERE index_name = ?`, text, text, index_name)
}

func (self *SqliteStore) CreateTimeline(timeline *Timeline) error {
	timeline.CreatedAt = time.Now().UTC()
	if timeline.Status == "" {
		timeline.Status = TimelineStatusProcessing
	}
	result, err := self.db.Exec(`
           INSERT INTO timeline
             (name, description, sketch_id, searchindex_id, status,
              color, created_at)
           VALUES (?, ?, ?, ?, ?, ?, ?)`,
		timeline.Name, timeline.Description, timeline.SketchID,
		timeline.SearchIndexID, timeline.Status, timeline.Color,
		timeline.CreatedAt)
	if err != nil {
		return err
	}
	timeline.ID, err = result.LastInsertId()
	return err
}

func (self *SqliteStore) GetTimeline(id int64) (*Timeline, error) {
	timeline := &Timeline{}
	err := self.db.QueryRow(`
           SELECT id, name, description, sketch_id, searchindex_id,
                  status, color, created_at
           FROM timeline WHERE id = ?`, id).Scan(
		&timeline.ID, &timeline.Name, &timeline.Description,
		&timeline.SketchID, &timeline.SearchIndexID,
		&timeline.Status, &timeline.Color, &timeline.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return timeline, err
}

func (self *SqliteStore) TimelinesForSketch(
	sketch_id int64) ([]*Timeline, error) {
	return self.queryTimelines(`
           SELECT id, name, description, sketch_id, searchindex_id,
                  status, color, created_at
           FROM timeline WHERE sketch_id = ? ORDER BY id`, sketch_id)
}

func (self *SqliteStore) SetTimelineStatus(id int64, status string) error {
	return self.mustUpdate(
		`UPDATE timeline SET status = ? WHERE id = ?`, status, id)
}

func (self *SqliteStore) ActiveTimelinesForIndex(
	index_name string) ([]*Timeline, error) {
	index, err := self.GetSearchIndex(index_name)
	if err != nil {
		return nil, err
	}
	return self.queryTimelines(`
           SELECT id, name, description, sketch_id, searchindex_id,
                  status, color, created_at
           FROM timeline
           WHERE searchindex_id = ? AND status NOT IN (?, ?)
           ORDER BY id`,
		index.ID, TimelineStatusArchived, TimelineStatusDeleted)
}

func (self *SqliteStore) queryTimelines(
	query string, args ...interface{}) ([]*Timeline, error) {
	rows, err := self.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []*Timeline{}
	for rows.Next() {
		timeline := &Timeline{}
		err := rows.Scan(
			&timeline.ID, &timeline.Name, &timeline.Description,
			&timeline.SketchID, &timeline.SearchIndexID,
			&timeline.Status, &timeline.Color, &timeline.CreatedAt)
		if err != nil {
			return nil, err
		}
		result = append(result, timeline)
	}
	return result, rows.Err()
}

func (self *SqliteStore) UpsertView(view *View) error {
	now := time.Now().UTC()
	result, err := self.db.Exec(`
           INSERT INTO view (sketch_id, name, query, query_dsl, filter,
                             created_at, updated_at)
           VALUES (?, ?, ?, ?, ?, ?, ?)
           ON CONFLICT (sketch_id, name) DO UPDATE SET
             query = excluded.query,
             query_dsl = excluded.query_dsl,
             filter = excluded.filter,
             updated_at = excluded.updated_at`,
		view.SketchID, view.Name, view.Query, view.QueryDSL,
		view.Filter, now, now)
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err == nil && id > 0 {
		view.ID = id
	}
	return nil
}

func (self *SqliteStore) ViewsForSketch(sketch_id int64) ([]*View, error) {
	rows, err := self.db.Query(`
           SELECT id, sketch_id, name, query, query_dsl, filter,
                  created_at, updated_at
           FROM view WHERE sketch_id = ? ORDER BY id`, sketch_id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []*View{}
	for rows.Next() {
		view := &View{}
		err := rows.Scan(&view.ID, &view.SketchID, &view.Name,
			&view.Query, &view.QueryDSL, &view.Filter,
			&view.CreatedAt, &view.UpdatedAt)
		if err != nil {
			return nil, err
		}
		result = append(result, view)
	}
	return result, rows.Err()
}

func (self *SqliteStore) CreateStory(story *Story) error {
	story.CreatedAt = time.Now().UTC()
	result, err := self.db.Exec(`
           INSERT INTO story (sketch_id, title, content, created_at)
           VALUES (?, ?, ?, ?)`,
		story.SketchID, story.Title, story.Content, story.CreatedAt)
	if err != nil {
		return err
	}
	story.ID, err = result.LastInsertId()
	return err
}

func (self *SqliteStore) UpdateStory(story *Story) error {
	return self.mustUpdate(`
           UPDATE story SET title = ?, content = ? WHERE id = ?`,
		story.Title, story.Content, story.ID)
}

func (self *SqliteStore) StoriesForSketch(sketch_id int64) ([]*Story, error) {
	rows, err := self.db.Query(`
           SELECT id, sketch_id, title, content, created_at
           FROM story WHERE sketch_id = ? ORDER BY id`, sketch_id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []*Story{}
	for rows.Next() {
		story := &Story{}
		err := rows.Scan(&story.ID, &story.SketchID, &story.Title,
			&story.Content, &story.CreatedAt)
		if err != nil {
			return nil, err
		}
		result = append(result, story)
	}
	return result, rows.Err()
}

func (self *SqliteStore) CreateAggregation(agg *Aggregation) error {
	agg.CreatedAt = time.Now().UTC()
	result, err := self.db.Exec(`
           INSERT INTO aggregation
             (sketch_id, name, agg_type, description, parameters,
              created_at)
           VALUES (?, ?, ?, ?, ?, ?)`,
		agg.SketchID, agg.Name, agg.AggType, agg.Description,
		agg.Parameters, agg.CreatedAt)
	if err != nil {
		return err
	}
	agg.ID, err = result.LastInsertId()
	return err
}

func (self *SqliteStore) CreateComment(comment *Comment) error {
	comment.CreatedAt = time.Now().UTC()
	result, err := self.db.Exec(`
           INSERT INTO comment
             (sketch_id, index_name, event_id, comment, created_at)
           VALUES (?, ?, ?, ?, ?)`,
		comment.SketchID, comment.IndexName, comment.EventID,
		comment.Comment, comment.CreatedAt)
	if err != nil {
		return err
	}
	comment.ID, err = result.LastInsertId()
	return err
}

func (self *SqliteStore) CommentsForEvent(
	index_name, event_id string) ([]*Comment, error) {
	rows, err := self.db.Query(`
           SELECT id, sketch_id, index_name, event_id, comment,
                  created_at
           FROM comment WHERE index_name = ? AND event_id = ?
           ORDER BY id`, index_name, event_id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []*Comment{}
	for rows.Next() {
		comment := &Comment{}
		err := rows.Scan(&comment.ID, &comment.SketchID,
			&comment.IndexName, &comment.EventID,
			&comment.Comment, &comment.CreatedAt)
		if err != nil {
			return nil, err
		}
		result = append(result, comment)
	}
	return result, rows.Err()
}

func (self *SqliteStore) CreateAnalysisSession(
	session *AnalysisSession) error {
	session.CreatedAt = time.Now().UTC()
	result, err := self.db.Exec(`
           INSERT INTO analysis_session (sketch_id, created_at)
           VALUES (?, ?)`, session.SketchID, session.CreatedAt)
	if err != nil {
		return err
	}
	session.ID, err = result.LastInsertId()
	return err
}

func (self *SqliteStore) CreateAnalysis(analysis *Analysis) error {
	analysis.CreatedAt = time.Now().UTC()
	analysis.UpdatedAt = analysis.CreatedAt
	if analysis.Status == "" {
		analysis.Status = AnalysisStatusPending
	}
	result, err := self.db.Exec(`
           INSERT INTO analysis
             (sketch_id, timeline_id, session_id, analyzer_name,
              parameters, status, result, created_at, updated_at)
           VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		analysis.SketchID, analysis.TimelineID, analysis.SessionID,
		analysis.AnalyzerName, analysis.Parameters, analysis.Status,
		analysis.Result, analysis.CreatedAt, analysis.UpdatedAt)
	if err != nil {
		return err
	}
	analysis.ID, err = result.LastInsertId()
	return err
}

func (self *SqliteStore) GetAnalysis(id int64) (*Analysis, error) {
	analysis := &Analysis{}
	err := self.db.QueryRow(`
           SELECT id, sketch_id, timeline_id, session_id,
                  analyzer_name, parameters, status, result,
                  created_at, updated_at
           FROM analysis WHERE id = ?`, id).Scan(
		&analysis.ID, &analysis.SketchID, &analysis.TimelineID,
		&analysis.SessionID, &analysis.AnalyzerName,
		&analysis.Parameters, &analysis.Status, &analysis.Result,
		&analysis.CreatedAt, &analysis.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return analysis, err
}

func (self *SqliteStore) UpdateAnalysis(analysis *Analysis) error {
	analysis.UpdatedAt = time.Now().UTC()
	return self.mustUpdate(`
           UPDATE analysis
           SET status = ?, result = ?, parameters = ?, session_id = ?,
               updated_at = ?
           WHERE id = ?`,
		analysis.Status, analysis.Result, analysis.Parameters,
		analysis.SessionID, analysis.UpdatedAt, analysis.ID)
}

func (self *SqliteStore) SetAnalysisStatus(id int64, status string) error {
	return self.mustUpdate(`
           UPDATE analysis SET status = ?, updated_at = ?
           WHERE id = ?`, status, time.Now().UTC(), id)
}

func (self *SqliteStore) GetAnalysisStatus(id int64) (string, error) {
	var status string
	err := self.db.QueryRow(
		`SELECT status FROM analysis WHERE id = ?`, id).Scan(&status)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	return status, err
}

func (self *SqliteStore) AnalysesForTimeline(
	timeline_id int64, analyzer_name string) ([]*Analysis, error) {
	query := `
           SELECT id, sketch_id, timeline_id, session_id,
                  analyzer_name, parameters, status, result,
                  created_at, updated_at
           FROM analysis WHERE timeline_id = ?`
	args := []interface{}{timeline_id}
	if analyzer_name != "" {
		query += " AND analyzer_name = ?"
		args = append(args, analyzer_name)
	}
	query += " ORDER BY id"
	return self.queryAnalyses(query, args...)
}

func (self *SqliteStore) AnalysesForSession(
	session_id int64) ([]*Analysis, error) {
	return self.queryAnalyses(`
           SELECT id, sketch_id, timeline_id, session_id,
                  analyzer_name, parameters, status, result,
                  created_at, updated_at
           FROM analysis WHERE session_id = ? ORDER BY id`, session_id)
}

func (self *SqliteStore) queryAnalyses(
	query string, args ...interface{}) ([]*Analysis, error) {
	rows, err := self.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []*Analysis{}
	for rows.Next() {
		analysis := &Analysis{}
		err := rows.Scan(
			&analysis.ID, &analysis.SketchID, &analysis.TimelineID,
			&analysis.SessionID, &analysis.AnalyzerName,
			&analysis.Parameters, &analysis.Status,
			&analysis.Result, &analysis.CreatedAt,
			&analysis.UpdatedAt)
		if err != nil {
			return nil, err
		}
		result = append(result, analysis)
	}
	return result, rows.Err()
}

func (self *SqliteStore) SetSketchAttribute(
	sketch_id int64, name, ontology, value string) error {
	_, err := self.db.Exec(`
           INSERT INTO attribute (sketch_id, name, ontology, value)
           VALUES (?, ?, ?, ?)
           ON CONFLICT (sketch_id, name) DO UPDATE SET
             ontology = excluded.ontology,
             value = excluded.value`,
		sketch_id, name, ontology, value)
	return err
}

func (self *SqliteStore) GetSketchAttributes(
	sketch_id int64) ([]*Attribute, error) {
	rows, err := self.db.Query(`
           SELECT sketch_id, name, ontology, value
           FROM attribute WHERE sketch_id = ? ORDER BY name`,
		sketch_id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []*Attribute{}
	for rows.Next() {
		attr := &Attribute{}
		err := rows.Scan(&attr.SketchID, &attr.Name,
			&attr.Ontology, &attr.Value)
		if err != nil {
			return nil, err
		}
		result = append(result, attr)
	}
	return result, rows.Err()
}

func (self *SqliteStore) mustUpdate(
	query string, args ...interface{}) error {
	result, err := self.db.Exec(query, args...)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (self *SqliteStore) Close() error {
	return self.db.Close()
}
