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
package datastore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	elasticsearch "github.com/elastic/go-elasticsearch/v9"
	"github.com/elastic/go-elasticsearch/v9/esapi"
	"github.com/Velocidex/ordereddict"

	"www.timesketch.org/golang/timesketch/config"
	"www.timesketch.org/golang/timesketch/logging"
)

// ElasticStore talks to the backing Elasticsearch/OpenSearch
// cluster. Writes are buffered and sent as bulk requests every
// flush_interval documents.
type ElasticStore struct {
	config_obj *config.Config
	client     *elasticsearch.Client
	logger     *logging.LogContext

	mu              sync.Mutex
	queue           [][]byte
	import_counter  int
	flush_interval  int
	error_container map[string]*IndexErrors
}

func NewElasticStore(config_obj *config.Config) (*ElasticStore, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: config_obj.Elastic.Addresses,
		Username:  config_obj.Elastic.User,
		Password:  config_obj.Elastic.Password,
	})
	if err != nil {
		return nil, err
	}

	flush_interval := config_obj.Elastic.FlushInterval
	if flush_interval <= 0 {
		flush_interval = DefaultFlushInterval
	}

	return &ElasticStore{
		config_obj:      config_obj,
		client:          client,
		logger:          logging.GetLogger(config_obj, &logging.FrontendComponent),
		flush_interval:  flush_interval,
		error_container: make(map[string]*IndexErrors),
	}, nil
}

func (self *ElasticStore) CreateIndex(
	ctx context.Context, index_name string) error {

	exists, err := self.client.Indices.Exists(
		[]string{index_name},
		self.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return &TransientStoreError{Op: "CreateIndex", Err: err}
	}
	defer exists.Body.Close()

	if exists.StatusCode == 200 {
		return nil
	}

	mappings := `{
            "mappings": {
                "properties": {
                    "timesketch_label": {"type": "nested"},
                    "datetime": {"type": "date"}
                }
            }
        }`

	res, err := self.client.Indices.Create(
		index_name,
		self.client.Indices.Create.WithContext(ctx),
		self.client.Indices.Create.WithBody(strings.NewReader(mappings)))
	if err != nil {
		return &TransientStoreError{Op: "CreateIndex", Err: err}
	}
	defer res.Body.Close()

	// Lost the race with another worker, that is fine.
	if res.StatusCode == 400 {
		self.logger.Warn(
			"Attempting to create an index that already exists (%s)",
			index_name)
		return nil
	}

	return self.checkResponse(res, "CreateIndex")
}

func (self *ElasticStore) DeleteIndex(
	ctx context.Context, index_name string) error {

	res, err := self.client.Indices.Delete(
		[]string{index_name},
		self.client.Indices.Delete.WithContext(ctx))
	if err != nil {
		return &TransientStoreError{Op: "DeleteIndex", Err: err}
	}
	defer res.Body.Close()

	if res.StatusCode == 404 {
		return nil
	}
	return self.checkResponse(res, "DeleteIndex")
}

func (self *ElasticStore) CloseIndex(
	ctx context.Context, index_name string) error {

	res, err := self.client.Indices.Close(
		[]string{index_name},
		self.client.Indices.Close.WithContext(ctx))
	if err != nil {
		return &TransientStoreError{Op: "CloseIndex", Err: err}
	}
	defer res.Body.Close()
	return self.checkResponse(res, "CloseIndex")
}

func (self *ElasticStore) Refresh(
	ctx context.Context, index_name string) error {

	res, err := self.client.Indices.Refresh(
		self.client.Indices.Refresh.WithContext(ctx),
		self.client.Indices.Refresh.WithIndex(index_name))
	if err != nil {
		return &TransientStoreError{Op: "Refresh", Err: err}
	}
	defer res.Body.Close()
	return self.checkResponse(res, "Refresh")
}

type searchResponse struct {
	ScrollID string `json:"_scroll_id"`
	Hits     struct {
		Total json.RawMessage `json:"total"`
		Hits  []*EventDoc     `json:"hits"`
	} `json:"hits"`
	Aggregations map[string]json.RawMessage `json:"aggregations"`
}

// Newer backends report total hits as an object, older ones as a
// plain number.
func parseTotal(raw json.RawMessage) int64 {
	if len(raw) == 0 {
		return 0
	}

	var object struct {
		Value int64 `json:"value"`
	}
	if json.Unmarshal(raw, &object) == nil {
		return object.Value
	}

	var plain int64
	if json.Unmarshal(raw, &plain) == nil {
		return plain
	}
	return 0
}

func (self *ElasticStore) Search(
	ctx context.Context, req *SearchRequest) (*SearchResult, error) {

	searchRequestsCounter.WithLabelValues("search").Inc()

	parsed, err := self.doSearch(ctx, req)
	if err != nil {
		return nil, err
	}

	return &SearchResult{
		Hits:     parsed.Hits.Hits,
		Total:    parseTotal(parsed.Hits.Total),
		ScrollID: parsed.ScrollID,
	}, nil
}

func (self *ElasticStore) doSearch(
	ctx context.Context, req *SearchRequest) (*searchResponse, error) {

	query_doc, err := BuildQuery(
		req.SketchID, req.QueryString, req.Filter, req.QueryDSL,
		req.TimelineIDs)
	if err != nil {
		return nil, err
	}

	serialized, err := SerializeQuery(query_doc)
	if err != nil {
		return nil, err
	}

	options := []func(*esapi.SearchRequest){
		self.client.Search.WithContext(ctx),
		self.client.Search.WithIndex(uniqueStrings(req.Indices)...),
		self.client.Search.WithBody(bytes.NewReader(serialized)),
	}
	if req.EnableScroll {
		options = append(options,
			self.client.Search.WithScroll(scrollDuration()))
	}
	if len(req.ReturnFields) > 0 {
		options = append(options,
			self.client.Search.WithSourceIncludes(req.ReturnFields...))
	}

	res, err := self.client.Search(options...)
	if err != nil {
		return nil, &TransientStoreError{Op: "Search", Err: err}
	}
	defer res.Body.Close()

	err = self.checkResponse(res, "Search")
	if err != nil {
		return nil, err
	}

	parsed := &searchResponse{}
	err = json.NewDecoder(res.Body).Decode(parsed)
	if err != nil {
		return nil, &TransientStoreError{Op: "Search", Err: err}
	}
	return parsed, nil
}

func (self *ElasticStore) scrollPage(
	ctx context.Context, scroll_id string) (*searchResponse, error) {

	res, err := self.client.Scroll(
		self.client.Scroll.WithContext(ctx),
		self.client.Scroll.WithScrollID(scroll_id),
		self.client.Scroll.WithScroll(scrollDuration()))
	if err != nil {
		return nil, &TransientStoreError{Op: "Scroll", Err: err}
	}
	defer res.Body.Close()

	err = self.checkResponse(res, "Scroll")
	if err != nil {
		return nil, err
	}

	parsed := &searchResponse{}
	err = json.NewDecoder(res.Body).Decode(parsed)
	if err != nil {
		return nil, &TransientStoreError{Op: "Scroll", Err: err}
	}
	return parsed, nil
}

func (self *ElasticStore) StreamEvents(
	ctx context.Context, req *SearchRequest,
	cb func(event *EventDoc) error) error {

	searchRequestsCounter.WithLabelValues("stream").Inc()

	// Copy the filter so stream defaults do not leak to the caller.
	stream_req := *req
	filter := Filter{}
	if req.Filter != nil {
		filter = *req.Filter
	}
	if filter.Size == 0 {
		filter.Size = DefaultStreamLimit
	}
	if filter.TerminateAfter == 0 {
		filter.TerminateAfter = DefaultStreamLimit
	}
	stream_req.Filter = &filter
	stream_req.EnableScroll = true

	page, err := self.doSearch(ctx, &stream_req)
	if err != nil {
		return err
	}

	// Scroll refreshes can redeliver documents, deliver each event
	// at most once.
	seen := make(map[string]bool)

	deliver := func(hits []*EventDoc) error {
		for _, hit := range hits {
			if seen[hit.ID] {
				continue
			}
			seen[hit.ID] = true

			err := cb(hit)
			if err != nil {
				return err
			}
		}
		return nil
	}

	err = deliver(page.Hits.Hits)
	if err != nil {
		return err
	}

	scroll_id := page.ScrollID
	defer self.clearScroll(scroll_id)

	for {
		err := ctx.Err()
		if err != nil {
			return err
		}

		var next *searchResponse
		for retry := 0; ; retry++ {
			next, err = self.scrollPage(ctx, scroll_id)
			if err == nil {
				break
			}
			if !IsTransient(err) || retry >= DefaultFlushRetryLimit {
				return err
			}
			self.logger.Error(
				"Unable to fetch scroll page (retry %d/%d): %v",
				retry, DefaultFlushRetryLimit, err)
		}

		if len(next.Hits.Hits) == 0 {
			return nil
		}

		scroll_id = next.ScrollID
		err = deliver(next.Hits.Hits)
		if err != nil {
			return err
		}
	}
}

func (self *ElasticStore) clearScroll(scroll_id string) {
	if scroll_id == "" {
		return
	}
	res, err := self.client.ClearScroll(
		self.client.ClearScroll.WithScrollID(scroll_id))
	if err == nil {
		res.Body.Close()
	}
}

func (self *ElasticStore) ImportEvent(
	ctx context.Context, index_name string,
	event *ordereddict.Dict, event_id string,
	timeline_id int64) error {

	if event == nil {
		return nil
	}

	var header *ordereddict.Dict
	var body interface{}

	if event_id != "" {
		header = ordereddict.NewDict().
			Set("update", ordereddict.NewDict().
				Set("_index", index_name).
				Set("_id", event_id))

		// A "lang" key means the event payload is a scripted update.
		_, is_script := event.Get("lang")
		if is_script {
			body = ordereddict.NewDict().Set("script", event)
		} else {
			body = ordereddict.NewDict().Set("doc", event)
		}
	} else {
		header = ordereddict.NewDict().
			Set("index", ordereddict.NewDict().
				Set("_index", index_name))
		if timeline_id != 0 {
			event.Set("__ts_timeline_id", timeline_id)
		}
		body = event
	}

	header_line, err := SerializeQuery(header)
	if err != nil {
		return err
	}
	body_line, err := jsonMarshal(body)
	if err != nil {
		return err
	}

	self.mu.Lock()
	self.queue = append(self.queue, header_line, body_line)
	self.import_counter++
	counter := self.import_counter
	self.mu.Unlock()

	importedEventsCounter.Inc()

	if counter%self.flush_interval == 0 {
		_, err := self.Flush(ctx)
		return err
	}
	return nil
}

func (self *ElasticStore) Flush(
	ctx context.Context) (*ImportResult, error) {

	self.mu.Lock()
	queue := self.queue
	self.queue = nil
	counter := self.import_counter
	self.mu.Unlock()

	if len(queue) == 0 {
		return &ImportResult{
			TotalEvents:    counter,
			ErrorContainer: self.error_container,
		}, nil
	}

	payload := bytes.Join(queue, []byte("\n"))
	payload = append(payload, '\n')

	var res *esapi.Response
	var err error
	for retry := 0; ; retry++ {
		res, err = self.client.Bulk(
			bytes.NewReader(payload),
			self.client.Bulk.WithContext(ctx))
		if err == nil {
			break
		}
		if retry >= DefaultFlushRetryLimit {
			self.logger.Error(
				"Unable to add events, reached retry max: %v", err)
			return nil, &TransientStoreError{Op: "Flush", Err: err}
		}
		self.logger.Error("Unable to add events (retry %d/%d)",
			retry, DefaultFlushRetryLimit)
	}
	defer res.Body.Close()

	err = self.checkResponse(res, "Flush")
	if err != nil {
		return nil, err
	}

	result := &ImportResult{
		NumberOfEvents: len(queue) / 2,
		TotalEvents:    counter,
		ErrorContainer: self.error_container,
	}

	var bulk_response struct {
		Errors bool `json:"errors"`
		Items  []map[string]struct {
			Index  string `json:"_index"`
			ID     string `json:"_id"`
			Status int    `json:"status"`
			Error  *struct {
				Type     string `json:"type"`
				Reason   string `json:"reason"`
				CausedBy struct {
					Type   string `json:"type"`
					Reason string `json:"reason"`
				} `json:"caused_by"`
			} `json:"error"`
		} `json:"items"`
	}
	err = json.NewDecoder(res.Body).Decode(&bulk_response)
	if err != nil {
		return nil, &TransientStoreError{Op: "Flush", Err: err}
	}

	if bulk_response.Errors {
		bulkFlushErrorsCounter.Inc()
		result.ErrorsInUpload = true
		self.logger.Error("Errors while attempting to upload events.")

		for _, item := range bulk_response.Items {
			for _, operation := range item {
				if operation.Error == nil {
					continue
				}

				container, ok := self.error_container[operation.Index]
				if !ok {
					container = &IndexErrors{
						Types:   make(map[string]int),
						Details: make(map[string]int),
					}
					self.error_container[operation.Index] = container
				}

				caused_type := operation.Error.CausedBy.Type
				if caused_type == "" {
					caused_type = "Unknown Detailed Type"
				}
				caused_reason := operation.Error.CausedBy.Reason
				if caused_reason == "" {
					caused_reason = "Unknown Detailed Reason"
				}

				container.Types[operation.Error.Type]++
				container.Details[fmt.Sprintf("%s/%s",
					caused_type,
					firstWords(caused_reason, 5))]++

				error_msg := fmt.Sprintf("<%s> %s [%s/%s]",
					operation.Error.Type, operation.Error.Reason,
					caused_type, caused_reason)
				container.Errors = append(container.Errors, error_msg)

				self.logger.Error(
					"Unable to upload document: %s to index %s - [%d] %s",
					operation.ID, operation.Index,
					operation.Status, error_msg)
			}
		}
	}

	return result, nil
}

func (self *ElasticStore) SetLabel(
	ctx context.Context, index_name, event_id string,
	sketch_id, user_id int64, label string,
	toggle, remove bool) error {

	// The script assumes the label field exists on the document.
	has_field, err := self.hasLabelField(ctx, index_name, event_id)
	if err != nil {
		return err
	}
	if !has_field {
		err := self.update(ctx, index_name, event_id,
			`{"doc": {"timesketch_label": []}}`)
		if err != nil {
			return err
		}
	}

	script := LabelUpdateScript(sketch_id, user_id, label, toggle, remove)
	body := ordereddict.NewDict().Set("script", script)
	serialized, err := SerializeQuery(body)
	if err != nil {
		return err
	}
	return self.update(ctx, index_name, event_id, string(serialized))
}

func (self *ElasticStore) hasLabelField(
	ctx context.Context, index_name, event_id string) (bool, error) {

	res, err := self.client.Get(index_name, event_id,
		self.client.Get.WithContext(ctx))
	if err != nil {
		return false, &TransientStoreError{Op: "Get", Err: err}
	}
	defer res.Body.Close()

	err = self.checkResponse(res, "Get")
	if err != nil {
		return false, err
	}

	var doc struct {
		Source map[string]json.RawMessage `json:"_source"`
	}
	err = json.NewDecoder(res.Body).Decode(&doc)
	if err != nil {
		return false, &TransientStoreError{Op: "Get", Err: err}
	}

	_, ok := doc.Source["timesketch_label"]
	return ok, nil
}

func (self *ElasticStore) update(
	ctx context.Context, index_name, event_id, body string) error {

	res, err := self.client.Update(index_name, event_id,
		strings.NewReader(body),
		self.client.Update.WithContext(ctx))
	if err != nil {
		return &TransientStoreError{Op: "Update", Err: err}
	}
	defer res.Body.Close()
	return self.checkResponse(res, "Update")
}

func (self *ElasticStore) CountEvents(
	ctx context.Context, indices []string) (int64, error) {

	res, err := self.client.Count(
		self.client.Count.WithContext(ctx),
		self.client.Count.WithIndex(uniqueStrings(indices)...))
	if err != nil {
		return 0, &TransientStoreError{Op: "Count", Err: err}
	}
	defer res.Body.Close()

	err = self.checkResponse(res, "Count")
	if err != nil {
		return 0, err
	}

	var parsed struct {
		Count int64 `json:"count"`
	}
	err = json.NewDecoder(res.Body).Decode(&parsed)
	if err != nil {
		return 0, &TransientStoreError{Op: "Count", Err: err}
	}
	return parsed.Count, nil
}

func (self *ElasticStore) FieldBucket(
	ctx context.Context, indices []string,
	field string, limit int) ([]Bucket, error) {

	if limit <= 0 {
		limit = 10
	}

	// Dynamic string mappings index the raw value under .keyword.
	agg_field := field
	if !strings.HasSuffix(agg_field, ".keyword") {
		agg_field += ".keyword"
	}

	query_doc := ordereddict.NewDict().
		Set("size", 0).
		Set("aggregations", ordereddict.NewDict().
			Set("field_bucket", ordereddict.NewDict().
				Set("terms", ordereddict.NewDict().
					Set("field", agg_field).
					Set("size", limit))))

	serialized, err := SerializeQuery(query_doc)
	if err != nil {
		return nil, err
	}

	res, err := self.client.Search(
		self.client.Search.WithContext(ctx),
		self.client.Search.WithIndex(uniqueStrings(indices)...),
		self.client.Search.WithBody(bytes.NewReader(serialized)))
	if err != nil {
		return nil, &TransientStoreError{Op: "FieldBucket", Err: err}
	}
	defer res.Body.Close()

	err = self.checkResponse(res, "FieldBucket")
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Aggregations struct {
			FieldBucket struct {
				Buckets []struct {
					Key      interface{} `json:"key"`
					DocCount int64       `json:"doc_count"`
				} `json:"buckets"`
			} `json:"field_bucket"`
		} `json:"aggregations"`
	}
	err = json.NewDecoder(res.Body).Decode(&parsed)
	if err != nil {
		return nil, &TransientStoreError{Op: "FieldBucket", Err: err}
	}

	result := []Bucket{}
	for _, bucket := range parsed.Aggregations.FieldBucket.Buckets {
		result = append(result, Bucket{
			Key:   fmt.Sprintf("%v", bucket.Key),
			Count: bucket.DocCount,
		})
	}
	return result, nil
}

func (self *ElasticStore) checkResponse(
	res *esapi.Response, op string) error {

	if !res.IsError() {
		return nil
	}

	if isTransientStatus(res.StatusCode) {
		return &TransientStoreError{
			Op:  op,
			Err: fmt.Errorf("status %d", res.StatusCode),
		}
	}
	return fmt.Errorf("%s: backend error: %s", op, res.String())
}

func scrollDuration() time.Duration {
	duration, _ := time.ParseDuration(DefaultScrollTimeout)
	return duration
}

func uniqueStrings(values []string) []string {
	seen := make(map[string]bool)
	result := []string{}
	for _, value := range values {
		if !seen[value] {
			seen[value] = true
			result = append(result, value)
		}
	}
	return result
}

func firstWords(text string, count int) string {
	words := strings.Fields(text)
	if len(words) > count {
		words = words[:count]
	}
	return strings.Join(words, " ")
}

func jsonMarshal(value interface{}) ([]byte, error) {
	dict, ok := value.(*ordereddict.Dict)
	if ok {
		return SerializeQuery(dict)
	}
	return json.Marshal(value)
}
