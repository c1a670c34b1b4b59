package datastore

import (
	"fmt"
	"strings"

	"github.com/Velocidex/json"
	"github.com/Velocidex/ordereddict"
)

// Characters that break the query_string parser. A value made up
// entirely of these is matched as an exact keyword term instead.
const special_chars = `.+-=_&|><!(){}[]^"~?:\/`

// BuildQuery renders the backend DSL document for a search. The
// result is an ordered dict so serialization is deterministic and the
// same logical query always produces the same document.
func BuildQuery(
	sketch_id int64,
	query_string string,
	query_filter *Filter,
	query_dsl string,
	timeline_ids []int64) (*ordereddict.Dict, error) {

	if query_filter == nil {
		query_filter = &Filter{}
	}

	if query_dsl != "" {
		return buildFromDSL(query_dsl, query_filter, timeline_ids)
	}

	if len(query_filter.Events) > 0 {
		return buildEventsQuery(query_filter), nil
	}

	must := []interface{}{}
	must_not := []interface{}{}
	filter := []interface{}{}

	// An all-special-character value defeats the query parser, match
	// it as an exact keyword term instead.
	var special_char_query *ordereddict.Dict
	if query_string != "" {
		parts := strings.SplitN(query_string, ":", 2)
		if len(parts) == 2 && parts[1] != "" &&
			isAllSpecialChars(parts[1]) {
			special_char_query = ordereddict.NewDict().
				Set("term", ordereddict.NewDict().
					Set(parts[0]+".keyword", parts[1]))
			query_string = ""
		}
	}

	if query_string != "" {
		must = append(must, ordereddict.NewDict().
			Set("query_string", ordereddict.NewDict().
				Set("query", query_string).
				Set("default_operator", "AND")))
	}

	if special_char_query != nil {
		must = append(must, special_char_query)
	}

	if len(query_filter.Chips) > 0 {
		labels := []string{}
		datetime_ranges := []interface{}{}

		for _, chip := range query_filter.Chips {
			if chip.Disabled {
				continue
			}
			metricFilterType(chip.Type)

			switch chip.Type {
			case "label":
				label, _ := chip.Value.(string)
				labels = append(labels, label)
				metricFilterLabel(label)

			case "term":
				field := chip.Field
				if _, ok := chip.Value.(string); ok {
					field += ".keyword"
				}
				term_filter := ordereddict.NewDict().
					Set("match_phrase", ordereddict.NewDict().
						Set(field, ordereddict.NewDict().
							Set("query", fmt.Sprintf("%v", chip.Value))))
				if chip.Operator == "must_not" {
					must_not = append(must_not, term_filter)
				} else {
					must = append(must, term_filter)
				}

			case "datetime_range":
				value, _ := chip.Value.(string)
				bounds := strings.SplitN(value, ",", 2)
				if len(bounds) != 2 {
					continue
				}
				datetime_ranges = append(datetime_ranges,
					ordereddict.NewDict().
						Set("range", ordereddict.NewDict().
							Set("datetime", ordereddict.NewDict().
								Set("gte", bounds[0]).
								Set("lte", bounds[1]))))
			}
		}

		must = append(must, buildLabelsQuery(sketch_id, labels))
		must = append(must, ordereddict.NewDict().
			Set("bool", ordereddict.NewDict().
				Set("should", datetime_ranges).
				Set("minimum_should_match", 1)))
	}

	query_doc := ordereddict.NewDict().
		Set("query", ordereddict.NewDict().
			Set("bool", ordereddict.NewDict().
				Set("must", must).
				Set("must_not", must_not).
				Set("filter", filter)))

	applyPagination(query_doc, query_filter)
	applySort(query_doc, query_filter)

	return wrapTimelineFilter(query_doc, timeline_ids), nil
}

func buildFromDSL(
	query_dsl string, query_filter *Filter,
	timeline_ids []int64) (*ordereddict.Dict, error) {

	query_doc := ordereddict.NewDict()
	err := query_doc.UnmarshalJSON([]byte(query_dsl))
	if err != nil {
		return nil, fmt.Errorf("parsing query DSL: %w", err)
	}

	applyPagination(query_doc, query_filter)
	applySort(query_doc, query_filter)

	return wrapTimelineFilter(query_doc, timeline_ids), nil
}

func buildEventsQuery(query_filter *Filter) *ordereddict.Dict {
	ids := []interface{}{}
	for _, event := range query_filter.Events {
		ids = append(ids, event.EventID)
	}
	return ordereddict.NewDict().
		Set("query", ordereddict.NewDict().
			Set("ids", ordereddict.NewDict().
				Set("values", ids))).
		Set("size", len(ids)).
		Set("sort", ordereddict.NewDict().
			Set("datetime", "asc"))
}

// Labels live in a nested document scoped by sketch so a label query
// is a nested bool per label.
func buildLabelsQuery(
	sketch_id int64, labels []string) *ordereddict.Dict {

	must := []interface{}{}
	for _, label := range labels {
		must = append(must, ordereddict.NewDict().
			Set("nested", ordereddict.NewDict().
				Set("query", ordereddict.NewDict().
					Set("bool", ordereddict.NewDict().
						Set("must", []interface{}{
							ordereddict.NewDict().
								Set("term", ordereddict.NewDict().
									Set("timesketch_label.name.keyword",
										label)),
							ordereddict.NewDict().
								Set("term", ordereddict.NewDict().
									Set("timesketch_label.sketch_id",
										sketch_id)),
						}))).
				Set("path", "timesketch_label")))
	}

	return ordereddict.NewDict().
		Set("bool", ordereddict.NewDict().
			Set("must", must))
}

// Events with no __ts_timeline_id predate per timeline filtering and
// always match; newer events must carry one of the wanted ids.
func wrapTimelineFilter(
	query_doc *ordereddict.Dict, timeline_ids []int64) *ordereddict.Dict {

	if len(timeline_ids) == 0 {
		return query_doc
	}

	old_query, ok := query_doc.Get("query")
	if !ok {
		return query_doc
	}

	ids := []interface{}{}
	for _, id := range timeline_ids {
		ids = append(ids, id)
	}

	query_doc.Update("query", ordereddict.NewDict().
		Set("bool", ordereddict.NewDict().
			Set("must", []interface{}{}).
			Set("should", []interface{}{
				ordereddict.NewDict().
					Set("bool", ordereddict.NewDict().
						Set("must", old_query).
						Set("must_not", []interface{}{
							ordereddict.NewDict().
								Set("exists", ordereddict.NewDict().
									Set("field", "__ts_timeline_id")),
						})),
				ordereddict.NewDict().
					Set("bool", ordereddict.NewDict().
						Set("must", []interface{}{
							ordereddict.NewDict().
								Set("terms", ordereddict.NewDict().
									Set("__ts_timeline_id", ids)),
							old_query,
						}).
						Set("must_not", []interface{}{}).
						Set("filter", []interface{}{
							ordereddict.NewDict().
								Set("exists", ordereddict.NewDict().
									Set("field", "__ts_timeline_id")),
						})),
			}).
			Set("must_not", []interface{}{}).
			Set("filter", []interface{}{})))
	return query_doc
}

func applyPagination(query_doc *ordereddict.Dict, query_filter *Filter) {
	if query_filter.From > 0 {
		query_doc.Set("from", query_filter.From)
	}
	if query_filter.Size > 0 {
		query_doc.Set("size", query_filter.Size)
	}
	if query_filter.TerminateAfter > 0 {
		query_doc.Set("terminate_after", query_filter.TerminateAfter)
	}
}

func applySort(query_doc *ordereddict.Dict, query_filter *Filter) {
	_, ok := query_doc.Get("sort")
	if ok {
		return
	}

	order := query_filter.Order
	if order == "" {
		order = "asc"
	}
	query_doc.Set("sort", ordereddict.NewDict().
		Set("datetime", order))
}

func isAllSpecialChars(value string) bool {
	for _, char := range value {
		if !strings.ContainsRune(special_chars, char) {
			return false
		}
	}
	return true
}

// LabelUpdateScript builds the scripted update used to add, remove or
// toggle a label on one event. Queued through ImportEvent or applied
// immediately by SetLabel.
func LabelUpdateScript(
	sketch_id, user_id int64, label string,
	toggle, remove bool) *ordereddict.Dict {

	source := update_label_script
	if toggle {
		source = toggle_label_script
	}

	return ordereddict.NewDict().
		Set("source", source).
		Set("lang", "painless").
		Set("params", ordereddict.NewDict().
			Set("timesketch_label", ordereddict.NewDict().
				Set("name", label).
				Set("user_id", user_id).
				Set("sketch_id", sketch_id)).
			Set("remove", remove))
}

const update_label_script = `
if (ctx._source.timesketch_label == null) {
    ctx._source.timesketch_label = new ArrayList()
}
if (params.remove == true) {
    ctx._source.timesketch_label.removeIf(label -> label.name == params.timesketch_label.name && label.sketch_id == params.timesketch_label.sketch_id);
} else {
    if( ! ctx._source.timesketch_label.contains (params.timesketch_label)) {
        ctx._source.timesketch_label.add(params.timesketch_label)
    }
}
`

const toggle_label_script = `
if (ctx._source.timesketch_label == null) {
    ctx._source.timesketch_label = new ArrayList()
}
boolean removedLabel = ctx._source.timesketch_label.removeIf(label -> label.name == params.timesketch_label.name && label.sketch_id == params.timesketch_label.sketch_id);
if (!removedLabel) {
    ctx._source.timesketch_label.add(params.timesketch_label)
}
`

// SerializeQuery renders a query document to compact JSON.
func SerializeQuery(query_doc *ordereddict.Dict) ([]byte, error) {
	return json.Marshal(query_doc)
}
