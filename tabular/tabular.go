// Package tabular is a small columnar frame used by analyzers that
// need group-by counts, sorts and percentiles over event batches. It
// deliberately covers only what those passes need.
package tabular

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
)

type Frame struct {
	columns []string
	data    map[string][]interface{}
	length  int
}

func NewFrame(columns ...string) *Frame {
	result := &Frame{
		data: make(map[string][]interface{}),
	}
	for _, column := range columns {
		result.addColumn(column)
	}
	return result
}

func (self *Frame) addColumn(name string) {
	_, exists := self.data[name]
	if exists {
		return
	}
	self.columns = append(self.columns, name)

	// Backfill for rows appended before the column existed.
	cells := make([]interface{}, self.length)
	self.data[name] = cells
}

func (self *Frame) Columns() []string {
	result := make([]string, len(self.columns))
	copy(result, self.columns)
	return result
}

func (self *Frame) Len() int {
	return self.length
}

// AppendRow adds one row. Unknown columns are created, missing cells
// are nil.
func (self *Frame) AppendRow(row map[string]interface{}) {
	for column := range row {
		self.addColumn(column)
	}
	for _, column := range self.columns {
		self.data[column] = append(self.data[column], row[column])
	}
	self.length++
}

func (self *Frame) Get(column string, idx int) interface{} {
	cells, ok := self.data[column]
	if !ok || idx < 0 || idx >= len(cells) {
		return nil
	}
	return cells[idx]
}

func (self *Frame) Column(column string) []interface{} {
	cells, ok := self.data[column]
	if !ok {
		return nil
	}
	result := make([]interface{}, len(cells))
	copy(result, cells)
	return result
}

func (self *Frame) Row(idx int) map[string]interface{} {
	result := make(map[string]interface{})
	for _, column := range self.columns {
		result[column] = self.Get(column, idx)
	}
	return result
}

// Filter returns a new frame with the rows the predicate accepts. The
// predicate receives the row index.
func (self *Frame) Filter(pred func(idx int) bool) *Frame {
	result := NewFrame(self.columns...)
	for i := 0; i < self.length; i++ {
		if pred(i) {
			result.AppendRow(self.Row(i))
		}
	}
	return result
}

// SortBy returns a new frame stably sorted on one column. Numeric
// values sort numerically, everything else by string form.
func (self *Frame) SortBy(column string, ascending bool) *Frame {
	order := make([]int, self.length)
	for i := range order {
		order[i] = i
	}

	sort.SliceStable(order, func(i, j int) bool {
		less := compareValues(
			self.Get(column, order[i]), self.Get(column, order[j])) < 0
		if ascending {
			return less
		}
		return compareValues(
			self.Get(column, order[j]), self.Get(column, order[i])) < 0
	})

	result := NewFrame(self.columns...)
	for _, idx := range order {
		result.AppendRow(self.Row(idx))
	}
	return result
}

type ValueCount struct {
	Value string
	Count int
}

// GroupCount counts occurrences of each distinct value in a column,
// most frequent first. Ties break on the value so output is stable.
func (self *Frame) GroupCount(column string) []ValueCount {
	counts := make(map[string]int)
	for i := 0; i < self.length; i++ {
		value := self.Get(column, i)
		if value == nil {
			continue
		}
		counts[AsString(value)]++
	}

	result := make([]ValueCount, 0, len(counts))
	for value, count := range counts {
		result = append(result, ValueCount{Value: value, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Value < result[j].Value
	})
	return result
}

func (self *Frame) Unique(column string) []string {
	seen := make(map[string]bool)
	result := []string{}
	for i := 0; i < self.length; i++ {
		value := self.Get(column, i)
		if value == nil {
			continue
		}
		str := AsString(value)
		if !seen[str] {
			seen[str] = true
			result = append(result, str)
		}
	}
	return result
}

func (self *Frame) Int64Column(column string) []int64 {
	cells := self.data[column]
	result := make([]int64, len(cells))
	for i, cell := range cells {
		value, ok := AsInt64(cell)
		if ok {
			result[i] = value
		}
	}
	return result
}

// Percentile computes the q-th percentile (0..1) with linear
// interpolation between closest ranks. Returns 0 for empty input.
func Percentile(values []float64, q float64) float64 {
	if len(values) == 0 {
		return 0
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	if q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[len(sorted)-1]
	}

	pos := q * float64(len(sorted)-1)
	lower := int(math.Floor(pos))
	upper := int(math.Ceil(pos))
	if lower == upper {
		return sorted[lower]
	}
	frac := pos - float64(lower)
	return sorted[lower]*(1-frac) + sorted[upper]*frac
}

func compareValues(a, b interface{}) int {
	a_num, a_ok := AsFloat64(a)
	b_num, b_ok := AsFloat64(b)
	if a_ok && b_ok {
		switch {
		case a_num < b_num:
			return -1
		case a_num > b_num:
			return 1
		}
		return 0
	}

	a_str := AsString(a)
	b_str := AsString(b)
	switch {
	case a_str < b_str:
		return -1
	case a_str > b_str:
		return 1
	}
	return 0
}

func AsInt64(value interface{}) (int64, bool) {
	switch t := value.(type) {
	case int:
		return int64(t), true
	case int32:
		return int64(t), true
	case int64:
		return t, true
	case uint64:
		return int64(t), true
	case float64:
		return int64(t), true
	case float32:
		return int64(t), true
	case json.Number:
		parsed, err := t.Int64()
		return parsed, err == nil
	}
	return 0, false
}

func AsFloat64(value interface{}) (float64, bool) {
	switch t := value.(type) {
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint64:
		return float64(t), true
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case json.Number:
		parsed, err := t.Float64()
		return parsed, err == nil
	}
	return 0, false
}

func AsString(value interface{}) string {
	switch t := value.(type) {
	case string:
		return t
	case nil:
		return ""
	}
	return fmt.Sprintf("%v", value)
}
