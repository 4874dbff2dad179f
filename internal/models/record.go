// Package models defines the data structures shared by the tool gateway,
// the audit trail and the conversational orchestrator.
package models

import (
	"bytes"
	"encoding/json"
	"reflect"
)

// Record is one row: an ordered mapping of column name to scalar value.
// The zero value is an empty record ready to use.
type Record struct {
	cols []string
	vals map[string]any
}

// NewRecord returns an empty record with room for n columns.
func NewRecord(n int) Record {
	return Record{cols: make([]string, 0, n), vals: make(map[string]any, n)}
}

// RecordFromMap builds a record whose columns follow order. Keys of m that
// are missing from order are appended in no particular order.
func RecordFromMap(m map[string]any, order []string) Record {
	r := NewRecord(len(m))
	for _, c := range order {
		if v, ok := m[c]; ok {
			r.Set(c, v)
		}
	}
	for k, v := range m {
		if _, ok := r.vals[k]; !ok {
			r.Set(k, v)
		}
	}
	return r
}

// Set assigns a column, appending it if new.
func (r *Record) Set(col string, v any) {
	if r.vals == nil {
		r.vals = make(map[string]any)
	}
	if _, ok := r.vals[col]; !ok {
		r.cols = append(r.cols, col)
	}
	r.vals[col] = v
}

// Get returns the value of col.
func (r Record) Get(col string) (any, bool) {
	v, ok := r.vals[col]
	return v, ok
}

// Columns returns the column names in order.
func (r Record) Columns() []string {
	out := make([]string, len(r.cols))
	copy(out, r.cols)
	return out
}

// Len returns the number of columns.
func (r Record) Len() int { return len(r.cols) }

// Equal reports field-wise equality over the present columns.
func (r Record) Equal(o Record) bool {
	if len(r.vals) != len(o.vals) {
		return false
	}
	for k, v := range r.vals {
		ov, ok := o.vals[k]
		if !ok || !reflect.DeepEqual(v, ov) {
			return false
		}
	}
	return true
}

// MarshalJSON encodes the record as an object with columns in order.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, c := range r.cols {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(c)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(r.vals[c])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
