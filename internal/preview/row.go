package preview

import (
	"bytes"
	"encoding/json"
)

// Row maps column names to values and keeps the column order of the source
// when encoded as JSON.
type Row struct {
	keys   []string
	values map[string]any
}

func NewRow(capacity int) Row {
	return Row{keys: make([]string, 0, capacity), values: make(map[string]any, capacity)}
}

// Set appends name, or replaces its value when already present.
func (r *Row) Set(name string, value any) {
	if r.values == nil {
		r.values = map[string]any{}
	}
	if _, exists := r.values[name]; !exists {
		r.keys = append(r.keys, name)
	}
	r.values[name] = value
}

func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range r.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(r.values[key])
		if err != nil {
			return nil, err
		}
		buf.Write(name)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
