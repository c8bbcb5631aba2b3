// Package mapper translates between flat database rows keyed by column
// name and JSON documents keyed by REST-facing property names, applying
// the per-type casts each direction needs.
package mapper

import (
	"bytes"
	"encoding/json"
)

// Document is a JSON object that preserves insertion order, so identity
// fields can be kept visually first regardless of SELECT order.
type Document struct {
	keys   []string
	values map[string]any
}

func NewDocument() *Document {
	return &Document{values: make(map[string]any)}
}

// Set inserts or replaces a key. New keys append.
func (d *Document) Set(key string, value any) {
	if _, ok := d.values[key]; !ok {
		d.keys = append(d.keys, key)
	}
	d.values[key] = value
}

// InsertFront moves the key to position 0, inserting it if absent.
func (d *Document) InsertFront(key string, value any) {
	if _, ok := d.values[key]; ok {
		for i, k := range d.keys {
			if k == key {
				d.keys = append(d.keys[:i], d.keys[i+1:]...)
				break
			}
		}
	}
	d.keys = append([]string{key}, d.keys...)
	d.values[key] = value
}

// Get returns the value for key and whether it is present.
func (d *Document) Get(key string) (any, bool) {
	v, ok := d.values[key]
	return v, ok
}

// Keys returns the keys in document order.
func (d *Document) Keys() []string { return d.keys }

// Len returns the number of fields.
func (d *Document) Len() int { return len(d.keys) }

// MarshalJSON renders the object with its keys in document order.
func (d *Document) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range d.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := json.Marshal(d.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
