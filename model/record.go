package model

import (
	"fmt"
	"reflect"
	"strings"
)

// Record is a read-only view over one source case record. Case data reaches
// the uploader from several generations of the desktop client — plain maps
// decoded from JSON exports, or typed rows from newer code — so the
// normalizer reads fields through this interface instead of a concrete type.
type Record interface {
	// Get returns the raw value stored under name and whether it was present.
	Get(name string) (any, bool)
}

// MapRecord adapts a plain key/value mapping.
type MapRecord map[string]any

func (m MapRecord) Get(name string) (any, bool) {
	v, ok := m[name]
	return v, ok
}

// StructRecord adapts a struct (or pointer to struct) by exported field.
// A `json` tag takes priority over the Go field name; matching against the
// Go field name is case-insensitive.
type StructRecord struct {
	v reflect.Value
}

// NewStructRecord wraps src for field access. src must be a struct or a
// non-nil pointer to one.
func NewStructRecord(src any) (*StructRecord, error) {
	v := reflect.ValueOf(src)
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return nil, fmt.Errorf("struct record: nil pointer")
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return nil, fmt.Errorf("struct record: expected struct, got %s", v.Kind())
	}
	return &StructRecord{v: v}, nil
}

func (r *StructRecord) Get(name string) (any, bool) {
	t := r.v.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		tag := f.Tag.Get("json")
		if tag != "" {
			tag = strings.Split(tag, ",")[0]
		}
		if tag == name || (tag == "" && strings.EqualFold(f.Name, name)) {
			return r.v.Field(i).Interface(), true
		}
	}
	return nil, false
}
