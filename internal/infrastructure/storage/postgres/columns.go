package postgres

import (
	"reflect"
	"sync"
)

var columnCache sync.Map // reflect.Type -> []string

// Columns lists the "db" tags of T in field order, descending into embedded
// structs. Results are cached per type.
func Columns[T any]() []string {
	t := reflect.TypeOf((*T)(nil)).Elem()
	if cached, ok := columnCache.Load(t); ok {
		return cached.([]string)
	}
	cols := collectColumns(t)
	columnCache.Store(t, cols)
	return cols
}

func collectColumns(t reflect.Type) []string {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil
	}

	var cols []string
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag := f.Tag.Get("db")
		if f.Anonymous && tag == "" {
			cols = append(cols, collectColumns(f.Type)...)
			continue
		}
		if tag == "" || tag == "-" {
			continue
		}
		cols = append(cols, tag)
	}
	return cols
}
