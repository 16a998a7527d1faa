package render

import (
	"fmt"
	"io"
	"reflect"
	"slices"
	"strings"
	"text/tabwriter"
	"time"
)

// writeTable lays out a slice as one row per element under an upper-case
// header, and a single struct or map as "key:<tab>value" lines.
func writeTable(w io.Writer, data any) error {
	v := deref(reflect.ValueOf(data))
	if v.Kind() == reflect.Slice || v.Kind() == reflect.Array {
		if v.Len() == 0 {
			_, err := fmt.Fprintln(w, "(no results)")
			return err
		}
		return writeRows(w, v)
	}
	return writeRecord(w, v)
}

func writeRows(w io.Writer, v reflect.Value) error {
	keys := fieldsOf(v.Index(0))
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	header := make([]string, len(keys))
	for i, k := range keys {
		header[i] = strings.ToUpper(k.name)
	}
	fmt.Fprintln(tw, strings.Join(header, "\t"))

	for i := range v.Len() {
		row := deref(v.Index(i))
		cells := make([]string, len(keys))
		for j, k := range keys {
			cells[j] = cell(k.get(row))
		}
		if len(keys) == 0 {
			cells = []string{cell(row)}
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	return tw.Flush()
}

func writeRecord(w io.Writer, v reflect.Value) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	keys := fieldsOf(v)
	if len(keys) == 0 && v.Kind() != reflect.Map {
		fmt.Fprintln(tw, cell(v))
	}
	for _, k := range keys {
		fmt.Fprintf(tw, "%s:\t%s\n", k.name, cell(k.get(v)))
	}
	return tw.Flush()
}

// field names one column and reads it from a row.
type field struct {
	name string
	get  func(reflect.Value) reflect.Value
}

// fieldsOf lists the exported struct fields of v in declaration order, or
// the keys of a map in ascending order.
func fieldsOf(v reflect.Value) []field {
	v = deref(v)
	var out []field
	switch v.Kind() {
	case reflect.Struct:
		t := v.Type()
		for i := range t.NumField() {
			sf := t.Field(i)
			if !sf.IsExported() {
				continue
			}
			out = append(out, field{
				name: columnName(sf),
				get:  func(row reflect.Value) reflect.Value { return row.Field(i) },
			})
		}
	case reflect.Map:
		names := make([]string, 0, v.Len())
		byName := make(map[string]reflect.Value, v.Len())
		for _, k := range v.MapKeys() {
			name := fmt.Sprint(k.Interface())
			names = append(names, name)
			byName[name] = k
		}
		slices.Sort(names)
		for _, name := range names {
			key := byName[name]
			out = append(out, field{
				name: name,
				get:  func(row reflect.Value) reflect.Value { return row.MapIndex(key) },
			})
		}
	}
	return out
}

// columnName is the json tag name, else the lower-cased field name.
func columnName(sf reflect.StructField) string {
	name, _, _ := strings.Cut(sf.Tag.Get("json"), ",")
	if name == "" || name == "-" {
		return strings.ToLower(sf.Name)
	}
	return name
}

func deref(v reflect.Value) reflect.Value {
	for v.IsValid() && (v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface) {
		v = v.Elem()
	}
	return v
}

// cell formats one value; nested collections are summarized.
func cell(v reflect.Value) string {
	v = deref(v)
	if !v.IsValid() {
		return ""
	}
	switch x := v.Interface().(type) {
	case time.Time:
		if x.IsZero() {
			return ""
		}
		return x.UTC().Format(time.RFC3339)
	case fmt.Stringer:
		return x.String()
	}

	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		if v.Len() == 0 {
			return "[]"
		}
		return fmt.Sprintf("[%d items]", v.Len())
	case reflect.Map:
		if v.Len() == 0 {
			return "{}"
		}
		return fmt.Sprintf("{%d keys}", v.Len())
	case reflect.Struct:
		return "{...}"
	}
	return fmt.Sprint(v.Interface())
}
